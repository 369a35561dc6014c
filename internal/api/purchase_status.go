package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"
	"unlock-api/internal/database"
	"unlock-api/internal/models"

	"github.com/gin-gonic/gin"
)

// PurchaseStatusResponse represents a purchase status response
type PurchaseStatusResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	PurchaseID string `json:"purchase_id,omitempty"`
	Status     string `json:"status,omitempty"`
}

// GetPurchaseStatus returns the current purchase status
// GET /api/purchase/status?purchase_id=xxx
//
// A user who has paid but whose webhook has not landed yet sees "pending"
// here; the client offers a manual re-check via /purchase/verify.
func GetPurchaseStatus(c *gin.Context) {
	purchaseID := c.Query("purchase_id")
	if purchaseID == "" {
		c.JSON(http.StatusBadRequest, PurchaseStatusResponse{
			Success: false,
			Message: "purchase_id is required",
		})
		return
	}

	cacheKey := fmt.Sprintf("purchase_status:%s", purchaseID)
	if cached, err := database.GetCache(c.Request.Context(), cacheKey); err == nil && cached != "" {
		c.JSON(http.StatusOK, PurchaseStatusResponse{
			Success:    true,
			PurchaseID: purchaseID,
			Status:     cached,
		})
		return
	}

	purchase, err := database.GetPurchaseByID(purchaseID)
	if err != nil {
		if errors.Is(err, database.ErrPurchaseNotFound) {
			c.JSON(http.StatusNotFound, PurchaseStatusResponse{
				Success: false,
				Message: "Purchase not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, PurchaseStatusResponse{
			Success: false,
			Message: "Failed to get purchase status",
		})
		return
	}

	// Terminal statuses are immutable and cache long; pending caches just
	// long enough to absorb redirect-poll bursts.
	ttl := 5 * time.Second
	if purchase.Status != models.PurchaseStatusPending {
		ttl = time.Hour
	}
	_ = database.SetCache(c.Request.Context(), cacheKey, purchase.Status, ttl)

	c.JSON(http.StatusOK, PurchaseStatusResponse{
		Success:    true,
		PurchaseID: purchase.PurchaseID,
		Status:     purchase.Status,
	})
}
