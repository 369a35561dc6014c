package api

import (
	"errors"
	"net/http"
	"time"
	"unlock-api/internal/services"
	"unlock-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// VerifyPurchaseRequest represents a client-triggered verification request.
// A success redirect from a gateway lands here: it is only a trigger to
// re-check the gateway, never proof of payment.
type VerifyPurchaseRequest struct {
	PurchaseID string `json:"purchase_id" binding:"required"`
	// Optional polling hints, clamped server-side to the hard budget.
	MaxAttempts     int `json:"max_attempts"`
	IntervalSeconds int `json:"interval_seconds"`
}

// VerifyPurchaseResponse represents a verification response
type VerifyPurchaseResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	PurchaseID string `json:"purchase_id,omitempty"`
	Status     string `json:"status,omitempty"`
	Unlocked   bool   `json:"unlocked"`
}

// VerifyPurchase re-checks a pending purchase against its gateway
// POST /api/purchase/verify
func VerifyPurchase(c *gin.Context) {
	var req VerifyPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, VerifyPurchaseResponse{
			Success: false,
			Message: "Invalid request format: " + err.Error(),
		})
		return
	}

	outcome, purchase, err := reconciler.ReconcileByPurchaseID(
		c.Request.Context(),
		req.PurchaseID,
		req.MaxAttempts,
		time.Duration(req.IntervalSeconds)*time.Second,
	)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, VerifyPurchaseResponse{
				Success: false,
				Message: "Purchase not found",
			})
			return
		}
		if errors.Is(err, services.ErrGatewayUnavailable) {
			// Indeterminate: the user sees pending plus a manual
			// re-check, never an error about their money.
			c.JSON(http.StatusOK, VerifyPurchaseResponse{
				Success:    true,
				Message:    "Payment status could not be confirmed yet, please retry",
				PurchaseID: purchase.PurchaseID,
				Status:     purchase.Status,
			})
			return
		}
		logging.Errorf("Verify purchase failed - purchase_id: %s, error: %v", req.PurchaseID, err)
		c.JSON(http.StatusInternalServerError, VerifyPurchaseResponse{
			Success: false,
			Message: "Verification failed",
		})
		return
	}

	// Close the completed-but-ungranted window if a crash left one.
	if outcome == services.OutcomeCompleted || outcome == services.OutcomeAlreadyCompleted {
		if err := reconciler.VerifyAccessGrant(purchase); err != nil {
			logging.Errorf("Grant repair failed - purchase_id: %s, error: %v", purchase.PurchaseID, err)
		}
	}

	c.JSON(http.StatusOK, VerifyPurchaseResponse{
		Success:    true,
		PurchaseID: purchase.PurchaseID,
		Status:     purchase.Status,
		Unlocked:   outcome == services.OutcomeCompleted || outcome == services.OutcomeAlreadyCompleted,
	})
}
