package api

import (
	"errors"
	"net/http"
	"unlock-api/internal/services"
	"unlock-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// OpenPurchaseRequest represents an open purchase request
type OpenPurchaseRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	DiagnosisID string `json:"diagnosis_id" binding:"required"`
	Method      string `json:"method" binding:"required,oneof=stripe paypay linepay"`
}

// OpenPurchaseResponse represents an open purchase response
type OpenPurchaseResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	PurchaseID  string `json:"purchase_id,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// OpenPurchase opens a purchase against the chosen payment gateway
// POST /api/purchase/open
func OpenPurchase(c *gin.Context) {
	var req OpenPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, OpenPurchaseResponse{
			Success: false,
			Message: "Invalid request format: " + err.Error(),
		})
		return
	}

	result, err := reconciler.OpenPurchase(c.Request.Context(), req.UserID, req.DiagnosisID, req.Method)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, services.ErrInvalidRequest), errors.Is(err, services.ErrUnsupportedMethod):
			status = http.StatusBadRequest
		case errors.Is(err, services.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, services.ErrAlreadyUnlocked):
			status = http.StatusConflict
		case errors.Is(err, services.ErrGatewayUnavailable):
			status = http.StatusBadGateway
		}
		logging.Errorf("Open purchase failed - user_id: %s, diagnosis_id: %s, error: %v",
			req.UserID, req.DiagnosisID, err)
		c.JSON(status, OpenPurchaseResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, OpenPurchaseResponse{
		Success:     true,
		PurchaseID:  result.PurchaseID,
		RedirectURL: result.RedirectURL,
	})
}
