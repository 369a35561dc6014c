package api

import (
	"net/http"
	"time"
	"unlock-api/internal/database"

	"github.com/gin-gonic/gin"
)

// PurchaseHistoryItem represents a purchase history item
type PurchaseHistoryItem struct {
	PurchaseID    string     `json:"purchase_id"`
	ResourceType  string     `json:"resource_type"`
	ResourceID    string     `json:"resource_id"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	PaymentMethod string     `json:"payment_method"`
	Status        string     `json:"status"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// PurchaseHistoryResponse represents a purchase history response
type PurchaseHistoryResponse struct {
	Success   bool                  `json:"success"`
	Message   string                `json:"message,omitempty"`
	Purchases []PurchaseHistoryItem `json:"purchases"`
}

// GetPurchaseHistory returns the user's purchases, newest first
// GET /api/purchase/history?user_id=xxx
func GetPurchaseHistory(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, PurchaseHistoryResponse{
			Success: false,
			Message: "user_id is required",
		})
		return
	}

	purchases, err := database.GetUserPurchases(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, PurchaseHistoryResponse{
			Success: false,
			Message: "Failed to get purchase history",
		})
		return
	}

	items := make([]PurchaseHistoryItem, len(purchases))
	for i, p := range purchases {
		items[i] = PurchaseHistoryItem{
			PurchaseID:    p.PurchaseID,
			ResourceType:  p.ResourceType,
			ResourceID:    p.ResourceID,
			Amount:        p.Amount,
			Currency:      p.Currency,
			PaymentMethod: p.PaymentMethod,
			Status:        p.Status,
			CompletedAt:   p.CompletedAt,
			CreatedAt:     p.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, PurchaseHistoryResponse{
		Success:   true,
		Purchases: items,
	})
}
