package database

import (
	"errors"
	"fmt"
	"time"
	"unlock-api/internal/models"
	"unlock-api/pkg/logging"

	"gorm.io/gorm"
)

var (
	// ErrPurchaseNotFound is returned when no purchase matches the lookup.
	ErrPurchaseNotFound = errors.New("purchase not found")
	// ErrIllegalTransition is returned when a terminal purchase would be
	// moved to the opposite terminal state. This is a logic fault upstream
	// and must never be swallowed as "already handled".
	ErrIllegalTransition = errors.New("illegal purchase status transition")
)

// CreatePurchase 購入レコードを作成（status=pending）
// A fresh purchase_id is always assigned by the caller; concurrent pending
// purchases for the same user/resource are allowed here. De-duplication
// happens at the access-grant layer.
func CreatePurchase(purchase *models.Purchase) error {
	purchase.Status = models.PurchaseStatusPending
	return DB.Create(purchase).Error
}

// GetPurchaseByID 購入IDで取得
func GetPurchaseByID(purchaseID string) (*models.Purchase, error) {
	var purchase models.Purchase
	err := DB.Where("purchase_id = ?", purchaseID).First(&purchase).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}
	return &purchase, nil
}

// GetPurchaseByGatewayReference ゲートウェイ参照IDで取得
// This is the idempotency lookup used by completion handlers: a replayed
// notification finds the existing row instead of creating a duplicate.
func GetPurchaseByGatewayReference(method, reference string) (*models.Purchase, error) {
	var purchase models.Purchase
	err := DB.Where("payment_method = ? AND gateway_reference = ?", method, reference).
		First(&purchase).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}
	return &purchase, nil
}

// SetGatewayReference records the gateway's identifier after OpenPayment and
// merges gateway-specific fields into the metadata bag.
func SetGatewayReference(purchaseID, reference string, metadata map[string]string) error {
	purchase, err := GetPurchaseByID(purchaseID)
	if err != nil {
		return err
	}

	merged := purchase.MetadataMap()
	for k, v := range metadata {
		merged[k] = v
	}

	return DB.Model(&models.Purchase{}).
		Where("purchase_id = ?", purchaseID).
		Updates(map[string]interface{}{
			"gateway_reference": reference,
			"metadata":          models.EncodeMetadata(merged),
		}).Error
}

// MarkPurchaseCompleted 購入を完了状態に遷移
// Idempotent: a second call on an already-completed purchase is a no-op and
// returns nil, which makes the operation safe under duplicated webhook
// deliveries. A completed signal landing on a failed purchase returns
// ErrIllegalTransition.
//
// The status-guarded UPDATE is the serialization point for concurrent
// reconcilers: exactly one of them observes RowsAffected == 1.
func MarkPurchaseCompleted(purchaseID string, transactionMetadata map[string]string) error {
	purchase, err := GetPurchaseByID(purchaseID)
	if err != nil {
		return err
	}

	merged := purchase.MetadataMap()
	for k, v := range transactionMetadata {
		merged[k] = v
	}

	now := time.Now()
	result := DB.Model(&models.Purchase{}).
		Where("purchase_id = ? AND status = ?", purchaseID, models.PurchaseStatusPending).
		Updates(map[string]interface{}{
			"status":       models.PurchaseStatusCompleted,
			"completed_at": &now,
			"metadata":     models.EncodeMetadata(merged),
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 1 {
		logging.Infof("Purchase completed - purchase_id: %s", purchaseID)
		return nil
	}

	// No pending row matched: re-read to distinguish a harmless replay from
	// an illegal transition.
	purchase, err = GetPurchaseByID(purchaseID)
	if err != nil {
		return err
	}
	switch purchase.Status {
	case models.PurchaseStatusCompleted:
		logging.Infof("Purchase already completed, ignoring duplicate completion - purchase_id: %s", purchaseID)
		return nil
	case models.PurchaseStatusFailed:
		return fmt.Errorf("%w: purchase %s is failed, cannot complete", ErrIllegalTransition, purchaseID)
	default:
		return fmt.Errorf("purchase %s in unexpected status %s", purchaseID, purchase.Status)
	}
}

// MarkPurchaseFailed 購入を失敗状態に遷移
// Idempotent on repeat; refuses to fail an already-completed purchase.
func MarkPurchaseFailed(purchaseID, reason string) error {
	result := DB.Model(&models.Purchase{}).
		Where("purchase_id = ? AND status = ?", purchaseID, models.PurchaseStatusPending).
		Updates(map[string]interface{}{
			"status":         models.PurchaseStatusFailed,
			"failure_reason": reason,
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 1 {
		logging.Infof("Purchase failed - purchase_id: %s, reason: %s", purchaseID, reason)
		return nil
	}

	purchase, err := GetPurchaseByID(purchaseID)
	if err != nil {
		return err
	}
	switch purchase.Status {
	case models.PurchaseStatusFailed:
		return nil
	case models.PurchaseStatusCompleted:
		return fmt.Errorf("%w: purchase %s is completed, cannot fail", ErrIllegalTransition, purchaseID)
	default:
		return fmt.Errorf("purchase %s in unexpected status %s", purchaseID, purchase.Status)
	}
}

// GetUserPurchases ユーザーの購入履歴を取得
func GetUserPurchases(userID string) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := DB.Where("user_id = ?", userID).Order("created_at DESC").Find(&purchases).Error
	return purchases, err
}
