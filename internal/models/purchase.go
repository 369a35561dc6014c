package models

import (
	"encoding/json"
	"time"
)

// Purchase status values. completed and failed are terminal:
// only pending -> completed and pending -> failed are legal transitions.
const (
	PurchaseStatusPending   = "pending"
	PurchaseStatusCompleted = "completed"
	PurchaseStatusFailed    = "failed"
)

// Payment method tags, one per gateway integration.
const (
	PaymentMethodStripe  = "stripe"
	PaymentMethodPayPay  = "paypay"
	PaymentMethodLinePay = "linepay"
)

// ResourceTypeDiagnosis is the only purchasable resource type.
// 診断結果のフルコンテンツのみを販売する
const ResourceTypeDiagnosis = "diagnosis"

// Purchase 購入レコード
// One row per payment attempt. The gateway reference is the join key used to
// correlate asynchronous completion signals back to this row.
type Purchase struct {
	BaseModel

	PurchaseID   string `json:"purchase_id" gorm:"not null;size:36;uniqueIndex"` // merchant-side ID (UUID), never reused
	UserID       string `json:"user_id" gorm:"not null;size:64;index"`
	ResourceType string `json:"resource_type" gorm:"not null;size:20;default:'diagnosis'"`
	ResourceID   string `json:"resource_id" gorm:"not null;size:64;index"`

	Amount   int64  `json:"amount" gorm:"not null"`        // 日本円（最小通貨単位、小数なし）
	Currency string `json:"currency" gorm:"size:8;not null"`

	PaymentMethod string `json:"payment_method" gorm:"not null;size:20;index:idx_method_reference,priority:1"`
	Status        string `json:"status" gorm:"not null;size:20;index"`

	// 決済ゲートウェイ側の識別子（セッションID・取引IDなど）
	// 完了通知との照合キー。payment_method との複合インデックスで引く
	GatewayReference string `json:"gateway_reference" gorm:"size:128;index:idx_method_reference,priority:2"`

	Metadata      string `json:"metadata" gorm:"type:text"` // gateway-specific fields as JSON
	FailureReason string `json:"failure_reason" gorm:"size:255"`

	CompletedAt *time.Time `json:"completed_at"`
}

// TableName 指定表名
func (Purchase) TableName() string {
	return "purchases"
}

// MetadataMap decodes the metadata JSON bag. Returns an empty map when unset.
func (p *Purchase) MetadataMap() map[string]string {
	out := make(map[string]string)
	if p.Metadata == "" {
		return out
	}
	if err := json.Unmarshal([]byte(p.Metadata), &out); err != nil {
		return make(map[string]string)
	}
	return out
}

// EncodeMetadata serializes a metadata bag for storage.
func EncodeMetadata(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(data)
}
