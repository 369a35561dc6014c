package models

import (
	"time"
)

// Access levels. preview is the default unpaid level granted on first view;
// full is earned by a completed purchase and never revoked.
const (
	AccessLevelPreview = "preview"
	AccessLevelFull    = "full"
)

// AccessGrant アクセス権レコード
// At most one row per (user_id, resource_type, resource_id), enforced by the
// composite unique index and upsert-on-conflict writes, never by
// read-then-insert.
type AccessGrant struct {
	BaseModel

	UserID       string `json:"user_id" gorm:"not null;size:64;uniqueIndex:idx_grant_identity"`
	ResourceType string `json:"resource_type" gorm:"not null;size:20;uniqueIndex:idx_grant_identity"`
	ResourceID   string `json:"resource_id" gorm:"not null;size:64;uniqueIndex:idx_grant_identity"`

	AccessLevel string `json:"access_level" gorm:"not null;size:20;index"`

	// 購入によりフルアクセスになった場合のみ設定される
	PurchaseID *string `json:"purchase_id" gorm:"size:36"`

	ValidFrom  *time.Time `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until"` // null = unbounded
}

// TableName 指定表名
func (AccessGrant) TableName() string {
	return "access_grants"
}

// IsFull reports whether the grant carries full access.
func (g *AccessGrant) IsFull() bool {
	return g.AccessLevel == AccessLevelFull
}
