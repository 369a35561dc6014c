package database

import (
	"errors"
	"time"
	"unlock-api/internal/models"
	"unlock-api/pkg/logging"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrGrantNotFound is returned when no access grant exists for the identity.
var ErrGrantNotFound = errors.New("access grant not found")

var grantIdentityColumns = []clause.Column{
	{Name: "user_id"},
	{Name: "resource_type"},
	{Name: "resource_id"},
}

// GrantFullAccess フルアクセス権を付与（原子的 upsert）
// Keyed on (user_id, resource_type, resource_id): inserts a full grant, or
// upgrades an existing preview grant in place. Calling it again, even with a
// different purchase_id, never errors, never downgrades, and never creates a
// second row; the first purchase_id to win stays recorded.
func GrantFullAccess(userID, resourceType, resourceID, purchaseID string) error {
	now := time.Now()
	grant := models.AccessGrant{
		UserID:       userID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		AccessLevel:  models.AccessLevelFull,
		PurchaseID:   &purchaseID,
		ValidFrom:    &now,
	}

	err := DB.Clauses(clause.OnConflict{
		Columns: grantIdentityColumns,
		DoUpdates: clause.Assignments(map[string]interface{}{
			"access_level": models.AccessLevelFull,
			// Keep the purchase that earned the grant first; a duplicate
			// completion for the same identity must not overwrite it.
			"purchase_id": gorm.Expr(
				"CASE WHEN access_grants.access_level = ? THEN access_grants.purchase_id ELSE ? END",
				models.AccessLevelFull, purchaseID),
			"valid_from": gorm.Expr(
				"CASE WHEN access_grants.access_level = ? THEN access_grants.valid_from ELSE ? END",
				models.AccessLevelFull, &now),
			"updated_at": now,
		}),
	}).Create(&grant).Error
	if err != nil {
		return err
	}

	logging.Infof("Full access granted - user_id: %s, resource: %s/%s, purchase_id: %s",
		userID, resourceType, resourceID, purchaseID)
	return nil
}

// CreatePreviewGrant プレビューアクセス権を作成
// Inserted on first view of a resource. Does nothing when any grant already
// exists for the identity, so it can never clobber a full grant.
func CreatePreviewGrant(userID, resourceType, resourceID string) error {
	now := time.Now()
	grant := models.AccessGrant{
		UserID:       userID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		AccessLevel:  models.AccessLevelPreview,
		ValidFrom:    &now,
	}

	return DB.Clauses(clause.OnConflict{
		Columns:   grantIdentityColumns,
		DoNothing: true,
	}).Create(&grant).Error
}

// GetAccessGrant アクセス権を取得
func GetAccessGrant(userID, resourceType, resourceID string) (*models.AccessGrant, error) {
	var grant models.AccessGrant
	err := DB.Where("user_id = ? AND resource_type = ? AND resource_id = ?",
		userID, resourceType, resourceID).First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGrantNotFound
		}
		return nil, err
	}
	return &grant, nil
}

// HasFullAccess checks whether the user holds a full grant on the resource.
func HasFullAccess(userID, resourceType, resourceID string) (bool, error) {
	var count int64
	err := DB.Model(&models.AccessGrant{}).
		Where("user_id = ? AND resource_type = ? AND resource_id = ? AND access_level = ?",
			userID, resourceType, resourceID, models.AccessLevelFull).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
