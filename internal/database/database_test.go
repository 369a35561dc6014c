package database

import (
	"fmt"
	"strings"
	"testing"
	"unlock-api/internal/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB points the package-level DB at a fresh in-memory sqlite
// database. cache=shared with a single connection keeps all goroutines on
// the same database; the DSN is derived from the test name so tests do not
// leak rows into each other.
func setupTestDB(t *testing.T) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Diagnosis{}, &models.Purchase{}, &models.AccessGrant{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	DB = db
	t.Cleanup(func() {
		DB = nil
		sqlDB.Close()
	})
}

// newPendingPurchase inserts a pending purchase and returns its purchase_id.
func newPendingPurchase(t *testing.T, userID, resourceID string) string {
	t.Helper()

	purchase := &models.Purchase{
		PurchaseID:    uuid.New().String(),
		UserID:        userID,
		ResourceType:  models.ResourceTypeDiagnosis,
		ResourceID:    resourceID,
		Amount:        1200,
		Currency:      "JPY",
		PaymentMethod: models.PaymentMethodStripe,
	}
	if err := CreatePurchase(purchase); err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	return purchase.PurchaseID
}
