package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unlock-api/internal/config"
	"unlock-api/internal/database"
	"unlock-api/internal/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupServiceTest wires an in-memory sqlite database and a test config into
// the package-level globals the services read.
func setupServiceTest(t *testing.T) {
	t.Helper()

	config.AppConfig = &config.Config{
		ItemPriceYen:        1200,
		ItemDescription:     "診断結果フルレポート",
		PollMaxAttempts:     10,
		PollIntervalSeconds: 4,
		PollMaxSeconds:      60,
	}

	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
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

	database.DB = db
	t.Cleanup(func() {
		database.DB = nil
		config.AppConfig = nil
		sqlDB.Close()
	})
}

// stubGateway is a scripted GatewayAdapter. CheckStatus walks the verdicts
// slice one entry per call and repeats the last entry when exhausted; a nil
// entry yields the paired error instead.
type stubGateway struct {
	mu       sync.Mutex
	method   string
	openRef  string
	openErr  error
	verdicts []*StatusResult
	errs     []error
	calls    int
}

func (g *stubGateway) Method() string {
	if g.method == "" {
		return models.PaymentMethodPayPay
	}
	return g.method
}

func (g *stubGateway) OpenPayment(_ context.Context, intent PurchaseIntent) (*OpenPaymentResult, error) {
	if g.openErr != nil {
		return nil, g.openErr
	}
	ref := g.openRef
	if ref == "" {
		ref = "ref-" + intent.PurchaseID
	}
	return &OpenPaymentResult{
		GatewayReference: ref,
		RedirectURL:      "https://gateway.test/pay/" + ref,
		Metadata:         map[string]string{"stub": "1"},
	}, nil
}

func (g *stubGateway) CheckStatus(_ context.Context, _ string) (*StatusResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	i := g.calls
	g.calls++
	if i >= len(g.verdicts) {
		i = len(g.verdicts) - 1
	}
	if i < 0 {
		return &StatusResult{Status: PaymentStatusPending}, nil
	}
	if g.verdicts[i] == nil {
		return nil, g.errs[i]
	}
	return g.verdicts[i], nil
}

func (g *stubGateway) checkCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func verdicts(statuses ...PaymentStatus) []*StatusResult {
	out := make([]*StatusResult, len(statuses))
	for i, s := range statuses {
		out[i] = &StatusResult{Status: s}
	}
	return out
}

// seedDiagnosis inserts a diagnosis row and returns its id.
func seedDiagnosis(t *testing.T, userID string) string {
	t.Helper()
	diagnosis := &models.Diagnosis{
		DiagnosisID:  uuid.New().String(),
		UserID:       userID,
		PatternIndex: 7,
	}
	if err := database.CreateDiagnosis(diagnosis); err != nil {
		t.Fatalf("seed diagnosis: %v", err)
	}
	return diagnosis.DiagnosisID
}

func grantCount(t *testing.T, userID, resourceID string) int64 {
	t.Helper()
	var count int64
	err := database.DB.Model(&models.AccessGrant{}).
		Where("user_id = ? AND resource_type = ? AND resource_id = ?",
			userID, models.ResourceTypeDiagnosis, resourceID).
		Count(&count).Error
	if err != nil {
		t.Fatalf("count grants: %v", err)
	}
	return count
}
