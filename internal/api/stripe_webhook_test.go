package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unlock-api/internal/config"
	"unlock-api/internal/database"
	"unlock-api/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testWebhookSecret = "whsec_test_secret"

// setupAPITest brings up a router with real routes against an in-memory
// sqlite database. Redis stays nil; the replay guard degrades to allowing
// every delivery, which the idempotent reconcile tolerates.
func setupAPITest(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	config.AppConfig = &config.Config{
		StripeWebhookSecret: testWebhookSecret,
		ItemPriceYen:        1200,
		PollMaxAttempts:     10,
		PollIntervalSeconds: 4,
		PollMaxSeconds:      60,
	}

	dsn := fmt.Sprintf("file:api_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
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

	r := gin.New()
	SetupRoutes(r)
	return r
}

// stripeSignature builds a valid Stripe-Signature header for the payload,
// the same scheme webhook.ConstructEvent verifies.
func stripeSignature(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func purchaseCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	if err := database.DB.Model(&models.Purchase{}).Count(&count).Error; err != nil {
		t.Fatalf("count purchases: %v", err)
	}
	return count
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	r := setupAPITest(t)

	payload := []byte(`{"id":"evt_forged","type":"checkout.session.completed","data":{"object":{"id":"cs_forged","payment_status":"paid"}}}`)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/stripe", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", stripeSignature(payload, "whsec_wrong_secret", time.Now()))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if n := purchaseCount(t); n != 0 {
		t.Fatalf("forged webhook touched the store: %d purchase rows", n)
	}
}

func TestStripeWebhookRejectsStaleSignature(t *testing.T) {
	r := setupAPITest(t)

	payload := []byte(`{"id":"evt_replayed","type":"checkout.session.completed","data":{"object":{"id":"cs_x","payment_status":"paid"}}}`)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/stripe", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", stripeSignature(payload, testWebhookSecret, time.Now().Add(-time.Hour)))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for a signature outside tolerance", w.Code)
	}
}

func TestStripeWebhookUnknownReferenceAcknowledged(t *testing.T) {
	r := setupAPITest(t)

	// A verified event for a session this service never opened. It must be
	// acknowledged (200, so Stripe stops redelivering) without creating
	// anything.
	payload := []byte(`{"id":"evt_foreign","api_version":"2024-04-10","type":"checkout.session.completed","data":{"object":{"id":"cs_foreign","payment_status":"paid"}}}`)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/stripe", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", stripeSignature(payload, testWebhookSecret, time.Now()))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "ignored") {
		t.Errorf("body = %s, want an ignored outcome", w.Body.String())
	}
	if n := purchaseCount(t); n != 0 {
		t.Fatalf("completion signal synthesized %d purchase rows", n)
	}
}

func TestStripeWebhookIrrelevantEventAcknowledged(t *testing.T) {
	r := setupAPITest(t)

	payload := []byte(`{"id":"evt_other","api_version":"2024-04-10","type":"invoice.paid","data":{"object":{"id":"in_123"}}}`)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/stripe", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", stripeSignature(payload, testWebhookSecret, time.Now()))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "event_ignored") {
		t.Errorf("body = %s, want event_ignored", w.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	r := setupAPITest(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
