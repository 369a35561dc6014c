package services

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
	"unlock-api/internal/config"
	"unlock-api/internal/models"
	"unlock-api/pkg/logging"
)

// NotificationService delivers best-effort "purchase completed" signals to
// collaborators: a signed webhook to the app backend and a receipt email via
// Brevo. Delivery failures are logged and never propagate into the
// reconciliation result.
type NotificationService struct {
	httpClient *http.Client
}

// NewNotificationService creates a new notification service.
func NewNotificationService() *NotificationService {
	return &NotificationService{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// PurchaseCompletedPayload is the event sent to the app backend.
type PurchaseCompletedPayload struct {
	Event            string `json:"event"` // always "purchase.completed"
	PurchaseID       string `json:"purchase_id"`
	UserID           string `json:"user_id"`
	ResourceType     string `json:"resource_type"`
	ResourceID       string `json:"resource_id"`
	PaymentMethod    string `json:"payment_method"`
	GatewayReference string `json:"gateway_reference"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Timestamp        string `json:"timestamp"` // ISO 8601
}

// NotifyPurchaseCompleted fans the completion out to all configured
// collaborators. Intended to run in its own goroutine.
func (n *NotificationService) NotifyPurchaseCompleted(purchase *models.Purchase) {
	payload := PurchaseCompletedPayload{
		Event:            "purchase.completed",
		PurchaseID:       purchase.PurchaseID,
		UserID:           purchase.UserID,
		ResourceType:     purchase.ResourceType,
		ResourceID:       purchase.ResourceID,
		PaymentMethod:    purchase.PaymentMethod,
		GatewayReference: purchase.GatewayReference,
		Amount:           purchase.Amount,
		Currency:         purchase.Currency,
		Timestamp:        time.Now().Format(time.RFC3339),
	}

	if config.AppConfig.BackendWebhookURL != "" {
		n.sendWebhookWithRetry(config.AppConfig.BackendWebhookURL, config.AppConfig.BackendWebhookSecret, payload)
	}

	if config.AppConfig.BrevoAPIKey != "" {
		if err := n.sendReceiptEmail(purchase); err != nil {
			logging.Errorf("Receipt email failed - purchase_id: %s, error: %v", purchase.PurchaseID, err)
		}
	}
}

// sendWebhookWithRetry delivers the event on a fixed retry schedule:
// 1s, 5s, 30s.
func (n *NotificationService) sendWebhookWithRetry(callbackURL, secret string, payload PurchaseCompletedPayload) {
	retryDelays := []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second}
	maxRetries := len(retryDelays)

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := n.sendWebhook(callbackURL, secret, payload)
		if err == nil {
			logging.Infof("Completion webhook sent - url: %s, purchase_id: %s, attempt: %d",
				callbackURL, payload.PurchaseID, attempt+1)
			return
		}

		logging.Errorf("Completion webhook failed - url: %s, purchase_id: %s, attempt: %d, error: %v",
			callbackURL, payload.PurchaseID, attempt+1, err)

		if attempt < maxRetries-1 {
			time.Sleep(retryDelays[attempt])
		}
	}

	logging.Errorf("Completion webhook gave up after %d attempts - purchase_id: %s",
		maxRetries, payload.PurchaseID)
}

// sendWebhook sends a single signed webhook request.
func (n *NotificationService) sendWebhook(callbackURL, secret string, payload PurchaseCompletedPayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequest("POST", callbackURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "UnlockService-Webhook/1.0")
	if secret != "" {
		req.Header.Set("X-Unlock-Signature", signPayload(jsonData, secret))
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

// signPayload generates the HMAC-SHA256 hex signature for a webhook body.
func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// brevoEmailRequest mirrors the Brevo transactional email API body.
type brevoEmailRequest struct {
	Sender struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"sender"`
	To []struct {
		Email string `json:"email"`
	} `json:"to"`
	Subject     string `json:"subject"`
	TextContent string `json:"textContent"`
}

// sendReceiptEmail sends the purchase receipt via the Brevo API. The
// delivery address comes from the purchase metadata's receipt_email field;
// without one the receipt is skipped.
func (n *NotificationService) sendReceiptEmail(purchase *models.Purchase) error {
	to := purchase.MetadataMap()["receipt_email"]
	if to == "" {
		return nil
	}

	var req brevoEmailRequest
	req.Sender.Name = config.AppConfig.BrevoFromName
	req.Sender.Email = config.AppConfig.BrevoFromEmail
	req.To = []struct {
		Email string `json:"email"`
	}{{Email: to}}
	req.Subject = fmt.Sprintf("ご購入ありがとうございます - %s", config.AppConfig.ServiceName)
	req.TextContent = fmt.Sprintf(
		"診断結果のフルレポートをご購入いただきありがとうございます。\n\n購入番号: %s\n金額: %d円\n\n%s",
		purchase.PurchaseID, purchase.Amount, config.AppConfig.ServiceName)

	jsonData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %w", err)
	}

	httpReq, err := http.NewRequest("POST", "https://api.brevo.com/v3/smtp/email", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", config.AppConfig.BrevoAPIKey)

	resp, err := n.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("brevo API error: status %d", resp.StatusCode)
	}

	return nil
}
