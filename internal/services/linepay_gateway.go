package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unlock-api/internal/config"
	"unlock-api/internal/database"
	"unlock-api/internal/models"
	"unlock-api/pkg/logging"
)

// LinePayGateway is the order-status polling gateway: a payment is reserved,
// the user approves it in the LINE app, and completion is resolved by
// checking (and then confirming) the reservation's status. There is no
// inbound push from this gateway.
type LinePayGateway struct {
	channelID     string
	channelSecret string
	baseURL       string
	confirmURL    string
	httpClient    *http.Client
}

// NewLinePayGateway builds the adapter from the application config.
func NewLinePayGateway(cfg *config.Config) *LinePayGateway {
	return &LinePayGateway{
		channelID:     cfg.LinePayChannelID,
		channelSecret: cfg.LinePayChannelSecret,
		baseURL:       cfg.LinePayBaseURL,
		confirmURL:    cfg.LinePayConfirmURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Method returns the payment method tag.
func (g *LinePayGateway) Method() string {
	return models.PaymentMethodLinePay
}

// linePayResponse is the common envelope of LINE Pay API responses.
type linePayResponse struct {
	ReturnCode    string `json:"returnCode"`
	ReturnMessage string `json:"returnMessage"`
	Info          struct {
		TransactionID json.Number `json:"transactionId"`
		PaymentURL    struct {
			Web string `json:"web"`
			App string `json:"app"`
		} `json:"paymentUrl"`
	} `json:"info"`
}

// OpenPayment reserves a payment. The gateway-minted transaction ID becomes
// the gateway reference; the merchant-side order ID is the purchase ID and is
// reused on a retried reservation for the same purchase.
func (g *LinePayGateway) OpenPayment(ctx context.Context, intent PurchaseIntent) (*OpenPaymentResult, error) {
	requestBody := map[string]interface{}{
		"productName": intent.Description,
		"amount":      intent.Amount,
		"currency":    intent.Currency,
		"orderId":     intent.PurchaseID,
		"confirmUrl":  g.confirmURL,
	}

	resp, raw, err := g.call(ctx, http.MethodPost, "/v2/payments/request", requestBody)
	if err != nil {
		return nil, err
	}

	if resp.ReturnCode != "0000" {
		return nil, fmt.Errorf("linepay reserve rejected: %s (%s)",
			resp.ReturnCode, resp.ReturnMessage)
	}

	transactionID := resp.Info.TransactionID.String()
	logging.Infof("LINE Pay payment reserved - order_id: %s, transaction_id: %s",
		intent.PurchaseID, transactionID)

	return &OpenPaymentResult{
		GatewayReference: transactionID,
		RedirectURL:      resp.Info.PaymentURL.Web,
		Metadata: map[string]string{
			"linepay_order_id": intent.PurchaseID,
			"linepay_raw":      raw,
		},
	}, nil
}

// CheckStatus resolves the reservation's state. A user-approved reservation
// still needs a confirm call to actually capture the money, so an
// authorization-ready status triggers Confirm and only a confirmed capture
// maps to PAID.
func (g *LinePayGateway) CheckStatus(ctx context.Context, gatewayReference string) (*StatusResult, error) {
	resourcePath := "/v2/payments/requests/" + gatewayReference + "/check"

	resp, raw, err := g.call(ctx, http.MethodGet, resourcePath, nil)
	if err != nil {
		return nil, err
	}

	switch resp.ReturnCode {
	case "0123": // payment already completed
		return &StatusResult{Status: PaymentStatusPaid, RawPayload: raw}, nil
	case "0110": // authorized by the user, capture pending
		return g.confirm(ctx, gatewayReference)
	case "0121": // canceled or timed out by the user
		return &StatusResult{Status: PaymentStatusExpired, RawPayload: raw}, nil
	case "0122": // payment failed on the gateway side
		return &StatusResult{Status: PaymentStatusFailed, RawPayload: raw}, nil
	case "1104", "1150": // unknown transaction
		return &StatusResult{Status: PaymentStatusNotFound, RawPayload: raw}, nil
	default:
		return &StatusResult{Status: PaymentStatusPending, RawPayload: raw}, nil
	}
}

// confirm captures an authorized payment. Amount and currency must match the
// reservation exactly.
func (g *LinePayGateway) confirm(ctx context.Context, transactionID string) (*StatusResult, error) {
	purchase, err := lookupPurchaseForConfirm(transactionID)
	if err != nil {
		return nil, err
	}

	requestBody := map[string]interface{}{
		"amount":   purchase.Amount,
		"currency": purchase.Currency,
	}

	resp, raw, err := g.call(ctx, http.MethodPost, "/v2/payments/"+transactionID+"/confirm", requestBody)
	if err != nil {
		return nil, err
	}

	switch resp.ReturnCode {
	case "0000", "0123":
		return &StatusResult{Status: PaymentStatusPaid, RawPayload: raw}, nil
	case "1165": // already refunded or voided
		return &StatusResult{Status: PaymentStatusFailed, RawPayload: raw}, nil
	default:
		logging.Warnf("LINE Pay confirm returned %s (%s) - transaction_id: %s",
			resp.ReturnCode, resp.ReturnMessage, transactionID)
		return &StatusResult{Status: PaymentStatusPending, RawPayload: raw}, nil
	}
}

// lookupPurchaseForConfirm resolves the reserved amount/currency for the
// capture call from the purchase row the reservation belongs to.
func lookupPurchaseForConfirm(transactionID string) (*models.Purchase, error) {
	purchase, err := database.GetPurchaseByGatewayReference(models.PaymentMethodLinePay, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve purchase for confirm: %w", err)
	}
	return purchase, nil
}

// call executes a LINE Pay API request with channel authentication headers.
func (g *LinePayGateway) call(ctx context.Context, method, resourcePath string, body interface{}) (*linePayResponse, string, error) {
	var payload []byte
	var err error
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+resourcePath, reader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-LINE-ChannelId", g.channelID)
	req.Header.Set("X-LINE-ChannelSecret", g.channelSecret)
	if payload != nil {
		req.Header.Set("Content-Type", ContentTypeJSON)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: linepay request failed: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, "", fmt.Errorf("%w: %v", ErrGatewayUnavailable,
			&GatewayError{Method: g.Method(), StatusCode: resp.StatusCode, Body: string(respBody)})
	}
	if resp.StatusCode >= 400 {
		return nil, "", &GatewayError{Method: g.Method(), StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed linePayResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, "", fmt.Errorf("failed to parse response: %w", err)
	}

	return &parsed, string(respBody), nil
}
