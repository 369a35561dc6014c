package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unlock-api/internal/config"
	"unlock-api/internal/models"
	"unlock-api/pkg/logging"
)

// PayPayGateway is the signed request/response gateway: every API call
// carries an HMAC authentication header built by PayPaySigner, and completion
// is resolved by polling the payment status endpoint.
type PayPayGateway struct {
	signer     *PayPaySigner
	merchantID string
	baseURL    string
	redirect   string
	httpClient *http.Client
}

// NewPayPayGateway builds the adapter from the application config.
func NewPayPayGateway(cfg *config.Config) *PayPayGateway {
	return &PayPayGateway{
		signer:     NewPayPaySigner(cfg.PayPayAPIKey, cfg.PayPayAPISecret),
		merchantID: cfg.PayPayMerchantID,
		baseURL:    cfg.PayPayBaseURL,
		redirect:   cfg.PayPayRedirect,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Method returns the payment method tag.
func (g *PayPayGateway) Method() string {
	return models.PaymentMethodPayPay
}

// payPayResponse is the common envelope of PayPay API responses.
type payPayResponse struct {
	ResultInfo struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"resultInfo"`
	Data struct {
		URL               string `json:"url"`
		DeepLink          string `json:"deeplink"`
		Status            string `json:"status"`
		PaymentID         string `json:"paymentId"`
		MerchantPaymentID string `json:"merchantPaymentId"`
	} `json:"data"`
}

// OpenPayment creates a payment QR code. The merchant payment ID is the
// purchase ID itself, which makes it both the gateway reference and the
// idempotency key: re-opening the same purchase reuses it.
func (g *PayPayGateway) OpenPayment(ctx context.Context, intent PurchaseIntent) (*OpenPaymentResult, error) {
	requestBody := map[string]interface{}{
		"merchantPaymentId": intent.PurchaseID,
		"codeType":          "ORDER_QR",
		"orderDescription":  intent.Description,
		"amount": map[string]interface{}{
			"amount":   intent.Amount,
			"currency": intent.Currency,
		},
		"redirectUrl":  g.redirect,
		"redirectType": "WEB_LINK",
	}

	resp, raw, err := g.call(ctx, http.MethodPost, "/v2/codes", requestBody)
	if err != nil {
		return nil, err
	}

	if resp.ResultInfo.Code != "SUCCESS" {
		return nil, fmt.Errorf("paypay create code rejected: %s (%s)",
			resp.ResultInfo.Code, resp.ResultInfo.Message)
	}

	logging.Infof("PayPay payment code created - merchant_payment_id: %s", intent.PurchaseID)

	return &OpenPaymentResult{
		GatewayReference: intent.PurchaseID,
		RedirectURL:      resp.Data.URL,
		Metadata: map[string]string{
			"paypay_deeplink": resp.Data.DeepLink,
			"paypay_raw":      raw,
		},
	}, nil
}

// CheckStatus resolves the payment's state from PayPay's perspective.
func (g *PayPayGateway) CheckStatus(ctx context.Context, gatewayReference string) (*StatusResult, error) {
	resourcePath := "/v2/codes/payments/" + gatewayReference

	resp, raw, err := g.call(ctx, http.MethodGet, resourcePath, nil)
	if err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) && gwErr.StatusCode == http.StatusNotFound {
			return &StatusResult{Status: PaymentStatusNotFound}, nil
		}
		return nil, err
	}

	switch resp.ResultInfo.Code {
	case "SUCCESS":
	case "DYNAMIC_QR_NOT_FOUND", "DYNAMIC_QR_PAYMENT_NOT_FOUND":
		return &StatusResult{Status: PaymentStatusNotFound, RawPayload: raw}, nil
	default:
		return nil, fmt.Errorf("paypay status check rejected: %s (%s)",
			resp.ResultInfo.Code, resp.ResultInfo.Message)
	}

	return &StatusResult{
		Status:     mapPayPayStatus(resp.Data.Status),
		RawPayload: raw,
	}, nil
}

func mapPayPayStatus(status string) PaymentStatus {
	switch status {
	case "COMPLETED":
		return PaymentStatusPaid
	case "FAILED":
		return PaymentStatusFailed
	case "EXPIRED", "CANCELED":
		return PaymentStatusExpired
	default:
		// CREATED, AUTHORIZED and anything unknown stay pending.
		return PaymentStatusPending
	}
}

// call signs and executes a PayPay API request.
func (g *PayPayGateway) call(ctx context.Context, method, resourcePath string, body interface{}) (*payPayResponse, string, error) {
	var payload []byte
	var err error
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	authHeader, err := g.signer.BuildAuthHeader(method, resourcePath, payload)
	if err != nil {
		return nil, "", err
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+resourcePath, reader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", authHeader)
	req.Header.Set("X-ASSUME-MERCHANT", g.merchantID)
	if payload != nil {
		req.Header.Set("Content-Type", ContentTypeJSON)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: paypay request failed: %v", ErrGatewayUnavailable, err)
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

	var parsed payPayResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, "", fmt.Errorf("failed to parse response: %w", err)
	}

	return &parsed, string(respBody), nil
}
