package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port string
	Mode string

	// Database configuration
	DatabaseURL string

	// Redis configuration
	RedisURL string

	// Client API authentication
	ClientAPIKey string

	// Item configuration (single fixed-price digital item)
	ItemPriceYen    int64
	ItemDescription string

	// Stripe configuration (webhook-push gateway)
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeSuccessURL    string
	StripeCancelURL     string

	// PayPay configuration (signed request/response gateway)
	PayPayAPIKey     string
	PayPayAPISecret  string
	PayPayMerchantID string
	PayPayBaseURL    string
	PayPayRedirect   string

	// LINE Pay configuration (order-status polling gateway)
	LinePayChannelID     string
	LinePayChannelSecret string
	LinePayBaseURL       string
	LinePayConfirmURL    string

	// Polling budget (hard upper bounds for status polling)
	PollMaxAttempts     int
	PollIntervalSeconds int
	PollMaxSeconds      int

	// Brevo email configuration (purchase receipt, best-effort)
	BrevoAPIKey    string
	BrevoFromEmail string
	BrevoFromName  string

	// Backend webhook notification (purchase completed event, best-effort)
	BackendWebhookURL    string
	BackendWebhookSecret string

	ServiceName string
}

var AppConfig *Config

func InitConfig() error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Ignore error if .env file doesn't exist
	}

	AppConfig = &Config{
		Port:        getEnv("PORT", "8080"),
		Mode:        getEnv("GIN_MODE", "debug"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		ClientAPIKey: getEnv("CLIENT_API_KEY", ""),

		ItemPriceYen:    int64(getEnvInt("ITEM_PRICE_YEN", 1200)),
		ItemDescription: getEnv("ITEM_DESCRIPTION", "診断結果フルレポート"),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeSuccessURL:    getEnv("STRIPE_SUCCESS_URL", "https://example.com/purchase/success"),
		StripeCancelURL:     getEnv("STRIPE_CANCEL_URL", "https://example.com/purchase/cancel"),

		PayPayAPIKey:     getEnv("PAYPAY_API_KEY", ""),
		PayPayAPISecret:  getEnv("PAYPAY_API_SECRET", ""),
		PayPayMerchantID: getEnv("PAYPAY_MERCHANT_ID", ""),
		PayPayBaseURL:    getEnv("PAYPAY_BASE_URL", "https://stg-api.sandbox.paypay.ne.jp"),
		PayPayRedirect:   getEnv("PAYPAY_REDIRECT_URL", "https://example.com/purchase/paypay/return"),

		LinePayChannelID:     getEnv("LINEPAY_CHANNEL_ID", ""),
		LinePayChannelSecret: getEnv("LINEPAY_CHANNEL_SECRET", ""),
		LinePayBaseURL:       getEnv("LINEPAY_BASE_URL", "https://sandbox-api-pay.line.me"),
		LinePayConfirmURL:    getEnv("LINEPAY_CONFIRM_URL", "https://example.com/purchase/linepay/return"),

		PollMaxAttempts:     getEnvInt("POLL_MAX_ATTEMPTS", 10),
		PollIntervalSeconds: getEnvInt("POLL_INTERVAL_SECONDS", 4),
		PollMaxSeconds:      getEnvInt("POLL_MAX_SECONDS", 60),

		BrevoAPIKey:    getEnv("BREVO_API_KEY", ""),
		BrevoFromEmail: getEnv("BREVO_FROM_EMAIL", ""),
		BrevoFromName:  getEnv("BREVO_FROM_NAME", "Unlock Service"),

		BackendWebhookURL:    getEnv("BACKEND_WEBHOOK_URL", ""),
		BackendWebhookSecret: getEnv("BACKEND_WEBHOOK_SECRET", ""),

		ServiceName: getEnv("SERVICE_NAME", "Diagnosis Unlock Service"),
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
