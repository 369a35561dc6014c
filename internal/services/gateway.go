package services

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unlock-api/internal/config"
	"unlock-api/pkg/logging"
)

// PaymentStatus is the adapter-level verdict on a payment, normalized across
// gateways.
type PaymentStatus string

const (
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusExpired  PaymentStatus = "EXPIRED"
	PaymentStatusNotFound PaymentStatus = "NOT_FOUND"
)

// Terminal reports whether the status can no longer change on the gateway
// side; polling stops early on terminal statuses.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusPaid, PaymentStatusFailed, PaymentStatusExpired, PaymentStatusNotFound:
		return true
	}
	return false
}

// PurchaseIntent describes the payment a gateway should open. PurchaseID is
// the merchant-chosen identifier: reopening the same purchase must reuse it
// rather than mint a new one, or the gateway treats it as an unrelated
// payment.
type PurchaseIntent struct {
	PurchaseID  string
	UserID      string
	ResourceID  string
	Amount      int64
	Currency    string
	Description string
}

// OpenPaymentResult is the gateway's answer to OpenPayment.
type OpenPaymentResult struct {
	// GatewayReference correlates later completion signals back to the
	// purchase row.
	GatewayReference string
	RedirectURL      string
	// Metadata carries gateway-specific fields worth persisting.
	Metadata map[string]string
}

// StatusResult is the gateway's current truth about a payment.
type StatusResult struct {
	Status     PaymentStatus
	RawPayload string
}

// GatewayAdapter is the uniform surface the reconciliation orchestrator
// drives, regardless of whether the gateway pushes webhooks or is polled.
type GatewayAdapter interface {
	// Method returns the payment method tag this adapter serves.
	Method() string

	// OpenPayment asks the gateway to begin a payment flow for the intent.
	OpenPayment(ctx context.Context, intent PurchaseIntent) (*OpenPaymentResult, error)

	// CheckStatus resolves the payment's current status from the gateway's
	// perspective. For webhook gateways this re-fetches server-side truth;
	// it never trusts client-supplied success flags.
	CheckStatus(ctx context.Context, gatewayReference string) (*StatusResult, error)
}

// GatewayRegistry maps payment method tags to adapters.
type GatewayRegistry struct {
	adapters map[string]GatewayAdapter
}

// NewGatewayRegistry builds a registry from the given adapters.
func NewGatewayRegistry(adapters ...GatewayAdapter) *GatewayRegistry {
	reg := &GatewayRegistry{adapters: make(map[string]GatewayAdapter)}
	for _, a := range adapters {
		reg.adapters[a.Method()] = a
	}
	return reg
}

// Get returns the adapter for a method tag.
func (r *GatewayRegistry) Get(method string) (GatewayAdapter, error) {
	adapter, ok := r.adapters[method]
	if !ok {
		return nil, ErrUnsupportedMethod
	}
	return adapter, nil
}

// PollStatus repeatedly checks payment status with a fixed inter-attempt
// delay until a terminal status arrives or the attempt or wall-clock budget
// runs out, whichever comes first. Caller-supplied attempts/interval are
// clamped to the configured maxima.
//
// An exhausted budget yields a PENDING result, not a failure: money may have
// actually moved, so the caller must treat the outcome as indeterminate and
// leave the purchase pending for a later re-check.
func PollStatus(ctx context.Context, adapter GatewayAdapter, gatewayReference string, attempts int, interval time.Duration) (*StatusResult, error) {
	attempts, interval, budget := clampPollBudget(attempts, interval)

	deadline := time.Now().Add(budget)
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := adapter.CheckStatus(ctx, gatewayReference)
		if err != nil {
			var gwErr *GatewayError
			if errors.As(err, &gwErr) && !gwErr.Transient() {
				return nil, err
			}
			// Transient gateway trouble: keep the attempt budget running.
			logging.Warnf("Status check attempt %d/%d failed - method: %s, reference: %s, error: %v",
				attempt, attempts, adapter.Method(), gatewayReference, err)
			lastErr = err
		} else if result.Status.Terminal() {
			return result, nil
		} else {
			lastErr = nil
		}

		if attempt == attempts || time.Now().Add(interval).After(deadline) {
			break
		}

		select {
		case <-ctx.Done():
			// Abandoned poll: the purchase stays pending and a later
			// reconcile can always re-check, so nothing to compensate.
			return &StatusResult{Status: PaymentStatusPending}, nil
		case <-time.After(interval):
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, lastErr)
	}
	return &StatusResult{Status: PaymentStatusPending}, nil
}

// clampPollBudget applies the configured hard limits to caller-supplied
// polling parameters. Zero or negative values pick up the defaults.
func clampPollBudget(attempts int, interval time.Duration) (int, time.Duration, time.Duration) {
	maxAttempts := 10
	maxInterval := 4 * time.Second
	maxBudget := 60 * time.Second
	if config.AppConfig != nil {
		if config.AppConfig.PollMaxAttempts > 0 {
			maxAttempts = config.AppConfig.PollMaxAttempts
		}
		if config.AppConfig.PollIntervalSeconds > 0 {
			maxInterval = time.Duration(config.AppConfig.PollIntervalSeconds) * time.Second
		}
		if config.AppConfig.PollMaxSeconds > 0 {
			maxBudget = time.Duration(config.AppConfig.PollMaxSeconds) * time.Second
		}
	}

	if attempts <= 0 || attempts > maxAttempts {
		attempts = maxAttempts
	}
	if interval <= 0 || interval > maxInterval {
		interval = maxInterval
	}
	return attempts, interval, maxBudget
}
