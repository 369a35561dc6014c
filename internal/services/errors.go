package services

import (
	"errors"
	"fmt"
)

// Error taxonomy for the purchase/reconciliation core.
var (
	// ErrInvalidRequest covers missing or malformed identifiers; rejected
	// before any store is touched.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrSignatureInvalid means a gateway notification failed signature
	// verification; the payload must not be reconciled.
	ErrSignatureInvalid = errors.New("signature verification failed")

	// ErrGatewayUnavailable is transient: the status check may be retried
	// and the purchase stays pending.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrNotFound covers unknown gateway references and resources.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyUnlocked is returned when a purchase is opened for a
	// resource the user already holds full access to.
	ErrAlreadyUnlocked = errors.New("resource already unlocked")

	// ErrUnsupportedMethod is returned for unknown payment method tags.
	ErrUnsupportedMethod = errors.New("unsupported payment method")
)

// GatewayError carries the gateway-side status for non-2xx API responses.
type GatewayError struct {
	Method     string
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s gateway error: status %d: %s", e.Method, e.StatusCode, e.Body)
}

// Transient reports whether the error is worth retrying within the polling
// budget. Server-side errors and rate limits are transient; 4xx are not.
func (e *GatewayError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
