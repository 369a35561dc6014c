package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"unlock-api/internal/config"
	"unlock-api/internal/models"
	"unlock-api/pkg/logging"

	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

// StripeGateway is the webhook-push gateway: payment completion normally
// arrives as a signed Stripe event, with CheckStatus as the fallback path for
// client-triggered re-checks.
type StripeGateway struct {
	sc            *client.API
	webhookSecret string
	successURL    string
	cancelURL     string
}

// NewStripeGateway builds the adapter from the application config.
func NewStripeGateway(cfg *config.Config) *StripeGateway {
	sc := &client.API{}
	sc.Init(cfg.StripeSecretKey, nil)
	return &StripeGateway{
		sc:            sc,
		webhookSecret: cfg.StripeWebhookSecret,
		successURL:    cfg.StripeSuccessURL,
		cancelURL:     cfg.StripeCancelURL,
	}
}

// Method returns the payment method tag.
func (g *StripeGateway) Method() string {
	return models.PaymentMethodStripe
}

// OpenPayment creates a one-time-payment Checkout Session. The purchase ID
// travels as ClientReferenceID; the session ID becomes the gateway reference.
func (g *StripeGateway) OpenPayment(ctx context.Context, intent PurchaseIntent) (*OpenPaymentResult, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(intent.PurchaseID),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(intent.Currency),
				UnitAmount: stripe.Int64(intent.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(intent.Description),
				},
			},
		}},
	}
	params.Context = ctx

	sess, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, g.wrapError("create checkout session", err)
	}

	logging.Infof("Stripe checkout session created - purchase_id: %s, session_id: %s",
		intent.PurchaseID, sess.ID)

	return &OpenPaymentResult{
		GatewayReference: sess.ID,
		RedirectURL:      sess.URL,
		Metadata: map[string]string{
			"stripe_session_id": sess.ID,
		},
	}, nil
}

// CheckStatus fetches the Checkout Session and maps its state.
func (g *StripeGateway) CheckStatus(ctx context.Context, gatewayReference string) (*StatusResult, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := g.sc.CheckoutSessions.Get(gatewayReference, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound {
			return &StatusResult{Status: PaymentStatusNotFound}, nil
		}
		return nil, g.wrapError("get checkout session", err)
	}

	return &StatusResult{
		Status:     mapStripeSession(sess),
		RawPayload: string(sess.LastResponse.RawJSON),
	}, nil
}

// VerifyWebhook checks the Stripe-Signature header and parses the event.
// This is the trust boundary for the push path: an unverifiable payload is
// never reconciled.
func (g *StripeGateway) VerifyWebhook(payload []byte, signatureHeader string) (*stripe.Event, error) {
	if g.webhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", ErrSignatureInvalid)
	}
	event, err := webhook.ConstructEvent(payload, signatureHeader, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return &event, nil
}

func mapStripeSession(sess *stripe.CheckoutSession) PaymentStatus {
	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		return PaymentStatusPaid
	}
	if sess.Status == stripe.CheckoutSessionStatusExpired {
		return PaymentStatusExpired
	}
	return PaymentStatusPending
}

func (g *StripeGateway) wrapError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		gwErr := &GatewayError{Method: g.Method(), StatusCode: se.HTTPStatusCode, Body: se.Msg}
		if gwErr.Transient() {
			return fmt.Errorf("%w: %s: %v", ErrGatewayUnavailable, op, err)
		}
		return fmt.Errorf("failed to %s: %w", op, gwErr)
	}
	// Network-level failure, treat as transient.
	return fmt.Errorf("%w: %s: %v", ErrGatewayUnavailable, op, err)
}
