package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"unlock-api/internal/database"
	"unlock-api/internal/models"
	"unlock-api/internal/services"
	"unlock-api/pkg/logging"

	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v78"
)

// StripeWebhookHandler handles Stripe event deliveries
// POST /api/webhook/stripe
//
// Signature verification happens before anything else touches a store; an
// unverifiable payload is rejected, not reconciled. Stripe retries
// non-2xx responses, so transient errors return 500 while signal-level
// problems (unknown reference, irrelevant event type) return 200 to stop
// redelivery.
func StripeWebhookHandler(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		logging.Errorf("Failed to read request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Failed to read request body",
		})
		return
	}

	event, err := stripeGateway.VerifyWebhook(body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		logging.Errorf("Stripe signature verification failed: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"message": "Signature verification failed",
		})
		return
	}

	// Duplicate deliveries short-circuit here; reconcile would tolerate
	// them anyway.
	if !replayGuard.FirstDelivery(c.Request.Context(), models.PaymentMethodStripe, event.ID) {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"status":  "duplicate_ignored",
		})
		return
	}

	var verdict *services.StatusResult
	var sessionID string

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed", "checkout.session.expired":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			logging.Errorf("Failed to parse checkout session from event %s: %v", event.ID, err)
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "Invalid event payload",
			})
			return
		}
		sessionID = sess.ID
		verdict = stripeVerdict(event.Type, &sess, event.Data.Raw)

	default:
		// Not a lifecycle event this service cares about.
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"status":  "event_ignored",
		})
		return
	}

	outcome, err := reconciler.ReconcileByReference(c.Request.Context(), models.PaymentMethodStripe, sessionID, verdict)
	if err != nil {
		if errors.Is(err, database.ErrIllegalTransition) {
			// Correctness bug, not a duplicate: surface loudly and make
			// Stripe redeliver so it stays visible.
			logging.Errorf("Illegal transition while processing event %s: %v", event.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Illegal purchase state transition",
			})
			return
		}
		logging.Errorf("Reconcile failed for event %s: %v", event.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Reconciliation failed",
		})
		return
	}

	logging.Infof("Stripe event processed - event_id: %s, type: %s, outcome: %s",
		event.ID, event.Type, outcome)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  string(outcome),
	})
}

// stripeVerdict maps a verified event to an adapter-level verdict. The
// payload is trusted because its signature was verified; an event without a
// usable terminal state returns nil so reconcile re-fetches server-side
// truth instead.
func stripeVerdict(eventType stripe.EventType, sess *stripe.CheckoutSession, raw []byte) *services.StatusResult {
	switch eventType {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			return &services.StatusResult{Status: services.PaymentStatusPaid, RawPayload: string(raw)}
		}
		// Completed session with payment still processing (async
		// methods): let CheckStatus decide.
		return nil
	case "checkout.session.async_payment_failed":
		return &services.StatusResult{Status: services.PaymentStatusFailed, RawPayload: string(raw)}
	case "checkout.session.expired":
		return &services.StatusResult{Status: services.PaymentStatusExpired, RawPayload: string(raw)}
	default:
		return nil
	}
}
