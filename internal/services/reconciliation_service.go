package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unlock-api/internal/config"
	"unlock-api/internal/database"
	"unlock-api/internal/models"
	"unlock-api/pkg/logging"

	"github.com/google/uuid"
)

// ReconcileOutcome summarizes what a reconcile call did to the purchase.
type ReconcileOutcome string

const (
	OutcomeCompleted        ReconcileOutcome = "completed"
	OutcomeAlreadyCompleted ReconcileOutcome = "already_completed"
	OutcomeFailed           ReconcileOutcome = "failed"
	OutcomePending          ReconcileOutcome = "pending"
	OutcomeIgnored          ReconcileOutcome = "ignored"
)

// ReconciliationService turns asynchronous gateway verdicts into durable
// purchase/access-grant state. All of its mutations are idempotent, so
// concurrent reconciles for the same gateway reference are safe: the
// purchase store's status-guarded update is the serialization point.
type ReconciliationService struct {
	registry *GatewayRegistry
	notifier *NotificationService
}

// NewReconciliationService creates the orchestrator.
func NewReconciliationService(registry *GatewayRegistry, notifier *NotificationService) *ReconciliationService {
	return &ReconciliationService{
		registry: registry,
		notifier: notifier,
	}
}

// OpenPurchaseResult is returned to the client after a purchase is opened.
type OpenPurchaseResult struct {
	PurchaseID  string
	RedirectURL string
}

// OpenPurchase validates the request, creates a pending purchase with a
// fresh purchase ID and asks the chosen gateway to begin the payment flow.
func (s *ReconciliationService) OpenPurchase(ctx context.Context, userID, diagnosisID, method string) (*OpenPurchaseResult, error) {
	userID = strings.TrimSpace(userID)
	diagnosisID = strings.TrimSpace(diagnosisID)
	if userID == "" || diagnosisID == "" {
		return nil, fmt.Errorf("%w: user_id and diagnosis_id are required", ErrInvalidRequest)
	}

	adapter, err := s.registry.Get(method)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}

	// The purchase must target a real diagnosis.
	if _, err := database.GetDiagnosisByID(diagnosisID); err != nil {
		if errors.Is(err, database.ErrDiagnosisNotFound) {
			return nil, fmt.Errorf("%w: diagnosis %s", ErrNotFound, diagnosisID)
		}
		return nil, err
	}

	// No point charging a user twice for content they already hold.
	// A pending sibling purchase does not block: concurrent attempts are
	// allowed to race and the grant upsert de-duplicates.
	unlocked, err := database.HasFullAccess(userID, models.ResourceTypeDiagnosis, diagnosisID)
	if err != nil {
		return nil, err
	}
	if unlocked {
		return nil, ErrAlreadyUnlocked
	}

	purchase := &models.Purchase{
		PurchaseID:    uuid.NewString(),
		UserID:        userID,
		ResourceType:  models.ResourceTypeDiagnosis,
		ResourceID:    diagnosisID,
		Amount:        config.AppConfig.ItemPriceYen,
		Currency:      "JPY",
		PaymentMethod: adapter.Method(),
	}
	if err := database.CreatePurchase(purchase); err != nil {
		return nil, fmt.Errorf("failed to create purchase: %w", err)
	}

	opened, err := adapter.OpenPayment(ctx, PurchaseIntent{
		PurchaseID:  purchase.PurchaseID,
		UserID:      userID,
		ResourceID:  diagnosisID,
		Amount:      purchase.Amount,
		Currency:    purchase.Currency,
		Description: config.AppConfig.ItemDescription,
	})
	if err != nil {
		// The purchase stays pending: the gateway may or may not have
		// registered the attempt, and a later re-check resolves it.
		logging.Errorf("OpenPayment failed - purchase_id: %s, method: %s, error: %v",
			purchase.PurchaseID, adapter.Method(), err)
		return nil, err
	}

	if err := database.SetGatewayReference(purchase.PurchaseID, opened.GatewayReference, opened.Metadata); err != nil {
		return nil, fmt.Errorf("failed to store gateway reference: %w", err)
	}

	logging.Infof("Purchase opened - purchase_id: %s, method: %s, gateway_reference: %s",
		purchase.PurchaseID, adapter.Method(), opened.GatewayReference)

	return &OpenPurchaseResult{
		PurchaseID:  purchase.PurchaseID,
		RedirectURL: opened.RedirectURL,
	}, nil
}

// ReconcileByReference drives the purchase state machine for one completion
// signal. verdict may carry a signature-verified push payload's verdict; when
// nil the adapter's CheckStatus is consulted. A client-supplied "it succeeded"
// flag is never a source of truth, only a trigger to re-check.
func (s *ReconciliationService) ReconcileByReference(ctx context.Context, method, gatewayReference string, verdict *StatusResult) (ReconcileOutcome, error) {
	if strings.TrimSpace(gatewayReference) == "" {
		return OutcomeIgnored, fmt.Errorf("%w: empty gateway reference", ErrInvalidRequest)
	}

	purchase, err := database.GetPurchaseByGatewayReference(method, gatewayReference)
	if err != nil {
		if errors.Is(err, database.ErrPurchaseNotFound) {
			// Foreign or test notification; never synthesize a purchase
			// from a completion signal alone.
			logging.Warnf("Ignoring completion signal for unknown reference - method: %s, reference: %s",
				method, gatewayReference)
			return OutcomeIgnored, nil
		}
		return OutcomeIgnored, err
	}

	return s.reconcile(ctx, purchase, verdict)
}

// ReconcileByPurchaseID is the client-triggered variant, polling the gateway
// within the given budget before reconciling.
func (s *ReconciliationService) ReconcileByPurchaseID(ctx context.Context, purchaseID string, attempts int, interval time.Duration) (ReconcileOutcome, *models.Purchase, error) {
	purchase, err := database.GetPurchaseByID(purchaseID)
	if err != nil {
		if errors.Is(err, database.ErrPurchaseNotFound) {
			return OutcomeIgnored, nil, fmt.Errorf("%w: purchase %s", ErrNotFound, purchaseID)
		}
		return OutcomeIgnored, nil, err
	}

	// Terminal rows short-circuit before any gateway call.
	switch purchase.Status {
	case models.PurchaseStatusCompleted:
		return OutcomeAlreadyCompleted, purchase, nil
	case models.PurchaseStatusFailed:
		return OutcomeFailed, purchase, nil
	}

	if purchase.GatewayReference == "" {
		// OpenPayment never went through; nothing to poll yet.
		return OutcomePending, purchase, nil
	}

	adapter, err := s.registry.Get(purchase.PaymentMethod)
	if err != nil {
		return OutcomeIgnored, purchase, err
	}

	verdict, err := PollStatus(ctx, adapter, purchase.GatewayReference, attempts, interval)
	if err != nil {
		if errors.Is(err, ErrGatewayUnavailable) {
			// Indeterminate: money may have moved, so the purchase must
			// not be failed.
			return OutcomePending, purchase, err
		}
		return OutcomePending, purchase, err
	}

	outcome, err := s.reconcile(ctx, purchase, verdict)
	if err != nil {
		return outcome, purchase, err
	}

	refreshed, refreshErr := database.GetPurchaseByID(purchaseID)
	if refreshErr == nil {
		purchase = refreshed
	}
	return outcome, purchase, nil
}

// reconcile applies one verdict to one purchase row.
func (s *ReconciliationService) reconcile(ctx context.Context, purchase *models.Purchase, verdict *StatusResult) (ReconcileOutcome, error) {
	// Idempotent short-circuits avoid redundant gateway calls; the store
	// operations below tolerate replays regardless.
	switch purchase.Status {
	case models.PurchaseStatusCompleted:
		return OutcomeAlreadyCompleted, nil
	case models.PurchaseStatusFailed:
		return OutcomeFailed, nil
	}

	if verdict == nil {
		adapter, err := s.registry.Get(purchase.PaymentMethod)
		if err != nil {
			return OutcomeIgnored, err
		}
		verdict, err = adapter.CheckStatus(ctx, purchase.GatewayReference)
		if err != nil {
			return OutcomePending, err
		}
	}

	switch verdict.Status {
	case PaymentStatusPaid:
		return s.complete(purchase, verdict)

	case PaymentStatusFailed, PaymentStatusExpired:
		if err := database.MarkPurchaseFailed(purchase.PurchaseID, string(verdict.Status)); err != nil {
			// An illegal transition here is a correctness bug, not a
			// duplicate: surface it and halt this notification.
			return OutcomeIgnored, err
		}
		return OutcomeFailed, nil

	case PaymentStatusNotFound:
		// Some gateways do not know the reference until the user actually
		// pays (PayPay answers not-found for an unpaid QR code). This is
		// indeterminate, not a failure: leave the row pending so the
		// payment can still clear on a later re-check.
		logging.Warnf("Gateway does not know reference, leaving purchase pending - purchase_id: %s, reference: %s",
			purchase.PurchaseID, purchase.GatewayReference)
		return OutcomePending, nil

	default:
		// PENDING and anything indeterminate: leave the row untouched so a
		// later reconcile can pick up a payment that clears slowly.
		return OutcomePending, nil
	}
}

// complete marks the purchase completed and grants full access, in that
// order: a grant must never exist for a purchase that is not durably
// completed. A crash between the two writes leaves completed-but-ungranted,
// which VerifyAccessGrant closes on the next status or verify call.
func (s *ReconciliationService) complete(purchase *models.Purchase, verdict *StatusResult) (ReconcileOutcome, error) {
	metadata := map[string]string{}
	if verdict.RawPayload != "" {
		metadata["completion_payload"] = verdict.RawPayload
	}

	if err := database.MarkPurchaseCompleted(purchase.PurchaseID, metadata); err != nil {
		return OutcomeIgnored, err
	}

	// Access is granted only after the completed status is durable; the
	// grant itself tolerates replays.
	if err := database.GrantFullAccess(purchase.UserID, purchase.ResourceType, purchase.ResourceID, purchase.PurchaseID); err != nil {
		return OutcomeCompleted, fmt.Errorf("purchase completed but grant failed (recoverable on re-check): %w", err)
	}

	if s.notifier != nil {
		// Best-effort: delivery failures never roll back reconciliation.
		go s.notifier.NotifyPurchaseCompleted(purchase)
	}

	return OutcomeCompleted, nil
}

// VerifyAccessGrant repairs the completed-but-ungranted window: if the
// purchase is completed but no full grant exists, grant it now.
func (s *ReconciliationService) VerifyAccessGrant(purchase *models.Purchase) error {
	if purchase.Status != models.PurchaseStatusCompleted {
		return nil
	}
	unlocked, err := database.HasFullAccess(purchase.UserID, purchase.ResourceType, purchase.ResourceID)
	if err != nil {
		return err
	}
	if unlocked {
		return nil
	}
	logging.Warnf("Repairing missing grant for completed purchase - purchase_id: %s", purchase.PurchaseID)
	return database.GrantFullAccess(purchase.UserID, purchase.ResourceType, purchase.ResourceID, purchase.PurchaseID)
}
