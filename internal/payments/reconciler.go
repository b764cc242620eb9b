package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pawtrait/backend/internal/models"
	"github.com/pawtrait/backend/internal/plan"
)

// PaymentStore is the payment-record persistence the reconciler mutates. All
// transitions are conditional updates so replays converge.
type PaymentStore interface {
	FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	MarkPaid(ctx context.Context, paymentID int64, providerPaymentID string, metadata models.PaymentMetadata) (bool, error)
	MarkFailed(ctx context.Context, paymentID int64, metadata models.PaymentMetadata) (bool, error)
	MarkRefundInitiated(ctx context.Context, paymentID int64) (bool, error)
	MarkRefunded(ctx context.Context, paymentID int64) (bool, error)
	ClaimSubscriptionSlot(ctx context.Context, paymentID, subscriptionID int64) (bool, error)
}

// SubscriptionStore creates and cancels subscriptions during reconciliation.
type SubscriptionStore interface {
	Create(ctx context.Context, sub *models.Subscription) error
	FindActiveByUserPlan(ctx context.Context, userID, planID int64) (*models.Subscription, error)
	Cancel(ctx context.Context, subscriptionID int64) (bool, error)
}

// PlanSource resolves the purchased plan for snapshots and allocations.
type PlanSource interface {
	GetByID(ctx context.Context, id int64) (*models.Plan, error)
}

// Reconciler converges local payment/subscription state with the payment
// provider's at-least-once event stream.
type Reconciler struct {
	secret        string
	payments      PaymentStore
	subscriptions SubscriptionStore
	plans         PlanSource
	log           *slog.Logger
	now           func() time.Time
}

func NewReconciler(webhookSecret string, payments PaymentStore, subscriptions SubscriptionStore, plans PlanSource, log *slog.Logger) *Reconciler {
	return &Reconciler{
		secret:        webhookSecret,
		payments:      payments,
		subscriptions: subscriptions,
		plans:         plans,
		log:           log,
		now:           time.Now,
	}
}

// Handle verifies and applies one webhook delivery. The signature gate runs
// before anything else (fail-closed). Unknown events and events referencing
// no local payment are logged and dropped without error so the provider does
// not retry-storm permanently unresolvable deliveries.
func (r *Reconciler) Handle(ctx context.Context, rawBody []byte, signature string) error {
	if err := VerifySignature(r.secret, rawBody, signature); err != nil {
		return err
	}

	event, err := ParseEvent(rawBody)
	if err != nil {
		r.log.Error("webhook body unparseable", "err", err)
		return nil
	}

	switch event.Kind {
	case EventPaymentAuthorized, EventPaymentCaptured:
		return r.handlePaid(ctx, event.Payment)
	case EventPaymentFailed:
		return r.handleFailed(ctx, event.Payment, rawBody)
	case EventRefundCreated:
		return r.handleRefundCreated(ctx, event.Refund)
	case EventRefundProcessed:
		return r.handleRefundProcessed(ctx, event.Refund)
	default:
		r.log.Info("ignoring unrecognized webhook event", "event", event.RawKind)
		return nil
	}
}

func (r *Reconciler) handlePaid(ctx context.Context, payload *PaymentPayload) error {
	payment, ok, err := r.lookup(ctx, payload.OrderID)
	if err != nil || !ok {
		return err
	}

	planRow, err := r.plans.GetByID(ctx, payment.PlanID)
	if err != nil {
		return fmt.Errorf("load plan %d: %w", payment.PlanID, err)
	}
	if planRow == nil {
		r.log.Error("paid webhook references missing plan", "order_id", payment.OrderID, "plan_id", payment.PlanID)
		return nil
	}

	metadata := payment.Metadata
	metadata.PlanSnapshot = planRow
	metadata.GenerationAllocation = allocationFor(planRow)
	metadata.ProviderMethod = payload.Method
	syncedAt := r.now().UTC()
	metadata.SyncedAt = &syncedAt

	transitioned, err := r.payments.MarkPaid(ctx, payment.ID, payload.PaymentID, metadata)
	if err != nil {
		return err
	}
	if !transitioned {
		r.log.Info("payment already past created, skipping transition", "order_id", payment.OrderID, "status", payment.Status)
	}

	// Check-then-set subscription recovery. Re-read so a prior delivery's
	// claim is visible.
	fresh, err := r.payments.FindByOrderID(ctx, payment.OrderID)
	if err != nil {
		return err
	}
	if fresh == nil || fresh.Metadata.SubscriptionID != 0 {
		return nil
	}
	// A capture replayed after a failure event must not grant credits: the
	// record's own status decides, not the event.
	if fresh.Status != models.PaymentPaid {
		r.log.Info("payment not paid, skipping subscription recovery", "order_id", payment.OrderID, "status", fresh.Status)
		return nil
	}

	sub := &models.Subscription{
		UserID:          payment.UserID,
		PlanID:          planRow.ID,
		Tier:            planRow.Tier,
		ImagesTotal:     planRow.ImagesTotal,
		ImagesRemaining: planRow.ImagesTotal,
		Status:          models.SubscriptionActive,
	}
	if err := r.subscriptions.Create(ctx, sub); err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}

	claimed, err := r.payments.ClaimSubscriptionSlot(ctx, payment.ID, sub.ID)
	if err != nil {
		return err
	}
	if !claimed {
		// A concurrent delivery won the race; retire our duplicate so the
		// event stream still converges on one subscription.
		if _, cancelErr := r.subscriptions.Cancel(ctx, sub.ID); cancelErr != nil {
			r.log.Error("cancel duplicate subscription failed", "subscription_id", sub.ID, "err", cancelErr)
		}
		r.log.Info("subscription already recorded for payment", "order_id", payment.OrderID)
		return nil
	}

	r.log.Info("subscription created from payment", "order_id", payment.OrderID, "subscription_id", sub.ID, "tier", sub.Tier)
	return nil
}

func (r *Reconciler) handleFailed(ctx context.Context, payload *PaymentPayload, rawBody []byte) error {
	payment, ok, err := r.lookup(ctx, payload.OrderID)
	if err != nil || !ok {
		return err
	}

	metadata := payment.Metadata
	metadata.FailureReason = payload.ErrorDescription
	metadata.RawFailurePayload = string(rawBody)
	syncedAt := r.now().UTC()
	metadata.SyncedAt = &syncedAt

	transitioned, err := r.payments.MarkFailed(ctx, payment.ID, metadata)
	if err != nil {
		return err
	}
	if !transitioned {
		r.log.Info("failed webhook for non-created payment, dropped", "order_id", payment.OrderID, "status", payment.Status)
	}
	return nil
}

func (r *Reconciler) handleRefundCreated(ctx context.Context, payload *RefundPayload) error {
	payment, ok, err := r.lookup(ctx, payload.OrderID)
	if err != nil || !ok {
		return err
	}
	transitioned, err := r.payments.MarkRefundInitiated(ctx, payment.ID)
	if err != nil {
		return err
	}
	if !transitioned {
		r.log.Info("refund.created for non-paid payment, dropped", "order_id", payment.OrderID, "status", payment.Status)
	}
	return nil
}

func (r *Reconciler) handleRefundProcessed(ctx context.Context, payload *RefundPayload) error {
	payment, ok, err := r.lookup(ctx, payload.OrderID)
	if err != nil || !ok {
		return err
	}

	transitioned, err := r.payments.MarkRefunded(ctx, payment.ID)
	if err != nil {
		return err
	}
	if !transitioned {
		r.log.Info("refund.processed replay, dropped", "order_id", payment.OrderID, "status", payment.Status)
		return nil
	}

	sub, err := r.subscriptions.FindActiveByUserPlan(ctx, payment.UserID, payment.PlanID)
	if err != nil {
		return err
	}
	if sub == nil {
		r.log.Info("no active subscription to cancel for refund", "order_id", payment.OrderID)
		return nil
	}
	if _, err := r.subscriptions.Cancel(ctx, sub.ID); err != nil {
		return err
	}
	r.log.Info("subscription cancelled for refund", "order_id", payment.OrderID, "subscription_id", sub.ID)
	return nil
}

// lookup resolves the local payment for a provider order id. Missing records
// are dropped with a log; the provider's own retry schedule is relied upon if
// the record appears later.
func (r *Reconciler) lookup(ctx context.Context, orderID string) (*models.Payment, bool, error) {
	if orderID == "" {
		r.log.Error("webhook event missing order id")
		return nil, false, nil
	}
	payment, err := r.payments.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	if payment == nil {
		r.log.Error("webhook references unknown payment, dropped", "order_id", orderID)
		return nil, false, nil
	}
	return payment, true, nil
}

func allocationFor(planRow *models.Plan) map[string]int {
	profile := plan.Resolve(planRow.Tier)
	return map[string]int{
		"images_total":        planRow.ImagesTotal,
		"max_images_per_job":  profile.MaxImagesPerJob,
		"diversity_frequency": profile.DiversityFrequency,
		"steps":               profile.Steps,
	}
}
