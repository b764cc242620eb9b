package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pawtrait/backend/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	metadata, err := json.Marshal(payment.Metadata)
	if err != nil {
		return fmt.Errorf("marshal payment metadata: %w", err)
	}
	const query = `
INSERT INTO payments (order_id, user_id, plan_id, currency, amount, status, provider_payment_id, metadata)
VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?)`
	res, err := r.db.ExecContext(ctx, query, payment.OrderID, payment.UserID, payment.PlanID, payment.Currency, payment.Amount, payment.Status, payment.ProviderPaymentID, metadata)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	payment.ID = id
	return nil
}

func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	const query = `
SELECT id, order_id, user_id, plan_id, currency, amount, status, COALESCE(provider_payment_id, ''), COALESCE(metadata, '{}'), created_at, COALESCE(updated_at, created_at)
FROM payments WHERE order_id = ? LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, orderID)
	var p models.Payment
	var metadata []byte
	if err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.PlanID, &p.Currency, &p.Amount, &p.Status, &p.ProviderPaymentID, &metadata, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal payment metadata: %w", err)
		}
	}
	return &p, nil
}

// MarkPaid transitions created -> paid. Status transitions are monotonic: the
// WHERE clause makes a replayed capture event a no-op.
func (r *PaymentRepository) MarkPaid(ctx context.Context, paymentID int64, providerPaymentID string, metadata models.PaymentMetadata) (bool, error) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return false, fmt.Errorf("marshal payment metadata: %w", err)
	}
	const query = `
UPDATE payments SET status = ?, provider_payment_id = ?, metadata = ?, updated_at = NOW()
WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, models.PaymentPaid, providerPaymentID, raw, paymentID, models.PaymentCreated)
	if err != nil {
		return false, fmt.Errorf("mark payment paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("payment rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkFailed transitions created -> failed, keeping the raw payload in the
// metadata for support diagnosis.
func (r *PaymentRepository) MarkFailed(ctx context.Context, paymentID int64, metadata models.PaymentMetadata) (bool, error) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return false, fmt.Errorf("marshal payment metadata: %w", err)
	}
	const query = `
UPDATE payments SET status = ?, metadata = ?, updated_at = NOW()
WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, models.PaymentFailed, raw, paymentID, models.PaymentCreated)
	if err != nil {
		return false, fmt.Errorf("mark payment failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("payment rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkRefundInitiated transitions paid -> refund_initiated.
func (r *PaymentRepository) MarkRefundInitiated(ctx context.Context, paymentID int64) (bool, error) {
	const query = `
UPDATE payments SET status = ?, updated_at = NOW()
WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, models.PaymentRefundInitiated, paymentID, models.PaymentPaid)
	if err != nil {
		return false, fmt.Errorf("mark refund initiated: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("payment rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkRefunded finishes the refund. refund.processed may arrive before
// refund.created under at-least-once delivery, so paid is accepted too.
func (r *PaymentRepository) MarkRefunded(ctx context.Context, paymentID int64) (bool, error) {
	const query = `
UPDATE payments SET status = ?, updated_at = NOW()
WHERE id = ? AND status IN (?, ?)`
	res, err := r.db.ExecContext(ctx, query, models.PaymentRefunded, paymentID, models.PaymentPaid, models.PaymentRefundInitiated)
	if err != nil {
		return false, fmt.Errorf("mark refunded: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("payment rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClaimSubscriptionSlot durably records the subscription id in the payment
// metadata, but only if no id is set yet. This is the idempotency guard
// against duplicate subscriptions from replayed webhooks: exactly one caller
// ever sees true.
func (r *PaymentRepository) ClaimSubscriptionSlot(ctx context.Context, paymentID, subscriptionID int64) (bool, error) {
	const query = `
UPDATE payments
SET metadata = JSON_SET(COALESCE(metadata, '{}'), '$.subscription_id', ?), updated_at = NOW()
WHERE id = ? AND JSON_EXTRACT(metadata, '$.subscription_id') IS NULL`
	res, err := r.db.ExecContext(ctx, query, subscriptionID, paymentID)
	if err != nil {
		return false, fmt.Errorf("claim subscription slot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("payment rows affected: %w", err)
	}
	return affected > 0, nil
}
