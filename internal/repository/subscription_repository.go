package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pawtrait/backend/internal/models"
)

type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `id, user_id, plan_id, tier, images_total, images_remaining, status, created_at, updated_at`

func (r *SubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	const query = `
INSERT INTO subscriptions (user_id, plan_id, tier, images_total, images_remaining, status)
VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, sub.UserID, sub.PlanID, sub.Tier, sub.ImagesTotal, sub.ImagesRemaining, sub.Status)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	sub.ID = id
	return nil
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id int64) (*models.Subscription, error) {
	const query = `
SELECT ` + subscriptionColumns + `
FROM subscriptions WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	return scanSubscription(row)
}

// FindActiveForUser returns the user's newest active subscription with
// remaining credits, or nil.
func (r *SubscriptionRepository) FindActiveForUser(ctx context.Context, userID int64) (*models.Subscription, error) {
	const query = `
SELECT ` + subscriptionColumns + `
FROM subscriptions
WHERE user_id = ? AND status = ? AND images_remaining > 0
ORDER BY created_at DESC
LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, userID, models.SubscriptionActive)
	return scanSubscription(row)
}

// FindActiveByUserPlan locates the active subscription a refund should
// cancel.
func (r *SubscriptionRepository) FindActiveByUserPlan(ctx context.Context, userID, planID int64) (*models.Subscription, error) {
	const query = `
SELECT ` + subscriptionColumns + `
FROM subscriptions
WHERE user_id = ? AND plan_id = ? AND status = ?
ORDER BY created_at DESC
LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, userID, planID, models.SubscriptionActive)
	return scanSubscription(row)
}

// DecrementRemaining takes exactly count credits off the subscription,
// clamping at zero.
func (r *SubscriptionRepository) DecrementRemaining(ctx context.Context, subscriptionID int64, count int) error {
	const query = `
UPDATE subscriptions SET images_remaining = GREATEST(images_remaining - ?, 0), updated_at = NOW()
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, count, subscriptionID); err != nil {
		return fmt.Errorf("decrement images remaining: %w", err)
	}
	return nil
}

// Cancel marks an active subscription cancelled.
func (r *SubscriptionRepository) Cancel(ctx context.Context, subscriptionID int64) (bool, error) {
	const query = `
UPDATE subscriptions SET status = ?, updated_at = NOW()
WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, models.SubscriptionCancelled, subscriptionID, models.SubscriptionActive)
	if err != nil {
		return false, fmt.Errorf("cancel subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("subscription rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanSubscription(row *sql.Row) (*models.Subscription, error) {
	var s models.Subscription
	if err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.Tier, &s.ImagesTotal, &s.ImagesRemaining, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	return &s, nil
}
