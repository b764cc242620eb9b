package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pawtrait/backend/internal/models"
)

type PlanRepository struct {
	db *sql.DB
}

func NewPlanRepository(db *sql.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, tier, title, currency, price_minor_units, images_total, is_active, created_at, updated_at`

func (r *PlanRepository) ListActive(ctx context.Context) ([]models.Plan, error) {
	const query = `
SELECT ` + planColumns + `
FROM pricing_plans
WHERE is_active = 1
ORDER BY price_minor_units ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *plan)
	}
	return plans, rows.Err()
}

func (r *PlanRepository) GetByID(ctx context.Context, id int64) (*models.Plan, error) {
	const query = `
SELECT ` + planColumns + `
FROM pricing_plans
WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	plan, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return plan, nil
}

func (r *PlanRepository) GetByTier(ctx context.Context, tier models.TierID) (*models.Plan, error) {
	const query = `
SELECT ` + planColumns + `
FROM pricing_plans
WHERE tier = ? AND is_active = 1
ORDER BY id ASC
LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, tier)
	plan, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return plan, nil
}

func (r *PlanRepository) Create(ctx context.Context, plan *models.Plan) error {
	const query = `
INSERT INTO pricing_plans (tier, title, currency, price_minor_units, images_total, is_active)
VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, plan.Tier, plan.Title, plan.Currency, plan.PriceMinorUnits, plan.ImagesTotal, plan.IsActive)
	if err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("plan last insert id: %w", err)
	}
	plan.ID = id
	return nil
}

// EnsureDefaults seeds one active plan per tier on first boot.
func (r *PlanRepository) EnsureDefaults(ctx context.Context, currency string) error {
	defaults := []models.Plan{
		{Tier: models.TierStarter, Title: "Starter Pack", Currency: currency, PriceMinorUnits: 999, ImagesTotal: 5, IsActive: true},
		{Tier: models.TierPro, Title: "Pro Pack", Currency: currency, PriceMinorUnits: 2499, ImagesTotal: 15, IsActive: true},
		{Tier: models.TierUltra, Title: "Ultra Pack", Currency: currency, PriceMinorUnits: 4999, ImagesTotal: 40, IsActive: true},
		{Tier: models.TierMax, Title: "Max Pack", Currency: currency, PriceMinorUnits: 9999, ImagesTotal: 100, IsActive: true},
	}
	for i := range defaults {
		existing, err := r.GetByTier(ctx, defaults[i].Tier)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := r.Create(ctx, &defaults[i]); err != nil {
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*models.Plan, error) {
	var plan models.Plan
	var active int
	if err := row.Scan(&plan.ID, &plan.Tier, &plan.Title, &plan.Currency, &plan.PriceMinorUnits, &plan.ImagesTotal, &active, &plan.CreatedAt, &plan.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan plan: %w", err)
	}
	plan.IsActive = active != 0
	return &plan, nil
}
