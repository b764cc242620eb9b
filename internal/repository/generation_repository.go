package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pawtrait/backend/internal/models"
)

type GenerationRepository struct {
	db *sql.DB
}

func NewGenerationRepository(db *sql.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

func (r *GenerationRepository) Create(ctx context.Context, req *models.GenerationRequest) error {
	selections, err := json.Marshal(req.Selections)
	if err != nil {
		return fmt.Errorf("marshal selections: %w", err)
	}
	jobs, err := json.Marshal(req.Jobs)
	if err != nil {
		return fmt.Errorf("marshal jobs: %w", err)
	}
	const query = `
INSERT INTO generation_requests (id, user_id, subscription_id, selections, status, jobs_data)
VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, req.ID, req.UserID, req.SubscriptionID, selections, req.Status, jobs); err != nil {
		return fmt.Errorf("insert generation request: %w", err)
	}
	return nil
}

func (r *GenerationRepository) GetByID(ctx context.Context, id string) (*models.GenerationRequest, error) {
	const query = `
SELECT id, user_id, subscription_id, selections, status, COALESCE(jobs_data, '[]'), COALESCE(image_urls, '[]'), COALESCE(error_message, ''), created_at, COALESCE(updated_at, created_at)
FROM generation_requests WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var req models.GenerationRequest
	var selections, jobs, imageURLs []byte
	if err := row.Scan(&req.ID, &req.UserID, &req.SubscriptionID, &selections, &req.Status, &jobs, &imageURLs, &req.ErrorMessage, &req.CreatedAt, &req.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan generation request: %w", err)
	}
	if err := json.Unmarshal(selections, &req.Selections); err != nil {
		return nil, fmt.Errorf("unmarshal selections: %w", err)
	}
	if err := json.Unmarshal(jobs, &req.Jobs); err != nil {
		return nil, fmt.Errorf("unmarshal jobs: %w", err)
	}
	if err := json.Unmarshal(imageURLs, &req.ImageURLs); err != nil {
		return nil, fmt.Errorf("unmarshal image urls: %w", err)
	}
	return &req, nil
}

// UpdateJobs persists per-job progress for a request that is still open.
func (r *GenerationRepository) UpdateJobs(ctx context.Context, id string, jobs []models.GenerationJob) error {
	raw, err := json.Marshal(jobs)
	if err != nil {
		return fmt.Errorf("marshal jobs: %w", err)
	}
	const query = `
UPDATE generation_requests SET jobs_data = ?, updated_at = NOW()
WHERE id = ? AND status = ?`
	if _, err := r.db.ExecContext(ctx, query, raw, id, models.GenerationProcessing); err != nil {
		return fmt.Errorf("update jobs: %w", err)
	}
	return nil
}

// MarkCompleted transitions processing -> completed. The WHERE clause makes
// the transition fire at most once even under concurrent status checks; the
// return value gates the credit decrement.
func (r *GenerationRepository) MarkCompleted(ctx context.Context, id string, jobs []models.GenerationJob, imageURLs []string) (bool, error) {
	rawJobs, err := json.Marshal(jobs)
	if err != nil {
		return false, fmt.Errorf("marshal jobs: %w", err)
	}
	rawURLs, err := json.Marshal(imageURLs)
	if err != nil {
		return false, fmt.Errorf("marshal image urls: %w", err)
	}
	const query = `
UPDATE generation_requests SET status = ?, jobs_data = ?, image_urls = ?, updated_at = NOW()
WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, models.GenerationCompleted, rawJobs, rawURLs, id, models.GenerationProcessing)
	if err != nil {
		return false, fmt.Errorf("mark generation completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("generation rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkFailed transitions processing -> failed with a human-readable message.
func (r *GenerationRepository) MarkFailed(ctx context.Context, id string, jobs []models.GenerationJob, message string) (bool, error) {
	rawJobs, err := json.Marshal(jobs)
	if err != nil {
		return false, fmt.Errorf("marshal jobs: %w", err)
	}
	const query = `
UPDATE generation_requests SET status = ?, jobs_data = ?, error_message = ?, updated_at = NOW()
WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, models.GenerationFailed, rawJobs, message, id, models.GenerationProcessing)
	if err != nil {
		return false, fmt.Errorf("mark generation failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("generation rows affected: %w", err)
	}
	return affected > 0, nil
}
