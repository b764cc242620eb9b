package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawtrait/backend/internal/models"
)

func TestGenerationGetByIDDecodesJSON(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	columns := []string{"id", "user_id", "subscription_id", "selections", "status", "jobs_data", "image_urls", "error_message", "created_at", "updated_at"}
	mock.ExpectQuery("SELECT (.+) FROM generation_requests WHERE id = \\?").
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"req-1", 7, 42,
			`{"pet_type":"dog","breed":"corgi","style_id":"professional-portrait","background_id":"studio-white"}`,
			"processing",
			`[{"job_id":"a","prompt":"p","status":"pending","reference_images":["u1"]}]`,
			`[]`, "", now, now,
		))

	repo := NewGenerationRepository(db)
	req, err := repo.GetByID(context.Background(), "req-1")
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, models.GenerationProcessing, req.Status)
	assert.Equal(t, "corgi", req.Selections.Breed)
	require.Len(t, req.Jobs, 1)
	assert.Equal(t, "a", req.Jobs[0].JobID)
	assert.Equal(t, []string{"u1"}, req.Jobs[0].ReferenceImages)
	assert.Empty(t, req.ImageURLs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationGetByIDMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	columns := []string{"id", "user_id", "subscription_id", "selections", "status", "jobs_data", "image_urls", "error_message", "created_at", "updated_at"}
	mock.ExpectQuery("SELECT (.+) FROM generation_requests WHERE id = \\?").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(columns))

	repo := NewGenerationRepository(db)
	req, err := repo.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, req)
}

func TestGenerationMarkCompletedConditional(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	jobs := []models.GenerationJob{{JobID: "a", Status: models.JobCompleted, ImageURL: "u1"}}
	urls := []string{"u1"}

	mock.ExpectExec("UPDATE generation_requests SET status = \\?, jobs_data = \\?, image_urls = \\?").
		WithArgs(string(models.GenerationCompleted), sqlmock.AnyArg(), sqlmock.AnyArg(), "req-1", string(models.GenerationProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE generation_requests SET status = \\?, jobs_data = \\?, image_urls = \\?").
		WithArgs(string(models.GenerationCompleted), sqlmock.AnyArg(), sqlmock.AnyArg(), "req-1", string(models.GenerationProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewGenerationRepository(db)

	transitioned, err := repo.MarkCompleted(context.Background(), "req-1", jobs, urls)
	require.NoError(t, err)
	assert.True(t, transitioned)

	// A concurrent check already moved the row; the loser must see false so
	// it never decrements credits.
	transitioned, err = repo.MarkCompleted(context.Background(), "req-1", jobs, urls)
	require.NoError(t, err)
	assert.False(t, transitioned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationMarkFailedConditional(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE generation_requests SET status = \\?, jobs_data = \\?, error_message = \\?").
		WithArgs(string(models.GenerationFailed), sqlmock.AnyArg(), "image generation failed", "req-1", string(models.GenerationProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewGenerationRepository(db)
	transitioned, err := repo.MarkFailed(context.Background(), "req-1", nil, "image generation failed")
	require.NoError(t, err)
	assert.True(t, transitioned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationUpdateJobsOnlyWhileProcessing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE generation_requests SET jobs_data = \\?, updated_at = NOW\\(\\)").
		WithArgs(sqlmock.AnyArg(), "req-1", string(models.GenerationProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewGenerationRepository(db)
	jobs := []models.GenerationJob{{JobID: "a", Status: models.JobProcessing}}
	assert.NoError(t, repo.UpdateJobs(context.Background(), "req-1", jobs))
	assert.NoError(t, mock.ExpectationsWereMet())
}
