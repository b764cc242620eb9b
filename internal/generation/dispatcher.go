package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pawtrait/backend/internal/models"
	"github.com/pawtrait/backend/internal/plan"
	"github.com/pawtrait/backend/internal/prompt"
	"github.com/pawtrait/backend/internal/provider"
	"github.com/pawtrait/backend/internal/ratelimit"
)

// ErrNoJobsCreated means every submission in a batch failed. Partial failures
// do not abort a dispatch; only a total one does.
var ErrNoJobsCreated = errors.New("no generation jobs could be created")

const referenceWeight = 0.85

// Submitter is the provider call the dispatcher needs.
type Submitter interface {
	Submit(ctx context.Context, req provider.Request) (string, error)
}

// Dispatcher turns prompt variations into provider jobs under the rate
// limiter's budget.
type Dispatcher struct {
	limiter  *ratelimit.Limiter
	provider Submitter
	log      *slog.Logger
}

func NewDispatcher(limiter *ratelimit.Limiter, p Submitter, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		limiter:  limiter,
		provider: p,
		log:      log,
	}
}

// DispatchInput is one user batch: a variation per requested image plus the
// uploaded reference photos.
type DispatchInput struct {
	Profile    plan.Profile
	Variations []prompt.Variation
	PhotoURLs  []string
}

// Dispatch submits one provider call per variation. The rate limiter is
// consulted before every outbound call and exhaustion fails the dispatch
// immediately; the caller retries later. An individual submission failure is
// logged and excluded from the result instead of aborting the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, input DispatchInput) ([]models.GenerationJob, error) {
	if len(input.Variations) == 0 {
		return nil, fmt.Errorf("%w: no variations to dispatch", prompt.ErrValidation)
	}

	var jobs []models.GenerationJob
	for i, variation := range input.Variations {
		if err := d.limiter.Allow(); err != nil {
			return nil, fmt.Errorf("dispatch image %d: %w", i, err)
		}

		window := referenceWindow(input.PhotoURLs, i, input.Profile.MaxImagesPerJob)
		req := provider.Request{
			Prompt:         variation.Prompt,
			NegativePrompt: variation.NegativePrompt,
			Width:          input.Profile.Width,
			Height:         input.Profile.Height,
			Steps:          input.Profile.Steps,
			Guidance:       input.Profile.Guidance,
			Seed:           variation.Seed,
			OutputFormat:   input.Profile.OutputFormat,
			Model:          input.Profile.Model,
			CharacterLock:  input.Profile.CharacterLock,
		}
		for _, url := range window {
			req.ReferenceImages = append(req.ReferenceImages, provider.ReferenceImage{URL: url, Weight: referenceWeight})
		}

		jobID, err := d.provider.Submit(ctx, req)
		if err != nil {
			d.log.Error("job submission failed, continuing batch", "index", i, "err", err)
			continue
		}

		jobs = append(jobs, models.GenerationJob{
			JobID:           jobID,
			Prompt:          variation.Prompt,
			Status:          models.JobPending,
			ReferenceImages: window,
		})
	}

	if len(jobs) == 0 {
		return nil, ErrNoJobsCreated
	}
	return jobs, nil
}

// referenceWindow gives each job a rotating slice of the user's photos so a
// batch reuses them round-robin instead of always sending the first one.
func referenceWindow(photos []string, jobIndex, windowSize int) []string {
	if len(photos) == 0 || windowSize <= 0 {
		return nil
	}
	window := make([]string, 0, windowSize)
	for i := 0; i < windowSize; i++ {
		window = append(window, photos[(jobIndex*windowSize+i)%len(photos)])
	}
	return window
}
