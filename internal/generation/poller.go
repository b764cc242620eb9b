package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pawtrait/backend/internal/models"
	"github.com/pawtrait/backend/internal/provider"
)

// ErrRequestNotFound means the generation id does not exist (or belongs to
// nobody the caller can see).
var ErrRequestNotFound = errors.New("generation request not found")

// StatusChecker is the single non-blocking provider status call the poller
// needs.
type StatusChecker interface {
	Status(ctx context.Context, jobID string) (*provider.JobState, error)
}

// RequestStore is the durable generation-request store. The conditional
// transitions in MarkCompleted/MarkFailed are what make terminal states
// sticky under concurrent checks.
type RequestStore interface {
	GetByID(ctx context.Context, id string) (*models.GenerationRequest, error)
	UpdateJobs(ctx context.Context, id string, jobs []models.GenerationJob) error
	MarkCompleted(ctx context.Context, id string, jobs []models.GenerationJob, imageURLs []string) (bool, error)
	MarkFailed(ctx context.Context, id string, jobs []models.GenerationJob, message string) (bool, error)
}

// CreditStore decrements the owning subscription's image credits.
type CreditStore interface {
	DecrementRemaining(ctx context.Context, subscriptionID int64, count int) error
}

// Archiver copies a provider result image into owned storage.
type Archiver interface {
	ArchiveFromURL(ctx context.Context, sourceURL string) (string, error)
}

// Poller aggregates per-job provider status into the request's single state.
type Poller struct {
	requests RequestStore
	credits  CreditStore
	checker  StatusChecker
	archiver Archiver
	log      *slog.Logger
}

func NewPoller(requests RequestStore, credits CreditStore, checker StatusChecker, archiver Archiver, log *slog.Logger) *Poller {
	return &Poller{
		requests: requests,
		credits:  credits,
		checker:  checker,
		archiver: archiver,
		log:      log,
	}
}

// CheckResult is one snapshot of a generation request.
type CheckResult struct {
	Status          models.GenerationStatus
	Images          []string
	ProgressPercent int
	ErrorMessage    string
}

// CheckOnce performs a single non-blocking status round over the request's
// open jobs and applies at most one state transition. Terminal states are
// sticky: a completed or failed request is returned as-is without touching
// the provider. The credit decrement happens exactly once, on the single
// processing -> completed transition.
func (p *Poller) CheckOnce(ctx context.Context, requestID string) (*CheckResult, error) {
	req, err := p.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}

	if req.Status != models.GenerationProcessing {
		return snapshot(req), nil
	}

	jobs := make([]models.GenerationJob, len(req.Jobs))
	copy(jobs, req.Jobs)

	var failureMessage string
	for i := range jobs {
		if jobs[i].Status == models.JobCompleted || jobs[i].Status == models.JobFailed {
			continue
		}
		state, err := p.checker.Status(ctx, jobs[i].JobID)
		if err != nil {
			// A transient check failure leaves the job open for the next
			// round rather than failing the request.
			p.log.Error("job status check failed", "request_id", req.ID, "job_id", jobs[i].JobID, "err", err)
			continue
		}
		switch state.Status {
		case provider.StatusCompleted:
			jobs[i].Status = models.JobCompleted
			if len(state.ImageURLs) > 0 {
				jobs[i].ImageURL = p.archive(ctx, state.ImageURLs[0])
			}
		case provider.StatusFailed:
			jobs[i].Status = models.JobFailed
			if state.Error != "" {
				failureMessage = state.Error
			}
		case provider.StatusProcessing:
			jobs[i].Status = models.JobProcessing
		}
	}

	completed, failed := tally(jobs)

	// Any failed sub-job fails the whole request; completed siblings are
	// discarded and no credits are taken.
	if failed > 0 {
		message := "image generation failed"
		if failureMessage != "" {
			message = fmt.Sprintf("image generation failed: %s", failureMessage)
		}
		transitioned, err := p.requests.MarkFailed(ctx, req.ID, jobs, message)
		if err != nil {
			return nil, err
		}
		if !transitioned {
			// Lost the race to another check; report the stored state.
			return p.reload(ctx, req.ID)
		}
		req.Status = models.GenerationFailed
		req.Jobs = jobs
		req.ErrorMessage = message
		return snapshot(req), nil
	}

	if completed == len(jobs) {
		var urls []string
		for _, job := range jobs {
			if job.ImageURL != "" {
				urls = append(urls, job.ImageURL)
			}
		}
		transitioned, err := p.requests.MarkCompleted(ctx, req.ID, jobs, urls)
		if err != nil {
			return nil, err
		}
		if !transitioned {
			return p.reload(ctx, req.ID)
		}
		if err := p.credits.DecrementRemaining(ctx, req.SubscriptionID, len(urls)); err != nil {
			// The request is already terminal; the credit write is logged
			// for reconciliation rather than unwinding the completion.
			p.log.Error("credit decrement failed", "request_id", req.ID, "subscription_id", req.SubscriptionID, "count", len(urls), "err", err)
		}
		req.Status = models.GenerationCompleted
		req.Jobs = jobs
		req.ImageURLs = urls
		return snapshot(req), nil
	}

	if err := p.requests.UpdateJobs(ctx, req.ID, jobs); err != nil {
		p.log.Error("persist job progress failed", "request_id", req.ID, "err", err)
	}
	req.Jobs = jobs
	return snapshot(req), nil
}

func (p *Poller) archive(ctx context.Context, sourceURL string) string {
	if p.archiver == nil {
		return sourceURL
	}
	archived, err := p.archiver.ArchiveFromURL(ctx, sourceURL)
	if err != nil {
		p.log.Error("archive image failed, keeping provider url", "err", err)
		return sourceURL
	}
	return archived
}

func (p *Poller) reload(ctx context.Context, id string) (*CheckResult, error) {
	req, err := p.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	return snapshot(req), nil
}

func snapshot(req *models.GenerationRequest) *CheckResult {
	completed, _ := tally(req.Jobs)
	progress := 0
	if len(req.Jobs) > 0 {
		progress = completed * 100 / len(req.Jobs)
	}
	if req.Status == models.GenerationCompleted {
		progress = 100
	}
	return &CheckResult{
		Status:          req.Status,
		Images:          req.ImageURLs,
		ProgressPercent: progress,
		ErrorMessage:    req.ErrorMessage,
	}
}

func tally(jobs []models.GenerationJob) (completed, failed int) {
	for _, job := range jobs {
		switch job.Status {
		case models.JobCompleted:
			completed++
		case models.JobFailed:
			failed++
		}
	}
	return completed, failed
}
