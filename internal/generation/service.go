package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pawtrait/backend/internal/models"
	"github.com/pawtrait/backend/internal/plan"
	"github.com/pawtrait/backend/internal/prompt"
)

// ErrNoActiveSubscription means the user has no active subscription with
// credits left.
var ErrNoActiveSubscription = errors.New("no active subscription with remaining credits")

// RequestCreator persists a freshly dispatched generation request.
type RequestCreator interface {
	Create(ctx context.Context, req *models.GenerationRequest) error
}

// SubscriptionSource looks up the subscription a batch draws credits from.
type SubscriptionSource interface {
	FindActiveForUser(ctx context.Context, userID int64) (*models.Subscription, error)
}

// Service is the user-facing entry point: selections in, a processing
// generation request out.
type Service struct {
	subscriptions SubscriptionSource
	requests      RequestCreator
	dispatcher    *Dispatcher
	watcher       *Watcher
	log           *slog.Logger
}

// NewService wires the entry point. watcher may be nil; then requests only
// progress when a client queries their status.
func NewService(subscriptions SubscriptionSource, requests RequestCreator, dispatcher *Dispatcher, watcher *Watcher, log *slog.Logger) *Service {
	return &Service{
		subscriptions: subscriptions,
		requests:      requests,
		dispatcher:    dispatcher,
		watcher:       watcher,
		log:           log,
	}
}

// StartInput is one user-initiated batch.
type StartInput struct {
	UserID     int64
	Selections models.UserSelections
	ImageCount int
	PhotoURLs  []string
}

// StartResult carries what the caller shows the user right away.
type StartResult struct {
	RequestID        string
	Status           models.GenerationStatus
	JobCount         int
	EstimatedSeconds int
}

// Start validates the batch, composes prompts under the subscription's tier,
// dispatches provider jobs and persists the request in processing state.
// Validation and rate-limit errors surface synchronously; individual provider
// failures are absorbed by the dispatcher unless every submission failed.
func (s *Service) Start(ctx context.Context, input StartInput) (*StartResult, error) {
	if err := prompt.Validate(input.Selections); err != nil {
		return nil, err
	}
	if input.ImageCount < 1 {
		return nil, fmt.Errorf("%w: image count must be at least 1", prompt.ErrValidation)
	}
	if len(input.PhotoURLs) < 1 || len(input.PhotoURLs) > 5 {
		return nil, fmt.Errorf("%w: between 1 and 5 reference photos required", prompt.ErrValidation)
	}

	sub, err := s.subscriptions.FindActiveForUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNoActiveSubscription
	}
	if input.ImageCount > sub.ImagesRemaining {
		return nil, fmt.Errorf("%w: %d images requested, %d remaining", prompt.ErrValidation, input.ImageCount, sub.ImagesRemaining)
	}

	profile := plan.Resolve(sub.Tier)
	variations, err := prompt.GenerateVariations(input.Selections, input.ImageCount, profile)
	if err != nil {
		return nil, err
	}

	jobs, err := s.dispatcher.Dispatch(ctx, DispatchInput{
		Profile:    profile,
		Variations: variations,
		PhotoURLs:  input.PhotoURLs,
	})
	if err != nil {
		return nil, err
	}
	if len(jobs) < len(variations) {
		s.log.Warn("batch dispatched partially", "requested", len(variations), "submitted", len(jobs))
	}

	req := &models.GenerationRequest{
		ID:             uuid.NewString(),
		UserID:         input.UserID,
		SubscriptionID: sub.ID,
		Selections:     input.Selections,
		Status:         models.GenerationProcessing,
		Jobs:           jobs,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("persist generation request: %w", err)
	}

	if s.watcher != nil {
		s.watcher.Watch(ctx, req.ID)
	}

	return &StartResult{
		RequestID:        req.ID,
		Status:           req.Status,
		JobCount:         len(jobs),
		EstimatedSeconds: plan.EstimateGenerationTime(len(jobs), profile.Steps),
	}, nil
}
