package generation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pawtrait/backend/internal/models"
)

// ErrPollExhausted means a request stayed open past the policy's attempt cap.
var ErrPollExhausted = errors.New("generation still processing after poll limit")

// PollPolicy drives caller-side repeated CheckOnce calls. It belongs to the
// caller, not the poller: the poller itself never sleeps.
type PollPolicy struct {
	MaxAttempts int
	Interval    time.Duration
	// Backoff, when set, overrides Interval per attempt (attempt starts
	// at 0).
	Backoff func(attempt int) time.Duration
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		MaxAttempts: 60,
		Interval:    10 * time.Second,
	}
}

func (p PollPolicy) delay(attempt int) time.Duration {
	if p.Backoff != nil {
		return p.Backoff(attempt)
	}
	return p.Interval
}

// Watcher drives server-side polling for dispatched requests so they reach a
// terminal state (and their credit decrement) even when no client ever asks
// for status.
type Watcher struct {
	poller *Poller
	policy PollPolicy
	log    *slog.Logger
}

func NewWatcher(poller *Poller, policy PollPolicy, log *slog.Logger) *Watcher {
	return &Watcher{
		poller: poller,
		policy: policy,
		log:    log,
	}
}

// Watch follows one request in the background. The polling outlives the
// originating HTTP request, so the caller's cancellation is stripped.
func (w *Watcher) Watch(ctx context.Context, requestID string) {
	background := context.WithoutCancel(ctx)
	go func() {
		result, err := w.policy.Wait(background, w.poller, requestID)
		if err != nil {
			w.log.Error("background poll ended without terminal state", "request_id", requestID, "err", err)
			return
		}
		w.log.Info("generation reached terminal state", "request_id", requestID, "status", result.Status)
	}()
}

// Wait loops CheckOnce until the request reaches a terminal state, the
// attempt cap is hit, or the context is cancelled.
func (p PollPolicy) Wait(ctx context.Context, poller *Poller, requestID string) (*CheckResult, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultPollPolicy().MaxAttempts
	}

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := poller.CheckOnce(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if result.Status != models.GenerationProcessing {
			return result, nil
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.delay(attempt)):
		}
	}
	return nil, ErrPollExhausted
}
