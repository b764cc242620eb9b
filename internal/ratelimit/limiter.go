// Package ratelimit bounds outbound calls to the generation provider with a
// fixed per-window budget.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when the window budget is exhausted. Callers
// decide whether to retry later; nothing here retries.
var ErrRateLimited = errors.New("provider rate limit exceeded")

type Config struct {
	// RequestsPerWindow is the max provider calls allowed per window.
	RequestsPerWindow int
	// WindowDuration is the fixed window length.
	WindowDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerWindow: 30,
		WindowDuration:    time.Minute,
	}
}

// Limiter is the one piece of process-wide mutable state in the generation
// path. The mutex guards the count/reset pair against concurrent
// increment/reset races.
type Limiter struct {
	cfg Config

	mu          sync.Mutex
	count       int
	windowStart time.Time
	now         func() time.Time
}

func New(cfg Config) *Limiter {
	if cfg.RequestsPerWindow <= 0 {
		cfg.RequestsPerWindow = DefaultConfig().RequestsPerWindow
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = DefaultConfig().WindowDuration
	}
	return &Limiter{
		cfg: cfg,
		now: time.Now,
	}
}

// Allow consumes one slot from the current window. Returns ErrRateLimited
// when the budget is exhausted.
func (l *Limiter) Allow() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.windowStart) >= l.cfg.WindowDuration {
		l.windowStart = now
		l.count = 0
	}

	if l.count >= l.cfg.RequestsPerWindow {
		return ErrRateLimited
	}
	l.count++
	return nil
}

// Remaining reports the slots left in the current window.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.now().Sub(l.windowStart) >= l.cfg.WindowDuration {
		return l.cfg.RequestsPerWindow
	}
	remaining := l.cfg.RequestsPerWindow - l.count
	if remaining < 0 {
		return 0
	}
	return remaining
}
