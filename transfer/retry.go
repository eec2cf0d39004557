package transfer

import (
	"context"
	"time"
)

const (
	// DefaultBaseDelay is the backoff before the first retry.
	DefaultBaseDelay = time.Second
	// DefaultMaxDelay is the backoff ceiling.
	DefaultMaxDelay = 30 * time.Second
)

// Clock abstracts time so retry waits are testable with a fake clock.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until the context is cancelled, returning
	// the context error in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock uses the standard library time functions.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep waits for d or until ctx is cancelled.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryController computes the exponential backoff applied before a
// failed job is re-enqueued.
type RetryController struct {
	base  time.Duration
	max   time.Duration
	clock Clock
}

// NewRetryController creates a controller with the given base delay
// and ceiling. Non-positive values fall back to the defaults.
func NewRetryController(base, max time.Duration, clock Clock) *RetryController {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if max <= 0 {
		max = DefaultMaxDelay
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &RetryController{base: base, max: max, clock: clock}
}

// Backoff returns min(base * 2^(attempt-1), max) for attempt >= 1.
func (r *RetryController) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := r.base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= r.max {
			return r.max
		}
	}
	if d > r.max {
		return r.max
	}
	return d
}

// Wait sleeps for the backoff of the given attempt, honoring ctx.
func (r *RetryController) Wait(ctx context.Context, attempt int) error {
	return r.clock.Sleep(ctx, r.Backoff(attempt))
}
