package runengine

import (
	"context"
	"time"

	"github.com/jangala-dev/daqd/internal/daqerr"
)

// RetryPolicy governs how many times, and with what backoff, the engine
// retries a failed command before surfacing the error (spec.md §7
// "Timeout and Communication retry up to 3 times with 100ms backoff").
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy matches spec.md §7 exactly.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 100 * time.Millisecond}
}

// Do runs fn, retrying on retryable errors (daqerr.Timeout, daqerr.
// Communication) up to MaxAttempts total attempts with a fixed backoff
// between them. Any other error, or context cancellation, returns
// immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !daqerr.Retryable(daqerr.Of(err)) {
			return err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff):
		}
	}
	return lastErr
}
