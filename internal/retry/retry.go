// Package retry implements a bounded retry policy shared by the query
// executor, identity client, and reasoner client. Retries are always
// bounded with backoff; sleeps respect context cancellation.
package retry

import (
	"context"
	"time"

	"github.com/halcyondata/askdb/errors"
)

// Policy describes a bounded retry schedule.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Backoff returns the delay before the given attempt (1-based retry
	// index: Backoff(1) precedes the second attempt).
	Backoff func(attempt int) time.Duration

	// Retryable decides whether an error is worth retrying. A nil
	// predicate retries every error.
	Retryable func(error) bool
}

// Linear returns a backoff function producing delay, 2*delay, 3*delay, …
func Linear(delay time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * delay
	}
}

// Fixed returns a backoff function producing a constant delay.
func Fixed(delay time.Duration) func(int) time.Duration {
	return func(int) time.Duration {
		return delay
	}
}

// Do runs op until it succeeds, the policy is exhausted, a non-retryable
// error occurs, or the context is done. The last error is returned.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			var delay time.Duration
			if p.Backoff != nil {
				delay = p.Backoff(attempt)
			}
			if err := sleep(ctx, delay); err != nil {
				return errors.Wrap(lastErr, "retry aborted: "+err.Error())
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

// sleep waits for d or until the context is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
