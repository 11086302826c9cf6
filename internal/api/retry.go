package api

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAttemptsExhausted is wrapped by RetryPolicy.Run when every attempt failed.
var ErrAttemptsExhausted = errors.New("all retry attempts failed")

// BackoffFunc returns the wait after the given failed attempt (1-based).
type BackoffFunc func(attempt int) time.Duration

// LinearBackoff waits attempt × unit: 2s, 4s, ... for unit = 2s.
func LinearBackoff(unit time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * unit
	}
}

// ExponentialBackoff doubles from initial and caps at max.
func ExponentialBackoff(initial, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		wait := initial
		for i := 1; i < attempt; i++ {
			wait *= 2
			if wait >= max {
				return max
			}
		}
		return wait
	}
}

// RetryPolicy configures retry behavior
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffFunc
}

// Run calls op until it succeeds or MaxAttempts is reached. Between attempts
// it calls onRetry (if non-nil) and then waits Backoff(attempt). No wait
// follows the final attempt.
func (p RetryPolicy) Run(
	ctx context.Context,
	op func(ctx context.Context, attempt int) error,
	onRetry func(ctx context.Context, attempt int, err error),
) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		if onRetry != nil {
			onRetry(ctx, attempt, lastErr)
		}
		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if err := Sleep(ctx, wait); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w (%d attempts): %w", ErrAttemptsExhausted, maxAttempts, lastErr)
}

// Sleep waits for d or until ctx is done. Non-positive durations return immediately.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
