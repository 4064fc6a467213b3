// Package retry provides the exponential-backoff helper composed around
// publishes and provider calls. Handlers running under the consumer worker
// must not use it: the worker already retries, and stacking the two amplifies
// DLQ latency.
package retry

import (
	"context"
	"time"
)

// Delay returns the backoff before the given attempt (1-based):
// base * 2^(attempt-1), capped at max when max > 0.
func Delay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base << (attempt - 1)
	if d < base { // shift overflow
		d = max
		if d <= 0 { // uncapped: never collapse to a hot zero-delay loop
			d = base
		}
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}

// Do runs fn up to attempts times, sleeping Delay between failures. onRetry,
// when non-nil, observes each failed attempt before the sleep. The context
// cancels the wait; the last error is returned when all attempts fail.
func Do(ctx context.Context, attempts int, base, max time.Duration, onRetry func(attempt int, err error), fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(Delay(attempt, base, max)):
		}
	}
	return err
}
