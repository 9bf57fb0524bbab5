// Package retry provides bounded retry with exponential backoff for
// transient failures against external services.
package retry

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Permanent marks an error as non-retryable. Do stops immediately and
// returns the wrapped error unchanged.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do invokes op, retrying on failure up to maxAttempts total invocations.
// The delay before attempt n+1 is baseDelay * 3^(n-1), so an op that
// succeeds on the first try never sleeps. The error from the final failing
// attempt is returned unchanged so callers can branch on its kind.
func Do[T any](ctx context.Context, maxAttempts int, baseDelay time.Duration, op func() (T, error)) (T, error) {
	return doWithTimer(ctx, maxAttempts, baseDelay, op, nil)
}

// doWithTimer is Do with an injectable timer so tests can observe sleeps.
func doWithTimer[T any](ctx context.Context, maxAttempts int, baseDelay time.Duration, op func() (T, error), t backoff.Timer) (T, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	// Deterministic policy: no jitter, tripling interval, bounded only by
	// the attempt count.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = baseDelay
	bo.Multiplier = 3
	bo.RandomizationFactor = 0
	bo.MaxInterval = math.MaxInt64
	bo.MaxElapsedTime = 0
	bo.Reset()

	var result T
	attempt := 0
	err := backoff.RetryNotifyWithTimer(func() error {
		attempt++
		v, err := op()
		if err != nil {
			return err
		}
		result = v
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxAttempts-1)), ctx), func(err error, next time.Duration) {
		slog.Debug("operation failed, retrying",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", next,
			"error", err)
	}, t)
	return result, err
}
