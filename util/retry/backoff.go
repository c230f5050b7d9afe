package retry

import (
	"context"
	"time"
)

// replaced in tests
var sleepFunc = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BackoffAndSleep sleeps for ((backoffMultiplier*retries)+1) * durationType and
// returns the context error if the context ends first.
func BackoffAndSleep(ctx context.Context, retries int, backoffMultiplier int, durationType time.Duration) error {
	backoff := (backoffMultiplier * retries) + 1
	backoffPeriod := time.Duration(backoff) * durationType

	return sleepFunc(ctx, backoffPeriod)
}

// CappedExponentialBackoff returns currentBackoff multiplied by backoffFactor, never more than maxBackoff.
func CappedExponentialBackoff(currentBackoff time.Duration, backoffFactor float64, maxBackoff time.Duration) time.Duration {
	nextBackoff := time.Duration(float64(currentBackoff) * backoffFactor)
	if nextBackoff > maxBackoff {
		return maxBackoff
	}

	return nextBackoff
}
