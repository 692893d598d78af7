package util

import (
	"context"
	"time"
)

// Retry invokes fn until it succeeds, making up to attempts tries and
// doubling the wait between tries starting from initialDelay. The wait is
// interruptible: a cancelled context returns ctx.Err() immediately. When
// every try fails, the error from the final try is returned.
func Retry(ctx context.Context, attempts int, initialDelay time.Duration, fn func() error) error {
	wait := initialDelay
	var lastErr error

	for try := 1; try <= attempts; try++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if try == attempts {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait *= 2
	}
	return lastErr
}
