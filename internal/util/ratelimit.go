package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces operations to a per-minute budget with a single-token
// bucket: the bucket refills continuously at the configured rate but never
// holds more than one token, so callers can never burst past one operation.
type RateLimiter struct {
	mu        sync.Mutex
	perSecond float64
	available float64
	refilled  time.Time
}

// NewRateLimiter creates a RateLimiter allowing perMinute operations per
// minute. The first Wait succeeds immediately.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		perSecond: float64(perMinute) / 60,
		available: 1,
		refilled:  time.Now(),
	}
}

// Wait blocks until the limiter grants a token or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		if rl.take() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// take refills the bucket for the time elapsed since the previous call and
// consumes a token when one is available.
func (rl *RateLimiter) take() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.available += now.Sub(rl.refilled).Seconds() * rl.perSecond
	rl.refilled = now
	if rl.available > 1 {
		rl.available = 1
	}
	if rl.available < 1 {
		return false
	}
	rl.available--
	return true
}
