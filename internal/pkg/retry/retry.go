// Package retry provides exponential backoff with full jitter, both as a
// generic Do helper for transport calls and as an HTTP client wrapper.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy bounds how often and how slowly an operation is retried.
type Policy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// MinDelay floors the jittered delay to avoid busy-looping.
	MinDelay time.Duration
}

// DefaultPolicy mirrors the defaults used for outbound API calls.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, MinDelay: 100 * time.Millisecond}
}

// Delay returns the backoff duration for the given retry attempt (1-based).
// Uses exponential backoff with full jitter:
// random(0, min(MaxDelay, BaseDelay * 2^(attempt-1))).
func (p Policy) Delay(attempt int) time.Duration {
	expDelay := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if p.MaxDelay > 0 && expDelay > float64(p.MaxDelay) {
		expDelay = float64(p.MaxDelay)
	}
	jittered := time.Duration(rand.Float64() * expDelay)
	if jittered < p.MinDelay {
		jittered = p.MinDelay
	}
	return jittered
}

// Do runs fn until it succeeds, returns an error retryable rejects, the
// policy is exhausted, or ctx is done. The last error is returned.
// attempt passed to fn is 0 for the first call.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := Sleep(ctx, p.Delay(attempt)); err != nil {
				return lastErr
			}
		}
		lastErr = fn(ctx, attempt)
		if lastErr == nil || !retryable(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
