// Package backoff provides capped exponential backoff utilities for polling loops.
package backoff

import (
	"context"
	"math"
	"time"
)

// Policy defines the parameters for capped exponential backoff.
type Policy struct {
	// Initial is the delay before the second attempt (the first attempt is immediate).
	Initial time.Duration
	// Max is the upper bound on the delay between attempts.
	Max time.Duration
	// Factor is the multiplier applied to the delay after each attempt.
	Factor float64
}

// Step returns the delay to sleep after the given attempt number.
// Attempt numbers start at 1; Step(1) returns Initial, and each subsequent
// attempt multiplies the delay by Factor until Max is reached.
func (p Policy) Step(attempt int) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	d := float64(p.Initial) * math.Pow(p.Factor, exp)
	if d > float64(p.Max) {
		d = float64(p.Max)
	}
	return time.Duration(d)
}

// PollPolicy returns the policy used when polling the vault service for
// async command results: 500ms initial, 1.5x growth, capped at 2s. The cap
// bounds request rate against the service while keeping early results fast.
func PollPolicy() Policy {
	return Policy{
		Initial: 500 * time.Millisecond,
		Max:     2 * time.Second,
		Factor:  1.5,
	}
}

// Sleep waits for the specified duration, respecting context cancellation.
// Returns nil if the sleep completed, or ctx.Err() if the context was cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
