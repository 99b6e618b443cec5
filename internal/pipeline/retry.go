package pipeline

import (
	"math/rand"
	"time"
)

// RetryPolicy implements spec.md §4.3's exact backoff formula:
// base*2^(i-1) + uniform(0,jitter), capped at 5s. This is deliberately
// not internal/resilience.Retry (which wraps cenkalti/backoff's
// exponential backoff): that library does not guarantee this formula
// byte for byte, and the spec pins it exactly for scenario 3's
// [0.010, 0.015]s assertion window.
type RetryPolicy struct {
	Enabled     bool
	MaxAttempts int // inclusive of the initial attempt; minimum 1
	BaseMs      int
	JitterMs    int
}

const maxBackoff = 5 * time.Second

// Backoff returns the sleep duration between attempt i and i+1 (i is
// 1-based: the delay after the first attempt is Backoff(1)).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	base := time.Duration(p.BaseMs) * time.Millisecond
	exp := base << uint(attempt-1) // base * 2^(attempt-1)
	jitter := time.Duration(0)
	if p.JitterMs > 0 {
		jitter = time.Duration(rand.Int63n(int64(p.JitterMs))) * time.Millisecond
	}
	d := exp + jitter
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// maxAttempts returns the effective attempt ceiling, defaulting to 1
// (no retries) when unset or when retries are disabled.
func (p RetryPolicy) maxAttempts() int {
	if !p.Enabled {
		return 1
	}
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
