package provider

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig controls a provider's token-bucket limiter. Adapted
// from the teacher's infrastructure/ratelimit.RateLimitConfig.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultRateLimitConfig returns a generous default suitable for a
// single upstream broker connection.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 10, Burst: 20}
}

// RateLimiter is a per-provider token-bucket limiter, adapted from the
// teacher's infrastructure/ratelimit.RateLimiter (per-second limiter
// only; this domain has no per-minute API quota to track).
type RateLimiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
	cfg     RateLimitConfig
}

// NewRateLimiter builds a limiter from cfg, filling sensible defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst), cfg: cfg}
}

// Allow reports whether a call may proceed right now without blocking.
func (r *RateLimiter) Allow() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.RLock()
	l := r.limiter
	r.mu.RUnlock()
	return l.Wait(ctx)
}

// Reset rebuilds the limiter from its original configuration, clearing
// any accumulated token debt.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiter = rate.NewLimiter(rate.Limit(r.cfg.RequestsPerSecond), r.cfg.Burst)
}

// ThrottledLogger suppresses repeated warnings to at most one per
// interval while still guaranteeing at least one is emitted, per
// spec.md §4.1's "two throttled log sinks... suppressing bursts while
// retaining at-least-one warning per interval".
type ThrottledLogger struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	emit     func(message string)
}

// NewThrottledLogger builds a throttled sink with the given minimum
// interval between emissions (spec.md default is 5s).
func NewThrottledLogger(interval time.Duration, emit func(message string)) *ThrottledLogger {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ThrottledLogger{interval: interval, emit: emit}
}

// Warn emits message if at least `interval` has elapsed since the last
// emission; otherwise it is suppressed.
func (t *ThrottledLogger) Warn(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if now.Sub(t.last) < t.interval {
		return
	}
	t.last = now
	t.emit(message)
}
