package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// SinkRetryConfig bounds the persist phase's internal sink-write retry
// (spec.md §4.4.10: "Sink write failure of transient nature may be
// retried a bounded number of times internally"). Unlike the pipeline
// executor's phase-level retry (internal/pipeline), this has no pinned
// formula, so cenkalti/backoff's exponential backoff is used directly.
type SinkRetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

// DefaultSinkRetryConfig returns conservative bounded-retry defaults
// for sink writes.
func DefaultSinkRetryConfig() SinkRetryConfig {
	return SinkRetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Retry runs fn under cenkalti/backoff's exponential backoff, retrying
// only while ctx is live and attempts remain.
func Retry(ctx context.Context, cfg SinkRetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	if cfg.InitialDelay > 0 {
		bo.InitialInterval = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		bo.MaxInterval = cfg.MaxDelay
	}
	if cfg.Multiplier > 0 {
		bo.Multiplier = cfg.Multiplier
	}
	bo.RandomizationFactor = cfg.Jitter
	bo.MaxElapsedTime = 0

	maxRetries := uint64(cfg.MaxAttempts - 1)
	withMax := backoff.WithMaxRetries(bo, maxRetries)
	withCtx := backoff.WithContext(withMax, ctx)

	return backoff.Retry(fn, withCtx)
}
