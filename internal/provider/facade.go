// Package provider presents a uniform, classified, rate-limited
// interface to an external broker (spec.md §4.1, component C1). Only
// the contract is specified; internals of a real broker integration
// are out of scope, so this package also ships a MemoryProvider
// reference implementation for tests. Grounded on the teacher's
// infrastructure/cache (TTL+versioned invalidation),
// infrastructure/ratelimit (token bucket), internal/services/core
// (tri-state health), and internal/services/pricefeed/fetcher.go
// (small Fetcher-adapter style).
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
)

// Quote is a single instrument's last observed market data.
type Quote struct {
	LastPrice    float64
	Bid          float64
	Ask          float64
	Volume       int64
	OpenInterest int64
	TimestampSec int64
}

// ResolvedExpiries is the result of resolve_expiries: the full catalogue
// plus the derived weekly/monthly subsets named in spec.md §4.1.
type ResolvedExpiries struct {
	All         []string // calendar dates, ISO8601, ascending
	ThisWeek    string
	NextWeek    string
	ThisMonth   string
	NextMonth   string
	Fabricated  bool
}

// HealthStatus mirrors the teacher's tri-state health model
// (internal/services/core.HealthStatus).
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

// Health is the result of a health() call; never fails per spec.md §4.1.
type Health struct {
	Status HealthStatus
	Reason string
}

// Diagnostics is the result of a diagnostics() call; never fails.
type Diagnostics struct {
	CacheSizes    map[string]int
	CacheHits     map[string]int64
	CacheMisses   map[string]int64
	TokenAgeSec   int64
	TokenTTLSec   int64
	LastFallback  bool
	Health        Health
}

// Error taxonomy exposed to callers (spec.md §4.1).
var (
	ErrProviderAuth    = errors.New("provider: credentials invalid or expired")
	ErrResolveExpiry   = errors.New("provider: expiry resolution failed")
	ErrNoInstruments   = errors.New("provider: empty instrument domain")
	ErrNoQuotes        = errors.New("provider: empty quote response")
	ErrProviderTransient = errors.New("provider: transient upstream condition")
)

// Capability flags a provider implementation declares at registration.
type Capability string

const (
	CapQuotes      Capability = "quotes"
	CapLTP         Capability = "ltp"
	CapOptions     Capability = "options"
	CapInstruments Capability = "instruments"
	CapExpiries    Capability = "expiries"
)

// Facade is the uniform provider contract, spec.md §4.1/§6.1.
type Facade interface {
	GetInstruments(ctx context.Context, exchange string, forceRefresh bool) ([]expiry.Instrument, error)
	ResolveExpiries(ctx context.Context, index string) (ResolvedExpiries, error)
	GetQuotes(ctx context.Context, instrumentIDs []string) (map[string]Quote, error)
	GetLTP(ctx context.Context, instrumentIDs []string) (map[string]float64, error)
	GetATMStrike(ctx context.Context, index string, lastPrice float64) float64
	Diagnostics(ctx context.Context) Diagnostics
	Health(ctx context.Context) Health
	Capabilities() []Capability
	Name() string
}

// CredentialSnapshot is an immutable credential object, spec.md §4.1:
// "Rotations produce a new snapshot; in-flight calls continue on the
// old snapshot."
type CredentialSnapshot struct {
	APIKey          string
	AccessToken     string
	DiscoverySource string
	CreatedAt       time.Time
	Discovered      bool
	Complete        bool
}

// ATMStep returns the strike rounding step for get_atm_strike, per
// spec.md §4.1: "step=100 if spot>20000 else 50 (defaults table
// overridable)".
func ATMStep(spot float64, overrideStep float64) float64 {
	if overrideStep > 0 {
		return overrideStep
	}
	if spot > 20000 {
		return 100
	}
	return 50
}

// RoundToStep rounds spot to the nearest multiple of step.
func RoundToStep(spot, step float64) float64 {
	if step <= 0 {
		return spot
	}
	quotient := spot / step
	rounded := float64(int64(quotient + 0.5))
	if quotient < 0 {
		rounded = float64(int64(quotient - 0.5))
	}
	return rounded * step
}
