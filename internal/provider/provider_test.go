package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New("provider_test", logging.Config{Level: "error", Format: "text"})
}

func TestTTLCacheExpiresEntries(t *testing.T) {
	c := NewTTLCache(CacheConfig{DefaultTTL: time.Millisecond})
	c.Set("k", 42, 0)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	time.Sleep(5 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestTTLCacheInvalidateAllBumpsGeneration(t *testing.T) {
	c := NewTTLCache(CacheConfig{DefaultTTL: time.Minute})
	c.Set("k", 1, 0)
	c.InvalidateAll()
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 2})
	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
}

func TestThrottledLoggerSuppressesBursts(t *testing.T) {
	var emits int
	tl := NewThrottledLogger(50*time.Millisecond, func(string) { emits++ })
	tl.Warn("a")
	tl.Warn("b")
	tl.Warn("c")
	assert.Equal(t, 1, emits)

	time.Sleep(60 * time.Millisecond)
	tl.Warn("d")
	assert.Equal(t, 2, emits)
}

func TestRegistryResolvesExplicitOverDefault(t *testing.T) {
	r := NewRegistry()
	a := NewMemoryProvider("alpha", testLogger())
	b := NewMemoryProvider("beta", testLogger())
	r.Register(a)
	r.Register(b)
	r.SetDefault("beta")

	p, err := r.Resolve("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", p.Name())
}

func TestRegistryFallsBackToConfiguredDefault(t *testing.T) {
	r := NewRegistry()
	a := NewMemoryProvider("alpha", testLogger())
	b := NewMemoryProvider("beta", testLogger())
	r.Register(a)
	r.Register(b)
	r.SetDefault("beta")

	p, err := r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "beta", p.Name())
}

func TestRegistryFallsBackToSingleRegistered(t *testing.T) {
	r := NewRegistry()
	a := NewMemoryProvider("alpha", testLogger())
	r.Register(a)

	p, err := r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "alpha", p.Name())
}

func TestRegistryResolveFailsWhenAmbiguous(t *testing.T) {
	r := NewRegistry()
	r.Register(NewMemoryProvider("alpha", testLogger()))
	r.Register(NewMemoryProvider("beta", testLogger()))

	_, err := r.Resolve("")
	assert.Error(t, err)
}

func TestMemoryProviderGetInstrumentsCachesResult(t *testing.T) {
	calls := 0
	p := NewMemoryProvider("mem", testLogger()).WithInstrumentsFunc(func(ctx context.Context, exchange string) ([]expiry.Instrument, error) {
		calls++
		return []expiry.Instrument{{ID: "NIFTY2560024000CE", Strike: 24000}}, nil
	})

	ctx := context.Background()
	first, err := p.GetInstruments(ctx, "NFO", false)
	require.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := p.GetInstruments(ctx, "NFO", false)
	require.NoError(t, err)
	assert.Len(t, second, 1)
	assert.Equal(t, 1, calls, "second call should be served from cache")
}

func TestMemoryProviderRetriesOnceOnEmptyInstruments(t *testing.T) {
	calls := 0
	p := NewMemoryProvider("mem", testLogger()).WithInstrumentsFunc(func(ctx context.Context, exchange string) ([]expiry.Instrument, error) {
		calls++
		if calls == 1 {
			return nil, nil
		}
		return []expiry.Instrument{{ID: "X"}}, nil
	})

	result, err := p.GetInstruments(context.Background(), "NFO", false)
	require.NoError(t, err)
	assert.Len(t, result, 1)
	assert.Equal(t, 2, calls)
}

func TestMemoryProviderAuthErrorSurfacesOnEveryCall(t *testing.T) {
	p := NewMemoryProvider("mem", testLogger()).SetAuthValid(false)

	_, err := p.GetInstruments(context.Background(), "NFO", false)
	assert.ErrorIs(t, err, ErrProviderAuth)

	_, err = p.ResolveExpiries(context.Background(), "NIFTY")
	assert.ErrorIs(t, err, ErrProviderAuth)

	_, err = p.GetQuotes(context.Background(), []string{"X"})
	assert.ErrorIs(t, err, ErrProviderAuth)
}

func TestMemoryProviderResolveExpiriesFabricatesWhenCatalogueEmpty(t *testing.T) {
	p := NewMemoryProvider("mem", testLogger()).
		WithInstrumentsFunc(func(ctx context.Context, exchange string) ([]expiry.Instrument, error) {
			return []expiry.Instrument{{ID: "X"}}, nil
		}).
		WithExpiriesFunc(func(ctx context.Context, index string) ([]string, error) {
			return nil, nil
		})

	result, err := p.ResolveExpiries(context.Background(), "NIFTY")
	require.NoError(t, err)
	assert.True(t, result.Fabricated)
	assert.Len(t, result.All, 2)
	assert.NotEqual(t, result.ThisWeek, result.NextWeek)
}

func TestMemoryProviderResolveExpiriesFailsWithNoInstrumentsAndNoCatalogue(t *testing.T) {
	p := NewMemoryProvider("mem", testLogger()).
		WithExpiriesFunc(func(ctx context.Context, index string) ([]string, error) { return nil, nil })

	_, err := p.ResolveExpiries(context.Background(), "NIFTY")
	assert.ErrorIs(t, err, ErrResolveExpiry)
}

func TestMemoryProviderResolveExpiriesOrdersCatalogue(t *testing.T) {
	p := NewMemoryProvider("mem", testLogger()).
		WithExpiriesFunc(func(ctx context.Context, index string) ([]string, error) {
			return []string{"2026-08-27", "2026-08-06", "2026-08-13", "2026-09-24"}, nil
		})

	result, err := p.ResolveExpiries(context.Background(), "NIFTY")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-06", result.ThisWeek)
	assert.Equal(t, "2026-08-13", result.NextWeek)
	assert.Equal(t, "2026-09-24", result.NextMonth)
}

func TestMemoryProviderGetQuotesEmptyReturnsNoQuotesError(t *testing.T) {
	p := NewMemoryProvider("mem", testLogger()).WithQuotesFunc(func(ctx context.Context, ids []string) (map[string]Quote, error) {
		return map[string]Quote{}, nil
	})

	_, err := p.GetQuotes(context.Background(), []string{"X"})
	assert.ErrorIs(t, err, ErrNoQuotes)
}

func TestMemoryProviderGetLTPFiltersNonPositivePrices(t *testing.T) {
	p := NewMemoryProvider("mem", testLogger()).WithQuotesFunc(func(ctx context.Context, ids []string) (map[string]Quote, error) {
		return map[string]Quote{
			"A": {LastPrice: 120.5},
			"B": {LastPrice: 0},
			"C": {LastPrice: -1},
		}, nil
	})

	ltp, err := p.GetLTP(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"A": 120.5}, ltp)
}

func TestMemoryProviderQuoteFetchFailureIsProviderTransient(t *testing.T) {
	boom := errors.New("boom")
	p := NewMemoryProvider("mem", testLogger()).WithQuotesFunc(func(ctx context.Context, ids []string) (map[string]Quote, error) {
		return nil, boom
	})

	_, err := p.GetQuotes(context.Background(), []string{"A"})
	assert.ErrorIs(t, err, ErrProviderTransient)
}

func TestMemoryProviderHealthDegradesWhenBreakerOpen(t *testing.T) {
	boom := errors.New("boom")
	p := NewMemoryProvider("mem", testLogger()).WithQuotesFunc(func(ctx context.Context, ids []string) (map[string]Quote, error) {
		return nil, boom
	})

	for i := 0; i < 5; i++ {
		_, _ = p.GetQuotes(context.Background(), []string{"A"})
	}

	health := p.Health(context.Background())
	assert.Equal(t, Degraded, health.Status)
}

func TestATMStepUsesWideStepAboveThreshold(t *testing.T) {
	assert.Equal(t, 100.0, ATMStep(24000, 0))
	assert.Equal(t, 50.0, ATMStep(18000, 0))
	assert.Equal(t, 25.0, ATMStep(18000, 25))
}

func TestRoundToStepRoundsToNearestMultiple(t *testing.T) {
	assert.Equal(t, 24050.0, RoundToStep(24032, 50))
	assert.Equal(t, 24000.0, RoundToStep(24010, 50))
}
