package provider

import (
	"context"
	"sort"
	"time"

	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/logging"
	"github.com/ayushrajani07/g6-collector/internal/resilience"
)

// InstrumentsFunc and QuotesFunc let tests script provider responses
// without building a network stub, mirroring the teacher's
// FetcherFunc adapter (internal/services/pricefeed/fetcher.go).
type InstrumentsFunc func(ctx context.Context, exchange string) ([]expiry.Instrument, error)
type ExpiriesFunc func(ctx context.Context, index string) ([]string, error)
type QuotesFunc func(ctx context.Context, ids []string) (map[string]Quote, error)

// MemoryProvider is the in-process reference Facade implementation:
// the spec deliberately keeps a real broker integration's internals out
// of scope (§4.1), so this is both the test double and the documented
// shape a real adapter should follow.
type MemoryProvider struct {
	name string

	instrumentsFn InstrumentsFunc
	expiriesFn    ExpiriesFunc
	quotesFn      QuotesFunc

	credentials CredentialSnapshot
	authValid   bool

	instrumentCache *TTLCache
	quoteCache      *TTLCache
	quoteTTL        time.Duration

	limiter *RateLimiter
	breaker *resilience.CircuitBreaker

	fallbackLog      *ThrottledLogger
	quoteFallbackLog *ThrottledLogger

	lastFallback bool

	// emptyInstrumentsRetried tracks, per exchange, whether the
	// one-shot immediate retry on first empty (spec.md §4.1) has
	// already been attempted, so a second consecutive empty response
	// doesn't re-trigger it (spec.md §8 boundary behavior).
	emptyInstrumentsRetried map[string]bool
}

// NewMemoryProvider builds a MemoryProvider named name, wired with a
// TTL cache, token-bucket limiter, and circuit breaker the way the
// provider facade is specified to be wired in spec.md §4.1.
func NewMemoryProvider(name string, log *logging.Logger) *MemoryProvider {
	return &MemoryProvider{
		name:                    name,
		authValid:               true,
		credentials:             CredentialSnapshot{Discovered: true, Complete: true, CreatedAt: time.Now()},
		instrumentCache:         NewTTLCache(CacheConfig{DefaultTTL: 5 * time.Minute}),
		quoteCache:              NewTTLCache(CacheConfig{DefaultTTL: 5 * time.Second}),
		quoteTTL:                5 * time.Second,
		limiter:                 NewRateLimiter(DefaultRateLimitConfig()),
		breaker:                 resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig(log)),
		fallbackLog:             NewThrottledLogger(5*time.Second, func(msg string) { log.WithField("sink", "fallback").Warn(msg) }),
		quoteFallbackLog:        NewThrottledLogger(5*time.Second, func(msg string) { log.WithField("sink", "quote_fallback").Warn(msg) }),
		emptyInstrumentsRetried: make(map[string]bool),
	}
}

// WithInstrumentsFunc / WithExpiriesFunc / WithQuotesFunc script the
// provider's responses for tests.
func (p *MemoryProvider) WithInstrumentsFunc(fn InstrumentsFunc) *MemoryProvider { p.instrumentsFn = fn; return p }
func (p *MemoryProvider) WithExpiriesFunc(fn ExpiriesFunc) *MemoryProvider       { p.expiriesFn = fn; return p }
func (p *MemoryProvider) WithQuotesFunc(fn QuotesFunc) *MemoryProvider          { p.quotesFn = fn; return p }

// SetAuthValid toggles whether calls succeed or raise ErrProviderAuth.
func (p *MemoryProvider) SetAuthValid(valid bool) *MemoryProvider { p.authValid = valid; return p }

func (p *MemoryProvider) Name() string { return p.name }

func (p *MemoryProvider) Capabilities() []Capability {
	return []Capability{CapQuotes, CapLTP, CapOptions, CapInstruments, CapExpiries}
}

// GetInstruments implements spec.md §4.1's get_instruments contract,
// including the instrument cache (short TTL override on empty) and the
// one-shot immediate retry on first empty.
func (p *MemoryProvider) GetInstruments(ctx context.Context, exchange string, forceRefresh bool) ([]expiry.Instrument, error) {
	if !p.authValid {
		return nil, ErrProviderAuth
	}
	if !forceRefresh {
		if cached, ok := p.instrumentCache.Get(exchange); ok {
			return cached.([]expiry.Instrument), nil
		}
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, ErrProviderTransient
	}

	var result []expiry.Instrument
	err := p.breaker.Execute(ctx, func() error {
		var callErr error
		if p.instrumentsFn != nil {
			result, callErr = p.instrumentsFn(ctx, exchange)
		}
		return callErr
	})
	if err != nil {
		p.fallbackLog.Warn("instrument fetch failed, serving stale/empty: " + err.Error())
		return nil, ErrProviderTransient
	}

	if len(result) == 0 {
		if !p.emptyInstrumentsRetried[exchange] {
			p.emptyInstrumentsRetried[exchange] = true
			return p.GetInstruments(ctx, exchange, true)
		}
		p.instrumentCache.Set(exchange, []expiry.Instrument{}, 15*time.Second)
		p.lastFallback = true
		return []expiry.Instrument{}, nil
	}
	p.emptyInstrumentsRetried[exchange] = false
	p.instrumentCache.Set(exchange, result, 0)
	p.lastFallback = false
	return result, nil
}

// ResolveExpiries implements spec.md §4.1's resolve_expiries contract,
// including fabrication of two near-Thursdays when the instrument
// universe is present but no expiries are extractable.
func (p *MemoryProvider) ResolveExpiries(ctx context.Context, index string) (ResolvedExpiries, error) {
	if !p.authValid {
		return ResolvedExpiries{}, ErrProviderAuth
	}
	var dates []string
	if p.expiriesFn != nil {
		var err error
		dates, err = p.expiriesFn(ctx, index)
		if err != nil {
			return ResolvedExpiries{}, ErrResolveExpiry
		}
	}
	sort.Strings(dates)

	if len(dates) == 0 {
		instruments, _ := p.GetInstruments(ctx, index, false)
		if len(instruments) > 0 {
			return fabricateNearThursdays(), nil
		}
		return ResolvedExpiries{}, ErrResolveExpiry
	}

	return ResolvedExpiries{
		All:       dates,
		ThisWeek:  dates[0],
		NextWeek:  pick(dates, 1),
		ThisMonth: pick(dates, len(dates)-2),
		NextMonth: pick(dates, len(dates)-1),
	}, nil
}

func pick(dates []string, idx int) string {
	if idx < 0 || idx >= len(dates) {
		return dates[len(dates)-1]
	}
	return dates[idx]
}

// fabricateNearThursdays synthesizes two upcoming Thursdays when the
// catalogue is empty but instruments exist, per spec.md §4.4.1/§4.1.
func fabricateNearThursdays() ResolvedExpiries {
	now := time.Now().UTC()
	first := nextWeekday(now, time.Thursday)
	second := first.AddDate(0, 0, 7)
	return ResolvedExpiries{
		All:        []string{first.Format("2006-01-02"), second.Format("2006-01-02")},
		ThisWeek:   first.Format("2006-01-02"),
		NextWeek:   second.Format("2006-01-02"),
		ThisMonth:  first.Format("2006-01-02"),
		NextMonth:  second.Format("2006-01-02"),
		Fabricated: true,
	}
}

func nextWeekday(from time.Time, target time.Weekday) time.Time {
	days := (int(target) - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, days)
}

// GetQuotes implements spec.md §4.1's get_quotes contract. Quotes are
// not cached: every call goes to the quote source.
func (p *MemoryProvider) GetQuotes(ctx context.Context, instrumentIDs []string) (map[string]Quote, error) {
	if !p.authValid {
		return nil, ErrProviderAuth
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, ErrProviderTransient
	}

	var quotes map[string]Quote
	err := p.breaker.Execute(ctx, func() error {
		var callErr error
		if p.quotesFn != nil {
			quotes, callErr = p.quotesFn(ctx, instrumentIDs)
		}
		return callErr
	})
	if err != nil {
		p.quoteFallbackLog.Warn("quote fetch failed: " + err.Error())
		return nil, ErrProviderTransient
	}
	if len(quotes) == 0 {
		return nil, ErrNoQuotes
	}
	return quotes, nil
}

// GetLTP implements spec.md §4.1's get_ltp contract: a quality guard
// rejects non-positive prices.
func (p *MemoryProvider) GetLTP(ctx context.Context, instrumentIDs []string) (map[string]float64, error) {
	quotes, err := p.GetQuotes(ctx, instrumentIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(quotes))
	for id, q := range quotes {
		if q.LastPrice > 0 {
			out[id] = q.LastPrice
		}
	}
	if len(out) == 0 {
		return nil, ErrNoQuotes
	}
	return out, nil
}

// GetATMStrike never fails, per spec.md §4.1.
func (p *MemoryProvider) GetATMStrike(ctx context.Context, index string, lastPrice float64) float64 {
	step := ATMStep(lastPrice, 0)
	return RoundToStep(lastPrice, step)
}

// Diagnostics never fails, per spec.md §4.1.
func (p *MemoryProvider) Diagnostics(ctx context.Context) Diagnostics {
	iHits, iMisses := p.instrumentCache.HitsAndMisses()
	qHits, qMisses := p.quoteCache.HitsAndMisses()
	return Diagnostics{
		CacheSizes:   map[string]int{"instruments": p.instrumentCache.Size(), "quotes": p.quoteCache.Size()},
		CacheHits:    map[string]int64{"instruments": iHits, "quotes": qHits},
		CacheMisses:  map[string]int64{"instruments": iMisses, "quotes": qMisses},
		TokenAgeSec:  int64(time.Since(p.credentials.CreatedAt).Seconds()),
		TokenTTLSec:  0,
		LastFallback: p.lastFallback,
		Health:       p.Health(context.Background()),
	}
}

// Health never fails, per spec.md §4.1.
func (p *MemoryProvider) Health(ctx context.Context) Health {
	if !p.authValid {
		return Health{Status: Unhealthy, Reason: "credentials invalid"}
	}
	if p.breaker.State() == resilience.StateOpen {
		return Health{Status: Degraded, Reason: "circuit breaker open"}
	}
	return Health{Status: Healthy}
}

// RotateCredentials replaces the credential snapshot; in-flight calls
// already holding the old snapshot (by value, not pointer) are
// unaffected, per spec.md §4.1/§5.
func (p *MemoryProvider) RotateCredentials(apiKey, accessToken, source string) {
	p.credentials = CredentialSnapshot{
		APIKey:          apiKey,
		AccessToken:     accessToken,
		DiscoverySource: source,
		CreatedAt:       time.Now(),
		Discovered:      true,
		Complete:        apiKey != "" && accessToken != "",
	}
}
