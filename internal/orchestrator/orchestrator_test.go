package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayushrajani07/g6-collector/internal/config"
	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/logging"
	"github.com/ayushrajani07/g6-collector/internal/metrics"
	"github.com/ayushrajani07/g6-collector/internal/provider"
	"github.com/ayushrajani07/g6-collector/internal/sinks"
)

func testLogger() *logging.Logger {
	return logging.New("orchestrator_test", logging.Config{Level: "error", Format: "text"})
}

func testHandles(t *testing.T) *metrics.Handles {
	t.Helper()
	reg := metrics.NewRegistry(metrics.GateConfig{}, nil)
	return metrics.Build(reg)
}

func singleIndexProvider() provider.Facade {
	expiryDate := time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")
	instruments := []expiry.Instrument{
		{ID: "NIFTY-100-CE", Strike: 100, OptionType: expiry.Call, Symbol: "NIFTY"},
		{ID: "NIFTY-100-PE", Strike: 100, OptionType: expiry.Put, Symbol: "NIFTY"},
	}
	return provider.NewMemoryProvider("mem", logging.New("t", logging.Config{Level: "error"})).
		WithExpiriesFunc(func(ctx context.Context, index string) ([]string, error) { return []string{expiryDate}, nil }).
		WithInstrumentsFunc(func(ctx context.Context, exchange string) ([]expiry.Instrument, error) { return instruments, nil }).
		WithQuotesFunc(func(ctx context.Context, ids []string) (map[string]provider.Quote, error) {
			prices := map[string]float64{"NIFTY-100-CE": 10, "NIFTY-100-PE": 12, "NIFTY": 100}
			out := make(map[string]provider.Quote, len(ids))
			for _, id := range ids {
				out[id] = provider.Quote{LastPrice: prices[id], Bid: prices[id] - 0.5, Ask: prices[id] + 0.5, Volume: 10, OpenInterest: 100, TimestampSec: time.Now().Unix()}
			}
			return out, nil
		})
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.IndexParams = map[string]config.IndexParams{
		"NIFTY": {Expiries: []config.ExpiryRule{config.RuleThisWeek}, Enable: true},
	}
	cfg.MaxWorkers = 2
	cfg.Collection.IntervalSeconds = 60
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.CycleDeadline = 5 * time.Second
	return cfg
}

func TestProcessIndexCollectsOverviewAndPersistsRows(t *testing.T) {
	dir := t.TempDir()
	optSink, err := sinks.NewCSVSink(filepath.Join(dir, "options.csv"))
	require.NoError(t, err)
	ovSink, err := sinks.NewCSVOverviewSink(filepath.Join(dir, "overview.csv"))
	require.NoError(t, err)

	cfg := testConfig()
	o := New(cfg, singleIndexProvider(), testHandles(t), testLogger(), optSink, ovSink)

	result := o.runCycle(context.Background(), time.Now())
	require.Len(t, result.Indices, 1)
	ir := result.Indices[0]
	assert.False(t, ir.Failed)
	assert.Equal(t, "NIFTY", ir.Index)
	assert.Equal(t, 1, ir.Overview.ExpiriesExpected)
	assert.Equal(t, 1, ir.Overview.ExpiriesCollected)
	assert.Equal(t, ir.Overview.ExpectedMask, ir.Overview.CollectedMask)
	require.Len(t, ir.States, 1)
	assert.True(t, ir.States[0].Flags.Persisted)

	require.NoError(t, optSink.Close())
	require.NoError(t, ovSink.Close())
	data, err := os.ReadFile(filepath.Join(dir, "options.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "NIFTY")
}

func TestProcessIndexSafelyRecoversFromPanic(t *testing.T) {
	cfg := testConfig()
	badProvider := provider.NewMemoryProvider("bad", logging.New("t", logging.Config{Level: "error"})).
		WithInstrumentsFunc(func(ctx context.Context, exchange string) ([]expiry.Instrument, error) {
			panic("boom")
		})
	o := New(cfg, badProvider, testHandles(t), testLogger(), nil, nil)

	result := o.processIndexSafely(context.Background(), "NIFTY", cfg.IndexParams["NIFTY"])
	assert.True(t, result.Failed)
	assert.Contains(t, result.Reason, "panic")
}

func TestStartStopIsIdempotentAndFlushesSinks(t *testing.T) {
	dir := t.TempDir()
	optSink, err := sinks.NewCSVSink(filepath.Join(dir, "options.csv"))
	require.NoError(t, err)
	ovSink, err := sinks.NewCSVOverviewSink(filepath.Join(dir, "overview.csv"))
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Collection.IntervalSeconds = 3600
	o := New(cfg, singleIndexProvider(), testHandles(t), testLogger(), optSink, ovSink)

	ctx := context.Background()
	require.NoError(t, o.Start(ctx))
	require.NoError(t, o.Start(ctx)) // idempotent

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, o.Stop(stopCtx))
	require.NoError(t, o.Stop(stopCtx)) // idempotent
}

func TestClockOracleGatesOutsideWindow(t *testing.T) {
	oracle := NewClockOracle(config.MarketHoursConfig{Zone: "UTC", OpenTime: "09:15", CloseTime: "15:30"})
	loc, _ := time.LoadLocation("UTC")
	open := time.Date(2026, 7, 30, 10, 0, 0, 0, loc) // Thursday
	closed := time.Date(2026, 7, 30, 20, 0, 0, 0, loc)
	weekend := time.Date(2026, 8, 1, 10, 0, 0, 0, loc) // Saturday

	assert.True(t, oracle.IsOpen(open))
	assert.False(t, oracle.IsOpen(closed))
	assert.False(t, oracle.IsOpen(weekend))
}

func TestClockOracleOverrideAlwaysOpen(t *testing.T) {
	oracle := NewClockOracle(config.MarketHoursConfig{Zone: "UTC", OpenTime: "09:15", CloseTime: "15:30", Override: true})
	assert.True(t, oracle.IsOpen(time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC)))
}

func TestDayWidthSpansEarliestToLatestResolvedExpiry(t *testing.T) {
	a := expiry.New("NIFTY", expiry.ThisWeek)
	a.HasExpiry = true
	a.ExpiryDate = "2026-08-06"
	b := expiry.New("NIFTY", expiry.NextMonth)
	b.HasExpiry = true
	b.ExpiryDate = "2026-09-24"

	width := dayWidth([]*expiry.ExpiryState{a, b})
	assert.Equal(t, int64(49*24*3600), width)
}

func TestBuildSummaryMasksCredentialsAndHashesDeterministically(t *testing.T) {
	s1 := BuildSummary("provider", map[string]interface{}{"name": "mem", "api_key": "super-secret"})
	s2 := BuildSummary("provider", map[string]interface{}{"api_key": "super-secret", "name": "mem"})
	assert.Equal(t, "***", s1.Fields["api_key"])
	assert.Equal(t, s1.Hash, s2.Hash, "field insertion order must not affect the hash")

	composite1 := CompositeHash([]StartupSummary{s1})
	composite2 := CompositeHash([]StartupSummary{s2})
	assert.Equal(t, composite1, composite2)
}
