package phases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/logging"
	"github.com/ayushrajani07/g6-collector/internal/metrics"
	"github.com/ayushrajani07/g6-collector/internal/pipeline"
	"github.com/ayushrajani07/g6-collector/internal/provider"
	"github.com/ayushrajani07/g6-collector/internal/resilience"
	"github.com/ayushrajani07/g6-collector/internal/sinks"
)

type stubSink struct {
	rows []sinks.Row
	err  error
}

func (s *stubSink) Write(_ context.Context, rows []sinks.Row) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, rows...)
	return nil
}

func testRunContext(t *testing.T, p provider.Facade, settings pipeline.Settings) *pipeline.RunContext {
	t.Helper()
	reg := metrics.NewRegistry(metrics.GateConfig{}, nil)
	h := metrics.Build(reg)
	return &pipeline.RunContext{
		Ctx:      context.Background(),
		Provider: p,
		Settings: settings,
		Metrics:  h,
		Log:      logging.New("phases_test", logging.Config{Level: "error", Format: "text"}),
		Now:      time.Now,
	}
}

func happyPathProvider(t *testing.T) provider.Facade {
	t.Helper()
	expiryDate := time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")
	instruments := []expiry.Instrument{
		{ID: "NIFTY-100-CE", Strike: 100, OptionType: expiry.Call, Symbol: "NIFTY"},
		{ID: "NIFTY-200-CE", Strike: 200, OptionType: expiry.Call, Symbol: "NIFTY"},
		{ID: "NIFTY-300-CE", Strike: 300, OptionType: expiry.Call, Symbol: "NIFTY"},
	}
	return provider.NewMemoryProvider("mem", logging.New("t", logging.Config{Level: "error"})).
		WithExpiriesFunc(func(ctx context.Context, index string) ([]string, error) { return []string{expiryDate}, nil }).
		WithInstrumentsFunc(func(ctx context.Context, exchange string) ([]expiry.Instrument, error) { return instruments, nil }).
		WithQuotesFunc(func(ctx context.Context, ids []string) (map[string]provider.Quote, error) {
			prices := map[string]float64{"NIFTY-100-CE": 10, "NIFTY-200-CE": 20, "NIFTY-300-CE": 30, "NIFTY": 200}
			out := make(map[string]provider.Quote, len(ids))
			for _, id := range ids {
				out[id] = provider.Quote{LastPrice: prices[id], Bid: prices[id] - 0.5, Ask: prices[id] + 0.5, Volume: 500, OpenInterest: 1000, TimestampSec: time.Now().Unix()}
			}
			return out, nil
		})
}

func TestHappyPathThroughAllThirteenPhases(t *testing.T) {
	p := happyPathProvider(t)
	sink := &stubSink{}
	settings := pipeline.Settings{
		GreeksEnabled: true, EstimateIV: false, FallbackIV: 0.25, RiskFreeRate: 0.06,
		PhaseMetricsEnabled: true,
	}
	rc := testRunContext(t, p, settings)
	state := expiry.New("NIFTY", expiry.ThisWeek)

	persist := Persist(sink, resilience.DefaultSinkRetryConfig())
	sum := pipeline.NewExecutor().Run(rc, state, All(persist))

	assert.Equal(t, 13, sum.PhasesTotal)
	assert.Equal(t, 13, sum.PhasesOK)
	assert.Equal(t, 0, sum.PhasesError)
	assert.False(t, sum.AbortedEarly)
	assert.Empty(t, state.Errors)
	assert.True(t, state.Flags.Persisted)
	assert.Equal(t, []float64{100, 200, 300}, state.Strikes)
	assert.Len(t, state.Enriched, 3)
	assert.NotEmpty(t, sink.rows)
	for _, row := range sink.rows {
		assert.True(t, row.CE.IsSet)
		assert.True(t, row.CE.GreeksSet)
	}
}

func TestResolveAbortsWhenNoExpiryAndNoInstruments(t *testing.T) {
	p := provider.NewMemoryProvider("mem", logging.New("t", logging.Config{Level: "error"})).
		WithExpiriesFunc(func(ctx context.Context, index string) ([]string, error) { return nil, nil })
	rc := testRunContext(t, p, pipeline.Settings{})
	state := expiry.New("NIFTY", expiry.ThisWeek)

	err := Resolve.Run(rc, state)
	assert.Error(t, err)
	var abortErr *expiry.PhaseAbort
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, "expiry_unresolved", abortErr.Reason)
}

func TestFetchRecoversWhenDomainEmpty(t *testing.T) {
	p := provider.NewMemoryProvider("mem", logging.New("t", logging.Config{Level: "error"})).
		WithInstrumentsFunc(func(ctx context.Context, exchange string) ([]expiry.Instrument, error) { return nil, nil })
	rc := testRunContext(t, p, pipeline.Settings{})
	state := expiry.New("NIFTY", expiry.ThisWeek)

	err := Fetch.Run(rc, state)
	var recErr *expiry.PhaseRecoverable
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, "no_instruments_domain", recErr.Reason)
}

func TestFetchFiltersBySymbolRootAndDeduplicates(t *testing.T) {
	p := provider.NewMemoryProvider("mem", logging.New("t", logging.Config{Level: "error"})).
		WithInstrumentsFunc(func(ctx context.Context, exchange string) ([]expiry.Instrument, error) {
			return []expiry.Instrument{
				{ID: "A", Strike: 100, Symbol: "NIFTY"},
				{ID: "A", Strike: 100, Symbol: "NIFTY"},
				{ID: "B", Strike: 200, Symbol: "BANKNIFTY"},
			}, nil
		})
	rc := testRunContext(t, p, pipeline.Settings{})
	state := expiry.New("NIFTY", expiry.ThisWeek)

	require.NoError(t, Fetch.Run(rc, state))
	assert.Len(t, state.Instruments, 1)
	assert.Equal(t, "A", state.Instruments[0].ID)
}

func TestEnrichRecoverableWhenNoQuotes(t *testing.T) {
	p := provider.NewMemoryProvider("mem", logging.New("t", logging.Config{Level: "error"})).
		WithQuotesFunc(func(ctx context.Context, ids []string) (map[string]provider.Quote, error) { return map[string]provider.Quote{}, nil })
	rc := testRunContext(t, p, pipeline.Settings{})
	state := expiry.New("NIFTY", expiry.ThisWeek)
	state.Instruments = []expiry.Instrument{{ID: "A", Strike: 100}}

	err := Enrich.Run(rc, state)
	var recErr *expiry.PhaseRecoverable
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, "enrich_no_quotes_domain", recErr.Reason)
}

func TestValidateAbortsOnDuplicateInstrumentIDs(t *testing.T) {
	rc := testRunContext(t, nil, pipeline.Settings{})
	state := expiry.New("NIFTY", expiry.ThisWeek)
	state.HasExpiry = true
	state.ExpiryDate = "2026-08-06"
	state.Instruments = []expiry.Instrument{{ID: "A"}, {ID: "A"}}

	err := Validate.Run(rc, state)
	var abortErr *expiry.PhaseAbort
	require.ErrorAs(t, err, &abortErr)
}

func TestValidateRejectsFabricatedExpiryUnlessAllowed(t *testing.T) {
	rc := testRunContext(t, nil, pipeline.Settings{AllowFabricatedThroughValidate: false})
	state := expiry.New("NIFTY", expiry.ThisWeek)
	state.HasExpiry = true
	state.ExpiryDate = "2026-08-06"
	state.Flags.Fabricated = true

	err := Validate.Run(rc, state)
	assert.Error(t, err)

	rc2 := testRunContext(t, nil, pipeline.Settings{AllowFabricatedThroughValidate: true})
	state2 := expiry.New("NIFTY", expiry.ThisWeek)
	state2.HasExpiry = true
	state2.ExpiryDate = "2026-08-06"
	state2.Flags.Fabricated = true
	assert.NoError(t, Validate.Run(rc2, state2))
}

func TestCoverageComputesStrikeAndFieldCoverage(t *testing.T) {
	rc := testRunContext(t, nil, pipeline.Settings{})
	state := expiry.New("NIFTY", expiry.ThisWeek)
	state.Instruments = []expiry.Instrument{{ID: "A"}, {ID: "B"}}
	state.Enriched = map[string]expiry.Enriched{
		"A": {Bid: 10, Ask: 11, Volume: 5, IVSet: true, IV: 0.2},
	}

	require.NoError(t, Coverage.Run(rc, state))
	assert.InDelta(t, 0.5, state.ExpiryRec.Coverage.StrikeCoverageRatio, 0.001)
	assert.InDelta(t, 1.0, state.ExpiryRec.Coverage.FieldCoverage["iv"], 0.001)
}

func TestSnapshotComputesSyntheticPCR(t *testing.T) {
	rc := testRunContext(t, nil, pipeline.Settings{})
	state := expiry.New("NIFTY", expiry.ThisWeek)
	state.ExpiryDate = "2026-08-06"
	state.Instruments = []expiry.Instrument{
		{ID: "C", OptionType: expiry.Call}, {ID: "P", OptionType: expiry.Put},
	}
	state.Enriched = map[string]expiry.Enriched{
		"C": {OpenInterest: 100},
		"P": {OpenInterest: 50},
	}

	require.NoError(t, SnapshotPhase.Run(rc, state))
	assert.InDelta(t, 0.5, state.ExpiryRec.Snapshot.SyntheticPCR, 0.001)
	assert.Equal(t, 2, state.ExpiryRec.Snapshot.OptionCount)
}

func TestPersistMapsPermanentSinkFailureToFatal(t *testing.T) {
	rc := testRunContext(t, nil, pipeline.Settings{})
	state := expiry.New("NIFTY", expiry.ThisWeek)
	state.ExpiryDate = "2026-08-06"
	state.Instruments = []expiry.Instrument{{ID: "A", Strike: 100}}
	state.Enriched = map[string]expiry.Enriched{"A": {Price: 10}}

	sink := &stubSink{err: assertError("boom")}
	persist := Persist(sink, resilience.SinkRetryConfig{MaxAttempts: 1})
	err := persist.Run(rc, state)
	var fatalErr *expiry.PhaseFatal
	require.ErrorAs(t, err, &fatalErr)
	assert.Equal(t, "persist_sink", fatalErr.Reason)
}

type simpleError string

func (e simpleError) Error() string { return string(e) }
func assertError(s string) error    { return simpleError(s) }
