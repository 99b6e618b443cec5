package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/logging"
	"github.com/ayushrajani07/g6-collector/internal/metrics"
)

func newRunContext(t *testing.T, settings Settings) *RunContext {
	t.Helper()
	reg := metrics.NewRegistry(metrics.GateConfig{}, nil)
	h := metrics.Build(reg)
	return &RunContext{
		Ctx:      context.Background(),
		Settings: settings,
		Metrics:  h,
		Log:      logging.New("pipeline_test", logging.Config{Level: "error", Format: "text"}),
		Now:      time.Now,
	}
}

func TestAbortStopsRemainingPhasesAndCountsAsErrorNotFatal(t *testing.T) {
	rc := newRunContext(t, Settings{})
	state := expiry.New("NIFTY", expiry.ThisWeek)

	ran := false
	phases := []Phase{
		{Name: "resolve", Run: func(_ *RunContext, _ *expiry.ExpiryState) error { return expiry.NewAbort("expiry_unresolved") }},
		{Name: "fetch", Run: func(_ *RunContext, _ *expiry.ExpiryState) error { ran = true; return nil }},
	}

	sum := NewExecutor().Run(rc, state, phases)
	assert.False(t, ran, "fetch must not run after resolve aborts")
	assert.True(t, sum.AbortedEarly)
	assert.False(t, sum.Fatal)
	assert.Equal(t, 1, sum.PhasesTotal)
	assert.Equal(t, 1, sum.PhasesError)
	require.Len(t, state.Errors, 1)
	assert.Equal(t, "abort:resolve:expiry_unresolved", state.Errors[0])
	assert.True(t, state.ErrorsConsistent())
}

func TestRecoverableRetriesThenSucceeds(t *testing.T) {
	rc := newRunContext(t, Settings{Retry: RetryPolicy{Enabled: true, MaxAttempts: 3, BaseMs: 10, JitterMs: 0}})
	state := expiry.New("NIFTY", expiry.ThisWeek)

	calls := 0
	phases := []Phase{
		{Name: "fetch", Run: func(_ *RunContext, _ *expiry.ExpiryState) error {
			calls++
			if calls == 1 {
				return expiry.NewRecoverable("no_instruments_domain")
			}
			return nil
		}},
	}

	sum := NewExecutor().Run(rc, state, phases)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, sum.PhasesWithRetries)
	assert.Equal(t, 1, sum.PhasesOK)
	assert.Equal(t, 0, sum.PhasesError)
	assert.Empty(t, state.Errors, "success path adds no token even after a retried attempt")
}

func TestRecoverableExhaustedAfterMaxAttempts(t *testing.T) {
	rc := newRunContext(t, Settings{Retry: RetryPolicy{Enabled: true, MaxAttempts: 2, BaseMs: 5, JitterMs: 0}})
	state := expiry.New("NIFTY", expiry.ThisWeek)

	calls := 0
	phases := []Phase{
		{Name: "fetch", Run: func(_ *RunContext, _ *expiry.ExpiryState) error {
			calls++
			return expiry.NewRecoverable("no_instruments_domain")
		}},
	}

	sum := NewExecutor().Run(rc, state, phases)
	assert.Equal(t, 2, calls)
	assert.True(t, sum.RecoverableExhausted)
	require.Len(t, state.Errors, 1)
	assert.Equal(t, "recoverable_exhausted:fetch:no_instruments_domain", state.Errors[0])
}

func TestFatalMarksSummaryFatalAndStopsPipeline(t *testing.T) {
	rc := newRunContext(t, Settings{})
	state := expiry.New("NIFTY", expiry.ThisWeek)

	ran := false
	phases := []Phase{
		{Name: "persist", Run: func(_ *RunContext, _ *expiry.ExpiryState) error { return expiry.NewFatal("persist_sink") }},
		{Name: "classify", Run: func(_ *RunContext, _ *expiry.ExpiryState) error { ran = true; return nil }},
	}

	sum := NewExecutor().Run(rc, state, phases)
	assert.True(t, sum.Fatal)
	assert.False(t, ran)
}

func TestRetryMaxAttemptsOneEquivalentToDisabled(t *testing.T) {
	rc := newRunContext(t, Settings{Retry: RetryPolicy{Enabled: true, MaxAttempts: 1, BaseMs: 5}})
	state := expiry.New("NIFTY", expiry.ThisWeek)

	calls := 0
	phases := []Phase{
		{Name: "fetch", Run: func(_ *RunContext, _ *expiry.ExpiryState) error {
			calls++
			return expiry.NewRecoverable("no_instruments")
		}},
	}

	NewExecutor().Run(rc, state, phases)
	assert.Equal(t, 1, calls)
}

func TestCycleSummaryIsOrderIndependentOverIdenticalOutcomeDistribution(t *testing.T) {
	rc := newRunContext(t, Settings{})
	ok := func(_ *RunContext, _ *expiry.ExpiryState) error { return nil }

	stateA := expiry.New("NIFTY", expiry.ThisWeek)
	sumA := NewExecutor().Run(rc, stateA, []Phase{{Name: "a", Run: ok}, {Name: "b", Run: ok}})

	stateB := expiry.New("NIFTY", expiry.ThisWeek)
	sumB := NewExecutor().Run(rc, stateB, []Phase{{Name: "b", Run: ok}, {Name: "a", Run: ok}})

	assert.Equal(t, sumA.PhasesOK, sumB.PhasesOK)
	assert.Equal(t, sumA.PhasesTotal, sumB.PhasesTotal)
}

func TestRollingWindowDisabledAtZeroSize(t *testing.T) {
	w := NewRollingWindow(0)
	w.Record(true)
	w.Record(false)
	success, errRate := w.Rates()
	assert.Equal(t, 0.0, success)
	assert.Equal(t, 0.0, errRate)
}

func TestRollingWindowComputesRates(t *testing.T) {
	w := NewRollingWindow(4)
	w.Record(true)
	w.Record(true)
	w.Record(false)
	w.Record(true)
	success, errRate := w.Rates()
	assert.InDelta(t, 0.75, success, 0.001)
	assert.InDelta(t, 0.25, errRate, 0.001)
}
