package pipeline

import (
	"context"
	"time"

	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/logging"
	"github.com/ayushrajani07/g6-collector/internal/metrics"
	"github.com/ayushrajani07/g6-collector/internal/provider"
)

// Phase is one named step of the pipeline (spec.md §4.4). Run must be
// internally idempotent with respect to already-set ExpiryState
// fields, since the executor may re-invoke it under retry.
type Phase struct {
	Name string
	Run  func(rc *RunContext, state *expiry.ExpiryState) error
}

// RunContext is the per-cycle context threaded into every phase: a
// clock, the provider handle, settings, metrics, and logger, per
// spec.md §4.3's "execution contract per phase".
type RunContext struct {
	Ctx      context.Context
	Provider provider.Facade
	Settings Settings
	Metrics  *metrics.Handles
	Log      *logging.Logger
	Now      func() time.Time
}

// Settings is the subset of configuration the phase library and
// executor consult, decoupled from internal/config so phases/tests
// don't need the full Config struct.
type Settings struct {
	Retry RetryPolicy

	StrikesITM, StrikesOTM int
	MinVolume              int
	MinOpenInterest        int
	VolumePercentileFilter float64
	MinStrikeCoverage      float64
	SalvageEnabled         bool
	LegacySymbolMatching   bool

	GreeksEnabled   bool
	EstimateIV      bool
	RiskFreeRate    float64
	IVMin, IVMax    float64
	IVMaxIterations int
	IVPrecision     float64
	FallbackIV      float64

	AllowFabricatedThroughValidate bool

	PhaseMetricsEnabled bool
}

// Executor drives an ordered phase list over one ExpiryState.
type Executor struct{}

// NewExecutor builds an Executor. The executor itself is stateless;
// all policy lives in RunContext.Settings so it is safe to share
// across concurrent workers.
func NewExecutor() *Executor { return &Executor{} }

// Run executes phases in order over state, honoring the retry policy
// and recording metrics/structured errors, and returns the per-cycle
// summary (spec.md §4.3's "pipeline_summary" fields).
func (e *Executor) Run(rc *RunContext, state *expiry.ExpiryState, phases []Phase) Summary {
	sum := Summary{ErrorOutcomes: map[string]int{}}
	retryEnabled := rc.Settings.Retry.Enabled
	sum.RetryEnabled = retryEnabled

	for _, phase := range phases {
		sum.PhasesTotal++
		if rc.Ctx.Err() != nil {
			// Cancellation between phases maps to an abort outcome
			// without consuming a phase slot beyond this one.
			e.recordError(rc, state, phase.Name, expiry.ClassAbort, OutcomeAbort, expiry.NewAbort("cycle_cancelled"), 1)
			e.recordOutcome(rc, state, phase.Name, OutcomeAbort, "cycle_cancelled", 1, 0)
			sum.PhasesError++
			sum.ErrorOutcomes[string(OutcomeAbort)]++
			sum.AbortedEarly = true
			break
		}

		outcome, retried := e.runPhaseWithRetry(rc, state, phase)
		if retried {
			sum.PhasesWithRetries++
		}

		switch outcome {
		case OutcomeOK:
			sum.PhasesOK++
		default:
			sum.PhasesError++
			sum.ErrorOutcomes[string(outcome)]++
			if outcome == OutcomeAbort {
				sum.AbortedEarly = true
			}
			if outcome == OutcomeFatal || outcome == OutcomeUnknown {
				sum.Fatal = true
			}
			if outcome == OutcomeRecoverableExhausted {
				sum.RecoverableExhausted = true
			}
		}

		if stopsPipeline(outcome) {
			break
		}
	}

	if rc.Metrics != nil {
		rc.Metrics.CycleSuccess.Set(boolFloat(!sum.Fatal && !sum.AbortedEarly && sum.PhasesError == 0))
		if sum.PhasesTotal > 0 {
			rc.Metrics.CycleErrorRatio.Set(float64(sum.PhasesError) / float64(sum.PhasesTotal))
		} else {
			rc.Metrics.CycleErrorRatio.Set(0)
		}
	}

	state.Meta["pipeline_summary"] = sum
	return sum
}

// runPhaseWithRetry runs one phase to its final outcome, retrying
// while the outcome classifies as recoverable and attempts remain.
func (e *Executor) runPhaseWithRetry(rc *RunContext, state *expiry.ExpiryState, phase Phase) (Outcome, bool) {
	maxAttempts := rc.Settings.Retry.maxAttempts()
	var lastErr error
	var totalDuration time.Duration
	attempt := 0

	for attempt = 1; attempt <= maxAttempts; attempt++ {
		if rc.Metrics != nil && rc.Settings.PhaseMetricsEnabled {
			rc.Metrics.PhaseAttemptsTotal.WithLabelValues(phase.Name).Inc()
			if attempt > 1 {
				rc.Metrics.PhaseRetriesTotal.WithLabelValues(phase.Name).Inc()
			}
		}

		start := rc.Now()
		lastErr = phase.Run(rc, state)
		totalDuration += rc.Now().Sub(start)

		exhausted := attempt >= maxAttempts
		outcome, class := classify(lastErr, exhausted)

		if outcome == OutcomeOK {
			e.recordOutcome(rc, state, phase.Name, outcome, "", attempt, totalDuration)
			return outcome, attempt > 1
		}

		if !retryable(lastErr) || exhausted {
			e.recordError(rc, state, phase.Name, class, outcome, lastErr, attempt)
			e.recordOutcome(rc, state, phase.Name, outcome, "", attempt, totalDuration)
			return outcome, attempt > 1
		}

		// Recoverable and attempts remain: sleep with backoff, check
		// cancellation at the sleep boundary (spec.md §5).
		backoff := rc.Settings.Retry.Backoff(attempt)
		if rc.Metrics != nil {
			rc.Metrics.PhaseRetryBackoffSecs.WithLabelValues(phase.Name).Observe(backoff.Seconds())
		}
		select {
		case <-rc.Ctx.Done():
			e.recordError(rc, state, phase.Name, expiry.ClassAbort, OutcomeAbort, expiry.NewAbort("cycle_cancelled"), attempt)
			e.recordOutcome(rc, state, phase.Name, OutcomeAbort, "", attempt, totalDuration)
			return OutcomeAbort, attempt > 1
		case <-time.After(backoff):
		}
	}

	// Unreachable in practice (loop always returns), but keeps the
	// compiler satisfied about a terminal value.
	outcome, _ := classify(lastErr, true)
	return outcome, attempt > 1
}

// recordError appends the legacy token and structured error record in
// lockstep, preserving invariant I6.
func (e *Executor) recordError(rc *RunContext, state *expiry.ExpiryState, phaseName string, class expiry.Classification, outcome Outcome, err error, attempt int) {
	token := string(class) + ":" + phaseName
	if reason := reasonOf(err); reason != "" {
		token += ":" + reason
	}
	rec := expiry.PhaseErrorRecord{
		Phase:          phaseName,
		Classification: class,
		Message:        err.Error(),
		Detail:         reasonOf(err),
		Attempt:        attempt,
		TimestampSec:   rc.Now().Unix(),
		OutcomeToken:   token,
	}
	if class == expiry.ClassUnknown || class == expiry.ClassFatal {
		rec.Extra = map[string]interface{}{"trace": truncate(err.Error(), 200)}
	}
	state.AppendError(rec)
}

func (e *Executor) recordOutcome(rc *RunContext, state *expiry.ExpiryState, phaseName string, outcome Outcome, _ string, attempts int, duration time.Duration) {
	if rc.Metrics == nil || !rc.Settings.PhaseMetricsEnabled {
		return
	}
	rc.Metrics.PhaseOutcomesTotal.WithLabelValues(phaseName, string(outcome)).Inc()
	rc.Metrics.PhaseRunsTotal.WithLabelValues(phaseName, string(outcome)).Inc()
	rc.Metrics.PhaseDurationMsTotal.WithLabelValues(phaseName, string(outcome)).Add(float64(duration.Milliseconds()))
	rc.Metrics.PhaseDurationSeconds.WithLabelValues(phaseName, string(outcome)).Observe(duration.Seconds())
	rc.Metrics.PhaseLastAttempts.WithLabelValues(phaseName).Set(float64(attempts))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
