// Package orchestrator implements the cycle scheduler (spec.md §4.5,
// component C5). Grounded directly on
// internal/app/services/pricefeed/refresher.go and
// internal/app/services/automation/scheduler.go: a ticker-driven
// goroutine with mutex-guarded start/stop, a context.CancelFunc plus
// sync.WaitGroup for graceful shutdown, generalized from "one feed
// list" to "one bounded worker pool per index".
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayushrajani07/g6-collector/internal/config"
	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/logging"
	"github.com/ayushrajani07/g6-collector/internal/metrics"
	"github.com/ayushrajani07/g6-collector/internal/pipeline"
	"github.com/ayushrajani07/g6-collector/internal/pipeline/phases"
	"github.com/ayushrajani07/g6-collector/internal/provider"
	"github.com/ayushrajani07/g6-collector/internal/resilience"
	"github.com/ayushrajani07/g6-collector/internal/sinks"
	"github.com/ayushrajani07/g6-collector/internal/tracing"
)

// IndexResult is one index's outcome within a cycle.
type IndexResult struct {
	Index    string
	Overview *expiry.Overview
	States   []*expiry.ExpiryState
	Failed   bool
	Reason   string
}

// CycleResult is everything the panels writer and gating controller
// need after one orchestrator tick.
type CycleResult struct {
	CycleID   string
	StartedAt time.Time
	Duration  time.Duration
	Indices   []IndexResult
}

// PanelsWriter receives a completed cycle for artifact emission
// (component C7). Implemented by internal/panels; declared here so the
// orchestrator has no import-time dependency on that package.
type PanelsWriter interface {
	WriteCycle(ctx context.Context, result CycleResult) error
}

// GatingObserver receives each completed ExpiryState for shadow parity
// scoring (component C6). Implemented by internal/gating.
type GatingObserver interface {
	Observe(ctx context.Context, index string, rule expiry.Rule, state *expiry.ExpiryState)
}

// Orchestrator is the C5 scheduler: one instance owns the ticker
// goroutine, the worker pool, and the sinks it writes through.
type Orchestrator struct {
	cfg     *config.Config
	prov    provider.Facade
	metrics *metrics.Handles
	log     *logging.Logger
	oracle  Oracle
	now     func() time.Time

	optionSink   sinks.Sink
	overviewSink sinks.OverviewSink
	batcher      *metrics.Batcher
	panels       PanelsWriter
	gating       GatingObserver
	tracer       *tracing.Tracer

	rolling *pipeline.RollingWindow

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New builds an Orchestrator. oracle/panels/gating/batcher may be
// attached afterward via the With* setters; a nil oracle defaults to
// AlwaysOpen so tests don't need a market-hours fixture.
func New(cfg *config.Config, prov provider.Facade, handles *metrics.Handles, log *logging.Logger, optionSink sinks.Sink, overviewSink sinks.OverviewSink) *Orchestrator {
	if log == nil {
		log = logging.NewDefault("orchestrator")
	}
	return &Orchestrator{
		cfg:          cfg,
		prov:         prov,
		metrics:      handles,
		log:          log,
		oracle:       AlwaysOpen{},
		now:          time.Now,
		optionSink:   optionSink,
		overviewSink: overviewSink,
		rolling:      pipeline.NewRollingWindow(cfg.Pipeline.RollingWindow),
	}
}

func (o *Orchestrator) WithOracle(oracle Oracle) *Orchestrator {
	if oracle != nil {
		o.oracle = oracle
	}
	return o
}

func (o *Orchestrator) WithPanelsWriter(p PanelsWriter) *Orchestrator {
	o.panels = p
	return o
}

func (o *Orchestrator) WithGatingObserver(g GatingObserver) *Orchestrator {
	o.gating = g
	return o
}

func (o *Orchestrator) WithBatcher(b *metrics.Batcher) *Orchestrator {
	o.batcher = b
	return o
}

func (o *Orchestrator) WithTracer(t *tracing.Tracer) *Orchestrator {
	o.tracer = t
	return o
}

func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	if now != nil {
		o.now = now
	}
	return o
}

// Start begins the ticker loop. Calling Start on an already-running
// Orchestrator is a no-op, matching the teacher's idempotent Start.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true
	o.mu.Unlock()

	if o.batcher != nil {
		o.batcher.Start()
	}

	interval := time.Duration(o.cfg.Collection.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				o.tick(runCtx)
			}
		}
	}()

	o.log.Info("collector orchestrator started")
	return nil
}

// Stop requests graceful shutdown: stop accepting new cycles, wait up
// to the configured shutdown timeout for in-flight work, flush the
// batcher, then close sinks.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	cancel := o.cancel
	o.running = false
	o.cancel = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		o.wg.Wait()
	}()

	shutdownCtx := ctx
	if o.cfg.ShutdownTimeout > 0 {
		var cancelWait context.CancelFunc
		shutdownCtx, cancelWait = context.WithTimeout(ctx, o.cfg.ShutdownTimeout)
		defer cancelWait()
	}

	select {
	case <-done:
	case <-shutdownCtx.Done():
		o.log.Warn("orchestrator shutdown timed out waiting for in-flight work")
	}

	if o.batcher != nil {
		o.batcher.Stop()
	}
	if o.optionSink != nil {
		if err := o.optionSink.Close(); err != nil {
			o.log.WithError(err).Warn("option sink close failed")
		}
	}
	if o.overviewSink != nil {
		if err := o.overviewSink.Close(); err != nil {
			o.log.WithError(err).Warn("overview sink close failed")
		}
	}

	o.log.Info("collector orchestrator stopped")
	return nil
}

// tick runs at most one cycle. Heartbeat updates regardless of market
// hours so an external watchdog can detect process stall independent
// of trading-session gating (spec.md §4.5).
func (o *Orchestrator) tick(ctx context.Context) {
	now := o.now()
	if o.metrics != nil {
		o.metrics.HeartbeatTimestamp.Set(float64(now.Unix()))
	}

	if !o.oracle.IsOpen(now) {
		if o.metrics != nil {
			o.metrics.CycleSkippedTotal.Inc()
		}
		o.log.WithFields(map[string]interface{}{"event": "cycle.skipped", "reason": "market_closed"}).Info("cycle skipped")
		return
	}

	cycleCtx := ctx
	var cancel context.CancelFunc
	if o.cfg.CycleDeadline > 0 {
		cycleCtx, cancel = context.WithTimeout(ctx, o.cfg.CycleDeadline)
		defer cancel()
	}

	result := o.runCycle(cycleCtx, now)

	if cycleCtx.Err() != nil && o.metrics != nil {
		o.metrics.CycleTimeoutTotal.Inc()
		o.log.WithFields(map[string]interface{}{"event": "cycle.timeout"}).Warn("cycle exceeded deadline")
	}

	if o.overviewSink != nil {
		rows := overviewRows(result)
		if len(rows) > 0 {
			if err := o.overviewSink.WriteOverview(ctx, rows); err != nil {
				o.log.WithError(err).Warn("overview sink write failed")
			}
		}
	}

	if o.panels != nil {
		if err := o.panels.WriteCycle(ctx, result); err != nil {
			o.log.WithError(err).Warn("panels writer failed")
		}
	}
}

// runCycle dispatches one work item per enabled index to a bounded
// worker pool (spec.md §4.5 step 2) and aggregates the results.
func (o *Orchestrator) runCycle(ctx context.Context, startedAt time.Time) CycleResult {
	cycleID := uuid.NewString()
	if o.tracer != nil {
		var finish func(error)
		ctx, finish = o.tracer.StartSpan(ctx, "collector.cycle", map[string]string{"cycle_id": cycleID})
		defer finish(nil)
	}

	type work struct {
		index  string
		params config.IndexParams
	}
	var items []work
	for idx, params := range o.cfg.IndexParams {
		if params.Enable {
			items = append(items, work{index: idx, params: params})
		}
	}

	maxWorkers := o.cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if maxWorkers > len(items) && len(items) > 0 {
		maxWorkers = len(items)
	}

	results := make([]IndexResult, len(items))
	if len(items) > 0 {
		sem := make(chan struct{}, maxWorkers)
		var wg sync.WaitGroup
		for i, it := range items {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, it work) {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = o.processIndexSafely(ctx, it.index, it.params)
			}(i, it)
		}
		wg.Wait()
	}

	cycleFailed := false
	for _, r := range results {
		if r.Failed {
			cycleFailed = true
		}
	}

	duration := time.Since(startedAt)
	if o.metrics != nil {
		o.metrics.CyclesTotal.Inc()
		if !cycleFailed {
			o.metrics.CyclesSuccessTotal.Inc()
		}
		o.metrics.CycleDurationSeconds.Observe(duration.Seconds())
		o.metrics.CycleSuccess.Set(boolFloat(!cycleFailed))
	}
	if o.rolling != nil {
		o.rolling.Record(!cycleFailed)
		successRate, errRate := o.rolling.Rates()
		if o.metrics != nil {
			o.metrics.CycleSuccessRateWindow.Set(successRate)
			o.metrics.CycleErrorRateWindow.Set(errRate)
		}
	}

	return CycleResult{CycleID: cycleID, StartedAt: startedAt, Duration: duration, Indices: results}
}

// processIndexSafely isolates one index's processing: a panic here is
// caught, recorded as a structured per-index failure, and must not
// abort the cycle's other indices (spec.md §4.5 step 2).
func (o *Orchestrator) processIndexSafely(ctx context.Context, index string, params config.IndexParams) (result IndexResult) {
	defer func() {
		if r := recover(); r != nil {
			result = IndexResult{Index: index, Failed: true, Reason: fmt.Sprintf("panic: %v", r)}
			if o.metrics != nil {
				o.metrics.IndexFailTotal.WithLabelValues(index).Inc()
				o.metrics.PipelineIndexFatalTotal.WithLabelValues(index).Inc()
			}
			o.log.WithFields(map[string]interface{}{
				"event": "index.panic", "index": index, "recovered": fmt.Sprintf("%v", r),
			}).Error("index processing panicked")
		}
	}()
	return o.processIndex(ctx, index, params)
}

func (o *Orchestrator) processIndex(ctx context.Context, index string, params config.IndexParams) IndexResult {
	ov := expiry.NewOverview(index)
	states := make([]*expiry.ExpiryState, 0, len(params.Expiries))
	failed := false

	settings := o.buildSettings(params)
	persistPhase := phases.Persist(o.optionSink, resilience.DefaultSinkRetryConfig())
	ordered := phases.All(persistPhase)

	for _, cfgRule := range params.Expiries {
		rule := expiry.Rule(cfgRule)
		bit := rule.Bit()
		ov.ExpectedMask |= bit
		ov.ExpiriesExpected++

		state := expiry.New(index, rule)
		rc := &pipeline.RunContext{
			Ctx: ctx, Provider: o.prov, Settings: settings, Metrics: o.metrics, Log: o.log, Now: o.now,
		}
		summary := pipeline.NewExecutor().Run(rc, state, ordered)
		states = append(states, state)

		if o.gating != nil {
			o.gating.Observe(ctx, index, rule, state)
		}

		if summary.Fatal {
			failed = true
			if o.metrics != nil {
				o.metrics.PipelineIndexFatalTotal.WithLabelValues(index).Inc()
			}
		}
		if !summary.Fatal && !summary.AbortedEarly && state.Flags.Persisted {
			ov.CollectedMask |= bit
			ov.ExpiriesCollected++
		}
		if state.ExpiryRec.Snapshot.Version != 0 {
			ov.PCR[rule] = state.ExpiryRec.Snapshot.SyntheticPCR
			ov.PCRDefined[rule] = state.ExpiryRec.Snapshot.SyntheticPCRDefined
		}
	}

	ov.ComputeMissingMask()
	ov.DayWidthSec = dayWidth(states)

	if o.metrics != nil {
		if failed {
			o.metrics.IndexFailTotal.WithLabelValues(index).Inc()
		} else {
			o.metrics.IndexSuccessTotal.WithLabelValues(index).Inc()
		}
	}

	return IndexResult{Index: index, Overview: ov, States: states, Failed: failed}
}

// buildSettings projects the process-wide Config down to the narrow
// pipeline.Settings the executor/phases consult, per index strike
// ladder depth.
func (o *Orchestrator) buildSettings(params config.IndexParams) pipeline.Settings {
	cfg := o.cfg
	return pipeline.Settings{
		Retry: pipeline.RetryPolicy{
			Enabled:     cfg.Pipeline.RetryEnabled,
			MaxAttempts: cfg.Pipeline.RetryMaxAttempts,
			BaseMs:      cfg.Pipeline.RetryBaseMs,
			JitterMs:    cfg.Pipeline.RetryJitterMs,
		},
		StrikesITM:                     params.StrikesITM,
		StrikesOTM:                     params.StrikesOTM,
		MinVolume:                      cfg.Pipeline.MinVolume,
		MinOpenInterest:                cfg.Pipeline.MinOpenInterest,
		VolumePercentileFilter:         cfg.Pipeline.VolumePercentileFilter,
		MinStrikeCoverage:              cfg.Pipeline.MinStrikeCoverage,
		SalvageEnabled:                 cfg.Pipeline.SalvageEnabled,
		LegacySymbolMatching:           cfg.Pipeline.LegacySymbolMatching,
		GreeksEnabled:                  cfg.Greeks.Enabled,
		EstimateIV:                     cfg.Greeks.EstimateIV,
		RiskFreeRate:                   cfg.Greeks.RiskFreeRate,
		IVMin:                          cfg.Greeks.IVMin,
		IVMax:                          cfg.Greeks.IVMax,
		IVMaxIterations:                cfg.Greeks.IVMaxIterations,
		IVPrecision:                    cfg.Greeks.IVPrecision,
		FallbackIV:                     cfg.Greeks.FallbackIV,
		AllowFabricatedThroughValidate: cfg.Pipeline.AllowFabricatedThroughValidate,
		PhaseMetricsEnabled:            cfg.Pipeline.PhaseMetricsEnabled,
	}
}

// dayWidth is the calendar span, in seconds, covered by the resolved
// expiry dates in one index's cycle (e.g. the distance between
// this_week and next_month). Not pinned by spec.md beyond the field
// name; this is a documented judgment call (see DESIGN.md).
func dayWidth(states []*expiry.ExpiryState) int64 {
	var earliest, latest time.Time
	have := false
	for _, s := range states {
		if !s.HasExpiry || s.ExpiryDate == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", s.ExpiryDate)
		if err != nil {
			continue
		}
		if !have {
			earliest, latest = t, t
			have = true
			continue
		}
		if t.Before(earliest) {
			earliest = t
		}
		if t.After(latest) {
			latest = t
		}
	}
	if !have {
		return 0
	}
	return int64(latest.Sub(earliest).Seconds())
}

func overviewRows(result CycleResult) []sinks.OverviewRow {
	var rows []sinks.OverviewRow
	generatedAt := result.StartedAt.Unix()
	for _, ir := range result.Indices {
		if ir.Overview == nil {
			continue
		}
		ov := ir.Overview
		for rule, pcr := range ov.PCR {
			rows = append(rows, sinks.OverviewRow{
				GeneratedAtSec:    generatedAt,
				Index:             ov.Index,
				Rule:              string(rule),
				PCR:               pcr,
				PCRDefined:        ov.PCRDefined[rule],
				ExpiriesExpected:  ov.ExpiriesExpected,
				ExpiriesCollected: ov.ExpiriesCollected,
				ExpectedMask:      ov.ExpectedMask,
				CollectedMask:     ov.CollectedMask,
				MissingMask:       ov.MissingMask,
				DayWidthSec:       ov.DayWidthSec,
			})
		}
	}
	return rows
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
