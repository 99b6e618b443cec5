package metrics

import "github.com/prometheus/client_golang/prometheus"

// Handles holds opaque, pre-resolved metric handles for every hot-path
// metric. Hot paths hold a *Handles and call .WithLabelValues(...) /
// .Inc() directly; no string lookup ever happens after Build returns,
// per spec.md §9's redesign guidance.
type Handles struct {
	PhaseAttemptsTotal     *prometheus.CounterVec
	PhaseRetriesTotal      *prometheus.CounterVec
	PhaseOutcomesTotal     *prometheus.CounterVec
	PhaseRunsTotal         *prometheus.CounterVec
	PhaseDurationMsTotal   *prometheus.CounterVec
	PhaseDurationSeconds   *prometheus.HistogramVec
	PhaseRetryBackoffSecs  *prometheus.HistogramVec
	PhaseLastAttempts      *prometheus.GaugeVec

	CycleSuccess           prometheus.Gauge
	CycleErrorRatio        prometheus.Gauge
	CyclesTotal            prometheus.Counter
	CyclesSuccessTotal     prometheus.Counter
	CycleSuccessRateWindow prometheus.Gauge
	CycleErrorRateWindow   prometheus.Gauge
	CycleDurationSeconds   prometheus.Histogram
	CycleSkippedTotal      prometheus.Counter
	CycleTimeoutTotal      prometheus.Counter
	HeartbeatTimestamp     prometheus.Gauge
	IndexSuccessTotal      *prometheus.CounterVec
	IndexFailTotal         *prometheus.CounterVec

	TrendsSuccessRate prometheus.Gauge
	TrendsCycles      prometheus.Gauge

	IVEstimationFailureTotal    *prometheus.CounterVec
	IVEstimationSuccessTotal    prometheus.Counter
	IVEstimationAvgIterations   prometheus.Gauge

	PipelineIndexFatalTotal *prometheus.CounterVec

	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	CacheSize        *prometheus.GaugeVec
	CacheHitRatio    *prometheus.GaugeVec

	CardinalityGuardOffendersTotal prometheus.Gauge
	CardinalityGuardGrowthPercent  *prometheus.GaugeVec

	BatcherQueueDepth         prometheus.Gauge
	BatcherFlushDurationSecs  prometheus.Histogram
	BatcherFlushIncrements    prometheus.Gauge
	BatcherAdaptiveTarget     prometheus.Gauge
	BatcherBackpressureTotal  prometheus.Counter
	BatcherShedTotal          prometheus.Counter

	ParityScore              *prometheus.GaugeVec
	ParityOkRatio            prometheus.Gauge
	ParityHashChurnRatio     prometheus.Gauge
	ShadowGatingDecisionInfo *prometheus.GaugeVec
	AlertParityAnomalyTotal  prometheus.Counter

	PanelWriteTotal            *prometheus.CounterVec
	PanelIntegrityOK           prometheus.Gauge
	PanelIntegrityMismatch     prometheus.Counter

	ProviderHealth           *prometheus.GaugeVec
	ProviderAuthFailureTotal *prometheus.CounterVec
}

// Build registers the full catalogue against reg and resolves typed
// handles. Each spec is registered exactly once (idempotent under
// retry); disabled metrics still get a live (but unexported) handle so
// call sites never need a nil check.
func Build(reg *Registry) *Handles {
	specs := ByName()
	h := &Handles{}

	counterVec := func(name string) *prometheus.CounterVec {
		s := specs[name]
		c, _ := reg.register(s, func() prometheus.Collector {
			return prometheus.NewCounterVec(prometheus.CounterOpts{Name: s.Name, Help: s.Help}, s.Labels)
		})
		return c.(*prometheus.CounterVec)
	}
	counter := func(name string) prometheus.Counter {
		s := specs[name]
		c, _ := reg.register(s, func() prometheus.Collector {
			return prometheus.NewCounter(prometheus.CounterOpts{Name: s.Name, Help: s.Help})
		})
		return c.(prometheus.Counter)
	}
	gaugeVec := func(name string) *prometheus.GaugeVec {
		s := specs[name]
		c, _ := reg.register(s, func() prometheus.Collector {
			return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: s.Name, Help: s.Help}, s.Labels)
		})
		return c.(*prometheus.GaugeVec)
	}
	gauge := func(name string) prometheus.Gauge {
		s := specs[name]
		c, _ := reg.register(s, func() prometheus.Collector {
			return prometheus.NewGauge(prometheus.GaugeOpts{Name: s.Name, Help: s.Help})
		})
		return c.(prometheus.Gauge)
	}
	histogramVec := func(name string) *prometheus.HistogramVec {
		s := specs[name]
		c, _ := reg.register(s, func() prometheus.Collector {
			return prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: s.Name, Help: s.Help, Buckets: s.Buckets}, s.Labels)
		})
		return c.(*prometheus.HistogramVec)
	}
	histogram := func(name string) prometheus.Histogram {
		s := specs[name]
		c, _ := reg.register(s, func() prometheus.Collector {
			return prometheus.NewHistogram(prometheus.HistogramOpts{Name: s.Name, Help: s.Help, Buckets: s.Buckets})
		})
		return c.(prometheus.Histogram)
	}

	h.PhaseAttemptsTotal = counterVec("g6_phase_attempts_total")
	h.PhaseRetriesTotal = counterVec("g6_phase_retries_total")
	h.PhaseOutcomesTotal = counterVec("g6_phase_outcomes_total")
	h.PhaseRunsTotal = counterVec("g6_phase_runs_total")
	h.PhaseDurationMsTotal = counterVec("g6_phase_duration_ms_total")
	h.PhaseDurationSeconds = histogramVec("g6_phase_duration_seconds")
	h.PhaseRetryBackoffSecs = histogramVec("g6_phase_retry_backoff_seconds")
	h.PhaseLastAttempts = gaugeVec("g6_phase_last_attempts")

	h.CycleSuccess = gauge("g6_cycle_success")
	h.CycleErrorRatio = gauge("g6_cycle_error_ratio")
	h.CyclesTotal = counter("g6_cycles_total")
	h.CyclesSuccessTotal = counter("g6_cycles_success_total")
	h.CycleSuccessRateWindow = gauge("g6_cycle_success_rate_window")
	h.CycleErrorRateWindow = gauge("g6_cycle_error_rate_window")
	h.CycleDurationSeconds = histogram("g6_cycle_duration_seconds")
	h.CycleSkippedTotal = counter("g6_cycle_skipped_total")
	h.CycleTimeoutTotal = counter("g6_cycle_timeout_total")
	h.HeartbeatTimestamp = gauge("g6_heartbeat_timestamp_seconds")
	h.IndexSuccessTotal = counterVec("g6_index_success_total")
	h.IndexFailTotal = counterVec("g6_index_fail_total")

	h.TrendsSuccessRate = gauge("g6_trends_success_rate")
	h.TrendsCycles = gauge("g6_trends_cycles")

	h.IVEstimationFailureTotal = counterVec("g6_iv_estimation_failure_total")
	h.IVEstimationSuccessTotal = counter("g6_iv_estimation_success_total")
	h.IVEstimationAvgIterations = gauge("g6_iv_estimation_avg_iterations")

	h.PipelineIndexFatalTotal = counterVec("g6_pipeline_index_fatal_total")

	h.CacheHitsTotal = counterVec("g6_cache_hits_total")
	h.CacheMissesTotal = counterVec("g6_cache_misses_total")
	h.CacheSize = gaugeVec("g6_cache_size")
	h.CacheHitRatio = gaugeVec("g6_cache_hit_ratio")

	h.CardinalityGuardOffendersTotal = gauge("g6_cardinality_guard_offenders_total")
	h.CardinalityGuardGrowthPercent = gaugeVec("g6_cardinality_guard_growth_percent")

	h.BatcherQueueDepth = gauge("g6_batcher_queue_depth")
	h.BatcherFlushDurationSecs = histogram("g6_batcher_flush_duration_seconds")
	h.BatcherFlushIncrements = gauge("g6_batcher_flush_increments")
	h.BatcherAdaptiveTarget = gauge("g6_batcher_adaptive_target")
	h.BatcherBackpressureTotal = counter("g6_batcher_backpressure_total")
	h.BatcherShedTotal = counter("g6_batcher_shed_total")

	h.ParityScore = gaugeVec("g6_parity_score")
	h.ParityOkRatio = gauge("g6_parity_ok_ratio")
	h.ParityHashChurnRatio = gauge("g6_parity_hash_churn_ratio")
	h.ShadowGatingDecisionInfo = gaugeVec("g6_shadow_gating_decision_info")
	h.AlertParityAnomalyTotal = counter("g6_alert_parity_anomaly_total")

	h.PanelWriteTotal = counterVec("g6_panel_write_total")
	h.PanelIntegrityOK = gauge("g6_panel_integrity_ok")
	h.PanelIntegrityMismatch = counter("g6_panel_integrity_mismatch_total")

	h.ProviderHealth = gaugeVec("g6_provider_health")
	h.ProviderAuthFailureTotal = counterVec("g6_provider_auth_failure_total")

	return h
}
