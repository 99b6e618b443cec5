// Package metrics implements the group-gated Prometheus registry and
// counter-batching layer of spec.md §4.2, grounded on the teacher's
// pkg/metrics (package-level vec declarations registered once against
// a dedicated registry) and infrastructure/metrics (simpler
// MustRegister + env-gated Enabled() idiom), generalized per spec.md
// §9's redesign guidance: the catalogue is declared once as data, and
// a builder resolves opaque handles at startup so hot paths never do a
// string lookup.
package metrics

// Kind is the Prometheus metric type.
type Kind int

const (
	Counter Kind = iota
	Gauge
	Histogram
)

// Group is the gating domain a metric belongs to (spec.md §4.2).
type Group string

const (
	GroupPipeline           Group = "pipeline"
	GroupCache              Group = "cache"
	GroupLifecycle          Group = "lifecycle"
	GroupPanelDiff          Group = "panel_diff"
	GroupProviderFailover   Group = "provider_failover"
	GroupExpiryRemediation  Group = "expiry_remediation"
	GroupIVEstimation       Group = "iv_estimation"
	GroupSLAHealth          Group = "sla_health"
	GroupAdaptiveController Group = "adaptive_controller"
	GroupAnalyticsVolSurf   Group = "analytics_vol_surface"
	GroupAnalyticsRiskAgg   Group = "analytics_risk_agg"
	GroupRegistry           Group = "registry"
	GroupOrchestrator       Group = "orchestrator"
	GroupGating             Group = "gating"
	GroupPanels             Group = "panels"
)

// AlwaysOn groups bypass the whitelist/blacklist filters but still
// respect their own predicates (spec.md §4.2 rule 1).
var AlwaysOn = map[Group]bool{
	GroupExpiryRemediation:  true,
	GroupProviderFailover:   true,
	GroupAdaptiveController: true,
	GroupIVEstimation:       true,
	GroupSLAHealth:          true,
}

// Spec is one catalogue entry, spec.md §3.4.
type Spec struct {
	Name              string
	Kind              Kind
	Labels            []string
	Help              string
	Group             Group
	CardinalityBudget int
	Buckets           []float64
}

// Catalogue is the full, fixed metric declaration. Every metric named
// in spec.md §4.2–§4.5 and §8 has an entry here.
var Catalogue = []Spec{
	{Name: "g6_phase_attempts_total", Kind: Counter, Labels: []string{"phase"}, Group: GroupPipeline, Help: "Attempts made per phase execution, including retries."},
	{Name: "g6_phase_retries_total", Kind: Counter, Labels: []string{"phase"}, Group: GroupPipeline, Help: "Retry attempts per phase (attempt index > 1)."},
	{Name: "g6_phase_outcomes_total", Kind: Counter, Labels: []string{"phase", "final_outcome"}, Group: GroupPipeline, Help: "Final outcome recorded exactly once per phase execution sequence.", CardinalityBudget: 200},
	{Name: "g6_phase_runs_total", Kind: Counter, Labels: []string{"phase", "final_outcome"}, Group: GroupPipeline, Help: "Phase execution sequences, by final outcome.", CardinalityBudget: 200},
	{Name: "g6_phase_duration_ms_total", Kind: Counter, Labels: []string{"phase", "final_outcome"}, Group: GroupPipeline, Help: "Total wall-clock milliseconds across all attempts of a phase."},
	{Name: "g6_phase_duration_seconds", Kind: Histogram, Labels: []string{"phase", "final_outcome"}, Group: GroupPipeline, Help: "Total wall-clock seconds across all attempts of a phase.", Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}},
	{Name: "g6_phase_retry_backoff_seconds", Kind: Histogram, Labels: []string{"phase"}, Group: GroupPipeline, Help: "Observed retry backoff sleep durations.", Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 5}},
	{Name: "g6_phase_last_attempts", Kind: Gauge, Labels: []string{"phase"}, Group: GroupPipeline, Help: "Attempts consumed by the most recent phase execution."},

	{Name: "g6_cycle_success", Kind: Gauge, Labels: nil, Group: GroupOrchestrator, Help: "1 if the most recent cycle succeeded, else 0."},
	{Name: "g6_cycle_error_ratio", Kind: Gauge, Labels: nil, Group: GroupOrchestrator, Help: "phases_error / phases_total for the most recent cycle."},
	{Name: "g6_cycles_total", Kind: Counter, Labels: nil, Group: GroupOrchestrator, Help: "Cycles attempted."},
	{Name: "g6_cycles_success_total", Kind: Counter, Labels: nil, Group: GroupOrchestrator, Help: "Cycles that completed with no fatal outcomes."},
	{Name: "g6_cycle_success_rate_window", Kind: Gauge, Labels: nil, Group: GroupOrchestrator, Help: "Success rate over the rolling cycle window."},
	{Name: "g6_cycle_error_rate_window", Kind: Gauge, Labels: nil, Group: GroupOrchestrator, Help: "Error rate over the rolling cycle window."},
	{Name: "g6_cycle_duration_seconds", Kind: Histogram, Labels: nil, Group: GroupOrchestrator, Help: "Wall-clock duration of a full cycle.", Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120}},
	{Name: "g6_cycle_skipped_total", Kind: Counter, Labels: nil, Group: GroupOrchestrator, Help: "Cycles skipped because the market-hours oracle reported closed."},
	{Name: "g6_cycle_timeout_total", Kind: Counter, Labels: nil, Group: GroupOrchestrator, Help: "Cycles cancelled by the per-cycle wall-clock deadline."},
	{Name: "g6_heartbeat_timestamp_seconds", Kind: Gauge, Labels: nil, Group: GroupOrchestrator, Help: "Unix timestamp of the last heartbeat, independent of market hours."},
	{Name: "g6_index_success_total", Kind: Counter, Labels: []string{"index"}, Group: GroupOrchestrator, Help: "Per-index cycle successes."},
	{Name: "g6_index_fail_total", Kind: Counter, Labels: []string{"index"}, Group: GroupOrchestrator, Help: "Per-index cycle failures."},

	{Name: "g6_trends_success_rate", Kind: Gauge, Labels: nil, Group: GroupPipeline, Help: "Success rate reported by the trends aggregation file."},
	{Name: "g6_trends_cycles", Kind: Gauge, Labels: nil, Group: GroupPipeline, Help: "Cycle count reported by the trends aggregation file."},

	{Name: "g6_iv_estimation_failure_total", Kind: Counter, Labels: []string{"index", "expiry"}, Group: GroupIVEstimation, Help: "IV solver divergence or bound-breach count.", CardinalityBudget: 500},
	{Name: "g6_iv_estimation_success_total", Kind: Counter, Labels: nil, Group: GroupIVEstimation, Help: "IV solver convergences."},
	{Name: "g6_iv_estimation_avg_iterations", Kind: Gauge, Labels: nil, Group: GroupIVEstimation, Help: "Average Newton-Raphson iterations to convergence, per cycle."},

	{Name: "g6_pipeline_index_fatal_total", Kind: Counter, Labels: []string{"index"}, Group: GroupPipeline, Help: "Fatal outcomes recorded for an index."},

	{Name: "g6_cache_hits_total", Kind: Counter, Labels: []string{"provider", "resource"}, Group: GroupCache, Help: "Provider cache hits."},
	{Name: "g6_cache_misses_total", Kind: Counter, Labels: []string{"provider", "resource"}, Group: GroupCache, Help: "Provider cache misses."},
	{Name: "g6_cache_size", Kind: Gauge, Labels: []string{"provider", "resource"}, Group: GroupCache, Help: "Provider cache entry count."},
	{Name: "g6_cache_hit_ratio", Kind: Gauge, Labels: []string{"provider", "resource"}, Group: GroupCache, Help: "Provider cache hit ratio over its lifetime."},

	{Name: "g6_metric_duplicates_total", Kind: Counter, Labels: []string{"name"}, Group: GroupRegistry, Help: "Duplicate registration attempts, by metric name."},
	{Name: "g6_spec_hash_info", Kind: Gauge, Labels: []string{"hash"}, Group: GroupRegistry, Help: "Static 1 labeled with the 16-hex spec content hash."},
	{Name: "g6_build_config_hash_info", Kind: Gauge, Labels: []string{"hash"}, Group: GroupRegistry, Help: "Static 1 labeled with the deployment-time configuration hash."},

	{Name: "g6_cardinality_guard_offenders_total", Kind: Gauge, Labels: nil, Group: GroupRegistry, Help: "Groups whose series count exceeds the configured growth threshold."},
	{Name: "g6_cardinality_guard_growth_percent", Kind: Gauge, Labels: []string{"group"}, Group: GroupRegistry, Help: "Per-group series count growth versus baseline."},

	{Name: "g6_batcher_queue_depth", Kind: Gauge, Labels: nil, Group: GroupRegistry, Help: "Pending increments in the counter batcher queue."},
	{Name: "g6_batcher_flush_duration_seconds", Kind: Histogram, Labels: nil, Group: GroupRegistry, Help: "Counter batcher flush duration.", Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1}},
	{Name: "g6_batcher_flush_increments", Kind: Gauge, Labels: nil, Group: GroupRegistry, Help: "Distinct increments applied in the last flush."},
	{Name: "g6_batcher_adaptive_target", Kind: Gauge, Labels: nil, Group: GroupRegistry, Help: "Current EWMA-derived adaptive batch size target."},
	{Name: "g6_batcher_backpressure_total", Kind: Counter, Labels: nil, Group: GroupRegistry, Help: "Times the batcher entered shed mode."},
	{Name: "g6_batcher_shed_total", Kind: Counter, Labels: nil, Group: GroupRegistry, Help: "Increments dropped while in shed mode."},

	{Name: "g6_parity_score", Kind: Gauge, Labels: []string{"version"}, Group: GroupGating, Help: "Current parity score (v1 or v2)."},
	{Name: "g6_parity_ok_ratio", Kind: Gauge, Labels: nil, Group: GroupGating, Help: "Fraction of rolling-window samples with parity_ok true."},
	{Name: "g6_parity_hash_churn_ratio", Kind: Gauge, Labels: nil, Group: GroupGating, Help: "distinct hashes / window size."},
	{Name: "g6_shadow_gating_decision_info", Kind: Gauge, Labels: []string{"mode", "reason"}, Group: GroupGating, Help: "Static 1 labeled with the current gating decision's mode and reason."},
	{Name: "g6_alert_parity_anomaly_total", Kind: Counter, Labels: nil, Group: GroupGating, Help: "alert_parity.anomaly events emitted."},

	{Name: "g6_panel_write_total", Kind: Counter, Labels: []string{"panel"}, Group: GroupPanels, Help: "Panel envelope writes."},
	{Name: "g6_panel_integrity_ok", Kind: Gauge, Labels: nil, Group: GroupPanels, Help: "1 if the last integrity check matched the manifest, else 0."},
	{Name: "g6_panel_integrity_mismatch_total", Kind: Counter, Labels: nil, Group: GroupPanels, Help: "Panel hash mismatches detected by the integrity monitor."},

	{Name: "g6_provider_health", Kind: Gauge, Labels: []string{"provider"}, Group: GroupProviderFailover, Help: "1=healthy, 0.5=degraded, 0=unhealthy."},
	{Name: "g6_provider_auth_failure_total", Kind: Counter, Labels: []string{"provider"}, Group: GroupProviderFailover, Help: "Provider authentication failures."},
}

// ByName indexes Catalogue for lookup during registration.
func ByName() map[string]Spec {
	m := make(map[string]Spec, len(Catalogue))
	for _, s := range Catalogue {
		m[s.Name] = s
	}
	return m
}
