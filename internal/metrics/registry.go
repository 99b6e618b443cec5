package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayushrajani07/g6-collector/internal/config"
	"github.com/ayushrajani07/g6-collector/internal/logging"
)

// GateConfig controls the whitelist/blacklist/predicate precedence of
// spec.md §4.2 rule 1.
type GateConfig struct {
	EnableGroups  []string
	DisableGroups []string
	Predicate     func(Group) bool
	Strict        bool // fail_on_duplicate
}

// Registry wraps a dedicated prometheus.Registry with group gating,
// duplicate-registration idempotence, cold-start warming, and the
// spec-hash/build-config-hash provenance gauges. Grounded on the
// teacher's pkg/metrics.go (package-level vecs against a dedicated
// registry) and infrastructure/metrics.go (env-gated Enabled()),
// generalized into a catalogue-driven builder per spec.md §9.
type Registry struct {
	prom *prometheus.Registry
	gate GateConfig
	log  *logging.Logger

	mu         sync.Mutex
	registered map[string]prometheus.Collector
	duplicates *prometheus.CounterVec
}

// NewRegistry constructs an empty Registry against a fresh prometheus
// registry (never the global default, mirroring the teacher's
// dedicated-registry pattern).
func NewRegistry(gate GateConfig, log *logging.Logger) *Registry {
	r := &Registry{
		prom:       prometheus.NewRegistry(),
		gate:       gate,
		log:        log,
		registered: make(map[string]prometheus.Collector),
	}
	r.duplicates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "g6_metric_duplicates_total",
		Help: "Duplicate registration attempts, by metric name.",
	}, []string{"name"})
	_ = r.prom.Register(r.duplicates)
	r.registered["g6_metric_duplicates_total"] = r.duplicates
	return r
}

// FromConfig builds a GateConfig from the loaded Config.
func FromConfig(cfg *config.Config) GateConfig {
	return GateConfig{
		EnableGroups:  cfg.Metrics.EnableGroups,
		DisableGroups: cfg.Metrics.DisableGroups,
		Strict:        cfg.Metrics.StrictExceptions || cfg.Metrics.FailOnDuplicate,
	}
}

// Enabled applies the whitelist -> blacklist -> predicate precedence of
// spec.md §4.2 rule 1. Always-on groups bypass both lists but still
// respect their predicate.
func (r *Registry) Enabled(group Group) bool {
	if AlwaysOn[group] {
		return r.gate.Predicate == nil || r.gate.Predicate(group)
	}
	if len(r.gate.EnableGroups) > 0 {
		found := false
		for _, g := range r.gate.EnableGroups {
			if Group(g) == group {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, g := range r.gate.DisableGroups {
		if Group(g) == group {
			return false
		}
	}
	if r.gate.Predicate != nil {
		return r.gate.Predicate(group)
	}
	return true
}

// register is the single entry point used by Handles.Build to register
// each catalogue entry exactly once, applying gating, duplicate
// tracking, and warming. Returns the collector that callers should use
// (either the newly built one, or the previously registered instance
// on a duplicate attempt) and whether it is actually exported.
func (r *Registry) register(spec Spec, build func() prometheus.Collector) (prometheus.Collector, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.registered[spec.Name]; ok {
		r.duplicates.WithLabelValues(spec.Name).Inc()
		if r.gate.Strict {
			panic(fmt.Sprintf("metrics: duplicate registration of %q under strict_exceptions", spec.Name))
		}
		return existing, true
	}

	collector := build()
	exported := r.Enabled(spec.Group)
	if exported {
		if err := r.prom.Register(collector); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				collector = are.ExistingCollector
			} else {
				r.log.WithError(err).WithField("metric", spec.Name).Warn("metric registration failed")
				exported = false
			}
		}
	}
	r.registered[spec.Name] = collector
	if exported {
		warm(spec, collector)
	}
	return collector, exported
}

// warm produces the cold-start synthetic first sample documented in
// spec.md §4.2 rule 4, so dashboards and parity tests never see an
// absent series.
func warm(spec Spec, c prometheus.Collector) {
	labelValues := make([]string, len(spec.Labels))
	for i := range labelValues {
		labelValues[i] = ""
	}
	switch v := c.(type) {
	case *prometheus.CounterVec:
		v.WithLabelValues(labelValues...).Add(0)
	case prometheus.Counter:
		v.Add(0)
	case *prometheus.GaugeVec:
		v.WithLabelValues(labelValues...).Set(0)
	case prometheus.Gauge:
		v.Set(0)
	case *prometheus.HistogramVec:
		v.WithLabelValues(labelValues...).Observe(0)
	case prometheus.Histogram:
		v.Observe(0)
	}
}

// SetSpecHash sets the static g6_spec_hash_info{hash} gauge to 1.
func (r *Registry) SetSpecHash(hash string) {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "g6_spec_hash_info",
		Help:        "Static 1 labeled with the 16-hex spec content hash.",
		ConstLabels: prometheus.Labels{"hash": hash},
	})
	g.Set(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.registered["g6_spec_hash_info"]; ok {
		return
	}
	_ = r.prom.Register(g)
	r.registered["g6_spec_hash_info"] = g
}

// SetBuildConfigHash sets the static g6_build_config_hash_info{hash}
// gauge to 1.
func (r *Registry) SetBuildConfigHash(hash string) {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "g6_build_config_hash_info",
		Help:        "Static 1 labeled with the deployment-time configuration hash.",
		ConstLabels: prometheus.Labels{"hash": hash},
	})
	g.Set(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.registered["g6_build_config_hash_info"]; ok {
		return
	}
	_ = r.prom.Register(g)
	r.registered["g6_build_config_hash_info"] = g
}

// Handler exposes Prometheus text format over HTTP.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying prometheus.Gatherer, used by the
// cardinality guard to walk current series counts.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.prom }

// Size returns the number of distinct metric names registered, used by
// tests asserting invariant 9 (duplicate registration leaves registry
// size unchanged).
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.registered)
}

// Duplicates exposes the duplicate-registration counter vec directly;
// tests read it via prometheus/client_golang/prometheus/testutil.
func (r *Registry) Duplicates() *prometheus.CounterVec { return r.duplicates }
