// Command collector is the process entry point: it assembles config,
// logging, metrics, the provider facade, sinks, the shadow gating
// observer, the panels writer, and the cycle orchestrator, then serves
// /metrics and /healthz until SIGINT/SIGTERM. Grounded on the
// teacher's cmd/indexer/main.go (LoadFromEnv -> NewService -> Start ->
// signal wait -> Stop), generalized with an HTTP mux for the two
// endpoints spec.md §6 names.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayushrajani07/g6-collector/internal/config"
	"github.com/ayushrajani07/g6-collector/internal/gating"
	"github.com/ayushrajani07/g6-collector/internal/logging"
	"github.com/ayushrajani07/g6-collector/internal/metrics"
	"github.com/ayushrajani07/g6-collector/internal/orchestrator"
	"github.com/ayushrajani07/g6-collector/internal/panels"
	"github.com/ayushrajani07/g6-collector/internal/provider"
	"github.com/ayushrajani07/g6-collector/internal/sinks"
	"github.com/ayushrajani07/g6-collector/internal/tracing"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New("g6-collector", logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logging.InitDefault("g6-collector", logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	reg := metrics.NewRegistry(metrics.FromConfig(cfg), log)
	handles := metrics.Build(reg)

	optionSink, err := sinks.NewCSVSink(csvPath("options.csv"))
	if err != nil {
		log.WithError(err).Fatal("create option sink")
	}
	overviewSink, err := sinks.NewCSVOverviewSink(csvPath("overview.csv"))
	if err != nil {
		log.WithError(err).Fatal("create overview sink")
	}

	prov := buildProvider(cfg, log)

	tracer := tracing.New(cfg.Pipeline.TracingEnabled, "g6-collector")

	orch := orchestrator.New(cfg, prov, handles, log, optionSink, overviewSink).
		WithOracle(orchestrator.NewClockOracle(cfg.MarketHours)).
		WithTracer(tracer)

	if cfg.Metrics.Batch.Enabled {
		orch = orch.WithBatcher(metrics.NewBatcher(metrics.BatchConfig{
			Enabled:        cfg.Metrics.Batch.Enabled,
			Interval:       time.Duration(cfg.Metrics.Batch.IntervalMs) * time.Millisecond,
			MinSize:        cfg.Metrics.Batch.MinSize,
			MaxSize:        cfg.Metrics.Batch.MaxSize,
			FlushThreshold: cfg.Metrics.Batch.FlushThreshold,
		}, handles))
	}

	if cfg.Pipeline.PanelExportEnabled {
		writer := panels.NewWriter(cfg.PanelsDir, cfg.Pipeline, log, handles)
		orch = orch.WithPanelsWriter(writer)
	}

	if cfg.ShadowGating.Mode != "off" {
		observer := gating.NewExpiryStateObserver(cfg.ShadowGating, nil, log, handles)
		orch = orch.WithGatingObserver(observer)
	}

	summaries := []orchestrator.StartupSummary{
		orchestrator.BuildSummary("pipeline", map[string]interface{}{
			"retry_enabled":    cfg.Pipeline.RetryEnabled,
			"panel_export":     cfg.Pipeline.PanelExportEnabled,
			"tracing_enabled":  cfg.Pipeline.TracingEnabled,
			"shadow_gating":    cfg.ShadowGating.Mode,
		}),
		orchestrator.BuildSummary("collection", map[string]interface{}{
			"interval_seconds": cfg.Collection.IntervalSeconds,
			"indices":          len(cfg.IndexParams),
		}),
	}
	orchestrator.LogStartupSummaries(log, summaries)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var guard *metrics.CardinalityGuard
	if cfg.Metrics.CardinalityGrowthPct > 0 {
		guard = metrics.NewCardinalityGuard(reg, handles, log, cfg.Metrics.CardinalityGrowthPct, time.Minute)
		guard.Snapshot(metrics.GroupSeriesCounts(reg.Gatherer()))
		guard.Start(ctx, func() map[metrics.Group]int { return metrics.GroupSeriesCounts(reg.Gatherer()) })
	}

	var integrity *panels.IntegrityMonitor
	if cfg.Pipeline.PanelExportEnabled {
		integrity = panels.NewIntegrityMonitor(cfg.PanelsDir, time.Minute, cfg.StrictMode, log, handles)
		go integrity.Run(ctx)
	}

	if err := orch.Start(ctx); err != nil {
		log.WithError(err).Fatal("start orchestrator")
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: newRouter(reg, log),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("http server stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	if guard != nil {
		guard.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = orch.Stop(shutdownCtx)
}

// newRouter wires the two HTTP surfaces spec.md §6 names:
// Prometheus /metrics and an aggregate /healthz. go-chi is a direct
// teacher dependency with no call site anywhere else in the teacher's
// own source; this is its one wiring point in this module.
func newRouter(reg *metrics.Registry, log *logging.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))
	r.Get("/healthz", healthzHandler(log))
	return r
}

type healthzResponse struct {
	Status string `json:"status"`
	TimeSec int64 `json:"time_sec"`
}

// healthzHandler reports liveness. It intentionally does not block on
// provider health (that is exposed by the provider's own diagnostics
// surface, not this process-level check), matching spec.md §6's split
// between "process is alive" and "provider is healthy".
func healthzHandler(log *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(healthzResponse{Status: "ok", TimeSec: time.Now().Unix()}); err != nil {
			log.WithError(err).Warn("healthz encode failed")
		}
	}
}

func csvPath(name string) string {
	dir := os.Getenv("G6_DATA_DIR")
	if dir == "" {
		dir = "data"
	}
	return dir + string(os.PathSeparator) + name
}

// buildProvider resolves the configured provider via the registry. A
// real broker adapter is out of scope (spec.md §1); until one is
// registered, the in-memory reference implementation is the sole
// candidate, matching the registry's single-provider fallback rule.
func buildProvider(cfg *config.Config, log *logging.Logger) provider.Facade {
	reg := provider.NewRegistry()
	mem := provider.NewMemoryProvider("memory", log)
	reg.Register(mem)
	reg.SetDefault("memory")

	p, err := reg.Resolve("")
	if err != nil {
		log.WithError(err).Warn("provider registry resolution failed, falling back to memory provider")
		return mem
	}
	return p
}
