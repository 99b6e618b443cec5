package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ayushrajani07/g6-collector/internal/logging"
)

// CardinalityGuard periodically walks the registry, compares per-group
// series counts to a baseline snapshot, and reports growth via gauges
// and a warning log. It has no strict mode and never terminates the
// process, whatever the growth. Ticker
// lifecycle grounded on the same pattern as the cycle orchestrator
// (internal/app/services/automation/scheduler.go): mutex-guarded
// start/stop, CancelFunc, WaitGroup.
type CardinalityGuard struct {
	reg          *Registry
	h            *Handles
	log          *logging.Logger
	baseline     map[Group]int
	growthPct    float64
	interval     time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewCardinalityGuard constructs a guard with an empty baseline; call
// Snapshot once after warm-up to establish it.
func NewCardinalityGuard(reg *Registry, h *Handles, log *logging.Logger, growthPct float64, interval time.Duration) *CardinalityGuard {
	if interval <= 0 {
		interval = time.Minute
	}
	return &CardinalityGuard{
		reg:       reg,
		h:         h,
		log:       log,
		baseline:  make(map[Group]int),
		growthPct: growthPct,
		interval:  interval,
	}
}

// Snapshot records the current per-group series count as the baseline.
func (g *CardinalityGuard) Snapshot(current map[Group]int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.baseline = make(map[Group]int, len(current))
	for k, v := range current {
		g.baseline[k] = v
	}
}

// Start launches the periodic check goroutine.
func (g *CardinalityGuard) Start(ctx context.Context, current func() map[Group]int) {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.running = true
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				g.check(current())
			}
		}
	}()
}

// Stop cancels the background goroutine and waits for it to exit.
func (g *CardinalityGuard) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	cancel := g.cancel
	g.running = false
	g.mu.Unlock()

	cancel()
	g.wg.Wait()
}

func (g *CardinalityGuard) check(current map[Group]int) {
	g.mu.Lock()
	baseline := g.baseline
	g.mu.Unlock()

	offenders := 0
	for group, count := range current {
		base, ok := baseline[group]
		if !ok || base == 0 {
			continue
		}
		growth := 100 * float64(count-base) / float64(base)
		if g.h != nil {
			g.h.CardinalityGuardGrowthPercent.WithLabelValues(string(group)).Set(growth)
		}
		if growth > g.growthPct {
			offenders++
			if g.log != nil {
				g.log.WithField("group", group).WithField("growth_percent", growth).Warn("cardinality growth exceeds threshold")
			}
		}
	}
	if g.h != nil {
		g.h.CardinalityGuardOffendersTotal.Set(float64(offenders))
	}
}

// GroupSeriesCounts walks a prometheus.Gatherer and counts series per
// group, looking each metric family's exact name up in the catalogue;
// families the catalogue does not declare are skipped. Returns nil when
// gathering fails.
func GroupSeriesCounts(gatherer prometheus.Gatherer) map[Group]int {
	families, err := gatherer.Gather()
	if err != nil {
		return nil
	}
	names := ByName()
	counts := make(map[Group]int)
	for _, mf := range families {
		spec, ok := names[mf.GetName()]
		if !ok {
			continue
		}
		counts[spec.Group] += len(mf.GetMetric())
	}
	return counts
}
