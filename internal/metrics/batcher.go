package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BatchConfig controls the counter batcher, spec.md §4.2 "Emission /
// batching".
type BatchConfig struct {
	Enabled        bool
	Interval       time.Duration
	MinSize        int
	MaxSize        int
	FlushThreshold int
}

// increment is one queued (collector, label tuple) increment.
type increment struct {
	vec    *prometheus.CounterVec
	labels []string
	delta  float64
}

// key identifies a distinct (metric, label tuple) destination for
// aggregation purposes.
type key struct {
	vec    *prometheus.CounterVec
	labels string
}

// Batcher is a single-writer background worker that aggregates counter
// increments keyed by (metric, label tuple) and flushes on whichever
// comes first: the configured interval, a distinct-key threshold, or an
// explicit Flush call. Grounded on the teacher's ticker-driven
// goroutine lifecycle (internal/app/services/pricefeed/refresher.go):
// mutex-guarded start/stop, CancelFunc, WaitGroup for drain-on-close.
type Batcher struct {
	cfg BatchConfig
	h   *Handles

	mu      sync.Mutex
	pending map[key]*increment
	depth   int

	// EWMA of increments/sec, used to derive the adaptive target size.
	ewma      float64
	lastFlush time.Time

	queueCh chan increment
	done    chan struct{}
	wg      sync.WaitGroup

	shedMode bool
}

// NewBatcher constructs a Batcher. If cfg.Enabled is false, Enqueue
// falls through to immediate emission (spec.md §4.2: "On enqueue
// failure or batcher disabled, increments fall through to immediate
// emission").
func NewBatcher(cfg BatchConfig, h *Handles) *Batcher {
	if cfg.MinSize <= 0 {
		cfg.MinSize = 10
	}
	if cfg.MaxSize < cfg.MinSize {
		cfg.MaxSize = cfg.MinSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Batcher{
		cfg:       cfg,
		h:         h,
		pending:   make(map[key]*increment),
		queueCh:   make(chan increment, 4096),
		done:      make(chan struct{}),
		lastFlush: time.Time{},
	}
}

// Start launches the single-writer background worker.
func (b *Batcher) Start() {
	if !b.cfg.Enabled {
		return
	}
	b.wg.Add(1)
	go b.run()
}

// Stop drains and flushes synchronously, per spec.md §9's redesign
// guidance ("explicit close on shutdown drains and flushes
// synchronously").
func (b *Batcher) Stop() {
	if !b.cfg.Enabled {
		return
	}
	close(b.done)
	b.wg.Wait()
	b.flush()
}

// Enqueue increments a counter vec by delta for the given label tuple.
// When the batcher is disabled or its queue is full, the increment is
// applied immediately instead.
func (b *Batcher) Enqueue(vec *prometheus.CounterVec, delta float64, labels ...string) {
	if !b.cfg.Enabled {
		vec.WithLabelValues(labels...).Add(delta)
		return
	}
	select {
	case b.queueCh <- increment{vec: vec, labels: append([]string(nil), labels...), delta: delta}:
	default:
		// queue full: fall through to immediate emission rather than block.
		vec.WithLabelValues(labels...).Add(delta)
	}
}

func (b *Batcher) run() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	windowStart := time.Now()
	windowCount := 0

	for {
		select {
		case <-b.done:
			b.drain()
			return
		case inc := <-b.queueCh:
			b.absorb(inc)
			windowCount++
			target := b.adaptiveTarget()
			if b.depthLocked() >= target || b.depthLocked() >= b.cfg.FlushThreshold {
				b.flush()
			}
		case <-ticker.C:
			elapsed := time.Since(windowStart).Seconds()
			if elapsed > 0 {
				rate := float64(windowCount) / elapsed
				b.mu.Lock()
				b.ewma = 0.3*rate + 0.7*b.ewma
				b.mu.Unlock()
			}
			windowStart = time.Now()
			windowCount = 0
			b.flush()
		}
	}
}

// highWatermark is the pending-key count at which the batcher enters
// shed mode: new distinct keys are dropped (counted) rather than
// accumulated, protecting the process per spec.md §5's backpressure
// policy. Existing keys keep accumulating so in-flight aggregates are
// never lost mid-flush.
func (b *Batcher) highWatermark() int {
	return b.cfg.MaxSize * 2
}

// drain absorbs any increments still sitting in the queue channel
// before the run loop exits, so Stop's synchronous flush sees them.
func (b *Batcher) drain() {
	for {
		select {
		case inc := <-b.queueCh:
			b.absorb(inc)
		default:
			return
		}
	}
}

func (b *Batcher) absorb(inc increment) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := key{vec: inc.vec, labels: joinLabels(inc.labels)}
	existing, ok := b.pending[k]
	if !ok {
		if b.depth >= b.highWatermark() {
			if !b.shedMode {
				b.shedMode = true
				if b.h != nil {
					b.h.BatcherBackpressureTotal.Inc()
				}
			}
			if b.h != nil {
				b.h.BatcherShedTotal.Inc()
			}
			return
		}
		b.shedMode = false
		cp := inc
		b.pending[k] = &cp
		b.depth++
		if b.h != nil {
			b.h.BatcherQueueDepth.Set(float64(b.depth))
		}
		return
	}
	existing.delta += inc.delta
}

func (b *Batcher) depthLocked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.depth
}

// adaptiveTarget derives the target batch size from the EWMA of
// increments/sec, clamped between MinSize and MaxSize.
func (b *Batcher) adaptiveTarget() int {
	b.mu.Lock()
	ewma := b.ewma
	b.mu.Unlock()

	target := int(ewma / 10) // flush roughly every 10 incoming increments' worth of rate
	if target < b.cfg.MinSize {
		target = b.cfg.MinSize
	}
	if target > b.cfg.MaxSize {
		target = b.cfg.MaxSize
	}
	if b.h != nil {
		b.h.BatcherAdaptiveTarget.Set(float64(target))
	}
	return target
}

// Flush applies all pending increments immediately. Exported for
// explicit-flush callers (spec.md §4.2: "flushes on whichever comes
// first... or an explicit flush").
func (b *Batcher) Flush() { b.flush() }

func (b *Batcher) flush() {
	start := time.Now()

	b.mu.Lock()
	pending := b.pending
	b.pending = make(map[key]*increment)
	count := b.depth
	b.depth = 0
	b.mu.Unlock()

	for _, inc := range pending {
		inc.vec.WithLabelValues(inc.labels...).Add(inc.delta)
	}

	if b.h != nil {
		b.h.BatcherQueueDepth.Set(0)
		b.h.BatcherFlushIncrements.Set(float64(count))
		b.h.BatcherFlushDurationSecs.Observe(time.Since(start).Seconds())
	}
}

func joinLabels(labels []string) string {
	out := ""
	for i, l := range labels {
		if i > 0 {
			out += "\x00"
		}
		out += l
	}
	return out
}
