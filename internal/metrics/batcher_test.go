package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatcherDisabledEmitsImmediately(t *testing.T) {
	reg := newTestRegistry(t)
	h := Build(reg)
	b := NewBatcher(BatchConfig{Enabled: false}, h)

	b.Enqueue(h.PhaseAttemptsTotal, 1, "resolve")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.PhaseAttemptsTotal.WithLabelValues("resolve")))
}

func TestBatcherFlushAggregatesBeforeApplying(t *testing.T) {
	reg := newTestRegistry(t)
	h := Build(reg)
	b := NewBatcher(BatchConfig{Enabled: true, Interval: 50 * time.Millisecond, MinSize: 2, MaxSize: 100, FlushThreshold: 1000}, h)
	b.Start()
	defer b.Stop()

	b.Enqueue(h.PhaseAttemptsTotal, 1, "fetch")
	b.Enqueue(h.PhaseAttemptsTotal, 1, "fetch")
	b.Enqueue(h.PhaseAttemptsTotal, 1, "fetch")
	b.Flush()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.PhaseAttemptsTotal.WithLabelValues("fetch")) == 3.0
	}, time.Second, 10*time.Millisecond)
}

func TestBatcherStopDrainsPending(t *testing.T) {
	reg := newTestRegistry(t)
	h := Build(reg)
	b := NewBatcher(BatchConfig{Enabled: true, Interval: time.Hour, MinSize: 1000, MaxSize: 2000, FlushThreshold: 1000}, h)
	b.Start()

	b.Enqueue(h.PhaseAttemptsTotal, 5, "persist")
	b.Stop()

	assert.Equal(t, 5.0, testutil.ToFloat64(h.PhaseAttemptsTotal.WithLabelValues("persist")))
}
