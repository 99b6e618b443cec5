package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayushrajani07/g6-collector/internal/logging"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(GateConfig{}, logging.NewDefault("metrics-test"))
}

func TestBuildResolvesEveryHandleOnce(t *testing.T) {
	reg := newTestRegistry(t)
	h := Build(reg)
	require.NotNil(t, h.PhaseAttemptsTotal)

	sizeAfterFirst := reg.Size()
	h2 := Build(reg) // simulate a re-resolve after a process restart path
	require.NotNil(t, h2.PhaseAttemptsTotal)
	assert.Equal(t, sizeAfterFirst, reg.Size(), "re-registering the catalogue must not grow the registry")
}

func TestDuplicateRegistrationIncrementsCounter(t *testing.T) {
	reg := newTestRegistry(t)
	Build(reg)
	before := testutil.ToFloat64(reg.Duplicates().WithLabelValues("g6_phase_attempts_total"))
	Build(reg)
	after := testutil.ToFloat64(reg.Duplicates().WithLabelValues("g6_phase_attempts_total"))
	assert.Equal(t, before+1, after)
}

func TestAlwaysOnGroupBypassesDisableList(t *testing.T) {
	reg := NewRegistry(GateConfig{DisableGroups: []string{"iv_estimation"}}, logging.NewDefault("metrics-test"))
	assert.True(t, reg.Enabled(GroupIVEstimation), "always-on groups must bypass the disable list")
}

func TestWhitelistExcludesUnlistedGroup(t *testing.T) {
	reg := NewRegistry(GateConfig{EnableGroups: []string{"cache"}}, logging.NewDefault("metrics-test"))
	assert.True(t, reg.Enabled(GroupCache))
	assert.False(t, reg.Enabled(GroupPanels))
}

func TestWarmingSeedsZeroSamples(t *testing.T) {
	reg := newTestRegistry(t)
	h := Build(reg)
	assert.Equal(t, 0.0, testutil.ToFloat64(h.CyclesTotal))
}
