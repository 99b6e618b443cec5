package panels

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayushrajani07/g6-collector/internal/config"
	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/logging"
	"github.com/ayushrajani07/g6-collector/internal/metrics"
	"github.com/ayushrajani07/g6-collector/internal/orchestrator"
)

func testHandles(t *testing.T) *metrics.Handles {
	t.Helper()
	reg := metrics.NewRegistry(metrics.GateConfig{}, nil)
	return metrics.Build(reg)
}

func sampleCycleResult() orchestrator.CycleResult {
	ov := expiry.NewOverview("NIFTY")
	ov.ExpiriesExpected = 1
	ov.ExpiriesCollected = 1
	ov.ExpectedMask = 1
	ov.CollectedMask = 1
	ov.PCR = map[expiry.Rule]float64{expiry.ThisWeek: 1.2}
	ov.PCRDefined = map[expiry.Rule]bool{expiry.ThisWeek: true}

	state := expiry.New("NIFTY", expiry.ThisWeek)
	state.ErrorRecords = []expiry.PhaseErrorRecord{{Phase: "fetch", Classification: expiry.ClassRecoverable, Message: "token abc123 expired", Attempt: 1, TimestampSec: 1000}}

	return orchestrator.CycleResult{
		StartedAt: time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC),
		Duration:  2 * time.Second,
		Indices: []orchestrator.IndexResult{
			{Index: "NIFTY", Overview: ov, States: []*expiry.ExpiryState{state}, Failed: false},
		},
	}
}

func testPipelineConfig() config.PipelineConfig {
	cfg := config.Default().Pipeline
	cfg.PanelExportEnabled = true
	cfg.PanelExportHash = true
	cfg.ConfigSnapshot = true
	cfg.PanelExportHistoryEnabled = true
	cfg.PanelExportHistoryLimit = 3
	cfg.TrendsEnabled = true
	cfg.TrendsLimit = 5
	return cfg
}

func TestWriteCycleProducesManifestAndEnvelopes(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, testPipelineConfig(), logging.New("panels_test", logging.Config{Level: "error"}), testHandles(t))

	require.NoError(t, w.WriteCycle(context.Background(), sampleCycleResult()))

	manifestData, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	require.NoError(t, err)
	var manifest Manifest
	require.NoError(t, json.Unmarshal(manifestData, &manifest))
	assert.Contains(t, manifest.Panels, "indices_panel")
	assert.Contains(t, manifest.Hashes, "indices_panel_enveloped.json")

	envData, err := os.ReadFile(filepath.Join(dir, "indices_panel_enveloped.json"))
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(envData, &env))
	assert.Equal(t, "panel-envelope-v1", env.Meta.Schema)
	assert.Len(t, env.Meta.Hash, 12)

	recomputed, err := FullHash(env.Data)
	require.NoError(t, err)
	assert.Equal(t, manifest.Hashes["indices_panel_enveloped.json"], recomputed)

	assert.FileExists(t, filepath.Join(dir, "pipeline_errors_summary.json"))
	assert.FileExists(t, filepath.Join(dir, "pipeline_config_snapshot.json"))
	assert.FileExists(t, filepath.Join(dir, "trends.json"))
	assert.FileExists(t, filepath.Join(dir, "history", "index.json"))
}

func TestWriteCycleSkippedWhenExportDisabled(t *testing.T) {
	dir := t.TempDir()
	cfg := testPipelineConfig()
	cfg.PanelExportEnabled = false
	w := NewWriter(dir, cfg, logging.New("panels_test", logging.Config{Level: "error"}), nil)

	require.NoError(t, w.WriteCycle(context.Background(), sampleCycleResult()))
	_, err := os.Stat(filepath.Join(dir, "manifest.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestRedactionAppliesOnlyToMessageField(t *testing.T) {
	r := NewRedactor([]string{`token \w+`}, "[REDACTED]")
	assert.Equal(t, "[REDACTED] expired", r.Redact("token abc123 expired"))
}

func TestIntegrityMonitorDetectsMismatch(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, testPipelineConfig(), logging.New("panels_test", logging.Config{Level: "error"}), testHandles(t))
	require.NoError(t, w.WriteCycle(context.Background(), sampleCycleResult()))

	// Corrupt the panel file so its data no longer matches the manifest hash.
	path := filepath.Join(dir, "indices_panel_enveloped.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	env.Data = []interface{}{}
	corrupted, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, corrupted, 0o644))

	exitCalled := false
	mon := NewIntegrityMonitor(dir, time.Minute, true, logging.New("panels_test", logging.Config{Level: "error"}), testHandles(t))
	mon.exit = func(code int) { exitCalled = true }

	ok, err := mon.Check()
	require.NoError(t, err)
	assert.False(t, ok)

	mon.tick()
	assert.True(t, exitCalled)
}

func TestIntegrityMonitorOkWhenUnchanged(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, testPipelineConfig(), logging.New("panels_test", logging.Config{Level: "error"}), testHandles(t))
	require.NoError(t, w.WriteCycle(context.Background(), sampleCycleResult()))

	mon := NewIntegrityMonitor(dir, time.Minute, false, logging.New("panels_test", logging.Config{Level: "error"}), testHandles(t))
	ok, err := mon.Check()
	require.NoError(t, err)
	assert.True(t, ok)
}
