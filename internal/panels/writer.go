package panels

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ayushrajani07/g6-collector/internal/config"
	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/logging"
	"github.com/ayushrajani07/g6-collector/internal/metrics"
	"github.com/ayushrajani07/g6-collector/internal/orchestrator"
)

// indexPanelRow is one row of the "indices" panel's data array.
type indexPanelRow struct {
	Index             string             `json:"index"`
	Failed            bool               `json:"failed"`
	Reason            string             `json:"reason,omitempty"`
	ExpiriesExpected  int                `json:"expiries_expected"`
	ExpiriesCollected int                `json:"expiries_collected"`
	ExpectedMask      int                `json:"expected_mask"`
	CollectedMask     int                `json:"collected_mask"`
	MissingMask       int                `json:"missing_mask"`
	DayWidthSec       int64              `json:"day_width_sec"`
	PCR               map[string]float64 `json:"pcr"`
}

// cyclePanelData is the "cycle" panel's data.
type cyclePanelData struct {
	CycleID     string `json:"cycle_id"`
	StartedAt   string `json:"started_at"`
	DurationMs  int64  `json:"duration_ms"`
	IndexCount  int    `json:"index_count"`
	FailedCount int    `json:"failed_count"`
}

// Writer implements orchestrator.PanelsWriter: after each cycle it
// writes panel envelopes, a manifest, and the optional exports named
// in spec.md §4.7.
type Writer struct {
	dir      string
	cfg      config.PipelineConfig
	redactor *Redactor
	log      *logging.Logger
	handles  *metrics.Handles
	now      func() time.Time
}

// NewWriter builds a Writer rooted at dir (spec.md's "panels
// directory"), using cfg's pipeline export flags.
func NewWriter(dir string, cfg config.PipelineConfig, log *logging.Logger, handles *metrics.Handles) *Writer {
	return &Writer{
		dir:      dir,
		cfg:      cfg,
		redactor: NewRedactor(cfg.RedactPatterns, cfg.RedactReplacement),
		log:      log,
		handles:  handles,
		now:      time.Now,
	}
}

// WriteCycle implements orchestrator.PanelsWriter.
func (w *Writer) WriteCycle(ctx context.Context, result orchestrator.CycleResult) error {
	if !w.cfg.PanelExportEnabled {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create panels dir: %w", err)
	}

	now := w.now()

	indicesData := buildIndicesPanelData(result)
	cycleData := cyclePanelData{
		CycleID:     result.CycleID,
		StartedAt:   result.StartedAt.UTC().Format(time.RFC3339),
		DurationMs:  result.Duration.Milliseconds(),
		IndexCount:  len(result.Indices),
		FailedCount: countFailed(result.Indices),
	}

	panelFiles, fullHashes, err := w.writePanels(map[string]interface{}{
		"indices_panel": indicesData,
		"cycle_panel":   cycleData,
	}, now)
	if err != nil {
		return err
	}

	manifest := buildManifest([]string{"indices_panel", "cycle_panel"}, fullHashes)
	if err := writeJSONAtomic(filepath.Join(w.dir, "manifest.json"), manifest); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	var states []*expiry.ExpiryState
	failedIndices := 0
	errorCount := 0
	for _, ir := range result.Indices {
		if ir.Failed {
			failedIndices++
		}
		states = append(states, ir.States...)
	}
	for _, st := range states {
		errorCount += len(st.ErrorRecords)
	}

	summary := CycleSummary{IndicesTotal: len(result.Indices), IndicesFailed: failedIndices, ErrorCount: errorCount}
	errorsSummary, err := BuildErrorsSummary(summary, states, w.redactor, w.cfg.PanelExportHash, now)
	if err != nil {
		return fmt.Errorf("build errors summary: %w", err)
	}
	if err := writeJSONAtomic(filepath.Join(w.dir, "pipeline_errors_summary.json"), errorsSummary); err != nil {
		return fmt.Errorf("write errors summary: %w", err)
	}

	if w.cfg.ConfigSnapshot {
		snapshot, err := BuildConfigSnapshot(w.cfg)
		if err != nil {
			return fmt.Errorf("build config snapshot: %w", err)
		}
		if err := writeJSONAtomic(filepath.Join(w.dir, "pipeline_config_snapshot.json"), snapshot); err != nil {
			return fmt.Errorf("write config snapshot: %w", err)
		}
	}

	if w.cfg.PanelExportHistoryEnabled {
		if err := writeHistory(w.dir, now, panelFiles, w.cfg.PanelExportHistoryLimit); err != nil {
			return fmt.Errorf("write history: %w", err)
		}
	}

	if w.cfg.TrendsEnabled {
		entry := TrendEntry{
			Timestamp:   now.Unix(),
			PhasesTotal: 0,
			ErrorsTotal: errorCount,
			Hash:        fullHashes["indices_panel_enveloped.json"],
		}
		succeeded := failedIndices == 0
		if err := appendTrend(filepath.Join(w.dir, "trends.json"), entry, succeeded, w.cfg.TrendsLimit); err != nil {
			return fmt.Errorf("append trend: %w", err)
		}
	}

	if w.handles != nil {
		w.handles.PanelWriteTotal.WithLabelValues("indices_panel").Inc()
		w.handles.PanelWriteTotal.WithLabelValues("cycle_panel").Inc()
	}
	return nil
}

// writePanels builds and writes an envelope per named panel, returning
// the written file bytes (for history cloning) and each file's full
// manifest-grade SHA-256 hash.
func (w *Writer) writePanels(panels map[string]interface{}, now time.Time) (map[string][]byte, map[string]string, error) {
	files := make(map[string][]byte, len(panels))
	hashes := make(map[string]string, len(panels))
	for name, data := range panels {
		env, err := BuildEnvelope(name, "g6-collector", data, now, now)
		if err != nil {
			return nil, nil, err
		}
		fileName := envelopeFileName(name)
		path := filepath.Join(w.dir, fileName)
		content, err := marshalIndent(env)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal panel %s: %w", name, err)
		}
		if err := writeAtomic(path, content); err != nil {
			return nil, nil, fmt.Errorf("write panel %s: %w", name, err)
		}
		fullHash, err := FullHash(data)
		if err != nil {
			return nil, nil, fmt.Errorf("hash panel %s: %w", name, err)
		}
		files[fileName] = content
		hashes[fileName] = fullHash
	}
	return files, hashes, nil
}

func buildIndicesPanelData(result orchestrator.CycleResult) []indexPanelRow {
	rows := make([]indexPanelRow, 0, len(result.Indices))
	for _, ir := range result.Indices {
		row := indexPanelRow{
			Index:  ir.Index,
			Failed: ir.Failed,
			Reason: ir.Reason,
		}
		if ir.Overview != nil {
			row.ExpiriesExpected = ir.Overview.ExpiriesExpected
			row.ExpiriesCollected = ir.Overview.ExpiriesCollected
			row.ExpectedMask = ir.Overview.ExpectedMask
			row.CollectedMask = ir.Overview.CollectedMask
			row.MissingMask = ir.Overview.MissingMask
			row.DayWidthSec = ir.Overview.DayWidthSec
			row.PCR = make(map[string]float64, len(ir.Overview.PCR))
			for rule, defined := range ir.Overview.PCRDefined {
				if defined {
					row.PCR[string(rule)] = ir.Overview.PCR[rule]
				}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func countFailed(indices []orchestrator.IndexResult) int {
	n := 0
	for _, ir := range indices {
		if ir.Failed {
			n++
		}
	}
	return n
}
