package sinks

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// OverviewRow is the per-index, per-cycle aggregate the orchestrator
// writes after all of an index's expiries complete (spec.md §4.5 step
// 4: "Aggregate per-index overview snapshot... and emit via persist +
// panels writer"). One row per (index, rule) bucket, mirroring the
// per-option row's additive-column discipline.
type OverviewRow struct {
	GeneratedAtSec int64
	Index          string
	Rule           string
	PCR            float64
	PCRDefined     bool

	ExpiriesExpected  int
	ExpiriesCollected int
	ExpectedMask      int
	CollectedMask     int
	MissingMask       int
	DayWidthSec       int64
}

// OverviewSink is the persist target for per-cycle overview rows,
// distinct from Sink (which carries per-option data).
type OverviewSink interface {
	WriteOverview(ctx context.Context, rows []OverviewRow) error
	Close() error
}

var overviewColumns = []string{
	"generated_at", "index", "rule", "pcr", "pcr_defined",
	"expiries_expected", "expiries_collected",
	"expected_mask", "collected_mask", "missing_mask", "day_width_sec",
}

// CSVOverviewSink appends overview rows to a CSV file, same append/
// header discipline as CSVSink.
type CSVOverviewSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *csv.Writer
}

func NewCSVOverviewSink(path string) (*CSVOverviewSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("overview sink: mkdir: %w", err)
	}
	info, statErr := os.Stat(path)
	needsHeader := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("overview sink: open: %w", err)
	}
	w := csv.NewWriter(f)
	s := &CSVOverviewSink{path: path, f: f, w: w}
	if needsHeader {
		if err := w.Write(overviewColumns); err != nil {
			f.Close()
			return nil, fmt.Errorf("overview sink: write header: %w", err)
		}
		w.Flush()
	}
	return s, nil
}

func (s *CSVOverviewSink) WriteOverview(_ context.Context, rows []OverviewRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		record := []string{
			strconv.FormatInt(r.GeneratedAtSec, 10),
			r.Index,
			r.Rule,
			strconv.FormatFloat(r.PCR, 'f', 6, 64),
			strconv.FormatBool(r.PCRDefined),
			strconv.Itoa(r.ExpiriesExpected),
			strconv.Itoa(r.ExpiriesCollected),
			strconv.Itoa(r.ExpectedMask),
			strconv.Itoa(r.CollectedMask),
			strconv.Itoa(r.MissingMask),
			strconv.FormatInt(r.DayWidthSec, 10),
		}
		if err := s.w.Write(record); err != nil {
			return &ErrPermanent{Cause: err}
		}
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return &ErrPermanent{Cause: err}
	}
	return nil
}

func (s *CSVOverviewSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	return s.f.Close()
}
