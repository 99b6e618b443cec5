package panels

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TrendEntry is one append-only trends record, spec.md §4.7 item 5.
type TrendEntry struct {
	Timestamp    int64  `json:"timestamp"`
	PhasesTotal  int    `json:"phases_total"`
	ErrorsTotal  int    `json:"errors_total"`
	Hash         string `json:"hash"`
}

// trendsAggregate is the running aggregate appended to trends.json:
// cycles, success_cycles, success_rate, errors_total,
// phase_errors_total, phases_total.
type trendsAggregate struct {
	Cycles           int     `json:"cycles"`
	SuccessCycles    int     `json:"success_cycles"`
	SuccessRate      float64 `json:"success_rate"`
	ErrorsTotal      int     `json:"errors_total"`
	PhaseErrorsTotal int     `json:"phase_errors_total"`
	PhasesTotal      int     `json:"phases_total"`
}

type trendsFile struct {
	Entries   []TrendEntry    `json:"entries"`
	Aggregate trendsAggregate `json:"aggregate"`
}

// appendTrend appends one cycle's entry to trends.json, recomputes the
// running aggregate, and prunes entries to limit (default 200, min 1).
func appendTrend(path string, entry TrendEntry, cycleSucceeded bool, limit int) error {
	if limit < 1 {
		limit = 200
	}

	var tf trendsFile
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &tf)
	}

	tf.Entries = append(tf.Entries, entry)
	if len(tf.Entries) > limit {
		tf.Entries = tf.Entries[len(tf.Entries)-limit:]
	}

	tf.Aggregate.Cycles++
	if cycleSucceeded {
		tf.Aggregate.SuccessCycles++
	}
	tf.Aggregate.ErrorsTotal += entry.ErrorsTotal
	tf.Aggregate.PhaseErrorsTotal += entry.ErrorsTotal
	tf.Aggregate.PhasesTotal += entry.PhasesTotal
	if tf.Aggregate.Cycles > 0 {
		tf.Aggregate.SuccessRate = float64(tf.Aggregate.SuccessCycles) / float64(tf.Aggregate.Cycles)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create trends dir: %w", err)
	}
	return writeJSONAtomic(path, tf)
}
