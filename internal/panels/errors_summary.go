package panels

import (
	"time"

	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/fingerprint"
)

// ErrorRecord is the redacted, JSON-facing projection of a
// expiry.PhaseErrorRecord, spec.md §6.4.
type ErrorRecord struct {
	Phase          string `json:"phase"`
	Classification string `json:"classification"`
	Message        string `json:"message"`
	Attempt        int    `json:"attempt"`
	TimestampSec   int64  `json:"ts"`
}

// CycleSummary is the coarse per-cycle tally this implementation can
// derive without the orchestrator retaining a per-expiry pipeline
// Summary: counts of indices processed/failed and total structured
// errors. See the panels DESIGN.md entry for why this is a deliberate
// scope narrowing rather than the full phases_total/phases_ok shape.
type CycleSummary struct {
	IndicesTotal  int `json:"indices_total"`
	IndicesFailed int `json:"indices_failed"`
	ErrorCount    int `json:"error_count"`
}

// ErrorsSummary is pipeline_errors_summary.json's shape (spec.md §4.7
// item 3), combining the cycle summary and the structured error list.
type ErrorsSummary struct {
	Version     int           `json:"version"`
	Summary     CycleSummary  `json:"summary"`
	Errors      []ErrorRecord `json:"records"`
	ErrorCount  int           `json:"error_count"`
	ExportedAt  int64         `json:"exported_at"`
	ContentHash string        `json:"content_hash,omitempty"`
}

// BuildErrorsSummary collects PhaseErrorRecords across states, applies
// redaction to each message, and optionally computes a 16-hex content
// hash over the stable (summary, errors, error_count, version)
// projection.
func BuildErrorsSummary(summary CycleSummary, states []*expiry.ExpiryState, redactor *Redactor, includeHash bool, now time.Time) (ErrorsSummary, error) {
	var records []ErrorRecord
	for _, st := range states {
		for _, rec := range st.ErrorRecords {
			records = append(records, ErrorRecord{
				Phase:          rec.Phase,
				Classification: string(rec.Classification),
				Message:        redactor.Redact(rec.Message),
				Attempt:        rec.Attempt,
				TimestampSec:   rec.TimestampSec,
			})
		}
	}

	out := ErrorsSummary{
		Version:    1,
		Summary:    summary,
		Errors:     records,
		ErrorCount: len(records),
		ExportedAt: now.Unix(),
	}

	if includeHash {
		projection := map[string]interface{}{
			"summary":     out.Summary,
			"errors":      out.Errors,
			"error_count": out.ErrorCount,
			"version":     out.Version,
		}
		hash, err := fingerprint.Truncated(projection, 16)
		if err != nil {
			return out, err
		}
		out.ContentHash = hash
	}
	return out, nil
}
