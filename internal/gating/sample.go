// Package gating implements the Parity & Shadow Gating Controller
// (spec.md §4.6, component C6). No teacher analogue runs two pipelines
// in parallel; the mode/state-machine shape is grounded on the
// teacher's tri-state health model (internal/services/core.HealthStatus
// and its "worst wins" AggregateStatus folding), reused here for the
// decision's reason token and for folding window samples.
package gating

import (
	"sort"

	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/fingerprint"
)

// strikesHeadLimit bounds "sorted head of strikes" in the parity hash
// input, per spec.md §4.6, so the hash stays cheap to compute and
// stable under strike-list growth past the head.
const strikesHeadLimit = 5

// ParitySample is one path's (legacy or candidate) compact structural
// fingerprint input for one expiry, spec.md §4.6.
type ParitySample struct {
	ExpiryDate         string
	StrikeCount        int
	InstrumentCount    int
	StrikesHead        []float64
	CoverageComponents map[string]float64
	PersistOptionCount int
	SyntheticPCR       float64
}

// ExtractSample builds a ParitySample from a completed ExpiryState.
func ExtractSample(state *expiry.ExpiryState) ParitySample {
	head := append([]float64(nil), state.Strikes...)
	sort.Float64s(head)
	if len(head) > strikesHeadLimit {
		head = head[:strikesHeadLimit]
	}

	coverage := map[string]float64{"strike_coverage": state.ExpiryRec.Coverage.StrikeCoverageRatio}
	for k, v := range state.ExpiryRec.Coverage.FieldCoverage {
		coverage[k] = v
	}

	persistCount := 0
	if state.Flags.Persisted {
		persistCount = len(state.Enriched)
	}

	return ParitySample{
		ExpiryDate:         state.ExpiryDate,
		StrikeCount:        len(state.Strikes),
		InstrumentCount:    len(state.Instruments),
		StrikesHead:        head,
		CoverageComponents: coverage,
		PersistOptionCount: persistCount,
		SyntheticPCR:       state.ExpiryRec.Snapshot.SyntheticPCR,
	}
}

// HashV2 computes the 16-hex parity hash over the tuple named in
// spec.md §4.6: "(expiry_date, strike_count, instrument_count, sorted
// head of strikes, coverage components, simulated persist option
// count, synthetic PCR)".
func HashV2(s ParitySample) string {
	projection := map[string]interface{}{
		"expiry_date":      s.ExpiryDate,
		"strike_count":     s.StrikeCount,
		"instrument_count": s.InstrumentCount,
		"strikes_head":     s.StrikesHead,
		"coverage":         s.CoverageComponents,
		"persist_count":    s.PersistOptionCount,
		"synthetic_pcr":    s.SyntheticPCR,
	}
	h, _ := fingerprint.Truncated(projection, 16)
	return h
}
