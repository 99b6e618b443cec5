package gating

import (
	"strconv"
	"strings"

	"github.com/ayushrajani07/g6-collector/internal/metrics"
)

// CycleCounts is one path's (legacy or candidate) cycle-level
// aggregate used by the parity score, spec.md §4.6.
type CycleCounts struct {
	IndexCount      int
	OptionCount     int
	Alerts          map[string]int // alert kind -> count
	StrikeCoverage  float64        // mean strike coverage ratio across indices, v2 only
}

// ScoreV1 is the equal-weight mean of three components named in
// spec.md §4.6: index_count, option_count, alerts.
func ScoreV1(legacy, candidate CycleCounts) float64 {
	idx := countSimilarity(legacy.IndexCount, candidate.IndexCount)
	opt := countSimilarity(legacy.OptionCount, candidate.OptionCount)
	alerts := alertSimilarity(legacy.Alerts, candidate.Alerts)
	return (idx + opt + alerts) / 3
}

// ScoreV2 adds a strike_coverage component to ScoreV1's three, with
// configurable weights (see ParseWeights). Weights default to equal
// (0.25 each) when nil or empty.
func ScoreV2(legacy, candidate CycleCounts, weights map[string]float64) float64 {
	components := map[string]float64{
		"index_count":     countSimilarity(legacy.IndexCount, candidate.IndexCount),
		"option_count":    countSimilarity(legacy.OptionCount, candidate.OptionCount),
		"alerts":          alertSimilarity(legacy.Alerts, candidate.Alerts),
		"strike_coverage": 1 - absFloat(legacy.StrikeCoverage-candidate.StrikeCoverage),
	}
	if len(weights) == 0 {
		weights = map[string]float64{"index_count": 1, "option_count": 1, "alerts": 1, "strike_coverage": 1}
	}

	var weightedSum, totalWeight float64
	for name, value := range components {
		w, ok := weights[name]
		if !ok {
			w = 1
		}
		weightedSum += w * value
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

// ParseWeights parses a "component:weight,component:weight" string
// (as spec.md §6.5's configurable-weights knob would carry) into a
// weight map. Malformed entries are skipped.
func ParseWeights(s string) map[string]float64 {
	out := map[string]float64{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			continue
		}
		out[strings.TrimSpace(kv[0])] = w
	}
	return out
}

func countSimilarity(a, b int) float64 {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	denom := a
	if b > denom {
		denom = b
	}
	if denom == 0 {
		return 1
	}
	ratio := float64(diff) / float64(denom)
	if ratio > 1 {
		ratio = 1
	}
	return 1 - ratio
}

func alertSimilarity(a, b map[string]int) float64 {
	union := map[string]bool{}
	for k, n := range a {
		if n > 0 {
			union[k] = true
		}
	}
	for k, n := range b {
		if n > 0 {
			union[k] = true
		}
	}
	if len(union) == 0 {
		return 1
	}
	symDiff := 0
	for k := range union {
		if (a[k] > 0) != (b[k] > 0) {
			symDiff++
		}
	}
	return 1 - float64(symDiff)/float64(len(union))
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// AnomalyResult is the outcome of an alert-parity anomaly check,
// spec.md §4.6's alert_parity.anomaly event.
type AnomalyResult struct {
	Anomalous       bool
	NormalizedDiff  float64
	UnionSize       int
	CategoryDiffs   map[string]int
}

// CheckAlertAnomaly compares per-category alert counts across the two
// paths and flags an anomaly when the severity-weighted normalized
// difference exceeds threshold and the category union is large enough
// to be meaningful (avoids flagging noise from near-empty cycles).
func CheckAlertAnomaly(legacy, candidate map[string]int, severityWeights map[string]float64, threshold float64, minUnion int) AnomalyResult {
	union := map[string]bool{}
	for k := range legacy {
		union[k] = true
	}
	for k := range candidate {
		union[k] = true
	}

	diffs := map[string]int{}
	var weightedDiff, weightedTotal float64
	for k := range union {
		d := legacy[k] - candidate[k]
		if d < 0 {
			d = -d
		}
		diffs[k] = d
		w := severityWeights[k]
		if w == 0 {
			w = 1
		}
		weightedDiff += w * float64(d)
		weightedTotal += w * float64(legacy[k]+candidate[k])
	}

	result := AnomalyResult{UnionSize: len(union), CategoryDiffs: diffs}
	if weightedTotal == 0 {
		return result
	}
	result.NormalizedDiff = weightedDiff / weightedTotal
	result.Anomalous = result.NormalizedDiff > threshold && len(union) >= minUnion
	return result
}

// RecordParityScore publishes one cycle's score under the given
// version label ("v1" or "v2"), per g6_parity_score{version}.
func RecordParityScore(handles *metrics.Handles, version string, score float64) {
	if handles == nil {
		return
	}
	handles.ParityScore.WithLabelValues(version).Set(score)
}

// RecordAlertAnomaly increments the alert_parity.anomaly counter when
// the check found an anomaly. The caller decides when to run
// CheckAlertAnomaly and passes its result here.
func RecordAlertAnomaly(handles *metrics.Handles, result AnomalyResult) {
	if handles == nil || !result.Anomalous {
		return
	}
	handles.AlertParityAnomalyTotal.Inc()
}
