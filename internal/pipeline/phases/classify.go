package phases

import (
	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/pipeline"
)

// Classify implements spec.md §4.4.11: assign a liquidity-bucket
// regime/category tag from coverage and volume statistics. Pure
// function over already-computed state; a rule mismatch (no bucket
// matches) is recoverable.
var Classify = pipeline.Phase{
	Name: "classify",
	Run: func(rc *pipeline.RunContext, state *expiry.ExpiryState) error {
		ratio := state.ExpiryRec.Coverage.StrikeCoverageRatio
		var totalVolume int64
		for _, e := range state.Enriched {
			totalVolume += e.Volume
		}

		regime, ok := bucketFor(ratio, totalVolume)
		if !ok {
			return expiry.NewRecoverable("classify_unmatched")
		}

		state.ExpiryRec.Classification = expiry.RegimeClassification{Regime: regime, Tag: liquidityTag(totalVolume)}
		return nil
	},
}

func bucketFor(coverageRatio float64, totalVolume int64) (string, bool) {
	switch {
	case coverageRatio >= 0.9 && totalVolume >= 1000:
		return "deep_liquid", true
	case coverageRatio >= 0.5:
		return "standard", true
	case coverageRatio > 0:
		return "thin", true
	default:
		return "", false
	}
}

func liquidityTag(totalVolume int64) string {
	switch {
	case totalVolume >= 10000:
		return "high_volume"
	case totalVolume >= 1000:
		return "moderate_volume"
	default:
		return "low_volume"
	}
}
