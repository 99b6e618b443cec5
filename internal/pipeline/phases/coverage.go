package phases

import (
	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/pipeline"
)

// Coverage implements spec.md §4.4.7: strike coverage ratio (covered
// strikes / planned strikes) and per-field coverage (fraction of
// enriched records carrying each optional field).
var Coverage = pipeline.Phase{
	Name: "coverage",
	Run: func(rc *pipeline.RunContext, state *expiry.ExpiryState) error {
		planned := len(state.Instruments)
		covered := len(state.Enriched)

		ratio := 0.0
		if planned > 0 {
			ratio = float64(covered) / float64(planned)
		}

		fields := map[string]int{"bid": 0, "ask": 0, "volume": 0, "open_interest": 0, "iv": 0, "greeks": 0}
		for _, e := range state.Enriched {
			if e.Bid > 0 {
				fields["bid"]++
			}
			if e.Ask > 0 {
				fields["ask"]++
			}
			if e.Volume > 0 {
				fields["volume"]++
			}
			if e.OpenInterest > 0 {
				fields["open_interest"]++
			}
			if e.IVSet {
				fields["iv"]++
			}
			if e.GreeksSet {
				fields["greeks"]++
			}
		}

		fieldCoverage := make(map[string]float64, len(fields))
		for name, count := range fields {
			if covered == 0 {
				fieldCoverage[name] = 0
				continue
			}
			fieldCoverage[name] = float64(count) / float64(covered)
		}

		state.ExpiryRec.Coverage = expiry.Coverage{
			StrikeCoverageRatio: ratio,
			FieldCoverage:       fieldCoverage,
		}
		return nil
	},
}
