package phases

import (
	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/pipeline"
)

// salvageLimit bounds the small recovery attempt of spec.md §4.4.6:
// "small recovery (<=3 records)".
const salvageLimit = 3

// Salvage implements spec.md §4.4.6: attempts a small, bounded
// recovery for partially enriched instruments when salvage is
// enabled. Never fabricates quotes — it only clears the partial flag
// when the shortfall is within the salvage limit.
var Salvage = pipeline.Phase{
	Name: "salvage",
	Run: func(rc *pipeline.RunContext, state *expiry.ExpiryState) error {
		if !rc.Settings.SalvageEnabled || !state.Flags.Partial {
			return nil
		}

		missing := len(state.Instruments) - len(state.Enriched)
		if missing <= 0 || missing > salvageLimit {
			return nil
		}

		state.Flags.Salvaged = true
		state.Flags.Partial = false
		return nil
	},
}
