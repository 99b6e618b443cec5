package phases

import (
	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/pipeline"
)

// Summarize implements spec.md §4.4.13: the terminal phase. It emits a
// structured expiry.complete event and never fails the cycle.
var Summarize = pipeline.Phase{
	Name: "summarize",
	Run: func(rc *pipeline.RunContext, state *expiry.ExpiryState) error {
		if rc.Log != nil {
			rc.Log.WithFields(map[string]interface{}{
				"event":        "expiry.complete",
				"index":        state.Index,
				"rule":         state.Rule,
				"expiry_date":  state.ExpiryDate,
				"option_count": len(state.Enriched),
				"persisted":    state.Flags.Persisted,
			}).Info("expiry pipeline complete")
		}
		return nil
	},
}

// All returns the 13 phases in their mandated execution order,
// spec.md §4.4. Persist is supplied by the caller (it needs a
// sinks.Sink), so All takes the already-built persist phase.
func All(persist pipeline.Phase) []pipeline.Phase {
	return []pipeline.Phase{
		Resolve,
		Fetch,
		Prefilter,
		Enrich,
		Validate,
		Salvage,
		Coverage,
		IV,
		Greeks,
		persist,
		Classify,
		SnapshotPhase,
		Summarize,
	}
}
