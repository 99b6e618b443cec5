package phases

import (
	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/pipeline"
)

// snapshotVersion is the versioned outward-facing schema number for
// expiry_rec.snapshot, per spec.md §4.4.12.
const snapshotVersion = 1

// Snapshot implements spec.md §4.4.12: construct the stable,
// versioned outward-facing snapshot. Serialization corner cases (no
// instruments to summarize) are recoverable rather than fatal.
var SnapshotPhase = pipeline.Phase{
	Name: "snapshot",
	Run: func(rc *pipeline.RunContext, state *expiry.ExpiryState) error {
		if len(state.Instruments) == 0 {
			return expiry.NewRecoverable("snapshot_serialize")
		}

		var putOI, callOI int64
		for i := range state.Instruments {
			in := state.Instruments[i]
			e, ok := state.Enriched[in.ID]
			if !ok {
				continue
			}
			if in.OptionType == expiry.Put {
				putOI += e.OpenInterest
			} else {
				callOI += e.OpenInterest
			}
		}
		ratio, defined := expiry.PutCallRatio(putOI, callOI)

		state.ExpiryRec.Snapshot = expiry.Snapshot{
			Version:             snapshotVersion,
			Index:               state.Index,
			Rule:                state.Rule,
			ExpiryDate:          state.ExpiryDate,
			OptionCount:         len(state.Enriched),
			SyntheticPCR:        ratio,
			SyntheticPCRDefined: defined,
		}
		return nil
	},
}
