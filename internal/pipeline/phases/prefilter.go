package phases

import (
	"sort"

	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/pipeline"
)

// Prefilter implements spec.md §4.4.3's phase slot. Volume and OI are
// not known until enrich runs, so no minimum-volume or minimum-open-
// interest filter is applied, and the volume-percentile hook drops no
// instrument (see applyVolumePercentile). The phase fails recoverable
// with prefilter_empty when there are no instruments, and otherwise
// re-derives Strikes as the sorted, de-duplicated instrument strikes.
var Prefilter = pipeline.Phase{
	Name: "prefilter",
	Run: func(rc *pipeline.RunContext, state *expiry.ExpiryState) error {
		survivors := state.Instruments
		if rc.Settings.VolumePercentileFilter > 0 && len(survivors) > 0 {
			survivors = applyVolumePercentile(survivors, rc.Settings.VolumePercentileFilter)
		}

		if len(survivors) == 0 {
			return expiry.NewRecoverable("prefilter_empty")
		}

		state.Instruments = survivors
		state.Strikes = sortedStrikes(survivors)
		return nil
	},
}

// applyVolumePercentile is the hook for providers that expose
// per-instrument volume ahead of enrich; this reference provider does
// not, so it filters nothing: it only stable-sorts the instruments by
// strike and returns all of them.
func applyVolumePercentile(instruments []expiry.Instrument, _ float64) []expiry.Instrument {
	sort.SliceStable(instruments, func(i, j int) bool { return instruments[i].Strike < instruments[j].Strike })
	return instruments
}
