package phases

import (
	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/pipeline"
)

// Validate implements spec.md §4.4.5's preventive checks. A missing
// expiry, duplicate instrument ids, enriched ids outside the instrument
// set, or a fabricated expiry while AllowFabricatedThroughValidate is off
// abort the phase with validate_schema. An empty strike ladder sets
// flags.validation_failed; enriched coverage below MinStrikeCoverage
// sets both validation_failed and partial. Foreign expiry leakage is not
// checked, and no validate:<issue> tokens are appended.
var Validate = pipeline.Phase{
	Name: "validate",
	Run: func(rc *pipeline.RunContext, state *expiry.ExpiryState) error {
		if !state.HasExpiry || state.ExpiryDate == "" {
			return expiry.NewAbort("validate_schema")
		}
		if !state.NoDuplicateInstrumentIDs() {
			return expiry.NewAbort("validate_schema")
		}
		if !state.EnrichedSubsetOfInstruments() {
			return expiry.NewAbort("validate_schema")
		}
		if state.Flags.Fabricated && !rc.Settings.AllowFabricatedThroughValidate {
			return expiry.NewAbort("validate_schema")
		}

		if len(state.Strikes) == 0 {
			state.Flags.ValidationFailed = true
			return nil
		}
		coverage := float64(len(state.Enriched)) / float64(len(state.Instruments))
		if rc.Settings.MinStrikeCoverage > 0 && coverage < rc.Settings.MinStrikeCoverage {
			state.Flags.ValidationFailed = true
			state.Flags.Partial = true
		}
		return nil
	},
}
