package phases

import (
	"github.com/ayushrajani07/g6-collector/internal/blackscholes"
	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/pipeline"
)

// Greeks implements spec.md §4.4.9: compute delta/gamma/theta/vega/rho
// using IV (estimated or provided), falling back to DefaultFallbackIV
// when IV is still unset after the IV phase. Per-instrument math
// failures are tolerated: that instrument is left with GreeksSet false,
// nothing is recorded, and the phase does not fail.
var Greeks = pipeline.Phase{
	Name: "greeks",
	Run: func(rc *pipeline.RunContext, state *expiry.ExpiryState) error {
		if !rc.Settings.GreeksEnabled {
			return nil
		}
		years, ok := timeToExpiryYears(state.ExpiryDate, rc.Now())
		if !ok || years <= 0 {
			return nil
		}

		byID := make(map[string]expiry.Instrument, len(state.Instruments))
		for _, in := range state.Instruments {
			byID[in.ID] = in
		}
		spot := spotFrom(state)
		if spot <= 0 {
			return nil
		}

		fallback := rc.Settings.FallbackIV
		if fallback <= 0 {
			fallback = blackscholes.DefaultFallbackIV
		}

		for id, e := range state.Enriched {
			in, found := byID[id]
			if !found || in.Strike <= 0 {
				continue
			}
			vol := e.IV
			if !e.IVSet || vol <= 0 {
				vol = fallback
			}
			g, computed := blackscholes.ComputeGreeks(toBSType(in.OptionType), spot, in.Strike, rc.Settings.RiskFreeRate, vol, years)
			if !computed {
				continue
			}
			e.Delta, e.Gamma, e.Theta, e.Vega, e.Rho = g.Delta, g.Gamma, g.Theta, g.Vega, g.Rho
			e.GreeksSet = true
			state.Enriched[id] = e
		}
		return nil
	},
}
