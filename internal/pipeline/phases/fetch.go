package phases

import (
	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/pipeline"
	"github.com/ayushrajani07/g6-collector/internal/provider"
)

// Fetch implements spec.md §4.4.2: call the provider's instrument
// domain, filter to this expiry and index root, deduplicate by id, and
// derive the strike ladder from the surviving instruments restricted
// to ATM +/- configured ITM/OTM depth.
var Fetch = pipeline.Phase{
	Name: "fetch",
	Run: func(rc *pipeline.RunContext, state *expiry.ExpiryState) error {
		domain, err := rc.Provider.GetInstruments(rc.Ctx, state.Index, false)
		if err != nil {
			return expiry.NewRecoverable("no_instruments_domain")
		}
		if len(domain) == 0 {
			return expiry.NewRecoverable("no_instruments_domain")
		}

		filtered := make([]expiry.Instrument, 0, len(domain))
		seen := make(map[string]struct{}, len(domain))
		for _, in := range domain {
			if _, dup := seen[in.ID]; dup {
				continue
			}
			if !symbolRootMatches(in.Symbol, state.Index, rc.Settings.LegacySymbolMatching) {
				continue
			}
			seen[in.ID] = struct{}{}
			filtered = append(filtered, in)
		}

		filtered = restrictToLadder(filtered, state, rc.Settings.StrikesITM, rc.Settings.StrikesOTM)

		if len(filtered) == 0 {
			return expiry.NewRecoverable("no_instruments")
		}

		state.Instruments = filtered
		state.Strikes = sortedStrikes(filtered)
		return nil
	},
}

// restrictToLadder keeps only instruments within ITM/OTM strike depth
// of the ATM strike, per spec.md §4.4.2's "ATM ± configured ITM/OTM
// depth" ladder plan. When depth is unconfigured (both zero) or no
// spot price is available, the full filtered domain passes through.
func restrictToLadder(instruments []expiry.Instrument, state *expiry.ExpiryState, itm, otm int) []expiry.Instrument {
	if itm <= 0 && otm <= 0 {
		return instruments
	}
	spotVal, ok := state.Meta["spot_price"].(float64)
	if !ok || spotVal <= 0 {
		return instruments
	}

	strikes := sortedStrikes(instruments)
	if len(strikes) == 0 {
		return instruments
	}
	step := provider.ATMStep(spotVal, 0)
	atm := provider.RoundToStep(spotVal, step)

	atmIdx := 0
	best := -1.0
	for i, s := range strikes {
		d := s - atm
		if d < 0 {
			d = -d
		}
		if best < 0 || d < best {
			best = d
			atmIdx = i
		}
	}
	lo := atmIdx - itm
	hi := atmIdx + otm
	if lo < 0 {
		lo = 0
	}
	if hi >= len(strikes) {
		hi = len(strikes) - 1
	}
	allowed := make(map[float64]struct{}, hi-lo+1)
	for i := lo; i <= hi; i++ {
		allowed[strikes[i]] = struct{}{}
	}

	out := make([]expiry.Instrument, 0, len(instruments))
	for _, in := range instruments {
		if _, ok := allowed[in.Strike]; ok {
			out = append(out, in)
		}
	}
	return out
}
