// Package phases implements the 13-phase library of spec.md §4.4,
// grounded on the provider facade's and pricefeed service's style of
// small, single-purpose functions with early returns and sentinel
// errors (internal/services/pricefeed/service.go's SubmitObservation).
package phases

import (
	"sort"
	"strings"
	"time"

	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/pipeline"
	"github.com/ayushrajani07/g6-collector/internal/provider"
)

// Resolve implements spec.md §4.4.1: pick the expiry date matching
// state.Rule from the provider's catalogue, falling back to
// fabrication when instruments exist but no catalogue is extractable.
var Resolve = pipeline.Phase{
	Name: "resolve",
	Run: func(rc *pipeline.RunContext, state *expiry.ExpiryState) error {
		if state.HasExpiry {
			return nil // idempotent replay
		}
		resolved, err := rc.Provider.ResolveExpiries(rc.Ctx, state.Index)
		if err != nil {
			return expiry.NewAbort("expiry_unresolved")
		}

		date := pickByRule(resolved, state.Rule)
		if date == "" {
			return expiry.NewAbort("expiry_unresolved")
		}

		state.ExpiryDate = date
		state.HasExpiry = true
		if resolved.Fabricated {
			state.Flags.Fabricated = true
		}

		if spot, ltpErr := rc.Provider.GetLTP(rc.Ctx, []string{state.Index}); ltpErr == nil {
			for _, v := range spot {
				state.Meta["spot_price"] = v
				break
			}
		}
		return nil
	},
}

func pickByRule(r provider.ResolvedExpiries, rule expiry.Rule) string {
	switch rule {
	case expiry.ThisWeek:
		return r.ThisWeek
	case expiry.NextWeek:
		return r.NextWeek
	case expiry.ThisMonth:
		return r.ThisMonth
	case expiry.NextMonth:
		return r.NextMonth
	default:
		return ""
	}
}

// nearestThursdayOnOrAfter returns the soonest Thursday on or after
// from (from itself when it is a Thursday). Neither resolve nor any
// test calls it.
func nearestThursdayOnOrAfter(from time.Time) time.Time {
	days := (int(time.Thursday) - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, days)
}

func symbolRootMatches(symbol, index string, legacy bool) bool {
	if legacy {
		return strings.Contains(strings.ToUpper(symbol), strings.ToUpper(index))
	}
	return strings.HasPrefix(strings.ToUpper(symbol), strings.ToUpper(index))
}

func sortedStrikes(instruments []expiry.Instrument) []float64 {
	seen := map[float64]bool{}
	var strikes []float64
	for _, in := range instruments {
		if !seen[in.Strike] {
			seen[in.Strike] = true
			strikes = append(strikes, in.Strike)
		}
	}
	sort.Float64s(strikes)
	return strikes
}
