package phases

import (
	"time"

	"github.com/ayushrajani07/g6-collector/internal/blackscholes"
	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/pipeline"
)

// timeToExpiryYears converts an ISO8601 expiry date to years-to-expiry
// using the actual/365 day-count convention, resolving the Open
// Question in spec.md §9 (see DESIGN.md). A non-positive result means
// the expiry has already elapsed relative to now.
func timeToExpiryYears(expiryDate string, now time.Time) (float64, bool) {
	d, err := time.Parse("2006-01-02", expiryDate)
	if err != nil {
		return 0, false
	}
	days := d.Sub(now).Hours() / 24
	return days / blackscholes.DaysPerYear, true
}

func toBSType(t expiry.OptionType) blackscholes.OptionType {
	if t == expiry.Put {
		return blackscholes.Put
	}
	return blackscholes.Call
}

func midOrLast(e expiry.Enriched) float64 {
	if e.Bid > 0 && e.Ask > 0 {
		return (e.Bid + e.Ask) / 2
	}
	return e.Price
}

// IV implements spec.md §4.4.8: when enabled and a record lacks a
// positive IV, run Newton-Raphson over Black-Scholes to recover it.
// Per-instrument divergence is tolerated and recorded via the
// iv_estimation_failure metric; it never fails the phase.
var IV = pipeline.Phase{
	Name: "iv",
	Run: func(rc *pipeline.RunContext, state *expiry.ExpiryState) error {
		if !rc.Settings.EstimateIV {
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

		params := blackscholes.SolverParams{
			IVMin: rc.Settings.IVMin, IVMax: rc.Settings.IVMax,
			MaxIterations: rc.Settings.IVMaxIterations, Precision: rc.Settings.IVPrecision,
		}

		totalIterations := 0
		successes := 0
		for id, e := range state.Enriched {
			if e.IVSet && e.IV > 0 {
				continue
			}
			in, found := byID[id]
			if !found || in.Strike <= 0 {
				continue
			}
			price := midOrLast(e)
			iv, iterations, solved := blackscholes.ImpliedVolatility(toBSType(in.OptionType), price, spotFrom(state), in.Strike, rc.Settings.RiskFreeRate, years, params)
			if !solved {
				if rc.Metrics != nil {
					rc.Metrics.IVEstimationFailureTotal.WithLabelValues(state.Index, state.ExpiryDate).Inc()
				}
				continue
			}
			e.IV = iv
			e.IVSet = true
			state.Enriched[id] = e
			totalIterations += iterations
			successes++
			if rc.Metrics != nil {
				rc.Metrics.IVEstimationSuccessTotal.Inc()
			}
		}
		if successes > 0 && rc.Metrics != nil {
			rc.Metrics.IVEstimationAvgIterations.Set(float64(totalIterations) / float64(successes))
		}
		return nil
	},
}

// spotFrom reads the spot price resolve stashed in state.Meta, falling
// back to 0 (which ImpliedVolatility/ComputeGreeks both reject).
func spotFrom(state *expiry.ExpiryState) float64 {
	if v, ok := state.Meta["spot_price"].(float64); ok {
		return v
	}
	return 0
}
