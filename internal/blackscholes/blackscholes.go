// Package blackscholes implements European option pricing, a
// Newton-Raphson implied volatility solver, and the Greeks, per the
// exact formulas in spec.md §4.4.8/§4.4.9. No example repo in the
// retrieval pack ships option pricing math, so this package is grounded
// directly on the spec rather than on teacher code (see DESIGN.md).
package blackscholes

import "math"

// OptionType distinguishes calls from puts for pricing purposes.
type OptionType int

const (
	Call OptionType = iota
	Put
)

// DaysPerYear fixes the day count to actual/365, resolving the Open Question in
// spec.md §9 (see DESIGN.md).
const DaysPerYear = 365.0

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// d1d2 returns the standard Black-Scholes d1 and d2 terms.
func d1d2(spot, strike, rate, vol, t float64) (d1, d2 float64) {
	if vol <= 0 || t <= 0 {
		return math.NaN(), math.NaN()
	}
	d1 = (math.Log(spot/strike) + (rate+0.5*vol*vol)*t) / (vol * math.Sqrt(t))
	d2 = d1 - vol*math.Sqrt(t)
	return
}

// Price computes the Black-Scholes price of a European option.
// t is time to expiry in years (actual/365).
func Price(typ OptionType, spot, strike, rate, vol, t float64) float64 {
	if t <= 0 || vol <= 0 {
		return intrinsic(typ, spot, strike)
	}
	d1, d2 := d1d2(spot, strike, rate, vol, t)
	switch typ {
	case Call:
		return spot*normCDF(d1) - strike*math.Exp(-rate*t)*normCDF(d2)
	default:
		return strike*math.Exp(-rate*t)*normCDF(-d2) - spot*normCDF(-d1)
	}
}

func intrinsic(typ OptionType, spot, strike float64) float64 {
	if typ == Call {
		return math.Max(spot-strike, 0)
	}
	return math.Max(strike-spot, 0)
}

// vegaAt computes raw vega (per unit of volatility), used as the
// derivative step in the Newton-Raphson solver.
func vegaAt(spot, strike, rate, vol, t float64) float64 {
	d1, _ := d1d2(spot, strike, rate, vol, t)
	return spot * normPDF(d1) * math.Sqrt(t)
}

// SolverParams bounds the Newton-Raphson implied volatility search, per
// spec.md §4.4.8.
type SolverParams struct {
	IVMin          float64
	IVMax          float64
	MaxIterations  int
	Precision      float64 // absolute price error tolerance
}

// ImpliedVolatility runs Newton-Raphson on the Black-Scholes price
// function to recover the volatility that reproduces marketPrice.
// It returns (iv, iterations, ok); ok is false on divergence or bound
// breach, in which case the caller should record an iv_estimation
// failure and leave IV unset rather than guessing.
func ImpliedVolatility(typ OptionType, marketPrice, spot, strike, rate, t float64, p SolverParams) (iv float64, iterations int, ok bool) {
	if marketPrice <= 0 || spot <= 0 || strike <= 0 || t <= 0 {
		return 0, 0, false
	}
	guess := 0.2
	if guess < p.IVMin {
		guess = p.IVMin
	}
	if guess > p.IVMax {
		guess = p.IVMax
	}

	for i := 1; i <= p.MaxIterations; i++ {
		price := Price(typ, spot, strike, rate, guess, t)
		diff := price - marketPrice
		if math.Abs(diff) < p.Precision {
			return guess, i, true
		}
		vega := vegaAt(spot, strike, rate, guess, t)
		if vega < 1e-10 {
			return 0, i, false
		}
		next := guess - diff/vega
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return 0, i, false
		}
		if next < p.IVMin || next > p.IVMax {
			// clamp and keep iterating rather than bailing immediately,
			// mirroring a tolerant bisection-like fallback
			if next < p.IVMin {
				next = p.IVMin
			} else {
				next = p.IVMax
			}
		}
		guess = next
	}
	return 0, p.MaxIterations, false
}

// Greeks holds the five standard sensitivities.
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64 // per calendar day
	Vega  float64 // per 1 percentage point of vol
	Rho   float64 // per 1 percentage point of rate
}

// ComputeGreeks computes delta, gamma, theta, vega, rho for a European
// option, per spec.md §4.4.9. t is time to expiry in years.
func ComputeGreeks(typ OptionType, spot, strike, rate, vol, t float64) (Greeks, bool) {
	if t <= 0 || vol <= 0 || spot <= 0 || strike <= 0 {
		return Greeks{}, false
	}
	d1, d2 := d1d2(spot, strike, rate, vol, t)
	sqrtT := math.Sqrt(t)
	pdf := normPDF(d1)

	var delta float64
	switch typ {
	case Call:
		delta = normCDF(d1)
	default:
		delta = normCDF(d1) - 1
	}

	gamma := pdf / (spot * vol * sqrtT)

	var theta float64
	term1 := -(spot * pdf * vol) / (2 * sqrtT)
	switch typ {
	case Call:
		theta = term1 - rate*strike*math.Exp(-rate*t)*normCDF(d2)
	default:
		theta = term1 + rate*strike*math.Exp(-rate*t)*normCDF(-d2)
	}
	thetaPerDay := theta / DaysPerYear

	vegaRaw := spot * pdf * sqrtT
	vegaPerPoint := vegaRaw / 100

	var rho float64
	switch typ {
	case Call:
		rho = strike * t * math.Exp(-rate*t) * normCDF(d2)
	default:
		rho = -strike * t * math.Exp(-rate*t) * normCDF(-d2)
	}
	rhoPerPoint := rho / 100

	if math.IsNaN(delta) || math.IsNaN(gamma) || math.IsNaN(thetaPerDay) || math.IsNaN(vegaPerPoint) || math.IsNaN(rhoPerPoint) {
		return Greeks{}, false
	}

	return Greeks{
		Delta: delta,
		Gamma: gamma,
		Theta: thetaPerDay,
		Vega:  vegaPerPoint,
		Rho:   rhoPerPoint,
	}, true
}

// DefaultFallbackIV is used by the greeks phase when IV estimation was
// skipped or failed, per spec.md §4.4.9.
const DefaultFallbackIV = 0.25
