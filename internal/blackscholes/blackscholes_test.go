package blackscholes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImpliedVolatilityRoundTrip(t *testing.T) {
	spot, strike, rate, vol, tYears := 100.0, 100.0, 0.06, 0.2, 30.0/DaysPerYear
	price := Price(Call, spot, strike, rate, vol, tYears)
	require.Greater(t, price, 0.0)

	params := SolverParams{IVMin: 0.01, IVMax: 5.0, MaxIterations: 100, Precision: 0.0005}
	iv, iters, ok := ImpliedVolatility(Call, price, spot, strike, rate, tYears, params)
	require.True(t, ok)
	assert.InDelta(t, vol, iv, 0.01)
	assert.Greater(t, iters, 0)
}

func TestImpliedVolatilityDivergesOnZeroPrice(t *testing.T) {
	params := SolverParams{IVMin: 0.01, IVMax: 5.0, MaxIterations: 50, Precision: 0.0005}
	_, _, ok := ImpliedVolatility(Call, 0, 100, 100, 0.06, 30.0/DaysPerYear, params)
	assert.False(t, ok)
}

func TestComputeGreeksCallVsPut(t *testing.T) {
	spot, strike, rate, vol, tYears := 100.0, 100.0, 0.06, 0.2, 30.0/DaysPerYear

	callGreeks, ok := ComputeGreeks(Call, spot, strike, rate, vol, tYears)
	require.True(t, ok)
	putGreeks, ok := ComputeGreeks(Put, spot, strike, rate, vol, tYears)
	require.True(t, ok)

	assert.Greater(t, callGreeks.Delta, 0.0)
	assert.Less(t, putGreeks.Delta, 0.0)
	assert.InDelta(t, callGreeks.Gamma, putGreeks.Gamma, 1e-9)
	assert.InDelta(t, callGreeks.Vega, putGreeks.Vega, 1e-9)
}

func TestComputeGreeksRejectsZeroTime(t *testing.T) {
	_, ok := ComputeGreeks(Call, 100, 100, 0.06, 0.2, 0)
	assert.False(t, ok)
}

func TestPriceFallsBackToIntrinsicAtExpiry(t *testing.T) {
	price := Price(Call, 110, 100, 0.06, 0.2, 0)
	assert.InDelta(t, 10.0, price, 1e-9)
}
