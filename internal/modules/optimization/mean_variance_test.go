package optimization

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanVariance_RiskAversionTradeoff(t *testing.T) {
	symbols := []string{"AAA", "BBB"}
	mu := []float64{0.05, 0.12}
	cov := [][]float64{
		{0.01, 0.002},
		{0.002, 0.09},
	}

	o := NewMeanVarianceOptimizer(zerolog.Nop())

	solve := func(lambda float64) *Result {
		cfg := Config{RiskAversion: lambda}.withDefaults()
		rv, cm, cons := testInputs(t, symbols, mu, cov, cfg)
		result, err := o.Optimize(rv, cm, cons, cfg)
		require.NoError(t, err)
		return result
	}

	aggressive := solve(0.5)
	conservative := solve(20)

	// Lower risk aversion tilts into the high-return asset.
	assert.Greater(t, aggressive.Weights["BBB"], conservative.Weights["BBB"])
	assert.Greater(t, aggressive.ExpectedReturn, conservative.ExpectedReturn)
	assert.Greater(t, aggressive.Volatility, conservative.Volatility)
}

func TestMeanVariance_TargetReturnAchieved(t *testing.T) {
	symbols := []string{"AAA", "BBB"}
	target := 0.10
	cfg := Config{TargetReturn: &target}.withDefaults()
	rv, cm, cons := testInputs(t, symbols, []float64{0.05, 0.12}, [][]float64{
		{0.01, 0.002},
		{0.002, 0.09},
	}, cfg)

	o := NewMeanVarianceOptimizer(zerolog.Nop())
	result, err := o.Optimize(rv, cm, cons, cfg)
	require.NoError(t, err)

	assert.InDelta(t, target, result.ExpectedReturn, 1e-3)
	require.NoError(t, cons.verify(weightVector(t, symbols, result.Weights), WeightTolerance))
}

func TestMeanVariance_InfeasibleTargetReturn(t *testing.T) {
	symbols := []string{"AAA", "BBB"}
	target := 0.50 // far above the best asset's 12%
	cfg := Config{TargetReturn: &target}.withDefaults()
	rv, cm, cons := testInputs(t, symbols, []float64{0.05, 0.12}, [][]float64{
		{0.01, 0.002},
		{0.002, 0.09},
	}, cfg)

	o := NewMeanVarianceOptimizer(zerolog.Nop())
	_, err := o.Optimize(rv, cm, cons, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInfeasibleConstraint)
}

func TestMeanVariance_TargetBelowRangeInfeasible(t *testing.T) {
	symbols := []string{"AAA", "BBB"}
	target := 0.01 // below the worst asset's 5%
	cfg := Config{TargetReturn: &target}.withDefaults()
	rv, cm, cons := testInputs(t, symbols, []float64{0.05, 0.12}, [][]float64{
		{0.01, 0.002},
		{0.002, 0.09},
	}, cfg)

	o := NewMeanVarianceOptimizer(zerolog.Nop())
	_, err := o.Optimize(rv, cm, cons, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInfeasibleConstraint)
}

func TestMeanVariance_BoundsRespected(t *testing.T) {
	symbols := []string{"AAA", "BBB", "CCC"}
	cfg := Config{RiskAversion: 0.1, UpperBound: 0.5}.withDefaults()
	rv, cm, cons := testInputs(t, symbols, []float64{0.02, 0.20, 0.05}, [][]float64{
		{0.02, 0, 0},
		{0, 0.03, 0},
		{0, 0, 0.025},
	}, cfg)

	o := NewMeanVarianceOptimizer(zerolog.Nop())
	result, err := o.Optimize(rv, cm, cons, cfg)
	require.NoError(t, err)

	// The dominant asset hits its cap instead of taking the whole budget.
	assert.InDelta(t, 0.5, result.Weights["BBB"], 1e-4)
	require.NoError(t, cons.verify(weightVector(t, symbols, result.Weights), WeightTolerance))
}
