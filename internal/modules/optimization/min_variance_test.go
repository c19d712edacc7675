package optimization

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testInputs builds an aligned (mu, cov, cons) triple from raw slices.
func testInputs(t *testing.T, symbols []string, mu []float64, cov [][]float64, cfg Config) (ReturnVector, CovarianceMatrix, Constraints) {
	t.Helper()

	cm, err := newCovarianceMatrix(symbols, cov)
	require.NoError(t, err)

	cons, err := buildConstraints(symbols, cfg.withDefaults())
	require.NoError(t, err)

	return ReturnVector{Symbols: symbols, Values: mu}, cm, cons
}

func weightVector(t *testing.T, symbols []string, weights map[string]float64) []float64 {
	t.Helper()
	w := make([]float64, len(symbols))
	for i, s := range symbols {
		v, ok := weights[s]
		require.True(t, ok, "missing weight for %s", s)
		w[i] = v
	}
	return w
}

func TestMinVariance_DiagonalInverseVarianceWeights(t *testing.T) {
	// With a diagonal covariance and no binding bounds, the minimum-variance
	// weights are proportional to 1/variance.
	symbols := []string{"AAA", "BBB", "CCC"}
	variances := []float64{0.01, 0.04, 0.02}
	mu, cm, cons := testInputs(t, symbols,
		[]float64{0.05, 0.07, 0.06},
		[][]float64{
			{variances[0], 0, 0},
			{0, variances[1], 0},
			{0, 0, variances[2]},
		}, Config{})

	o := NewMinVarianceOptimizer(zerolog.Nop())
	result, err := o.Optimize(mu, cm, cons, Config{}.withDefaults())
	require.NoError(t, err)

	invSum := 1/variances[0] + 1/variances[1] + 1/variances[2]
	for i, s := range symbols {
		assert.InDelta(t, (1/variances[i])/invSum, result.Weights[s], 1e-6)
	}
	assert.True(t, result.Diagnostics.ClosedForm)
}

func TestMinVariance_SumToOne(t *testing.T) {
	symbols := []string{"AAA", "BBB"}
	mu, cm, cons := testInputs(t, symbols,
		[]float64{0.05, 0.07},
		[][]float64{
			{0.04, 0.01},
			{0.01, 0.03},
		}, Config{})

	o := NewMinVarianceOptimizer(zerolog.Nop())
	result, err := o.Optimize(mu, cm, cons, Config{}.withDefaults())
	require.NoError(t, err)

	sum := 0.0
	for _, w := range result.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, WeightTolerance)
	assert.Greater(t, result.Volatility, 0.0)
}

func TestMinVariance_BoundsForceIterativeSolve(t *testing.T) {
	// Capping the low-variance asset makes the closed form infeasible.
	symbols := []string{"AAA", "BBB", "CCC"}
	cfg := Config{
		UpperBound: 1,
		Bounds:     map[string][2]float64{"AAA": {0, 0.2}},
	}
	mu, cm, cons := testInputs(t, symbols,
		[]float64{0.05, 0.07, 0.06},
		[][]float64{
			{0.01, 0, 0},
			{0, 0.04, 0},
			{0, 0, 0.02},
		}, cfg)

	o := NewMinVarianceOptimizer(zerolog.Nop())
	result, err := o.Optimize(mu, cm, cons, cfg.withDefaults())
	require.NoError(t, err)

	assert.False(t, result.Diagnostics.ClosedForm)
	assert.InDelta(t, 0.2, result.Weights["AAA"], 1e-4, "cap should bind")
	require.NoError(t, cons.verify(weightVector(t, symbols, result.Weights), WeightTolerance))
}

func TestMinVariance_RegularizedCovarianceStillSolves(t *testing.T) {
	// A perfectly correlated pair is singular; after the risk calculator
	// regularizes it, optimization must succeed and report the recovery.
	rc := NewRiskCalculator(zerolog.Nop())
	model, err := rc.FromMatrix([]string{"AAA", "BBB"}, [][]float64{
		{0.04, 0.04},
		{0.04, 0.04},
	}, Config{})
	require.NoError(t, err)
	require.True(t, model.Regularized)

	cons, err := buildConstraints(model.Cov.Symbols, Config{}.withDefaults())
	require.NoError(t, err)

	mu := ReturnVector{Symbols: model.Cov.Symbols, Values: []float64{0.05, 0.06}}
	o := NewMinVarianceOptimizer(zerolog.Nop())
	result, err := o.Optimize(mu, model.Cov, cons, Config{}.withDefaults())
	require.NoError(t, err)

	sum := 0.0
	for _, w := range result.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, WeightTolerance)
}

func TestMinVariance_MismatchedInputs(t *testing.T) {
	symbols := []string{"AAA", "BBB"}
	_, cm, cons := testInputs(t, symbols,
		[]float64{0.05, 0.07},
		[][]float64{
			{0.04, 0.01},
			{0.01, 0.03},
		}, Config{})

	o := NewMinVarianceOptimizer(zerolog.Nop())
	mu := ReturnVector{Symbols: []string{"AAA", "XXX"}, Values: []float64{0.05, 0.07}}
	_, err := o.Optimize(mu, cm, cons, Config{}.withDefaults())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAssetMismatch)
}

func TestMinVariance_MonteCarloIsMinimal(t *testing.T) {
	// No random feasible portfolio should beat the optimizer's variance.
	symbols := []string{"AAA", "BBB", "CCC", "DDD"}
	cov := [][]float64{
		{0.040, 0.006, 0.012, 0.000},
		{0.006, 0.090, 0.015, 0.008},
		{0.012, 0.015, 0.060, 0.010},
		{0.000, 0.008, 0.010, 0.025},
	}
	mu, cm, cons := testInputs(t, symbols, []float64{0.05, 0.09, 0.07, 0.04}, cov, Config{})

	o := NewMinVarianceOptimizer(zerolog.Nop())
	result, err := o.Optimize(mu, cm, cons, Config{}.withDefaults())
	require.NoError(t, err)

	best := portfolioVariance(cm, weightVector(t, symbols, result.Weights))

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 2000; trial++ {
		w := make([]float64, len(symbols))
		sum := 0.0
		for i := range w {
			w[i] = rng.Float64()
			sum += w[i]
		}
		for i := range w {
			w[i] /= sum
		}
		assert.GreaterOrEqual(t, portfolioVariance(cm, w)+1e-9, best)
	}
}
