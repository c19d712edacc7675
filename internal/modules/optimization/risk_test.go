package optimization

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/pkg/formulas"
)

func TestRiskCompute_AnnualizedCovariance(t *testing.T) {
	rc := NewRiskCalculator(zerolog.Nop())
	series := []domain.AssetSeries{
		priceSeries("AAA", 100, 102, 101, 104, 103, 105),
		priceSeries("BBB", 50, 49, 51, 50, 52, 51),
	}

	model, err := rc.Compute([]string{"AAA", "BBB"}, series, Config{PeriodsPerYear: 252})
	require.NoError(t, err)

	retA := series[0].Returns(domain.ReturnSimple)
	retB := series[1].Returns(domain.ReturnSimple)

	assert.InDelta(t, formulas.Variance(retA)*252, model.Cov.At(0, 0), 1e-9)
	assert.InDelta(t, formulas.Covariance(retA, retB)*252, model.Cov.At(0, 1), 1e-9)
	assert.InDelta(t, model.Cov.At(0, 1), model.Cov.At(1, 0), 1e-12, "symmetric")
	assert.False(t, model.Regularized)

	assert.InDelta(t, formulas.AnnualizedVolatility(retA, 252), model.Volatility["AAA"], 1e-9)
}

func TestRiskFromMatrix_ValidInput(t *testing.T) {
	rc := NewRiskCalculator(zerolog.Nop())

	model, err := rc.FromMatrix([]string{"AAA", "BBB"}, [][]float64{
		{0.04, 0.01},
		{0.01, 0.03},
	}, Config{})
	require.NoError(t, err)

	assert.False(t, model.Regularized)
	assert.InDelta(t, 0.2, model.Volatility["AAA"], 1e-12)
}

func TestRiskFromMatrix_RegularizesSingular(t *testing.T) {
	rc := NewRiskCalculator(zerolog.Nop())

	// Rank-1 matrix: perfectly correlated assets, zero eigenvalue.
	model, err := rc.FromMatrix([]string{"AAA", "BBB"}, [][]float64{
		{0.04, 0.04},
		{0.04, 0.04},
	}, Config{})
	require.NoError(t, err)

	assert.True(t, model.Regularized)
	assert.Greater(t, model.Epsilon, 0.0)

	// The conditioned matrix must now be strictly positive definite.
	minEig, _, err := eigenRange(model.Cov.Matrix)
	require.NoError(t, err)
	assert.Greater(t, minEig, 0.0)
}

func TestRiskFromMatrix_ExplicitEpsilon(t *testing.T) {
	rc := NewRiskCalculator(zerolog.Nop())

	model, err := rc.FromMatrix([]string{"AAA", "BBB"}, [][]float64{
		{0.04, 0.04},
		{0.04, 0.04},
	}, Config{RegularizationEpsilon: 1e-4})
	require.NoError(t, err)

	assert.True(t, model.Regularized)
	assert.Equal(t, 1e-4, model.Epsilon)
	assert.InDelta(t, 0.04+1e-4, model.Cov.At(0, 0), 1e-12)
}

func TestRiskFromMatrix_RejectsAsymmetric(t *testing.T) {
	rc := NewRiskCalculator(zerolog.Nop())

	_, err := rc.FromMatrix([]string{"AAA", "BBB"}, [][]float64{
		{0.04, 0.02},
		{0.01, 0.03},
	}, Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNumericalInstability)
}

func TestRiskFromMatrix_RejectsNonPositiveVariance(t *testing.T) {
	rc := NewRiskCalculator(zerolog.Nop())

	_, err := rc.FromMatrix([]string{"AAA", "BBB"}, [][]float64{
		{0.0, 0.0},
		{0.0, 0.03},
	}, Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNumericalInstability)
}

func TestRiskFromMatrix_RejectsWrongShape(t *testing.T) {
	rc := NewRiskCalculator(zerolog.Nop())

	_, err := rc.FromMatrix([]string{"AAA", "BBB"}, [][]float64{
		{0.04, 0.01},
	}, Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAssetMismatch)
}

func TestCorrelation(t *testing.T) {
	rc := NewRiskCalculator(zerolog.Nop())

	model, err := rc.FromMatrix([]string{"AAA", "BBB"}, [][]float64{
		{0.04, 0.012},
		{0.012, 0.09},
	}, Config{})
	require.NoError(t, err)

	corr := model.Correlation()
	assert.InDelta(t, 1.0, corr.At(0, 0), 1e-12)
	assert.InDelta(t, 0.012/(0.2*0.3), corr.At(0, 1), 1e-12)
}
