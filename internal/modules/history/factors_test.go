package history

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/domain"
)

func benchmarkSeries(n int) domain.AssetSeries {
	s := domain.AssetSeries{Symbol: "MKT", Kind: domain.SeriesPrices}
	price := 100.0
	for i := 0; i < n; i++ {
		// Deterministic wiggle around an upward drift.
		price *= 1 + 0.001 + 0.01*math.Sin(float64(i))
		s.Points = append(s.Points, domain.PricePoint{Date: day(i), Value: price})
	}
	return s
}

func TestBuildFactors(t *testing.T) {
	factors, err := BuildFactors(benchmarkSeries(60), 20)
	require.NoError(t, err)
	require.Len(t, factors, 2)

	bySymbol := map[string]domain.AssetSeries{}
	for _, f := range factors {
		bySymbol[f.Symbol] = f
	}

	momentum, ok := bySymbol[FactorMomentum]
	require.True(t, ok)
	assert.Equal(t, domain.SeriesReturns, momentum.Kind)
	assert.GreaterOrEqual(t, len(momentum.Points), 2)

	vol, ok := bySymbol[FactorVolatility]
	require.True(t, ok)
	assert.Equal(t, domain.SeriesReturns, vol.Kind)
	for _, p := range vol.Points {
		assert.Greater(t, p.Value, 0.0, "rolling volatility is positive")
	}
}

func TestBuildFactors_DatesAscend(t *testing.T) {
	factors, err := BuildFactors(benchmarkSeries(60), 20)
	require.NoError(t, err)

	for _, f := range factors {
		for i := 1; i < len(f.Points); i++ {
			assert.True(t, f.Points[i].Date.After(f.Points[i-1].Date),
				"%s dates must ascend", f.Symbol)
		}
	}
}

func TestBuildFactors_TooShort(t *testing.T) {
	_, err := BuildFactors(benchmarkSeries(10), 20)
	require.Error(t, err)

	_, err = BuildFactors(benchmarkSeries(60), 1)
	require.Error(t, err)
}
