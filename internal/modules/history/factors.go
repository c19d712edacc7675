package history

import (
	"fmt"
	"math"
	"time"

	"github.com/markcheno/go-talib"

	"github.com/aristath/allocator/internal/domain"
)

// Factor series names produced by BuildFactors.
const (
	FactorMomentum   = "MOMENTUM"
	FactorVolatility = "VOLATILITY"
)

// BuildFactors derives style-factor return series from a benchmark price
// series, for use with the factor return model. Momentum is the rate of
// change over the period; volatility is the rolling standard deviation of
// daily returns.
func BuildFactors(benchmark domain.AssetSeries, period int) ([]domain.AssetSeries, error) {
	if period < 2 {
		return nil, fmt.Errorf("factor period %d too short", period)
	}
	if len(benchmark.Points) < period+2 {
		return nil, fmt.Errorf("benchmark %s has %d observations, need at least %d",
			benchmark.Symbol, len(benchmark.Points), period+2)
	}

	closes := benchmark.Values()
	dates := make([]time.Time, len(benchmark.Points))
	for i, p := range benchmark.Points {
		dates[i] = p.Date
	}

	momentum := talib.Roc(closes, period)
	returns := benchmark.Returns(domain.ReturnSimple)
	// StdDev window aligns to the returns array, one element shorter than
	// closes; re-pad so indices match the close dates.
	vol := talib.StdDev(returns, period, 1.0)

	momentumSeries := domain.AssetSeries{Symbol: FactorMomentum, Kind: domain.SeriesReturns}
	volSeries := domain.AssetSeries{Symbol: FactorVolatility, Kind: domain.SeriesReturns}

	for i := range closes {
		if i < len(momentum) && isUsable(momentum[i]) {
			momentumSeries.Points = append(momentumSeries.Points, domain.PricePoint{
				Date: dates[i], Value: momentum[i] / 100,
			})
		}
	}
	for i := range returns {
		if i < len(vol) && isUsable(vol[i]) {
			// returns[i] covers the period ending at dates[i+1]
			volSeries.Points = append(volSeries.Points, domain.PricePoint{
				Date: dates[i+1], Value: vol[i],
			})
		}
	}

	if len(momentumSeries.Points) < 2 || len(volSeries.Points) < 2 {
		return nil, fmt.Errorf("benchmark %s yields too few factor observations", benchmark.Symbol)
	}
	return []domain.AssetSeries{momentumSeries, volSeries}, nil
}

// isUsable filters out talib's leading zero-padded warmup values and NaNs.
func isUsable(v float64) bool {
	return v != 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
