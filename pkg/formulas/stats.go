// Package formulas provides shared statistical building blocks used by the
// return models, the risk calculator and the history jobs.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the sample variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// Covariance calculates the sample covariance between two datasets
func Covariance(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}

// Correlation calculates the Pearson correlation coefficient between two datasets
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// SimpleReturns converts prices to simple percentage returns.
// Returns[i] = (Price[i+1] - Price[i]) / Price[i]
func SimpleReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return returns
}

// LogReturns converts prices to continuously compounded returns.
// Returns[i] = ln(Price[i+1] / Price[i])
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 && prices[i] > 0 {
			returns[i-1] = math.Log(prices[i] / prices[i-1])
		}
	}
	return returns
}

// AnnualizedVolatility scales the standard deviation of periodic returns to a
// yearly figure. Variance scales linearly with the number of periods, so
// volatility scales by the square root.
func AnnualizedVolatility(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 || periodsPerYear <= 0 {
		return 0
	}
	return StdDev(returns) * math.Sqrt(periodsPerYear)
}

// AnnualizedReturn computes the compound annual growth rate from a series of
// periodic returns.
//
// Formula: ((1+r1)*(1+r2)*...*(1+rN))^(periodsPerYear/N) - 1
func AnnualizedReturn(returns []float64, periodsPerYear float64) float64 {
	if len(returns) == 0 || periodsPerYear <= 0 {
		return 0
	}

	cumulative := 1.0
	for _, r := range returns {
		cumulative *= (1 + r)
	}
	if cumulative <= 0 {
		return -1
	}

	numPeriods := float64(len(returns))

	// Very short windows produce extreme annualization artifacts.
	if numPeriods < 3 {
		return cumulative - 1
	}

	years := numPeriods / periodsPerYear
	return math.Pow(cumulative, 1.0/years) - 1
}

// SharpeRatio computes the excess return per unit of volatility.
// Returns 0 when volatility is zero.
func SharpeRatio(expectedReturn, riskFreeRate, volatility float64) float64 {
	if volatility == 0 {
		return 0
	}
	return (expectedReturn - riskFreeRate) / volatility
}

// DownsideDeviation measures the dispersion of returns falling below a target
// rate: the root mean square of the below-target returns. Returns 0 when no
// observation falls below the target.
func DownsideDeviation(returns []float64, target float64) float64 {
	sum := 0.0
	n := 0
	for _, r := range returns {
		if r < target {
			sum += r * r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// SortinoRatio computes the excess return per unit of downside deviation.
// Returns 0 when the downside deviation is zero.
func SortinoRatio(expectedReturn, riskFreeRate, downsideDeviation float64) float64 {
	if downsideDeviation == 0 {
		return 0
	}
	return (expectedReturn - riskFreeRate) / downsideDeviation
}

// MaxDrawdown computes the largest peak-to-trough decline of a price series
// as a fraction of the running peak. The result is 0 for monotonically rising
// prices and negative otherwise.
func MaxDrawdown(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}

	peak := prices[0]
	worst := 0.0
	for _, p := range prices {
		if p > peak {
			peak = p
		}
		if peak > 0 {
			if dd := (p - peak) / peak; dd < worst {
				worst = dd
			}
		}
	}
	return worst
}
