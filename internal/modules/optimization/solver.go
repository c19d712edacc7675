package optimization

import (
	"math"

	"github.com/aristath/allocator/pkg/formulas"
)

// projectedGradient minimizes a smooth objective over the bounded simplex
// {sum(w)=1, lower <= w <= upper} by gradient steps followed by exact
// projection. grad writes the gradient of the objective at w into out.
// step should be the inverse of the gradient's Lipschitz constant.
//
// Returns the final iterate, the number of iterations used, and whether the
// weight-change criterion was met within maxIter.
func projectedGradient(
	cons Constraints,
	grad func(w, out []float64),
	step, tol float64,
	maxIter int,
) ([]float64, int, bool) {
	return projectedGradientFrom(equalWeights(len(cons.Symbols)), cons, grad, step, tol, maxIter)
}

// projectedGradientFrom is projectedGradient with an explicit starting point,
// used for warm starts across penalty rounds.
func projectedGradientFrom(
	start []float64,
	cons Constraints,
	grad func(w, out []float64),
	step, tol float64,
	maxIter int,
) ([]float64, int, bool) {
	n := len(start)
	w := cons.projectToSimplex(start)
	g := make([]float64, n)
	next := make([]float64, n)

	for iter := 1; iter <= maxIter; iter++ {
		grad(w, g)
		for i := 0; i < n; i++ {
			next[i] = w[i] - step*g[i]
		}
		next = cons.projectToSimplex(next)

		maxChange := 0.0
		for i := 0; i < n; i++ {
			if d := math.Abs(next[i] - w[i]); d > maxChange {
				maxChange = d
			}
		}
		copy(w, next)

		if maxChange < tol {
			return w, iter, true
		}
	}

	return w, maxIter, false
}

// quadraticStepSize returns the gradient step for an objective whose Hessian
// is scale * Σ, using the largest eigenvalue as the Lipschitz constant.
func quadraticStepSize(cov CovarianceMatrix, scale float64) (float64, error) {
	_, maxEig, err := eigenRange(cov.Matrix)
	if err != nil {
		return 0, err
	}
	lipschitz := scale * maxEig
	if lipschitz <= 0 {
		lipschitz = 1
	}
	return 1.0 / lipschitz, nil
}

// buildResult assembles the immutable optimization output with portfolio
// statistics derived from the final weights.
func buildResult(mu ReturnVector, cov CovarianceMatrix, cons Constraints, w []float64, diag Diagnostics) *Result {
	weights := make(map[string]float64, len(w))
	for i, symbol := range cov.Symbols {
		weights[symbol] = w[i]
	}

	expectedReturn := portfolioReturn(mu.Values, w)
	volatility := math.Sqrt(math.Max(portfolioVariance(cov, w), 0))

	return &Result{
		Weights:        weights,
		ExpectedReturn: expectedReturn,
		Volatility:     volatility,
		SharpeRatio:    formulas.SharpeRatio(expectedReturn, cons.RiskFreeRate, volatility),
		Diagnostics:    diag,
	}
}
