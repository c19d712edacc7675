package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/pkg/formulas"
)

// MaxSharpeOptimizer maximizes (μ'w - rf) / sqrt(w'Σw) subject to Σw=1 and
// the weight bounds.
type MaxSharpeOptimizer struct {
	log zerolog.Logger
}

// NewMaxSharpeOptimizer creates a new maximum-Sharpe optimizer.
func NewMaxSharpeOptimizer(log zerolog.Logger) *MaxSharpeOptimizer {
	return &MaxSharpeOptimizer{
		log: log.With().Str("component", "max_sharpe").Logger(),
	}
}

// Optimize computes the tangency portfolio. The closed form
// w ∝ Σ⁻¹(μ - rf·1) is used when it satisfies the bounds; otherwise the
// bounded tangency is located by golden-section search over the risk
// aversion of the mean-variance frontier, where the Sharpe ratio is
// unimodal. When no asset's expected return exceeds the risk-free rate the
// tangency is undefined and the call fails with ErrInfeasibleConstraint.
func (o *MaxSharpeOptimizer) Optimize(mu ReturnVector, cov CovarianceMatrix, cons Constraints, cfg Config) (*Result, error) {
	cfg = cfg.withDefaults()
	if err := checkAligned(mu, cov); err != nil {
		return nil, err
	}

	rf := cons.RiskFreeRate
	best := math.Inf(-1)
	for _, v := range mu.Values {
		if v > best {
			best = v
		}
	}
	if best <= rf {
		return nil, fmt.Errorf("%w: no asset return above risk-free rate %v, tangency undefined",
			ErrInfeasibleConstraint, rf)
	}

	if w, ok := o.closedForm(mu, cov, cons, rf); ok {
		diag := Diagnostics{ClosedForm: true}
		return buildResult(mu, cov, cons, w, diag), nil
	}

	w, iterations, err := o.frontierSearch(mu, cov, cons, cfg, rf)
	if err != nil {
		return nil, err
	}
	if err := cons.verify(w, WeightTolerance); err != nil {
		return nil, err
	}

	diag := Diagnostics{SolverIterations: iterations}
	return buildResult(mu, cov, cons, w, diag), nil
}

// closedForm computes Σ⁻¹(μ - rf·1) renormalized to sum to one and reports
// whether the result is feasible under the bounds.
func (o *MaxSharpeOptimizer) closedForm(mu ReturnVector, cov CovarianceMatrix, cons Constraints, rf float64) ([]float64, bool) {
	n := cov.Dim()
	excess := make([]float64, n)
	for i, v := range mu.Values {
		excess[i] = v - rf
	}

	x, err := solveSPD(cov, excess)
	if err != nil {
		return nil, false
	}

	sum := 0.0
	for _, xi := range x {
		sum += xi
	}
	if sum <= 1e-12 {
		return nil, false
	}

	w := make([]float64, n)
	for i := range x {
		w[i] = x[i] / sum
	}

	if !cons.feasible(w, WeightTolerance) {
		return nil, false
	}
	return w, true
}

// frontierSearch walks the bounded efficient frontier parameterized by the
// risk-aversion lambda and returns the frontier point with the highest
// Sharpe ratio.
func (o *MaxSharpeOptimizer) frontierSearch(
	mu ReturnVector,
	cov CovarianceMatrix,
	cons Constraints,
	cfg Config,
	rf float64,
) ([]float64, int, error) {
	totalIterations := 0

	solveAt := func(lambda float64) ([]float64, float64) {
		grad := func(w, out []float64) {
			sigmaW := covTimesWeights(cov, w)
			for i := range out {
				out[i] = lambda*sigmaW[i] - mu.Values[i]
			}
		}

		step, err := quadraticStepSize(cov, lambda)
		if err != nil {
			return nil, math.Inf(-1)
		}

		w, iterations, _ := projectedGradient(cons, grad, step, cfg.ConvergenceTolerance, cfg.MaxIterations)
		totalIterations += iterations

		ret := portfolioReturn(mu.Values, w)
		vol := math.Sqrt(math.Max(portfolioVariance(cov, w), 0))
		return w, formulas.SharpeRatio(ret, rf, vol)
	}

	// Golden-section search on log(lambda). Sharpe is unimodal along the
	// efficient frontier between the max-return and min-variance ends.
	const (
		logLo = -6.0
		logHi = 8.0
		phi   = 0.6180339887498949
	)

	lo, hi := logLo, logHi
	x1 := hi - phi*(hi-lo)
	x2 := lo + phi*(hi-lo)
	w1, s1 := solveAt(math.Exp(x1))
	w2, s2 := solveAt(math.Exp(x2))

	for iter := 0; iter < 48 && hi-lo > 1e-4; iter++ {
		if s1 >= s2 {
			hi = x2
			x2, w2, s2 = x1, w1, s1
			x1 = hi - phi*(hi-lo)
			w1, s1 = solveAt(math.Exp(x1))
		} else {
			lo = x1
			x1, w1, s1 = x2, w2, s2
			x2 = lo + phi*(hi-lo)
			w2, s2 = solveAt(math.Exp(x2))
		}
	}

	var w []float64
	if s1 >= s2 {
		w = w1
	} else {
		w = w2
	}
	if w == nil {
		return nil, totalIterations, fmt.Errorf("%w: frontier search produced no feasible portfolio", ErrConvergence)
	}
	return w, totalIterations, nil
}
