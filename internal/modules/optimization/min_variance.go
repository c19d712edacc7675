package optimization

import (
	"math"

	"github.com/rs/zerolog"
)

// MinVarianceOptimizer minimizes w'Σw subject to Σw=1 and the weight bounds.
type MinVarianceOptimizer struct {
	log zerolog.Logger
}

// NewMinVarianceOptimizer creates a new minimum-variance optimizer.
func NewMinVarianceOptimizer(log zerolog.Logger) *MinVarianceOptimizer {
	return &MinVarianceOptimizer{
		log: log.With().Str("component", "min_variance").Logger(),
	}
}

// Optimize solves the minimum-variance problem. The closed form
// w = Σ⁻¹1 / (1'Σ⁻¹1) is used when it already satisfies the bounds;
// otherwise a projected-gradient solve over the bounded simplex produces the
// bound-feasible minimizer. The returned solution is always verified against
// the constraints before being returned.
func (o *MinVarianceOptimizer) Optimize(mu ReturnVector, cov CovarianceMatrix, cons Constraints, cfg Config) (*Result, error) {
	cfg = cfg.withDefaults()
	if err := checkAligned(mu, cov); err != nil {
		return nil, err
	}

	if w, ok := o.closedForm(cov, cons); ok {
		diag := Diagnostics{ClosedForm: true}
		return buildResult(mu, cov, cons, w, diag), nil
	}

	grad := func(w, out []float64) {
		sigmaW := covTimesWeights(cov, w)
		for i := range out {
			out[i] = 2 * sigmaW[i]
		}
	}

	step, err := quadraticStepSize(cov, 2)
	if err != nil {
		return nil, err
	}

	w, iterations, converged := projectedGradient(cons, grad, step, cfg.ConvergenceTolerance, cfg.MaxIterations)
	if !converged {
		o.log.Warn().Int("iterations", iterations).Msg("Minimum-variance solve hit iteration budget")
	}
	if err := cons.verify(w, WeightTolerance); err != nil {
		return nil, err
	}

	diag := Diagnostics{SolverIterations: iterations}
	return buildResult(mu, cov, cons, w, diag), nil
}

// closedForm computes Σ⁻¹1 normalized to sum to one and reports whether the
// result is feasible under the bounds.
func (o *MinVarianceOptimizer) closedForm(cov CovarianceMatrix, cons Constraints) ([]float64, bool) {
	n := cov.Dim()
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}

	x, err := solveSPD(cov, ones)
	if err != nil {
		return nil, false
	}

	sum := 0.0
	for _, xi := range x {
		sum += xi
	}
	if math.Abs(sum) < 1e-12 {
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
