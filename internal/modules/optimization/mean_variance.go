package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
)

// targetReturnTolerance is the relative tolerance on the target-return
// equality constraint of the converged solution.
const targetReturnTolerance = 1e-4

// MeanVarianceOptimizer solves the canonical Markowitz problem: maximize
// μ'w - (λ/2)w'Σw subject to Σw=1 and bounds, optionally with the equality
// constraint μ'w = target.
type MeanVarianceOptimizer struct {
	log zerolog.Logger
}

// NewMeanVarianceOptimizer creates a new mean-variance optimizer.
func NewMeanVarianceOptimizer(log zerolog.Logger) *MeanVarianceOptimizer {
	return &MeanVarianceOptimizer{
		log: log.With().Str("component", "mean_variance").Logger(),
	}
}

// Optimize solves the configured mean-variance problem. Target returns
// outside the range achievable under the bounds fail with
// ErrInfeasibleConstraint before any solve is attempted.
func (o *MeanVarianceOptimizer) Optimize(mu ReturnVector, cov CovarianceMatrix, cons Constraints, cfg Config) (*Result, error) {
	cfg = cfg.withDefaults()
	if err := checkAligned(mu, cov); err != nil {
		return nil, err
	}

	lambda := cons.RiskAversion
	if lambda <= 0 {
		lambda = 1.0
	}

	if cons.TargetReturn != nil {
		return o.solveTargetReturn(mu, cov, cons, cfg, lambda, *cons.TargetReturn)
	}
	return o.solveRiskAversion(mu, cov, cons, cfg, lambda)
}

// solveRiskAversion minimizes (λ/2)w'Σw - μ'w over the bounded simplex.
func (o *MeanVarianceOptimizer) solveRiskAversion(
	mu ReturnVector,
	cov CovarianceMatrix,
	cons Constraints,
	cfg Config,
	lambda float64,
) (*Result, error) {
	grad := func(w, out []float64) {
		sigmaW := covTimesWeights(cov, w)
		for i := range out {
			out[i] = lambda*sigmaW[i] - mu.Values[i]
		}
	}

	step, err := quadraticStepSize(cov, lambda)
	if err != nil {
		return nil, err
	}

	w, iterations, converged := projectedGradient(cons, grad, step, cfg.ConvergenceTolerance, cfg.MaxIterations)
	if !converged {
		o.log.Warn().Int("iterations", iterations).Msg("Mean-variance solve hit iteration budget")
	}
	if err := cons.verify(w, WeightTolerance); err != nil {
		return nil, err
	}

	diag := Diagnostics{SolverIterations: iterations}
	return buildResult(mu, cov, cons, w, diag), nil
}

// solveTargetReturn minimizes variance subject to μ'w = target, enforced by
// a quadratic penalty ramped across outer rounds with warm starts.
func (o *MeanVarianceOptimizer) solveTargetReturn(
	mu ReturnVector,
	cov CovarianceMatrix,
	cons Constraints,
	cfg Config,
	lambda float64,
	target float64,
) (*Result, error) {
	minRet, maxRet := cons.returnRange(mu.Values)
	slack := targetReturnTolerance * math.Max(1, math.Abs(target))
	if target < minRet-slack || target > maxRet+slack {
		return nil, fmt.Errorf("%w: target return %v outside achievable range [%v, %v]",
			ErrInfeasibleConstraint, target, minRet, maxRet)
	}

	muNormSq := floats.Dot(mu.Values, mu.Values)
	baseStep, err := quadraticStepSize(cov, lambda)
	if err != nil {
		return nil, err
	}

	w := cons.projectToSimplex(equalWeights(cov.Dim()))
	totalIterations := 0

	for _, penalty := range []float64{1e2, 1e4, 1e6} {
		grad := func(w, out []float64) {
			sigmaW := covTimesWeights(cov, w)
			gap := portfolioReturn(mu.Values, w) - target
			for i := range out {
				out[i] = lambda*sigmaW[i] - mu.Values[i] + 2*penalty*gap*mu.Values[i]
			}
		}

		// Tighten the step for the stiffer penalized Hessian.
		step := 1.0 / (1.0/baseStep + 2*penalty*muNormSq)

		// Warm start from the previous round.
		start := w
		solved, iterations, _ := projectedGradientFrom(start, cons, grad, step, cfg.ConvergenceTolerance, cfg.MaxIterations)
		w = solved
		totalIterations += iterations
	}

	if err := cons.verify(w, WeightTolerance); err != nil {
		return nil, err
	}
	achieved := portfolioReturn(mu.Values, w)
	if math.Abs(achieved-target) > targetReturnTolerance*math.Max(1, math.Abs(target)) {
		return nil, fmt.Errorf("%w: achieved return %v misses target %v", ErrConvergence, achieved, target)
	}

	diag := Diagnostics{SolverIterations: totalIterations}
	return buildResult(mu, cov, cons, w, diag), nil
}
