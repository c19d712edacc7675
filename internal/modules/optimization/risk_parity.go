package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
)

// RiskParityOptimizer finds weights such that each asset's risk contribution
// w_i * (Σw)_i is equal across all assets, subject to Σw=1 and w_i ≥ 0.
type RiskParityOptimizer struct {
	log zerolog.Logger
}

// NewRiskParityOptimizer creates a new risk-parity optimizer.
func NewRiskParityOptimizer(log zerolog.Logger) *RiskParityOptimizer {
	return &RiskParityOptimizer{
		log: log.With().Str("component", "risk_parity").Logger(),
	}
}

// Optimize solves the risk-budgeting problem by cyclical coordinate descent
// on the log-barrier formulation (1/2)w'Σw - c·Σ ln(w_i), whose stationary
// point satisfies w_i(Σw)_i = c for all i. Each coordinate update solves the
// quadratic Σ_ii·w_i² + B_i·w_i - c = 0 in closed form, keeping w_i > 0.
// The iterate is scale-normalized at the end; equality of risk contributions
// is invariant under scaling.
//
// If the maximum relative spread between risk contributions does not fall
// below the configured tolerance within the iteration budget, the call fails
// with ErrConvergence — a non-converged result is never returned.
func (o *RiskParityOptimizer) Optimize(mu ReturnVector, cov CovarianceMatrix, cons Constraints, cfg Config) (*Result, error) {
	cfg = cfg.withDefaults()
	if err := checkAligned(mu, cov); err != nil {
		return nil, err
	}

	n := cov.Dim()
	for i := 0; i < n; i++ {
		if cov.At(i, i) <= 0 {
			return nil, fmt.Errorf("%w: variance for %s is not strictly positive",
				ErrNumericalInstability, cov.Symbols[i])
		}
	}

	// Barrier constant; any positive value yields the same normalized
	// solution. Scaled to keep the raw iterate near 1/n.
	trace := 0.0
	for i := 0; i < n; i++ {
		trace += cov.At(i, i)
	}
	c := trace / float64(n*n*n)

	w := equalWeights(n)
	sigmaW := covTimesWeights(cov, w)

	for iter := 1; iter <= cfg.MaxIterations; iter++ {
		for i := 0; i < n; i++ {
			sigmaII := cov.At(i, i)
			b := sigmaW[i] - sigmaII*w[i]
			updated := (-b + sqrtDiscriminant(b, sigmaII, c)) / (2 * sigmaII)

			// Incremental Σw refresh for the changed coordinate.
			delta := updated - w[i]
			if delta != 0 {
				for j := 0; j < n; j++ {
					sigmaW[j] += cov.At(j, i) * delta
				}
				w[i] = updated
			}
		}

		if spread := riskContributionSpread(cov, w); spread < cfg.ConvergenceTolerance {
			normalize(w)
			if err := verifyNonNegativeSum(cov.Symbols, w); err != nil {
				return nil, err
			}
			diag := Diagnostics{SolverIterations: iter}
			return buildResult(mu, cov, cons, w, diag), nil
		}
	}

	return nil, fmt.Errorf("%w: risk contributions not equalized after %d iterations",
		ErrConvergence, cfg.MaxIterations)
}

// RiskContributions returns each asset's share of portfolio variance,
// w_i * (Σw)_i, for a given weight vector in covariance order.
func RiskContributions(cov CovarianceMatrix, w []float64) []float64 {
	sigmaW := covTimesWeights(cov, w)
	rc := make([]float64, len(w))
	for i := range w {
		rc[i] = w[i] * sigmaW[i]
	}
	return rc
}

// riskContributionSpread computes the maximum relative deviation between
// per-asset risk contributions: (max - min) / mean.
func riskContributionSpread(cov CovarianceMatrix, w []float64) float64 {
	rc := RiskContributions(cov, w)
	mean := floats.Sum(rc) / float64(len(rc))
	if mean <= 0 {
		return 1
	}
	return (floats.Max(rc) - floats.Min(rc)) / mean
}

func sqrtDiscriminant(b, sigmaII, c float64) float64 {
	d := b*b + 4*sigmaII*c
	if d < 0 {
		d = 0
	}
	return math.Sqrt(d)
}

func normalize(w []float64) {
	sum := floats.Sum(w)
	if sum <= 0 {
		return
	}
	for i := range w {
		w[i] /= sum
	}
}

func verifyNonNegativeSum(symbols []string, w []float64) error {
	sum := 0.0
	for i, wi := range w {
		if wi < -WeightTolerance {
			return fmt.Errorf("%w: negative weight for %s", ErrConvergence, symbols[i])
		}
		sum += wi
	}
	if diff := sum - 1; diff > WeightTolerance || diff < -WeightTolerance {
		return fmt.Errorf("%w: weights sum to %v", ErrConvergence, sum)
	}
	return nil
}
