package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/allocator/internal/domain"
)

// Conditioning thresholds for near-singular covariance detection.
const (
	// maxConditionNumber - above this eigenvalue ratio the matrix is treated
	// as near-singular and regularized.
	maxConditionNumber = 1e12
	// minEigenvalueRatio - smallest eigenvalue relative to the average
	// variance below which the matrix is treated as near-singular.
	minEigenvalueRatio = 1e-10
	// defaultEpsilonRatio - default regularization epsilon relative to the
	// average variance (trace / n), used when none is configured.
	defaultEpsilonRatio = 1e-6
)

// RiskCalculator converts price/return history into an annualized covariance
// matrix plus derived risk statistics.
type RiskCalculator struct {
	log zerolog.Logger
}

// NewRiskCalculator creates a new risk calculator.
func NewRiskCalculator(log zerolog.Logger) *RiskCalculator {
	return &RiskCalculator{
		log: log.With().Str("component", "risk").Logger(),
	}
}

// Compute builds the sample covariance of periodic returns over the aligned
// history, annualizes it by periodsPerYear, and conditions it. Near-singular
// matrices are recovered by adding epsilon to the diagonal; the recovery is
// reported on the RiskModel, never silent.
func (rc *RiskCalculator) Compute(universe []string, series []domain.AssetSeries, cfg Config) (*RiskModel, error) {
	cfg = cfg.withDefaults()

	selected, err := selectSeries(universe, series)
	if err != nil {
		return nil, err
	}

	aligned, numObs, err := alignedReturns(selected, cfg.ReturnKind, cfg.Alignment, cfg.MaxGap, 2)
	if err != nil {
		return nil, err
	}

	n := len(universe)
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		ri := aligned[universe[i]]
		for j := i; j < n; j++ {
			cov := stat.Covariance(ri, aligned[universe[j]], nil)
			sym.SetSym(i, j, cov*cfg.PeriodsPerYear)
		}
	}

	rc.log.Debug().
		Int("num_assets", n).
		Int("num_observations", numObs).
		Float64("periods_per_year", cfg.PeriodsPerYear).
		Msg("Computed sample covariance")

	return rc.condition(CovarianceMatrix{Symbols: universe, Matrix: sym}, cfg)
}

// FromMatrix conditions a covariance matrix computed upstream. The matrix is
// expected to be annualized already.
func (rc *RiskCalculator) FromMatrix(universe []string, data [][]float64, cfg Config) (*RiskModel, error) {
	cfg = cfg.withDefaults()

	cov, err := newCovarianceMatrix(universe, data)
	if err != nil {
		return nil, err
	}
	return rc.condition(cov, cfg)
}

// condition checks positive-definiteness and applies diagonal regularization
// when the matrix is near-singular.
func (rc *RiskCalculator) condition(cov CovarianceMatrix, cfg Config) (*RiskModel, error) {
	n := cov.Dim()

	trace := 0.0
	for i := 0; i < n; i++ {
		trace += cov.At(i, i)
	}
	if trace <= 0 {
		return nil, fmt.Errorf("%w: covariance trace is %v", ErrNumericalInstability, trace)
	}
	avgVariance := trace / float64(n)

	minEig, maxEig, err := eigenRange(cov.Matrix)
	if err != nil {
		return nil, err
	}

	model := &RiskModel{Cov: cov}

	nearSingular := minEig < minEigenvalueRatio*avgVariance ||
		(minEig > 0 && maxEig/minEig > maxConditionNumber)
	if nearSingular {
		epsilon := cfg.RegularizationEpsilon
		if epsilon <= 0 {
			epsilon = defaultEpsilonRatio * avgVariance
		}

		regularized := addToDiagonal(cov.Matrix, epsilon)
		newMin, _, err := eigenRange(regularized)
		if err != nil {
			return nil, err
		}
		if newMin <= 0 {
			return nil, fmt.Errorf("%w: covariance remains non-positive-definite after adding epsilon %v (min eigenvalue %v)",
				ErrNumericalInstability, epsilon, newMin)
		}

		model.Cov = CovarianceMatrix{Symbols: cov.Symbols, Matrix: regularized}
		model.Regularized = true
		model.Epsilon = epsilon

		rc.log.Warn().
			Float64("min_eigenvalue", minEig).
			Float64("epsilon", epsilon).
			Msg("Covariance matrix near-singular, regularized")
	}

	model.Volatility = make(map[string]float64, n)
	for i, symbol := range cov.Symbols {
		variance := model.Cov.At(i, i)
		if variance <= 0 {
			return nil, fmt.Errorf("%w: variance for %s is %v after conditioning",
				ErrNumericalInstability, symbol, variance)
		}
		model.Volatility[symbol] = math.Sqrt(variance)
	}

	return model, nil
}

// Correlation derives the correlation matrix from the conditioned covariance:
// corr_ij = cov_ij / (sigma_i * sigma_j). Pure derived view, not stored.
func (m *RiskModel) Correlation() *mat.SymDense {
	n := m.Cov.Dim()
	corr := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		si := math.Sqrt(m.Cov.At(i, i))
		for j := i; j < n; j++ {
			sj := math.Sqrt(m.Cov.At(j, j))
			corr.SetSym(i, j, m.Cov.At(i, j)/(si*sj))
		}
	}
	return corr
}
