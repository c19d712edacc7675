// Package optimization implements the portfolio construction engine: return
// models, the risk calculator and the optimizer family. All operations are
// pure functions over immutable inputs; configuration arrives explicitly per
// call and nothing here touches the environment, files or databases.
package optimization

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/allocator/internal/domain"
)

// ReturnModel selects how expected returns are estimated.
type ReturnModel string

const (
	ModelEqualWeighted ReturnModel = "equal_weighted"
	ModelHistorical    ReturnModel = "historical"
	ModelCAPM          ReturnModel = "capm"
	ModelFactor        ReturnModel = "factor"
)

// OptimizerKind selects the optimization problem to solve.
type OptimizerKind string

const (
	OptimizerMinVariance    OptimizerKind = "min_variance"
	OptimizerMeanVariance   OptimizerKind = "mean_variance"
	OptimizerMaxSharpe      OptimizerKind = "max_sharpe"
	OptimizerRiskParity     OptimizerKind = "risk_parity"
	OptimizerBlackLitterman OptimizerKind = "black_litterman"
)

// Kinds lists every supported optimizer.
func Kinds() []OptimizerKind {
	return []OptimizerKind{
		OptimizerMinVariance,
		OptimizerMeanVariance,
		OptimizerMaxSharpe,
		OptimizerRiskParity,
		OptimizerBlackLitterman,
	}
}

// Models lists every supported return model.
func Models() []ReturnModel {
	return []ReturnModel{
		ModelEqualWeighted,
		ModelHistorical,
		ModelCAPM,
		ModelFactor,
	}
}

// AlignmentPolicy controls how series with different history lengths are
// reconciled before estimation.
type AlignmentPolicy string

const (
	// AlignIntersect - use only the observation dates common to all series (default).
	AlignIntersect AlignmentPolicy = "intersect"
	// AlignStrict - fail with ErrInsufficientData when series do not cover
	// the exact same dates.
	AlignStrict AlignmentPolicy = "strict"
)

// View is an investor belief about asset returns for the Black-Litterman
// model. Assets maps each involved symbol to its pick weight: {A: 1} is an
// absolute view on A, {A: 1, B: -1} means A outperforms B.
type View struct {
	Assets     map[string]float64 `json:"assets"`
	Return     float64            `json:"return"`
	Confidence float64            `json:"confidence"` // (0, 1]
}

// Config carries every knob the engine recognizes. Zero values are replaced
// by defaults via withDefaults; the engine never reads process-wide state.
type Config struct {
	LookbackDays   int               `json:"lookback_days"`
	PeriodsPerYear float64           `json:"periods_per_year"` // 252 daily, 12 monthly
	ReturnKind     domain.ReturnKind `json:"return_kind"`      // simple or log
	Alignment      AlignmentPolicy   `json:"alignment"`
	MaxGap         time.Duration     `json:"max_gap"` // series gap tolerance, 0 disables

	AssumedReturn float64  `json:"assumed_return"` // equal-weighted baseline rate
	RiskFreeRate  float64  `json:"risk_free_rate"`
	RiskAversion  float64  `json:"risk_aversion"` // mean-variance lambda
	TargetReturn  *float64 `json:"target_return,omitempty"`

	LowerBound float64                `json:"lower_bound"`
	UpperBound float64                `json:"upper_bound"`
	Bounds     map[string][2]float64  `json:"bounds,omitempty"` // per-asset overrides

	MarketWeights      map[string]float64 `json:"market_weights,omitempty"` // Black-Litterman prior
	Views              []View             `json:"views,omitempty"`
	Tau                float64            `json:"tau"`
	PosteriorOptimizer OptimizerKind      `json:"posterior_optimizer"` // mean_variance or max_sharpe

	RegularizationEpsilon float64 `json:"regularization_epsilon"`
	ConvergenceTolerance  float64 `json:"convergence_tolerance"`
	MaxIterations         int     `json:"max_iterations"`
}

// withDefaults returns a copy with unset fields replaced by engine defaults.
func (c Config) withDefaults() Config {
	if c.PeriodsPerYear <= 0 {
		c.PeriodsPerYear = 252
	}
	if c.ReturnKind == "" {
		c.ReturnKind = domain.ReturnSimple
	}
	if c.Alignment == "" {
		c.Alignment = AlignIntersect
	}
	if c.UpperBound <= 0 {
		// Global bounds default to [0, 1]; per-asset exclusions go through
		// the Bounds map.
		c.UpperBound = 1.0
	}
	if c.RiskAversion <= 0 {
		c.RiskAversion = 1.0
	}
	if c.Tau <= 0 {
		c.Tau = 0.05
	}
	if c.PosteriorOptimizer == "" {
		c.PosteriorOptimizer = OptimizerMeanVariance
	}
	if c.ConvergenceTolerance <= 0 {
		c.ConvergenceTolerance = 1e-6
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 1000
	}
	return c
}

// ReturnVector is an expected-return estimate per asset, in universe order.
type ReturnVector struct {
	Symbols []string
	Values  []float64
}

// Get returns the expected return for a symbol.
func (rv ReturnVector) Get(symbol string) (float64, bool) {
	for i, s := range rv.Symbols {
		if s == symbol {
			return rv.Values[i], true
		}
	}
	return 0, false
}

// AsMap converts the vector to a symbol-keyed map.
func (rv ReturnVector) AsMap() map[string]float64 {
	m := make(map[string]float64, len(rv.Symbols))
	for i, s := range rv.Symbols {
		m[s] = rv.Values[i]
	}
	return m
}

// CovarianceMatrix is a symmetric covariance matrix indexed by the same
// ordered asset set as the ReturnVector it is used with.
type CovarianceMatrix struct {
	Symbols []string
	Matrix  *mat.SymDense
}

// At returns the covariance between the i-th and j-th assets.
func (cm CovarianceMatrix) At(i, j int) float64 {
	return cm.Matrix.At(i, j)
}

// Dim returns the number of assets.
func (cm CovarianceMatrix) Dim() int {
	return len(cm.Symbols)
}

// RiskModel is the risk calculator output: annualized covariance plus
// derived per-asset volatility, with regularization diagnostics.
type RiskModel struct {
	Cov         CovarianceMatrix
	Volatility  map[string]float64
	Regularized bool
	Epsilon     float64
}

// Diagnostics surfaces observable side effects of a computation. It travels
// with the result and is never swallowed.
type Diagnostics struct {
	CovarianceRegularized bool    `json:"covariance_regularized"`
	RegularizationEpsilon float64 `json:"regularization_epsilon,omitempty"`
	SolverIterations      int     `json:"solver_iterations"`
	ClosedForm            bool    `json:"closed_form"`
}

// Result is the immutable output of one optimization.
type Result struct {
	Weights        map[string]float64 `json:"weights"`
	ExpectedReturn float64            `json:"expected_return"`
	Volatility     float64            `json:"volatility"`
	SharpeRatio    float64            `json:"sharpe_ratio"`
	Diagnostics    Diagnostics        `json:"diagnostics"`
}

// Request is the engine's function-call boundary with the surrounding
// system. Either Series or the pre-aggregated ExpectedReturns+Covariance
// pair must be supplied.
type Request struct {
	Universe  []string             `json:"universe"`
	Series    []domain.AssetSeries `json:"series,omitempty"`
	Market    *domain.AssetSeries  `json:"market,omitempty"`
	Factors   []domain.AssetSeries `json:"factors,omitempty"`
	Model     ReturnModel          `json:"model"`
	Optimizer OptimizerKind        `json:"optimizer"`

	// Pre-aggregated inputs, used when upstream already computed them.
	ExpectedReturns map[string]float64 `json:"expected_returns,omitempty"`
	Covariance      [][]float64        `json:"covariance,omitempty"`

	Config Config `json:"config"`
}
