package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/pkg/formulas"
)

// Estimator converts price/return history into an expected-return vector.
type Estimator struct {
	log zerolog.Logger
}

// NewEstimator creates a new return estimator.
func NewEstimator(log zerolog.Logger) *Estimator {
	return &Estimator{
		log: log.With().Str("component", "returns").Logger(),
	}
}

// Estimate dispatches to the configured return model and produces one
// annualized expected-return estimate per universe asset, in universe order.
func (e *Estimator) Estimate(
	model ReturnModel,
	universe []string,
	series []domain.AssetSeries,
	market *domain.AssetSeries,
	factors []domain.AssetSeries,
	cfg Config,
) (ReturnVector, error) {
	cfg = cfg.withDefaults()

	if len(universe) == 0 {
		return ReturnVector{}, fmt.Errorf("%w: empty universe", ErrInsufficientData)
	}
	seen := make(map[string]bool, len(universe))
	for _, symbol := range universe {
		if seen[symbol] {
			return ReturnVector{}, fmt.Errorf("%w: duplicate symbol %s in universe", ErrAssetMismatch, symbol)
		}
		seen[symbol] = true
	}

	var (
		rv  ReturnVector
		err error
	)

	switch model {
	case ModelEqualWeighted:
		rv, err = e.equalWeighted(universe, cfg)
	case ModelHistorical:
		rv, err = e.historical(universe, series, cfg)
	case ModelCAPM:
		rv, err = e.capm(universe, series, market, cfg)
	case ModelFactor:
		rv, err = e.factor(universe, series, factors, cfg)
	default:
		return ReturnVector{}, fmt.Errorf("unknown return model: %s", model)
	}
	if err != nil {
		return ReturnVector{}, err
	}

	for i, v := range rv.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ReturnVector{}, fmt.Errorf("%w: non-finite expected return for %s",
				ErrNumericalInstability, rv.Symbols[i])
		}
	}

	e.log.Debug().
		Str("model", string(model)).
		Int("num_assets", len(universe)).
		Msg("Estimated expected returns")

	return rv, nil
}

// equalWeighted ignores history and assigns every asset the portfolio-level
// assumed rate. Used as a naive baseline.
func (e *Estimator) equalWeighted(universe []string, cfg Config) (ReturnVector, error) {
	values := make([]float64, len(universe))
	for i := range values {
		values[i] = cfg.AssumedReturn
	}
	return ReturnVector{Symbols: universe, Values: values}, nil
}

// historical annualizes the arithmetic mean of periodic returns over the
// lookback window: mean * periodsPerYear (log returns scale the same way).
func (e *Estimator) historical(universe []string, series []domain.AssetSeries, cfg Config) (ReturnVector, error) {
	selected, err := selectSeries(universe, series)
	if err != nil {
		return ReturnVector{}, err
	}

	aligned, _, err := alignedReturns(selected, cfg.ReturnKind, cfg.Alignment, cfg.MaxGap, 2)
	if err != nil {
		return ReturnVector{}, err
	}

	values := make([]float64, len(universe))
	for i, symbol := range universe {
		values[i] = formulas.Mean(aligned[symbol]) * cfg.PeriodsPerYear
	}
	return ReturnVector{Symbols: universe, Values: values}, nil
}

// capm estimates r_i = rf + beta_i * (r_market - rf), with beta estimated
// from the overlapping history of each asset and the market series.
func (e *Estimator) capm(universe []string, series []domain.AssetSeries, market *domain.AssetSeries, cfg Config) (ReturnVector, error) {
	if market == nil {
		return ReturnVector{}, fmt.Errorf("%w: CAPM requires a market series", ErrInsufficientData)
	}

	selected, err := selectSeries(universe, series)
	if err != nil {
		return ReturnVector{}, err
	}
	selected = append(selected, *market)

	aligned, _, err := alignedReturns(selected, cfg.ReturnKind, cfg.Alignment, cfg.MaxGap, 2)
	if err != nil {
		return ReturnVector{}, err
	}

	marketReturns := aligned[market.Symbol]
	marketVariance := formulas.Variance(marketReturns)
	if marketVariance <= 0 {
		return ReturnVector{}, fmt.Errorf("%w: market series %s has zero variance",
			ErrInsufficientData, market.Symbol)
	}
	marketReturn := formulas.Mean(marketReturns) * cfg.PeriodsPerYear

	values := make([]float64, len(universe))
	for i, symbol := range universe {
		beta := formulas.Covariance(aligned[symbol], marketReturns) / marketVariance
		values[i] = cfg.RiskFreeRate + beta*(marketReturn-cfg.RiskFreeRate)
	}
	return ReturnVector{Symbols: universe, Values: values}, nil
}

// factor regresses each asset's returns on the factor return series
// (with intercept) and extrapolates r_i = alpha_i + Σ loading_ik * mean(f_k).
func (e *Estimator) factor(universe []string, series []domain.AssetSeries, factors []domain.AssetSeries, cfg Config) (ReturnVector, error) {
	if len(factors) == 0 {
		return ReturnVector{}, fmt.Errorf("%w: factor model requires at least one factor series", ErrInsufficientData)
	}

	selected, err := selectSeries(universe, series)
	if err != nil {
		return ReturnVector{}, err
	}
	selected = append(selected, factors...)

	k := len(factors)
	aligned, numObs, err := alignedReturns(selected, cfg.ReturnKind, cfg.Alignment, cfg.MaxGap, k+1)
	if err != nil {
		return ReturnVector{}, err
	}
	if numObs < k+1 {
		return ReturnVector{}, fmt.Errorf("%w: %d observations for %d factors (regression underdetermined)",
			ErrInsufficientData, numObs, k)
	}

	// Design matrix: intercept column followed by one column per factor.
	x := mat.NewDense(numObs, k+1, nil)
	factorMeans := make([]float64, k)
	for j, f := range factors {
		col := aligned[f.Symbol]
		factorMeans[j] = stat.Mean(col, nil)
		for t := 0; t < numObs; t++ {
			x.Set(t, 0, 1.0)
			x.Set(t, j+1, col[t])
		}
	}

	values := make([]float64, len(universe))
	for i, symbol := range universe {
		y := mat.NewVecDense(numObs, aligned[symbol])

		var coef mat.VecDense
		if err := coef.SolveVec(x, y); err != nil {
			return ReturnVector{}, fmt.Errorf("%w: factor regression failed for %s: %v",
				ErrNumericalInstability, symbol, err)
		}

		periodic := coef.AtVec(0)
		for j := 0; j < k; j++ {
			periodic += coef.AtVec(j+1) * factorMeans[j]
		}
		values[i] = periodic * cfg.PeriodsPerYear
	}
	return ReturnVector{Symbols: universe, Values: values}, nil
}

// selectSeries picks the series for each universe symbol, preserving
// universe order, and fails when an asset has no history.
func selectSeries(universe []string, series []domain.AssetSeries) ([]domain.AssetSeries, error) {
	bySymbol := make(map[string]domain.AssetSeries, len(series))
	for _, s := range series {
		bySymbol[s.Symbol] = s
	}

	selected := make([]domain.AssetSeries, 0, len(universe))
	for _, symbol := range universe {
		s, ok := bySymbol[symbol]
		if !ok {
			return nil, fmt.Errorf("%w: no series for %s", ErrInsufficientData, symbol)
		}
		selected = append(selected, s)
	}
	return selected, nil
}
