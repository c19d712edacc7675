package optimization

import (
	"fmt"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// omegaFloor keeps the view-uncertainty matrix invertible when a view is
// supplied with full confidence.
const omegaFloor = 1e-10

// BlackLittermanOptimizer blends a market-implied equilibrium prior with
// investor views into a posterior expected-return vector, then feeds the
// posterior into mean-variance or maximum-Sharpe optimization.
type BlackLittermanOptimizer struct {
	meanVariance *MeanVarianceOptimizer
	maxSharpe    *MaxSharpeOptimizer
	log          zerolog.Logger
}

// NewBlackLittermanOptimizer creates a new Black-Litterman optimizer.
func NewBlackLittermanOptimizer(log zerolog.Logger) *BlackLittermanOptimizer {
	return &BlackLittermanOptimizer{
		meanVariance: NewMeanVarianceOptimizer(log),
		maxSharpe:    NewMaxSharpeOptimizer(log),
		log:          log.With().Str("component", "black_litterman").Logger(),
	}
}

// Optimize derives the prior, blends the configured views into the posterior
// and solves the posterior allocation problem. When market-capitalization
// weights are configured the prior is the reverse-optimized equilibrium
// π = δ·Σ·w_market; otherwise the supplied return vector serves as prior.
func (bl *BlackLittermanOptimizer) Optimize(mu ReturnVector, cov CovarianceMatrix, cons Constraints, cfg Config) (*Result, error) {
	cfg = cfg.withDefaults()
	if err := checkAligned(mu, cov); err != nil {
		return nil, err
	}

	prior := mu
	if len(cfg.MarketWeights) > 0 {
		var err error
		prior, err = bl.EquilibriumReturns(cov, cfg.MarketWeights, cons.RiskAversion)
		if err != nil {
			return nil, err
		}
	}

	posterior, err := bl.PosteriorReturns(prior, cov, cfg.Views, cfg.Tau)
	if err != nil {
		return nil, err
	}

	bl.log.Debug().
		Int("num_views", len(cfg.Views)).
		Float64("tau", cfg.Tau).
		Str("posterior_optimizer", string(cfg.PosteriorOptimizer)).
		Msg("Blended views into posterior returns")

	switch cfg.PosteriorOptimizer {
	case OptimizerMaxSharpe:
		return bl.maxSharpe.Optimize(posterior, cov, cons, cfg)
	default:
		// Posterior allocation uses the risk-aversion form; a target-return
		// equality belongs to plain mean-variance runs.
		posteriorCons := cons
		posteriorCons.TargetReturn = nil
		return bl.meanVariance.Optimize(posterior, cov, posteriorCons, cfg)
	}
}

// EquilibriumReturns reverse-optimizes the CAPM-equilibrium prior
// π = δ·Σ·w_market from market-capitalization weights.
func (bl *BlackLittermanOptimizer) EquilibriumReturns(cov CovarianceMatrix, marketWeights map[string]float64, riskAversion float64) (ReturnVector, error) {
	n := cov.Dim()
	if riskAversion <= 0 {
		riskAversion = 1.0
	}

	w := make([]float64, n)
	for i, symbol := range cov.Symbols {
		weight, ok := marketWeights[symbol]
		if !ok {
			return ReturnVector{}, fmt.Errorf("%w: missing market weight for %s", ErrAssetMismatch, symbol)
		}
		w[i] = weight
	}

	sigmaW := covTimesWeights(cov, w)
	values := make([]float64, n)
	for i := range sigmaW {
		values[i] = riskAversion * sigmaW[i]
	}
	return ReturnVector{Symbols: cov.Symbols, Values: values}, nil
}

// PosteriorReturns computes the Bayesian blend of the prior and the views:
//
//	μ = π + τΣP'(PτΣP' + Ω)⁻¹(Q - Pπ)
//
// which is the adjustment form of
// [(τΣ)⁻¹ + P'Ω⁻¹P]⁻¹ [(τΣ)⁻¹π + P'Ω⁻¹Q]. With zero views the posterior is
// the prior, exactly.
func (bl *BlackLittermanOptimizer) PosteriorReturns(prior ReturnVector, cov CovarianceMatrix, views []View, tau float64) (ReturnVector, error) {
	if len(views) == 0 {
		return prior, nil
	}
	if tau <= 0 {
		tau = 0.05
	}

	n := cov.Dim()
	m := len(views)

	p, q, err := buildViewMatrices(cov.Symbols, views)
	if err != nil {
		return ReturnVector{}, err
	}

	// τΣ
	tauSigma := mat.NewDense(n, n, nil)
	tauSigma.Scale(tau, cov.Matrix)

	// PτΣ and PτΣP'
	var pTauSigma mat.Dense
	pTauSigma.Mul(p, tauSigma)
	var pTauSigmaPT mat.Dense
	pTauSigmaPT.Mul(&pTauSigma, p.T())

	// Ω: diagonal view uncertainty derived from confidence,
	// ω_i = (PτΣP')_ii · (1/confidence - 1), floored to stay invertible.
	omega := mat.NewDense(m, m, nil)
	for i, view := range views {
		base := pTauSigmaPT.At(i, i)
		if base <= 0 {
			return ReturnVector{}, fmt.Errorf("%w: view %d has degenerate pick vector", ErrInvalidView, i)
		}
		uncertainty := base * (1/view.Confidence - 1)
		if uncertainty < omegaFloor {
			uncertainty = omegaFloor
		}
		omega.Set(i, i, uncertainty)
	}

	// M = PτΣP' + Ω
	var middle mat.Dense
	middle.Add(&pTauSigmaPT, omega)
	var middleInv mat.Dense
	if err := middleInv.Inverse(&middle); err != nil {
		return ReturnVector{}, fmt.Errorf("%w: view blend matrix not invertible: %v", ErrNumericalInstability, err)
	}

	// Q - Pπ
	pi := mat.NewVecDense(n, append([]float64(nil), prior.Values...))
	var pPi mat.VecDense
	pPi.MulVec(p, pi)
	var gap mat.VecDense
	gap.SubVec(q, &pPi)

	// adjustment = τΣP' M⁻¹ (Q - Pπ)
	var mInvGap mat.VecDense
	mInvGap.MulVec(&middleInv, &gap)
	var pTmInvGap mat.VecDense
	pTmInvGap.MulVec(p.T(), &mInvGap)
	var adjustment mat.VecDense
	adjustment.MulVec(tauSigma, &pTmInvGap)

	values := make([]float64, n)
	for i := range values {
		values[i] = prior.Values[i] + adjustment.AtVec(i)
	}
	return ReturnVector{Symbols: cov.Symbols, Values: values}, nil
}

// buildViewMatrices converts views into the pick matrix P (m×n) and view
// vector Q (m), validating each view against the asset universe.
func buildViewMatrices(symbols []string, views []View) (*mat.Dense, *mat.VecDense, error) {
	n := len(symbols)
	m := len(views)

	index := make(map[string]int, n)
	for i, s := range symbols {
		index[s] = i
	}

	p := mat.NewDense(m, n, nil)
	q := mat.NewVecDense(m, nil)

	for i, view := range views {
		if len(view.Assets) == 0 {
			return nil, nil, fmt.Errorf("%w: view %d involves no assets", ErrInvalidView, i)
		}
		if view.Confidence <= 0 || view.Confidence > 1 {
			return nil, nil, fmt.Errorf("%w: view %d confidence %v outside (0, 1]", ErrInvalidView, i, view.Confidence)
		}
		for symbol, pick := range view.Assets {
			j, ok := index[symbol]
			if !ok {
				return nil, nil, fmt.Errorf("%w: view %d references %s, not in universe", ErrInvalidView, i, symbol)
			}
			if pick == 0 {
				return nil, nil, fmt.Errorf("%w: view %d has zero pick weight for %s", ErrInvalidView, i, symbol)
			}
			p.Set(i, j, pick)
		}
		q.SetVec(i, view.Return)
	}

	return p, q, nil
}
