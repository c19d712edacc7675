package optimization

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Optimizer is the shared contract of the optimizer family. Implementations
// are pure: same inputs, same output, no retained state between calls.
type Optimizer interface {
	Optimize(mu ReturnVector, cov CovarianceMatrix, cons Constraints, cfg Config) (*Result, error)
}

// Service wires the return estimator, the risk calculator and the optimizer
// family into a single Run entry point. An optional ResultCache short-circuits
// repeated identical requests.
type Service struct {
	estimator  *Estimator
	risk       *RiskCalculator
	optimizers map[OptimizerKind]Optimizer
	cache      *ResultCache
	log        zerolog.Logger
}

// NewService creates the optimization service. cache may be nil to disable
// result caching.
func NewService(cache *ResultCache, log zerolog.Logger) *Service {
	return &Service{
		estimator: NewEstimator(log),
		risk:      NewRiskCalculator(log),
		optimizers: map[OptimizerKind]Optimizer{
			OptimizerMinVariance:    NewMinVarianceOptimizer(log),
			OptimizerMeanVariance:   NewMeanVarianceOptimizer(log),
			OptimizerMaxSharpe:      NewMaxSharpeOptimizer(log),
			OptimizerRiskParity:     NewRiskParityOptimizer(log),
			OptimizerBlackLitterman: NewBlackLittermanOptimizer(log),
		},
		cache: cache,
		log:   log.With().Str("component", "optimization_service").Logger(),
	}
}

// Run executes one optimization request end to end: expected returns and the
// risk model are computed concurrently, then the selected optimizer solves
// the allocation problem. Requests carrying pre-aggregated inputs skip
// estimation entirely.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	cfg := req.Config.withDefaults()

	if len(req.Universe) == 0 {
		return nil, fmt.Errorf("%w: empty universe", ErrInsufficientData)
	}
	optimizer, ok := s.optimizers[req.Optimizer]
	if !ok {
		return nil, fmt.Errorf("unknown optimizer %q", req.Optimizer)
	}

	if s.cache != nil {
		if cached, key, err := s.cache.Get(req); err != nil {
			s.log.Warn().Err(err).Msg("Result cache lookup failed")
		} else if cached != nil {
			s.log.Debug().Str("key", key).Msg("Result cache hit")
			return cached, nil
		}
	}

	mu, riskModel, err := s.prepareInputs(ctx, req, cfg)
	if err != nil {
		return nil, err
	}

	cons, err := buildConstraints(riskModel.Cov.Symbols, cfg)
	if err != nil {
		return nil, err
	}

	result, err := optimizer.Optimize(mu, riskModel.Cov, cons, cfg)
	if err != nil {
		return nil, err
	}

	result.Diagnostics.CovarianceRegularized = riskModel.Regularized
	result.Diagnostics.RegularizationEpsilon = riskModel.Epsilon

	s.log.Info().
		Str("optimizer", string(req.Optimizer)).
		Str("model", string(req.Model)).
		Int("assets", len(req.Universe)).
		Float64("expected_return", result.ExpectedReturn).
		Float64("volatility", result.Volatility).
		Bool("regularized", riskModel.Regularized).
		Msg("Optimization completed")

	if s.cache != nil {
		if err := s.cache.Put(req, result); err != nil {
			s.log.Warn().Err(err).Msg("Result cache store failed")
		}
	}
	return result, nil
}

// prepareInputs produces the expected-return vector and the conditioned risk
// model, either from pre-aggregated request fields or from price series. The
// two series-based estimations are independent and run concurrently; a
// cancelled context aborts before either starts.
func (s *Service) prepareInputs(ctx context.Context, req Request, cfg Config) (ReturnVector, *RiskModel, error) {
	if req.ExpectedReturns != nil || req.Covariance != nil {
		return s.preAggregated(req, cfg)
	}

	var (
		mu        ReturnVector
		riskModel *RiskModel
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		var err error
		mu, err = s.estimator.Estimate(req.Model, req.Universe, req.Series, req.Market, req.Factors, cfg)
		if err != nil {
			return fmt.Errorf("estimating returns: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		var err error
		riskModel, err = s.risk.Compute(req.Universe, req.Series, cfg)
		if err != nil {
			return fmt.Errorf("computing risk model: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return ReturnVector{}, nil, err
	}

	if err := checkAligned(mu, riskModel.Cov); err != nil {
		return ReturnVector{}, nil, err
	}
	return mu, riskModel, nil
}

// preAggregated validates pre-computed inputs against the universe. Both the
// return vector and the covariance matrix must be present together.
func (s *Service) preAggregated(req Request, cfg Config) (ReturnVector, *RiskModel, error) {
	if req.ExpectedReturns == nil || req.Covariance == nil {
		return ReturnVector{}, nil, fmt.Errorf("%w: pre-aggregated requests need both expected returns and covariance",
			ErrInsufficientData)
	}

	values := make([]float64, len(req.Universe))
	for i, symbol := range req.Universe {
		v, ok := req.ExpectedReturns[symbol]
		if !ok {
			return ReturnVector{}, nil, fmt.Errorf("%w: missing expected return for %s", ErrAssetMismatch, symbol)
		}
		values[i] = v
	}
	mu := ReturnVector{Symbols: append([]string(nil), req.Universe...), Values: values}

	riskModel, err := s.risk.FromMatrix(req.Universe, req.Covariance, cfg)
	if err != nil {
		return ReturnVector{}, nil, err
	}
	return mu, riskModel, nil
}
