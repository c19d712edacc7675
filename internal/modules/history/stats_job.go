package history

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/pkg/formulas"
)

// StatsJob recomputes per-symbol annualized statistics from stored prices.
// It implements scheduler.Job.
type StatsJob struct {
	repo           *Repository
	lookbackDays   int
	periodsPerYear float64
	riskFreeRate   float64
	log            zerolog.Logger
}

// NewStatsJob creates the statistics refresh job.
func NewStatsJob(repo *Repository, lookbackDays int, riskFreeRate float64, log zerolog.Logger) *StatsJob {
	if lookbackDays <= 0 {
		lookbackDays = 365
	}
	return &StatsJob{
		repo:           repo,
		lookbackDays:   lookbackDays,
		periodsPerYear: 252,
		riskFreeRate:   riskFreeRate,
		log:            log.With().Str("component", "stats_job").Logger(),
	}
}

// Name implements scheduler.Job.
func (j *StatsJob) Name() string {
	return "symbol_stats_refresh"
}

// Run recomputes statistics for every stored symbol. Symbols with too little
// history are skipped, not failed; a symbol-level storage error aborts the
// run.
func (j *StatsJob) Run() error {
	symbols, err := j.repo.ListSymbols()
	if err != nil {
		return fmt.Errorf("listing symbols for stats refresh: %w", err)
	}

	refreshed := 0
	for _, symbol := range symbols {
		series, err := j.repo.GetSeries(symbol, j.lookbackDays)
		if err != nil {
			return err
		}

		returns := series.Returns(domain.ReturnSimple)
		if len(returns) < 2 {
			j.log.Debug().Str("symbol", symbol).Msg("Too little history for stats, skipping")
			continue
		}

		annualizedReturn := formulas.AnnualizedReturn(returns, j.periodsPerYear)
		annualizedVol := formulas.AnnualizedVolatility(returns, j.periodsPerYear)
		sharpe := formulas.SharpeRatio(annualizedReturn, j.riskFreeRate, annualizedVol)

		// Downside deviation scales with the square root of periods, like
		// volatility.
		downside := formulas.DownsideDeviation(returns, 0) * math.Sqrt(j.periodsPerYear)
		sortino := formulas.SortinoRatio(annualizedReturn, j.riskFreeRate, downside)
		maxDrawdown := formulas.MaxDrawdown(series.Values())

		err = j.repo.SaveStats(SymbolStats{
			Symbol:           symbol,
			AnnualizedReturn: annualizedReturn,
			AnnualizedVol:    annualizedVol,
			SharpeRatio:      sharpe,
			SortinoRatio:     sortino,
			MaxDrawdown:      maxDrawdown,
			Observations:     len(returns),
			UpdatedAt:        time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		refreshed++
	}

	j.log.Info().Int("symbols", refreshed).Msg("Symbol statistics refreshed")
	return nil
}
