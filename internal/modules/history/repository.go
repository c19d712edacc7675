// Package history stores and serves the price series the optimization engine
// consumes, plus derived per-symbol statistics refreshed on a schedule.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/domain"
)

// Repository provides access to historical price data.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new history repository and its schema.
func NewRepository(db *sql.DB, log zerolog.Logger) (*Repository, error) {
	r := &Repository{
		db:  db,
		log: log.With().Str("component", "history_repository").Logger(),
	}
	if err := r.ensureSchema(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) ensureSchema() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS daily_prices (
			symbol TEXT    NOT NULL,
			date   INTEGER NOT NULL,
			close  REAL    NOT NULL,
			PRIMARY KEY (symbol, date)
		);
		CREATE TABLE IF NOT EXISTS symbol_stats (
			symbol            TEXT PRIMARY KEY,
			annualized_return REAL NOT NULL,
			annualized_vol    REAL NOT NULL,
			sharpe_ratio      REAL NOT NULL,
			sortino_ratio     REAL NOT NULL,
			max_drawdown      REAL NOT NULL,
			observations      INTEGER NOT NULL,
			updated_at        INTEGER NOT NULL
		)`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("creating history schema: %w", err)
	}
	return nil
}

// SavePrices upserts price points for a symbol inside one transaction.
func (r *Repository) SavePrices(symbol string, points []domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("starting price save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO daily_prices (symbol, date, close) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing price insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.Exec(symbol, p.Date.UTC().Unix(), p.Value); err != nil {
			return fmt.Errorf("saving price for %s: %w", symbol, err)
		}
	}
	return tx.Commit()
}

// GetSeries fetches the price series for a symbol, oldest first. lookbackDays
// limits how far back the series reaches; 0 returns the full history.
func (r *Repository) GetSeries(symbol string, lookbackDays int) (domain.AssetSeries, error) {
	query := `SELECT date, close FROM daily_prices WHERE symbol = ?`
	args := []interface{}{symbol}
	if lookbackDays > 0 {
		query += ` AND date >= ?`
		args = append(args, time.Now().AddDate(0, 0, -lookbackDays).Unix())
	}
	query += ` ORDER BY date ASC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return domain.AssetSeries{}, fmt.Errorf("querying prices for %s: %w", symbol, err)
	}
	defer rows.Close()

	series := domain.AssetSeries{Symbol: symbol, Kind: domain.SeriesPrices}
	for rows.Next() {
		var dateUnix int64
		var close float64
		if err := rows.Scan(&dateUnix, &close); err != nil {
			return domain.AssetSeries{}, fmt.Errorf("scanning price for %s: %w", symbol, err)
		}
		series.Points = append(series.Points, domain.PricePoint{
			Date:  time.Unix(dateUnix, 0).UTC(),
			Value: close,
		})
	}
	if err := rows.Err(); err != nil {
		return domain.AssetSeries{}, fmt.Errorf("iterating prices for %s: %w", symbol, err)
	}
	return series, nil
}

// GetUniverse fetches series for every requested symbol.
func (r *Repository) GetUniverse(symbols []string, lookbackDays int) ([]domain.AssetSeries, error) {
	out := make([]domain.AssetSeries, 0, len(symbols))
	for _, symbol := range symbols {
		s, err := r.GetSeries(symbol, lookbackDays)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ListSymbols returns every symbol with stored prices.
func (r *Repository) ListSymbols() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT symbol FROM daily_prices ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("listing symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scanning symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// SymbolStats is a per-symbol statistics row maintained by the refresh job.
type SymbolStats struct {
	Symbol           string    `json:"symbol"`
	AnnualizedReturn float64   `json:"annualized_return"`
	AnnualizedVol    float64   `json:"annualized_vol"`
	SharpeRatio      float64   `json:"sharpe_ratio"`
	SortinoRatio     float64   `json:"sortino_ratio"`
	MaxDrawdown      float64   `json:"max_drawdown"`
	Observations     int       `json:"observations"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SaveStats upserts a statistics row.
func (r *Repository) SaveStats(stats SymbolStats) error {
	_, err := r.db.Exec(
		`INSERT OR REPLACE INTO symbol_stats
			(symbol, annualized_return, annualized_vol, sharpe_ratio, sortino_ratio, max_drawdown, observations, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stats.Symbol, stats.AnnualizedReturn, stats.AnnualizedVol, stats.SharpeRatio,
		stats.SortinoRatio, stats.MaxDrawdown, stats.Observations, stats.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving stats for %s: %w", stats.Symbol, err)
	}
	return nil
}

// GetStats reads the statistics row for a symbol.
func (r *Repository) GetStats(symbol string) (*SymbolStats, error) {
	row := r.db.QueryRow(
		`SELECT symbol, annualized_return, annualized_vol, sharpe_ratio, sortino_ratio, max_drawdown, observations, updated_at
		 FROM symbol_stats WHERE symbol = ?`, symbol)

	var stats SymbolStats
	var updatedAt int64
	err := row.Scan(&stats.Symbol, &stats.AnnualizedReturn, &stats.AnnualizedVol,
		&stats.SharpeRatio, &stats.SortinoRatio, &stats.MaxDrawdown, &stats.Observations, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("reading stats for %s: %w", symbol, err)
	}
	stats.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &stats, nil
}
