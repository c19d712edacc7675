package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/domain"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := NewRepository(db.Conn(), zerolog.Nop())
	require.NoError(t, err)
	return repo
}

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func points(values ...float64) []domain.PricePoint {
	pts := make([]domain.PricePoint, len(values))
	for i, v := range values {
		pts[i] = domain.PricePoint{Date: day(i), Value: v}
	}
	return pts
}

func TestSaveAndGetSeries(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.SavePrices("AAA", points(100, 101, 102)))

	series, err := repo.GetSeries("AAA", 0)
	require.NoError(t, err)

	assert.Equal(t, "AAA", series.Symbol)
	assert.Equal(t, domain.SeriesPrices, series.Kind)
	require.Len(t, series.Points, 3)
	assert.Equal(t, 100.0, series.Points[0].Value)
	assert.True(t, series.Points[0].Date.Before(series.Points[1].Date), "oldest first")
}

func TestSavePrices_UpsertReplaces(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.SavePrices("AAA", points(100, 101)))
	// Same dates, corrected values.
	require.NoError(t, repo.SavePrices("AAA", points(100.5, 101.5)))

	series, err := repo.GetSeries("AAA", 0)
	require.NoError(t, err)
	require.Len(t, series.Points, 2)
	assert.Equal(t, 100.5, series.Points[0].Value)
}

func TestGetSeries_UnknownSymbol(t *testing.T) {
	repo := testRepo(t)

	series, err := repo.GetSeries("NOPE", 0)
	require.NoError(t, err)
	assert.Empty(t, series.Points)
}

func TestGetUniverse(t *testing.T) {
	repo := testRepo(t)
	require.NoError(t, repo.SavePrices("AAA", points(100, 101)))
	require.NoError(t, repo.SavePrices("BBB", points(50, 51)))

	universe, err := repo.GetUniverse([]string{"AAA", "BBB"}, 0)
	require.NoError(t, err)
	require.Len(t, universe, 2)
	assert.Equal(t, "AAA", universe[0].Symbol)
	assert.Equal(t, "BBB", universe[1].Symbol)
}

func TestListSymbols(t *testing.T) {
	repo := testRepo(t)
	require.NoError(t, repo.SavePrices("BBB", points(50, 51)))
	require.NoError(t, repo.SavePrices("AAA", points(100, 101)))

	symbols, err := repo.ListSymbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, symbols)
}

func TestStatsRoundTrip(t *testing.T) {
	repo := testRepo(t)

	missing, err := repo.GetStats("AAA")
	require.NoError(t, err)
	assert.Nil(t, missing)

	stats := SymbolStats{
		Symbol:           "AAA",
		AnnualizedReturn: 0.08,
		AnnualizedVol:    0.2,
		SharpeRatio:      0.4,
		SortinoRatio:     0.55,
		MaxDrawdown:      -0.12,
		Observations:     250,
		UpdatedAt:        time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, repo.SaveStats(stats))

	got, err := repo.GetStats("AAA")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, stats.Symbol, got.Symbol)
	assert.InDelta(t, stats.AnnualizedVol, got.AnnualizedVol, 1e-12)
	assert.InDelta(t, stats.SortinoRatio, got.SortinoRatio, 1e-12)
	assert.InDelta(t, stats.MaxDrawdown, got.MaxDrawdown, 1e-12)
	assert.Equal(t, stats.Observations, got.Observations)
	assert.Equal(t, stats.UpdatedAt.Unix(), got.UpdatedAt.Unix())
}

func TestStatsJob_RefreshesAllSymbols(t *testing.T) {
	repo := testRepo(t)
	require.NoError(t, repo.SavePrices("AAA", points(100, 101, 102, 103, 104)))
	require.NoError(t, repo.SavePrices("BBB", points(50, 51, 50, 52, 51)))

	// Lookback long enough to include the fixed 2024 test dates.
	job := NewStatsJob(repo, 100000, 0.0, zerolog.Nop())
	require.Equal(t, "symbol_stats_refresh", job.Name())
	require.NoError(t, job.Run())

	for _, symbol := range []string{"AAA", "BBB"} {
		stats, err := repo.GetStats(symbol)
		require.NoError(t, err)
		require.NotNil(t, stats, "stats for %s", symbol)
		assert.Equal(t, 4, stats.Observations)
		assert.Greater(t, stats.AnnualizedVol, 0.0)
	}

	// AAA rose monotonically, BBB dipped from 51 to 50 at its peak.
	aaa, err := repo.GetStats("AAA")
	require.NoError(t, err)
	assert.Equal(t, 0.0, aaa.MaxDrawdown)
	assert.Equal(t, 0.0, aaa.SortinoRatio, "no downside returns")

	bbb, err := repo.GetStats("BBB")
	require.NoError(t, err)
	assert.InDelta(t, -1.0/51.0, bbb.MaxDrawdown, 1e-12)
	assert.NotEqual(t, 0.0, bbb.SortinoRatio)
}

func TestStatsJob_SkipsShortSeries(t *testing.T) {
	repo := testRepo(t)
	require.NoError(t, repo.SavePrices("AAA", points(100, 101)))

	job := NewStatsJob(repo, 100000, 0.0, zerolog.Nop())
	require.NoError(t, job.Run())

	// One price pair yields one return, below the two-return minimum.
	stats, err := repo.GetStats("AAA")
	require.NoError(t, err)
	assert.Nil(t, stats)
}
