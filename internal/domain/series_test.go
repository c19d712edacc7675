package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func priceSeries(symbol string, values ...float64) AssetSeries {
	s := AssetSeries{Symbol: symbol, Kind: SeriesPrices}
	for i, v := range values {
		s.Points = append(s.Points, PricePoint{Date: day(i), Value: v})
	}
	return s
}

func TestValidate(t *testing.T) {
	require.NoError(t, priceSeries("AAA", 100, 101, 102).Validate(0))

	assert.Error(t, priceSeries("AAA", 100).Validate(0), "single observation")
	assert.Error(t, AssetSeries{Kind: SeriesPrices, Points: priceSeries("x", 1, 2).Points}.Validate(0), "missing symbol")
}

func TestValidate_TimestampOrdering(t *testing.T) {
	s := AssetSeries{
		Symbol: "AAA",
		Kind:   SeriesPrices,
		Points: []PricePoint{
			{Date: day(1), Value: 100},
			{Date: day(0), Value: 101},
		},
	}
	assert.Error(t, s.Validate(0))

	dup := AssetSeries{
		Symbol: "AAA",
		Kind:   SeriesPrices,
		Points: []PricePoint{
			{Date: day(0), Value: 100},
			{Date: day(0), Value: 101},
		},
	}
	assert.Error(t, dup.Validate(0), "duplicate timestamps are not strictly increasing")
}

func TestValidate_GapTolerance(t *testing.T) {
	s := AssetSeries{
		Symbol: "AAA",
		Kind:   SeriesPrices,
		Points: []PricePoint{
			{Date: day(0), Value: 100},
			{Date: day(10), Value: 105},
		},
	}

	assert.Error(t, s.Validate(5*24*time.Hour))
	assert.NoError(t, s.Validate(0), "zero tolerance disables the gap check")
	assert.NoError(t, s.Validate(11*24*time.Hour))
}

func TestReturns_FromPrices(t *testing.T) {
	s := priceSeries("AAA", 100, 110, 99)

	simple := s.Returns(ReturnSimple)
	require.Len(t, simple, 2)
	assert.InDelta(t, 0.10, simple[0], 1e-12)

	logs := s.Returns(ReturnLog)
	require.Len(t, logs, 2)
	assert.InDelta(t, math.Log(1.10), logs[0], 1e-12)
}

func TestReturns_PassThroughForReturnSeries(t *testing.T) {
	s := AssetSeries{
		Symbol: "AAA",
		Kind:   SeriesReturns,
		Points: []PricePoint{
			{Date: day(0), Value: 0.01},
			{Date: day(1), Value: -0.02},
		},
	}

	got := s.Returns(ReturnLog)
	assert.Equal(t, []float64{0.01, -0.02}, got)
}

func TestReturnDates(t *testing.T) {
	s := priceSeries("AAA", 100, 101, 102)
	dates := s.ReturnDates()

	require.Len(t, dates, 2)
	assert.Equal(t, day(1), dates[0], "each return carries the later date of its period")
	assert.Equal(t, day(2), dates[1])
}
