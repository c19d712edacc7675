// Package domain holds the pure data types shared between the history store
// and the optimization engine. It has no infrastructure dependencies.
package domain

import (
	"fmt"
	"time"

	"github.com/aristath/allocator/pkg/formulas"
)

// SeriesKind describes what the values of an AssetSeries represent.
type SeriesKind string

const (
	// SeriesPrices - values are observed prices
	SeriesPrices SeriesKind = "prices"
	// SeriesReturns - values are already periodic returns
	SeriesReturns SeriesKind = "returns"
)

// ReturnKind selects how periodic returns are derived from prices.
type ReturnKind string

const (
	// ReturnSimple - (P[t] - P[t-1]) / P[t-1]
	ReturnSimple ReturnKind = "simple"
	// ReturnLog - ln(P[t] / P[t-1])
	ReturnLog ReturnKind = "log"
)

// PricePoint is a single dated observation.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// AssetSeries is an ordered time series of prices or returns for one asset.
type AssetSeries struct {
	Symbol string       `json:"symbol"`
	Kind   SeriesKind   `json:"kind"`
	Points []PricePoint `json:"points"`
}

// Validate checks the series invariants: at least two observations,
// strictly increasing timestamps, and no gap wider than maxGap
// (maxGap <= 0 disables the gap check).
func (s AssetSeries) Validate(maxGap time.Duration) error {
	if s.Symbol == "" {
		return fmt.Errorf("series has no symbol")
	}
	if len(s.Points) < 2 {
		return fmt.Errorf("series %s has %d observations, need at least 2", s.Symbol, len(s.Points))
	}

	for i := 1; i < len(s.Points); i++ {
		prev, cur := s.Points[i-1].Date, s.Points[i].Date
		if !cur.After(prev) {
			return fmt.Errorf("series %s timestamps not strictly increasing at index %d", s.Symbol, i)
		}
		if maxGap > 0 && cur.Sub(prev) > maxGap {
			return fmt.Errorf("series %s has a gap of %s at index %d (tolerance %s)",
				s.Symbol, cur.Sub(prev), i, maxGap)
		}
	}

	return nil
}

// Values returns the raw observation values in order.
func (s AssetSeries) Values() []float64 {
	values := make([]float64, len(s.Points))
	for i, p := range s.Points {
		values[i] = p.Value
	}
	return values
}

// Returns derives the periodic return series. Price series are converted
// using the requested return kind; return series pass through unchanged.
func (s AssetSeries) Returns(kind ReturnKind) []float64 {
	if s.Kind == SeriesReturns {
		return s.Values()
	}
	if kind == ReturnLog {
		return formulas.LogReturns(s.Values())
	}
	return formulas.SimpleReturns(s.Values())
}

// ReturnDates returns the date labelling each return observation (the later
// of the two dates forming the period). For return series, every point keeps
// its own date.
func (s AssetSeries) ReturnDates() []time.Time {
	if s.Kind == SeriesReturns {
		dates := make([]time.Time, len(s.Points))
		for i, p := range s.Points {
			dates[i] = p.Date
		}
		return dates
	}
	if len(s.Points) < 2 {
		return []time.Time{}
	}
	dates := make([]time.Time, len(s.Points)-1)
	for i := 1; i < len(s.Points); i++ {
		dates[i-1] = s.Points[i].Date
	}
	return dates
}
