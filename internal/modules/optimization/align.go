package optimization

import (
	"fmt"
	"sort"
	"time"

	"github.com/aristath/allocator/internal/domain"
)

// alignedReturns converts every series to periodic returns and reconciles
// differing history lengths according to the alignment policy:
//
//   - AlignIntersect keeps only the observation dates shared by all series,
//     so every asset contributes the same dates in the same order.
//   - AlignStrict requires all series to cover exactly the same dates and
//     fails with ErrInsufficientData otherwise.
//
// The result maps each symbol to its aligned return series; all slices have
// equal length, which is at least minObs.
func alignedReturns(
	series []domain.AssetSeries,
	kind domain.ReturnKind,
	policy AlignmentPolicy,
	maxGap time.Duration,
	minObs int,
) (map[string][]float64, int, error) {
	if len(series) == 0 {
		return nil, 0, fmt.Errorf("%w: no series provided", ErrInsufficientData)
	}
	if minObs < 2 {
		minObs = 2
	}

	type observed struct {
		byDate map[int64]float64
		dates  []int64
	}

	observations := make(map[string]observed, len(series))
	var shared map[int64]int

	for _, s := range series {
		if _, ok := observations[s.Symbol]; ok {
			return nil, 0, fmt.Errorf("%w: duplicate series for %s", ErrAssetMismatch, s.Symbol)
		}
		if err := s.Validate(maxGap); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrInsufficientData, err)
		}

		returns := s.Returns(kind)
		dates := s.ReturnDates()
		if len(returns) != len(dates) || len(returns) == 0 {
			return nil, 0, fmt.Errorf("%w: series %s yields no return observations", ErrInsufficientData, s.Symbol)
		}

		byDate := make(map[int64]float64, len(returns))
		keys := make([]int64, len(returns))
		for i, d := range dates {
			key := d.Unix()
			byDate[key] = returns[i]
			keys[i] = key
		}
		observations[s.Symbol] = observed{byDate: byDate, dates: keys}

		if shared == nil {
			shared = make(map[int64]int, len(keys))
			for _, k := range keys {
				shared[k] = 1
			}
		} else {
			for _, k := range keys {
				if _, ok := shared[k]; ok {
					shared[k]++
				}
			}
		}
	}

	// Keep dates present in every series.
	common := make([]int64, 0, len(shared))
	for k, count := range shared {
		if count == len(series) {
			common = append(common, k)
		}
	}
	sort.Slice(common, func(i, j int) bool { return common[i] < common[j] })

	if policy == AlignStrict {
		for _, s := range series {
			if len(observations[s.Symbol].dates) != len(common) {
				return nil, 0, fmt.Errorf("%w: series %s does not cover the full date range under strict alignment",
					ErrInsufficientData, s.Symbol)
			}
		}
	}

	if len(common) < minObs {
		return nil, 0, fmt.Errorf("%w: %d overlapping observations, need at least %d",
			ErrInsufficientData, len(common), minObs)
	}

	aligned := make(map[string][]float64, len(series))
	for _, s := range series {
		obs := observations[s.Symbol]
		values := make([]float64, len(common))
		for i, k := range common {
			values[i] = obs.byDate[k]
		}
		aligned[s.Symbol] = values
	}

	return aligned, len(common), nil
}
