package optimization

import (
	"fmt"
	"math"
	"sort"
)

// WeightTolerance is the numerical tolerance on the sum-to-one invariant and
// on bound satisfaction of returned weight vectors.
const WeightTolerance = 1e-6

// Constraints holds the per-asset weight bounds and the equality constraints
// of one optimization, in universe order.
type Constraints struct {
	Symbols      []string
	Lower        []float64
	Upper        []float64
	TargetReturn *float64
	RiskFreeRate float64
	RiskAversion float64
}

// buildConstraints expands the configured global bounds and per-asset
// overrides into ordered bound slices and checks that the fully-invested
// constraint is satisfiable at all.
func buildConstraints(symbols []string, cfg Config) (Constraints, error) {
	n := len(symbols)
	cons := Constraints{
		Symbols:      symbols,
		Lower:        make([]float64, n),
		Upper:        make([]float64, n),
		TargetReturn: cfg.TargetReturn,
		RiskFreeRate: cfg.RiskFreeRate,
		RiskAversion: cfg.RiskAversion,
	}

	sumLower, sumUpper := 0.0, 0.0
	for i, symbol := range symbols {
		lo, hi := cfg.LowerBound, cfg.UpperBound
		if override, ok := cfg.Bounds[symbol]; ok {
			lo, hi = override[0], override[1]
		}
		if lo > hi {
			return Constraints{}, fmt.Errorf("%w: bounds for %s are inverted [%v, %v]",
				ErrInfeasibleConstraint, symbol, lo, hi)
		}
		cons.Lower[i] = lo
		cons.Upper[i] = hi
		sumLower += lo
		sumUpper += hi
	}

	if sumLower > 1+WeightTolerance || sumUpper < 1-WeightTolerance {
		return Constraints{}, fmt.Errorf("%w: bounds admit no fully-invested portfolio (sum lower %v, sum upper %v)",
			ErrInfeasibleConstraint, sumLower, sumUpper)
	}

	return cons, nil
}

// feasible reports whether w satisfies the bounds and sums to one, within tol.
func (c Constraints) feasible(w []float64, tol float64) bool {
	sum := 0.0
	for i, wi := range w {
		if wi < c.Lower[i]-tol || wi > c.Upper[i]+tol {
			return false
		}
		sum += wi
	}
	return math.Abs(sum-1.0) <= tol
}

// verify returns a descriptive error when w violates the constraint set.
func (c Constraints) verify(w []float64, tol float64) error {
	sum := 0.0
	for i, wi := range w {
		if wi < c.Lower[i]-tol || wi > c.Upper[i]+tol {
			return fmt.Errorf("%w: weight for %s is %v, bounds [%v, %v]",
				ErrConvergence, c.Symbols[i], wi, c.Lower[i], c.Upper[i])
		}
		sum += wi
	}
	if math.Abs(sum-1.0) > tol {
		return fmt.Errorf("%w: weights sum to %v", ErrConvergence, sum)
	}
	return nil
}

// returnRange computes the minimum and maximum portfolio return achievable
// under the bounds with full investment, by greedy allocation of the budget
// left after the lower bounds.
func (c Constraints) returnRange(mu []float64) (float64, float64) {
	type entry struct {
		ret  float64
		room float64
	}

	base := 0.0
	budget := 1.0
	entries := make([]entry, len(mu))
	for i := range mu {
		base += c.Lower[i] * mu[i]
		budget -= c.Lower[i]
		entries[i] = entry{ret: mu[i], room: c.Upper[i] - c.Lower[i]}
	}

	allocate := func(desc bool) float64 {
		sorted := make([]entry, len(entries))
		copy(sorted, entries)
		sort.Slice(sorted, func(i, j int) bool {
			if desc {
				return sorted[i].ret > sorted[j].ret
			}
			return sorted[i].ret < sorted[j].ret
		})

		total := base
		remaining := budget
		for _, e := range sorted {
			if remaining <= 0 {
				break
			}
			take := math.Min(e.room, remaining)
			total += take * e.ret
			remaining -= take
		}
		return total
	}

	return allocate(false), allocate(true)
}

// projectToSimplex projects w onto {sum(w)=1, lower <= w <= upper} by
// bisecting on the uniform shift that makes the clipped vector sum to one.
// buildConstraints guarantees the set is non-empty.
func (c Constraints) projectToSimplex(w []float64) []float64 {
	n := len(w)
	clipSum := func(shift float64) float64 {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += math.Min(c.Upper[i], math.Max(c.Lower[i], w[i]+shift))
		}
		return sum
	}

	// Bracket the shift. clipSum is non-decreasing in shift.
	lo, hi := -1.0, 1.0
	for clipSum(lo) > 1 {
		lo *= 2
	}
	for clipSum(hi) < 1 {
		hi *= 2
	}

	for iter := 0; iter < 100; iter++ {
		mid := (lo + hi) / 2
		if clipSum(mid) < 1 {
			lo = mid
		} else {
			hi = mid
		}
	}

	shift := (lo + hi) / 2
	proj := make([]float64, n)
	for i := 0; i < n; i++ {
		proj[i] = math.Min(c.Upper[i], math.Max(c.Lower[i], w[i]+shift))
	}
	return proj
}
