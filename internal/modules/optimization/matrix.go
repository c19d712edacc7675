package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// symmetryTolerance is the maximum relative asymmetry accepted when building
// a covariance matrix from caller-supplied nested slices.
const symmetryTolerance = 1e-8

// newCovarianceMatrix validates a caller-supplied square matrix and wraps it
// in a SymDense. Off-diagonal pairs are averaged to absorb round-trip noise;
// genuinely asymmetric input is rejected.
func newCovarianceMatrix(symbols []string, data [][]float64) (CovarianceMatrix, error) {
	n := len(symbols)
	if len(data) != n {
		return CovarianceMatrix{}, fmt.Errorf("%w: covariance has %d rows for %d assets",
			ErrAssetMismatch, len(data), n)
	}

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		if len(data[i]) != n {
			return CovarianceMatrix{}, fmt.Errorf("%w: covariance row %d has %d columns, expected %d",
				ErrAssetMismatch, i, len(data[i]), n)
		}
		for j := i; j < n; j++ {
			a, b := data[i][j], data[j][i]
			scale := math.Max(math.Abs(a), math.Abs(b))
			if scale > 0 && math.Abs(a-b)/scale > symmetryTolerance {
				return CovarianceMatrix{}, fmt.Errorf("%w: covariance not symmetric at (%d,%d): %v vs %v",
					ErrNumericalInstability, i, j, a, b)
			}
			sym.SetSym(i, j, (a+b)/2)
		}
	}

	for i := 0; i < n; i++ {
		if sym.At(i, i) <= 0 {
			return CovarianceMatrix{}, fmt.Errorf("%w: variance for %s is %v, must be strictly positive",
				ErrNumericalInstability, symbols[i], sym.At(i, i))
		}
	}

	return CovarianceMatrix{Symbols: symbols, Matrix: sym}, nil
}

// eigenRange returns the smallest and largest eigenvalues of a symmetric matrix.
func eigenRange(sym *mat.SymDense) (float64, float64, error) {
	var eig mat.EigenSym
	if !eig.Factorize(sym, false) {
		return 0, 0, fmt.Errorf("%w: eigendecomposition failed", ErrNumericalInstability)
	}
	values := eig.Values(nil)
	return floats.Min(values), floats.Max(values), nil
}

// addToDiagonal returns a copy of sym with epsilon added to every diagonal entry.
func addToDiagonal(sym *mat.SymDense, epsilon float64) *mat.SymDense {
	n := sym.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(sym)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, out.At(i, i)+epsilon)
	}
	return out
}

// checkAligned verifies the return vector and covariance matrix share the
// identical ordered asset set.
func checkAligned(mu ReturnVector, cov CovarianceMatrix) error {
	if len(mu.Symbols) != len(cov.Symbols) {
		return fmt.Errorf("%w: return vector has %d assets, covariance has %d",
			ErrAssetMismatch, len(mu.Symbols), len(cov.Symbols))
	}
	for i := range mu.Symbols {
		if mu.Symbols[i] != cov.Symbols[i] {
			return fmt.Errorf("%w: position %d is %s in return vector but %s in covariance",
				ErrAssetMismatch, i, mu.Symbols[i], cov.Symbols[i])
		}
	}
	if len(mu.Values) != len(mu.Symbols) {
		return fmt.Errorf("%w: return vector has %d values for %d symbols",
			ErrAssetMismatch, len(mu.Values), len(mu.Symbols))
	}
	for _, v := range mu.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: return vector contains a non-finite value", ErrNumericalInstability)
		}
	}
	return nil
}

// solveSPD solves cov * x = b via Cholesky factorization.
func solveSPD(cov CovarianceMatrix, b []float64) ([]float64, error) {
	var chol mat.Cholesky
	if !chol.Factorize(cov.Matrix) {
		return nil, fmt.Errorf("%w: covariance matrix is not positive definite", ErrNumericalInstability)
	}

	var x mat.VecDense
	if err := chol.SolveVecTo(&x, mat.NewVecDense(len(b), b)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNumericalInstability, err)
	}
	return x.RawVector().Data, nil
}

// portfolioVariance computes w' Σ w.
func portfolioVariance(cov CovarianceMatrix, w []float64) float64 {
	n := cov.Dim()
	var variance float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			variance += w[i] * w[j] * cov.At(i, j)
		}
	}
	return variance
}

// portfolioReturn computes μ' w.
func portfolioReturn(mu []float64, w []float64) float64 {
	return floats.Dot(mu, w)
}

// covTimesWeights computes Σ w.
func covTimesWeights(cov CovarianceMatrix, w []float64) []float64 {
	n := cov.Dim()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < n; j++ {
			sum += cov.At(i, j) * w[j]
		}
		out[i] = sum
	}
	return out
}

// equalWeights returns the uniform starting point used by iterative solvers.
func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}
