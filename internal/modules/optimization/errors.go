package optimization

import "errors"

// Failure kinds surfaced by the engine. Callers distinguish them with
// errors.Is; they are never coerced into a default result.
var (
	// ErrInsufficientData - fewer observations than the model or regression requires.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrAssetMismatch - return vector and covariance matrix asset sets or order disagree.
	ErrAssetMismatch = errors.New("asset mismatch")

	// ErrInfeasibleConstraint - no weight vector satisfies the bounds plus equality constraints.
	ErrInfeasibleConstraint = errors.New("infeasible constraint")

	// ErrInvalidView - malformed Black-Litterman view inputs.
	ErrInvalidView = errors.New("invalid view")

	// ErrConvergence - iterative solver exceeded its iteration budget without meeting tolerance.
	ErrConvergence = errors.New("solver did not converge")

	// ErrNumericalInstability - covariance matrix remains non-positive-definite after regularization.
	ErrNumericalInstability = errors.New("numerical instability")
)
