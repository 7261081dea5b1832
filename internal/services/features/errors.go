package features

import "errors"

var (
	// ErrUnavailable reports that a value cannot be produced at this step,
	// usually because the lookback window is not full yet.
	ErrUnavailable = errors.New("features: value unavailable")

	// ErrSingularMatrix reports a least-squares system that cannot be inverted.
	// Callers treat it as unavailable.
	ErrSingularMatrix = errors.New("features: singular design matrix")
)
