package filter

import "errors"

var (
	// ErrNotPositiveDefinite is returned when a covariance cannot be factorised.
	ErrNotPositiveDefinite = errors.New("filter: matrix is not positive definite")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("filter: invalid config")
)
