package regime

import "errors"

var (
	ErrInvalidConfig    = errors.New("regime: invalid config")
	ErrInsufficientData = errors.New("regime: not enough samples")
	ErrDimension        = errors.New("regime: feature dimension mismatch")
	ErrDegenerate       = errors.New("regime: covariance is not positive definite")
	ErrNoCompleteVector = errors.New("regime: latest state vector is incomplete")
	ErrNoCandidate      = errors.New("regime: no candidate model could be fitted")
	ErrVersion          = errors.New("regime: unsupported model version")
)
