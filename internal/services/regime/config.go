package regime

import (
	"fmt"
	"math"
)

// Config controls Baum-Welch fitting and model selection.
type Config struct {
	CandidateStates []int   `yaml:"candidate_state_counts" default:"[2,3,4]"`
	Components      int     `yaml:"mixture_components" default:"2"`
	MaxIterations   int     `yaml:"max_iterations" default:"200"`
	Tolerance       float64 `yaml:"tolerance" default:"0.001"`
	CovarianceFloor float64 `yaml:"covariance_floor" default:"0.000001"`
	Seed            uint64  `yaml:"seed" default:"7"`
	Workers         int     `yaml:"workers" default:"4"`
}

func DefaultConfig() Config {
	return Config{
		CandidateStates: []int{2, 3, 4},
		Components:      2,
		MaxIterations:   200,
		Tolerance:       1e-3,
		CovarianceFloor: 1e-6,
		Seed:            7,
		Workers:         4,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Components < 1:
		return fmt.Errorf("%w: mixture_components must be >= 1", ErrInvalidConfig)
	case c.MaxIterations < 1:
		return fmt.Errorf("%w: max_iterations must be >= 1", ErrInvalidConfig)
	case !(c.Tolerance >= 0) || math.IsInf(c.Tolerance, 0):
		return fmt.Errorf("%w: tolerance must be >= 0", ErrInvalidConfig)
	case !(c.CovarianceFloor > 0):
		return fmt.Errorf("%w: covariance_floor must be > 0", ErrInvalidConfig)
	}
	for _, k := range c.CandidateStates {
		if k < 1 {
			return fmt.Errorf("%w: candidate state count %d must be >= 1", ErrInvalidConfig, k)
		}
	}
	return nil
}
