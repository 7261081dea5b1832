package statevector

import (
	"errors"
	"fmt"

	"MarketState/internal/services/features"
	"MarketState/internal/services/filter"
)

var ErrInvalidConfig = errors.New("statevector: invalid config")

// Config collects every window and mode used by the pipeline.
type Config struct {
	SmoothingWindow   int                      `yaml:"smoothing_window" default:"15"`
	PolynomialOrder   int                      `yaml:"polynomial_order" default:"2"`
	SampleInterval    float64                  `yaml:"sample_interval" default:"1"`
	EquilibriumWindow int                      `yaml:"equilibrium_window" default:"50"`
	EquilibriumMode   features.EquilibriumMode `yaml:"equilibrium_mode" default:"mean"`
	Filter            filter.Config            `yaml:"parameter_filter"`
	EntropyWindow     int                      `yaml:"entropy_window" default:"30"`
	TemperatureWindow int                      `yaml:"temperature_window" default:"20"`
	TemperatureMode   features.TemperatureMode `yaml:"temperature_mode" default:"slope"`
}

func DefaultConfig() Config {
	return Config{
		SmoothingWindow:   15,
		PolynomialOrder:   2,
		SampleInterval:    1,
		EquilibriumWindow: 50,
		EquilibriumMode:   features.EquilibriumMean,
		Filter:            filter.DefaultConfig(),
		EntropyWindow:     30,
		TemperatureWindow: 20,
		TemperatureMode:   features.TemperatureSlope,
	}
}

func (c Config) Validate() error {
	switch {
	case c.SmoothingWindow < 3:
		return fmt.Errorf("%w: smoothing_window must be >= 3", ErrInvalidConfig)
	case c.PolynomialOrder < 2 || c.PolynomialOrder >= c.SmoothingWindow:
		return fmt.Errorf("%w: polynomial_order must be >= 2 and < smoothing_window", ErrInvalidConfig)
	case !(c.SampleInterval > 0):
		return fmt.Errorf("%w: sample_interval must be > 0", ErrInvalidConfig)
	case c.EquilibriumWindow < 1:
		return fmt.Errorf("%w: equilibrium_window must be >= 1", ErrInvalidConfig)
	case c.EquilibriumMode != features.EquilibriumMean && c.EquilibriumMode != features.EquilibriumTrend:
		return fmt.Errorf("%w: unknown equilibrium_mode %q", ErrInvalidConfig, c.EquilibriumMode)
	case c.EquilibriumMode == features.EquilibriumTrend && c.EquilibriumWindow < 2:
		return fmt.Errorf("%w: trend equilibrium needs equilibrium_window >= 2", ErrInvalidConfig)
	case c.EntropyWindow < 2:
		return fmt.Errorf("%w: entropy_window must be >= 2", ErrInvalidConfig)
	case c.TemperatureWindow < 3:
		return fmt.Errorf("%w: temperature_window must be >= 3", ErrInvalidConfig)
	case c.TemperatureMode != features.TemperatureSlope && c.TemperatureMode != features.TemperatureInverse:
		return fmt.Errorf("%w: unknown temperature_mode %q", ErrInvalidConfig, c.TemperatureMode)
	}
	return c.Filter.Validate()
}
