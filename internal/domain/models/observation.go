package models

import "time"

// Observation is a single (price, volume) sample of an asset.
type Observation struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
}

// StateVector extends an Observation with the derived physical state.
// A nil field means the value is not available yet (burn-in) or was
// numerically degenerate at this step.
type StateVector struct {
	Observation

	SmoothedPrice    *float64 `json:"smoothed_price"`
	Velocity         *float64 `json:"velocity"`
	Acceleration     *float64 `json:"acceleration"`
	EquilibriumPrice *float64 `json:"equilibrium_price"`
	Stiffness        *float64 `json:"stiffness"`
	Force            *float64 `json:"force"`
	Mass             *float64 `json:"mass"`
	Potential        *float64 `json:"potential"`
	Momentum         *float64 `json:"momentum"`
	Entropy          *float64 `json:"entropy"`
	Temperature      *float64 `json:"temperature"`
}

// Features returns the regime-model dimensions
// [potential, momentum, entropy, temperature] and whether all are present.
func (s StateVector) Features() ([]float64, bool) {
	if s.Potential == nil || s.Momentum == nil || s.Entropy == nil || s.Temperature == nil {
		return nil, false
	}
	return []float64{*s.Potential, *s.Momentum, *s.Entropy, *s.Temperature}, true
}

// Candle represents an OHLCV record read from the candle store.
type Candle struct {
	Bucket time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	OrgID  string
}
