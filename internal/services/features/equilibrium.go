package features

import "gonum.org/v1/gonum/stat"

// EquilibriumMode selects how the fair-value reference is computed.
type EquilibriumMode string

const (
	// EquilibriumMean is the rolling mean of smoothed price.
	EquilibriumMean EquilibriumMode = "mean"
	// EquilibriumTrend is a trailing linear trend evaluated at the newest sample.
	EquilibriumTrend EquilibriumMode = "trend"
)

// EquilibriumEstimator produces the causal fair value p_eq(t).
type EquilibriumEstimator struct {
	window int
	mode   EquilibriumMode
}

func NewEquilibriumEstimator(window int, mode EquilibriumMode) *EquilibriumEstimator {
	if mode == "" {
		mode = EquilibriumMean
	}
	return &EquilibriumEstimator{window: window, mode: mode}
}

// Estimate uses only the newest window samples of history.
func (e *EquilibriumEstimator) Estimate(history []float64) (float64, bool) {
	if e.window <= 0 || len(history) < e.window {
		return 0, false
	}
	tail := history[len(history)-e.window:]

	var v float64
	switch e.mode {
	case EquilibriumTrend:
		if e.window < 2 {
			return 0, false
		}
		d, err := Differentiate(tail, e.window, 1)
		if err != nil {
			return 0, false
		}
		v = d.Value
	default:
		v = stat.Mean(tail, nil)
	}
	if !IsFinite(v) {
		return 0, false
	}
	return v, true
}
