package features

import "math"

// TemperatureMode selects the reported form of the entropy/volume slope.
type TemperatureMode string

const (
	// TemperatureSlope reports beta = dV/dE.
	TemperatureSlope TemperatureMode = "slope"
	// TemperatureInverse reports 1/|beta|.
	TemperatureInverse TemperatureMode = "inverse"
)

const defaultTemperatureEpsilon = 1e-12

// TemperatureEstimator regresses volume changes on entropy changes over a
// trailing window of paired samples.
type TemperatureEstimator struct {
	window int
	mode   TemperatureMode
	eps    float64
}

func NewTemperatureEstimator(window int, mode TemperatureMode) *TemperatureEstimator {
	if mode == "" {
		mode = TemperatureSlope
	}
	return &TemperatureEstimator{window: window, mode: mode, eps: defaultTemperatureEpsilon}
}

// Estimate uses the newest window pairs. entropy and volume must be aligned.
func (t *TemperatureEstimator) Estimate(entropy, volume []float64) (float64, bool) {
	if t.window < 3 || len(entropy) != len(volume) || len(entropy) < t.window {
		return 0, false
	}
	e := entropy[len(entropy)-t.window:]
	v := volume[len(volume)-t.window:]

	var n, sx, sy, sxx, sxy float64
	for i := 1; i < len(e); i++ {
		x := e[i] - e[i-1]
		y := v[i] - v[i-1]
		n++
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}

	den := n*sxx - sx*sx
	if !IsFinite(den) || den < t.eps || den <= t.eps*n*sxx {
		return 0, false
	}
	beta := (n*sxy - sx*sy) / den
	if !IsFinite(beta) {
		return 0, false
	}

	if t.mode == TemperatureInverse {
		if math.Abs(beta) < t.eps {
			return 0, false
		}
		beta = 1 / math.Abs(beta)
	}
	return beta, IsFinite(beta)
}
