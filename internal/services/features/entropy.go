package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// rangeTolerance is the relative spread below which a window counts as constant.
const rangeTolerance = 1e-9

// EntropyResult is a Shannon entropy in bits together with the bin count used.
type EntropyResult struct {
	Value float64
	Bins  int
}

// EntropyEstimator computes histogram entropy over a trailing window with
// Freedman-Diaconis bin widths.
type EntropyEstimator struct {
	window int
}

func NewEntropyEstimator(window int) *EntropyEstimator {
	return &EntropyEstimator{window: window}
}

// Estimate uses the newest window values of xs.
func (e *EntropyEstimator) Estimate(xs []float64) (EntropyResult, bool) {
	if e.window < 2 || len(xs) < e.window {
		return EntropyResult{}, false
	}
	return ShannonEntropy(xs[len(xs)-e.window:])
}

// ShannonEntropy bins the whole of xs and returns its entropy.
func ShannonEntropy(xs []float64) (EntropyResult, bool) {
	n := len(xs)
	if n < 2 {
		return EntropyResult{}, false
	}
	for _, v := range xs {
		if !IsFinite(v) {
			return EntropyResult{}, false
		}
	}

	lo, hi := floats.Min(xs), floats.Max(xs)
	span := hi - lo
	scale := math.Max(math.Abs(lo), math.Abs(hi))
	if span == 0 || span <= rangeTolerance*scale {
		return EntropyResult{Value: 0, Bins: 1}, true
	}

	width := binWidth(xs, span, scale)
	bins := int(math.Ceil(span / width))
	if bins < 1 {
		bins = 1
	}
	if bins > n {
		bins = n
	}
	width = span / float64(bins)

	counts := make([]int, bins)
	for _, v := range xs {
		idx := int((math.Min(math.Max(v, lo), hi) - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		counts[idx]++
	}

	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(n)
		h -= p * math.Log2(p)
	}
	h = math.Max(0, math.Min(h, math.Log2(float64(bins))))
	return EntropyResult{Value: h, Bins: bins}, true
}

func binWidth(xs []float64, span, scale float64) float64 {
	n := float64(len(xs))
	sorted := sortedCopy(xs)
	iqr := Percentile(sorted, 75) - Percentile(sorted, 25)
	if iqr > rangeTolerance*scale {
		return 2 * iqr / math.Cbrt(n)
	}
	// Scott's rule when the inter-quartile range collapses
	if sd := stat.StdDev(xs, nil); sd > 0 && IsFinite(sd) {
		return 3.49 * sd / math.Cbrt(n)
	}
	return span
}
