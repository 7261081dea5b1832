package features

import (
	"math"
	"sort"

	"MarketState/internal/domain/models"
)

// Percentile returns the p-th percentile (0..100) of sorted using linear
// interpolation between closest ranks. sorted must be ascending and non-empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	p = math.Max(0, math.Min(100, p))
	pos := p / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// PercentileRank is the share of ref below x, counting ties as half, scaled to 0..100.
func PercentileRank(ref []float64, x float64) float64 {
	if len(ref) == 0 {
		return math.NaN()
	}
	var below, equal int
	for _, v := range ref {
		switch {
		case v < x:
			below++
		case v == x:
			equal++
		}
	}
	return 100 * (float64(below) + 0.5*float64(equal)) / float64(len(ref))
}

// RankLatest computes percentile ranks of the newest vector's features.
// With hindsight=false the reference set is the trailing window vectors
// (newest included); otherwise the whole series is used.
// Dimensions missing on the newest vector stay nil.
func RankLatest(vectors []models.StateVector, window int, hindsight bool) models.Percentiles {
	var out models.Percentiles
	if len(vectors) == 0 {
		return out
	}
	ref := vectors
	if !hindsight && window > 0 && len(vectors) > window {
		ref = vectors[len(vectors)-window:]
	}
	latest := vectors[len(vectors)-1]

	rank := func(get func(models.StateVector) *float64) *float64 {
		x := get(latest)
		if x == nil {
			return nil
		}
		vals := make([]float64, 0, len(ref))
		for _, v := range ref {
			if f := get(v); f != nil {
				vals = append(vals, *f)
			}
		}
		return Ptr(PercentileRank(vals, *x))
	}

	out.Potential = rank(func(v models.StateVector) *float64 { return v.Potential })
	out.Momentum = rank(func(v models.StateVector) *float64 { return v.Momentum })
	out.Entropy = rank(func(v models.StateVector) *float64 { return v.Entropy })
	out.Temperature = rank(func(v models.StateVector) *float64 { return v.Temperature })
	return out
}

func sortedCopy(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	sort.Float64s(out)
	return out
}
