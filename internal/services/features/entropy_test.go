package features

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShannonEntropy_ConstantIsZero(t *testing.T) {
	for _, c := range []float64{0, 1, -3.5, 1e9} {
		xs := make([]float64, 40)
		for i := range xs {
			xs[i] = c
		}
		r, ok := ShannonEntropy(xs)
		require.True(t, ok)
		assert.Equal(t, 0.0, r.Value)
		assert.Equal(t, 1, r.Bins)
	}
}

func TestShannonEntropy_Bounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for trial := 0; trial < 50; trial++ {
		n := 10 + rng.IntN(200)
		xs := make([]float64, n)
		for i := range xs {
			switch trial % 3 {
			case 0:
				xs[i] = rng.NormFloat64()
			case 1:
				xs[i] = rng.ExpFloat64() * 100
			default:
				xs[i] = float64(rng.IntN(3))
			}
		}
		r, ok := ShannonEntropy(xs)
		require.True(t, ok)
		assert.GreaterOrEqual(t, r.Value, 0.0)
		assert.GreaterOrEqual(t, r.Bins, 1)
		assert.LessOrEqual(t, r.Value, math.Log2(float64(r.Bins))+1e-12)
	}
}

func TestShannonEntropy_ZeroIQRFallsBack(t *testing.T) {
	// more than half the mass on one value collapses the IQR
	xs := []float64{5, 5, 5, 5, 5, 5, 5, 5, 1, 9}
	r, ok := ShannonEntropy(xs)
	require.True(t, ok)
	assert.Greater(t, r.Value, 0.0)
	assert.False(t, math.IsNaN(r.Value))
}

func TestEntropyEstimator_Window(t *testing.T) {
	e := NewEntropyEstimator(5)
	_, ok := e.Estimate([]float64{1, 2, 3})
	assert.False(t, ok)

	// only the trailing constant window is binned
	r, ok := e.Estimate([]float64{9, -4, 2, 2, 2, 2, 2})
	require.True(t, ok)
	assert.Equal(t, 0.0, r.Value)
}

func TestShannonEntropy_NonFiniteUnavailable(t *testing.T) {
	_, ok := ShannonEntropy([]float64{1, math.Inf(1), 3})
	assert.False(t, ok)
}

func TestPercentile(t *testing.T) {
	s := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1.75, Percentile(s, 25), 1e-12)
	assert.InDelta(t, 3.25, Percentile(s, 75), 1e-12)
	assert.InDelta(t, 1.0, Percentile(s, 0), 1e-12)
	assert.InDelta(t, 4.0, Percentile(s, 100), 1e-12)
}

func TestPercentileRank(t *testing.T) {
	ref := []float64{1, 2, 3, 4}
	assert.InDelta(t, 100*3.5/4, PercentileRank(ref, 4), 1e-12)
	assert.InDelta(t, 0.0, PercentileRank(ref, 0), 1e-12)
	assert.True(t, math.IsNaN(PercentileRank(nil, 1)))
}
