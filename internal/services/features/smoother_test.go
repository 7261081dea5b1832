package features

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDifferentiate_Ramp(t *testing.T) {
	d, err := Differentiate([]float64{100, 101, 102, 103, 104}, 5, 1)
	require.NoError(t, err)
	assert.InDelta(t, 104.0, d.Value, 1e-9)
	assert.InDelta(t, 1.0, d.First, 1e-9)
	assert.False(t, d.HasSecond)
}

func TestDifferentiate_QuadraticExact(t *testing.T) {
	// x(t) = 3 + 2t + 0.5t^2 sampled at t = -6..0
	xs := make([]float64, 7)
	for i := range xs {
		tt := float64(i - 6)
		xs[i] = 3 + 2*tt + 0.5*tt*tt
	}
	d, err := NewSmoother(7, 2, 1).Differentiate(xs)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, d.Value, 1e-8)
	assert.InDelta(t, 2.0, d.First, 1e-8)
	assert.InDelta(t, 1.0, d.Second, 1e-8)
	assert.True(t, d.HasSecond)
}

func TestDifferentiate_SampleInterval(t *testing.T) {
	d, err := NewSmoother(5, 1, 0.5).Differentiate([]float64{100, 101, 102, 103, 104})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, d.First, 1e-9)
}

func TestDifferentiate_UsesNewestWindow(t *testing.T) {
	d, err := Differentiate([]float64{-50, 7, 100, 101, 102, 103, 104}, 5, 1)
	require.NoError(t, err)
	assert.InDelta(t, 104.0, d.Value, 1e-9)
}

func TestDifferentiate_Unavailable(t *testing.T) {
	cases := []struct {
		name   string
		xs     []float64
		window int
		order  int
	}{
		{"short window", []float64{1, 2, 3}, 5, 1},
		{"order too high", []float64{1, 2, 3}, 3, 3},
		{"zero window", []float64{1}, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Differentiate(tc.xs, tc.window, tc.order)
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestDifferentiate_NonFiniteInputIsUnavailable(t *testing.T) {
	_, err := Differentiate([]float64{1, 2, math.NaN(), 4, 5}, 5, 1)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCoefficientCache_ConcurrentReaders(t *testing.T) {
	c := &CoefficientCache{}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := c.Get(9, 2)
			assert.NoError(t, err)
			r, cols := h.Dims()
			assert.Equal(t, 3, r)
			assert.Equal(t, 9, cols)
		}()
	}
	wg.Wait()

	a, _ := c.Get(9, 2)
	b, _ := c.Get(9, 2)
	assert.Same(t, a, b)
}

func TestCoefficientCache_SmoothingRowSumsToOne(t *testing.T) {
	h, err := (&CoefficientCache{}).Get(11, 2)
	require.NoError(t, err)
	var sum float64
	for _, v := range h.RawRowView(0) {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestDifferentiate_WideWindowsHighOrder(t *testing.T) {
	cases := []struct{ window, order int }{
		{101, 4},
		{201, 5},
		{61, 6},
		{51, 4},
		{101, 3},
	}
	for _, tc := range cases {
		// x(t) = 50 + 0.3t - 0.002t^2 sampled at t = -(window-1)..0
		xs := make([]float64, tc.window)
		for i := range xs {
			tt := float64(i - (tc.window - 1))
			xs[i] = 50 + 0.3*tt - 0.002*tt*tt
		}
		d, err := Differentiate(xs, tc.window, tc.order)
		require.NoError(t, err, "window=%d order=%d", tc.window, tc.order)
		assert.InDelta(t, 50.0, d.Value, 1e-6, "window=%d order=%d", tc.window, tc.order)
		assert.InDelta(t, 0.3, d.First, 1e-6, "window=%d order=%d", tc.window, tc.order)
		assert.InDelta(t, -0.004, d.Second, 1e-6, "window=%d order=%d", tc.window, tc.order)
	}
}
