package filter

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Particles = 2000
	cfg.Workers = 4
	return cfg
}

func TestNew_RejectsBadProcessNoise(t *testing.T) {
	cfg := testConfig()
	cfg.ProcessNoise = [][]float64{{1, 2}, {2, 1}}
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrNotPositiveDefinite)
}

func TestNew_RejectsBadScalars(t *testing.T) {
	cfg := testConfig()
	cfg.MeasurementNoise = 0
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = testConfig()
	cfg.Particles = 0
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestUpdate_WeightsStayNormalised(t *testing.T) {
	f, err := New(testConfig())
	require.NoError(t, err)
	n := float64(testConfig().Particles)

	ctx := context.Background()
	for step := 0; step < 50; step++ {
		f.Predict()
		require.NoError(t, f.Update(ctx, 0.3*float64(step%5)-0.5, 101, 100))
		assert.InDelta(t, 1.0, f.Particles().Sum(), 1e-9)
		ess := f.ESS()
		assert.GreaterOrEqual(t, ess, 1.0-1e-9)
		assert.LessOrEqual(t, ess, n+1e-6)
		f.MaybeResample()
		for _, p := range f.Particles() {
			assert.GreaterOrEqual(t, p.Weight, 0.0)
		}
	}
}

func TestUpdate_CollapseReweightsUniformly(t *testing.T) {
	var hooked int
	f, err := New(testConfig(), WithCollapseHook(func() { hooked++ }))
	require.NoError(t, err)

	require.NoError(t, f.Update(context.Background(), 1e12, 101, 100))
	assert.Equal(t, 1, f.Collapses())
	assert.Equal(t, 1, hooked)

	want := 1 / float64(testConfig().Particles)
	for _, p := range f.Particles() {
		assert.InDelta(t, want, p.Weight, 1e-15)
	}
}

func TestUpdate_Cancelled(t *testing.T) {
	f, err := New(testConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.Update(ctx, 0, 1, 0), context.Canceled)
}

func TestResample_KeepsHeavyParticle(t *testing.T) {
	cfg := testConfig()
	cfg.Particles = 10
	f, err := New(cfg)
	require.NoError(t, err)

	for i := range f.particles {
		f.particles[i].Weight = 0
	}
	f.particles[3].Weight = 1
	heavy := f.particles[3].State

	assert.True(t, f.MaybeResample())
	for _, p := range f.Particles() {
		assert.Equal(t, heavy, p.State)
		assert.InDelta(t, 0.1, p.Weight, 1e-15)
	}
}

func TestFilter_TracksStiffness(t *testing.T) {
	// measurement = F - k*(p - peq) with k=2, F=0.5
	cfg := testConfig()
	cfg.MeasurementNoise = 0.01
	cfg.InitialStiffness = 1
	f, err := New(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	for step := 0; step < 200; step++ {
		disp := 2 * math.Sin(float64(step)/5)
		f.Predict()
		require.NoError(t, f.Update(ctx, 0.5-2*disp, 100+disp, 100))
		f.MaybeResample()
	}
	k, force := f.Estimate()
	assert.InDelta(t, 2.0, k, 0.5)
	assert.InDelta(t, 0.5, force, 0.5)
	assert.True(t, f.Updated())
}

func TestFilter_Deterministic(t *testing.T) {
	run := func() (float64, float64) {
		f, err := New(testConfig())
		require.NoError(t, err)
		for step := 0; step < 30; step++ {
			f.Predict()
			require.NoError(t, f.Update(context.Background(), float64(step%3), 100.5, 100))
			f.MaybeResample()
		}
		return f.Estimate()
	}
	k1, f1 := run()
	k2, f2 := run()
	assert.Equal(t, k1, k2)
	assert.Equal(t, f1, f2)
}
