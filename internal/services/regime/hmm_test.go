package regime

import (
	"context"
	"encoding/json"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketState/internal/domain/models"
)

// twoRegimes draws a sticky two-state chain with well separated Gaussian
// emissions in four dimensions.
func twoRegimes(seed uint64, T int) ([][]float64, []int) {
	rng := rand.New(rand.NewPCG(seed, seed^0xabcdef))
	X := make([][]float64, T)
	states := make([]int, T)
	s := 0
	for t := 0; t < T; t++ {
		if t > 0 && rng.Float64() < 0.05 {
			s = 1 - s
		}
		states[t] = s
		row := make([]float64, 4)
		for d := range row {
			row[d] = 6*float64(s) + rng.NormFloat64()
		}
		X[t] = row
	}
	return X, states
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Components = 1
	cfg.MaxIterations = 100
	return cfg
}

func assertStochastic(t *testing.T, row []float64) {
	t.Helper()
	var s float64
	for _, v := range row {
		assert.GreaterOrEqual(t, v, 0.0)
		s += v
	}
	assert.InDelta(t, 1.0, s, 1e-9)
}

func TestFit_Invariants(t *testing.T) {
	X, _ := twoRegimes(1, 300)
	cfg := testConfig()
	cfg.Components = 2
	m, err := Fit(context.Background(), X, 2, cfg)
	require.NoError(t, err)

	p := m.Parameters()
	assert.Equal(t, 2, p.K)
	assert.Equal(t, 2, p.M)
	assert.Equal(t, 4, p.D)
	assertStochastic(t, p.Initial)
	for j := 0; j < p.K; j++ {
		assertStochastic(t, p.Transition[j])
		assertStochastic(t, p.Weights[j])
		for c := 0; c < p.M; c++ {
			cov := p.Covariances[j][c]
			for a := range cov {
				assert.Greater(t, cov[a][a], 0.0)
				for b := range cov {
					assert.InDelta(t, cov[a][b], cov[b][a], 1e-12)
				}
			}
		}
	}
	assert.False(t, math.IsNaN(p.LogLikelihood))
	assert.Equal(t, []string{"regime_0", "regime_1"}, p.Labels)
	assert.Equal(t, ModelVersion, p.Version)
}

func TestFit_RecoversStates(t *testing.T) {
	X, states := twoRegimes(2, 400)
	m, err := Fit(context.Background(), X, 2, testConfig())
	require.NoError(t, err)
	assert.True(t, m.Parameters().Converged)

	post, err := m.PredictProba(X)
	require.NoError(t, err)
	require.Len(t, post, len(X))

	// states are ordered by the entropy column, which tracks the high mean here
	var hits int
	for i, row := range post {
		assertStochastic(t, row)
		guess := 0
		if row[1] > row[0] {
			guess = 1
		}
		if guess == states[i] {
			hits++
		}
	}
	assert.Greater(t, float64(hits)/float64(len(X)), 0.97)
}

func TestFit_LogLikelihoodMatchesReported(t *testing.T) {
	X, _ := twoRegimes(3, 200)
	m, err := Fit(context.Background(), X, 2, testConfig())
	require.NoError(t, err)
	ll, err := m.LogLikelihood(X)
	require.NoError(t, err)
	assert.InDelta(t, m.Parameters().LogLikelihood, ll, 1e-6)
}

func TestFit_NonConvergenceIsFlagged(t *testing.T) {
	X, _ := twoRegimes(4, 200)
	cfg := testConfig()
	cfg.MaxIterations = 1
	cfg.Tolerance = 0
	m, err := Fit(context.Background(), X, 3, cfg)
	require.NoError(t, err)
	assert.False(t, m.Parameters().Converged)
	assert.Equal(t, 1, m.Parameters().Iterations)
}

func TestFit_Errors(t *testing.T) {
	ctx := context.Background()
	_, err := Fit(ctx, [][]float64{{1, 2}, {3, 4}}, 3, testConfig())
	assert.ErrorIs(t, err, ErrInsufficientData)

	X, _ := twoRegimes(5, 50)
	X[10] = []float64{1, 2}
	_, err = Fit(ctx, X, 2, testConfig())
	assert.ErrorIs(t, err, ErrDimension)

	X, _ = twoRegimes(5, 50)
	X[3][1] = math.NaN()
	_, err = Fit(ctx, X, 2, testConfig())
	assert.ErrorIs(t, err, ErrDimension)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	X, _ = twoRegimes(5, 50)
	_, err = Fit(cancelled, X, 2, testConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFit_ConstantColumn(t *testing.T) {
	X, _ := twoRegimes(6, 150)
	for _, row := range X {
		row[3] = 42
	}
	m, err := Fit(context.Background(), X, 2, testConfig())
	require.NoError(t, err)
	post, err := m.PredictProba(X)
	require.NoError(t, err)
	for _, row := range post {
		for _, v := range row {
			assert.False(t, math.IsNaN(v))
		}
	}
}

func TestNewModel_RoundTrip(t *testing.T) {
	X, _ := twoRegimes(7, 200)
	m, err := Fit(context.Background(), X, 2, testConfig())
	require.NoError(t, err)

	raw, err := json.Marshal(m.Parameters())
	require.NoError(t, err)
	var p models.RegimeModelParameters
	require.NoError(t, json.Unmarshal(raw, &p))

	restored, err := NewModel(p)
	require.NoError(t, err)
	a, err := m.PredictProba(X[:20])
	require.NoError(t, err)
	b, err := restored.PredictProba(X[:20])
	require.NoError(t, err)
	for i := range a {
		assert.InDeltaSlice(t, a[i], b[i], 1e-9)
	}
}

func TestNewModel_RejectsBadShapes(t *testing.T) {
	_, err := NewModel(models.RegimeModelParameters{Version: ModelVersion, K: 2, M: 1, D: 4})
	assert.ErrorIs(t, err, ErrDimension)
}

func TestNewModel_RejectsMissingLabels(t *testing.T) {
	X, _ := twoRegimes(7, 200)
	m, err := Fit(context.Background(), X, 2, testConfig())
	require.NoError(t, err)

	p := m.Parameters()
	p.Labels = nil
	_, err = NewModel(p)
	assert.ErrorIs(t, err, ErrDimension)

	p = m.Parameters()
	p.Labels = p.Labels[:1]
	_, err = NewModel(p)
	assert.ErrorIs(t, err, ErrDimension)
}

func TestNewModel_RejectsOtherVersion(t *testing.T) {
	X, _ := twoRegimes(7, 200)
	m, err := Fit(context.Background(), X, 2, testConfig())
	require.NoError(t, err)

	p := m.Parameters()
	p.Version = "gmhmm-v0"
	_, err = NewModel(p)
	assert.ErrorIs(t, err, ErrVersion)
}
