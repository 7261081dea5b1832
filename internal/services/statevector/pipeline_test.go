package statevector

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketState/internal/domain/models"
)

var t0 = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.SmoothingWindow = 5
	cfg.PolynomialOrder = 2
	cfg.EquilibriumWindow = 10
	cfg.EntropyWindow = 10
	cfg.TemperatureWindow = 5
	cfg.Filter.Particles = 300
	cfg.Filter.Workers = 2
	return cfg
}

func series(prices, volumes []float64) []models.Observation {
	obs := make([]models.Observation, len(prices))
	for i := range prices {
		obs[i] = models.Observation{Timestamp: t0.Add(time.Duration(i) * time.Minute), Price: prices[i], Volume: volumes[i]}
	}
	return obs
}

func randomWalk(seed uint64, n int) []models.Observation {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	prices := make([]float64, n)
	volumes := make([]float64, n)
	p := 100.0
	for i := 0; i < n; i++ {
		if rng.IntN(2) == 0 {
			p++
		} else {
			p--
		}
		prices[i] = p
		volumes[i] = 1000 + 500*rng.Float64()
	}
	return series(prices, volumes)
}

func allFields(sv models.StateVector) []*float64 {
	return []*float64{sv.SmoothedPrice, sv.Velocity, sv.Acceleration, sv.EquilibriumPrice,
		sv.Stiffness, sv.Force, sv.Mass, sv.Potential, sv.Momentum, sv.Entropy, sv.Temperature}
}

func TestRun_Causal(t *testing.T) {
	p, err := New(smallConfig())
	require.NoError(t, err)
	obs := randomWalk(3, 200)

	full, err := p.Run(context.Background(), obs)
	require.NoError(t, err)
	require.Len(t, full, len(obs))

	for _, cut := range []int{12, 60, 150, 199} {
		prefix, err := p.Run(context.Background(), obs[:cut])
		require.NoError(t, err)
		assert.Equal(t, full[:cut], prefix, "prefix %d", cut)
	}
}

func TestRun_NeverStoresNonFinite(t *testing.T) {
	p, err := New(smallConfig())
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(9, 9))
	for trial := 0; trial < 10; trial++ {
		n := 40 + rng.IntN(60)
		prices := make([]float64, n)
		volumes := make([]float64, n)
		for i := range prices {
			switch rng.IntN(6) {
			case 0:
				prices[i] = 0
			case 1:
				prices[i] = 1e-9
			case 2:
				prices[i] = 1e6 * rng.Float64()
			default:
				prices[i] = 100 + rng.NormFloat64()
			}
			if rng.IntN(4) == 0 {
				volumes[i] = 0
			} else {
				volumes[i] = 1e7 * rng.Float64()
			}
		}
		out, err := p.Run(context.Background(), series(prices, volumes))
		require.NoError(t, err)
		for i, sv := range out {
			for _, f := range allFields(sv) {
				if f != nil {
					assert.False(t, math.IsNaN(*f) || math.IsInf(*f, 0), "trial %d step %d", trial, i)
				}
			}
		}
	}
}

func TestRun_BurnIn(t *testing.T) {
	cfg := smallConfig()
	p, err := New(cfg)
	require.NoError(t, err)
	out, err := p.Run(context.Background(), randomWalk(5, 60))
	require.NoError(t, err)

	for i := 0; i < cfg.SmoothingWindow-1; i++ {
		assert.Nil(t, out[i].SmoothedPrice)
		assert.Nil(t, out[i].Velocity)
		assert.Nil(t, out[i].Potential)
	}
	assert.NotNil(t, out[cfg.SmoothingWindow-1].SmoothedPrice)
	assert.NotNil(t, out[len(out)-1].Potential)
	assert.NotNil(t, out[len(out)-1].Stiffness)
}

func TestRun_ZeroPriceHasNoMass(t *testing.T) {
	p, err := New(smallConfig())
	require.NoError(t, err)
	out, err := p.Run(context.Background(), series([]float64{0, -1, 5}, []float64{10, 10, 10}))
	require.NoError(t, err)
	assert.Nil(t, out[0].Mass)
	assert.Nil(t, out[1].Mass)
	assert.Nil(t, out[1].Momentum)
	require.NotNil(t, out[2].Mass)
	assert.InDelta(t, 2.0, *out[2].Mass, 1e-12)
}

func TestRun_RejectsInvalidInput(t *testing.T) {
	p, err := New(smallConfig())
	require.NoError(t, err)

	cases := map[string][]models.Observation{
		"nan price":       series([]float64{1, math.NaN()}, []float64{1, 1}),
		"inf volume":      series([]float64{1, 2}, []float64{1, math.Inf(1)}),
		"negative volume": series([]float64{1, 2}, []float64{1, -1}),
		"unordered": {
			{Timestamp: t0.Add(time.Minute), Price: 1, Volume: 1},
			{Timestamp: t0, Price: 1, Volume: 1},
		},
	}
	for name, obs := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := p.Run(context.Background(), obs)
			assert.ErrorIs(t, err, ErrInvalidObservation)
			assert.Nil(t, out)
		})
	}
}

func TestRun_Cancelled(t *testing.T) {
	p, err := New(smallConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := p.Run(ctx, randomWalk(1, 30))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)
}

func TestRun_TrendThenRandomWalk(t *testing.T) {
	p, err := New(smallConfig())
	require.NoError(t, err)

	const trendSteps, walkSteps = 50, 100
	rng := rand.New(rand.NewPCG(11, 12))
	prices := make([]float64, 0, trendSteps+walkSteps)
	volumes := make([]float64, 0, trendSteps+walkSteps)
	for i := 0; i < trendSteps; i++ {
		prices = append(prices, 100+float64(i))
		volumes = append(volumes, 1000+10*float64(i))
	}
	last := prices[trendSteps-1]
	for i := 0; i < walkSteps; i++ {
		if rng.IntN(2) == 0 {
			last++
		} else {
			last--
		}
		prices = append(prices, last)
		volumes = append(volumes, 1000+500*rng.Float64())
	}

	out, err := p.Run(context.Background(), series(prices, volumes))
	require.NoError(t, err)
	require.Len(t, out, trendSteps+walkSteps)

	meanEntropy := func(vs []models.StateVector) (float64, int) {
		sum, n := 0.0, 0
		for _, sv := range vs {
			if sv.Entropy != nil {
				sum += *sv.Entropy
				n++
			}
		}
		if n == 0 {
			return 0, 0
		}
		return sum / float64(n), n
	}
	temperatures := func(vs []models.StateVector) int {
		n := 0
		for _, sv := range vs {
			if sv.Temperature != nil {
				n++
			}
		}
		return n
	}

	trend, walk := out[:trendSteps], out[trendSteps:]

	trendEntropy, n := meanEntropy(trend)
	require.Positive(t, n)
	assert.Equal(t, 0.0, trendEntropy)
	assert.Zero(t, temperatures(trend))

	var potentials int
	for _, sv := range trend {
		if sv.Potential != nil {
			potentials++
			assert.False(t, math.IsNaN(*sv.Potential) || math.IsInf(*sv.Potential, 0))
		}
	}
	assert.Positive(t, potentials)

	walkEntropy, n := meanEntropy(walk)
	require.Positive(t, n)
	assert.Greater(t, walkEntropy, trendEntropy)
	assert.Greater(t, temperatures(walk), temperatures(trend))
}

func TestConfig_Validate(t *testing.T) {
	cfg := smallConfig()
	cfg.PolynomialOrder = 1
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = smallConfig()
	cfg.TemperatureMode = "celsius"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = smallConfig()
	cfg.Filter.ProcessNoise = [][]float64{{-1, 0}, {0, 1}}
	_, err := New(cfg)
	assert.Error(t, err)

	assert.NoError(t, DefaultConfig().Validate())
}
