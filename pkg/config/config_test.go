package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketState/internal/services/features"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 15, c.Analysis.Pipeline.SmoothingWindow)
	assert.Equal(t, 2, c.Analysis.Pipeline.PolynomialOrder)
	assert.Equal(t, features.TemperatureSlope, c.Analysis.Pipeline.TemperatureMode)
	assert.Equal(t, 1000, c.Analysis.Pipeline.Filter.Particles)
	assert.Equal(t, [][]float64{{0.0001, 0}, {0, 0.0001}}, c.Analysis.Pipeline.Filter.ProcessNoise)
	assert.Equal(t, []int{2, 3, 4}, c.Analysis.Regime.CandidateStates)
	assert.Equal(t, 6*time.Hour, c.Redis.ModelTTL)
	assert.Equal(t, 250, c.Analysis.PercentileWindow)
	assert.Equal(t, 5*time.Second, c.Analysis.RefreshThrottle)
	assert.Equal(t, 2*time.Minute, c.Analysis.RunTimeout)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
environment: production
analysis:
  smoothing_window: 21
  polynomial_order: 3
  temperature_mode: inverse
  equilibrium_mode: trend
  parameter_filter:
    particle_count: 500
    measurement_noise_var: 0.5
  regime_model:
    candidate_state_counts: [2, 3]
    mixture_components: 1
  symbols: [AAPL, MSFT]
  refresh_cron: "@every 1m"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, 21, c.Analysis.Pipeline.SmoothingWindow)
	assert.Equal(t, 3, c.Analysis.Pipeline.PolynomialOrder)
	assert.Equal(t, features.TemperatureInverse, c.Analysis.Pipeline.TemperatureMode)
	assert.Equal(t, features.EquilibriumTrend, c.Analysis.Pipeline.EquilibriumMode)
	assert.Equal(t, 500, c.Analysis.Pipeline.Filter.Particles)
	assert.Equal(t, 0.5, c.Analysis.Pipeline.Filter.MeasurementNoise)
	assert.Equal(t, []int{2, 3}, c.Analysis.Regime.CandidateStates)
	assert.Equal(t, 1, c.Analysis.Regime.Components)
	assert.Equal(t, []string{"AAPL", "MSFT"}, c.Analysis.Symbols)
	// untouched keys keep their defaults
	assert.Equal(t, 50, c.Analysis.Pipeline.EquilibriumWindow)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad order":        "analysis:\n  polynomial_order: 1\n",
		"bad mode":         "analysis:\n  temperature_mode: kelvin\n",
		"kafka no brokers": "kafka:\n  enabled: true\n",
		"cron no symbols":  "analysis:\n  refresh_cron: \"@every 1m\"\n",
		"no particles":     "analysis:\n  parameter_filter:\n    particle_count: -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnv_Overrides(t *testing.T) {
	t.Setenv("SYMBOLS", "BTC,ETH")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")

	c, err := LoadWithEnv("")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC", "ETH"}, c.Analysis.Symbols)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "debug", c.Logger.Level)
}

func TestLoad_ShippedConfig(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, c.Analysis.Symbols)
	assert.Equal(t, "@every 1m", c.Analysis.RefreshCron)
	assert.Equal(t, "ticks-dlq", c.Kafka.Consumer.DLQTopic)
	assert.Equal(t, 30, c.RateLimit.FitsPerMinute)
}
