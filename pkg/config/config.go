package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"MarketState/internal/services/regime"
	"MarketState/internal/services/statevector"
	"MarketState/pkg/logger"
)

type Config struct {
	Environment string          `yaml:"environment" default:"development" env:"APP_ENV"`
	Server      ServerConfig    `yaml:"server"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	Logger      logger.Config   `yaml:"logger"`
	ClickHouse  ClickHouse      `yaml:"clickhouse"`
	Kafka       Kafka           `yaml:"kafka"`
	Redis       Redis           `yaml:"redis"`
	Analysis    Analysis        `yaml:"analysis"`
	Narrative   Narrative       `yaml:"narrative"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type ClickHouse struct {
	Enabled          bool          `yaml:"enabled" env:"CLICKHOUSE_ENABLED"`
	Host             string        `yaml:"host" default:"localhost" env:"CLICKHOUSE_HOST"`
	Port             int           `yaml:"port" default:"9000" env:"CLICKHOUSE_PORT"`
	Database         string        `yaml:"database" default:"marketstate"`
	Table            string        `yaml:"table" default:"ticks"`
	User             string        `yaml:"user" default:"default" env:"CLICKHOUSE_USER"`
	Password         string        `yaml:"password" env:"CLICKHOUSE_PASSWORD"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type Kafka struct {
	Enabled      bool     `yaml:"enabled" env:"KAFKA_ENABLED"`
	Brokers      []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	TicksTopic   string   `yaml:"ticks_topic" default:"ticks" env:"KAFKA_TICKS_TOPIC"`
	StateTopic   string   `yaml:"state_topic" default:"market-state" env:"KAFKA_STATE_TOPIC"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"snappy"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		Linger       time.Duration `yaml:"linger" default:"10ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"marketstate"`
		Workers    int           `yaml:"workers" default:"4"`
		BufferSize int           `yaml:"buffer_size" default:"1000"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
	} `yaml:"consumer"`
}

type Redis struct {
	Enabled  bool          `yaml:"enabled" env:"REDIS_ENABLED"`
	Host     string        `yaml:"host" default:"localhost" env:"REDIS_HOST"`
	Port     int           `yaml:"port" default:"6379" env:"REDIS_PORT"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix" default:"marketstate"`
	ModelTTL time.Duration `yaml:"model_ttl" default:"6h"`
}

// Analysis holds every numerical option of the state pipeline and the regime model.
type Analysis struct {
	Pipeline         statevector.Config `yaml:",inline"`
	Regime           regime.Config      `yaml:"regime_model"`
	PercentileWindow int                `yaml:"percentile_window" default:"250"`
	Observations     int                `yaml:"observations" default:"600"`
	Timeframe        string             `yaml:"timeframe" default:"1m"`
	Symbols          []string           `yaml:"symbols" env:"SYMBOLS" envSeparator:","`
	RefreshCron      string             `yaml:"refresh_cron" env:"REFRESH_CRON"`
	RefreshThrottle  time.Duration      `yaml:"refresh_throttle" default:"5s"`
	RunTimeout       time.Duration      `yaml:"run_timeout" default:"2m"`
}

// Narrative configures the optional text-description service.
type Narrative struct {
	URL        string        `yaml:"url" env:"NARRATIVE_URL"`
	Timeout    time.Duration `yaml:"timeout" default:"5s"`
	MaxRetries int           `yaml:"max_retries" default:"2"`
}

type RateLimitConfig struct {
	FitsPerMinute int `yaml:"fits_per_minute" default:"30"`
}

// Load reads a YAML file over the default values. A missing path yields the
// defaults alone.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads an optional .env file, then the YAML config, then applies
// environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Analysis.Observations < 10 {
		return fmt.Errorf("analysis.observations must be >= 10, got %d", c.Analysis.Observations)
	}
	if c.Analysis.PercentileWindow < 1 {
		return fmt.Errorf("analysis.percentile_window must be >= 1")
	}
	if err := c.Analysis.Pipeline.Validate(); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	if err := c.Analysis.Regime.Validate(); err != nil {
		return fmt.Errorf("analysis.regime_model: %w", err)
	}
	if c.Analysis.RefreshCron != "" && len(c.Analysis.Symbols) == 0 {
		return fmt.Errorf("analysis.symbols cannot be empty when refresh_cron is set")
	}
	return nil
}
