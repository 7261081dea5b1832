package di

import (
	"context"
	"fmt"
	"time"

	"MarketState/internal/domain/repository"
	domsvc "MarketState/internal/domain/service"
	"MarketState/internal/handler/api"
	internalrepo "MarketState/internal/repository"
	svcmetrics "MarketState/internal/service/metrics"
	"MarketState/internal/service/ratelimit"
	"MarketState/internal/services/analytics"
	"MarketState/internal/usecase"
	"MarketState/pkg/cache"
	pkgch "MarketState/pkg/clickhouse"
	"MarketState/pkg/config"
	pkgkafka "MarketState/pkg/kafka"
	applogger "MarketState/pkg/logger"
	"MarketState/pkg/metrics"
	"MarketState/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideAnalyticsMetrics creates the pipeline and model-fit collectors.
func ProvideAnalyticsMetrics() repository.AnalyticsMetrics {
	return svcmetrics.NewAnalytics(prometheus.DefaultRegisterer)
}

// ProvideClickHouseClient connects to ClickHouse. It returns nil when
// ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideObservationWriter creates the tick table and returns its writer, or
// nil without ClickHouse.
func ProvideObservationWriter(ch *pkgch.Client, cfg *config.Config) (repository.ObservationWriter, error) {
	if ch == nil {
		return nil, nil
	}
	storage := internalrepo.NewCHTickStorage(ch, cfg.ClickHouse.Database, cfg.ClickHouse.Table)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := storage.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return storage, nil
}

// ProvideObservationStore reads candles from the tick table, or returns nil
// without ClickHouse.
func ProvideObservationStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) repository.ObservationStore {
	if ch == nil {
		return nil
	}
	store := internalrepo.NewCHObservationStore(ch, cfg.ClickHouse.Database+"."+cfg.ClickHouse.Table)
	store.SetLogger(l.With(applogger.String("component", "observation_store")))
	return store
}

// ProvideCache returns Redis when enabled, otherwise a process-local cache.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(1024)), nil
	}
	c, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideModelStore persists fitted regime models in the cache.
func ProvideModelStore(c cache.Service, cfg *config.Config) repository.ModelStore {
	return internalrepo.NewCacheModelStore(c, cfg.Redis.ModelTTL)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideStatePublisher publishes to Kafka when a producer exists and logs
// reports otherwise.
func ProvideStatePublisher(producer *pkgkafka.Producer, cfg *config.Config, m repository.Metrics, l *applogger.Logger) repository.StatePublisher {
	if producer == nil {
		return internalrepo.NewLogStatePublisher(l)
	}
	return internalrepo.NewKafkaStatePublisher(producer, cfg.Kafka.StateTopic, m)
}

// ProvideNarrator returns the text service client, or nil when no URL is set.
func ProvideNarrator(cfg *config.Config) domsvc.Narrator {
	if cfg.Narrative.URL == "" {
		return nil
	}
	return analytics.NewHTTPNarrator(cfg.Narrative.URL, cfg.Narrative.Timeout, cfg.Narrative.MaxRetries)
}

// ProvideAnalysisService builds the report pipeline from the analysis config.
func ProvideAnalysisService(
	cfg *config.Config,
	store repository.ObservationStore,
	models repository.ModelStore,
	narrator domsvc.Narrator,
	am repository.AnalyticsMetrics,
	l *applogger.Logger,
) (*usecase.AnalysisService, error) {
	opts := []usecase.AnalysisOption{
		usecase.WithModelStore(models),
		usecase.WithAnalyticsMetrics(am),
		usecase.WithAnalysisLogger(l.With(applogger.String("component", "analysis"))),
	}
	if store != nil {
		opts = append(opts, usecase.WithObservationStore(store))
	}
	if narrator != nil {
		opts = append(opts, usecase.WithNarrator(narrator))
	}
	svc, err := usecase.NewAnalysisService(cfg.Analysis.Pipeline, cfg.Analysis.Regime, AnalysisDefaults(cfg), opts...)
	if err != nil {
		return nil, fmt.Errorf("analysis service: %w", err)
	}
	return svc, nil
}

// AnalysisDefaults maps the analysis config onto request defaults.
func AnalysisDefaults(cfg *config.Config) usecase.AnalysisDefaults {
	return usecase.AnalysisDefaults{
		Observations:     cfg.Analysis.Observations,
		Timeframe:        repository.NormalizeTimeframe(cfg.Analysis.Timeframe),
		PercentileWindow: cfg.Analysis.PercentileWindow,
	}
}

// ProvideRunner creates the latest-wins runner.
func ProvideRunner(am repository.AnalyticsMetrics) *usecase.Runner {
	return usecase.NewRunner(am)
}

// ProvideStateUseCase combines analysis, runner and publisher.
func ProvideStateUseCase(
	cfg *config.Config,
	analysis *usecase.AnalysisService,
	runner *usecase.Runner,
	pub repository.StatePublisher,
	l *applogger.Logger,
) *usecase.StateUseCase {
	uc := usecase.NewStateUseCase(analysis, runner, pub, l.With(applogger.String("component", "state")))
	uc.SetTimeout(cfg.Analysis.RunTimeout)
	return uc
}

// ProvideFitLimiter rations model fits per client.
func ProvideFitLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.PerMinute(cfg.RateLimit.FitsPerMinute)
}

// ProvideStateHandler creates the /api handler.
func ProvideStateHandler(l *applogger.Logger, uc *usecase.StateUseCase, lim *ratelimit.Limiter) *api.StateEchoHandler {
	return api.NewStateEchoHandler(l.With(applogger.String("component", "http")), uc, lim)
}

// ProvideKafkaConsumer creates the tick consumer, or nil when Kafka is
// disabled. Handler failures are counted per topic.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger, m repository.Metrics) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l.With(applogger.String("component", "kafka_consumer")),
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetHook(pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, _ kafka.Message, _ []byte, _ error) {
			m.RecordError("consumer_" + topic)
		},
	})
	return consumer, nil
}

// ProvideObservationsHandler stores ticks and triggers throttled refreshes.
func ProvideObservationsHandler(cfg *config.Config, w repository.ObservationWriter, uc *usecase.StateUseCase, m repository.Metrics) *usecase.KafkaObservationsHandler {
	return usecase.NewKafkaObservationsHandler(cfg.Kafka.TicksTopic, w, uc, m, cfg.Analysis.RefreshThrottle)
}

// ProvideScheduler registers the refresh job, or returns nil when no cron
// expression is configured.
func ProvideScheduler(cfg *config.Config, uc *usecase.StateUseCase, l *applogger.Logger) (*usecase.Scheduler, error) {
	if cfg.Analysis.RefreshCron == "" {
		return nil, nil
	}
	s := usecase.NewScheduler(uc, cfg.Analysis.Symbols, l.With(applogger.String("component", "scheduler")))
	if err := s.Register(cfg.Analysis.RefreshCron); err != nil {
		return nil, err
	}
	return s, nil
}

// ProvideApp assembles the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handler *api.StateEchoHandler,
	state *usecase.StateUseCase,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaObservationsHandler,
	scheduler *usecase.Scheduler,
	pub repository.StatePublisher,
	c cache.Service,
	ch *pkgch.Client,
) *server.App {
	return server.New(cfg, l, server.Components{
		Handler:    handler,
		State:      state,
		Consumer:   consumer,
		Ticks:      kh,
		Scheduler:  scheduler,
		Publisher:  pub,
		Cache:      c,
		ClickHouse: ch,
	})
}
