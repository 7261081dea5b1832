//go:build wireinject
// +build wireinject

package di

import (
	"MarketState/pkg/config"
	"MarketState/pkg/server"

	"github.com/google/wire"
)

// ProviderSet holds every provider of the service.
var ProviderSet = wire.NewSet(
	// Ambient
	ProvideLogger,
	ProvideMetrics,
	ProvideAnalyticsMetrics,

	// Infrastructure clients
	ProvideClickHouseClient,
	ProvideCache,
	ProvideKafkaProducer,
	ProvideKafkaConsumer,

	// Repositories
	ProvideObservationWriter,
	ProvideObservationStore,
	ProvideModelStore,
	ProvideStatePublisher,
	ProvideNarrator,

	// Use cases
	ProvideAnalysisService,
	ProvideRunner,
	ProvideStateUseCase,
	ProvideObservationsHandler,
	ProvideScheduler,

	// HTTP
	ProvideFitLimiter,
	ProvideStateHandler,

	// Application server
	ProvideApp,
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(ProviderSet)
	return &server.App{}, nil
}
