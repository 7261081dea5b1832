package repository

import (
	"context"

	"MarketState/internal/domain/models"
)

// ObservationWriter persists raw ticks.
type ObservationWriter interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, symbol string, o models.Observation) error
	StoreBatch(ctx context.Context, symbol string, obs []models.Observation) error
	Health(ctx context.Context) error
	Close() error
}

// StatePublisher pushes finished reports downstream.
type StatePublisher interface {
	Publish(ctx context.Context, r *models.Report) error
	Close() error
}

// ModelStore persists fitted regime models per symbol.
type ModelStore interface {
	Save(ctx context.Context, symbol string, p models.RegimeModelParameters) error
	Load(ctx context.Context, symbol string) (models.RegimeModelParameters, bool, error)
	// TryLock guards a refit so that one replica fits a symbol at a time.
	// The returned token identifies the holder to Unlock.
	TryLock(ctx context.Context, symbol string) (string, bool, error)
	Unlock(ctx context.Context, symbol, token string) error
}

type Metrics interface {
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

// AnalyticsMetrics records pipeline and model-fitting events.
type AnalyticsMetrics interface {
	ObservePipeline(symbol string, steps int, seconds float64)
	IncWeightCollapse(symbol string)
	ObserveFit(k, iterations int, converged bool)
	IncSuperseded(symbol string)
	SetRegime(symbol, regime string, confidence float64)
}
