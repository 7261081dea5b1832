package repository

import (
	"context"
	"time"

	"MarketState/internal/domain/models"
)

// ObservationStore provides read-only access to price/volume observations.
// Results are ordered by ascending timestamp.
type ObservationStore interface {
	GetObservations(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Observation, error)
	GetLatestObservations(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Observation, error)
}
