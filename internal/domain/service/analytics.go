package service

import (
	"context"

	"MarketState/internal/domain/models"
)

// Classifier maps a state-vector series to regime scores for its newest vector.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, vectors []models.StateVector) (models.RegimeScores, error)
}

// Narrator turns the newest percentile ranks into a short text description.
type Narrator interface {
	Describe(ctx context.Context, symbol string, p models.Percentiles) (string, error)
}
