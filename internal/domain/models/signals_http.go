package models

import "time"

// Requests for the state HTTP endpoints.

type StateRequest struct {
	Symbol     string `query:"symbol" json:"symbol" validate:"required"`
	N          int    `query:"n" json:"n" default:"600" validate:"gte=10,lte=20000"`
	TF         string `query:"tf" json:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
	Classifier string `query:"classifier" json:"classifier" default:"rule" validate:"oneof=rule hmm"`
	Window     int    `query:"window" json:"window" default:"250" validate:"gte=2,lte=20000"`
	Hindsight  bool   `query:"hindsight" json:"hindsight"`
	Vectors    bool   `query:"vectors" json:"vectors"`
	// From and To bound the observations in unix seconds. A zero To means now.
	From int64 `query:"from" json:"from" validate:"gte=0"`
	To   int64 `query:"to" json:"to" validate:"omitempty,gtfield=From"`
}

type ObservationsRequest struct {
	Symbol       string        `json:"symbol" validate:"required"`
	Classifier   string        `json:"classifier" default:"rule" validate:"oneof=rule hmm"`
	Window       int           `json:"window" default:"250" validate:"gte=2,lte=20000"`
	Hindsight    bool          `json:"hindsight"`
	Observations []Observation `json:"observations" validate:"required,min=2,max=20000"`
}

type RegimeRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	N      int    `query:"n" json:"n" default:"600" validate:"gte=10,lte=20000"`
	TF     string `query:"tf" json:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
	Refit  bool   `query:"refit" json:"refit"`
}

// RegimeResponse is the body of GET /api/regime.
type RegimeResponse struct {
	Symbol    string        `json:"symbol"`
	RunID     string        `json:"run_id"`
	Timestamp time.Time     `json:"timestamp"`
	Latest    *StateVector  `json:"latest,omitempty"`
	Regime    *RegimeScores `json:"regime"`
	Model     *ModelSummary `json:"model,omitempty"`
}
