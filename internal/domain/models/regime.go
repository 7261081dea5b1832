package models

import "time"

// FeatureNames are the state-vector dimensions used for regime fitting, in order.
var FeatureNames = []string{"potential", "momentum", "entropy", "temperature"}

// Percentiles holds the percentile rank (0-100) of the latest vector per dimension.
// A nil field means the latest vector has no value for that dimension.
type Percentiles struct {
	Potential   *float64 `json:"potential"`
	Momentum    *float64 `json:"momentum"`
	Entropy     *float64 `json:"entropy"`
	Temperature *float64 `json:"temperature"`
}

// RegimeScores is the output of a classifier for one state vector.
type RegimeScores struct {
	Classifier string             `json:"classifier"`
	Causal     bool               `json:"causal"`
	Regime     string             `json:"regime"`
	Scores     map[string]float64 `json:"scores"`
	Confidence float64            `json:"confidence"`
}

// Scaler standardises feature rows before fitting.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// RegimeModelParameters is a fitted Gaussian-mixture HMM.
// Shapes: Initial[K], Transition[K][K], Weights[K][M], Means[K][M][D],
// Covariances[K][M][D][D].
type RegimeModelParameters struct {
	Version       string          `json:"version"`
	FittedAt      time.Time       `json:"fitted_at"`
	K             int             `json:"k"`
	M             int             `json:"m"`
	D             int             `json:"d"`
	Initial       []float64       `json:"initial"`
	Transition    [][]float64     `json:"transition"`
	Weights       [][]float64     `json:"weights"`
	Means         [][][]float64   `json:"means"`
	Covariances   [][][][]float64 `json:"covariances"`
	Scaler        Scaler          `json:"scaler"`
	Labels        []string        `json:"labels"`
	LogLikelihood float64         `json:"log_likelihood"`
	Iterations    int             `json:"iterations"`
	Converged     bool            `json:"converged"`
	Samples       int             `json:"samples"`
}

// CandidateScore is the BIC outcome of one candidate state count.
type CandidateScore struct {
	K             int     `json:"k"`
	LogLikelihood float64 `json:"log_likelihood"`
	Parameters    int     `json:"parameters"`
	BIC           float64 `json:"bic"`
	Converged     bool    `json:"converged"`
	Err           string  `json:"error,omitempty"`
}

// ModelSummary describes the regime model used for a report.
type ModelSummary struct {
	Version    string           `json:"version"`
	K          int              `json:"k"`
	M          int              `json:"m"`
	Converged  bool             `json:"converged"`
	Iterations int              `json:"iterations"`
	Reused     bool             `json:"reused"`
	Candidates []CandidateScore `json:"candidates,omitempty"`
}

// Report is the consolidated analysis output for one symbol.
type Report struct {
	Symbol      string            `json:"symbol"`
	RunID       string            `json:"run_id"`
	Timestamp   time.Time         `json:"timestamp"`
	Vectors     []StateVector     `json:"vectors,omitempty"`
	Latest      *StateVector      `json:"latest,omitempty"`
	Percentiles Percentiles       `json:"percentiles"`
	Regime      *RegimeScores     `json:"regime,omitempty"`
	Model       *ModelSummary     `json:"model,omitempty"`
	Narrative   string            `json:"narrative,omitempty"`
	Errors      map[string]string `json:"errors,omitempty"`
}
