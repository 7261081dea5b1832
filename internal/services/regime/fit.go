package regime

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"MarketState/pkg/logger"
)

// ModelVersion tags persisted parameters; bump when the layout changes.
const ModelVersion = "gmhmm-v1"

type fitOptions struct {
	logger *logger.Logger
	onFit  func(k, iterations int, converged bool)
}

// FitOption configures Fit and Select.
type FitOption func(*fitOptions)

func WithLogger(l *logger.Logger) FitOption {
	return func(o *fitOptions) { o.logger = l }
}

// WithFitHook is called once per finished fit.
func WithFitHook(fn func(k, iterations int, converged bool)) FitOption {
	return func(o *fitOptions) { o.onFit = fn }
}

// MinSamples is the smallest series Fit accepts for k states.
func MinSamples(k, m int) int {
	return max(2*k*m, k+1, 2)
}

// Fit runs Baum-Welch for a k-state model on the rows of X. Non-convergence
// within MaxIterations is not an error: the result carries Converged=false and
// the last achieved likelihood.
func Fit(ctx context.Context, X [][]float64, k int, cfg Config, opts ...FitOption) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1", ErrInvalidConfig)
	}
	o := fitOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	T := len(X)
	if T < MinSamples(k, cfg.Components) {
		return nil, fmt.Errorf("%w: %d rows for k=%d m=%d", ErrInsufficientData, T, k, cfg.Components)
	}
	d := len(X[0])
	if d == 0 {
		return nil, fmt.Errorf("%w: empty feature rows", ErrDimension)
	}
	for t, row := range X {
		if len(row) != d {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrDimension, t, len(row), d)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: row %d is not finite", ErrDimension, t)
			}
		}
	}

	scaler := fitScaler(X)
	Z := transform(scaler, X)
	rng := rand.New(rand.NewPCG(cfg.Seed, uint64(k)))

	m := &Model{params: initialParameters(Z, k, cfg.Components, cfg.CovarianceFloor, rng), floor: cfg.CovarianceFloor}
	m.params.Scaler = scaler
	if err := m.build(); err != nil {
		return nil, err
	}

	ws := newWorkspace(T, k, cfg.Components)
	prev := math.Inf(-1)
	var (
		ll        float64
		iter      int
		converged bool
	)
	for iter = 1; iter <= cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ll = m.estep(Z, ws)
		if iter > 1 && ll-prev < cfg.Tolerance {
			converged = true
			break
		}
		prev = ll
		if err := m.mstep(Z, ws); err != nil {
			return nil, err
		}
	}
	if !converged {
		iter = cfg.MaxIterations
		m.emissions(Z, ws)
		ll = m.forward(ws)
		o.logger.Warn("regime model did not converge",
			logger.Int("k", k),
			logger.Int("iterations", iter),
			logger.Float("log_likelihood", ll))
	}

	if err := m.orderByEntropy(); err != nil {
		return nil, err
	}
	m.params.Version = ModelVersion
	m.params.FittedAt = time.Now().UTC()
	m.params.LogLikelihood = ll
	m.params.Iterations = iter
	m.params.Converged = converged
	m.params.Samples = T

	if o.onFit != nil {
		o.onFit(k, iter, converged)
	}
	return m, nil
}

// entropyFeature is the column used to order states.
const entropyFeature = 2

// orderByEntropy sorts states by ascending mixture-mean of the entropy
// feature and assigns labels regime_0..regime_{k-1}.
func (m *Model) orderByEntropy() error {
	p := &m.params
	col := entropyFeature
	if col >= p.D {
		col = 0
	}
	key := make([]float64, p.K)
	for j := 0; j < p.K; j++ {
		for c := 0; c < p.M; c++ {
			key[j] += p.Weights[j][c] * p.Means[j][c][col]
		}
	}
	order := make([]int, p.K)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return key[order[a]] < key[order[b]] })

	p.Labels = make([]string, p.K)
	for i := range p.Labels {
		p.Labels[i] = fmt.Sprintf("regime_%d", i)
	}
	return m.permute(order)
}
