package statevector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketState/internal/domain/models"
	"MarketState/internal/services/features"
	"MarketState/internal/services/filter"
	"MarketState/pkg/logger"
)

// ErrInvalidObservation marks input the pipeline refuses to process.
var ErrInvalidObservation = errors.New("statevector: invalid observation")

const minPrice = 1e-12

// Hooks receives pipeline events. Nil members are skipped.
type Hooks struct {
	OnWeightCollapse func()
	OnComplete       func(steps int, elapsed time.Duration)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithLogger(l *logger.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func WithHooks(h Hooks) Option {
	return func(p *Pipeline) { p.hooks = h }
}

// Pipeline turns an observation series into state vectors. Each Run is
// independent and deterministic for a given config; the pipeline itself holds
// no per-run state and is safe for concurrent use.
type Pipeline struct {
	cfg    Config
	logger *logger.Logger
	hooks  Hooks
}

func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// fail fast on a bad process noise instead of on the first run
	if _, err := filter.New(cfg.Filter); err != nil {
		return nil, err
	}
	p := &Pipeline{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// ValidateObservations checks finite price and volume, non-negative volume and
// strictly increasing timestamps.
func ValidateObservations(obs []models.Observation) error {
	for i, o := range obs {
		if !features.IsFinite(o.Price) || !features.IsFinite(o.Volume) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrInvalidObservation, i)
		}
		if o.Volume < 0 {
			return fmt.Errorf("%w: negative volume at index %d", ErrInvalidObservation, i)
		}
		if i > 0 && !o.Timestamp.After(obs[i-1].Timestamp) {
			return fmt.Errorf("%w: timestamp at index %d is not after its predecessor", ErrInvalidObservation, i)
		}
	}
	return nil
}

// run carries the per-call rolling state.
type run struct {
	smoother    *features.Smoother
	equilibrium *features.EquilibriumEstimator
	entropy     *features.EntropyEstimator
	temperature *features.TemperatureEstimator
	pf          *filter.ParticleFilter

	prices     []float64
	smoothed   []float64
	velocities []float64
	entropies  []float64
	volumes    []float64 // aligned with entropies

	prevSmoothed *float64
	prevEq       *float64
}

// Run processes obs in order. Value t of the output depends only on obs[0..t].
// A cancelled context aborts the run and no vectors are returned.
func (p *Pipeline) Run(ctx context.Context, obs []models.Observation) ([]models.StateVector, error) {
	if err := ValidateObservations(obs); err != nil {
		return nil, err
	}
	start := time.Now()

	fopts := []filter.Option{filter.WithLogger(p.logger)}
	if p.hooks.OnWeightCollapse != nil {
		fopts = append(fopts, filter.WithCollapseHook(p.hooks.OnWeightCollapse))
	}
	pf, err := filter.New(p.cfg.Filter, fopts...)
	if err != nil {
		return nil, err
	}

	r := &run{
		smoother:    features.NewSmoother(p.cfg.SmoothingWindow, p.cfg.PolynomialOrder, p.cfg.SampleInterval),
		equilibrium: features.NewEquilibriumEstimator(p.cfg.EquilibriumWindow, p.cfg.EquilibriumMode),
		entropy:     features.NewEntropyEstimator(p.cfg.EntropyWindow),
		temperature: features.NewTemperatureEstimator(p.cfg.TemperatureWindow, p.cfg.TemperatureMode),
		pf:          pf,
		prices:      make([]float64, 0, len(obs)),
	}

	out := make([]models.StateVector, 0, len(obs))
	for _, o := range obs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sv, err := r.step(ctx, o)
		if err != nil {
			return nil, err
		}
		out = append(out, sv)
	}

	if p.hooks.OnComplete != nil {
		p.hooks.OnComplete(len(out), time.Since(start))
	}
	if n := pf.Collapses(); n > 0 {
		p.logger.Warn("particle filter weights collapsed during run",
			logger.Int("collapses", n),
			logger.Int("steps", len(out)))
	}
	return out, nil
}

func (r *run) step(ctx context.Context, o models.Observation) (models.StateVector, error) {
	sv := models.StateVector{Observation: o}
	r.prices = append(r.prices, o.Price)

	var acc *float64
	if d, err := r.smoother.Differentiate(r.prices); err == nil {
		sv.SmoothedPrice = features.Ptr(d.Value)
		sv.Velocity = features.Ptr(d.First)
		if d.HasSecond {
			acc = features.Ptr(d.Second)
			sv.Acceleration = acc
		}
	}
	if sv.SmoothedPrice != nil {
		r.smoothed = append(r.smoothed, *sv.SmoothedPrice)
		if peq, ok := r.equilibrium.Estimate(r.smoothed); ok {
			sv.EquilibriumPrice = features.Ptr(peq)
		}
	}
	if sv.Velocity != nil {
		r.velocities = append(r.velocities, *sv.Velocity)
	}
	if o.Price > minPrice {
		sv.Mass = features.Ptr(o.Volume / o.Price)
	}

	// the measurement at t is explained by the displacement observed at t-1
	r.pf.Predict()
	if acc != nil && sv.Mass != nil && r.prevSmoothed != nil && r.prevEq != nil {
		meas := *sv.Mass * *acc
		if features.IsFinite(meas) {
			if err := r.pf.Update(ctx, meas, *r.prevSmoothed, *r.prevEq); err != nil {
				return sv, err
			}
			r.pf.MaybeResample()
		}
	}
	if r.pf.Updated() {
		k, force := r.pf.Estimate()
		sv.Stiffness = features.Ptr(k)
		sv.Force = features.Ptr(force)
	}
	r.prevSmoothed, r.prevEq = sv.SmoothedPrice, sv.EquilibriumPrice

	if sv.Stiffness != nil && sv.Force != nil && sv.SmoothedPrice != nil && sv.EquilibriumPrice != nil {
		k, force, s := *sv.Stiffness, *sv.Force, *sv.SmoothedPrice
		disp := s - *sv.EquilibriumPrice
		sv.Potential = features.Ptr(0.5*k*disp*disp - force*s)
	}
	if sv.Mass != nil && sv.Velocity != nil {
		m, v := *sv.Mass, *sv.Velocity
		sv.Momentum = features.Ptr(0.5 * m * v * v)
	}

	if res, ok := r.entropy.Estimate(r.velocities); ok && sv.Velocity != nil {
		sv.Entropy = features.Ptr(res.Value)
	}
	if sv.Entropy != nil {
		r.entropies = append(r.entropies, *sv.Entropy)
		r.volumes = append(r.volumes, o.Volume)
		if temp, ok := r.temperature.Estimate(r.entropies, r.volumes); ok {
			sv.Temperature = features.Ptr(temp)
		}
	}
	return sv, nil
}
