package filter

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"MarketState/pkg/logger"
)

const (
	// collapseThreshold is the total weight below which the set is re-weighted uniformly.
	collapseThreshold = 1e-300
	maxLogStiffness   = 50.0
	minChunk          = 256
)

// Config holds the parameter filter settings.
type Config struct {
	Particles        int         `yaml:"particle_count" default:"1000"`
	ProcessNoise     [][]float64 `yaml:"process_noise_cov" default:"[[0.0001,0],[0,0.0001]]"`
	MeasurementNoise float64     `yaml:"measurement_noise_var" default:"1"`
	ESSThreshold     float64     `yaml:"ess_threshold" default:"0.5"`
	InitialStiffness float64     `yaml:"initial_stiffness" default:"1"`
	InitialSpread    [2]float64  `yaml:"initial_spread"`
	Workers          int         `yaml:"workers" default:"4"`
	Seed             uint64      `yaml:"seed" default:"42"`
}

// DefaultConfig returns a filter config with conservative noise levels.
func DefaultConfig() Config {
	return Config{
		Particles:        1000,
		ProcessNoise:     [][]float64{{1e-4, 0}, {0, 1e-4}},
		MeasurementNoise: 1,
		ESSThreshold:     0.5,
		InitialStiffness: 1,
		InitialSpread:    [2]float64{0.5, 1},
		Workers:          4,
		Seed:             42,
	}
}

// Validate checks scalar settings. The process noise is checked by New.
func (c Config) Validate() error {
	switch {
	case c.Particles <= 0:
		return fmt.Errorf("%w: particle_count must be > 0", ErrInvalidConfig)
	case !(c.MeasurementNoise > 0) || math.IsInf(c.MeasurementNoise, 0):
		return fmt.Errorf("%w: measurement_noise_var must be > 0", ErrInvalidConfig)
	case c.ESSThreshold < 0 || c.ESSThreshold > 1:
		return fmt.Errorf("%w: ess_threshold must be within [0,1]", ErrInvalidConfig)
	case !(c.InitialStiffness > 0):
		return fmt.Errorf("%w: initial_stiffness must be > 0", ErrInvalidConfig)
	case c.InitialSpread[0] < 0 || c.InitialSpread[1] < 0:
		return fmt.Errorf("%w: initial_spread must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// Particle is one hypothesis of the state [log k, F].
type Particle struct {
	State  [2]float64
	Weight float64
}

// ParticleSet is a weighted particle population.
type ParticleSet []Particle

// Sum returns the total weight.
func (ps ParticleSet) Sum() float64 {
	var s float64
	for i := range ps {
		s += ps[i].Weight
	}
	return s
}

// ESS returns the effective sample size 1/Σw² of a normalised set.
func (ps ParticleSet) ESS() float64 {
	var s float64
	for i := range ps {
		s += ps[i].Weight * ps[i].Weight
	}
	if s == 0 {
		return 0
	}
	return 1 / s
}

func (ps ParticleSet) uniform() {
	w := 1 / float64(len(ps))
	for i := range ps {
		ps[i].Weight = w
	}
}

// Option configures a ParticleFilter.
type Option func(*ParticleFilter)

// WithLogger attaches a logger used for weight-collapse warnings.
func WithLogger(l *logger.Logger) Option {
	return func(f *ParticleFilter) { f.logger = l }
}

// WithCollapseHook registers a callback invoked on every weight collapse.
func WithCollapseHook(fn func()) Option {
	return func(f *ParticleFilter) { f.onCollapse = fn }
}

// ParticleFilter tracks stiffness k and external force F with sequential
// importance resampling. Not safe for concurrent use; Update parallelises
// internally.
type ParticleFilter struct {
	cfg        Config
	particles  ParticleSet
	scratch    ParticleSet
	noise      *MultivariateNormal
	rng        *rand.Rand
	draw       []float64
	collapses  int
	updates    int
	logger     *logger.Logger
	onCollapse func()
}

// New validates cfg and seeds the particle population around the prior.
func New(cfg Config, opts ...Option) (*ParticleFilter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ProcessNoise == nil {
		cfg.ProcessNoise = DefaultConfig().ProcessNoise
	}
	if cfg.InitialSpread == [2]float64{} {
		cfg.InitialSpread = DefaultConfig().InitialSpread
	}
	noise, err := NewMultivariateNormal([]float64{0, 0}, cfg.ProcessNoise)
	if err != nil {
		return nil, fmt.Errorf("process noise: %w", err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	f := &ParticleFilter{
		cfg:       cfg,
		particles: make(ParticleSet, cfg.Particles),
		scratch:   make(ParticleSet, cfg.Particles),
		noise:     noise,
		rng:       rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		draw:      make([]float64, 2),
	}
	for _, opt := range opts {
		opt(f)
	}

	logK0 := math.Log(cfg.InitialStiffness)
	w := 1 / float64(cfg.Particles)
	for i := range f.particles {
		f.particles[i] = Particle{
			State: [2]float64{
				logK0 + cfg.InitialSpread[0]*f.rng.NormFloat64(),
				cfg.InitialSpread[1] * f.rng.NormFloat64(),
			},
			Weight: w,
		}
	}
	return f, nil
}

// Predict applies the random-walk transition with N(0, Q) noise.
func (f *ParticleFilter) Predict() {
	for i := range f.particles {
		f.noise.Sample(f.rng, f.draw)
		f.particles[i].State[0] += f.draw[0]
		f.particles[i].State[1] += f.draw[1]
	}
}

// Update weights every particle by the likelihood of measurement under
// h(x) = F - k*(price - peq). A collapsed set is re-weighted uniformly.
func (f *ParticleFilter) Update(ctx context.Context, measurement, price, peq float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	disp := price - peq
	inv2R := 1 / (2 * f.cfg.MeasurementNoise)

	weigh := func(ps ParticleSet) {
		for i := range ps {
			k := math.Exp(math.Min(ps[i].State[0], maxLogStiffness))
			r := measurement - (ps[i].State[1] - k*disp)
			lik := math.Exp(-r * r * inv2R)
			if math.IsNaN(lik) {
				lik = 0
			}
			ps[i].Weight *= lik
		}
	}

	n := len(f.particles)
	workers := f.cfg.Workers
	if workers > n/minChunk {
		workers = n / minChunk
	}
	if workers <= 1 {
		weigh(f.particles)
	} else {
		chunk := (n + workers - 1) / workers
		var wg sync.WaitGroup
		for start := 0; start < n; start += chunk {
			end := min(start+chunk, n)
			wg.Add(1)
			go func(ps ParticleSet) {
				defer wg.Done()
				if ctx.Err() != nil {
					return
				}
				weigh(ps)
			}(f.particles[start:end])
		}
		wg.Wait()
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	f.updates++
	sum := f.particles.Sum()
	if !(sum >= collapseThreshold) || math.IsInf(sum, 0) {
		f.collapses++
		f.particles.uniform()
		if f.logger != nil {
			f.logger.Warn("particle weights collapsed, reweighting uniformly",
				logger.Float("measurement", measurement),
				logger.Float("displacement", disp),
				logger.Int("collapses", f.collapses))
		}
		if f.onCollapse != nil {
			f.onCollapse()
		}
		return nil
	}
	for i := range f.particles {
		f.particles[i].Weight /= sum
	}
	return nil
}

// ESS returns the effective sample size of the current weights.
func (f *ParticleFilter) ESS() float64 { return f.particles.ESS() }

// MaybeResample resamples when ESS falls below the configured fraction of N.
func (f *ParticleFilter) MaybeResample() bool {
	if f.ESS() >= f.cfg.ESSThreshold*float64(len(f.particles)) {
		return false
	}
	f.Resample()
	return true
}

// Resample performs systematic resampling and resets weights to 1/N.
func (f *ParticleFilter) Resample() {
	n := len(f.particles)
	step := 1 / float64(n)
	u := f.rng.Float64() * step
	cum := f.particles[0].Weight
	j := 0
	for i := 0; i < n; i++ {
		for u >= cum && j < n-1 {
			j++
			cum += f.particles[j].Weight
		}
		f.scratch[i] = Particle{State: f.particles[j].State, Weight: step}
		u += step
	}
	f.particles, f.scratch = f.scratch, f.particles
}

// Estimate returns k = exp(E[log k]) and F = E[F] under the current weights.
func (f *ParticleFilter) Estimate() (k, force float64) {
	var logK float64
	for _, p := range f.particles {
		logK += p.Weight * p.State[0]
		force += p.Weight * p.State[1]
	}
	return math.Exp(math.Min(logK, maxLogStiffness)), force
}

// Updated reports whether at least one measurement has been absorbed.
func (f *ParticleFilter) Updated() bool { return f.updates > 0 }

// Collapses returns how many times the weights collapsed.
func (f *ParticleFilter) Collapses() int { return f.collapses }

// Particles returns a copy of the current population.
func (f *ParticleFilter) Particles() ParticleSet {
	out := make(ParticleSet, len(f.particles))
	copy(out, f.particles)
	return out
}
