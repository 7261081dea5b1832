package usecase

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"MarketState/internal/domain/models"
	domrepo "MarketState/internal/domain/repository"
	"MarketState/internal/services/features"
	"MarketState/internal/services/regime"
	"MarketState/internal/services/statevector"
)

func randomWalk(n int, seed uint64) []models.Observation {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	t0 := time.Unix(1700000000, 0).UTC()
	price := 100.0
	out := make([]models.Observation, n)
	for i := range out {
		price *= math.Exp(0.002 * rng.NormFloat64())
		out[i] = models.Observation{
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Price:     price,
			Volume:    1000 + 200*rng.Float64(),
		}
	}
	return out
}

// clusteredVectors alternates blocks of two well separated feature clusters.
func clusteredVectors(n int, seed uint64) []models.StateVector {
	rng := rand.New(rand.NewPCG(seed, seed^0xabc))
	out := make([]models.StateVector, n)
	for i := range out {
		base := 0.0
		if (i/50)%2 == 1 {
			base = 8
		}
		out[i].Potential = features.Ptr(base + rng.NormFloat64())
		out[i].Momentum = features.Ptr(base + rng.NormFloat64())
		out[i].Entropy = features.Ptr(base + rng.NormFloat64())
		out[i].Temperature = features.Ptr(base + rng.NormFloat64())
	}
	return out
}

func fastRegimeConfig() regime.Config {
	cfg := regime.DefaultConfig()
	cfg.CandidateStates = []int{2}
	cfg.Components = 1
	cfg.MaxIterations = 50
	return cfg
}

func newTestAnalysis(opts ...AnalysisOption) *AnalysisService {
	pcfg := statevector.DefaultConfig()
	pcfg.Filter.Particles = 200
	a, err := NewAnalysisService(pcfg, fastRegimeConfig(), AnalysisDefaults{
		Observations:     300,
		Timeframe:        domrepo.TF1m,
		PercentileWindow: 100,
		Classifier:       regime.ClassifierRule,
	}, opts...)
	if err != nil {
		panic(err)
	}
	return a
}

type fakeStore struct {
	obs        []models.Observation
	err        error
	calls      atomic.Int32
	rangeCalls atomic.Int32
	// when set, the first call blocks until ctx is done
	blockFirst bool
	entered    chan struct{}
}

func (s *fakeStore) GetObservations(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Observation, error) {
	s.rangeCalls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Observation
	for _, o := range s.obs {
		if !o.Timestamp.Before(from) && !o.Timestamp.After(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStore) GetLatestObservations(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Observation, error) {
	if s.calls.Add(1) == 1 && s.blockFirst {
		close(s.entered)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	if n < len(s.obs) {
		return s.obs[len(s.obs)-n:], nil
	}
	return s.obs, nil
}

type fakeNarrator struct {
	text string
	err  error
	got  models.Percentiles
}

func (n *fakeNarrator) Describe(_ context.Context, _ string, p models.Percentiles) (string, error) {
	n.got = p
	return n.text, n.err
}

type fakePublisher struct {
	mu      sync.Mutex
	reports []*models.Report
}

func (p *fakePublisher) Publish(_ context.Context, r *models.Report) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, r)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reports)
}

type memModelStore struct {
	mu     sync.Mutex
	params map[string]models.RegimeModelParameters
	locked map[string]bool
	saves  int
}

func newMemModelStore() *memModelStore {
	return &memModelStore{params: map[string]models.RegimeModelParameters{}, locked: map[string]bool{}}
}

func (s *memModelStore) Save(_ context.Context, symbol string, p models.RegimeModelParameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[symbol] = p
	s.saves++
	return nil
}

func (s *memModelStore) Load(_ context.Context, symbol string) (models.RegimeModelParameters, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.params[symbol]
	return p, ok, nil
}

func (s *memModelStore) TryLock(_ context.Context, symbol string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked[symbol] {
		return "", false, nil
	}
	s.locked[symbol] = true
	return "token-" + symbol, true, nil
}

func (s *memModelStore) Unlock(_ context.Context, symbol, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locked, symbol)
	return nil
}

type countingMetrics struct {
	superseded atomic.Int32
	fits       atomic.Int32
	pipelines  atomic.Int32
	regimes    atomic.Int32
}

func (m *countingMetrics) ObservePipeline(string, int, float64) { m.pipelines.Add(1) }
func (m *countingMetrics) IncWeightCollapse(string)             {}
func (m *countingMetrics) ObserveFit(int, int, bool)            { m.fits.Add(1) }
func (m *countingMetrics) IncSuperseded(string)                 { m.superseded.Add(1) }
func (m *countingMetrics) SetRegime(string, string, float64)    { m.regimes.Add(1) }

type recordingMetrics struct {
	mu     sync.Mutex
	errors []string
	sent   int
}

func (m *recordingMetrics) RecordMessageSent(string, string) {
	m.mu.Lock()
	m.sent++
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors = append(m.errors, kind)
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordLatency(string, float64) {}

var errBoom = errors.New("boom")
