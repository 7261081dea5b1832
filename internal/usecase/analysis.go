package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"MarketState/internal/domain/models"
	domrepo "MarketState/internal/domain/repository"
	domsvc "MarketState/internal/domain/service"
	"MarketState/internal/services/features"
	"MarketState/internal/services/regime"
	"MarketState/internal/services/statevector"
	applogger "MarketState/pkg/logger"
)

var (
	ErrNoSource      = errors.New("usecase: no observation source configured")
	ErrNoObservation = errors.New("usecase: no observations")
)

// AnalyzeParams selects the data and classifier of one report.
type AnalyzeParams struct {
	Symbol           string
	N                int
	Timeframe        domrepo.Timeframe
	Classifier       string
	PercentileWindow int
	Hindsight        bool
	IncludeVectors   bool
	Refit            bool
	Publish          bool
	// From selects a time range instead of the newest N observations. At most
	// N observations, the newest of the range, are used. A zero To means now.
	From time.Time
	To   time.Time
}

// Key identifies requests that supersede each other.
func (p AnalyzeParams) Key() string {
	k := fmt.Sprintf("%s|%s|%d|%s|%d|%t|%t|%t", p.Symbol, p.Timeframe, p.N, p.Classifier, p.PercentileWindow, p.Hindsight, p.Refit, p.Publish)
	if !p.From.IsZero() {
		k += fmt.Sprintf("|%d-%d", p.From.Unix(), p.To.Unix())
	}
	return k
}

// AnalysisDefaults fills zero AnalyzeParams fields.
type AnalysisDefaults struct {
	Observations     int
	Timeframe        domrepo.Timeframe
	PercentileWindow int
	Classifier       string
}

func (d AnalysisDefaults) apply(p AnalyzeParams) AnalyzeParams {
	if p.N <= 0 {
		p.N = d.Observations
	}
	if p.Timeframe == "" {
		p.Timeframe = d.Timeframe
	}
	if p.PercentileWindow <= 0 {
		p.PercentileWindow = d.PercentileWindow
	}
	if p.Classifier == "" {
		p.Classifier = d.Classifier
	}
	if p.Classifier == "" {
		p.Classifier = regime.ClassifierRule
	}
	return p
}

// AnalysisService builds reports: observations, state vectors, percentiles,
// regime scores and an optional narrative.
type AnalysisService struct {
	store     domrepo.ObservationStore
	pipeline  statevector.Config
	regimeCfg regime.Config
	models    domrepo.ModelStore
	narrator  domsvc.Narrator
	metrics   domrepo.AnalyticsMetrics
	defaults  AnalysisDefaults
	l         *applogger.Logger
}

// AnalysisOption configures AnalysisService.
type AnalysisOption func(*AnalysisService)

// WithObservationStore sets the source used by Analyze.
func WithObservationStore(s domrepo.ObservationStore) AnalysisOption {
	return func(a *AnalysisService) { a.store = s }
}

// WithModelStore enables reuse and persistence of fitted regime models.
func WithModelStore(s domrepo.ModelStore) AnalysisOption {
	return func(a *AnalysisService) { a.models = s }
}

// WithNarrator enables narrative text.
func WithNarrator(n domsvc.Narrator) AnalysisOption {
	return func(a *AnalysisService) { a.narrator = n }
}

func WithAnalyticsMetrics(m domrepo.AnalyticsMetrics) AnalysisOption {
	return func(a *AnalysisService) { a.metrics = m }
}

func WithAnalysisLogger(l *applogger.Logger) AnalysisOption {
	return func(a *AnalysisService) { a.l = l }
}

// NewAnalysisService validates both configs up front.
func NewAnalysisService(pipeline statevector.Config, regimeCfg regime.Config, defaults AnalysisDefaults, opts ...AnalysisOption) (*AnalysisService, error) {
	if _, err := statevector.New(pipeline); err != nil {
		return nil, fmt.Errorf("pipeline config: %w", err)
	}
	if err := regimeCfg.Validate(); err != nil {
		return nil, fmt.Errorf("regime config: %w", err)
	}
	a := &AnalysisService{pipeline: pipeline, regimeCfg: regimeCfg, defaults: defaults}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Analyze loads the latest N observations of the symbol and reports on them.
func (a *AnalysisService) Analyze(ctx context.Context, p AnalyzeParams) (*models.Report, error) {
	p = a.defaults.apply(p)
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if a.store == nil {
		return nil, ErrNoSource
	}
	obs, err := a.load(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	return a.AnalyzeObservations(ctx, p, obs)
}

func (a *AnalysisService) load(ctx context.Context, p AnalyzeParams) ([]models.Observation, error) {
	if p.From.IsZero() {
		return a.store.GetLatestObservations(ctx, p.Symbol, p.N, p.Timeframe)
	}
	to := p.To
	if to.IsZero() {
		to = time.Now().UTC()
	}
	obs, err := a.store.GetObservations(ctx, p.Symbol, p.From, to, p.Timeframe)
	if err != nil {
		return nil, err
	}
	if p.N > 0 && len(obs) > p.N {
		obs = obs[len(obs)-p.N:]
	}
	return obs, nil
}

// AnalyzeObservations reports on caller-supplied observations.
func (a *AnalysisService) AnalyzeObservations(ctx context.Context, p AnalyzeParams, obs []models.Observation) (*models.Report, error) {
	p = a.defaults.apply(p)
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if len(obs) == 0 {
		return nil, ErrNoObservation
	}

	vectors, err := a.run(ctx, p.Symbol, obs)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	latest := vectors[len(vectors)-1]
	rep := &models.Report{
		Symbol:      p.Symbol,
		RunID:       uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		Latest:      &latest,
		Percentiles: features.RankLatest(vectors, p.PercentileWindow, p.Hindsight),
		Errors:      map[string]string{},
	}
	if p.IncludeVectors {
		rep.Vectors = vectors
	}

	scores, summary, err := a.classify(ctx, p, vectors)
	switch {
	case err == nil:
		rep.Regime = &scores
		rep.Model = summary
		if a.metrics != nil {
			a.metrics.SetRegime(p.Symbol, scores.Regime, scores.Confidence)
		}
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		rep.Model = summary
		rep.Errors["regime"] = err.Error()
	}

	if a.narrator != nil {
		text, err := a.narrator.Describe(ctx, p.Symbol, rep.Percentiles)
		if err != nil {
			a.l.Warn("narrative unavailable", applogger.String("symbol", p.Symbol), applogger.Error(err))
			rep.Errors["narrative"] = err.Error()
		} else {
			rep.Narrative = text
		}
	}

	if len(rep.Errors) == 0 {
		rep.Errors = nil
	}
	return rep, nil
}

func (a *AnalysisService) run(ctx context.Context, symbol string, obs []models.Observation) ([]models.StateVector, error) {
	hooks := statevector.Hooks{}
	if a.metrics != nil {
		hooks.OnWeightCollapse = func() { a.metrics.IncWeightCollapse(symbol) }
		hooks.OnComplete = func(steps int, elapsed time.Duration) {
			a.metrics.ObservePipeline(symbol, steps, elapsed.Seconds())
		}
	}
	pl, err := statevector.New(a.pipeline,
		statevector.WithLogger(a.l.With(applogger.String("symbol", symbol))),
		statevector.WithHooks(hooks))
	if err != nil {
		return nil, err
	}
	vectors, err := pl.Run(ctx, obs)
	if err != nil {
		return nil, fmt.Errorf("state pipeline: %w", err)
	}
	return vectors, nil
}

var (
	_ domsvc.Classifier = (*regime.RuleClassifier)(nil)
	_ domsvc.Classifier = (*regime.HMMClassifier)(nil)
)

// classifier picks the classifier named by p. The HMM one comes with the
// summary of the model it uses.
func (a *AnalysisService) classifier(ctx context.Context, p AnalyzeParams, vectors []models.StateVector) (domsvc.Classifier, *models.ModelSummary, error) {
	switch p.Classifier {
	case regime.ClassifierRule:
		return regime.NewRuleClassifier(p.PercentileWindow, p.Hindsight), nil, nil
	case regime.ClassifierHMM:
		m, summary, err := a.resolveModel(ctx, p.Symbol, vectors, p.Refit)
		if err != nil {
			return nil, summary, err
		}
		return regime.NewHMMClassifier(m), summary, nil
	default:
		return nil, nil, fmt.Errorf("unknown classifier %q", p.Classifier)
	}
}

func (a *AnalysisService) classify(ctx context.Context, p AnalyzeParams, vectors []models.StateVector) (models.RegimeScores, *models.ModelSummary, error) {
	c, summary, err := a.classifier(ctx, p, vectors)
	if err != nil {
		return models.RegimeScores{}, summary, err
	}
	s, err := c.Classify(ctx, vectors)
	return s, summary, err
}

// resolveModel reuses the stored model of the symbol unless refit is set or
// the stored one no longer loads. Fresh fits are saved by whichever caller
// holds the fit lock.
func (a *AnalysisService) resolveModel(ctx context.Context, symbol string, vectors []models.StateVector, refit bool) (*regime.Model, *models.ModelSummary, error) {
	if a.models != nil && !refit {
		params, ok, err := a.models.Load(ctx, symbol)
		switch {
		case err != nil:
			a.l.Warn("load regime model", applogger.String("symbol", symbol), applogger.Error(err))
		case ok:
			m, err := regime.NewModel(params)
			if err == nil {
				return m, summarize(params, true, nil), nil
			}
			a.l.Warn("stored regime model rejected", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}

	X := regime.FeatureMatrix(vectors)
	if len(X) == 0 {
		return nil, nil, regime.ErrNoCompleteVector
	}

	locked := false
	if a.models != nil {
		token, ok, err := a.models.TryLock(ctx, symbol)
		if err != nil {
			a.l.Warn("fit lock", applogger.String("symbol", symbol), applogger.Error(err))
		}
		locked = ok
		if locked {
			defer func() {
				if err := a.models.Unlock(context.WithoutCancel(ctx), symbol, token); err != nil {
					a.l.Warn("fit unlock", applogger.String("symbol", symbol), applogger.Error(err))
				}
			}()
		}
	}

	opts := []regime.FitOption{regime.WithLogger(a.l.With(applogger.String("symbol", symbol)))}
	if a.metrics != nil {
		opts = append(opts, regime.WithFitHook(a.metrics.ObserveFit))
	}
	sel, err := regime.Select(ctx, X, a.regimeCfg.CandidateStates, a.regimeCfg, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("fit regime model: %w", err)
	}
	params := sel.Best.Parameters()
	a.l.Info("regime model fitted",
		applogger.String("symbol", symbol),
		applogger.Int("k", params.K),
		applogger.Int("samples", params.Samples),
		applogger.Bool("converged", params.Converged))

	if locked {
		if err := a.models.Save(ctx, symbol, params); err != nil {
			a.l.Error("save regime model", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}
	return sel.Best, summarize(params, false, sel.Candidates), nil
}

func summarize(p models.RegimeModelParameters, reused bool, candidates []models.CandidateScore) *models.ModelSummary {
	return &models.ModelSummary{
		Version:    p.Version,
		K:          p.K,
		M:          p.M,
		Converged:  p.Converged,
		Iterations: p.Iterations,
		Reused:     reused,
		Candidates: candidates,
	}
}
