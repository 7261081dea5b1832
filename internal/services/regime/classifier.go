package regime

import (
	"context"
	"fmt"
	"sort"

	"MarketState/internal/domain/models"
	"MarketState/internal/services/features"
)

const (
	ClassifierRule = "rule"
	ClassifierHMM  = "hmm"
)

// Rule-based regime names.
const (
	RegimeStable    = "stable"
	RegimeTrending  = "trending"
	RegimeTurbulent = "turbulent"
	RegimeStretched = "stretched"
)

// FeatureMatrix returns the feature rows of every complete vector.
func FeatureMatrix(vectors []models.StateVector) [][]float64 {
	X := make([][]float64, 0, len(vectors))
	for _, v := range vectors {
		if row, ok := v.Features(); ok {
			X = append(X, row)
		}
	}
	return X
}

// RuleClassifier scores the newest vector from its percentile ranks.
type RuleClassifier struct {
	window    int
	hindsight bool
}

// NewRuleClassifier ranks against the trailing window vectors, or against the
// whole series when hindsight is set. Hindsight results are not causal.
func NewRuleClassifier(window int, hindsight bool) *RuleClassifier {
	return &RuleClassifier{window: window, hindsight: hindsight}
}

func (c *RuleClassifier) Name() string { return ClassifierRule }

func (c *RuleClassifier) Classify(ctx context.Context, vectors []models.StateVector) (models.RegimeScores, error) {
	if err := ctx.Err(); err != nil {
		return models.RegimeScores{}, err
	}
	if len(vectors) == 0 {
		return models.RegimeScores{}, ErrNoCompleteVector
	}
	p := features.RankLatest(vectors, c.window, c.hindsight)
	if p.Potential == nil || p.Momentum == nil || p.Entropy == nil || p.Temperature == nil {
		return models.RegimeScores{}, ErrNoCompleteVector
	}
	pp, pm, pe, pt := *p.Potential, *p.Momentum, *p.Entropy, *p.Temperature

	raw := map[string]float64{
		RegimeStable:    ((100 - pe) + (100 - pm)) / 2,
		RegimeTrending:  (pm + (100 - pe)) / 2,
		RegimeTurbulent: (pe + pt) / 2,
		RegimeStretched: pp,
	}
	return finish(ClassifierRule, !c.hindsight, raw), nil
}

// HMMClassifier reports the posterior of the newest complete vector.
type HMMClassifier struct {
	model *Model
}

func NewHMMClassifier(m *Model) *HMMClassifier {
	return &HMMClassifier{model: m}
}

func (c *HMMClassifier) Name() string { return ClassifierHMM }

func (c *HMMClassifier) Classify(ctx context.Context, vectors []models.StateVector) (models.RegimeScores, error) {
	if err := ctx.Err(); err != nil {
		return models.RegimeScores{}, err
	}
	if len(vectors) == 0 {
		return models.RegimeScores{}, ErrNoCompleteVector
	}
	if _, ok := vectors[len(vectors)-1].Features(); !ok {
		return models.RegimeScores{}, ErrNoCompleteVector
	}
	post, err := c.model.PredictProba(FeatureMatrix(vectors))
	if err != nil {
		return models.RegimeScores{}, fmt.Errorf("posterior: %w", err)
	}
	last := post[len(post)-1]
	labels := c.model.Labels()
	raw := make(map[string]float64, len(last))
	for j, prob := range last {
		raw[labels[j]] = prob
	}
	// parameters are fitted on the full batch, so the result is not causal
	return finish(ClassifierHMM, false, raw), nil
}

// finish normalises raw scores and picks the arg-max regime. Ties go to the
// alphabetically first name.
func finish(name string, causal bool, raw map[string]float64) models.RegimeScores {
	names := make([]string, 0, len(raw))
	var total float64
	for n, v := range raw {
		if v < 0 || !features.IsFinite(v) {
			raw[n] = 0
		}
		total += raw[n]
		names = append(names, n)
	}
	sort.Strings(names)

	scores := make(map[string]float64, len(raw))
	for _, n := range names {
		if total > 0 {
			scores[n] = raw[n] / total
		} else {
			scores[n] = 1 / float64(len(names))
		}
	}

	out := models.RegimeScores{Classifier: name, Causal: causal, Scores: scores}
	for _, n := range names {
		if out.Regime == "" || scores[n] > out.Confidence {
			out.Regime, out.Confidence = n, scores[n]
		}
	}
	return out
}
