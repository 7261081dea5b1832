package regime

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"MarketState/internal/domain/models"
)

// NumParameters counts the free parameters of a full-covariance GM-HMM.
func NumParameters(k, m, d int) int {
	return (k - 1) + k*(k-1) + k*(m-1) + k*m*d + k*m*d*(d+1)/2
}

// BIC is the Bayesian information criterion; lower is better.
func BIC(logLikelihood float64, params, samples int) float64 {
	return float64(params)*math.Log(float64(samples)) - 2*logLikelihood
}

// Selection is the outcome of a BIC search.
type Selection struct {
	Best       *Model
	Candidates []models.CandidateScore
}

// Select fits one model per candidate state count concurrently and keeps the
// one with the lowest BIC. Failed candidates are reported, not fatal, unless
// every candidate fails.
func Select(ctx context.Context, X [][]float64, candidates []int, cfg Config, opts ...FitOption) (*Selection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ks := uniqueSorted(candidates)
	if len(ks) == 0 {
		return nil, fmt.Errorf("%w: no candidate state counts", ErrInvalidConfig)
	}

	workers := cfg.Workers
	if workers <= 0 || workers > len(ks) {
		workers = len(ks)
	}
	sem := make(chan struct{}, workers)

	fitted := make([]*Model, len(ks))
	scores := make([]models.CandidateScore, len(ks))
	var wg sync.WaitGroup
	for i, k := range ks {
		wg.Add(1)
		go func(i, k int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				scores[i] = models.CandidateScore{K: k, Err: ctx.Err().Error()}
				return
			}
			defer func() { <-sem }()

			score := models.CandidateScore{K: k, Parameters: NumParameters(k, cfg.Components, dims(X))}
			m, err := Fit(ctx, X, k, cfg, opts...)
			if err != nil {
				score.Err = err.Error()
				scores[i] = score
				return
			}
			p := m.Parameters()
			score.LogLikelihood = p.LogLikelihood
			score.BIC = BIC(p.LogLikelihood, score.Parameters, p.Samples)
			score.Converged = p.Converged
			fitted[i], scores[i] = m, score
		}(i, k)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	best := -1
	var errs []error
	for i, s := range scores {
		if fitted[i] == nil {
			errs = append(errs, fmt.Errorf("k=%d: %s", s.K, s.Err))
			continue
		}
		if best < 0 || s.BIC < scores[best].BIC {
			best = i
		}
	}
	if best < 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoCandidate, errors.Join(errs...))
	}
	return &Selection{Best: fitted[best], Candidates: scores}, nil
}

func dims(X [][]float64) int {
	if len(X) == 0 {
		return 0
	}
	return len(X[0])
}

func uniqueSorted(ks []int) []int {
	seen := make(map[int]bool, len(ks))
	out := make([]int, 0, len(ks))
	for _, k := range ks {
		if k >= 1 && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}
