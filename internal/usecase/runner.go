package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"MarketState/internal/domain/models"
	domrepo "MarketState/internal/domain/repository"
)

// ErrSuperseded is returned to a caller whose run was replaced by a newer
// submission under the same key.
var ErrSuperseded = errors.New("usecase: superseded by a newer request")

// RunFunc computes one report. It must return promptly once ctx is done.
type RunFunc func(ctx context.Context) (*models.Report, error)

type inflight struct {
	gen    uint64
	cancel context.CancelFunc
}

// Runner executes at most one live run per key. Submitting under a busy key
// cancels the older run, whose caller then gets ErrSuperseded.
type Runner struct {
	mu       sync.Mutex
	gen      uint64
	inflight map[string]inflight
	latest   map[string]*models.Report
	metrics  domrepo.AnalyticsMetrics
}

func NewRunner(m domrepo.AnalyticsMetrics) *Runner {
	return &Runner{
		inflight: make(map[string]inflight),
		latest:   make(map[string]*models.Report),
		metrics:  m,
	}
}

// Submit runs fn under key. Only the newest submission for a key can return
// a report; older ones return ErrSuperseded.
func (r *Runner) Submit(ctx context.Context, key string, fn RunFunc) (*models.Report, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	r.gen++
	gen := r.gen
	if prev, ok := r.inflight[key]; ok {
		prev.cancel()
		if r.metrics != nil {
			r.metrics.IncSuperseded(symbolOf(key))
		}
	}
	r.inflight[key] = inflight{gen: gen, cancel: cancel}
	r.mu.Unlock()

	rep, err := fn(runCtx)

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.inflight[key]
	if !ok || cur.gen != gen {
		return nil, ErrSuperseded
	}
	delete(r.inflight, key)
	if err != nil {
		return nil, err
	}
	r.latest[key] = rep
	return rep, nil
}

// symbolOf extracts the symbol from a run key.
func symbolOf(key string) string {
	key = strings.TrimPrefix(key, adhocPrefix)
	if i := strings.IndexByte(key, '|'); i >= 0 {
		return key[:i]
	}
	return key
}

// Latest returns the most recent winning report for key.
func (r *Runner) Latest(key string) (*models.Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.latest[key]
	return rep, ok
}

// InFlight reports the number of keys with a live run.
func (r *Runner) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

// CancelAll cancels every live run.
func (r *Runner) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.inflight {
		f.cancel()
	}
}
