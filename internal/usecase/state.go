package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"MarketState/internal/domain/models"
	domrepo "MarketState/internal/domain/repository"
	applogger "MarketState/pkg/logger"
)

// adhocPrefix keys runs over caller-supplied observations.
const adhocPrefix = "adhoc|"

// StateUseCase serves reports through the Runner and publishes the winners of
// publishing requests.
type StateUseCase struct {
	analysis  *AnalysisService
	runner    *Runner
	publisher domrepo.StatePublisher
	l         *applogger.Logger
	timeout   time.Duration

	pubLocks sync.Map // key -> *sync.Mutex

	bg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewStateUseCase(analysis *AnalysisService, runner *Runner, publisher domrepo.StatePublisher, l *applogger.Logger) *StateUseCase {
	ctx, cancel := context.WithCancel(context.Background())
	return &StateUseCase{
		analysis:  analysis,
		runner:    runner,
		publisher: publisher,
		l:         l,
		timeout:   2 * time.Minute,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetTimeout bounds every run.
func (uc *StateUseCase) SetTimeout(d time.Duration) {
	if d > 0 {
		uc.timeout = d
	}
}

// State computes a report from the observation store.
func (uc *StateUseCase) State(ctx context.Context, p AnalyzeParams) (*models.Report, error) {
	p = uc.analysis.defaults.apply(p)
	return uc.submit(ctx, p.Key(), p, func(c context.Context) (*models.Report, error) {
		return uc.analysis.Analyze(c, p)
	})
}

// StateFromObservations computes a report from caller-supplied observations.
// These runs are keyed apart from store-backed ones so they never cancel each
// other.
func (uc *StateUseCase) StateFromObservations(ctx context.Context, p AnalyzeParams, obs []models.Observation) (*models.Report, error) {
	p = uc.analysis.defaults.apply(p)
	return uc.submit(ctx, adhocPrefix+p.Key(), p, func(c context.Context) (*models.Report, error) {
		return uc.analysis.AnalyzeObservations(c, p, obs)
	})
}

// Refresh recomputes and publishes the default report of symbol in the
// background. Bursts collapse onto the newest request.
func (uc *StateUseCase) Refresh(symbol string) {
	select {
	case <-uc.ctx.Done():
		return
	default:
	}
	uc.bg.Add(1)
	go func() {
		defer uc.bg.Done()
		_, err := uc.State(uc.ctx, AnalyzeParams{Symbol: symbol, Publish: true})
		switch {
		case err == nil, errors.Is(err, ErrSuperseded), errors.Is(err, context.Canceled):
		default:
			uc.l.Error("refresh state", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}()
}

// Latest returns the last published default report of symbol.
func (uc *StateUseCase) Latest(symbol string) (*models.Report, bool) {
	p := uc.analysis.defaults.apply(AnalyzeParams{Symbol: symbol, Publish: true})
	return uc.runner.Latest(p.Key())
}

// Close cancels background refreshes and waits for them.
func (uc *StateUseCase) Close(ctx context.Context) error {
	uc.cancel()
	done := make(chan struct{})
	go func() {
		uc.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for refreshes: %w", ctx.Err())
	}
}

func (uc *StateUseCase) submit(ctx context.Context, key string, p AnalyzeParams, fn RunFunc) (*models.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	rep, err := uc.runner.Submit(ctx, key, fn)
	if err != nil {
		return nil, err
	}
	if p.Publish {
		uc.publishLatest(ctx, key, rep)
	}
	return rep, nil
}

// publishLatest publishes rep unless a newer winner for key exists. Publishes
// of one key are serialised so consumers never see an older report last.
func (uc *StateUseCase) publishLatest(ctx context.Context, key string, rep *models.Report) bool {
	if uc.publisher == nil {
		return false
	}
	v, _ := uc.pubLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	if cur, ok := uc.runner.Latest(key); !ok || cur != rep {
		uc.l.Debug("skip stale publish", applogger.String("symbol", rep.Symbol), applogger.String("run_id", rep.RunID))
		return false
	}
	if err := uc.publisher.Publish(ctx, rep); err != nil {
		uc.l.Error("publish state", applogger.String("symbol", rep.Symbol), applogger.Error(err))
		return false
	}
	return true
}
