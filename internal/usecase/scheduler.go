package usecase

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	applogger "MarketState/pkg/logger"
)

// cronParser accepts five or six fields and descriptors such as @every 1m.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler refreshes the default report of every configured symbol on a
// cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	refresh Refresher
	symbols []string
	l       *applogger.Logger
}

func NewScheduler(refresh Refresher, symbols []string, l *applogger.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithParser(cronParser)),
		refresh: refresh,
		symbols: append([]string(nil), symbols...),
		l:       l,
	}
}

// Register adds the refresh job on the cron expression expr.
func (s *Scheduler) Register(expr string) error {
	if _, err := s.cron.AddFunc(expr, s.RunNow); err != nil {
		return fmt.Errorf("register refresh job %q: %w", expr, err)
	}
	return nil
}

// RunNow requests a refresh of every symbol.
func (s *Scheduler) RunNow() {
	s.l.Debug("scheduled refresh", applogger.Int("symbols", len(s.symbols)))
	for _, sym := range s.symbols {
		s.refresh.Refresh(sym)
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.l.Info("scheduler started", applogger.Strings("symbols", s.symbols))
}

// Stop stops the scheduler and waits for a running job to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.l.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
