package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"MarketState/internal/domain/repository"
	"MarketState/internal/usecase"
	"MarketState/pkg/cache"
	pkgch "MarketState/pkg/clickhouse"
	"MarketState/pkg/config"
	xhttp "MarketState/pkg/http"
	pkgkafka "MarketState/pkg/kafka"
	applogger "MarketState/pkg/logger"
)

// Components are the long-lived parts the App starts and stops. Consumer,
// Ticks, Scheduler and ClickHouse may be nil.
type Components struct {
	Handler    xhttp.Handler
	State      *usecase.StateUseCase
	Consumer   *pkgkafka.Consumer
	Ticks      pkgkafka.MessageHandler
	Scheduler  *usecase.Scheduler
	Publisher  repository.StatePublisher
	Cache      cache.Service
	ClickHouse *pkgch.Client
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	c          Components
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return &App{
		cfg: cfg,
		l:   l,
		c:   c,
		httpServer: xhttp.NewServer(c.Handler, l.With(applogger.String("component", "http_server")),
			xhttp.WithPort(cfg.Server.Port),
			xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
			xhttp.WithMetricsPath(metricsPath),
		),
	}
}

// HTTPServer exposes the server, mainly for tests.
func (a *App) HTTPServer() *xhttp.Server { return a.httpServer }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Start launches the consumer, scheduler and HTTP server.
func (a *App) Start() error {
	if a.c.Consumer != nil && a.c.Ticks != nil {
		a.c.Consumer.RegisterHandler(a.c.Ticks)
		if err := a.c.Consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.c.Ticks.Topic()))
	}

	if a.c.Scheduler != nil {
		a.c.Scheduler.Start()
		a.c.Scheduler.RunNow()
	}

	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops intake first, then running analyses, then closes clients.
func (a *App) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.httpServer.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.c.Scheduler != nil {
		if err := a.c.Scheduler.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kafka consumer: %w", err))
		}
	}
	if a.c.State != nil {
		if err := a.c.State.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.c.Publisher != nil {
		if err := a.c.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if a.c.Cache != nil {
		if err := a.c.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}
	if a.c.ClickHouse != nil {
		if err := a.c.ClickHouse.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		a.l.Error("shutdown", applogger.Error(err))
		return err
	}
	a.l.Info("shutdown complete")
	return nil
}
