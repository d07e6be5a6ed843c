package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"StockPipe/internal/domain/models"
	"StockPipe/internal/scheduler"
	"StockPipe/internal/usecase"
	"StockPipe/pkg/config"
	xhttp "StockPipe/pkg/http"
	applogger "StockPipe/pkg/logger"
	"StockPipe/pkg/util"
)

// Run modes accepted by App.Run.
const (
	ModeRun      = "run"
	ModeDaemon   = "daemon"
	ModeUniverse = "universe"
	ModeAcquire  = "acquire"
	ModeFeatures = "features"
)

// ErrRunFailed is returned by one-shot modes whose run ended failed or terminated.
var ErrRunFailed = errors.New("pipeline run did not succeed")

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	l           *applogger.Logger
	pipeline    *usecase.Pipeline
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
	closers     map[string]io.Closer
}

// New creates a new App instance with all dependencies. closers are released
// on shutdown in no particular order.
func New(cfg *config.Config, l *applogger.Logger, pipeline *usecase.Pipeline, handler xhttp.Handler, closers map[string]io.Closer) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, l: l, pipeline: pipeline, httpHandler: handler, closers: closers}
}

// Pipeline exposes the wired pipeline.
func (a *App) Pipeline() *usecase.Pipeline { return a.pipeline }

// Run executes mode and blocks until it finishes. Daemon mode returns after a
// shutdown signal. date overrides the run date of one-shot modes when non-zero.
func (a *App) Run(mode string, date time.Time) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.close()

	switch mode {
	case ModeDaemon:
		return a.serve(ctx)
	case ModeRun:
		return a.once(ctx, date, usecase.AllStages...)
	case ModeUniverse:
		return a.once(ctx, date, models.StageUniverse)
	case ModeAcquire:
		return a.once(ctx, date, models.StageAcquisition)
	case ModeFeatures:
		return a.once(ctx, date, models.StageFeatures)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func (a *App) today() (time.Time, error) {
	loc, err := time.LoadLocation(a.cfg.Scheduler.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone: %w", err)
	}
	return util.DateOnly(time.Now().In(loc)), nil
}

func (a *App) once(ctx context.Context, date time.Time, stages ...string) error {
	if date.IsZero() {
		d, err := a.today()
		if err != nil {
			return err
		}
		date = d
	}
	res, err := a.pipeline.RunStages(ctx, date, stages...)
	if err != nil {
		return err
	}
	a.l.Info("run finished",
		applogger.String("run_date", res.RunDate),
		applogger.String("status", string(res.Status)),
		applogger.Strings("stages", stages),
	)
	switch res.Status {
	case models.StatusFailed, models.StatusTerminated:
		return fmt.Errorf("%w: %s", ErrRunFailed, res.Status)
	}
	return nil
}

func (a *App) serve(ctx context.Context) error {
	sched, err := scheduler.New(ctx, a.pipeline, a.cfg.Scheduler.Cron, a.cfg.Scheduler.Timezone, a.l)
	if err != nil {
		return err
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.l),
		xhttp.WithCORSOrigins(a.cfg.Server.CORSOrigins...),
	)
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	sched.Start()
	if a.cfg.Scheduler.RunOnStart {
		go func() { _, _ = sched.RunNow() }()
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown(sched)
}

// shutdown gracefully stops the scheduler and HTTP server.
func (a *App) shutdown(sched *scheduler.Scheduler) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	sched.Stop(shutdownCtx)
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}
	a.l.Info("shutdown complete")
	return nil
}

func (a *App) close() {
	for name, c := range a.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			a.l.Warn("close error", applogger.String("component", name), applogger.Error(err))
		}
	}
	_ = a.l.Close()
}
