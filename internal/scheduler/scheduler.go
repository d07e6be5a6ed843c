package scheduler

import (
	"context"
	"fmt"
	"time"

	"StockPipe/internal/usecase"
	applogger "StockPipe/pkg/logger"
	"StockPipe/pkg/util"

	"github.com/robfig/cron/v3"
)

// Runner executes the daily pipeline for one run date.
type Runner interface {
	Run(ctx context.Context, date time.Time) (*usecase.PipelineResult, error)
}

type Option func(*Scheduler)

// WithClock replaces time.Now when deriving the run date.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// Scheduler triggers the pipeline on a cron spec with seconds. The run date
// is the calendar date in the configured timezone at trigger time.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	loc    *time.Location
	now    func() time.Time
	l      *applogger.Logger
	ctx    context.Context
}

func New(ctx context.Context, runner Runner, spec, timezone string, l *applogger.Logger, opts ...Option) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	if l == nil {
		l = applogger.Nop()
	}
	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		runner: runner,
		loc:    loc,
		now:    time.Now,
		l:      l,
		ctx:    ctx,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("register pipeline schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	next := s.cron.Entries()[0].Next
	s.l.Info("scheduler started", applogger.String("next_run", next.Format(time.RFC3339)))
}

// Stop stops triggering and waits for a running pipeline to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.l.Warn("scheduler stop timed out with a run in flight")
	}
	s.l.Info("scheduler stopped")
}

// RunDate is the calendar date a trigger at now runs for.
func (s *Scheduler) RunDate() time.Time {
	return util.DateOnly(s.now().In(s.loc))
}

// RunNow executes one pipeline run synchronously.
func (s *Scheduler) RunNow() (*usecase.PipelineResult, error) {
	date := s.RunDate()
	s.l.Info("scheduled run triggered", applogger.String("run_date", util.FormatDate(date)))
	res, err := s.runner.Run(s.ctx, date)
	if err != nil {
		s.l.Error("scheduled run failed", applogger.String("run_date", util.FormatDate(date)), applogger.Error(err))
		return res, err
	}
	s.l.Info("scheduled run finished",
		applogger.String("run_date", util.FormatDate(date)),
		applogger.String("status", string(res.Status)),
	)
	return res, nil
}

func (s *Scheduler) tick() {
	_, _ = s.RunNow()
}
