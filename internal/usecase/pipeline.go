package usecase

import (
	"context"
	"fmt"
	"slices"
	"time"

	"StockPipe/internal/domain/models"
	drepo "StockPipe/internal/domain/repository"
	applogger "StockPipe/pkg/logger"
	"StockPipe/pkg/util"
)

// AllStages is the daily stage order.
var AllStages = []string{models.StageUniverse, models.StageAcquisition, models.StageFeatures}

type PipelineConfig struct {
	RetentionEnabled bool
	RetentionDays    int
	// TickerLimit caps the symbols handed to acquisition and features when positive.
	TickerLimit int
	Force       bool
	DryRun      bool
	LockTTL     time.Duration
}

// PipelineResult collects what each executed stage produced.
type PipelineResult struct {
	RunDate     string
	Status      models.RunStatus
	Universe    *UniverseResult
	Acquisition *models.RunMetadata
	Features    *models.FeatureRunMetadata
	Pruned      *models.PruneResult
}

// Pipeline sequences the daily stages under a per-day lock.
type Pipeline struct {
	universe    *UniverseProvider
	acquisition *AcquisitionEngine
	features    *FeatureEngine
	lock        drepo.RunLock
	pruner      drepo.Pruner
	l           *applogger.Logger
	cfg         PipelineConfig
}

func NewPipeline(u *UniverseProvider, a *AcquisitionEngine, f *FeatureEngine, lock drepo.RunLock, pruner drepo.Pruner, l *applogger.Logger, cfg PipelineConfig) *Pipeline {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 6 * time.Hour
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Pipeline{universe: u, acquisition: a, features: f, lock: lock, pruner: pruner, l: l, cfg: cfg}
}

func lockKey(date time.Time) string {
	return "run:" + util.FormatDate(date)
}

// Run executes every stage for date.
func (p *Pipeline) Run(ctx context.Context, date time.Time) (*PipelineResult, error) {
	return p.RunStages(ctx, date, AllStages...)
}

// RunStages executes the named stages in daily order. The universe is always
// resolved because later stages need its symbols; outside the universe stage
// an existing snapshot for date is reused. When another run holds the day's
// lock nothing executes and the result is skipped.
func (p *Pipeline) RunStages(ctx context.Context, date time.Time, stages ...string) (*PipelineResult, error) {
	date = util.DateOnly(date)
	res := &PipelineResult{RunDate: util.FormatDate(date)}
	log := p.l.With(applogger.String("run_date", res.RunDate))
	for _, s := range stages {
		if !slices.Contains(AllStages, s) {
			return nil, fmt.Errorf("unknown stage %q", s)
		}
	}

	key := lockKey(date)
	ok, err := p.lock.TryLock(ctx, key, p.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		log.Warn("another run holds the day lock, skipping", applogger.String("lock", key))
		res.Status = models.StatusSkipped
		return res, nil
	}
	defer func() {
		if err := p.lock.Unlock(context.WithoutCancel(ctx), key); err != nil {
			log.Warn("release run lock", applogger.Error(err))
		}
	}()

	if p.cfg.RetentionEnabled && p.pruner != nil {
		pruned, err := p.pruner.Prune(ctx, date, p.cfg.RetentionDays, p.cfg.DryRun)
		if err != nil {
			log.Warn("retention pass failed", applogger.Error(err))
		} else {
			res.Pruned = &pruned
			log.Info("retention pass", applogger.String("cutoff", pruned.Cutoff), applogger.Int("deleted", len(pruned.Deleted)))
		}
	}

	force := p.cfg.Force && slices.Contains(stages, models.StageUniverse)
	uni, err := p.universe.Refresh(ctx, date, force)
	if err != nil {
		res.Status = models.StatusFailed
		return res, fmt.Errorf("refresh universe: %w", err)
	}
	res.Universe = uni
	res.Status = models.StatusSuccess
	symbols := uni.Symbols(p.cfg.TickerLimit)

	if slices.Contains(stages, models.StageAcquisition) {
		meta, err := p.acquisition.Run(ctx, date, symbols)
		res.Acquisition = meta
		res.Status = meta.Status
		if err != nil {
			return res, err
		}
		if meta.Status == models.StatusTerminated {
			log.Warn("acquisition terminated, skipping later stages")
			return res, nil
		}
	}

	if slices.Contains(stages, models.StageFeatures) {
		if err := ctx.Err(); err != nil {
			res.Status = models.StatusTerminated
			return res, nil
		}
		meta, err := p.features.Run(ctx, date, symbols)
		res.Features = meta
		if err != nil {
			return res, err
		}
		if res.Acquisition == nil || meta.Status == models.StatusFailed {
			res.Status = meta.Status
		}
	}
	log.Info("pipeline finished", applogger.String("status", string(res.Status)))
	return res, nil
}
