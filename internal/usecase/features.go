package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"StockPipe/internal/domain/models"
	drepo "StockPipe/internal/domain/repository"
	"StockPipe/internal/services/features"
	applogger "StockPipe/pkg/logger"
	"StockPipe/pkg/metrics"
	"StockPipe/pkg/util"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type FeatureConfig struct {
	OutputWindowDays int
	DropIncomplete   bool
	MinRowsPerTicker int
	Workers          int
	FailureThreshold float64
	DryRun           bool
}

type FeatureOption func(*FeatureEngine)

func WithFeatureLogger(l *applogger.Logger) FeatureOption {
	return func(e *FeatureEngine) {
		e.l = l
	}
}

func WithFeatureMetrics(m drepo.Metrics) FeatureOption {
	return func(e *FeatureEngine) {
		e.metrics = m
	}
}

func WithFeaturePublisher(p drepo.EventPublisher) FeatureOption {
	return func(e *FeatureEngine) {
		e.pub = p
	}
}

// WithFeatureMirrors adds sinks that receive a copy of the dataset. Their
// failures are logged only.
func WithFeatureMirrors(sinks ...drepo.FeatureSink) FeatureOption {
	return func(e *FeatureEngine) {
		e.mirrors = append(e.mirrors, sinks...)
	}
}

// FeatureEngine turns stored history into the daily indicator dataset.
type FeatureEngine struct {
	store    drepo.HistoryStore
	sink     drepo.FeatureSink
	mirrors  []drepo.FeatureSink
	recorder drepo.RunRecorder
	pub      drepo.EventPublisher
	metrics  drepo.Metrics
	l        *applogger.Logger
	cfg      FeatureConfig
}

func NewFeatureEngine(store drepo.HistoryStore, sink drepo.FeatureSink, recorder drepo.RunRecorder, cfg FeatureConfig, opts ...FeatureOption) *FeatureEngine {
	if cfg.OutputWindowDays < 1 {
		cfg.OutputWindowDays = 30
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	e := &FeatureEngine{
		store:    store,
		sink:     sink,
		recorder: recorder,
		pub:      nopPublisher{},
		metrics:  metrics.Nop{},
		l:        applogger.Nop(),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeFeatures computes indicators over ticker's full history and returns
// the rows inside the trailing output window.
func (e *FeatureEngine) ComputeFeatures(ctx context.Context, ticker models.TickerSymbol) ([]models.FeatureRow, error) {
	series, err := e.store.Read(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if series.Len() == 0 {
		return nil, models.NewDataQualityErrorf("features.compute", "no history").WithTicker(ticker.String())
	}
	rows := features.Compute(ticker, series.Bars)
	return features.TrailingWindow(rows, e.cfg.OutputWindowDays), nil
}

type featureResult struct {
	rows        []models.FeatureRow
	rowsDropped int
	excluded    bool
	err         *models.ErrorRecord
}

func (e *FeatureEngine) computeTicker(ctx context.Context, ticker models.TickerSymbol) featureResult {
	series, err := e.store.Read(ctx, ticker)
	if err != nil {
		rec := models.NewErrorRecord(ticker.String(), err, models.KindStorage)
		return featureResult{err: &rec}
	}
	if series.Len() == 0 {
		rec := models.NewErrorRecord(ticker.String(),
			models.NewDataQualityErrorf("features.compute", "no history").WithTicker(ticker.String()), models.KindDataQuality)
		return featureResult{err: &rec}
	}
	if e.cfg.DropIncomplete && series.Len() < e.cfg.MinRowsPerTicker {
		rec := models.NewErrorRecord(ticker.String(),
			models.NewDataQualityErrorf("features.compute", "%d rows below minimum %d", series.Len(), e.cfg.MinRowsPerTicker).
				WithTicker(ticker.String()), models.KindDataQuality)
		return featureResult{excluded: true, err: &rec}
	}

	all := features.Compute(ticker, series.Bars)
	rows := features.TrailingWindow(all, e.cfg.OutputWindowDays)
	if !e.cfg.DropIncomplete {
		return featureResult{rows: rows}
	}
	// Leading rows are judged on the full series, then windowed.
	kept, _ := features.DropLeadingIncomplete(all)
	trimmed := features.TrailingWindow(kept, e.cfg.OutputWindowDays)
	return featureResult{rows: trimmed, rowsDropped: len(rows) - len(trimmed)}
}

// Run computes the dataset for tickers and writes it under date. Run
// artifacts are persisted unless the run is a dry run.
func (e *FeatureEngine) Run(ctx context.Context, date time.Time, tickers []models.TickerSymbol) (*models.FeatureRunMetadata, error) {
	begin := time.Now()
	meta := &models.FeatureRunMetadata{
		RunID:            uuid.NewString(),
		RunDate:          util.FormatDate(date),
		OutputWindowDays: e.cfg.OutputWindowDays,
		DropIncomplete:   e.cfg.DropIncomplete,
	}
	log := e.l.With(applogger.String("run_id", meta.RunID), applogger.String("run_date", meta.RunDate))
	log.Info("feature run started", applogger.Int("tickers", len(tickers)), applogger.Int("workers", e.cfg.Workers))

	results := make([]featureResult, len(tickers))
	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for i, t := range tickers {
		i, t := i, t
		g.Go(func() error {
			results[i] = e.computeTicker(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	var rows []models.FeatureRow
	var errs []models.ErrorRecord
	for _, r := range results {
		meta.TickersProcessed++
		meta.RowsDropped += r.rowsDropped
		switch {
		case r.excluded:
			meta.TickersDropped++
			errs = append(errs, *r.err)
			e.metrics.RecordTicker(models.StageFeatures, "dropped")
		case r.err != nil:
			meta.TickersFailed++
			errs = append(errs, *r.err)
			e.metrics.RecordError(string(r.err.ErrorKind))
			e.metrics.RecordTicker(models.StageFeatures, "failed")
		case len(r.rows) == 0:
			meta.TickersDropped++
			e.metrics.RecordTicker(models.StageFeatures, "dropped")
		default:
			meta.TickersOutput++
			rows = append(rows, r.rows...)
			e.metrics.RecordTicker(models.StageFeatures, "success")
		}
	}
	meta.RowsOutput = len(rows)
	sort.Slice(errs, func(i, j int) bool { return errs[i].Ticker < errs[j].Ticker })

	considered := meta.TickersProcessed - meta.TickersDropped
	status := models.ComputeStatus(considered, meta.TickersFailed, e.cfg.FailureThreshold, ctx.Err() != nil)
	if status == models.StatusFailed {
		meta.ErrorMessage = fmt.Sprintf("%d of %d tickers failed", meta.TickersFailed, considered)
	}
	if status != models.StatusFailed && status != models.StatusTerminated && len(rows) == 0 {
		status = models.StatusFailed
		meta.ErrorMessage = "no feature rows produced"
	}

	if !e.cfg.DryRun && len(rows) > 0 && status != models.StatusTerminated {
		path, err := e.sink.WriteFeatures(ctx, date, rows)
		if err != nil {
			status = models.StatusFailed
			meta.ErrorMessage = fmt.Sprintf("write features: %v", err)
			e.metrics.RecordError(string(models.KindStorage))
		} else {
			meta.OutputPath = path
			e.writeMirrors(ctx, log, date, rows)
		}
	}

	meta.Status = status
	meta.RuntimeSeconds = time.Since(begin).Seconds()
	e.metrics.RecordRunStatus(models.StageFeatures, string(status))
	e.metrics.RecordLatency("features_run", meta.RuntimeSeconds)
	log.Info("feature run finished",
		applogger.String("status", string(status)),
		applogger.Int("tickers_output", meta.TickersOutput),
		applogger.Int("tickers_dropped", meta.TickersDropped),
		applogger.Int("tickers_failed", meta.TickersFailed),
		applogger.Int("rows_output", meta.RowsOutput),
		applogger.Int("rows_dropped", meta.RowsDropped),
		applogger.String("output", meta.OutputPath),
	)

	if e.cfg.DryRun {
		return meta, nil
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeGrace)
	defer cancel()
	if err := e.recorder.SaveFeatureRun(saveCtx, meta, errs); err != nil {
		log.Error("save feature run metadata", applogger.Error(err))
		return meta, fmt.Errorf("save feature run metadata: %w", err)
	}
	if meta.OutputPath != "" {
		if err := e.pub.PublishFeatures(saveCtx, meta); err != nil {
			log.Warn("publish features event", applogger.Error(err))
		}
	}
	return meta, nil
}

func (e *FeatureEngine) writeMirrors(ctx context.Context, log *applogger.Logger, date time.Time, rows []models.FeatureRow) {
	for _, m := range e.mirrors {
		dest, err := m.WriteFeatures(ctx, date, rows)
		if err != nil {
			log.Warn("mirror features", applogger.Error(err))
			continue
		}
		log.Debug("features mirrored", applogger.String("dest", dest))
	}
}
