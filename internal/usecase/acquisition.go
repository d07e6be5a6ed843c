package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"StockPipe/internal/domain/models"
	drepo "StockPipe/internal/domain/repository"
	"StockPipe/internal/service/ratelimit"
	applogger "StockPipe/pkg/logger"
	"StockPipe/pkg/metrics"
	"StockPipe/pkg/util"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// writeGrace bounds how long an in-flight history write may run after the
// run deadline passed.
const writeGrace = 30 * time.Second

// AcquisitionConfig drives one acquisition run.
type AcquisitionConfig struct {
	FullHistoryDays     int
	BatchSize           int
	BatchCooldown       time.Duration
	Workers             int
	AdaptiveReduceEvery int
	FailureThreshold    float64
	MaxRuntime          time.Duration
	DryRun              bool
	Force               bool
}

type AcquisitionOption func(*AcquisitionEngine)

func WithAcquisitionLogger(l *applogger.Logger) AcquisitionOption {
	return func(e *AcquisitionEngine) {
		e.l = l
	}
}

func WithAcquisitionMetrics(m drepo.Metrics) AcquisitionOption {
	return func(e *AcquisitionEngine) {
		e.metrics = m
	}
}

func WithAcquisitionPublisher(p drepo.EventPublisher) AcquisitionOption {
	return func(e *AcquisitionEngine) {
		e.pub = p
	}
}

// WithAcquisitionSleeper replaces the sleeper used for batch cooldowns.
func WithAcquisitionSleeper(s ratelimit.Sleeper) AcquisitionOption {
	return func(e *AcquisitionEngine) {
		e.sleeper = s
	}
}

// AcquisitionEngine brings every ticker's stored history up to date.
type AcquisitionEngine struct {
	fetcher  drepo.BarFetcher
	limiter  *ratelimit.Limiter
	store    drepo.HistoryStore
	recorder drepo.RunRecorder
	pub      drepo.EventPublisher
	metrics  drepo.Metrics
	sleeper  ratelimit.Sleeper
	l        *applogger.Logger
	cfg      AcquisitionConfig
}

// NewAcquisitionEngine wires the engine. limiter must be the one shared with
// fetcher so run counters include every provider call.
func NewAcquisitionEngine(fetcher drepo.BarFetcher, limiter *ratelimit.Limiter, store drepo.HistoryStore, recorder drepo.RunRecorder, cfg AcquisitionConfig, opts ...AcquisitionOption) *AcquisitionEngine {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 10
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.FullHistoryDays < 1 {
		cfg.FullHistoryDays = 730
	}
	e := &AcquisitionEngine{
		fetcher:  fetcher,
		limiter:  limiter,
		store:    store,
		recorder: recorder,
		pub:      nopPublisher{},
		metrics:  metrics.Nop{},
		sleeper:  ratelimit.RealSleeper,
		l:        applogger.Nop(),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PlanFetch decides what to request for one ticker. Without stored bars (or
// when forced) it asks for the full window ending today; otherwise for the
// days after latest. An up-to-date ticker gets an empty request.
func PlanFetch(ticker models.TickerSymbol, latest *time.Time, today time.Time, fullDays int, force bool) (models.FetchRequest, models.TickerState) {
	today = util.DateOnly(today)
	if latest == nil || force {
		return models.FetchRequest{
			Ticker: ticker,
			Start:  util.AddDays(today, -fullDays),
			End:    today,
			Full:   true,
		}, models.StateNeedsFullHistory
	}
	return models.FetchRequest{
		Ticker: ticker,
		Start:  util.AddDays(util.DateOnly(*latest), 1),
		End:    today,
	}, models.StateAwaitingFetch
}

type tickerOutcome int

const (
	outcomeUnprocessed tickerOutcome = iota
	outcomeUpdated
	outcomeUpToDate
	outcomeFailed
)

func (o tickerOutcome) String() string {
	switch o {
	case outcomeUpdated:
		return "updated"
	case outcomeUpToDate:
		return "up_to_date"
	case outcomeFailed:
		return "failed"
	default:
		return "unprocessed"
	}
}

type tickerResult struct {
	outcome    tickerOutcome
	partitions int
	err        *models.ErrorRecord
}

// Run acquires tickers for date. The returned metadata has already been
// persisted unless the run is a dry run; the error reports only persistence
// failures.
func (e *AcquisitionEngine) Run(ctx context.Context, date time.Time, tickers []models.TickerSymbol) (*models.RunMetadata, error) {
	meta := models.NewRunMetadata(uuid.NewString(), date, models.StageAcquisition)
	meta.BatchSize = e.cfg.BatchSize
	meta.WorkersInitial = e.cfg.Workers
	meta.DryRun = e.cfg.DryRun
	e.limiter.Reset()

	runCtx := ctx
	if e.cfg.MaxRuntime > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.MaxRuntime)
		defer cancel()
	}

	log := e.l.With(applogger.String("run_id", meta.RunID), applogger.String("run_date", meta.RunDate))
	log.Info("acquisition started",
		applogger.Int("tickers", len(tickers)),
		applogger.Int("batch_size", e.cfg.BatchSize),
		applogger.Int("workers", e.cfg.Workers),
		applogger.Bool("dry_run", e.cfg.DryRun),
	)

	workers := e.cfg.Workers
	var errs []models.ErrorRecord
	terminated := false
	for start := 0; start < len(tickers); start += e.cfg.BatchSize {
		if runCtx.Err() != nil {
			terminated = true
			break
		}
		if start > 0 && e.cfg.BatchCooldown > 0 {
			if err := e.sleeper.Sleep(runCtx, e.cfg.BatchCooldown); err != nil {
				terminated = true
				break
			}
			e.limiter.AddSleep(e.cfg.BatchCooldown)
		}

		batch := tickers[start:min(start+e.cfg.BatchSize, len(tickers))]
		hitsBefore := e.limiter.State().RateLimitHits
		results := e.runBatch(runCtx, log, date, batch, workers)
		for _, r := range results {
			switch r.outcome {
			case outcomeUpdated:
				meta.TickersSuccessful++
			case outcomeUpToDate:
				meta.TickersSuccessful++
				meta.TickersUpToDate++
			case outcomeFailed:
				meta.TickersFailed++
				errs = append(errs, *r.err)
				e.metrics.RecordError(string(r.err.ErrorKind))
			default:
				meta.TickersSkipped++
			}
			meta.PartitionsWritten += r.partitions
			e.metrics.RecordTicker(models.StageAcquisition, r.outcome.String())
		}

		batchHits := e.limiter.State().RateLimitHits - hitsBefore
		if e.cfg.AdaptiveReduceEvery > 0 && batchHits >= int64(e.cfg.AdaptiveReduceEvery) && workers > 1 {
			next := max(1, workers/2)
			log.Warn("reducing parallelism after rate limits",
				applogger.Int64("batch_hits", batchHits),
				applogger.Int("workers_from", workers),
				applogger.Int("workers_to", next),
			)
			workers = next
		}
		if runCtx.Err() != nil {
			terminated = true
		}
	}
	// Tickers in batches never started are unprocessed.
	scheduled := meta.TickersSuccessful + meta.TickersFailed + meta.TickersSkipped
	meta.TickersSkipped += len(tickers) - scheduled

	state := e.limiter.State()
	meta.TickersProcessed = meta.TickersSuccessful + meta.TickersFailed
	meta.RateLimitHits = state.RateLimitHits
	meta.TotalSleepTime = state.TotalSleep.Seconds()
	meta.WorkersFinal = workers

	status := models.ComputeStatus(meta.TickersProcessed, meta.TickersFailed, e.cfg.FailureThreshold, terminated)
	meta.Finalize(status, statusMessage(status, meta, runCtx.Err()))
	sort.Slice(errs, func(i, j int) bool { return errs[i].Ticker < errs[j].Ticker })

	e.metrics.RecordRunStatus(models.StageAcquisition, string(status))
	e.metrics.RecordLatency("acquisition_run", meta.RuntimeSeconds)
	log.Info("acquisition finished",
		applogger.String("status", string(status)),
		applogger.Int("processed", meta.TickersProcessed),
		applogger.Int("successful", meta.TickersSuccessful),
		applogger.Int("failed", meta.TickersFailed),
		applogger.Int("skipped", meta.TickersSkipped),
		applogger.Int("up_to_date", meta.TickersUpToDate),
		applogger.Int64("rate_limit_hits", meta.RateLimitHits),
		applogger.Float64("total_sleep_s", meta.TotalSleepTime),
		applogger.Int("workers_final", meta.WorkersFinal),
	)

	if e.cfg.DryRun {
		log.Info("dry run: run artifacts not persisted")
		return meta, nil
	}
	// Artifacts are saved even when the caller's context is already done.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeGrace)
	defer cancel()
	if err := e.recorder.SaveRun(saveCtx, meta, errs); err != nil {
		log.Error("save run metadata", applogger.Error(err))
		return meta, fmt.Errorf("save run metadata: %w", err)
	}
	if err := e.pub.PublishRun(saveCtx, meta); err != nil {
		log.Warn("publish run event", applogger.Error(err))
	}
	return meta, nil
}

func statusMessage(status models.RunStatus, meta *models.RunMetadata, ctxErr error) string {
	switch status {
	case models.StatusTerminated:
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return "run deadline exceeded"
		}
		return "run cancelled"
	case models.StatusFailed:
		if meta.TickersProcessed == 0 {
			return "no tickers processed"
		}
		return fmt.Sprintf("%d of %d tickers failed", meta.TickersFailed, meta.TickersProcessed)
	}
	return ""
}

// runBatch processes batch with at most workers tickers in flight. Results
// are indexed like batch.
func (e *AcquisitionEngine) runBatch(ctx context.Context, log *applogger.Logger, date time.Time, batch []models.TickerSymbol, workers int) []tickerResult {
	results := make([]tickerResult, len(batch))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, t := range batch {
		i, t := i, t
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = e.acquire(ctx, log, date, t)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// acquire moves one ticker through the acquisition states.
func (e *AcquisitionEngine) acquire(ctx context.Context, log *applogger.Logger, date time.Time, ticker models.TickerSymbol) tickerResult {
	tl := log.With(applogger.String("ticker", ticker.String()))
	fail := func(from models.TickerState, err error, def models.ErrorKind) tickerResult {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			tl.Debug("ticker interrupted by run deadline", applogger.String("state", from.String()))
			return tickerResult{outcome: outcomeUnprocessed}
		}
		transition(tl, from, models.StateFailed)
		rec := models.NewErrorRecord(ticker.String(), err, def)
		tl.Warn("ticker failed", applogger.String("kind", string(rec.ErrorKind)), applogger.Error(err))
		return tickerResult{outcome: outcomeFailed, err: &rec}
	}

	var latest *time.Time
	if !e.cfg.Force {
		t, ok, err := e.store.Latest(ctx, ticker)
		if err != nil {
			return fail(models.StateAwaitingFetch, err, models.KindStorage)
		}
		if ok {
			latest = &t
		}
	}

	req, state := PlanFetch(ticker, latest, date, e.cfg.FullHistoryDays, e.cfg.Force)
	if req.Empty() {
		transition(tl, state, models.StateDone)
		return tickerResult{outcome: outcomeUpToDate}
	}
	if state == models.StateNeedsFullHistory {
		transition(tl, state, models.StateAwaitingFetch)
		state = models.StateAwaitingFetch
	}

	bars, err := e.fetcher.Fetch(ctx, ticker, req.Start, req.End)
	if err != nil {
		return fail(state, err, models.KindTransient)
	}
	transition(tl, state, models.StateMerging)
	tl.Debug("fetched bars",
		applogger.String("start", util.FormatDate(req.Start)),
		applogger.String("end", util.FormatDate(req.End)),
		applogger.Int("bars", len(bars)),
	)

	if e.cfg.DryRun {
		transition(tl, models.StateMerging, models.StateDone)
		return tickerResult{outcome: outcomeUpdated}
	}

	// A fetch that finished before the deadline still commits its write.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeGrace)
	defer cancel()
	res, err := e.store.Write(wctx, ticker, bars)
	if err != nil {
		return fail(models.StateMerging, err, models.KindStorage)
	}
	transition(tl, models.StateMerging, models.StateDone)
	return tickerResult{outcome: outcomeUpdated, partitions: res.PartitionsWritten}
}

func transition(l *applogger.Logger, from, to models.TickerState) {
	if !models.CanTransition(from, to) {
		l.Error("invalid ticker state transition", applogger.String("from", from.String()), applogger.String("to", to.String()))
		return
	}
	l.Debug("ticker state", applogger.String("from", from.String()), applogger.String("to", to.String()))
}

type nopPublisher struct{}

func (nopPublisher) PublishRun(context.Context, *models.RunMetadata) error             { return nil }
func (nopPublisher) PublishUniverse(context.Context, models.UniverseDiff) error        { return nil }
func (nopPublisher) PublishFeatures(context.Context, *models.FeatureRunMetadata) error { return nil }
func (nopPublisher) Close() error                                                      { return nil }
