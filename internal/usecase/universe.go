package usecase

import (
	"context"
	"fmt"
	"time"

	"StockPipe/internal/domain/models"
	drepo "StockPipe/internal/domain/repository"
	"StockPipe/internal/service/universe"
	applogger "StockPipe/pkg/logger"
	"StockPipe/pkg/metrics"
	"StockPipe/pkg/util"
)

// TestModeTickers is how many symbols a test-mode run acquires.
const TestModeTickers = 5

type UniverseConfig struct {
	MinExpected int
	MaxExpected int
	DryRun      bool
}

// UniverseResult is the outcome of one Refresh.
type UniverseResult struct {
	Snapshot models.UniverseSnapshot
	Diff     models.UniverseDiff
	// Reused is set when the day's persisted snapshot was returned as is.
	Reused bool
}

// Symbols returns the snapshot symbols, capped by limit when positive.
func (r *UniverseResult) Symbols(limit int) []models.TickerSymbol {
	if limit > 0 && len(r.Snapshot.Symbols) > limit {
		return r.Snapshot.Symbols[:limit]
	}
	return r.Snapshot.Symbols
}

// UniverseProvider resolves the ticker universe and tracks its daily changes.
type UniverseProvider struct {
	src     universe.Source
	store   drepo.UniverseStore
	pub     drepo.EventPublisher
	metrics drepo.Metrics
	l       *applogger.Logger
	cfg     UniverseConfig
}

func NewUniverseProvider(src universe.Source, store drepo.UniverseStore, pub drepo.EventPublisher, m drepo.Metrics, l *applogger.Logger, cfg UniverseConfig) *UniverseProvider {
	if pub == nil {
		pub = nopPublisher{}
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &UniverseProvider{src: src, store: store, pub: pub, metrics: m, l: l, cfg: cfg}
}

// CurrentUniverse asks the source for the universe and returns it normalized,
// deduplicated and sorted, with company names where known.
func (u *UniverseProvider) CurrentUniverse(ctx context.Context) ([]models.TickerSymbol, map[models.TickerSymbol]string, error) {
	entries, err := u.src.Fetch(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch universe from %s: %w", u.src.Name(), err)
	}
	raw := make([]string, 0, len(entries))
	for _, e := range entries {
		raw = append(raw, e.Symbol)
	}
	symbols, rejected := models.NormalizeSymbols(raw)
	if len(rejected) > 0 {
		u.l.Warn("rejected universe symbols", applogger.Strings("symbols", rejected))
	}
	if len(symbols) == 0 {
		return nil, nil, models.NewDataQualityErrorf("universe.current", "source %s returned no valid symbols", u.src.Name())
	}

	names := make(map[models.TickerSymbol]string, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		if s, err := models.NormalizeSymbol(e.Symbol); err == nil {
			names[s] = e.Name
		}
	}
	return symbols, names, nil
}

// Diff is the set difference between two universes.
func Diff(previous, current []models.TickerSymbol) models.UniverseDiff {
	return models.DiffUniverse(previous, current)
}

// Refresh produces the snapshot of date. An existing snapshot for date is
// reused unless force is set; otherwise the universe is fetched, diffed
// against the newest earlier snapshot and persisted.
func (u *UniverseProvider) Refresh(ctx context.Context, date time.Time, force bool) (*UniverseResult, error) {
	begin := time.Now()
	date = util.DateOnly(date)
	log := u.l.With(applogger.String("run_date", util.FormatDate(date)))

	if !force {
		snap, err := u.store.LoadSnapshot(ctx, date)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			log.Info("reusing universe snapshot", applogger.Int("tickers", len(snap.Symbols)))
			return &UniverseResult{Snapshot: *snap, Reused: true}, nil
		}
	}

	symbols, names, err := u.CurrentUniverse(ctx)
	if err != nil {
		u.metrics.RecordError(string(models.KindOrDefault(err, models.KindTransient)))
		return nil, err
	}
	u.validateCount(log, len(symbols))

	prev, err := u.store.LatestSnapshot(ctx, date)
	if err != nil {
		return nil, err
	}
	diff := Diff(nil, symbols)
	if prev != nil {
		diff = Diff(prev.Symbols, symbols)
		diff.PreviousDate = util.FormatDate(prev.Date)
	}
	diff.Date = util.FormatDate(date)

	res := &UniverseResult{
		Snapshot: models.UniverseSnapshot{Date: date, Symbols: symbols, Names: names},
		Diff:     diff,
	}
	log.Info("universe refreshed",
		applogger.String("source", u.src.Name()),
		applogger.Int("tickers", diff.TotalTickers),
		applogger.Int("added", diff.TotalAdded),
		applogger.Int("removed", diff.TotalRemoved),
		applogger.Int("net_change", diff.NetChange),
	)
	if u.cfg.DryRun {
		return res, nil
	}
	if err := u.store.SaveSnapshot(ctx, res.Snapshot, diff); err != nil {
		return nil, err
	}
	if prev != nil {
		if err := u.pub.PublishUniverse(ctx, diff); err != nil {
			log.Warn("publish universe diff", applogger.Error(err))
		}
	}
	u.metrics.RecordLatency("universe_refresh", time.Since(begin).Seconds())
	return res, nil
}

func (u *UniverseProvider) validateCount(log *applogger.Logger, n int) {
	if u.cfg.MinExpected > 0 && n < u.cfg.MinExpected {
		log.Warn("universe smaller than expected", applogger.Int("tickers", n), applogger.Int("min_expected", u.cfg.MinExpected))
	}
	if u.cfg.MaxExpected > 0 && n > u.cfg.MaxExpected {
		log.Warn("universe larger than expected", applogger.Int("tickers", n), applogger.Int("max_expected", u.cfg.MaxExpected))
	}
}
