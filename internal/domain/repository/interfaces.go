package repository

import (
	"context"
	"time"

	"StockPipe/internal/domain/models"
)

// PriceProvider is one remote source of daily bars. Implementations normalize
// their failures into models.PipelineError kinds.
type PriceProvider interface {
	Name() string
	MaxLookback() time.Duration
	FetchBars(ctx context.Context, ticker models.TickerSymbol, start, end time.Time) ([]models.PriceBar, error)
}

// BarFetcher is what the acquisition engine needs from the fetch client.
type BarFetcher interface {
	Fetch(ctx context.Context, ticker models.TickerSymbol, start, end time.Time) ([]models.PriceBar, error)
}

// WriteResult reports what a history write changed.
type WriteResult struct {
	PartitionsWritten int
	BarsWritten       int
}

type HistoryStore interface {
	Read(ctx context.Context, ticker models.TickerSymbol) (models.HistoricalSeries, error)
	Latest(ctx context.Context, ticker models.TickerSymbol) (time.Time, bool, error)
	Write(ctx context.Context, ticker models.TickerSymbol, bars []models.PriceBar) (WriteResult, error)
	Tickers(ctx context.Context) ([]models.TickerSymbol, error)
}

// RunMirror receives copies of run artifacts.
type RunMirror interface {
	SaveRun(ctx context.Context, meta *models.RunMetadata, errs []models.ErrorRecord) error
	SaveFeatureRun(ctx context.Context, meta *models.FeatureRunMetadata, errs []models.ErrorRecord) error
}

// RunRecorder persists run artifacts. Save must be attempted for every run.
type RunRecorder interface {
	RunMirror
	LatestRun(ctx context.Context) (*models.RunMetadata, error)
}

type UniverseStore interface {
	// LatestSnapshot returns the newest snapshot dated strictly before before,
	// or nil when there is none.
	LatestSnapshot(ctx context.Context, before time.Time) (*models.UniverseSnapshot, error)
	// LoadSnapshot returns the snapshot of date, or nil when it does not exist.
	LoadSnapshot(ctx context.Context, date time.Time) (*models.UniverseSnapshot, error)
	SaveSnapshot(ctx context.Context, snap models.UniverseSnapshot, diff models.UniverseDiff) error
}

// FeatureSink receives the per-day feature dataset.
type FeatureSink interface {
	WriteFeatures(ctx context.Context, date time.Time, rows []models.FeatureRow) (string, error)
}

// EventPublisher announces pipeline milestones to downstream consumers.
type EventPublisher interface {
	PublishRun(ctx context.Context, meta *models.RunMetadata) error
	PublishUniverse(ctx context.Context, diff models.UniverseDiff) error
	PublishFeatures(ctx context.Context, meta *models.FeatureRunMetadata) error
	Close() error
}

// RunLock guards against two runs mutating the same day.
type RunLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Pruner deletes daily partitions older than days before today.
type Pruner interface {
	Prune(ctx context.Context, today time.Time, days int, dryRun bool) (models.PruneResult, error)
}

type Metrics interface {
	RecordFetch(provider, result string)
	RecordRateLimitHit(provider string)
	RecordBackoff(provider string, seconds float64)
	RecordTicker(stage, outcome string)
	RecordPartitionWrite(result string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordRunStatus(stage string, status string)
}
