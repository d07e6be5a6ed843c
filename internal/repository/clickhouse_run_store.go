package repository

import (
	"context"
	"fmt"
	"time"

	"StockPipe/internal/domain/models"
	applogger "StockPipe/pkg/logger"
	"StockPipe/pkg/util"
)

// batchInserter is satisfied by *clickhouse.Client.
type batchInserter interface {
	InsertBatch(ctx context.Context, table string, columns []string, rows [][]any) error
}

const featureChunkSize = 2000

var (
	runColumns = []string{
		"run_id", "run_date", "stage", "status", "tickers_processed", "tickers_successful",
		"tickers_failed", "tickers_skipped", "rate_limit_hits", "total_sleep_seconds",
		"runtime_seconds", "batch_size", "workers_initial", "workers_final",
		"partitions_written", "dry_run", "error_message", "started_at", "finished_at",
	}
	featureRunColumns = []string{
		"run_id", "run_date", "status", "tickers_processed", "tickers_output", "tickers_dropped",
		"tickers_failed", "rows_output", "rows_dropped", "runtime_seconds", "output_path", "error_message",
	}
	errorColumns   = []string{"run_id", "run_date", "stage", "ticker", "error_kind", "message", "ts"}
	featureColumns = []string{
		"run_date", "ticker", "date", "open", "high", "low", "close", "volume",
		"sma_20", "sma_50", "sma_200", "ema_12", "ema_26", "rsi_14", "macd", "macd_signal",
		"macd_histogram", "bb_middle", "bb_upper", "bb_lower", "bb_width", "bb_percent_b",
		"atr_14", "stoch_k", "stoch_d", "momentum_1", "momentum_5", "momentum_10",
	}
)

// RunSchema returns the DDL for the ClickHouse mirror tables.
func RunSchema(database string) []string {
	nullable := ""
	for _, c := range featureColumns[8:] {
		nullable += fmt.Sprintf(",\n\t\t%s Nullable(Float64)", c)
	}
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.pipeline_runs (
		run_id String,
		run_date Date,
		stage LowCardinality(String),
		status LowCardinality(String),
		tickers_processed UInt32,
		tickers_successful UInt32,
		tickers_failed UInt32,
		tickers_skipped UInt32,
		rate_limit_hits UInt64,
		total_sleep_seconds Float64,
		runtime_seconds Float64,
		batch_size UInt32,
		workers_initial UInt32,
		workers_final UInt32,
		partitions_written UInt32,
		dry_run Bool,
		error_message String,
		started_at DateTime64(3, 'UTC'),
		finished_at DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree(finished_at)
	ORDER BY (stage, run_date, run_id)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.feature_runs (
		run_id String,
		run_date Date,
		status LowCardinality(String),
		tickers_processed UInt32,
		tickers_output UInt32,
		tickers_dropped UInt32,
		tickers_failed UInt32,
		rows_output UInt32,
		rows_dropped UInt32,
		runtime_seconds Float64,
		output_path String,
		error_message String
	) ENGINE = ReplacingMergeTree
	ORDER BY (run_date, run_id)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.pipeline_errors (
		run_id String,
		run_date Date,
		stage LowCardinality(String),
		ticker String,
		error_kind LowCardinality(String),
		message String,
		ts DateTime64(3, 'UTC')
	) ENGINE = MergeTree
	ORDER BY (run_date, stage, ticker)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.features (
		run_date Date,
		ticker LowCardinality(String),
		date Date,
		open Float64,
		high Float64,
		low Float64,
		close Float64,
		volume Float64%s
	) ENGINE = ReplacingMergeTree
	PARTITION BY toYYYYMM(run_date)
	ORDER BY (run_date, ticker, date)`, database, nullable),
	}
}

// CHRunStore mirrors run artifacts and feature rows into ClickHouse.
type CHRunStore struct {
	ch batchInserter
	db string
	l  *applogger.Logger
}

func NewCHRunStore(ch batchInserter, database string, l *applogger.Logger) *CHRunStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHRunStore{ch: ch, db: database, l: l}
}

func (s *CHRunStore) table(name string) string { return s.db + "." + name }

func (s *CHRunStore) SaveRun(ctx context.Context, meta *models.RunMetadata, errs []models.ErrorRecord) error {
	start := time.Now()
	runDate := parseRunDate(meta.RunDate)
	row := []any{
		meta.RunID, runDate, meta.Stage, string(meta.Status), uint32(meta.TickersProcessed),
		uint32(meta.TickersSuccessful), uint32(meta.TickersFailed), uint32(meta.TickersSkipped),
		uint64(meta.RateLimitHits), meta.TotalSleepTime, meta.RuntimeSeconds, uint32(meta.BatchSize),
		uint32(meta.WorkersInitial), uint32(meta.WorkersFinal), uint32(meta.PartitionsWritten),
		meta.DryRun, meta.ErrorMessage, meta.StartedAt, meta.FinishedAt,
	}
	if err := s.ch.InsertBatch(ctx, s.table("pipeline_runs"), runColumns, [][]any{row}); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if err := s.insertErrors(ctx, meta.RunID, runDate, meta.Stage, errs); err != nil {
		return err
	}
	s.l.Debug("clickhouse run mirrored",
		applogger.String("run_id", meta.RunID),
		applogger.Int("errors", len(errs)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *CHRunStore) SaveFeatureRun(ctx context.Context, meta *models.FeatureRunMetadata, errs []models.ErrorRecord) error {
	runDate := parseRunDate(meta.RunDate)
	row := []any{
		meta.RunID, runDate, string(meta.Status), uint32(meta.TickersProcessed), uint32(meta.TickersOutput),
		uint32(meta.TickersDropped), uint32(meta.TickersFailed), uint32(meta.RowsOutput),
		uint32(meta.RowsDropped), meta.RuntimeSeconds, meta.OutputPath, meta.ErrorMessage,
	}
	if err := s.ch.InsertBatch(ctx, s.table("feature_runs"), featureRunColumns, [][]any{row}); err != nil {
		return fmt.Errorf("insert feature run: %w", err)
	}
	return s.insertErrors(ctx, meta.RunID, runDate, models.StageFeatures, errs)
}

func (s *CHRunStore) insertErrors(ctx context.Context, runID string, runDate time.Time, stage string, errs []models.ErrorRecord) error {
	if len(errs) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(errs))
	for _, e := range errs {
		rows = append(rows, []any{runID, runDate, stage, e.Ticker, string(e.ErrorKind), e.Message, e.Timestamp})
	}
	if err := s.ch.InsertBatch(ctx, s.table("pipeline_errors"), errorColumns, rows); err != nil {
		return fmt.Errorf("insert errors: %w", err)
	}
	return nil
}

// WriteFeatures inserts the dataset of date in chunks and returns the table name.
func (s *CHRunStore) WriteFeatures(ctx context.Context, date time.Time, rows []models.FeatureRow) (string, error) {
	table := s.table("features")
	for start := 0; start < len(rows); start += featureChunkSize {
		end := min(start+featureChunkSize, len(rows))
		batch := make([][]any, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, featureValues(date, &rows[i]))
		}
		if err := s.ch.InsertBatch(ctx, table, featureColumns, batch); err != nil {
			s.l.Error("clickhouse features insert error",
				applogger.String("table", table),
				applogger.Int("offset", start),
				applogger.Error(err),
			)
			return "", fmt.Errorf("insert features: %w", err)
		}
	}
	return table, nil
}

func featureValues(date time.Time, r *models.FeatureRow) []any {
	return []any{
		util.DateOnly(date), r.Ticker.String(), r.Date, r.Open, r.High, r.Low, r.Close, r.Volume,
		r.SMA20.Ptr(), r.SMA50.Ptr(), r.SMA200.Ptr(), r.EMA12.Ptr(), r.EMA26.Ptr(), r.RSI14.Ptr(),
		r.MACD.Ptr(), r.MACDSignal.Ptr(), r.MACDHist.Ptr(), r.BBMiddle.Ptr(), r.BBUpper.Ptr(),
		r.BBLower.Ptr(), r.BBWidth.Ptr(), r.BBPercentB.Ptr(), r.ATR14.Ptr(), r.StochK.Ptr(),
		r.StochD.Ptr(), r.Mom1.Ptr(), r.Mom5.Ptr(), r.Mom10.Ptr(),
	}
}

func parseRunDate(s string) time.Time {
	d, err := util.ParseDate(s)
	if err != nil {
		return time.Time{}
	}
	return d
}
