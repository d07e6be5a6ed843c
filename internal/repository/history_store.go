package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"StockPipe/internal/domain/models"
	domrepo "StockPipe/internal/domain/repository"
	applogger "StockPipe/pkg/logger"
	"StockPipe/pkg/metrics"
	"StockPipe/pkg/storage"
)

const (
	historyRoot   = "history"
	partitionFile = "data"
	yearPrefix    = "year="
)

// HistoryStore keeps each ticker's daily bars as one Parquet object per
// calendar year: history/{ticker}/year={YYYY}/data.
type HistoryStore struct {
	backend storage.Backend
	metrics domrepo.Metrics
	l       *applogger.Logger
}

type HistoryOption func(*HistoryStore)

func WithHistoryMetrics(m domrepo.Metrics) HistoryOption {
	return func(s *HistoryStore) {
		s.metrics = m
	}
}

func WithHistoryLogger(l *applogger.Logger) HistoryOption {
	return func(s *HistoryStore) {
		s.l = l
	}
}

func NewHistoryStore(backend storage.Backend, opts ...HistoryOption) *HistoryStore {
	s := &HistoryStore{
		backend: backend,
		metrics: metrics.Nop{},
		l:       applogger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func partitionKey(ticker models.TickerSymbol, year int) string {
	return storage.Join(historyRoot, ticker.String(), fmt.Sprintf("%s%04d", yearPrefix, year), partitionFile)
}

// partitionYear parses history/{ticker}/year={YYYY}/data.
func partitionYear(key string) (int, bool) {
	seg := storage.Segments(key)
	if len(seg) != 4 || seg[3] != partitionFile || !strings.HasPrefix(seg[2], yearPrefix) {
		return 0, false
	}
	y, err := strconv.Atoi(strings.TrimPrefix(seg[2], yearPrefix))
	if err != nil {
		return 0, false
	}
	return y, true
}

// years lists the partition years stored for ticker, ascending.
func (s *HistoryStore) years(ctx context.Context, ticker models.TickerSymbol) ([]int, error) {
	keys, err := s.backend.List(ctx, storage.Join(historyRoot, ticker.String())+"/")
	if err != nil {
		return nil, models.NewStorageError("history.list", "list partitions").WithTicker(ticker.String()).WithError(err)
	}
	var out []int
	for _, k := range keys {
		if y, ok := partitionYear(k); ok {
			out = append(out, y)
		}
	}
	sort.Ints(out)
	return out, nil
}

func (s *HistoryStore) readPartition(ctx context.Context, ticker models.TickerSymbol, year int) ([]models.PriceBar, []byte, error) {
	b, err := s.backend.Read(ctx, partitionKey(ticker, year))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, models.NewStorageError("history.read", fmt.Sprintf("read year %d", year)).
			WithTicker(ticker.String()).WithError(err)
	}
	bars, err := DecodeBars(b)
	if err != nil {
		return nil, nil, models.NewStorageError("history.read", fmt.Sprintf("decode year %d", year)).
			WithTicker(ticker.String()).WithError(err)
	}
	return bars, b, nil
}

// Read returns the full series of ticker. A ticker with no partitions yields
// an empty series.
func (s *HistoryStore) Read(ctx context.Context, ticker models.TickerSymbol) (models.HistoricalSeries, error) {
	series := models.HistoricalSeries{Ticker: ticker}
	years, err := s.years(ctx, ticker)
	if err != nil {
		return series, err
	}
	for _, y := range years {
		bars, _, err := s.readPartition(ctx, ticker, y)
		if err != nil {
			return series, err
		}
		series.Bars = append(series.Bars, bars...)
	}
	return series, nil
}

// Latest returns the newest stored date, reading only the newest partition.
func (s *HistoryStore) Latest(ctx context.Context, ticker models.TickerSymbol) (time.Time, bool, error) {
	years, err := s.years(ctx, ticker)
	if err != nil {
		return time.Time{}, false, err
	}
	for i := len(years) - 1; i >= 0; i-- {
		bars, _, err := s.readPartition(ctx, ticker, years[i])
		if err != nil {
			return time.Time{}, false, err
		}
		if len(bars) > 0 {
			return bars[len(bars)-1].Date, true, nil
		}
	}
	return time.Time{}, false, nil
}

type pendingPartition struct {
	key     string
	data    []byte
	prev    []byte
	existed bool
	bars    int
}

// Write merges bars into the affected year partitions. Unchanged partitions
// are not rewritten. If any partition write fails, partitions already
// replaced by this call are restored so the ticker is left as it was.
func (s *HistoryStore) Write(ctx context.Context, ticker models.TickerSymbol, bars []models.PriceBar) (domrepo.WriteResult, error) {
	var res domrepo.WriteResult
	incoming := models.NormalizeBars(bars)
	if len(incoming) == 0 {
		return res, nil
	}

	groups := models.GroupByYear(incoming)
	years := make([]int, 0, len(groups))
	for y := range groups {
		years = append(years, y)
	}
	sort.Ints(years)

	var pending []pendingPartition
	for _, y := range years {
		existing, prev, err := s.readPartition(ctx, ticker, y)
		if err != nil {
			return res, err
		}
		merged := models.MergeBars(existing, groups[y])
		if prev != nil && models.BarsEqual(existing, merged) {
			s.metrics.RecordPartitionWrite("unchanged")
			continue
		}
		data, err := EncodeBars(merged)
		if err != nil {
			return res, models.NewStorageError("history.write", fmt.Sprintf("encode year %d", y)).
				WithTicker(ticker.String()).WithError(err)
		}
		pending = append(pending, pendingPartition{
			key:     partitionKey(ticker, y),
			data:    data,
			prev:    prev,
			existed: prev != nil,
			bars:    len(groups[y]),
		})
	}

	for i, p := range pending {
		if err := s.backend.Write(ctx, p.key, p.data); err != nil {
			s.metrics.RecordPartitionWrite("failed")
			s.rollback(ticker, pending[:i])
			return domrepo.WriteResult{}, models.NewStorageError("history.write", "write partition "+p.key).
				WithTicker(ticker.String()).WithError(err)
		}
		s.metrics.RecordPartitionWrite("written")
		res.PartitionsWritten++
		res.BarsWritten += p.bars
	}
	return res, nil
}

// rollback restores partitions written earlier in a failed Write. It uses a
// fresh context so a cancelled run still restores state.
func (s *HistoryStore) rollback(ticker models.TickerSymbol, written []pendingPartition) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, p := range written {
		var err error
		if p.existed {
			err = s.backend.Write(ctx, p.key, p.prev)
		} else {
			err = s.backend.Delete(ctx, p.key)
		}
		if err != nil {
			s.l.Error("history rollback failed",
				applogger.String("ticker", ticker.String()),
				applogger.String("key", p.key),
				applogger.Error(err),
			)
		}
	}
}

// Tickers lists every ticker with at least one partition.
func (s *HistoryStore) Tickers(ctx context.Context) ([]models.TickerSymbol, error) {
	keys, err := s.backend.List(ctx, historyRoot+"/")
	if err != nil {
		return nil, models.NewStorageError("history.tickers", "list history").WithError(err)
	}
	seen := make(map[models.TickerSymbol]struct{})
	for _, k := range keys {
		if _, ok := partitionYear(k); !ok {
			continue
		}
		seen[models.TickerSymbol(storage.Segments(k)[1])] = struct{}{}
	}
	out := make([]models.TickerSymbol, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	models.SortSymbols(out)
	return out, nil
}

// Verify checks that ticker's series is strictly increasing across partitions.
func (s *HistoryStore) Verify(ctx context.Context, ticker models.TickerSymbol) error {
	series, err := s.Read(ctx, ticker)
	if err != nil {
		return err
	}
	if !models.IsStrictlyIncreasing(series.Bars) {
		return models.NewDataQualityErrorf("history.verify", "series is not strictly increasing").WithTicker(ticker.String())
	}
	return nil
}
