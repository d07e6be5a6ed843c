package repository

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"StockPipe/internal/domain/models"
	"StockPipe/pkg/storage"
	"StockPipe/pkg/util"
)

const (
	tickersRoot = "tickers"
	tickersFile = "tickers.csv"
	diffFile    = "diff.json"
)

var tickersHeader = []string{"symbol", "company_name"}

// UniverseStore keeps one universe snapshot per day at
// tickers/dt={date}/tickers.csv with the diff against the previous snapshot
// next to it.
type UniverseStore struct {
	backend storage.Backend
}

func NewUniverseStore(backend storage.Backend) *UniverseStore {
	return &UniverseStore{backend: backend}
}

func snapshotDir(date time.Time) string {
	return storage.Join(tickersRoot, "dt="+util.FormatDate(date))
}

func (s *UniverseStore) SaveSnapshot(ctx context.Context, snap models.UniverseSnapshot, diff models.UniverseDiff) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(tickersHeader)
	for _, sym := range snap.Symbols {
		_ = w.Write([]string{sym.String(), snap.Names[sym]})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return models.NewStorageError("universe.save", "encode tickers").WithError(err)
	}

	dir := snapshotDir(snap.Date)
	if err := s.backend.Write(ctx, storage.Join(dir, tickersFile), buf.Bytes()); err != nil {
		return models.NewStorageError("universe.save", "write tickers").WithError(err)
	}
	b, err := json.MarshalIndent(diff, "", "  ")
	if err != nil {
		return models.NewStorageError("universe.save", "encode diff").WithError(err)
	}
	if err := s.backend.Write(ctx, storage.Join(dir, diffFile), b); err != nil {
		return models.NewStorageError("universe.save", "write diff").WithError(err)
	}
	return nil
}

func (s *UniverseStore) LoadSnapshot(ctx context.Context, date time.Time) (*models.UniverseSnapshot, error) {
	b, err := s.backend.Read(ctx, storage.Join(snapshotDir(date), tickersFile))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, models.NewStorageError("universe.load", "read tickers").WithError(err)
	}
	snap, err := decodeSnapshot(b)
	if err != nil {
		return nil, models.NewStorageError("universe.load", "decode tickers").WithError(err)
	}
	snap.Date = util.DateOnly(date)
	return snap, nil
}

func (s *UniverseStore) LatestSnapshot(ctx context.Context, before time.Time) (*models.UniverseSnapshot, error) {
	dates, err := s.snapshotDates(ctx)
	if err != nil {
		return nil, err
	}
	before = util.DateOnly(before)
	for i := len(dates) - 1; i >= 0; i-- {
		if dates[i].Before(before) {
			return s.LoadSnapshot(ctx, dates[i])
		}
	}
	return nil, nil
}

// ReadDiff returns the diff stored with the snapshot of date, or nil.
func (s *UniverseStore) ReadDiff(ctx context.Context, date time.Time) (*models.UniverseDiff, error) {
	b, err := s.backend.Read(ctx, storage.Join(snapshotDir(date), diffFile))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, models.NewStorageError("universe.diff", "read diff").WithError(err)
	}
	var d models.UniverseDiff
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, models.NewStorageError("universe.diff", "decode diff").WithError(err)
	}
	return &d, nil
}

// snapshotDates lists dates with a tickers.csv, ascending.
func (s *UniverseStore) snapshotDates(ctx context.Context) ([]time.Time, error) {
	keys, err := s.backend.List(ctx, tickersRoot+"/")
	if err != nil {
		return nil, models.NewStorageError("universe.list", "list snapshots").WithError(err)
	}
	var out []time.Time
	for _, k := range keys {
		seg := storage.Segments(k)
		if len(seg) != 3 || seg[2] != tickersFile {
			continue
		}
		if d, ok := util.PartitionDate(seg[1]); ok {
			out = append(out, d)
		}
	}
	// keys are listed in lexical order, which is date order for dt=YYYY-MM-DD
	return out, nil
}

func decodeSnapshot(b []byte) (*models.UniverseSnapshot, error) {
	r := csv.NewReader(bytes.NewReader(b))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &models.UniverseSnapshot{}, nil
		}
		return nil, err
	}
	if len(header) == 0 || header[0] != tickersHeader[0] {
		return nil, fmt.Errorf("unexpected header %v", header)
	}
	snap := &models.UniverseSnapshot{Names: map[models.TickerSymbol]string{}}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		sym := models.TickerSymbol(rec[0])
		snap.Symbols = append(snap.Symbols, sym)
		if len(rec) > 1 && rec[1] != "" {
			snap.Names[sym] = rec[1]
		}
	}
	return snap, nil
}
