package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"StockPipe/internal/domain/models"
	"StockPipe/pkg/storage"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func bar(d string, c float64) models.PriceBar {
	return models.PriceBar{Date: day(d), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 100}
}

// failingBackend fails writes whose key contains failOn.
type failingBackend struct {
	*storage.Memory
	failOn string
}

func (f *failingBackend) Write(ctx context.Context, key string, data []byte) error {
	if f.failOn != "" && strings.Contains(key, f.failOn) {
		return errors.New("disk full")
	}
	return f.Memory.Write(ctx, key, data)
}

func TestHistoryWriteReadAcrossYears(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	s := NewHistoryStore(mem)

	res, err := s.Write(ctx, "AAA", []models.PriceBar{
		bar("2024-01-02", 3), bar("2023-12-29", 2), bar("2023-12-28", 1),
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.PartitionsWritten != 2 || res.BarsWritten != 3 {
		t.Fatalf("result = %+v", res)
	}
	if ok, _ := mem.Exists(ctx, "history/AAA/year=2023/data"); !ok {
		t.Fatalf("2023 partition missing")
	}

	series, err := s.Read(ctx, "AAA")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if series.Len() != 3 || !models.IsStrictlyIncreasing(series.Bars) {
		t.Fatalf("series = %+v", series.Bars)
	}
	latest, ok, err := s.Latest(ctx, "AAA")
	if err != nil || !ok || !latest.Equal(day("2024-01-02")) {
		t.Fatalf("latest = %s ok=%v err=%v", latest, ok, err)
	}
	if err := s.Verify(ctx, "AAA"); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestHistoryWriteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	s := NewHistoryStore(mem)
	bars := []models.PriceBar{bar("2024-01-02", 1), bar("2024-01-03", 2)}

	if _, err := s.Write(ctx, "AAA", bars); err != nil {
		t.Fatalf("first write: %v", err)
	}
	before := mem.Writes()
	res, err := s.Write(ctx, "AAA", bars)
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if res.PartitionsWritten != 0 || mem.Writes() != before {
		t.Fatalf("second write touched storage: %+v writes %d -> %d", res, before, mem.Writes())
	}
}

func TestHistoryWriteOnlyTouchesAffectedYears(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	s := NewHistoryStore(mem)
	_, _ = s.Write(ctx, "AAA", []models.PriceBar{bar("2023-06-01", 1), bar("2024-01-02", 2)})
	old, _ := mem.Read(ctx, "history/AAA/year=2023/data")

	res, err := s.Write(ctx, "AAA", []models.PriceBar{bar("2024-01-03", 3)})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.PartitionsWritten != 1 {
		t.Fatalf("partitions written = %d", res.PartitionsWritten)
	}
	now, _ := mem.Read(ctx, "history/AAA/year=2023/data")
	if string(old) != string(now) {
		t.Fatalf("2023 partition rewritten")
	}
}

func TestHistoryWriteSupersedesOverlap(t *testing.T) {
	ctx := context.Background()
	s := NewHistoryStore(storage.NewMemory())
	_, _ = s.Write(ctx, "AAA", []models.PriceBar{bar("2024-01-02", 1), bar("2024-01-03", 2)})
	_, _ = s.Write(ctx, "AAA", []models.PriceBar{bar("2024-01-03", 9), bar("2024-01-04", 4)})

	series, _ := s.Read(ctx, "AAA")
	if series.Len() != 3 || series.Bars[1].Close != 9 {
		t.Fatalf("overlap not superseded: %+v", series.Bars)
	}
}

func TestHistoryWriteRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	fb := &failingBackend{Memory: storage.NewMemory()}
	s := NewHistoryStore(fb)
	_, _ = s.Write(ctx, "AAA", []models.PriceBar{bar("2023-06-01", 1)})
	before, _ := fb.Read(ctx, "history/AAA/year=2023/data")

	fb.failOn = "year=2024"
	_, err := s.Write(ctx, "AAA", []models.PriceBar{bar("2023-06-02", 2), bar("2024-01-02", 3)})
	if kind, _ := models.KindOf(err); kind != models.KindStorage {
		t.Fatalf("kind = %v err = %v", kind, err)
	}
	after, _ := fb.Read(ctx, "history/AAA/year=2023/data")
	if string(before) != string(after) {
		t.Fatalf("2023 partition not restored after failed write")
	}
	if ok, _ := fb.Exists(ctx, "history/AAA/year=2024/data"); ok {
		t.Fatalf("failed partition must not exist")
	}
}

func TestHistoryRollbackDeletesNewPartitions(t *testing.T) {
	ctx := context.Background()
	fb := &failingBackend{Memory: storage.NewMemory(), failOn: "year=2024"}
	s := NewHistoryStore(fb)
	_, err := s.Write(ctx, "NEW", []models.PriceBar{bar("2023-12-29", 1), bar("2024-01-02", 2)})
	if err == nil {
		t.Fatalf("expected error")
	}
	if ok, _ := fb.Exists(ctx, "history/NEW/year=2023/data"); ok {
		t.Fatalf("new partition left behind after rollback")
	}
}

func TestHistoryTickersAndEmptyRead(t *testing.T) {
	ctx := context.Background()
	s := NewHistoryStore(storage.NewMemory())
	_, _ = s.Write(ctx, "BBB", []models.PriceBar{bar("2024-01-02", 1)})
	_, _ = s.Write(ctx, "AAA", []models.PriceBar{bar("2024-01-02", 1)})

	tickers, err := s.Tickers(ctx)
	if err != nil || len(tickers) != 2 || tickers[0] != "AAA" {
		t.Fatalf("tickers = %v err = %v", tickers, err)
	}
	series, err := s.Read(ctx, "ZZZ")
	if err != nil || series.Len() != 0 {
		t.Fatalf("empty read = %+v err = %v", series, err)
	}
	if _, ok, _ := s.Latest(ctx, "ZZZ"); ok {
		t.Fatalf("latest on empty ticker")
	}
}

func TestFeatureCodecKeepsUndefined(t *testing.T) {
	rows := []models.FeatureRow{{
		Ticker:   "AAA",
		PriceBar: bar("2024-01-02", 10),
		SMA20:    models.NewValue(9.5),
	}}
	b, err := EncodeFeatures(rows)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeFeatures(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || !got[0].SMA20.Defined || got[0].SMA20.V != 9.5 || got[0].SMA200.Defined {
		t.Fatalf("decoded = %+v", got)
	}
}
