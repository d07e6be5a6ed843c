package repository

import (
	"context"
	"testing"

	"StockPipe/internal/domain/models"
	"StockPipe/pkg/storage"
)

func TestUniverseStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewUniverseStore(storage.NewMemory())

	first := models.UniverseSnapshot{
		Date:    day("2024-01-02"),
		Symbols: []models.TickerSymbol{"AAA", "BRK-B"},
		Names:   map[models.TickerSymbol]string{"BRK-B": "Berkshire Hathaway, Inc."},
	}
	if err := s.SaveSnapshot(ctx, first, models.DiffUniverse(nil, first.Symbols)); err != nil {
		t.Fatalf("save: %v", err)
	}
	second := models.UniverseSnapshot{Date: day("2024-01-03"), Symbols: []models.TickerSymbol{"AAA", "CCC"}}
	if err := s.SaveSnapshot(ctx, second, models.DiffUniverse(first.Symbols, second.Symbols)); err != nil {
		t.Fatalf("save: %v", err)
	}

	prev, err := s.LatestSnapshot(ctx, day("2024-01-03"))
	if err != nil || prev == nil {
		t.Fatalf("latest = %+v err = %v", prev, err)
	}
	if !prev.Date.Equal(day("2024-01-02")) || len(prev.Symbols) != 2 || prev.Names["BRK-B"] != "Berkshire Hathaway, Inc." {
		t.Fatalf("previous snapshot = %+v", prev)
	}

	if none, _ := s.LatestSnapshot(ctx, day("2024-01-02")); none != nil {
		t.Fatalf("no snapshot should precede the first one, got %+v", none)
	}
	if missing, err := s.LoadSnapshot(ctx, day("2024-02-01")); err != nil || missing != nil {
		t.Fatalf("missing = %+v err = %v", missing, err)
	}

	diff, err := s.ReadDiff(ctx, day("2024-01-03"))
	if err != nil || diff == nil || diff.TotalAdded != 1 || diff.TotalRemoved != 1 || diff.Added[0] != "CCC" {
		t.Fatalf("diff = %+v err = %v", diff, err)
	}
}

func TestFeatureStoreWriteRead(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	s := NewFeatureStore(mem)
	rows := []models.FeatureRow{{Ticker: "AAA", PriceBar: bar("2024-01-02", 5), RSI14: models.NewValue(55)}}

	key, err := s.WriteFeatures(ctx, day("2024-01-02"), rows)
	if err != nil || key != "processed/dt=2024-01-02/features.parquet" {
		t.Fatalf("key = %q err = %v", key, err)
	}
	got, err := s.ReadFeatures(ctx, day("2024-01-02"))
	if err != nil || len(got) != 1 || got[0].RSI14.V != 55 {
		t.Fatalf("rows = %+v err = %v", got, err)
	}
}
