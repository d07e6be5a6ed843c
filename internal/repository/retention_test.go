package repository

import (
	"context"
	"testing"

	"StockPipe/pkg/storage"
)

func TestRetentionPrunesOldPartitions(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	for _, k := range []string{
		"logs/fetch/dt=2024-01-01/metadata.json",
		"logs/fetch/dt=2024-01-01/errors.json",
		"logs/fetch/dt=2024-01-09/metadata.json",
		"logs/features/dt=2024-01-02/metadata.json",
		"logs/features/dt=2024-01-08/metadata.json",
		"processed/dt=2024-01-03/features.parquet",
		"tickers/dt=2024-01-01/tickers.csv",
		"history/AAA/year=2020/data",
	} {
		_ = mem.Write(ctx, k, []byte("x"))
	}

	r := NewRetention(mem, nil)
	res, err := r.Prune(ctx, day("2024-01-10"), 3, false)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if res.Cutoff != "2024-01-07" || len(res.Deleted) != 2 {
		t.Fatalf("result = %+v", res)
	}

	for k, want := range map[string]bool{
		"logs/fetch/dt=2024-01-01/metadata.json":    false,
		"logs/fetch/dt=2024-01-01/errors.json":      false,
		"logs/features/dt=2024-01-02/metadata.json": false,
		"logs/fetch/dt=2024-01-09/metadata.json":    true,
		"logs/features/dt=2024-01-08/metadata.json": true,
		// newest partition of a dataset survives even when old
		"processed/dt=2024-01-03/features.parquet": true,
		"tickers/dt=2024-01-01/tickers.csv":        true,
		"history/AAA/year=2020/data":               true,
	} {
		if ok, _ := mem.Exists(ctx, k); ok != want {
			t.Fatalf("%s exists = %v, want %v", k, ok, want)
		}
	}
}

func TestRetentionDryRunDeletesNothing(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	_ = mem.Write(ctx, "logs/fetch/dt=2024-01-01/metadata.json", []byte("x"))
	_ = mem.Write(ctx, "logs/fetch/dt=2024-01-09/metadata.json", []byte("x"))

	res, err := NewRetention(mem, nil).Prune(ctx, day("2024-01-10"), 3, true)
	if err != nil || len(res.Deleted) != 1 || !res.DryRun {
		t.Fatalf("result = %+v err = %v", res, err)
	}
	if ok, _ := mem.Exists(ctx, "logs/fetch/dt=2024-01-01/metadata.json"); !ok {
		t.Fatalf("dry run deleted a partition")
	}
}
