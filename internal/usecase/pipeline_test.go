package usecase

import (
	"context"
	"testing"
	"time"

	"StockPipe/internal/domain/models"
	"StockPipe/internal/repository"
	"StockPipe/internal/service/universe"
	"StockPipe/pkg/cache"
	"StockPipe/pkg/storage"
)

type pipelineEnv struct {
	*acquisitionEnv
	out   *storage.Memory
	lock  *cache.MemoryCache
	pipe  *Pipeline
	calls *switchableSource
}

func newPipelineEnv(t *testing.T, cfg PipelineConfig, tickers ...string) *pipelineEnv {
	t.Helper()
	env := &pipelineEnv{acquisitionEnv: newAcquisitionEnv(), out: storage.NewMemory(), lock: cache.NewMemoryCache()}
	entries := make([]universe.Entry, len(tickers))
	for i, s := range tickers {
		entries[i] = universe.Entry{Symbol: s}
	}
	env.calls = &switchableSource{entries: entries}

	u := NewUniverseProvider(env.calls, repository.NewUniverseStore(env.out), nil, nil, nil, UniverseConfig{})
	a := env.engine(t, AcquisitionConfig{FullHistoryDays: 400, BatchSize: 5, Workers: 2})
	f := NewFeatureEngine(env.store, repository.NewFeatureStore(env.out), env.runs, FeatureConfig{
		OutputWindowDays: 30,
		Workers:          2,
		FailureThreshold: 0.25,
	})
	env.pipe = NewPipeline(u, a, f, env.lock, repository.NewRetention(env.out, nil), nil, cfg)
	return env
}

func TestPipelineRunsEveryStage(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t, PipelineConfig{}, "AAA", "BBB")
	date := day("2024-06-28")

	res, err := env.pipe.Run(ctx, date)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != models.StatusSuccess || res.Acquisition == nil || res.Features == nil {
		t.Fatalf("result = %+v", res)
	}
	if res.Features.TickersOutput != 2 {
		t.Fatalf("features = %+v", res.Features)
	}
	for _, key := range []string{
		"tickers/dt=2024-06-28/tickers.csv",
		"tickers/dt=2024-06-28/diff.json",
		"processed/dt=2024-06-28/features.parquet",
	} {
		if ok, _ := env.out.Exists(ctx, key); !ok {
			t.Fatalf("%s missing", key)
		}
	}
	if ok, _ := env.logs.Exists(ctx, "logs/fetch/dt=2024-06-28/metadata.json"); !ok {
		t.Fatalf("run metadata missing")
	}
	if held, _ := env.lock.Exists(ctx, "run:2024-06-28"); held {
		t.Fatalf("day lock not released")
	}
}

func TestPipelineSkipsWhenDayIsLocked(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t, PipelineConfig{}, "AAA")
	if ok, _ := env.lock.TryLock(ctx, "run:2024-06-28", time.Hour); !ok {
		t.Fatalf("could not take lock")
	}

	res, err := env.pipe.Run(ctx, day("2024-06-28"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != models.StatusSkipped || res.Acquisition != nil || env.calls.calls != 0 {
		t.Fatalf("locked run did work: %+v", res)
	}
}

func TestPipelineTickerLimit(t *testing.T) {
	env := newPipelineEnv(t, PipelineConfig{TickerLimit: 2}, "AAA", "BBB", "CCC")
	res, err := env.pipe.RunStages(context.Background(), day("2024-06-28"), models.StageUniverse, models.StageAcquisition)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Universe.Snapshot.Symbols) != 3 || res.Acquisition.TickersProcessed != 2 || res.Features != nil {
		t.Fatalf("result = %+v", res)
	}
}

func TestPipelinePrunesOldPartitions(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t, PipelineConfig{RetentionEnabled: true, RetentionDays: 3}, "AAA")
	for _, key := range []string{
		"processed/dt=2024-06-01/features.parquet",
		"processed/dt=2024-06-20/features.parquet",
	} {
		if err := env.out.Write(ctx, key, []byte("x")); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	res, err := env.pipe.RunStages(ctx, day("2024-06-28"), models.StageUniverse)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Pruned == nil || len(res.Pruned.Deleted) != 1 {
		t.Fatalf("pruned = %+v", res.Pruned)
	}
	if ok, _ := env.out.Exists(ctx, "processed/dt=2024-06-01/features.parquet"); ok {
		t.Fatalf("old partition kept")
	}
}

func TestPipelineRejectsUnknownStage(t *testing.T) {
	env := newPipelineEnv(t, PipelineConfig{}, "AAA")
	if _, err := env.pipe.RunStages(context.Background(), day("2024-06-28"), "backfill"); err == nil {
		t.Fatalf("expected error")
	}
}
