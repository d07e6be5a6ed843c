package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"StockPipe/internal/domain/models"
	"StockPipe/internal/repository"
	"StockPipe/pkg/storage"
)

type recordingPublisher struct {
	mu       sync.Mutex
	runs     []*models.RunMetadata
	diffs    []models.UniverseDiff
	features []*models.FeatureRunMetadata
}

func (p *recordingPublisher) PublishRun(_ context.Context, m *models.RunMetadata) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = append(p.runs, m)
	return nil
}

func (p *recordingPublisher) PublishUniverse(_ context.Context, d models.UniverseDiff) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.diffs = append(p.diffs, d)
	return nil
}

func (p *recordingPublisher) PublishFeatures(_ context.Context, m *models.FeatureRunMetadata) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.features = append(p.features, m)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type failingSink struct{ calls int }

func (s *failingSink) WriteFeatures(context.Context, time.Time, []models.FeatureRow) (string, error) {
	s.calls++
	return "", errors.New("clickhouse unavailable")
}

func seedHistory(t *testing.T, store *repository.HistoryStore, ticker models.TickerSymbol, end time.Time, n int) {
	t.Helper()
	if _, err := store.Write(context.Background(), ticker, weekdayBars(end, n)); err != nil {
		t.Fatalf("seed %s: %v", ticker, err)
	}
}

func TestComputeFeaturesWindowAndNoHistory(t *testing.T) {
	ctx := context.Background()
	store := repository.NewHistoryStore(storage.NewMemory())
	end := day("2024-06-28")
	seedHistory(t, store, "AAA", end, 300)

	fe := NewFeatureEngine(store, repository.NewFeatureStore(storage.NewMemory()), repository.NewRunStore(storage.NewMemory()),
		FeatureConfig{OutputWindowDays: 30})
	rows, err := fe.ComputeFeatures(ctx, "AAA")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(rows) == 0 || !rows[len(rows)-1].Date.Equal(end) || rows[0].Date.Before(end.AddDate(0, 0, -30)) {
		t.Fatalf("window = %d rows from %s", len(rows), rows[0].Date)
	}
	if !rows[len(rows)-1].Complete() {
		t.Fatalf("last row should have every indicator defined: %+v", rows[len(rows)-1])
	}

	_, err = fe.ComputeFeatures(ctx, "ZZZ")
	if kind, _ := models.KindOf(err); kind != models.KindDataQuality {
		t.Fatalf("kind = %v err = %v", kind, err)
	}
}

func TestFeatureRunDropsIncomplete(t *testing.T) {
	ctx := context.Background()
	store := repository.NewHistoryStore(storage.NewMemory())
	end := day("2024-06-28")
	seedHistory(t, store, "LONG", end, 210)
	seedHistory(t, store, "SHORT", end, 100)

	out := storage.NewMemory()
	runs := repository.NewRunStore(storage.NewMemory())
	pub := &recordingPublisher{}
	mirror := &failingSink{}
	fe := NewFeatureEngine(store, repository.NewFeatureStore(out), runs, FeatureConfig{
		OutputWindowDays: 30,
		DropIncomplete:   true,
		MinRowsPerTicker: 150,
		Workers:          2,
		FailureThreshold: 0.6,
	}, WithFeaturePublisher(pub), WithFeatureMirrors(mirror))

	meta, err := fe.Run(ctx, end, symbols("LONG", "NONE", "SHORT"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if meta.Status != models.StatusPartial {
		t.Fatalf("status = %s (%s)", meta.Status, meta.ErrorMessage)
	}
	if meta.TickersProcessed != 3 || meta.TickersOutput != 1 || meta.TickersDropped != 1 || meta.TickersFailed != 1 {
		t.Fatalf("meta = %+v", meta)
	}
	if meta.RowsDropped == 0 || meta.RowsOutput == 0 {
		t.Fatalf("rows output %d dropped %d", meta.RowsOutput, meta.RowsDropped)
	}
	if meta.OutputPath != "processed/dt=2024-06-28/features.parquet" {
		t.Fatalf("output path = %q", meta.OutputPath)
	}
	if mirror.calls != 1 {
		t.Fatalf("mirror calls = %d", mirror.calls)
	}

	rows, err := repository.NewFeatureStore(out).ReadFeatures(ctx, end)
	if err != nil {
		t.Fatalf("read features: %v", err)
	}
	for _, r := range rows {
		if r.Ticker != "LONG" || !r.Complete() {
			t.Fatalf("unexpected row %+v", r)
		}
	}

	saved, err := runs.LatestFeatureRun(ctx)
	if err != nil || saved == nil || saved.RunID != meta.RunID {
		t.Fatalf("saved = %+v err = %v", saved, err)
	}
	errs, _ := runs.Errors(ctx, models.StageFeatures, end)
	if len(errs) != 2 || errs[0].Ticker != "NONE" || errs[1].ErrorKind != models.KindDataQuality {
		t.Fatalf("error records = %+v", errs)
	}
	if len(pub.features) != 1 {
		t.Fatalf("features event not published")
	}
}

func TestFeatureRunKeepsInteriorIncompleteRows(t *testing.T) {
	ctx := context.Background()
	store := repository.NewHistoryStore(storage.NewMemory())
	end := day("2024-06-28")
	bars := weekdayBars(end, 300)
	// A halted stretch: %K is undefined wherever its 14-bar range is flat.
	flat := bars[264].Close
	for i := 265; i <= 290; i++ {
		bars[i].Open, bars[i].High, bars[i].Low, bars[i].Close = flat, flat, flat, flat
	}
	if _, err := store.Write(ctx, "HALT", bars); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cfg := FeatureConfig{OutputWindowDays: 30, DropIncomplete: true, MinRowsPerTicker: 250, Workers: 1, FailureThreshold: 0.5}
	out := storage.NewMemory()
	fe := NewFeatureEngine(store, repository.NewFeatureStore(out), repository.NewRunStore(storage.NewMemory()), cfg)

	window, err := fe.ComputeFeatures(ctx, "HALT")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	var interior int
	for i := range window {
		if !window[i].Complete() {
			interior++
		}
	}
	if interior == 0 {
		t.Fatalf("expected undefined indicators inside the flat stretch")
	}

	meta, err := fe.Run(ctx, end, symbols("HALT"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if meta.RowsDropped != 0 || meta.RowsOutput != len(window) {
		t.Fatalf("rows output %d dropped %d, want %d and 0", meta.RowsOutput, meta.RowsDropped, len(window))
	}
	rows, err := repository.NewFeatureStore(out).ReadFeatures(ctx, end)
	if err != nil || len(rows) != len(window) {
		t.Fatalf("persisted %d rows err = %v", len(rows), err)
	}
}

func TestFeatureRunWithoutRowsFails(t *testing.T) {
	fe := NewFeatureEngine(repository.NewHistoryStore(storage.NewMemory()), repository.NewFeatureStore(storage.NewMemory()),
		repository.NewRunStore(storage.NewMemory()), FeatureConfig{FailureThreshold: 0.25})
	meta, err := fe.Run(context.Background(), day("2024-06-28"), symbols("AAA"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if meta.Status != models.StatusFailed || meta.OutputPath != "" {
		t.Fatalf("meta = %+v", meta)
	}
}
