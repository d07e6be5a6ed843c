package repository

import (
	"context"
	"encoding/json"
	"testing"

	"StockPipe/internal/domain/models"
)

type insertCall struct {
	table string
	cols  []string
	rows  [][]any
}

type fakeInserter struct{ calls []insertCall }

func (f *fakeInserter) InsertBatch(_ context.Context, table string, columns []string, rows [][]any) error {
	f.calls = append(f.calls, insertCall{table, columns, rows})
	return nil
}

func TestCHRunStoreSaveRun(t *testing.T) {
	ins := &fakeInserter{}
	s := NewCHRunStore(ins, "stockpipe", nil)
	meta := models.NewRunMetadata("r1", day("2024-01-02"), models.StageAcquisition)
	meta.Finalize(models.StatusPartial, "")
	errs := []models.ErrorRecord{{Ticker: "ZZZ", ErrorKind: models.KindPermanent, Message: "not found"}}

	if err := s.SaveRun(context.Background(), meta, errs); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(ins.calls) != 2 {
		t.Fatalf("calls = %d", len(ins.calls))
	}
	run := ins.calls[0]
	if run.table != "stockpipe.pipeline_runs" || len(run.rows[0]) != len(run.cols) {
		t.Fatalf("run insert = %s %d/%d", run.table, len(run.rows[0]), len(run.cols))
	}
	if ins.calls[1].table != "stockpipe.pipeline_errors" || ins.calls[1].rows[0][3] != "ZZZ" {
		t.Fatalf("error insert = %+v", ins.calls[1])
	}
}

func TestCHRunStoreWriteFeaturesChunks(t *testing.T) {
	ins := &fakeInserter{}
	s := NewCHRunStore(ins, "stockpipe", nil)
	rows := make([]models.FeatureRow, featureChunkSize+1)
	for i := range rows {
		rows[i] = models.FeatureRow{Ticker: "AAA", PriceBar: bar("2024-01-02", 1)}
	}
	table, err := s.WriteFeatures(context.Background(), day("2024-01-02"), rows)
	if err != nil || table != "stockpipe.features" {
		t.Fatalf("table = %q err = %v", table, err)
	}
	if len(ins.calls) != 2 || len(ins.calls[1].rows) != 1 {
		t.Fatalf("chunks = %d", len(ins.calls))
	}
	if got := ins.calls[0].rows[0]; len(got) != len(featureColumns) {
		t.Fatalf("feature row width %d, want %d", len(got), len(featureColumns))
	}
	if len(RunSchema("stockpipe")) != 5 {
		t.Fatalf("schema statements")
	}
}

type fakeProducer struct {
	topics []string
	keys   []string
	values []any
}

func (f *fakeProducer) Publish(_ context.Context, topic string, key []byte, value any) error {
	f.topics = append(f.topics, topic)
	f.keys = append(f.keys, string(key))
	f.values = append(f.values, value)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func TestKafkaPublisherEvents(t *testing.T) {
	ctx := context.Background()
	prod := &fakeProducer{}
	p := NewKafkaPublisher(prod, Topics{Runs: "runs", Universe: "universe", Features: "features"})

	meta := models.NewRunMetadata("r1", day("2024-01-02"), models.StageAcquisition)
	_ = p.PublishRun(ctx, meta)
	_ = p.PublishUniverse(ctx, models.UniverseDiff{Date: "2024-01-02"})
	_ = p.PublishUniverse(ctx, models.UniverseDiff{Date: "2024-01-02", TotalAdded: 1, Added: []models.TickerSymbol{"NEW"}})
	_ = p.PublishFeatures(ctx, &models.FeatureRunMetadata{RunDate: "2024-01-02"})

	if len(prod.topics) != 3 {
		t.Fatalf("unchanged universe should not publish; topics = %v", prod.topics)
	}
	if prod.topics[0] != "runs" || prod.keys[0] != "2024-01-02" || prod.topics[2] != "features" {
		t.Fatalf("topics = %v keys = %v", prod.topics, prod.keys)
	}
	b, _ := json.Marshal(prod.values[1])
	var ev struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &ev); err != nil || ev.Type != EventUniverseChanged {
		t.Fatalf("event = %s", b)
	}
}
