package usecase

import (
	"context"
	"testing"

	"StockPipe/internal/domain/models"
	"StockPipe/internal/repository"
	"StockPipe/internal/service/universe"
	"StockPipe/pkg/storage"
)

type switchableSource struct {
	entries []universe.Entry
	calls   int
}

func (s *switchableSource) Name() string { return "switchable" }

func (s *switchableSource) Fetch(context.Context) ([]universe.Entry, error) {
	s.calls++
	return s.entries, nil
}

func TestCurrentUniverseNormalizes(t *testing.T) {
	src := &switchableSource{entries: []universe.Entry{
		{Symbol: "msft", Name: "Microsoft"},
		{Symbol: "BRK.B", Name: "Berkshire Hathaway"},
		{Symbol: "AAPL"},
		{Symbol: "MSFT"},
		{Symbol: "bad symbol!"},
	}}
	u := NewUniverseProvider(src, repository.NewUniverseStore(storage.NewMemory()), nil, nil, nil, UniverseConfig{})

	got, names, err := u.CurrentUniverse(context.Background())
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	want := []models.TickerSymbol{"AAPL", "BRK-B", "MSFT"}
	if len(got) != len(want) {
		t.Fatalf("symbols = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("symbols = %v, want %v", got, want)
		}
	}
	if names["BRK-B"] != "Berkshire Hathaway" {
		t.Fatalf("names = %v", names)
	}
}

func TestCurrentUniverseRejectsEmpty(t *testing.T) {
	u := NewUniverseProvider(&switchableSource{}, repository.NewUniverseStore(storage.NewMemory()), nil, nil, nil, UniverseConfig{})
	_, _, err := u.CurrentUniverse(context.Background())
	if kind, _ := models.KindOf(err); kind != models.KindDataQuality {
		t.Fatalf("kind = %v err = %v", kind, err)
	}
}

func TestRefreshDiffsAgainstPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	store := repository.NewUniverseStore(mem)
	pub := &recordingPublisher{}
	src := &switchableSource{entries: []universe.Entry{{Symbol: "AAA"}, {Symbol: "BBB"}}}
	u := NewUniverseProvider(src, store, pub, nil, nil, UniverseConfig{MinExpected: 1, MaxExpected: 10})

	first, err := u.Refresh(ctx, day("2024-01-02"), false)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if first.Reused || first.Diff.TotalAdded != 2 || first.Diff.PreviousDate != "" {
		t.Fatalf("first = %+v", first.Diff)
	}
	if len(pub.diffs) != 0 {
		t.Fatalf("bootstrap snapshot should not publish a change event")
	}

	src.entries = []universe.Entry{{Symbol: "BBB"}, {Symbol: "CCC"}}
	second, err := u.Refresh(ctx, day("2024-01-03"), false)
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	d := second.Diff
	if d.PreviousDate != "2024-01-02" || d.TotalAdded != 1 || d.Added[0] != "CCC" || d.Removed[0] != "AAA" || d.NetChange != 0 || d.TotalTickers != 2 {
		t.Fatalf("diff = %+v", d)
	}
	if len(pub.diffs) != 1 {
		t.Fatalf("diff events = %d", len(pub.diffs))
	}
	stored, err := store.ReadDiff(ctx, day("2024-01-03"))
	if err != nil || stored == nil || stored.TotalRemoved != 1 {
		t.Fatalf("stored diff = %+v err = %v", stored, err)
	}
}

func TestRefreshReusesTodaysSnapshot(t *testing.T) {
	ctx := context.Background()
	src := &switchableSource{entries: []universe.Entry{{Symbol: "AAA"}}}
	u := NewUniverseProvider(src, repository.NewUniverseStore(storage.NewMemory()), nil, nil, nil, UniverseConfig{})

	if _, err := u.Refresh(ctx, day("2024-01-02"), false); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	res, err := u.Refresh(ctx, day("2024-01-02"), false)
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if !res.Reused || src.calls != 1 || len(res.Snapshot.Symbols) != 1 {
		t.Fatalf("reuse = %v calls = %d", res.Reused, src.calls)
	}

	res, err = u.Refresh(ctx, day("2024-01-02"), true)
	if err != nil {
		t.Fatalf("forced refresh: %v", err)
	}
	if res.Reused || src.calls != 2 {
		t.Fatalf("forced refresh reused = %v calls = %d", res.Reused, src.calls)
	}
}

func TestRefreshDryRunPersistsNothing(t *testing.T) {
	mem := storage.NewMemory()
	u := NewUniverseProvider(&switchableSource{entries: []universe.Entry{{Symbol: "AAA"}}},
		repository.NewUniverseStore(mem), nil, nil, nil, UniverseConfig{DryRun: true})
	if _, err := u.Refresh(context.Background(), day("2024-01-02"), false); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if mem.Writes() != 0 {
		t.Fatalf("dry run wrote %d objects", mem.Writes())
	}
}
