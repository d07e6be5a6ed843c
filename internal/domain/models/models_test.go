package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func bar(t time.Time, c float64) PriceBar {
	return PriceBar{Date: t, Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 100}
}

func TestMergeBarsIncomingSupersedes(t *testing.T) {
	existing := []PriceBar{bar(day(2024, 1, 2), 10), bar(day(2024, 1, 3), 11), bar(day(2024, 1, 4), 12)}
	incoming := []PriceBar{bar(day(2024, 1, 5), 14), bar(day(2024, 1, 4), 13.5)}

	got := MergeBars(existing, incoming)
	if len(got) != 4 {
		t.Fatalf("expected 4 bars, got %d", len(got))
	}
	if !IsStrictlyIncreasing(got) {
		t.Fatalf("merged series not strictly increasing")
	}
	if got[2].Close != 13.5 {
		t.Fatalf("expected incoming bar to win on overlap, got close %v", got[2].Close)
	}
	if existing[2].Close != 12 {
		t.Fatalf("merge mutated existing input")
	}
}

func TestMergeBarsIsIdempotent(t *testing.T) {
	existing := []PriceBar{bar(day(2024, 1, 2), 10), bar(day(2024, 1, 3), 11)}
	incoming := []PriceBar{bar(day(2024, 1, 3), 11), bar(day(2024, 1, 4), 12)}
	once := MergeBars(existing, incoming)
	twice := MergeBars(once, incoming)
	if !BarsEqual(once, twice) {
		t.Fatalf("second merge changed the series")
	}
}

func TestNormalizeBarsDedupesAndSorts(t *testing.T) {
	in := []PriceBar{
		bar(day(2024, 1, 3).Add(15*time.Hour), 2),
		bar(day(2024, 1, 2), 1),
		bar(day(2024, 1, 3), 3),
	}
	out := NormalizeBars(in)
	if len(out) != 2 || !IsStrictlyIncreasing(out) {
		t.Fatalf("unexpected normalized bars %+v", out)
	}
	if out[1].Close != 3 {
		t.Fatalf("expected last duplicate to win, got %v", out[1].Close)
	}
}

func TestFetchRequestDays(t *testing.T) {
	r := FetchRequest{Start: day(2024, 1, 2), End: day(2024, 1, 4)}
	if r.Days() != 3 {
		t.Fatalf("expected 3 days, got %d", r.Days())
	}
	empty := FetchRequest{Start: day(2024, 1, 5), End: day(2024, 1, 4)}
	if !empty.Empty() || empty.Days() != 0 {
		t.Fatalf("expected empty request")
	}
}

func TestGroupByYear(t *testing.T) {
	g := GroupByYear([]PriceBar{bar(day(2023, 12, 29), 1), bar(day(2024, 1, 2), 2), bar(day(2024, 1, 3), 3)})
	if len(g[2023]) != 1 || len(g[2024]) != 2 {
		t.Fatalf("unexpected grouping %v", g)
	}
}

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in      string
		want    TickerSymbol
		wantErr bool
	}{
		{in: "BRK.B", want: "BRK-B"},
		{in: " bf/b ", want: "BF-B"},
		{in: "aapl", want: "AAPL"},
		{in: "^GSPC", want: "^GSPC"},
		{in: "", wantErr: true},
		{in: "A$B", wantErr: true},
		{in: "TOOLONGSYMBOL", wantErr: true},
		{in: "ABC.", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizeSymbol(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("%q: got %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestNormalizeSymbolsDedupes(t *testing.T) {
	got, rejected := NormalizeSymbols([]string{"MSFT", "brk.b", "BRK-B", "AAPL", "bad!"})
	want := []TickerSymbol{"AAPL", "BRK-B", "MSFT"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if len(rejected) != 1 || rejected[0] != "bad!" {
		t.Fatalf("unexpected rejected %v", rejected)
	}
}

func TestDiffUniverse(t *testing.T) {
	d := DiffUniverse([]TickerSymbol{"AAPL", "MSFT", "XOM"}, []TickerSymbol{"AAPL", "MSFT", "NVDA", "PLTR"})
	if fmt.Sprint(d.Added) != "[NVDA PLTR]" || fmt.Sprint(d.Removed) != "[XOM]" {
		t.Fatalf("unexpected diff %+v", d)
	}
	if d.NetChange != 1 || d.TotalTickers != 4 {
		t.Fatalf("unexpected counts %+v", d)
	}
}

func TestComputeStatus(t *testing.T) {
	tests := []struct {
		name              string
		processed, failed int
		terminated        bool
		want              RunStatus
	}{
		{"all ok", 10, 0, false, StatusSuccess},
		{"one failure", 10, 1, false, StatusPartial},
		{"above threshold", 10, 3, false, StatusFailed},
		{"all failed", 2, 2, false, StatusFailed},
		{"nothing processed", 0, 0, false, StatusFailed},
		{"terminated", 10, 0, true, StatusTerminated},
	}
	for _, tt := range tests {
		if got := ComputeStatus(tt.processed, tt.failed, 0.25, tt.terminated); got != tt.want {
			t.Fatalf("%s: got %s want %s", tt.name, got, tt.want)
		}
	}
}

func TestPipelineErrorKind(t *testing.T) {
	base := NewRateLimitError("yahoo.fetch", "429").WithTicker("BBB")
	wrapped := fmt.Errorf("attempt 2: %w", base)
	if k, ok := KindOf(wrapped); !ok || k != KindRateLimit {
		t.Fatalf("expected rate limit kind, got %v %v", k, ok)
	}
	if !IsRetryable(wrapped) {
		t.Fatalf("rate limit should be retryable")
	}
	if IsRetryable(NewPermanentError("op", "gone")) {
		t.Fatalf("permanent should not be retryable")
	}
	if KindOrDefault(errors.New("boom"), KindStorage) != KindStorage {
		t.Fatalf("expected default kind for unclassified error")
	}
	rec := NewErrorRecord("BBB", wrapped, KindTransient)
	if rec.ErrorKind != KindRateLimit || rec.Ticker != "BBB" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestValueJSONUsesNullForUndefined(t *testing.T) {
	row := FeatureRow{Ticker: "AAA", SMA20: NewValue(1.5)}
	b, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["sma_20"] != 1.5 {
		t.Fatalf("expected sma_20 1.5, got %v", m["sma_20"])
	}
	if v, ok := m["sma_200"]; !ok || v != nil {
		t.Fatalf("expected explicit null for sma_200, got %v", v)
	}
	if row.Complete() {
		t.Fatalf("row with undefined fields reported complete")
	}
}

func TestTickerStateTransitions(t *testing.T) {
	tests := []struct {
		from, to TickerState
		ok       bool
	}{
		{StateNeedsFullHistory, StateAwaitingFetch, true},
		{StateNeedsFullHistory, StateMerging, true},
		{StateAwaitingFetch, StateNeedsFullHistory, false},
		{StateAwaitingFetch, StateDone, true},
		{StateMerging, StateFailed, true},
		{StateDone, StateMerging, false},
		{StateFailed, StateDone, false},
		{StateMerging, StateAwaitingFetch, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.ok {
			t.Fatalf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
	if StateMerging.String() != "merging" || TickerState(99).String() != "unknown" {
		t.Fatalf("state names")
	}
	if !StateDone.Terminal() || StateAwaitingFetch.Terminal() {
		t.Fatalf("terminal states")
	}
}
