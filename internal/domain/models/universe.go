package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// TickerSymbol is a symbol already normalized to the form providers expect.
type TickerSymbol string

func (t TickerSymbol) String() string { return string(t) }

const maxSymbolLen = 10

// NormalizeSymbol upper-cases raw and rewrites class-share separators
// ("BRK.B", "BRK/B") to the dash form ("BRK-B").
func NormalizeSymbol(raw string) (TickerSymbol, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.NewReplacer(".", "-", "/", "-", " ", "").Replace(s)
	if s == "" {
		return "", fmt.Errorf("empty symbol")
	}
	if len(s) > maxSymbolLen {
		return "", fmt.Errorf("symbol %q too long", raw)
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '^':
		default:
			return "", fmt.Errorf("symbol %q has invalid character %q", raw, r)
		}
	}
	if strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-") {
		return "", fmt.Errorf("symbol %q has dangling separator", raw)
	}
	return TickerSymbol(s), nil
}

// NormalizeSymbols normalizes, dedupes and sorts raw symbols. Rejected inputs
// are returned separately.
func NormalizeSymbols(raw []string) ([]TickerSymbol, []string) {
	seen := make(map[TickerSymbol]struct{}, len(raw))
	out := make([]TickerSymbol, 0, len(raw))
	var rejected []string
	for _, r := range raw {
		s, err := NormalizeSymbol(r)
		if err != nil {
			rejected = append(rejected, r)
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	SortSymbols(out)
	return out, rejected
}

func SortSymbols(s []TickerSymbol) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}

type UniverseSnapshot struct {
	Date    time.Time
	Symbols []TickerSymbol
	// Names maps symbols to company names when the source provides them.
	Names map[TickerSymbol]string
}

// UniverseDiff is the net-change record persisted next to a snapshot.
type UniverseDiff struct {
	Date         string         `json:"date"`
	PreviousDate string         `json:"previous_date,omitempty"`
	Added        []TickerSymbol `json:"tickers_added"`
	Removed      []TickerSymbol `json:"tickers_removed"`
	TotalAdded   int            `json:"total_added"`
	TotalRemoved int            `json:"total_removed"`
	NetChange    int            `json:"net_change"`
	TotalTickers int            `json:"total_tickers"`
}

// DiffUniverse computes added and removed symbols between two sets.
func DiffUniverse(previous, current []TickerSymbol) UniverseDiff {
	prev := make(map[TickerSymbol]struct{}, len(previous))
	for _, s := range previous {
		prev[s] = struct{}{}
	}
	cur := make(map[TickerSymbol]struct{}, len(current))
	for _, s := range current {
		cur[s] = struct{}{}
	}

	d := UniverseDiff{Added: []TickerSymbol{}, Removed: []TickerSymbol{}}
	for s := range cur {
		if _, ok := prev[s]; !ok {
			d.Added = append(d.Added, s)
		}
	}
	for s := range prev {
		if _, ok := cur[s]; !ok {
			d.Removed = append(d.Removed, s)
		}
	}
	SortSymbols(d.Added)
	SortSymbols(d.Removed)
	d.TotalAdded = len(d.Added)
	d.TotalRemoved = len(d.Removed)
	d.NetChange = d.TotalAdded - d.TotalRemoved
	d.TotalTickers = len(cur)
	return d
}
