package models

import (
	"sort"
	"time"

	"StockPipe/pkg/util"
)

// PriceBar is one trading day of OHLCV data. Date is always midnight UTC.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

type HistoricalSeries struct {
	Ticker TickerSymbol
	Bars   []PriceBar
}

// Latest returns the date of the newest bar.
func (s HistoricalSeries) Latest() (time.Time, bool) {
	if len(s.Bars) == 0 {
		return time.Time{}, false
	}
	return s.Bars[len(s.Bars)-1].Date, true
}

func (s HistoricalSeries) Len() int { return len(s.Bars) }

// FetchRequest is the inclusive date range gap detection asks a provider for.
type FetchRequest struct {
	Ticker TickerSymbol
	Start  time.Time
	End    time.Time
	Full   bool // bootstrap or forced refetch
}

// Empty reports whether there is nothing to fetch.
func (r FetchRequest) Empty() bool { return r.Start.After(r.End) }

// Days is the inclusive number of calendar days in the request.
func (r FetchRequest) Days() int {
	if r.Empty() {
		return 0
	}
	return util.DaysBetween(r.Start, r.End) + 1
}

// NormalizeBars truncates dates, sorts ascending and keeps the last bar seen
// for any duplicated date.
func NormalizeBars(bars []PriceBar) []PriceBar {
	if len(bars) == 0 {
		return nil
	}
	byDate := make(map[time.Time]PriceBar, len(bars))
	for _, b := range bars {
		b.Date = util.DateOnly(b.Date)
		byDate[b.Date] = b
	}
	out := make([]PriceBar, 0, len(byDate))
	for _, b := range byDate {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// MergeBars merges incoming bars into an existing sorted series and returns a
// new slice. Incoming bars supersede existing ones on the same date. Neither
// input is modified.
func MergeBars(existing, incoming []PriceBar) []PriceBar {
	in := NormalizeBars(incoming)
	out := make([]PriceBar, 0, len(existing)+len(in))
	i, j := 0, 0
	for i < len(existing) && j < len(in) {
		e, n := existing[i], in[j]
		switch {
		case e.Date.Before(n.Date):
			out = append(out, e)
			i++
		case n.Date.Before(e.Date):
			out = append(out, n)
			j++
		default:
			out = append(out, n)
			i++
			j++
		}
	}
	out = append(out, existing[i:]...)
	out = append(out, in[j:]...)
	return out
}

// IsStrictlyIncreasing reports whether dates are unique and ascending.
func IsStrictlyIncreasing(bars []PriceBar) bool {
	for i := 1; i < len(bars); i++ {
		if !bars[i-1].Date.Before(bars[i].Date) {
			return false
		}
	}
	return true
}

// BarsEqual compares two series value by value.
func BarsEqual(a, b []PriceBar) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Date.Equal(b[i].Date) ||
			a[i].Open != b[i].Open || a[i].High != b[i].High ||
			a[i].Low != b[i].Low || a[i].Close != b[i].Close ||
			a[i].Volume != b[i].Volume {
			return false
		}
	}
	return true
}

// GroupByYear splits bars by calendar year, preserving order.
func GroupByYear(bars []PriceBar) map[int][]PriceBar {
	out := make(map[int][]PriceBar)
	for _, b := range bars {
		y := b.Date.Year()
		out[y] = append(out[y], b)
	}
	return out
}

// ClipBars keeps bars within [start, end] inclusive.
func ClipBars(bars []PriceBar, start, end time.Time) []PriceBar {
	out := bars[:0:0]
	for _, b := range bars {
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}
