package alpaca

import (
	"context"
	"errors"
	"testing"
	"time"

	"StockPipe/internal/domain/models"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

type fakeBars struct {
	req  marketdata.GetBarsRequest
	bars []marketdata.Bar
	err  error
}

func (f *fakeBars) GetBars(_ string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.req = req
	return f.bars, f.err
}

func TestFetchBarsConverts(t *testing.T) {
	f := &fakeBars{bars: []marketdata.Bar{
		{Timestamp: time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
	}}
	c := newWithGetter(f, Config{Feed: "iex"})
	start, end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	bars, err := c.FetchBars(context.Background(), "AAA", start, end)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(bars) != 1 || bars[0].Volume != 100 || bars[0].Date.Hour() != 0 {
		t.Fatalf("unexpected bars %+v", bars)
	}
	if !f.req.End.Equal(end.AddDate(0, 0, 1)) {
		t.Fatalf("end should be exclusive, got %s", f.req.End)
	}
	if f.req.TimeFrame != marketdata.OneDay {
		t.Fatalf("timeframe = %v", f.req.TimeFrame)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want models.ErrorKind
	}{
		{errors.New("status code 429: too many requests"), models.KindRateLimit},
		{errors.New("status code 404: not found"), models.KindPermanent},
		{errors.New("status code 403: forbidden"), models.KindPermanent},
		{errors.New("connection reset by peer"), models.KindTransient},
	}
	for _, tt := range tests {
		if kind, _ := models.KindOf(classify("AAA", tt.err)); kind != tt.want {
			t.Fatalf("%v: kind = %v, want %v", tt.err, kind, tt.want)
		}
	}
}
