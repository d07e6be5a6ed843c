package alphavantage

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"StockPipe/internal/domain/models"
	"StockPipe/internal/service/provider"
	xhttp "StockPipe/pkg/http"
	"StockPipe/pkg/util"

	"github.com/shopspring/decimal"
)

const Name = "alphavantage"

// compactDays is how far back the compact output (100 trading days) safely reaches.
const compactDays = 130

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

func WithMaxLookbackDays(days int) Option {
	return func(c *Client) {
		c.lookback = provider.Days(days)
	}
}

// WithClock overrides today's date, used to pick the output size.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// Client reads TIME_SERIES_DAILY from Alpha Vantage.
type Client struct {
	http     *xhttp.Client
	apiKey   string
	baseURL  string
	lookback time.Duration
	now      func() time.Time
}

func New(httpClient *xhttp.Client, apiKey string, opts ...Option) *Client {
	c := &Client{
		http:     httpClient,
		apiKey:   apiKey,
		baseURL:  "https://www.alphavantage.co/query",
		lookback: provider.Days(7300),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

func (c *Client) MaxLookback() time.Duration { return c.lookback }

type dailyResponse struct {
	Note         string                     `json:"Note"`
	Information  string                     `json:"Information"`
	ErrorMessage string                     `json:"Error Message"`
	Series       map[string]json.RawMessage `json:"Time Series (Daily)"`
}

type dailyBar struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

func (c *Client) FetchBars(ctx context.Context, ticker models.TickerSymbol, start, end time.Time) ([]models.PriceBar, error) {
	outputSize := "compact"
	if util.DaysBetween(start, c.now()) > compactDays {
		outputSize = "full"
	}

	var resp dailyResponse
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL,
		QueryParams: map[string][]string{
			"function":   {"TIME_SERIES_DAILY"},
			"symbol":     {ticker.String()},
			"outputsize": {outputSize},
			"datatype":   {"json"},
			"apikey":     {c.apiKey},
		},
	}, &resp)
	if err != nil {
		return nil, provider.ClassifyHTTPError("alphavantage.daily", ticker, err)
	}
	return parseDaily(ticker, &resp, util.DateOnly(start), util.DateOnly(end))
}

// parseDaily reads the series; throttling and bad symbols are reported in the
// body with a 200 status.
func parseDaily(ticker models.TickerSymbol, resp *dailyResponse, start, end time.Time) ([]models.PriceBar, error) {
	switch {
	case resp.Note != "":
		return nil, models.NewRateLimitError("alphavantage.daily", resp.Note).WithTicker(ticker.String())
	case resp.Information != "":
		if strings.Contains(strings.ToLower(resp.Information), "rate limit") ||
			strings.Contains(strings.ToLower(resp.Information), "call frequency") {
			return nil, models.NewRateLimitError("alphavantage.daily", resp.Information).WithTicker(ticker.String())
		}
		return nil, models.NewPermanentError("alphavantage.daily", resp.Information).WithTicker(ticker.String())
	case resp.ErrorMessage != "":
		return nil, models.NewPermanentError("alphavantage.daily", resp.ErrorMessage).WithTicker(ticker.String())
	case resp.Series == nil:
		return nil, models.NewTransientError("alphavantage.daily", "response has no time series").WithTicker(ticker.String())
	}

	bars := make([]models.PriceBar, 0, len(resp.Series))
	for ds, raw := range resp.Series {
		d, err := time.Parse(util.DateLayout, ds)
		if err != nil || d.Before(start) || d.After(end) {
			continue
		}
		var row dailyBar
		if err := json.Unmarshal(raw, &row); err != nil {
			continue
		}
		bar, ok := row.toBar(d)
		if !ok {
			continue
		}
		bars = append(bars, bar)
	}
	return models.NormalizeBars(bars), nil
}

func (b dailyBar) toBar(d time.Time) (models.PriceBar, bool) {
	vals := make([]float64, 5)
	for i, s := range []string{b.Open, b.High, b.Low, b.Close, b.Volume} {
		v, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return models.PriceBar{}, false
		}
		vals[i] = v.InexactFloat64()
	}
	return models.PriceBar{Date: d, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]}, true
}
