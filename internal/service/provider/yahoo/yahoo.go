package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"StockPipe/internal/domain/models"
	"StockPipe/internal/service/provider"
	xhttp "StockPipe/pkg/http"
	"StockPipe/pkg/util"
)

const Name = "yahoo"

// Option configures Client.
type Option func(*Client)

// WithBaseURL overrides the chart API host.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithMaxLookbackDays sets the longest range one request may span.
func WithMaxLookbackDays(days int) Option {
	return func(c *Client) {
		c.lookback = provider.Days(days)
	}
}

// Client reads daily bars from the Yahoo Finance chart API.
type Client struct {
	http     *xhttp.Client
	baseURL  string
	lookback time.Duration
}

func New(httpClient *xhttp.Client, opts ...Option) *Client {
	c := &Client{
		http:     httpClient,
		baseURL:  "https://query1.finance.yahoo.com",
		lookback: provider.Days(3650),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

func (c *Client) MaxLookback() time.Duration { return c.lookback }

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		GMTOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// FetchBars requests [start, end] inclusive. Rows with a missing field are
// skipped.
func (c *Client) FetchBars(ctx context.Context, ticker models.TickerSymbol, start, end time.Time) ([]models.PriceBar, error) {
	var resp chartResponse
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/v8/finance/chart/" + url.PathEscape(ticker.String()),
		QueryParams: map[string][]string{
			"period1":  {strconv.FormatInt(util.DateOnly(start).Unix(), 10)},
			"period2":  {strconv.FormatInt(util.AddDays(end, 1).Unix(), 10)},
			"interval": {"1d"},
			"events":   {"history"},
		},
		Headers: map[string]string{"Accept": "application/json"},
	}, &resp)
	if err != nil {
		return nil, provider.ClassifyHTTPError("yahoo.chart", ticker, err)
	}
	return parseChart(ticker, &resp)
}

func parseChart(ticker models.TickerSymbol, resp *chartResponse) ([]models.PriceBar, error) {
	if e := resp.Chart.Error; e != nil {
		if strings.EqualFold(e.Code, "Not Found") {
			return nil, models.NewPermanentError("yahoo.chart", e.Description).WithTicker(ticker.String())
		}
		return nil, models.NewTransientError("yahoo.chart", fmt.Sprintf("%s: %s", e.Code, e.Description)).
			WithTicker(ticker.String())
	}
	if len(resp.Chart.Result) == 0 {
		return nil, models.NewPermanentError("yahoo.chart", "empty result").WithTicker(ticker.String())
	}

	r := resp.Chart.Result[0]
	if len(r.Indicators.Quote) == 0 || len(r.Timestamp) == 0 {
		return nil, nil
	}
	q := r.Indicators.Quote[0]
	n := len(r.Timestamp)
	if len(q.Open) < n || len(q.High) < n || len(q.Low) < n || len(q.Close) < n || len(q.Volume) < n {
		return nil, models.NewTransientError("yahoo.chart", "quote arrays shorter than timestamps").
			WithTicker(ticker.String())
	}

	bars := make([]models.PriceBar, 0, n)
	for i, ts := range r.Timestamp {
		if q.Open[i] == nil || q.High[i] == nil || q.Low[i] == nil || q.Close[i] == nil {
			continue
		}
		vol := 0.0
		if q.Volume[i] != nil {
			vol = *q.Volume[i]
		}
		bars = append(bars, models.PriceBar{
			Date:   util.DateOnly(time.Unix(ts+r.Meta.GMTOffset, 0).UTC()),
			Open:   *q.Open[i],
			High:   *q.High[i],
			Low:    *q.Low[i],
			Close:  *q.Close[i],
			Volume: vol,
		})
	}
	return bars, nil
}
