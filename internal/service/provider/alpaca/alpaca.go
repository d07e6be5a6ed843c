package alpaca

import (
	"context"
	"strings"
	"time"

	"StockPipe/internal/domain/models"
	"StockPipe/internal/service/provider"
	"StockPipe/pkg/util"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

const Name = "alpaca"

// barsGetter is the part of marketdata.Client the provider uses.
type barsGetter interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// Config holds Alpaca credentials and feed selection.
type Config struct {
	APIKey          string
	APISecret       string
	BaseURL         string
	Feed            string
	MaxLookbackDays int
}

// Client reads daily bars from the Alpaca market data API.
type Client struct {
	bars     barsGetter
	feed     marketdata.Feed
	lookback time.Duration
}

func New(cfg Config) *Client {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.BaseURL != "" {
		opts.BaseURL = cfg.BaseURL
	}
	return newWithGetter(marketdata.NewClient(opts), cfg)
}

func newWithGetter(g barsGetter, cfg Config) *Client {
	var feed marketdata.Feed = marketdata.IEX
	if strings.EqualFold(cfg.Feed, "sip") {
		feed = marketdata.SIP
	}
	lookback := provider.Days(2555)
	if cfg.MaxLookbackDays > 0 {
		lookback = provider.Days(cfg.MaxLookbackDays)
	}
	return &Client{bars: g, feed: feed, lookback: lookback}
}

func (c *Client) Name() string { return Name }

func (c *Client) MaxLookback() time.Duration { return c.lookback }

// FetchBars requests daily bars. The API end bound is exclusive for daily
// bars so one day is added.
func (c *Client) FetchBars(ctx context.Context, ticker models.TickerSymbol, start, end time.Time) ([]models.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := c.bars.GetBars(ticker.String(), marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     util.DateOnly(start),
		End:       util.AddDays(end, 1),
		Feed:      c.feed,
	})
	if err != nil {
		return nil, classify(ticker, err)
	}

	bars := make([]models.PriceBar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, models.PriceBar{
			Date:   util.DateOnly(b.Timestamp.UTC()),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		})
	}
	return bars, nil
}

// classify inspects the SDK error text; the SDK reports HTTP failures as
// formatted errors carrying the status code.
func classify(ticker models.TickerSymbol, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "rate limit"):
		return models.NewRateLimitError("alpaca.bars", "provider throttled request").WithTicker(ticker.String()).WithError(err)
	case strings.Contains(msg, "404") || strings.Contains(msg, "not found") || strings.Contains(msg, "invalid symbol"):
		return models.NewPermanentError("alpaca.bars", "symbol not found").WithTicker(ticker.String()).WithError(err)
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "forbidden"):
		return models.NewPermanentError("alpaca.bars", "request rejected").WithTicker(ticker.String()).WithError(err)
	default:
		return provider.ClassifyHTTPError("alpaca.bars", ticker, err)
	}
}
