package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StockPipe/internal/domain/models"
	"StockPipe/internal/domain/repository"
	"StockPipe/internal/service/ratelimit"
	"StockPipe/pkg/logger"
	"StockPipe/pkg/metrics"
	"StockPipe/pkg/util"
)

// Config holds retry policy for the fetch client.
type Config struct {
	// RetryAttempts is the number of retries per provider after the first attempt.
	RetryAttempts    int
	MaxRateLimitHits int
	Backoff          ratelimit.Backoff
}

// Option configures Client.
type Option func(*Client)

// WithSleeper replaces the wall clock sleeper.
func WithSleeper(s ratelimit.Sleeper) Option {
	return func(c *Client) {
		c.sleeper = s
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// Client fetches daily bars through an ordered provider list with shared rate
// limiting, per-provider retries and fallback.
type Client struct {
	providers []repository.PriceProvider
	limiter   *ratelimit.Limiter
	cfg       Config
	sleeper   ratelimit.Sleeper
	metrics   repository.Metrics
	log       *logger.Logger
}

// NewClient creates a fetch client. providers are tried in order.
func NewClient(providers []repository.PriceProvider, limiter *ratelimit.Limiter, cfg Config, opts ...Option) (*Client, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("limiter is required")
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	if cfg.MaxRateLimitHits < 1 {
		cfg.MaxRateLimitHits = 1
	}
	c := &Client{
		providers: providers,
		limiter:   limiter,
		cfg:       cfg,
		sleeper:   ratelimit.RealSleeper,
		metrics:   metrics.Nop{},
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Limiter exposes the shared limiter so the run owner can reset and read it.
func (c *Client) Limiter() *ratelimit.Limiter { return c.limiter }

// Fetch returns the sorted, unique bars of ticker within [start, end].
func (c *Client) Fetch(ctx context.Context, ticker models.TickerSymbol, start, end time.Time) ([]models.PriceBar, error) {
	start, end = util.DateOnly(start), util.DateOnly(end)
	if end.Before(start) {
		return nil, models.NewPermanentErrorf("fetch", "start %s after end %s", util.FormatDate(start), util.FormatDate(end)).
			WithTicker(ticker.String())
	}

	span := end.Sub(start)
	hits := 0
	var lastErr error
	for _, p := range c.providers {
		if limit := p.MaxLookback(); limit > 0 && span > limit {
			lastErr = models.NewPermanentErrorf("fetch", "range of %d days exceeds %s lookback", util.DaysBetween(start, end)+1, p.Name()).
				WithTicker(ticker.String())
			continue
		}

		bars, err := c.fetchProvider(ctx, p, ticker, start, end, &hits)
		if err == nil {
			return models.ClipBars(models.NormalizeBars(bars), start, end), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if models.KindOrDefault(err, models.KindTransient) == models.KindPermanent {
			return nil, err
		}
		lastErr = err
		c.log.Warn("provider exhausted, falling back",
			logger.String("provider", p.Name()),
			logger.String("ticker", ticker.String()),
			logger.Error(err),
		)
	}
	if lastErr == nil {
		return nil, models.NewPermanentError("fetch", "no provider available").WithTicker(ticker.String())
	}
	if models.KindOrDefault(lastErr, models.KindTransient) != models.KindPermanent {
		lastErr = models.NewPermanentError("fetch", "retry budget exhausted on every provider").
			WithTicker(ticker.String()).WithError(lastErr)
	}
	return nil, lastErr
}

// fetchProvider runs the retry loop against one provider. hits counts
// rate-limit responses for the ticker across providers.
func (c *Client) fetchProvider(ctx context.Context, p repository.PriceProvider, ticker models.TickerSymbol, start, end time.Time, hits *int) ([]models.PriceBar, error) {
	name := p.Name()
	transient := 0
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		begin := time.Now()
		bars, err := p.FetchBars(ctx, ticker, start, end)
		c.metrics.RecordLatency("fetch_"+name, time.Since(begin).Seconds())
		if err == nil {
			c.limiter.RecordSuccess()
			c.metrics.RecordFetch(name, "success")
			return bars, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var delay time.Duration
		kind := models.KindOrDefault(err, models.KindTransient)
		switch kind {
		case models.KindRateLimit:
			*hits++
			c.metrics.RecordFetch(name, "rate_limited")
			c.metrics.RecordRateLimitHit(name)
			if *hits >= c.cfg.MaxRateLimitHits {
				c.limiter.RecordRateLimit(0)
				return nil, models.NewPermanentErrorf("fetch", "abandoned after %d rate limit hits", *hits).
					WithTicker(ticker.String()).WithError(err)
			}
			if attempt >= c.cfg.RetryAttempts {
				// Retry budget spent; fall back without sleeping.
				c.limiter.RecordRateLimit(0)
				return nil, err
			}
			delay = c.cfg.Backoff.Delay(*hits)
			if ra := retryAfter(err); ra > delay {
				delay = ra
				if c.cfg.Backoff.Max > 0 && delay > c.cfg.Backoff.Max {
					delay = c.cfg.Backoff.Max
				}
			}
			c.limiter.RecordRateLimit(delay)
		case models.KindTransient:
			transient++
			c.metrics.RecordFetch(name, "transient")
			if attempt >= c.cfg.RetryAttempts {
				c.limiter.RecordFailure(0)
				return nil, err
			}
			delay = c.cfg.Backoff.Delay(transient)
			c.limiter.RecordFailure(delay)
		default:
			c.metrics.RecordFetch(name, "permanent")
			c.limiter.RecordFailure(0)
			return nil, err
		}

		c.log.Debug("backing off",
			logger.String("provider", name),
			logger.String("ticker", ticker.String()),
			logger.String("kind", string(kind)),
			logger.Int("attempt", attempt+1),
			logger.Duration("delay", delay),
		)
		if err := c.sleep(ctx, name, delay); err != nil {
			return nil, err
		}
	}
}

func (c *Client) sleep(ctx context.Context, provider string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if err := c.sleeper.Sleep(ctx, d); err != nil {
		return err
	}
	c.limiter.AddSleep(d)
	c.metrics.RecordBackoff(provider, d.Seconds())
	return nil
}

func retryAfter(err error) time.Duration {
	var pe *models.PipelineError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}
