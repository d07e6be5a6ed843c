// Package provider holds the market data provider adapters and the error
// classification they share.
package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"StockPipe/internal/domain/models"
	xhttp "StockPipe/pkg/http"
)

// ClassifyHTTPError maps a transport or status failure onto the pipeline
// taxonomy. Unknown failures are transient.
func ClassifyHTTPError(op string, ticker models.TickerSymbol, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if se, ok := xhttp.AsStatusError(err); ok {
		switch {
		case se.StatusCode == http.StatusTooManyRequests:
			return models.NewRateLimitError(op, "provider throttled request").
				WithTicker(ticker.String()).WithRetryAfter(se.RetryAfter).WithError(err)
		case se.StatusCode == http.StatusNotFound:
			return models.NewPermanentError(op, "symbol not found").WithTicker(ticker.String()).WithError(err)
		case se.Temporary() || se.StatusCode == http.StatusRequestTimeout:
			return models.NewTransientError(op, "provider unavailable").WithTicker(ticker.String()).WithError(err)
		default:
			return models.NewPermanentError(op, "request rejected").WithTicker(ticker.String()).WithError(err)
		}
	}
	if _, ok := models.KindOf(err); ok {
		return err
	}
	return models.NewTransientError(op, "request failed").WithTicker(ticker.String()).WithError(err)
}

// Days converts a lookback in days to a duration.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
