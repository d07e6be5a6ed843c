package middleware

import (
	"time"

	"StockPipe/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs every request at debug level and slow or failed ones at warn.
func RequestLogging(l *logger.Logger, slow time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			latency := time.Since(start)
			fields := []logger.Field{
				logger.String("method", c.Request().Method),
				logger.String("route", c.Path()),
				logger.Int("status", c.Response().Status),
				logger.Duration("latency_ms", latency),
			}
			switch {
			case c.Response().Status >= 500:
				l.Warn("http request failed", fields...)
			case slow > 0 && latency >= slow:
				l.Warn("http request slow", fields...)
			default:
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}
