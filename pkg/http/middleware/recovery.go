package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"StockPipe/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover logs a handler panic with its stack and answers 500 unless the
// handler already started writing.
func Recover(l *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				perr, ok := r.(error)
				if !ok {
					perr = fmt.Errorf("%v", r)
				}
				l.Error("status handler panic",
					logger.Error(perr),
					logger.String("method", c.Request().Method),
					logger.String("route", c.Path()),
					logger.String("stack", string(debug.Stack())),
				)
				if c.Response().Committed {
					return
				}
				c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
				err = c.JSON(http.StatusInternalServerError, map[string]any{
					"status":  http.StatusInternalServerError,
					"message": http.StatusText(http.StatusInternalServerError),
				})
			}()
			return next(c)
		}
	}
}
