package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// DataResponse writes the envelope with data.
func DataResponse(c echo.Context, statusCode int, data any) error {
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

// SuccessResponse writes a 200 envelope.
func SuccessResponse(c echo.Context, data any) error {
	return DataResponse(c, http.StatusOK, data)
}

// CachedResponse writes a 200 envelope that clients may reuse for maxAge.
// Status data only changes once per run, so short client caching is safe.
func CachedResponse(c echo.Context, maxAge time.Duration, data any) error {
	c.Response().Header().Set(echo.HeaderCacheControl, fmt.Sprintf("private, max-age=%d", int(maxAge.Seconds())))
	return SuccessResponse(c, data)
}

// ErrorResponse writes an envelope whose details go to errors. Error
// responses are never cached.
func ErrorResponse(c echo.Context, statusCode int, details any) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Errors:  details,
	})
}

// BadRequestResponse writes validation details with a 400.
func BadRequestResponse(c echo.Context, details any) error {
	return ErrorResponse(c, http.StatusBadRequest, details)
}

// AppErrorResponse maps err to its status. Anything that is not an *AppError
// is a 500 without detail.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return ErrorResponse(c, appErr.Status, []*AppError{appErr})
	}
	return ErrorResponse(c, http.StatusInternalServerError, []*AppError{InternalError("something went wrong")})
}
