package api

import (
	"context"
	"time"

	"StockPipe/internal/domain/models"
	xhttp "StockPipe/pkg/http"
	xlogger "StockPipe/pkg/logger"
	"StockPipe/pkg/util"

	"github.com/labstack/echo/v4"
)

// RunReader reads persisted run artifacts.
type RunReader interface {
	LatestRun(ctx context.Context) (*models.RunMetadata, error)
	LatestFeatureRun(ctx context.Context) (*models.FeatureRunMetadata, error)
	Errors(ctx context.Context, stage string, date time.Time) ([]models.ErrorRecord, error)
}

// UniverseReader reads persisted universe snapshots.
type UniverseReader interface {
	LatestSnapshot(ctx context.Context, before time.Time) (*models.UniverseSnapshot, error)
	ReadDiff(ctx context.Context, date time.Time) (*models.UniverseDiff, error)
}

// StatusEchoHandler serves read-only pipeline status.
type StatusEchoHandler struct {
	logger   *xlogger.Logger
	runs     RunReader
	universe UniverseReader
	storage  string
	now      func() time.Time
}

func NewStatusEchoHandler(logger *xlogger.Logger, runs RunReader, universe UniverseReader, storageType string) *StatusEchoHandler {
	return &StatusEchoHandler{logger: logger, runs: runs, universe: universe, storage: storageType, now: time.Now}
}

func (h *StatusEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	g := e.Group("/api")
	g.GET("/runs/latest", h.LatestRuns)
	g.GET("/runs/:stage/:date/errors", h.RunErrors)
	g.GET("/universe/latest", h.LatestUniverse)
}

// Health reports liveness plus the newest acquisition run when readable.
func (h *StatusEchoHandler) Health(c echo.Context) error {
	res := xhttp.HealthResponse{Status: "ok", Storage: h.storage}
	run, err := h.runs.LatestRun(c.Request().Context())
	if err != nil {
		h.logger.Warn("health: read latest run", xlogger.Error(err))
		res.Status = "degraded"
	} else if run != nil {
		res.LastRun = run.RunDate
		res.LastState = string(run.Status)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *StatusEchoHandler) LatestRuns(c echo.Context) error {
	ctx := c.Request().Context()
	run, err := h.runs.LatestRun(ctx)
	if err != nil {
		h.logger.Error("latest run", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("read latest run").WithError(err))
	}
	feat, err := h.runs.LatestFeatureRun(ctx)
	if err != nil {
		h.logger.Error("latest feature run", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("read latest feature run").WithError(err))
	}
	if run == nil && feat == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no runs recorded"))
	}
	return xhttp.SuccessResponse(c, models.LatestRunsResponse{Acquisition: run, Features: feat})
}

func (h *StatusEchoHandler) RunErrors(c echo.Context) error {
	req := &models.RunErrorsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	date, _ := util.ParseDate(req.Date)
	errs, err := h.runs.Errors(c.Request().Context(), req.Stage, date)
	if err != nil {
		h.logger.Error("run errors", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("read run errors").WithError(err))
	}
	if errs == nil {
		errs = []models.ErrorRecord{}
	}
	return xhttp.SuccessResponse(c, errs)
}

func (h *StatusEchoHandler) LatestUniverse(c echo.Context) error {
	req := &models.UniverseRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	snap, err := h.universe.LatestSnapshot(ctx, util.AddDays(util.DateOnly(h.now()), 1))
	if err != nil {
		h.logger.Error("latest universe", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("read universe").WithError(err))
	}
	if snap == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no universe snapshot"))
	}
	diff, err := h.universe.ReadDiff(ctx, snap.Date)
	if err != nil {
		h.logger.Warn("universe diff", xlogger.Error(err))
	}

	symbols := snap.Symbols
	if len(symbols) > req.Limit {
		symbols = symbols[:req.Limit]
	}
	return xhttp.CachedResponse(c, time.Minute, models.UniverseResponse{
		Date:    util.FormatDate(snap.Date),
		Total:   len(snap.Symbols),
		Symbols: symbols,
		Diff:    diff,
	})
}
