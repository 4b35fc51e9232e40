package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tsubaki-chat/backend/internal/dispatch"
	"github.com/tsubaki-chat/backend/internal/repository"
)

// DispatchHandler is the operator surface: manual worker runs, wakeup
// configuration, queue health and the trace ledger.
type DispatchHandler struct {
	worker    dispatch.WorkerRunner
	scheduler *dispatch.Scheduler
	monitor   *dispatch.HealthMonitor
	traces    repository.DeliveryTraceRepository
}

func NewDispatchHandler(worker dispatch.WorkerRunner, scheduler *dispatch.Scheduler, monitor *dispatch.HealthMonitor, traces repository.DeliveryTraceRepository) *DispatchHandler {
	return &DispatchHandler{
		worker:    worker,
		scheduler: scheduler,
		monitor:   monitor,
		traces:    traces,
	}
}

type RunRequest struct {
	Mode    string `json:"mode"`
	MaxJobs int    `json:"maxJobs"`
}

// Run invokes the worker directly, bypassing the debounce gate. Operator use
// only; routine triggers go through the scheduler.
func (h *DispatchHandler) Run(c echo.Context) error {
	var in RunRequest
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	mode, err := dispatch.ParseMode(in.Mode)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", err.Error()))
	}
	if mode == dispatch.ModeCron {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "cron runs are scheduler-driven"))
	}
	stats, err := h.worker.Run(c.Request().Context(), in.MaxJobs, mode)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("run_failed", err.Error()))
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *DispatchHandler) GetWakeupConfig(c echo.Context) error {
	cfg, err := h.scheduler.Config(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to load wakeup config"))
	}
	return c.JSON(http.StatusOK, cfg)
}

func (h *DispatchHandler) UpdateWakeupConfig(c echo.Context) error {
	var patch dispatch.ConfigPatch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	cfg, err := h.scheduler.UpdateConfig(c.Request().Context(), patch)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "wakeup config not found"))
		}
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", err.Error()))
	}
	return c.JSON(http.StatusOK, cfg)
}

func (h *DispatchHandler) Health(c echo.Context) error {
	report, err := h.monitor.Snapshot(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to compute queue health"))
	}
	return c.JSON(http.StatusOK, report)
}

func (h *DispatchHandler) ListTraces(c echo.Context) error {
	limit := 50
	if lStr := c.QueryParam("limit"); lStr != "" {
		if lParsed, err := strconv.Atoi(lStr); err == nil && lParsed > 0 {
			limit = lParsed
		}
	}
	filter := repository.TraceFilter{
		Stage:     c.QueryParam("stage"),
		Transport: c.QueryParam("transport"),
	}
	if rStr := c.QueryParam("recipientId"); rStr != "" {
		rid, err := strconv.ParseUint(rStr, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid recipientId"))
		}
		filter.RecipientID = &rid
	}
	list, err := h.traces.List(c.Request().Context(), filter, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to list traces"))
	}
	return c.JSON(http.StatusOK, NewListResponse(list, len(list)))
}

// TraceParity groups recent server-side traces by wake source and reason
// code; shadow counts diverging from cron/wakeup counts flag scheduler drift.
func (h *DispatchHandler) TraceParity(c echo.Context) error {
	minutes := 60
	if mStr := c.QueryParam("sinceMinutes"); mStr != "" {
		if mParsed, err := strconv.Atoi(mStr); err == nil && mParsed > 0 {
			minutes = mParsed
		}
	}
	since := time.Now().Add(-time.Duration(minutes) * time.Minute)
	counts, err := h.traces.CountByWakeSourceAndReason(c.Request().Context(), since)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to compute parity counts"))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sinceMinutes": minutes,
		"counts":       counts,
	})
}
