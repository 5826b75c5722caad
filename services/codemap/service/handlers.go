// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package service

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/LunarLaurus/codebuddy/services/codemap/diag"
	"github.com/LunarLaurus/codebuddy/services/codemap/search"
	"github.com/LunarLaurus/codebuddy/services/codemap/store"
	"github.com/LunarLaurus/codebuddy/services/codemap/views"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// SaveSnapshotRequest is the POST /snapshots body.
type SaveSnapshotRequest struct {
	Label string `json:"label" binding:"omitempty,max=128"`
}

// RunToolRequest is the POST /tools/:name body.
type RunToolRequest struct {
	Params map[string]any `json:"params"`
}

// Handlers serves the /v1/map endpoints.
type Handlers struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandlers creates the handlers.
func NewHandlers(svc *Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{svc: svc, logger: logger}
}

// noBuild writes the 409 every query shares before the first build.
func (h *Handlers) noBuild(c *gin.Context) {
	c.JSON(http.StatusConflict, ErrorResponse{
		Error: "no build available; POST /v1/map/build first",
		Code:  "NO_BUILD",
	})
}

// HandleHealth handles GET /v1/map/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	_, err := h.svc.Current()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"root":      h.svc.Root(),
		"has_build": err == nil,
	})
}

// HandleBuild handles POST /v1/map/build.
//
// Runs a full rebuild synchronously and returns its stats. Concurrent
// requests serialize on the pipeline's internal mutex.
func (h *Handlers) HandleBuild(c *gin.Context) {
	stats, err := h.svc.Build(c.Request.Context())
	if err != nil {
		h.logger.Error("Build failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "BUILD_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HandleOverview handles GET /v1/map/overview.
func (h *Handlers) HandleOverview(c *gin.Context) {
	report, err := h.svc.Report()
	if err != nil {
		h.noBuild(c)
		return
	}
	c.JSON(http.StatusOK, report)
}

// HandleSymbol handles GET /v1/map/symbols/:name.
func (h *Handlers) HandleSymbol(c *gin.Context) {
	result, err := h.svc.Current()
	if err != nil {
		h.noBuild(c)
		return
	}
	sym, err := result.Projector.Resolve(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "SYMBOL_NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, sym)
}

// HandleFindSymbols handles GET /v1/map/symbols?q=...&limit=N.
func (h *Handlers) HandleFindSymbols(c *gin.Context) {
	result, err := h.svc.Current()
	if err != nil {
		h.noBuild(c)
		return
	}
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "q parameter is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}
	limit := queryInt(c, "limit", 20)
	c.JSON(http.StatusOK, gin.H{
		"query":   query,
		"matches": search.Find(result.Table, query, limit),
	})
}

// HandleFunction handles GET /v1/map/functions/:name.
func (h *Handlers) HandleFunction(c *gin.Context) {
	result, err := h.svc.Current()
	if err != nil {
		h.noBuild(c)
		return
	}
	view, err := result.Projector.FunctionView(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "SYMBOL_NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, view)
}

// HandleCallers handles GET /v1/map/functions/:name/callers.
func (h *Handlers) HandleCallers(c *gin.Context) {
	h.handleRelation(c, func(p *views.Projector, name string) (any, error) {
		return p.CallersOf(name)
	})
}

// HandleCallees handles GET /v1/map/functions/:name/callees.
func (h *Handlers) HandleCallees(c *gin.Context) {
	h.handleRelation(c, func(p *views.Projector, name string) (any, error) {
		return p.CalleesOf(name)
	})
}

func (h *Handlers) handleRelation(c *gin.Context, query func(*views.Projector, string) (any, error)) {
	result, err := h.svc.Current()
	if err != nil {
		h.noBuild(c)
		return
	}
	symbols, err := query(result.Projector, c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "SYMBOL_NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "symbols": symbols})
}

// HandleDiagnostics handles GET /v1/map/diagnostics.
func (h *Handlers) HandleDiagnostics(c *gin.Context) {
	result, err := h.svc.Current()
	if err != nil {
		h.noBuild(c)
		return
	}
	items := result.Diagnostics.Items()
	counts := make(map[string]int)
	for code, n := range result.Diagnostics.Counts() {
		counts[string(code)] = n
	}
	if code := c.Query("code"); code != "" {
		filtered := make([]diag.Diagnostic, 0)
		for _, d := range items {
			if string(d.Code) == code {
				filtered = append(filtered, d)
			}
		}
		items = filtered
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts, "diagnostics": items})
}

// HandleListTools handles GET /v1/map/tools.
func (h *Handlers) HandleListTools(c *gin.Context) {
	registry, err := h.svc.Tools()
	if err != nil {
		h.noBuild(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tools": registry.Definitions()})
}

// HandleRunTool handles POST /v1/map/tools/:name.
func (h *Handlers) HandleRunTool(c *gin.Context) {
	registry, err := h.svc.Tools()
	if err != nil {
		h.noBuild(c)
		return
	}
	var req RunToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}
	result, err := registry.Execute(c.Request.Context(), c.Param("name"), req.Params)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "UNKNOWN_TOOL",
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleSaveSnapshot handles POST /v1/map/snapshots.
func (h *Handlers) HandleSaveSnapshot(c *gin.Context) {
	snapshots, err := h.svc.Snapshots()
	if err != nil {
		h.snapshotsUnavailable(c, err)
		return
	}
	var req SaveSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}
	payload, err := h.svc.Payload()
	if err != nil {
		h.noBuild(c)
		return
	}
	meta, err := snapshots.Save(c.Request.Context(), payload, req.Label)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "SNAPSHOT_SAVE_FAILED",
		})
		return
	}
	c.JSON(http.StatusCreated, meta)
}

// HandleListSnapshots handles GET /v1/map/snapshots.
func (h *Handlers) HandleListSnapshots(c *gin.Context) {
	snapshots, err := h.svc.Snapshots()
	if err != nil {
		h.snapshotsUnavailable(c, err)
		return
	}
	list, err := snapshots.List(c.Request.Context(), h.svc.Root())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "SNAPSHOT_LIST_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": list})
}

// HandleGetSnapshot handles GET /v1/map/snapshots/:id.
func (h *Handlers) HandleGetSnapshot(c *gin.Context) {
	snapshots, err := h.svc.Snapshots()
	if err != nil {
		h.snapshotsUnavailable(c, err)
		return
	}
	payload, meta, err := snapshots.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.snapshotError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meta": meta, "payload": payload})
}

// HandleDeleteSnapshot handles DELETE /v1/map/snapshots/:id.
func (h *Handlers) HandleDeleteSnapshot(c *gin.Context) {
	snapshots, err := h.svc.Snapshots()
	if err != nil {
		h.snapshotsUnavailable(c, err)
		return
	}
	if err := snapshots.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.snapshotError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleDiffSnapshots handles GET /v1/map/snapshots/diff?old=ID&new=ID.
//
// With new omitted, the current build is diffed against the old
// snapshot, answering "what changed since I snapshotted?".
func (h *Handlers) HandleDiffSnapshots(c *gin.Context) {
	snapshots, err := h.svc.Snapshots()
	if err != nil {
		h.snapshotsUnavailable(c, err)
		return
	}
	oldID := c.Query("old")
	if oldID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "old parameter is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}
	oldPayload, _, err := snapshots.Load(c.Request.Context(), oldID)
	if err != nil {
		h.snapshotError(c, err)
		return
	}

	var newPayload *store.Payload
	if newID := c.Query("new"); newID != "" {
		newPayload, _, err = snapshots.Load(c.Request.Context(), newID)
		if err != nil {
			h.snapshotError(c, err)
			return
		}
	} else {
		newPayload, err = h.svc.Payload()
		if err != nil {
			h.noBuild(c)
			return
		}
	}

	diff, err := store.DiffPayloads(oldPayload, newPayload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "DIFF_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, diff)
}

// HandleDebugStats handles GET /v1/map/debug/stats.
func (h *Handlers) HandleDebugStats(c *gin.Context) {
	result, err := h.svc.Current()
	if err != nil {
		h.noBuild(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":             result.Stats,
		"symbols":           result.Table.Len(),
		"edges":             result.Graph.Len(),
		"diagnostics":       result.Diagnostics.Len(),
		"watch_subscribers": h.svc.hub.ClientCount(),
	})
}

// HandleDebugDump handles GET /v1/map/debug/dump: the full serialized
// payload, for QA comparison against snapshots and exports.
func (h *Handlers) HandleDebugDump(c *gin.Context) {
	payload, err := h.svc.Payload()
	if err != nil {
		h.noBuild(c)
		return
	}
	c.JSON(http.StatusOK, payload)
}

// HandleWatch handles GET /v1/map/watch: upgrades to a websocket and
// streams build events until the client disconnects.
func (h *Handlers) HandleWatch(c *gin.Context) {
	h.svc.hub.serve(c.Writer, c.Request)
}

func (h *Handlers) snapshotsUnavailable(c *gin.Context, err error) {
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Error: err.Error(),
		Code:  "SNAPSHOTS_UNAVAILABLE",
	})
}

func (h *Handlers) snapshotError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrSnapshotNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "SNAPSHOT_NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: err.Error(),
		Code:  "SNAPSHOT_FAILED",
	})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
