// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package xref

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/pyxref/services/xref/filetree"
	"github.com/AleutianAI/pyxref/services/xref/graph"
)

// Handlers exposes a Service over gin.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for svc.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleHealth handles GET /v1/xref/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:       "healthy",
		Version:      ServiceVersion,
		Snapshots:    h.svc.snapshots != nil,
		EventClients: h.svc.events.ClientCount(),
	})
}

// HandleAnalyze handles POST /v1/xref/analyze.
//
// Description:
//
//	Runs the full analysis over root_dir and returns the report. With
//	save_snapshot and a configured snapshot store the report is also
//	persisted.
//
// Response:
//
//	200 OK: AnalyzeResponse
//	400 Bad Request: Missing root_dir, invalid root or query_dir
//	403 Forbidden: Root outside the allowed roots
//	500 Internal Server Error: Analysis or snapshot save failed
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleAnalyze(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.svc.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleAnalyze"))

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	res, err := h.svc.Analyze(c.Request.Context(), req.RootDir, req.QueryDir)
	if err != nil {
		logger.Warn("analysis failed", slog.String("root", req.RootDir), slog.String("error", err.Error()))
		writeError(c, err, "ANALYSIS_FAILED")
		return
	}

	resp := AnalyzeResponse{Report: res.ToReport()}
	if req.SaveSnapshot {
		if h.svc.snapshots == nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error: "snapshot persistence not configured",
				Code:  "SNAPSHOTS_NOT_AVAILABLE",
			})
			return
		}
		meta, err := h.svc.snapshots.Save(c.Request.Context(), resp.Report, req.Label)
		if err != nil {
			logger.Error("snapshot save failed", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: "failed to save snapshot: " + err.Error(),
				Code:  "SNAPSHOT_SAVE_FAILED",
			})
			return
		}
		resp.SnapshotID = meta.SnapshotID
	}

	logger.Info("analysis served",
		slog.String("run_id", res.RunID),
		slog.Int("modules", res.Stats.Modules),
		slog.Int("file_errors", res.Stats.FileErrors))
	c.JSON(http.StatusOK, resp)
}

// HandleCalls handles POST /v1/xref/calls.
func (h *Handlers) HandleCalls(c *gin.Context) {
	var req CallsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	targets, err := h.svc.Calls(c.Request.Context(), req.RootDir, req.Module)
	if err != nil {
		writeError(c, err, "CALL_ANALYSIS_FAILED")
		return
	}
	c.JSON(http.StatusOK, CallsResponse{Module: req.Module, Targets: targets})
}

// HandleTree handles GET /v1/xref/tree?root=...
func (h *Handlers) HandleTree(c *gin.Context) {
	root := c.Query("root")
	if root == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "root query parameter is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}
	tree, err := h.svc.Tree(c.Request.Context(), root)
	if err != nil {
		writeError(c, err, "TREE_FAILED")
		return
	}
	c.JSON(http.StatusOK, tree)
}

// HandleListSnapshots handles GET /v1/xref/snapshots.
//
// Query Parameters:
//
//	root: Optional filter by analysis root
//	limit: Maximum results, default 100
func (h *Handlers) HandleListSnapshots(c *gin.Context) {
	if !h.requireSnapshots(c) {
		return
	}

	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	snapshots, err := h.svc.snapshots.List(c.Request.Context(), c.Query("root"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "failed to list snapshots: " + err.Error(),
			Code:  "SNAPSHOT_LIST_FAILED",
		})
		return
	}
	if snapshots == nil {
		snapshots = []*graph.SnapshotMetadata{}
	}
	c.JSON(http.StatusOK, ListSnapshotsResponse{Snapshots: snapshots})
}

// HandleGetSnapshot handles GET /v1/xref/snapshots/:id.
func (h *Handlers) HandleGetSnapshot(c *gin.Context) {
	if !h.requireSnapshots(c) {
		return
	}

	rep, meta, err := h.svc.snapshots.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "SNAPSHOT_LOAD_FAILED")
		return
	}
	c.JSON(http.StatusOK, SnapshotResponse{Metadata: meta, Report: rep})
}

// HandleDiffSnapshots handles GET /v1/xref/snapshots/diff?base=...&target=...
func (h *Handlers) HandleDiffSnapshots(c *gin.Context) {
	if !h.requireSnapshots(c) {
		return
	}

	baseID, targetID := c.Query("base"), c.Query("target")
	if baseID == "" || targetID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "both 'base' and 'target' parameters are required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	base, _, err := h.svc.snapshots.Load(c.Request.Context(), baseID)
	if err != nil {
		writeError(c, err, "SNAPSHOT_LOAD_FAILED")
		return
	}
	target, _, err := h.svc.snapshots.Load(c.Request.Context(), targetID)
	if err != nil {
		writeError(c, err, "SNAPSHOT_LOAD_FAILED")
		return
	}

	diff, err := graph.DiffReports(base, target, baseID, targetID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "diff computation failed: " + err.Error(),
			Code:  "DIFF_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, SnapshotDiffResponse{Diff: diff})
}

// HandleDeleteSnapshot handles DELETE /v1/xref/snapshots/:id.
func (h *Handlers) HandleDeleteSnapshot(c *gin.Context) {
	if !h.requireSnapshots(c) {
		return
	}
	if err := h.svc.snapshots.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err, "SNAPSHOT_DELETE_FAILED")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// HandleEvents handles GET /v1/xref/events, a websocket stream of runs.
func (h *Handlers) HandleEvents(c *gin.Context) {
	h.svc.events.Serve(c.Writer, c.Request)
}

func (h *Handlers) requireSnapshots(c *gin.Context) bool {
	if h.svc.snapshots != nil {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Error: "snapshot persistence not configured",
		Code:  "SNAPSHOTS_NOT_AVAILABLE",
	})
	return false
}

// writeError maps service errors onto HTTP status codes.
func writeError(c *gin.Context, err error, fallbackCode string) {
	status, code := http.StatusInternalServerError, fallbackCode
	switch {
	case errors.Is(err, ErrRootNotAllowed):
		status, code = http.StatusForbidden, "ROOT_NOT_ALLOWED"
	case errors.Is(err, graph.ErrInvalidRoot), errors.Is(err, filetree.ErrInvalidRoot):
		status, code = http.StatusBadRequest, "INVALID_ROOT"
	case errors.Is(err, graph.ErrInvalidQueryDir):
		status, code = http.StatusBadRequest, "INVALID_QUERY_DIR"
	case errors.Is(err, ErrInvalidModulePath):
		status, code = http.StatusBadRequest, "INVALID_MODULE_PATH"
	case errors.Is(err, graph.ErrSnapshotNotFound):
		status, code = http.StatusNotFound, "SNAPSHOT_NOT_FOUND"
	case errors.Is(err, fs.ErrNotExist):
		status, code = http.StatusNotFound, "NOT_FOUND"
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}
