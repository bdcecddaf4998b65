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
	"github.com/AleutianAI/pyxref/services/xref/calls"
	"github.com/AleutianAI/pyxref/services/xref/graph"
)

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "1.0.0"

// AnalyzeRequest is the body of POST /v1/xref/analyze.
type AnalyzeRequest struct {
	// RootDir is the directory to analyze.
	RootDir string `json:"root_dir" binding:"required"`

	// QueryDir limits extraction to a folder under RootDir (optional).
	QueryDir string `json:"query_dir,omitempty"`

	// SaveSnapshot persists the report when snapshots are configured.
	SaveSnapshot bool `json:"save_snapshot,omitempty"`

	// Label tags the saved snapshot.
	Label string `json:"label,omitempty"`
}

// AnalyzeResponse carries the report of one analysis run.
type AnalyzeResponse struct {
	Report     *graph.Report `json:"report"`
	SnapshotID string        `json:"snapshot_id,omitempty"`
}

// CallsRequest is the body of POST /v1/xref/calls.
type CallsRequest struct {
	RootDir string `json:"root_dir" binding:"required"`

	// Module is the module file relative to RootDir.
	Module string `json:"module" binding:"required"`
}

// CallsResponse lists the inferred call targets of one module.
type CallsResponse struct {
	Module  string        `json:"module"`
	Targets calls.Targets `json:"targets"`
}

// HealthResponse is returned by GET /v1/xref/health.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Snapshots    bool   `json:"snapshots"`
	EventClients int    `json:"event_clients"`
}

// ListSnapshotsResponse is returned by GET /v1/xref/snapshots.
type ListSnapshotsResponse struct {
	Snapshots []*graph.SnapshotMetadata `json:"snapshots"`
}

// SnapshotResponse is returned by GET /v1/xref/snapshots/:id.
type SnapshotResponse struct {
	Metadata *graph.SnapshotMetadata `json:"metadata"`
	Report   *graph.Report           `json:"report"`
}

// SnapshotDiffResponse is returned by GET /v1/xref/snapshots/diff.
type SnapshotDiffResponse struct {
	Diff *graph.ReportDiff `json:"diff"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable code.
	Code string `json:"code,omitempty"`
}
