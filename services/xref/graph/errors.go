// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for the analysis pipeline.
var (
	// ErrInvalidRoot is returned when the analysis root is missing or is
	// not a directory. It is the only fatal input error.
	ErrInvalidRoot = errors.New("invalid analysis root")

	// ErrDuplicatePath is returned when inserting a node at a path the
	// registry already holds.
	ErrDuplicatePath = errors.New("duplicate qualified path")

	// ErrWrongKind is returned when an operation receives a node of an
	// unexpected kind.
	ErrWrongKind = errors.New("wrong node kind")

	// ErrSnapshotNotFound is returned when a snapshot ID is unknown.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrInvalidQueryDir is returned when the query directory is not a
	// folder under the analysis root.
	ErrInvalidQueryDir = errors.New("invalid query directory")
)

// Stage names the pipeline step a FileError came from.
type Stage string

const (
	StageWalk    Stage = "walk"
	StageRead    Stage = "read"
	StageParse   Stage = "parse"
	StageExtract Stage = "extract"
)

// FileError is a non-fatal failure isolated to one file or directory.
//
// Description:
//
//	The analyzer collects FileErrors instead of aborting. A module with a
//	read or parse error stays in the registry as a stub but is excluded
//	from extraction, import resolution and call inference.
type FileError struct {
	// Path is the root-relative path of the file or directory.
	Path string `json:"path"`

	// Stage is where the failure happened.
	Stage Stage `json:"stage"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements error.
func (e FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e FileError) Unwrap() error {
	return e.Err
}
