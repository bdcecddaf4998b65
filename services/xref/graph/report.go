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
	"encoding/json"
	"fmt"
)

// ReportSchemaVersion is the version of the report format.
// Increment when the format changes in a breaking way.
const ReportSchemaVersion = "1.0"

// Report is the JSON-serializable output of an analysis run.
//
// Description:
//
//	Nodes are sorted by path and every list inside is in a deterministic
//	order, so two reports of the same tree hash and diff cleanly.
//
// Thread Safety: Report is a value type with no internal state.
type Report struct {
	// SchemaVersion identifies the report format version.
	SchemaVersion string `json:"schema_version"`

	// RunID is the analysis run that produced the report.
	RunID string `json:"run_id"`

	// RootDir is the absolute analysis root.
	RootDir string `json:"root_dir"`

	// QueryDir is the analyzed folder, "." for the whole tree.
	QueryDir string `json:"query_dir"`

	// GeneratedAtMilli is the Unix timestamp in milliseconds of the run.
	GeneratedAtMilli int64 `json:"generated_at_milli"`

	// ReportHash covers nodes and modules only, not timestamps or IDs.
	ReportHash string `json:"report_hash"`

	Stats   Stats          `json:"stats"`
	Nodes   []ReportNode   `json:"nodes"`
	Modules []ModuleReport `json:"modules"`
	Errors  []ReportError  `json:"errors"`
}

// ReportNode is one registry node.
type ReportNode struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Parent string `json:"parent,omitempty"`

	// IsStatic is set for static and class methods.
	IsStatic bool `json:"is_static,omitempty"`

	// Aliases are the alternate names a class is imported under.
	Aliases []string `json:"aliases,omitempty"`

	// Dependencies are the node paths a method calls.
	Dependencies []string `json:"dependencies,omitempty"`
}

// ModuleReport holds the import and call data of one module.
type ModuleReport struct {
	Path                 string              `json:"path"`
	ScriptDependencies   []string            `json:"script_dependencies"`
	ClassDependencies    []string            `json:"class_dependencies"`
	FunctionDependencies []string            `json:"function_dependencies"`
	Aliases              map[string]string   `json:"aliases"`
	ImportTable          map[string]string   `json:"import_table"`
	CallTargets          map[string][]string `json:"call_targets"`
}

// ReportError is a serialized FileError.
type ReportError struct {
	Path    string `json:"path"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// ToReport converts a Result into its serializable form.
//
// Outputs:
//
//	*Report - Never nil. A nil Result yields an empty report.
func (r *Result) ToReport() *Report {
	rep := &Report{
		SchemaVersion: ReportSchemaVersion,
		Nodes:         []ReportNode{},
		Modules:       []ModuleReport{},
		Errors:        []ReportError{},
	}
	if r == nil || r.Registry == nil {
		rep.ReportHash = rep.Hash()
		return rep
	}

	rep.RunID = r.RunID
	rep.RootDir = r.RootDir
	rep.QueryDir = r.QueryDir
	rep.GeneratedAtMilli = r.StartedAt.UnixMilli()
	rep.Stats = r.Stats

	for _, n := range r.Registry.Nodes() {
		rn := ReportNode{Path: n.Path, Name: n.Name, Kind: n.Kind.String()}
		if p := n.Parent(); p != nil {
			rn.Parent = p.Path
		}
		switch n.Kind {
		case KindClass:
			rn.Aliases = n.ClassAliases()
		case KindMethod:
			rn.IsStatic = n.IsStatic()
			rn.Dependencies = nodePaths(n.Dependencies())
		case KindModule:
			rep.Modules = append(rep.Modules, moduleReport(n))
		case KindFolder, KindFunction:
		}
		rep.Nodes = append(rep.Nodes, rn)
	}

	for _, e := range r.Errors {
		rep.Errors = append(rep.Errors, ReportError{Path: e.Path, Stage: string(e.Stage), Message: e.Err.Error()})
	}

	rep.ReportHash = rep.Hash()
	return rep
}

func moduleReport(n *Node) ModuleReport {
	mr := ModuleReport{
		Path:                 n.Path,
		ScriptDependencies:   nodePaths(n.ScriptDependencies()),
		ClassDependencies:    nodePaths(n.ClassDependencies()),
		FunctionDependencies: nodePaths(n.FunctionDependencies()),
		Aliases:              n.Aliases(),
		ImportTable:          n.ImportTable(),
		CallTargets:          n.CallTargets(),
	}
	if mr.Aliases == nil {
		mr.Aliases = map[string]string{}
	}
	if mr.ImportTable == nil {
		mr.ImportTable = map[string]string{}
	}
	if mr.CallTargets == nil {
		mr.CallTargets = map[string][]string{}
	}
	return mr
}

// Module returns the module entry at path.
func (r *Report) Module(path string) (ModuleReport, bool) {
	for _, m := range r.Modules {
		if m.Path == path {
			return m, true
		}
	}
	return ModuleReport{}, false
}

// Hash returns the SHA256 of the report's nodes and modules.
//
// Description:
//
//	Run IDs, timestamps and stats are excluded so two runs over an
//	unchanged tree produce the same hash. Maps encode with sorted keys.
func (r *Report) Hash() string {
	payload := struct {
		Nodes   []ReportNode   `json:"nodes"`
		Modules []ModuleReport `json:"modules"`
	}{r.Nodes, r.Modules}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return hashBytes(data)
}

// DecodeReport parses and validates a JSON report.
//
// Errors:
//
//	Returns an error for malformed JSON or an unsupported schema version.
func DecodeReport(data []byte) (*Report, error) {
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	if rep.SchemaVersion != ReportSchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %q (expected %q)", rep.SchemaVersion, ReportSchemaVersion)
	}
	return &rep, nil
}
