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
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
)

// Edge kinds reported by DiffReports.
const (
	EdgeScript   = "script"
	EdgeClass    = "class"
	EdgeFunction = "function"
	EdgeCalls    = "calls"
)

// ReportEdge is one dependency edge between two paths.
type ReportEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

// ReportDiff contains the differences between two reports.
type ReportDiff struct {
	// BaseID labels the base report (a snapshot ID or run ID).
	BaseID string `json:"base_id"`

	// TargetID labels the target report.
	TargetID string `json:"target_id"`

	// NodesAdded are paths present in target but not in base.
	NodesAdded []string `json:"nodes_added"`

	// NodesRemoved are paths present in base but not in target.
	NodesRemoved []string `json:"nodes_removed"`

	// NodesModified are nodes present in both whose payload changed.
	NodesModified []NodeChange `json:"nodes_modified"`

	EdgesAdded   []ReportEdge `json:"edges_added"`
	EdgesRemoved []ReportEdge `json:"edges_removed"`

	Summary DiffSummary `json:"summary"`
}

// NodeChange describes how a single node changed.
type NodeChange struct {
	Path string `json:"path"`

	// ChangeType is one of "kind_changed", "static_changed",
	// "aliases_changed" or "call_targets_changed".
	ChangeType string `json:"change_type"`
}

// DiffSummary contains aggregate statistics about a diff.
type DiffSummary struct {
	// TotalChanges counts added, removed and modified nodes plus edge changes.
	TotalChanges int `json:"total_changes"`

	// ModulesAffected is the number of distinct modules touched.
	ModulesAffected int `json:"modules_affected"`

	// ChangeRatio is the fraction of nodes that changed (0.0 to 1.0).
	ChangeRatio float64 `json:"change_ratio"`
}

// Empty reports whether the two reports were structurally identical.
func (d *ReportDiff) Empty() bool {
	return d.Summary.TotalChanges == 0
}

// DiffReports computes the differences between two reports.
//
// Description:
//
//	Nodes are compared by path. A node present in both is modified when
//	its kind, static flag or class aliases differ, or, for a module, when
//	its call targets differ. Edges are the script, class and function
//	dependencies of modules plus method call dependencies.
//
// Inputs:
//
//	base, target - The reports to compare. Must not be nil.
//	baseID, targetID - Labels copied into the diff.
//
// Outputs:
//
//	*ReportDiff - Sorted, deterministic differences.
//	error - Non-nil if either report is nil.
func DiffReports(base, target *Report, baseID, targetID string) (*ReportDiff, error) {
	if base == nil {
		return nil, fmt.Errorf("base report must not be nil")
	}
	if target == nil {
		return nil, fmt.Errorf("target report must not be nil")
	}

	diff := &ReportDiff{
		BaseID:        baseID,
		TargetID:      targetID,
		NodesAdded:    []string{},
		NodesRemoved:  []string{},
		NodesModified: []NodeChange{},
		EdgesAdded:    []ReportEdge{},
		EdgesRemoved:  []ReportEdge{},
	}

	baseNodes := indexNodes(base)
	targetNodes := indexNodes(target)
	baseModules := indexModules(base)
	targetModules := indexModules(target)
	affected := make(map[string]bool)

	for p, tn := range targetNodes {
		bn, ok := baseNodes[p]
		if !ok {
			diff.NodesAdded = append(diff.NodesAdded, p)
			affected[moduleOf(p)] = true
			continue
		}
		if change := classifyNodeChange(bn, tn, baseModules[p], targetModules[p]); change != "" {
			diff.NodesModified = append(diff.NodesModified, NodeChange{Path: p, ChangeType: change})
			affected[moduleOf(p)] = true
		}
	}
	for p := range baseNodes {
		if _, ok := targetNodes[p]; !ok {
			diff.NodesRemoved = append(diff.NodesRemoved, p)
			affected[moduleOf(p)] = true
		}
	}

	sort.Strings(diff.NodesAdded)
	sort.Strings(diff.NodesRemoved)
	sort.Slice(diff.NodesModified, func(i, j int) bool {
		return diff.NodesModified[i].Path < diff.NodesModified[j].Path
	})

	baseEdges := edgeSet(base)
	targetEdges := edgeSet(target)
	for e := range targetEdges {
		if !baseEdges[e] {
			diff.EdgesAdded = append(diff.EdgesAdded, e)
			affected[moduleOf(e.From)] = true
		}
	}
	for e := range baseEdges {
		if !targetEdges[e] {
			diff.EdgesRemoved = append(diff.EdgesRemoved, e)
			affected[moduleOf(e.From)] = true
		}
	}
	sortEdges(diff.EdgesAdded)
	sortEdges(diff.EdgesRemoved)

	total := len(baseNodes)
	if len(targetNodes) > total {
		total = len(targetNodes)
	}
	changed := len(diff.NodesAdded) + len(diff.NodesRemoved) + len(diff.NodesModified)
	ratio := 0.0
	if total > 0 {
		ratio = float64(changed) / float64(total)
	}
	diff.Summary = DiffSummary{
		TotalChanges:    changed + len(diff.EdgesAdded) + len(diff.EdgesRemoved),
		ModulesAffected: len(affected),
		ChangeRatio:     ratio,
	}
	return diff, nil
}

func indexNodes(r *Report) map[string]ReportNode {
	out := make(map[string]ReportNode, len(r.Nodes))
	for _, n := range r.Nodes {
		out[n.Path] = n
	}
	return out
}

func indexModules(r *Report) map[string]ModuleReport {
	out := make(map[string]ModuleReport, len(r.Modules))
	for _, m := range r.Modules {
		out[m.Path] = m
	}
	return out
}

func classifyNodeChange(b, t ReportNode, bm, tm ModuleReport) string {
	switch {
	case b.Kind != t.Kind:
		return "kind_changed"
	case b.IsStatic != t.IsStatic:
		return "static_changed"
	case !slices.Equal(b.Aliases, t.Aliases):
		return "aliases_changed"
	case t.Kind == KindModule.String() && !reflect.DeepEqual(nonNilTargets(bm.CallTargets), nonNilTargets(tm.CallTargets)):
		return "call_targets_changed"
	default:
		return ""
	}
}

func edgeSet(r *Report) map[ReportEdge]bool {
	out := make(map[ReportEdge]bool)
	for _, m := range r.Modules {
		for _, d := range m.ScriptDependencies {
			out[ReportEdge{From: m.Path, To: d, Kind: EdgeScript}] = true
		}
		for _, d := range m.ClassDependencies {
			out[ReportEdge{From: m.Path, To: d, Kind: EdgeClass}] = true
		}
		for _, d := range m.FunctionDependencies {
			out[ReportEdge{From: m.Path, To: d, Kind: EdgeFunction}] = true
		}
	}
	for _, n := range r.Nodes {
		for _, d := range n.Dependencies {
			out[ReportEdge{From: n.Path, To: d, Kind: EdgeCalls}] = true
		}
	}
	return out
}

func sortEdges(edges []ReportEdge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		if edges[i].To != edges[j].To {
			return edges[i].To < edges[j].To
		}
		return edges[i].Kind < edges[j].Kind
	})
}

// moduleOf strips the symbol part of a path.
func moduleOf(p string) string {
	mod, _, _ := strings.Cut(p, SymbolSeparator)
	return mod
}

func nonNilTargets(m map[string][]string) map[string][]string {
	if m == nil {
		return map[string][]string{}
	}
	return m
}
