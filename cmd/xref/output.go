// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/pyxref/services/xref/calls"
	"github.com/AleutianAI/pyxref/services/xref/graph"
)

// Output formats.
const (
	formatAuto = "auto"
	formatJSON = "json"
	formatText = "text"
)

// styles renders text output, plain unless color is enabled.
type styles struct {
	color   bool
	title   lipgloss.Style
	heading lipgloss.Style
	key     lipgloss.Style
	dim     lipgloss.Style
	added   lipgloss.Style
	removed lipgloss.Style
	changed lipgloss.Style
	errText lipgloss.Style
}

func newStyles(color bool) styles {
	return styles{
		color:   color,
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		heading: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		key:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		added:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		removed: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		changed: lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
		errText: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

func (s styles) render(st lipgloss.Style, text string) string {
	if !s.color {
		return text
	}
	return st.Render(text)
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// resolveFormat turns "auto" into text for terminals and JSON otherwise.
func resolveFormat(format string, w io.Writer) (string, error) {
	switch format {
	case "", formatAuto:
		if isTerminal(w) {
			return formatText, nil
		}
		return formatJSON, nil
	case formatJSON, formatText:
		return format, nil
	default:
		return "", fmt.Errorf("invalid --format %q, want auto, json or text", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderReport writes a human-readable summary of rep.
// writeReport renders rep to w in the requested format.
func writeReport(w io.Writer, rep *graph.Report, format string) error {
	resolved, err := resolveFormat(format, w)
	if err != nil {
		return err
	}
	if resolved == formatJSON {
		return writeJSON(w, rep)
	}
	return renderReport(w, rep, newStyles(isTerminal(w)))
}

func renderReport(w io.Writer, rep *graph.Report, s styles) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", s.render(s.title, "xref report"), s.render(s.dim, rep.RunID))
	fmt.Fprintf(&b, "%s %s (query %s)\n", s.render(s.key, "root:"), rep.RootDir, rep.QueryDir)
	st := rep.Stats
	fmt.Fprintf(&b, "%s %d folders, %d modules (%d analyzed), %d classes, %d functions, %d methods\n",
		s.render(s.key, "nodes:"), st.Folders, st.Modules, st.ModulesAnalyzed, st.Classes, st.Functions, st.Methods)
	fmt.Fprintf(&b, "%s %d script, %d class, %d function, %d fallback, %d unresolved\n",
		s.render(s.key, "imports:"), st.ScriptEdges, st.ClassEdges, st.FunctionEdges, st.FallbackEdges, st.UnresolvedImports)
	fmt.Fprintf(&b, "%s %d call targets, %d linked method dependencies\n",
		s.render(s.key, "calls:"), st.CallTargets, st.LinkedDependencies)

	for _, m := range rep.Modules {
		if len(m.ScriptDependencies)+len(m.ClassDependencies)+len(m.FunctionDependencies)+len(m.CallTargets) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s\n", s.render(s.heading, m.Path))
		writeList(&b, s, "scripts", m.ScriptDependencies)
		writeList(&b, s, "classes", m.ClassDependencies)
		writeList(&b, s, "functions", m.FunctionDependencies)
		for _, fn := range sortedKeys(m.CallTargets) {
			fmt.Fprintf(&b, "  %s %s -> %s\n", s.render(s.dim, "call"), fn, strings.Join(m.CallTargets[fn], ", "))
		}
	}

	if len(rep.Errors) > 0 {
		fmt.Fprintf(&b, "\n%s\n", s.render(s.errText, fmt.Sprintf("%d file errors", len(rep.Errors))))
		for _, e := range rep.Errors {
			fmt.Fprintf(&b, "  %s [%s] %s\n", e.Path, e.Stage, e.Message)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeList(b *strings.Builder, s styles, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "  %s %s\n", s.render(s.key, label+":"), strings.Join(items, ", "))
}

// renderCalls writes one "caller -> callee" line per inferred target.
func renderCalls(w io.Writer, targets calls.Targets) error {
	var b strings.Builder
	for _, fn := range sortedKeys(targets) {
		for _, target := range targets[fn] {
			fmt.Fprintf(&b, "%s -> %s\n", fn, target)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// renderDiff writes a human-readable report diff.
func renderDiff(w io.Writer, d *graph.ReportDiff, s styles) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s -> %s\n", s.render(s.title, "diff"), d.BaseID, d.TargetID)
	if d.Empty() {
		b.WriteString("no changes\n")
		_, err := io.WriteString(w, b.String())
		return err
	}
	for _, n := range d.NodesAdded {
		fmt.Fprintf(&b, "%s %s\n", s.render(s.added, "+"), n)
	}
	for _, n := range d.NodesRemoved {
		fmt.Fprintf(&b, "%s %s\n", s.render(s.removed, "-"), n)
	}
	for _, c := range d.NodesModified {
		fmt.Fprintf(&b, "%s %s (%s)\n", s.render(s.changed, "~"), c.Path, c.ChangeType)
	}
	for _, e := range d.EdgesAdded {
		fmt.Fprintf(&b, "%s %s -[%s]-> %s\n", s.render(s.added, "+"), e.From, e.Kind, e.To)
	}
	for _, e := range d.EdgesRemoved {
		fmt.Fprintf(&b, "%s %s -[%s]-> %s\n", s.render(s.removed, "-"), e.From, e.Kind, e.To)
	}
	fmt.Fprintf(&b, "%d changes across %d modules\n", d.Summary.TotalChanges, d.Summary.ModulesAffected)
	_, err := io.WriteString(w, b.String())
	return err
}

// renderSnapshots writes one line per snapshot.
func renderSnapshots(w io.Writer, metas []*graph.SnapshotMetadata, s styles) error {
	var b strings.Builder
	for _, m := range metas {
		label := m.Label
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(&b, "%s  %s  %-12s %d nodes, %d modules, %d errors\n",
			s.render(s.key, m.SnapshotID),
			s.render(s.dim, formatMilli(m.CreatedAtMilli)),
			label, m.NodeCount, m.ModuleCount, m.ErrorCount)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
