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
	"log/slog"
	"path"
	"strings"

	"github.com/AleutianAI/pyxref/services/xref/ast"
)

// ResolverOptions configures an ImportResolver.
type ResolverOptions struct {
	// Extensions are tried in order when turning a dotted module reference
	// into a module path. Default: [".py"]
	Extensions []string

	// FallbackAliases records `B -> <base module path>` when a selective
	// import names something that is not a modeled class or function.
	// Off by default, in which case the fallback adds only the script
	// dependency.
	FallbackAliases bool

	// Logger receives per-import debug output. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultResolverOptions returns the defaults.
func DefaultResolverOptions() ResolverOptions {
	return ResolverOptions{Extensions: []string{".py"}}
}

// ResolveStats counts the edges one Resolve call added or confirmed.
type ResolveStats struct {
	ScriptEdges   int
	ClassEdges    int
	FunctionEdges int
	Fallbacks     int
	Unresolved    int
}

// Add accumulates o into s.
func (s *ResolveStats) Add(o ResolveStats) {
	s.ScriptEdges += o.ScriptEdges
	s.ClassEdges += o.ClassEdges
	s.FunctionEdges += o.FunctionEdges
	s.Fallbacks += o.Fallbacks
	s.Unresolved += o.Unresolved
}

// ImportResolver turns import statements into dependency edges and aliases.
//
// Description:
//
//	Resolution is closed-world path matching against the registry. A
//	dotted reference a.b becomes the candidate a/b.py; anything not
//	registered is outside the corpus and silently produces nothing.
//
// Thread Safety:
//
//	Safe for concurrent use once every module and symbol node is
//	registered. Each call writes only to its own module, plus class alias
//	sets which are guarded per node.
type ImportResolver struct {
	registry *Registry
	opts     ResolverOptions
}

// NewImportResolver creates a resolver over registry.
func NewImportResolver(registry *Registry, opts ResolverOptions) *ImportResolver {
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".py"}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ImportResolver{registry: registry, opts: opts}
}

// Resolve populates module's dependencies, aliases and import table from
// its top-level import statements.
//
// Description:
//
//	Whole-module imports (`import X as Y`) add X's module to the script
//	dependencies and alias Y (or X) to its path. Selective imports
//	(`from X import A as B`) resolve X, honoring the relative level by
//	stripping that many trailing segments from the importing module's
//	directory, then look up <X path>::A: a class or function becomes a
//	class or function dependency aliased as B; anything else falls back
//	to a script dependency on X. Wildcards are ignored. Relative imports
//	with no module text (`from . import mod`) resolve each name as a
//	module in the directory the level selects: level 1 from a/b/c.py
//	looks for a/mod.py. Running Resolve twice yields the same result.
//
// Inputs:
//   - module: A KindModule node.
//   - parsed: The module's syntax model.
//
// Outputs:
//   - ResolveStats: Edge counts for this module.
//   - error: ErrWrongKind for a non-module node.
func (r *ImportResolver) Resolve(module *Node, parsed *ast.Module) (ResolveStats, error) {
	var stats ResolveStats
	if module == nil || module.Kind != KindModule {
		return stats, fmt.Errorf("resolve imports: %w", ErrWrongKind)
	}
	if parsed == nil {
		return stats, nil
	}

	module.SetImportTable(parsed.ImportTable())

	for _, imp := range parsed.Imports {
		if !imp.TopLevel {
			continue
		}
		if imp.Selective {
			r.resolveSelective(module, imp, &stats)
			continue
		}
		target, ok := r.lookupModule(dottedToPath(imp.Module))
		if !ok {
			stats.Unresolved++
			continue
		}
		module.AddScriptDependency(target)
		module.SetAlias(imp.LocalName(), target.Path)
		stats.ScriptEdges++
	}
	return stats, nil
}

func (r *ImportResolver) resolveSelective(module *Node, imp ast.Import, stats *ResolveStats) {
	if imp.Wildcard {
		return
	}

	baseDir, ok := relativeBase(module.Path, imp.Level)
	if !ok {
		stats.Unresolved++
		return
	}

	if imp.Module == "" {
		for _, name := range imp.Names {
			target, ok := r.lookupModule(joinPath(baseDir, dottedToPath(name.Name)))
			if !ok {
				stats.Unresolved++
				continue
			}
			module.AddScriptDependency(target)
			module.SetAlias(name.LocalName(), target.Path)
			stats.ScriptEdges++
		}
		return
	}

	base, ok := r.lookupModule(joinPath(baseDir, dottedToPath(imp.Module)))
	if !ok {
		stats.Unresolved++
		return
	}

	for _, name := range imp.Names {
		symPath := SymbolPath(base.Path, name.Name)
		sym, found := r.registry.Get(symPath)
		switch {
		case found && sym.Kind == KindClass:
			module.AddClassDependency(sym)
			module.SetAlias(name.LocalName(), symPath)
			if name.Alias != "" && name.Alias != name.Name {
				sym.AddClassAlias(name.Alias)
			}
			stats.ClassEdges++
		case found && sym.Kind == KindFunction:
			module.AddFunctionDependency(sym)
			module.SetAlias(name.LocalName(), symPath)
			stats.FunctionEdges++
		default:
			module.AddScriptDependency(base)
			if r.opts.FallbackAliases {
				module.SetAlias(name.LocalName(), base.Path)
			}
			stats.Fallbacks++
			r.opts.Logger.Debug("selective import fell back to module dependency",
				slog.String("module", module.Path),
				slog.String("symbol", symPath))
		}
	}
}

// lookupModule finds a registered module for an extension-less path.
func (r *ImportResolver) lookupModule(stem string) (*Node, bool) {
	if stem == "" {
		return nil, false
	}
	for _, ext := range r.opts.Extensions {
		if n, ok := r.registry.GetKind(stem+ext, KindModule); ok {
			return n, true
		}
	}
	return nil, false
}

// relativeBase returns the directory a selective import resolves against:
// the root ("") for level 0, otherwise the importing module's directory
// with level trailing segments removed. Stripping past the root fails.
func relativeBase(modulePath string, level int) (string, bool) {
	if level <= 0 {
		return "", true
	}
	dir := path.Dir(modulePath)
	var segments []string
	if dir != RootPath {
		segments = strings.Split(dir, PathSeparator)
	}
	if level > len(segments) {
		return "", false
	}
	return strings.Join(segments[:len(segments)-level], PathSeparator), true
}

func joinPath(dir, rel string) string {
	if dir == "" {
		return rel
	}
	if rel == "" {
		return dir
	}
	return dir + PathSeparator + rel
}

// dottedToPath converts a.b.c to a/b/c.
func dottedToPath(dotted string) string {
	return strings.ReplaceAll(dotted, ".", PathSeparator)
}
