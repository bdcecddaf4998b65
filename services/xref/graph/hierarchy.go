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
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// HierarchyOptions configures a HierarchyBuilder.
type HierarchyOptions struct {
	// Extensions lists the analyzable source extensions, with leading dot.
	// Default: [".py"]
	Extensions []string

	// IgnorePatterns are directory or file base names (or filepath.Match
	// patterns) skipped during the walk.
	IgnorePatterns []string

	// Logger receives walk diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultIgnorePatterns are skipped unless overridden.
var DefaultIgnorePatterns = []string{".git", ".xref", "__pycache__", ".venv", "venv", ".tox", ".mypy_cache", "node_modules"}

// DefaultHierarchyOptions returns options for a Python tree.
func DefaultHierarchyOptions() HierarchyOptions {
	return HierarchyOptions{
		Extensions:     []string{".py"},
		IgnorePatterns: append([]string(nil), DefaultIgnorePatterns...),
	}
}

// Hierarchy is the result of walking the analysis root.
type Hierarchy struct {
	// RootDir is the absolute, cleaned root directory.
	RootDir string

	// Root is the folder node at path ".".
	Root *Node

	// Registry holds every folder and module node.
	Registry *Registry

	// Errors are the directories and files that could not be read.
	Errors []FileError
}

// HierarchyBuilder turns a directory tree into folder and module nodes.
//
// Thread Safety: Safe for concurrent use; each Build call is independent.
type HierarchyBuilder struct {
	opts HierarchyOptions
	exts map[string]struct{}
}

// NewHierarchyBuilder creates a builder. A nil opts uses the defaults.
func NewHierarchyBuilder(opts *HierarchyOptions) *HierarchyBuilder {
	if opts == nil {
		defaults := DefaultHierarchyOptions()
		opts = &defaults
	}
	o := *opts
	if len(o.Extensions) == 0 {
		o.Extensions = []string{".py"}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	exts := make(map[string]struct{}, len(o.Extensions))
	for _, e := range o.Extensions {
		exts[e] = struct{}{}
	}
	return &HierarchyBuilder{opts: o, exts: exts}
}

// Build walks rootDir and registers every folder and source module.
//
// Description:
//
//	Walks in lexical order, which is top-down: a directory is always
//	visited before anything inside it. Folder nodes are created the
//	first time a directory (or a file inside it) is seen, each attached to
//	its already-registered parent; missing intermediate folders are created
//	on demand in path order. Module nodes are attached under their
//	enclosing folder. The root folder has path "." and is named after the
//	root directory.
//
// Inputs:
//   - ctx: Checked on every entry; cancellation aborts the walk.
//   - rootDir: Directory to analyze. Relative paths are made absolute.
//
// Outputs:
//   - *Hierarchy: Root node, registry and non-fatal walk errors.
//   - error: ErrInvalidRoot when rootDir is missing or not a directory,
//     or the context error.
func (b *HierarchyBuilder) Build(ctx context.Context, rootDir string) (*Hierarchy, error) {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoot, rootDir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoot, rootDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, rootDir)
	}

	h := &Hierarchy{
		RootDir:  abs,
		Root:     NewFolder(filepath.Base(abs), RootPath),
		Registry: NewRegistry(),
	}
	if err := h.Registry.Insert(h.Root); err != nil {
		return nil, err
	}

	walkErr := filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := filepath.Rel(abs, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if err != nil {
			if rel == RootPath {
				return fmt.Errorf("%w: %s: %v", ErrInvalidRoot, rootDir, err)
			}
			b.opts.Logger.Warn("skipping unreadable entry",
				slog.String("path", rel),
				slog.String("error", err.Error()))
			h.Errors = append(h.Errors, FileError{Path: rel, Stage: StageWalk, Err: err})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if rel == RootPath {
			return nil
		}
		if b.ignored(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			_, err := b.ensureFolder(h, rel)
			return err
		}

		if _, ok := b.exts[path.Ext(rel)]; !ok {
			return nil
		}
		return b.addModule(h, rel, d.Name())
	})
	if walkErr != nil {
		return nil, walkErr
	}

	b.opts.Logger.Debug("hierarchy built",
		slog.String("root", abs),
		slog.Int("nodes", h.Registry.Len()),
		slog.Int("errors", len(h.Errors)))
	return h, nil
}

// ensureFolder returns the folder at rel, creating it and any missing
// ancestors top-down.
func (b *HierarchyBuilder) ensureFolder(h *Hierarchy, rel string) (*Node, error) {
	if rel == "" || rel == RootPath {
		return h.Root, nil
	}
	if n, ok := h.Registry.Get(rel); ok {
		if n.Kind != KindFolder {
			return nil, fmt.Errorf("%w: %s is a %s, not a folder", ErrWrongKind, rel, n.Kind)
		}
		return n, nil
	}

	segments := strings.Split(rel, PathSeparator)
	parent := h.Root
	for i, seg := range segments {
		prefix := strings.Join(segments[:i+1], PathSeparator)
		if existing, ok := h.Registry.Get(prefix); ok {
			parent = existing
			continue
		}
		folder := NewFolder(seg, prefix)
		if err := h.Registry.Insert(folder); err != nil {
			return nil, err
		}
		if _, err := parent.AddChild(folder); err != nil {
			return nil, err
		}
		parent = folder
	}
	return parent, nil
}

func (b *HierarchyBuilder) addModule(h *Hierarchy, rel, name string) error {
	parent, err := b.ensureFolder(h, path.Dir(rel))
	if err != nil {
		return err
	}
	mod := NewModule(name, rel)
	if err := h.Registry.Insert(mod); err != nil {
		return err
	}
	_, err = parent.AddChild(mod)
	return err
}

// ignored reports whether a base name matches an ignore pattern.
func (b *HierarchyBuilder) ignored(base string) bool {
	return matchesIgnore(base, b.opts.IgnorePatterns)
}

func matchesIgnore(base string, patterns []string) bool {
	for _, pattern := range patterns {
		if base == pattern {
			return true
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
