// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package filetree turns a directory into a {nodes, edges} graph for
// visualization. It performs no semantic analysis.
package filetree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Node types.
const (
	TypeFolder = "folder"
	TypeFile   = "file"
)

// ErrInvalidRoot is returned when the root is missing or not a directory.
var ErrInvalidRoot = errors.New("invalid tree root")

// Node is one folder or file. IDs are assigned in visit order from 0.
type Node struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// Edge links a folder to an entry inside it.
type Edge struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// DirError records a directory that could not be listed.
type DirError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Tree is the visualization graph.
type Tree struct {
	Nodes  []Node     `json:"nodes"`
	Edges  []Edge     `json:"edges"`
	Errors []DirError `json:"errors,omitempty"`
}

// Options configures Build.
type Options struct {
	// IgnorePatterns are base names (or filepath.Match patterns) skipped.
	// Default: none.
	IgnorePatterns []string

	// Logger receives unreadable-directory warnings. Default: slog.Default().
	Logger *slog.Logger
}

// Build walks root depth-first and returns one node per folder and file.
//
// Description:
//
//	The root folder is node 0, labeled with its base name. Entries are
//	visited in lexical order; each folder is fully expanded before its
//	next sibling. Directories that cannot be listed are recorded in
//	Tree.Errors and left as leaf folders.
//
// Outputs:
//
//	*Tree - Never nil on success.
//	error - ErrInvalidRoot, or the context error.
func Build(ctx context.Context, root string, opts *Options) (*Tree, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}

	b := &builder{opts: o, tree: &Tree{Nodes: []Node{}, Edges: []Edge{}}}
	label := filepath.Base(abs)
	if label == "" || label == string(filepath.Separator) {
		label = abs
	}
	rootID := b.add(label, TypeFolder, -1)
	if err := b.walk(ctx, abs, rootID); err != nil {
		return nil, err
	}
	return b.tree, nil
}

type builder struct {
	opts Options
	tree *Tree
}

func (b *builder) add(label, typ string, parent int) int {
	id := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{ID: id, Label: label, Type: typ})
	if parent >= 0 {
		b.tree.Edges = append(b.tree.Edges, Edge{From: parent, To: id})
	}
	return id
}

func (b *builder) walk(ctx context.Context, dir string, parent int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		b.opts.Logger.Warn("skipping unreadable directory",
			slog.String("path", dir),
			slog.String("error", err.Error()))
		b.tree.Errors = append(b.tree.Errors, DirError{Path: dir, Message: err.Error()})
	}
	for _, e := range entries {
		if b.ignored(e.Name()) {
			continue
		}
		if e.IsDir() {
			id := b.add(e.Name(), TypeFolder, parent)
			if err := b.walk(ctx, filepath.Join(dir, e.Name()), id); err != nil {
				return err
			}
			continue
		}
		b.add(e.Name(), TypeFile, parent)
	}
	return nil
}

func (b *builder) ignored(name string) bool {
	for _, p := range b.opts.IgnorePatterns {
		if name == p {
			return true
		}
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}
