// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
)

// Size and depth limits shared by the parsers.
const (
	// DefaultMaxFileSize is the largest module the parser accepts (10MB).
	DefaultMaxFileSize int64 = 10 * 1024 * 1024

	// WarnFileSize is the size above which a parse is logged as large.
	WarnFileSize = 1024 * 1024

	// MaxExpressionDepth bounds recursion when converting callee and
	// assignment value expressions.
	MaxExpressionDepth = 50

	// MaxStepsPerFunction caps the body steps recorded for one function.
	MaxStepsPerFunction = 10000
)

// Parser turns module source text into a syntax Module.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use.
type Parser interface {
	// Parse builds the syntax model for one module. filePath is the
	// root-relative, slash-separated module path.
	Parse(ctx context.Context, content []byte, filePath string) (*Module, error)

	// Language returns the canonical language name, e.g. "python".
	Language() string

	// Extensions returns the file extensions handled, with leading dot.
	Extensions() []string
}

// ParseOptions controls what a parser extracts.
type ParseOptions struct {
	// StrictSyntax rejects modules whose tree contains syntax errors with
	// a ParseError wrapping ErrParseFailed. When false the partial tree is
	// used and the problem is recorded in Module.Errors.
	StrictSyntax bool

	// CollectBodies records assignment and call steps for function and
	// method bodies. Structural-only consumers may turn it off.
	CollectBodies bool
}

// DefaultParseOptions returns strict parsing with body collection.
func DefaultParseOptions() ParseOptions {
	return ParseOptions{
		StrictSyntax:  true,
		CollectBodies: true,
	}
}

// ParserRegistry maps file extensions to parsers.
//
// Thread Safety: Safe for concurrent use.
type ParserRegistry struct {
	mu          sync.RWMutex
	byExtension map[string]Parser
}

// NewParserRegistry returns a registry holding the given parsers.
func NewParserRegistry(parsers ...Parser) *ParserRegistry {
	r := &ParserRegistry{byExtension: make(map[string]Parser)}
	for _, p := range parsers {
		r.Register(p)
	}
	return r
}

// Register adds a parser under each of its extensions, replacing any
// earlier registration for the same extension.
func (r *ParserRegistry) Register(p Parser) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range p.Extensions() {
		r.byExtension[ext] = p
	}
}

// GetByExtension returns the parser for ext (".py").
func (r *ParserRegistry) GetByExtension(ext string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byExtension[ext]
	return p, ok
}

// Extensions lists the registered extensions in sorted order.
func (r *ParserRegistry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.byExtension))
	for ext := range r.byExtension {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// ParseFile selects a parser by the extension of filePath and parses content.
//
// Outputs:
//   - *Module: The syntax model.
//   - error: ErrUnsupportedLanguage when no parser handles the extension,
//     otherwise whatever the parser returned.
func (r *ParserRegistry) ParseFile(ctx context.Context, content []byte, filePath string) (*Module, error) {
	ext := filepath.Ext(filePath)
	p, ok := r.GetByExtension(ext)
	if !ok {
		return nil, fmt.Errorf("%s (%q): %w", filePath, ext, ErrUnsupportedLanguage)
	}
	return p.Parse(ctx, content, filePath)
}
