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
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/pyxref/services/xref/ast"
	"github.com/AleutianAI/pyxref/services/xref/calls"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// AnalyzerOptions configures an Analyzer.
type AnalyzerOptions struct {
	// Workers bounds the per-module worker pool. Default: runtime.NumCPU().
	Workers int

	// QueryDir restricts extraction, resolution and inference to modules
	// under this root-relative folder. Every module is still registered.
	// Empty or "." analyzes the whole tree.
	QueryDir string

	// Extensions lists analyzable source extensions. Default: [".py"]
	Extensions []string

	// IgnorePatterns are base names skipped by the walk.
	IgnorePatterns []string

	// FallbackAliases records an alias for selective imports that fall
	// back to a script dependency.
	FallbackAliases bool

	// StrictSyntax excludes modules whose source has syntax errors.
	// Default: true
	StrictSyntax bool

	// MaxFileSize is the largest module parsed. Default: ast.DefaultMaxFileSize.
	MaxFileSize int64

	// IncludeMethods infers call targets for methods as well as functions.
	// Default: true
	IncludeMethods bool

	// Logger receives pipeline logs. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultAnalyzerOptions returns the defaults.
func DefaultAnalyzerOptions() AnalyzerOptions {
	return AnalyzerOptions{
		Workers:        runtime.NumCPU(),
		Extensions:     []string{".py"},
		IgnorePatterns: append([]string(nil), DefaultIgnorePatterns...),
		StrictSyntax:   true,
		MaxFileSize:    ast.DefaultMaxFileSize,
		IncludeMethods: true,
	}
}

// AnalyzerOption is a functional option for NewAnalyzer.
type AnalyzerOption func(*AnalyzerOptions)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) AnalyzerOption {
	return func(o *AnalyzerOptions) {
		o.Workers = n
	}
}

// WithQueryDir restricts analysis to a root-relative folder.
func WithQueryDir(dir string) AnalyzerOption {
	return func(o *AnalyzerOptions) {
		o.QueryDir = dir
	}
}

// WithExtensions sets the analyzable extensions.
func WithExtensions(exts ...string) AnalyzerOption {
	return func(o *AnalyzerOptions) {
		o.Extensions = exts
	}
}

// WithIgnorePatterns replaces the walk ignore list.
func WithIgnorePatterns(patterns ...string) AnalyzerOption {
	return func(o *AnalyzerOptions) {
		o.IgnorePatterns = patterns
	}
}

// WithFallbackAliases toggles aliases for fallback script dependencies.
func WithFallbackAliases(enabled bool) AnalyzerOption {
	return func(o *AnalyzerOptions) {
		o.FallbackAliases = enabled
	}
}

// WithStrictSyntax toggles exclusion of modules with syntax errors.
func WithStrictSyntax(strict bool) AnalyzerOption {
	return func(o *AnalyzerOptions) {
		o.StrictSyntax = strict
	}
}

// WithMaxFileSize sets the largest module parsed, in bytes.
func WithMaxFileSize(bytes int64) AnalyzerOption {
	return func(o *AnalyzerOptions) {
		o.MaxFileSize = bytes
	}
}

// WithIncludeMethods toggles method call inference.
func WithIncludeMethods(include bool) AnalyzerOption {
	return func(o *AnalyzerOptions) {
		o.IncludeMethods = include
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) AnalyzerOption {
	return func(o *AnalyzerOptions) {
		o.Logger = logger
	}
}

// Stats summarizes one analysis run.
type Stats struct {
	Folders            int `json:"folders"`
	Modules            int `json:"modules"`
	Classes            int `json:"classes"`
	Functions          int `json:"functions"`
	Methods            int `json:"methods"`
	DuplicateDefs      int `json:"duplicate_definitions"`
	ModulesAnalyzed    int `json:"modules_analyzed"`
	ScriptEdges        int `json:"script_edges"`
	ClassEdges         int `json:"class_edges"`
	FunctionEdges      int `json:"function_edges"`
	FallbackEdges      int `json:"fallback_edges"`
	UnresolvedImports  int `json:"unresolved_imports"`
	CallTargets        int `json:"call_targets"`
	LinkedDependencies int `json:"linked_dependencies"`
	FileErrors         int `json:"file_errors"`
}

// Result is the output of Analyze.
type Result struct {
	// RunID identifies this run in logs, reports and snapshots.
	RunID string

	// RootDir is the absolute analysis root.
	RootDir string

	// QueryDir is the normalized query folder, "." for the whole tree.
	QueryDir string

	// Root is the folder node at path ".".
	Root *Node

	// Registry holds every node created by the run.
	Registry *Registry

	// Parsed holds the syntax model of each analyzed module, by path.
	Parsed map[string]*ast.Module

	// Errors are the non-fatal file errors, sorted by path.
	Errors []FileError

	Stats     Stats
	StartedAt time.Time
	Duration  time.Duration
}

// Analyzer runs the full pipeline: hierarchy, extraction, import
// resolution, call inference and dependency linking.
//
// Description:
//
//	The hierarchy is built sequentially. The remaining work runs per
//	module on a bounded errgroup pool, in three barriers: parse and
//	extract every module, then resolve every module's imports (which
//	needs every symbol registered), then infer and link.
//
// Thread Safety:
//
//	Safe for concurrent use. Each Analyze call owns its own registry.
type Analyzer struct {
	opts       AnalyzerOptions
	parsers    *ast.ParserRegistry
	inferencer *calls.Inferencer
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(opts ...AnalyzerOption) *Analyzer {
	o := DefaultAnalyzerOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if len(o.Extensions) == 0 {
		o.Extensions = []string{".py"}
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = ast.DefaultMaxFileSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	parser := ast.NewPythonParser(
		ast.WithPythonMaxFileSize(o.MaxFileSize),
		ast.WithPythonParseOptions(ast.ParseOptions{StrictSyntax: o.StrictSyntax, CollectBodies: true}),
	)
	return &Analyzer{
		opts:    o,
		parsers: ast.NewParserRegistry(parser),
		inferencer: calls.NewInferencer(
			calls.WithIncludeMethods(o.IncludeMethods),
			calls.WithLogger(o.Logger),
		),
	}
}

// Options returns a copy of the effective options.
func (a *Analyzer) Options() AnalyzerOptions {
	return a.opts
}

// Analyze runs the pipeline over rootDir.
//
// Inputs:
//   - ctx: Cancellation aborts between modules.
//   - rootDir: The directory to analyze.
//
// Outputs:
//   - *Result: The populated registry, per-module syntax models and stats.
//   - error: ErrInvalidRoot, ErrInvalidQueryDir, or the context error.
//     Per-file failures are reported in Result.Errors instead.
func (a *Analyzer) Analyze(ctx context.Context, rootDir string) (*Result, error) {
	started := time.Now()
	runID := uuid.NewString()

	ctx, span := tracer.Start(ctx, "Analyzer.Analyze",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.String("root", rootDir),
			attribute.Int("workers", a.opts.Workers),
		))
	defer span.End()

	logger := a.opts.Logger.With(slog.String("run_id", runID))

	res, err := a.analyze(ctx, rootDir, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordRunFailed()
		return nil, err
	}

	res.RunID = runID
	res.StartedAt = started
	res.Duration = time.Since(started)
	recordRunMetrics(res.Stats, res.Errors)

	span.SetAttributes(
		attribute.Int("modules", res.Stats.Modules),
		attribute.Int("modules_analyzed", res.Stats.ModulesAnalyzed),
		attribute.Int("file_errors", res.Stats.FileErrors),
	)
	logger.Info("analysis complete",
		slog.String("root", res.RootDir),
		slog.String("query_dir", res.QueryDir),
		slog.Int("modules", res.Stats.Modules),
		slog.Int("modules_analyzed", res.Stats.ModulesAnalyzed),
		slog.Int("classes", res.Stats.Classes),
		slog.Int("functions", res.Stats.Functions),
		slog.Int("methods", res.Stats.Methods),
		slog.Int("call_targets", res.Stats.CallTargets),
		slog.Int("file_errors", res.Stats.FileErrors),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// analyze holds the stage sequence.
func (a *Analyzer) analyze(ctx context.Context, rootDir string, logger *slog.Logger) (*Result, error) {
	stageStart := time.Now()
	h, err := NewHierarchyBuilder(&HierarchyOptions{
		Extensions:     a.opts.Extensions,
		IgnorePatterns: a.opts.IgnorePatterns,
		Logger:         logger,
	}).Build(ctx, rootDir)
	if err != nil {
		return nil, err
	}
	stageDurationSeconds.WithLabelValues("hierarchy").Observe(time.Since(stageStart).Seconds())

	queryDir, err := normalizeQueryDir(a.opts.QueryDir)
	if err != nil {
		return nil, err
	}
	if q, ok := h.Registry.Get(queryDir); !ok || q.Kind != KindFolder {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQueryDir, a.opts.QueryDir)
	}

	res := &Result{
		RootDir:  h.RootDir,
		QueryDir: queryDir,
		Root:     h.Root,
		Registry: h.Registry,
		Parsed:   make(map[string]*ast.Module),
		Errors:   append([]FileError(nil), h.Errors...),
	}

	var modules []*Node
	for _, m := range h.Registry.NodesOfKind(KindModule) {
		if inQueryDir(m.Path, queryDir) {
			modules = append(modules, m)
		}
	}

	var mu sync.Mutex
	stats := &res.Stats

	// Stage 1: parse and extract.
	stageStart = time.Now()
	extractor := NewExtractor(h.Registry, logger)
	err = a.forEach(ctx, "extract", modules, func(ctx context.Context, m *Node) error {
		parsed, ferr := a.parseModule(ctx, h.RootDir, m.Path)
		if ferr != nil {
			logger.Warn("skipping module",
				slog.String("path", m.Path),
				slog.String("stage", string(ferr.Stage)),
				slog.String("error", ferr.Err.Error()))
			mu.Lock()
			res.Errors = append(res.Errors, *ferr)
			mu.Unlock()
			return nil
		}

		es, err := extractor.Extract(m, parsed)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.Errors = append(res.Errors, FileError{Path: m.Path, Stage: StageExtract, Err: err})
			return nil
		}
		res.Parsed[m.Path] = parsed
		stats.Classes += es.Classes
		stats.Functions += es.Functions
		stats.Methods += es.Methods
		stats.DuplicateDefs += es.Duplicates
		return nil
	})
	if err != nil {
		return nil, err
	}
	stageDurationSeconds.WithLabelValues("extract").Observe(time.Since(stageStart).Seconds())

	analyzed := make([]*Node, 0, len(res.Parsed))
	for _, m := range modules {
		if _, ok := res.Parsed[m.Path]; ok {
			analyzed = append(analyzed, m)
		}
	}

	// Stage 2: resolve imports against the fully populated registry.
	stageStart = time.Now()
	resolver := NewImportResolver(h.Registry, ResolverOptions{
		Extensions:      a.opts.Extensions,
		FallbackAliases: a.opts.FallbackAliases,
		Logger:          logger,
	})
	var rs ResolveStats
	err = a.forEach(ctx, "resolve", analyzed, func(_ context.Context, m *Node) error {
		s, err := resolver.Resolve(m, res.Parsed[m.Path])
		if err != nil {
			return err
		}
		mu.Lock()
		rs.Add(s)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	stats.ScriptEdges = rs.ScriptEdges
	stats.ClassEdges = rs.ClassEdges
	stats.FunctionEdges = rs.FunctionEdges
	stats.FallbackEdges = rs.Fallbacks
	stats.UnresolvedImports = rs.Unresolved
	stageDurationSeconds.WithLabelValues("resolve").Observe(time.Since(stageStart).Seconds())

	// Stage 3: infer call targets and link method dependencies.
	stageStart = time.Now()
	linker := NewDependencyLinker(h.Registry, a.opts.Extensions)
	err = a.forEach(ctx, "infer", analyzed, func(ctx context.Context, m *Node) error {
		targets := a.inferencer.InferModule(ctx, res.Parsed[m.Path], m.ImportTable())
		m.SetCallTargets(targets)
		linked := linker.Link(m)

		n := 0
		for _, t := range targets {
			n += len(t)
		}
		mu.Lock()
		stats.CallTargets += n
		stats.LinkedDependencies += linked
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	stageDurationSeconds.WithLabelValues("infer").Observe(time.Since(stageStart).Seconds())

	counts := h.Registry.CountByKind()
	stats.Folders = counts[KindFolder]
	stats.Modules = counts[KindModule]
	stats.ModulesAnalyzed = len(analyzed)

	sort.SliceStable(res.Errors, func(i, j int) bool {
		return res.Errors[i].Path < res.Errors[j].Path
	})
	stats.FileErrors = len(res.Errors)
	return res, nil
}

// forEach runs fn for every module on the bounded pool and waits for all.
func (a *Analyzer) forEach(ctx context.Context, stage string, modules []*Node, fn func(context.Context, *Node) error) error {
	ctx, span := tracer.Start(ctx, "Analyzer."+stage,
		trace.WithAttributes(attribute.Int("modules", len(modules))))
	defer span.End()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for _, m := range modules {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, m)
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return err
	}
	// errgroup's derived context is canceled on Wait; report the caller's.
	return ctx.Err()
}

// parseModule reads and parses one module. Failures come back as a
// FileError for the result.
func (a *Analyzer) parseModule(ctx context.Context, rootDir, modulePath string) (*ast.Module, *FileError) {
	content, err := os.ReadFile(filepath.Join(rootDir, filepath.FromSlash(modulePath)))
	if err != nil {
		return nil, &FileError{Path: modulePath, Stage: StageRead, Err: err}
	}
	parsed, err := a.parsers.ParseFile(ctx, content, modulePath)
	if err != nil {
		return nil, &FileError{Path: modulePath, Stage: StageParse, Err: err}
	}
	return parsed, nil
}

// AnalyzeCalls infers call targets for a single module without building
// the corpus graph.
//
// Description:
//
//	The module's own selective imports form the import table. Relative
//	imports contribute their module text without the leading dots.
//
// Inputs:
//   - ctx: Used for cancellation of the parse.
//   - rootDir: Base for a relative modulePath.
//   - modulePath: The module file, absolute or relative to rootDir.
//
// Outputs:
//   - calls.Targets: Function key to sorted call targets.
//   - error: Read or parse failure.
func (a *Analyzer) AnalyzeCalls(ctx context.Context, rootDir, modulePath string) (calls.Targets, error) {
	full := modulePath
	if !filepath.IsAbs(full) {
		full = filepath.Join(rootDir, filepath.FromSlash(modulePath))
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", modulePath, err)
	}
	parsed, err := a.parsers.ParseFile(ctx, content, filepath.ToSlash(modulePath))
	if err != nil {
		return nil, err
	}
	return a.inferencer.InferModule(ctx, parsed, parsed.ImportTable()), nil
}

// normalizeQueryDir cleans a user-supplied folder into registry form.
func normalizeQueryDir(dir string) (string, error) {
	dir = strings.TrimSpace(filepath.ToSlash(dir))
	if dir == "" {
		return RootPath, nil
	}
	cleaned := path.Clean(dir)
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %s must be relative to the root", ErrInvalidQueryDir, dir)
	}
	return cleaned, nil
}

// inQueryDir reports whether p lies under the folder q.
func inQueryDir(p, q string) bool {
	if q == RootPath {
		return true
	}
	return p == q || strings.HasPrefix(p, q+PathSeparator)
}
