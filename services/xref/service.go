// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package xref serves cross-module analysis of Python trees over HTTP.
package xref

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/pyxref/services/xref/calls"
	"github.com/AleutianAI/pyxref/services/xref/config"
	"github.com/AleutianAI/pyxref/services/xref/filetree"
	"github.com/AleutianAI/pyxref/services/xref/graph"
)

// Sentinel errors for request validation.
var (
	// ErrRootNotAllowed is returned when a requested root lies outside
	// every allowed root.
	ErrRootNotAllowed = errors.New("root directory not allowed")

	// ErrInvalidModulePath is returned for a module path that is absolute
	// or escapes the root.
	ErrInvalidModulePath = errors.New("invalid module path")
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Config supplies the analyzer settings for every request.
	Config config.Config

	// AllowedRoots restricts the directories clients may analyze. Empty
	// allows any directory.
	AllowedRoots []string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultServiceConfig returns a config with the built-in analyzer settings.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{Config: config.Default()}
}

// Service runs analyses on behalf of the HTTP handlers.
//
// Thread Safety: Safe for concurrent use. Each request builds its own
// Analyzer; the snapshot manager and event hub are concurrency-safe.
type Service struct {
	cfg       ServiceConfig
	snapshots *graph.SnapshotManager
	events    *EventHub
	logger    *slog.Logger
}

// NewService creates a service without snapshot persistence.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:    cfg,
		events: NewEventHub(logger),
		logger: logger,
	}
}

// WithSnapshots enables snapshot endpoints backed by m.
func (s *Service) WithSnapshots(m *graph.SnapshotManager) *Service {
	s.snapshots = m
	return s
}

// Events returns the hub fed by every analysis the service runs.
func (s *Service) Events() *EventHub {
	return s.events
}

// Snapshots returns the snapshot manager, nil when not configured.
func (s *Service) Snapshots() *graph.SnapshotManager {
	return s.snapshots
}

func (s *Service) analyzer(queryDir string) *graph.Analyzer {
	opts := append(s.cfg.Config.AnalyzerOptions(), graph.WithLogger(s.logger))
	if queryDir != "" {
		opts = append(opts, graph.WithQueryDir(queryDir))
	}
	return graph.NewAnalyzer(opts...)
}

// Analyze runs the full pipeline over root and publishes the run to the
// event hub.
//
// Outputs:
//   - *graph.Result: The run's result.
//   - error: ErrRootNotAllowed, graph.ErrInvalidRoot,
//     graph.ErrInvalidQueryDir or the context error.
func (s *Service) Analyze(ctx context.Context, root, queryDir string) (*graph.Result, error) {
	abs, err := s.checkRoot(root)
	if err != nil {
		return nil, err
	}
	res, err := s.analyzer(queryDir).Analyze(ctx, abs)
	if err != nil {
		return nil, err
	}

	ev := graph.RunEvent{
		RunID:    res.RunID,
		RootDir:  res.RootDir,
		At:       time.Now(),
		Duration: res.Duration,
		Stats:    res.Stats,
	}
	if err := s.events.RecordRun(ctx, ev); err != nil {
		s.logger.Warn("publishing run event failed", slog.String("error", err.Error()))
	}
	return res, nil
}

// Calls infers call targets for a single module under root.
func (s *Service) Calls(ctx context.Context, root, module string) (calls.Targets, error) {
	abs, err := s.checkRoot(root)
	if err != nil {
		return nil, err
	}
	cleaned := path.Clean(filepath.ToSlash(module))
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return nil, fmt.Errorf("%w: %s", ErrInvalidModulePath, module)
	}
	return s.analyzer("").AnalyzeCalls(ctx, abs, cleaned)
}

// Tree returns the visualization tree for root.
func (s *Service) Tree(ctx context.Context, root string) (*filetree.Tree, error) {
	abs, err := s.checkRoot(root)
	if err != nil {
		return nil, err
	}
	return filetree.Build(ctx, abs, &filetree.Options{
		IgnorePatterns: s.cfg.Config.Ignore,
		Logger:         s.logger,
	})
}

// checkRoot makes root absolute and enforces AllowedRoots.
func (s *Service) checkRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", graph.ErrInvalidRoot, root, err)
	}
	if len(s.cfg.AllowedRoots) == 0 {
		return abs, nil
	}
	for _, allowed := range s.cfg.AllowedRoots {
		base, err := filepath.Abs(allowed)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(base, abs)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrRootNotAllowed, root)
}
