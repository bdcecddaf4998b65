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
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// RunEvent summarizes one analysis run made in watch mode.
type RunEvent struct {
	RunID    string        `json:"run_id"`
	RootDir  string        `json:"root_dir"`
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration_ns"`
	Stats    Stats         `json:"stats"`

	// Changed lists the root-relative files that triggered the run.
	// Empty for the initial run.
	Changed []string `json:"changed,omitempty"`

	// Diff compares this run to the previous one. Nil for the initial run.
	Diff *ReportDiff `json:"diff,omitempty"`

	// Report is the full report of the run.
	Report *Report `json:"-"`
}

// RunSink receives every watch-mode run.
type RunSink interface {
	RecordRun(ctx context.Context, ev RunEvent) error
}

// RunSinkFunc adapts a function to RunSink.
type RunSinkFunc func(ctx context.Context, ev RunEvent) error

// RecordRun calls f.
func (f RunSinkFunc) RecordRun(ctx context.Context, ev RunEvent) error {
	return f(ctx, ev)
}

// WatchOptions configures a WatchSession.
type WatchOptions struct {
	Watcher FileWatcherOptions
	Sinks   []RunSink
	Logger  *slog.Logger
}

// WatchSession re-runs the analyzer whenever source files change and
// fans each run out to its sinks.
//
// Thread Safety: Safe for concurrent use. Runs are serialized.
type WatchSession struct {
	analyzer *Analyzer
	root     string
	opts     WatchOptions
	logger   *slog.Logger

	runMu sync.Mutex
	mu    sync.RWMutex
	last  *Report
}

// NewWatchSession creates a session over root.
func NewWatchSession(analyzer *Analyzer, root string, opts WatchOptions) *WatchSession {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.Watcher.Extensions) == 0 {
		opts.Watcher.Extensions = analyzer.Options().Extensions
	}
	if opts.Watcher.IgnorePatterns == nil {
		opts.Watcher.IgnorePatterns = analyzer.Options().IgnorePatterns
	}
	if opts.Watcher.Logger == nil {
		opts.Watcher.Logger = logger
	}
	return &WatchSession{analyzer: analyzer, root: root, opts: opts, logger: logger}
}

// Run analyzes once, then re-analyzes on every debounced batch of
// changes until ctx is canceled. It returns nil on cancellation.
func (s *WatchSession) Run(ctx context.Context) error {
	if _, err := s.Reanalyze(ctx, nil); err != nil {
		return err
	}

	w, err := NewFileWatcher(s.root, func(changes []FileChange) {
		if _, err := s.Reanalyze(ctx, changes); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("re-analysis failed", slog.String("error", err.Error()))
		}
	}, &s.opts.Watcher)
	if err != nil {
		return err
	}
	defer w.Stop()
	if err := w.Start(ctx); err != nil {
		return err
	}

	s.logger.Info("watching for changes", slog.String("root", s.root))
	<-ctx.Done()
	return nil
}

// Reanalyze runs the analyzer, diffs against the previous run and
// notifies the sinks. Sink errors are logged, not returned.
func (s *WatchSession) Reanalyze(ctx context.Context, changes []FileChange) (*RunEvent, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	res, err := s.analyzer.Analyze(ctx, s.root)
	if err != nil {
		return nil, err
	}
	rep := res.ToReport()

	ev := RunEvent{
		RunID:    res.RunID,
		RootDir:  res.RootDir,
		At:       res.StartedAt,
		Duration: res.Duration,
		Stats:    res.Stats,
		Report:   rep,
	}
	for _, c := range changes {
		rel, err := filepath.Rel(res.RootDir, c.Path)
		if err != nil {
			rel = c.Path
		}
		ev.Changed = append(ev.Changed, filepath.ToSlash(rel))
	}

	s.mu.Lock()
	prev := s.last
	s.last = rep
	s.mu.Unlock()

	if prev != nil {
		diff, err := DiffReports(prev, rep, prev.RunID, rep.RunID)
		if err != nil {
			return nil, err
		}
		ev.Diff = diff
		s.logger.Info("re-analysis complete",
			slog.Int("changed_files", len(ev.Changed)),
			slog.Int("nodes_added", len(diff.NodesAdded)),
			slog.Int("nodes_removed", len(diff.NodesRemoved)),
			slog.Int("edges_added", len(diff.EdgesAdded)),
			slog.Int("edges_removed", len(diff.EdgesRemoved)),
			slog.Duration("duration", res.Duration))
	}

	for _, sink := range s.opts.Sinks {
		if err := sink.RecordRun(ctx, ev); err != nil {
			s.logger.Warn("run sink failed", slog.String("run_id", ev.RunID), slog.String("error", err.Error()))
		}
	}
	return &ev, nil
}

// Latest returns the report of the most recent run, or nil.
func (s *WatchSession) Latest() *Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// RecordRun saves the run's report as a snapshot labeled "watch".
func (m *SnapshotManager) RecordRun(ctx context.Context, ev RunEvent) error {
	if ev.Report == nil {
		return nil
	}
	_, err := m.Save(ctx, ev.Report, "watch")
	return err
}
