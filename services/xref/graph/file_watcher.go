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
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileOp is the kind of a file system change.
type FileOp int

const (
	FileOpCreate FileOp = iota
	FileOpWrite
	FileOpRemove
	FileOpRename
)

// String returns the operation name.
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "create"
	case FileOpWrite:
		return "write"
	case FileOpRemove:
		return "remove"
	case FileOpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// FileChange is one debounced change to a source file.
type FileChange struct {
	// Path is the absolute path of the changed file.
	Path string
	Op   FileOp
	Time time.Time
}

// FileChangeHandler receives a deduplicated batch of changes.
type FileChangeHandler func(changes []FileChange)

// FileWatcherOptions configures a FileWatcher.
type FileWatcherOptions struct {
	// DebounceWindow is how long the tree must stay quiet before a batch
	// is delivered. Default: 300ms
	DebounceWindow time.Duration

	// Extensions limits reported file changes. Directory events are
	// always tracked. Default: [".py"]
	Extensions []string

	// IgnorePatterns are base names (or filepath.Match patterns) skipped.
	IgnorePatterns []string

	// BufferSize is the capacity of the change channel. Default: 1000
	BufferSize int

	// Logger receives watcher errors. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultFileWatcherOptions returns the defaults.
func DefaultFileWatcherOptions() FileWatcherOptions {
	return FileWatcherOptions{
		DebounceWindow: 300 * time.Millisecond,
		Extensions:     []string{".py"},
		IgnorePatterns: append([]string(nil), DefaultIgnorePatterns...),
		BufferSize:     1000,
	}
}

// FileWatcher watches a tree for source changes and delivers them in
// debounced batches.
//
// Thread Safety:
//
//	Safe for concurrent use. The handler is called from a single goroutine.
type FileWatcher struct {
	root    string
	watcher *fsnotify.Watcher
	handler FileChangeHandler
	opts    FileWatcherOptions
	exts    map[string]struct{}

	changes  chan FileChange
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	watching bool
}

// NewFileWatcher creates a watcher for root. A nil opts uses the defaults.
func NewFileWatcher(root string, handler FileChangeHandler, opts *FileWatcherOptions) (*FileWatcher, error) {
	if opts == nil {
		defaults := DefaultFileWatcherOptions()
		opts = &defaults
	}
	o := *opts
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = 300 * time.Millisecond
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 1000
	}
	if len(o.Extensions) == 0 {
		o.Extensions = []string{".py"}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	exts := make(map[string]struct{}, len(o.Extensions))
	for _, e := range o.Extensions {
		exts[e] = struct{}{}
	}
	return &FileWatcher{
		root:    root,
		watcher: w,
		handler: handler,
		opts:    o,
		exts:    exts,
		changes: make(chan FileChange, o.BufferSize),
		done:    make(chan struct{}),
	}, nil
}

// Start adds every directory under root to the watch list and starts the
// event and debounce goroutines. Both exit on Stop or ctx cancellation.
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop stops watching. Safe to call more than once.
func (w *FileWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether the watcher is active.
func (w *FileWatcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

func (w *FileWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			w.opts.Logger.Debug("watch walk error", slog.String("path", p), slog.String("error", err.Error()))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && matchesIgnore(d.Name(), w.opts.IgnorePatterns) {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
}

// relevant reports whether a change to p should be delivered.
func (w *FileWatcher) relevant(p string) bool {
	if matchesIgnore(filepath.Base(p), w.opts.IgnorePatterns) {
		return false
	}
	_, ok := w.exts[filepath.Ext(p)]
	return ok
}

func (w *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.opts.Logger.Warn("watching new directory failed",
							slog.String("path", event.Name),
							slog.String("error", err.Error()))
					}
					continue
				}
			}
			if !w.relevant(event.Name) {
				continue
			}
			select {
			case w.changes <- FileChange{Path: event.Name, Op: convertOp(event.Op), Time: time.Now()}:
			default:
				w.opts.Logger.Warn("change buffer full, dropping event", slog.String("path", event.Name))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.opts.Logger.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

func convertOp(op fsnotify.Op) FileOp {
	switch {
	case op.Has(fsnotify.Create):
		return FileOpCreate
	case op.Has(fsnotify.Remove):
		return FileOpRemove
	case op.Has(fsnotify.Rename):
		return FileOpRename
	default:
		return FileOpWrite
	}
}

func (w *FileWatcher) debounceLoop(ctx context.Context) {
	var batch []FileChange
	timer := time.NewTimer(w.opts.DebounceWindow)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	flush := func() {
		if len(batch) > 0 && w.handler != nil {
			w.handler(dedupeChanges(batch))
		}
		batch = batch[:0]
		pending = false
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			flush()
			return
		case <-w.done:
			timer.Stop()
			flush()
			return
		case change := <-w.changes:
			batch = append(batch, change)
			timer.Reset(w.opts.DebounceWindow)
			pending = true
		case <-timer.C:
			if pending {
				flush()
			}
		}
	}
}

// dedupeChanges keeps the latest change per path, in first-seen order.
func dedupeChanges(changes []FileChange) []FileChange {
	seen := make(map[string]int, len(changes))
	out := make([]FileChange, 0, len(changes))
	for _, c := range changes {
		if i, ok := seen[c.Path]; ok {
			out[i] = c
			continue
		}
		seen[c.Path] = len(out)
		out = append(out, c)
	}
	return out
}
