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
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileOp_String(t *testing.T) {
	assert.Equal(t, "create", FileOpCreate.String())
	assert.Equal(t, "write", FileOpWrite.String())
	assert.Equal(t, "remove", FileOpRemove.String())
	assert.Equal(t, "rename", FileOpRename.String())
	assert.Equal(t, "unknown", FileOp(99).String())
}

func TestDedupeChanges(t *testing.T) {
	now := time.Now()
	got := dedupeChanges([]FileChange{
		{Path: "/a.py", Op: FileOpCreate, Time: now},
		{Path: "/b.py", Op: FileOpWrite, Time: now},
		{Path: "/a.py", Op: FileOpWrite, Time: now.Add(time.Second)},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "/a.py", got[0].Path)
	assert.Equal(t, FileOpWrite, got[0].Op)
	assert.Equal(t, "/b.py", got[1].Path)
}

func TestFileWatcher_Relevant(t *testing.T) {
	w, err := NewFileWatcher(t.TempDir(), nil, nil)
	require.NoError(t, err)
	defer w.Stop()

	assert.True(t, w.relevant("/x/mod.py"))
	assert.False(t, w.relevant("/x/README.md"))
	assert.False(t, w.relevant("/x/__pycache__"))
}

func TestFileWatcher_DeliversDebouncedBatch(t *testing.T) {
	root := writeTree(t, map[string]string{"pkg/a.py": ""})

	var mu sync.Mutex
	var got []FileChange
	w, err := NewFileWatcher(root, func(changes []FileChange) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, changes...)
	}, &FileWatcherOptions{DebounceWindow: 50 * time.Millisecond, Logger: discardLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()
	assert.True(t, w.IsWatching())

	target := filepath.Join(root, "pkg", "a.py")
	require.NoError(t, os.WriteFile(target, []byte("x = 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "notes.txt"), []byte("ignored"), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range got {
			if c.Path == target {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	for _, c := range got {
		assert.Equal(t, ".py", filepath.Ext(c.Path))
	}
	mu.Unlock()

	w.Stop()
	assert.False(t, w.IsWatching())
}
