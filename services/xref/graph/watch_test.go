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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchSession_Reanalyze(t *testing.T) {
	root := writeTree(t, map[string]string{
		"lib.py": "class A:\n    pass\n",
		"app.py": "from lib import A\n",
	})

	var events []RunEvent
	sink := RunSinkFunc(func(_ context.Context, ev RunEvent) error {
		events = append(events, ev)
		return nil
	})
	failing := RunSinkFunc(func(context.Context, RunEvent) error {
		return errors.New("sink down")
	})

	s := NewWatchSession(NewAnalyzer(WithLogger(discardLogger())), root, WatchOptions{
		Sinks:  []RunSink{failing, sink},
		Logger: discardLogger(),
	})
	assert.Nil(t, s.Latest())

	first, err := s.Reanalyze(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, first.Diff)
	assert.Empty(t, first.Changed)
	require.NotNil(t, s.Latest())

	libPath := filepath.Join(root, "lib.py")
	require.NoError(t, os.WriteFile(libPath, []byte("class A:\n    pass\n\n\nclass B:\n    pass\n"), 0o644))

	second, err := s.Reanalyze(context.Background(), []FileChange{{Path: libPath, Op: FileOpWrite, Time: time.Now()}})
	require.NoError(t, err)
	require.NotNil(t, second.Diff)
	assert.Equal(t, []string{"lib.py"}, second.Changed)
	assert.Equal(t, []string{"lib.py::B"}, second.Diff.NodesAdded)
	assert.Equal(t, first.RunID, second.Diff.BaseID)
	assert.Same(t, second.Report, s.Latest())

	require.Len(t, events, 2, "a failing sink does not stop the others")
	assert.Equal(t, second.RunID, events[1].RunID)
}

func TestWatchSession_InvalidRoot(t *testing.T) {
	s := NewWatchSession(NewAnalyzer(WithLogger(discardLogger())), filepath.Join(t.TempDir(), "gone"), WatchOptions{})
	err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrInvalidRoot)
}

func TestWatchSession_RunStopsOnCancel(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": ""})
	s := NewWatchSession(NewAnalyzer(WithLogger(discardLogger())), root, WatchOptions{Logger: discardLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return s.Latest() != nil }, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
