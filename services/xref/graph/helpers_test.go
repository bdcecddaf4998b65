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
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeTree materializes files (root-relative slash paths) under a temp dir.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

// analyzeTree writes files and runs the full pipeline over them.
func analyzeTree(t *testing.T, files map[string]string, opts ...AnalyzerOption) *Result {
	t.Helper()
	root := writeTree(t, files)
	res, err := NewAnalyzer(append([]AnalyzerOption{WithLogger(discardLogger())}, opts...)...).
		Analyze(context.Background(), root)
	require.NoError(t, err)
	return res
}

func mustGet(t *testing.T, reg *Registry, path string) *Node {
	t.Helper()
	n, ok := reg.Get(path)
	require.True(t, ok, "missing node %s", path)
	return n
}
