// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/pyxref/services/xref/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(body), 0o644))
	return root
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []string{".py"}, cfg.Extensions)
	assert.True(t, cfg.StrictSyntaxEnabled())
	assert.True(t, cfg.IncludeMethodsEnabled())
	assert.False(t, cfg.FallbackAliases)
	assert.Equal(t, ":8090", cfg.Server.Addr)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Extensions, cfg.Extensions)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.True(t, cfg.StrictSyntaxEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	root := writeConfig(t, `
extensions: [".py", ".pyi"]
ignore: ["build"]
query_dir: src
workers: 4
max_file_size: 2048
strict_syntax: false
fallback_aliases: true
include_methods: false
snapshots:
  dir: snaps
server:
  addr: "127.0.0.1:9000"
  rate_limit: 5
  burst: 10
influx:
  url: http://localhost:8086
  org: dev
  bucket: xref
`)
	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, []string{".py", ".pyi"}, cfg.Extensions)
	assert.Equal(t, []string{"build"}, cfg.Ignore)
	assert.Equal(t, "src", cfg.QueryDir)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, int64(2048), cfg.MaxFileSize)
	assert.False(t, cfg.StrictSyntaxEnabled())
	assert.True(t, cfg.FallbackAliases)
	assert.False(t, cfg.IncludeMethodsEnabled())
	assert.Equal(t, filepath.Join(root, "snaps"), cfg.SnapshotDir(root))
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Server.Burst)
	assert.Equal(t, "xref", cfg.Influx.Bucket)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed yaml", "workers: [1"},
		{"unknown key", "wrokers: 2\n"},
		{"negative workers", "workers: -1\n"},
		{"extension without dot", "extensions: [py]\n"},
		{"bad addr", "server:\n  addr: nowhere\n"},
		{"bad influx url", "influx:\n  url: not a url\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestConfig_SnapshotDirDefault(t *testing.T) {
	assert.Equal(t, filepath.Join("/p", ".xref", "snapshots"), Default().SnapshotDir("/p"))
	cfg := Default()
	cfg.Snapshots.Dir = "/abs/snaps"
	assert.Equal(t, "/abs/snaps", cfg.SnapshotDir("/p"))
}

func TestConfig_AnalyzerOptionsApply(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "a.py"), []byte("class A:\n    pass\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.py"), []byte("class B:\n    pass\n"), 0o644))

	cfg := Default()
	cfg.QueryDir = "src"
	cfg.Workers = 2

	a := graph.NewAnalyzer(cfg.AnalyzerOptions()...)
	assert.Equal(t, 2, a.Options().Workers)

	res, err := a.Analyze(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.ModulesAnalyzed)
}
