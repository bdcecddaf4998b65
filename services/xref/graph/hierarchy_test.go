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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildHierarchy(t *testing.T, root string) *Hierarchy {
	t.Helper()
	opts := DefaultHierarchyOptions()
	opts.Logger = discardLogger()
	h, err := NewHierarchyBuilder(&opts).Build(context.Background(), root)
	require.NoError(t, err)
	return h
}

func TestHierarchy_FoldersAndModules(t *testing.T) {
	root := writeTree(t, map[string]string{
		"c.py":                  "",
		"a/b/c.py":              "",
		"a/b/d.py":              "",
		"a/README.md":           "# not python",
		"x/y/z/deep.py":         "",
		"__pycache__/c.cpython": "",
		".git/config":           "",
		".venv/lib/site.py":     "",
	})
	h := buildHierarchy(t, root)

	assert.Equal(t, RootPath, h.Root.Path)
	assert.Equal(t, filepath.Base(root), h.Root.Name)
	assert.Empty(t, h.Errors)

	for _, p := range []string{"a", "a/b", "x", "x/y", "x/y/z"} {
		n := mustGet(t, h.Registry, p)
		assert.Equal(t, KindFolder, n.Kind, p)
	}
	for _, p := range []string{"c.py", "a/b/c.py", "a/b/d.py", "x/y/z/deep.py"} {
		n := mustGet(t, h.Registry, p)
		assert.Equal(t, KindModule, n.Kind, p)
		assert.Equal(t, p, n.Path)
	}

	for _, p := range []string{"a/README.md", "__pycache__", ".git", ".venv", ".venv/lib/site.py"} {
		_, ok := h.Registry.Get(p)
		assert.False(t, ok, "%s should not be registered", p)
	}
}

func TestHierarchy_ParentChildLinks(t *testing.T) {
	root := writeTree(t, map[string]string{
		"pkg/sub/mod.py": "",
		"top.py":         "",
	})
	h := buildHierarchy(t, root)

	pkg, ok := h.Root.Child("pkg")
	require.True(t, ok)
	sub, ok := pkg.Child("sub")
	require.True(t, ok)
	mod, ok := sub.Child("mod.py")
	require.True(t, ok)

	assert.Equal(t, "pkg/sub/mod.py", mod.Path)
	assert.Same(t, sub, mod.Parent())
	assert.Same(t, pkg, sub.Parent())
	assert.Same(t, h.Root, pkg.Parent())
	assert.Nil(t, h.Root.Parent())

	top, ok := h.Root.Child("top.py")
	require.True(t, ok)
	assert.Same(t, h.Root, top.Parent())
}

func TestHierarchy_RegistryIdentity(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.py":     "",
		"b/c.py":   "",
		"b/d/e.py": "",
	})
	h := buildHierarchy(t, root)

	for _, m := range h.Registry.NodesOfKind(KindModule) {
		got, ok := h.Registry.Get(m.Path)
		require.True(t, ok)
		assert.Same(t, m, got)
	}
	assert.Len(t, h.Registry.NodesOfKind(KindModule), 3)
}

func TestHierarchy_CustomExtensions(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.py":  "",
		"b.pyi": "",
	})
	h, err := NewHierarchyBuilder(&HierarchyOptions{
		Extensions: []string{".py", ".pyi"},
		Logger:     discardLogger(),
	}).Build(context.Background(), root)
	require.NoError(t, err)

	_, ok := h.Registry.GetKind("b.pyi", KindModule)
	assert.True(t, ok)
}

func TestHierarchy_InvalidRoot(t *testing.T) {
	b := NewHierarchyBuilder(nil)

	_, err := b.Build(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrInvalidRoot)

	file := filepath.Join(t.TempDir(), "file.py")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = b.Build(context.Background(), file)
	assert.ErrorIs(t, err, ErrInvalidRoot)
}

func TestHierarchy_UnreadableDirectorySkipped(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	root := writeTree(t, map[string]string{
		"ok/a.py":     "",
		"locked/b.py": "",
	})
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	h := buildHierarchy(t, root)
	_, ok := h.Registry.Get("ok/a.py")
	assert.True(t, ok)
	_, ok = h.Registry.Get("locked/b.py")
	assert.False(t, ok)
	require.Len(t, h.Errors, 1)
	assert.Equal(t, "locked", h.Errors[0].Path)
	assert.Equal(t, StageWalk, h.Errors[0].Stage)
}

func TestHierarchy_Canceled(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": ""})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHierarchyBuilder(nil).Build(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}
