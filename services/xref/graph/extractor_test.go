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
	"testing"

	"github.com/AleutianAI/pyxref/services/xref/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSource(t *testing.T, path, src string) *ast.Module {
	t.Helper()
	mod, err := ast.NewPythonParser().Parse(context.Background(), []byte(src), path)
	require.NoError(t, err)
	return mod
}

func newModuleInRegistry(t *testing.T, reg *Registry, path string) *Node {
	t.Helper()
	m := NewModule(path, path)
	require.NoError(t, reg.Insert(m))
	return m
}

func TestExtractor_TopLevelDefinitions(t *testing.T) {
	src := `import os

@dataclass
class Point:
    x: int

    def norm(self):
        def inner():
            pass
        return 0

    @staticmethod
    def origin():
        return Point(0)

    @classmethod
    def parse(cls, s):
        return cls(int(s))


def helper():
    class Hidden:
        pass


async def fetch():
    pass


@cache
def cached():
    pass
`
	reg := NewRegistry()
	mod := newModuleInRegistry(t, reg, "pkg/geo.py")

	stats, err := NewExtractor(reg, discardLogger()).Extract(mod, parseSource(t, "pkg/geo.py", src))
	require.NoError(t, err)
	assert.Equal(t, ExtractStats{Classes: 1, Functions: 3, Methods: 3}, stats)

	point := mustGet(t, reg, "pkg/geo.py::Point")
	assert.Equal(t, KindClass, point.Kind)
	assert.Same(t, mod, point.Parent())

	norm := mustGet(t, reg, "pkg/geo.py::Point::norm")
	assert.Equal(t, KindMethod, norm.Kind)
	assert.False(t, norm.IsStatic())
	assert.True(t, mustGet(t, reg, "pkg/geo.py::Point::origin").IsStatic())
	assert.True(t, mustGet(t, reg, "pkg/geo.py::Point::parse").IsStatic())

	for _, p := range []string{"pkg/geo.py::helper", "pkg/geo.py::fetch", "pkg/geo.py::cached"} {
		assert.Equal(t, KindFunction, mustGet(t, reg, p).Kind, p)
	}

	for _, p := range []string{"pkg/geo.py::Hidden", "pkg/geo.py::helper::Hidden", "pkg/geo.py::Point::norm::inner"} {
		_, ok := reg.Get(p)
		assert.False(t, ok, "%s must not be extracted", p)
	}
}

func TestExtractor_RedefinitionKeepsFirst(t *testing.T) {
	src := `class Temp:
    @property
    def value(self):
        return self._v

    @value.setter
    def value(self, v):
        self._v = v


def f():
    return 1


def f():
    return 2
`
	reg := NewRegistry()
	mod := newModuleInRegistry(t, reg, "t.py")

	stats, err := NewExtractor(reg, discardLogger()).Extract(mod, parseSource(t, "t.py", src))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Methods)
	assert.Equal(t, 1, stats.Functions)
	assert.Equal(t, 2, stats.Duplicates)

	cls := mustGet(t, reg, "t.py::Temp")
	assert.Len(t, cls.Children(), 1)
}

func TestExtractor_WrongKind(t *testing.T) {
	reg := NewRegistry()
	_, err := NewExtractor(reg, nil).Extract(NewFolder("pkg", "pkg"), &ast.Module{})
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestExtractor_NilParsed(t *testing.T) {
	reg := NewRegistry()
	mod := newModuleInRegistry(t, reg, "a.py")
	stats, err := NewExtractor(reg, nil).Extract(mod, nil)
	require.NoError(t, err)
	assert.Equal(t, ExtractStats{}, stats)
}
