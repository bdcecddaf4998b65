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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shapesTree = map[string]string{
	"pkg/__init__.py": "",
	"pkg/shapes.py": `PI = 3.14


class Circle:
    def area(self):
        return PI


def unit():
    return Circle()
`,
}

func withFiles(base map[string]string, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func TestImports_WholeModule(t *testing.T) {
	res := analyzeTree(t, withFiles(shapesTree, map[string]string{
		"app.py": "import pkg.shapes\nimport pkg.shapes as sh, os\n",
	}))
	app := mustGet(t, res.Registry, "app.py")

	assert.Equal(t, []string{"pkg/shapes.py"}, nodePaths(app.ScriptDependencies()))
	assert.Equal(t, map[string]string{
		"pkg.shapes": "pkg/shapes.py",
		"sh":         "pkg/shapes.py",
	}, app.Aliases())
}

func TestImports_SelectiveAliasFidelity(t *testing.T) {
	res := analyzeTree(t, withFiles(shapesTree, map[string]string{
		"app.py": "from pkg.shapes import Circle as Round, unit\n",
	}))
	app := mustGet(t, res.Registry, "app.py")

	assert.Equal(t, []string{"pkg/shapes.py::Circle"}, nodePaths(app.ClassDependencies()))
	assert.Equal(t, []string{"pkg/shapes.py::unit"}, nodePaths(app.FunctionDependencies()))
	assert.Empty(t, app.ScriptDependencies())

	round, ok := app.Alias("Round")
	require.True(t, ok)
	assert.Equal(t, "pkg/shapes.py::Circle", round)
	unit, ok := app.Alias("unit")
	require.True(t, ok)
	assert.Equal(t, "pkg/shapes.py::unit", unit)

	circle := mustGet(t, res.Registry, "pkg/shapes.py::Circle")
	assert.Equal(t, []string{"Round"}, circle.ClassAliases())
}

func TestImports_FallbackToScriptDependency(t *testing.T) {
	files := withFiles(shapesTree, map[string]string{
		"app.py": "from pkg.shapes import PI as TAU\n",
	})

	t.Run("alias not recorded by default", func(t *testing.T) {
		res := analyzeTree(t, files)
		app := mustGet(t, res.Registry, "app.py")
		assert.Equal(t, []string{"pkg/shapes.py"}, nodePaths(app.ScriptDependencies()))
		_, ok := app.Alias("TAU")
		assert.False(t, ok)
		assert.Equal(t, 1, res.Stats.FallbackEdges)
	})

	t.Run("alias recorded when enabled", func(t *testing.T) {
		res := analyzeTree(t, files, WithFallbackAliases(true))
		app := mustGet(t, res.Registry, "app.py")
		got, ok := app.Alias("TAU")
		require.True(t, ok)
		assert.Equal(t, "pkg/shapes.py", got)
	})
}

func TestImports_RelativeLevels(t *testing.T) {
	res := analyzeTree(t, map[string]string{
		"a/x.py":   "class Thing:\n    pass\n",
		"y.py":     "",
		"z.py":     "",
		"a/b/c.py": "from .x import Thing\nfrom .. import y\nfrom ... import z\n",
	})
	c := mustGet(t, res.Registry, "a/b/c.py")

	assert.Equal(t, []string{"a/x.py::Thing"}, nodePaths(c.ClassDependencies()),
		"level 1 from a/b/c.py resolves against a/")
	assert.Equal(t, []string{"y.py"}, nodePaths(c.ScriptDependencies()),
		"level 2 resolves against the root; level 3 strips past it")
	assert.Equal(t, map[string]string{
		"Thing": "a/x.py::Thing",
		"y":     "y.py",
	}, c.Aliases())
}

func TestImports_ClosedWorld(t *testing.T) {
	res := analyzeTree(t, map[string]string{
		"app.py": `import os
import numpy as np
from collections import OrderedDict
from nowhere.deep import thing
from pkg import *
`,
	})
	app := mustGet(t, res.Registry, "app.py")

	assert.Empty(t, app.ScriptDependencies())
	assert.Empty(t, app.ClassDependencies())
	assert.Empty(t, app.FunctionDependencies())
	assert.Empty(t, app.Aliases())
	assert.Empty(t, res.Errors)
	assert.Equal(t, 4, res.Stats.UnresolvedImports)
}

func TestImports_WildcardIgnored(t *testing.T) {
	res := analyzeTree(t, withFiles(shapesTree, map[string]string{
		"app.py": "from pkg.shapes import *\n",
	}))
	app := mustGet(t, res.Registry, "app.py")
	assert.Empty(t, app.ScriptDependencies())
	assert.Empty(t, app.ClassDependencies())
	assert.Empty(t, app.Aliases())
}

func TestImports_NestedImportsOnlyInImportTable(t *testing.T) {
	res := analyzeTree(t, withFiles(shapesTree, map[string]string{
		"app.py": "def f():\n    from pkg.shapes import Circle\n    return Circle()\n",
	}))
	app := mustGet(t, res.Registry, "app.py")

	assert.Empty(t, app.ClassDependencies())
	assert.Equal(t, map[string]string{"Circle": "pkg.shapes.Circle"}, app.ImportTable())
	assert.Equal(t, []string{"pkg.shapes.Circle"}, app.CallTargets()["f"])
}

func TestImports_RelativeModuleForm(t *testing.T) {
	res := analyzeTree(t, map[string]string{
		"a/helpers.py": "",
		"a/b/c.py":     "from . import helpers as h, missing\n",
	})
	c := mustGet(t, res.Registry, "a/b/c.py")
	assert.Equal(t, []string{"a/helpers.py"}, nodePaths(c.ScriptDependencies()))
	assert.Equal(t, map[string]string{"h": "a/helpers.py"}, c.Aliases())
}

func TestImports_Idempotent(t *testing.T) {
	res := analyzeTree(t, withFiles(shapesTree, map[string]string{
		"app.py": "import pkg.shapes\nfrom pkg.shapes import Circle as C, unit, PI\n",
	}))
	app := mustGet(t, res.Registry, "app.py")

	before := moduleReport(app)
	resolver := NewImportResolver(res.Registry, ResolverOptions{Logger: discardLogger()})
	for i := 0; i < 2; i++ {
		_, err := resolver.Resolve(app, res.Parsed["app.py"])
		require.NoError(t, err)
	}
	assert.Equal(t, before, moduleReport(app))
	assert.Equal(t, []string{"C"}, mustGet(t, res.Registry, "pkg/shapes.py::Circle").ClassAliases())
}

func TestImports_WrongKind(t *testing.T) {
	_, err := NewImportResolver(NewRegistry(), DefaultResolverOptions()).Resolve(NewFolder("x", "x"), nil)
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestRelativeBase(t *testing.T) {
	tests := []struct {
		module string
		level  int
		want   string
		ok     bool
	}{
		{"a/b/c.py", 0, "", true},
		{"a/b/c.py", 1, "a", true},
		{"a/b/c.py", 2, "", true},
		{"a/b/c.py", 3, "", false},
		{"c.py", 1, "", false},
	}
	for _, tt := range tests {
		got, ok := relativeBase(tt.module, tt.level)
		assert.Equal(t, tt.ok, ok, "%s level %d", tt.module, tt.level)
		assert.Equal(t, tt.want, got, "%s level %d", tt.module, tt.level)
	}
}
