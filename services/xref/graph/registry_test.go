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
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeKind_String(t *testing.T) {
	want := map[NodeKind]string{
		KindFolder:   "folder",
		KindModule:   "module",
		KindClass:    "class",
		KindFunction: "function",
		KindMethod:   "method",
	}
	for k, s := range want {
		assert.Equal(t, s, k.String())
	}
	assert.Equal(t, "unknown", NodeKind(0).String())
}

func TestRegistry_InsertDuplicate(t *testing.T) {
	reg := NewRegistry()
	first := NewModule("m.py", "m.py")
	require.NoError(t, reg.Insert(first))

	err := reg.Insert(NewModule("m.py", "m.py"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicatePath))

	got, ok := reg.Get("m.py")
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_KindQueries(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Insert(NewFolder("root", RootPath)))
	require.NoError(t, reg.Insert(NewModule("b.py", "b.py")))
	require.NoError(t, reg.Insert(NewModule("a.py", "a.py")))
	require.NoError(t, reg.Insert(NewClass("C", "a.py::C")))

	_, ok := reg.GetKind("a.py::C", KindFunction)
	assert.False(t, ok)
	_, ok = reg.GetKind("a.py::C", KindClass)
	assert.True(t, ok)

	mods := reg.NodesOfKind(KindModule)
	require.Len(t, mods, 2)
	assert.Equal(t, "a.py", mods[0].Path)
	assert.Equal(t, "b.py", mods[1].Path)

	counts := reg.CountByKind()
	assert.Equal(t, 1, counts[KindFolder])
	assert.Equal(t, 2, counts[KindModule])
	assert.Equal(t, 1, counts[KindClass])
}

func TestRegistry_ConcurrentInsert(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := fmt.Sprintf("m%d.py", i)
			_ = reg.Insert(NewModule(p, p))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, reg.Len())
}

func TestNode_AddChild(t *testing.T) {
	folder := NewFolder("pkg", "pkg")
	mod := NewModule("mod.py", "pkg/mod.py")

	added, err := folder.AddChild(mod)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = folder.AddChild(mod)
	require.NoError(t, err)
	assert.False(t, added, "re-attaching is a no-op")
	assert.Len(t, folder.Children(), 1)

	child, ok := folder.Child("mod.py")
	require.True(t, ok)
	assert.Same(t, mod, child)
	assert.Same(t, folder, mod.Parent())

	other := NewFolder("other", "other")
	_, err = other.AddChild(mod)
	assert.ErrorIs(t, err, ErrAlreadyAttached)
	assert.Same(t, folder, mod.Parent(), "parent is never reassigned")
}

func TestNode_NameTrimmed(t *testing.T) {
	n := NewClass("  Widget ", "m.py::Widget")
	assert.Equal(t, "Widget", n.Name)
}

func TestNode_ModuleDependencySets(t *testing.T) {
	mod := NewModule("a.py", "a.py")
	dep := NewModule("b.py", "b.py")
	cls := NewClass("C", "b.py::C")
	fn := NewFunction("f", "b.py::f")

	assert.True(t, mod.AddScriptDependency(dep))
	assert.False(t, mod.AddScriptDependency(NewModule("b.py", "b.py")), "membership is by path")
	assert.True(t, mod.AddClassDependency(cls))
	assert.True(t, mod.AddFunctionDependency(fn))

	assert.Equal(t, []string{"b.py"}, nodePaths(mod.ScriptDependencies()))
	assert.Equal(t, []string{"b.py::C"}, nodePaths(mod.ClassDependencies()))
	assert.Equal(t, []string{"b.py::f"}, nodePaths(mod.FunctionDependencies()))

	mod.SetAlias("C", "b.py::C")
	got, ok := mod.Alias("C")
	require.True(t, ok)
	assert.Equal(t, "b.py::C", got)

	aliases := mod.Aliases()
	aliases["C"] = "mutated"
	got, _ = mod.Alias("C")
	assert.Equal(t, "b.py::C", got, "Aliases returns a copy")
}

func TestNode_KindSpecificAccessorsOnOtherKinds(t *testing.T) {
	fn := NewFunction("f", "a.py::f")
	assert.False(t, fn.AddScriptDependency(NewModule("b.py", "b.py")))
	assert.Nil(t, fn.ScriptDependencies())
	assert.Nil(t, fn.Aliases())
	assert.Nil(t, fn.ClassAliases())
	assert.False(t, fn.IsStatic())
	assert.False(t, fn.AddDependency(fn))
	assert.Nil(t, fn.Dependencies())
}

func TestNode_ClassAliasesAndMethodDeps(t *testing.T) {
	cls := NewClass("Circle", "shapes.py::Circle")
	assert.True(t, cls.AddClassAlias("Round"))
	assert.True(t, cls.AddClassAlias("Disk"))
	assert.False(t, cls.AddClassAlias("Round"))
	assert.Equal(t, []string{"Disk", "Round"}, cls.ClassAliases())

	m := NewMethod("area", "shapes.py::Circle::area", true)
	assert.True(t, m.IsStatic())
	assert.True(t, m.AddDependency(cls))
	assert.False(t, m.AddDependency(cls))
	assert.Equal(t, []string{"shapes.py::Circle"}, nodePaths(m.Dependencies()))
}

func TestSymbolPath(t *testing.T) {
	assert.Equal(t, "pkg/mod.py::Widget", SymbolPath("pkg/mod.py", "Widget"))
	assert.Equal(t, "pkg/mod.py::Widget::build", SymbolPath(SymbolPath("pkg/mod.py", "Widget"), "build"))
}
