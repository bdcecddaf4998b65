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

func TestDependencyLinker_Resolve(t *testing.T) {
	res := analyzeCorpus(t)
	linker := NewDependencyLinker(res.Registry, nil)

	script1 := mustGet(t, res.Registry, "folder1/folder1_1/script1.py")
	classA := mustGet(t, res.Registry, "folder1/folder1_1/script1.py::ClassA")
	classB2 := mustGet(t, res.Registry, "script2.py::ClassB2")
	script2 := mustGet(t, res.Registry, "script2.py")

	tests := []struct {
		name   string
		module *Node
		class  *Node
		target string
		want   string
	}{
		{"module prefix class", script1, classA, "script2.ClassB2", "script2.py::ClassB2"},
		{"module prefix method", script1, classA, "script2.ClassB2.method3", "script2.py::ClassB2::method3"},
		{"package module", script1, nil, "pkg.factory.Factory.build", "pkg/factory.py::Factory::build"},
		{"same module name", script1, nil, "ClassA", "folder1/folder1_1/script1.py::ClassA"},
		{"self member", script2, classB2, "self.method4", "script2.py::ClassB2::method4"},
		{"cls member", script2, classB2, "cls.create", "script2.py::ClassB2::create"},
		{"local class method", script1, nil, "ClassA.run", "folder1/folder1_1/script1.py::ClassA::run"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := linker.Resolve(tt.module, tt.class, tt.target)
			require.True(t, ok)
			assert.Equal(t, tt.want, got.Path)
		})
	}

	for _, target := range []string{"", "print", "a.run", "unknown_module.DeepClass", "script2", "self.missing"} {
		_, ok := linker.Resolve(script1, classA, target)
		assert.False(t, ok, target)
	}
}

func TestDependencyLinker_IgnoresNonModules(t *testing.T) {
	linker := NewDependencyLinker(NewRegistry(), nil)
	assert.Equal(t, 0, linker.Link(nil))
	assert.Equal(t, 0, linker.Link(NewFolder("x", "x")))
}

func TestDependencyLinker_NoSelfEdges(t *testing.T) {
	res := analyzeTree(t, map[string]string{
		"loop.py": "class Loop:\n    def again(self):\n        return self.again()\n",
	})
	again := mustGet(t, res.Registry, "loop.py::Loop::again")
	assert.Empty(t, again.Dependencies())
}
