// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package calls

import (
	"context"
	"testing"

	"github.com/AleutianAI/pyxref/services/xref/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inferSource(t *testing.T, src string, opts ...Option) Targets {
	t.Helper()
	mod, err := ast.NewPythonParser().Parse(context.Background(), []byte(src), "app/main.py")
	require.NoError(t, err)
	return NewInferencer(opts...).InferModule(context.Background(), mod, mod.ImportTable())
}

func TestInfer_TypedLocalFromImportedConstructor(t *testing.T) {
	targets := inferSource(t, `from pkg.factory import Factory

def run():
    x = Factory()
    x.build()
`)
	assert.Equal(t, []string{"pkg.factory.Factory", "pkg.factory.Factory.build"}, targets["run"])
}

func TestInfer_Rules(t *testing.T) {
	src := `from pkg import widgets, service, mod
from x import build as make
import os

def attr_constructor():
    w = widgets.Widget()
    w.run()

def imported_object():
    service.start()

def one_level_chain():
    mod.sub.fn()

def literal_receivers():
    os.getcwd()
    self.helper.do()

def bare_calls():
    make()
    print()

def unresolved_chain():
    unknown_module.DeepClass().method()

def deep_chain():
    a.b.c.d()

def reassigned():
    x = widgets.Widget()
    x = compute()
    x.build()

def no_calls():
    y = 1
`
	targets := inferSource(t, src)

	tests := []struct {
		fn   string
		want []string
	}{
		{"attr_constructor", []string{"pkg.widgets.Widget", "pkg.widgets.Widget.run"}},
		{"imported_object", []string{"pkg.service.start"}},
		{"one_level_chain", []string{"pkg.mod.sub.fn"}},
		{"literal_receivers", []string{"os.getcwd", "self.helper.do"}},
		{"bare_calls", []string{"print", "x.build"}},
		{"unresolved_chain", []string{"unknown_module.DeepClass"}},
		{"deep_chain", []string{}},
		{"reassigned", []string{"compute", "pkg.widgets.Widget", "pkg.widgets.Widget.build"}},
		{"no_calls", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			got, ok := targets[tt.fn]
			require.True(t, ok, "no entry for %s", tt.fn)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInfer_RebindingResolvesValueBeforeBinding(t *testing.T) {
	targets := inferSource(t, `from pkg.builder import Builder

def run():
    b = Builder()
    b = b.with_x()
    b.build()
`)
	assert.Equal(t, []string{
		"pkg.builder.Builder",
		"pkg.builder.Builder.build",
		"pkg.builder.Builder.with_x",
	}, targets["run"])
}

func TestInfer_NonConstructorAssignmentKeepsType(t *testing.T) {
	targets := inferSource(t, `from pkg.factory import Factory

def run():
    x = Factory()
    x = 5
    x.build()
`)
	assert.Equal(t, []string{"pkg.factory.Factory", "pkg.factory.Factory.build"}, targets["run"])
}

func TestInfer_ChainedAssignmentTypesEveryTarget(t *testing.T) {
	targets := inferSource(t, `from pkg.factory import Factory

def run():
    a = b = Factory()
    a.left()
    b.right()
`)
	assert.Equal(t, []string{
		"pkg.factory.Factory",
		"pkg.factory.Factory.left",
		"pkg.factory.Factory.right",
	}, targets["run"])
}

func TestInfer_Methods(t *testing.T) {
	src := `from script2 import ClassB2

class ClassA:
    def method1(self, b):
        ClassB2.method3(b)

    @staticmethod
    def helper():
        pass
`
	t.Run("included by default", func(t *testing.T) {
		targets := inferSource(t, src)
		assert.Equal(t, []string{"script2.ClassB2.method3"}, targets[MethodKey("ClassA", "method1")])
		assert.Empty(t, targets[MethodKey("ClassA", "helper")])
	})

	t.Run("excluded", func(t *testing.T) {
		targets := inferSource(t, src, WithIncludeMethods(false))
		assert.Empty(t, targets)
	})
}

func TestInfer_HandBuiltSteps(t *testing.T) {
	name := func(n string) *ast.Expr { return &ast.Expr{Kind: ast.ExprName, Name: n} }
	attr := func(obj *ast.Expr, n string) *ast.Expr { return &ast.Expr{Kind: ast.ExprAttribute, Name: n, Object: obj} }
	call := func(callee *ast.Expr) *ast.Expr { return &ast.Expr{Kind: ast.ExprCall, Object: callee} }

	fn := ast.FunctionDef{
		Name: "f",
		Body: []ast.Step{
			{Kind: ast.StepAssign, Targets: []string{"c"}, Value: call(attr(name("m"), "Client"))},
			{Kind: ast.StepCall, Callee: attr(name("c"), "send")},
			{Kind: ast.StepCall, Callee: nil},
			{Kind: ast.StepCall, Callee: &ast.Expr{Kind: ast.ExprOther, Text: "handlers[0]"}},
			{Kind: ast.StepCall, Callee: attr(call(name("factory")), "make")},
		},
	}
	got := NewInferencer().Infer(fn, map[string]string{"m": "net.http"})
	assert.Equal(t, []string{"net.http.Client.send"}, got)
}

func TestNormalize_IsIdentityCopy(t *testing.T) {
	in := Targets{"f": {"a.b", "c"}}
	out := Normalize(in)
	assert.Equal(t, in, out)

	out["f"][0] = "changed"
	assert.Equal(t, "a.b", in["f"][0], "Normalize must not alias its input")
}
