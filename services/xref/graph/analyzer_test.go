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
	"path/filepath"
	"testing"

	"github.com/AleutianAI/pyxref/services/xref/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const corpusDir = "../../../test/fixtures/python-corpus"

func analyzeCorpus(t *testing.T, opts ...AnalyzerOption) *Result {
	t.Helper()
	res, err := NewAnalyzer(append([]AnalyzerOption{WithLogger(discardLogger())}, opts...)...).
		Analyze(context.Background(), corpusDir)
	require.NoError(t, err)
	return res
}

func TestAnalyzer_EndToEndCrossFolderImport(t *testing.T) {
	res := analyzeCorpus(t)
	script1 := mustGet(t, res.Registry, "folder1/folder1_1/script1.py")

	assert.Equal(t, []string{"script2.py::ClassB2"}, nodePaths(script1.ClassDependencies()))
	assert.Equal(t, []string{"script2.py::helper"}, nodePaths(script1.FunctionDependencies()))
	assert.Equal(t, []string{"script2.py"}, nodePaths(script1.ScriptDependencies()))

	alias, ok := script1.Alias("ClassB2")
	require.True(t, ok)
	assert.Equal(t, "script2.py::ClassB2", alias)
	alias, ok = script1.Alias("double")
	require.True(t, ok)
	assert.Equal(t, "script2.py::helper", alias)
}

func TestAnalyzer_CorpusShape(t *testing.T) {
	res := analyzeCorpus(t)

	assert.Equal(t, 5, res.Stats.Folders)
	assert.Equal(t, 6, res.Stats.Modules)
	assert.Equal(t, 5, res.Stats.ModulesAnalyzed)
	assert.Equal(t, RootPath, res.QueryDir)
	assert.NotEmpty(t, res.RunID)
	assert.True(t, filepath.IsAbs(res.RootDir))

	for _, m := range res.Registry.NodesOfKind(KindModule) {
		got, ok := res.Registry.Get(m.Path)
		require.True(t, ok)
		assert.Same(t, m, got)
	}

	require.Len(t, res.Errors, 1)
	assert.Equal(t, "broken/bad.py", res.Errors[0].Path)
	assert.Equal(t, StageParse, res.Errors[0].Stage)
	assert.True(t, errors.Is(res.Errors[0].Err, ast.ErrParseFailed))

	_, ok := res.Registry.GetKind("broken/bad.py", KindModule)
	assert.True(t, ok, "modules that fail to parse stay registered")
	_, ok = res.Parsed["broken/bad.py"]
	assert.False(t, ok)
}

func TestAnalyzer_CallTargets(t *testing.T) {
	res := analyzeCorpus(t)

	script1 := mustGet(t, res.Registry, "folder1/folder1_1/script1.py")
	targets := script1.CallTargets()
	assert.Equal(t, []string{"script2.ClassB2", "script2.ClassB2.method3", "script2.helper"}, targets["ClassA.run"])
	assert.Equal(t, []string{"script2.ClassB"}, targets["ClassA.other"])
	assert.Equal(t, []string{"ClassA", "a.run"}, targets["main"])

	app := mustGet(t, res.Registry, "pkg/app.py")
	targets = app.CallTargets()
	assert.Equal(t, []string{"pkg.factory.Factory", "pkg.factory.Factory.build"}, targets["make"])
	assert.Equal(t, []string{"unknown_module.DeepClass"}, targets["deep"])
}

func TestAnalyzer_MethodDependencies(t *testing.T) {
	res := analyzeCorpus(t)

	run := mustGet(t, res.Registry, "folder1/folder1_1/script1.py::ClassA::run")
	assert.Equal(t, []string{
		"script2.py::ClassB2",
		"script2.py::ClassB2::method3",
		"script2.py::helper",
	}, nodePaths(run.Dependencies()))

	method3 := mustGet(t, res.Registry, "script2.py::ClassB2::method3")
	assert.Equal(t, []string{"script2.py::ClassB2::method4"}, nodePaths(method3.Dependencies()))

	create := mustGet(t, res.Registry, "script2.py::ClassB2::create")
	assert.True(t, create.IsStatic())
	assert.Equal(t, []string{"script2.py::ClassB2"}, nodePaths(create.Dependencies()))

	build := mustGet(t, res.Registry, "pkg/factory.py::Factory::build")
	assert.Equal(t, []string{"pkg/factory.py::Widget"}, nodePaths(build.Dependencies()))

	assert.Equal(t, 7, res.Stats.LinkedDependencies)
	assert.Equal(t, []string{"F"}, mustGet(t, res.Registry, "pkg/factory.py::Factory").ClassAliases())
}

func TestAnalyzer_TolerantSyntax(t *testing.T) {
	res := analyzeCorpus(t, WithStrictSyntax(false))
	assert.Empty(t, res.Errors)
	assert.Equal(t, 6, res.Stats.ModulesAnalyzed)
	parsed := res.Parsed["broken/bad.py"]
	require.NotNil(t, parsed)
	assert.NotEmpty(t, parsed.Errors)
}

func TestAnalyzer_QueryDir(t *testing.T) {
	res := analyzeCorpus(t, WithQueryDir("pkg/"))

	assert.Equal(t, "pkg", res.QueryDir)
	assert.Equal(t, 6, res.Stats.Modules, "every module stays registered")
	assert.Equal(t, 3, res.Stats.ModulesAnalyzed)

	_, ok := res.Registry.Get("pkg/factory.py::Factory")
	assert.True(t, ok)
	_, ok = res.Registry.Get("script2.py::ClassB2")
	assert.False(t, ok, "modules outside the query dir are not extracted")
	assert.Empty(t, res.Errors, "the broken module is outside the query dir")
}

func TestAnalyzer_InvalidInputs(t *testing.T) {
	a := NewAnalyzer(WithLogger(discardLogger()))

	_, err := a.Analyze(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, ErrInvalidRoot)

	for _, dir := range []string{"missing", "../outside", "/abs", "script2.py"} {
		_, err = NewAnalyzer(WithLogger(discardLogger()), WithQueryDir(dir)).Analyze(context.Background(), corpusDir)
		assert.ErrorIs(t, err, ErrInvalidQueryDir, dir)
	}
}

func TestAnalyzer_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAnalyzer(WithLogger(discardLogger())).Analyze(ctx, corpusDir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzer_DeterministicAcrossWorkerCounts(t *testing.T) {
	one := analyzeCorpus(t, WithWorkers(1)).ToReport()
	many := analyzeCorpus(t, WithWorkers(8)).ToReport()
	assert.Equal(t, one.ReportHash, many.ReportHash)
}

func TestAnalyzer_MaxFileSize(t *testing.T) {
	res := analyzeTree(t, map[string]string{
		"big.py":   "x = 1\n" + string(make([]byte, 64)),
		"small.py": "y = 2\n",
	}, WithMaxFileSize(32))

	require.Len(t, res.Errors, 1)
	assert.Equal(t, "big.py", res.Errors[0].Path)
	assert.ErrorIs(t, res.Errors[0].Err, ast.ErrFileTooLarge)
}

func TestAnalyzer_AnalyzeCalls(t *testing.T) {
	a := NewAnalyzer(WithLogger(discardLogger()))

	targets, err := a.AnalyzeCalls(context.Background(), corpusDir, "pkg/app.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg.factory.Factory", "pkg.factory.Factory.build"}, targets["make"])
	assert.Equal(t, []string{"unknown_module.DeepClass"}, targets["deep"])

	abs, err := filepath.Abs(filepath.Join(corpusDir, "pkg", "app.py"))
	require.NoError(t, err)
	targets, err = a.AnalyzeCalls(context.Background(), "", abs)
	require.NoError(t, err)
	assert.Contains(t, targets, "make")

	_, err = a.AnalyzeCalls(context.Background(), corpusDir, "missing.py")
	assert.Error(t, err)
}

func TestInQueryDir(t *testing.T) {
	assert.True(t, inQueryDir("a/b.py", RootPath))
	assert.True(t, inQueryDir("a/b.py", "a"))
	assert.False(t, inQueryDir("ab/c.py", "a"))
	assert.True(t, inQueryDir("a/b/c.py", "a/b"))
}
