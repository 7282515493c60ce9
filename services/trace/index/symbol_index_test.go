// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tracemap/services/trace/ast"
)

const testNestedPython = `class Service:
    def run(self, x):
        def inner(y):
            return y
        return inner(x)

def run():
    pass
`

func pyFile(path, src string) *ast.ScannedFile {
	return ast.NewScannedFile(path, ast.LanguagePython, []byte(src))
}

func buildIndex(t *testing.T, files ...*ast.ScannedFile) *Index {
	t.Helper()
	idx, err := Build(context.Background(), files, WithWorkers(4))
	require.NoError(t, err)
	return idx
}

func TestBuild_PartialFailure(t *testing.T) {
	var files []*ast.ScannedFile
	for i := 0; i < 9; i++ {
		files = append(files, pyFile(fmt.Sprintf("pkg/mod%d.py", i), fmt.Sprintf("def f%d():\n    return %d\n", i, i)))
	}
	files = append(files, ast.NewScannedFile("pkg/broken.py", ast.LanguagePython, []byte("def g():\n    \xff\n")))

	idx := buildIndex(t, files...)

	assert.Len(t, idx.Files(), 9)
	assert.Len(t, idx.Functions(), 9)
	errs := idx.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "pkg/broken.py", errs[0].Path)
	assert.True(t, IsInvalidContent(errs[0]))
	assert.NotEmpty(t, errs[0].Message)

	stats := idx.Stats()
	assert.Equal(t, 9, stats.FilesScanned)
	assert.Equal(t, 1, stats.FilesErrored)
	assert.Equal(t, 9, stats.ByLanguage[ast.LanguagePython])
}

func TestBuild_CarriesCollectorErrors(t *testing.T) {
	idx, err := Build(context.Background(),
		[]*ast.ScannedFile{
			pyFile("b.py", "def f():\n    pass\n"),
			ast.NewScannedFile("c.py", ast.LanguagePython, []byte("def g():\n    \xff\n")),
		},
		WithFileErrors(FileError{Path: "z/locked.py", Message: "permission denied"}, FileError{Path: "a/locked.py", Message: "permission denied"}),
	)
	require.NoError(t, err)

	errs := idx.Errors()
	require.Len(t, errs, 3)
	assert.Equal(t, "a/locked.py", errs[0].Path)
	assert.Equal(t, "c.py", errs[1].Path)
	assert.Equal(t, "z/locked.py", errs[2].Path)
	assert.Equal(t, 3, idx.Stats().FilesErrored)
	assert.Equal(t, 1, idx.Stats().FilesScanned)
}

func TestBuild_DeterministicAcrossInputOrder(t *testing.T) {
	a := pyFile("b/second.py", "def two():\n    one()\n")
	b := pyFile("a/first.py", "def one():\n    pass\n")
	c := ast.NewScannedFile("src/lib.rs", ast.LanguageRust, []byte("fn root() {}\n"))

	first := buildIndex(t, a, b, c)
	second := buildIndex(t, c, b, a)

	ids := func(idx *Index) []string {
		var out []string
		for _, s := range idx.Symbols() {
			out = append(out, s.ID)
		}
		return out
	}
	assert.Equal(t, ids(first), ids(second))
	assert.Equal(t, []string{"a/first.py:1:one", "b/second.py:1:two", "src/lib.rs:1:root"}, ids(first))
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	idx, err := Build(ctx, []*ast.ScannedFile{pyFile("a.py", "def f():\n    pass\n")})
	assert.Nil(t, idx)
	assert.True(t, errors.Is(err, context.Canceled), "err = %v", err)
}

func TestBuild_DuplicatePathAndNilFile(t *testing.T) {
	idx := buildIndex(t,
		pyFile("a.py", "def f():\n    pass\n"),
		pyFile("a.py", "def g():\n    pass\n"),
		nil,
	)
	require.Len(t, idx.Files(), 1)
	errs := idx.Errors()
	require.Len(t, errs, 2)
	assert.True(t, errors.Is(errs[0], ErrNilFile), "errs[0] = %v", errs[0])
	assert.True(t, errors.Is(errs[1], ErrDuplicatePath), "errs[1] = %v", errs[1])
}

func TestIndex_NestingAndLookup(t *testing.T) {
	idx := buildIndex(t, pyFile("svc.py", testNestedPython))

	run := idx.Lookup("svc.py", "Service.run")
	require.Len(t, run, 1)
	assert.Equal(t, ast.SymbolKindMethod, run[0].Kind)

	top := idx.Lookup("svc.py", "run")
	require.Len(t, top, 1, "qualified match wins over bare matches")
	assert.Equal(t, 7, top[0].StartLine)

	inner := idx.Lookup("svc.py", "inner")
	require.Len(t, inner, 1)
	assert.Equal(t, "Service.run.inner", inner[0].Name)

	nested := idx.Nested(run[0])
	require.Len(t, nested, 1)
	assert.Equal(t, inner[0].ID, nested[0].ID)

	parent, ok := idx.Parent(inner[0])
	require.True(t, ok)
	assert.Equal(t, run[0].ID, parent.ID)
	_, ok = idx.Parent(top[0])
	assert.False(t, ok)

	calls := idx.Calls(run[0])
	require.Len(t, calls, 1)
	assert.Equal(t, "inner", calls[0].Name)
	assert.Equal(t, 5, calls[0].Line)

	assert.Len(t, idx.ByName("run"), 2)
	got, ok := idx.ByID("svc.py:7:run")
	require.True(t, ok)
	assert.Equal(t, top[0], got)
}

func TestIndex_ReturnsCopies(t *testing.T) {
	idx := buildIndex(t, pyFile("svc.py", testNestedPython))
	syms := idx.ByFile("svc.py")
	require.NotEmpty(t, syms)
	syms[0] = nil
	assert.NotNil(t, idx.ByFile("svc.py")[0])
	assert.Empty(t, idx.ByFile("missing.py"))
}

func TestIndex_Body(t *testing.T) {
	idx := buildIndex(t, pyFile("svc.py", testNestedPython))
	top := idx.Lookup("svc.py", "run")[0]
	body, err := idx.Body(top)
	require.NoError(t, err)
	assert.Equal(t, "    pass", body.Text)

	_, err = idx.Body(&ast.Symbol{FilePath: "nope.py"})
	assert.True(t, errors.Is(err, ErrUnknownFile))
}
