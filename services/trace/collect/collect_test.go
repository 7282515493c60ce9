// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package collect

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tracemap/services/trace/ast"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func paths(files []*ast.ScannedFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func sampleTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"app/service.py":            "def run():\n    pass\n",
		"app.py":                    "x = 1\n",
		"src/lib.rs":                "fn main() {}\n",
		"web/index.ts":              "export function f() {}\n",
		"node_modules/pkg/index.js": "module.exports = {}\n",
		"gen/out.py":                "def g():\n    pass\n",
		"README.md":                 "# readme\n",
		"big.js":                    strings.Repeat("// padding\n", 10),
	})
}

func TestCollect(t *testing.T) {
	root := sampleTree(t)

	res, err := Collect(context.Background(), root, WithIgnore("gen/**"), WithMaxFileBytes(32), WithWorkers(2))
	require.NoError(t, err)

	assert.Equal(t, []string{"app.py", "app/service.py", "src/lib.rs", "web/index.ts"}, paths(res.Files))
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "big.js", res.Skipped[0].Path)
	assert.Equal(t, SkipTooLarge, res.Skipped[0].Reason)

	svc := res.Files[1]
	assert.Equal(t, ast.LanguagePython, svc.Language)
	assert.Equal(t, 2, svc.LineCount)
	assert.Equal(t, int64(20), svc.Size)
	assert.Len(t, svc.Hash, 16)
}

func TestCollect_Defaults(t *testing.T) {
	root := sampleTree(t)

	res, err := Collect(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"app.py", "app/service.py", "big.js", "gen/out.py", "src/lib.rs", "web/index.ts"}, paths(res.Files))
	assert.Empty(t, res.Skipped)
	assert.NotNil(t, res.Skipped)
}

func TestCollect_BareDirectoryPattern(t *testing.T) {
	root := sampleTree(t)

	res, err := Collect(context.Background(), root, WithIgnore("web", "app"))
	require.NoError(t, err)

	assert.Equal(t, []string{"app.py", "big.js", "gen/out.py", "src/lib.rs"}, paths(res.Files))
}

func TestCollect_IgnoreList(t *testing.T) {
	root := sampleTree(t)

	res, err := Collect(context.Background(), root, WithIgnoreList([]string{"**/*.py"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"big.js", "node_modules/pkg/index.js", "src/lib.rs", "web/index.ts"}, paths(res.Files))
}

func TestCollect_Errors(t *testing.T) {
	root := sampleTree(t)

	t.Run("invalid pattern", func(t *testing.T) {
		_, err := Collect(context.Background(), root, WithIgnore("src/[abc"))
		assert.ErrorIs(t, err, ErrInvalidPattern)
	})

	t.Run("root is a file", func(t *testing.T) {
		_, err := Collect(context.Background(), filepath.Join(root, "app.py"))
		assert.ErrorIs(t, err, ErrNotDirectory)
	})

	t.Run("missing root", func(t *testing.T) {
		_, err := Collect(context.Background(), filepath.Join(root, "nope"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Collect(ctx, root)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestValidatePatterns(t *testing.T) {
	assert.NoError(t, ValidatePatterns(DefaultIgnore))
	assert.NoError(t, ValidatePatterns([]string{"**/*.gen.ts", "vendor/{a,b}/**"}))
	assert.ErrorIs(t, ValidatePatterns([]string{"ok/**", "bad/[x"}), ErrInvalidPattern)
}
