// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/tracemap/services/trace/audit"
	"github.com/AleutianAI/tracemap/services/trace/collect"
	"github.com/AleutianAI/tracemap/services/trace/config"
	"github.com/AleutianAI/tracemap/services/trace/graph"
	"github.com/AleutianAI/tracemap/services/trace/index"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const serviceV1 = `def helper(x):
    return x * 2


def run(x):
    if x > 0:
        return helper(x)
    return 0
`

const serviceV2 = `def run(x):
    if x > 0:
        return x * 2
    return 0
`

func writeProject(t *testing.T, service string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "app"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app", "service.py"), []byte(service), 0o644))
	return root
}

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"--no-color"}, args...), strings.NewReader(""), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestIndex(t *testing.T) {
	root := writeProject(t, serviceV1)
	res := runCLI(t, "index", root)
	require.Equal(t, exitOK, res.code, res.stderr)

	var doc struct {
		Symbols []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"symbols"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &doc))
	var names []string
	for _, s := range doc.Symbols {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "helper")
	assert.Contains(t, names, "run")
	assert.Contains(t, res.stderr, "1 scanned, 0 errored")
}

func TestIndexNDJSON(t *testing.T) {
	root := writeProject(t, serviceV1)
	res := runCLI(t, "index", root, "--format", "ndjson", "--quiet")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Empty(t, res.stderr)

	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.NotEmpty(t, lines)
	var last struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &last))
	assert.Equal(t, "stats", last.Type)
}

func TestCallGraph(t *testing.T) {
	root := writeProject(t, serviceV1)
	res := runCLI(t, "callgraph", root, "--quiet")
	require.Equal(t, exitOK, res.code, res.stderr)

	r, err := graph.ReadReport(strings.NewReader(res.stdout))
	require.NoError(t, err)
	assert.Equal(t, graph.KindCall, r.Kind)
	assert.NotEmpty(t, r.Nodes)
}

func TestBlueprintToFile(t *testing.T) {
	root := writeProject(t, serviceV1)
	out := filepath.Join(t.TempDir(), "blueprint.ndjson")
	res := runCLI(t, "blueprint", root, "--format", "ndjson", "-o", out, "--quiet")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Empty(t, res.stdout)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	r, err := graph.ReadReport(f)
	require.NoError(t, err)
	assert.Equal(t, graph.KindBlueprint, r.Kind)
}

func TestCFG(t *testing.T) {
	root := writeProject(t, serviceV1)

	t.Run("json", func(t *testing.T) {
		res := runCLI(t, "cfg", "app/service.py", "run", "--root", root, "--quiet")
		require.Equal(t, exitOK, res.code, res.stderr)
		var g struct {
			Name  string            `json:"name"`
			Nodes []json.RawMessage `json:"nodes"`
		}
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &g))
		assert.Equal(t, "run", g.Name)
		assert.NotEmpty(t, g.Nodes)
	})

	t.Run("mermaid", func(t *testing.T) {
		res := runCLI(t, "cfg", "app/service.py", "run", "--root", root, "--mermaid", "--quiet")
		require.Equal(t, exitOK, res.code, res.stderr)
		assert.True(t, strings.HasPrefix(res.stdout, "flowchart TD\n"))
	})

	t.Run("missing function", func(t *testing.T) {
		res := runCLI(t, "cfg", "app/service.py", "nope", "--root", root)
		assert.Equal(t, exitFailure, res.code)
		assert.Contains(t, res.stderr, "error:")
	})

	t.Run("ndjson is rejected", func(t *testing.T) {
		res := runCLI(t, "cfg", "app/service.py", "run", "--root", root, "--format", "ndjson")
		assert.Equal(t, exitUsage, res.code)
	})
}

func buildReport(t *testing.T, service, out string) {
	t.Helper()
	root := writeProject(t, service)
	res := runCLI(t, "callgraph", root, "-o", out, "--quiet")
	require.Equal(t, exitOK, res.code, res.stderr)
}

func TestDiff(t *testing.T) {
	dir := t.TempDir()
	before := filepath.Join(dir, "before.json")
	after := filepath.Join(dir, "after.json")
	buildReport(t, serviceV1, before)
	buildReport(t, serviceV2, after)

	t.Run("unchanged", func(t *testing.T) {
		res := runCLI(t, "diff", before, before, "--require-mapping", "--markdown", "--quiet")
		require.Equal(t, exitOK, res.code, res.stderr)
		assert.Contains(t, res.stdout, "No structural changes.")
	})

	res := runCLI(t, "diff", before, after, "--quiet")
	require.Equal(t, exitOK, res.code, res.stderr)
	var d graph.DiffResult
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &d))
	require.NotEmpty(t, d.RemovedNodes)

	t.Run("unmapped removal", func(t *testing.T) {
		res := runCLI(t, "diff", before, after, "--require-mapping", "--quiet")
		assert.Equal(t, exitMissingMapping, res.code)
	})

	t.Run("mapped removal", func(t *testing.T) {
		mapping := graph.MappingFile{Mappings: map[string]string{}}
		for _, id := range d.RemovedNodes {
			mapping.Mappings[id] = "inlined into run"
		}
		data, err := yaml.Marshal(mapping)
		require.NoError(t, err)
		path := filepath.Join(dir, "mapping.yaml")
		require.NoError(t, os.WriteFile(path, data, 0o644))

		res := runCLI(t, "diff", before, after, "--mapping", path, "--require-mapping", "--markdown", "--quiet")
		require.Equal(t, exitOK, res.code, res.stderr)
		assert.Contains(t, res.stdout, "inlined into run")
	})

	t.Run("template", func(t *testing.T) {
		path := filepath.Join(dir, "template.yaml")
		res := runCLI(t, "diff", before, after, "--template", path, "--quiet")
		require.Equal(t, exitOK, res.code, res.stderr)
		m, err := graph.LoadMapping(path)
		require.NoError(t, err)
		for _, id := range d.RemovedNodes {
			assert.Contains(t, m.Mappings, id)
		}
	})
}

func TestAudit(t *testing.T) {
	root := writeProject(t, serviceV1)

	t.Run("all categories", func(t *testing.T) {
		res := runCLI(t, "audit", root, "--quiet")
		require.Equal(t, exitOK, res.code, res.stderr)
		var f audit.Findings
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &f))
	})

	t.Run("one category", func(t *testing.T) {
		res := runCLI(t, "audit", root, "--category", "orphan", "--quiet")
		require.Equal(t, exitOK, res.code, res.stderr)
		var f audit.Findings
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &f))
		for _, x := range f.Findings {
			assert.Equal(t, audit.CategoryOrphan, x.Category)
		}
	})

	t.Run("unknown category", func(t *testing.T) {
		res := runCLI(t, "audit", root, "--category", "bogus")
		assert.Equal(t, exitUsage, res.code)
	})
}

func TestConfigCommand(t *testing.T) {
	t.Run("template", func(t *testing.T) {
		res := runCLI(t, "config", "--template")
		require.Equal(t, exitOK, res.code, res.stderr)
		assert.Equal(t, string(config.Template()), res.stdout)
	})

	t.Run("effective", func(t *testing.T) {
		root := writeProject(t, serviceV1)
		res := runCLI(t, "config", root, "--format", "ndjson")
		require.Equal(t, exitOK, res.code, res.stderr)
		var cfg config.Config
		require.NoError(t, yaml.Unmarshal([]byte(res.stdout), &cfg))
		assert.Equal(t, root, cfg.Root)
		assert.Equal(t, "ndjson", cfg.OutputFormat)
	})
}

func TestUsageErrors(t *testing.T) {
	root := writeProject(t, serviceV1)
	tests := []struct {
		name string
		args []string
	}{
		{"unsupported format", []string{"index", root, "--format", "xml"}},
		{"unknown flag", []string{"index", root, "--bogus"}},
		{"too many arguments", []string{"index", root, root}},
		{"missing arguments", []string{"cfg", "app/service.py"}},
		{"bad log level", []string{"index", root, "--log-level", "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, tt.args...)
			assert.Equal(t, exitUsage, res.code, res.stderr)
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"missing mapping", fmt.Errorf("wrapped: %w", graph.ErrMissingMapping), exitMissingMapping},
		{"usage", usagef("bad"), exitUsage},
		{"format", graph.ErrUnsupportedFormat, exitUsage},
		{"config format", config.ErrUnsupportedConfigFormat, exitUsage},
		{"other", errors.New("boom"), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestUnreadableFilesBecomeIndexErrors(t *testing.T) {
	errs := unreadable([]collect.Skipped{
		{Path: "big.js", Reason: collect.SkipTooLarge, Detail: "too big"},
		{Path: "locked.py", Reason: collect.SkipUnreadable, Detail: "permission denied"},
	})
	assert.Equal(t, []index.FileError{{Path: "locked.py", Message: "permission denied"}}, errs)
}

func TestCallGraphCountsUnreadableFiles(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	root := writeProject(t, serviceV1)
	locked := filepath.Join(root, "app", "locked.py")
	require.NoError(t, os.WriteFile(locked, []byte("def hidden():\n    pass\n"), 0o644))
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o644) })

	res := runCLI(t, "callgraph", root, "--quiet")
	require.Equal(t, exitOK, res.code, res.stderr)

	r, err := graph.ReadReport(strings.NewReader(res.stdout))
	require.NoError(t, err)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "app/locked.py", r.Errors[0].Path)
	assert.Equal(t, 1, r.Stats.FilesErrored)
}
