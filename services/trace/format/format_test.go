// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package format

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tracemap/services/trace/ast"
	"github.com/AleutianAI/tracemap/services/trace/audit"
	"github.com/AleutianAI/tracemap/services/trace/cfg"
	"github.com/AleutianAI/tracemap/services/trace/collect"
	"github.com/AleutianAI/tracemap/services/trace/graph"
	"github.com/AleutianAI/tracemap/services/trace/index"
)

func sampleDiff() *graph.DiffResult {
	return &graph.DiffResult{
		Kind:         graph.KindCall,
		AddedNodes:   []string{"a.py:1:load_all"},
		RemovedNodes: []string{"a.py:1:load", "a.py:9:old"},
		AddedEdges:   []graph.EdgeKey{{From: "a.py:20:main", To: "a.py:1:load_all", Kind: graph.EdgeKindCall}},
		RemovedEdges: []graph.EdgeKey{{From: "a.py:20:main", To: "a.py:1:load", Kind: graph.EdgeKindCall}},
		Suggestions: []graph.Suggestion{
			{Removed: "a.py:1:load", Candidate: "a.py:1:load_all", Score: 1, NameSimilarity: 0.5},
		},
		Summary: graph.DiffSummary{TotalChanges: 5, FilesAffected: 1, ChangeRatio: 0.5},
	}
}

func TestWriteDiffMarkdown(t *testing.T) {
	mapping := &graph.MappingFile{Mappings: map[string]string{
		"a.py:1:load": "renamed to load_all",
		"a.py:9:old":  "",
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteDiffMarkdown(&buf, sampleDiff(), mapping))

	want := "## Call graph diff\n\n" +
		"| change | count |\n|---|---:|\n" +
		"| added nodes | 1 |\n" +
		"| removed nodes | 2 |\n" +
		"| added edges | 1 |\n" +
		"| removed edges | 1 |\n" +
		"| files affected | 1 |\n" +
		"| change ratio | 50.0% |\n" +
		"\n### Removed nodes\n\n" +
		"- `a.py:1:load`: renamed to load_all\n" +
		"  - successor? `a.py:1:load_all` (1 neighbor shared, name similarity 0.50)\n" +
		"- `a.py:9:old` **unmapped**\n" +
		"\n### Added nodes\n\n" +
		"- `a.py:1:load_all`\n" +
		"\n### Removed edges\n\n" +
		"- `a.py:20:main` → `a.py:1:load` (call)\n" +
		"\n### Added edges\n\n" +
		"- `a.py:20:main` → `a.py:1:load_all` (call)\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteDiffMarkdown_NoMapping(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDiffMarkdown(&buf, sampleDiff(), nil))

	assert.Contains(t, buf.String(), "- `a.py:9:old`\n")
	assert.NotContains(t, buf.String(), "unmapped")
}

func TestWriteDiffMarkdown_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDiffMarkdown(&buf, &graph.DiffResult{Kind: graph.KindBlueprint}, nil))

	assert.Equal(t, "## Blueprint diff\n\nNo structural changes.\n", buf.String())
}

func TestWriteReportSummary(t *testing.T) {
	r := &graph.Report{
		Kind: graph.KindCall,
		Stats: graph.Stats{
			FilesScanned:      3,
			FilesErrored:      1,
			NodeCount:         4,
			EdgeCount:         5,
			ResolvedEdges:     3,
			UnresolvedEdges:   4,
			DroppedUnresolved: 2,
			ByLanguage:        map[ast.Language]int{ast.LanguageRust: 1, ast.LanguagePython: 3},
			Degree: graph.DegreeStats{
				Hubs:    []graph.NodeDegree{{ID: "a.py:1:main", In: 0, Out: 3, Total: 3}},
				Orphans: []string{"a.py:1:main"},
				Sources: []string{"a.py:1:main"},
				Sinks:   []string{"b.py:1:x", "b.py:4:y"},
			},
		},
		Errors: []graph.FileError{{Path: "bad.py", Message: "invalid UTF-8"}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReportSummary(&buf, Plain(), r))

	out := buf.String()
	assert.Contains(t, out, "Call graph\n")
	assert.Contains(t, out, "  files     3 scanned, 1 errored\n")
	assert.Contains(t, out, "  nodes     4 (python 3, rust 1)\n")
	assert.Contains(t, out, "  edges     5 emitted: 3 resolved, 4 unresolved, 2 unresolved dropped\n")
	assert.Contains(t, out, "    a.py:1:main in 0, out 3\n")
	assert.Contains(t, out, "  orphans   1, sources 1, sinks 2\n")
	assert.Contains(t, out, "  error bad.py: invalid UTF-8\n")
}

func TestWriteIndexSummary(t *testing.T) {
	stats := index.Stats{
		FilesScanned: 2,
		Symbols:      5,
		ByKind:       map[ast.SymbolKind]int{ast.SymbolKindFunction: 3, ast.SymbolKindMethod: 2},
		ByLanguage:   map[ast.Language]int{ast.LanguageTypeScript: 2},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteIndexSummary(&buf, Plain(), stats, nil))

	assert.Equal(t, "Index\n"+
		"  files     2 scanned, 0 errored\n"+
		"  symbols   5 (function 3, method 2)\n"+
		"  languages typescript 2\n", buf.String())
}

func TestWriteGraphSummary(t *testing.T) {
	g := &cfg.Graph{
		Function:    "a.py:1:run",
		Nodes:       make([]cfg.Node, 4),
		Edges:       make([]cfg.Edge, 3),
		ExitSet:     []string{"exit"},
		Unreachable: []string{"n2"},
		Warnings:    []ast.Warning{{Path: "a.py", Line: 3, Message: "unexpected indent"}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteGraphSummary(&buf, Plain(), g))

	assert.Equal(t, "CFG a.py:1:run: 4 nodes, 3 edges, 1 exit, 1 unreachable\n"+
		"  warning a.py:3: unexpected indent\n", buf.String())
}

func TestWriteFindings(t *testing.T) {
	f := &audit.Findings{
		Findings: []audit.Finding{{
			Category: audit.CategoryPassThrough,
			Severity: audit.SeverityInfo,
			File:     "a.py",
			Line:     4,
			Symbols:  []string{"a.py:4:save", "a.py:8:persist"},
			Chain:    "save -> persist",
			Evidence: []string{"body is a single call to persist"},
			Fix:      &audit.Fix{Kind: audit.FixInline, Description: "call persist directly and remove save"},
		}},
		Counts: map[audit.Category]int{audit.CategoryPassThrough: 1, audit.CategoryOrphan: 0},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteFindings(&buf, Plain(), f))

	assert.Equal(t, "Audit 1 finding\n"+
		"  pass-through 1\n"+
		"\ninfo pass-through a.py:4 save -> persist\n"+
		"    body is a single call to persist\n"+
		"    fix (inline): call persist directly and remove save\n", buf.String())
}

func TestWriteFindings_None(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFindings(&buf, Plain(), &audit.Findings{}))
	assert.Equal(t, "Audit 0 findings\n", buf.String())
}

func TestWriteCollectSummary(t *testing.T) {
	res := &collect.Result{Skipped: []collect.Skipped{
		{Path: "big.js", Reason: collect.SkipTooLarge, Detail: "too big"},
		{Path: "locked.py", Reason: collect.SkipUnreadable, Detail: "permission denied"},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteCollectSummary(&buf, Plain(), res))
	assert.Equal(t, "skipped big.js: too_large too big\n", buf.String())
}

func TestNewStyler_NotTerminal(t *testing.T) {
	var buf bytes.Buffer
	s := NewStyler(&buf, false)

	assert.False(t, IsTerminal(&buf))
	assert.Equal(t, "plain", s.Title("plain"))
	assert.Equal(t, "plain", s.Failure("plain"))
}
