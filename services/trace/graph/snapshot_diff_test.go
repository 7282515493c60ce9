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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renameBlueprints(t *testing.T) (*Report, *Report) {
	t.Helper()
	before := blueprint(t, nil,
		py("main.py", "import util\nimport config\n"),
		py("util.py", "import config\n"),
		py("config.py", "VALUE = 1\n"),
	)
	after := blueprint(t, nil,
		py("main.py", "import helpers\nimport config\n"),
		py("helpers.py", "import config\n"),
		py("config.py", "VALUE = 1\n"),
	)
	return before, after
}

func TestDiff_SetLaws(t *testing.T) {
	before, after := renameBlueprints(t)

	d, err := Diff(context.Background(), before, after)
	require.NoError(t, err)
	assert.Equal(t, []string{"helpers.py"}, d.AddedNodes)
	assert.Equal(t, []string{"util.py"}, d.RemovedNodes)
	assert.Equal(t, []EdgeKey{
		{From: "helpers.py", To: "config.py", Kind: EdgeKindImport},
		{From: "main.py", To: "helpers.py", Kind: EdgeKindImport},
	}, d.AddedEdges)
	assert.Equal(t, []EdgeKey{
		{From: "main.py", To: "util.py", Kind: EdgeKindImport},
		{From: "util.py", To: "config.py", Kind: EdgeKindImport},
	}, d.RemovedEdges)
	assert.False(t, d.Empty())

	reverse, err := Diff(context.Background(), after, before)
	require.NoError(t, err)
	assert.Equal(t, d.AddedNodes, reverse.RemovedNodes)
	assert.Equal(t, d.RemovedNodes, reverse.AddedNodes)

	for _, r := range []*Report{before, after} {
		same, err := Diff(context.Background(), r, r)
		require.NoError(t, err)
		assert.True(t, same.Empty())
		assert.Empty(t, same.AddedNodes)
		assert.Empty(t, same.RemovedNodes)
		assert.Empty(t, same.Suggestions)
		assert.Empty(t, same.Template.Mappings)
	}
}

func TestDiff_LineInsensitiveEdges(t *testing.T) {
	before := callGraph(t, nil, py("m.py", "def b():\n    pass\n\ndef a():\n    b()\n"))
	after := callGraph(t, nil, py("m.py", "def b():\n    pass\n\ndef a():\n    x = 1\n    b()\n"))
	require.NotEqual(t, before.Edges[0].Line, after.Edges[0].Line)

	d, err := Diff(context.Background(), before, after)
	require.NoError(t, err)
	assert.True(t, d.Empty())
}

func TestDiff_UnresolvedEdgesIgnored(t *testing.T) {
	before := callGraph(t, nil, py("m.py", "def a():\n    print(1)\n"))
	after := callGraph(t, nil, py("m.py", "def a():\n    log(1)\n"))

	d, err := Diff(context.Background(), before, after)
	require.NoError(t, err)
	assert.Empty(t, d.AddedEdges)
	assert.Empty(t, d.RemovedEdges)
}

func TestDiff_Suggestions(t *testing.T) {
	before, after := renameBlueprints(t)

	d, err := Diff(context.Background(), before, after)
	require.NoError(t, err)
	require.Len(t, d.Suggestions, 1)
	s := d.Suggestions[0]
	assert.Equal(t, "util.py", s.Removed)
	assert.Equal(t, "helpers.py", s.Candidate)
	assert.Equal(t, 2, s.Score)
	assert.Equal(t, []string{"config.py", "main.py"}, s.SharedNeighbors)
	assert.Greater(t, s.NameSimilarity, 0.0)
	assert.Less(t, s.NameSimilarity, 1.0)
	assert.Equal(t, d.Suggestions, d.SuggestionsFor("util.py"))
}

func TestDiff_SuggestionTiesByID(t *testing.T) {
	before := blueprint(t, nil,
		py("core.py", "X = 1\n"),
		py("old.py", "import core\n"),
	)
	after := blueprint(t, nil,
		py("core.py", "X = 1\n"),
		py("zeta.py", "import core\n"),
		py("alpha.py", "import core\n"),
		py("mid.py", "import core\n"),
	)

	d, err := Diff(context.Background(), before, after, WithMaxSuggestions(2))
	require.NoError(t, err)
	require.Len(t, d.Suggestions, 2)
	assert.Equal(t, "alpha.py", d.Suggestions[0].Candidate)
	assert.Equal(t, "mid.py", d.Suggestions[1].Candidate)
}

func TestDiff_KindMismatch(t *testing.T) {
	bp := blueprint(t, nil, py("m.py", "def a():\n    pass\n"))
	cg := callGraph(t, nil, py("m.py", "def a():\n    pass\n"))

	_, err := Diff(context.Background(), bp, cg)
	assert.ErrorIs(t, err, ErrKindMismatch)
	_, err = Diff(context.Background(), nil, cg)
	assert.ErrorIs(t, err, ErrInvalidReport)
}

func TestDiff_Summary(t *testing.T) {
	before, after := renameBlueprints(t)
	d, err := Diff(context.Background(), before, after)
	require.NoError(t, err)
	assert.Equal(t, 6, d.Summary.TotalChanges)
	assert.Equal(t, 2, d.Summary.FilesAffected)
	assert.InDelta(t, 2.0/3.0, d.Summary.ChangeRatio, 1e-9)
}
