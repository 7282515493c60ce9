// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package cfg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMermaid_Shapes(t *testing.T) {
	g, _ := lower([]*stmt{
		{kind: stmtIf, line: 2, label: `if x == "a":`, clauses: []clause{{
			label: `if x == "a":`, line: 2,
			body: []*stmt{exitStmt("return", "return 1", 3, 3)},
		}}},
		{kind: stmtLoop, line: 4, label: "while busy():", body: []*stmt{simpleStmt("tick()", 5, 5)}},
		exitStmt("return", "return 0", 6, 6),
		simpleStmt("dead()", 7, 7),
	})
	markUnreachable(g)

	out := RenderMermaid(g)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "flowchart TD", lines[0])

	assert.Contains(t, out, `    entry(["entry"])`)
	assert.Contains(t, out, `    exit(["exit"])`)
	assert.Contains(t, out, `    n0{"L2: if x == #quot;a#quot;:"}`)
	assert.Contains(t, out, `    n2{{"L4: while busy():"}}`)
	assert.Contains(t, out, `    n3["L5: tick()"]`)
	assert.Contains(t, out, `    entry --> n0`)
	assert.Contains(t, out, `    n0 -->|"true"| n1`)
	assert.Contains(t, out, `    n3 -->|"back"| n2`)
	assert.Contains(t, out, "    class n1,n4 exitblock\n")
	assert.Contains(t, out, "    class n5 unreachable\n")
}

func TestRenderMermaid_NoClassesWhenClean(t *testing.T) {
	g, _ := lower([]*stmt{simpleStmt("a = 1", 2, 2)})
	markUnreachable(g)

	out := RenderMermaid(g)
	assert.Equal(t, "flowchart TD\n"+
		"    entry([\"entry\"])\n"+
		"    n0[\"L2: a = 1\"]\n"+
		"    exit([\"exit\"])\n"+
		"    entry --> n0\n"+
		"    n0 --> exit\n", out)
}

func TestRenderMermaid_EscapesAngleBrackets(t *testing.T) {
	g, _ := lower([]*stmt{simpleStmt("let v: Vec<u8> = x;", 2, 2)})
	out := RenderMermaid(g)
	assert.Contains(t, out, `n0["L2: let v: Vec#lt;u8#gt; = x;"]`)
	assert.NotContains(t, out, "Vec<u8>")
}
