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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tracemap/services/trace/ast"
	"github.com/AleutianAI/tracemap/services/trace/index"
)

func buildIndex(t *testing.T, path string, lang ast.Language, src string) *index.Index {
	t.Helper()
	idx, err := index.Build(context.Background(), []*ast.ScannedFile{ast.NewScannedFile(path, lang, []byte(src))})
	require.NoError(t, err)
	return idx
}

func buildGraph(t *testing.T, path string, lang ast.Language, src, function string) *Graph {
	t.Helper()
	g, err := Build(context.Background(), buildIndex(t, path, lang, src), path, function)
	require.NoError(t, err)
	return g
}

func nodeLabeled(t *testing.T, g *Graph, label string) Node {
	t.Helper()
	for _, n := range g.Nodes {
		if n.Label == label {
			return n
		}
	}
	require.Failf(t, "node not found", "no node labeled %q", label)
	return Node{}
}

func edgeBetween(g *Graph, from, to string) (Edge, bool) {
	for _, e := range g.Edges {
		if e.From == from && e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}

// assertWellFormed checks the structural properties every graph has.
func assertWellFormed(t *testing.T, g *Graph) {
	t.Helper()
	ids := make(map[string]bool)
	for _, n := range g.Nodes {
		assert.False(t, ids[n.ID], "duplicate node %s", n.ID)
		ids[n.ID] = true
	}
	require.True(t, ids[g.Entry])
	require.True(t, ids[g.Exit])
	for _, e := range g.Edges {
		assert.True(t, ids[e.From], "edge %s from unknown node %s", e.ID, e.From)
		assert.True(t, ids[e.To], "edge %s to unknown node %s", e.ID, e.To)
		assert.NotEqual(t, g.Entry, e.To, "edge %s enters the entry node", e.ID)
		assert.NotEqual(t, g.Exit, e.From, "edge %s leaves the exit node", e.ID)
	}
	assert.Contains(t, g.ExitSet, g.Exit)
	assert.NotContains(t, g.Unreachable, g.Entry)
	assert.NotContains(t, g.Unreachable, g.Exit)
}

func TestBuild_PythonEarlyReturn(t *testing.T) {
	g := buildGraph(t, "m.py", ast.LanguagePython, `def f(x):
    if x:
        return 1
    y = 2
    return y
`, "f")
	assertWellFormed(t, g)

	assert.Equal(t, "m.py:1:f", g.Function)
	assert.Equal(t, "f", g.Name)
	assert.Equal(t, "m.py", g.File)
	assert.Equal(t, ast.LanguagePython, g.Language)
	assert.Empty(t, g.Warnings)
	assert.Empty(t, g.Unreachable)

	branch := nodeLabeled(t, g, "if x:")
	assert.Equal(t, NodeKindBranch, branch.Kind)
	assert.Equal(t, 2, branch.Line)

	early := nodeLabeled(t, g, "return 1")
	assert.Equal(t, "return", early.Terminator)
	tail := nodeLabeled(t, g, "y = 2")
	assert.Equal(t, "return", tail.Terminator)
	assert.Equal(t, 4, tail.Line)
	assert.Equal(t, 5, tail.EndLine)

	e, ok := edgeBetween(g, branch.ID, early.ID)
	require.True(t, ok)
	assert.Equal(t, LabelTrue, e.Label)
	e, ok = edgeBetween(g, branch.ID, tail.ID)
	require.True(t, ok)
	assert.Equal(t, LabelFalse, e.Label)

	assert.Equal(t, []string{early.ID, tail.ID, ExitID}, g.ExitSet)
	assert.Equal(t, []string{ExitID}, g.Successors(early.ID))
}

func TestBuild_StatementAfterReturnIsUnreachable(t *testing.T) {
	g := buildGraph(t, "m.py", ast.LanguagePython, `def g():
    return 1
    print("dead")
`, "g")
	assertWellFormed(t, g)

	ret := nodeLabeled(t, g, "return 1")
	dead := nodeLabeled(t, g, `print("dead")`)
	assert.Equal(t, []string{dead.ID}, g.Unreachable)
	assert.True(t, g.IsUnreachable(dead.ID))
	assert.False(t, g.IsUnreachable(ret.ID))
	assert.Contains(t, g.ExitSet, ret.ID)
	assert.NotContains(t, g.ExitSet, dead.ID)
}

func TestBuild_RustLoops(t *testing.T) {
	g := buildGraph(t, "src/lib.rs", ast.LanguageRust, `fn run(n: i32) -> i32 {
    let mut total = 0;
    for i in 0..n {
        if i % 2 == 0 {
            continue;
        }
        total += i;
    }
    loop {
        break;
    }
    total
}
`, "run")
	assertWellFormed(t, g)
	assert.Empty(t, g.Warnings)
	assert.Empty(t, g.Unreachable)

	forHead := nodeLabeled(t, g, "for i in 0..n")
	assert.Equal(t, NodeKindLoopHead, forHead.Kind)
	assert.Equal(t, 3, forHead.Line)

	cont := nodeLabeled(t, g, "continue;")
	assert.Equal(t, "continue", cont.Terminator)
	e, ok := edgeBetween(g, cont.ID, forHead.ID)
	require.True(t, ok)
	assert.Equal(t, LabelContinue, e.Label)

	add := nodeLabeled(t, g, "total += i;")
	e, ok = edgeBetween(g, add.ID, forHead.ID)
	require.True(t, ok)
	assert.Equal(t, LabelBack, e.Label)

	loopHead := nodeLabeled(t, g, "loop")
	e, ok = edgeBetween(g, forHead.ID, loopHead.ID)
	require.True(t, ok)
	assert.Equal(t, LabelExit, e.Label)
	for _, e := range g.Edges {
		if e.From == loopHead.ID {
			assert.Equal(t, LabelBody, e.Label, "an infinite loop only leaves through its body")
		}
	}

	brk := nodeLabeled(t, g, "break;")
	tail := nodeLabeled(t, g, "total")
	e, ok = edgeBetween(g, brk.ID, tail.ID)
	require.True(t, ok)
	assert.Equal(t, LabelBreak, e.Label)
	assert.Equal(t, []string{ExitID}, g.Successors(tail.ID))
	assert.Equal(t, []string{ExitID}, g.ExitSet)
}

func TestBuild_RustMatch(t *testing.T) {
	g := buildGraph(t, "src/lib.rs", ast.LanguageRust, `fn pick(v: Option<i32>) -> i32 {
    match v {
        Some(x) => x,
        None => return 0,
    }
}
`, "pick")
	assertWellFormed(t, g)

	m := nodeLabeled(t, g, "match v")
	assert.Equal(t, NodeKindBranch, m.Kind)
	some := nodeLabeled(t, g, "x")
	none := nodeLabeled(t, g, "return 0")

	e, ok := edgeBetween(g, m.ID, some.ID)
	require.True(t, ok)
	assert.Equal(t, "Some(x)", e.Label)
	e, ok = edgeBetween(g, m.ID, none.ID)
	require.True(t, ok)
	assert.Equal(t, "None", e.Label)

	for _, e := range g.Edges {
		assert.NotEqual(t, LabelDefault, e.Label, "match is exhaustive")
	}
	assert.Equal(t, []string{none.ID, ExitID}, g.ExitSet)
}

func TestBuild_PythonDedentedStringStaysInBody(t *testing.T) {
	g := buildGraph(t, "repo.py", ast.LanguagePython, `class Repo:
    def query(self):
        sql = """
SELECT 1
"""
        return run(sql)

    def save(self): return self.query()
`, "Repo.query")
	assertWellFormed(t, g)
	assert.Empty(t, g.Warnings)

	block := nodeLabeled(t, g, `sql = """`)
	assert.Equal(t, 3, block.Line)
	assert.Equal(t, 6, block.EndLine)
	assert.Equal(t, "return", block.Terminator)
	assert.Equal(t, []string{block.ID, ExitID}, g.ExitSet)
}

func TestBuild_JavaScriptDoWhileRunsBodyFirst(t *testing.T) {
	g := buildGraph(t, "queue.js", ast.LanguageJavaScript, `function drain(q) {
  do {
    q.pop();
  } while (q.size > 0);
  return q;
}
`, "drain")
	assertWellFormed(t, g)
	assert.Empty(t, g.Warnings)

	body := nodeLabeled(t, g, "q.pop();")
	head := nodeLabeled(t, g, "do while q.size > 0")
	ret := nodeLabeled(t, g, "return q;")
	assert.Equal(t, NodeKindLoopHead, head.Kind)
	assert.Equal(t, 4, head.Line)

	assert.Equal(t, []string{body.ID}, g.Successors(EntryID))
	_, ok := edgeBetween(g, body.ID, head.ID)
	assert.True(t, ok)
	e, ok := edgeBetween(g, head.ID, body.ID)
	require.True(t, ok)
	assert.Equal(t, LabelBack, e.Label)
	e, ok = edgeBetween(g, head.ID, ret.ID)
	require.True(t, ok)
	assert.Equal(t, LabelExit, e.Label)
	assert.Empty(t, g.Unreachable)
}

func TestBuild_JavaScriptSwitchFallthrough(t *testing.T) {
	g := buildGraph(t, "app.js", ast.LanguageJavaScript, `function classify(x) {
  switch (x) {
    case 1:
      a();
    case 2:
      b();
      break;
    default:
      c();
  }
  return done();
}
`, "classify")
	assertWellFormed(t, g)
	assert.Empty(t, g.Warnings)

	sw := nodeLabeled(t, g, "switch x")
	a := nodeLabeled(t, g, "a();")
	b := nodeLabeled(t, g, "b();")
	c := nodeLabeled(t, g, "c();")
	ret := nodeLabeled(t, g, "return done();")

	e, ok := edgeBetween(g, a.ID, b.ID)
	require.True(t, ok, "case 1 falls through into case 2")
	assert.Empty(t, e.Label)
	assert.Equal(t, "break", b.Terminator)

	e, ok = edgeBetween(g, sw.ID, c.ID)
	require.True(t, ok)
	assert.Equal(t, LabelDefault, e.Label)

	e, ok = edgeBetween(g, b.ID, ret.ID)
	require.True(t, ok)
	assert.Equal(t, LabelBreak, e.Label)
	_, ok = edgeBetween(g, c.ID, ret.ID)
	assert.True(t, ok)

	assert.Equal(t, []string{ret.ID, ExitID}, g.ExitSet)
}

func TestBuild_JavaScriptTry(t *testing.T) {
	g := buildGraph(t, "app.js", ast.LanguageJavaScript, `function load(p) {
  try {
    read(p);
  } catch (e) {
    log(e);
    throw e;
  } finally {
    close();
  }
}
`, "load")
	assertWellFormed(t, g)

	try := nodeLabeled(t, g, "try")
	read := nodeLabeled(t, g, "read(p);")
	handler := nodeLabeled(t, g, "log(e);")
	closing := nodeLabeled(t, g, "close();")

	e, ok := edgeBetween(g, try.ID, read.ID)
	require.True(t, ok)
	assert.Equal(t, LabelTry, e.Label)
	e, ok = edgeBetween(g, try.ID, handler.ID)
	require.True(t, ok)
	assert.Equal(t, LabelCatch, e.Label)
	assert.Equal(t, "throw", handler.Terminator)

	_, ok = edgeBetween(g, read.ID, closing.ID)
	assert.True(t, ok)
	assert.Equal(t, []string{handler.ID, ExitID}, g.ExitSet)
}

func TestBuild_PythonLoopElse(t *testing.T) {
	g := buildGraph(t, "m.py", ast.LanguagePython, `def scan(items):
    for item in items:
        if item:
            break
    else:
        missing()
`, "scan")
	assertWellFormed(t, g)

	head := nodeLabeled(t, g, "for item in items:")
	cond := nodeLabeled(t, g, "if item:")
	brk := nodeLabeled(t, g, "break")
	orElse := nodeLabeled(t, g, "missing()")

	e, ok := edgeBetween(g, cond.ID, head.ID)
	require.True(t, ok)
	assert.Equal(t, LabelFalse, e.Label)
	e, ok = edgeBetween(g, head.ID, orElse.ID)
	require.True(t, ok)
	assert.Equal(t, LabelExit, e.Label)
	e, ok = edgeBetween(g, brk.ID, ExitID)
	require.True(t, ok)
	assert.Equal(t, LabelBreak, e.Label)
	assert.NotContains(t, g.ExitSet, brk.ID)
}

func TestBuild_PythonTryElseFinally(t *testing.T) {
	g := buildGraph(t, "m.py", ast.LanguagePython, `def fetch():
    try:
        data = get()
    except ValueError:
        return None
    else:
        use(data)
    finally:
        close()
`, "fetch")
	assertWellFormed(t, g)
	assert.Empty(t, g.Warnings)

	body := nodeLabeled(t, g, "data = get()")
	orElse := nodeLabeled(t, g, "use(data)")
	handler := nodeLabeled(t, g, "return None")
	final := nodeLabeled(t, g, "close()")

	_, ok := edgeBetween(g, body.ID, orElse.ID)
	assert.True(t, ok)
	_, ok = edgeBetween(g, orElse.ID, final.ID)
	assert.True(t, ok)
	assert.Equal(t, []string{handler.ID, ExitID}, g.ExitSet)
}

func TestBuild_Lookup(t *testing.T) {
	idx := buildIndex(t, "m.py", ast.LanguagePython, `def helper():
    pass

def helper():
    return 2

class Service:
    def run(self):
        pass
`)
	ctx := context.Background()

	tests := []struct {
		name     string
		file     string
		function string
		wantID   string
		wantErr  error
	}{
		{name: "qualified name", file: "m.py", function: "Service.run", wantID: "m.py:8:Service.run"},
		{name: "bare name", file: "m.py", function: "run", wantID: "m.py:8:Service.run"},
		{name: "symbol id", file: "m.py", function: "m.py:4:helper", wantID: "m.py:4:helper"},
		{name: "symbol id without file", file: "", function: "m.py:1:helper", wantID: "m.py:1:helper"},
		{name: "ambiguous", file: "m.py", function: "helper", wantErr: ErrAmbiguousFunction},
		{name: "missing function", file: "m.py", function: "nope", wantErr: ErrFunctionNotFound},
		{name: "missing file", file: "other.py", function: "helper", wantErr: ErrFunctionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Build(ctx, idx, tt.file, tt.function)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, g)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, g.Function)
		})
	}
}

func TestBuild_AmbiguousListsCandidates(t *testing.T) {
	idx := buildIndex(t, "m.py", ast.LanguagePython, "def helper():\n    pass\n\ndef helper():\n    return 2\n")
	_, err := Build(context.Background(), idx, "m.py", "helper")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "m.py:1:helper")
	assert.Contains(t, err.Error(), "m.py:4:helper")
}

func TestBuild_BodilessDeclaration(t *testing.T) {
	g := buildGraph(t, "src/shape.rs", ast.LanguageRust, `trait Shape {
    fn area(&self) -> f64;
}
`, "area")
	assertWellFormed(t, g)

	require.Len(t, g.Nodes, 2)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, EntryID, g.Edges[0].From)
	assert.Equal(t, ExitID, g.Edges[0].To)
	require.Len(t, g.Warnings, 1)
	assert.Equal(t, "declaration has no body", g.Warnings[0].Message)
	assert.Equal(t, "src/shape.rs", g.Warnings[0].Path)
}

func TestBuild_NilIndex(t *testing.T) {
	_, err := Build(context.Background(), nil, "m.py", "f")
	assert.ErrorIs(t, err, ErrNilIndex)
}

func TestBuild_Cancelled(t *testing.T) {
	idx := buildIndex(t, "m.py", ast.LanguagePython, "def f():\n    pass\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, idx, "m.py", "f")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuild_Diagram(t *testing.T) {
	idx := buildIndex(t, "m.py", ast.LanguagePython, "def f():\n    pass\n")

	plain, err := Build(context.Background(), idx, "m.py", "f")
	require.NoError(t, err)
	assert.Empty(t, plain.Diagram)

	drawn, err := Build(context.Background(), idx, "m.py", "f", WithDiagram(true))
	require.NoError(t, err)
	assert.Equal(t, RenderMermaid(drawn), drawn.Diagram)
}

func TestBuild_Deterministic(t *testing.T) {
	src := `function walk(xs) {
  for (const x of xs) {
    if (!x) continue;
    visit(x);
  }
}
`
	first := buildGraph(t, "w.js", ast.LanguageJavaScript, src, "walk")
	second := buildGraph(t, "w.js", ast.LanguageJavaScript, src, "walk")
	assert.Equal(t, first, second)
	assertWellFormed(t, first)

	cont := nodeLabeled(t, first, "continue;")
	head := nodeLabeled(t, first, "for const x of xs")
	e, ok := edgeBetween(first, cont.ID, head.ID)
	require.True(t, ok)
	assert.Equal(t, LabelContinue, e.Label)
}
