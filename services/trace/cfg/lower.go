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

import "fmt"

// stmtKind classifies the statements of the structure tree both body
// parsers produce.
type stmtKind int

const (
	stmtSimple stmtKind = iota
	stmtExit
	stmtIf
	stmtLoop
	stmtSwitch
	stmtTry
)

// clause is one guarded body: an if/elif condition, a switch or match arm,
// or an exception handler.
type clause struct {
	label     string
	line      int
	body      []*stmt
	isDefault bool
}

// stmt is one node of the structure tree.
//
// Field use per kind:
//
//	if:     clauses are the if / else-if conditions, elseBody the else.
//	loop:   body is the loop body, elseBody the Python loop else.
//	switch: clauses are the arms.
//	try:    body is the protected block, clauses the handlers, elseBody the
//	        Python try-else, finally the finally block.
type stmt struct {
	kind    stmtKind
	line    int
	endLine int
	label   string
	term    string

	clauses    []clause
	body       []*stmt
	elseBody   []*stmt
	hasElse    bool
	finally    []*stmt
	hasFinally bool

	infinite     bool
	postTest     bool
	fallsThrough bool
	exhaustive   bool
}

func simpleStmt(label string, line, endLine int) *stmt {
	return &stmt{kind: stmtSimple, label: label, line: line, endLine: endLine}
}

func exitStmt(term, label string, line, endLine int) *stmt {
	return &stmt{kind: stmtExit, term: term, label: label, line: line, endLine: endLine}
}

// exitKeywords maps statement-leading keywords to terminators.
var exitKeywords = map[string]bool{
	"return": true, "throw": true, "raise": true, "break": true, "continue": true,
}

// pending is an edge waiting for its target: the next node in sequence.
type pending struct {
	from  string
	label string
}

// frame is a break target; loop frames are continue targets too.
type frame struct {
	loop   bool
	head   string
	breaks []pending
}

type lowerer struct {
	nodes    []*Node
	edges    []Edge
	seen     map[string]bool
	frames   []*frame
	exits    map[string]bool
	nextNode int
	warnings []lineWarning
}

// lineWarning is a warning before it is attached to a file path.
type lineWarning struct {
	line    int
	message string
}

// lower turns a structure tree into a control-flow graph.
func lower(stmts []*stmt) (*Graph, []lineWarning) {
	l := &lowerer{seen: make(map[string]bool), exits: make(map[string]bool)}
	l.nodes = append(l.nodes, &Node{ID: EntryID, Kind: NodeKindEntry, Label: EntryID})

	outs := l.seq(stmts, []pending{{from: EntryID}})
	l.link(outs, ExitID)
	l.nodes = append(l.nodes, &Node{ID: ExitID, Kind: NodeKindExit, Label: ExitID})

	g := &Graph{Entry: EntryID, Exit: ExitID, Edges: l.edges}
	if g.Edges == nil {
		g.Edges = []Edge{}
	}
	out := make(map[string][]string, len(l.nodes))
	for _, e := range g.Edges {
		out[e.From] = append(out[e.From], e.ID)
	}
	g.ExitSet = []string{}
	for _, n := range l.nodes {
		n.Out = out[n.ID]
		if n.Out == nil {
			n.Out = []string{}
		}
		g.Nodes = append(g.Nodes, *n)
		if n.ID == ExitID || l.exits[n.ID] {
			g.ExitSet = append(g.ExitSet, n.ID)
		}
	}
	return g, l.warnings
}

func (l *lowerer) newNode(kind NodeKind, label string, line, endLine int) *Node {
	n := &Node{
		ID:      fmt.Sprintf("n%d", l.nextNode),
		Kind:    kind,
		Label:   label,
		Line:    line,
		EndLine: max(endLine, line),
	}
	l.nextNode++
	l.nodes = append(l.nodes, n)
	return n
}

func (l *lowerer) edge(from, to, label string) {
	key := from + "\x00" + to + "\x00" + label
	if l.seen[key] {
		return
	}
	l.seen[key] = true
	l.edges = append(l.edges, Edge{
		ID:    fmt.Sprintf("e%d", len(l.edges)),
		From:  from,
		To:    to,
		Label: label,
	})
}

func (l *lowerer) link(preds []pending, to string) {
	for _, p := range preds {
		l.edge(p.from, to, p.label)
	}
}

func (l *lowerer) warn(line int, format string, args ...any) {
	l.warnings = append(l.warnings, lineWarning{line: line, message: fmt.Sprintf(format, args...)})
}

// seq lowers a statement list entered through preds and returns the edges
// leaving it. Consecutive simple statements share one block. A statement
// following an early exit starts a block with no predecessors.
func (l *lowerer) seq(stmts []*stmt, preds []pending) []pending {
	var block *Node
	for _, s := range stmts {
		switch s.kind {
		case stmtSimple:
			if block != nil {
				block.EndLine = max(block.EndLine, s.endLine)
				continue
			}
			block = l.newNode(NodeKindBlock, s.label, s.line, s.endLine)
			l.link(preds, block.ID)
			preds = []pending{{from: block.ID}}
		case stmtExit:
			if block == nil {
				block = l.newNode(NodeKindBlock, s.label, s.line, s.endLine)
				l.link(preds, block.ID)
			} else {
				block.EndLine = max(block.EndLine, s.endLine)
			}
			block.Terminator = s.term
			l.terminate(block, s)
			preds = nil
			block = nil
		default:
			block = nil
			preds = l.compound(s, preds)
		}
	}
	return preds
}

func (l *lowerer) terminate(block *Node, s *stmt) {
	switch s.term {
	case "break":
		if f := l.innermost(false); f != nil {
			f.breaks = append(f.breaks, pending{from: block.ID, label: LabelBreak})
			return
		}
		l.warn(s.line, "break outside of a loop or switch")
	case "continue":
		if f := l.innermost(true); f != nil {
			l.edge(block.ID, f.head, LabelContinue)
			return
		}
		l.warn(s.line, "continue outside of a loop")
	default:
		l.exits[block.ID] = true
	}
	l.edge(block.ID, ExitID, s.term)
}

func (l *lowerer) innermost(loopOnly bool) *frame {
	for i := len(l.frames) - 1; i >= 0; i-- {
		if !loopOnly || l.frames[i].loop {
			return l.frames[i]
		}
	}
	return nil
}

func (l *lowerer) compound(s *stmt, preds []pending) []pending {
	switch s.kind {
	case stmtIf:
		return l.lowerIf(s, preds)
	case stmtLoop:
		return l.lowerLoop(s, preds)
	case stmtSwitch:
		return l.lowerSwitch(s, preds)
	case stmtTry:
		return l.lowerTry(s, preds)
	}
	return preds
}

// lowerIf chains one branch node per condition; each false edge leads to
// the next condition, the last one to the else body or past the statement.
func (l *lowerer) lowerIf(s *stmt, preds []pending) []pending {
	var outs []pending
	next := preds
	for _, c := range s.clauses {
		br := l.newNode(NodeKindBranch, c.label, c.line, c.line)
		l.link(next, br.ID)
		outs = append(outs, l.seq(c.body, []pending{{from: br.ID, label: LabelTrue}})...)
		next = []pending{{from: br.ID, label: LabelFalse}}
	}
	if s.hasElse {
		return append(outs, l.seq(s.elseBody, next)...)
	}
	return append(outs, next...)
}

// lowerLoop models a loop with its test at the head. Infinite loops only
// leave through break.
func (l *lowerer) lowerLoop(s *stmt, preds []pending) []pending {
	if s.postTest {
		return l.lowerPostTestLoop(s, preds)
	}
	head := l.newNode(NodeKindLoopHead, s.label, s.line, s.line)
	l.link(preds, head.ID)

	f := &frame{loop: true, head: head.ID}
	l.frames = append(l.frames, f)
	bodyOut := l.seq(s.body, []pending{{from: head.ID, label: LabelBody}})
	l.frames = l.frames[:len(l.frames)-1]

	for _, p := range bodyOut {
		label := p.label
		if label == "" {
			label = LabelBack
		}
		l.edge(p.from, head.ID, label)
	}

	var outs []pending
	if !s.infinite {
		exit := []pending{{from: head.ID, label: LabelExit}}
		if s.hasElse {
			exit = l.seq(s.elseBody, exit)
		}
		outs = append(outs, exit...)
	}
	return append(outs, f.breaks...)
}

// lowerPostTestLoop enters the body before the test: the loop head holds
// the condition at the bottom and its back edge re-enters the body.
func (l *lowerer) lowerPostTestLoop(s *stmt, preds []pending) []pending {
	head := l.newNode(NodeKindLoopHead, s.label, s.endLine, s.endLine)

	f := &frame{loop: true, head: head.ID}
	l.frames = append(l.frames, f)
	bodyOut := l.seq(s.body, append(preds, pending{from: head.ID, label: LabelBack}))
	l.frames = l.frames[:len(l.frames)-1]
	l.link(bodyOut, head.ID)

	var outs []pending
	if !s.infinite {
		outs = append(outs, pending{from: head.ID, label: LabelExit})
	}
	return append(outs, f.breaks...)
}

// lowerSwitch fans out from one branch node. Arms of a C-style switch fall
// through into the next arm and capture break; match arms do neither.
func (l *lowerer) lowerSwitch(s *stmt, preds []pending) []pending {
	br := l.newNode(NodeKindBranch, s.label, s.line, s.line)
	l.link(preds, br.ID)

	var f *frame
	if s.fallsThrough {
		f = &frame{head: br.ID}
		l.frames = append(l.frames, f)
	}

	var outs, carry []pending
	hasDefault := false
	for _, c := range s.clauses {
		hasDefault = hasDefault || c.isDefault
		label := c.label
		if c.isDefault {
			label = LabelDefault
		}
		entry := []pending{{from: br.ID, label: label}}
		if s.fallsThrough {
			entry = append(entry, carry...)
		}
		armOut := l.seq(c.body, entry)
		if s.fallsThrough {
			carry = armOut
		} else {
			outs = append(outs, armOut...)
		}
	}
	outs = append(outs, carry...)
	if !hasDefault && !s.exhaustive {
		outs = append(outs, pending{from: br.ID, label: LabelDefault})
	}

	if f != nil {
		l.frames = l.frames[:len(l.frames)-1]
		outs = append(outs, f.breaks...)
	}
	return outs
}

// lowerTry dispatches from one branch node into the protected block and
// each handler. The else body follows the protected block and the finally
// block joins every path.
func (l *lowerer) lowerTry(s *stmt, preds []pending) []pending {
	br := l.newNode(NodeKindBranch, s.label, s.line, s.line)
	l.link(preds, br.ID)

	outs := l.seq(s.body, []pending{{from: br.ID, label: LabelTry}})
	if s.hasElse {
		outs = l.seq(s.elseBody, outs)
	}
	for _, c := range s.clauses {
		outs = append(outs, l.seq(c.body, []pending{{from: br.ID, label: LabelCatch}})...)
	}
	if s.hasFinally {
		outs = l.seq(s.finally, outs)
	}
	return outs
}

// markUnreachable fills the unreachable set with the nodes a breadth-first
// walk from the entry never visits. The synthetic exit is not reported.
func markUnreachable(g *Graph) {
	adj := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	visited := map[string]bool{g.Entry: true}
	queue := []string{g.Entry}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adj[id] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	g.Unreachable = []string{}
	for _, n := range g.Nodes {
		if !visited[n.ID] && n.ID != g.Exit {
			g.Unreachable = append(g.Unreachable, n.ID)
		}
	}
}
