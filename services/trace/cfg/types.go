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

import "github.com/AleutianAI/tracemap/services/trace/ast"

// NodeKind classifies CFG nodes.
type NodeKind string

const (
	// NodeKindEntry is the synthetic entry node.
	NodeKindEntry NodeKind = "entry"

	// NodeKindBranch is a conditional, switch, match or try dispatch.
	NodeKindBranch NodeKind = "branch"

	// NodeKindLoopHead is the condition point of a loop.
	NodeKindLoopHead NodeKind = "loop-head"

	// NodeKindBlock is a run of straight-line statements.
	NodeKindBlock NodeKind = "block"

	// NodeKindExit is the synthetic exit node.
	NodeKindExit NodeKind = "exit"
)

// IDs of the synthetic nodes.
const (
	EntryID = "entry"
	ExitID  = "exit"
)

// Edge labels.
const (
	LabelTrue     = "true"
	LabelFalse    = "false"
	LabelBody     = "body"
	LabelBack     = "back"
	LabelExit     = "exit"
	LabelBreak    = "break"
	LabelContinue = "continue"
	LabelDefault  = "default"
	LabelTry      = "try"
	LabelCatch    = "catch"
	LabelElse     = "else"
)

// Node is one control-flow node.
type Node struct {
	// ID is "entry", "exit" or "n<k>" in creation order.
	ID string `json:"id"`

	// Kind classifies the node.
	Kind NodeKind `json:"kind"`

	// Label is the first source line of the node, trimmed.
	Label string `json:"label"`

	// Line is the first source line; 0 for synthetic nodes.
	Line int `json:"line,omitempty"`

	// EndLine is the last source line; 0 for synthetic nodes.
	EndLine int `json:"end_line,omitempty"`

	// Terminator is the keyword that ends the block early: return, throw,
	// raise, break or continue.
	Terminator string `json:"terminator,omitempty"`

	// Out lists the IDs of the node's outgoing edges.
	Out []string `json:"out"`
}

// Edge is one control transfer.
type Edge struct {
	// ID is "e<k>" in creation order.
	ID string `json:"id"`

	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// Graph is the control-flow graph of one function.
type Graph struct {
	// Function is the symbol ID of the function.
	Function string `json:"function"`

	// Name is the qualified function name.
	Name string `json:"name"`

	// File is the declaring file.
	File string `json:"file"`

	// Language is the language tag.
	Language ast.Language `json:"language"`

	// Entry and Exit are the synthetic node IDs.
	Entry string `json:"entry"`
	Exit  string `json:"exit"`

	// Nodes are in creation order.
	Nodes []Node `json:"nodes"`

	// Edges are in creation order.
	Edges []Edge `json:"edges"`

	// ExitSet holds the exit node and every block ending in return, throw
	// or raise, in node order.
	ExitSet []string `json:"exit_set"`

	// Unreachable holds the nodes not reachable from the entry, in node
	// order.
	// The synthetic exit is never listed.
	Unreachable []string `json:"unreachable"`

	// Warnings records structural problems that made the graph partial.
	Warnings []ast.Warning `json:"warnings"`

	// Diagram is the Mermaid rendering, only set on request.
	Diagram string `json:"diagram,omitempty"`
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Successors returns the targets of a node's outgoing edges in edge order.
func (g *Graph) Successors(id string) []string {
	var out []string
	for _, e := range g.Edges {
		if e.From == id {
			out = append(out, e.To)
		}
	}
	return out
}

// IsUnreachable reports whether a node is in the unreachable set.
func (g *Graph) IsUnreachable(id string) bool {
	for _, u := range g.Unreachable {
		if u == id {
			return true
		}
	}
	return false
}
