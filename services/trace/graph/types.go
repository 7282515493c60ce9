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
	"sort"

	"github.com/AleutianAI/tracemap/services/trace/ast"
)

// SchemaVersion identifies the report serialization format.
// Increment when the format changes in a breaking way.
const SchemaVersion = "1.0"

// Kind distinguishes the two report variants.
type Kind string

const (
	// KindBlueprint is a file-level dependency graph.
	KindBlueprint Kind = "blueprint"

	// KindCall is a function-level call graph.
	KindCall Kind = "call"
)

// NodeKind classifies graph nodes.
type NodeKind string

const (
	// NodeKindFile is a blueprint node.
	NodeKindFile NodeKind = "file"

	// NodeKindFunction is a free function node.
	NodeKindFunction NodeKind = "function"

	// NodeKindMethod is a method node.
	NodeKindMethod NodeKind = "method"
)

// EdgeKind classifies graph edges. Blueprint edges carry the import kind of
// the declaration they come from.
type EdgeKind string

const (
	// EdgeKindModuleDecl is a child module declaration.
	EdgeKindModuleDecl EdgeKind = EdgeKind(ast.ImportKindModuleDecl)

	// EdgeKindImport is an import statement.
	EdgeKindImport EdgeKind = EdgeKind(ast.ImportKindImport)

	// EdgeKindUse is a use-style path import.
	EdgeKindUse EdgeKind = EdgeKind(ast.ImportKindUse)

	// EdgeKindCall is a call site.
	EdgeKindCall EdgeKind = "call"
)

// Node is one file (blueprint) or one function (call graph).
type Node struct {
	// ID is the file path or the symbol ID.
	ID string `json:"id"`

	// Name is the display name: the file path or the qualified symbol name.
	Name string `json:"name"`

	// Kind classifies the node.
	Kind NodeKind `json:"kind"`

	// File is the declaring file.
	File string `json:"file"`

	// Line is the declaration line; 0 for files.
	Line int `json:"line,omitempty"`

	// EndLine is the last line of the declaration; 0 for files.
	EndLine int `json:"end_line,omitempty"`

	// Container is the enclosing type or module of a function.
	Container string `json:"container,omitempty"`

	// Language is the language tag.
	Language ast.Language `json:"language"`

	// Hash is the content fingerprint of a file node.
	Hash string `json:"hash,omitempty"`
}

// Edge is one declaration (blueprint) or one call site (call graph).
type Edge struct {
	// From is the source node ID.
	From string `json:"from"`

	// To is the resolved target node ID; empty when unresolved.
	To string `json:"to,omitempty"`

	// Raw is the reference text as written.
	Raw string `json:"raw"`

	// Kind classifies the edge.
	Kind EdgeKind `json:"kind"`

	// Line is the source line of the reference.
	Line int `json:"line"`

	// Resolved is true when the reference matched exactly one node.
	Resolved bool `json:"resolved"`
}

// NodeDegree holds the degree of one node over resolved edges.
type NodeDegree struct {
	// ID is the node ID.
	ID string `json:"id"`

	// In is the number of distinct nodes with a resolved edge to this node.
	In int `json:"in"`

	// Out is the number of distinct nodes this node has a resolved edge to.
	Out int `json:"out"`

	// Total is In + Out.
	Total int `json:"total"`
}

// DegreeStats summarizes node degrees over resolved edges.
//
// Degrees count distinct neighbors, not edges: a caller that calls the same
// function twice contributes one to its in-degree.
type DegreeStats struct {
	// Hubs are the nodes with the highest total degree, ties broken by ID.
	Hubs []NodeDegree `json:"hubs"`

	// Orphans are nodes with in-degree 0.
	Orphans []string `json:"orphans"`

	// Sources are nodes with in-degree 0 and out-degree > 0.
	Sources []string `json:"sources"`

	// Sinks are nodes with out-degree 0.
	Sinks []string `json:"sinks"`

	// MaxIn is the highest in-degree.
	MaxIn int `json:"max_in"`

	// MaxOut is the highest out-degree.
	MaxOut int `json:"max_out"`
}

// Stats aggregates one report.
type Stats struct {
	// FilesScanned is the number of files represented in the report.
	FilesScanned int `json:"files_scanned"`

	// FilesErrored is the number of files excluded because of an error.
	FilesErrored int `json:"files_errored"`

	// NodeCount is the number of nodes.
	NodeCount int `json:"node_count"`

	// EdgeCount is the number of emitted edges.
	EdgeCount int `json:"edge_count"`

	// ResolvedEdges is the number of resolved edges.
	ResolvedEdges int `json:"resolved_edges"`

	// UnresolvedEdges is the number of unresolved references found,
	// including the ones dropped from the emitted edge list.
	UnresolvedEdges int `json:"unresolved_edges"`

	// DroppedUnresolved is the number of unresolved edges left out because
	// only resolved edges were requested.
	DroppedUnresolved int `json:"dropped_unresolved"`

	// TruncatedFunctions is the number of functions whose call sites were
	// capped.
	TruncatedFunctions int `json:"truncated_functions,omitempty"`

	// ByLanguage counts nodes per language.
	ByLanguage map[ast.Language]int `json:"by_language"`

	// ByEdgeKind counts extracted edges per kind, dropped ones included.
	ByEdgeKind map[EdgeKind]int `json:"by_edge_kind"`

	// Degree summarizes node degrees.
	Degree DegreeStats `json:"degree"`
}

// Report is a blueprint or call graph report.
//
// Thread Safety: Reports are immutable values once returned.
type Report struct {
	// SchemaVersion identifies the serialization format.
	SchemaVersion string `json:"schema_version"`

	// Kind is blueprint or call.
	Kind Kind `json:"kind"`

	// Root is the project root the paths are relative to.
	Root string `json:"root,omitempty"`

	// Nodes are sorted by ID.
	Nodes []Node `json:"nodes"`

	// Edges are sorted by (from, line, kind, raw, to).
	Edges []Edge `json:"edges"`

	// Stats aggregates the report.
	Stats Stats `json:"stats"`

	// Errors lists files excluded from the report.
	Errors []FileError `json:"errors"`

	// Warnings lists parse ambiguities.
	Warnings []ast.Warning `json:"warnings"`
}

// Node returns the node with the given ID.
func (r *Report) Node(id string) (Node, bool) {
	i := sort.Search(len(r.Nodes), func(i int) bool { return r.Nodes[i].ID >= id })
	if i < len(r.Nodes) && r.Nodes[i].ID == id {
		return r.Nodes[i], true
	}
	return Node{}, false
}

// ResolvedEdges returns the resolved edges in report order.
func (r *Report) ResolvedEdges() []Edge {
	out := make([]Edge, 0, len(r.Edges))
	for _, e := range r.Edges {
		if e.Resolved {
			out = append(out, e)
		}
	}
	return out
}

// canonicalize sorts every list of the report into its emission order and
// replaces nil slices with empty ones.
func (r *Report) canonicalize() {
	sort.Slice(r.Nodes, func(i, j int) bool { return r.Nodes[i].ID < r.Nodes[j].ID })
	sort.Slice(r.Edges, func(i, j int) bool { return edgeLess(r.Edges[i], r.Edges[j]) })
	sort.Slice(r.Errors, func(i, j int) bool {
		if r.Errors[i].Path != r.Errors[j].Path {
			return r.Errors[i].Path < r.Errors[j].Path
		}
		return r.Errors[i].Message < r.Errors[j].Message
	})
	sort.SliceStable(r.Warnings, func(i, j int) bool {
		a, b := r.Warnings[i], r.Warnings[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Message < b.Message
	})
	if r.Nodes == nil {
		r.Nodes = []Node{}
	}
	if r.Edges == nil {
		r.Edges = []Edge{}
	}
	if r.Errors == nil {
		r.Errors = []FileError{}
	}
	if r.Warnings == nil {
		r.Warnings = []ast.Warning{}
	}
}

func edgeLess(a, b Edge) bool {
	if a.From != b.From {
		return a.From < b.From
	}
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if a.Raw != b.Raw {
		return a.Raw < b.Raw
	}
	return a.To < b.To
}
