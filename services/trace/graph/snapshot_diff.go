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
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"
)

// DefaultMaxSuggestions caps the move/rename candidates listed per removed
// node.
const DefaultMaxSuggestions = 3

// EdgeKey is the identity of an edge for diffing. The source line is not
// part of it, so moving a reference inside the same node is not a change.
type EdgeKey struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// String returns "from -> to (kind)".
func (k EdgeKey) String() string {
	return fmt.Sprintf("%s -> %s (%s)", k.From, k.To, k.Kind)
}

// Suggestion proposes an added node as the successor of a removed one.
type Suggestion struct {
	// Removed is the node that disappeared.
	Removed string `json:"removed"`

	// Candidate is the added node proposed as its successor.
	Candidate string `json:"candidate"`

	// Score is the number of neighbors both nodes share.
	Score int `json:"score"`

	// SharedNeighbors lists the shared neighbor IDs, sorted.
	SharedNeighbors []string `json:"shared_neighbors"`

	// NameSimilarity is the Levenshtein similarity of the two display
	// names in [0, 1]. Evidence only; it never affects ranking.
	NameSimilarity float64 `json:"name_similarity"`
}

// DiffSummary aggregates a diff.
type DiffSummary struct {
	// TotalChanges counts node and edge additions and removals.
	TotalChanges int `json:"total_changes"`

	// FilesAffected is the number of distinct files owning a changed node.
	FilesAffected int `json:"files_affected"`

	// ChangeRatio is changed nodes over the larger node count.
	ChangeRatio float64 `json:"change_ratio"`
}

// DiffResult contains the differences between two report snapshots.
type DiffResult struct {
	// Kind is the kind of both reports.
	Kind Kind `json:"kind"`

	// AddedNodes are node IDs present after but not before, sorted.
	AddedNodes []string `json:"added_nodes"`

	// RemovedNodes are node IDs present before but not after, sorted.
	RemovedNodes []string `json:"removed_nodes"`

	// AddedEdges are resolved edges present after but not before.
	AddedEdges []EdgeKey `json:"added_edges"`

	// RemovedEdges are resolved edges present before but not after.
	RemovedEdges []EdgeKey `json:"removed_edges"`

	// Suggestions pair removed nodes with likely successors.
	Suggestions []Suggestion `json:"suggestions"`

	// Template has one blank entry per removed node.
	Template *MappingFile `json:"template"`

	// Summary aggregates the diff.
	Summary DiffSummary `json:"summary"`
}

// Empty reports whether nothing changed.
func (d *DiffResult) Empty() bool {
	return len(d.AddedNodes) == 0 && len(d.RemovedNodes) == 0 &&
		len(d.AddedEdges) == 0 && len(d.RemovedEdges) == 0
}

// SuggestionsFor returns the suggestions for one removed node.
func (d *DiffResult) SuggestionsFor(removed string) []Suggestion {
	var out []Suggestion
	for _, s := range d.Suggestions {
		if s.Removed == removed {
			out = append(out, s)
		}
	}
	return out
}

// DiffOptions configures Diff.
type DiffOptions struct {
	// MaxSuggestions caps the candidates per removed node.
	MaxSuggestions int

	// Logger receives debug output.
	Logger *slog.Logger
}

// DefaultDiffOptions returns sensible defaults.
func DefaultDiffOptions() DiffOptions {
	return DiffOptions{MaxSuggestions: DefaultMaxSuggestions}
}

// DiffOption is a functional option for Diff.
type DiffOption func(*DiffOptions)

// WithMaxSuggestions sets the per-node suggestion cap. Values below 1 are
// ignored.
func WithMaxSuggestions(n int) DiffOption {
	return func(o *DiffOptions) {
		if n > 0 {
			o.MaxSuggestions = n
		}
	}
}

// WithDiffLogger sets the logger.
func WithDiffLogger(logger *slog.Logger) DiffOption {
	return func(o *DiffOptions) {
		o.Logger = logger
	}
}

// Diff computes the differences between two report snapshots.
//
// Description:
//
//	Node sets are compared by ID. Edge sets are compared over resolved
//	edges only, keyed by (from, to, kind). For every removed node, the added
//	nodes sharing the most resolved-edge neighbors with it are proposed as
//	move/rename successors; ties are broken by ID. Neither report is
//	modified.
//
// Inputs:
//
//	ctx - Context for tracing.
//	before - The older snapshot. Must not be nil.
//	after - The newer snapshot. Must not be nil.
//
// Outputs:
//
//	*DiffResult - The computed differences with a mapping template.
//	error - ErrInvalidReport for nil input, ErrKindMismatch when the kinds
//	        differ.
//
// Thread Safety:
//
//	Safe for concurrent use; reports are only read.
func Diff(ctx context.Context, before, after *Report, opts ...DiffOption) (*DiffResult, error) {
	if before == nil || after == nil {
		return nil, fmt.Errorf("%w: nil report", ErrInvalidReport)
	}
	if before.Kind != after.Kind {
		return nil, fmt.Errorf("%w: %s vs %s", ErrKindMismatch, before.Kind, after.Kind)
	}

	options := DefaultDiffOptions()
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, span := startDiffSpan(ctx, before.Kind)
	defer span.End()

	beforeIDs := nodeIDSet(before)
	afterIDs := nodeIDSet(after)

	result := &DiffResult{
		Kind:         before.Kind,
		AddedNodes:   setDifference(afterIDs, beforeIDs),
		RemovedNodes: setDifference(beforeIDs, afterIDs),
	}

	beforeEdges := edgeKeySet(before)
	afterEdges := edgeKeySet(after)
	result.AddedEdges = edgeDifference(afterEdges, beforeEdges)
	result.RemovedEdges = edgeDifference(beforeEdges, afterEdges)

	result.Suggestions = suggest(before, after, result.RemovedNodes, result.AddedNodes, options.MaxSuggestions)
	result.Template = newMappingTemplate(result.RemovedNodes)
	result.Summary = summarize(before, after, result)

	logger.Debug("graph diff computed",
		slog.String("kind", string(result.Kind)),
		slog.Int("added_nodes", len(result.AddedNodes)),
		slog.Int("removed_nodes", len(result.RemovedNodes)),
		slog.Int("added_edges", len(result.AddedEdges)),
		slog.Int("removed_edges", len(result.RemovedEdges)),
		slog.Int("suggestions", len(result.Suggestions)),
	)
	recordDiffMetrics(ctx, result.Kind, len(result.RemovedNodes))

	return result, nil
}

func nodeIDSet(r *Report) map[string]bool {
	set := make(map[string]bool, len(r.Nodes))
	for _, n := range r.Nodes {
		set[n.ID] = true
	}
	return set
}

// setDifference returns the sorted elements of a that are not in b.
func setDifference(a, b map[string]bool) []string {
	out := []string{}
	for id := range a {
		if !b[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func edgeKeySet(r *Report) map[EdgeKey]bool {
	set := make(map[EdgeKey]bool, len(r.Edges))
	for _, e := range r.Edges {
		if e.Resolved {
			set[EdgeKey{From: e.From, To: e.To, Kind: e.Kind}] = true
		}
	}
	return set
}

func edgeDifference(a, b map[EdgeKey]bool) []EdgeKey {
	out := []EdgeKey{}
	for k := range a {
		if !b[k] {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		if out[i].To != out[j].To {
			return out[i].To < out[j].To
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// neighborSets maps each node to the nodes it shares a resolved edge with,
// in either direction.
func neighborSets(r *Report) map[string]map[string]bool {
	out := make(map[string]map[string]bool)
	link := func(a, b string) {
		if out[a] == nil {
			out[a] = make(map[string]bool)
		}
		out[a][b] = true
	}
	for _, e := range r.Edges {
		if !e.Resolved || e.From == e.To {
			continue
		}
		link(e.From, e.To)
		link(e.To, e.From)
	}
	return out
}

func suggest(before, after *Report, removed, added []string, limit int) []Suggestion {
	out := []Suggestion{}
	if len(removed) == 0 || len(added) == 0 {
		return out
	}
	beforeNeighbors := neighborSets(before)
	afterNeighbors := neighborSets(after)

	for _, r := range removed {
		old := beforeNeighbors[r]
		if len(old) == 0 {
			continue
		}
		best := 0
		var ranked []Suggestion
		for _, a := range added {
			shared := sharedKeys(old, afterNeighbors[a])
			if len(shared) == 0 || len(shared) < best {
				continue
			}
			if len(shared) > best {
				best = len(shared)
				ranked = ranked[:0]
			}
			ranked = append(ranked, Suggestion{
				Removed:         r,
				Candidate:       a,
				Score:           len(shared),
				SharedNeighbors: shared,
			})
		}
		// added is sorted, so ranked is already in ID order.
		if len(ranked) > limit {
			ranked = ranked[:limit]
		}
		for i := range ranked {
			ranked[i].NameSimilarity = nameSimilarity(displayName(before, r), displayName(after, ranked[i].Candidate))
		}
		out = append(out, ranked...)
	}
	return out
}

func sharedKeys(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if b[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// displayName is the name compared for similarity: the base name of a file
// or the last segment of a qualified function name.
func displayName(r *Report, id string) string {
	n, ok := r.Node(id)
	if !ok {
		return id
	}
	if n.Kind == NodeKindFile {
		return path.Base(n.ID)
	}
	name := n.Name
	if i := strings.LastIndexAny(name, ".:"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func nameSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	score, err := edlib.StringsSimilarity(a, b, edlib.Levenshtein)
	if err != nil {
		return 0.0
	}
	return float64(score)
}

func summarize(before, after *Report, d *DiffResult) DiffSummary {
	files := make(map[string]bool)
	for _, id := range d.AddedNodes {
		if n, ok := after.Node(id); ok {
			files[n.File] = true
		}
	}
	for _, id := range d.RemovedNodes {
		if n, ok := before.Node(id); ok {
			files[n.File] = true
		}
	}

	total := len(before.Nodes)
	if len(after.Nodes) > total {
		total = len(after.Nodes)
	}
	changed := len(d.AddedNodes) + len(d.RemovedNodes)
	ratio := 0.0
	if total > 0 {
		ratio = float64(changed) / float64(total)
	}

	return DiffSummary{
		TotalChanges:  changed + len(d.AddedEdges) + len(d.RemovedEdges),
		FilesAffected: len(files),
		ChangeRatio:   ratio,
	}
}
