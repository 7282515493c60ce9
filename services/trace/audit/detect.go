// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


// Package audit runs read-only detectors over an index and its call graph.
//
// Each detector is a pure function of the index and the call graph and
// returns findings with the evidence they rest on: the flagged
// declaration's location, the symbols involved and, where one exists, the
// inline or removal fix a tool could apply. Detectors never modify source
// or either graph.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/tracemap/services/trace/ast"
	"github.com/AleutianAI/tracemap/services/trace/graph"
	"github.com/AleutianAI/tracemap/services/trace/index"
)

// Options configures Detect.
type Options struct {
	// Categories selects the detectors to run.
	// Default: AllCategories
	Categories []Category

	// IncludeTests also inspects symbols declared in test files.
	// Default: false
	IncludeTests bool

	// Logger receives debug output.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Categories: AllCategories,
		Logger:     slog.Default(),
	}
}

// Option is a functional option for Detect.
type Option func(*Options)

// WithCategories restricts the run to the given detectors. An empty list
// keeps the default.
func WithCategories(categories ...Category) Option {
	return func(o *Options) {
		if len(categories) > 0 {
			o.Categories = categories
		}
	}
}

// WithIncludeTests inspects test files too.
func WithIncludeTests(include bool) Option {
	return func(o *Options) {
		o.IncludeTests = include
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// detector produces the findings of one category.
type detector func(in *input) []Finding

var detectors = map[Category]detector{
	CategoryPassThrough:       detectPassThrough,
	CategoryLonelyAbstraction: detectLonely,
	CategoryOrphan:            detectOrphans,
	CategoryPlaceholder:       detectPlaceholders,
}

// input is the read-only view the detectors share.
type input struct {
	idx    *index.Index
	report *graph.Report

	// candidates are the inspected callables in index order.
	candidates []*ast.Symbol

	// callers maps a node ID to the distinct callers reaching it through
	// resolved edges, self-calls excluded.
	callers map[string][]string

	// inbound maps a node ID to its resolved inbound call edges.
	inbound map[string][]graph.Edge

	// outbound maps a node ID to its call edges.
	outbound map[string][]graph.Edge

	// unresolvedByName maps a call name to the unresolved edges using it.
	unresolvedByName map[string][]graph.Edge
}

func newInput(idx *index.Index, report *graph.Report, includeTests bool) *input {
	in := &input{
		idx:              idx,
		report:           report,
		callers:          make(map[string][]string),
		inbound:          make(map[string][]graph.Edge),
		outbound:         make(map[string][]graph.Edge),
		unresolvedByName: make(map[string][]graph.Edge),
	}
	for _, sym := range idx.Functions() {
		if includeTests || !isTestFile(sym.FilePath) {
			in.candidates = append(in.candidates, sym)
		}
	}

	seen := make(map[string]bool)
	for _, e := range report.Edges {
		if e.Kind != graph.EdgeKindCall {
			continue
		}
		in.outbound[e.From] = append(in.outbound[e.From], e)
		if !e.Resolved {
			name := callName(e.Raw)
			in.unresolvedByName[name] = append(in.unresolvedByName[name], e)
			continue
		}
		if e.From == e.To {
			continue
		}
		in.inbound[e.To] = append(in.inbound[e.To], e)
		if key := e.From + "\x00" + e.To; !seen[key] {
			seen[key] = true
			in.callers[e.To] = append(in.callers[e.To], e.From)
		}
	}
	return in
}

// callName returns the last path segment of a callee.
func callName(raw string) string {
	if i := strings.LastIndexAny(raw, ".:"); i >= 0 {
		return raw[i+1:]
	}
	return raw
}

// site formats the location of an edge's call site.
func (in *input) site(e graph.Edge) string {
	if n, ok := in.report.Node(e.From); ok {
		return fmt.Sprintf("%s:%d", n.File, e.Line)
	}
	return fmt.Sprintf("%s:%d", e.From, e.Line)
}

// name returns the qualified name of a node, or its ID when unknown.
func (in *input) name(id string) string {
	if sym, ok := in.idx.ByID(id); ok {
		return sym.Name
	}
	return id
}

// Detect runs the selected detectors.
//
// Description:
//
//	Callables of the index are inspected against the call graph built from
//	the same index. Declarations in test files are skipped unless
//	WithIncludeTests is given. Findings are ordered by file, line, category
//	and first symbol, so identical inputs yield identical results.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	idx - The index the call graph was built from. Must not be nil.
//	callGraph - A call graph report. Unresolved edges feed the lonely and
//	            orphan detectors, so a report built with ResolvedOnly sees
//	            fewer call sites.
//	opts - Functional options.
//
// Outputs:
//
//	*Findings - The findings, never nil on success.
//	error - ErrNilIndex, ErrNotCallGraph or a context error.
//
// Thread Safety:
//
//	Safe for concurrent use; neither input is modified.
func Detect(ctx context.Context, idx *index.Index, callGraph *graph.Report, opts ...Option) (*Findings, error) {
	if idx == nil {
		return nil, ErrNilIndex
	}
	if callGraph == nil || callGraph.Kind != graph.KindCall {
		return nil, ErrNotCallGraph
	}
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := startDetectSpan(ctx, options.Categories)
	defer span.End()

	in := newInput(idx, callGraph, options.IncludeTests)
	var all []Finding
	for _, c := range AllCategories {
		if !selected(options.Categories, c) {
			continue
		}
		if err := ctx.Err(); err != nil {
			setDetectSpanResult(span, nil, err)
			recordDetectMetrics(ctx, nil, false)
			return nil, err
		}
		found := detectors[c](in)
		options.Logger.Debug("audit detector finished",
			slog.String("category", string(c)),
			slog.Int("findings", len(found)),
		)
		all = append(all, found...)
	}

	result := newFindings(all)
	setDetectSpanResult(span, result, nil)
	recordDetectMetrics(ctx, result, true)
	return result, nil
}

func selected(categories []Category, c Category) bool {
	for _, x := range categories {
		if x == c {
			return true
		}
	}
	return false
}
