// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cfg builds per-function control-flow graphs from the statement
// structure of a function body.
//
// Bodies are not parsed into full syntax trees. Brace-delimited bodies
// (Rust, JavaScript, TypeScript) and indentation-based bodies (Python) are
// read into a small statement tree of simple statements, early exits,
// conditionals, loops, switches and try blocks, which is then lowered into
// entry, branch, loop-head, block and exit nodes. A reachability pass marks
// nodes no path from the entry reaches.
//
// Structural problems such as unbalanced braces never fail a build: the
// graph is built from what could be read and the problem is recorded as a
// warning.
package cfg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/tracemap/services/trace/ast"
	"github.com/AleutianAI/tracemap/services/trace/index"
)

// Options configures Build.
type Options struct {
	// Diagram renders the Mermaid diagram into Graph.Diagram.
	Diagram bool

	// Logger receives debug output.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{Logger: slog.Default()}
}

// Option is a functional option for Build.
type Option func(*Options)

// WithDiagram requests the Mermaid rendering.
func WithDiagram(on bool) Option {
	return func(o *Options) {
		o.Diagram = on
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

// Build constructs the control-flow graph of one function.
//
// Description:
//
//	The function is looked up in the index by symbol ID, by qualified name
//	("Service.run") or by bare name. Its body is read into a statement tree
//	according to its syntax family and lowered into a graph. Every early
//	return, throw or raise block is an exit block; nodes not reachable from
//	the entry are listed in Unreachable. A declaration without a body yields
//	a graph whose entry leads straight to the exit.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	idx - The index holding the function. Must not be nil.
//	file - Path of the declaring file.
//	function - Symbol ID, qualified name or bare name.
//	opts - Functional options.
//
// Outputs:
//
//	*Graph - The control-flow graph.
//	error - ErrFunctionNotFound, ErrAmbiguousFunction, ErrNilIndex or a
//	        context error. Structural problems are warnings, not errors.
//
// Example:
//
//	g, err := cfg.Build(ctx, idx, "app/service.py", "Service.run", cfg.WithDiagram(true))
//	if errors.Is(err, cfg.ErrFunctionNotFound) {
//	    // report the missing function
//	}
//
// Thread Safety:
//
//	Safe for concurrent use; the index is only read.
func Build(ctx context.Context, idx *index.Index, file, function string, opts ...Option) (*Graph, error) {
	if idx == nil {
		return nil, ErrNilIndex
	}
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := startBuildSpan(ctx, file, function)
	defer span.End()

	g, err := build(ctx, idx, file, function)
	setBuildSpanResult(span, g, err)
	recordBuildMetrics(ctx, g, err == nil)
	if err != nil {
		return nil, err
	}

	if options.Diagram {
		g.Diagram = RenderMermaid(g)
	}
	options.Logger.Debug("cfg built",
		slog.String("function", g.Function),
		slog.Int("nodes", len(g.Nodes)),
		slog.Int("edges", len(g.Edges)),
		slog.Int("unreachable", len(g.Unreachable)),
		slog.Int("warnings", len(g.Warnings)),
	)
	return g, nil
}

func build(ctx context.Context, idx *index.Index, file, function string) (*Graph, error) {
	sym, err := lookup(idx, file, function)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var stmts []*stmt
	var warnings []lineWarning
	body, err := idx.Body(sym)
	switch {
	case errors.Is(err, ast.ErrNoBody):
		warnings = append(warnings, lineWarning{line: sym.StartLine, message: "declaration has no body"})
	case err != nil:
		return nil, fmt.Errorf("reading body of %s: %w", sym.ID, err)
	default:
		stmts, warnings = parseBody(body)
	}

	g, lowerWarnings := lower(stmts)
	g.Function = sym.ID
	g.Name = sym.Name
	g.File = sym.FilePath
	g.Language = sym.Language
	markUnreachable(g)

	g.Warnings = []ast.Warning{}
	for _, w := range append(warnings, lowerWarnings...) {
		g.Warnings = append(g.Warnings, ast.Warning{Path: sym.FilePath, Line: w.line, Message: w.message})
	}
	return g, nil
}

// parseBody reads a body into a statement tree with the parser of its
// syntax family.
func parseBody(body ast.Body) ([]*stmt, []lineWarning) {
	switch body.Family {
	case ast.FamilyD:
		p := newIndentParser(body.Masked, body.Text, body.StartLine)
		stmts := p.parse()
		return stmts, p.warnings
	default:
		p := newCurlyParser(body.Masked, body.Text, body.StartLine, body.Family == ast.FamilyS)
		stmts := p.parse()
		return stmts, p.warnings
	}
}

// lookup resolves the requested function to exactly one symbol.
func lookup(idx *index.Index, file, function string) (*ast.Symbol, error) {
	if sym, ok := idx.ByID(function); ok && sym.Kind.IsCallable() && (file == "" || sym.FilePath == file) {
		return sym, nil
	}
	if _, ok := idx.File(file); !ok {
		return nil, fmt.Errorf("%w: %s (file %s is not indexed)", ErrFunctionNotFound, function, file)
	}
	candidates := idx.Lookup(file, function)
	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("%w: %s in %s", ErrFunctionNotFound, function, file)
	case 1:
		return candidates[0], nil
	}
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return nil, fmt.Errorf("%w: %s in %s matches %s", ErrAmbiguousFunction, function, file, strings.Join(ids, ", "))
}
