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
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/tracemap/services/trace/ast"
	"github.com/AleutianAI/tracemap/services/trace/index"
	"github.com/AleutianAI/tracemap/services/trace/resolve"
)

// DefaultMaxCallsPerFunction bounds the call sites kept per function.
const DefaultMaxCallsPerFunction = 256

// ProgressPhase indicates which phase of building is in progress.
type ProgressPhase int

const (
	// ProgressPhaseCollecting indicates nodes are being collected.
	ProgressPhaseCollecting ProgressPhase = iota

	// ProgressPhaseExtractingEdges indicates raw edges are being extracted.
	ProgressPhaseExtractingEdges

	// ProgressPhaseResolving indicates raw edges are being resolved.
	ProgressPhaseResolving

	// ProgressPhaseFinalizing indicates the report is being finalized.
	ProgressPhaseFinalizing
)

// String returns the string representation of the ProgressPhase.
func (p ProgressPhase) String() string {
	switch p {
	case ProgressPhaseCollecting:
		return "collecting"
	case ProgressPhaseExtractingEdges:
		return "extracting_edges"
	case ProgressPhaseResolving:
		return "resolving"
	case ProgressPhaseFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// BuildProgress contains progress information during a build.
type BuildProgress struct {
	// Kind is the report being built.
	Kind Kind

	// Phase is the current build phase.
	Phase ProgressPhase

	// Nodes is the number of nodes collected so far.
	Nodes int

	// Edges is the number of edges extracted so far.
	Edges int
}

// ProgressFunc is a callback function for build progress updates.
type ProgressFunc func(progress BuildProgress)

// BuilderOptions configures Builder behavior.
type BuilderOptions struct {
	// ProjectRoot is recorded in reports. Paths in reports are relative to it.
	ProjectRoot string

	// MaxCallsPerFunction caps the call sites extracted per function.
	// Default: 256
	MaxCallsPerFunction int

	// ResolvedOnly drops unresolved edges from emitted reports. Dropped
	// edges are still counted in Stats.
	ResolvedOnly bool

	// HubCount is the number of hubs listed in degree statistics.
	// Default: 10
	HubCount int

	// WorkerCount is the number of parallel workers for call extraction.
	// Default: runtime.NumCPU()
	WorkerCount int

	// ProgressCallback is called at every phase change. May be nil.
	ProgressCallback ProgressFunc

	// Logger receives debug output.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultBuilderOptions returns sensible defaults.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		MaxCallsPerFunction: DefaultMaxCallsPerFunction,
		HubCount:            DefaultHubCount,
		WorkerCount:         runtime.NumCPU(),
		Logger:              slog.Default(),
	}
}

// BuilderOption is a functional option for configuring Builder.
type BuilderOption func(*BuilderOptions)

// WithProjectRoot sets the project root recorded in reports.
func WithProjectRoot(root string) BuilderOption {
	return func(o *BuilderOptions) {
		o.ProjectRoot = root
	}
}

// WithMaxCallsPerFunction sets the per-function call site cap. Values
// below 1 select the default.
func WithMaxCallsPerFunction(n int) BuilderOption {
	return func(o *BuilderOptions) {
		if n > 0 {
			o.MaxCallsPerFunction = n
		}
	}
}

// WithResolvedOnly drops unresolved edges from emitted reports.
func WithResolvedOnly(resolvedOnly bool) BuilderOption {
	return func(o *BuilderOptions) {
		o.ResolvedOnly = resolvedOnly
	}
}

// WithHubCount sets the number of hubs reported. Values below 1 select the
// default.
func WithHubCount(n int) BuilderOption {
	return func(o *BuilderOptions) {
		if n > 0 {
			o.HubCount = n
		}
	}
}

// WithWorkerCount sets the number of parallel workers.
func WithWorkerCount(n int) BuilderOption {
	return func(o *BuilderOptions) {
		o.WorkerCount = n
	}
}

// WithProgressCallback sets the progress callback function.
func WithProgressCallback(fn ProgressFunc) BuilderOption {
	return func(o *BuilderOptions) {
		o.ProgressCallback = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(o *BuilderOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// Builder constructs blueprint and call graph reports from an index.
//
// The builder is stateless and can be reused across multiple builds.
// Each build call creates a new report.
//
// Thread Safety:
//
//	Builder is safe for concurrent use. Each build operates independently
//	and only reads the index it is given.
type Builder struct {
	options BuilderOptions
}

// NewBuilder creates a new Builder with the given options.
//
// Example:
//
//	builder := NewBuilder(
//	    WithMaxCallsPerFunction(128),
//	    WithResolvedOnly(true),
//	)
func NewBuilder(opts ...BuilderOption) *Builder {
	options := DefaultBuilderOptions()
	for _, opt := range opts {
		opt(&options)
	}

	if options.WorkerCount <= 0 {
		options.WorkerCount = runtime.NumCPU()
	}

	return &Builder{
		options: options,
	}
}

// Options returns the builder's effective options.
func (b *Builder) Options() BuilderOptions {
	return b.options
}

// BuildBlueprint builds the file-level dependency report.
//
// Description:
//
//	One node per indexed file and one edge per module, import or use
//	declaration. Each declaration is resolved to a file through the edge
//	resolver; ambiguous or external targets stay unresolved. Files the
//	index excluded appear in Errors only.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	idx - The complete index. Must not be nil.
//
// Outputs:
//
//	*Report - The blueprint report, canonically ordered.
//	error - Non-nil for a nil index or a cancelled context.
//
// Build Phases:
//
//  1. COLLECT: one node per indexed file
//  2. RESOLVE: resolve every declaration against the complete file set
//  3. FINALIZE: stats, degrees and canonical ordering
func (b *Builder) BuildBlueprint(ctx context.Context, idx *index.Index) (*Report, error) {
	if idx == nil {
		return nil, ErrNilIndex
	}
	ctx, span := startBuildSpan(ctx, KindBlueprint, len(idx.Files()))
	defer span.End()
	start := time.Now()

	report := b.newReport(KindBlueprint, idx)
	files := idx.Files()
	for _, scan := range files {
		file := scan.Source.File
		report.Nodes = append(report.Nodes, Node{
			ID:       file.Path,
			Name:     file.Path,
			Kind:     NodeKindFile,
			File:     file.Path,
			Language: file.Language,
			Hash:     file.Hash,
		})
	}
	b.reportProgress(KindBlueprint, ProgressPhaseCollecting, len(report.Nodes), 0)

	resolver := resolve.New(idx, index.NewScope(idx))
	var edges []Edge
	for _, scan := range files {
		if err := ctx.Err(); err != nil {
			return b.abort(ctx, span, KindBlueprint, start, err)
		}
		from := scan.Source.File.Path
		for _, imp := range scan.Imports {
			target, ok := resolver.ResolveImport(from, imp)
			edges = append(edges, Edge{
				From:     from,
				To:       target,
				Raw:      imp.Raw,
				Kind:     EdgeKind(imp.Kind),
				Line:     imp.Line,
				Resolved: ok,
			})
		}
	}
	b.reportProgress(KindBlueprint, ProgressPhaseResolving, len(report.Nodes), len(edges))

	b.finalize(report, edges)
	b.finish(ctx, span, report, start)
	return report, nil
}

// rawCalls holds the call sites extracted from one function.
type rawCalls struct {
	caller    *ast.Symbol
	calls     []ast.CallSite
	truncated bool
}

// BuildCallGraph builds the function-level call report.
//
// Description:
//
//	One node per indexed function or method and one edge per call site
//	found in its body, capped at MaxCallsPerFunction. Call sites are
//	extracted in parallel per file; resolution runs single-threaded after
//	extraction against the complete index, with each file's resolved
//	imports in scope.
//
// Inputs:
//
//	ctx - Context for cancellation. A cancelled build returns no report.
//	idx - The complete index. Must not be nil.
//
// Outputs:
//
//	*Report - The call report, canonically ordered.
//	error - Non-nil for a nil index or a cancelled context.
func (b *Builder) BuildCallGraph(ctx context.Context, idx *index.Index) (*Report, error) {
	if idx == nil {
		return nil, ErrNilIndex
	}
	ctx, span := startBuildSpan(ctx, KindCall, len(idx.Files()))
	defer span.End()
	start := time.Now()

	report := b.newReport(KindCall, idx)
	for _, fn := range idx.Functions() {
		kind := NodeKindFunction
		if fn.Kind == ast.SymbolKindMethod {
			kind = NodeKindMethod
		}
		report.Nodes = append(report.Nodes, Node{
			ID:        fn.ID,
			Name:      fn.Name,
			Kind:      kind,
			File:      fn.FilePath,
			Line:      fn.StartLine,
			EndLine:   fn.EndLine,
			Container: fn.Container,
			Language:  fn.Language,
		})
	}
	b.reportProgress(KindCall, ProgressPhaseCollecting, len(report.Nodes), 0)

	extracted, err := b.extractCalls(ctx, idx)
	if err != nil {
		return b.abort(ctx, span, KindCall, start, err)
	}
	b.reportProgress(KindCall, ProgressPhaseExtractingEdges, len(report.Nodes), 0)

	resolver := resolve.New(idx, index.NewScope(idx)).WithVisibility()
	var edges []Edge
	for _, perFile := range extracted {
		if err := ctx.Err(); err != nil {
			return b.abort(ctx, span, KindCall, start, err)
		}
		for _, rc := range perFile {
			if rc.truncated {
				report.Stats.TruncatedFunctions++
			}
			for _, call := range rc.calls {
				target, ok := resolver.ResolveCall(rc.caller, call)
				edges = append(edges, Edge{
					From:     rc.caller.ID,
					To:       target,
					Raw:      call.Raw,
					Kind:     EdgeKindCall,
					Line:     call.Line,
					Resolved: ok,
				})
			}
		}
	}
	b.reportProgress(KindCall, ProgressPhaseResolving, len(report.Nodes), len(edges))

	b.finalize(report, edges)
	b.finish(ctx, span, report, start)
	return report, nil
}

// extractCalls scans function bodies file by file on a bounded worker pool.
// Results are slotted by file position, so no state is shared.
func (b *Builder) extractCalls(ctx context.Context, idx *index.Index) ([][]rawCalls, error) {
	files := idx.Files()
	out := make([][]rawCalls, len(files))
	limit := b.options.MaxCallsPerFunction

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.options.WorkerCount)
	for i, scan := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var perFile []rawCalls
			for _, sym := range idx.ByFile(scan.Source.File.Path) {
				if !sym.Kind.IsCallable() {
					continue
				}
				calls := idx.Calls(sym)
				rc := rawCalls{caller: sym, calls: calls}
				if len(calls) > limit {
					rc.calls = calls[:limit]
					rc.truncated = true
				}
				perFile = append(perFile, rc)
			}
			out[i] = perFile
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Builder) newReport(kind Kind, idx *index.Index) *Report {
	report := &Report{
		SchemaVersion: SchemaVersion,
		Kind:          kind,
		Root:          b.options.ProjectRoot,
		Warnings:      idx.Warnings(),
	}
	for _, fe := range idx.Errors() {
		report.Errors = append(report.Errors, FileError{Path: fe.Path, Message: fe.Message})
	}
	report.Stats.FilesScanned = len(idx.Files())
	report.Stats.FilesErrored = len(report.Errors)
	return report
}

// finalize computes stats over all extracted edges, applies ResolvedOnly,
// and canonicalizes the report.
func (b *Builder) finalize(report *Report, edges []Edge) {
	stats := &report.Stats
	stats.ByLanguage = make(map[ast.Language]int)
	stats.ByEdgeKind = make(map[EdgeKind]int)
	for _, n := range report.Nodes {
		stats.ByLanguage[n.Language]++
	}

	emitted := make([]Edge, 0, len(edges))
	for _, e := range edges {
		stats.ByEdgeKind[e.Kind]++
		if e.Resolved {
			stats.ResolvedEdges++
			emitted = append(emitted, e)
			continue
		}
		stats.UnresolvedEdges++
		if b.options.ResolvedOnly {
			stats.DroppedUnresolved++
			continue
		}
		emitted = append(emitted, e)
	}
	report.Edges = emitted
	report.canonicalize()

	stats.NodeCount = len(report.Nodes)
	stats.EdgeCount = len(report.Edges)
	stats.Degree = summarizeDegrees(report.Nodes, computeDegrees(report.Nodes, report.Edges), b.options.HubCount)

	b.reportProgress(report.Kind, ProgressPhaseFinalizing, stats.NodeCount, stats.EdgeCount)
}

func (b *Builder) finish(ctx context.Context, span trace.Span, report *Report, start time.Time) {
	duration := time.Since(start)
	b.options.Logger.Debug("graph built",
		slog.String("kind", string(report.Kind)),
		slog.Int("nodes", report.Stats.NodeCount),
		slog.Int("edges", report.Stats.EdgeCount),
		slog.Int("resolved", report.Stats.ResolvedEdges),
		slog.Int("unresolved", report.Stats.UnresolvedEdges),
		slog.Int("file_errors", report.Stats.FilesErrored),
		slog.Duration("duration", duration),
	)
	setBuildSpanResult(span, report, nil)
	recordBuildMetrics(ctx, report.Kind, duration, report.Stats, true)
}

func (b *Builder) abort(ctx context.Context, span trace.Span, kind Kind, start time.Time, err error) (*Report, error) {
	setBuildSpanResult(span, nil, err)
	recordBuildMetrics(ctx, kind, time.Since(start), Stats{}, false)
	return nil, err
}

func (b *Builder) reportProgress(kind Kind, phase ProgressPhase, nodes, edges int) {
	if b.options.ProgressCallback == nil {
		return
	}
	b.options.ProgressCallback(BuildProgress{Kind: kind, Phase: phase, Nodes: nodes, Edges: edges})
}
