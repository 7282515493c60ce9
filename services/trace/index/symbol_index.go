// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index builds the run-scoped symbol index over a batch of scanned
// files and the read-only scope index the edge resolver consults.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/tracemap/services/trace/ast"
)

// DefaultWorkers is used when no positive worker count is configured.
var DefaultWorkers = runtime.GOMAXPROCS(0)

// Options configures Build.
type Options struct {
	// Workers bounds the number of files scanned concurrently.
	// Default: GOMAXPROCS
	Workers int

	// Logger receives debug and warning output.
	// Default: slog.Default()
	Logger *slog.Logger

	// FileErrors are failures that kept files from being scanned at all,
	// such as unreadable files. They are reported with the scan failures.
	FileErrors []FileError
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		Workers: DefaultWorkers,
		Logger:  slog.Default(),
	}
}

// Option is a functional option for configuring Build.
type Option func(*Options)

// WithWorkers sets the scan concurrency. Values below 1 select the default.
func WithWorkers(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Workers = n
		}
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

// WithFileErrors records files that failed before they could be scanned.
func WithFileErrors(errs ...FileError) Option {
	return func(o *Options) {
		o.FileErrors = append(o.FileErrors, errs...)
	}
}

// Stats summarizes an index.
type Stats struct {
	// FilesScanned is the number of files that were indexed.
	FilesScanned int `json:"files_scanned"`

	// FilesErrored is the number of files excluded because of a FileError.
	FilesErrored int `json:"files_errored"`

	// Symbols is the number of entries across all files.
	Symbols int `json:"symbols"`

	// ByKind counts entries per kind.
	ByKind map[ast.SymbolKind]int `json:"by_kind"`

	// ByLanguage counts indexed files per language.
	ByLanguage map[ast.Language]int `json:"by_language"`

	// Warnings is the number of parse ambiguities recorded.
	Warnings int `json:"warnings"`
}

// Index is the immutable symbol index of one run.
//
// The index maintains multiple maps for efficient access patterns:
//   - byID: primary index for unique symbol lookup
//   - byName: symbols sharing a resolution name
//   - byFile: symbols per file, in (start line, name) order
//
// Thread Safety:
//
//	Index is never mutated after Build returns. All methods are safe for
//	concurrent use without locking.
//
// Ownership:
//
//	Slices returned by lookups are copies; the symbols they point to are
//	shared and MUST NOT be mutated.
type Index struct {
	files   []*ast.FileScan
	byPath  map[string]*ast.FileScan
	symbols []*ast.Symbol

	byID   map[string]*ast.Symbol
	byName map[string][]*ast.Symbol
	byFile map[string][]*ast.Symbol

	// nested maps a callable ID to the symbols declared inside its span.
	nested map[string][]*ast.Symbol
	// parent maps a symbol ID to its innermost enclosing callable.
	parent map[string]*ast.Symbol

	errs     []FileError
	warnings []ast.Warning
}

// Build scans a batch of files and assembles the index.
//
// Description:
//
//	Files are scanned concurrently, at most Workers at a time. Each worker
//	produces an independent per-file result; nothing is shared between
//	workers. The merge runs single-threaded after every worker finished, so
//	the resulting order never depends on scheduling. A file that cannot be
//	decoded is recorded as a FileError and left out of the index; it never
//	fails the batch.
//
// Inputs:
//
//	ctx - Context for cancellation. A cancelled run discards all partial
//	      results.
//	files - The scanned files. Paths must be unique.
//	opts - Functional options.
//
// Outputs:
//
//	*Index - The index. Never nil when err is nil.
//	error - Non-nil only when ctx was cancelled.
//
// Example:
//
//	idx, err := index.Build(ctx, files, index.WithWorkers(8))
//	if err != nil {
//	    return fmt.Errorf("indexing: %w", err)
//	}
//	for _, fe := range idx.Errors() {
//	    logger.Warn("file skipped", slog.String("path", fe.Path))
//	}
func Build(ctx context.Context, files []*ast.ScannedFile, opts ...Option) (*Index, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := startBuildSpan(ctx, len(files))
	defer span.End()
	start := time.Now()

	scans, scanErrs, err := scanAll(ctx, files, options.Workers)
	if err != nil {
		recordBuildMetrics(ctx, time.Since(start), 0, 0, false)
		setBuildSpanResult(span, 0, 0, err)
		return nil, err
	}

	idx := merge(files, scans, scanErrs, options.FileErrors)
	duration := time.Since(start)

	options.Logger.Debug("index built",
		slog.Int("files", len(idx.files)),
		slog.Int("errored", len(idx.errs)),
		slog.Int("symbols", len(idx.symbols)),
		slog.Int("warnings", len(idx.warnings)),
		slog.Duration("duration", duration),
	)
	for _, fe := range idx.errs {
		options.Logger.Warn("file excluded from index",
			slog.String("path", fe.Path),
			slog.String("error", fe.Message),
		)
	}

	recordBuildMetrics(ctx, duration, len(idx.files), len(idx.errs), true)
	setBuildSpanResult(span, len(idx.symbols), len(idx.errs), nil)
	return idx, nil
}

// scanAll runs ScanFile over every file with bounded concurrency. Result
// slots are indexed by input position so workers never share state.
func scanAll(ctx context.Context, files []*ast.ScannedFile, workers int) ([]*ast.FileScan, []error, error) {
	scans := make([]*ast.FileScan, len(files))
	errs := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, file := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if file == nil {
				errs[i] = ErrNilFile
				return nil
			}
			scans[i], errs[i] = ast.ScanFile(file)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return scans, errs, nil
}

func merge(files []*ast.ScannedFile, scans []*ast.FileScan, scanErrs []error, preErrs []FileError) *Index {
	idx := &Index{
		byPath: make(map[string]*ast.FileScan, len(files)),
		byID:   make(map[string]*ast.Symbol),
		byName: make(map[string][]*ast.Symbol),
		byFile: make(map[string][]*ast.Symbol),
		nested: make(map[string][]*ast.Symbol),
		parent: make(map[string]*ast.Symbol),
		errs:   append([]FileError(nil), preErrs...),
	}

	for i, scan := range scans {
		path := "<nil>"
		if files[i] != nil {
			path = files[i].Path
		}
		if err := scanErrs[i]; err != nil {
			idx.errs = append(idx.errs, newFileError(path, err))
			continue
		}
		if _, dup := idx.byPath[path]; dup {
			idx.errs = append(idx.errs, newFileError(path, ErrDuplicatePath))
			continue
		}
		idx.byPath[path] = scan
		idx.files = append(idx.files, scan)
		idx.warnings = append(idx.warnings, scan.Warnings...)
	}

	sort.Slice(idx.files, func(i, j int) bool {
		return idx.files[i].Source.File.Path < idx.files[j].Source.File.Path
	})

	for _, scan := range idx.files {
		path := scan.Source.File.Path
		for _, sym := range scan.Symbols {
			if _, dup := idx.byID[sym.ID]; dup {
				idx.warnings = append(idx.warnings, ast.Warning{
					Path:    path,
					Line:    sym.StartLine,
					Message: fmt.Sprintf("%v: %s", ErrDuplicateSymbol, sym.ID),
				})
				continue
			}
			idx.byID[sym.ID] = sym
			idx.byName[sym.ResolutionName] = append(idx.byName[sym.ResolutionName], sym)
			idx.byFile[path] = append(idx.byFile[path], sym)
			idx.symbols = append(idx.symbols, sym)
		}
		idx.linkNesting(idx.byFile[path])
	}

	sort.Slice(idx.errs, func(i, j int) bool {
		if idx.errs[i].Path != idx.errs[j].Path {
			return idx.errs[i].Path < idx.errs[j].Path
		}
		return idx.errs[i].Message < idx.errs[j].Message
	})
	sortWarnings(idx.warnings)
	return idx
}

// linkNesting records, for one file's symbols in start-line order, which
// symbols each callable encloses and the innermost enclosing callable of
// each symbol.
func (idx *Index) linkNesting(symbols []*ast.Symbol) {
	var stack []*ast.Symbol
	for _, sym := range symbols {
		for len(stack) > 0 && !encloses(stack[len(stack)-1], sym) {
			stack = stack[:len(stack)-1]
		}
		for i := len(stack) - 1; i >= 0; i-- {
			outer := stack[i]
			if !outer.Kind.IsCallable() {
				continue
			}
			idx.nested[outer.ID] = append(idx.nested[outer.ID], sym)
			if _, ok := idx.parent[sym.ID]; !ok {
				idx.parent[sym.ID] = outer
			}
		}
		stack = append(stack, sym)
	}
}

func encloses(outer, inner *ast.Symbol) bool {
	return inner.StartLine > outer.StartLine && inner.EndLine <= outer.EndLine
}

func sortWarnings(ws []ast.Warning) {
	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].Path != ws[j].Path {
			return ws[i].Path < ws[j].Path
		}
		if ws[i].Line != ws[j].Line {
			return ws[i].Line < ws[j].Line
		}
		return ws[i].Message < ws[j].Message
	})
}

// Files returns the indexed files sorted by path.
func (idx *Index) Files() []*ast.FileScan {
	out := make([]*ast.FileScan, len(idx.files))
	copy(out, idx.files)
	return out
}

// File returns the scan of one indexed file.
func (idx *Index) File(path string) (*ast.FileScan, bool) {
	scan, ok := idx.byPath[path]
	return scan, ok
}

// Symbols returns every entry sorted by (file, start line, name).
func (idx *Index) Symbols() []*ast.Symbol {
	return copySlice(idx.symbols)
}

// Functions returns the callable entries (functions and methods) in index order.
func (idx *Index) Functions() []*ast.Symbol {
	out := make([]*ast.Symbol, 0, len(idx.symbols))
	for _, sym := range idx.symbols {
		if sym.Kind.IsCallable() {
			out = append(out, sym)
		}
	}
	return out
}

// ByID returns the entry with the given identity.
func (idx *Index) ByID(id string) (*ast.Symbol, bool) {
	sym, ok := idx.byID[id]
	return sym, ok
}

// ByName returns every entry with the given resolution name, in index order.
func (idx *Index) ByName(name string) []*ast.Symbol {
	return copySlice(idx.byName[name])
}

// ByFile returns the entries of one file in (start line, name) order.
func (idx *Index) ByFile(path string) []*ast.Symbol {
	return copySlice(idx.byFile[path])
}

// Nested returns the symbols declared inside a callable's span.
func (idx *Index) Nested(sym *ast.Symbol) []*ast.Symbol {
	return copySlice(idx.nested[sym.ID])
}

// Parent returns the innermost callable enclosing sym, if any.
func (idx *Index) Parent(sym *ast.Symbol) (*ast.Symbol, bool) {
	p, ok := idx.parent[sym.ID]
	return p, ok
}

// Lookup finds callables of one file by name.
//
// Description:
//
//	The qualified display name ("Service.run", "Server::new") is tried
//	first; if nothing matches, the bare resolution name is used. Callers
//	decide what to do with more than one match.
//
// Outputs:
//
//	[]*ast.Symbol - Matching callables in line order. Empty if none.
func (idx *Index) Lookup(path, name string) []*ast.Symbol {
	var qualified, bare []*ast.Symbol
	for _, sym := range idx.byFile[path] {
		if !sym.Kind.IsCallable() {
			continue
		}
		if sym.Name == name {
			qualified = append(qualified, sym)
		} else if sym.ResolutionName == name {
			bare = append(bare, sym)
		}
	}
	if len(qualified) > 0 {
		return qualified
	}
	return bare
}

// Calls returns the call sites inside a callable's body, excluding calls
// made from nested declarations.
func (idx *Index) Calls(sym *ast.Symbol) []ast.CallSite {
	scan, ok := idx.byPath[sym.FilePath]
	if !ok || !sym.Kind.IsCallable() || !sym.HasBody {
		return nil
	}
	return ast.Calls(scan.Source, sym, idx.nested[sym.ID])
}

// Body returns the body of a callable.
func (idx *Index) Body(sym *ast.Symbol) (ast.Body, error) {
	scan, ok := idx.byPath[sym.FilePath]
	if !ok {
		return ast.Body{}, fmt.Errorf("%s: %w", sym.FilePath, ErrUnknownFile)
	}
	return ast.BodyOf(scan.Source, sym)
}

// Errors returns the per-file errors sorted by path.
func (idx *Index) Errors() []FileError {
	out := make([]FileError, len(idx.errs))
	copy(out, idx.errs)
	return out
}

// Warnings returns the parse ambiguities sorted by (path, line, message).
func (idx *Index) Warnings() []ast.Warning {
	out := make([]ast.Warning, len(idx.warnings))
	copy(out, idx.warnings)
	return out
}

// IsInvalidContent reports whether a file error comes from undecodable content.
func IsInvalidContent(fe FileError) bool {
	return errors.Is(fe.Err, ast.ErrInvalidContent)
}

// Stats returns summary counts for the index.
func (idx *Index) Stats() Stats {
	s := Stats{
		FilesScanned: len(idx.files),
		FilesErrored: len(idx.errs),
		Symbols:      len(idx.symbols),
		ByKind:       make(map[ast.SymbolKind]int),
		ByLanguage:   make(map[ast.Language]int),
		Warnings:     len(idx.warnings),
	}
	for _, sym := range idx.symbols {
		s.ByKind[sym.Kind]++
	}
	for _, scan := range idx.files {
		s.ByLanguage[scan.Source.File.Language]++
	}
	return s
}

// copySlice returns a defensive copy so callers cannot disturb index order.
func copySlice(src []*ast.Symbol) []*ast.Symbol {
	if len(src) == 0 {
		return []*ast.Symbol{}
	}
	out := make([]*ast.Symbol, len(src))
	copy(out, src)
	return out
}
