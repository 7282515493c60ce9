// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


// Package collect gathers the source files of a project tree into scanned
// files ready for indexing.
package collect

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/tracemap/services/trace/ast"
)

// DefaultMaxFileBytes is the size above which a file is skipped.
const DefaultMaxFileBytes int64 = 2 << 20

// DefaultIgnore lists the globs excluded from every collection: version
// control metadata, dependency trees and build output.
var DefaultIgnore = []string{
	"**/.git/**",
	"**/.hg/**",
	"**/node_modules/**",
	"**/target/**",
	"**/__pycache__/**",
	"**/.venv/**",
	"**/venv/**",
	"**/dist/**",
	"**/build/**",
}

// SkipReason says why a candidate file was left out.
type SkipReason string

const (
	// SkipTooLarge marks a file above the size limit.
	SkipTooLarge SkipReason = "too_large"

	// SkipUnreadable marks a file that could not be read.
	SkipUnreadable SkipReason = "unreadable"
)

// Skipped is a source file the collector saw but did not return.
type Skipped struct {
	Path   string     `json:"path"`
	Reason SkipReason `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

// Result is the outcome of one collection.
type Result struct {
	// Root is the absolute collection root.
	Root string

	// Files are the collected files sorted by path.
	Files []*ast.ScannedFile

	// Skipped are the source files left out, sorted by path.
	Skipped []Skipped
}

// Options configures Collect.
type Options struct {
	// Ignore lists doublestar globs matched against slash-separated paths
	// relative to the root.
	// Default: DefaultIgnore
	Ignore []string

	// MaxFileBytes is the largest file collected.
	// Default: DefaultMaxFileBytes
	MaxFileBytes int64

	// Workers bounds concurrent file reads.
	// Default: runtime.NumCPU()
	Workers int

	// Logger receives debug output.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Ignore:       append([]string(nil), DefaultIgnore...),
		MaxFileBytes: DefaultMaxFileBytes,
		Workers:      runtime.NumCPU(),
		Logger:       slog.Default(),
	}
}

// Option is a functional option for Collect.
type Option func(*Options)

// WithIgnore adds ignore globs to the defaults.
func WithIgnore(patterns ...string) Option {
	return func(o *Options) {
		o.Ignore = append(o.Ignore, patterns...)
	}
}

// WithIgnoreList replaces the ignore globs, defaults included.
func WithIgnoreList(patterns []string) Option {
	return func(o *Options) {
		o.Ignore = append([]string(nil), patterns...)
	}
}

// WithMaxFileBytes sets the size limit. Values below 1 select the default.
func WithMaxFileBytes(n int64) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxFileBytes = n
		}
	}
}

// WithWorkers sets the number of concurrent reads. Values below 1 select
// the default.
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

// ValidatePatterns checks that every glob is well formed.
//
// Outputs:
//
//	error - ErrInvalidPattern naming the first bad glob, or nil.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("%w: %q", ErrInvalidPattern, p)
		}
	}
	return nil
}

// Collect walks a project tree and reads every file with a supported
// source extension.
//
// Description:
//
//	Directories and files matching an ignore glob are not entered.
//	Symbolic links are not followed. Files with an unsupported extension
//	are passed over silently; oversized and unreadable source files are
//	reported in Result.Skipped and the walk continues. Paths in the result
//	are relative to the root and slash separated.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	root - The project directory.
//	opts - Functional options.
//
// Outputs:
//
//	*Result - The collected files, sorted by path.
//	error - ErrNotDirectory, ErrInvalidPattern, a walk error, or a
//	        context error.
//
// Thread Safety:
//
//	Safe for concurrent use.
func Collect(ctx context.Context, root string, opts ...Option) (*Result, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if err := ValidatePatterns(options.Ignore); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("collecting %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	c := &collector{root: abs, options: options}
	if err := filepath.WalkDir(abs, c.visit(ctx)); err != nil {
		return nil, err
	}

	files, unreadable, err := c.read(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{Root: abs, Files: files, Skipped: append(c.skipped, unreadable...)}
	sort.Slice(res.Skipped, func(i, j int) bool { return res.Skipped[i].Path < res.Skipped[j].Path })
	if res.Skipped == nil {
		res.Skipped = []Skipped{}
	}

	options.Logger.Debug("files collected",
		slog.String("root", abs),
		slog.Int("files", len(res.Files)),
		slog.Int("skipped", len(res.Skipped)),
	)
	return res, nil
}

type candidate struct {
	rel  string
	abs  string
	lang ast.Language
}

type collector struct {
	root       string
	options    Options
	candidates []candidate
	skipped    []Skipped
}

func (c *collector) visit(ctx context.Context) fs.WalkDirFunc {
	return func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == c.root {
				return err
			}
			rel := c.rel(path)
			c.skipped = append(c.skipped, Skipped{Path: rel, Reason: SkipUnreadable, Detail: err.Error()})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == c.root {
			return nil
		}
		rel := c.rel(path)
		if d.IsDir() {
			if c.ignored(rel) || c.ignored(rel+"/") {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		lang, ok := ast.LanguageForPath(rel)
		if !ok || c.ignored(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			c.skipped = append(c.skipped, Skipped{Path: rel, Reason: SkipUnreadable, Detail: err.Error()})
			return nil
		}
		if info.Size() > c.options.MaxFileBytes {
			c.skipped = append(c.skipped, Skipped{
				Path:   rel,
				Reason: SkipTooLarge,
				Detail: fmt.Sprintf("%d bytes exceeds the %d byte limit", info.Size(), c.options.MaxFileBytes),
			})
			return nil
		}
		c.candidates = append(c.candidates, candidate{rel: rel, abs: path, lang: lang})
		return nil
	}
}

func (c *collector) rel(path string) string {
	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (c *collector) ignored(rel string) bool {
	for _, pattern := range c.options.Ignore {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
		// A bare directory name matches at any depth.
		if !strings.ContainsAny(pattern, "/*?[{") && (rel == pattern || strings.HasSuffix(rel, "/"+pattern) ||
			strings.HasPrefix(rel, pattern+"/") || strings.Contains(rel, "/"+pattern+"/")) {
			return true
		}
	}
	return false
}

// read loads the candidates concurrently and returns them sorted by path.
func (c *collector) read(ctx context.Context) ([]*ast.ScannedFile, []Skipped, error) {
	files := make([]*ast.ScannedFile, len(c.candidates))
	failures := make([]error, len(c.candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.options.Workers, 1))
	for i, cand := range c.candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := os.ReadFile(cand.abs)
			if err != nil {
				failures[i] = err
				return nil
			}
			files[i] = ast.NewScannedFile(cand.rel, cand.lang, content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	out := make([]*ast.ScannedFile, 0, len(files))
	var skipped []Skipped
	for i, f := range files {
		if failures[i] != nil {
			skipped = append(skipped, Skipped{Path: c.candidates[i].rel, Reason: SkipUnreadable, Detail: failures[i].Error()})
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, skipped, nil
}
