// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"bytes"
	"fmt"
	"sort"
	"unicode/utf8"
)

// Scanner is the capability shared by the three family scanners.
//
// Description:
//
//	Implementations are stateless and safe for concurrent use. The set of
//	implementations is closed; obtain one through ScannerFor.
type Scanner interface {
	// Family returns the syntax family this scanner handles.
	Family() Family

	// Symbols returns the declarations of the source in offset order plus
	// any parse ambiguities encountered.
	Symbols(src *Source) ([]*Symbol, []Warning)

	// Imports returns the file-level dependency declarations in offset order.
	Imports(src *Source) []Import
}

// ScannerFor returns the scanner for a language tag.
//
// Outputs:
//
//	Scanner - The family scanner.
//	error - ErrUnsupportedLanguage if the tag has no family.
func ScannerFor(lang Language) (Scanner, error) {
	switch lang.Family() {
	case FamilyS:
		return rustScanner{}, nil
	case FamilyC:
		return curlyScanner{}, nil
	case FamilyD:
		return pythonScanner{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
}

// Source is a validated file plus its masked text.
//
// Thread Safety: Immutable after NewSource returns; safe for concurrent reads.
type Source struct {
	// File is the scanned file.
	File *ScannedFile

	// Masked is the file content with comments and literal contents blanked.
	Masked []byte

	lines lineIndex
}

// NewSource validates a file's encoding and masks its content.
//
// Description:
//
//	Content must be valid UTF-8 without NUL bytes. An undecodable file yields
//	a *ParseError wrapping ErrInvalidContent so callers can record it as a
//	per-file error and continue with the rest of the batch.
//
// Inputs:
//
//	file - The file to prepare. Must not be nil.
//
// Outputs:
//
//	*Source - The prepared source.
//	error - Non-nil for unsupported languages or undecodable content.
func NewSource(file *ScannedFile) (*Source, error) {
	family := file.Language.Family()
	if family == FamilyUnknown {
		return nil, NewParseErrorWithCause(file.Path, 0, "no scanner for language "+string(file.Language), ErrUnsupportedLanguage)
	}
	if i := bytes.IndexByte(file.Content, 0); i >= 0 {
		line := bytes.Count(file.Content[:i], []byte{'\n'}) + 1
		return nil, NewParseErrorWithCause(file.Path, line, "content contains NUL byte", ErrInvalidContent)
	}
	if !utf8.Valid(file.Content) {
		return nil, NewParseErrorWithCause(file.Path, 0, "content is not valid UTF-8", ErrInvalidContent)
	}
	return &Source{
		File:   file,
		Masked: Mask(family, file.Content),
		lines:  newLineIndex(file.Content),
	}, nil
}

// Family returns the family of the source's language.
func (s *Source) Family() Family {
	return s.File.Language.Family()
}

// Line returns the 1-indexed line of a byte offset.
func (s *Source) Line(offset int) int {
	return s.lines.line(offset)
}

// LineStart returns the byte offset of a 1-indexed line.
func (s *Source) LineStart(line int) int {
	return s.lines.start(line)
}

func (s *Source) warn(line int, format string, args ...any) Warning {
	return Warning{Path: s.File.Path, Line: line, Message: fmt.Sprintf(format, args...)}
}

// FileScan is the per-file result of scanning one source.
type FileScan struct {
	// Source is the prepared source.
	Source *Source

	// Symbols are sorted by (start line, name).
	Symbols []*Symbol

	// Imports are in offset order.
	Imports []Import

	// Warnings are parse ambiguities; they never fail the file.
	Warnings []Warning
}

// ScanFile prepares a file and runs its family scanner.
//
// Description:
//
//	This is the per-file unit of work of the indexer. It is pure and safe to
//	call concurrently for different files.
//
// Outputs:
//
//	*FileScan - The symbols, imports and warnings of the file.
//	error - A *ParseError for unsupported or undecodable files.
func ScanFile(file *ScannedFile) (*FileScan, error) {
	src, err := NewSource(file)
	if err != nil {
		return nil, err
	}
	sc, err := ScannerFor(file.Language)
	if err != nil {
		return nil, NewParseErrorWithCause(file.Path, 0, "no scanner", err)
	}
	symbols, warnings := sc.Symbols(src)
	valid := symbols[:0]
	for _, sym := range symbols {
		if err := sym.Validate(); err != nil {
			warnings = append(warnings, src.warn(sym.StartLine, "dropped declaration %q: %v", sym.Name, err))
			continue
		}
		valid = append(valid, sym)
	}
	SortSymbols(valid)
	return &FileScan{
		Source:   src,
		Symbols:  valid,
		Imports:  sc.Imports(src),
		Warnings: warnings,
	}, nil
}

// SortSymbols orders symbols by (file, start line, name, id).
func SortSymbols(symbols []*Symbol) {
	sort.SliceStable(symbols, func(i, j int) bool {
		a, b := symbols[i], symbols[j]
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

// sortLocated stably orders items by an offset key.
func sortLocated[T any](items []T, key func(i int) int) {
	sort.SliceStable(items, func(i, j int) bool { return key(i) < key(j) })
}

// BodyOf extracts the body of a callable symbol.
//
// Outputs:
//
//	Body - The raw and masked body text.
//	error - ErrNoBody when the symbol is bodiless or its span is invalid.
func BodyOf(src *Source, sym *Symbol) (Body, error) {
	if !sym.HasBody || sym.BodyStart < 0 || sym.BodyEnd > len(src.Masked) || sym.BodyEnd < sym.BodyStart {
		return Body{}, fmt.Errorf("%s: %w", sym.ID, ErrNoBody)
	}
	return Body{
		StartLine: src.Line(sym.BodyStart),
		Text:      string(src.File.Content[sym.BodyStart:sym.BodyEnd]),
		Masked:    string(src.Masked[sym.BodyStart:sym.BodyEnd]),
		Family:    src.Family(),
	}, nil
}

// spanKind classifies the blocks a curly scanner tracks.
type spanKind int

const (
	spanFunction spanKind = iota
	spanTypeContainer
	spanModule
)

// declSpan is a declaration found by a curly-family scanner before
// qualification. For block bodies open and close are the offsets of the
// braces; for expression bodies they bound the expression (close inclusive).
type declSpan struct {
	name      string
	kind      spanKind
	declStart int
	open      int
	close     int
	hasBody   bool
	params    []string
	emit      bool
	sep       string
}

// assemble qualifies declaration spans by nesting and converts them into
// symbols.
//
// Description:
//
//	Spans are ordered by declaration offset and pushed onto a stack of open
//	blocks. A function directly inside a type container becomes a method of
//	it; every other function is a free function qualified by its enclosing
//	blocks. Only spans marked emit become symbols.
func assemble(src *Source, spans []declSpan) []*Symbol {
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].declStart < spans[j].declStart })

	type frame struct {
		span      *declSpan
		qualified string
		container string
	}
	var stack []frame
	symbols := make([]*Symbol, 0, len(spans))
	for i := range spans {
		sp := &spans[i]
		for len(stack) > 0 && stack[len(stack)-1].span.close < sp.declStart {
			stack = stack[:len(stack)-1]
		}
		var parent *frame
		if len(stack) > 0 {
			parent = &stack[len(stack)-1]
		}

		qualified := sp.name
		container := ""
		if parent != nil {
			qualified = parent.qualified + sp.sep + sp.name
			container = parent.container
			if parent.span.kind != spanFunction {
				container = parent.span.name
			}
		}

		if sp.emit {
			kind := SymbolKindFunction
			switch {
			case sp.kind == spanModule:
				kind = SymbolKindModule
			case parent != nil && parent.span.kind == spanTypeContainer:
				kind = SymbolKindMethod
			}
			start := src.Line(sp.declStart)
			end := start
			sym := &Symbol{
				ID:             GenerateID(src.File.Path, start, qualified),
				Name:           qualified,
				ResolutionName: sp.name,
				Kind:           kind,
				FilePath:       src.File.Path,
				StartLine:      start,
				Container:      container,
				Params:         sp.params,
				HasBody:        sp.hasBody,
				Language:       src.File.Language,
			}
			if sp.hasBody {
				last := min(sp.close, len(src.Masked)-1)
				sym.BodyStart = sp.open
				sym.BodyEnd = min(sp.close+1, len(src.Masked))
				end = src.Line(max(last, sp.open))
			}
			sym.EndLine = max(end, start)
			symbols = append(symbols, sym)
		}

		if sp.hasBody {
			stack = append(stack, frame{span: sp, qualified: qualified, container: container})
		}
	}
	return symbols
}
