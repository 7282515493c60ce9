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
	"regexp"
	"strings"
)

var (
	pyDefPattern        = regexp.MustCompile(`^[ \t]*(?:async\s+)?def\s+([A-Za-z_]\w*)\s*(?:\[[^\]]*\])?\s*\(`)
	pyClassPattern      = regexp.MustCompile(`^[ \t]*class\s+([A-Za-z_]\w*)`)
	pyImportPattern     = regexp.MustCompile(`(?s)^[ \t]*import\s+(.+)$`)
	pyFromImportPattern = regexp.MustCompile(`(?s)^[ \t]*from\s+(\.*[\w.]*)\s+import\s+(.+)$`)
)

// pythonScanner is the family D scanner.
type pythonScanner struct{}

func (pythonScanner) Family() Family { return FamilyD }

// LineJoiner decides where family D logical lines end. It tracks bracket
// depth and an open triple-quoted string across the masked physical lines
// it is fed. Masked text keeps quote delimiters and blanks everything
// between them, so quotes are the only string state needed.
type LineJoiner struct {
	depth  int
	triple byte
}

// Continues consumes one masked physical line, without its newline, and
// reports whether the logical line carries on into the next physical line:
// inside brackets, inside a triple-quoted string, or after a trailing
// backslash.
func (j *LineJoiner) Continues(seg []byte) bool {
	for k := 0; k < len(seg); k++ {
		c := seg[k]
		if j.triple != 0 {
			if c == j.triple && k+2 < len(seg) && seg[k+1] == c && seg[k+2] == c {
				j.triple = 0
				k += 2
			}
			continue
		}
		switch c {
		case '"', '\'':
			if k+2 < len(seg) && seg[k+1] == c && seg[k+2] == c {
				j.triple = c
				k += 2
				continue
			}
			if end := bytes.IndexByte(seg[k+1:], c); end >= 0 {
				k += end + 1
			} else {
				k = len(seg)
			}
		case '(', '[', '{':
			j.depth++
		case ')', ']', '}':
			if j.depth > 0 {
				j.depth--
			}
		}
	}
	if j.triple != 0 || j.depth > 0 {
		return true
	}
	return bytes.HasSuffix(bytes.TrimRight(seg, " \t\r"), []byte{'\\'})
}

// Open reports whether a bracket or triple-quoted string is still open.
func (j *LineJoiner) Open() bool {
	return j.depth > 0 || j.triple != 0
}

// logicalLine is one statement line: physical lines joined by open brackets,
// open triple-quoted strings or trailing backslashes. start and end are
// offsets into the masked text.
type logicalLine struct {
	start     int
	end       int
	firstLine int
	lastLine  int
	indent    int
}

func (l logicalLine) text(masked []byte) string {
	return string(masked[l.start:l.end])
}

// logicalLines splits masked text into non-blank logical lines.
func logicalLines(src *Source) ([]logicalLine, []Warning) {
	masked := src.Masked
	var out []logicalLine
	var warnings []Warning
	var cur *logicalLine
	var joiner LineJoiner
	lineNo := 0
	for s := 0; s < len(masked); {
		lineNo++
		e := s
		for e < len(masked) && masked[e] != '\n' {
			e++
		}
		seg := masked[s:e]
		if cur == nil {
			if strings.TrimSpace(string(seg)) == "" {
				s = e + 1
				continue
			}
			cur = &logicalLine{start: s, firstLine: lineNo, indent: indentWidth(seg)}
		}
		cur.end = e
		cur.lastLine = lineNo
		if !joiner.Continues(seg) {
			out = append(out, *cur)
			cur = nil
		}
		s = e + 1
	}
	if cur != nil {
		if joiner.Open() {
			warnings = append(warnings, src.warn(cur.firstLine, "unclosed bracket or string at end of file"))
		}
		out = append(out, *cur)
	}
	return out, warnings
}

// indentWidth measures leading whitespace; tabs advance to the next
// multiple of eight.
func indentWidth(line []byte) int {
	w := 0
	for _, c := range line {
		switch c {
		case ' ':
			w++
		case '\t':
			w += 8 - w%8
		case '\f':
		default:
			return w
		}
	}
	return w
}

type pyScope struct {
	isClass    bool
	indent     int
	bodyIndent int
	name       string
	qualified  string
	container  string
	sym        *Symbol
	lastLine   int
	lastEnd    int
}

// Symbols walks logical lines with an indentation scope stack.
//
// Description:
//
//	A def directly inside a class is a method named "Class.method"; a def
//	nested in another def is qualified by it. A scope ends at the first
//	logical line indented at or left of its header; its end line is the
//	last non-blank line it contains. A dedent that lands between two open
//	indentation levels is reported as a warning and treated as still inside
//	the innermost scope.
func (pythonScanner) Symbols(src *Source) ([]*Symbol, []Warning) {
	masked := src.Masked
	lines, warnings := logicalLines(src)
	var symbols []*Symbol
	var stack []*pyScope

	closeScope := func(sc *pyScope) {
		if sc.sym == nil {
			return
		}
		sc.sym.EndLine = max(sc.lastLine, sc.sym.StartLine)
		if sc.lastEnd > sc.sym.BodyStart {
			sc.sym.BodyEnd = sc.lastEnd
		} else {
			sc.sym.BodyEnd = sc.sym.BodyStart
		}
	}

	for _, ll := range lines {
		for len(stack) > 0 && ll.indent <= stack[len(stack)-1].indent {
			closeScope(stack[len(stack)-1])
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			top := stack[len(stack)-1]
			switch {
			case top.bodyIndent < 0:
				top.bodyIndent = ll.indent
			case ll.indent < top.bodyIndent:
				warnings = append(warnings, src.warn(ll.firstLine, "inconsistent dedent inside %s", top.qualified))
			}
		}
		for _, sc := range stack {
			sc.lastLine = ll.lastLine
			sc.lastEnd = ll.end
		}

		text := ll.text(masked)
		var parent *pyScope
		if len(stack) > 0 {
			parent = stack[len(stack)-1]
		}
		qualify := func(name string) (string, string) {
			if parent == nil {
				return name, ""
			}
			container := parent.container
			if parent.isClass {
				container = parent.name
			}
			return parent.qualified + "." + name, container
		}

		if m := pyClassPattern.FindStringSubmatch(text); m != nil {
			qualified, container := qualify(m[1])
			stack = append(stack, &pyScope{isClass: true, indent: ll.indent, bodyIndent: -1, name: m[1],
				qualified: qualified, container: container, lastLine: ll.lastLine, lastEnd: ll.end})
			continue
		}

		loc := pyDefPattern.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		name := text[loc[2]:loc[3]]
		qualified, container := qualify(name)
		open := loc[1] - 1
		pclose, ok := matchClose([]byte(text), open)
		if !ok {
			warnings = append(warnings, src.warn(ll.firstLine, "unbalanced parentheses in def %s", name))
			continue
		}
		kind := SymbolKindFunction
		if parent != nil && parent.isClass {
			kind = SymbolKindMethod
		}
		colon := headerColon(text, pclose+1)
		if colon < 0 {
			warnings = append(warnings, src.warn(ll.firstLine, "missing ':' after def %s", name))
			continue
		}

		bodyStart := min(ll.end+1, len(masked))
		if rest := strings.TrimSpace(text[colon+1:]); rest != "" {
			bodyStart = ll.start + colon + 1
			for bodyStart < ll.end && (masked[bodyStart] == ' ' || masked[bodyStart] == '\t') {
				bodyStart++
			}
		}
		defLine := src.Line(ll.start + loc[2])
		sym := &Symbol{
			ID:             GenerateID(src.File.Path, defLine, qualified),
			Name:           qualified,
			ResolutionName: name,
			Kind:           kind,
			FilePath:       src.File.Path,
			StartLine:      defLine,
			EndLine:        ll.lastLine,
			Container:      container,
			Params:         parseParams(FamilyD, text[open+1:pclose], kind == SymbolKindMethod),
			HasBody:        true,
			Language:       src.File.Language,
			BodyStart:      bodyStart,
			BodyEnd:        bodyStart,
		}
		symbols = append(symbols, sym)
		scope := &pyScope{indent: ll.indent, bodyIndent: -1, name: name, qualified: qualified,
			container: container, sym: sym, lastLine: ll.lastLine, lastEnd: ll.end}
		stack = append(stack, scope)
	}
	for i := len(stack) - 1; i >= 0; i-- {
		closeScope(stack[i])
	}
	return symbols, warnings
}

// headerColon returns the index of the ":" ending a def header, skipping
// a return annotation.
func headerColon(text string, from int) int {
	depth := 0
	for i := from; i < len(text); i++ {
		switch text[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ':':
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Imports returns import and from-import statements. A relative import
// naming only dots ("from . import a, b") yields one entry per name.
func (pythonScanner) Imports(src *Source) []Import {
	lines, _ := logicalLines(src)
	var imports []Import
	for _, ll := range lines {
		text := ll.text(src.Masked)
		if m := pyFromImportPattern.FindStringSubmatch(text); m != nil {
			module := m[1]
			if strings.Trim(module, ".") != "" {
				imports = append(imports, Import{Raw: module, Kind: ImportKindImport, Line: ll.firstLine})
				continue
			}
			for _, name := range importNames(m[2]) {
				raw := module
				if name != "*" {
					raw = module + name
				}
				imports = append(imports, Import{Raw: raw, Kind: ImportKindImport, Line: ll.firstLine})
			}
			continue
		}
		if m := pyImportPattern.FindStringSubmatch(text); m != nil {
			for _, name := range importNames(m[1]) {
				imports = append(imports, Import{Raw: name, Kind: ImportKindImport, Line: ll.firstLine})
			}
		}
	}
	return imports
}

// importNames splits "a.b as c, (d, e)" into ["a.b", "d", "e"].
func importNames(list string) []string {
	list = strings.NewReplacer("(", " ", ")", " ", "\\", " ", "\n", " ", "\r", " ").Replace(list)
	if i := strings.IndexByte(list, ';'); i >= 0 {
		list = list[:i]
	}
	var names []string
	for _, part := range strings.Split(list, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		names = append(names, fields[0])
	}
	return names
}
