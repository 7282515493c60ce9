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

// Family C declaration patterns, matched against masked text.
var (
	curlyFunctionPattern = regexp.MustCompile(`(?m)(?:^|[^.\w$])((?:export\s+(?:default\s+)?)?(?:declare\s+)?` +
		`(?:async\s+)?function\b\s*\*?\s*([A-Za-z_$][\w$]*))`)

	curlyBindingPattern = regexp.MustCompile(`(?m)(?:^|[;{}(,])[ \t]*((?:export\s+)?(?:const|let|var)\s+` +
		`([A-Za-z_$][\w$]*)\s*(?::[^=;]+)?=\s*(?:async\s+)?)`)

	curlyClassPattern = regexp.MustCompile(`(?m)(?:^|[^.\w$])((?:export\s+(?:default\s+)?)?(?:declare\s+)?` +
		`(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*))`)

	curlyNamespacePattern = regexp.MustCompile(`(?m)(?:^|[;{}])[ \t]*((?:export\s+)?(?:declare\s+)?` +
		`(?:namespace|module)\s+([A-Za-z_$][\w$.]*))\s*\{`)

	curlyMethodPattern = regexp.MustCompile(`(?m)(?:^|[{;}])[ \t]*((?:(?:public|private|protected|static|async|` +
		`readonly|override|abstract|get|set|declare)\s+)*\*?[ \t]*(#?[A-Za-z_$][\w$]*))\s*\??\s*(?:<[^>(]*>)?\s*\(`)

	curlyFieldPattern = regexp.MustCompile(`(?m)(?:^|[{;}])[ \t]*((?:(?:public|private|protected|static|readonly|` +
		`override)\s+)*(#?[A-Za-z_$][\w$]*))\s*(?::[^=;]+)?=\s*(?:async\s+)?`)

	curlyImportPattern = regexp.MustCompile(`(?m)(?:^|[;}])[ \t]*import\s+(?:type\s+)?(?:[^;'"()]*?\s*from\s*)?(['"])`)

	curlyExportFromPattern = regexp.MustCompile(`(?m)(?:^|[;}])[ \t]*export\s+(?:type\s+)?(?:\*|\{[^}]*\})` +
		`(?:\s+as\s+[\w$]+)?\s*from\s*(['"])`)

	curlyRequirePattern = regexp.MustCompile(`(?:^|[^.\w$])(?:require|import)\s*\(\s*(['"])`)
)

// curlyMethodKeywords cannot be method names even though they are followed
// by "(" at class-body depth.
var curlyMethodKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"with": true, "return": true, "function": true, "new": true, "super": true,
	"typeof": true, "await": true, "yield": true, "do": true, "else": true,
}

// curlyScanner is the family C scanner, shared by JavaScript and TypeScript.
type curlyScanner struct{}

func (curlyScanner) Family() Family { return FamilyC }

// Symbols finds function declarations, arrow or function expressions bound
// to const/let/var, class methods, class-field arrows and namespaces.
//
// Description:
//
//	Classes are type containers and are not emitted themselves. Only
//	declarations with a body are emitted, so overload signatures do not
//	make a name ambiguous. Expression-bodied arrows count as bodies.
func (curlyScanner) Symbols(src *Source) ([]*Symbol, []Warning) {
	masked := src.Masked
	depth := braceDepth(masked)
	var spans []declSpan
	var warnings []Warning
	addWarn := func(off int, format string, args ...any) {
		warnings = append(warnings, src.warn(src.Line(off), format, args...))
	}

	var classes []declSpan
	for _, loc := range curlyClassPattern.FindAllSubmatchIndex(masked, -1) {
		name := string(masked[loc[4]:loc[5]])
		open := findBlockOpen(masked, loc[1])
		if open < 0 {
			continue
		}
		close, ok := matchClose(masked, open)
		if !ok {
			addWarn(open, "unbalanced braces in class %s", name)
		}
		classes = append(classes, declSpan{name: name, kind: spanTypeContainer, declStart: loc[2],
			open: open, close: close, hasBody: true, sep: "."})
	}
	spans = append(spans, classes...)

	for _, loc := range curlyNamespacePattern.FindAllSubmatchIndex(masked, -1) {
		name := string(masked[loc[4]:loc[5]])
		open := loc[1] - 1
		close, ok := matchClose(masked, open)
		if !ok {
			addWarn(open, "unbalanced braces in namespace %s", name)
		}
		spans = append(spans, declSpan{name: name, kind: spanModule, declStart: loc[2],
			open: open, close: close, hasBody: true, emit: true, sep: "."})
	}

	for _, loc := range curlyFunctionPattern.FindAllSubmatchIndex(masked, -1) {
		if _, prev := precedingToken(masked, loc[2]); prev != 0 && strings.IndexByte("=(,:?", prev) >= 0 {
			continue
		}
		name := string(masked[loc[4]:loc[5]])
		sp, ok := curlySignature(src, name, loc[5], addWarn)
		if !ok {
			continue
		}
		sp.declStart = loc[2]
		spans = append(spans, sp)
	}

	for _, loc := range curlyBindingPattern.FindAllSubmatchIndex(masked, -1) {
		name := string(masked[loc[4]:loc[5]])
		sp, ok := curlyFunctionValue(src, name, loc[1], addWarn)
		if !ok {
			continue
		}
		sp.declStart = loc[2]
		spans = append(spans, sp)
	}

	for _, loc := range curlyMethodPattern.FindAllSubmatchIndex(masked, -1) {
		name := string(masked[loc[4]:loc[5]])
		if curlyMethodKeywords[name] || !atClassBodyDepth(classes, depth, loc[2]) {
			continue
		}
		sp, ok := curlySignature(src, name, loc[5], addWarn)
		if !ok {
			continue
		}
		sp.declStart = loc[2]
		spans = append(spans, sp)
	}

	for _, loc := range curlyFieldPattern.FindAllSubmatchIndex(masked, -1) {
		name := string(masked[loc[4]:loc[5]])
		if !atClassBodyDepth(classes, depth, loc[2]) {
			continue
		}
		sp, ok := curlyFunctionValue(src, name, loc[1], addWarn)
		if !ok {
			continue
		}
		sp.declStart = loc[2]
		spans = append(spans, sp)
	}

	return assemble(src, dedupSpans(spans)), warnings
}

// atClassBodyDepth reports whether off sits directly inside a class body.
func atClassBodyDepth(classes []declSpan, depth []int32, off int) bool {
	var inner *declSpan
	for i := range classes {
		c := &classes[i]
		if off > c.open && off < c.close && (inner == nil || c.open > inner.open) {
			inner = c
		}
	}
	return inner != nil && depth[off] == depth[inner.open]+1
}

// dedupSpans drops a span declared at the same offset as an earlier one.
func dedupSpans(spans []declSpan) []declSpan {
	seen := make(map[int]bool, len(spans))
	out := spans[:0]
	for _, sp := range spans {
		if sp.kind == spanFunction && seen[sp.declStart] {
			continue
		}
		if sp.kind == spanFunction {
			seen[sp.declStart] = true
		}
		out = append(out, sp)
	}
	return out
}

// curlySignature parses "<generics>(params): Ret { body }" after a name.
func curlySignature(src *Source, name string, nameEnd int, warn func(int, string, ...any)) (declSpan, bool) {
	masked := src.Masked
	sp := declSpan{name: name, kind: spanFunction, sep: ".", emit: true}
	i := skipSpace(masked, nameEnd)
	if i < len(masked) && masked[i] == '?' {
		i = skipSpace(masked, i+1)
	}
	if i < len(masked) && masked[i] == '<' {
		i = skipSpace(masked, skipAngles(masked, i))
	}
	if i >= len(masked) || masked[i] != '(' {
		return sp, false
	}
	pclose, ok := matchClose(masked, i)
	if !ok {
		warn(i, "unbalanced parentheses in %s signature", name)
		return sp, false
	}
	sp.params = parseParams(FamilyC, string(masked[i+1:pclose]), false)
	open, ok := blockAfterSignature(masked, pclose+1)
	if !ok {
		return sp, false
	}
	close, balanced := matchClose(masked, open)
	if !balanced {
		warn(open, "unbalanced braces in %s body", name)
	}
	sp.open, sp.close, sp.hasBody = open, close, true
	return sp, true
}

// blockAfterSignature finds the body brace after a parameter list,
// skipping an optional return type annotation.
func blockAfterSignature(masked []byte, from int) (int, bool) {
	i := skipSpace(masked, from)
	if i >= len(masked) {
		return 0, false
	}
	switch masked[i] {
	case '{':
		return i, true
	case ':':
	default:
		return 0, false
	}
	first := findBlockOpen(masked, i+1)
	if first < 0 {
		return 0, false
	}
	if between := masked[i+1 : first]; bytes.Contains(between, []byte("=>")) {
		return first, true
	}
	close, ok := matchClose(masked, first)
	if !ok {
		return first, true
	}
	if next := skipSpace(masked, close+1); next < len(masked) && masked[next] == '{' {
		return next, true
	}
	return first, true
}

// curlyFunctionValue parses the right-hand side of a binding when it is a
// function expression or an arrow function.
func curlyFunctionValue(src *Source, name string, at int, warn func(int, string, ...any)) (declSpan, bool) {
	masked := src.Masked
	sp := declSpan{name: name, kind: spanFunction, sep: ".", emit: true}
	i := skipSpace(masked, at)
	if i >= len(masked) {
		return sp, false
	}
	if bytes.HasPrefix(masked[i:], []byte("function")) {
		j := skipSpace(masked, i+len("function"))
		if j < len(masked) && masked[j] == '*' {
			j = skipSpace(masked, j+1)
		}
		for j < len(masked) && isIdentByte(masked[j]) {
			j++
		}
		return curlySignature(src, name, j, warn)
	}

	var arrow int
	switch {
	case masked[i] == '(' || masked[i] == '<':
		j := i
		if masked[j] == '<' {
			j = skipSpace(masked, skipAngles(masked, j))
		}
		if j >= len(masked) || masked[j] != '(' {
			return sp, false
		}
		pclose, ok := matchClose(masked, j)
		if !ok {
			return sp, false
		}
		arrow = findArrow(masked, pclose+1)
		if arrow < 0 {
			return sp, false
		}
		sp.params = parseParams(FamilyC, string(masked[j+1:pclose]), false)
	case isIdentByte(masked[i]):
		j := i
		for j < len(masked) && isIdentByte(masked[j]) {
			j++
		}
		k := skipSpace(masked, j)
		if !bytes.HasPrefix(masked[k:], []byte("=>")) {
			return sp, false
		}
		arrow = k
		sp.params = []string{string(masked[i:j])}
	default:
		return sp, false
	}

	b := skipSpace(masked, arrow+2)
	if b >= len(masked) {
		return sp, false
	}
	if masked[b] == '{' {
		close, ok := matchClose(masked, b)
		if !ok {
			warn(b, "unbalanced braces in %s body", name)
		}
		sp.open, sp.close, sp.hasBody = b, close, true
		return sp, true
	}
	sp.open, sp.close, sp.hasBody = b, expressionEnd(masked, b), true
	return sp, true
}

// findArrow returns the offset of "=>" after a parameter list, allowing a
// return type annotation in between, or -1.
func findArrow(masked []byte, from int) int {
	i := skipSpace(masked, from)
	if bytes.HasPrefix(masked[i:], []byte("=>")) {
		return i
	}
	if i >= len(masked) || masked[i] != ':' {
		return -1
	}
	depth := 0
	for j := i + 1; j+1 < len(masked); j++ {
		switch masked[j] {
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}':
			depth--
		case '>':
			if masked[j-1] != '=' {
				depth--
			}
		case ';':
			return -1
		}
		if depth <= 0 && masked[j] == '=' && masked[j+1] == '>' {
			return j
		}
	}
	return -1
}

// expressionEnd returns the offset of the last byte of an expression body.
func expressionEnd(masked []byte, from int) int {
	depth := 0
	last := from
	for i := from; i < len(masked); i++ {
		c := masked[i]
		switch c {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth < 0 {
				return last
			}
		case ';', ',':
			if depth == 0 {
				return last
			}
		case '\n':
			if depth == 0 && !continuesExpression(masked, i) {
				return last
			}
		}
		if !isSpaceByte(c) {
			last = i
		}
	}
	return last
}

// continuesExpression reports whether the line after a newline continues
// the current expression (leading operator or member access).
func continuesExpression(masked []byte, nl int) bool {
	j := skipSpace(masked, nl+1)
	if j >= len(masked) {
		return false
	}
	return strings.IndexByte(".?:+-*/&|", masked[j]) >= 0
}

// Imports returns import statements, re-exports, require() calls and
// dynamic import() calls. The specifier is taken from the raw text.
func (curlyScanner) Imports(src *Source) []Import {
	masked := src.Masked
	type located struct {
		off int
		raw string
	}
	var found []located
	seen := map[int]bool{}
	collect := func(re *regexp.Regexp) {
		for _, loc := range re.FindAllSubmatchIndex(masked, -1) {
			q := loc[2]
			if seen[q] {
				continue
			}
			end := bytes.IndexByte(masked[q+1:], masked[q])
			if end < 0 {
				continue
			}
			seen[q] = true
			found = append(found, located{q, string(src.File.Content[q+1 : q+1+end])})
		}
	}
	collect(curlyImportPattern)
	collect(curlyExportFromPattern)
	collect(curlyRequirePattern)
	sortLocated(found, func(i int) int { return found[i].off })

	imports := make([]Import, 0, len(found))
	for _, f := range found {
		imports = append(imports, Import{Raw: f.raw, Kind: ImportKindImport, Line: src.Line(f.off)})
	}
	return imports
}
