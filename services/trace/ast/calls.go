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
	"regexp"
	"strings"
)

// callPattern matches an identifier or qualified path followed by an
// optional macro bang or turbofish and an opening parenthesis.
var callPattern = regexp.MustCompile(
	`[A-Za-z_$][\w$]*(?:\s*(?:\?\.|\.|::)\s*[A-Za-z_$][\w$]*)*\s*(!)?\s*(?:::\s*<[^()]*>\s*)?\(`)

var segmentSep = regexp.MustCompile(`\s*(?:\?\.|\.|::)\s*`)

// nonCallWords are keywords that may be followed by "(" without being calls.
var nonCallWords = map[string]bool{
	"if": true, "elif": true, "else": true, "while": true, "for": true, "switch": true,
	"catch": true, "return": true, "match": true, "fn": true, "def": true,
	"function": true, "class": true, "with": true, "assert": true, "not": true,
	"and": true, "or": true, "in": true, "is": true, "lambda": true, "yield": true,
	"await": true, "typeof": true, "void": true, "delete": true, "throw": true,
	"raise": true, "except": true, "do": true, "try": true, "as": true,
	"from": true, "import": true, "async": true, "unsafe": true, "where": true,
	"impl": true, "let": true, "const": true, "var": true, "mut": true, "ref": true,
	"move": true, "pub": true, "use": true, "mod": true, "struct": true,
	"enum": true, "trait": true, "type": true, "loop": true, "of": true,
	"instanceof": true, "new": true, "del": true, "global": true,
	"nonlocal": true, "case": true, "extends": true, "dyn": true,
}

// definitionWords precede a declared name rather than a call.
var definitionWords = map[string]bool{
	"fn": true, "def": true, "function": true, "class": true,
}

// Calls extracts the call sites inside a symbol's body in offset order.
//
// Description:
//
//	The body's masked text is matched against the call pattern. Macro
//	invocations ("name!(") and declaration headers ("fn name(") are skipped.
//	Calls whose receiver is an arbitrary expression ("a().b(", "x[0].b(")
//	get the qualifier "?". Lines that belong to the nested symbols are
//	skipped so each call is attributed to its innermost function.
//
// Inputs:
//
//	src - The prepared source of the symbol's file.
//	sym - The callable symbol. Bodiless symbols yield no calls.
//	nested - Symbols declared inside sym's body.
//
// Outputs:
//
//	[]CallSite - The call sites, at most one per callee occurrence.
func Calls(src *Source, sym *Symbol, nested []*Symbol) []CallSite {
	if !sym.HasBody || sym.BodyEnd <= sym.BodyStart || sym.BodyEnd > len(src.Masked) {
		return nil
	}
	body := src.Masked[sym.BodyStart:sym.BodyEnd]
	var calls []CallSite
	for _, loc := range callPattern.FindAllSubmatchIndex(body, -1) {
		if loc[2] >= 0 {
			continue
		}
		start := loc[0]
		off := sym.BodyStart + start
		line := src.Line(off)
		if insideNested(line, nested) {
			continue
		}

		rawEnd := loc[1] - 1
		raw := string(body[start:rawEnd])
		if i := strings.Index(raw, "::<"); i >= 0 {
			raw = raw[:i]
		}
		raw = strings.TrimRight(raw, " \t\r\n:")
		raw = collapseSpace(raw)
		segs := segmentSep.Split(raw, -1)
		name := segs[len(segs)-1]
		qualifier := ""
		if len(segs) > 1 {
			qualifier = strings.TrimRight(raw[:len(raw)-len(name)], ".?:")
		}

		prevWord, prevByte := precedingToken(body, start)
		if definitionWords[prevWord] {
			continue
		}
		if prevByte == '.' || (prevByte == ':' && start >= 2 && body[start-2] == ':') {
			qualifier = "?"
			raw = "?." + raw
			segs = append([]string{"?"}, segs...)
		}
		if len(segs) == 1 && nonCallWords[name] {
			continue
		}
		if idx := strings.LastIndex(string(body[start:rawEnd]), name); idx > 0 {
			line = src.Line(off + idx)
		}
		calls = append(calls, CallSite{Raw: raw, Name: name, Qualifier: qualifier, Line: line})
	}
	return calls
}

func insideNested(line int, nested []*Symbol) bool {
	for _, n := range nested {
		if line >= n.StartLine && line <= n.EndLine {
			return true
		}
	}
	return false
}

// precedingToken returns the identifier and the last non-space byte before
// offset i.
func precedingToken(b []byte, i int) (string, byte) {
	j := i - 1
	for j >= 0 && isSpaceByte(b[j]) {
		j--
	}
	if j < 0 {
		return "", 0
	}
	last := b[j]
	end := j + 1
	for j >= 0 && isIdentByte(b[j]) {
		j--
	}
	return string(b[j+1 : end]), last
}

func collapseSpace(s string) string {
	if !strings.ContainsAny(s, " \t\r\n") {
		return s
	}
	return strings.Join(strings.Fields(s), "")
}

// Args returns the top-level argument texts of the first call in expr, or
// nil and false when expr does not start with a call.
func Args(expr string) (callee string, args []string, ok bool) {
	loc := callPattern.FindStringSubmatchIndex(expr)
	if loc == nil || loc[0] != 0 || loc[2] >= 0 {
		return "", nil, false
	}
	open := loc[1] - 1
	closeAt, balanced := matchClose([]byte(expr), open)
	if !balanced {
		return "", nil, false
	}
	callee = collapseSpace(strings.TrimRight(expr[:open], " \t\r\n"))
	if i := strings.Index(callee, "::<"); i >= 0 {
		callee = callee[:i]
	}
	if rest := strings.TrimSpace(expr[closeAt+1:]); rest != "" && rest != ";" {
		return "", nil, false
	}
	return callee, SplitTopLevel(expr[open+1:closeAt], ','), true
}
