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

// Rust declaration patterns, matched against masked text. Each starts at a
// line start or right after a block/statement delimiter.
var (
	rustVis = `(?:pub(?:\s*\([^)]*\))?\s+)?`

	rustFnPattern = regexp.MustCompile(`(?m)(?:^|[{};])[ \t]*` + rustVis +
		`(?:(?:default|const|async|unsafe)\s+)*(?:extern\s+(?:"[^"]*"\s*)?)?fn\s+([A-Za-z_]\w*)`)

	rustImplPattern = regexp.MustCompile(`(?m)(?:^|[{};])[ \t]*(?:unsafe\s+)?impl\b`)

	rustTraitPattern = regexp.MustCompile(`(?m)(?:^|[{};])[ \t]*` + rustVis +
		`(?:unsafe\s+)?(?:auto\s+)?trait\s+([A-Za-z_]\w*)`)

	rustModPattern = regexp.MustCompile(`(?m)(?:^|[{};])[ \t]*` + rustVis +
		`mod\s+([A-Za-z_]\w*)\s*([;{])`)

	rustUsePattern = regexp.MustCompile(`(?m)(?:^|[{};])[ \t]*` + rustVis +
		`use\s+([^;]+);`)

	rustExternCratePattern = regexp.MustCompile(`(?m)(?:^|[{};])[ \t]*` + rustVis +
		`extern\s+crate\s+([A-Za-z_]\w*)`)
)

// rustScanner is the family S scanner.
type rustScanner struct{}

func (rustScanner) Family() Family { return FamilyS }

// Symbols finds fn, impl, trait and inline mod declarations.
//
// Description:
//
//	impl and trait blocks become type containers; a fn directly inside one
//	is a method named "Type::method". Inline modules are module symbols and
//	qualify what they contain. A fn whose signature ends in ";" has no body.
func (rustScanner) Symbols(src *Source) ([]*Symbol, []Warning) {
	masked := src.Masked
	var spans []declSpan
	var warnings []Warning

	for _, loc := range rustImplPattern.FindAllIndex(masked, -1) {
		open := findBlockOpen(masked, loc[1])
		if open < 0 {
			continue
		}
		name := rustImplType(string(masked[loc[1]:open]))
		if name == "" {
			warnings = append(warnings, src.warn(src.Line(loc[1]), "could not determine impl target"))
			continue
		}
		close, ok := matchClose(masked, open)
		if !ok {
			warnings = append(warnings, src.warn(src.Line(open), "unbalanced braces in impl %s", name))
		}
		spans = append(spans, declSpan{name: name, kind: spanTypeContainer, declStart: declOffset(masked, loc[0]),
			open: open, close: close, hasBody: true, sep: "::"})
	}

	for _, loc := range rustTraitPattern.FindAllSubmatchIndex(masked, -1) {
		name := string(masked[loc[2]:loc[3]])
		open := findBlockOpen(masked, loc[1])
		if open < 0 {
			continue
		}
		close, ok := matchClose(masked, open)
		if !ok {
			warnings = append(warnings, src.warn(src.Line(open), "unbalanced braces in trait %s", name))
		}
		spans = append(spans, declSpan{name: name, kind: spanTypeContainer, declStart: declOffset(masked, loc[0]),
			open: open, close: close, hasBody: true, sep: "::"})
	}

	for _, loc := range rustModPattern.FindAllSubmatchIndex(masked, -1) {
		if masked[loc[4]] != '{' {
			continue
		}
		name := string(masked[loc[2]:loc[3]])
		open := loc[4]
		close, ok := matchClose(masked, open)
		if !ok {
			warnings = append(warnings, src.warn(src.Line(open), "unbalanced braces in mod %s", name))
		}
		spans = append(spans, declSpan{name: name, kind: spanModule, declStart: declOffset(masked, loc[0]),
			open: open, close: close, hasBody: true, emit: true, sep: "::"})
	}

	for _, loc := range rustFnPattern.FindAllSubmatchIndex(masked, -1) {
		name := string(masked[loc[2]:loc[3]])
		sp, w := rustFnSpan(src, name, loc[3])
		sp.declStart = declOffset(masked, loc[0])
		if w != nil {
			warnings = append(warnings, *w)
		}
		if sp.open < 0 && !sp.emit {
			continue
		}
		spans = append(spans, sp)
	}

	return assemble(src, spans), warnings
}

// rustFnSpan parses the signature after a fn name ending at nameEnd.
func rustFnSpan(src *Source, name string, nameEnd int) (declSpan, *Warning) {
	masked := src.Masked
	sp := declSpan{name: name, kind: spanFunction, open: -1, sep: "::"}
	i := skipSpace(masked, nameEnd)
	if i < len(masked) && masked[i] == '<' {
		i = skipAngles(masked, i)
		i = skipSpace(masked, i)
	}
	if i >= len(masked) || masked[i] != '(' {
		return sp, nil
	}
	pclose, ok := matchClose(masked, i)
	if !ok {
		w := src.warn(src.Line(i), "unbalanced parentheses in fn %s signature", name)
		return sp, &w
	}
	sp.params = parseParams(FamilyS, string(masked[i+1:pclose]), false)
	sp.emit = true
	for j := pclose + 1; j < len(masked); j++ {
		switch masked[j] {
		case ';':
			return sp, nil
		case '{':
			close, ok := matchClose(masked, j)
			sp.open, sp.close, sp.hasBody = j, close, true
			if !ok {
				w := src.warn(src.Line(j), "unbalanced braces in fn %s body", name)
				return sp, &w
			}
			return sp, nil
		}
	}
	return sp, nil
}

// Imports returns mod declarations, use paths and extern crates.
func (rustScanner) Imports(src *Source) []Import {
	masked := src.Masked
	type located struct {
		off int
		imp Import
	}
	var found []located
	for _, loc := range rustModPattern.FindAllSubmatchIndex(masked, -1) {
		if masked[loc[4]] != ';' {
			continue
		}
		found = append(found, located{loc[2], Import{Raw: string(masked[loc[2]:loc[3]]), Kind: ImportKindModuleDecl}})
	}
	for _, loc := range rustUsePattern.FindAllSubmatchIndex(masked, -1) {
		raw := collapseSpace(string(src.File.Content[loc[2]:loc[3]]))
		found = append(found, located{loc[2], Import{Raw: raw, Kind: ImportKindUse}})
	}
	for _, loc := range rustExternCratePattern.FindAllSubmatchIndex(masked, -1) {
		found = append(found, located{loc[2], Import{Raw: string(masked[loc[2]:loc[3]]), Kind: ImportKindUse}})
	}
	imports := make([]Import, 0, len(found))
	sortLocated(found, func(i int) int { return found[i].off })
	for _, f := range found {
		f.imp.Line = src.Line(f.off)
		imports = append(imports, f.imp)
	}
	return imports
}

// rustImplType extracts the implementing type from an impl header:
// "<T> Display for Wrapper<T> where T: X" yields "Wrapper".
func rustImplType(header string) string {
	h := strings.TrimSpace(header)
	if strings.HasPrefix(h, "<") {
		end := skipAngles([]byte(h), 0)
		h = strings.TrimSpace(h[end:])
	}
	if i := topLevelWord(h, "where"); i >= 0 {
		h = h[:i]
	}
	if i := topLevelWord(h, "for"); i >= 0 {
		h = h[i+len("for"):]
	}
	h = strings.TrimSpace(h)
	h = strings.TrimLeft(h, "&!")
	if strings.HasPrefix(h, "'") {
		if i := strings.IndexAny(h, " \t"); i >= 0 {
			h = strings.TrimSpace(h[i:])
		}
	}
	h = strings.TrimPrefix(h, "mut ")
	h = strings.TrimPrefix(h, "dyn ")
	if i := strings.IndexAny(h, "<( \t\n"); i >= 0 {
		h = h[:i]
	}
	if i := strings.LastIndex(h, "::"); i >= 0 {
		h = h[i+2:]
	}
	if !plainIdent.MatchString(h) {
		return ""
	}
	return h
}

// topLevelWord finds a whole word outside angle brackets.
func topLevelWord(s, word string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if i > 0 && s[i-1] == '-' {
				continue
			}
			depth--
		}
		if depth != 0 || !strings.HasPrefix(s[i:], word) {
			continue
		}
		before := i == 0 || !isIdentByte(s[i-1])
		after := i+len(word) >= len(s) || !isIdentByte(s[i+len(word)])
		if before && after {
			return i
		}
	}
	return -1
}

// skipAngles returns the offset after the ">" matching the "<" at i.
func skipAngles(b []byte, i int) int {
	depth := 0
	for ; i < len(b); i++ {
		switch b[i] {
		case '<':
			depth++
		case '>':
			if i > 0 && b[i-1] == '-' {
				continue
			}
			depth--
			if depth == 0 {
				return i + 1
			}
		case '{', ';':
			return i
		}
	}
	return i
}

// findBlockOpen returns the first "{" after from that is not inside
// parentheses, or -1 when a ";" ends the declaration first.
func findBlockOpen(masked []byte, from int) int {
	depth := 0
	for i := from; i < len(masked); i++ {
		switch masked[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ';':
			if depth <= 0 {
				return -1
			}
		case '{':
			if depth <= 0 {
				return i
			}
		}
	}
	return -1
}

// declOffset moves a match start past a leading delimiter and indentation.
func declOffset(masked []byte, start int) int {
	if start < len(masked) && strings.IndexByte("{};", masked[start]) >= 0 {
		start++
	}
	for start < len(masked) && isSpaceByte(masked[start]) {
		start++
	}
	return start
}
