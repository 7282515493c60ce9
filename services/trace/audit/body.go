// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package audit

import (
	"strings"

	"github.com/AleutianAI/tracemap/services/trace/ast"
)

// significant is the part of a body that does work: block braces removed,
// blank lines and bare string literals (docstrings, directives) dropped.
// masked and raw hold the same lines, trimmed, joined by newlines.
type significant struct {
	masked string
	raw    string
	lines  int
}

func significantText(b ast.Body) significant {
	masked, raw := b.Masked, b.Text
	start, end := 0, len(masked)
	for start < end && isSpace(masked[start]) {
		start++
	}
	for end > start && isSpace(masked[end-1]) {
		end--
	}
	if b.Family != ast.FamilyD && end-start >= 2 && masked[start] == '{' && masked[end-1] == '}' {
		start++
		end--
	}

	var ms, rs []string
	for start < end {
		nl := strings.IndexByte(masked[start:end], '\n')
		stop := end
		if nl >= 0 {
			stop = start + nl
		}
		m := strings.TrimSpace(masked[start:stop])
		if m != "" && !bareString(m) {
			ms = append(ms, m)
			rs = append(rs, strings.TrimSpace(raw[start:min(stop, len(raw))]))
		}
		start = stop + 1
	}
	return significant{
		masked: strings.Join(ms, "\n"),
		raw:    strings.Join(rs, "\n"),
		lines:  len(ms),
	}
}

// flat returns the masked text with all whitespace runs collapsed.
func (s significant) flat() string {
	return strings.Join(strings.Fields(s.masked), " ")
}

// bareString reports whether a masked line is only a string literal: quote
// delimiters around blanked contents, with an optional prefix and a
// trailing ';' or ','.
func bareString(line string) bool {
	line = strings.TrimRight(line, ";, \t")
	i := 0
	for i < len(line) && i < 2 && strings.IndexByte("rRbBuUfF", line[i]) >= 0 {
		i++
	}
	rest := line[i:]
	if rest == "" || strings.IndexByte("\"'`", rest[0]) < 0 {
		return false
	}
	for j := 0; j < len(rest); j++ {
		if !isSpace(rest[j]) && strings.IndexByte("\"'`", rest[j]) < 0 {
			return false
		}
	}
	return true
}

// callExpr is a statement of the form [keywords] callee(args).
type callExpr struct {
	keywords []string
	callee   string
	args     []string
	parens   bool
}

func (c callExpr) has(keyword string) bool {
	for _, k := range c.keywords {
		if k == keyword {
			return true
		}
	}
	return false
}

// leadingKeywords may precede the call of a single-call statement.
var leadingKeywords = []string{"return", "await", "throw", "raise", "new", "yield"}

// parseCall reads a statement consisting of exactly one call expression,
// optionally preceded by leading keywords and followed by "?", ".await" or
// ";". A callee without parentheses is accepted only after raise or throw.
func parseCall(stmt string) (callExpr, bool) {
	var c callExpr
	s := strings.TrimSpace(stmt)
	for {
		trimmed := false
		for _, kw := range leadingKeywords {
			if len(s) > len(kw) && strings.HasPrefix(s, kw) && isSpace(s[len(kw)]) {
				c.keywords = append(c.keywords, kw)
				s = strings.TrimSpace(s[len(kw):])
				trimmed = true
			}
		}
		if !trimmed {
			break
		}
	}
	for {
		before := s
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
		s = strings.TrimSpace(strings.TrimSuffix(s, "?"))
		s = strings.TrimSpace(strings.TrimSuffix(s, ".await"))
		if s == before {
			break
		}
	}
	if s == "" {
		return callExpr{}, false
	}

	open := strings.IndexByte(s, '(')
	if open < 0 {
		if (c.has("raise") || c.has("throw")) && isCallee(s) {
			c.callee = s
			return c, true
		}
		return callExpr{}, false
	}
	if open == 0 || matchParen(s, open) != len(s)-1 {
		return callExpr{}, false
	}
	c.callee = strings.Join(strings.Fields(s[:open]), "")
	if !isCallee(c.callee) {
		return callExpr{}, false
	}
	c.parens = true
	c.args = splitArgs(s[open+1 : len(s)-1])
	return c, true
}

func isCallee(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !isIdent(c) && c != '.' && c != ':' && c != '!' {
			return false
		}
	}
	return true
}

func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitArgs splits an argument list at top-level commas. A trailing comma
// does not produce an empty argument.
func splitArgs(text string) []string {
	var args []string
	depth, start := 0, 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(text[start:i]))
				start = i + 1
			}
		}
	}
	if last := strings.TrimSpace(text[start:]); last != "" {
		args = append(args, last)
	}
	return args
}

// forwards reports whether args pass params through unchanged and in
// order. Spread parameters must be spread again (*args, ...rest); keyword
// arguments naming themselves (x=x) count as forwarding.
func forwards(args, params []string) bool {
	if len(args) != len(params) {
		return false
	}
	for i, a := range args {
		if k, v, ok := strings.Cut(a, "="); ok && !strings.ContainsAny(v, "=<>!") {
			if strings.TrimSpace(k) != strings.TrimSpace(v) {
				return false
			}
			a = strings.TrimSpace(k)
		}
		if params[i] == "" || a != params[i] {
			return false
		}
	}
	return true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdent(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
