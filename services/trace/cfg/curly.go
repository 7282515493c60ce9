// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cfg

import (
	"sort"
	"strings"
)

// curlyParser reads the statement structure of a brace-delimited body.
//
// The parser works on the masked text, where comments and literal contents
// are blanked, and slices labels from the raw text at the same offsets.
// Rust bodies have unparenthesized conditions that end at the opening
// brace; JavaScript and TypeScript conditions are parenthesized and their
// branches may be single statements.
type curlyParser struct {
	text     string
	raw      string
	pos      int
	rust     bool
	newlines []int
	base     int
	warnings []lineWarning
}

func newCurlyParser(masked, raw string, startLine int, rust bool) *curlyParser {
	p := &curlyParser{text: masked, raw: raw, rust: rust, base: startLine}
	for i := 0; i < len(masked); i++ {
		if masked[i] == '\n' {
			p.newlines = append(p.newlines, i)
		}
	}
	return p
}

// parse returns the statements of the body. A body that does not start
// with a brace is an expression body and becomes a single statement.
func (p *curlyParser) parse() []*stmt {
	p.skipSpace()
	if p.pos >= len(p.text) {
		return nil
	}
	if p.text[p.pos] != '{' {
		start := p.pos
		return []*stmt{simpleStmt(p.label(start, len(p.text)), p.lineAt(start), p.lineAt(len(p.text)-1))}
	}
	return p.block()
}

func (p *curlyParser) lineAt(off int) int {
	if off < 0 {
		off = 0
	}
	return p.base + sort.SearchInts(p.newlines, off)
}

func (p *curlyParser) warn(off int, msg string) {
	p.warnings = append(p.warnings, lineWarning{line: p.lineAt(off), message: msg})
}

// label returns the first line of raw[start:end], whitespace collapsed.
func (p *curlyParser) label(start, end int) string {
	end = min(end, len(p.raw))
	if start >= end {
		return ""
	}
	text := p.raw[start:end]
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return shorten(strings.Join(strings.Fields(text), " "))
}

func (p *curlyParser) skipSpace() {
	for p.pos < len(p.text) && isSpace(p.text[p.pos]) {
		p.pos++
	}
}

func (p *curlyParser) skipSpaceAndSemis() {
	for p.pos < len(p.text) && (isSpace(p.text[p.pos]) || p.text[p.pos] == ';') {
		p.pos++
	}
}

// word returns the identifier starting at the cursor.
func (p *curlyParser) word() string {
	end := p.pos
	for end < len(p.text) && isIdent(p.text[end]) {
		end++
	}
	return p.text[p.pos:end]
}

func (p *curlyParser) at(c byte) bool {
	return p.pos < len(p.text) && p.text[p.pos] == c
}

// matchClose returns the offset of the bracket closing the one at open, or
// -1 when the text ends first.
func (p *curlyParser) matchClose(open int) int {
	depth := 0
	for i := open; i < len(p.text); i++ {
		switch p.text[i] {
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

// block parses "{ ... }" at the cursor and leaves the cursor past the
// closing brace.
func (p *curlyParser) block() []*stmt {
	open := p.pos
	p.pos++
	var stmts []*stmt
	for {
		p.skipSpaceAndSemis()
		if p.pos >= len(p.text) {
			p.warn(open, "unbalanced braces: block is never closed")
			return stmts
		}
		if p.text[p.pos] == '}' {
			p.pos++
			return stmts
		}
		stmts = append(stmts, p.statement()...)
	}
}

// branch parses the body of an if, else, loop or try clause: a block, or a
// single statement in JavaScript and TypeScript.
func (p *curlyParser) branch() []*stmt {
	p.skipSpace()
	if p.at('{') {
		return p.block()
	}
	if p.pos >= len(p.text) || p.at('}') {
		p.warn(p.pos, "missing branch body")
		return nil
	}
	if p.rust {
		p.warn(p.pos, "expected '{' after condition")
	}
	return p.statement()
}

func (p *curlyParser) statement() []*stmt {
	start := p.pos
	if p.rust && p.at('\'') {
		if p.skipLabel(start + 1) {
			return p.statement()
		}
	}
	w := p.word()
	if !p.rust && w != "" && w != "default" && w != "case" && p.skipLabel(start) {
		return p.statement()
	}

	switch {
	case w == "if":
		return []*stmt{p.ifStmt()}
	case w == "while":
		return []*stmt{p.whileStmt()}
	case w == "for":
		return []*stmt{p.forStmt()}
	case w == "loop" && p.rust && p.followedBy(len(w), '{'):
		p.pos += len(w)
		p.skipSpace()
		body := p.block()
		return []*stmt{{kind: stmtLoop, line: p.lineAt(start), endLine: p.lineAt(p.pos - 1),
			label: "loop", body: body, infinite: true}}
	case w == "do" && !p.rust:
		return []*stmt{p.doStmt()}
	case w == "switch" && !p.rust:
		return []*stmt{p.switchStmt()}
	case w == "match" && p.rust:
		return []*stmt{p.matchStmt()}
	case w == "try" && !p.rust && p.followedBy(len(w), '{'):
		return []*stmt{p.tryStmt()}
	case exitKeywords[w] && w != "raise":
		end := p.statementEnd()
		return []*stmt{exitStmt(w, p.label(start, end), p.lineAt(start), p.lineAt(end-1))}
	case (w == "unsafe" || w == "async") && p.followedBy(len(w), '{'):
		p.pos += len(w)
		p.skipSpace()
		return p.block()
	case w == "else":
		p.warn(start, "else without a matching if")
		p.pos += len(w)
		return p.branch()
	case w == "" && p.at('{'):
		return p.block()
	}

	end := p.statementEnd()
	if end <= start {
		// Stray closing bracket: consume it so the parser always advances.
		p.warn(start, "unbalanced closing bracket")
		p.pos = start + 1
		return nil
	}
	return []*stmt{simpleStmt(p.label(start, end), p.lineAt(start), p.lineAt(end-1))}
}

// skipLabel consumes "name:" (or "'name:" in Rust) when the identifier at
// from is followed by a single colon.
func (p *curlyParser) skipLabel(from int) bool {
	i := from
	for i < len(p.text) && isIdent(p.text[i]) {
		i++
	}
	if i == from {
		return false
	}
	j := i
	for j < len(p.text) && (p.text[j] == ' ' || p.text[j] == '\t') {
		j++
	}
	if j < len(p.text) && p.text[j] == ':' && (j+1 >= len(p.text) || p.text[j+1] != ':') {
		p.pos = j + 1
		p.skipSpace()
		return true
	}
	return false
}

// followedBy reports whether the first non-space byte after the cursor plus
// skip is c.
func (p *curlyParser) followedBy(skip int, c byte) bool {
	i := p.pos + skip
	for i < len(p.text) && isSpace(p.text[i]) {
		i++
	}
	return i < len(p.text) && p.text[i] == c
}

// condition reads a loop or branch condition. JavaScript conditions are
// parenthesized; Rust conditions run to the opening brace.
func (p *curlyParser) condition() string {
	p.skipSpace()
	start := p.pos
	if !p.rust {
		if !p.at('(') {
			p.warn(start, "expected '(' before condition")
			return ""
		}
		end := p.matchClose(start)
		if end < 0 {
			p.warn(start, "unbalanced parentheses in condition")
			p.pos = len(p.text)
			return p.label(start+1, len(p.text))
		}
		p.pos = end + 1
		return p.label(start+1, end)
	}
	depth := 0
	for p.pos < len(p.text) {
		switch p.text[p.pos] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case '{':
			if depth <= 0 {
				return p.label(start, p.pos)
			}
			depth++
		case '}':
			depth--
		}
		p.pos++
	}
	p.warn(start, "condition is not followed by a block")
	return p.label(start, len(p.text))
}

func (p *curlyParser) ifStmt() *stmt {
	start := p.pos
	p.pos += len("if")
	cond := p.condition()
	s := &stmt{kind: stmtIf, line: p.lineAt(start), label: "if " + cond}
	s.clauses = append(s.clauses, clause{label: "if " + cond, line: p.lineAt(start), body: p.branch()})

	for {
		save := p.pos
		p.skipSpace()
		if p.word() != "else" {
			p.pos = save
			break
		}
		elseAt := p.pos
		p.pos += len("else")
		p.skipSpace()
		if p.word() == "if" {
			p.pos += len("if")
			c := p.condition()
			s.clauses = append(s.clauses, clause{label: "else if " + c, line: p.lineAt(elseAt), body: p.branch()})
			continue
		}
		s.hasElse = true
		s.elseBody = p.branch()
		break
	}
	s.endLine = p.lineAt(p.pos - 1)
	return s
}

func (p *curlyParser) whileStmt() *stmt {
	start := p.pos
	p.pos += len("while")
	cond := p.condition()
	body := p.branch()
	return &stmt{kind: stmtLoop, line: p.lineAt(start), endLine: p.lineAt(p.pos - 1),
		label: "while " + cond, body: body, infinite: cond == "true" || cond == "1"}
}

func (p *curlyParser) forStmt() *stmt {
	start := p.pos
	p.pos += len("for")
	p.skipSpace()
	if !p.rust && p.word() == "await" {
		p.pos += len("await")
	}
	cond := p.condition()
	body := p.branch()
	return &stmt{kind: stmtLoop, line: p.lineAt(start), endLine: p.lineAt(p.pos - 1),
		label: "for " + cond, body: body, infinite: strings.ReplaceAll(cond, " ", "") == ";;"}
}

func (p *curlyParser) doStmt() *stmt {
	start := p.pos
	p.pos += len("do")
	body := p.branch()
	p.skipSpace()
	cond := ""
	if p.word() == "while" {
		p.pos += len("while")
		cond = p.condition()
		p.skipSpace()
		if p.at(';') {
			p.pos++
		}
	} else {
		p.warn(start, "do block without while")
	}
	return &stmt{kind: stmtLoop, line: p.lineAt(start), endLine: p.lineAt(p.pos - 1),
		label: "do while " + cond, body: body, infinite: cond == "true" || cond == "1", postTest: true}
}

func (p *curlyParser) switchStmt() *stmt {
	start := p.pos
	p.pos += len("switch")
	subject := p.condition()
	s := &stmt{kind: stmtSwitch, line: p.lineAt(start), label: "switch " + subject, fallsThrough: true}
	p.skipSpace()
	if !p.at('{') {
		p.warn(start, "switch without a body")
		s.endLine = s.line
		return s
	}
	open := p.pos
	p.pos++
	for {
		p.skipSpaceAndSemis()
		if p.pos >= len(p.text) {
			p.warn(open, "unbalanced braces: switch is never closed")
			break
		}
		if p.at('}') {
			p.pos++
			break
		}
		if w := p.word(); w == "case" || w == "default" {
			armAt := p.pos
			colon := p.caseColon(p.pos + len(w))
			if colon < 0 {
				p.warn(armAt, "case label without ':'")
				p.pos = len(p.text)
				break
			}
			s.clauses = append(s.clauses, clause{
				label:     p.label(armAt, colon),
				line:      p.lineAt(armAt),
				isDefault: w == "default",
			})
			p.pos = colon + 1
			continue
		}
		body := p.statement()
		if len(s.clauses) == 0 {
			p.warn(p.pos, "statement before the first case")
			continue
		}
		last := &s.clauses[len(s.clauses)-1]
		last.body = append(last.body, body...)
	}
	s.endLine = p.lineAt(p.pos - 1)
	return s
}

// caseColon finds the colon ending a case label, skipping nested brackets
// and the branches of a conditional expression.
func (p *curlyParser) caseColon(from int) int {
	depth, ternary := 0, 0
	for i := from; i < len(p.text); i++ {
		switch p.text[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth < 0 {
				return -1
			}
		case '?':
			if depth == 0 {
				ternary++
			}
		case ':':
			if depth == 0 {
				if ternary == 0 {
					return i
				}
				ternary--
			}
		}
	}
	return -1
}

func (p *curlyParser) matchStmt() *stmt {
	start := p.pos
	p.pos += len("match")
	subject := p.condition()
	s := &stmt{kind: stmtSwitch, line: p.lineAt(start), label: "match " + subject, exhaustive: true}
	if !p.at('{') {
		s.endLine = s.line
		return s
	}
	open := p.pos
	p.pos++
	for {
		for p.pos < len(p.text) && (isSpace(p.text[p.pos]) || p.text[p.pos] == ',') {
			p.pos++
		}
		if p.pos >= len(p.text) {
			p.warn(open, "unbalanced braces: match is never closed")
			break
		}
		if p.at('}') {
			p.pos++
			break
		}
		armAt := p.pos
		arrow := p.armArrow(p.pos)
		if arrow < 0 {
			p.warn(armAt, "match arm without '=>'")
			if end := p.matchClose(open); end >= 0 {
				p.pos = end + 1
			} else {
				p.pos = len(p.text)
			}
			break
		}
		pattern := p.label(armAt, arrow)
		c := clause{label: pattern, line: p.lineAt(armAt), isDefault: pattern == "_"}
		p.pos = arrow + 2
		p.skipSpace()
		if p.at('{') {
			c.body = p.block()
		} else {
			c.body = p.armExpression()
		}
		s.clauses = append(s.clauses, c)
	}
	s.endLine = p.lineAt(p.pos - 1)
	return s
}

// armArrow returns the offset of the "=>" ending the pattern at from.
func (p *curlyParser) armArrow(from int) int {
	depth := 0
	for i := from; i+1 < len(p.text); i++ {
		switch p.text[i] {
		case '(', '[', '{':
			depth++
		case ')', ']':
			depth--
		case '}':
			if depth == 0 {
				return -1
			}
			depth--
		case '=':
			if depth == 0 && p.text[i+1] == '>' {
				return i
			}
		}
	}
	return -1
}

// armExpression reads an expression arm up to its comma or the closing
// brace of the match.
func (p *curlyParser) armExpression() []*stmt {
	start := p.pos
	depth := 0
	end := len(p.text)
scan:
	for i := start; i < len(p.text); i++ {
		switch p.text[i] {
		case '(', '[', '{':
			depth++
		case ')', ']':
			depth--
		case '}':
			if depth == 0 {
				end = i
				break scan
			}
			depth--
		case ',':
			if depth == 0 {
				end = i
				break scan
			}
		}
	}
	p.pos = end
	if p.at(',') {
		p.pos++
	}
	label := p.label(start, end)
	first := strings.SplitN(label, " ", 2)[0]
	first = strings.TrimRight(first, ";")
	if exitKeywords[first] {
		return []*stmt{exitStmt(first, label, p.lineAt(start), p.lineAt(end-1))}
	}
	return []*stmt{simpleStmt(label, p.lineAt(start), p.lineAt(end-1))}
}

func (p *curlyParser) tryStmt() *stmt {
	start := p.pos
	p.pos += len("try")
	s := &stmt{kind: stmtTry, line: p.lineAt(start), label: "try"}
	s.body = p.branch()
	for {
		save := p.pos
		p.skipSpace()
		at := p.pos
		switch p.word() {
		case "catch":
			p.pos += len("catch")
			p.skipSpace()
			label := "catch"
			if p.at('(') {
				if end := p.matchClose(p.pos); end >= 0 {
					label = p.label(at, end+1)
					p.pos = end + 1
				}
			}
			s.clauses = append(s.clauses, clause{label: label, line: p.lineAt(at), body: p.branch()})
			continue
		case "finally":
			p.pos += len("finally")
			s.hasFinally = true
			s.finally = p.branch()
		default:
			p.pos = save
		}
		break
	}
	if len(s.clauses) == 0 && !s.hasFinally {
		p.warn(start, "try without catch or finally")
	}
	s.endLine = p.lineAt(p.pos - 1)
	return s
}

// statementEnd advances past a simple statement and returns its end.
//
// A statement ends at a semicolon outside brackets, before the brace that
// closes the enclosing block, or at a line break when the line looks
// complete and the next line does not continue it.
func (p *curlyParser) statementEnd() int {
	start := p.pos
	depth := 0
	var quote byte
	i := start
	for ; i < len(p.text); i++ {
		c := p.text[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '`':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case '}':
			if depth == 0 {
				p.pos = i
				return i
			}
			depth--
		case ';':
			if depth == 0 {
				p.pos = i + 1
				return i + 1
			}
		case '\n':
			if depth == 0 && p.lineComplete(start, i) {
				p.pos = i
				return i
			}
		}
	}
	p.pos = i
	return i
}

// lineComplete reports whether a statement may end at the line break at nl.
func (p *curlyParser) lineComplete(start, nl int) bool {
	stmt := strings.TrimRight(p.text[start:nl], " \t\r")
	if stmt == "" {
		return false
	}
	last := stmt[len(stmt)-1]
	if strings.IndexByte("=+-*/%&|^<>,.?:!(", last) >= 0 {
		return false
	}
	j := nl
	for j < len(p.text) && isSpace(p.text[j]) {
		j++
	}
	if j >= len(p.text) {
		return true
	}
	return strings.IndexByte(".?:+-*/%&|^=<>,)]", p.text[j]) < 0
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdent(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// shorten caps a label at 60 bytes.
func shorten(s string) string {
	const limit = 60
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut] + "..."
}
