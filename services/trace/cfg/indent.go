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
	"strings"

	"github.com/AleutianAI/tracemap/services/trace/ast"
)

// logicalLine is one statement line of an indentation-structured body,
// with bracket continuations and backslash continuations joined.
type logicalLine struct {
	indent  int
	text    string
	label   string
	line    int
	endLine int
}

// indentParser reads the statement structure of an indentation-based body.
type indentParser struct {
	lines    []logicalLine
	warnings []lineWarning
}

func newIndentParser(masked, raw string, startLine int) *indentParser {
	p := &indentParser{}
	p.split(masked, raw, startLine)
	return p
}

// split cuts the body into logical lines. Blank lines, and lines blanked by
// masking (comments), are dropped. Lines inside brackets, inside a
// triple-quoted string or after a trailing backslash join the line they
// continue.
func (p *indentParser) split(masked, raw string, startLine int) {
	var joiner ast.LineJoiner
	line := startLine
	start, first := 0, startLine
	for s := 0; s <= len(masked); {
		e := strings.IndexByte(masked[s:], '\n')
		if e < 0 {
			e = len(masked)
		} else {
			e += s
		}
		continues := joiner.Continues([]byte(masked[s:e]))
		if continues && e < len(masked) {
			line++
			s = e + 1
			continue
		}
		if continues && joiner.Open() {
			p.warnings = append(p.warnings, lineWarning{line: first, message: "unbalanced brackets or unclosed string at end of body"})
		}
		p.add(masked[start:e], raw[start:min(e, len(raw))], first, line)
		line++
		s = e + 1
		start = s
		first = line
	}
}

func (p *indentParser) add(masked, raw string, first, last int) {
	text := strings.TrimSpace(masked)
	if text == "" {
		return
	}
	indent := 0
	for _, c := range masked {
		if c == ' ' {
			indent++
		} else if c == '\t' {
			indent += 8 - indent%8
		} else {
			break
		}
	}
	label := raw
	if i := strings.IndexByte(label, '\n'); i >= 0 {
		label = label[:i]
	}
	// Collapse physical line breaks of joined continuations.
	text = strings.Join(strings.Fields(text), " ")
	p.lines = append(p.lines, logicalLine{
		indent:  indent,
		text:    text,
		label:   shorten(strings.Join(strings.Fields(label), " ")),
		line:    first,
		endLine: last,
	})
}

func (p *indentParser) warn(line int, msg string) {
	p.warnings = append(p.warnings, lineWarning{line: line, message: msg})
}

func (p *indentParser) parse() []*stmt {
	if len(p.lines) == 0 {
		return nil
	}
	stmts, next := p.suite(0, p.lines[0].indent)
	for next < len(p.lines) {
		// Lines dedented below the first statement still belong to the body.
		p.warn(p.lines[next].line, "inconsistent indentation")
		more, n := p.suite(next, p.lines[next].indent)
		stmts = append(stmts, more...)
		next = n
	}
	return stmts
}

// suite parses the statements at one indentation level starting at i and
// returns the index of the first line that is dedented below it.
func (p *indentParser) suite(i, indent int) ([]*stmt, int) {
	var stmts []*stmt
	for i < len(p.lines) {
		ln := p.lines[i]
		if ln.indent < indent {
			break
		}
		if ln.indent > indent {
			p.warn(ln.line, "unexpected indent")
			more, next := p.suite(i, ln.indent)
			stmts = append(stmts, more...)
			i = next
			continue
		}
		var s []*stmt
		s, i = p.statement(i)
		stmts = append(stmts, s...)
	}
	return stmts, i
}

// keyword returns the leading keyword of a line, looking through "async".
func keyword(text string) string {
	w := leadingWord(text)
	if w == "async" {
		return leadingWord(strings.TrimSpace(text[len(w):]))
	}
	return w
}

func leadingWord(text string) string {
	end := 0
	for end < len(text) && isIdent(text[end]) {
		end++
	}
	return text[:end]
}

// header splits a compound statement header at its colon into the header
// text and an inline body. ok is false when no colon closes the header.
func header(text string) (head, inline string, ok bool) {
	depth := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ':':
			if depth == 0 && (i+1 >= len(text) || text[i+1] != '=') {
				return strings.TrimSpace(text[:i]), strings.TrimSpace(text[i+1:]), true
			}
		}
	}
	return text, "", false
}

func (p *indentParser) statement(i int) ([]*stmt, int) {
	ln := p.lines[i]
	kw := keyword(ln.text)
	switch kw {
	case "if":
		st, next := p.ifStmt(i)
		return []*stmt{st}, next
	case "while", "for":
		st, next := p.loopStmt(i, kw)
		return []*stmt{st}, next
	case "try":
		st, next := p.tryStmt(i)
		return []*stmt{st}, next
	case "with":
		body, next := p.body(i)
		return append([]*stmt{simpleStmt(ln.label, ln.line, ln.endLine)}, body...), next
	case "match":
		if _, _, ok := header(ln.text); ok && !strings.HasPrefix(strings.TrimSpace(ln.text[len("match"):]), "=") {
			st, next := p.matchStmt(i)
			return []*stmt{st}, next
		}
	case "def", "class":
		next := i + 1
		for next < len(p.lines) && p.lines[next].indent > ln.indent {
			next++
		}
		return []*stmt{simpleStmt(ln.label, ln.line, p.lines[next-1].endLine)}, next
	case "elif", "else", "except", "finally", "case":
		p.warn(ln.line, kw+" without a matching statement")
		body, next := p.body(i)
		return body, next
	}
	if exitKeywords[kw] && kw != "throw" {
		return []*stmt{exitStmt(kw, ln.label, ln.line, ln.endLine)}, i + 1
	}
	return []*stmt{simpleStmt(ln.label, ln.line, ln.endLine)}, i + 1
}

// body parses the suite of the compound statement header at line i: the
// inline statement after the colon, or the indented block below.
func (p *indentParser) body(i int) ([]*stmt, int) {
	ln := p.lines[i]
	_, inline, ok := header(ln.text)
	if !ok {
		p.warn(ln.line, "missing ':' after compound statement header")
		return nil, i + 1
	}
	if inline != "" {
		kw := leadingWord(inline)
		if exitKeywords[kw] && kw != "throw" {
			return []*stmt{exitStmt(kw, ln.label, ln.line, ln.endLine)}, i + 1
		}
		return []*stmt{simpleStmt(ln.label, ln.line, ln.endLine)}, i + 1
	}
	if i+1 >= len(p.lines) || p.lines[i+1].indent <= ln.indent {
		p.warn(ln.line, "expected an indented block")
		return nil, i + 1
	}
	return p.suite(i+1, p.lines[i+1].indent)
}

// sibling returns the keyword of line j when it continues the compound
// statement at indent (elif, else, except, finally).
func (p *indentParser) sibling(j, indent int) string {
	if j >= len(p.lines) || p.lines[j].indent != indent {
		return ""
	}
	return keyword(p.lines[j].text)
}

func condition(text, kw string) string {
	head, _, _ := header(text)
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(strings.TrimPrefix(head, "async")), kw))
}

func (p *indentParser) ifStmt(i int) (*stmt, int) {
	ln := p.lines[i]
	s := &stmt{kind: stmtIf, line: ln.line, label: ln.label}
	body, j := p.body(i)
	s.clauses = append(s.clauses, clause{label: ln.label, line: ln.line, body: body})
	for {
		switch p.sibling(j, ln.indent) {
		case "elif":
			el := p.lines[j]
			body, j = p.body(j)
			s.clauses = append(s.clauses, clause{label: el.label, line: el.line, body: body})
			continue
		case "else":
			s.hasElse = true
			s.elseBody, j = p.body(j)
		}
		break
	}
	s.endLine = p.lines[j-1].endLine
	return s, j
}

func (p *indentParser) loopStmt(i int, kw string) (*stmt, int) {
	ln := p.lines[i]
	cond := condition(ln.text, kw)
	s := &stmt{kind: stmtLoop, line: ln.line, label: ln.label,
		infinite: kw == "while" && (cond == "True" || cond == "1")}
	var j int
	s.body, j = p.body(i)
	if p.sibling(j, ln.indent) == "else" {
		s.hasElse = true
		s.elseBody, j = p.body(j)
	}
	s.endLine = p.lines[j-1].endLine
	return s, j
}

func (p *indentParser) tryStmt(i int) (*stmt, int) {
	ln := p.lines[i]
	s := &stmt{kind: stmtTry, line: ln.line, label: ln.label}
	var j int
	s.body, j = p.body(i)
	for {
		switch p.sibling(j, ln.indent) {
		case "except":
			ex := p.lines[j]
			var body []*stmt
			body, j = p.body(j)
			s.clauses = append(s.clauses, clause{label: ex.label, line: ex.line, body: body})
			continue
		case "else":
			s.hasElse = true
			s.elseBody, j = p.body(j)
			continue
		case "finally":
			s.hasFinally = true
			s.finally, j = p.body(j)
		}
		break
	}
	if len(s.clauses) == 0 && !s.hasFinally {
		p.warn(ln.line, "try without except or finally")
	}
	s.endLine = p.lines[j-1].endLine
	return s, j
}

func (p *indentParser) matchStmt(i int) (*stmt, int) {
	ln := p.lines[i]
	s := &stmt{kind: stmtSwitch, line: ln.line, label: ln.label}
	j := i + 1
	if j >= len(p.lines) || p.lines[j].indent <= ln.indent {
		p.warn(ln.line, "expected an indented block")
		s.endLine = ln.endLine
		return s, j
	}
	caseIndent := p.lines[j].indent
	for j < len(p.lines) && p.lines[j].indent >= caseIndent {
		cl := p.lines[j]
		if cl.indent > caseIndent || keyword(cl.text) != "case" {
			p.warn(cl.line, "expected a case clause")
			j++
			continue
		}
		pattern := condition(cl.text, "case")
		var body []*stmt
		body, j = p.body(j)
		s.clauses = append(s.clauses, clause{label: cl.label, line: cl.line, body: body, isDefault: pattern == "_"})
	}
	s.endLine = p.lines[j-1].endLine
	return s, j
}
