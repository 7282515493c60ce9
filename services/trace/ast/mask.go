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
	"sort"
	"unicode/utf8"
)

// Mask returns a copy of src in which comments and the contents of string,
// character, template and regex literals are replaced by spaces.
//
// Description:
//
//	Quote delimiters and newlines are kept, so the masked text has exactly the
//	same length and line layout as src. Structural scans (brackets, keywords,
//	call patterns) run on the masked text; raw text is sliced from src using
//	the same offsets.
//
// Inputs:
//
//	family - The syntax family deciding the comment and literal rules.
//	src - The raw source bytes.
//
// Outputs:
//
//	[]byte - The masked copy. Unknown families are returned unmasked.
func Mask(family Family, src []byte) []byte {
	out := make([]byte, len(src))
	copy(out, src)
	m := &masker{src: src, out: out}
	switch family {
	case FamilyS:
		m.rust()
	case FamilyC:
		m.curly()
	case FamilyD:
		m.python()
	}
	return out
}

type masker struct {
	src []byte
	out []byte
}

// blank replaces out[from:to] with spaces, keeping newlines.
func (m *masker) blank(from, to int) {
	if to > len(m.out) {
		to = len(m.out)
	}
	for i := from; i < to; i++ {
		if m.out[i] != '\n' {
			m.out[i] = ' '
		}
	}
}

func (m *masker) lineEnd(i int) int {
	if j := bytes.IndexByte(m.src[i:], '\n'); j >= 0 {
		return i + j
	}
	return len(m.src)
}

// quoted masks a simple escaped literal starting at the quote at i and
// returns the offset just past the closing quote.
func (m *masker) quoted(i int, q byte, multiline bool) int {
	s := m.src
	j := i + 1
	for j < len(s) {
		c := s[j]
		if c == '\\' {
			j += 2
			continue
		}
		if c == q || (c == '\n' && !multiline) {
			break
		}
		j++
	}
	if j > len(s) {
		j = len(s)
	}
	m.blank(i+1, j)
	if j < len(s) && s[j] == q {
		return j + 1
	}
	return j
}

// blockComment masks a "/* */" comment, nested when nested is true.
func (m *masker) blockComment(i int, nested bool) int {
	s := m.src
	depth := 1
	j := i + 2
	for j < len(s) && depth > 0 {
		switch {
		case nested && s[j] == '/' && j+1 < len(s) && s[j+1] == '*':
			depth++
			j += 2
		case s[j] == '*' && j+1 < len(s) && s[j+1] == '/':
			depth--
			j += 2
		default:
			j++
		}
	}
	m.blank(i, j)
	return j
}

func (m *masker) rust() {
	s := m.src
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			end := m.lineEnd(i)
			m.blank(i, end)
			i = end
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			i = m.blockComment(i, true)
		case (c == 'r' || c == 'b') && (i == 0 || !isIdentByte(s[i-1])):
			if j, ok := m.rustRaw(i); ok {
				i = j
				continue
			}
			i++
		case c == '"':
			i = m.quoted(i, '"', true)
		case c == '\'':
			i = m.rustQuote(i)
		default:
			i++
		}
	}
}

// rustRaw masks r"..", r#".."#, br".." literals.
func (m *masker) rustRaw(i int) (int, bool) {
	s := m.src
	j := i
	if s[j] == 'b' {
		j++
	}
	if j >= len(s) || s[j] != 'r' {
		return i, false
	}
	j++
	hashes := 0
	for j < len(s) && s[j] == '#' {
		hashes++
		j++
	}
	if j >= len(s) || s[j] != '"' {
		return i, false
	}
	open := j
	closing := append([]byte{'"'}, bytes.Repeat([]byte{'#'}, hashes)...)
	k := bytes.Index(s[open+1:], closing)
	if k < 0 {
		m.blank(open+1, len(s))
		return len(s), true
	}
	end := open + 1 + k
	m.blank(open+1, end)
	return end + len(closing), true
}

// rustQuote distinguishes a character literal from a lifetime or label.
func (m *masker) rustQuote(i int) int {
	s := m.src
	if i+1 >= len(s) {
		return i + 1
	}
	if s[i+1] == '\\' {
		j := i + 3
		for j < len(s) && s[j] != '\'' && s[j] != '\n' {
			j++
		}
		m.blank(i+1, j)
		if j < len(s) && s[j] == '\'' {
			return j + 1
		}
		return j
	}
	_, size := utf8.DecodeRune(s[i+1:])
	if i+1+size < len(s) && s[i+1+size] == '\'' {
		m.blank(i+1, i+1+size)
		return i + 2 + size
	}
	return i + 1
}

// regexPrefix holds the bytes after which a "/" starts a regex literal.
const regexPrefix = "(,=:[!&|?{};"

var regexKeywords = map[string]bool{
	"return": true, "typeof": true, "case": true, "do": true, "else": true,
	"in": true, "of": true, "void": true, "yield": true, "await": true,
}

func (m *masker) curly() {
	s := m.src
	prev := -1
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			end := m.lineEnd(i)
			m.blank(i, end)
			i = end
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			i = m.blockComment(i, false)
		case c == '\'' || c == '"':
			i = m.quoted(i, c, false)
			prev = i - 1
		case c == '`':
			i = m.template(i)
			prev = i - 1
		case c == '/' && m.regexAllowed(prev):
			if j, ok := m.regex(i); ok {
				i = j
				prev = i - 1
				continue
			}
			prev = i
			i++
		default:
			if !isSpaceByte(c) {
				prev = i
			}
			i++
		}
	}
}

func (m *masker) regexAllowed(prev int) bool {
	if prev < 0 {
		return true
	}
	c := m.src[prev]
	if bytes.IndexByte([]byte(regexPrefix), c) >= 0 {
		return true
	}
	if !isIdentByte(c) {
		return false
	}
	start := prev
	for start > 0 && isIdentByte(m.src[start-1]) {
		start--
	}
	return regexKeywords[string(m.src[start:prev+1])]
}

// regex masks a regex literal body. A literal must close on the same line;
// otherwise the slash is treated as division and nothing is masked.
func (m *masker) regex(i int) (int, bool) {
	s := m.src
	inClass := false
	j := i + 1
	for j < len(s) {
		c := s[j]
		if c == '\n' {
			return i, false
		}
		if c == '\\' {
			j += 2
			continue
		}
		if c == '[' {
			inClass = true
		} else if c == ']' {
			inClass = false
		} else if c == '/' && !inClass {
			break
		}
		j++
	}
	if j >= len(s) {
		return i, false
	}
	m.blank(i+1, j)
	j++
	for j < len(s) && isIdentByte(s[j]) {
		j++
	}
	return j, true
}

// template masks the literal text of a template literal and the "${" and
// "}" around each substitution. The substitution expressions stay visible
// so calls inside them are scanned; their own strings and nested templates
// are masked in turn.
func (m *masker) template(i int) int {
	s := m.src
	j := i + 1
	lit := j
	exprDepth := 0
	for j < len(s) {
		c := s[j]
		if exprDepth == 0 {
			switch {
			case c == '\\':
				j += 2
				continue
			case c == '`':
				m.blank(lit, j)
				return j + 1
			case c == '$' && j+1 < len(s) && s[j+1] == '{':
				m.blank(lit, j+2)
				exprDepth = 1
				j += 2
				continue
			}
			j++
			continue
		}
		switch c {
		case '{':
			exprDepth++
		case '}':
			exprDepth--
			if exprDepth == 0 {
				lit = j
			}
		case '`':
			j = m.template(j)
			continue
		case '\'', '"':
			j = m.quoted(j, c, false)
			continue
		}
		j++
	}
	if exprDepth == 0 {
		m.blank(lit, len(s))
	}
	return len(s)
}

func (m *masker) python() {
	s := m.src
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '#':
			end := m.lineEnd(i)
			m.blank(i, end)
			i = end
		case c == '\'' || c == '"':
			if i+2 < len(s) && s[i+1] == c && s[i+2] == c {
				i = m.tripleQuoted(i, c)
			} else {
				i = m.quoted(i, c, false)
			}
		default:
			i++
		}
	}
}

func (m *masker) tripleQuoted(i int, q byte) int {
	s := m.src
	j := i + 3
	for j < len(s) {
		if s[j] == '\\' {
			j += 2
			continue
		}
		if s[j] == q && j+2 < len(s) && s[j+1] == q && s[j+2] == q {
			m.blank(i+3, j)
			return j + 3
		}
		j++
	}
	m.blank(i+3, len(s))
	return len(s)
}

// lineIndex holds the byte offset at which each line starts.
type lineIndex []int

func newLineIndex(b []byte) lineIndex {
	starts := lineIndex{0}
	for i, c := range b {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// line returns the 1-indexed line containing offset.
func (li lineIndex) line(offset int) int {
	return sort.Search(len(li), func(i int) bool { return li[i] > offset })
}

// start returns the offset of the first byte of a 1-indexed line.
func (li lineIndex) start(line int) int {
	if line < 1 {
		return 0
	}
	if line > len(li) {
		return li[len(li)-1]
	}
	return li[line-1]
}

var closerOf = map[byte]byte{'{': '}', '(': ')', '[': ']'}

// matchClose finds the delimiter closing the one at open in masked text.
// Only the same delimiter pair is counted. When the input is unbalanced
// it returns len(masked) and false.
func matchClose(masked []byte, open int) (int, bool) {
	if open < 0 || open >= len(masked) {
		return len(masked), false
	}
	o := masked[open]
	c, ok := closerOf[o]
	if !ok {
		return len(masked), false
	}
	depth := 0
	for i := open; i < len(masked); i++ {
		switch masked[i] {
		case o:
			depth++
		case c:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return len(masked), false
}

// braceDepth returns, for each offset, the number of "{" opened before it.
func braceDepth(masked []byte) []int32 {
	depth := make([]int32, len(masked)+1)
	var d int32
	for i, c := range masked {
		depth[i] = d
		switch c {
		case '{':
			d++
		case '}':
			if d > 0 {
				d--
			}
		}
	}
	depth[len(masked)] = d
	return depth
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

// skipSpace returns the first non-space offset at or after i.
func skipSpace(b []byte, i int) int {
	for i < len(b) && isSpaceByte(b[i]) {
		i++
	}
	return i
}
