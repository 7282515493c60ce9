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

var (
	plainIdent   = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)
	rustAttr     = regexp.MustCompile(`^#\[[^\]]*\]\s*`)
	rustReceiver = regexp.MustCompile(`^(?:&\s*(?:'\w+\s+)?)?(?:mut\s+)?self\b`)
)

// SplitTopLevel splits text at sep where no bracket of any kind is open.
// Empty pieces are dropped; pieces are trimmed.
func SplitTopLevel(text string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '<':
			depth++
		case '>':
			if i > 0 && (text[i-1] == '-' || text[i-1] == '=') {
				continue
			}
			depth--
		}
		if depth < 0 {
			depth = 0
		}
		if c == sep && depth == 0 {
			if p := strings.TrimSpace(text[start:i]); p != "" {
				parts = append(parts, p)
			}
			start = i + 1
		}
	}
	if p := strings.TrimSpace(text[start:]); p != "" {
		parts = append(parts, p)
	}
	return parts
}

// cutAny returns s up to the first top-level occurrence of any byte in stops.
func cutAny(s, stops string) string {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}', '>':
			depth--
		}
		if depth == 0 && strings.IndexByte(stops, s[i]) >= 0 {
			return s[:i]
		}
	}
	return s
}

// parseParams extracts parameter names from the text between a
// declaration's parentheses.
//
// Description:
//
//	Receivers (self, &mut self, this) are skipped. When dropFirstReceiver is
//	set, a leading self or cls parameter is skipped too (indentation family
//	methods). Spread and star prefixes are kept ("...rest", "*args") so a
//	forwarding call can be compared argument by argument. Parameters that
//	are patterns rather than names are recorded as "".
func parseParams(family Family, text string, dropFirstReceiver bool) []string {
	pieces := SplitTopLevel(text, ',')
	params := make([]string, 0, len(pieces))
	for i, p := range pieces {
		switch family {
		case FamilyS:
			p = rustAttr.ReplaceAllString(p, "")
			if rustReceiver.MatchString(p) {
				continue
			}
			p = strings.TrimSpace(cutAny(p, ":"))
			p = strings.TrimPrefix(p, "mut ")
			p = strings.TrimSpace(p)
		case FamilyC:
			for _, mod := range []string{"public ", "private ", "protected ", "readonly ", "override "} {
				p = strings.TrimPrefix(p, mod)
			}
			p = strings.TrimSpace(cutAny(p, ":=?"))
			if p == "this" {
				continue
			}
		case FamilyD:
			p = strings.TrimSpace(cutAny(p, ":="))
			if p == "*" || p == "/" {
				continue
			}
			if i == 0 && dropFirstReceiver && (p == "self" || p == "cls") {
				continue
			}
		}
		name := strings.TrimLeft(p, ".*")
		if !plainIdent.MatchString(name) {
			p = ""
		}
		params = append(params, p)
	}
	return params
}
