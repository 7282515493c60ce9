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
	"fmt"
	"strings"

	"github.com/AleutianAI/tracemap/services/trace/ast"
)

// missingWorkMarkers are lowercase phrases that mark a thrown or panicked
// message as a stand-in for an implementation.
var missingWorkMarkers = []string{"not implemented", "not yet implemented", "unimplemented", "todo"}

// placeholderReason classifies a body. It returns the evidence and
// severity when the body is a placeholder, ok false otherwise.
func placeholderReason(sym *ast.Symbol, body ast.Body) (reason string, severity Severity, ok bool) {
	sig := significantText(body)
	flat := sig.flat()
	if flat == "" {
		if isEntryPoint(sym) {
			return "", "", false
		}
		if body.Family == ast.FamilyD {
			return "body holds only a docstring", SeverityInfo, true
		}
		return "body is empty", SeverityInfo, true
	}

	switch body.Family {
	case ast.FamilyD:
		switch flat {
		case "pass":
			return "body is only pass", SeverityWarning, true
		case "...":
			return "body is only an ellipsis", SeverityWarning, true
		}
	}

	call, parsed := parseCall(sig.masked)
	if !parsed {
		return "", "", false
	}
	switch body.Family {
	case ast.FamilyD:
		if call.has("raise") && call.callee == "NotImplementedError" {
			return "body only raises NotImplementedError", SeverityWarning, true
		}
	case ast.FamilyS:
		switch call.callee {
		case "todo!", "unimplemented!":
			return "body is only " + call.callee + "()", SeverityWarning, true
		case "panic!":
			if mentionsMissingWork(sig.raw) {
				return "body only panics with a not-implemented message", SeverityWarning, true
			}
		}
	case ast.FamilyC:
		if call.has("throw") && (call.callee == "Error" || strings.HasSuffix(call.callee, "Error")) && mentionsMissingWork(sig.raw) {
			return "body only throws a not-implemented error", SeverityWarning, true
		}
	}
	return "", "", false
}

func mentionsMissingWork(raw string) bool {
	lower := strings.ToLower(raw)
	for _, m := range missingWorkMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// detectPlaceholders flags bodies that are empty or only stand in for
// missing work. Bodiless declarations (trait items, overload signatures)
// are not placeholders.
func detectPlaceholders(in *input) []Finding {
	var out []Finding
	for _, sym := range in.candidates {
		if !sym.HasBody {
			continue
		}
		body, err := in.idx.Body(sym)
		if err != nil {
			continue
		}
		reason, severity, ok := placeholderReason(sym, body)
		if !ok {
			continue
		}
		evidence := []string{reason}
		if n := len(in.callers[sym.ID]); n > 0 {
			evidence = append(evidence, pluralCallers(n))
		}
		out = append(out, Finding{
			Category: CategoryPlaceholder,
			Severity: severity,
			File:     sym.FilePath,
			Line:     sym.StartLine,
			Symbols:  []string{sym.ID},
			Evidence: evidence,
			Fix: &Fix{
				Kind:        FixImplement,
				Target:      sym.ID,
				Description: "implement " + sym.Name + " or remove it",
			},
		})
	}
	return out
}

func pluralCallers(n int) string {
	if n == 1 {
		return "1 resolved caller depends on it"
	}
	return fmt.Sprintf("%d resolved callers depend on it", n)
}
