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

import "sort"

// Category names a detector.
type Category string

const (
	// CategoryPassThrough flags functions whose body only forwards their
	// parameters to one other function.
	CategoryPassThrough Category = "pass-through"

	// CategoryLonelyAbstraction flags functions no resolved edge reaches
	// that are named by exactly one call site elsewhere.
	CategoryLonelyAbstraction Category = "lonely-abstraction"

	// CategoryOrphan flags functions nothing calls or names.
	CategoryOrphan Category = "orphan"

	// CategoryPlaceholder flags bodies that are empty or only mark missing
	// work (pass, todo!(), raise NotImplementedError).
	CategoryPlaceholder Category = "placeholder"
)

// AllCategories lists every detector in run order.
var AllCategories = []Category{
	CategoryPassThrough,
	CategoryLonelyAbstraction,
	CategoryOrphan,
	CategoryPlaceholder,
}

// ParseCategory returns the category with the given name.
func ParseCategory(name string) (Category, bool) {
	for _, c := range AllCategories {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// Severity ranks findings.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// FixKind classifies a suggested fix.
type FixKind string

const (
	// FixInline replaces calls to the target with its body.
	FixInline FixKind = "inline"

	// FixRemove deletes the target.
	FixRemove FixKind = "remove"

	// FixImplement fills in the target's body.
	FixImplement FixKind = "implement"
)

// Fix is the automated change a finding suggests.
type Fix struct {
	// Kind is the change to make.
	Kind FixKind `json:"kind"`

	// Target is the symbol ID the change applies to.
	Target string `json:"target"`

	// Sites lists the call sites ("file:line") the change rewrites.
	Sites []string `json:"sites,omitempty"`

	// Description says what to do in one sentence.
	Description string `json:"description"`
}

// Finding is one evidence-backed observation.
//
// Every finding names the file and line of the flagged declaration and
// carries the evidence it was derived from, so it can be verified without
// rerunning the detector.
type Finding struct {
	Category Category `json:"category"`
	Severity Severity `json:"severity"`

	// File and Line locate the flagged declaration.
	File string `json:"file"`
	Line int    `json:"line"`

	// Symbols lists the symbol IDs involved, flagged symbol first.
	Symbols []string `json:"symbols"`

	// Chain describes a forwarding chain by qualified name ("a -> b -> c").
	Chain string `json:"chain,omitempty"`

	// Evidence holds the observations behind the finding.
	Evidence []string `json:"evidence"`

	// Fix is the suggested change, if any.
	Fix *Fix `json:"fix,omitempty"`
}

// Findings is the result of a detector run.
type Findings struct {
	// Findings are ordered by file, line, category and first symbol.
	Findings []Finding `json:"findings"`

	// Counts holds the number of findings per category.
	Counts map[Category]int `json:"counts"`
}

// ByCategory returns the findings of one category in order.
func (f *Findings) ByCategory(c Category) []Finding {
	var out []Finding
	for _, x := range f.Findings {
		if x.Category == c {
			out = append(out, x)
		}
	}
	return out
}

func newFindings(list []Finding) *Findings {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return firstSymbol(a) < firstSymbol(b)
	})
	if list == nil {
		list = []Finding{}
	}
	counts := make(map[Category]int)
	for _, x := range list {
		counts[x.Category]++
	}
	return &Findings{Findings: list, Counts: counts}
}

func firstSymbol(f Finding) string {
	if len(f.Symbols) == 0 {
		return ""
	}
	return f.Symbols[0]
}
