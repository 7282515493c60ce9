// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve maps raw import and call references to indexed files and
// symbols.
//
// Resolution is conservative: a reference resolves only when its candidate
// set, computed within the scope of the referencing file, has exactly one
// member. Zero or several candidates leave the reference unresolved.
package resolve

import (
	"sort"

	"github.com/AleutianAI/tracemap/services/trace/ast"
	"github.com/AleutianAI/tracemap/services/trace/index"
)

// Unique applies the cardinality rule to a candidate list.
//
// Description:
//
//	Duplicates are collapsed first. The reference resolves only when exactly
//	one distinct candidate remains.
//
// Outputs:
//
//	string - The single candidate, or "" when unresolved.
//	bool - True only for exactly one distinct candidate.
func Unique(candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	first := candidates[0]
	for _, c := range candidates[1:] {
		if c != first {
			return "", false
		}
	}
	return first, true
}

// Resolver resolves references against one index and scope.
//
// Thread Safety:
//
//	Resolver only reads the index and scope; it is safe for concurrent use
//	and never mutates either.
type Resolver struct {
	idx   *index.Index
	scope *index.Scope
}

// New creates a resolver over a complete index and its scope.
func New(idx *index.Index, scope *index.Scope) *Resolver {
	return &Resolver{idx: idx, scope: scope}
}

// Scope returns the scope the resolver consults.
func (r *Resolver) Scope() *index.Scope {
	return r.scope
}

// ImportTargets resolves every import of every indexed file.
//
// Outputs:
//
//	map[string][]string - Per file, the sorted distinct files its resolved
//	                      imports point to.
func (r *Resolver) ImportTargets() map[string][]string {
	out := make(map[string][]string)
	for _, scan := range r.idx.Files() {
		file := scan.Source.File.Path
		var targets []string
		for _, imp := range scan.Imports {
			if target, ok := r.ResolveImport(file, imp); ok {
				targets = append(targets, target)
			}
		}
		if len(targets) > 0 {
			out[file] = sortedUnique(targets)
		}
	}
	return out
}

// WithVisibility returns a resolver whose scope makes each file's resolved
// imports visible to its call sites. The receiver is left unchanged.
func (r *Resolver) WithVisibility() *Resolver {
	return &Resolver{idx: r.idx, scope: r.scope.WithImports(r.ImportTargets())}
}

// ImportCandidates returns the files an import could refer to, sorted.
func (r *Resolver) ImportCandidates(file string, imp ast.Import) []string {
	lang, ok := ast.LanguageForPath(file)
	if !ok {
		return nil
	}
	var candidates []string
	switch lang.Family() {
	case ast.FamilyS:
		candidates = r.rustImportCandidates(file, imp)
	case ast.FamilyC:
		candidates = r.curlyImportCandidates(file, imp.Raw)
	case ast.FamilyD:
		candidates = r.pythonImportCandidates(file, imp.Raw)
	}
	out := candidates[:0]
	for _, c := range candidates {
		if c != file && r.scope.HasFile(c) {
			out = append(out, c)
		}
	}
	return sortedUnique(out)
}

// ResolveImport resolves an import to a single file.
func (r *Resolver) ResolveImport(file string, imp ast.Import) (string, bool) {
	return Unique(r.ImportCandidates(file, imp))
}

// ResolveCall resolves a call site to a single symbol ID.
func (r *Resolver) ResolveCall(caller *ast.Symbol, call ast.CallSite) (string, bool) {
	return Unique(r.CallCandidates(caller, call))
}

func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	j := 0
	for i := range out {
		if i == 0 || out[i] != out[j-1] {
			out[j] = out[i]
			j++
		}
	}
	return out[:j]
}
