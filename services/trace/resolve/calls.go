// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"strings"

	"github.com/AleutianAI/tracemap/services/trace/ast"
)

// receiverWords name the enclosing instance or type.
var receiverWords = map[string]bool{
	"self": true,
	"this": true,
	"cls":  true,
	"Self": true,
}

// rustPathRoots start a module path inside the current crate.
var rustPathRoots = map[string]bool{
	"crate": true,
	"self":  true,
	"super": true,
}

// CallCandidates returns the IDs of the symbols a call site could refer to,
// sorted.
//
// Description:
//
//	Candidates are restricted to files visible from the caller's file:
//	  - bare calls match free functions by name; a function nested inside
//	    another function is only a candidate for callers inside that function
//	  - self/this/cls/Self calls match methods of the caller's container
//	  - Rust crate/self/super paths match free functions of the named module
//	  - other qualifiers match members of a container with that name, or
//	    free functions of a file whose module stem is that name
//	Receivers that are arbitrary expressions ("?") and chained receivers
//	("self.repo.save") have no candidates.
func (r *Resolver) CallCandidates(caller *ast.Symbol, call ast.CallSite) []string {
	if call.Name == "" || call.Qualifier == "?" {
		return nil
	}
	visible := r.scope.Visible(caller.FilePath)
	var ids []string

	if call.Qualifier == "" {
		for _, file := range visible {
			for _, sym := range r.scope.Callables(file, call.Name) {
				if sym.Kind == ast.SymbolKindFunction && r.reachableNested(caller, sym) {
					ids = append(ids, sym.ID)
				}
			}
		}
		return sortedUnique(ids)
	}

	segs, pathSep := splitQualifier(call)
	switch {
	case len(segs) == 1 && receiverWords[segs[0]] && !(pathSep && segs[0] == "self"):
		if caller.Container == "" {
			return nil
		}
		for _, file := range visible {
			for _, sym := range r.scope.Callables(file, call.Name) {
				if sym.Kind == ast.SymbolKindMethod && sym.Container == caller.Container {
					ids = append(ids, sym.ID)
				}
			}
		}
	case receiverWords[segs[0]] && !pathSep:
		return nil
	case pathSep && rustPathRoots[segs[0]]:
		ids = r.rustPathCandidates(caller, segs, call.Name)
	default:
		q := segs[len(segs)-1]
		for _, file := range visible {
			stemMatch := r.scope.ModuleStem(file) == q
			for _, sym := range r.scope.Callables(file, call.Name) {
				switch {
				case sym.Container == q:
					ids = append(ids, sym.ID)
				case stemMatch && sym.Kind == ast.SymbolKindFunction && !r.isNested(sym):
					ids = append(ids, sym.ID)
				}
			}
		}
	}
	return sortedUnique(ids)
}

// splitQualifier splits a call qualifier into segments and reports whether
// it was written with the "::" path separator.
func splitQualifier(call ast.CallSite) ([]string, bool) {
	pathSep := strings.Contains(call.Qualifier, "::") ||
		strings.HasPrefix(call.Raw, call.Qualifier+"::")
	segs := strings.FieldsFunc(call.Qualifier, func(c rune) bool {
		return c == ':' || c == '.'
	})
	if len(segs) == 0 {
		segs = []string{call.Qualifier}
	}
	return segs, pathSep
}

// rustPathCandidates resolves "crate::a::f()", "self::f()" and
// "super::f()" to free functions of the named module's files.
func (r *Resolver) rustPathCandidates(caller *ast.Symbol, segs []string, name string) []string {
	root := r.scope.RustCrateRoot(caller.FilePath)
	module := r.scope.RustModule(caller.FilePath)
	if module == "" {
		return nil
	}
	switch segs[0] {
	case "crate":
		module = "crate"
	case "super":
		var ok bool
		if module, ok = parentModule(module); !ok {
			return nil
		}
	}
	for _, seg := range segs[1:] {
		if seg == "super" {
			var ok bool
			if module, ok = parentModule(module); !ok {
				return nil
			}
			continue
		}
		module += "::" + seg
	}
	var ids []string
	for _, file := range r.scope.RustFiles(root, module) {
		for _, sym := range r.scope.Callables(file, name) {
			if sym.Kind == ast.SymbolKindFunction && !r.isNested(sym) {
				ids = append(ids, sym.ID)
			}
		}
	}
	return ids
}

func (r *Resolver) isNested(sym *ast.Symbol) bool {
	_, nested := r.idx.Parent(sym)
	return nested
}

// reachableNested reports whether a function is callable by bare name from
// caller: top-level functions always are, nested ones only from inside
// their enclosing function.
func (r *Resolver) reachableNested(caller, sym *ast.Symbol) bool {
	parent, nested := r.idx.Parent(sym)
	if !nested {
		return true
	}
	if caller.FilePath != sym.FilePath {
		return false
	}
	for cur := caller; cur != nil; {
		if cur.ID == parent.ID || cur.ID == sym.ID {
			return true
		}
		next, ok := r.idx.Parent(cur)
		if !ok {
			break
		}
		cur = next
	}
	return false
}
