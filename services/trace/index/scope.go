// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"path"
	"sort"
	"strings"

	"github.com/AleutianAI/tracemap/services/trace/ast"
)

// Scope is the read-only scope index consulted by the edge resolver.
//
// Description:
//
//	Built once from a complete Index. It maps module paths (Rust), dotted
//	module keys (Python) and file stems to files, and names to the
//	callables each file declares. Per-file visibility (the file itself plus
//	the files its imports resolved to) is attached with WithImports, which
//	returns a new Scope instead of mutating the receiver.
//
// Thread Safety:
//
//	Scope is immutable; all methods are safe for concurrent use.
type Scope struct {
	files []string
	has   map[string]bool

	rustRoot   map[string]string
	rustModule map[string]string
	rustFiles  map[string][]string

	pyModules map[string][]string

	stems     map[string]string
	callables map[string]map[string][]*ast.Symbol

	visible map[string][]string
}

// NewScope builds the scope index for an index.
func NewScope(idx *Index) *Scope {
	s := &Scope{
		has:        make(map[string]bool),
		rustRoot:   make(map[string]string),
		rustModule: make(map[string]string),
		rustFiles:  make(map[string][]string),
		pyModules:  make(map[string][]string),
		stems:      make(map[string]string),
		callables:  make(map[string]map[string][]*ast.Symbol),
	}
	for _, scan := range idx.files {
		p := scan.Source.File.Path
		s.files = append(s.files, p)
		s.has[p] = true
	}

	for _, scan := range idx.files {
		file := scan.Source.File
		s.stems[file.Path] = moduleStem(file.Path)

		switch file.Language.Family() {
		case ast.FamilyS:
			root := s.crateRoot(file.Path)
			mod := rustModulePath(root, file.Path)
			s.rustRoot[file.Path] = root
			s.rustModule[file.Path] = mod
			key := root + "|" + mod
			s.rustFiles[key] = append(s.rustFiles[key], file.Path)
		case ast.FamilyD:
			for _, key := range s.pythonKeys(file.Path) {
				s.pyModules[key] = appendUnique(s.pyModules[key], file.Path)
			}
		}

		byName := make(map[string][]*ast.Symbol)
		for _, sym := range idx.byFile[file.Path] {
			if sym.Kind.IsCallable() {
				byName[sym.ResolutionName] = append(byName[sym.ResolutionName], sym)
			}
		}
		s.callables[file.Path] = byName
	}
	return s
}

// HasFile reports whether a path was indexed.
func (s *Scope) HasFile(p string) bool {
	return s.has[p]
}

// Files returns the indexed paths in sorted order.
func (s *Scope) Files() []string {
	out := make([]string, len(s.files))
	copy(out, s.files)
	return out
}

// RustCrateRoot returns the crate root directory of a Rust file.
func (s *Scope) RustCrateRoot(file string) string {
	return s.rustRoot[file]
}

// RustModule returns the module path ("crate::net::tcp") of a Rust file.
func (s *Scope) RustModule(file string) string {
	return s.rustModule[file]
}

// RustFiles returns the files implementing a module path inside a crate.
func (s *Scope) RustFiles(root, module string) []string {
	return append([]string(nil), s.rustFiles[root+"|"+module]...)
}

// PythonModule returns the files registered under a dotted module key.
func (s *Scope) PythonModule(key string) []string {
	return append([]string(nil), s.pyModules[key]...)
}

// ModuleStem returns the name a file is imported as: the base name without
// extension, or the directory name for mod.rs, __init__.py and index.*.
func (s *Scope) ModuleStem(file string) string {
	return s.stems[file]
}

// Callables returns the functions and methods of a file with the given
// resolution name.
func (s *Scope) Callables(file, name string) []*ast.Symbol {
	return s.callables[file][name]
}

// WithImports returns a copy of the scope whose per-file visibility is the
// file itself plus the given resolved import targets.
func (s *Scope) WithImports(imports map[string][]string) *Scope {
	out := *s
	out.visible = make(map[string][]string, len(s.files))
	for _, f := range s.files {
		vis := []string{f}
		for _, target := range imports[f] {
			if s.has[target] {
				vis = append(vis, target)
			}
		}
		sort.Strings(vis)
		out.visible[f] = dedupSorted(vis)
	}
	return &out
}

// Visible returns the files visible from a file, sorted.
func (s *Scope) Visible(file string) []string {
	if vis, ok := s.visible[file]; ok {
		return append([]string(nil), vis...)
	}
	if s.has[file] {
		return []string{file}
	}
	return nil
}

func (s *Scope) crateRoot(file string) string {
	for d := path.Dir(file); ; d = path.Dir(d) {
		if s.has[joinPath(d, "lib.rs")] || s.has[joinPath(d, "main.rs")] {
			return d
		}
		if d == "." || d == "/" {
			break
		}
	}
	for d := path.Dir(file); d != "." && d != "/"; d = path.Dir(d) {
		if path.Base(d) == "src" {
			return d
		}
	}
	return "."
}

func rustModulePath(root, file string) string {
	rel := file
	if root != "." {
		rel = strings.TrimPrefix(file, root+"/")
	}
	segs := strings.Split(strings.TrimSuffix(rel, ".rs"), "/")
	if segs[len(segs)-1] == "mod" {
		segs = segs[:len(segs)-1]
	}
	if len(segs) == 1 && (segs[0] == "lib" || segs[0] == "main") {
		segs = nil
	}
	if len(segs) == 0 {
		return "crate"
	}
	return "crate::" + strings.Join(segs, "::")
}

// pythonKeys returns the dotted module keys a Python file is importable as:
// its path from the project root and its path from the top of its package
// chain (the highest ancestor run of directories holding __init__.py).
func (s *Scope) pythonKeys(file string) []string {
	keys := []string{dottedKey(file)}
	base := path.Dir(file)
	for base != "." && base != "/" && s.hasInit(base) {
		base = path.Dir(base)
	}
	if base != "." && base != "/" {
		keys = append(keys, dottedKey(strings.TrimPrefix(file, base+"/")))
	}
	out := keys[:0]
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

func (s *Scope) hasInit(dir string) bool {
	return s.has[joinPath(dir, "__init__.py")] || s.has[joinPath(dir, "__init__.pyi")]
}

func dottedKey(rel string) string {
	rel = strings.TrimSuffix(strings.TrimSuffix(rel, ".pyi"), ".py")
	segs := strings.Split(rel, "/")
	if segs[len(segs)-1] == "__init__" {
		segs = segs[:len(segs)-1]
	}
	return strings.Join(segs, ".")
}

func moduleStem(file string) string {
	base := path.Base(file)
	stem := base
	if i := strings.IndexByte(base, '.'); i > 0 {
		stem = base[:i]
	}
	switch stem {
	case "mod", "__init__", "index":
		if dir := path.Dir(file); dir != "." && dir != "/" {
			return path.Base(dir)
		}
	}
	return stem
}

func joinPath(dir, name string) string {
	if dir == "." || dir == "" {
		return name
	}
	return dir + "/" + name
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func dedupSorted(in []string) []string {
	out := in[:0]
	for i, v := range in {
		if i == 0 || v != in[i-1] {
			out = append(out, v)
		}
	}
	return out
}
