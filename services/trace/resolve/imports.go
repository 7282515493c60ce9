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
	"path"
	"strings"

	"github.com/AleutianAI/tracemap/services/trace/ast"
)

// curlyExtensions are probed, in order, for extensionless specifiers.
var curlyExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".mts", ".cts"}

// compiledSiblings maps an emitted extension to the sources it is compiled
// from, for specifiers written against build output ("./a.js" for a.ts).
var compiledSiblings = map[string][]string{
	".js":  {".ts", ".tsx"},
	".jsx": {".tsx"},
	".mjs": {".mts"},
	".cjs": {".cts"},
}

// rustImportCandidates resolves "mod x;" and "use a::b::c;" declarations
// through the module paths of the file's crate.
func (r *Resolver) rustImportCandidates(file string, imp ast.Import) []string {
	root := r.scope.RustCrateRoot(file)
	current := r.scope.RustModule(file)
	if current == "" {
		return nil
	}

	if imp.Kind == ast.ImportKindModuleDecl {
		return r.scope.RustFiles(root, current+"::"+strings.TrimSpace(imp.Raw))
	}

	segs := rustUseSegments(imp.Raw)
	if len(segs) == 0 {
		return nil
	}
	base := ""
	switch segs[0] {
	case "crate":
		base, segs = "crate", segs[1:]
	case "self":
		base, segs = current, segs[1:]
	case "super":
		base = current
		for len(segs) > 0 && segs[0] == "super" {
			var ok bool
			if base, ok = parentModule(base); !ok {
				return nil
			}
			segs = segs[1:]
		}
	default:
		// A leading name is a child module of the current one, or an
		// external crate that is left unresolved.
		if len(r.scope.RustFiles(root, current+"::"+segs[0])) == 0 {
			return nil
		}
		base = current
	}

	for k := len(segs); k >= 0; k-- {
		module := base
		if k > 0 {
			module += "::" + strings.Join(segs[:k], "::")
		}
		if files := r.scope.RustFiles(root, module); len(files) > 0 {
			return files
		}
	}
	return nil
}

// rustUseSegments normalizes a use path: groups, globs, aliases and a
// leading "::" are removed. "crate::a::{b, c}" yields [crate a].
func rustUseSegments(raw string) []string {
	p := strings.TrimSpace(raw)
	if i := strings.IndexByte(p, '{'); i >= 0 {
		p = p[:i]
	}
	if i := strings.Index(p, " as "); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimSuffix(strings.TrimSpace(p), "*")
	p = strings.Trim(strings.ReplaceAll(p, " ", ""), ":")
	if p == "" {
		return nil
	}
	return strings.Split(p, "::")
}

func parentModule(module string) (string, bool) {
	i := strings.LastIndex(module, "::")
	if i < 0 {
		return "", false
	}
	return module[:i], true
}

// curlyImportCandidates resolves relative specifiers in priority tiers:
// the exact path, extension probes, index files, then compiled siblings.
// The first tier with any existing file decides; bare package specifiers
// are never resolved.
func (r *Resolver) curlyImportCandidates(file, raw string) []string {
	if !strings.HasPrefix(raw, "./") && !strings.HasPrefix(raw, "../") && raw != "." && raw != ".." {
		return nil
	}
	base := path.Join(path.Dir(file), raw)

	tiers := [][]string{{base}, nil, nil, nil}
	for _, ext := range curlyExtensions {
		tiers[1] = append(tiers[1], base+ext)
		tiers[2] = append(tiers[2], base+"/index"+ext)
	}
	ext := path.Ext(base)
	for _, sibling := range compiledSiblings[ext] {
		tiers[3] = append(tiers[3], strings.TrimSuffix(base, ext)+sibling)
	}

	for _, tier := range tiers {
		var hits []string
		for _, candidate := range tier {
			if r.scope.HasFile(candidate) {
				hits = append(hits, candidate)
			}
		}
		if len(hits) > 0 {
			return hits
		}
	}
	return nil
}

// pythonImportCandidates resolves absolute imports through module keys and
// relative imports through the importing file's directory.
func (r *Resolver) pythonImportCandidates(file, raw string) []string {
	dots := len(raw) - len(strings.TrimLeft(raw, "."))
	if dots == 0 {
		return r.scope.PythonModule(raw)
	}

	dir := path.Dir(file)
	for i := 1; i < dots; i++ {
		if dir == "." || dir == "/" {
			return nil
		}
		dir = path.Dir(dir)
	}
	rest := strings.ReplaceAll(raw[dots:], ".", "/")
	if rest == "" {
		return []string{joinDir(dir, "__init__.py")}
	}
	target := joinDir(dir, rest)
	return []string{target + ".py", target + "/__init__.py"}
}

func joinDir(dir, name string) string {
	if dir == "." || dir == "" {
		return name
	}
	return dir + "/" + name
}
