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
	"path"
	"strings"

	"github.com/AleutianAI/tracemap/services/trace/ast"
)

// isTestFile reports whether a path is test code by naming convention.
//
// Description:
//
//	Python test_*.py, *_test.py and conftest.py, JavaScript and TypeScript
//	*.test.* and *.spec.*, Rust files under a tests/ directory, and files
//	in directories whose sole purpose is tests or fixtures.
//
// Thread Safety: Safe for concurrent use (pure function).
func isTestFile(filePath string) bool {
	base := path.Base(filePath)
	ext := path.Ext(base)
	nameNoExt := strings.TrimSuffix(base, ext)
	lower := strings.ToLower(filePath)

	switch ext {
	case ".py", ".pyi":
		lowerName := strings.ToLower(nameNoExt)
		if strings.HasPrefix(lowerName, "test_") || strings.HasSuffix(lowerName, "_test") || lowerName == "conftest" {
			return true
		}
	case ".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx", ".mts", ".cts":
		if strings.Contains(nameNoExt, ".test") || strings.Contains(nameNoExt, ".spec") {
			return true
		}
	}

	for _, dir := range []string{
		"tests/", "test/", "__tests__/", "__fixtures__/", "__mocks__/",
		"fixtures/", "e2e/", "cypress/",
	} {
		if strings.HasPrefix(lower, dir) || strings.Contains(lower, "/"+dir) {
			return true
		}
	}
	return false
}

// isTestEntryPoint reports whether a test runner calls the symbol.
func isTestEntryPoint(sym *ast.Symbol) bool {
	name := sym.ResolutionName
	switch sym.Language {
	case ast.LanguagePython:
		if strings.HasPrefix(name, "test_") {
			return true
		}
		switch name {
		case "setUp", "tearDown", "setUpClass", "tearDownClass", "setUpModule", "tearDownModule":
			return true
		}
	case ast.LanguageJavaScript, ast.LanguageTypeScript:
		switch name {
		case "it", "test", "describe", "beforeEach", "afterEach",
			"beforeAll", "afterAll", "before", "after":
			return true
		}
	case ast.LanguageRust:
		if sym.Container == "tests" || strings.HasPrefix(name, "test_") {
			return true
		}
	}
	return false
}

// implicitCallees are names the language runtime or a trait calls without a
// call expression in the scanned code.
var implicitCallees = map[ast.Language]map[string]bool{
	ast.LanguageRust: {
		"fmt": true, "drop": true, "from": true, "default": true, "clone": true,
		"eq": true, "cmp": true, "partial_cmp": true, "hash": true, "next": true,
		"deref": true, "deref_mut": true, "try_from": true, "from_str": true,
		"as_ref": true, "into_iter": true, "index": true, "poll": true,
	},
	ast.LanguageJavaScript: {
		"render": true, "toString": true, "toJSON": true, "valueOf": true,
		"connectedCallback": true, "disconnectedCallback": true,
		"componentDidMount": true, "componentWillUnmount": true,
	},
	ast.LanguagePython: {
		"setup": true, "run": true, "handle": true,
	},
}

func init() {
	implicitCallees[ast.LanguageTypeScript] = implicitCallees[ast.LanguageJavaScript]
}

// isEntryPoint reports whether a symbol is reached without a visible call:
// program entry, constructors, dunder methods, test functions, and
// methods the runtime invokes.
//
// Thread Safety: Safe for concurrent use (pure function).
func isEntryPoint(sym *ast.Symbol) bool {
	name := sym.ResolutionName
	switch name {
	case "main", "__init__", "__new__", "__main__", "constructor", "new":
		return true
	}
	if len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") {
		return true
	}
	if sym.Kind == ast.SymbolKindMethod && implicitCallees[sym.Language][name] {
		return true
	}
	return isTestEntryPoint(sym)
}
