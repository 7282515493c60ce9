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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTypeScriptService = `import { a } from './a';
import b from "../lib/b";
const c = require('./c');
export * from './d';

export function top(x: number, y: string): void {
  helper(x);
}

const arrow = async (req, res) => {
  await top(req, res);
};

const short = (v) => compute(v);

class Service {
  private readonly name: string;

  constructor(name: string) {
    this.name = name;
  }

  async run(input) {
    return this.process(input);
  }

  handle = (evt) => {
    this.run(evt);
  };
}

function overload(a: string): void;
function overload(a: any) {
  return a;
}
`

func TestCurlyScanner_Symbols(t *testing.T) {
	scan := scanTestFile(t, "src/service.ts", LanguageTypeScript, testTypeScriptService)

	type want struct {
		name   string
		kind   SymbolKind
		line   int
		params []string
	}
	expected := []want{
		{"top", SymbolKindFunction, 6, []string{"x", "y"}},
		{"arrow", SymbolKindFunction, 10, []string{"req", "res"}},
		{"short", SymbolKindFunction, 14, []string{"v"}},
		{"Service.constructor", SymbolKindMethod, 19, []string{"name"}},
		{"Service.run", SymbolKindMethod, 23, []string{"input"}},
		{"Service.handle", SymbolKindMethod, 27, []string{"evt"}},
		{"overload", SymbolKindFunction, 33, []string{"a"}},
	}
	require.Len(t, scan.Symbols, len(expected))
	for i, w := range expected {
		got := scan.Symbols[i]
		assert.Equal(t, w.name, got.Name, "symbol %d", i)
		assert.Equal(t, w.kind, got.Kind, "kind of %s", w.name)
		assert.Equal(t, w.line, got.StartLine, "line of %s", w.name)
		assert.Equal(t, w.params, got.Params, "params of %s", w.name)
		assert.True(t, got.HasBody, "%s has body", w.name)
	}
	assert.Equal(t, "Service", scan.Symbols[4].Container)
}

func TestCurlyScanner_Imports(t *testing.T) {
	scan := scanTestFile(t, "src/service.ts", LanguageTypeScript, testTypeScriptService)
	assert.Equal(t, []Import{
		{Raw: "./a", Kind: ImportKindImport, Line: 1},
		{Raw: "../lib/b", Kind: ImportKindImport, Line: 2},
		{Raw: "./c", Kind: ImportKindImport, Line: 3},
		{Raw: "./d", Kind: ImportKindImport, Line: 4},
	}, scan.Imports)
}

func TestCurlyScanner_ExpressionBody(t *testing.T) {
	scan := scanTestFile(t, "src/service.ts", LanguageTypeScript, testTypeScriptService)
	short := symbolByName(scan, "short")
	require.NotNil(t, short)

	body, err := BodyOf(scan.Source, short)
	require.NoError(t, err)
	assert.Equal(t, "compute(v)", body.Text)
	assert.Equal(t, 14, body.StartLine)
}

func TestCurlyScanner_JavaScriptNamespaceAndNested(t *testing.T) {
	src := "function outer() {\n  function inner() {\n    return 1;\n  }\n  return inner();\n}\n"
	scan := scanTestFile(t, "a.js", LanguageJavaScript, src)
	require.Len(t, scan.Symbols, 2)
	assert.Equal(t, "outer", scan.Symbols[0].Name)
	assert.Equal(t, "outer.inner", scan.Symbols[1].Name)
	assert.Equal(t, "inner", scan.Symbols[1].ResolutionName)
	assert.Equal(t, 2, scan.Symbols[1].StartLine)
	assert.Equal(t, 4, scan.Symbols[1].EndLine)
}

func TestCurlyScanner_DynamicImport(t *testing.T) {
	src := "async function load() {\n  const m = await import('./lazy');\n  return m;\n}\n"
	scan := scanTestFile(t, "a.mjs", LanguageJavaScript, src)
	assert.Equal(t, []Import{{Raw: "./lazy", Kind: ImportKindImport, Line: 2}}, scan.Imports)
}
