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

const testRustServer = `mod net;
use crate::util::helpers;

pub struct Server;

impl Server {
    pub fn new(addr: &str) -> Self {
        Server
    }

    pub async fn start(&mut self, port: u16) {
        self.bind(port);
        helpers::log("x");
    }
}

trait Handler {
    fn handle(&self, req: Request);
}

fn main() {
    let s = Server::new("x");
    println!("{}", s);
}
`

func scanTestFile(t *testing.T, path string, lang Language, src string) *FileScan {
	t.Helper()
	scan, err := ScanFile(NewScannedFile(path, lang, []byte(src)))
	require.NoError(t, err)
	return scan
}

func symbolByName(scan *FileScan, name string) *Symbol {
	for _, s := range scan.Symbols {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func TestRustScanner_Symbols(t *testing.T) {
	scan := scanTestFile(t, "src/server.rs", LanguageRust, testRustServer)

	names := make([]string, 0, len(scan.Symbols))
	for _, s := range scan.Symbols {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Server::new", "Server::start", "Handler::handle", "main"}, names)
	assert.Empty(t, scan.Warnings)

	newFn := symbolByName(scan, "Server::new")
	require.NotNil(t, newFn)
	assert.Equal(t, SymbolKindMethod, newFn.Kind)
	assert.Equal(t, "Server", newFn.Container)
	assert.Equal(t, "new", newFn.ResolutionName)
	assert.Equal(t, 7, newFn.StartLine)
	assert.Equal(t, 9, newFn.EndLine)
	assert.Equal(t, []string{"addr"}, newFn.Params)
	assert.Equal(t, "src/server.rs:7:Server::new", newFn.ID)

	start := symbolByName(scan, "Server::start")
	require.NotNil(t, start)
	assert.Equal(t, []string{"port"}, start.Params)

	handle := symbolByName(scan, "Handler::handle")
	require.NotNil(t, handle)
	assert.False(t, handle.HasBody)
	assert.Equal(t, SymbolKindMethod, handle.Kind)
	assert.Equal(t, []string{"req"}, handle.Params)

	main := symbolByName(scan, "main")
	require.NotNil(t, main)
	assert.Equal(t, SymbolKindFunction, main.Kind)
	assert.Empty(t, main.Container)
}

func TestRustScanner_Imports(t *testing.T) {
	scan := scanTestFile(t, "src/server.rs", LanguageRust, testRustServer)
	assert.Equal(t, []Import{
		{Raw: "net", Kind: ImportKindModuleDecl, Line: 1},
		{Raw: "crate::util::helpers", Kind: ImportKindUse, Line: 2},
	}, scan.Imports)
}

func TestRustScanner_InlineModule(t *testing.T) {
	src := "mod inner {\n    pub fn helper() {}\n}\n"
	scan := scanTestFile(t, "lib.rs", LanguageRust, src)
	require.Len(t, scan.Symbols, 2)
	assert.Equal(t, "inner", scan.Symbols[0].Name)
	assert.Equal(t, SymbolKindModule, scan.Symbols[0].Kind)
	assert.Equal(t, "inner::helper", scan.Symbols[1].Name)
	assert.Equal(t, SymbolKindFunction, scan.Symbols[1].Kind)
	assert.Equal(t, "inner", scan.Symbols[1].Container)
	assert.Empty(t, scan.Imports)
}

func TestRustScanner_UnbalancedBody(t *testing.T) {
	src := "fn broken() {\n    if x {\n"
	scan := scanTestFile(t, "broken.rs", LanguageRust, src)
	require.Len(t, scan.Symbols, 1)
	assert.NotEmpty(t, scan.Warnings)
	assert.Equal(t, 1, scan.Symbols[0].StartLine)
}

func TestRustImplType(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{" Server ", "Server"},
		{"<T> Display for Wrapper<T> where T: Clone ", "Wrapper"},
		{" fmt::Display for crate::a::Foo ", "Foo"},
		{"<T: Into<String>> From<T> for Name ", "Name"},
		{" Iterator for &'a Chain ", "Chain"},
	}
	for _, tt := range tests {
		if got := rustImplType(tt.header); got != tt.want {
			t.Errorf("rustImplType(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
