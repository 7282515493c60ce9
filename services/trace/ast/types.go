// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast provides the heuristic, family-specific source scanners used by
// the indexer, the graph builders and the CFG builder.
//
// No scanner builds a real syntax tree. Each one masks comments and string
// contents, then walks the masked text with bracket or indentation counters
// to recover declarations, import statements, call sites and function bodies.
//
// Design principles:
//   - Closed set: exactly three scanner families (S, C, D), dispatched by tag
//   - Masked text always has the same length and line layout as the source
//   - Scanners never panic on malformed input; they degrade with warnings
package ast

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Language is the tag of a supported source syntax.
type Language string

const (
	// LanguageRust is a family S syntax (module/use-qualified).
	LanguageRust Language = "rust"

	// LanguageJavaScript is a family C syntax (curly-brace import/export).
	LanguageJavaScript Language = "javascript"

	// LanguageTypeScript is a family C syntax (curly-brace import/export).
	LanguageTypeScript Language = "typescript"

	// LanguagePython is a family D syntax (indentation-based import/def).
	LanguagePython Language = "python"
)

// languageByExt maps lowercase file extensions to language tags.
var languageByExt = map[string]Language{
	".rs":  LanguageRust,
	".js":  LanguageJavaScript,
	".jsx": LanguageJavaScript,
	".mjs": LanguageJavaScript,
	".cjs": LanguageJavaScript,
	".ts":  LanguageTypeScript,
	".tsx": LanguageTypeScript,
	".mts": LanguageTypeScript,
	".cts": LanguageTypeScript,
	".py":  LanguagePython,
	".pyi": LanguagePython,
}

// LanguageForPath returns the language tag for a file path based on its extension.
//
// Outputs:
//
//	Language - The detected language.
//	bool - False if the extension is not one of the built-in syntaxes.
func LanguageForPath(path string) (Language, bool) {
	lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// Family returns the scanner family that handles the language.
func (l Language) Family() Family {
	switch l {
	case LanguageRust:
		return FamilyS
	case LanguageJavaScript, LanguageTypeScript:
		return FamilyC
	case LanguagePython:
		return FamilyD
	default:
		return FamilyUnknown
	}
}

// Family identifies one of the structurally distinct groups of source syntax.
type Family int

const (
	// FamilyUnknown is the zero value and never has a scanner.
	FamilyUnknown Family = iota

	// FamilyS declares functions with a keyword-prefixed signature and groups
	// methods inside named container blocks (impl, trait, mod).
	FamilyS

	// FamilyC declares functions and arrow-bound names at statement level and
	// methods inside class bodies.
	FamilyC

	// FamilyD declares functions and methods with a keyword plus an indented block.
	FamilyD
)

// String returns the string representation of the Family.
func (f Family) String() string {
	switch f {
	case FamilyS:
		return "S"
	case FamilyC:
		return "C"
	case FamilyD:
		return "D"
	default:
		return "unknown"
	}
}

// ScannedFile is one source file handed to the core by the file collector.
//
// Description:
//
//	Created once per run and never mutated afterwards. Content holds the raw
//	bytes exactly as read from disk; scanners validate the encoding themselves.
//
// Thread Safety: Safe for concurrent reads.
type ScannedFile struct {
	// Path is the slash-separated path relative to the project root.
	Path string `json:"path"`

	// Language is the syntax tag derived from the extension.
	Language Language `json:"language"`

	// Size is the content length in bytes.
	Size int64 `json:"size"`

	// LineCount is the number of lines in Content.
	LineCount int `json:"line_count"`

	// Hash is the hex xxhash64 of Content.
	Hash string `json:"hash"`

	// Content is the raw file content.
	Content []byte `json:"-"`
}

// NewScannedFile builds a ScannedFile and derives size, line count and hash.
func NewScannedFile(path string, lang Language, content []byte) *ScannedFile {
	lines := bytes.Count(content, []byte{'\n'})
	if len(content) > 0 && content[len(content)-1] != '\n' {
		lines++
	}
	return &ScannedFile{
		Path:      filepath.ToSlash(path),
		Language:  lang,
		Size:      int64(len(content)),
		LineCount: lines,
		Hash:      fmt.Sprintf("%016x", xxhash.Sum64(content)),
		Content:   content,
	}
}

// SymbolKind is the kind of an indexed declaration.
type SymbolKind string

const (
	// SymbolKindFunction is a free function or an arrow-bound name.
	SymbolKindFunction SymbolKind = "function"

	// SymbolKindMethod is a function declared inside a container (impl, trait, class).
	SymbolKindMethod SymbolKind = "method"

	// SymbolKindModule is an inline module or namespace block.
	SymbolKindModule SymbolKind = "module"
)

// IsCallable reports whether symbols of this kind own a body that can make calls.
func (k SymbolKind) IsCallable() bool {
	return k == SymbolKindFunction || k == SymbolKindMethod
}

// Symbol is one indexed declaration (an index entry).
//
// Description:
//
//	Identity is derived from file, qualified name and declaration line, see
//	GenerateID. Name is the qualified display name ("Type::method",
//	"Class.method"); ResolutionName is the bare name call sites are matched on.
//
// Ownership:
//
//	Symbols are created by a scanner and MUST NOT be mutated once handed to
//	the index.
type Symbol struct {
	// ID is the stable identity: "file:line:qualifiedName".
	ID string `json:"id"`

	// Name is the qualified display name.
	Name string `json:"name"`

	// ResolutionName is the bare name used by the edge resolver.
	ResolutionName string `json:"resolution_name"`

	// Kind is function, method or module.
	Kind SymbolKind `json:"kind"`

	// FilePath is the slash-separated path of the declaring file.
	FilePath string `json:"file"`

	// StartLine is the 1-indexed declaration line.
	StartLine int `json:"start_line"`

	// EndLine is the 1-indexed last line of the declaration (body included).
	EndLine int `json:"end_line"`

	// Container is the enclosing type, class or module name, if any.
	Container string `json:"container,omitempty"`

	// Params lists parameter names in order. Receivers (self, this) are
	// omitted; parameters that are not plain names are recorded as "".
	Params []string `json:"params,omitempty"`

	// HasBody is false for bodiless declarations (trait items, overloads).
	HasBody bool `json:"has_body"`

	// Language is the declaring file's language tag.
	Language Language `json:"language"`

	// BodyStart and BodyEnd are byte offsets of the body inside the file
	// content (BodyEnd exclusive). Only meaningful when HasBody is true.
	BodyStart int `json:"-"`
	BodyEnd   int `json:"-"`
}

// GenerateID builds the stable symbol identity from its parts.
func GenerateID(filePath string, startLine int, qualifiedName string) string {
	return fmt.Sprintf("%s:%d:%s", filePath, startLine, qualifiedName)
}

// Validate checks the structural invariants of a symbol.
func (s *Symbol) Validate() error {
	if s.ID == "" {
		return ValidationError{Field: "ID", Message: "must not be empty"}
	}
	if s.Name == "" || s.ResolutionName == "" {
		return ValidationError{Field: "Name", Message: "must not be empty"}
	}
	if s.FilePath == "" {
		return ValidationError{Field: "FilePath", Message: "must not be empty"}
	}
	if s.StartLine < 1 {
		return ValidationError{Field: "StartLine", Message: "must be >= 1 (1-indexed)"}
	}
	if s.EndLine < s.StartLine {
		return ValidationError{Field: "EndLine", Message: "must be >= StartLine"}
	}
	if s.HasBody && s.BodyEnd < s.BodyStart {
		return ValidationError{Field: "BodyEnd", Message: "must be >= BodyStart"}
	}
	return nil
}

// ImportKind classifies a file-level dependency declaration.
type ImportKind string

const (
	// ImportKindModuleDecl is a child module declaration ("mod foo;").
	ImportKindModuleDecl ImportKind = "module-declaration"

	// ImportKindImport is an import statement (Python import/from, JS import/require/export-from).
	ImportKindImport ImportKind = "import"

	// ImportKindUse is a use-style path import ("use crate::a::b;").
	ImportKindUse ImportKind = "use-style"
)

// Import is one raw dependency declaration found in a file.
type Import struct {
	// Raw is the target text as written (path, module path or specifier).
	Raw string `json:"raw"`

	// Kind classifies the declaration.
	Kind ImportKind `json:"kind"`

	// Line is the 1-indexed declaration line.
	Line int `json:"line"`
}

// CallSite is one call expression found inside a function body.
type CallSite struct {
	// Raw is the callee text as written, whitespace removed ("self.save", "fs::read").
	Raw string `json:"raw"`

	// Name is the last path segment, the name the resolver matches on.
	Name string `json:"name"`

	// Qualifier is everything before Name without the trailing separator.
	// Empty for bare calls; "?" when the receiver is an arbitrary expression.
	Qualifier string `json:"qualifier,omitempty"`

	// Line is the 1-indexed line of the callee name.
	Line int `json:"line"`
}

// Warning records a parse ambiguity. Scanning continues after a warning.
type Warning struct {
	// Path is the file the warning belongs to.
	Path string `json:"path"`

	// Line is the 1-indexed line, 0 if not line-specific.
	Line int `json:"line"`

	// Message describes the ambiguity.
	Message string `json:"message"`
}

// Body is the extracted body of a callable symbol.
type Body struct {
	// StartLine is the 1-indexed line of the first body byte.
	StartLine int

	// Text is the raw body text.
	Text string

	// Masked is Text with comments and string contents blanked.
	Masked string

	// Family is the syntax family, which decides how the body is structured.
	Family Family
}
