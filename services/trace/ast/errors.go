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
	"errors"
	"fmt"
)

// Sentinel errors for scan failures.
//
// These errors can be checked using errors.Is() to determine the
// category of failure without inspecting error messages.
var (
	// ErrUnsupportedLanguage indicates that no scanner family handles the
	// requested language tag.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrInvalidContent indicates undecodable content: invalid UTF-8 or
	// embedded NUL bytes. The file is excluded from every graph.
	ErrInvalidContent = errors.New("invalid content")

	// ErrNoBody indicates that a symbol has no body to extract.
	ErrNoBody = errors.New("symbol has no body")
)

// ParseError provides detailed information about a file-level scan failure.
//
// Example:
//
//	var parseErr *ParseError
//	if errors.As(err, &parseErr) {
//	    fmt.Printf("%s:%d: %s\n", parseErr.FilePath, parseErr.Line, parseErr.Message)
//	}
type ParseError struct {
	// FilePath is the path to the file where the error occurred.
	FilePath string

	// Line is the 1-indexed line number, 0 if not line-specific.
	Line int

	// Message describes the error in human-readable form.
	Message string

	// Cause is the underlying error, may be nil.
	Cause error
}

// Error returns a formatted error message including the file location.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.FilePath, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.FilePath, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseErrorWithCause creates a new ParseError wrapping an underlying error.
func NewParseErrorWithCause(filePath string, line int, message string, cause error) *ParseError {
	return &ParseError{
		FilePath: filePath,
		Line:     line,
		Message:  message,
		Cause:    cause,
	}
}

// ValidationError reports a symbol field that violates an invariant.
type ValidationError struct {
	// Field is the offending field name.
	Field string

	// Message describes the violation.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
