// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph builds file-level (blueprint) and function-level (call)
// graph reports, serializes them, and diffs two report snapshots.
//
// # Determinism
//
// Every report is canonically ordered before it is returned: nodes by ID,
// edges by (from, line, kind, raw, to), errors by path and warnings by
// (path, line). Reports carry no timestamps, so the same input produces
// byte-identical output.
//
// # Lifecycle
//
// Reports are value objects. Builders create them fresh on every call and
// nothing in this package mutates a report after it was returned.
package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for graph operations.
var (
	// ErrUnsupportedFormat is returned for an unknown output format name.
	ErrUnsupportedFormat = errors.New("unsupported output format")

	// ErrSchemaVersion is returned when reading a report written with a
	// different schema version.
	ErrSchemaVersion = errors.New("unsupported report schema version")

	// ErrInvalidReport is returned when a report document cannot be decoded.
	ErrInvalidReport = errors.New("invalid report")

	// ErrKindMismatch is returned when diffing a blueprint report against a
	// call report.
	ErrKindMismatch = errors.New("report kinds differ")

	// ErrMissingMapping is returned when mapping enforcement finds removed
	// nodes the mapping file does not explain.
	ErrMissingMapping = errors.New("missing mapping for removed nodes")

	// ErrNilIndex is returned when a builder is given a nil index.
	ErrNilIndex = errors.New("index must not be nil")
)

// FileError is a per-file failure recorded in a report. Files with an error
// are not represented by nodes.
type FileError struct {
	// Path is the file that failed.
	Path string `json:"path"`

	// Message describes the failure.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e FileError) Error() string {
	return fmt.Sprintf("file %s: %s", e.Path, e.Message)
}

// MissingMappingError lists the removed nodes a mapping file left
// unexplained.
type MissingMappingError struct {
	// Missing holds the unmapped node IDs, sorted.
	Missing []string
}

// Error implements the error interface.
func (e *MissingMappingError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingMapping, strings.Join(e.Missing, ", "))
}

// Unwrap returns ErrMissingMapping for errors.Is support.
func (e *MissingMappingError) Unwrap() error {
	return ErrMissingMapping
}
