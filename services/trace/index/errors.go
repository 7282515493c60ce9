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
	"errors"
	"fmt"
)

// Sentinel errors for index operations.
var (
	// ErrDuplicatePath indicates that the same path was supplied twice.
	ErrDuplicatePath = errors.New("duplicate file path")

	// ErrDuplicateSymbol indicates two declarations produced the same ID.
	ErrDuplicateSymbol = errors.New("duplicate symbol ID")

	// ErrNilFile indicates a nil entry in the file list.
	ErrNilFile = errors.New("nil file")

	// ErrUnknownFile indicates a path that is not part of the index.
	ErrUnknownFile = errors.New("file not indexed")
)

// FileError records a per-file failure that excluded the file from the
// index. It never aborts the batch.
type FileError struct {
	// Path is the file that failed.
	Path string `json:"path"`

	// Message describes the failure.
	Message string `json:"message"`

	// Err is the underlying error. Not serialized.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e FileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Unwrap returns the underlying error.
func (e FileError) Unwrap() error {
	return e.Err
}

func newFileError(path string, err error) FileError {
	return FileError{Path: path, Message: err.Error(), Err: err}
}
