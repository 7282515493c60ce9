// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cfg

import "errors"

// Sentinel errors for CFG construction.
var (
	// ErrFunctionNotFound is returned when the requested function is not in
	// the index.
	ErrFunctionNotFound = errors.New("function not found")

	// ErrAmbiguousFunction is returned when a bare name matches more than
	// one function of the file. Qualify the name or pass the symbol ID.
	ErrAmbiguousFunction = errors.New("function name is ambiguous")

	// ErrNilIndex is returned when Build is given a nil index.
	ErrNilIndex = errors.New("index must not be nil")
)
