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

import "errors"

// Sentinel errors for the detector set.
var (
	// ErrNilIndex is returned when Detect is given a nil index.
	ErrNilIndex = errors.New("index must not be nil")

	// ErrNotCallGraph is returned when the report handed to Detect is not a
	// call graph.
	ErrNotCallGraph = errors.New("report is not a call graph")

	// ErrInvalidPatch is returned when a patch cannot be parsed as a
	// unified diff.
	ErrInvalidPatch = errors.New("invalid unified diff")
)
