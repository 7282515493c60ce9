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
	"fmt"
	"io"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// PatchScope is the set of files, and changed line ranges, a unified diff
// touches.
type PatchScope struct {
	files map[string][]lineRange
}

type lineRange struct {
	start, end int
}

// ParsePatch reads a unified diff.
//
// Description:
//
//	File names are taken from the new side, falling back to the old side
//	for deletions; git's a/ and b/ prefixes are stripped.
//
// Outputs:
//
//	*PatchScope - The touched files and the new-side line ranges of their hunks.
//	error - ErrInvalidPatch when the diff cannot be parsed.
func ParsePatch(r io.Reader) (*PatchScope, error) {
	fileDiffs, err := diff.NewMultiFileDiffReader(r).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	scope := &PatchScope{files: make(map[string][]lineRange)}
	for _, fd := range fileDiffs {
		filePath := fd.NewName
		if filePath == "" || filePath == "/dev/null" {
			filePath = fd.OrigName
		}
		filePath = strings.TrimPrefix(filePath, "a/")
		filePath = strings.TrimPrefix(filePath, "b/")
		ranges := scope.files[filePath]
		for _, h := range fd.Hunks {
			start := int(h.NewStartLine)
			ranges = append(ranges, lineRange{start: start, end: start + max(int(h.NewLines), 1) - 1})
		}
		scope.files[filePath] = ranges
	}
	return scope, nil
}

// Touches reports whether the diff changes the file.
func (s *PatchScope) Touches(file string) bool {
	_, ok := s.files[file]
	return ok
}

// TouchesLine reports whether a hunk of the diff covers the line.
func (s *PatchScope) TouchesLine(file string, line int) bool {
	for _, r := range s.files[file] {
		if line >= r.start && line <= r.end {
			return true
		}
	}
	return false
}

// FilterByPatch keeps the findings in files the patch touches. With
// hunksOnly set, a finding must also lie on a changed line range.
func FilterByPatch(f *Findings, scope *PatchScope, hunksOnly bool) *Findings {
	var kept []Finding
	for _, x := range f.Findings {
		if !scope.Touches(x.File) {
			continue
		}
		if hunksOnly && !scope.TouchesLine(x.File, x.Line) {
			continue
		}
		kept = append(kept, x)
	}
	return newFindings(kept)
}
