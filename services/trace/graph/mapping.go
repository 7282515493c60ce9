// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// MappingFile explains every node removed between two snapshots.
//
// Each key is a removed node ID; the value is either a free-form
// explanation or the ID of its successor. The file is written by hand in
// YAML or JSON.
//
// Example:
//
//	mappings:
//	  src/legacy.rs: "merged into src/core.rs"
//	  "app.py:10:load": "app.py:14:load_all"
type MappingFile struct {
	Mappings map[string]string `yaml:"mappings" json:"mappings"`
}

func newMappingTemplate(removed []string) *MappingFile {
	m := &MappingFile{Mappings: make(map[string]string, len(removed))}
	for _, id := range removed {
		m.Mappings[id] = ""
	}
	return m
}

// LoadMapping reads a mapping file from disk.
func LoadMapping(path string) (*MappingFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mapping file: %w", err)
	}
	m, err := ParseMapping(data)
	if err != nil {
		return nil, fmt.Errorf("mapping file %s: %w", path, err)
	}
	return m, nil
}

// ParseMapping decodes a YAML or JSON mapping document. An empty document
// yields an empty mapping. Top-level keys other than "mappings" are
// rejected, so entries written without the wrapper fail loudly.
func ParseMapping(data []byte) (*MappingFile, error) {
	m := &MappingFile{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing mapping: %w", err)
	}
	if m.Mappings == nil {
		m.Mappings = map[string]string{}
	}
	return m, nil
}

// Explains reports whether the mapping holds a non-blank entry for id.
func (m *MappingFile) Explains(id string) bool {
	if m == nil {
		return false
	}
	return strings.TrimSpace(m.Mappings[id]) != ""
}

// EnforceMapping checks that every removed node of a diff is explained.
//
// Description:
//
//	A removed node counts as explained only when the mapping has a
//	non-blank value for it, so an unedited template never passes.
//
// Outputs:
//
//	error - nil when all removals are explained, otherwise a
//	        *MissingMappingError listing the unexplained IDs in order.
//	        errors.Is(err, ErrMissingMapping) holds.
func EnforceMapping(d *DiffResult, m *MappingFile) error {
	var missing []string
	for _, id := range d.RemovedNodes {
		if !m.Explains(id) {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &MissingMappingError{Missing: missing}
}

// WriteMappingTemplate writes the diff's template as YAML. Each removed
// node gets a blank entry; when successors were suggested they are added as
// a line comment.
func WriteMappingTemplate(w io.Writer, d *DiffResult) error {
	entries := &yaml.Node{Kind: yaml.MappingNode}
	for _, id := range d.RemovedNodes {
		value := &yaml.Node{Kind: yaml.ScalarNode, Value: "", Style: yaml.DoubleQuotedStyle}
		if hint := suggestionComment(d.SuggestionsFor(id)); hint != "" {
			value.LineComment = hint
		}
		entries.Content = append(entries.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: id},
			value,
		)
	}

	doc := &yaml.Node{
		Kind: yaml.DocumentNode,
		Content: []*yaml.Node{{
			Kind: yaml.MappingNode,
			Content: []*yaml.Node{
				{
					Kind:        yaml.ScalarNode,
					Value:       "mappings",
					HeadComment: fmt.Sprintf("Explain every removed %s node, or name its successor.", d.Kind),
				},
				entries,
			},
		}},
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding mapping template: %w", err)
	}
	return enc.Close()
}

func suggestionComment(s []Suggestion) string {
	if len(s) == 0 {
		return ""
	}
	parts := make([]string, len(s))
	for i, sg := range s {
		parts[i] = fmt.Sprintf("%s (shared %d)", sg.Candidate, sg.Score)
	}
	return "suggested: " + strings.Join(parts, ", ")
}
