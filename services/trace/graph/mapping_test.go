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
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnforceMapping(t *testing.T) {
	before, after := renameBlueprints(t)
	d, err := Diff(context.Background(), before, after)
	require.NoError(t, err)

	tests := []struct {
		name    string
		doc     string
		missing []string
	}{
		{name: "omitted", doc: "mappings:\n  other.py: gone\n", missing: []string{"util.py"}},
		{name: "empty document", doc: "", missing: []string{"util.py"}},
		{name: "blank explanation", doc: "mappings:\n  util.py: \"  \"\n", missing: []string{"util.py"}},
		{name: "successor", doc: "mappings:\n  util.py: helpers.py\n"},
		{name: "json", doc: `{"mappings": {"util.py": "renamed to helpers.py"}}`},
		{name: "comments only", doc: "# nothing removed yet\n", missing: []string{"util.py"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseMapping([]byte(tt.doc))
			require.NoError(t, err)

			err = EnforceMapping(d, m)
			if tt.missing == nil {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrMissingMapping)
			var mm *MissingMappingError
			require.True(t, errors.As(err, &mm))
			assert.Equal(t, tt.missing, mm.Missing)
			assert.Contains(t, err.Error(), "util.py")
		})
	}
}

func TestEnforceMapping_NothingRemoved(t *testing.T) {
	before, _ := renameBlueprints(t)
	d, err := Diff(context.Background(), before, before)
	require.NoError(t, err)
	assert.NoError(t, EnforceMapping(d, nil))
}

func TestWriteMappingTemplate(t *testing.T) {
	before, after := renameBlueprints(t)
	d, err := Diff(context.Background(), before, after)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteMappingTemplate(&buf, d))
	out := buf.String()
	assert.Contains(t, out, "mappings:")
	assert.Contains(t, out, "util.py: \"\"")
	assert.Contains(t, out, "suggested: helpers.py (shared 2)")

	m, err := ParseMapping(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"util.py": ""}, m.Mappings)
	assert.ErrorIs(t, EnforceMapping(d, m), ErrMissingMapping)
}

func TestLoadMapping(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "mapping.yaml")
	require.NoError(t, os.WriteFile(p, []byte("mappings:\n  a.py: b.py\n"), 0o644))

	m, err := LoadMapping(p)
	require.NoError(t, err)
	assert.Equal(t, "b.py", m.Mappings["a.py"])

	_, err = LoadMapping(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	flat := filepath.Join(dir, "flat.yaml")
	require.NoError(t, os.WriteFile(flat, []byte("\"util.py\": helpers.py\n"), 0o644))
	_, err = LoadMapping(flat)
	assert.ErrorContains(t, err, "util.py")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("mappings: [1, 2"), 0o644))
	_, err = LoadMapping(bad)
	assert.Error(t, err)
}

func TestParseMapping_RejectsUnwrappedEntries(t *testing.T) {
	for _, doc := range []string{
		"\"app.py:10:load\": \"app.py:14:load_all\"\n",
		`{"util.py": "helpers.py"}`,
		"mappings:\n  a.py: b.py\nmapping:\n  c.py: d.py\n",
	} {
		_, err := ParseMapping([]byte(doc))
		assert.Error(t, err, doc)
	}
}
