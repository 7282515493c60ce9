// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tracemap/services/trace/collect"
	"github.com/AleutianAI/tracemap/services/trace/graph"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Missing(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("file does not exist", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "trace.config.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
		assert.Empty(t, cfg.Source())
	})
}

func TestTemplate_MatchesDefaults(t *testing.T) {
	path := writeConfig(t, "trace.config.yaml", string(Template()))

	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.Root = filepath.Dir(path)
	want.source = path
	assert.Equal(t, want, cfg)
	assert.Equal(t, collect.DefaultIgnore, cfg.Ignore)
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "trace.config.yml", `
hub_count: 5
ignore:
  - "vendor/**"
telemetry:
  exporter: stdout
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.HubCount)
	assert.Equal(t, []string{"vendor/**"}, cfg.Ignore)
	assert.Equal(t, "stdout", cfg.Telemetry.Exporter)
	assert.Equal(t, graph.DefaultMaxCallsPerFunction, cfg.MaxCallsPerFunction)
	assert.Equal(t, filepath.Dir(path), cfg.Root)
	assert.Equal(t, path, cfg.Source())
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "trace.config.toml", `
root = "src"
resolved_only = true
output_format = "ndjson"

[telemetry]
exporter = "otlp"
endpoint = "localhost:4317"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(filepath.Dir(path), "src"), cfg.Root)
	assert.True(t, cfg.ResolvedOnly)
	assert.Equal(t, "otlp", cfg.Telemetry.Exporter)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.Endpoint)

	format, err := cfg.Format()
	require.NoError(t, err)
	assert.Equal(t, graph.FormatNDJSON, format)
}

func TestLoad_AbsoluteRoot(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, "trace.config.yaml", "root: "+root+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Root)
}

func TestLoad_CommentsOnly(t *testing.T) {
	path := writeConfig(t, "trace.config.yaml", "# nothing configured yet\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, graph.DefaultHubCount, cfg.HubCount)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		contains string
		also     error
	}{
		{name: "unknown key", file: "c.yaml", content: "hubs: 3\n", contains: "hubs"},
		{name: "yaml syntax", file: "c.yaml", content: "ignore: [unclosed\n", contains: "parsing YAML"},
		{name: "toml syntax", file: "c.toml", content: "workers = \n", contains: "parsing TOML"},
		{name: "toml unknown key", file: "c.toml", content: "colour = \"red\"\n", contains: "parsing TOML"},
		{name: "negative workers", file: "c.yaml", content: "workers: -1\n", contains: "workers fails gte=0"},
		{name: "bad exporter", file: "c.yaml", content: "telemetry:\n  exporter: zipkin\n", contains: "telemetry.exporter fails oneof"},
		{name: "bad endpoint", file: "c.yaml", content: "telemetry:\n  endpoint: nohost\n", contains: "telemetry.endpoint fails hostname_port"},
		{name: "empty ignore entry", file: "c.yaml", content: "ignore: [\"\"]\n", contains: "ignore[0] fails required"},
		{name: "bad glob", file: "c.yaml", content: "ignore: [\"src/[x\"]\n", also: collect.ErrInvalidPattern},
		{name: "bad format", file: "c.yaml", content: "output_format: xml\n", also: graph.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
			if tt.also != nil {
				assert.ErrorIs(t, err, tt.also)
			}
		})
	}
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := Load(writeConfig(t, "trace.config.json", "{}"))
	assert.ErrorIs(t, err, ErrUnsupportedConfigFormat)
}

func TestDiscover(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		dir := t.TempDir()
		cfg, err := Discover(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, cfg.Root)
		assert.Empty(t, cfg.Source())
	})

	t.Run("toml file", func(t *testing.T) {
		path := writeConfig(t, "trace.config.toml", "hub_count = 3\n")
		cfg, err := Discover(filepath.Dir(path))
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.HubCount)
		assert.Equal(t, path, cfg.Source())
	})
}
