// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


// Package config loads the project configuration file.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/tracemap/services/trace/collect"
	"github.com/AleutianAI/tracemap/services/trace/graph"
)

//go:embed template.yaml
var template []byte

// MaxFileSize is the largest config file accepted.
const MaxFileSize = 1 << 20

// FileNames are the config file names Discover looks for, in order.
var FileNames = []string{"trace.config.yaml", "trace.config.yml", "trace.config.toml"}

// Telemetry selects where spans and metrics go.
type Telemetry struct {
	// Exporter is none, stdout or otlp.
	Exporter string `yaml:"exporter" toml:"exporter" validate:"omitempty,oneof=none stdout otlp"`

	// Endpoint is the OTLP/gRPC collector address. Empty uses the exporter's
	// environment defaults.
	Endpoint string `yaml:"endpoint" toml:"endpoint" validate:"omitempty,hostname_port"`

	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure" toml:"insecure"`

	// MetricsTextfile receives the run's metrics in Prometheus text format.
	MetricsTextfile string `yaml:"metrics_textfile" toml:"metrics_textfile"`
}

// Config holds the settings shared by every command.
//
// Description:
//
//	Loaded from trace.config.yaml (or .yml, .toml) at the project root.
//	All fields are optional; fields absent from the file keep their
//	defaults. Command-line flags override the file.
//
// Thread Safety: Safe for concurrent reads after construction.
type Config struct {
	// Root is the project directory scanned.
	Root string `yaml:"root" toml:"root" validate:"required"`

	// Ignore lists doublestar globs excluded from scanning.
	Ignore []string `yaml:"ignore" toml:"ignore" validate:"dive,required"`

	// MaxFileBytes is the largest source file scanned.
	MaxFileBytes int64 `yaml:"max_file_bytes" toml:"max_file_bytes" validate:"gte=0"`

	// MaxCallsPerFunction caps the call sites extracted per function.
	MaxCallsPerFunction int `yaml:"max_calls_per_function" toml:"max_calls_per_function" validate:"gte=0,lte=100000"`

	// ResolvedOnly drops unresolved edges from call graph reports.
	ResolvedOnly bool `yaml:"resolved_only" toml:"resolved_only"`

	// OutputFormat is json or ndjson.
	OutputFormat string `yaml:"output_format" toml:"output_format"`

	// HubCount is the number of hubs in call graph statistics.
	HubCount int `yaml:"hub_count" toml:"hub_count" validate:"gte=0,lte=10000"`

	// Workers bounds concurrent file scanning. 0 means one per CPU.
	Workers int `yaml:"workers" toml:"workers" validate:"gte=0,lte=1024"`

	Telemetry Telemetry `yaml:"telemetry" toml:"telemetry"`

	source string
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Root:                ".",
		Ignore:              append([]string(nil), collect.DefaultIgnore...),
		MaxFileBytes:        collect.DefaultMaxFileBytes,
		MaxCallsPerFunction: graph.DefaultMaxCallsPerFunction,
		OutputFormat:        string(graph.FormatJSON),
		HubCount:            graph.DefaultHubCount,
		Telemetry:           Telemetry{Exporter: "none"},
	}
}

// Template returns a commented config file holding the defaults.
func Template() []byte {
	return bytes.Clone(template)
}

// Source returns the path the config was loaded from, or "" for defaults.
func (c *Config) Source() string {
	return c.source
}

// Load reads a config file.
//
// Description:
//
//	The format follows the extension: .yaml and .yml are YAML, .toml is
//	TOML. Unknown keys are rejected. A relative Root is resolved against
//	the directory holding the file. If the path is empty or the file does
//	not exist, the defaults are returned with no error.
//
// Inputs:
//
//	path - Path of the config file. May be empty.
//
// Outputs:
//
//	*Config - The validated configuration. Never nil on success.
//	error - ErrUnsupportedConfigFormat, or ErrInvalidConfig when the file
//	        cannot be parsed or fails validation.
//
// Thread Safety: Safe for concurrent use (stateless function).
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" && ext != ".toml" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedConfigFormat, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("%w: %s exceeds maximum size (%d > %d)", ErrInvalidConfig, path, len(data), MaxFileSize)
	}

	cfg, err := Parse(data, ext == ".toml")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.source = path
	if !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(filepath.Dir(path), cfg.Root)
	}
	return cfg, nil
}

// Parse decodes config bytes over the defaults and validates the result.
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - ErrInvalidConfig on a syntax error, an unknown key or a
//	        failed validation.
func Parse(data []byte, isTOML bool) (*Config, error) {
	cfg := Default()
	if isTOML {
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing TOML: %w", ErrInvalidConfig, err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// io.EOF means a file holding only comments.
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: parsing YAML: %w", ErrInvalidConfig, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Discover loads the first of FileNames present in dir. With none present
// it returns the defaults rooted at dir.
func Discover(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	cfg := Default()
	cfg.Root = dir
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field ranges and the output format.
//
// Outputs:
//
//	error - ErrInvalidConfig naming every failing field. An unknown output
//	        format also matches graph.ErrUnsupportedFormat.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		problems := make([]string, len(fieldErrs))
		for i, fe := range fieldErrs {
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			if fe.Param() != "" {
				problems[i] = fmt.Sprintf("%s fails %s=%s", field, fe.Tag(), fe.Param())
			} else {
				problems[i] = fmt.Sprintf("%s fails %s", field, fe.Tag())
			}
		}
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	if _, err := c.Format(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := collect.ValidatePatterns(c.Ignore); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Format parses OutputFormat.
func (c *Config) Format() (graph.Format, error) {
	return graph.ParseFormat(c.OutputFormat)
}
