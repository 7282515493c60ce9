// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/tracemap/services/trace/ast"
	"github.com/AleutianAI/tracemap/services/trace/audit"
	"github.com/AleutianAI/tracemap/services/trace/cfg"
	"github.com/AleutianAI/tracemap/services/trace/config"
	"github.com/AleutianAI/tracemap/services/trace/format"
	"github.com/AleutianAI/tracemap/services/trace/graph"
	"github.com/AleutianAI/tracemap/services/trace/index"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// jsonOnly rejects an explicit --format other than json for commands whose
// output has no line-delimited form.
func (a *app) jsonOnly(cmd *cobra.Command) error {
	if !cmd.Flags().Changed("format") {
		return nil
	}
	f, err := graph.ParseFormat(a.flags.format)
	if err != nil {
		return err
	}
	if f != graph.FormatJSON {
		return fmt.Errorf("%w: %s output supports json only", graph.ErrUnsupportedFormat, cmd.Name())
	}
	return nil
}

// indexDocument is the output of the index command.
type indexDocument struct {
	Root     string            `json:"root"`
	Stats    index.Stats       `json:"stats"`
	Symbols  []*ast.Symbol     `json:"symbols"`
	Errors   []index.FileError `json:"errors"`
	Warnings []ast.Warning     `json:"warnings"`
}

// indexRecord is one line of the index command's NDJSON output.
type indexRecord struct {
	Type    string           `json:"type"`
	Symbol  *ast.Symbol      `json:"symbol,omitempty"`
	Error   *index.FileError `json:"error,omitempty"`
	Warning *ast.Warning     `json:"warning,omitempty"`
	Stats   *index.Stats     `json:"stats,omitempty"`
}

func writeIndex(w io.Writer, root string, idx *index.Index, f graph.Format) error {
	stats := idx.Stats()
	if f == graph.FormatJSON {
		return writeJSON(w, indexDocument{
			Root:     root,
			Stats:    stats,
			Symbols:  idx.Symbols(),
			Errors:   idx.Errors(),
			Warnings: idx.Warnings(),
		})
	}
	enc := json.NewEncoder(w)
	for _, sym := range idx.Symbols() {
		if err := enc.Encode(indexRecord{Type: "symbol", Symbol: sym}); err != nil {
			return err
		}
	}
	for _, fe := range idx.Errors() {
		if err := enc.Encode(indexRecord{Type: "error", Error: &fe}); err != nil {
			return err
		}
	}
	for _, warn := range idx.Warnings() {
		if err := enc.Encode(indexRecord{Type: "warning", Warning: &warn}); err != nil {
			return err
		}
	}
	return enc.Encode(indexRecord{Type: "stats", Stats: &stats})
}

func newIndexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "index [root]",
		Short: "List the functions, methods and modules declared in a project",
		Args:  positional(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd, argOr(args, 0, "")); err != nil {
				return err
			}
			idx, err := a.buildIndex(cmd.Context())
			if err != nil {
				return err
			}
			f, _ := a.cfg.Format()
			if err := a.writeOutput(func(w io.Writer) error {
				return writeIndex(w, a.cfg.Root, idx, f)
			}); err != nil {
				return err
			}
			a.summary(func(w io.Writer, s *format.Styler) error {
				return format.WriteIndexSummary(w, s, idx.Stats(), idx.Errors())
			})
			return nil
		},
	}
}

// emitReport writes a report in the configured format and its summary.
func (a *app) emitReport(r *graph.Report) error {
	f, _ := a.cfg.Format()
	if err := a.writeOutput(func(w io.Writer) error {
		return graph.WriteReport(w, r, f)
	}); err != nil {
		return err
	}
	a.summary(func(w io.Writer, s *format.Styler) error {
		return format.WriteReportSummary(w, s, r)
	})
	return nil
}

func newBlueprintCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "blueprint [root]",
		Short: "Build the file dependency graph",
		Args:  positional(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd, argOr(args, 0, "")); err != nil {
				return err
			}
			idx, err := a.buildIndex(cmd.Context())
			if err != nil {
				return err
			}
			r, err := a.builder().BuildBlueprint(cmd.Context(), idx)
			if err != nil {
				return err
			}
			return a.emitReport(r)
		},
	}
}

func newCallGraphCmd(a *app) *cobra.Command {
	var resolvedOnly bool
	var maxCalls, hubs int
	cmd := &cobra.Command{
		Use:   "callgraph [root]",
		Short: "Build the function call graph with degree statistics",
		Args:  positional(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd, argOr(args, 0, "")); err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("resolved-only") {
				a.cfg.ResolvedOnly = resolvedOnly
			}
			if flags.Changed("max-calls") {
				a.cfg.MaxCallsPerFunction = maxCalls
			}
			if flags.Changed("hubs") {
				a.cfg.HubCount = hubs
			}
			idx, err := a.buildIndex(cmd.Context())
			if err != nil {
				return err
			}
			r, err := a.builder().BuildCallGraph(cmd.Context(), idx)
			if err != nil {
				return err
			}
			return a.emitReport(r)
		},
	}
	cmd.Flags().BoolVar(&resolvedOnly, "resolved-only", false, "drop unresolved edges from the report")
	cmd.Flags().IntVar(&maxCalls, "max-calls", graph.DefaultMaxCallsPerFunction, "call sites kept per function")
	cmd.Flags().IntVar(&hubs, "hubs", graph.DefaultHubCount, "hubs listed in the degree statistics")
	return cmd
}

// relativeTo makes a command-line file path relative to root when it was
// given including the root directory.
func relativeTo(root, file string) string {
	file = filepath.Clean(file)
	if rel, err := filepath.Rel(filepath.Clean(root), file); err == nil && !strings.HasPrefix(rel, "..") && filepath.Clean(root) != "." {
		file = rel
	}
	return filepath.ToSlash(file)
}

func newCFGCmd(a *app) *cobra.Command {
	var root string
	var mermaid, diagram bool
	cmd := &cobra.Command{
		Use:   "cfg <file> <function>",
		Short: "Build the control-flow graph of one function",
		Long: "Build the control-flow graph of one function.\n\n" +
			"The function is a symbol ID (path:line:name), a qualified name such as\n" +
			"Service.run, or a bare name that is unique in the file.",
		Args: positional(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.jsonOnly(cmd); err != nil {
				return err
			}
			if err := a.setup(cmd, root); err != nil {
				return err
			}
			file := relativeTo(a.cfg.Root, args[0])
			lang, ok := ast.LanguageForPath(file)
			if !ok {
				return usagef("%s: unsupported language", file)
			}
			content, err := os.ReadFile(filepath.Join(a.cfg.Root, filepath.FromSlash(file)))
			if err != nil {
				return err
			}
			idx, err := index.Build(cmd.Context(), []*ast.ScannedFile{ast.NewScannedFile(file, lang, content)},
				index.WithLogger(a.logger))
			if err != nil {
				return err
			}
			if errs := idx.Errors(); len(errs) > 0 {
				return fmt.Errorf("%s: %s", errs[0].Path, errs[0].Message)
			}
			g, err := cfg.Build(cmd.Context(), idx, file, args[1],
				cfg.WithDiagram(mermaid || diagram), cfg.WithLogger(a.logger))
			if err != nil {
				return err
			}
			if err := a.writeOutput(func(w io.Writer) error {
				if mermaid {
					_, err := io.WriteString(w, g.Diagram)
					return err
				}
				return writeJSON(w, g)
			}); err != nil {
				return err
			}
			a.summary(func(w io.Writer, s *format.Styler) error {
				return format.WriteGraphSummary(w, s, g)
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", ".", "project root the file path is relative to")
	cmd.Flags().BoolVar(&mermaid, "mermaid", false, "write only the Mermaid diagram")
	cmd.Flags().BoolVar(&diagram, "diagram", false, "include the Mermaid diagram in the JSON output")
	return cmd
}

func readReport(path string) (*graph.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := graph.ReadReport(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func newDiffCmd(a *app) *cobra.Command {
	var mappingPath, templatePath string
	var requireMapping, markdown bool
	cmd := &cobra.Command{
		Use:   "diff <before> <after>",
		Short: "Compare two graph reports",
		Long: "Compare two graph reports of the same kind.\n\n" +
			"With --require-mapping every removed node must be explained by a\n" +
			"non-blank entry of the --mapping file; otherwise the command exits 3.",
		Args: positional(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.jsonOnly(cmd); err != nil {
				return err
			}
			if err := a.setup(cmd, ""); err != nil {
				return err
			}
			before, err := readReport(args[0])
			if err != nil {
				return err
			}
			after, err := readReport(args[1])
			if err != nil {
				return err
			}
			d, err := graph.Diff(cmd.Context(), before, after, graph.WithDiffLogger(a.logger))
			if err != nil {
				return err
			}

			var mapping *graph.MappingFile
			if mappingPath != "" {
				if mapping, err = graph.LoadMapping(mappingPath); err != nil {
					return err
				}
			}
			if templatePath != "" {
				if err := writeFile(templatePath, a.stdout, func(w io.Writer) error {
					return graph.WriteMappingTemplate(w, d)
				}); err != nil {
					return err
				}
			}
			if err := a.writeOutput(func(w io.Writer) error {
				if markdown {
					return format.WriteDiffMarkdown(w, d, mapping)
				}
				return writeJSON(w, d)
			}); err != nil {
				return err
			}
			a.summary(func(w io.Writer, s *format.Styler) error {
				_, err := fmt.Fprintf(w, "%s %d added, %d removed nodes; %d added, %d removed edges\n",
					s.Title("Diff"), len(d.AddedNodes), len(d.RemovedNodes), len(d.AddedEdges), len(d.RemovedEdges))
				return err
			})
			if requireMapping {
				return graph.EnforceMapping(d, mapping)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mappingPath, "mapping", "", "mapping file explaining removed nodes")
	cmd.Flags().BoolVar(&requireMapping, "require-mapping", false, "fail when a removed node is not explained by the mapping")
	cmd.Flags().StringVar(&templatePath, "template", "", "write a mapping template for the removed nodes to this file, - for stdout")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "write a Markdown summary instead of JSON")
	return cmd
}

// writeFile writes to path, or to stdout when path is "-".
func writeFile(path string, stdout io.Writer, write func(io.Writer) error) error {
	if path == "-" {
		return write(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = write(f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}

func parseCategories(names []string) ([]audit.Category, error) {
	out := make([]audit.Category, 0, len(names))
	for _, name := range names {
		c, ok := audit.ParseCategory(name)
		if !ok {
			return nil, usagef("unknown audit category %q", name)
		}
		out = append(out, c)
	}
	return out, nil
}

func newAuditCmd(a *app) *cobra.Command {
	var categories []string
	var includeTests, hunksOnly, fail bool
	var patchPath string
	cmd := &cobra.Command{
		Use:   "audit [root]",
		Short: "Report pass-through functions, lonely abstractions, orphans and placeholders",
		Args:  positional(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := parseCategories(categories)
			if err != nil {
				return err
			}
			if err := a.setup(cmd, argOr(args, 0, "")); err != nil {
				return err
			}

			var scope *audit.PatchScope
			if patchPath != "" {
				if scope, err = a.readPatch(patchPath); err != nil {
					return err
				}
			}

			idx, err := a.buildIndex(cmd.Context())
			if err != nil {
				return err
			}
			// Lonely abstraction detection needs the unresolved edges.
			callGraph, err := a.builder(graph.WithResolvedOnly(false)).BuildCallGraph(cmd.Context(), idx)
			if err != nil {
				return err
			}
			findings, err := audit.Detect(cmd.Context(), idx, callGraph,
				audit.WithCategories(selected...),
				audit.WithIncludeTests(includeTests),
				audit.WithLogger(a.logger),
			)
			if err != nil {
				return err
			}
			if scope != nil {
				findings = audit.FilterByPatch(findings, scope, hunksOnly)
			}

			f, _ := a.cfg.Format()
			if err := a.writeOutput(func(w io.Writer) error {
				if f == graph.FormatNDJSON {
					enc := json.NewEncoder(w)
					for _, x := range findings.Findings {
						if err := enc.Encode(x); err != nil {
							return err
						}
					}
					return nil
				}
				return writeJSON(w, findings)
			}); err != nil {
				return err
			}
			a.summary(func(w io.Writer, s *format.Styler) error {
				return format.WriteFindings(w, s, findings)
			})
			if fail && len(findings.Findings) > 0 {
				return fmt.Errorf("%d audit findings", len(findings.Findings))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&categories, "category", nil, "detectors to run: pass-through, lonely-abstraction, orphan, placeholder (default all)")
	cmd.Flags().BoolVar(&includeTests, "include-tests", false, "also audit declarations in test files")
	cmd.Flags().StringVar(&patchPath, "patch", "", "unified diff limiting findings to the files it touches, - for stdin")
	cmd.Flags().BoolVar(&hunksOnly, "hunks", false, "with --patch, keep only findings inside changed lines")
	cmd.Flags().BoolVar(&fail, "fail", false, "exit 1 when any finding is reported")
	return cmd
}

func (a *app) readPatch(path string) (*audit.PatchScope, error) {
	if path == "-" {
		return audit.ParsePatch(a.stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return audit.ParsePatch(f)
}

func newConfigCmd(a *app) *cobra.Command {
	var template bool
	cmd := &cobra.Command{
		Use:   "config [root]",
		Short: "Print the effective configuration as YAML",
		Args:  positional(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if template {
				return a.writeOutput(func(w io.Writer) error {
					_, err := w.Write(config.Template())
					return err
				})
			}
			if err := a.setup(cmd, argOr(args, 0, "")); err != nil {
				return err
			}
			return a.writeOutput(func(w io.Writer) error {
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if err := enc.Encode(a.cfg); err != nil {
					return err
				}
				return enc.Close()
			})
		},
	}
	cmd.Flags().BoolVar(&template, "template", false, "print a commented config file holding the defaults")
	return cmd
}
