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
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tracemap/services/trace/collect"
	"github.com/AleutianAI/tracemap/services/trace/config"
	"github.com/AleutianAI/tracemap/services/trace/format"
	"github.com/AleutianAI/tracemap/services/trace/graph"
	"github.com/AleutianAI/tracemap/services/trace/index"
	"github.com/AleutianAI/tracemap/services/trace/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// globalFlags hold the persistent flag values shared by every command.
type globalFlags struct {
	configPath      string
	format          string
	output          string
	ignore          []string
	logLevel        string
	telemetry       string
	metricsTextfile string
	workers         int
	noColor         bool
	quiet           bool
}

// app carries the state of one invocation.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	flags  globalFlags

	cfg    *config.Config
	logger *slog.Logger
	tel    *telemetry.Telemetry
	style  *format.Styler
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		logger: slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "trace",
		Short:         "Build structural graphs of Rust, JavaScript, TypeScript and Python projects",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetIn(a.stdin)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&a.flags.configPath, "config", "c", "", "config file (default: trace.config.yaml, .yml or .toml in the project root)")
	pf.StringVarP(&a.flags.format, "format", "f", "", "output format: json or ndjson")
	pf.StringVarP(&a.flags.output, "output", "o", "-", "output file, - for stdout")
	pf.StringSliceVar(&a.flags.ignore, "ignore", nil, "additional doublestar ignore globs")
	pf.StringVar(&a.flags.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	pf.StringVar(&a.flags.telemetry, "telemetry", "", "telemetry exporter: none, stdout or otlp")
	pf.StringVar(&a.flags.metricsTextfile, "metrics-textfile", "", "write run metrics in Prometheus text format to this file")
	pf.IntVar(&a.flags.workers, "workers", 0, "files scanned concurrently, 0 for one per CPU")
	pf.BoolVar(&a.flags.noColor, "no-color", false, "disable colored summaries")
	pf.BoolVarP(&a.flags.quiet, "quiet", "q", false, "suppress summaries on stderr")

	root.AddCommand(
		newIndexCmd(a),
		newBlueprintCmd(a),
		newCallGraphCmd(a),
		newCFGCmd(a),
		newDiffCmd(a),
		newAuditCmd(a),
		newConfigCmd(a),
	)
	return root
}

// positional wraps a positional argument validator so its failures are usage
// errors.
func positional(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, a []string) error {
		if err := validate(cmd, a); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

func argOr(args []string, i int, fallback string) string {
	if i < len(args) {
		return args[i]
	}
	return fallback
}

// setup loads the configuration, applies flag overrides and starts
// telemetry. root is the project directory named on the command line, or
// "" when none was given.
func (a *app) setup(cmd *cobra.Command, root string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.flags.logLevel)); err != nil {
		return usagef("invalid --log-level %q", a.flags.logLevel)
	}
	logger := slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := a.loadConfig(root)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if root != "" {
		cfg.Root = root
	}
	if flags.Changed("format") {
		cfg.OutputFormat = a.flags.format
	}
	if flags.Changed("ignore") {
		cfg.Ignore = append(cfg.Ignore, a.flags.ignore...)
	}
	if flags.Changed("workers") {
		cfg.Workers = a.flags.workers
	}
	if flags.Changed("telemetry") {
		cfg.Telemetry.Exporter = a.flags.telemetry
	}
	if flags.Changed("metrics-textfile") {
		cfg.Telemetry.MetricsTextfile = a.flags.metricsTextfile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	tel, err := telemetry.Setup(cmd.Context(), telemetry.Options{
		Exporter:        cfg.Telemetry.Exporter,
		Endpoint:        cfg.Telemetry.Endpoint,
		Insecure:        cfg.Telemetry.Insecure,
		MetricsTextfile: cfg.Telemetry.MetricsTextfile,
		ServiceVersion:  version,
		Writer:          a.stderr,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	a.tel = tel
	a.logger = tel.Logger(logger).With(slog.String("command", cmd.Name()))
	a.logger.Debug("config loaded",
		slog.String("source", cfg.Source()),
		slog.String("root", cfg.Root),
		slog.String("format", cfg.OutputFormat),
	)
	return nil
}

func (a *app) loadConfig(root string) (*config.Config, error) {
	if a.flags.configPath != "" {
		if _, err := os.Stat(a.flags.configPath); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		return config.Load(a.flags.configPath)
	}
	if root == "" {
		root = "."
	}
	return config.Discover(root)
}

func (a *app) close(ctx context.Context) error {
	if a.tel == nil {
		return nil
	}
	return a.tel.Shutdown(ctx)
}

func (a *app) styler() *format.Styler {
	if a.style == nil {
		a.style = format.NewStyler(a.stderr, a.flags.noColor)
	}
	return a.style
}

// summary writes a human-readable summary to stderr unless --quiet is set.
func (a *app) summary(write func(io.Writer, *format.Styler) error) {
	if a.flags.quiet {
		return
	}
	if err := write(a.stderr, a.styler()); err != nil {
		a.logger.Debug("writing summary failed", slog.String("error", err.Error()))
	}
}

// writeOutput runs write against --output: stdout for "-", otherwise a
// created file that is flushed and closed afterwards.
func (a *app) writeOutput(write func(io.Writer) error) error {
	if a.flags.output == "" || a.flags.output == "-" {
		return write(a.stdout)
	}
	f, err := os.Create(a.flags.output)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	bw := bufio.NewWriter(f)
	err = write(bw)
	if flushErr := bw.Flush(); err == nil {
		err = flushErr
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}

// buildIndex collects and indexes the configured project root.
func (a *app) buildIndex(ctx context.Context) (*index.Index, error) {
	res, err := collect.Collect(ctx, a.cfg.Root,
		collect.WithIgnoreList(a.cfg.Ignore),
		collect.WithMaxFileBytes(a.cfg.MaxFileBytes),
		collect.WithWorkers(a.cfg.Workers),
		collect.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	a.summary(func(w io.Writer, s *format.Styler) error {
		return format.WriteCollectSummary(w, s, res)
	})
	return index.Build(ctx, res.Files,
		index.WithWorkers(a.cfg.Workers),
		index.WithLogger(a.logger),
		index.WithFileErrors(unreadable(res.Skipped)...),
	)
}

// unreadable turns files the collector could not read into index errors so
// reports count them as errored. Files over the size limit stay skipped.
func unreadable(skipped []collect.Skipped) []index.FileError {
	var errs []index.FileError
	for _, sk := range skipped {
		if sk.Reason == collect.SkipUnreadable {
			errs = append(errs, index.FileError{Path: sk.Path, Message: sk.Detail})
		}
	}
	return errs
}

// builder returns a graph builder configured from the config.
func (a *app) builder(extra ...graph.BuilderOption) *graph.Builder {
	opts := []graph.BuilderOption{
		graph.WithProjectRoot(a.cfg.Root),
		graph.WithMaxCallsPerFunction(a.cfg.MaxCallsPerFunction),
		graph.WithResolvedOnly(a.cfg.ResolvedOnly),
		graph.WithHubCount(a.cfg.HubCount),
		graph.WithLogger(a.logger),
		graph.WithProgressCallback(func(p graph.BuildProgress) {
			a.logger.Debug("build progress",
				slog.String("kind", string(p.Kind)),
				slog.String("phase", p.Phase.String()),
				slog.Int("nodes", p.Nodes),
				slog.Int("edges", p.Edges),
			)
		}),
	}
	if a.cfg.Workers > 0 {
		opts = append(opts, graph.WithWorkerCount(a.cfg.Workers))
	}
	return graph.NewBuilder(append(opts, extra...)...)
}
