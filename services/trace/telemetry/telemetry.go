// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


// Package telemetry installs the OpenTelemetry providers for one run.
//
// Every instrumented package obtains its tracer and meter from the global
// otel providers, so spans and metrics recorded before Setup are dropped
// and those recorded after it reach the selected exporters.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exporter names.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// ErrUnknownExporter is returned for an exporter name Setup does not know.
var ErrUnknownExporter = errors.New("unknown telemetry exporter")

// Options configures Setup.
type Options struct {
	// Exporter is none, stdout or otlp.
	// Default: none
	Exporter string

	// Endpoint is the OTLP/gRPC collector address. Empty uses the
	// OTEL_EXPORTER_OTLP_ENDPOINT environment default.
	Endpoint string

	// Insecure disables TLS towards the collector.
	Insecure bool

	// MetricsTextfile receives the run's metrics in Prometheus text format
	// at Shutdown. Empty disables the export.
	MetricsTextfile string

	// ServiceName is recorded on the resource.
	// Default: "tracemap"
	ServiceName string

	// ServiceVersion is recorded on the resource.
	ServiceVersion string

	// Writer receives stdout exporter output.
	// Default: os.Stderr
	Writer io.Writer

	// Logger receives setup and shutdown messages.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Telemetry holds the providers installed by Setup.
//
// Thread Safety: Shutdown must be called once; RunID is safe for
// concurrent use.
type Telemetry struct {
	runID    string
	textfile string
	registry *prometheus.Registry
	logger   *slog.Logger
	shutdown []func(context.Context) error
}

// RunID returns the unique identifier of this run.
func (t *Telemetry) RunID() string {
	return t.runID
}

// Logger returns base tagged with the run ID.
func (t *Telemetry) Logger(base *slog.Logger) *slog.Logger {
	return base.With(slog.String("run_id", t.runID))
}

// Setup installs global tracer and meter providers.
//
// Description:
//
//	With the none exporter and no metrics text file, no provider is
//	installed and instrumentation stays a no-op. The stdout exporter
//	writes spans and metrics to Options.Writer; otlp sends spans to an
//	OTLP/gRPC collector. A metrics text file adds a Prometheus reader
//	whose registry is written out at Shutdown. Every resource carries a
//	fresh run ID.
//
// Inputs:
//
//	ctx - Context for exporter construction.
//	opts - Exporter selection.
//
// Outputs:
//
//	*Telemetry - Call Shutdown before exiting to flush exporters.
//	error - ErrUnknownExporter or an exporter construction error.
func Setup(ctx context.Context, opts Options) (*Telemetry, error) {
	if opts.Exporter == "" {
		opts.Exporter = ExporterNone
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "tracemap"
	}
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	switch opts.Exporter {
	case ExporterNone, ExporterStdout, ExporterOTLP:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, opts.Exporter)
	}

	t := &Telemetry{runID: uuid.NewString(), textfile: opts.MetricsTextfile, logger: opts.Logger}
	res := resource.NewWithAttributes("",
		attribute.String("service.name", opts.ServiceName),
		attribute.String("service.version", opts.ServiceVersion),
		attribute.String("tracemap.run_id", t.runID),
	)

	if opts.Exporter != ExporterNone {
		tp, err := newTracerProvider(ctx, opts, res)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		otel.SetTracerProvider(tp)
		t.shutdown = append(t.shutdown, tp.Shutdown)
	}

	mp, err := t.newMeterProvider(opts, res)
	if err != nil {
		_ = t.Shutdown(ctx)
		return nil, fmt.Errorf("init meter: %w", err)
	}
	if mp != nil {
		otel.SetMeterProvider(mp)
		t.shutdown = append(t.shutdown, mp.Shutdown)
	}

	opts.Logger.Debug("telemetry initialized",
		slog.String("run_id", t.runID),
		slog.String("exporter", opts.Exporter),
		slog.Bool("metrics_textfile", opts.MetricsTextfile != ""),
	)
	return t, nil
}

func newTracerProvider(ctx context.Context, opts Options, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	var err error
	switch opts.Exporter {
	case ExporterOTLP:
		var grpcOpts []otlptracegrpc.Option
		if opts.Endpoint != "" {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithEndpoint(opts.Endpoint))
		}
		if opts.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, grpcOpts...)
	case ExporterStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(opts.Writer), stdouttrace.WithPrettyPrint())
	}
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	), nil
}

// newMeterProvider returns nil when no reader is wanted.
func (t *Telemetry) newMeterProvider(opts Options, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	var readers []sdkmetric.Option
	if opts.Exporter == ExporterStdout {
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(opts.Writer), stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		readers = append(readers, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
	}
	if opts.MetricsTextfile != "" {
		t.registry = prometheus.NewRegistry()
		exporter, err := promexporter.New(promexporter.WithRegisterer(t.registry))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		readers = append(readers, sdkmetric.WithReader(exporter))
	}
	if len(readers) == 0 {
		return nil, nil
	}
	return sdkmetric.NewMeterProvider(append(readers, sdkmetric.WithResource(res))...), nil
}

// Shutdown writes the metrics text file, then flushes and stops every
// provider. All steps run; their errors are joined.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.registry != nil {
		if err := prometheus.WriteToTextfile(t.textfile, t.registry); err != nil {
			errs = append(errs, fmt.Errorf("writing metrics to %s: %w", t.textfile, err))
		} else {
			t.logger.Debug("metrics written", slog.String("path", t.textfile))
		}
	}
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	t.shutdown = nil
	t.registry = nil
	return errors.Join(errs...)
}
