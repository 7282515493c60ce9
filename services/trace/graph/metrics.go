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
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for graph operations.
var (
	tracer = otel.Tracer("tracemap.graph")
	meter  = otel.Meter("tracemap.graph")
)

// Metrics for graph building and diffing.
var (
	buildLatency   metric.Float64Histogram
	buildTotal     metric.Int64Counter
	nodesCreated   metric.Int64Histogram
	edgesCreated   metric.Int64Histogram
	edgesResolved  metric.Int64Counter
	edgesUnresolve metric.Int64Counter
	diffTotal      metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"graph_build_duration_seconds",
			metric.WithDescription("Duration of graph build operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildTotal, err = meter.Int64Counter(
			"graph_build_total",
			metric.WithDescription("Total number of graph build operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesCreated, err = meter.Int64Histogram(
			"graph_nodes_created",
			metric.WithDescription("Number of nodes created per build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesCreated, err = meter.Int64Histogram(
			"graph_edges_created",
			metric.WithDescription("Number of edges emitted per build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesResolved, err = meter.Int64Counter(
			"graph_edges_resolved_total",
			metric.WithDescription("References resolved to exactly one target"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesUnresolve, err = meter.Int64Counter(
			"graph_edges_unresolved_total",
			metric.WithDescription("References left unresolved"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		diffTotal, err = meter.Int64Counter(
			"graph_diff_total",
			metric.WithDescription("Total number of report diffs"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records metrics for a build operation.
func recordBuildMetrics(ctx context.Context, kind Kind, duration time.Duration, stats Stats, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.Bool("success", success),
	)
	buildLatency.Record(ctx, duration.Seconds(), attrs)
	buildTotal.Add(ctx, 1, attrs)

	if success {
		kindAttr := metric.WithAttributes(attribute.String("kind", string(kind)))
		nodesCreated.Record(ctx, int64(stats.NodeCount), kindAttr)
		edgesCreated.Record(ctx, int64(stats.EdgeCount), kindAttr)
		edgesResolved.Add(ctx, int64(stats.ResolvedEdges), kindAttr)
		edgesUnresolve.Add(ctx, int64(stats.UnresolvedEdges), kindAttr)
	}
}

// recordDiffMetrics records one diff.
func recordDiffMetrics(ctx context.Context, kind Kind, removed int) {
	if err := initMetrics(); err != nil {
		return
	}
	diffTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.Bool("removals", removed > 0),
	))
}

// startBuildSpan creates a span for a build operation.
func startBuildSpan(ctx context.Context, kind Kind, fileCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Builder.Build",
		trace.WithAttributes(
			attribute.String("graph.kind", string(kind)),
			attribute.Int("graph.file_count", fileCount),
		),
	)
}

// setBuildSpanResult sets the result attributes on a build span.
func setBuildSpanResult(span trace.Span, report *Report, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int("graph.node_count", report.Stats.NodeCount),
		attribute.Int("graph.edge_count", report.Stats.EdgeCount),
		attribute.Int("graph.resolved_edges", report.Stats.ResolvedEdges),
		attribute.Int("graph.file_errors", report.Stats.FilesErrored),
	)
}

// startDiffSpan creates a span for a diff operation.
func startDiffSpan(ctx context.Context, kind Kind) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Diff",
		trace.WithAttributes(attribute.String("graph.kind", string(kind))),
	)
}
