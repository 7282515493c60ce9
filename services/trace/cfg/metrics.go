// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cfg

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("tracemap.cfg")
	meter  = otel.Meter("tracemap.cfg")
)

var (
	buildTotal       metric.Int64Counter
	graphNodes       metric.Int64Histogram
	unreachableTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildTotal, err = meter.Int64Counter(
			"cfg_build_total",
			metric.WithDescription("Total number of CFG builds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		graphNodes, err = meter.Int64Histogram(
			"cfg_nodes",
			metric.WithDescription("Number of nodes per CFG"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		unreachableTotal, err = meter.Int64Counter(
			"cfg_unreachable_nodes_total",
			metric.WithDescription("Unreachable nodes found"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordBuildMetrics(ctx context.Context, g *Graph, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	buildTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
	if g != nil {
		attrs := metric.WithAttributes(attribute.String("language", string(g.Language)))
		graphNodes.Record(ctx, int64(len(g.Nodes)), attrs)
		unreachableTotal.Add(ctx, int64(len(g.Unreachable)), attrs)
	}
}

func startBuildSpan(ctx context.Context, file, function string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "cfg.Build",
		trace.WithAttributes(
			attribute.String("cfg.file", file),
			attribute.String("cfg.function", function),
		),
	)
}

func setBuildSpanResult(span trace.Span, g *Graph, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int("cfg.node_count", len(g.Nodes)),
		attribute.Int("cfg.edge_count", len(g.Edges)),
		attribute.Int("cfg.unreachable_count", len(g.Unreachable)),
		attribute.Int("cfg.warning_count", len(g.Warnings)),
	)
}
