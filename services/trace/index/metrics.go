// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

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

// Package-level tracer and meter for indexing.
var (
	tracer = otel.Tracer("tracemap.index")
	meter  = otel.Meter("tracemap.index")
)

var (
	indexLatency metric.Float64Histogram
	indexTotal   metric.Int64Counter
	filesIndexed metric.Int64Counter
	filesErrored metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		indexLatency, err = meter.Float64Histogram(
			"index_build_duration_seconds",
			metric.WithDescription("Duration of index builds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		indexTotal, err = meter.Int64Counter(
			"index_build_total",
			metric.WithDescription("Total number of index builds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		filesIndexed, err = meter.Int64Counter(
			"index_files_scanned_total",
			metric.WithDescription("Files successfully scanned"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		filesErrored, err = meter.Int64Counter(
			"index_files_errored_total",
			metric.WithDescription("Files excluded because of a file error"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordBuildMetrics(ctx context.Context, duration time.Duration, scanned, errored int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))
	indexLatency.Record(ctx, duration.Seconds(), attrs)
	indexTotal.Add(ctx, 1, attrs)

	if success {
		filesIndexed.Add(ctx, int64(scanned))
		filesErrored.Add(ctx, int64(errored))
	}
}

func startBuildSpan(ctx context.Context, fileCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Index.Build",
		trace.WithAttributes(
			attribute.Int("index.file_count", fileCount),
		),
	)
}

func setBuildSpanResult(span trace.Span, symbolCount, errorCount int, err error) {
	span.SetAttributes(
		attribute.Int("index.symbol_count", symbolCount),
		attribute.Int("index.error_count", errorCount),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
