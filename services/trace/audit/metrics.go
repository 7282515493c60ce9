// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package audit

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
	tracer = otel.Tracer("tracemap.audit")
	meter  = otel.Meter("tracemap.audit")
)

var (
	detectTotal   metric.Int64Counter
	findingsTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		detectTotal, err = meter.Int64Counter(
			"audit_detect_total",
			metric.WithDescription("Total number of audit runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		findingsTotal, err = meter.Int64Counter(
			"audit_findings_total",
			metric.WithDescription("Findings produced, by category"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordDetectMetrics(ctx context.Context, f *Findings, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	detectTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
	if f == nil {
		return
	}
	for _, c := range AllCategories {
		if n := f.Counts[c]; n > 0 {
			findingsTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String("category", string(c))))
		}
	}
}

func startDetectSpan(ctx context.Context, categories []Category) (context.Context, trace.Span) {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	return tracer.Start(ctx, "audit.Detect",
		trace.WithAttributes(attribute.StringSlice("audit.categories", names)),
	)
}

func setDetectSpanResult(span trace.Span, f *Findings, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(attribute.Int("audit.finding_count", len(f.Findings)))
}
