// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// resetGlobals restores no-op providers after a test installs real ones.
func resetGlobals(t *testing.T) {
	t.Cleanup(func() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
	})
}

func TestSetup_None(t *testing.T) {
	tel, err := Setup(context.Background(), Options{})
	require.NoError(t, err)

	_, err = uuid.Parse(tel.RunID())
	assert.NoError(t, err)
	assert.Empty(t, tel.shutdown)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestSetup_UnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), Options{Exporter: "zipkin"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestSetup_Stdout(t *testing.T) {
	resetGlobals(t)
	var buf bytes.Buffer
	ctx := context.Background()

	tel, err := Setup(ctx, Options{Exporter: ExporterStdout, Writer: &buf, ServiceVersion: "test"})
	require.NoError(t, err)

	_, span := otel.Tracer("tracemap.test").Start(ctx, "telemetry.test_span")
	span.End()
	require.NoError(t, tel.Shutdown(ctx))

	assert.Contains(t, buf.String(), "telemetry.test_span")
	assert.Contains(t, buf.String(), tel.RunID())
}

func TestSetup_MetricsTextfile(t *testing.T) {
	resetGlobals(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tracemap.prom")

	tel, err := Setup(ctx, Options{MetricsTextfile: path})
	require.NoError(t, err)

	counter, err := otel.Meter("tracemap.test").Int64Counter("tracemap_test_runs_total")
	require.NoError(t, err)
	counter.Add(ctx, 2)
	require.NoError(t, tel.Shutdown(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tracemap_test_runs_total")
}

func TestSetup_MetricsTextfileUnwritable(t *testing.T) {
	resetGlobals(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "missing", "dir", "tracemap.prom")

	tel, err := Setup(ctx, Options{MetricsTextfile: path})
	require.NoError(t, err)
	assert.Error(t, tel.Shutdown(ctx))
}

func TestLogger(t *testing.T) {
	tel, err := Setup(context.Background(), Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	tel.Logger(slog.New(slog.NewTextHandler(&buf, nil))).Info("hello")
	assert.Contains(t, buf.String(), "run_id="+tel.RunID())
}
