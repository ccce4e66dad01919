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
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// newRecordingTracer returns a tracer whose finished spans can be
// inspected through the recorder.
func newRecordingTracer(t *testing.T) (*tracetest.SpanRecorder, trace.Tracer) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() {
		require.NoError(t, tp.Shutdown(context.Background()))
	})

	return recorder, tp.Tracer("telemetry_test")
}

func TestStartSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "registry", "telemetry.TestOperation")
	defer span.End()

	require.NotNil(t, span)
	require.Equal(t, span.SpanContext(), trace.SpanFromContext(ctx).SpanContext())
}

func TestSpanFromContext(t *testing.T) {
	t.Run("returns the span attached to the context", func(t *testing.T) {
		_, tracer := newRecordingTracer(t)
		ctx, span := tracer.Start(context.Background(), "op")
		defer span.End()

		got := SpanFromContext(ctx)
		require.Equal(t, span.SpanContext(), got.SpanContext())
	})

	t.Run("returns a usable span without one in the context", func(t *testing.T) {
		got := SpanFromContext(context.Background())
		require.NotNil(t, got)
		require.False(t, got.SpanContext().IsValid())
	})
}

func TestRecordError(t *testing.T) {
	t.Run("sets error status and records an event", func(t *testing.T) {
		recorder, tracer := newRecordingTracer(t)
		_, span := tracer.Start(context.Background(), "op")

		RecordError(span, errors.New("badger unavailable"),
			attribute.String("operation", "resolve"))
		span.End()

		ended := recorder.Ended()
		require.Len(t, ended, 1)
		require.Equal(t, codes.Error, ended[0].Status().Code)
		require.Equal(t, "badger unavailable", ended[0].Status().Description)
		require.Len(t, ended[0].Events(), 1)
		require.Equal(t, "exception", ended[0].Events()[0].Name)
	})

	t.Run("nil error leaves the span untouched", func(t *testing.T) {
		recorder, tracer := newRecordingTracer(t)
		_, span := tracer.Start(context.Background(), "op")

		RecordError(span, nil)
		span.End()

		ended := recorder.Ended()
		require.Len(t, ended, 1)
		require.Equal(t, codes.Unset, ended[0].Status().Code)
		require.Empty(t, ended[0].Events())
	})

	t.Run("nil span does not panic", func(t *testing.T) {
		RecordError(nil, errors.New("boom"))
	})
}

func TestRecordErrorf(t *testing.T) {
	t.Run("formats the message into the status", func(t *testing.T) {
		recorder, tracer := newRecordingTracer(t)
		_, span := tracer.Start(context.Background(), "op")

		RecordErrorf(span, "resolve %s: %v", "NPPF", errors.New("gap"))
		span.End()

		ended := recorder.Ended()
		require.Len(t, ended, 1)
		require.Equal(t, codes.Error, ended[0].Status().Code)
		require.Equal(t, "resolve NPPF: gap", ended[0].Status().Description)
	})

	t.Run("nil span does not panic", func(t *testing.T) {
		RecordErrorf(nil, "boom %d", 1)
	})
}

func TestSetSpanOK(t *testing.T) {
	t.Run("marks the span ok", func(t *testing.T) {
		recorder, tracer := newRecordingTracer(t)
		_, span := tracer.Start(context.Background(), "op")

		SetSpanOK(span)
		span.End()

		ended := recorder.Ended()
		require.Len(t, ended, 1)
		require.Equal(t, codes.Ok, ended[0].Status().Code)
	})

	t.Run("nil span does not panic", func(t *testing.T) {
		SetSpanOK(nil)
	})
}

func TestAddSpanEvent(t *testing.T) {
	t.Run("records the event with attributes", func(t *testing.T) {
		recorder, tracer := newRecordingTracer(t)
		_, span := tracer.Start(context.Background(), "op")

		AddSpanEvent(span, "cache_miss", attribute.String("key", "NPPF"))
		span.End()

		ended := recorder.Ended()
		require.Len(t, ended, 1)
		require.Len(t, ended[0].Events(), 1)
		require.Equal(t, "cache_miss", ended[0].Events()[0].Name)
		require.Contains(t, ended[0].Events()[0].Attributes,
			attribute.String("key", "NPPF"))
	})

	t.Run("nil span does not panic", func(t *testing.T) {
		AddSpanEvent(nil, "noop")
	})
}

func TestSetSpanAttributes(t *testing.T) {
	t.Run("sets attributes on the span", func(t *testing.T) {
		recorder, tracer := newRecordingTracer(t)
		_, span := tracer.Start(context.Background(), "op")

		SetSpanAttributes(span,
			attribute.Int("result_count", 12),
			attribute.String("source", "LTN_1_20"),
		)
		span.End()

		ended := recorder.Ended()
		require.Len(t, ended, 1)
		require.Contains(t, ended[0].Attributes(), attribute.Int("result_count", 12))
		require.Contains(t, ended[0].Attributes(), attribute.String("source", "LTN_1_20"))
	})

	t.Run("nil span does not panic", func(t *testing.T) {
		SetSpanAttributes(nil, attribute.Bool("ignored", true))
	})
}

func TestTraceID(t *testing.T) {
	t.Run("returns the hex trace id", func(t *testing.T) {
		_, tracer := newRecordingTracer(t)
		ctx, span := tracer.Start(context.Background(), "op")
		defer span.End()

		id := TraceID(ctx)
		require.Len(t, id, 32)
		require.Equal(t, span.SpanContext().TraceID().String(), id)
	})

	t.Run("empty without a span", func(t *testing.T) {
		require.Empty(t, TraceID(context.Background()))
	})
}

func TestSpanID(t *testing.T) {
	t.Run("returns the hex span id", func(t *testing.T) {
		_, tracer := newRecordingTracer(t)
		ctx, span := tracer.Start(context.Background(), "op")
		defer span.End()

		id := SpanID(ctx)
		require.Len(t, id, 16)
		require.Equal(t, span.SpanContext().SpanID().String(), id)
	})

	t.Run("empty without a span", func(t *testing.T) {
		require.Empty(t, SpanID(context.Background()))
	})
}

func TestHasActiveSpan(t *testing.T) {
	_, tracer := newRecordingTracer(t)

	t.Run("false without a span", func(t *testing.T) {
		require.False(t, HasActiveSpan(context.Background()))
	})

	t.Run("true while recording", func(t *testing.T) {
		ctx, span := tracer.Start(context.Background(), "op")
		defer span.End()

		require.True(t, HasActiveSpan(ctx))
	})

	t.Run("false after the span ends", func(t *testing.T) {
		ctx, span := tracer.Start(context.Background(), "op")
		span.End()

		require.False(t, HasActiveSpan(ctx))
	})
}
