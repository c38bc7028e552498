package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestTracedHandler_AddsTraceContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	logger := NewLogger(&buf, "info").With("component", "test")
	logger.InfoContext(ctx, "hello")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, span.SpanContext().TraceID().String(), rec["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), rec["span_id"])
	assert.Equal(t, true, rec["sampled"])
	assert.Equal(t, "test", rec["component"])
	assert.Equal(t, TraceID(ctx), rec["trace_id"])
}

func TestTracedHandler_NoSpan(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "debug").DebugContext(context.Background(), "plain")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.NotContains(t, rec, "trace_id")
	assert.Equal(t, "", TraceID(context.Background()))
}

func TestEndSpan_RecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	_, span := tp.Tracer("test").Start(context.Background(), "op")

	EndSpan(span, errors.New("boom"))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "boom", ended[0].Status().Description)
	assert.Len(t, ended[0].Events(), 1)
}

func TestAttributes(t *testing.T) {
	attrs := Attributes(map[string]interface{}{
		"s": "x",
		"i": 3,
		"f": 0.5,
		"b": true,
		"o": struct{}{},
	})

	got := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, kv := range attrs {
		got[kv.Key] = kv.Value
	}
	assert.Equal(t, "x", got["s"].AsString())
	assert.Equal(t, int64(3), got["i"].AsInt64())
	assert.Equal(t, 0.5, got["f"].AsFloat64())
	assert.True(t, got["b"].AsBool())
	assert.Equal(t, "{}", got["o"].AsString())
}

func TestInit_Disabled(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.NotNil(t, p.TracerProvider)
	assert.NotNil(t, p.MeterProvider)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewZapLogger(t *testing.T) {
	l, err := NewZapLogger("warn")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(-1))
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{ExportTimeout: time.Second}.withDefaults()
	assert.Equal(t, time.Second, cfg.ExportTimeout)
	assert.Equal(t, defaultBatchTimeout, cfg.BatchTimeout)
	assert.Equal(t, defaultMetricInterval, cfg.MetricInterval)
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "AlwaysOnSampler"},
		{1.5, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.25, "ParentBased{root:TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		assert.Contains(t, sampler(tt.rate).Description(), tt.want, "rate %v", tt.rate)
	}
}
