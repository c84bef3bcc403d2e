package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewTracer_Disabled(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(context.Background(), TracerConfig{ServiceName: "opgw"})
	require.NoError(t, err)

	_, span := tracer.StartSpan(context.Background(), "invoke")
	assert.False(t, span.IsRecording())
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestNewTracer_RecordsSpans(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tracer, err := NewTracer(context.Background(),
		TracerConfig{Enabled: true, ServiceName: "opgw", SamplingRate: 1.0},
		WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })

	ctx, parent := tracer.StartSpan(context.Background(), "gateway.Invoke")
	_, child := tracer.StartSpan(ctx, "cache.Get")
	RecordError(child, errors.New("boom"), attribute.String("operation", "listUsers"))
	child.End()
	parent.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "cache.Get", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
}

func TestNewTracer_ZeroSamplingRate(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tracer, err := NewTracer(context.Background(),
		TracerConfig{Enabled: true, ServiceName: "opgw"},
		WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))
	require.NoError(t, err)

	_, span := tracer.StartSpan(context.Background(), "invoke")
	span.End()

	assert.Empty(t, exporter.GetSpans())
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestCreateSampler(t *testing.T) {
	t.Parallel()

	assert.Equal(t, sdktrace.AlwaysSample().Description(), createSampler(1.0).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), createSampler(0).Description())
	assert.Contains(t, createSampler(0.5).Description(), "TraceIDRatioBased")
}

func TestRecordError_Nil(t *testing.T) {
	t.Parallel()

	_, span := NopTracer().StartSpan(context.Background(), "noop")
	assert.NotPanics(t, func() { RecordError(span, nil) })
	span.End()
}

func TestTracer_NilSafe(t *testing.T) {
	t.Parallel()

	var tracer *Tracer
	_, span := tracer.StartSpan(context.Background(), "nil")
	assert.False(t, span.IsRecording())
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
	assert.IsType(t, propagation.TraceContext{}, tracer.Propagator())
}
