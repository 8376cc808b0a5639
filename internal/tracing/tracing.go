// Package tracing provides OpenTelemetry tracing for the MapaLinear pipeline.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// ServiceName identifies this service in traces.
	ServiceName = "mapalinear"
	// TracerName is the instrumentation scope name.
	TracerName = "github.com/remintz/mapalinear"
	// envSampleRatio names the env var controlling the fraction of root
	// spans sampled once tracing is enabled; unset keeps every span.
	envSampleRatio = "OTLP_SAMPLE_RATIO"
)

// Tracer is the global tracer instance. It defaults to a no-op tracer until
// Init is called with a configured OTLP endpoint.
var Tracer trace.Tracer = noop.NewTracerProvider().Tracer(TracerName)

// Init initializes OpenTelemetry tracing with an OTLP/gRPC exporter. If
// OTLP_ENDPOINT is unset, tracing stays a no-op — matching the teacher's
// opt-in behavior so local/dev runs never need a collector. The sampled
// fraction of root spans is controlled by OTLP_SAMPLE_RATIO (0.0-1.0,
// default 1.0), since MapaLinear's per-POI junction spans are far higher
// volume than the teacher's per-tool-call spans and a production deployment
// will usually want less than 100% sampling.
func Init(ctx context.Context, version string) (shutdown func(context.Context) error, err error) {
	endpoint := os.Getenv("OTLP_ENDPOINT")
	if endpoint == "" {
		Tracer = noop.NewTracerProvider().Tracer(TracerName)
		return func(context.Context) error { return nil }, nil
	}

	client := otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)

	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(version),
			attribute.String("service.environment", environment()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio()))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	Tracer = tp.Tracer(TracerName)

	return func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(shutdownCtx)
	}, nil
}

func environment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}

func sampleRatio() float64 {
	raw := os.Getenv(envSampleRatio)
	if raw == "" {
		return 1.0
	}
	ratio, err := strconv.ParseFloat(raw, 64)
	if err != nil || ratio < 0 || ratio > 1 {
		return 1.0
	}
	return ratio
}

// StartPipelineSpan starts a span for one map-generation request and tags it
// with the map/operation identifiers that thread through every later span
// (segment search, junction calculation, persistence), so a trace backend
// can group an entire run by AttrMapID without relying on span parenting
// alone. mapID or operationID may be empty when not yet known.
func StartPipelineSpan(ctx context.Context, name, mapID, operationID string) (context.Context, trace.Span) {
	ctx, span := Tracer.Start(ctx, name)
	var attrs []attribute.KeyValue
	if mapID != "" {
		attrs = append(attrs, attribute.String(AttrMapID, mapID))
	}
	if operationID != "" {
		attrs = append(attrs, attribute.String(AttrOperationID, operationID))
	}
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// StartSpan starts a new span under Tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer.Start(ctx, name, opts...)
}

// RecordError records err on the span carried by ctx, if any.
func RecordError(ctx context.Context, err error, opts ...trace.EventOption) {
	span := trace.SpanFromContext(ctx)
	if span != nil && span.IsRecording() {
		span.RecordError(err, opts...)
	}
}

// SetStatus sets the span status carried by ctx, if any.
func SetStatus(ctx context.Context, code codes.Code, description string) {
	span := trace.SpanFromContext(ctx)
	if span != nil && span.IsRecording() {
		span.SetStatus(code, description)
	}
}

// AddEvent adds a named event to the span carried by ctx, if any.
func AddEvent(ctx context.Context, name string, opts ...trace.EventOption) {
	span := trace.SpanFromContext(ctx)
	if span != nil && span.IsRecording() {
		span.AddEvent(name, opts...)
	}
}

// SetAttributes sets attributes on the span carried by ctx, if any.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span != nil && span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}
