package tracing

import (
	"context"
	"os"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func TestInitNoEndpointYieldsNoop(t *testing.T) {
	os.Unsetenv("OTLP_ENDPOINT")
	ctx := context.Background()
	shutdown, err := Init(ctx, "test-version")
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer shutdown(ctx)

	ctx, span := StartSpan(ctx, "test-span")
	if span == nil {
		t.Fatal("StartSpan returned nil span")
	}
	span.SetAttributes(attribute.String("test", "value"))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "test")
	span.End()

	if ctxSpan := trace.SpanFromContext(ctx); ctxSpan == nil {
		t.Fatal("no span in context")
	}
}

func TestRecordErrorSetStatusAddEventSetAttributes(t *testing.T) {
	os.Unsetenv("OTLP_ENDPOINT")
	ctx := context.Background()
	shutdown, _ := Init(ctx, "test")
	defer shutdown(ctx)

	ctx, span := StartSpan(ctx, "test-operation")
	defer span.End()

	RecordError(ctx, &testError{msg: "boom"})
	SetStatus(ctx, codes.Error, "boom")
	AddEvent(ctx, "retrying")
	SetAttributes(ctx, attribute.String("attr1", "value1"), attribute.Int("attr2", 42))
}

func TestStartPipelineSpanTagsKnownIdentifiers(t *testing.T) {
	os.Unsetenv("OTLP_ENDPOINT")
	ctx := context.Background()
	shutdown, _ := Init(ctx, "test")
	defer shutdown(ctx)

	// No-op tracer spans don't expose attributes back out, so this only
	// asserts StartPipelineSpan doesn't panic with any combination of
	// empty/non-empty identifiers.
	_, span := StartPipelineSpan(ctx, "roadservice.generate_linear_map", "map-1", "")
	span.End()

	_, span = StartPipelineSpan(ctx, "asyncops.update_progress", "", "op-1")
	span.End()

	_, span = StartPipelineSpan(ctx, "bare", "", "")
	span.End()
}

func TestSampleRatio(t *testing.T) {
	oldVal, had := os.LookupEnv(envSampleRatio)
	defer func() {
		if had {
			os.Setenv(envSampleRatio, oldVal)
		} else {
			os.Unsetenv(envSampleRatio)
		}
	}()

	os.Unsetenv(envSampleRatio)
	if got := sampleRatio(); got != 1.0 {
		t.Fatalf("expected default ratio 1.0, got %f", got)
	}

	os.Setenv(envSampleRatio, "0.25")
	if got := sampleRatio(); got != 0.25 {
		t.Fatalf("expected parsed ratio 0.25, got %f", got)
	}

	os.Setenv(envSampleRatio, "not-a-number")
	if got := sampleRatio(); got != 1.0 {
		t.Fatalf("expected invalid ratio to fall back to 1.0, got %f", got)
	}

	os.Setenv(envSampleRatio, "1.5")
	if got := sampleRatio(); got != 1.0 {
		t.Fatalf("expected out-of-range ratio to fall back to 1.0, got %f", got)
	}
}

func TestEnvironmentDetection(t *testing.T) {
	oldEnv, had := os.LookupEnv("ENVIRONMENT")
	defer func() {
		if had {
			os.Setenv("ENVIRONMENT", oldEnv)
		} else {
			os.Unsetenv("ENVIRONMENT")
		}
	}()

	os.Unsetenv("ENVIRONMENT")
	if env := environment(); env != "development" {
		t.Errorf("environment() = %s, expected 'development'", env)
	}

	os.Setenv("ENVIRONMENT", "production")
	if env := environment(); env != "production" {
		t.Errorf("environment() = %s, expected 'production'", env)
	}
}

type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}
