package observability

import (
	"bytes"
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitOTel_Disabled(t *testing.T) {
	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, NewLogger(InfoLevel, &bytes.Buffer{}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if providers != nil {
		t.Error("Expected nil providers when disabled")
	}
	if err := ShutdownOTel(context.Background(), nil, NewLogger(InfoLevel, &bytes.Buffer{})); err != nil {
		t.Errorf("ShutdownOTel(nil) returned %v", err)
	}
}

func TestInitOTel_RequiresEndpoint(t *testing.T) {
	_, err := InitOTel(context.Background(), OTelConfig{Enabled: true}, NewLogger(InfoLevel, &bytes.Buffer{}))
	if err == nil {
		t.Error("Expected error without endpoint")
	}
}

func TestSampler(t *testing.T) {
	if got := sampler(0).Description(); got != sdktrace.ParentBased(sdktrace.AlwaysSample()).Description() {
		t.Errorf("Unexpected default sampler %s", got)
	}
	if got := sampler(0.25).Description(); got != sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description() {
		t.Errorf("Unexpected ratio sampler %s", got)
	}
}

func TestUpdateLoggerWithTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	if got := UpdateLoggerWithTraceContext(context.Background(), logger); got != logger {
		t.Error("Expected the same logger without a span")
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(tracetest.NewSpanRecorder()))
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	UpdateLoggerWithTraceContext(ctx, logger).Info("traced")
	if !bytes.Contains(buf.Bytes(), []byte(span.SpanContext().TraceID().String())) {
		t.Errorf("Expected trace id in %s", buf.String())
	}
}
