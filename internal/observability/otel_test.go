package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tbourn/doktorai-backend/internal/config"
)

func keepGlobals(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func enabled(insecure bool) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    insecure,
		Endpoint:    "localhost:4317",
		ServiceName: "doktorai-test",
		SampleRatio: 1,
	}
}

func TestSetupTracing_Disabled(t *testing.T) {
	keepGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := SetupTracing(context.Background(), config.OTELConfig{}, "v0")
	if err != nil || shutdown == nil {
		t.Fatalf("got (%v, %v)", shutdown, err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("disabled tracing must not replace the provider")
	}
}

func TestSetupTracing_InstallsProvider(t *testing.T) {
	for _, insecure := range []bool{true, false} {
		keepGlobals(t)
		shutdown, err := SetupTracing(context.Background(), enabled(insecure), "v1.0.0")
		if err != nil {
			t.Fatalf("insecure=%v: %v", insecure, err)
		}
		if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
			t.Fatalf("insecure=%v: expected sdk tracer provider", insecure)
		}
		_, span := otel.Tracer("test").Start(context.Background(), "span")
		span.End()
		_ = shutdown(context.Background())
	}
}

func TestSetupTracing_FailuresKeepGlobals(t *testing.T) {
	keepGlobals(t)
	origExp, origRes := newExporter, newResource
	t.Cleanup(func() { newExporter, newResource = origExp, origRes })

	before := otel.GetTracerProvider()

	newExporter = func(context.Context, ...otlptracegrpc.Option) (*otlptrace.Exporter, error) {
		return nil, errors.New("exporter down")
	}
	if _, err := SetupTracing(context.Background(), enabled(true), "v0"); err == nil {
		t.Fatalf("expected exporter error")
	}

	newExporter = origExp
	newResource = func(context.Context, string, string) (*resource.Resource, error) {
		return nil, errors.New("bad resource")
	}
	if _, err := SetupTracing(context.Background(), enabled(true), "v0"); err == nil {
		t.Fatalf("expected resource error")
	}

	if otel.GetTracerProvider() != before {
		t.Fatalf("failed setup must not replace the provider")
	}
}

func TestExporterOptions(t *testing.T) {
	if n := len(exporterOptions(enabled(true))); n != 2 {
		t.Fatalf("insecure options = %d", n)
	}
	if n := len(exporterOptions(enabled(false))); n != 2 {
		t.Fatalf("tls options = %d", n)
	}
}
