package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exporter names accepted by NewProvider.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterZipkin = "zipkin"
)

// Config selects the span exporter.
type Config struct {
	// Exporter is one of "none", "stdout" or "zipkin". Empty means none.
	Exporter string

	// Endpoint is the zipkin collector URL,
	// e.g. "http://localhost:9411/api/v2/spans".
	Endpoint string

	// ServiceName is reported as service.name. Default "carwash".
	ServiceName string

	// Writer receives stdout spans. Default os.Stdout.
	Writer io.Writer
}

// NewProvider builds a TracerProvider for cfg and installs it globally.
// With the "none" exporter it returns nil and tracing stays a no-op.
func NewProvider(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)

	switch cfg.Exporter {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w))
	case ExporterZipkin:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("tracing: zipkin exporter requires an endpoint")
		}
		exporter, err = zipkin.New(cfg.Endpoint)
	default:
		return nil, fmt.Errorf("tracing: unknown exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("tracing: create %s exporter: %w", cfg.Exporter, err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "carwash"
	}
	res := resource.NewSchemaless(attribute.String("service.name", name))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}
