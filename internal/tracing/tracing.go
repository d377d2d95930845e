// Package tracing initializes OpenTelemetry for genbridge.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Iron-Ham/genbridge/internal/config"
)

// Runtime holds the tracer and the hook that flushes it on exit.
type Runtime struct {
	Tracer   oteltrace.Tracer
	Shutdown func(context.Context) error
}

// Noop returns a Runtime whose spans are discarded.
func Noop() Runtime {
	return Runtime{
		Tracer:   noop.NewTracerProvider().Tracer("genbridge"),
		Shutdown: func(context.Context) error { return nil },
	}
}

// Setup initializes tracing from cfg. When tracing is disabled it returns
// Noop. The stdout exporter writes to os.Stdout.
func Setup(ctx context.Context, cfg config.TracingConfig) (Runtime, error) {
	return setup(ctx, cfg, os.Stdout)
}

func setup(ctx context.Context, cfg config.TracingConfig, stdout io.Writer) (Runtime, error) {
	if !cfg.Enabled {
		return Noop(), nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "genbridge"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
		),
	)
	if err != nil {
		return Runtime{}, fmt.Errorf("otel resource: %w", err)
	}

	var exp sdktrace.SpanExporter
	switch cfg.Exporter {
	case "otlp":
		exp, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return Runtime{}, fmt.Errorf("otel otlp exporter: %w", err)
		}
	case "stdout", "":
		exp, err = stdouttrace.New(stdouttrace.WithWriter(stdout))
		if err != nil {
			return Runtime{}, fmt.Errorf("otel stdout exporter: %w", err)
		}
	default:
		return Runtime{}, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)

	return Runtime{
		Tracer:   tp.Tracer(serviceName),
		Shutdown: tp.Shutdown,
	}, nil
}
