// Package tracing installs the OpenTelemetry tracer provider used by the
// scheduler's dispatch spans.
package tracing

import (
	"context"
	"errors"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ShutdownFunc flushes pending spans and releases the output file.
type ShutdownFunc func(context.Context) error

// Init configures OpenTelemetry with the stdout exporter. Spans are
// written as JSON to outputFile, or to stdout when outputFile is "-".
// An empty outputFile leaves the no-op global provider in place.
func Init(serviceName, serviceVersion, outputFile string) (ShutdownFunc, error) {
	if outputFile == "" {
		return func(context.Context) error { return nil }, nil
	}

	var w io.Writer = os.Stdout
	var f *os.File
	if outputFile != "-" {
		var err error
		f, err = os.Create(outputFile)
		if err != nil {
			return nil, err
		}
		w = f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		closeFile(f)
		return nil, err
	}
	shutdown, err := InitWithExporter(serviceName, serviceVersion, exporter)
	if err != nil {
		closeFile(f)
		return nil, err
	}
	return func(ctx context.Context) error {
		err := shutdown(ctx)
		if f != nil {
			err = errors.Join(err, f.Close())
		}
		return err
	}, nil
}

// InitWithExporter registers exporter behind the global tracer provider.
func InitWithExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) (ShutdownFunc, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func closeFile(f *os.File) {
	if f != nil {
		f.Close()
	}
}
