// Package apm bootstraps the OpenTelemetry trace provider.
package apm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Provider selects the span exporter backend.
type Provider string

const (
	OTLPProvider    Provider = "OTLP_PROVIDER"
	ConsoleProvider Provider = "CONSOLE_PROVIDER"
	EmptyProvider   Provider = "EMPTY_PROVIDER"
)

// TraceProvider owns the SDK trace provider lifecycle.
type TraceProvider interface {
	Stop() error
}

type traceProvider struct {
	tp *sdktrace.TracerProvider
}

// Options holds trace provider configuration.
type Options struct {
	Provider    Provider
	ServiceName string
	Endpoint    string
}

// NewTraceProvider installs a global trace provider for the given backend.
// EmptyProvider (or an unknown provider) installs nothing and returns a
// no-op handle.
func NewTraceProvider(opts Options) TraceProvider {
	var exporter sdktrace.SpanExporter
	var err error

	switch opts.Provider {
	case OTLPProvider:
		exporter, err = otlptracehttp.New(
			context.Background(),
			otlptracehttp.WithEndpointURL(opts.Endpoint),
		)
	case ConsoleProvider:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return &traceProvider{}
	}
	if err != nil {
		panic(err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(opts.ServiceName),
		),
	)
	if err != nil {
		panic(err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &traceProvider{tp: tp}
}

// Stop flushes and shuts down the provider.
func (p *traceProvider) Stop() error {
	if p.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return p.tp.Shutdown(ctx)
}
