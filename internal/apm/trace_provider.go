// Package apm configures the OpenTelemetry trace pipeline.
package apm

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/fd1az/socialpay-sync/internal/logger"
)

type Provider string

const (
	OTLPGRPCProvider Provider = "otlp"
	OTLPHTTPProvider Provider = "otlp-http"
	ZipkinProvider   Provider = "zipkin"
	ConsoleProvider  Provider = "console"
	EmptyProvider    Provider = "empty"
)

// ParseProvider maps a config value to a Provider, defaulting to EmptyProvider.
func ParseProvider(s string) Provider {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case OTLPGRPCProvider, OTLPHTTPProvider, ZipkinProvider, ConsoleProvider:
		return p
	default:
		return EmptyProvider
	}
}

type TraceProvider interface {
	Stop() error
}

type emptyTraceProvider struct{}

func (emptyTraceProvider) Stop() error { return nil }

type traceProvider struct {
	tp *sdktrace.TracerProvider
}

type TracerOptions struct {
	exporter     sdktrace.SpanExporter
	providerName string
	serviceName  string
	useEmpty     bool
}

type TracerOption func(*TracerOptions)

// WithServiceName sets the service.name resource attribute.
func WithServiceName(name string) TracerOption {
	return func(o *TracerOptions) {
		o.serviceName = name
	}
}

// WithProvider selects the span exporter. Unknown providers fall back to a no-op pipeline.
func WithProvider(provider Provider, endpoint string, log logger.LoggerInterface) TracerOption {
	switch provider {
	case OTLPGRPCProvider:
		return useOTLPGRPC(endpoint, log)
	case OTLPHTTPProvider:
		return useOTLPHTTP(endpoint, log)
	case ZipkinProvider:
		return useZipkin(endpoint, log)
	case ConsoleProvider:
		return useConsole(log)
	}

	log.Warn(context.Background(), "trace provider not configured, tracing disabled", "provider", string(provider))
	return useEmpty()
}

func useEmpty() TracerOption {
	return func(o *TracerOptions) {
		o.useEmpty = true
		o.providerName = string(EmptyProvider)
	}
}

func useConsole(log logger.LoggerInterface) TracerOption {
	return func(o *TracerOptions) {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			log.Error(context.Background(), "stdout exporter init failed", "error", err)
			panic(err)
		}
		o.exporter = exp
		o.providerName = string(ConsoleProvider)
	}
}

func useZipkin(endpoint string, log logger.LoggerInterface) TracerOption {
	return func(o *TracerOptions) {
		exp, err := zipkin.New(endpoint)
		if err != nil {
			log.Error(context.Background(), "zipkin exporter init failed", "error", err)
			panic(err)
		}
		o.exporter = exp
		o.providerName = string(ZipkinProvider)
	}
}

func useOTLPGRPC(endpoint string, log logger.LoggerInterface) TracerOption {
	return func(o *TracerOptions) {
		log.Info(context.Background(), "initializing OTLP gRPC trace exporter", "endpoint", endpoint)
		exp, err := otlptracegrpc.New(context.Background(), otlptracegrpc.WithEndpointURL(endpoint))
		if err != nil {
			log.Error(context.Background(), "otlp grpc exporter init failed", "error", err)
			panic(err)
		}
		o.exporter = exp
		o.providerName = string(OTLPGRPCProvider)
	}
}

func useOTLPHTTP(endpoint string, log logger.LoggerInterface) TracerOption {
	return func(o *TracerOptions) {
		log.Info(context.Background(), "initializing OTLP HTTP trace exporter", "endpoint", endpoint)
		exp, err := otlptracehttp.New(context.Background(), otlptracehttp.WithEndpointURL(endpoint))
		if err != nil {
			log.Error(context.Background(), "otlp http exporter init failed", "error", err)
			panic(err)
		}
		o.exporter = exp
		o.providerName = string(OTLPHTTPProvider)
	}
}

// NewTraceProvider builds the tracer provider and installs it globally.
func NewTraceProvider(options ...TracerOption) TraceProvider {
	opts := &TracerOptions{}
	for _, opt := range options {
		opt(opts)
	}

	if opts.useEmpty || opts.exporter == nil {
		return emptyTraceProvider{}
	}

	rsrc, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(opts.serviceName),
			attribute.String("otel.provider", opts.providerName),
		))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(opts.exporter),
		sdktrace.WithResource(rsrc),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

	return &traceProvider{tp}
}

func (o *traceProvider) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return o.tp.Shutdown(ctx)
}
