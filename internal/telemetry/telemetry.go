// Package telemetry wires OpenTelemetry tracing for the bot.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Options describe where spans go and which shards the process runs.
// Endpoint is an OTLP/HTTP URL; tracing is off when it is empty.
type Options struct {
	ServiceName string
	Endpoint    string
	ClusterID   string
	Shards      []int
	TotalShards int
}

// attributes labels every span with the process's place in the deployment.
func (o Options) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(o.ServiceName),
		attribute.IntSlice("bento.shard.ids", o.Shards),
		attribute.Int("bento.shard.total", o.TotalShards),
	}
	if o.ClusterID != "" {
		attrs = append(attrs,
			attribute.String("bento.cluster.id", o.ClusterID),
			semconv.ServiceInstanceID(o.ClusterID))
	}
	return attrs
}

// Setup registers a global tracer provider exporting over OTLP/HTTP and
// returns the function flushing it. Without an endpoint the global no-op
// provider stays in place and shutdown does nothing.
func Setup(ctx context.Context, opts Options) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if opts.Endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(opts.Endpoint))
	if err != nil {
		return noop, fmt.Errorf("create otlp exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(opts.attributes()...))
	if err != nil {
		return noop, fmt.Errorf("build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}
