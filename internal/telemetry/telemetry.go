// Package telemetry installs the process-wide OpenTelemetry tracer and
// meter providers.
package telemetry

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// Shutdown flushes and stops the providers.
type Shutdown func(context.Context) error

// collector is an OTLP/HTTP endpoint split into what the exporters take.
type collector struct {
	host     string
	insecure bool
	path     string
}

func parseEndpoint(endpoint string) collector {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return collector{host: endpoint, insecure: true}
	}
	return collector{
		host:     u.Host,
		insecure: u.Scheme == "http",
		path:     strings.TrimSuffix(u.Path, "/"),
	}
}

func (c collector) traceOptions() []otlptracehttp.Option {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(c.host)}
	if c.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if c.path != "" {
		opts = append(opts, otlptracehttp.WithURLPath(c.path+"/v1/traces"))
	}
	return opts
}

func (c collector) metricOptions() []otlpmetrichttp.Option {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(c.host)}
	if c.insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if c.path != "" {
		opts = append(opts, otlpmetrichttp.WithURLPath(c.path+"/v1/metrics"))
	}
	return opts
}

// Setup exports spans and metrics over OTLP/HTTP to endpoint. With an empty
// endpoint the global no-op providers stay in place.
func Setup(ctx context.Context, service, endpoint string, logger *zap.Logger) (Shutdown, error) {
	if endpoint == "" {
		logger.Debug("telemetry disabled, no OTLP endpoint configured")
		return func(context.Context) error { return nil }, nil
	}
	c := parseEndpoint(endpoint)

	traceExporter, err := otlptracehttp.New(ctx, c.traceOptions()...)
	if err != nil {
		return nil, err
	}
	metricExporter, err := otlpmetrichttp.New(ctx, c.metricOptions()...)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(service))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	logger.Info("telemetry enabled", zap.String("endpoint", endpoint))

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
