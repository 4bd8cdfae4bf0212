package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	before := otel.GetTracerProvider()
	meters := otel.GetMeterProvider()
	shutdown, err := Setup(context.Background(), "rentify", "", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, before, otel.GetTracerProvider())
	assert.Equal(t, meters, otel.GetMeterProvider())
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupInstallsProviders(t *testing.T) {
	before := otel.GetTracerProvider()
	meters := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(before)
		otel.SetMeterProvider(meters)
	})

	shutdown, err := Setup(context.Background(), "rentify", "http://127.0.0.1:4318", zap.NewNop())
	require.NoError(t, err)
	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)
	_, ok = otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, ok)

	_, span := otel.Tracer("test").Start(context.Background(), "span")
	span.End()
	counter, err := otel.Meter("test").Int64Counter("test.count")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)
	// Nothing listens on the endpoint; shutdown must still return.
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_ = shutdown(ctx)
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		want     collector
	}{
		{"http://otel:4318", collector{host: "otel:4318", insecure: true}},
		{"https://collector.example/otlp/", collector{host: "collector.example", path: "/otlp"}},
		{"otel:4318", collector{host: "otel:4318", insecure: true}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseEndpoint(tt.endpoint), tt.endpoint)
	}
}
