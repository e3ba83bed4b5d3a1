package config

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/apexlog/trackmap-service-go/log"
	"github.com/apexlog/trackmap-service-go/version"
)

// Telemetry bundles the configured OpenTelemetry providers.
type Telemetry struct {
	metricProvider *sdkmetric.MeterProvider
	traceProvider  *sdktrace.TracerProvider
}

func (t *Telemetry) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if t.metricProvider != nil {
		if err := t.metricProvider.Shutdown(ctx); err != nil {
			log.Warn("could not shutdown metric provider", log.ErrorField(err))
		}
	}
	if t.traceProvider != nil {
		if err := t.traceProvider.Shutdown(ctx); err != nil {
			log.Warn("could not shutdown trace provider", log.ErrorField(err))
		}
	}
}

// SetupTelemetry initializes metric and trace providers and registers them
// globally. With an empty TelemetryEndpoint the stdout exporters are used.
func SetupTelemetry(ctx context.Context) (*Telemetry, error) {
	res := sdkresource.NewSchemaless(
		attribute.String("service.name", "tms"),
		attribute.String("service.version", version.Version),
	)

	var metricExp sdkmetric.Exporter
	var traceExp sdktrace.SpanExporter
	var err error
	if TelemetryEndpoint != "" {
		metricExp, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(TelemetryEndpoint),
			otlpmetricgrpc.WithInsecure())
		if err != nil {
			return nil, err
		}
		traceExp, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(TelemetryEndpoint),
			otlptracegrpc.WithInsecure())
		if err != nil {
			return nil, err
		}
	} else {
		metricExp, err = stdoutmetric.New()
		if err != nil {
			return nil, err
		}
		traceExp, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
	}

	metricProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp,
			sdkmetric.WithInterval(15*time.Second))),
	)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExp),
	)
	otel.SetMeterProvider(metricProvider)
	otel.SetTracerProvider(traceProvider)

	return &Telemetry{metricProvider: metricProvider, traceProvider: traceProvider}, nil
}
