package pogo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const ServiceName = "pogo"

// InitOTel picks an exporter by name and returns its shutdown.
// Anything other than "honeycomb" or "grafana" leaves tracing as a no-op.
func InitOTel(mode string) (func(), error) {
	switch mode {
	case "honeycomb":
		return InitOTelHNY()
	case "grafana":
		tp, err := InitOTelGRF()
		if err != nil {
			return func() {}, err
		}
		return func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				slog.Error("Could not shut down tracer provider", slog.Any("Error", err))
			}
		}, nil
	default:
		slog.Debug("Tracing disabled", slog.String("mode", mode))
		return func() {}, nil
	}
}

// InitOTelHNY uses the Honeycomb library to interface with OTel
func InitOTelHNY() (func(), error) {
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(ServiceName),
	)
	if err != nil {
		return func() {}, fmt.Errorf("failed to configure OpenTelemetry: %w", err)
	}
	slog.Info("Tracing to Honeycomb", slog.String("service", ServiceName))
	return func() { otelShutdown() }, nil
}

// InitOTelGRF uses the Grafana recommended configuration including Baggage for propagation.
// The OTLP endpoint comes from the standard OTEL_EXPORTER_OTLP_* variables.
func InitOTelGRF() (*sdktrace.TracerProvider, error) {
	exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", ServiceName),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))
	slog.Info("Tracing to OTLP", slog.String("service", ServiceName))
	return tp, nil
}
