// Package otel provides OpenTelemetry metrics initialization for restore runs.
package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// Config holds OpenTelemetry configuration.
type Config struct {
	// Endpoint is the OTLP gRPC collector address. Export is disabled when empty.
	Endpoint    string
	Insecure    bool
	ServiceName string
	Version     string
	// RunID is reported as the service instance, so each run is its own series.
	RunID string
}

// Enabled reports whether metrics are exported.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

// Provider holds the initialized meter provider.
type Provider struct {
	MeterProvider *sdkmetric.MeterProvider
	Meter         metric.Meter
}

// Init initializes metric export with the given configuration.
// Returns a shutdown function that flushes pending metrics and should be called on exit.
// If export is disabled, the global meter is returned with a no-op shutdown.
func Init(ctx context.Context, cfg Config) (*Provider, func(context.Context) error, error) {
	if !cfg.Enabled() {
		return &Provider{
			Meter: otel.Meter(cfg.ServiceName),
		}, func(context.Context) error { return nil }, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
			semconv.ServiceInstanceID(cfg.RunID),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create resource: %w", err)
	}

	metricOpts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create metric exporter: %w", err)
	}

	// A run is short; the final collection happens on shutdown.
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	shutdown := func(ctx context.Context) error {
		if err := meterProvider.Shutdown(ctx); err != nil && !errors.Is(err, sdkmetric.ErrReaderShutdown) {
			return fmt.Errorf("shutdown meter: %w", err)
		}
		return nil
	}

	return &Provider{
		MeterProvider: meterProvider,
		Meter:         meterProvider.Meter(cfg.ServiceName),
	}, shutdown, nil
}
