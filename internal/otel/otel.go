// Package otel bootstraps the OpenTelemetry SDK: OTLP exporters, providers,
// and propagators per signal, registered globally so instrumented packages
// pick them up.
package otel

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
)

const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

type OpenTelemetryConfig struct {
	ServiceName string
	Traces      *OpenTelemetryTypeConfig
	Metrics     *OpenTelemetryTypeConfig
	Logs        *OpenTelemetryTypeConfig
}

// OpenTelemetryTypeConfig configures one signal. An empty endpoint defers to
// the exporter's own OTEL_EXPORTER_OTLP_* environment handling.
type OpenTelemetryTypeConfig struct {
	Endpoint string
	Protocol string
}

// SetupOTelSDK starts the configured providers and registers them globally.
// The returned shutdown func flushes and stops everything that was started;
// callers must invoke it on exit.
func SetupOTelSDK(ctx context.Context, cfg *OpenTelemetryConfig) (func(context.Context) error, error) {
	var shutdownFuncs []func(context.Context) error

	shutdown := func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return nil, err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	traceProvider, err := newTraceProvider(ctx, cfg.Traces, res)
	if err != nil {
		return nil, errors.Join(err, shutdown(ctx))
	}
	if traceProvider != nil {
		shutdownFuncs = append(shutdownFuncs, traceProvider.Shutdown)
		otel.SetTracerProvider(traceProvider)
	}

	meterProvider, err := newMeterProvider(ctx, cfg.Metrics, res)
	if err != nil {
		return nil, errors.Join(err, shutdown(ctx))
	}
	if meterProvider != nil {
		shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
		otel.SetMeterProvider(meterProvider)
	}

	loggerProvider, err := newLoggerProvider(ctx, cfg.Logs, res)
	if err != nil {
		return nil, errors.Join(err, shutdown(ctx))
	}
	if loggerProvider != nil {
		shutdownFuncs = append(shutdownFuncs, loggerProvider.Shutdown)
		global.SetLoggerProvider(loggerProvider)
	}

	return shutdown, nil
}
