package otel

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

func newTraceProvider(ctx context.Context, cfg *OpenTelemetryTypeConfig, res *resource.Resource) (*trace.TracerProvider, error) {
	if cfg == nil {
		return nil, nil
	}

	var err error
	var traceExporter trace.SpanExporter
	if useGRPC(cfg.Protocol) {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		traceExporter, err = otlptracegrpc.New(ctx, opts...)
	} else {
		opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(httpEndpointURL(cfg.Endpoint, "traces")))
		}
		traceExporter, err = otlptracehttp.New(ctx, opts...)
	}
	if err != nil {
		return nil, err
	}

	return trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithBatcher(traceExporter),
	), nil
}

func newMeterProvider(ctx context.Context, cfg *OpenTelemetryTypeConfig, res *resource.Resource) (*metric.MeterProvider, error) {
	if cfg == nil {
		return nil, nil
	}

	var err error
	var metricExporter metric.Exporter
	if useGRPC(cfg.Protocol) {
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
		}
		metricExporter, err = otlpmetricgrpc.New(ctx, opts...)
	} else {
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpointURL(httpEndpointURL(cfg.Endpoint, "metrics")))
		}
		metricExporter, err = otlpmetrichttp.New(ctx, opts...)
	}
	if err != nil {
		return nil, err
	}

	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(metricExporter)),
	), nil
}

func newLoggerProvider(ctx context.Context, cfg *OpenTelemetryTypeConfig, res *resource.Resource) (*log.LoggerProvider, error) {
	if cfg == nil {
		return nil, nil
	}

	var err error
	var logExporter log.Exporter
	if useGRPC(cfg.Protocol) {
		opts := []otlploggrpc.Option{otlploggrpc.WithInsecure()}
		if cfg.Endpoint != "" {
			opts = append(opts, otlploggrpc.WithEndpoint(cfg.Endpoint))
		}
		logExporter, err = otlploggrpc.New(ctx, opts...)
	} else {
		opts := []otlploghttp.Option{otlploghttp.WithInsecure()}
		if cfg.Endpoint != "" {
			opts = append(opts, otlploghttp.WithEndpointURL(httpEndpointURL(cfg.Endpoint, "logs")))
		}
		logExporter, err = otlploghttp.New(ctx, opts...)
	}
	if err != nil {
		return nil, err
	}

	return log.NewLoggerProvider(
		log.WithResource(res),
		log.WithProcessor(log.NewBatchProcessor(logExporter)),
	), nil
}

func useGRPC(protocol string) bool {
	return protocol == "" || protocol == ProtocolGRPC
}

// httpEndpointURL normalizes a bare host:port into the signal's full OTLP
// HTTP URL.
func httpEndpointURL(endpoint, signal string) string {
	url := endpoint
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	if !strings.HasSuffix(url, "/v1/"+signal) {
		url = strings.TrimSuffix(url, "/") + "/v1/" + signal
	}
	return url
}
