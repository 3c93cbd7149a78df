package config

import (
	"github.com/wayposthq/waypost/internal/otel"
)

// OpenTelemetryConfig follows the standard OTEL_* environment variables.
// Setting a service name turns the SDK on; per-signal endpoint and protocol
// fall back to the shared values.
type OpenTelemetryConfig struct {
	ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Protocol    string `yaml:"protocol" env:"OTEL_EXPORTER_OTLP_PROTOCOL" validate:"omitempty,oneof=grpc http"`

	TracesEndpoint  string `yaml:"traces_endpoint" env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
	TracesProtocol  string `yaml:"traces_protocol" env:"OTEL_EXPORTER_OTLP_TRACES_PROTOCOL" validate:"omitempty,oneof=grpc http"`
	MetricsEndpoint string `yaml:"metrics_endpoint" env:"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"`
	MetricsProtocol string `yaml:"metrics_protocol" env:"OTEL_EXPORTER_OTLP_METRICS_PROTOCOL" validate:"omitempty,oneof=grpc http"`
	LogsEndpoint    string `yaml:"logs_endpoint" env:"OTEL_EXPORTER_OTLP_LOGS_ENDPOINT"`
	LogsProtocol    string `yaml:"logs_protocol" env:"OTEL_EXPORTER_OTLP_LOGS_PROTOCOL" validate:"omitempty,oneof=grpc http"`
}

// GetServiceName is the name used for spans and middleware even when the
// SDK itself is disabled.
func (c *OpenTelemetryConfig) GetServiceName() string {
	if c == nil || c.ServiceName == "" {
		return "waypost"
	}
	return c.ServiceName
}

// ToConfig returns nil when no service name is set (SDK disabled).
func (c *OpenTelemetryConfig) ToConfig() *otel.OpenTelemetryConfig {
	if c == nil || c.ServiceName == "" {
		return nil
	}
	return &otel.OpenTelemetryConfig{
		ServiceName: c.ServiceName,
		Traces:      c.signal(c.TracesEndpoint, c.TracesProtocol),
		Metrics:     c.signal(c.MetricsEndpoint, c.MetricsProtocol),
		Logs:        c.signal(c.LogsEndpoint, c.LogsProtocol),
	}
}

func (c *OpenTelemetryConfig) signal(endpoint, protocol string) *otel.OpenTelemetryTypeConfig {
	if endpoint == "" {
		endpoint = c.Endpoint
	}
	if protocol == "" {
		protocol = c.Protocol
	}
	return &otel.OpenTelemetryTypeConfig{
		Endpoint: endpoint,
		Protocol: protocol,
	}
}
