package config

import (
	"net/url"

	"go.uber.org/zap"
)

// LogConfigurationSummary returns zap fields describing the effective
// configuration, masking credentials. Logged once at startup.
func (c *Config) LogConfigurationSummary() []zap.Field {
	fields := []zap.Field{
		// General
		zap.String("service", c.Service),
		zap.String("config_file_path", func() string {
			if c.configPath != "" {
				return c.configPath
			}
			return "none (using defaults and environment variables)"
		}()),
		zap.String("log_level", c.LogLevel),
		zap.Bool("audit_log", c.AuditLog),
		zap.Strings("event_types", c.EventTypes),

		// API
		zap.Int("api_port", c.APIPort),
		zap.Bool("api_key_configured", c.APIKey != ""),
		zap.String("gin_mode", c.GinMode),

		// Delivery
		zap.String("http_user_agent", c.HTTPUserAgent),
		zap.String("signature_header", c.SignatureHeader),
		zap.String("timestamp_header", c.TimestampHeader),
		zap.String("delivery_id_header", c.DeliveryIDHeader),
		zap.Int("delivery_timeout_seconds", c.DeliveryTimeoutSeconds),
		zap.Int64("max_payload_size", c.MaxPayloadSize),
		zap.Bool("redirects_allowed", c.RedirectsAllowed),
		zap.Bool("allow_insecure_http", c.AllowInsecureHTTP),
		zap.Int("worker_concurrency", c.WorkerConcurrency),
		zap.Int("publish_concurrency", c.PublishConcurrency),
		zap.Int("queue_depth", c.QueueDepth),

		// Retry policy
		zap.Int("retry_max_retries", c.RetryMaxRetries),
		zap.Int("retry_initial_delay_seconds", c.RetryInitialDelaySeconds),
		zap.Int("retry_max_delay_seconds", c.RetryMaxDelaySeconds),
		zap.Float64("retry_backoff_multiplier", c.RetryBackoffMultiplier),

		// Signing
		zap.Int("secret_rotation_window_hours", c.SecretRotationWindowHours),
		zap.Int("verify_tolerance_seconds", c.VerifyToleranceSeconds),

		// Storage
		zap.String("storage_driver", c.StorageDriver),
		zap.Bool("postgres_configured", c.PostgresURL != ""),
		zap.String("postgres_host", maskPostgresURLHost(c.PostgresURL)),
		zap.String("redis_host", c.Redis.Host),
		zap.Int("redis_port", c.Redis.Port),
		zap.Bool("redis_password_configured", c.Redis.Password != ""),
		zap.Int("redis_database", c.Redis.Database),
		zap.Bool("redis_tls_enabled", c.Redis.TLSEnabled),
		zap.Bool("redis_cluster_enabled", c.Redis.ClusterEnabled),

		// Message queue
		zap.String("mq_driver", c.MQ.Driver),

		// Alerting
		zap.Int("alert_auto_disable_failure_count", c.Alert.AutoDisableFailureCount),
		zap.String("alert_callback_url", maskURL(c.Alert.CallbackURL)),
		zap.Bool("alert_bearer_token_configured", c.Alert.BearerToken != ""),
		zap.Int("alert_debounce_interval_seconds", c.Alert.DebounceIntervalSeconds),

		// Observability
		zap.Bool("otel_enabled", c.OpenTelemetry.ServiceName != ""),
		zap.String("otel_service_name", c.OpenTelemetry.ServiceName),

		// ID generation
		zap.String("id_template_event", c.IDTemplate.Event),
		zap.String("id_template_delivery", c.IDTemplate.Delivery),
		zap.String("id_template_endpoint", c.IDTemplate.Endpoint),
	}

	if c.MQ.Driver == MQDriverRabbitMQ {
		fields = append(fields,
			zap.String("rabbitmq_url", maskURL(c.MQ.RabbitMQ.ServerURL)),
			zap.String("rabbitmq_exchange", c.MQ.RabbitMQ.Exchange),
			zap.String("rabbitmq_attempt_queue", c.MQ.RabbitMQ.AttemptQueue),
			zap.String("rabbitmq_publish_queue", c.MQ.RabbitMQ.PublishQueue),
		)
	}

	return fields
}

// maskURL masks credentials in a URL.
func maskURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.UserPassword("***", "***")
	return u.String()
}

// maskPostgresURLHost extracts just the host from a postgres URL.
func maskPostgresURLHost(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "not configured"
	}
	return u.Host
}
