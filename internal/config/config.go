package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"github.com/wayposthq/waypost/internal/migrator"
	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/mqs"
	"github.com/wayposthq/waypost/internal/redis"
	"gopkg.in/yaml.v3"
)

func getConfigLocations() []string {
	return []string{
		// Relative paths
		".env",
		".waypost.yaml",
		"config/waypost.yaml",
		"config/waypost/config.yaml",
		"config/waypost/.env",

		// Container-friendly absolute paths
		"/config/waypost.yaml",
		"/config/waypost/config.yaml",
		"/config/waypost/.env",
	}
}

type Config struct {
	Service string `yaml:"service" env:"SERVICE"`

	// API
	APIPort int    `yaml:"api_port" env:"API_PORT" validate:"gt=0,lte=65535"`
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	GinMode string `yaml:"gin_mode" env:"GIN_MODE" validate:"omitempty,oneof=debug release test"`

	// Logging
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error fatal"`
	AuditLog bool   `yaml:"audit_log" env:"AUDIT_LOG"`

	// Application
	EventTypes []string `yaml:"event_types" env:"EVENT_TYPES" envSeparator:","`

	// Delivery
	HTTPUserAgent          string `yaml:"http_user_agent" env:"HTTP_USER_AGENT"`
	SignatureHeader        string `yaml:"signature_header" env:"SIGNATURE_HEADER"`
	TimestampHeader        string `yaml:"timestamp_header" env:"TIMESTAMP_HEADER"`
	DeliveryIDHeader       string `yaml:"delivery_id_header" env:"DELIVERY_ID_HEADER"`
	DeliveryTimeoutSeconds int    `yaml:"delivery_timeout_seconds" env:"DELIVERY_TIMEOUT_SECONDS" validate:"gte=1"`
	MaxPayloadSize         int64  `yaml:"max_payload_size" env:"MAX_PAYLOAD_SIZE" validate:"gte=1"`
	RedirectsAllowed       bool   `yaml:"redirects_allowed" env:"REDIRECTS_ALLOWED"`
	AllowInsecureHTTP      bool   `yaml:"allow_insecure_http" env:"ALLOW_INSECURE_HTTP"`
	WorkerConcurrency      int    `yaml:"worker_concurrency" env:"WORKER_CONCURRENCY" validate:"gte=1"`
	PublishConcurrency     int    `yaml:"publish_concurrency" env:"PUBLISH_CONCURRENCY" validate:"gte=1"`
	QueueDepth             int    `yaml:"queue_depth" env:"QUEUE_DEPTH" validate:"gte=1"`

	// Retry policy (default for endpoints without their own)
	RetryMaxRetries          int     `yaml:"retry_max_retries" env:"RETRY_MAX_RETRIES"`
	RetryInitialDelaySeconds int     `yaml:"retry_initial_delay_seconds" env:"RETRY_INITIAL_DELAY_SECONDS"`
	RetryMaxDelaySeconds     int     `yaml:"retry_max_delay_seconds" env:"RETRY_MAX_DELAY_SECONDS"`
	RetryBackoffMultiplier   float64 `yaml:"retry_backoff_multiplier" env:"RETRY_BACKOFF_MULTIPLIER"`

	// Signing
	SecretRotationWindowHours int `yaml:"secret_rotation_window_hours" env:"SECRET_ROTATION_WINDOW_HOURS" validate:"gte=0"`
	VerifyToleranceSeconds    int `yaml:"verify_tolerance_seconds" env:"VERIFY_TOLERANCE_SECONDS" validate:"gte=0"`

	// Storage
	StorageDriver string      `yaml:"storage_driver" env:"STORAGE_DRIVER" validate:"omitempty,oneof=memory redis postgres"`
	PostgresURL   string      `yaml:"postgres_url" env:"POSTGRES_URL"`
	Redis         RedisConfig `yaml:"redis"`

	// Message queue
	MQ MQConfig `yaml:"mq"`

	// Alerting
	Alert AlertConfig `yaml:"alert"`

	// Observability
	OpenTelemetry OpenTelemetryConfig `yaml:"open_telemetry"`

	// ID generation
	IDTemplate IDTemplateConfig `yaml:"id_template"`

	configPath string
	validated  bool
}

// InitDefaults resets c to the built-in defaults. Parse calls it before
// layering the config file and environment on top; tests use it to build
// configs without going through the parser.
func (c *Config) InitDefaults() {
	c.APIPort = 3333
	c.GinMode = "release"
	c.LogLevel = "info"
	c.HTTPUserAgent = "Webhook-Service/1.0"
	c.SignatureHeader = "x-webhook-signature"
	c.TimestampHeader = "x-webhook-timestamp"
	c.DeliveryIDHeader = "x-webhook-delivery-id"
	c.DeliveryTimeoutSeconds = 30
	c.MaxPayloadSize = 1 << 20
	c.WorkerConcurrency = 8
	c.PublishConcurrency = 4
	c.QueueDepth = 1024
	c.RetryMaxRetries = 5
	c.RetryInitialDelaySeconds = 1
	c.RetryMaxDelaySeconds = 3600
	c.RetryBackoffMultiplier = 2.0
	c.SecretRotationWindowHours = 24
	c.VerifyToleranceSeconds = 300
	c.StorageDriver = StorageDriverMemory
	c.Redis = RedisConfig{
		Port: 6379,
	}
	c.MQ = MQConfig{
		Driver: MQDriverMemory,
		RabbitMQ: RabbitMQConfig{
			Exchange:     "waypost",
			AttemptQueue: "waypost-attempt",
		},
	}
	c.Alert = AlertConfig{
		AutoDisableFailureCount: 20,
		DebounceIntervalSeconds: 3600,
	}
}

func (c *Config) parseConfigFile(flagPath string, osInterface OSInterface) error {
	// Config file path comes from the flag or the CONFIG env var; both set
	// to different paths is ambiguous.
	configPath := flagPath
	if envPath := osInterface.Getenv("CONFIG"); envPath != "" {
		if configPath != "" && configPath != envPath {
			return fmt.Errorf("conflicting config paths: flag=%s env=%s", configPath, envPath)
		}
		configPath = envPath
	}

	// If no explicit config path, try default locations
	if configPath == "" {
		for _, loc := range getConfigLocations() {
			if _, err := osInterface.Stat(loc); err == nil {
				configPath = loc
				break
			}
		}
	}

	if configPath == "" {
		return nil
	}

	data, err := osInterface.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	// Parse based on file extension
	if strings.HasSuffix(strings.ToLower(configPath), ".env") {
		envMap, err := godotenv.Unmarshal(string(data))
		if err != nil {
			return fmt.Errorf("error loading .env file: %w", err)
		}
		if err := env.ParseWithOptions(c, env.Options{
			Environment: envMap,
		}); err != nil {
			return fmt.Errorf("error parsing .env file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("error parsing yaml config: %w", err)
		}
	}

	c.configPath = configPath
	return nil
}

func (c *Config) parseEnvVariables(osInterface OSInterface) error {
	envMap := map[string]string{}
	for _, kv := range osInterface.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	if err := env.ParseWithOptions(c, env.Options{
		Environment: envMap,
	}); err != nil {
		return fmt.Errorf("error parsing environment variables: %w", err)
	}
	return nil
}

func Parse(flags Flags) (*Config, error) {
	return ParseWithOS(flags, defaultOS)
}

func ParseWithOS(flags Flags, osInterface OSInterface) (*Config, error) {
	var config Config

	// Initialize defaults
	config.InitDefaults()

	// Parse config file
	if err := config.parseConfigFile(flags.Config, osInterface); err != nil {
		return nil, err
	}

	// Parse environment variables (highest priority)
	if err := config.parseEnvVariables(osInterface); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := config.Validate(flags); err != nil {
		return nil, err
	}

	return &config, nil
}

type Flags struct {
	Config  string
	Service string
}

// ConfigFilePath returns the config file the parser loaded, empty when
// running on defaults and environment variables alone.
func (c *Config) ConfigFilePath() string {
	return c.configPath
}

// RetryConfig returns the service-wide default retry policy.
func (c *Config) RetryConfig() models.RetryConfig {
	return models.RetryConfig{
		MaxRetries:      c.RetryMaxRetries,
		InitialInterval: c.RetryInitialDelaySeconds,
		MaxInterval:     c.RetryMaxDelaySeconds,
		Multiplier:      c.RetryBackoffMultiplier,
	}
}

func (c *Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.DeliveryTimeoutSeconds) * time.Second
}

func (c *Config) RotationWindow() time.Duration {
	return time.Duration(c.SecretRotationWindowHours) * time.Hour
}

func (c *Config) VerifyTolerance() time.Duration {
	return time.Duration(c.VerifyToleranceSeconds) * time.Second
}

func (c *Config) ToMigratorOpts() migrator.MigrationOpts {
	return migrator.MigrationOpts{
		PG: migrator.MigrationOptsPG{
			URL: c.PostgresURL,
		},
	}
}

const (
	StorageDriverMemory   = "memory"
	StorageDriverRedis    = "redis"
	StorageDriverPostgres = "postgres"
)

type RedisConfig struct {
	Host           string `yaml:"host" env:"REDIS_HOST"`
	Port           int    `yaml:"port" env:"REDIS_PORT"`
	Username       string `yaml:"username" env:"REDIS_USERNAME"`
	Password       string `yaml:"password" env:"REDIS_PASSWORD"`
	Database       int    `yaml:"database" env:"REDIS_DATABASE"`
	TLSEnabled     bool   `yaml:"tls_enabled" env:"REDIS_TLS_ENABLED"`
	ClusterEnabled bool   `yaml:"cluster_enabled" env:"REDIS_CLUSTER_ENABLED"`
}

// Configured reports whether a Redis host is set. Redis is optional for a
// singular service on the memory drivers.
func (c *RedisConfig) Configured() bool {
	return c.Host != ""
}

func (c *RedisConfig) ToConfig() *redis.RedisConfig {
	return &redis.RedisConfig{
		Host:           c.Host,
		Port:           c.Port,
		Username:       c.Username,
		Password:       c.Password,
		Database:       c.Database,
		TLSEnabled:     c.TLSEnabled,
		ClusterEnabled: c.ClusterEnabled,
	}
}

const (
	MQDriverMemory   = "memory"
	MQDriverRabbitMQ = "rabbitmq"
)

type MQConfig struct {
	Driver   string         `yaml:"driver" env:"MQ_DRIVER" validate:"omitempty,oneof=memory rabbitmq"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

type RabbitMQConfig struct {
	ServerURL    string `yaml:"server_url" env:"RABBITMQ_SERVER_URL"`
	Exchange     string `yaml:"exchange" env:"RABBITMQ_EXCHANGE"`
	AttemptQueue string `yaml:"attempt_queue" env:"RABBITMQ_ATTEMPT_QUEUE"`
	PublishQueue string `yaml:"publish_queue" env:"RABBITMQ_PUBLISH_QUEUE"`
}

// AttemptQueueConfig returns the queue carrying delivery attempt tasks.
func (c *MQConfig) AttemptQueueConfig() *mqs.QueueConfig {
	if c.Driver == MQDriverRabbitMQ {
		return &mqs.QueueConfig{
			RabbitMQ: &mqs.RabbitMQConfig{
				ServerURL: c.RabbitMQ.ServerURL,
				Exchange:  c.RabbitMQ.Exchange,
				Queue:     c.RabbitMQ.AttemptQueue,
			},
		}
	}
	return &mqs.QueueConfig{
		InMemory: &mqs.InMemoryConfig{},
	}
}

// PublishQueueConfig returns the optional event intake queue, nil when the
// intake is disabled. An in-process memory queue has no external producers,
// so the intake only exists on rabbitmq.
func (c *MQConfig) PublishQueueConfig() *mqs.QueueConfig {
	if c.Driver != MQDriverRabbitMQ || c.RabbitMQ.PublishQueue == "" {
		return nil
	}
	return &mqs.QueueConfig{
		RabbitMQ: &mqs.RabbitMQConfig{
			ServerURL: c.RabbitMQ.ServerURL,
			Exchange:  c.RabbitMQ.Exchange + ".publish",
			Queue:     c.RabbitMQ.PublishQueue,
		},
	}
}

type AlertConfig struct {
	AutoDisableFailureCount int    `yaml:"auto_disable_failure_count" env:"ALERT_AUTO_DISABLE_FAILURE_COUNT" validate:"gte=0"`
	CallbackURL             string `yaml:"callback_url" env:"ALERT_CALLBACK_URL" validate:"omitempty,url"`
	BearerToken             string `yaml:"bearer_token" env:"ALERT_BEARER_TOKEN"`
	DebounceIntervalSeconds int    `yaml:"debounce_interval_seconds" env:"ALERT_DEBOUNCE_INTERVAL_SECONDS" validate:"gte=0"`
}

func (c *AlertConfig) DebounceInterval() time.Duration {
	return time.Duration(c.DebounceIntervalSeconds) * time.Second
}
