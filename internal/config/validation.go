package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMissingRedis       = errors.New("missing redis configuration")
	ErrMissingPostgresURL = errors.New("postgres storage driver requires a postgres url")
	ErrMissingRabbitMQ    = errors.New("rabbitmq mq driver requires a server url")
	ErrSplitServiceInfra  = errors.New("split services require redis, rabbitmq, and a durable storage driver")
)

var validate = validator.New()

// Validate checks if the configuration is valid
func (c *Config) Validate(flags Flags) error {
	// Reset validated state
	c.validated = false

	if err := c.validateService(flags); err != nil {
		return err
	}

	// Struct tag rules (ranges, enums)
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := c.validateRetryPolicy(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if err := c.validateMQ(); err != nil {
		return err
	}

	if err := c.validateSplitService(); err != nil {
		return err
	}

	// Mark as validated if we get here
	c.validated = true
	return nil
}

// validateService reconciles the service type between config and flag.
func (c *Config) validateService(flags Flags) error {
	flagService, err := ServiceTypeFromString(flags.Service)
	if err != nil {
		return err
	}

	configService, err := c.GetService()
	if err != nil {
		return err
	}

	// If service is set in config (via env or file), it must match the flag
	if c.Service != "" && flags.Service != "" && configService != flagService {
		return ErrMismatchedServiceType
	}

	// If no service set in config, use flag value
	if c.Service == "" {
		c.Service = flags.Service
	}

	return nil
}

func (c *Config) validateRetryPolicy() error {
	retryConfig := c.RetryConfig()
	return retryConfig.Validate()
}

func (c *Config) validateStorage() error {
	switch c.StorageDriver {
	case StorageDriverPostgres:
		if c.PostgresURL == "" {
			return ErrMissingPostgresURL
		}
	case StorageDriverRedis:
		if !c.Redis.Configured() {
			return ErrMissingRedis
		}
	}
	return nil
}

func (c *Config) validateMQ() error {
	if c.MQ.Driver != MQDriverRabbitMQ {
		return nil
	}
	if c.MQ.RabbitMQ.ServerURL == "" || c.MQ.RabbitMQ.Exchange == "" || c.MQ.RabbitMQ.AttemptQueue == "" {
		return ErrMissingRabbitMQ
	}
	return nil
}

// validateSplitService ensures split api/delivery processes share durable
// infrastructure. Memory queues and stores live in one process only.
func (c *Config) validateSplitService() error {
	service, err := c.GetService()
	if err != nil {
		return err
	}
	if service == ServiceTypeSingular {
		return nil
	}
	if !c.Redis.Configured() {
		return fmt.Errorf("%w: missing redis", ErrSplitServiceInfra)
	}
	if c.MQ.Driver != MQDriverRabbitMQ {
		return fmt.Errorf("%w: mq driver is %s", ErrSplitServiceInfra, c.MQ.Driver)
	}
	if c.StorageDriver == StorageDriverMemory {
		return fmt.Errorf("%w: storage driver is memory", ErrSplitServiceInfra)
	}
	return nil
}
