package testinfra

import (
	"context"
	"log"
	"sync"

	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

var rabbitmqOnce sync.Once

// EnsureRabbitMQ returns the AMQP URL of the shared RabbitMQ server. Tests
// isolate themselves by declaring uniquely named exchanges and queues.
func EnsureRabbitMQ() string {
	cfg := ReadConfig()
	if cfg.RabbitMQURL == "" {
		rabbitmqOnce.Do(func() {
			startRabbitMQTestContainer(cfg)
		})
	}
	return cfg.RabbitMQURL
}

func startRabbitMQTestContainer(cfg *Config) {
	ctx := context.Background()

	rabbitmqContainer, err := rabbitmq.Run(ctx,
		"rabbitmq:4-management-alpine",
		rabbitmq.WithAdminUsername("guest"),
		rabbitmq.WithAdminPassword("guest"),
	)
	if err != nil {
		panic(err)
	}

	url, err := rabbitmqContainer.AmqpURL(ctx)
	if err != nil {
		panic(err)
	}
	log.Printf("RabbitMQ running at %s", url)
	cfg.RabbitMQURL = url
	cfg.cleanupFns = append(cfg.cleanupFns, func() {
		if err := rabbitmqContainer.Terminate(ctx); err != nil {
			log.Printf("failed to terminate container: %s", err)
		}
	})
}
