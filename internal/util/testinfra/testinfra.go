// Package testinfra manages shared infrastructure for integration tests.
// Containers are started lazily, shared across the whole test binary, and
// terminated once the last suite that called Start finishes.
//
// Set TEST_POSTGRES_URL or TEST_RABBITMQ_URL to reuse existing servers
// instead of starting containers.
package testinfra

import (
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wayposthq/waypost/internal/util/testutil"
)

var (
	suiteCounter int64
	suiteCleanup sync.Once
	cfgSync      sync.Once
	cfg          *Config
)

type Config struct {
	PostgresURL string
	RabbitMQURL string
	cleanupFns  []func()
}

func initConfig() {
	cfg = &Config{
		PostgresURL: os.Getenv("TEST_POSTGRES_URL"),
		RabbitMQURL: os.Getenv("TEST_RABBITMQ_URL"),
	}
}

func ReadConfig() *Config {
	cfgSync.Do(initConfig)
	return cfg
}

// Start gates the test behind the integration flag and returns the cleanup
// func the caller must register. Shared containers are terminated when the
// last started suite cleans up.
func Start(t *testing.T) func() {
	testutil.CheckIntegrationTest(t)
	atomic.AddInt64(&suiteCounter, 1)
	return func() {
		if atomic.AddInt64(&suiteCounter, -1) == 0 {
			suiteCleanup.Do(func() {
				if cfg != nil && cfg.cleanupFns != nil {
					for _, fn := range cfg.cleanupFns {
						if fn != nil {
							fn()
						}
					}
				}
			})
		}
	}
}
