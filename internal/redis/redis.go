package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/extra/redisotel/v9"
	r "github.com/redis/go-redis/v9"
)

// Reexport go-redis's Nil constant for DX purposes.
const (
	Nil = r.Nil
)

type (
	Cmdable            = r.Cmdable
	MapStringStringCmd = r.MapStringStringCmd
	Pipeliner          = r.Pipeliner
	Tx                 = r.Tx
	Z                  = r.Z
	ZRangeBy           = r.ZRangeBy
)

type Client interface {
	Cmdable
	Close() error
}

const (
	TxFailedErr = r.TxFailedErr
)

// NewClient connects, verifies connectivity, and instruments the client for
// tracing. Callers own the returned client and must Close it.
func NewClient(ctx context.Context, config *RedisConfig) (Client, error) {
	if config.ClusterEnabled {
		return createClusterClient(ctx, config)
	}
	return createRegularClient(ctx, config)
}

func createClusterClient(ctx context.Context, config *RedisConfig) (Client, error) {
	// Single seed node; the cluster client discovers the rest.
	options := &r.ClusterOptions{
		Addrs:    []string{config.Addr()},
		Username: config.Username,
		Password: config.Password,
		// Database is ignored in cluster mode
	}

	if config.TLSEnabled {
		options.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	clusterClient := r.NewClusterClient(options)

	if err := clusterClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cluster client ping failed: %w", err)
	}
	if err := redisotel.InstrumentTracing(clusterClient); err != nil {
		return nil, err
	}

	return clusterClient, nil
}

func createRegularClient(ctx context.Context, config *RedisConfig) (Client, error) {
	options := &r.Options{
		Addr:     config.Addr(),
		Username: config.Username,
		Password: config.Password,
		DB:       config.Database,
	}

	if config.TLSEnabled {
		options.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	regularClient := r.NewClient(options)

	if err := regularClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis client ping failed: %w", err)
	}
	if err := redisotel.InstrumentTracing(regularClient); err != nil {
		return nil, err
	}

	return regularClient, nil
}
