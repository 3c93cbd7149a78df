// Package store provides the Store facade over the storage drivers.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wayposthq/waypost/internal/redis"
	"github.com/wayposthq/waypost/internal/store/driver"
	"github.com/wayposthq/waypost/internal/store/memstore"
	"github.com/wayposthq/waypost/internal/store/pgstore"
	"github.com/wayposthq/waypost/internal/store/redisstore"
)

// Type aliases re-exported from driver.
type Store = driver.Store
type ListDeliveriesRequest = driver.ListDeliveriesRequest
type ListDeliveriesResponse = driver.ListDeliveriesResponse

// Error sentinels re-exported from driver.
var (
	ErrEndpointNotFound  = driver.ErrEndpointNotFound
	ErrDeliveryNotFound  = driver.ErrDeliveryNotFound
	ErrDuplicateEndpoint = driver.ErrDuplicateEndpoint
	ErrDuplicateDelivery = driver.ErrDuplicateDelivery
)

type DriverOpts struct {
	PG    *pgxpool.Pool
	Redis redis.Cmdable
}

func (d *DriverOpts) Close() error {
	if d.PG != nil {
		d.PG.Close()
	}
	return nil
}

// New selects a driver from the provided opts. Postgres takes precedence when
// both are set so a Redis client used elsewhere (queueing, claims) doesn't
// silently become the store.
func New(ctx context.Context, driverOpts DriverOpts) (Store, error) {
	if driverOpts.PG != nil {
		return pgstore.New(driverOpts.PG), nil
	}
	if driverOpts.Redis != nil {
		return redisstore.New(driverOpts.Redis), nil
	}

	return nil, errors.New("no driver provided")
}

// NewMemStore returns an in-memory Store for testing and single-process use.
func NewMemStore() Store {
	return memstore.New()
}

type Config struct {
	Postgres    string
	RedisClient redis.Cmdable
}

func MakeDriverOpts(ctx context.Context, cfg Config) (DriverOpts, error) {
	driverOpts := DriverOpts{}

	if cfg.Postgres != "" {
		pgDB, err := pgxpool.New(ctx, cfg.Postgres)
		if err != nil {
			return DriverOpts{}, err
		}
		driverOpts.PG = pgDB
		return driverOpts, nil
	}

	if cfg.RedisClient != nil {
		driverOpts.Redis = cfg.RedisClient
	}

	return driverOpts, nil
}
