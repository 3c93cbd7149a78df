// Package claims tracks which deliveries have an attempt in flight. A claim
// admits at most one attempt per delivery at a time, across every worker
// sharing the backend.
package claims

import (
	"context"
	"time"

	"github.com/wayposthq/waypost/internal/redis"
)

const DefaultTTL = 5 * time.Minute

type Claims interface {
	// Acquire claims the delivery for an attempt. It returns false when
	// another attempt already holds the claim.
	Acquire(ctx context.Context, deliveryID string) (bool, error)
	// Release frees the claim. Releasing a claim this instance doesn't hold
	// is a no-op.
	Release(ctx context.Context, deliveryID string) error
}

type options struct {
	ttl time.Duration
}

type Option func(*options)

// WithTTL bounds how long a crashed worker can hold a claim before it expires.
// Only the Redis backend enforces it.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// New selects a backend: Redis when a client is provided, otherwise
// process-local memory.
func New(redisClient redis.Cmdable, opts ...Option) Claims {
	o := &options{ttl: DefaultTTL}
	for _, opt := range opts {
		opt(o)
	}
	if redisClient != nil {
		return newRedisClaims(redisClient, o.ttl)
	}
	return newMemClaims()
}
