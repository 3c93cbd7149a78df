package claims

import (
	"context"
	"sync"
	"time"

	"github.com/wayposthq/waypost/internal/redis"
	"github.com/wayposthq/waypost/internal/redislock"
)

type redisClaims struct {
	locker *redislock.Locker

	mu   sync.Mutex
	held map[string]*redislock.Lock
}

var _ Claims = &redisClaims{}

func newRedisClaims(client redis.Cmdable, ttl time.Duration) *redisClaims {
	return &redisClaims{
		locker: redislock.New(client, ttl),
		held:   make(map[string]*redislock.Lock),
	}
}

func claimKey(deliveryID string) string {
	return "waypost:claim:" + deliveryID
}

func (c *redisClaims) Acquire(ctx context.Context, deliveryID string) (bool, error) {
	lock, acquired, err := c.locker.Acquire(ctx, claimKey(deliveryID))
	if err != nil || !acquired {
		return false, err
	}

	// Retain the handle so Release only deletes a claim this instance owns.
	c.mu.Lock()
	c.held[deliveryID] = lock
	c.mu.Unlock()
	return true, nil
}

func (c *redisClaims) Release(ctx context.Context, deliveryID string) error {
	c.mu.Lock()
	lock, ok := c.held[deliveryID]
	delete(c.held, deliveryID)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := lock.Release(ctx)
	return err
}
