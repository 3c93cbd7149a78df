package claims

import (
	"context"
	"sync"
)

type memClaims struct {
	mu   sync.Mutex
	held map[string]struct{}
}

var _ Claims = &memClaims{}

func newMemClaims() *memClaims {
	return &memClaims{held: make(map[string]struct{})}
}

func (c *memClaims) Acquire(_ context.Context, deliveryID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.held[deliveryID]; ok {
		return false, nil
	}
	c.held[deliveryID] = struct{}{}
	return true, nil
}

func (c *memClaims) Release(_ context.Context, deliveryID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.held, deliveryID)
	return nil
}
