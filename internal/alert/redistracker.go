package alert

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/wayposthq/waypost/internal/redis"
)

const (
	keyPrefixFailures  = "waypost:alert:failures:"
	keyPrefixLastAlert = "waypost:alert:last_alert:"

	fieldLastAlertAt    = "at"
	fieldLastAlertLevel = "level"
)

type redisTracker struct {
	client redis.Cmdable
}

var _ FailureTracker = &redisTracker{}

func newRedisTracker(client redis.Cmdable) *redisTracker {
	return &redisTracker{client: client}
}

func (t *redisTracker) IncrFailures(ctx context.Context, endpointID string) (FailureState, error) {
	pipe := t.client.Pipeline()
	incrCmd := pipe.Incr(ctx, failuresKey(endpointID))
	atCmd := pipe.HGet(ctx, lastAlertKey(endpointID), fieldLastAlertAt)
	levelCmd := pipe.HGet(ctx, lastAlertKey(endpointID), fieldLastAlertLevel)
	if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
		return FailureState{}, fmt.Errorf("failed to read failure state: %w", err)
	}

	count, err := incrCmd.Result()
	if err != nil {
		return FailureState{}, fmt.Errorf("failed to increment failures: %w", err)
	}

	state := FailureState{Failures: count}
	if at, err := atCmd.Result(); err == nil {
		if parsed, err := time.Parse(time.RFC3339Nano, at); err == nil {
			state.LastAlertAt = parsed
		}
	}
	if level, err := levelCmd.Int(); err == nil {
		state.LastAlertLevel = level
	}
	return state, nil
}

func (t *redisTracker) ResetFailures(ctx context.Context, endpointID string) error {
	return t.client.Del(ctx, failuresKey(endpointID)).Err()
}

func (t *redisTracker) MarkAlerted(ctx context.Context, endpointID string, at time.Time, level int) error {
	return t.client.HSet(ctx, lastAlertKey(endpointID), map[string]interface{}{
		fieldLastAlertAt:    at.Format(time.RFC3339Nano),
		fieldLastAlertLevel: level,
	}).Err()
}

func failuresKey(endpointID string) string {
	return keyPrefixFailures + endpointID
}

func lastAlertKey(endpointID string) string {
	return keyPrefixLastAlert + endpointID
}
