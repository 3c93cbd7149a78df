package alert

import (
	"context"
	"time"

	"github.com/wayposthq/waypost/internal/redis"
)

// FailureState is the tracked failure streak for one endpoint.
type FailureState struct {
	Failures       int64
	LastAlertAt    time.Time
	LastAlertLevel int
}

// FailureTracker persists consecutive failure streaks. A success resets the
// streak; the alert debounce state survives resets so a flapping endpoint
// doesn't re-alert on every dip.
type FailureTracker interface {
	IncrFailures(ctx context.Context, endpointID string) (FailureState, error)
	ResetFailures(ctx context.Context, endpointID string) error
	MarkAlerted(ctx context.Context, endpointID string, at time.Time, level int) error
}

// NewTracker selects a backend: Redis when a client is provided so streaks
// are shared across workers, otherwise process-local memory.
func NewTracker(redisClient redis.Cmdable) FailureTracker {
	if redisClient != nil {
		return newRedisTracker(redisClient)
	}
	return newMemTracker()
}
