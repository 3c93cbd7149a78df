package backoff

import (
	"math"
	"time"
)

// Backoff computes the delay before the next retry. retries is the number of
// failed attempts so far, starting at 0 for the first retry.
type Backoff interface {
	Duration(retries int) time.Duration
}

type ConstantBackoff struct {
	Interval time.Duration
}

var _ Backoff = &ConstantBackoff{}

func (b *ConstantBackoff) Duration(retries int) time.Duration {
	return b.Interval
}

// ExponentialBackoff grows the delay by Base per retry: Interval * Base^retries.
// Max caps the delay; zero means uncapped.
type ExponentialBackoff struct {
	Interval time.Duration
	Base     float64
	Max      time.Duration
}

var _ Backoff = &ExponentialBackoff{}

func (b *ExponentialBackoff) Duration(retries int) time.Duration {
	if retries < 0 {
		retries = 0
	}
	interval := float64(b.Interval) * math.Pow(b.Base, float64(retries))
	if b.Max > 0 && interval >= float64(b.Max) {
		return b.Max
	}
	return time.Duration(interval)
}

// ScheduledBackoff follows a fixed schedule. Retries beyond the schedule reuse
// the last entry; an empty schedule yields zero.
type ScheduledBackoff struct {
	Schedule []time.Duration
}

var _ Backoff = &ScheduledBackoff{}

func (b *ScheduledBackoff) Duration(retries int) time.Duration {
	if len(b.Schedule) == 0 {
		return 0
	}
	if retries < 0 {
		retries = 0
	}
	if retries >= len(b.Schedule) {
		return b.Schedule[len(b.Schedule)-1]
	}
	return b.Schedule[retries]
}
