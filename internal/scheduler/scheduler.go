// Package scheduler admits delivery attempt tasks onto the attempt queue,
// immediately or after a delay. Immediate admissions pass through a depth
// gate so a publish burst cannot grow the queue without bound; scheduled
// retries are never gated because dropping an existing delivery is worse
// than queue pressure.
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/wayposthq/waypost/internal/logging"
	"github.com/wayposthq/waypost/internal/models"
	"go.uber.org/zap"
)

// ErrOverloaded is returned by Enqueue when the depth gate is full.
var ErrOverloaded = errors.New("scheduler overloaded: too many pending deliveries")

const (
	DefaultMaxDepth     = 1024
	DefaultPollInterval = time.Second

	pumpBatchSize = 100
)

type Scheduler interface {
	// Enqueue admits a task for immediate processing. It fails with
	// ErrOverloaded when the depth gate is full.
	Enqueue(ctx context.Context, task models.AttemptTask) error
	// EnqueueAfter parks a task until delay elapses. A non-positive delay
	// admits immediately. Never gated.
	EnqueueAfter(ctx context.Context, task models.AttemptTask, delay time.Duration) error
	// Cancel drops the parked task for a delivery, if any.
	Cancel(ctx context.Context, deliveryID string) error
	// TaskDone releases one depth gate slot. Workers call it after finishing
	// a task admitted by Enqueue or the pump.
	TaskDone()
	// Depth reports tasks admitted but not yet done.
	Depth() int64
	// Monitor pumps due parked tasks onto the queue until ctx ends.
	Monitor(ctx context.Context) error
}

// TaskPublisher is the queue the scheduler admits tasks to.
type TaskPublisher interface {
	Publish(ctx context.Context, task models.AttemptTask) error
}

// DelayBackend parks tasks until they come due. Implementations keep at most
// one parked task per delivery; scheduling again replaces the old one.
type DelayBackend interface {
	Schedule(ctx context.Context, task models.AttemptTask, dueAt time.Time) error
	// Due returns up to limit tasks due at or before now, oldest first,
	// without removing them.
	Due(ctx context.Context, now time.Time, limit int) ([]models.AttemptTask, error)
	Remove(ctx context.Context, deliveryID string) error
}

type schedulerImpl struct {
	queue        TaskPublisher
	delay        DelayBackend
	maxDepth     int64
	pollInterval time.Duration
	logger       *logging.Logger

	depth atomic.Int64
}

var _ Scheduler = &schedulerImpl{}

type Option func(*schedulerImpl)

func WithDelayBackend(delay DelayBackend) Option {
	return func(s *schedulerImpl) {
		s.delay = delay
	}
}

func WithMaxDepth(maxDepth int64) Option {
	return func(s *schedulerImpl) {
		s.maxDepth = maxDepth
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(s *schedulerImpl) {
		s.pollInterval = interval
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(s *schedulerImpl) {
		s.logger = logger
	}
}

func New(queue TaskPublisher, opts ...Option) Scheduler {
	s := &schedulerImpl{
		queue:        queue,
		maxDepth:     DefaultMaxDepth,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.delay == nil {
		s.delay = NewMemDelay()
	}
	return s
}

func (s *schedulerImpl) Enqueue(ctx context.Context, task models.AttemptTask) error {
	if s.depth.Add(1) > s.maxDepth {
		s.depth.Add(-1)
		return ErrOverloaded
	}
	if err := s.queue.Publish(ctx, task); err != nil {
		s.depth.Add(-1)
		return err
	}
	return nil
}

func (s *schedulerImpl) EnqueueAfter(ctx context.Context, task models.AttemptTask, delay time.Duration) error {
	if delay <= 0 {
		return s.admit(ctx, task)
	}
	return s.delay.Schedule(ctx, task, time.Now().Add(delay))
}

func (s *schedulerImpl) Cancel(ctx context.Context, deliveryID string) error {
	return s.delay.Remove(ctx, deliveryID)
}

func (s *schedulerImpl) TaskDone() {
	s.depth.Add(-1)
}

func (s *schedulerImpl) Depth() int64 {
	return s.depth.Load()
}

// admit publishes without consulting the gate. The task still takes a slot so
// Depth reflects real queue occupancy.
func (s *schedulerImpl) admit(ctx context.Context, task models.AttemptTask) error {
	s.depth.Add(1)
	if err := s.queue.Publish(ctx, task); err != nil {
		s.depth.Add(-1)
		return err
	}
	return nil
}

func (s *schedulerImpl) Monitor(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.pump(ctx); err != nil && !errors.Is(err, ctx.Err()) {
				if s.logger != nil {
					s.logger.Ctx(ctx).Error("scheduler pump error", zap.Error(err))
				}
			}
		}
	}
}

// pump moves due tasks from the delay backend to the queue. Publish happens
// before Remove, so a crash in between redelivers the task rather than losing
// it.
func (s *schedulerImpl) pump(ctx context.Context) error {
	for {
		tasks, err := s.delay.Due(ctx, time.Now(), pumpBatchSize)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}
		for _, task := range tasks {
			if err := s.admit(ctx, task); err != nil {
				return err
			}
			if err := s.delay.Remove(ctx, task.DeliveryID); err != nil {
				return err
			}
		}
		if len(tasks) < pumpBatchSize {
			return nil
		}
	}
}
