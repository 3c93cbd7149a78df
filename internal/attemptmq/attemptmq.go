// Package attemptmq is the queue carrying delivery attempt tasks between the
// scheduler and the attempt workers.
package attemptmq

import (
	"context"

	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/mqs"
)

type AttemptMQ struct {
	queue mqs.Queue
}

type option func(*AttemptMQ)

func WithQueue(queueConfig *mqs.QueueConfig) option {
	return func(q *AttemptMQ) {
		q.queue = mqs.NewQueue(queueConfig)
	}
}

func New(opts ...option) *AttemptMQ {
	q := &AttemptMQ{}
	for _, opt := range opts {
		opt(q)
	}
	if q.queue == nil {
		q.queue = mqs.NewQueue(nil)
	}
	return q
}

// Init declares broker infrastructure. The returned func tears it down and
// must be called on shutdown.
func (q *AttemptMQ) Init(ctx context.Context) (func(), error) {
	return q.queue.Init(ctx)
}

func (q *AttemptMQ) Publish(ctx context.Context, task models.AttemptTask) error {
	return q.queue.Publish(ctx, &task)
}

func (q *AttemptMQ) Subscribe(ctx context.Context) (mqs.Subscription, error) {
	return q.queue.Subscribe(ctx)
}
