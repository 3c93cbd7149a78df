// Package publishmq accepts events published over a message queue and hands
// them to the dispatcher, so producers can publish without going through the
// HTTP API.
package publishmq

import (
	"context"
	"encoding/json"

	"github.com/wayposthq/waypost/internal/mqs"
)

// PublishedEvent is the wire payload a producer puts on the publish queue.
// The event ID is assigned at dispatch time, not by the producer.
type PublishedEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

var _ mqs.IncomingMessage = &PublishedEvent{}

func (e *PublishedEvent) FromMessage(msg *mqs.Message) error {
	return json.Unmarshal(msg.Body, e)
}

func (e *PublishedEvent) ToMessage() (*mqs.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return &mqs.Message{Body: data}, nil
}

type PublishMQ struct {
	queue mqs.Queue
}

type option func(*PublishMQ)

func WithQueue(queueConfig *mqs.QueueConfig) option {
	return func(q *PublishMQ) {
		q.queue = mqs.NewQueue(queueConfig)
	}
}

func New(opts ...option) *PublishMQ {
	q := &PublishMQ{}
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
func (q *PublishMQ) Init(ctx context.Context) (func(), error) {
	return q.queue.Init(ctx)
}

func (q *PublishMQ) Publish(ctx context.Context, event PublishedEvent) error {
	return q.queue.Publish(ctx, &event)
}

func (q *PublishMQ) Subscribe(ctx context.Context) (mqs.Subscription, error) {
	return q.queue.Subscribe(ctx)
}
