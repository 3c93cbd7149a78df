package mqs

import (
	"context"
	"time"

	"gocloud.dev/pubsub"
	"gocloud.dev/pubsub/mempubsub"
)

type InMemoryConfig struct {
	// AckDeadline is how long a received message stays invisible before
	// redelivery. Zero means the mempubsub default.
	AckDeadline time.Duration
}

// InMemoryQueue is a single-process queue backed by gocloud's mempubsub.
// The subscription is created at Init so messages published before Subscribe
// are retained. It supports one subscriber.
type InMemoryQueue struct {
	config *InMemoryConfig
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
}

var _ Queue = &InMemoryQueue{}

func NewInMemoryQueue(config *InMemoryConfig) *InMemoryQueue {
	if config == nil {
		config = &InMemoryConfig{}
	}
	return &InMemoryQueue{config: config}
}

func (q *InMemoryQueue) Init(ctx context.Context) (func(), error) {
	ackDeadline := q.config.AckDeadline
	if ackDeadline == 0 {
		ackDeadline = 30 * time.Second
	}
	q.topic = mempubsub.NewTopic()
	q.sub = mempubsub.NewSubscription(q.topic, ackDeadline)
	return func() {
		q.topic.Shutdown(ctx)
		q.sub.Shutdown(ctx)
	}, nil
}

func (q *InMemoryQueue) Publish(ctx context.Context, incomingMessage IncomingMessage) error {
	msg, err := incomingMessage.ToMessage()
	if err != nil {
		return err
	}
	return q.topic.Send(ctx, &pubsub.Message{Body: msg.Body, Metadata: msg.Metadata})
}

func (q *InMemoryQueue) Subscribe(ctx context.Context) (Subscription, error) {
	return wrappedSubscription(q.sub)
}
