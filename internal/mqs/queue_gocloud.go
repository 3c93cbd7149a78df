package mqs

import (
	"context"

	"gocloud.dev/pubsub"
)

// gocloudSubscription adapts a gocloud.dev subscription to the Subscription
// interface so drivers built on gocloud share one receive path.
type gocloudSubscription struct {
	sub *pubsub.Subscription
}

func wrappedSubscription(sub *pubsub.Subscription) (Subscription, error) {
	return &gocloudSubscription{sub: sub}, nil
}

func (s *gocloudSubscription) Receive(ctx context.Context) (*Message, error) {
	msg, err := s.sub.Receive(ctx)
	if err != nil {
		return nil, err
	}
	return &Message{
		Body:     msg.Body,
		Metadata: msg.Metadata,
		acker:    &gocloudAcker{msg: msg},
	}, nil
}

func (s *gocloudSubscription) Shutdown(ctx context.Context) error {
	return s.sub.Shutdown(ctx)
}

type gocloudAcker struct {
	msg *pubsub.Message
}

func (a *gocloudAcker) Ack() {
	a.msg.Ack()
}

func (a *gocloudAcker) Nack() {
	if a.msg.Nackable() {
		a.msg.Nack()
	}
}
