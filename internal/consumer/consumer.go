// Package consumer runs a bounded-concurrency receive loop over an mqs
// subscription.
package consumer

import (
	"context"
	"fmt"

	"github.com/wayposthq/waypost/internal/logging"
	"github.com/wayposthq/waypost/internal/mqs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const DefaultConcurrency = 8

type Consumer interface {
	Run(context.Context) error
}

// MessageHandler processes one message. The handler owns acking: it must Ack
// or Nack every message it receives, whatever the outcome.
type MessageHandler interface {
	Handle(context.Context, *mqs.Message) error
}

type Option func(*consumerImpl)

func WithName(name string) Option {
	return func(c *consumerImpl) {
		c.name = name
	}
}

func WithConcurrency(concurrency int) Option {
	return func(c *consumerImpl) {
		if concurrency > 0 {
			c.concurrency = concurrency
		}
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(c *consumerImpl) {
		c.logger = logger
	}
}

func New(subscription mqs.Subscription, handler MessageHandler, opts ...Option) Consumer {
	c := &consumerImpl{
		subscription: subscription,
		handler:      handler,
		concurrency:  DefaultConcurrency,
		tracer:       otel.GetTracerProvider().Tracer("github.com/wayposthq/waypost/internal/consumer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type consumerImpl struct {
	subscription mqs.Subscription
	handler      MessageHandler
	name         string
	concurrency  int
	logger       *logging.Logger
	tracer       trace.Tracer
}

var _ Consumer = &consumerImpl{}

// Run receives until the subscription fails or ctx is canceled, then drains by
// taking every semaphore slot so in-flight handlers finish before it returns.
func (c *consumerImpl) Run(ctx context.Context) error {
	defer c.subscription.Shutdown(ctx)

	var receiveErr error

	sem := make(chan struct{}, c.concurrency)
receive:
	for {
		msg, err := c.subscription.Receive(ctx)
		if err != nil {
			receiveErr = err
			break
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			// The message stays unacked and redelivers after its deadline.
			break receive
		}

		go func() {
			defer func() { <-sem }()
			c.handle(msg)
		}()
	}

	for n := 0; n < c.concurrency; n++ {
		sem <- struct{}{}
	}

	return receiveErr
}

// handle runs one message on a fresh context, detached from the receive loop
// so work already claimed can finish after shutdown begins. A panicking
// handler nacks its message instead of taking the process down.
func (c *consumerImpl) handle(msg *mqs.Message) {
	ctx, span := c.tracer.Start(context.Background(), c.spanName())
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			span.RecordError(fmt.Errorf("handler panic: %v", r))
			msg.Nack()
			if c.logger != nil {
				c.logger.Ctx(ctx).Error("consumer handler panic",
					zap.String("consumer", c.name), zap.Any("panic", r))
			}
		}
	}()

	if err := c.handler.Handle(ctx, msg); err != nil {
		span.RecordError(err)
		if c.logger != nil {
			c.logger.Ctx(ctx).Error("consumer handler error",
				zap.String("consumer", c.name), zap.Error(err))
		}
	}
}

func (c *consumerImpl) spanName() string {
	if c.name == "" {
		return "Consumer.Handle"
	}
	return c.name + ".Consumer.Handle"
}
