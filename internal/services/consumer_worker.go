package services

import (
	"context"
	"errors"

	"github.com/wayposthq/waypost/internal/consumer"
	"github.com/wayposthq/waypost/internal/logging"
	"github.com/wayposthq/waypost/internal/mqs"
	"github.com/wayposthq/waypost/internal/worker"
	"go.uber.org/zap"
)

// ConsumerWorker runs a message queue consumer as a worker. Subscribing
// happens inside Run so a broker outage surfaces as a worker failure rather
// than a build failure.
type ConsumerWorker struct {
	name        string
	subscribe   func(ctx context.Context) (mqs.Subscription, error)
	handler     consumer.MessageHandler
	concurrency int
	logger      *logging.Logger
}

func NewConsumerWorker(
	name string,
	subscribe func(ctx context.Context) (mqs.Subscription, error),
	handler consumer.MessageHandler,
	concurrency int,
	logger *logging.Logger,
) worker.Worker {
	return &ConsumerWorker{
		name:        name,
		subscribe:   subscribe,
		handler:     handler,
		concurrency: concurrency,
		logger:      logger,
	}
}

func (w *ConsumerWorker) Name() string {
	return w.name
}

func (w *ConsumerWorker) Run(ctx context.Context) error {
	logger := w.logger.Ctx(ctx)
	logger.Info("consumer worker starting", zap.String("name", w.name))

	subscription, err := w.subscribe(ctx)
	if err != nil {
		logger.Error("error subscribing", zap.String("name", w.name), zap.Error(err))
		return err
	}

	csm := consumer.New(subscription, w.handler,
		consumer.WithName(w.name),
		consumer.WithConcurrency(w.concurrency),
		consumer.WithLogger(w.logger),
	)

	if err := csm.Run(ctx); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			logger.Error("error running consumer", zap.String("name", w.name), zap.Error(err))
			return err
		}
	}
	return nil
}
