package publishmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wayposthq/waypost/internal/consumer"
	"github.com/wayposthq/waypost/internal/dispatch"
	"github.com/wayposthq/waypost/internal/logging"
	"github.com/wayposthq/waypost/internal/mqs"
	"go.uber.org/zap"
)

// EventDispatcher is the slice of the dispatcher the handler needs.
type EventDispatcher interface {
	Dispatch(ctx context.Context, eventType string, data json.RawMessage) (*dispatch.Result, error)
}

type messageHandler struct {
	logger     *logging.Logger
	dispatcher EventDispatcher
}

func NewMessageHandler(logger *logging.Logger, dispatcher EventDispatcher) consumer.MessageHandler {
	return &messageHandler{
		logger:     logger,
		dispatcher: dispatcher,
	}
}

func (h *messageHandler) Handle(ctx context.Context, msg *mqs.Message) error {
	event := PublishedEvent{}
	if err := event.FromMessage(msg); err != nil {
		// Unparseable payloads never improve with redelivery.
		msg.Ack()
		return fmt.Errorf("malformed published event: %w", err)
	}

	result, err := h.dispatcher.Dispatch(ctx, event.Type, event.Data)
	if err != nil {
		if errors.Is(err, dispatch.ErrUnknownEventType) || errors.Is(err, dispatch.ErrRequiredEventType) {
			h.logger.Ctx(ctx).Warn("dropping rejected event",
				zap.Error(err),
				zap.String("event_type", event.Type))
			msg.Ack()
			return nil
		}
		// Anything else is worth redelivering. Dispatch is at-least-once: a
		// partial fan-out that gets redelivered may enqueue some endpoints
		// twice.
		msg.Nack()
		return err
	}

	h.logger.Ctx(ctx).Info("published event dispatched",
		zap.String("event_id", result.EventID),
		zap.String("event_type", event.Type),
		zap.Int("deliveries", len(result.Deliveries)))
	msg.Ack()
	return nil
}
