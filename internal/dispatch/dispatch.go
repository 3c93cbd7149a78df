// Package dispatch fans an event out to its matching endpoints: one pending
// delivery per match, each enqueued for an immediate first attempt.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/wayposthq/waypost/internal/dmetrics"
	"github.com/wayposthq/waypost/internal/eventtracer"
	"github.com/wayposthq/waypost/internal/logging"
	"github.com/wayposthq/waypost/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnknownEventType  = errors.New("unknown event type")
	ErrRequiredEventType = errors.New("event type is required")
)

// DeliveryStore is the slice of the store dispatch needs: the endpoint
// snapshot plus delivery creation and its rollback.
type DeliveryStore interface {
	ListEndpoints(ctx context.Context) ([]models.Endpoint, error)
	CreateDelivery(ctx context.Context, delivery models.Delivery) error
	DeleteDelivery(ctx context.Context, deliveryID string) error
}

// TaskQueue accepts immediate attempt tasks. Enqueue may reject with the
// scheduler's overload error; dispatch propagates it untouched.
type TaskQueue interface {
	Enqueue(ctx context.Context, task models.AttemptTask) error
}

// Result reports one dispatch: the event's assigned id plus every delivery
// that was created and enqueued.
type Result struct {
	EventID    string            `json:"event_id"`
	Deliveries []models.Delivery `json:"deliveries"`
}

type Dispatcher struct {
	logger      *logging.Logger
	store       DeliveryStore
	queue       TaskQueue
	eventTracer eventtracer.EventTracer
	meter       dmetrics.Metrics
	eventTypes  []string
}

type Option func(*Dispatcher)

// WithEventTypes installs an allow-list. Dispatching a type outside the list
// fails with ErrUnknownEventType instead of silently matching nothing.
func WithEventTypes(eventTypes []string) Option {
	return func(d *Dispatcher) {
		d.eventTypes = eventTypes
	}
}

func WithMetrics(meter dmetrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.meter = meter
	}
}

func New(
	logger *logging.Logger,
	store DeliveryStore,
	queue TaskQueue,
	eventTracer eventtracer.EventTracer,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		logger:      logger,
		store:       store,
		queue:       queue,
		eventTracer: eventTracer,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.meter == nil {
		d.meter, _ = dmetrics.New()
	}
	return d
}

// Dispatch constructs the event, snapshots the endpoint table, and creates
// plus enqueues one delivery per matching endpoint. Creation and enqueue are
// atomic together per endpoint: an enqueue failure deletes the record it just
// created. Deliveries for other endpoints that already made it through stand,
// so the Result may be partial when an error is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, data json.RawMessage) (*Result, error) {
	if len(d.eventTypes) > 0 {
		if eventType == "" {
			return nil, ErrRequiredEventType
		}
		if !slices.Contains(d.eventTypes, eventType) {
			return nil, ErrUnknownEventType
		}
	}

	event := models.NewEvent(eventType, data, time.Now())
	ctx, span := d.eventTracer.Dispatch(ctx, &event)
	defer span.End()

	logger := d.logger.Ctx(ctx)
	logger.Audit("processing event",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type))

	endpoints, err := d.store.ListEndpoints(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]models.Endpoint, 0, len(endpoints))
	for _, endpoint := range endpoints {
		if endpoint.Matches(event.Type) {
			matched = append(matched, endpoint)
		}
	}

	result := &Result{EventID: event.ID, Deliveries: []models.Delivery{}}
	if len(matched) == 0 {
		logger.Info("no matching endpoints",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type))
		return result, nil
	}

	// Each goroutine owns one slot, so the result keeps the snapshot order
	// even though the fan-out is concurrent.
	created := make([]*models.Delivery, len(matched))
	var g errgroup.Group
	for i, endpoint := range matched {
		g.Go(func() error {
			delivery, err := d.deliverTo(ctx, event, endpoint.ID)
			if err != nil {
				return err
			}
			created[i] = delivery
			return nil
		})
	}
	fanoutErr := g.Wait()
	if fanoutErr != nil {
		span.RecordError(fanoutErr)
	}

	for _, delivery := range created {
		if delivery != nil {
			result.Deliveries = append(result.Deliveries, *delivery)
		}
	}
	return result, fanoutErr
}

// deliverTo creates the delivery record and enqueues its first attempt. When
// the enqueue is rejected the record is removed again so no delivery exists
// without a queued attempt.
func (d *Dispatcher) deliverTo(ctx context.Context, event models.Event, endpointID string) (*models.Delivery, error) {
	delivery := models.NewDelivery(event, endpointID, time.Now())
	if err := d.store.CreateDelivery(ctx, delivery); err != nil {
		return nil, err
	}

	task := models.NewAttemptTask(delivery.ID)
	_, deliverySpan := d.eventTracer.StartDelivery(ctx, &task)
	defer deliverySpan.End()

	if err := d.queue.Enqueue(ctx, task); err != nil {
		d.logger.Ctx(ctx).Error("failed to enqueue attempt task",
			zap.Error(err),
			zap.String("event_id", event.ID),
			zap.String("delivery_id", delivery.ID),
			zap.String("endpoint_id", endpointID))
		deliverySpan.RecordError(err)
		if deleteErr := d.store.DeleteDelivery(ctx, delivery.ID); deleteErr != nil {
			return nil, errors.Join(err, deleteErr)
		}
		return nil, err
	}

	d.meter.DeliveryEnqueued(ctx, &delivery)
	d.logger.Ctx(ctx).Audit("delivery enqueued",
		zap.String("event_id", event.ID),
		zap.String("delivery_id", delivery.ID),
		zap.String("endpoint_id", endpointID))
	return &delivery, nil
}
