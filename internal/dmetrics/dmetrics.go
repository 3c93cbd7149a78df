// Package dmetrics records delivery pipeline metrics through the global
// OpenTelemetry meter provider.
package dmetrics

import (
	"context"
	"time"

	"github.com/wayposthq/waypost/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type DeliveryLatencyOpts struct {
	Status string
}

type Metrics interface {
	EventDispatched(ctx context.Context, event *models.Event)
	DeliveryEnqueued(ctx context.Context, delivery *models.Delivery)
	AttemptFinished(ctx context.Context, status models.DeliveryStatus)
	DeliveryLatency(ctx context.Context, latency time.Duration, opts DeliveryLatencyOpts)
}

type metricsImpl struct {
	eventsDispatched    metric.Int64Counter
	deliveriesEnqueued  metric.Int64Counter
	attemptsFinished    metric.Int64Counter
	deliveryLatencySecs metric.Float64Histogram
}

var _ Metrics = &metricsImpl{}

func New() (Metrics, error) {
	meter := otel.GetMeterProvider().Meter("github.com/wayposthq/waypost/internal/dmetrics")

	eventsDispatched, err := meter.Int64Counter("waypost.events.dispatched",
		metric.WithDescription("Events accepted for dispatch"))
	if err != nil {
		return nil, err
	}
	deliveriesEnqueued, err := meter.Int64Counter("waypost.deliveries.enqueued",
		metric.WithDescription("Deliveries created and queued for attempt"))
	if err != nil {
		return nil, err
	}
	attemptsFinished, err := meter.Int64Counter("waypost.attempts.finished",
		metric.WithDescription("Delivery attempts by resulting status"))
	if err != nil {
		return nil, err
	}
	deliveryLatency, err := meter.Float64Histogram("waypost.delivery.latency",
		metric.WithDescription("Time from dispatch to final attempt outcome"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		eventsDispatched:    eventsDispatched,
		deliveriesEnqueued:  deliveriesEnqueued,
		attemptsFinished:    attemptsFinished,
		deliveryLatencySecs: deliveryLatency,
	}, nil
}

func (m *metricsImpl) EventDispatched(ctx context.Context, event *models.Event) {
	m.eventsDispatched.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.type", event.Type),
	))
}

func (m *metricsImpl) DeliveryEnqueued(ctx context.Context, delivery *models.Delivery) {
	m.deliveriesEnqueued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.type", delivery.Event.Type),
	))
}

func (m *metricsImpl) AttemptFinished(ctx context.Context, status models.DeliveryStatus) {
	m.attemptsFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("delivery.status", string(status)),
	))
}

func (m *metricsImpl) DeliveryLatency(ctx context.Context, latency time.Duration, opts DeliveryLatencyOpts) {
	m.deliveryLatencySecs.Record(ctx, latency.Seconds(), metric.WithAttributes(
		attribute.String("delivery.status", opts.Status),
	))
}
