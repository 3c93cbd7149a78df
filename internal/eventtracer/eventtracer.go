// Package eventtracer links the dispatch, scheduling, and attempt spans of a
// delivery into one trace. Attempt tasks carry the scheduling span context
// through the queue so the worker-side span joins the original trace.
package eventtracer

import (
	"context"

	"github.com/wayposthq/waypost/internal/dmetrics"
	"github.com/wayposthq/waypost/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type EventTracer interface {
	Dispatch(context.Context, *models.Event) (context.Context, trace.Span)
	StartDelivery(context.Context, *models.AttemptTask) (context.Context, trace.Span)
	Attempt(context.Context, *models.AttemptTask) (context.Context, trace.Span)
}

type eventTracerImpl struct {
	meter  dmetrics.Metrics
	tracer trace.Tracer
}

var _ EventTracer = &eventTracerImpl{}

func NewEventTracer() EventTracer {
	traceProvider := otel.GetTracerProvider()
	meter, _ := dmetrics.New()

	return &eventTracerImpl{
		meter:  meter,
		tracer: traceProvider.Tracer("github.com/wayposthq/waypost/internal/eventtracer"),
	}
}

func (t *eventTracerImpl) Dispatch(ctx context.Context, event *models.Event) (context.Context, trace.Span) {
	if t.meter != nil {
		t.meter.EventDispatched(ctx, event)
	}
	return t.tracer.Start(ctx, "EventTracer.Dispatch")
}

// StartDelivery opens the scheduling span and stamps its context onto the
// task so the attempt worker can continue the trace.
func (t *eventTracerImpl) StartDelivery(ctx context.Context, task *models.AttemptTask) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "EventTracer.StartDelivery")

	task.Telemetry = &models.TaskTelemetry{
		TraceID: span.SpanContext().TraceID().String(),
		SpanID:  span.SpanContext().SpanID().String(),
	}

	return ctx, span
}

func (t *eventTracerImpl) Attempt(_ context.Context, task *models.AttemptTask) (context.Context, trace.Span) {
	return t.tracer.Start(t.remoteTaskSpanContext(task), "EventTracer.Attempt")
}

func (t *eventTracerImpl) remoteTaskSpanContext(task *models.AttemptTask) context.Context {
	if task.Telemetry == nil {
		return context.Background()
	}
	traceID, err := trace.TraceIDFromHex(task.Telemetry.TraceID)
	if err != nil {
		return context.Background()
	}

	spanID, err := trace.SpanIDFromHex(task.Telemetry.SpanID)
	if err != nil {
		return context.Background()
	}

	remoteCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: 01,
		Remote:     true,
	})
	return trace.ContextWithRemoteSpanContext(context.Background(), remoteCtx)
}
