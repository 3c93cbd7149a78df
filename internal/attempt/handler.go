// Package attempt executes delivery attempts: it consumes attempt tasks from
// the queue, posts signed payloads to endpoints, records outcomes, and
// schedules retries.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wayposthq/waypost/internal/alert"
	"github.com/wayposthq/waypost/internal/backoff"
	"github.com/wayposthq/waypost/internal/consumer"
	"github.com/wayposthq/waypost/internal/dmetrics"
	"github.com/wayposthq/waypost/internal/logging"
	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/mqs"
	"github.com/wayposthq/waypost/internal/store/driver"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultMaxPayloadSize  = 1 << 20 // 1 MiB
	DefaultRotationWindow  = 24 * time.Hour
	DefaultClaimRetryDelay = 250 * time.Millisecond
)

var (
	errDeliveryTerminal = errors.New("delivery already terminal")
	errEndpointGone     = errors.New("endpoint missing or inactive")
	errPayloadTooLarge  = errors.New("payload exceeds maximum size")
)

// DeliveryStore is the slice of the store the handler reads and writes.
type DeliveryStore interface {
	RetrieveDelivery(ctx context.Context, deliveryID string) (*models.Delivery, error)
	UpdateDelivery(ctx context.Context, delivery models.Delivery) error
}

type EndpointGetter interface {
	RetrieveEndpoint(ctx context.Context, endpointID string) (*models.Endpoint, error)
}

// RetryScheduler parks follow-up attempts and accounts for finished tasks.
type RetryScheduler interface {
	EnqueueAfter(ctx context.Context, task models.AttemptTask, delay time.Duration) error
	TaskDone()
}

// Claims admits at most one in-flight attempt per delivery.
type Claims interface {
	Acquire(ctx context.Context, deliveryID string) (bool, error)
	Release(ctx context.Context, deliveryID string) error
}

type AttemptTracer interface {
	Attempt(ctx context.Context, task *models.AttemptTask) (context.Context, trace.Span)
}

type messageHandler struct {
	logger          *logging.Logger
	deliveries      DeliveryStore
	endpoints       EndpointGetter
	retryScheduler  RetryScheduler
	claims          Claims
	sender          *Sender
	eventTracer     AttemptTracer
	meter           dmetrics.Metrics
	alerts          alert.Monitor
	defaultRetry    models.RetryConfig
	maxPayloadSize  int64
	rotationWindow  time.Duration
	claimRetryDelay time.Duration
}

type HandlerOption func(*messageHandler)

func WithDefaultRetryConfig(retryConfig models.RetryConfig) HandlerOption {
	return func(h *messageHandler) {
		h.defaultRetry = retryConfig
	}
}

func WithMaxPayloadSize(maxPayloadSize int64) HandlerOption {
	return func(h *messageHandler) {
		h.maxPayloadSize = maxPayloadSize
	}
}

func WithRotationWindow(rotationWindow time.Duration) HandlerOption {
	return func(h *messageHandler) {
		h.rotationWindow = rotationWindow
	}
}

func WithClaimRetryDelay(delay time.Duration) HandlerOption {
	return func(h *messageHandler) {
		h.claimRetryDelay = delay
	}
}

func WithMetrics(meter dmetrics.Metrics) HandlerOption {
	return func(h *messageHandler) {
		h.meter = meter
	}
}

// WithAlertMonitor feeds attempt outcomes into consecutive-failure
// monitoring.
func WithAlertMonitor(monitor alert.Monitor) HandlerOption {
	return func(h *messageHandler) {
		h.alerts = monitor
	}
}

func NewMessageHandler(
	logger *logging.Logger,
	deliveries DeliveryStore,
	endpoints EndpointGetter,
	retryScheduler RetryScheduler,
	claims Claims,
	sender *Sender,
	eventTracer AttemptTracer,
	opts ...HandlerOption,
) consumer.MessageHandler {
	h := &messageHandler{
		logger:          logger,
		deliveries:      deliveries,
		endpoints:       endpoints,
		retryScheduler:  retryScheduler,
		claims:          claims,
		sender:          sender,
		eventTracer:     eventTracer,
		defaultRetry:    models.RetryConfig{MaxRetries: 5, InitialInterval: 1, MaxInterval: 3600, Multiplier: 2},
		maxPayloadSize:  DefaultMaxPayloadSize,
		rotationWindow:  DefaultRotationWindow,
		claimRetryDelay: DefaultClaimRetryDelay,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.meter == nil {
		h.meter, _ = dmetrics.New()
	}
	if h.alerts == nil {
		h.alerts = alert.NewNopMonitor()
	}
	return h
}

func (h *messageHandler) Handle(ctx context.Context, msg *mqs.Message) error {
	task := models.AttemptTask{}
	if err := task.FromMessage(msg); err != nil {
		// Unparseable tasks never improve with redelivery.
		msg.Ack()
		h.retryScheduler.TaskDone()
		return fmt.Errorf("malformed attempt task: %w", err)
	}

	ctx, span := h.eventTracer.Attempt(ctx, &task)
	defer span.End()

	h.logger.Ctx(ctx).Info("processing attempt task",
		zap.String("delivery_id", task.DeliveryID),
		zap.Bool("manual", task.Manual))

	acquired, err := h.claims.Acquire(ctx, task.DeliveryID)
	if err != nil {
		msg.Nack()
		return err
	}
	if !acquired {
		// Another worker holds this delivery. Park the task briefly instead
		// of spinning on the queue.
		h.logger.Ctx(ctx).Info("delivery attempt already in flight, requeueing",
			zap.String("delivery_id", task.DeliveryID),
			zap.Duration("delay", h.claimRetryDelay))
		if err := h.retryScheduler.EnqueueAfter(ctx, task, h.claimRetryDelay); err != nil {
			msg.Nack()
			return err
		}
		msg.Ack()
		h.retryScheduler.TaskDone()
		return nil
	}
	defer h.claims.Release(ctx, task.DeliveryID)

	return h.handleError(msg, h.doHandle(ctx, task))
}

// handleError acks or nacks the message based on the error class and frees
// the depth gate slot on ack. Expected drop cases return nil so the consumer
// doesn't log them as failures.
func (h *messageHandler) handleError(msg *mqs.Message, err error) error {
	if h.shouldNackError(err) {
		msg.Nack()
		return err
	}
	msg.Ack()
	h.retryScheduler.TaskDone()

	var preErr *PreAttemptError
	if errors.As(err, &preErr) {
		if errors.Is(preErr, driver.ErrDeliveryNotFound) ||
			errors.Is(preErr, errDeliveryTerminal) ||
			errors.Is(preErr, errEndpointGone) ||
			errors.Is(preErr, errPayloadTooLarge) {
			return nil
		}
	}
	return err
}

func (h *messageHandler) shouldNackError(err error) bool {
	if err == nil {
		return false
	}

	// Pre-attempt outcomes are recorded (or the delivery is gone); redelivery
	// would change nothing.
	var preErr *PreAttemptError
	if errors.As(err, &preErr) {
		return false
	}

	// A failed attempt is a recorded outcome; retries go through the
	// scheduler, not broker redelivery.
	var atmErr *AttemptError
	if errors.As(err, &atmErr) {
		return false
	}

	// Anything else is an infrastructure error worth redelivering.
	return true
}

func (h *messageHandler) doHandle(ctx context.Context, task models.AttemptTask) error {
	delivery, err := h.deliveries.RetrieveDelivery(ctx, task.DeliveryID)
	if err != nil {
		if errors.Is(err, driver.ErrDeliveryNotFound) {
			h.logger.Ctx(ctx).Info("delivery not found, dropping task",
				zap.String("delivery_id", task.DeliveryID))
			return NewPreAttemptError("", err)
		}
		return err
	}
	if delivery.Status.Terminal() {
		h.logger.Ctx(ctx).Info("delivery already terminal, dropping task",
			zap.String("delivery_id", delivery.ID),
			zap.String("status", string(delivery.Status)))
		return NewPreAttemptError("", errDeliveryTerminal)
	}

	endpoint, err := h.endpoints.RetrieveEndpoint(ctx, delivery.EndpointID)
	if err != nil && !errors.Is(err, driver.ErrEndpointNotFound) {
		return err
	}
	if endpoint == nil || !endpoint.Active {
		return h.failTerminal(ctx, delivery, models.ErrorCodeEndpointGone, errEndpointGone)
	}

	body, err := delivery.Event.Payload()
	if err != nil {
		return err
	}
	if int64(len(body)) > h.maxPayloadSize {
		return h.failTerminal(ctx, delivery, models.ErrorCodePayloadTooLarge, errPayloadTooLarge)
	}

	// Record the attempt before the network call so a crash mid-request
	// still counts it.
	now := time.Now()
	delivery.Attempts++
	delivery.LastAttemptAt = &now
	delivery.Status = models.DeliveryStatusPending
	delivery.NextRetryAt = nil
	delivery.UpdatedAt = now
	if err := h.deliveries.UpdateDelivery(ctx, *delivery); err != nil {
		return err
	}

	secrets := endpoint.SigningSecrets(now, h.rotationWindow)
	response, duration, sendErr := h.sender.Send(ctx, endpoint, delivery.ID, body, secrets)
	delivery.DurationMS = duration.Milliseconds()
	if response != nil {
		delivery.Response = response
	}

	if sendErr == nil {
		return h.recordDelivered(ctx, task, delivery, endpoint)
	}

	var atmErr *AttemptError
	if !errors.As(sendErr, &atmErr) {
		var preErr *PreAttemptError
		if errors.As(sendErr, &preErr) {
			return h.failTerminal(ctx, delivery, preErr.Code, preErr)
		}
		return sendErr
	}
	return h.recordFailedAttempt(ctx, task, delivery, endpoint, atmErr)
}

func (h *messageHandler) recordDelivered(ctx context.Context, task models.AttemptTask, delivery *models.Delivery, endpoint *models.Endpoint) error {
	delivery.Status = models.DeliveryStatusDelivered
	delivery.Error = ""
	delivery.ErrorCode = ""
	delivery.UpdatedAt = time.Now()
	if err := h.deliveries.UpdateDelivery(ctx, *delivery); err != nil {
		return err
	}

	h.logger.Ctx(ctx).Audit("delivery succeeded",
		zap.String("delivery_id", delivery.ID),
		zap.String("endpoint_id", delivery.EndpointID),
		zap.String("event_id", delivery.Event.ID),
		zap.Int("attempts", delivery.Attempts),
		zap.Int("status_code", delivery.Response.StatusCode),
		zap.Int64("duration_ms", delivery.DurationMS),
		zap.Bool("manual", task.Manual))

	h.recordOutcome(ctx, delivery)
	h.notifyAttempt(ctx, endpoint, delivery, true)
	return nil
}

func (h *messageHandler) recordFailedAttempt(ctx context.Context, task models.AttemptTask, delivery *models.Delivery, endpoint *models.Endpoint, atmErr *AttemptError) error {
	retryConfig := h.defaultRetry
	if endpoint.RetryConfig != nil {
		retryConfig = *endpoint.RetryConfig
	}

	delivery.Error = atmErr.err.Error()
	delivery.ErrorCode = atmErr.Code

	if atmErr.Retryable && delivery.Attempts <= retryConfig.MaxRetries {
		return h.scheduleRetry(ctx, task, delivery, endpoint, retryConfig, atmErr)
	}

	delivery.Status = models.DeliveryStatusFailed
	delivery.NextRetryAt = nil
	delivery.UpdatedAt = time.Now()
	if err := h.deliveries.UpdateDelivery(ctx, *delivery); err != nil {
		return err
	}

	h.logger.Ctx(ctx).Audit("delivery failed",
		zap.String("delivery_id", delivery.ID),
		zap.String("endpoint_id", delivery.EndpointID),
		zap.String("event_id", delivery.Event.ID),
		zap.String("error_code", delivery.ErrorCode),
		zap.String("error", delivery.Error),
		zap.Int("attempts", delivery.Attempts),
		zap.Bool("manual", task.Manual))

	h.recordOutcome(ctx, delivery)
	h.notifyAttempt(ctx, endpoint, delivery, false)
	return atmErr
}

func (h *messageHandler) scheduleRetry(ctx context.Context, task models.AttemptTask, delivery *models.Delivery, endpoint *models.Endpoint, retryConfig models.RetryConfig, atmErr *AttemptError) error {
	retryBackoff := &backoff.ExponentialBackoff{
		Interval: retryConfig.InitialDelay(),
		Base:     retryConfig.Multiplier,
		Max:      retryConfig.MaxDelay(),
	}
	delay := retryBackoff.Duration(delivery.Attempts - 1)

	now := time.Now()
	nextRetryAt := now.Add(delay)
	delivery.Status = models.DeliveryStatusRetrying
	delivery.NextRetryAt = &nextRetryAt
	delivery.UpdatedAt = now
	if err := h.deliveries.UpdateDelivery(ctx, *delivery); err != nil {
		return err
	}

	retryTask := models.NewAttemptTask(delivery.ID)
	retryTask.Telemetry = task.Telemetry
	if err := h.retryScheduler.EnqueueAfter(ctx, retryTask, delay); err != nil {
		h.logger.Ctx(ctx).Error("failed to schedule retry",
			zap.Error(err),
			zap.String("delivery_id", delivery.ID),
			zap.Int("attempts", delivery.Attempts),
			zap.Duration("backoff", delay))
		return errors.Join(atmErr, err)
	}

	h.logger.Ctx(ctx).Audit("retry scheduled",
		zap.String("delivery_id", delivery.ID),
		zap.String("endpoint_id", delivery.EndpointID),
		zap.String("error_code", delivery.ErrorCode),
		zap.Int("attempts", delivery.Attempts),
		zap.Duration("backoff", delay))

	if h.meter != nil {
		h.meter.AttemptFinished(ctx, delivery.Status)
	}
	h.notifyAttempt(ctx, endpoint, delivery, false)
	return atmErr
}

// failTerminal marks the delivery failed without an HTTP attempt.
func (h *messageHandler) failTerminal(ctx context.Context, delivery *models.Delivery, code string, cause error) error {
	delivery.Status = models.DeliveryStatusFailed
	delivery.Error = cause.Error()
	delivery.ErrorCode = code
	delivery.NextRetryAt = nil
	delivery.UpdatedAt = time.Now()
	if err := h.deliveries.UpdateDelivery(ctx, *delivery); err != nil {
		return err
	}

	h.logger.Ctx(ctx).Audit("delivery failed",
		zap.String("delivery_id", delivery.ID),
		zap.String("endpoint_id", delivery.EndpointID),
		zap.String("error_code", code),
		zap.String("error", delivery.Error))

	h.recordOutcome(ctx, delivery)
	return NewPreAttemptError(code, cause)
}

func (h *messageHandler) recordOutcome(ctx context.Context, delivery *models.Delivery) {
	if h.meter == nil {
		return
	}
	h.meter.AttemptFinished(ctx, delivery.Status)
	if delivery.Status.Terminal() {
		h.meter.DeliveryLatency(ctx, time.Since(delivery.CreatedAt), dmetrics.DeliveryLatencyOpts{
			Status: string(delivery.Status),
		})
	}
}

// notifyAttempt feeds the outcome into failure monitoring. Monitoring errors
// never affect the delivery outcome.
func (h *messageHandler) notifyAttempt(ctx context.Context, endpoint *models.Endpoint, delivery *models.Delivery, success bool) {
	err := h.alerts.HandleAttempt(ctx, alert.AttemptResult{
		Endpoint:  endpoint,
		Delivery:  delivery,
		Success:   success,
		Timestamp: time.Now(),
	})
	if err != nil {
		h.logger.Ctx(ctx).Error("failed to monitor attempt outcome",
			zap.Error(err),
			zap.String("delivery_id", delivery.ID),
			zap.String("endpoint_id", endpoint.ID))
	}
}
