package attempt

import (
	"context"
	"errors"
	"time"

	"github.com/wayposthq/waypost/internal/logging"
	"github.com/wayposthq/waypost/internal/models"
	"go.uber.org/zap"
)

// RetryQueue is the slice of the scheduler the retrier drives: immediate
// enqueues plus cancellation of a parked retry it supersedes.
type RetryQueue interface {
	Enqueue(ctx context.Context, task models.AttemptTask) error
	Cancel(ctx context.Context, deliveryID string) error
}

// Retrier handles operator-initiated retries. Unlike scheduled retries, an
// operator retry resets the attempt counter so the delivery gets a full
// fresh retry budget.
type Retrier struct {
	logger     *logging.Logger
	deliveries DeliveryStore
	claims     Claims
	queue      RetryQueue
}

func NewRetrier(logger *logging.Logger, deliveries DeliveryStore, claims Claims, queue RetryQueue) *Retrier {
	return &Retrier{
		logger:     logger,
		deliveries: deliveries,
		claims:     claims,
		queue:      queue,
	}
}

// Retry resets the delivery and enqueues an immediate manual attempt. It
// returns false without error when the delivery is already delivered, and
// ErrAttemptInFlight when a worker currently holds the delivery's claim.
func (r *Retrier) Retry(ctx context.Context, deliveryID string) (bool, error) {
	delivery, err := r.deliveries.RetrieveDelivery(ctx, deliveryID)
	if err != nil {
		return false, err
	}
	if delivery.Status == models.DeliveryStatusDelivered {
		return false, nil
	}

	acquired, err := r.claims.Acquire(ctx, deliveryID)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, ErrAttemptInFlight
	}
	defer r.claims.Release(ctx, deliveryID)

	// Drop any parked retry; the manual attempt supersedes it.
	if err := r.queue.Cancel(ctx, deliveryID); err != nil {
		return false, err
	}

	prev := *delivery
	delivery.Attempts = 0
	delivery.Status = models.DeliveryStatusPending
	delivery.Error = ""
	delivery.ErrorCode = ""
	delivery.NextRetryAt = nil
	delivery.UpdatedAt = time.Now()
	if err := r.deliveries.UpdateDelivery(ctx, *delivery); err != nil {
		return false, err
	}

	task := models.NewManualAttemptTask(deliveryID)
	if err := r.queue.Enqueue(ctx, task); err != nil {
		// Put the previous state back so the delivery isn't stranded as
		// pending with nothing queued.
		if restoreErr := r.deliveries.UpdateDelivery(ctx, prev); restoreErr != nil {
			return false, errors.Join(err, restoreErr)
		}
		return false, err
	}

	r.logger.Ctx(ctx).Audit("delivery retry requested",
		zap.String("delivery_id", delivery.ID),
		zap.String("endpoint_id", delivery.EndpointID),
		zap.String("previous_status", string(prev.Status)),
		zap.Int("previous_attempts", prev.Attempts))

	return true, nil
}
