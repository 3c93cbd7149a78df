package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/mqs"
	"github.com/wayposthq/waypost/internal/util/testutil"
)

func TestDeliveryStatus_Terminal(t *testing.T) {
	t.Parallel()

	assert.False(t, models.DeliveryStatusPending.Terminal())
	assert.False(t, models.DeliveryStatusRetrying.Terminal())
	assert.True(t, models.DeliveryStatusDelivered.Terminal())
	assert.True(t, models.DeliveryStatusFailed.Terminal())
}

func TestDeliveryStatus_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, models.DeliveryStatusPending.Valid())
	assert.True(t, models.DeliveryStatusRetrying.Valid())
	assert.True(t, models.DeliveryStatusDelivered.Valid())
	assert.True(t, models.DeliveryStatusFailed.Valid())
	assert.False(t, models.DeliveryStatus("unknown").Valid())
}

func TestNewDelivery(t *testing.T) {
	t.Parallel()

	now := time.Now()
	event := testutil.EventFactory.Any()
	delivery := models.NewDelivery(event, "ep_123", now)

	assert.NotEmpty(t, delivery.ID)
	assert.Equal(t, "ep_123", delivery.EndpointID)
	assert.Equal(t, event, delivery.Event)
	assert.Equal(t, models.DeliveryStatusPending, delivery.Status)
	assert.Equal(t, 0, delivery.Attempts)
	assert.Equal(t, now, delivery.CreatedAt)
	assert.Equal(t, now, delivery.UpdatedAt)
	assert.Nil(t, delivery.NextRetryAt)
	assert.Nil(t, delivery.LastAttemptAt)
}

func TestDelivery_Clone(t *testing.T) {
	t.Parallel()

	nextRetryAt := time.Now().Add(time.Minute)
	delivery := testutil.DeliveryFactory.Any(
		testutil.DeliveryFactory.WithStatus(models.DeliveryStatusRetrying),
		testutil.DeliveryFactory.WithNextRetryAt(nextRetryAt),
		testutil.DeliveryFactory.WithResponse(models.DeliveryResponse{
			StatusCode: 500,
			Body:       "oops",
			Headers:    models.Headers{"Content-Type": "text/plain"},
		}),
	)

	clone := delivery.Clone()
	clone.Response.StatusCode = 200
	clone.Response.Headers["Content-Type"] = "application/json"
	*clone.NextRetryAt = nextRetryAt.Add(time.Hour)
	clone.Event.Data[1] = 'X'

	assert.Equal(t, 500, delivery.Response.StatusCode)
	assert.Equal(t, "text/plain", delivery.Response.Headers["Content-Type"])
	assert.Equal(t, nextRetryAt, *delivery.NextRetryAt)
	assert.NotEqual(t, delivery.Event.Data, clone.Event.Data)
}

func TestRetryConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := models.RetryConfig{MaxRetries: 5, InitialInterval: 1, MaxInterval: 3600, Multiplier: 2}
	assert.NoError(t, valid.Validate())

	zeroRetries := models.RetryConfig{MaxRetries: 0, InitialInterval: 1, MaxInterval: 1, Multiplier: 1}
	assert.NoError(t, zeroRetries.Validate())

	for _, invalid := range []models.RetryConfig{
		{MaxRetries: -1, InitialInterval: 1, MaxInterval: 3600, Multiplier: 2},
		{MaxRetries: 5, InitialInterval: 0, MaxInterval: 3600, Multiplier: 2},
		{MaxRetries: 5, InitialInterval: 60, MaxInterval: 30, Multiplier: 2},
		{MaxRetries: 5, InitialInterval: 1, MaxInterval: 3600, Multiplier: 0.5},
	} {
		assert.ErrorIs(t, invalid.Validate(), models.ErrInvalidRetryConfig)
	}
}

func TestAttemptTask_Message(t *testing.T) {
	t.Parallel()

	task := models.NewAttemptTask("dlv_123")
	msg, err := task.ToMessage()
	require.NoError(t, err)

	var parsed models.AttemptTask
	require.NoError(t, parsed.FromMessage(&mqs.Message{Body: msg.Body}))
	assert.Equal(t, task, parsed)
	assert.False(t, parsed.Manual)

	manual := models.NewManualAttemptTask("dlv_123")
	assert.True(t, manual.Manual)
}
