package drivertest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/store/driver"
	"github.com/wayposthq/waypost/internal/util/testutil"
)

func testDeliveries(t *testing.T, newHarness HarnessMaker) {
	t.Helper()

	ctx := context.Background()
	h, err := newHarness(ctx, t)
	require.NoError(t, err)
	t.Cleanup(h.Close)

	store, err := h.MakeDriver(ctx)
	require.NoError(t, err)

	baseTime := time.Now().Truncate(time.Millisecond).UTC()

	t.Run("create and retrieve", func(t *testing.T) {
		event := testutil.EventFactory.Any(
			testutil.EventFactory.WithType("user.created"),
			testutil.EventFactory.WithTimestamp(baseTime),
		)
		delivery := testutil.DeliveryFactory.Any(
			testutil.DeliveryFactory.WithEvent(event),
			testutil.DeliveryFactory.WithCreatedAt(baseTime),
		)
		delivery.UpdatedAt = baseTime

		require.NoError(t, store.CreateDelivery(ctx, delivery))

		retrieved, err := store.RetrieveDelivery(ctx, delivery.ID)
		require.NoError(t, err)
		assert.Equal(t, delivery.ID, retrieved.ID)
		assert.Equal(t, delivery.EndpointID, retrieved.EndpointID)
		assert.Equal(t, models.DeliveryStatusPending, retrieved.Status)
		assert.Equal(t, 0, retrieved.Attempts)
		assert.Equal(t, event.ID, retrieved.Event.ID)
		assert.Equal(t, "user.created", retrieved.Event.Type)
		assert.JSONEq(t, string(event.Data), string(retrieved.Event.Data))
		assert.WithinDuration(t, event.Timestamp, retrieved.Event.Timestamp, time.Millisecond)
		assert.Nil(t, retrieved.Response)
		assert.Nil(t, retrieved.LastAttemptAt)
		assert.Nil(t, retrieved.NextRetryAt)
		assert.WithinDuration(t, baseTime, retrieved.CreatedAt, time.Millisecond)
	})

	t.Run("create duplicate", func(t *testing.T) {
		delivery := testutil.DeliveryFactory.Any()
		require.NoError(t, store.CreateDelivery(ctx, delivery))

		assert.ErrorIs(t, store.CreateDelivery(ctx, delivery), driver.ErrDuplicateDelivery)
	})

	t.Run("retrieve missing", func(t *testing.T) {
		_, err := store.RetrieveDelivery(ctx, "dlv_missing")
		assert.ErrorIs(t, err, driver.ErrDeliveryNotFound)
	})

	t.Run("update records attempt outcome", func(t *testing.T) {
		delivery := testutil.DeliveryFactory.Any(
			testutil.DeliveryFactory.WithCreatedAt(baseTime),
		)
		require.NoError(t, store.CreateDelivery(ctx, delivery))

		attemptAt := baseTime.Add(time.Second)
		nextRetryAt := attemptAt.Add(time.Minute)
		delivery.Status = models.DeliveryStatusRetrying
		delivery.Attempts = 1
		delivery.ErrorCode = models.ErrorCodeHTTPStatus
		delivery.Error = "unexpected response status: 503"
		delivery.Response = &models.DeliveryResponse{
			StatusCode: 503,
			Body:       "upstream unavailable",
			Headers:    models.Headers{"Content-Type": "text/plain"},
		}
		delivery.DurationMS = 87
		delivery.LastAttemptAt = &attemptAt
		delivery.NextRetryAt = &nextRetryAt
		delivery.UpdatedAt = attemptAt
		require.NoError(t, store.UpdateDelivery(ctx, delivery))

		retrieved, err := store.RetrieveDelivery(ctx, delivery.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryStatusRetrying, retrieved.Status)
		assert.Equal(t, 1, retrieved.Attempts)
		assert.Equal(t, models.ErrorCodeHTTPStatus, retrieved.ErrorCode)
		assert.Equal(t, "unexpected response status: 503", retrieved.Error)
		require.NotNil(t, retrieved.Response)
		assert.Equal(t, 503, retrieved.Response.StatusCode)
		assert.Equal(t, "upstream unavailable", retrieved.Response.Body)
		assert.Equal(t, int64(87), retrieved.DurationMS)
		require.NotNil(t, retrieved.LastAttemptAt)
		assert.WithinDuration(t, attemptAt, *retrieved.LastAttemptAt, time.Millisecond)
		require.NotNil(t, retrieved.NextRetryAt)
		assert.WithinDuration(t, nextRetryAt, *retrieved.NextRetryAt, time.Millisecond)

		// A delivered outcome clears the retry schedule.
		delivery.Status = models.DeliveryStatusDelivered
		delivery.Attempts = 2
		delivery.ErrorCode = ""
		delivery.Error = ""
		delivery.Response = &models.DeliveryResponse{StatusCode: 200}
		delivery.NextRetryAt = nil
		require.NoError(t, store.UpdateDelivery(ctx, delivery))

		retrieved, err = store.RetrieveDelivery(ctx, delivery.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryStatusDelivered, retrieved.Status)
		assert.Equal(t, 2, retrieved.Attempts)
		assert.Empty(t, retrieved.ErrorCode)
		assert.Empty(t, retrieved.Error)
		assert.Nil(t, retrieved.NextRetryAt)
	})

	t.Run("update missing", func(t *testing.T) {
		delivery := testutil.DeliveryFactory.Any()
		assert.ErrorIs(t, store.UpdateDelivery(ctx, delivery), driver.ErrDeliveryNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		delivery := testutil.DeliveryFactory.Any()
		require.NoError(t, store.CreateDelivery(ctx, delivery))

		require.NoError(t, store.DeleteDelivery(ctx, delivery.ID))

		_, err := store.RetrieveDelivery(ctx, delivery.ID)
		assert.ErrorIs(t, err, driver.ErrDeliveryNotFound)

		assert.ErrorIs(t, store.DeleteDelivery(ctx, delivery.ID), driver.ErrDeliveryNotFound)

		// The delivery no longer shows up in its endpoint's listing.
		response, err := store.ListDeliveries(ctx, driver.ListDeliveriesRequest{EndpointID: delivery.EndpointID})
		require.NoError(t, err)
		assert.Empty(t, response.Data)
	})

	t.Run("retrieved value is a copy", func(t *testing.T) {
		delivery := testutil.DeliveryFactory.Any()
		require.NoError(t, store.CreateDelivery(ctx, delivery))

		retrieved, err := store.RetrieveDelivery(ctx, delivery.ID)
		require.NoError(t, err)
		retrieved.Status = models.DeliveryStatusFailed
		retrieved.Event.Data[0] = 'X'

		fresh, err := store.RetrieveDelivery(ctx, delivery.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryStatusPending, fresh.Status)
		assert.JSONEq(t, string(delivery.Event.Data), string(fresh.Event.Data))
	})
}

func testListDeliveries(t *testing.T, newHarness HarnessMaker) {
	t.Helper()

	ctx := context.Background()
	h, err := newHarness(ctx, t)
	require.NoError(t, err)
	t.Cleanup(h.Close)

	store, err := h.MakeDriver(ctx)
	require.NoError(t, err)

	baseTime := time.Now().Truncate(time.Millisecond).UTC()
	firstEndpoint := testutil.EndpointFactory.Any()
	secondEndpoint := testutil.EndpointFactory.Any()

	// firstEndpoint gets 5 deliveries (3 delivered, 2 failed), secondEndpoint
	// gets 3 pending ones. IDs are ordered so newest-first is deterministic.
	var firstIDs []string
	for i := 0; i < 5; i++ {
		status := models.DeliveryStatusDelivered
		if i%2 == 1 {
			status = models.DeliveryStatusFailed
		}
		delivery := testutil.DeliveryFactory.Any(
			testutil.DeliveryFactory.WithID(fmt.Sprintf("dlv_first_%02d", i)),
			testutil.DeliveryFactory.WithEndpointID(firstEndpoint.ID),
			testutil.DeliveryFactory.WithStatus(status),
			testutil.DeliveryFactory.WithCreatedAt(baseTime.Add(-time.Duration(i)*time.Minute)),
		)
		require.NoError(t, store.CreateDelivery(ctx, delivery))
		firstIDs = append(firstIDs, delivery.ID)
	}
	for i := 0; i < 3; i++ {
		delivery := testutil.DeliveryFactory.Any(
			testutil.DeliveryFactory.WithID(fmt.Sprintf("dlv_second_%02d", i)),
			testutil.DeliveryFactory.WithEndpointID(secondEndpoint.ID),
			testutil.DeliveryFactory.WithCreatedAt(baseTime.Add(-time.Duration(i)*time.Hour)),
		)
		require.NoError(t, store.CreateDelivery(ctx, delivery))
	}

	t.Run("by endpoint newest first", func(t *testing.T) {
		response, err := store.ListDeliveries(ctx, driver.ListDeliveriesRequest{EndpointID: firstEndpoint.ID})
		require.NoError(t, err)
		require.Len(t, response.Data, 5)
		assert.Equal(t, 5, response.Count)
		for i, delivery := range response.Data {
			assert.Equal(t, firstIDs[i], delivery.ID)
			assert.Equal(t, firstEndpoint.ID, delivery.EndpointID)
		}
	})

	t.Run("offset then limit", func(t *testing.T) {
		response, err := store.ListDeliveries(ctx, driver.ListDeliveriesRequest{
			EndpointID: firstEndpoint.ID,
			Limit:      2,
		})
		require.NoError(t, err)
		require.Len(t, response.Data, 2)
		assert.Equal(t, 5, response.Count)
		assert.Equal(t, firstIDs[0], response.Data[0].ID)
		assert.Equal(t, firstIDs[1], response.Data[1].ID)

		response, err = store.ListDeliveries(ctx, driver.ListDeliveriesRequest{
			EndpointID: firstEndpoint.ID,
			Limit:      2,
			Offset:     2,
		})
		require.NoError(t, err)
		require.Len(t, response.Data, 2)
		assert.Equal(t, firstIDs[2], response.Data[0].ID)
		assert.Equal(t, firstIDs[3], response.Data[1].ID)

		response, err = store.ListDeliveries(ctx, driver.ListDeliveriesRequest{
			EndpointID: firstEndpoint.ID,
			Offset:     10,
		})
		require.NoError(t, err)
		assert.Empty(t, response.Data)
		assert.Equal(t, 5, response.Count)
	})

	t.Run("status filter", func(t *testing.T) {
		response, err := store.ListDeliveries(ctx, driver.ListDeliveriesRequest{
			EndpointID: firstEndpoint.ID,
			Status:     models.DeliveryStatusDelivered,
		})
		require.NoError(t, err)
		require.Len(t, response.Data, 3)
		assert.Equal(t, 3, response.Count)
		for _, delivery := range response.Data {
			assert.Equal(t, models.DeliveryStatusDelivered, delivery.Status)
		}

		// Offset applies to the filtered set, not the raw set.
		response, err = store.ListDeliveries(ctx, driver.ListDeliveriesRequest{
			EndpointID: firstEndpoint.ID,
			Status:     models.DeliveryStatusDelivered,
			Offset:     1,
			Limit:      1,
		})
		require.NoError(t, err)
		require.Len(t, response.Data, 1)
		assert.Equal(t, firstIDs[2], response.Data[0].ID)
	})

	t.Run("across endpoints", func(t *testing.T) {
		response, err := store.ListDeliveries(ctx, driver.ListDeliveriesRequest{})
		require.NoError(t, err)
		assert.Len(t, response.Data, 8)
		assert.Equal(t, 8, response.Count)

		response, err = store.ListDeliveries(ctx, driver.ListDeliveriesRequest{
			Status: models.DeliveryStatusPending,
		})
		require.NoError(t, err)
		assert.Len(t, response.Data, 3)
		for _, delivery := range response.Data {
			assert.Equal(t, secondEndpoint.ID, delivery.EndpointID)
		}
	})
}
