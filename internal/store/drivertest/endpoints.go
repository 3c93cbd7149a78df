package drivertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/store/driver"
	"github.com/wayposthq/waypost/internal/util/testutil"
)

func testEndpoints(t *testing.T, newHarness HarnessMaker) {
	t.Helper()

	ctx := context.Background()
	h, err := newHarness(ctx, t)
	require.NoError(t, err)
	t.Cleanup(h.Close)

	store, err := h.MakeDriver(ctx)
	require.NoError(t, err)

	baseTime := time.Now().Truncate(time.Millisecond).UTC()

	t.Run("create and retrieve", func(t *testing.T) {
		endpoint := testutil.EndpointFactory.Any(
			testutil.EndpointFactory.WithEventTypes([]string{"user.created", "user.deleted"}),
			testutil.EndpointFactory.WithHeaders(map[string]string{"x-tenant": "acme"}),
			testutil.EndpointFactory.WithRetryConfig(models.RetryConfig{
				MaxRetries:      3,
				InitialInterval: 2,
				MaxInterval:     60,
				Multiplier:      2,
			}),
			testutil.EndpointFactory.WithCreatedAt(baseTime),
		)
		endpoint.UpdatedAt = baseTime

		require.NoError(t, store.CreateEndpoint(ctx, endpoint))

		retrieved, err := store.RetrieveEndpoint(ctx, endpoint.ID)
		require.NoError(t, err)
		assert.Equal(t, endpoint.ID, retrieved.ID)
		assert.Equal(t, endpoint.URL, retrieved.URL)
		assert.Equal(t, endpoint.Secret, retrieved.Secret)
		assert.Equal(t, endpoint.EventTypes, retrieved.EventTypes)
		assert.Equal(t, endpoint.Headers, retrieved.Headers)
		assert.Equal(t, endpoint.RetryConfig, retrieved.RetryConfig)
		assert.True(t, retrieved.Active)
		assert.Nil(t, retrieved.RotatedAt)
		assert.WithinDuration(t, endpoint.CreatedAt, retrieved.CreatedAt, time.Millisecond)
	})

	t.Run("create duplicate", func(t *testing.T) {
		endpoint := testutil.EndpointFactory.Any()
		require.NoError(t, store.CreateEndpoint(ctx, endpoint))

		err := store.CreateEndpoint(ctx, endpoint)
		assert.ErrorIs(t, err, driver.ErrDuplicateEndpoint)
	})

	t.Run("retrieve missing", func(t *testing.T) {
		_, err := store.RetrieveEndpoint(ctx, "ep_missing")
		assert.ErrorIs(t, err, driver.ErrEndpointNotFound)
	})

	t.Run("upsert updates in place", func(t *testing.T) {
		endpoint := testutil.EndpointFactory.Any(
			testutil.EndpointFactory.WithCreatedAt(baseTime),
		)
		require.NoError(t, store.CreateEndpoint(ctx, endpoint))

		require.NoError(t, endpoint.RotateSecret(baseTime.Add(time.Hour)))
		endpoint.Active = false
		endpoint.URL = "https://example.com/webhooks/v2"
		endpoint.UpdatedAt = baseTime.Add(time.Hour)
		require.NoError(t, store.UpsertEndpoint(ctx, endpoint))

		retrieved, err := store.RetrieveEndpoint(ctx, endpoint.ID)
		require.NoError(t, err)
		assert.Equal(t, endpoint.Secret, retrieved.Secret)
		assert.Equal(t, endpoint.PreviousSecret, retrieved.PreviousSecret)
		assert.False(t, retrieved.Active)
		assert.Equal(t, "https://example.com/webhooks/v2", retrieved.URL)
		require.NotNil(t, retrieved.RotatedAt)
		assert.WithinDuration(t, baseTime.Add(time.Hour), *retrieved.RotatedAt, time.Millisecond)
	})

	t.Run("upsert creates when missing", func(t *testing.T) {
		endpoint := testutil.EndpointFactory.Any()
		require.NoError(t, store.UpsertEndpoint(ctx, endpoint))

		retrieved, err := store.RetrieveEndpoint(ctx, endpoint.ID)
		require.NoError(t, err)
		assert.Equal(t, endpoint.ID, retrieved.ID)
	})

	t.Run("list ordered by created_at", func(t *testing.T) {
		h, err := newHarness(ctx, t)
		require.NoError(t, err)
		t.Cleanup(h.Close)
		store, err := h.MakeDriver(ctx)
		require.NoError(t, err)

		first := testutil.EndpointFactory.Any(testutil.EndpointFactory.WithCreatedAt(baseTime.Add(-2 * time.Hour)))
		second := testutil.EndpointFactory.Any(testutil.EndpointFactory.WithCreatedAt(baseTime.Add(-time.Hour)))
		third := testutil.EndpointFactory.Any(testutil.EndpointFactory.WithCreatedAt(baseTime))
		require.NoError(t, store.CreateEndpoint(ctx, second))
		require.NoError(t, store.CreateEndpoint(ctx, third))
		require.NoError(t, store.CreateEndpoint(ctx, first))

		endpoints, err := store.ListEndpoints(ctx)
		require.NoError(t, err)
		require.Len(t, endpoints, 3)
		assert.Equal(t, first.ID, endpoints[0].ID)
		assert.Equal(t, second.ID, endpoints[1].ID)
		assert.Equal(t, third.ID, endpoints[2].ID)
	})

	t.Run("delete", func(t *testing.T) {
		endpoint := testutil.EndpointFactory.Any()
		require.NoError(t, store.CreateEndpoint(ctx, endpoint))

		require.NoError(t, store.DeleteEndpoint(ctx, endpoint.ID))

		_, err := store.RetrieveEndpoint(ctx, endpoint.ID)
		assert.ErrorIs(t, err, driver.ErrEndpointNotFound)

		assert.ErrorIs(t, store.DeleteEndpoint(ctx, endpoint.ID), driver.ErrEndpointNotFound)
	})

	t.Run("retrieved value is a copy", func(t *testing.T) {
		endpoint := testutil.EndpointFactory.Any(
			testutil.EndpointFactory.WithEventTypes([]string{"user.created"}),
			testutil.EndpointFactory.WithHeaders(map[string]string{"x-env": "prod"}),
		)
		require.NoError(t, store.CreateEndpoint(ctx, endpoint))

		retrieved, err := store.RetrieveEndpoint(ctx, endpoint.ID)
		require.NoError(t, err)
		retrieved.EventTypes[0] = "mutated"
		retrieved.Headers["x-env"] = "mutated"
		retrieved.URL = "https://mutated.example.com"

		fresh, err := store.RetrieveEndpoint(ctx, endpoint.ID)
		require.NoError(t, err)
		assert.Equal(t, models.EventTypes{"user.created"}, fresh.EventTypes)
		assert.Equal(t, models.Headers{"x-env": "prod"}, fresh.Headers)
		assert.Equal(t, endpoint.URL, fresh.URL)
	})
}
