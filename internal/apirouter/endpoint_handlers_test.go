package apirouter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wayposthq/waypost/internal/apirouter"
	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/store/driver"
	"github.com/wayposthq/waypost/internal/util/testutil"
)

func TestAPI_EndpointCreate(t *testing.T) {
	t.Parallel()

	t.Run("creates endpoint and reveals secret", func(t *testing.T) {
		h := newAPITest(t)

		req := h.jsonReq(http.MethodPost, baseAPIPath+"/endpoints", map[string]any{
			"url":    "https://example.com/webhook",
			"events": []string{"user.created", "user.deleted"},
		})
		resp := h.do(h.withAPIKey(req))

		require.Equal(t, http.StatusCreated, resp.Code)

		var endpoint models.Endpoint
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &endpoint))
		assert.NotEmpty(t, endpoint.ID)
		assert.Equal(t, "https://example.com/webhook", endpoint.URL)
		assert.Equal(t, models.EventTypes{"user.created", "user.deleted"}, endpoint.EventTypes)
		assert.True(t, endpoint.Active)
		assert.True(t, strings.HasPrefix(endpoint.Secret, models.SecretPrefix),
			"create response must carry the generated secret")

		stored, err := h.store.RetrieveEndpoint(context.Background(), endpoint.ID)
		require.NoError(t, err)
		assert.Equal(t, endpoint.Secret, stored.Secret)
	})

	t.Run("accepts wildcard subscription", func(t *testing.T) {
		h := newAPITest(t)

		req := h.jsonReq(http.MethodPost, baseAPIPath+"/endpoints", map[string]any{
			"url":    "https://example.com/webhook",
			"events": "*",
		})
		resp := h.do(h.withAPIKey(req))

		require.Equal(t, http.StatusCreated, resp.Code)

		var endpoint models.Endpoint
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &endpoint))
		assert.Equal(t, models.EventTypes{"*"}, endpoint.EventTypes)
	})

	t.Run("duplicate events stored as a set", func(t *testing.T) {
		h := newAPITest(t)

		req := h.jsonReq(http.MethodPost, baseAPIPath+"/endpoints", map[string]any{
			"url":    "https://example.com/webhook",
			"events": []string{"user.created", "user.created", "user.deleted"},
		})
		resp := h.do(h.withAPIKey(req))

		require.Equal(t, http.StatusCreated, resp.Code)

		var endpoint models.Endpoint
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &endpoint))
		assert.Equal(t, models.EventTypes{"user.created", "user.deleted"}, endpoint.EventTypes)

		stored, err := h.store.RetrieveEndpoint(context.Background(), endpoint.ID)
		require.NoError(t, err)
		assert.Equal(t, models.EventTypes{"user.created", "user.deleted"}, stored.EventTypes)
	})

	t.Run("active false is respected", func(t *testing.T) {
		h := newAPITest(t)

		req := h.jsonReq(http.MethodPost, baseAPIPath+"/endpoints", map[string]any{
			"url":    "https://example.com/webhook",
			"events": []string{"user.created"},
			"active": false,
		})
		resp := h.do(h.withAPIKey(req))

		require.Equal(t, http.StatusCreated, resp.Code)

		var endpoint models.Endpoint
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &endpoint))
		assert.False(t, endpoint.Active)
	})

	t.Run("missing url returns 422", func(t *testing.T) {
		h := newAPITest(t)

		req := h.jsonReq(http.MethodPost, baseAPIPath+"/endpoints", map[string]any{
			"events": []string{"user.created"},
		})
		resp := h.do(h.withAPIKey(req))

		require.Equal(t, http.StatusUnprocessableEntity, resp.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		data, ok := body["data"].([]any)
		require.True(t, ok)
		assert.Contains(t, data, "url is required")
	})

	t.Run("empty events returns 422", func(t *testing.T) {
		h := newAPITest(t)

		req := h.jsonReq(http.MethodPost, baseAPIPath+"/endpoints", map[string]any{
			"url":    "https://example.com/webhook",
			"events": []string{},
		})
		resp := h.do(h.withAPIKey(req))

		require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})

	t.Run("unknown event type returns 422", func(t *testing.T) {
		h := newAPITest(t)

		req := h.jsonReq(http.MethodPost, baseAPIPath+"/endpoints", map[string]any{
			"url":    "https://example.com/webhook",
			"events": []string{"order.shipped"},
		})
		resp := h.do(h.withAPIKey(req))

		require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})

	t.Run("http url rejected unless insecure allowed", func(t *testing.T) {
		h := newAPITest(t, withRouterConfig(func(cfg *apirouter.RouterConfig) {
			cfg.AllowInsecureHTTP = false
		}))

		req := h.jsonReq(http.MethodPost, baseAPIPath+"/endpoints", map[string]any{
			"url":    "http://example.com/webhook",
			"events": []string{"user.created"},
		})
		resp := h.do(h.withAPIKey(req))

		require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})

	t.Run("loopback http url allowed even in secure mode", func(t *testing.T) {
		h := newAPITest(t, withRouterConfig(func(cfg *apirouter.RouterConfig) {
			cfg.AllowInsecureHTTP = false
		}))

		req := h.jsonReq(http.MethodPost, baseAPIPath+"/endpoints", map[string]any{
			"url":    "http://127.0.0.1:9999/webhook",
			"events": []string{"user.created"},
		})
		resp := h.do(h.withAPIKey(req))

		require.Equal(t, http.StatusCreated, resp.Code)
	})

	t.Run("invalid retry config returns 422", func(t *testing.T) {
		h := newAPITest(t)

		req := h.jsonReq(http.MethodPost, baseAPIPath+"/endpoints", map[string]any{
			"url":    "https://example.com/webhook",
			"events": []string{"user.created"},
			"retry_config": map[string]any{
				"max_retries":           3,
				"initial_delay_seconds": 10,
				"max_delay_seconds":     1,
				"backoff_multiplier":    2,
			},
		})
		resp := h.do(h.withAPIKey(req))

		require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})
}

func TestAPI_EndpointList(t *testing.T) {
	t.Parallel()

	h := newAPITest(t)
	h.createEndpoint()
	h.createEndpoint()

	resp := h.do(h.withAPIKey(h.jsonReq(http.MethodGet, baseAPIPath+"/endpoints", nil)))

	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Data  []models.Endpoint `json:"data"`
		Count int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Data, 2)
	for _, endpoint := range body.Data {
		assert.Empty(t, endpoint.Secret, "list must not reveal secrets")
	}
}

func TestAPI_EndpointRetrieve(t *testing.T) {
	t.Parallel()

	t.Run("returns endpoint with secret redacted", func(t *testing.T) {
		h := newAPITest(t)
		created := h.createEndpoint()

		resp := h.do(h.withAPIKey(h.jsonReq(http.MethodGet, baseAPIPath+"/endpoints/"+created.ID, nil)))

		require.Equal(t, http.StatusOK, resp.Code)

		var endpoint models.Endpoint
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &endpoint))
		assert.Equal(t, created.ID, endpoint.ID)
		assert.Empty(t, endpoint.Secret)
	})

	t.Run("unknown endpoint returns 404", func(t *testing.T) {
		h := newAPITest(t)

		resp := h.do(h.withAPIKey(h.jsonReq(http.MethodGet, baseAPIPath+"/endpoints/ep_missing", nil)))

		require.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestAPI_EndpointUpdate(t *testing.T) {
	t.Parallel()

	t.Run("patches provided fields and keeps the rest", func(t *testing.T) {
		h := newAPITest(t)
		created := h.createEndpoint(
			testutil.EndpointFactory.WithURL("https://old.example.com/hook"),
			testutil.EndpointFactory.WithEventTypes([]string{"user.created"}),
		)

		req := h.jsonReq(http.MethodPatch, baseAPIPath+"/endpoints/"+created.ID, map[string]any{
			"url": "https://new.example.com/hook",
		})
		resp := h.do(h.withAPIKey(req))

		require.Equal(t, http.StatusOK, resp.Code)

		stored, err := h.store.RetrieveEndpoint(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://new.example.com/hook", stored.URL)
		assert.Equal(t, models.EventTypes{"user.created"}, stored.EventTypes)
		assert.Equal(t, created.Secret, stored.Secret, "patch must not touch the secret")
	})

	t.Run("replaces subscription and headers wholesale", func(t *testing.T) {
		h := newAPITest(t)
		created := h.createEndpoint(
			testutil.EndpointFactory.WithEventTypes([]string{"user.created"}),
			testutil.EndpointFactory.WithHeaders(map[string]string{"x-custom": "old"}),
		)

		req := h.jsonReq(http.MethodPatch, baseAPIPath+"/endpoints/"+created.ID, map[string]any{
			"events":  []string{"user.deleted", "invoice.paid"},
			"headers": map[string]string{"x-other": "new"},
		})
		resp := h.do(h.withAPIKey(req))

		require.Equal(t, http.StatusOK, resp.Code)

		stored, err := h.store.RetrieveEndpoint(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, models.EventTypes{"user.deleted", "invoice.paid"}, stored.EventTypes)
		assert.Equal(t, models.Headers{"x-other": "new"}, stored.Headers)
	})

	t.Run("invalid url returns 422 and leaves endpoint untouched", func(t *testing.T) {
		h := newAPITest(t)
		created := h.createEndpoint(testutil.EndpointFactory.WithURL("https://old.example.com/hook"))

		req := h.jsonReq(http.MethodPatch, baseAPIPath+"/endpoints/"+created.ID, map[string]any{
			"url": "not-a-url",
		})
		resp := h.do(h.withAPIKey(req))

		require.Equal(t, http.StatusUnprocessableEntity, resp.Code)

		stored, err := h.store.RetrieveEndpoint(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://old.example.com/hook", stored.URL)
	})

	t.Run("unknown endpoint returns 404", func(t *testing.T) {
		h := newAPITest(t)

		req := h.jsonReq(http.MethodPatch, baseAPIPath+"/endpoints/ep_missing", map[string]any{
			"url": "https://example.com/hook",
		})
		resp := h.do(h.withAPIKey(req))

		require.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestAPI_EndpointEnableDisable(t *testing.T) {
	t.Parallel()

	h := newAPITest(t)
	created := h.createEndpoint()

	t.Run("disable deactivates the endpoint", func(t *testing.T) {
		resp := h.do(h.withAPIKey(h.jsonReq(http.MethodPut, baseAPIPath+"/endpoints/"+created.ID+"/disable", nil)))

		require.Equal(t, http.StatusOK, resp.Code)

		stored, err := h.store.RetrieveEndpoint(context.Background(), created.ID)
		require.NoError(t, err)
		assert.False(t, stored.Active)
	})

	t.Run("disable is idempotent", func(t *testing.T) {
		resp := h.do(h.withAPIKey(h.jsonReq(http.MethodPut, baseAPIPath+"/endpoints/"+created.ID+"/disable", nil)))

		require.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("enable reactivates the endpoint", func(t *testing.T) {
		resp := h.do(h.withAPIKey(h.jsonReq(http.MethodPut, baseAPIPath+"/endpoints/"+created.ID+"/enable", nil)))

		require.Equal(t, http.StatusOK, resp.Code)

		stored, err := h.store.RetrieveEndpoint(context.Background(), created.ID)
		require.NoError(t, err)
		assert.True(t, stored.Active)
	})
}

func TestAPI_EndpointRotateSecret(t *testing.T) {
	t.Parallel()

	t.Run("returns the new secret and retains the previous one", func(t *testing.T) {
		h := newAPITest(t)
		created := h.createEndpoint()

		resp := h.do(h.withAPIKey(h.jsonReq(http.MethodPut, baseAPIPath+"/endpoints/"+created.ID+"/rotate-secret", nil)))

		require.Equal(t, http.StatusOK, resp.Code)

		var endpoint models.Endpoint
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &endpoint))
		assert.True(t, strings.HasPrefix(endpoint.Secret, models.SecretPrefix))
		assert.NotEqual(t, created.Secret, endpoint.Secret)

		stored, err := h.store.RetrieveEndpoint(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, endpoint.Secret, stored.Secret)
		assert.Equal(t, created.Secret, stored.PreviousSecret)
		require.NotNil(t, stored.RotatedAt)
	})

	t.Run("unknown endpoint returns 404", func(t *testing.T) {
		h := newAPITest(t)

		resp := h.do(h.withAPIKey(h.jsonReq(http.MethodPut, baseAPIPath+"/endpoints/ep_missing/rotate-secret", nil)))

		require.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestAPI_EndpointDelete(t *testing.T) {
	t.Parallel()

	t.Run("deletes the endpoint", func(t *testing.T) {
		h := newAPITest(t)
		created := h.createEndpoint()

		resp := h.do(h.withAPIKey(h.jsonReq(http.MethodDelete, baseAPIPath+"/endpoints/"+created.ID, nil)))

		require.Equal(t, http.StatusNoContent, resp.Code)

		_, err := h.store.RetrieveEndpoint(context.Background(), created.ID)
		assert.ErrorIs(t, err, driver.ErrEndpointNotFound)
	})

	t.Run("unknown endpoint returns 404", func(t *testing.T) {
		h := newAPITest(t)

		resp := h.do(h.withAPIKey(h.jsonReq(http.MethodDelete, baseAPIPath+"/endpoints/ep_missing", nil)))

		require.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestAPI_EndpointStats(t *testing.T) {
	t.Parallel()

	h := newAPITest(t)
	created := h.createEndpoint()
	h.createDelivery(
		testutil.DeliveryFactory.WithEndpointID(created.ID),
		testutil.DeliveryFactory.WithStatus(models.DeliveryStatusDelivered),
		testutil.DeliveryFactory.WithAttempts(1),
		testutil.DeliveryFactory.WithDurationMS(120),
	)
	h.createDelivery(
		testutil.DeliveryFactory.WithEndpointID(created.ID),
		testutil.DeliveryFactory.WithStatus(models.DeliveryStatusFailed),
		testutil.DeliveryFactory.WithAttempts(6),
		testutil.DeliveryFactory.WithDurationMS(80),
	)

	resp := h.do(h.withAPIKey(h.jsonReq(http.MethodGet, baseAPIPath+"/endpoints/"+created.ID+"/stats", nil)))

	require.Equal(t, http.StatusOK, resp.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["total"])
	assert.Equal(t, float64(1), body["delivered"])
	assert.Equal(t, float64(1), body["failed"])
	assert.Equal(t, float64(0), body["pending"])
	assert.Equal(t, float64(100), body["average_duration_ms"])
	assert.Equal(t, float64(50), body["success_rate"])
}
