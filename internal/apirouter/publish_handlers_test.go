package apirouter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wayposthq/waypost/internal/apirouter"
	"github.com/wayposthq/waypost/internal/dispatch"
	"github.com/wayposthq/waypost/internal/engine"
	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/util/testutil"
)

func TestAPI_Publish(t *testing.T) {
	t.Parallel()

	t.Run("Auth", func(t *testing.T) {
		t.Parallel()

		t.Run("no auth returns 401", func(t *testing.T) {
			h := newAPITest(t)

			req := h.jsonReq(http.MethodPost, baseAPIPath+"/publish", map[string]any{
				"type": "user.created",
				"data": map[string]any{"user_id": "123"},
			})
			resp := h.do(req)

			require.Equal(t, http.StatusUnauthorized, resp.Code)
		})

		t.Run("api key succeeds", func(t *testing.T) {
			h := newAPITest(t)

			req := h.jsonReq(http.MethodPost, baseAPIPath+"/publish", map[string]any{
				"type": "user.created",
				"data": map[string]any{"user_id": "123"},
			})
			resp := h.do(h.withAPIKey(req))

			require.Equal(t, http.StatusAccepted, resp.Code)
		})
	})

	t.Run("Validation", func(t *testing.T) {
		t.Parallel()

		t.Run("missing type returns 422", func(t *testing.T) {
			h := newAPITest(t)

			req := h.jsonReq(http.MethodPost, baseAPIPath+"/publish", map[string]any{
				"data": map[string]any{"user_id": "123"},
			})
			resp := h.do(h.withAPIKey(req))

			require.Equal(t, http.StatusUnprocessableEntity, resp.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			data, ok := body["data"].([]any)
			require.True(t, ok)
			assert.Contains(t, data, "type is required")
		})

		t.Run("missing data returns 422", func(t *testing.T) {
			h := newAPITest(t)

			req := h.jsonReq(http.MethodPost, baseAPIPath+"/publish", map[string]any{
				"type": "user.created",
			})
			resp := h.do(h.withAPIKey(req))

			require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
		})

		t.Run("no body returns 400", func(t *testing.T) {
			h := newAPITest(t)

			req := httptest.NewRequest(http.MethodPost, baseAPIPath+"/publish", nil)
			req.Header.Set("Content-Type", "application/json")
			resp := h.do(h.withAPIKey(req))

			require.Equal(t, http.StatusBadRequest, resp.Code)
		})

		t.Run("unknown event type returns 422", func(t *testing.T) {
			h := newAPITest(t)

			req := h.jsonReq(http.MethodPost, baseAPIPath+"/publish", map[string]any{
				"type": "order.shipped",
				"data": map[string]any{},
			})
			resp := h.do(h.withAPIKey(req))

			require.Equal(t, http.StatusUnprocessableEntity, resp.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			assert.Equal(t, dispatch.ErrUnknownEventType.Error(), body["message"])
		})
	})

	t.Run("Fan-out", func(t *testing.T) {
		t.Parallel()

		t.Run("returns event id and created deliveries", func(t *testing.T) {
			h := newAPITest(t)
			sink := okSink(t)
			matching := h.createEndpoint(
				testutil.EndpointFactory.WithURL(sink.URL),
				testutil.EndpointFactory.WithEventTypes([]string{"user.created"}),
			)
			h.createEndpoint(
				testutil.EndpointFactory.WithURL(sink.URL),
				testutil.EndpointFactory.WithEventTypes([]string{"invoice.paid"}),
			)

			req := h.jsonReq(http.MethodPost, baseAPIPath+"/publish", map[string]any{
				"type": "user.created",
				"data": map[string]any{"user_id": "123"},
			})
			resp := h.do(h.withAPIKey(req))

			require.Equal(t, http.StatusAccepted, resp.Code)

			var result dispatch.Result
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
			assert.NotEmpty(t, result.EventID)
			require.Len(t, result.Deliveries, 1)
			assert.Equal(t, matching.ID, result.Deliveries[0].EndpointID)
			assert.Equal(t, result.EventID, result.Deliveries[0].Event.ID)
		})

		t.Run("no matching endpoints yields empty deliveries", func(t *testing.T) {
			h := newAPITest(t)

			req := h.jsonReq(http.MethodPost, baseAPIPath+"/publish", map[string]any{
				"type": "user.created",
				"data": map[string]any{},
			})
			resp := h.do(h.withAPIKey(req))

			require.Equal(t, http.StatusAccepted, resp.Code)

			var result dispatch.Result
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
			assert.NotEmpty(t, result.EventID)
			assert.Empty(t, result.Deliveries)
		})

		t.Run("published event gets delivered", func(t *testing.T) {
			h := newAPITest(t)
			sink := okSink(t)
			endpoint := h.createEndpoint(
				testutil.EndpointFactory.WithURL(sink.URL),
				testutil.EndpointFactory.WithEventTypes([]string{"user.created"}),
			)

			req := h.jsonReq(http.MethodPost, baseAPIPath+"/publish", map[string]any{
				"type": "user.created",
				"data": map[string]any{"user_id": "123"},
			})
			resp := h.do(h.withAPIKey(req))

			require.Equal(t, http.StatusAccepted, resp.Code)

			var result dispatch.Result
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
			require.Len(t, result.Deliveries, 1)

			deliveryID := result.Deliveries[0].ID
			require.Eventually(t, func() bool {
				delivery, err := h.store.RetrieveDelivery(context.Background(), deliveryID)
				return err == nil && delivery.Status == models.DeliveryStatusDelivered
			}, 5*time.Second, 25*time.Millisecond)

			delivered, err := h.store.RetrieveDelivery(context.Background(), deliveryID)
			require.NoError(t, err)
			assert.Equal(t, endpoint.ID, delivered.EndpointID)
			assert.Equal(t, 1, delivered.Attempts)
		})
	})

	t.Run("Error mapping", func(t *testing.T) {
		t.Parallel()

		t.Run("overloaded queue returns 429", func(t *testing.T) {
			h := newAPITest(t, withEngineOptions(engine.WithQueueDepth(0)))
			sink := okSink(t)
			h.createEndpoint(
				testutil.EndpointFactory.WithURL(sink.URL),
				testutil.EndpointFactory.WithEventTypes([]string{"user.created"}),
			)

			req := h.jsonReq(http.MethodPost, baseAPIPath+"/publish", map[string]any{
				"type": "user.created",
				"data": map[string]any{},
			})
			resp := h.do(h.withAPIKey(req))

			require.Equal(t, http.StatusTooManyRequests, resp.Code)

			var body struct {
				Message string          `json:"message"`
				Data    dispatch.Result `json:"data"`
			}
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			assert.Equal(t, "delivery queue is full", body.Message)
			// The fanout result rides along so callers can see what was
			// committed before the queue filled.
			assert.NotEmpty(t, body.Data.EventID)
			assert.Empty(t, body.Data.Deliveries)
		})

		t.Run("stopped engine returns 503", func(t *testing.T) {
			h := newAPITest(t)
			require.NoError(t, h.engine.Stop(context.Background()))

			req := h.jsonReq(http.MethodPost, baseAPIPath+"/publish", map[string]any{
				"type": "user.created",
				"data": map[string]any{},
			})
			resp := h.do(h.withAPIKey(req))

			require.Equal(t, http.StatusServiceUnavailable, resp.Code)
		})
	})

	t.Run("without an allow-list any type is accepted", func(t *testing.T) {
		t.Parallel()

		h := newAPITest(t, withRouterConfig(func(cfg *apirouter.RouterConfig) {
			cfg.EventTypes = nil
		}))

		req := h.jsonReq(http.MethodPost, baseAPIPath+"/publish", map[string]any{
			"type": "anything.goes",
			"data": map[string]any{},
		})
		resp := h.do(h.withAPIKey(req))

		require.Equal(t, http.StatusAccepted, resp.Code)
	})
}
