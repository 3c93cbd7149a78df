package apirouter_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wayposthq/waypost/internal/apirouter"
)

func TestRouterWithAPIKey(t *testing.T) {
	t.Parallel()

	h := newAPITest(t)

	t.Run("should block unauthenticated request to admin routes", func(t *testing.T) {
		resp := h.do(h.jsonReq(http.MethodGet, baseAPIPath+"/endpoints", nil))
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("should block request with wrong key", func(t *testing.T) {
		req := h.jsonReq(http.MethodGet, baseAPIPath+"/endpoints", nil)
		req.Header.Set("Authorization", "Bearer wrong_key")
		resp := h.do(req)
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("should block request with malformed bearer header", func(t *testing.T) {
		req := h.jsonReq(http.MethodGet, baseAPIPath+"/endpoints", nil)
		req.Header.Set("Authorization", "NotBearer "+testAPIKey)
		resp := h.do(req)
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("should block request with empty bearer token", func(t *testing.T) {
		req := h.jsonReq(http.MethodGet, baseAPIPath+"/endpoints", nil)
		req.Header.Set("Authorization", "Bearer ")
		resp := h.do(req)
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("should allow admin request", func(t *testing.T) {
		resp := h.do(h.withAPIKey(h.jsonReq(http.MethodGet, baseAPIPath+"/endpoints", nil)))
		assert.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("healthz requires no auth", func(t *testing.T) {
		resp := h.do(h.jsonReq(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, resp.Code)
	})
}

func TestRouterWithoutAPIKey(t *testing.T) {
	t.Parallel()

	h := newAPITest(t, withRouterConfig(func(cfg *apirouter.RouterConfig) {
		cfg.APIKey = ""
	}))

	t.Run("should allow unauthenticated request to admin routes", func(t *testing.T) {
		resp := h.do(h.jsonReq(http.MethodGet, baseAPIPath+"/endpoints", nil))
		assert.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("should allow request with any bearer token", func(t *testing.T) {
		req := h.jsonReq(http.MethodGet, baseAPIPath+"/endpoints", nil)
		req.Header.Set("Authorization", "Bearer anything")
		resp := h.do(req)
		assert.Equal(t, http.StatusOK, resp.Code)
	})
}

func TestRouterUnknownRoute(t *testing.T) {
	t.Parallel()

	h := newAPITest(t)

	resp := h.do(h.withAPIKey(h.jsonReq(http.MethodGet, baseAPIPath+"/nope", nil)))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
