package apirouter_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/wayposthq/waypost/internal/apirouter"
	"github.com/wayposthq/waypost/internal/engine"
	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/store/driver"
	"github.com/wayposthq/waypost/internal/util/testutil"
)

const (
	baseAPIPath = "/api/v1"
	testAPIKey  = "test_api_key"
)

// apiTest runs a router over a started in-memory engine. The engine's workers
// are live, so published events really get attempted.
type apiTest struct {
	t      *testing.T
	router http.Handler
	engine *engine.Engine
	store  driver.Store
}

type apiTestOptions struct {
	routerCfg  apirouter.RouterConfig
	engineOpts []engine.Option
}

type apiTestOption func(*apiTestOptions)

func withRouterConfig(f func(*apirouter.RouterConfig)) apiTestOption {
	return func(o *apiTestOptions) {
		f(&o.routerCfg)
	}
}

func withEngineOptions(opts ...engine.Option) apiTestOption {
	return func(o *apiTestOptions) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

func newAPITest(t *testing.T, opts ...apiTestOption) *apiTest {
	t.Helper()
	gin.SetMode(gin.TestMode)

	options := apiTestOptions{
		routerCfg: apirouter.RouterConfig{
			APIKey:            testAPIKey,
			EventTypes:        testutil.TestEventTypes,
			AllowInsecureHTTP: true,
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	logger := testutil.CreateTestLogger(t)
	engineOpts := append([]engine.Option{
		engine.WithLogger(logger),
		engine.WithEventTypes(options.routerCfg.EventTypes),
		engine.WithPollInterval(20 * time.Millisecond),
		engine.WithShutdownTimeout(10 * time.Second),
	}, options.engineOpts...)

	eng, err := engine.New(engineOpts...)
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() {
		_ = eng.Stop(context.Background())
	})

	router := apirouter.NewRouter(options.routerCfg, logger, eng)
	return &apiTest{t: t, router: router, engine: eng, store: eng.Store()}
}

func (h *apiTest) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *apiTest) jsonReq(method, path string, body any) *http.Request {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(testutil.MustMarshalJSON(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (h *apiTest) withAPIKey(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	return req
}

func (h *apiTest) createEndpoint(opts ...func(*models.Endpoint)) models.Endpoint {
	h.t.Helper()
	endpoint := testutil.EndpointFactory.Any(opts...)
	require.NoError(h.t, h.store.CreateEndpoint(context.Background(), endpoint))
	return endpoint
}

func (h *apiTest) createDelivery(opts ...func(*models.Delivery)) models.Delivery {
	h.t.Helper()
	delivery := testutil.DeliveryFactory.Any(opts...)
	require.NoError(h.t, h.store.CreateDelivery(context.Background(), delivery))
	return delivery
}

// okSink is a receiver that accepts everything, so live workers don't spin
// retries in the background while a test runs.
func okSink(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}
