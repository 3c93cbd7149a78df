package attempt_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wayposthq/waypost/internal/alert"
	"github.com/wayposthq/waypost/internal/attempt"
	"github.com/wayposthq/waypost/internal/claims"
	"github.com/wayposthq/waypost/internal/consumer"
	"github.com/wayposthq/waypost/internal/eventtracer"
	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/store/driver"
	"github.com/wayposthq/waypost/internal/store/memstore"
	"github.com/wayposthq/waypost/internal/util/testutil"
)

type scheduledRetry struct {
	task  models.AttemptTask
	delay time.Duration
}

type fakeRetryScheduler struct {
	mu         sync.Mutex
	scheduled  []scheduledRetry
	done       int
	enqueueErr error
}

func (s *fakeRetryScheduler) EnqueueAfter(_ context.Context, task models.AttemptTask, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	s.scheduled = append(s.scheduled, scheduledRetry{task: task, delay: delay})
	return nil
}

func (s *fakeRetryScheduler) TaskDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done++
}

func (s *fakeRetryScheduler) all() []scheduledRetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduledRetry(nil), s.scheduled...)
}

func (s *fakeRetryScheduler) doneCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

type fakeMonitor struct {
	mu      sync.Mutex
	results []alert.AttemptResult
}

func (m *fakeMonitor) HandleAttempt(_ context.Context, result alert.AttemptResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
	return nil
}

func (m *fakeMonitor) all() []alert.AttemptResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]alert.AttemptResult(nil), m.results...)
}

type handlerEnv struct {
	store   driver.Store
	sched   *fakeRetryScheduler
	claims  claims.Claims
	handler consumer.MessageHandler
}

func newHandlerEnv(t *testing.T, opts ...attempt.HandlerOption) *handlerEnv {
	env := &handlerEnv{
		store:  memstore.New(),
		sched:  &fakeRetryScheduler{},
		claims: claims.New(nil),
	}
	env.handler = attempt.NewMessageHandler(
		testutil.CreateTestLogger(t),
		env.store,
		env.store,
		env.sched,
		env.claims,
		attempt.NewSender(),
		eventtracer.NewEventTracer(),
		opts...,
	)
	return env
}

func (env *handlerEnv) handle(t *testing.T, deliveryID string) error {
	task := models.NewAttemptTask(deliveryID)
	msg, err := task.ToMessage()
	require.NoError(t, err)
	return env.handler.Handle(context.Background(), msg)
}

func (env *handlerEnv) seed(t *testing.T, url string) (*models.Endpoint, *models.Delivery) {
	ctx := context.Background()
	endpoint := testutil.EndpointFactory.AnyPointer(
		testutil.EndpointFactory.WithURL(url),
	)
	require.NoError(t, env.store.CreateEndpoint(ctx, *endpoint))
	delivery := testutil.DeliveryFactory.AnyPointer(
		testutil.DeliveryFactory.WithEndpointID(endpoint.ID),
	)
	require.NoError(t, env.store.CreateDelivery(ctx, *delivery))
	return endpoint, delivery
}

func TestHandlerDelivers(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	env := newHandlerEnv(t)
	_, delivery := env.seed(t, server.URL)

	require.NoError(t, env.handle(t, delivery.ID))

	stored, err := env.store.RetrieveDelivery(context.Background(), delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusDelivered, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Empty(t, stored.Error)
	assert.Empty(t, stored.ErrorCode)
	assert.Nil(t, stored.NextRetryAt)
	require.NotNil(t, stored.Response)
	assert.Equal(t, http.StatusOK, stored.Response.StatusCode)
	assert.Equal(t, "ok", stored.Response.Body)
	require.NotNil(t, stored.LastAttemptAt)

	assert.Empty(t, env.sched.all())
	assert.Equal(t, 1, env.sched.doneCount())
}

func TestHandlerRetriesUntilExhausted(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	env := newHandlerEnv(t, attempt.WithDefaultRetryConfig(models.RetryConfig{
		MaxRetries:      2,
		InitialInterval: 1,
		MaxInterval:     3600,
		Multiplier:      2,
	}))
	_, delivery := env.seed(t, server.URL)
	ctx := context.Background()

	// Attempt 1 parks a retry after the initial interval.
	err := env.handle(t, delivery.ID)
	var atmErr *attempt.AttemptError
	require.ErrorAs(t, err, &atmErr)

	stored, err := env.store.RetrieveDelivery(ctx, delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusRetrying, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, models.ErrorCodeHTTPStatus, stored.ErrorCode)
	require.NotNil(t, stored.NextRetryAt)

	scheduled := env.sched.all()
	require.Len(t, scheduled, 1)
	assert.Equal(t, delivery.ID, scheduled[0].task.DeliveryID)
	assert.Equal(t, time.Second, scheduled[0].delay)

	// Attempt 2 doubles the backoff.
	require.Error(t, env.handle(t, delivery.ID))
	scheduled = env.sched.all()
	require.Len(t, scheduled, 2)
	assert.Equal(t, 2*time.Second, scheduled[1].delay)

	// Attempt 3 exceeds MaxRetries and fails terminally.
	require.Error(t, env.handle(t, delivery.ID))
	stored, err = env.store.RetrieveDelivery(ctx, delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusFailed, stored.Status)
	assert.Equal(t, 3, stored.Attempts)
	assert.Nil(t, stored.NextRetryAt)
	assert.Len(t, env.sched.all(), 2)
	assert.Equal(t, 3, env.sched.doneCount())
}

func TestHandlerEndpointRetryConfigOverride(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	// Endpoint allows no retries, overriding the handler default.
	env := newHandlerEnv(t)
	ctx := context.Background()
	endpoint := testutil.EndpointFactory.AnyPointer(
		testutil.EndpointFactory.WithURL(server.URL),
		testutil.EndpointFactory.WithRetryConfig(models.RetryConfig{
			MaxRetries:      0,
			InitialInterval: 1,
			MaxInterval:     1,
			Multiplier:      1,
		}),
	)
	require.NoError(t, env.store.CreateEndpoint(ctx, *endpoint))
	delivery := testutil.DeliveryFactory.AnyPointer(
		testutil.DeliveryFactory.WithEndpointID(endpoint.ID),
	)
	require.NoError(t, env.store.CreateDelivery(ctx, *delivery))

	require.Error(t, env.handle(t, delivery.ID))

	stored, err := env.store.RetrieveDelivery(ctx, delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, models.ErrorCodeHTTPStatus, stored.ErrorCode)
	assert.Empty(t, env.sched.all())
}

func TestHandlerNonRetryableStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	env := newHandlerEnv(t)
	_, delivery := env.seed(t, server.URL)

	require.Error(t, env.handle(t, delivery.ID))

	stored, err := env.store.RetrieveDelivery(context.Background(), delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, models.ErrorCodeHTTPStatus, stored.ErrorCode)
	assert.Empty(t, env.sched.all())
}

func TestHandlerEndpointGone(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	ctx := context.Background()

	t.Run("missing endpoint", func(t *testing.T) {
		env := newHandlerEnv(t)
		delivery := testutil.DeliveryFactory.AnyPointer(
			testutil.DeliveryFactory.WithEndpointID("ep_missing"),
		)
		require.NoError(t, env.store.CreateDelivery(ctx, *delivery))

		// Dropped without broker redelivery.
		require.NoError(t, env.handle(t, delivery.ID))

		stored, err := env.store.RetrieveDelivery(ctx, delivery.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryStatusFailed, stored.Status)
		assert.Equal(t, models.ErrorCodeEndpointGone, stored.ErrorCode)
		assert.Zero(t, stored.Attempts)
	})

	t.Run("inactive endpoint", func(t *testing.T) {
		env := newHandlerEnv(t)
		endpoint := testutil.EndpointFactory.AnyPointer(
			testutil.EndpointFactory.WithURL(server.URL),
			testutil.EndpointFactory.WithActive(false),
		)
		require.NoError(t, env.store.CreateEndpoint(ctx, *endpoint))
		delivery := testutil.DeliveryFactory.AnyPointer(
			testutil.DeliveryFactory.WithEndpointID(endpoint.ID),
		)
		require.NoError(t, env.store.CreateDelivery(ctx, *delivery))

		require.NoError(t, env.handle(t, delivery.ID))

		stored, err := env.store.RetrieveDelivery(ctx, delivery.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryStatusFailed, stored.Status)
		assert.Equal(t, models.ErrorCodeEndpointGone, stored.ErrorCode)
		assert.Zero(t, requests.Load())
	})
}

func TestHandlerDeliveryNotFound(t *testing.T) {
	t.Parallel()

	env := newHandlerEnv(t)
	require.NoError(t, env.handle(t, "dlv_missing"))
	assert.Equal(t, 1, env.sched.doneCount())
}

func TestHandlerTerminalDeliveryDropped(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	env := newHandlerEnv(t)
	ctx := context.Background()
	endpoint := testutil.EndpointFactory.AnyPointer(
		testutil.EndpointFactory.WithURL(server.URL),
	)
	require.NoError(t, env.store.CreateEndpoint(ctx, *endpoint))
	delivery := testutil.DeliveryFactory.AnyPointer(
		testutil.DeliveryFactory.WithEndpointID(endpoint.ID),
		testutil.DeliveryFactory.WithStatus(models.DeliveryStatusDelivered),
		testutil.DeliveryFactory.WithAttempts(1),
	)
	require.NoError(t, env.store.CreateDelivery(ctx, *delivery))

	require.NoError(t, env.handle(t, delivery.ID))

	stored, err := env.store.RetrieveDelivery(ctx, delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempts)
	assert.Zero(t, requests.Load())
}

func TestHandlerPayloadTooLarge(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	env := newHandlerEnv(t, attempt.WithMaxPayloadSize(64))
	ctx := context.Background()
	endpoint := testutil.EndpointFactory.AnyPointer(
		testutil.EndpointFactory.WithURL(server.URL),
	)
	require.NoError(t, env.store.CreateEndpoint(ctx, *endpoint))

	event := testutil.EventFactory.Any(
		testutil.EventFactory.WithData(testutil.MustMarshalJSON(map[string]string{
			"filler": testutil.RandomString(128),
		})),
	)
	delivery := testutil.DeliveryFactory.AnyPointer(
		testutil.DeliveryFactory.WithEndpointID(endpoint.ID),
		testutil.DeliveryFactory.WithEvent(event),
	)
	require.NoError(t, env.store.CreateDelivery(ctx, *delivery))

	require.NoError(t, env.handle(t, delivery.ID))

	stored, err := env.store.RetrieveDelivery(ctx, delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusFailed, stored.Status)
	assert.Equal(t, models.ErrorCodePayloadTooLarge, stored.ErrorCode)
	assert.Zero(t, requests.Load())
}

func TestHandlerPayloadAtLimitDelivers(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx := context.Background()
	event := testutil.EventFactory.Any()
	body, err := event.Payload()
	require.NoError(t, err)

	// Limit set to the exact body size. The attempt must go through.
	env := newHandlerEnv(t, attempt.WithMaxPayloadSize(int64(len(body))))
	endpoint := testutil.EndpointFactory.AnyPointer(
		testutil.EndpointFactory.WithURL(server.URL),
	)
	require.NoError(t, env.store.CreateEndpoint(ctx, *endpoint))
	delivery := testutil.DeliveryFactory.AnyPointer(
		testutil.DeliveryFactory.WithEndpointID(endpoint.ID),
		testutil.DeliveryFactory.WithEvent(event),
	)
	require.NoError(t, env.store.CreateDelivery(ctx, *delivery))

	require.NoError(t, env.handle(t, delivery.ID))

	stored, err := env.store.RetrieveDelivery(ctx, delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusDelivered, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
}

func TestHandlerRequeuesWhenClaimHeld(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	env := newHandlerEnv(t)
	ctx := context.Background()
	_, delivery := env.seed(t, server.URL)

	acquired, err := env.claims.Acquire(ctx, delivery.ID)
	require.NoError(t, err)
	require.True(t, acquired)
	defer env.claims.Release(ctx, delivery.ID)

	require.NoError(t, env.handle(t, delivery.ID))

	// Parked instead of attempted.
	scheduled := env.sched.all()
	require.Len(t, scheduled, 1)
	assert.Equal(t, delivery.ID, scheduled[0].task.DeliveryID)
	assert.Equal(t, attempt.DefaultClaimRetryDelay, scheduled[0].delay)
	assert.Zero(t, requests.Load())

	stored, err := env.store.RetrieveDelivery(ctx, delivery.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Attempts)
}

func TestHandlerMalformedTask(t *testing.T) {
	t.Parallel()

	env := newHandlerEnv(t)
	task := models.AttemptTask{DeliveryID: "dlv_1"}
	msg, err := task.ToMessage()
	require.NoError(t, err)
	msg.Body = []byte("not json")

	require.Error(t, env.handler.Handle(context.Background(), msg))
	assert.Equal(t, 1, env.sched.doneCount())
}

func TestHandlerReleasesClaim(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	env := newHandlerEnv(t)
	ctx := context.Background()
	_, delivery := env.seed(t, server.URL)

	require.NoError(t, env.handle(t, delivery.ID))

	acquired, err := env.claims.Acquire(ctx, delivery.ID)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestHandlerFeedsAlertMonitor(t *testing.T) {
	t.Parallel()

	status := atomic.Int64{}
	status.Store(http.StatusInternalServerError)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	monitor := &fakeMonitor{}
	env := newHandlerEnv(t, attempt.WithAlertMonitor(monitor))
	endpoint, delivery := env.seed(t, server.URL)

	require.Error(t, env.handle(t, delivery.ID))
	status.Store(http.StatusOK)
	require.NoError(t, env.handle(t, delivery.ID))

	results := monitor.all()
	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.Equal(t, endpoint.ID, results[0].Endpoint.ID)
	assert.True(t, results[1].Success)
}
