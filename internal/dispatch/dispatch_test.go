package dispatch_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wayposthq/waypost/internal/dispatch"
	"github.com/wayposthq/waypost/internal/eventtracer"
	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/scheduler"
	"github.com/wayposthq/waypost/internal/store/driver"
	"github.com/wayposthq/waypost/internal/store/memstore"
	"github.com/wayposthq/waypost/internal/util/testutil"
)

type fakeQueue struct {
	mu       sync.Mutex
	tasks    []models.AttemptTask
	failNext int
	err      error
}

func (q *fakeQueue) Enqueue(ctx context.Context, task models.AttemptTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failNext > 0 {
		q.failNext--
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) taskIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, 0, len(q.tasks))
	for _, task := range q.tasks {
		ids = append(ids, task.DeliveryID)
	}
	return ids
}

func TestDispatchFanout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.New()
	queue := &fakeQueue{}
	dispatcher := dispatch.New(testutil.CreateTestLogger(t), store, queue, eventtracer.NewEventTracer())

	exact := testutil.EndpointFactory.Any(
		testutil.EndpointFactory.WithEventTypes([]string{"user.created", "user.deleted"}),
	)
	wildcard := testutil.EndpointFactory.Any(
		testutil.EndpointFactory.WithEventTypes([]string{"*"}),
	)
	inactive := testutil.EndpointFactory.Any(
		testutil.EndpointFactory.WithEventTypes([]string{"user.created"}),
		testutil.EndpointFactory.WithActive(false),
	)
	otherType := testutil.EndpointFactory.Any(
		testutil.EndpointFactory.WithEventTypes([]string{"invoice.paid"}),
	)
	for _, endpoint := range []models.Endpoint{exact, wildcard, inactive, otherType} {
		require.NoError(t, store.CreateEndpoint(ctx, endpoint))
	}

	result, err := dispatcher.Dispatch(ctx, "user.created", json.RawMessage(`{"user_id":"usr_1"}`))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.EventID)
	require.Len(t, result.Deliveries, 2)

	gotEndpoints := make([]string, 0, 2)
	for _, delivery := range result.Deliveries {
		gotEndpoints = append(gotEndpoints, delivery.EndpointID)
		assert.Equal(t, models.DeliveryStatusPending, delivery.Status)
		assert.Equal(t, 0, delivery.Attempts)
		assert.Equal(t, result.EventID, delivery.Event.ID)
		assert.Equal(t, "user.created", delivery.Event.Type)

		stored, err := store.RetrieveDelivery(ctx, delivery.ID)
		require.NoError(t, err)
		assert.Equal(t, delivery.ID, stored.ID)
		assert.Contains(t, queue.taskIDs(), delivery.ID)
	}
	assert.ElementsMatch(t, []string{exact.ID, wildcard.ID}, gotEndpoints)
}

func TestDispatchNoMatches(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.New()
	queue := &fakeQueue{}
	dispatcher := dispatch.New(testutil.CreateTestLogger(t), store, queue, eventtracer.NewEventTracer())

	endpoint := testutil.EndpointFactory.Any(
		testutil.EndpointFactory.WithEventTypes([]string{"invoice.paid"}),
	)
	require.NoError(t, store.CreateEndpoint(ctx, endpoint))

	result, err := dispatcher.Dispatch(ctx, "user.created", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.NotEmpty(t, result.EventID)
	assert.Empty(t, result.Deliveries)
	assert.Empty(t, queue.taskIDs())
}

func TestDispatchEventTypeAllowList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dispatcher := dispatch.New(
		testutil.CreateTestLogger(t),
		memstore.New(),
		&fakeQueue{},
		eventtracer.NewEventTracer(),
		dispatch.WithEventTypes(testutil.TestEventTypes),
	)

	_, err := dispatcher.Dispatch(ctx, "order.shipped", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, dispatch.ErrUnknownEventType)

	_, err = dispatcher.Dispatch(ctx, "", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, dispatch.ErrRequiredEventType)

	result, err := dispatcher.Dispatch(ctx, "user.created", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.NotEmpty(t, result.EventID)
}

func TestDispatchEnqueueFailureRollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.New()
	queue := &fakeQueue{failNext: 1, err: scheduler.ErrOverloaded}
	dispatcher := dispatch.New(testutil.CreateTestLogger(t), store, queue, eventtracer.NewEventTracer())

	endpoint := testutil.EndpointFactory.Any()
	require.NoError(t, store.CreateEndpoint(ctx, endpoint))

	_, err := dispatcher.Dispatch(ctx, "user.created", json.RawMessage(`{}`))
	require.ErrorIs(t, err, scheduler.ErrOverloaded)

	// The record created for the rejected enqueue must be gone.
	listed, err := store.ListDeliveries(ctx, driver.ListDeliveriesRequest{})
	require.NoError(t, err)
	assert.Zero(t, listed.Count)
}

func TestDispatchPartialFanout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.New()
	queue := &fakeQueue{failNext: 1, err: scheduler.ErrOverloaded}
	dispatcher := dispatch.New(testutil.CreateTestLogger(t), store, queue, eventtracer.NewEventTracer())

	for i := 0; i < 3; i++ {
		require.NoError(t, store.CreateEndpoint(ctx, testutil.EndpointFactory.Any()))
	}

	result, err := dispatcher.Dispatch(ctx, "user.created", json.RawMessage(`{}`))
	require.ErrorIs(t, err, scheduler.ErrOverloaded)

	// Two of three endpoints made it through; their deliveries stand and the
	// rejected one left nothing behind.
	require.NotNil(t, result)
	assert.Len(t, result.Deliveries, 2)
	listed, err := store.ListDeliveries(ctx, driver.ListDeliveriesRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, listed.Count)
	assert.Len(t, queue.taskIDs(), 2)
}
