package claims_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wayposthq/waypost/internal/claims"
	"github.com/wayposthq/waypost/internal/util/testutil"
)

func testClaims(t *testing.T, newClaims func(t *testing.T) claims.Claims) {
	t.Run("acquire then conflict", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		c := newClaims(t)

		acquired, err := c.Acquire(ctx, "dlv_1")
		require.NoError(t, err)
		assert.True(t, acquired)

		acquired, err = c.Acquire(ctx, "dlv_1")
		require.NoError(t, err)
		assert.False(t, acquired, "second acquire should conflict")
	})

	t.Run("release frees the claim", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		c := newClaims(t)

		acquired, err := c.Acquire(ctx, "dlv_2")
		require.NoError(t, err)
		require.True(t, acquired)

		require.NoError(t, c.Release(ctx, "dlv_2"))

		acquired, err = c.Acquire(ctx, "dlv_2")
		require.NoError(t, err)
		assert.True(t, acquired, "claim should be reacquirable after release")
	})

	t.Run("independent deliveries", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		c := newClaims(t)

		acquired, err := c.Acquire(ctx, "dlv_3")
		require.NoError(t, err)
		require.True(t, acquired)

		acquired, err = c.Acquire(ctx, "dlv_4")
		require.NoError(t, err)
		assert.True(t, acquired, "claims on different deliveries should not conflict")
	})

	t.Run("release unheld claim is a no-op", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		c := newClaims(t)

		require.NoError(t, c.Release(ctx, "dlv_unheld"))
	})

	t.Run("concurrent acquires admit exactly one", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		c := newClaims(t)

		const n = 10
		var wg sync.WaitGroup
		results := make(chan bool, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				acquired, err := c.Acquire(ctx, "dlv_race")
				assert.NoError(t, err)
				results <- acquired
			}()
		}
		wg.Wait()
		close(results)

		won := 0
		for acquired := range results {
			if acquired {
				won++
			}
		}
		assert.Equal(t, 1, won, "exactly one acquire should win")
	})
}

func TestMemClaims(t *testing.T) {
	t.Parallel()
	testClaims(t, func(t *testing.T) claims.Claims {
		return claims.New(nil)
	})
}

func TestRedisClaims(t *testing.T) {
	t.Parallel()
	testClaims(t, func(t *testing.T) claims.Claims {
		return claims.New(testutil.CreateTestRedisClient(t))
	})
}

func TestRedisClaims_ReleaseOnlyOwnClaim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := testutil.CreateTestRedisClient(t)

	first := claims.New(client)
	second := claims.New(client)

	acquired, err := first.Acquire(ctx, "dlv_owned")
	require.NoError(t, err)
	require.True(t, acquired)

	// The second instance never acquired the claim, so its release must not
	// free the first instance's hold.
	require.NoError(t, second.Release(ctx, "dlv_owned"))

	acquired, err = second.Acquire(ctx, "dlv_owned")
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestRedisClaims_SharedAcrossInstances(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := testutil.CreateTestRedisClient(t)

	first := claims.New(client)
	second := claims.New(client)

	acquired, err := first.Acquire(ctx, "dlv_shared")
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = second.Acquire(ctx, "dlv_shared")
	require.NoError(t, err)
	assert.False(t, acquired, "claim should be visible across instances")

	require.NoError(t, first.Release(ctx, "dlv_shared"))

	acquired, err = second.Acquire(ctx, "dlv_shared")
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestRedisClaims_TTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := testutil.CreateTestRedisClient(t)

	c := claims.New(client, claims.WithTTL(time.Minute))

	acquired, err := c.Acquire(ctx, "dlv_ttl")
	require.NoError(t, err)
	require.True(t, acquired)

	ttl := client.TTL(ctx, "waypost:claim:dlv_ttl").Val()
	assert.Greater(t, ttl, time.Duration(0), "claim key should expire")
	assert.LessOrEqual(t, ttl, time.Minute)
}
