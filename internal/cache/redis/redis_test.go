package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("bot:*"))
	assert.False(t, hasPattern("bot:swap"))
}

func TestDecodeDifferencesSortsByMint(t *testing.T) {
	out, err := decodeDifferences(map[string]string{
		"mintB": `{"bot_id":"b1","output_mint":"mintB","percent_difference":-1.5}`,
		"mintA": `{"bot_id":"b1","output_mint":"mintA","percent_difference":0.25}`,
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "mintA", out[0].OutputMint)
	assert.InDelta(t, -1.5, out[1].PercentDifference, 1e-9)
}

func TestDecodeDifferencesRejectsGarbage(t *testing.T) {
	_, err := decodeDifferences(map[string]string{"mintA": "{"})
	assert.Error(t, err)
}

// newIntegrationClient connects to SWAPBOT_TEST_REDIS_ADDR or skips.
func newIntegrationClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("SWAPBOT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SWAPBOT_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{Addr: addr, PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLockLeaseLifecycle(t *testing.T) {
	c := newIntegrationClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()
	key := "test:" + t.Name() + time.Now().Format(time.RFC3339Nano)

	lease, err := lm.Acquire(ctx, key, time.Second)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, key, time.Second)
	assert.True(t, errors.Is(err, domain.ErrLockHeld))

	require.NoError(t, lease.Refresh(ctx, 2*time.Second))
	lease.Release()
	lease.Release()

	again, err := lm.Acquire(ctx, key, time.Second)
	require.NoError(t, err)
	again.Release()
	assert.ErrorIs(t, lease.Refresh(ctx, time.Second), domain.ErrLockHeld)
}

func TestStatusCacheRoundTrip(t *testing.T) {
	c := newIntegrationClient(t)
	sc := NewStatusCache(c, time.Minute)
	ctx := context.Background()
	id := "test-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = sc.Clear(ctx, id) })

	require.NoError(t, sc.SetDifference(ctx, domain.DifferenceEvent{BotID: id, OutputMint: "m1", PercentDifference: 1}))
	require.NoError(t, sc.SetDifference(ctx, domain.DifferenceEvent{BotID: id, OutputMint: "m1", PercentDifference: 2}))

	got, err := sc.GetDifferences(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 2.0, got[0].PercentDifference, 1e-9)

	require.NoError(t, sc.Clear(ctx, id))
	_, err = sc.GetDifferences(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRateLimiterWindow(t *testing.T) {
	c := newIntegrationClient(t)
	rl := NewRateLimiter(c, 2, time.Second)
	ctx := context.Background()
	key := "test:" + time.Now().Format(time.RFC3339Nano)

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, key, 2, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, key, 2, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}
