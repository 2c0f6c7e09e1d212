package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

func TestBotConfigStoreIsolatesCallerCopies(t *testing.T) {
	ctx := context.Background()
	s := NewBotConfigStore()
	cfg := domain.BotConfig{
		ID:         "a",
		Kind:       domain.BotKindSinglePair,
		Active:     true,
		SinglePair: &domain.SinglePairConfig{InputMint: "X", OutputMint: "Y", Amount: 10, ThresholdAmount: 11},
	}
	require.NoError(t, s.Save(ctx, cfg))

	cfg.SinglePair.Amount = 99
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.SinglePair.Amount)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestBotConfigStoreSetActive(t *testing.T) {
	ctx := context.Background()
	s := NewBotConfigStore()
	assert.ErrorIs(t, s.SetActive(ctx, "missing", false), domain.ErrNotFound)

	require.NoError(t, s.Save(ctx, domain.BotConfig{ID: "b", Active: true}))
	require.NoError(t, s.Save(ctx, domain.BotConfig{ID: "a", Active: true}))
	require.NoError(t, s.SetActive(ctx, "b", false))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.True(t, list[0].Active)
	assert.False(t, list[1].Active)
}

func TestSwapStoreListingAndArchiveWindow(t *testing.T) {
	ctx := context.Background()
	s := NewSwapStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, bot := range []string{"a", "b", "a", "a"} {
		require.NoError(t, s.Insert(ctx, domain.SwapRecord{
			ID:         string(rune('1' + i)),
			BotID:      bot,
			ExecutedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	assert.ErrorIs(t, s.Insert(ctx, domain.SwapRecord{ID: "1"}), domain.ErrAlreadyExists)

	recent, err := s.ListByBot(ctx, "a", domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "4", recent[0].ID)
	assert.Equal(t, "3", recent[1].ID)

	old, err := s.ListBefore(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, old, 2)
	assert.Equal(t, "1", old[0].ID)

	n, err := s.DeleteBefore(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	all, err := s.ListRecent(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAuditStoreNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewAuditStore()
	require.NoError(t, s.Log(ctx, domain.AuditSwapsArchived, map[string]any{"count": 3}))
	require.NoError(t, s.Log(ctx, domain.AuditBotStopped, map[string]any{"bot_id": "a"}))

	entries, err := s.List(ctx, domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditBotStopped, entries[0].Event)
	assert.Equal(t, "a", entries[0].BotID)
	assert.Equal(t, int64(2), entries[0].ID)

	entries, err = s.List(ctx, domain.ListOpts{Offset: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].BotID)
}

func TestStatusCacheKeepsLatestPerMint(t *testing.T) {
	c := NewStatusCache()
	ctx := context.Background()

	_, err := c.GetDifferences(ctx, "b1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, c.SetDifference(ctx, domain.DifferenceEvent{BotID: "b1", OutputMint: "B", PercentDifference: 1}))
	require.NoError(t, c.SetDifference(ctx, domain.DifferenceEvent{BotID: "b1", OutputMint: "A", PercentDifference: 2}))
	require.NoError(t, c.SetDifference(ctx, domain.DifferenceEvent{BotID: "b1", OutputMint: "B", PercentDifference: 3}))

	got, err := c.GetDifferences(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].OutputMint)
	assert.InDelta(t, 3.0, got[1].PercentDifference, 1e-9)

	require.NoError(t, c.Clear(ctx, "b1"))
	_, err = c.GetDifferences(ctx, "b1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSignalBusPatternDelivery(t *testing.T) {
	bus := NewSignalBus()
	ctx, cancel := context.WithCancel(context.Background())

	all, err := bus.Subscribe(ctx, "bot:*")
	require.NoError(t, err)
	swaps, err := bus.Subscribe(ctx, "bot:swap")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "bot:log", []byte("l")))
	require.NoError(t, bus.Publish(ctx, "bot:swap", []byte("s")))

	assert.Equal(t, "l", string(<-all))
	assert.Equal(t, "s", string(<-all))
	assert.Equal(t, "s", string(<-swaps))

	cancel()
	_, open := <-all
	for open {
		_, open = <-all
	}
}
