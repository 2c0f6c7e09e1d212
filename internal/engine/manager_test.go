package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/store/memory"
)

type managerHarness struct {
	mgr     *Manager
	quotes  *fakeQuotes
	ledger  *fakeLedger
	configs *memory.BotConfigStore
	sink    *recordingSink
}

func newManagerHarness(t *testing.T, quoted map[string]int64, options ...ManagerOption) *managerHarness {
	t.Helper()
	h := &managerHarness{
		quotes:  &fakeQuotes{quoteFn: fixedQuote(quoted)},
		ledger:  newFakeLedger(1_000),
		configs: memory.NewBotConfigStore(),
		sink:    &recordingSink{},
	}
	deps := Deps{Quotes: h.quotes, Ledger: h.ledger, Configs: h.configs, Sink: h.sink, Logger: discardLogger()}
	h.mgr = NewManager(fakeWallet{}, deps, Options{CheckInterval: time.Hour, InitBackoff: time.Millisecond}, options...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.mgr.Shutdown(ctx)
	})
	return h
}

func pairBot(id string, gain *int64) domain.BotConfig {
	cfg := pairConfig(1_000, gain)
	return domain.BotConfig{ID: id, Kind: domain.BotKindSinglePair, SinglePair: &cfg}
}

func TestManagerRejectsDuplicateStart(t *testing.T) {
	h := newManagerHarness(t, map[string]int64{"USDC": 500})
	ctx := context.Background()

	require.NoError(t, h.mgr.Start(ctx, pairBot("dup", int64p(100))))
	h.mgr.mu.RLock()
	first := h.mgr.single["dup"]
	h.mgr.mu.RUnlock()

	changed := pairBot("dup", int64p(900))
	changed.SinglePair.ThresholdAmount = 1
	err := h.mgr.Start(ctx, changed)
	assert.ErrorIs(t, err, domain.ErrAlreadyRunning)

	h.mgr.mu.RLock()
	assert.Same(t, first, h.mgr.single["dup"])
	h.mgr.mu.RUnlock()
	assert.Equal(t, int64(1_000), first.Threshold())
	assert.Equal(t, domain.BotStatusRunning, first.Status())

	saved, err := h.configs.Get(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, int64(100), *saved.SinglePair.TargetGainBps)
}

func TestManagerStopUnknownIsNoOp(t *testing.T) {
	h := newManagerHarness(t, nil)
	assert.NoError(t, h.mgr.Stop(context.Background(), "ghost"))
	assert.False(t, h.mgr.Running("ghost"))
}

func TestManagerStopMarksInactive(t *testing.T) {
	h := newManagerHarness(t, map[string]int64{"USDC": 500})
	ctx := context.Background()

	require.NoError(t, h.mgr.Start(ctx, pairBot("p", int64p(100))))
	require.True(t, h.mgr.Running("p"))
	saved, err := h.configs.Get(ctx, "p")
	require.NoError(t, err)
	require.True(t, saved.Active)

	require.NoError(t, h.mgr.Stop(ctx, "p"))
	assert.False(t, h.mgr.Running("p"))
	saved, err = h.configs.Get(ctx, "p")
	require.NoError(t, err)
	assert.False(t, saved.Active)

	require.NoError(t, h.mgr.Start(ctx, pairBot("p", int64p(100))), "a stopped id can be started again")
}

func TestManagerRemovesSelfTerminatedBot(t *testing.T) {
	h := newManagerHarness(t, map[string]int64{"USDC": 1_000})
	ctx := context.Background()

	require.NoError(t, h.mgr.Start(ctx, pairBot("once", nil)))

	assert.Eventually(t, func() bool { return !h.mgr.Running("once") }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		cfg, err := h.configs.Get(ctx, "once")
		return err == nil && !cfg.Active && cfg.SinglePair.TradeCount == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestManagerListMergesPersistedAndLive(t *testing.T) {
	h := newManagerHarness(t, map[string]int64{"USDC": 500})
	ctx := context.Background()

	old := pairBot("a-old", int64p(100))
	old.SinglePair.TradeCount = 4
	require.NoError(t, h.configs.Save(ctx, old))
	require.NoError(t, h.mgr.Start(ctx, pairBot("b-live", int64p(100))))

	views, err := h.mgr.List(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "a-old", views[0].Config.ID)
	assert.Equal(t, domain.BotStatusStopped, views[0].Status)
	assert.Equal(t, 4, views[0].TradeCount)
	assert.Equal(t, "b-live", views[1].Config.ID)
	assert.Equal(t, domain.BotStatusRunning, views[1].Status)

	stored, err := h.configs.List(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2, "listing does not write")
}

func TestManagerStartActiveResumesPersistedBots(t *testing.T) {
	h := newManagerHarness(t, map[string]int64{"USDC": 500})
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3"} {
		cfg := pairBot(id, int64p(100))
		cfg.Active = id != "r3"
		require.NoError(t, h.configs.Save(ctx, cfg))
	}

	started, err := h.mgr.StartActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, started)
	assert.True(t, h.mgr.Running("r1"))
	assert.True(t, h.mgr.Running("r2"))
	assert.False(t, h.mgr.Running("r3"))
}

func TestManagerStopAll(t *testing.T) {
	h := newManagerHarness(t, map[string]int64{"USDC": 500, "A": 1})
	ctx := context.Background()

	require.NoError(t, h.mgr.Start(ctx, pairBot("p1", int64p(100))))
	multi := rotationConfig()
	require.NoError(t, h.mgr.Start(ctx, domain.BotConfig{ID: "m1", Kind: domain.BotKindMultiTarget, MultiTarget: &multi}))

	require.NoError(t, h.mgr.StopAll(ctx))
	assert.False(t, h.mgr.Running("p1"))
	assert.False(t, h.mgr.Running("m1"))

	for _, id := range []string{"p1", "m1"} {
		cfg, err := h.configs.Get(ctx, id)
		require.NoError(t, err)
		assert.False(t, cfg.Active, id)
	}
}

func TestManagerStartRejectsInvalidConfig(t *testing.T) {
	h := newManagerHarness(t, nil)
	ctx := context.Background()

	err := h.mgr.Start(ctx, domain.BotConfig{ID: "x", Kind: domain.BotKindSinglePair})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	bad := pairBot("g", int64p(-1))
	assert.ErrorIs(t, h.mgr.Start(ctx, bad), domain.ErrInvalidTargetGain)
	assert.False(t, h.mgr.Running("g"))
	_, err = h.configs.Get(ctx, "g")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManagerLeaseHeldElsewhere(t *testing.T) {
	locks := &fakeLocks{held: map[string]bool{"bot:busy": true}}
	h := newManagerHarness(t, map[string]int64{"USDC": 500}, WithLockManager(locks))
	ctx := context.Background()

	assert.ErrorIs(t, h.mgr.Start(ctx, pairBot("busy", int64p(100))), domain.ErrAlreadyRunning)

	require.NoError(t, h.mgr.Start(ctx, pairBot("free", int64p(100))))
	lease := locks.lease
	require.NoError(t, h.mgr.Stop(ctx, "free"))
	assert.Eventually(t, lease.isReleased, 2*time.Second, 5*time.Millisecond)
}

func TestManagerShutdownKeepsBotsActive(t *testing.T) {
	h := newManagerHarness(t, map[string]int64{"USDC": 500})
	ctx := context.Background()

	require.NoError(t, h.mgr.Start(ctx, pairBot("keep", int64p(100))))

	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, h.mgr.Shutdown(sctx))

	cfg, err := h.configs.Get(ctx, "keep")
	require.NoError(t, err)
	assert.True(t, cfg.Active)
	assert.ErrorIs(t, h.mgr.Start(ctx, pairBot("late", int64p(100))), domain.ErrBotStopped)
}

func TestManagerStopWinsOverConcurrentTradeSave(t *testing.T) {
	store := memory.NewBotConfigStore()
	configs := &gatedConfigs{BotConfigStore: store, gateAt: 1, entered: make(chan struct{}), gate: make(chan struct{})}
	deps := Deps{
		Quotes:  &fakeQuotes{quoteFn: fixedQuote(map[string]int64{"USDC": 1_000})},
		Ledger:  newFakeLedger(1_000),
		Configs: configs,
		Sink:    &recordingSink{},
		Logger:  discardLogger(),
	}
	mgr := NewManager(fakeWallet{}, deps, Options{CheckInterval: time.Hour, InitBackoff: time.Millisecond, PersistTimeout: 5 * time.Second})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
	})
	ctx := context.Background()

	require.NoError(t, mgr.Start(ctx, pairBot("p", int64p(100))))
	select {
	case <-configs.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("trade was never persisted")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- mgr.Stop(ctx, "p") }()
	time.Sleep(20 * time.Millisecond)
	close(configs.gate)
	require.NoError(t, <-stopped)

	assert.False(t, mgr.Running("p"))
	saved, err := store.Get(ctx, "p")
	require.NoError(t, err)
	assert.False(t, saved.Active)
	assert.Equal(t, 1, saved.SinglePair.TradeCount)
}

func TestManagerStopsBotWhenLeaseTakenOver(t *testing.T) {
	locks := &fakeLocks{refreshErr: domain.ErrLockHeld}
	h := newManagerHarness(t, map[string]int64{"USDC": 500}, WithLockManager(locks))
	h.mgr.opts.LockTTL = 30 * time.Millisecond
	ctx := context.Background()

	require.NoError(t, h.mgr.Start(ctx, pairBot("taken", int64p(100))))

	assert.Eventually(t, func() bool { return !h.mgr.Running("taken") }, 2*time.Second, 5*time.Millisecond)
	saved, err := h.configs.Get(ctx, "taken")
	require.NoError(t, err)
	assert.True(t, saved.Active, "the new holder owns the config")
	assert.Eventually(t, locks.lease.isReleased, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		h.sink.mu.Lock()
		defer h.sink.mu.Unlock()
		for _, l := range h.sink.logs {
			if l.Stopped && l.Level == domain.LogLevelWarn {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestManagerStopEventClearsStatus(t *testing.T) {
	h := newManagerHarness(t, map[string]int64{"USDC": 500})
	ctx := context.Background()

	require.NoError(t, h.mgr.Start(ctx, pairBot("s", int64p(100))))
	require.NoError(t, h.mgr.Stop(ctx, "s"))

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	var stopEvent *domain.LogEvent
	for i := range h.sink.logs {
		if h.sink.logs[i].Message == "bot stopped" {
			stopEvent = &h.sink.logs[i]
		}
	}
	require.NotNil(t, stopEvent)
	assert.True(t, stopEvent.Stopped)
}
