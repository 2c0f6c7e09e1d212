package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"golang.org/x/sync/errgroup"
)

// bot is the surface the Manager needs from either bot kind.
type bot interface {
	ID() domain.BotID
	Run(ctx context.Context)
	Stop() bool
	Status() domain.BotStatus
	TradeCount() int
	Snapshot() domain.BotConfig
	Done() <-chan struct{}
	wait()
	deactivate(markInactive func())
	setOnTerminate(fn func(reason string))
}

func (c *core) setOnTerminate(fn func(reason string)) { c.onTerminate = fn }

// Manager is the process-wide registry of running bots. Bots run on a
// context owned by the Manager, not on the context of the call that started
// them.
type Manager struct {
	wallet domain.Wallet
	deps   Deps
	opts   Options
	locks  domain.LockManager
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	single   map[domain.BotID]*TradeBot
	multi    map[domain.BotID]*MultiBot
	starting map[domain.BotID]struct{}
	closed   bool
}

// ManagerOption configures optional Manager collaborators.
type ManagerOption func(*Manager)

// WithLockManager makes Start take a distributed lease per bot id so two
// processes never run the same bot.
func WithLockManager(lm domain.LockManager) ManagerOption {
	return func(m *Manager) { m.locks = lm }
}

// NewManager creates an empty registry. Every bot it starts trades with
// wallet.
func NewManager(wallet domain.Wallet, deps Deps, opts Options, options ...ManagerOption) *Manager {
	deps = deps.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		wallet:   wallet,
		deps:     deps,
		opts:     opts.withDefaults(),
		logger:   deps.Logger.With(slog.String("component", "manager")),
		ctx:      ctx,
		cancel:   cancel,
		single:   make(map[domain.BotID]*TradeBot),
		multi:    make(map[domain.BotID]*MultiBot),
		starting: make(map[domain.BotID]struct{}),
	}
	for _, o := range options {
		o(m)
	}
	return m
}

func lockKey(id domain.BotID) string { return "bot:" + id }

// Start constructs and runs the bot described by cfg. Starting an id that is
// already running fails with domain.ErrAlreadyRunning and leaves the running
// bot untouched.
func (m *Manager) Start(ctx context.Context, cfg domain.BotConfig) error {
	if err := cfg.ValidateShape(); err != nil {
		return fmt.Errorf("manager: start: %w", err)
	}
	id := cfg.ID

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("manager: start %s: %w", id, domain.ErrBotStopped)
	}
	if m.runningLocked(id) {
		m.mu.Unlock()
		return fmt.Errorf("manager: start %s: %w", id, domain.ErrAlreadyRunning)
	}
	m.starting[id] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.starting, id)
		m.mu.Unlock()
	}()

	var lease domain.Lease
	if m.locks != nil {
		l, err := m.locks.Acquire(ctx, lockKey(id), m.opts.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return fmt.Errorf("manager: start %s: running in another process: %w", id, domain.ErrAlreadyRunning)
			}
			return fmt.Errorf("manager: start %s: acquire lock: %w", id, err)
		}
		lease = l
	}

	b, err := m.build(ctx, cfg)
	if err != nil {
		if lease != nil {
			lease.Release()
		}
		m.logger.WarnContext(ctx, "bot failed to start", slog.String("bot_id", id), slog.String("error", err.Error()))
		m.deps.Sink.Log(ctx, domain.LogEvent{
			BotID:     id,
			Level:     domain.LogLevelError,
			Message:   "failed to start: " + err.Error(),
			Timestamp: m.opts.Now(),
		})
		return err
	}
	b.setOnTerminate(func(reason string) { m.terminated(id, b, reason) })

	snapshot := b.Snapshot()
	snapshot.Active = true
	snapshot.UpdatedAt = m.opts.Now()
	if err := m.deps.Configs.Save(ctx, snapshot); err != nil {
		m.logger.WarnContext(ctx, "persist started bot failed", slog.String("bot_id", id), slog.String("error", err.Error()))
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if lease != nil {
			lease.Release()
		}
		return fmt.Errorf("manager: start %s: %w", id, domain.ErrBotStopped)
	}
	switch v := b.(type) {
	case *TradeBot:
		m.single[id] = v
	case *MultiBot:
		m.multi[id] = v
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go m.supervise(b, lease)
	m.logger.InfoContext(ctx, "bot started", slog.String("bot_id", id), slog.String("kind", string(cfg.Kind)))
	return nil
}

func (m *Manager) build(ctx context.Context, cfg domain.BotConfig) (bot, error) {
	switch cfg.Kind {
	case domain.BotKindSinglePair:
		return NewTradeBot(ctx, cfg.ID, *cfg.SinglePair, m.wallet, m.deps, m.opts)
	case domain.BotKindMultiTarget:
		return NewMultiBot(ctx, cfg.ID, *cfg.MultiTarget, m.wallet, m.deps, m.opts)
	}
	return nil, fmt.Errorf("manager: %w: unknown kind %q", domain.ErrInvalidConfig, cfg.Kind)
}

// supervise runs b to completion, keeping its lease alive, and releases the
// lease once any in-flight swap has settled.
func (m *Manager) supervise(b bot, lease domain.Lease) {
	defer m.wg.Done()
	if lease != nil {
		defer lease.Release()
		go m.keepAlive(b, lease)
	}
	b.Run(m.ctx)
	b.wait()
}

func (m *Manager) keepAlive(b bot, lease domain.Lease) {
	ticker := time.NewTicker(m.opts.LockTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-b.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(m.ctx, m.opts.PersistTimeout)
			err := lease.Refresh(ctx, m.opts.LockTTL)
			cancel()
			if errors.Is(err, domain.ErrLockHeld) {
				m.leaseLost(b)
				return
			}
			if err != nil {
				m.logger.Warn("refresh bot lease failed", slog.String("bot_id", b.ID()), slog.String("error", err.Error()))
			}
		}
	}
}

// leaseLost stops b after another process took over its lease. The
// persisted config stays active; it belongs to the new holder now.
func (m *Manager) leaseLost(b bot) {
	id := b.ID()
	m.mu.Lock()
	removed := m.removeLocked(id, b)
	m.mu.Unlock()
	if !removed || !b.Stop() {
		return
	}
	m.logger.Warn("bot lease taken over, stopping", slog.String("bot_id", id))
	m.deps.Sink.Log(m.ctx, domain.LogEvent{
		BotID:     id,
		Level:     domain.LogLevelWarn,
		Message:   "bot stopped: lease taken over by another process",
		Stopped:   true,
		Timestamp: m.opts.Now(),
	})
}

// terminated is called by a bot that stopped itself.
func (m *Manager) terminated(id domain.BotID, b bot, reason string) {
	m.mu.Lock()
	removed := m.removeLocked(id, b)
	m.mu.Unlock()
	if !removed {
		return
	}
	m.logger.Info("bot removed from registry", slog.String("bot_id", id), slog.String("reason", reason))
	b.deactivate(func() { m.markInactive(context.Background(), id) })
}

// Stop terminates a running bot, removes it and marks its configuration
// inactive. Stopping an unknown id is a no-op.
func (m *Manager) Stop(ctx context.Context, id domain.BotID) error {
	m.mu.Lock()
	b := m.lookupLocked(id)
	if b == nil {
		m.mu.Unlock()
		return nil
	}
	m.removeLocked(id, b)
	m.mu.Unlock()

	b.Stop()
	m.logger.InfoContext(ctx, "bot stopped", slog.String("bot_id", id))
	m.deps.Sink.Log(ctx, domain.LogEvent{
		BotID:     id,
		Level:     domain.LogLevelInfo,
		Message:   "bot stopped",
		Stopped:   true,
		Timestamp: m.opts.Now(),
	})
	b.deactivate(func() { m.markInactive(ctx, id) })
	return nil
}

// StopAll stops every running bot and marks each inactive.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]domain.BotID, 0, len(m.single)+len(m.multi))
	for id := range m.single {
		ids = append(ids, id)
	}
	for id := range m.multi {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error { return m.Stop(gctx, id) })
	}
	return g.Wait()
}

// Shutdown stops every bot without touching persisted state, so active bots
// are resumed on the next start, and waits for in-flight swaps to settle.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("manager: shutdown: %w", ctx.Err())
	}
}

// StartActive starts every persisted configuration marked active and
// returns how many came up. Individual failures are logged.
func (m *Manager) StartActive(ctx context.Context) (int, error) {
	configs, err := m.deps.Configs.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("manager: start active: %w", err)
	}

	var (
		mu      sync.Mutex
		started int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, cfg := range configs {
		if !cfg.Active {
			continue
		}
		g.Go(func() error {
			if err := m.Start(gctx, cfg); err != nil {
				m.logger.WarnContext(gctx, "resume bot failed", slog.String("bot_id", cfg.ID), slog.String("error", err.Error()))
				return nil
			}
			mu.Lock()
			started++
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	return started, err
}

// Running reports whether id is registered.
func (m *Manager) Running(id domain.BotID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookupLocked(id) != nil
}

// List merges persisted configurations with live status, ordered by id.
// Bots running without a persisted record are included from their live
// state.
func (m *Manager) List(ctx context.Context) ([]domain.BotView, error) {
	configs, err := m.deps.Configs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("manager: list: %w", err)
	}

	m.mu.RLock()
	live := make(map[domain.BotID]bot, len(m.single)+len(m.multi))
	for id, b := range m.single {
		live[id] = b
	}
	for id, b := range m.multi {
		live[id] = b
	}
	m.mu.RUnlock()

	views := make([]domain.BotView, 0, len(configs)+len(live))
	seen := make(map[domain.BotID]bool, len(configs))
	for _, cfg := range configs {
		seen[cfg.ID] = true
		v := domain.BotView{Config: cfg, Status: domain.BotStatusStopped, TradeCount: tradeCountOf(cfg)}
		if b, ok := live[cfg.ID]; ok {
			v.Status = b.Status()
			v.TradeCount = b.TradeCount()
		}
		views = append(views, v)
	}
	for id, b := range live {
		if seen[id] {
			continue
		}
		views = append(views, domain.BotView{Config: b.Snapshot(), Status: b.Status(), TradeCount: b.TradeCount()})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Config.ID < views[j].Config.ID })
	return views, nil
}

func tradeCountOf(cfg domain.BotConfig) int {
	switch {
	case cfg.SinglePair != nil:
		return cfg.SinglePair.TradeCount
	case cfg.MultiTarget != nil:
		return cfg.MultiTarget.TradeCount
	}
	return 0
}

func (m *Manager) runningLocked(id domain.BotID) bool {
	if _, ok := m.starting[id]; ok {
		return true
	}
	return m.lookupLocked(id) != nil
}

func (m *Manager) lookupLocked(id domain.BotID) bot {
	if b, ok := m.single[id]; ok {
		return b
	}
	if b, ok := m.multi[id]; ok {
		return b
	}
	return nil
}

// removeLocked deletes id only if it still maps to b, so a late callback
// from an old instance cannot evict a newer one.
func (m *Manager) removeLocked(id domain.BotID, b bot) bool {
	switch v := b.(type) {
	case *TradeBot:
		if cur, ok := m.single[id]; ok && cur == v {
			delete(m.single, id)
			return true
		}
	case *MultiBot:
		if cur, ok := m.multi[id]; ok && cur == v {
			delete(m.multi, id)
			return true
		}
	}
	return false
}

func (m *Manager) markInactive(ctx context.Context, id domain.BotID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.PersistTimeout)
	defer cancel()
	if err := m.deps.Configs.SetActive(ctx, id, false); err != nil && !errors.Is(err, domain.ErrNotFound) {
		m.logger.WarnContext(ctx, "mark bot inactive failed", slog.String("bot_id", id), slog.String("error", err.Error()))
	}
}
