package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// core holds the lifecycle shared by both bot kinds: status, the duplicate
// tick guard, the single-flight flag and termination.
type core struct {
	id     domain.BotID
	wallet domain.Wallet
	owner  string
	deps   Deps
	opts   Options
	logger *slog.Logger

	mu         sync.Mutex
	status     domain.BotStatus
	lastTick   time.Time
	tradeCount int

	waiting  atomic.Bool
	inflight sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// persistMu orders config saves against deactivation.
	persistMu   sync.Mutex
	deactivated bool

	onTerminate func(reason string)
}

func newCore(id domain.BotID, kind string, wallet domain.Wallet, deps Deps, opts Options) *core {
	return &core{
		id:     id,
		wallet: wallet,
		deps:   deps,
		opts:   opts,
		logger: deps.Logger.With(slog.String("component", kind), slog.String("bot_id", id)),
		status: domain.BotStatusRunning,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// ID returns the bot identity.
func (c *core) ID() domain.BotID { return c.id }

// Status returns running or stopped.
func (c *core) Status() domain.BotStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// TradeCount returns the number of completed trades.
func (c *core) TradeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tradeCount
}

// Waiting reports whether a swap is in flight.
func (c *core) Waiting() bool { return c.waiting.Load() }

// Done is closed when the run loop has exited.
func (c *core) Done() <-chan struct{} { return c.done }

// Stop terminates the bot without notifying the owner. It reports whether
// this call performed the transition. An in-flight swap is allowed to finish
// but its result is discarded.
func (c *core) Stop() bool {
	stopped := false
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.status = domain.BotStatusStopped
		c.mu.Unlock()
		close(c.stopCh)
		stopped = true
	})
	return stopped
}

// deactivate runs markInactive after any save in progress and makes every
// later save persist the bot as inactive.
func (c *core) deactivate(markInactive func()) {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	c.deactivated = true
	markInactive()
}

// wait blocks until any in-flight swap goroutine has returned.
func (c *core) wait() { c.inflight.Wait() }

// terminate stops the bot from inside and tells the owner so it can drop the
// bot from its registry.
func (c *core) terminate(ctx context.Context, reason string) {
	if !c.Stop() {
		return
	}
	c.logger.InfoContext(ctx, "bot terminated", slog.String("reason", reason))
	c.deps.Sink.Log(ctx, domain.LogEvent{
		BotID:     c.id,
		Level:     domain.LogLevelInfo,
		Message:   "bot terminated: " + reason,
		Stopped:   true,
		Timestamp: c.opts.Now(),
	})
	if c.onTerminate != nil {
		c.onTerminate(reason)
	}
}

// admit applies the status, elapsed-interval and single-flight guards in
// that order. On success it records now as the last executed tick.
func (c *core) admit(now time.Time) (TickOutcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != domain.BotStatusRunning {
		return TickStopped, false
	}
	if !c.lastTick.IsZero() && now.Sub(c.lastTick) < c.opts.minTickGap() {
		return TickTooSoon, false
	}
	if c.waiting.Load() {
		return TickBusy, false
	}
	c.lastTick = now
	return 0, true
}

// launch claims the single-flight flag and runs fn in its own goroutine. The
// flag is released when fn returns, whatever the outcome. fn gets a context
// that survives cancellation of the tick context so a submitted swap is
// always confirmed and accounted for.
func (c *core) launch(ctx context.Context, fn func(context.Context)) bool {
	if !c.waiting.CompareAndSwap(false, true) {
		return false
	}
	c.inflight.Add(1)
	swapCtx := context.WithoutCancel(ctx)
	go func() {
		defer c.inflight.Done()
		defer c.waiting.Store(false)
		fn(swapCtx)
	}()
	return true
}

func (c *core) run(ctx context.Context, tick func(context.Context)) {
	defer close(c.done)
	ticker := time.NewTicker(c.opts.CheckInterval)
	defer ticker.Stop()

	tick(ctx)
	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

func (c *core) report(ctx context.Context, level domain.LogLevel, format string, args ...any) {
	c.deps.Sink.Log(ctx, domain.LogEvent{
		BotID:     c.id,
		Level:     level,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: c.opts.Now(),
	})
}

// persist saves cfg. Failures are logged and otherwise ignored; in-memory
// state stays authoritative.
func (c *core) persist(ctx context.Context, cfg domain.BotConfig) {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	if c.deactivated {
		cfg.Active = false
	}
	pctx, cancel := context.WithTimeout(ctx, c.opts.PersistTimeout)
	defer cancel()
	cfg.UpdatedAt = c.opts.Now()
	if err := c.deps.Configs.Save(pctx, cfg); err != nil {
		c.logger.WarnContext(ctx, "persist bot config failed", slog.String("error", err.Error()))
		c.report(ctx, domain.LogLevelWarn, "failed to persist configuration: %v", err)
	}
}

func (c *core) recordSwap(ctx context.Context, res domain.SwapResult) {
	c.deps.Sink.SwapLogged(ctx, domain.SwapRecord{
		BotID:      c.id,
		InputMint:  res.InputMint,
		OutputMint: res.OutputMint,
		InAmount:   res.InAmount,
		OutAmount:  res.OutAmount,
		Signature:  res.Signature,
		ExecutedAt: res.ExecutedAt,
	})
}

// swapFailed handles an execution error. Verification failures terminate the
// bot; anything else is logged and retried on a later tick.
func (c *core) swapFailed(ctx context.Context, err error) {
	if isVerification(err) {
		c.logger.ErrorContext(ctx, "swap verification failed", slog.String("error", err.Error()))
		c.report(ctx, domain.LogLevelError, "swap verification failed: %v", err)
		c.terminate(ctx, "swap verification failed")
		return
	}
	c.logger.WarnContext(ctx, "swap failed", slog.String("error", err.Error()))
	c.report(ctx, domain.LogLevelError, "swap failed: %v", err)
}
