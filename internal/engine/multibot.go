package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/numeric"
	"github.com/shopspring/decimal"
)

// MultiBot rotates one held balance across a set of candidate tokens. Every
// target is an amount of its token; the first target whose quoted output
// meets its amount is bought with the whole balance, and the token just sold
// becomes a new target priced at what was paid plus the gain.
type MultiBot struct {
	*core

	heldMint    string
	heldAmount  decimal.Decimal
	heldAccount string
	targets     []domain.Target
	gainBps     int64
	slippageBps int
	decimals    map[string]uint8
}

// NewMultiBot validates cfg, resolves the wallet and the held token account
// and returns a bot ready to Run. A tick never quotes from a holding whose
// token account is unknown. The token account lookup is retried with a
// linear backoff.
func NewMultiBot(ctx context.Context, id domain.BotID, cfg domain.MultiTargetConfig, wallet domain.Wallet, deps Deps, opts Options) (*MultiBot, error) {
	if err := validateMultiTarget(cfg, wallet, deps); err != nil {
		return nil, fmt.Errorf("engine: new multi bot %s: %w", id, err)
	}
	deps = deps.withDefaults()
	opts = opts.withDefaults().forBot(cfg.CheckIntervalMs, cfg.SlippageBps)

	owner, err := deps.Ledger.ResolveWalletAddress(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("engine: new multi bot %s: resolve wallet: %w", id, err)
	}

	b := &MultiBot{
		core:        newCore(id, "multibot", wallet, deps, opts),
		heldMint:    cfg.HeldMint,
		heldAmount:  cfg.HeldAmount,
		targets:     append([]domain.Target(nil), cfg.Targets...),
		gainBps:     cfg.TargetGainBps,
		slippageBps: opts.SlippageBps,
		decimals:    make(map[string]uint8),
	}
	b.owner = owner
	b.tradeCount = cfg.TradeCount

	account, err := b.resolveAccount(ctx, cfg.HeldMint)
	if err != nil {
		return nil, fmt.Errorf("engine: new multi bot %s: %w", id, err)
	}
	b.heldAccount = account
	return b, nil
}

func validateMultiTarget(cfg domain.MultiTargetConfig, wallet domain.Wallet, deps Deps) error {
	var problems []string
	if wallet == nil {
		problems = append(problems, "wallet is required")
	}
	if deps.Ledger == nil {
		problems = append(problems, "ledger is required")
	}
	if deps.Quotes == nil {
		problems = append(problems, "quote provider is required")
	}
	if strings.TrimSpace(cfg.HeldMint) == "" {
		problems = append(problems, "held mint is required")
	}
	if !cfg.HeldAmount.IsPositive() {
		problems = append(problems, "held amount must be positive")
	}
	if len(cfg.Targets) == 0 {
		problems = append(problems, "at least one target is required")
	}
	seen := map[string]bool{cfg.HeldMint: true}
	for i, t := range cfg.Targets {
		switch {
		case strings.TrimSpace(t.Mint) == "":
			problems = append(problems, fmt.Sprintf("target %d: mint is required", i))
		case seen[t.Mint]:
			problems = append(problems, fmt.Sprintf("target %d: mint %s duplicates the held token or another target", i, t.Mint))
		}
		seen[t.Mint] = true
		if !t.Amount.IsPositive() {
			problems = append(problems, fmt.Sprintf("target %d: amount must be positive", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	if cfg.TargetGainBps <= 0 {
		return fmt.Errorf("%w: target gain must be positive, got %d bps", domain.ErrInvalidTargetGain, cfg.TargetGainBps)
	}
	return nil
}

func (b *MultiBot) resolveAccount(ctx context.Context, mint string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= b.opts.InitAttempts; attempt++ {
		account, err := b.deps.Ledger.TokenAccount(ctx, b.owner, mint)
		if err == nil {
			return account, nil
		}
		lastErr = err
		b.logger.WarnContext(ctx, "token account lookup failed",
			slog.String("mint", mint),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if attempt == b.opts.InitAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * b.opts.InitBackoff):
		}
	}
	return "", fmt.Errorf("token account for %s after %d attempts: %w", mint, b.opts.InitAttempts, lastErr)
}

func (b *MultiBot) decimalsFor(ctx context.Context, mint string) (uint8, error) {
	b.mu.Lock()
	d, ok := b.decimals[mint]
	b.mu.Unlock()
	if ok {
		return d, nil
	}
	qctx, cancel := context.WithTimeout(ctx, b.opts.QuoteTimeout)
	defer cancel()
	d, err := b.deps.Ledger.TokenDecimals(qctx, mint)
	if err != nil {
		return 0, fmt.Errorf("decimals for %s: %w", mint, err)
	}
	b.mu.Lock()
	b.decimals[mint] = d
	b.mu.Unlock()
	return d, nil
}

// Run polls until the bot is stopped or ctx is cancelled.
func (b *MultiBot) Run(ctx context.Context) {
	b.logger.InfoContext(ctx, "multi bot started",
		slog.String("held_mint", b.heldMint),
		slog.String("held_amount", b.heldAmount.String()),
		slog.Int("targets", len(b.targets)),
	)
	b.run(ctx, func(ctx context.Context) { b.Tick(ctx) })
}

type quotedTarget struct {
	target domain.Target
	out    decimal.Decimal
}

// Tick scans the targets in order and swaps into the first one whose quote
// meets its amount. When none does, one difference event per quoted target
// is emitted.
func (b *MultiBot) Tick(ctx context.Context) TickOutcome {
	if outcome, ok := b.admit(b.opts.Now()); !ok {
		return outcome
	}

	b.mu.Lock()
	held := b.heldMint
	heldAmount := b.heldAmount
	heldAccount := b.heldAccount
	targets := append([]domain.Target(nil), b.targets...)
	trades := b.tradeCount
	b.mu.Unlock()

	if heldAccount == "" {
		account, err := b.deps.Ledger.TokenAccount(ctx, b.owner, held)
		if err != nil {
			b.logger.WarnContext(ctx, "held token account unavailable", slog.String("mint", held), slog.String("error", err.Error()))
			return TickQuoteFailed
		}
		b.mu.Lock()
		if b.heldMint == held {
			b.heldAccount = account
		}
		b.mu.Unlock()
	}

	heldDecimals, err := b.decimalsFor(ctx, held)
	if err != nil {
		b.logger.WarnContext(ctx, "held token decimals unavailable", slog.String("error", err.Error()))
		return TickQuoteFailed
	}
	amount, err := numeric.ToBaseUnits(heldAmount, heldDecimals)
	if err != nil || amount <= 0 {
		b.logger.ErrorContext(ctx, "held amount not representable", slog.String("held_amount", heldAmount.String()))
		return TickQuoteFailed
	}

	var quoted []quotedTarget
	for _, t := range targets {
		if b.Status() != domain.BotStatusRunning {
			return TickStopped
		}
		targetDecimals, err := b.decimalsFor(ctx, t.Mint)
		if err != nil {
			b.logger.WarnContext(ctx, "target decimals unavailable, skipping", slog.String("mint", t.Mint), slog.String("error", err.Error()))
			continue
		}
		qctx, cancel := context.WithTimeout(ctx, b.opts.QuoteTimeout)
		quote, err := b.deps.Quotes.Quote(qctx, domain.QuoteRequest{
			InputMint:   held,
			OutputMint:  t.Mint,
			Amount:      amount,
			Mode:        domain.SwapModeExactIn,
			SlippageBps: b.slippageBps,
		})
		cancel()
		if err != nil {
			b.logger.WarnContext(ctx, "quote unavailable, skipping target", slog.String("mint", t.Mint), slog.String("error", timeoutAware(err).Error()))
			b.report(ctx, domain.LogLevelWarn, "quote %s -> %s failed: %v", held, t.Mint, err)
			continue
		}

		out := numeric.FromBaseUnits(quote.OutAmount, targetDecimals)
		if out.GreaterThanOrEqual(t.Amount) {
			if b.Status() != domain.BotStatusRunning {
				return TickStopped
			}
			b.logger.InfoContext(ctx, "target reached, executing swap",
				slog.String("target_mint", t.Mint),
				slog.String("quoted", out.String()),
				slog.String("target", t.Amount.String()),
			)
			if !b.launch(ctx, func(ctx context.Context) { b.swap(ctx, quote) }) {
				return TickBusy
			}
			return TickSwapStarted
		}
		quoted = append(quoted, quotedTarget{target: t, out: out})
	}

	if len(quoted) == 0 {
		return TickQuoteFailed
	}
	now := b.opts.Now()
	for _, q := range quoted {
		b.deps.Sink.Difference(ctx, domain.DifferenceEvent{
			BotID:             b.id,
			InputMint:         held,
			OutputMint:        q.target.Mint,
			CurrentAmount:     q.out.String(),
			TargetAmount:      q.target.Amount.String(),
			PercentDifference: numeric.PercentDifferenceDecimal(q.out, q.target.Amount),
			TradeCount:        trades,
			Timestamp:         now,
		})
	}
	return TickBelowTarget
}

func (b *MultiBot) swap(ctx context.Context, quote domain.Quote) {
	res, err := executeSwap(ctx, b.deps, b.opts, b.wallet, b.owner, quote)
	if err != nil {
		b.swapFailed(ctx, err)
		return
	}
	b.completeTrade(ctx, res)
}

// completeTrade moves the balance into the purchased token. The sold token
// becomes a target at what was paid for it scaled by the gain, the remaining
// targets are scaled by the same factor and the purchased token leaves the
// target list.
func (b *MultiBot) completeTrade(ctx context.Context, res domain.SwapResult) {
	outDecimals, err := b.decimalsFor(ctx, res.OutputMint)
	if err != nil {
		b.swapFailed(ctx, fmt.Errorf("%w: %v", domain.ErrSwapVerification, err))
		return
	}

	b.mu.Lock()
	if b.status != domain.BotStatusRunning {
		b.mu.Unlock()
		b.logger.InfoContext(ctx, "discarding swap result for stopped bot", slog.String("signature", res.Signature))
		return
	}
	soldDecimals := b.decimals[res.InputMint]
	factor := numeric.GainFactor(b.gainBps)
	paid := numeric.FromBaseUnits(res.InAmount, soldDecimals)

	next := make([]domain.Target, 0, len(b.targets))
	for _, t := range b.targets {
		if t.Mint == res.OutputMint {
			continue
		}
		next = append(next, domain.Target{Mint: t.Mint, Amount: t.Amount.Mul(factor)})
	}
	next = append(next, domain.Target{
		Mint:   res.InputMint,
		Amount: paid.Mul(factor).Truncate(int32(soldDecimals)),
	})

	b.targets = next
	b.heldMint = res.OutputMint
	b.heldAmount = numeric.FromBaseUnits(res.OutAmount, outDecimals)
	b.heldAccount = ""
	b.tradeCount++
	cfg := b.snapshotLocked()
	b.mu.Unlock()

	account, err := b.deps.Ledger.TokenAccount(ctx, b.owner, res.OutputMint)
	if err != nil {
		b.logger.WarnContext(ctx, "token account for new holding unavailable", slog.String("mint", res.OutputMint), slog.String("error", err.Error()))
	} else {
		b.mu.Lock()
		b.heldAccount = account
		b.mu.Unlock()
	}

	b.logger.InfoContext(ctx, "swap completed",
		slog.String("signature", res.Signature),
		slog.String("held_mint", cfg.MultiTarget.HeldMint),
		slog.String("held_amount", cfg.MultiTarget.HeldAmount.String()),
	)
	b.persist(ctx, cfg)
	b.recordSwap(ctx, res)
	b.report(ctx, domain.LogLevelInfo, "rotated %s %s into %s %s",
		paid.String(), res.InputMint, cfg.MultiTarget.HeldAmount.String(), res.OutputMint)
}

// Holding returns the held token and amount in human units.
func (b *MultiBot) Holding() (string, decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.heldMint, b.heldAmount
}

// Targets returns a copy of the current targets in scan order.
func (b *MultiBot) Targets() []domain.Target {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Target(nil), b.targets...)
}

// Snapshot returns the persisted projection of the bot's current state.
func (b *MultiBot) Snapshot() domain.BotConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *MultiBot) snapshotLocked() domain.BotConfig {
	return domain.BotConfig{
		ID:     b.id,
		Kind:   domain.BotKindMultiTarget,
		Active: b.status == domain.BotStatusRunning,
		MultiTarget: &domain.MultiTargetConfig{
			HeldMint:        b.heldMint,
			HeldAmount:      b.heldAmount,
			Targets:         append([]domain.Target(nil), b.targets...),
			TargetGainBps:   b.gainBps,
			SlippageBps:     b.slippageBps,
			CheckIntervalMs: b.opts.CheckInterval.Milliseconds(),
			TradeCount:      b.tradeCount,
		},
	}
}
