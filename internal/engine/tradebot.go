package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/numeric"
)

// TradeBot trades one token pair back and forth. Each completed trade flips
// the direction and raises the threshold by the configured gain; without a
// gain the bot stops after its first trade.
type TradeBot struct {
	*core

	intent      domain.TradeIntent
	threshold   int64
	gainBps     *int64
	stopLossBps *int64
	slippageBps int
}

// NewTradeBot validates cfg, resolves the wallet address through the ledger
// and returns a bot ready to Run. Validation failures wrap
// domain.ErrInvalidConfig or a more specific sentinel.
func NewTradeBot(ctx context.Context, id domain.BotID, cfg domain.SinglePairConfig, wallet domain.Wallet, deps Deps, opts Options) (*TradeBot, error) {
	if err := validateSinglePair(cfg, wallet, deps); err != nil {
		return nil, fmt.Errorf("engine: new trade bot %s: %w", id, err)
	}
	deps = deps.withDefaults()
	opts = opts.withDefaults().forBot(cfg.CheckIntervalMs, cfg.SlippageBps)

	owner, err := deps.Ledger.ResolveWalletAddress(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("engine: new trade bot %s: resolve wallet: %w", id, err)
	}

	mode := cfg.SwapMode
	if mode == "" {
		mode = domain.SwapModeExactIn
	}
	b := &TradeBot{
		core: newCore(id, "tradebot", wallet, deps, opts),
		intent: domain.TradeIntent{
			InputMint:  cfg.InputMint,
			OutputMint: cfg.OutputMint,
			Amount:     cfg.Amount,
			Mode:       mode,
		},
		threshold:   cfg.ThresholdAmount,
		gainBps:     cfg.TargetGainBps,
		stopLossBps: cfg.StopLossBps,
		slippageBps: opts.SlippageBps,
	}
	b.owner = owner
	b.tradeCount = cfg.TradeCount
	return b, nil
}

func validateSinglePair(cfg domain.SinglePairConfig, wallet domain.Wallet, deps Deps) error {
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
	if strings.TrimSpace(cfg.InputMint) == "" {
		problems = append(problems, "input mint is required")
	}
	if strings.TrimSpace(cfg.OutputMint) == "" {
		problems = append(problems, "output mint is required")
	}
	if cfg.InputMint != "" && cfg.InputMint == cfg.OutputMint {
		problems = append(problems, "input and output mint must differ")
	}
	if cfg.Amount <= 0 {
		problems = append(problems, "amount must be positive")
	}
	if cfg.ThresholdAmount <= 0 {
		problems = append(problems, "threshold amount must be positive")
	}
	if cfg.SwapMode != "" && cfg.SwapMode != domain.SwapModeExactIn && cfg.SwapMode != domain.SwapModeExactOut {
		problems = append(problems, fmt.Sprintf("unknown swap mode %q", cfg.SwapMode))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	if cfg.TargetGainBps != nil && *cfg.TargetGainBps <= 0 {
		return fmt.Errorf("%w: target gain must be positive, got %d bps", domain.ErrInvalidTargetGain, *cfg.TargetGainBps)
	}
	if cfg.StopLossBps != nil && (*cfg.StopLossBps <= 0 || *cfg.StopLossBps >= numeric.BasisPointsPerUnit) {
		return fmt.Errorf("%w: stop loss must be within (0, %d) bps, got %d", domain.ErrInvalidStopLoss, numeric.BasisPointsPerUnit, *cfg.StopLossBps)
	}
	return nil
}

// Run polls until the bot is stopped or ctx is cancelled.
func (b *TradeBot) Run(ctx context.Context) {
	b.logger.InfoContext(ctx, "trade bot started",
		slog.String("input_mint", b.intent.InputMint),
		slog.String("output_mint", b.intent.OutputMint),
		slog.Int64("amount", b.intent.Amount),
		slog.Int64("threshold", b.threshold),
	)
	b.run(ctx, func(ctx context.Context) { b.Tick(ctx) })
}

// Tick runs one evaluation cycle. It never returns an error; failures are
// logged and the next tick tries again.
func (b *TradeBot) Tick(ctx context.Context) TickOutcome {
	if outcome, ok := b.admit(b.opts.Now()); !ok {
		return outcome
	}

	b.mu.Lock()
	intent := b.intent
	threshold := b.threshold
	stopLoss := b.stopLossBps
	trades := b.tradeCount
	b.mu.Unlock()

	qctx, cancel := context.WithTimeout(ctx, b.opts.QuoteTimeout)
	quote, err := b.deps.Quotes.Quote(qctx, domain.QuoteRequest{
		InputMint:   intent.InputMint,
		OutputMint:  intent.OutputMint,
		Amount:      intent.Amount,
		Mode:        intent.Mode,
		SlippageBps: b.slippageBps,
	})
	cancel()
	if err != nil {
		b.logger.WarnContext(ctx, "quote failed", slog.String("error", timeoutAware(err).Error()))
		b.report(ctx, domain.LogLevelWarn, "quote %s -> %s failed: %v", intent.InputMint, intent.OutputMint, err)
		return TickQuoteFailed
	}
	if b.Status() != domain.BotStatusRunning {
		return TickStopped
	}

	current := quote.OutAmount
	b.deps.Sink.Difference(ctx, domain.DifferenceEvent{
		BotID:             b.id,
		InputMint:         intent.InputMint,
		OutputMint:        intent.OutputMint,
		CurrentAmount:     strconv.FormatInt(current, 10),
		TargetAmount:      strconv.FormatInt(threshold, 10),
		PercentDifference: numeric.PercentDifference(current, threshold),
		TradeCount:        trades,
		Timestamp:         b.opts.Now(),
	})

	if stopLoss != nil {
		breached, err := numeric.StopLossBreached(current, threshold, *stopLoss)
		if err != nil {
			b.logger.ErrorContext(ctx, "stop loss evaluation failed", slog.String("error", err.Error()))
		} else if breached {
			b.logger.WarnContext(ctx, "stop loss breached",
				slog.Int64("current", current),
				slog.Int64("threshold", threshold),
				slog.Int64("stop_loss_bps", *stopLoss),
			)
			b.report(ctx, domain.LogLevelWarn, "stop loss breached: quoted %d against threshold %d", current, threshold)
			b.terminate(ctx, "stop loss breached")
			return TickStopLoss
		}
	}

	if current < threshold {
		return TickBelowTarget
	}

	b.logger.InfoContext(ctx, "target reached, executing swap",
		slog.Int64("current", current),
		slog.Int64("threshold", threshold),
	)
	if !b.launch(ctx, func(ctx context.Context) { b.swap(ctx, quote) }) {
		return TickBusy
	}
	return TickSwapStarted
}

func (b *TradeBot) swap(ctx context.Context, quote domain.Quote) {
	res, err := executeSwap(ctx, b.deps, b.opts, b.wallet, b.owner, quote)
	if err != nil {
		b.swapFailed(ctx, err)
		return
	}
	b.completeTrade(ctx, res)
}

// completeTrade reverses the intent to trade back what was received and
// raises the threshold by the gain over what was paid.
func (b *TradeBot) completeTrade(ctx context.Context, res domain.SwapResult) {
	b.mu.Lock()
	if b.status != domain.BotStatusRunning {
		b.mu.Unlock()
		b.logger.InfoContext(ctx, "discarding swap result for stopped bot", slog.String("signature", res.Signature))
		return
	}
	singleShot := b.gainBps == nil
	var nextThreshold int64
	if !singleShot {
		next, err := numeric.TargetAmount(res.InAmount, *b.gainBps)
		if err != nil {
			b.mu.Unlock()
			b.recordSwap(ctx, res)
			b.swapFailed(ctx, fmt.Errorf("%w: next threshold: %v", domain.ErrSwapVerification, err))
			return
		}
		nextThreshold = next
	}
	b.intent = b.intent.Reversed(res.OutAmount)
	if !singleShot {
		b.threshold = nextThreshold
	}
	b.tradeCount++
	cfg := b.snapshotLocked()
	cfg.Active = !singleShot
	b.mu.Unlock()

	b.logger.InfoContext(ctx, "swap completed",
		slog.String("signature", res.Signature),
		slog.Int64("in_amount", res.InAmount),
		slog.Int64("out_amount", res.OutAmount),
		slog.Int64("next_threshold", cfg.SinglePair.ThresholdAmount),
	)
	b.persist(ctx, cfg)
	b.recordSwap(ctx, res)
	b.report(ctx, domain.LogLevelInfo, "swapped %d %s for %d %s", res.InAmount, res.InputMint, res.OutAmount, res.OutputMint)

	if singleShot {
		b.terminate(ctx, "single trade completed")
	}
}

// Intent returns the trade the bot will attempt next.
func (b *TradeBot) Intent() domain.TradeIntent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.intent
}

// Threshold returns the output amount that triggers the next trade.
func (b *TradeBot) Threshold() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.threshold
}

// Snapshot returns the persisted projection of the bot's current state.
func (b *TradeBot) Snapshot() domain.BotConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *TradeBot) snapshotLocked() domain.BotConfig {
	return domain.BotConfig{
		ID:     b.id,
		Kind:   domain.BotKindSinglePair,
		Active: b.status == domain.BotStatusRunning,
		SinglePair: &domain.SinglePairConfig{
			InputMint:       b.intent.InputMint,
			OutputMint:      b.intent.OutputMint,
			Amount:          b.intent.Amount,
			ThresholdAmount: b.threshold,
			TargetGainBps:   b.gainBps,
			StopLossBps:     b.stopLossBps,
			SwapMode:        b.intent.Mode,
			SlippageBps:     b.slippageBps,
			CheckIntervalMs: b.opts.CheckInterval.Milliseconds(),
			TradeCount:      b.tradeCount,
		},
	}
}
