package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// TickOutcome reports what a single tick did. It exists so callers and tests
// can observe the state machine without reaching into bot internals.
type TickOutcome int

const (
	TickStopped TickOutcome = iota
	TickTooSoon
	TickBusy
	TickQuoteFailed
	TickBelowTarget
	TickStopLoss
	TickSwapStarted
)

func (o TickOutcome) String() string {
	switch o {
	case TickStopped:
		return "stopped"
	case TickTooSoon:
		return "too_soon"
	case TickBusy:
		return "busy"
	case TickQuoteFailed:
		return "quote_failed"
	case TickBelowTarget:
		return "below_target"
	case TickStopLoss:
		return "stop_loss"
	case TickSwapStarted:
		return "swap_started"
	}
	return fmt.Sprintf("tick_outcome(%d)", int(o))
}

// executeSwap builds, submits, confirms and verifies a swap for q. Every
// network step runs under its own timeout. A received amount that cannot be
// read or is not positive is reported as domain.ErrSwapVerification.
func executeSwap(ctx context.Context, deps Deps, opts Options, wallet domain.Wallet, owner string, q domain.Quote) (domain.SwapResult, error) {
	buildCtx, cancel := context.WithTimeout(ctx, opts.SubmitTimeout)
	tx, err := deps.Quotes.BuildSwap(buildCtx, q, owner)
	cancel()
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("build swap: %w", timeoutAware(err))
	}

	submitCtx, cancel := context.WithTimeout(ctx, opts.SubmitTimeout)
	sig, err := deps.Ledger.Submit(submitCtx, wallet, tx)
	cancel()
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("submit swap: %w", timeoutAware(err))
	}

	confirmCtx, cancel := context.WithTimeout(ctx, opts.ConfirmTimeout)
	err = deps.Ledger.Confirm(confirmCtx, sig)
	cancel()
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("confirm swap %s: %w", sig, timeoutAware(err))
	}

	verifyCtx, cancel := context.WithTimeout(ctx, opts.SubmitTimeout)
	received, err := deps.Ledger.ReceivedAmount(verifyCtx, sig, owner, q.OutputMint)
	cancel()
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("%w: read received amount for %s: %v", domain.ErrSwapVerification, sig, err)
	}
	if received <= 0 {
		return domain.SwapResult{}, fmt.Errorf("%w: received %d of %s in %s", domain.ErrSwapVerification, received, q.OutputMint, sig)
	}

	return domain.SwapResult{
		Signature:       sig,
		InputMint:       q.InputMint,
		OutputMint:      q.OutputMint,
		InAmount:        q.InAmount,
		OutAmount:       received,
		QuotedOutAmount: q.OutAmount,
		ExecutedAt:      opts.Now(),
	}, nil
}

func timeoutAware(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return err
}

func isVerification(err error) bool {
	return errors.Is(err, domain.ErrSwapVerification)
}
