package notify

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// SwapExecuted alerts on a confirmed swap.
func (n *Notifier) SwapExecuted(ctx context.Context, rec domain.SwapRecord) error {
	msg := fmt.Sprintf("bot %s swapped %d %s for %d %s\ntx %s",
		rec.BotID, rec.InAmount, short(rec.InputMint), rec.OutAmount, short(rec.OutputMint), rec.Signature)
	return n.Notify(ctx, EventSwapExecuted, "Swap executed", msg)
}

// LogEvent alerts on operator log lines. Error lines map to EventError,
// lines about a bot halting map to EventBotStopped; the rest are dropped.
func (n *Notifier) LogEvent(ctx context.Context, evt domain.LogEvent) error {
	switch {
	case evt.Level == domain.LogLevelError:
		return n.Notify(ctx, EventError, "Bot "+evt.BotID+" error", evt.Message)
	case evt.Stopped:
		return n.Notify(ctx, EventBotStopped, "Bot "+evt.BotID+" stopped", evt.Message)
	}
	return nil
}

// short abbreviates a base58 mint for chat output.
func short(mint string) string {
	if len(mint) <= 10 {
		return mint
	}
	return mint[:4] + ".." + mint[len(mint)-4:]
}
