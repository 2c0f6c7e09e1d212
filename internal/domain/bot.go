package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BotID identifies a running bot. It is the registry key and the correlation
// id attached to every emitted event.
type BotID = string

// BotKind discriminates the two bot variants stored in a BotConfig.
type BotKind string

const (
	BotKindSinglePair  BotKind = "single_pair"
	BotKindMultiTarget BotKind = "multi_target"
)

// BotStatus is the lifecycle state of a bot.
type BotStatus string

const (
	BotStatusRunning BotStatus = "running"
	BotStatusStopped BotStatus = "stopped"
)

// SwapMode mirrors the provider's amount semantics.
type SwapMode string

const (
	SwapModeExactIn  SwapMode = "ExactIn"
	SwapModeExactOut SwapMode = "ExactOut"
)

// TradeIntent is the trade a bot will attempt on its next trigger. Amount is
// always in the token's smallest unit.
type TradeIntent struct {
	InputMint  string   `json:"input_mint"`
	OutputMint string   `json:"output_mint"`
	Amount     int64    `json:"amount"`
	Mode       SwapMode `json:"mode"`
}

// Reversed returns the intent for the opposite direction, trading amount of
// what was the output token.
func (t TradeIntent) Reversed(amount int64) TradeIntent {
	return TradeIntent{
		InputMint:  t.OutputMint,
		OutputMint: t.InputMint,
		Amount:     amount,
		Mode:       t.Mode,
	}
}

// SinglePairConfig is the persisted projection of a single-pair bot.
type SinglePairConfig struct {
	InputMint       string   `json:"input_mint"`
	OutputMint      string   `json:"output_mint"`
	Amount          int64    `json:"amount"`
	ThresholdAmount int64    `json:"threshold_amount"`
	TargetGainBps   *int64   `json:"target_gain_bps,omitempty"`
	StopLossBps     *int64   `json:"stop_loss_bps,omitempty"`
	SwapMode        SwapMode `json:"swap_mode,omitempty"`
	SlippageBps     int      `json:"slippage_bps,omitempty"`
	CheckIntervalMs int64    `json:"check_interval_ms,omitempty"`
	TradeCount      int      `json:"trade_count"`
}

// Target is one candidate destination of a multi-target bot, expressed in
// human units of the target token.
type Target struct {
	Mint   string          `json:"mint"`
	Amount decimal.Decimal `json:"amount"`
}

// MultiTargetConfig is the persisted projection of a multi-target bot. Targets
// keep their insertion order; the scan is first-match-wins over that order.
type MultiTargetConfig struct {
	HeldMint        string          `json:"held_mint"`
	HeldAmount      decimal.Decimal `json:"held_amount"`
	Targets         []Target        `json:"targets"`
	TargetGainBps   int64           `json:"target_gain_bps"`
	SlippageBps     int             `json:"slippage_bps,omitempty"`
	CheckIntervalMs int64           `json:"check_interval_ms,omitempty"`
	TradeCount      int             `json:"trade_count"`
}

// BotConfig is the tagged union persisted by the config store. Exactly one of
// SinglePair or MultiTarget is set, matching Kind.
type BotConfig struct {
	ID          BotID              `json:"id"`
	Kind        BotKind            `json:"kind"`
	Active      bool               `json:"active"`
	SinglePair  *SinglePairConfig  `json:"single_pair,omitempty"`
	MultiTarget *MultiTargetConfig `json:"multi_target,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// ValidateShape checks that the union is consistent. Field-level validation
// belongs to the bot constructors.
func (c BotConfig) ValidateShape() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidConfig)
	}
	switch c.Kind {
	case BotKindSinglePair:
		if c.SinglePair == nil || c.MultiTarget != nil {
			return fmt.Errorf("%w: kind %s requires only single_pair", ErrInvalidConfig, c.Kind)
		}
	case BotKindMultiTarget:
		if c.MultiTarget == nil || c.SinglePair != nil {
			return fmt.Errorf("%w: kind %s requires only multi_target", ErrInvalidConfig, c.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidConfig, c.Kind)
	}
	return nil
}

// BotView is the read-only projection returned by registry listings: the
// persisted record merged with live status.
type BotView struct {
	Config     BotConfig `json:"config"`
	Status     BotStatus `json:"status"`
	TradeCount int       `json:"trade_count"`
}
