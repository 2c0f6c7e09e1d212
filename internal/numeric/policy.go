// Package numeric holds the fixed-point arithmetic used by the trading
// engine. Every value that feeds a trade decision is an integer amount or a
// basis-point count; floating point only appears in display helpers.
package numeric

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// BasisPointsPerUnit is the number of basis points in 100%.
const BasisPointsPerUnit = 10_000

var (
	bpsDenominator = decimal.NewFromInt(BasisPointsPerUnit)
	maxInt64       = decimal.NewFromInt(math.MaxInt64)
)

// TargetAmount returns base + floor(base*gainBps/10000). The product is
// computed with arbitrary precision so large amounts never overflow.
func TargetAmount(base, gainBps int64) (int64, error) {
	if gainBps <= 0 {
		return 0, fmt.Errorf("%w: %d bps must be > 0", domain.ErrInvalidTargetGain, gainBps)
	}
	if base <= 0 {
		return 0, fmt.Errorf("%w: base %d must be > 0", domain.ErrInvalidAmount, base)
	}
	b := decimal.NewFromInt(base)
	gain := b.Mul(decimal.NewFromInt(gainBps)).DivRound(bpsDenominator, 8).Floor()
	return toInt64(b.Add(gain))
}

// StopLossFloor returns floor(threshold*(10000-stopLossBps)/10000), the amount
// below which a stop loss is considered breached.
func StopLossFloor(threshold, stopLossBps int64) (int64, error) {
	if stopLossBps <= 0 || stopLossBps >= BasisPointsPerUnit {
		return 0, fmt.Errorf("%w: %d bps must be in (0, %d)", domain.ErrInvalidStopLoss, stopLossBps, BasisPointsPerUnit)
	}
	if threshold <= 0 {
		return 0, fmt.Errorf("%w: threshold %d must be > 0", domain.ErrInvalidAmount, threshold)
	}
	keep := decimal.NewFromInt(BasisPointsPerUnit - stopLossBps)
	floor := decimal.NewFromInt(threshold).Mul(keep).DivRound(bpsDenominator, 8).Floor()
	return toInt64(floor)
}

// StopLossBreached reports whether current has fallen strictly below the stop
// loss floor derived from threshold.
func StopLossBreached(current, threshold, stopLossBps int64) (bool, error) {
	floor, err := StopLossFloor(threshold, stopLossBps)
	if err != nil {
		return false, err
	}
	return current < floor, nil
}

// PercentDifference returns (current-threshold)/threshold*100 for display.
// It must not be used in trigger decisions.
func PercentDifference(current, threshold int64) float64 {
	if threshold == 0 {
		return 0
	}
	return float64(current-threshold) / float64(threshold) * 100
}

// PercentDifferenceDecimal is PercentDifference for human-unit amounts.
func PercentDifferenceDecimal(current, target decimal.Decimal) float64 {
	if target.IsZero() {
		return 0
	}
	f, _ := current.Sub(target).Div(target).Mul(decimal.NewFromInt(100)).Float64()
	return f
}

// GainFactor returns 1 + gainBps/10000.
func GainFactor(gainBps int64) decimal.Decimal {
	return decimal.NewFromInt(1).Add(decimal.NewFromInt(gainBps).Div(bpsDenominator))
}

// PercentToBps converts a percentage such as 1.5 into basis points (150). It
// is the single boundary where floating percentages enter the system.
func PercentToBps(percent float64) int64 {
	return decimal.NewFromFloat(percent).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// ToBaseUnits converts a human amount into the token's smallest unit,
// truncating any precision beyond the token's decimals.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (int64, error) {
	if amount.Sign() < 0 {
		return 0, fmt.Errorf("%w: negative amount %s", domain.ErrInvalidAmount, amount)
	}
	return toInt64(amount.Shift(int32(decimals)).Truncate(0))
}

// FromBaseUnits converts a smallest-unit amount into human units.
func FromBaseUnits(amount int64, decimals uint8) decimal.Decimal {
	return decimal.New(amount, -int32(decimals))
}

func toInt64(d decimal.Decimal) (int64, error) {
	if d.GreaterThan(maxInt64) || d.LessThan(maxInt64.Neg()) {
		return 0, fmt.Errorf("%w: %s", domain.ErrAmountOverflow, d)
	}
	return d.IntPart(), nil
}
