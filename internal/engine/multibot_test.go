package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/store/memory"
)

type multiHarness struct {
	bot     *MultiBot
	quotes  *fakeQuotes
	ledger  *fakeLedger
	configs *memory.BotConfigStore
	sink    *recordingSink
	clock   *clock
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func rotationConfig() domain.MultiTargetConfig {
	return domain.MultiTargetConfig{
		HeldMint:   "X",
		HeldAmount: dec("10"),
		Targets: []domain.Target{
			{Mint: "A", Amount: dec("100")},
			{Mint: "B", Amount: dec("50")},
		},
		TargetGainBps: 100,
	}
}

func newMultiHarness(t *testing.T, cfg domain.MultiTargetConfig, quoted map[string]int64) *multiHarness {
	t.Helper()
	h := &multiHarness{
		quotes:  &fakeQuotes{quoteFn: fixedQuote(quoted)},
		ledger:  newFakeLedger(0),
		configs: memory.NewBotConfigStore(),
		sink:    &recordingSink{},
		clock:   newClock(),
	}
	deps := Deps{Quotes: h.quotes, Ledger: h.ledger, Configs: h.configs, Sink: h.sink, Logger: discardLogger()}
	b, err := NewMultiBot(context.Background(), "multi-1", cfg, fakeWallet{}, deps, testOptions(h.clock))
	require.NoError(t, err)
	h.bot = b
	return h
}

func TestMultiBotRotatesIntoFirstSatisfiedTarget(t *testing.T) {
	h := newMultiHarness(t, rotationConfig(), map[string]int64{
		"A": 100_000_000,
		"B": 60_000_000,
	})
	h.ledger.received = 101_000_000

	require.Equal(t, TickSwapStarted, h.bot.Tick(context.Background()))
	h.bot.wait()

	require.Len(t, h.quotes.requests, 1, "scan stops at the first satisfied target")
	assert.Equal(t, int64(10_000_000), h.quotes.requests[0].Amount)

	mint, amount := h.bot.Holding()
	assert.Equal(t, "A", mint)
	assert.True(t, amount.Equal(dec("101")), "held amount is the received amount, got %s", amount)

	targets := h.bot.Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, "B", targets[0].Mint)
	assert.True(t, targets[0].Amount.Equal(dec("50.5")), "got %s", targets[0].Amount)
	assert.Equal(t, "X", targets[1].Mint)
	assert.True(t, targets[1].Amount.Equal(dec("10.1")), "got %s", targets[1].Amount)
	assert.Equal(t, 1, h.bot.TradeCount())
	assert.Equal(t, domain.BotStatusRunning, h.bot.Status())

	saved, err := h.configs.Get(context.Background(), "multi-1")
	require.NoError(t, err)
	assert.Equal(t, "A", saved.MultiTarget.HeldMint)
	assert.Len(t, saved.MultiTarget.Targets, 2)
	assert.Len(t, h.sink.swapRecords(), 1)
}

func TestMultiBotSkipsUnavailableQuotesAndReportsDifferences(t *testing.T) {
	h := newMultiHarness(t, rotationConfig(), map[string]int64{
		"B": 40_000_000,
	})

	assert.Equal(t, TickBelowTarget, h.bot.Tick(context.Background()))

	diffs := h.sink.differences()
	require.Len(t, diffs, 1)
	assert.Equal(t, "B", diffs[0].OutputMint)
	assert.Equal(t, "40", diffs[0].CurrentAmount)
	assert.Equal(t, "50", diffs[0].TargetAmount)
	assert.InDelta(t, -20.0, diffs[0].PercentDifference, 1e-9)
	assert.Equal(t, 0, h.quotes.buildCount())
}

func TestMultiBotWaitsForHeldTokenAccount(t *testing.T) {
	h := newMultiHarness(t, rotationConfig(), map[string]int64{"A": 100_000_000})
	h.ledger.received = 101_000_000
	h.ledger.mu.Lock()
	h.ledger.accountFails = h.ledger.accountCalls + 2
	h.ledger.mu.Unlock()

	require.Equal(t, TickSwapStarted, h.bot.Tick(context.Background()))
	h.bot.wait()
	mint, _ := h.bot.Holding()
	require.Equal(t, "A", mint)
	quotes := h.quotes.quoteCount()

	h.clock.Advance(20 * time.Second)
	assert.Equal(t, TickQuoteFailed, h.bot.Tick(context.Background()))
	assert.Equal(t, quotes, h.quotes.quoteCount(), "no quote without a token account")

	h.clock.Advance(20 * time.Second)
	h.bot.Tick(context.Background())
	assert.Greater(t, h.quotes.quoteCount(), quotes)
	h.bot.mu.Lock()
	assert.Equal(t, "owner-pubkey:A", h.bot.heldAccount)
	h.bot.mu.Unlock()
}

func TestMultiBotAllQuotesFailing(t *testing.T) {
	h := newMultiHarness(t, rotationConfig(), map[string]int64{})

	assert.Equal(t, TickQuoteFailed, h.bot.Tick(context.Background()))
	assert.Equal(t, domain.BotStatusRunning, h.bot.Status())
	assert.Empty(t, h.sink.differences())
}

func TestMultiBotRespectsTokenDecimals(t *testing.T) {
	cfg := rotationConfig()
	h := newMultiHarness(t, cfg, map[string]int64{"A": 100_000_000_000})
	h.ledger.decimals["X"] = 9
	h.ledger.decimals["A"] = 9
	h.ledger.received = 100_000_000_000

	require.Equal(t, TickSwapStarted, h.bot.Tick(context.Background()))
	h.bot.wait()

	assert.Equal(t, int64(10_000_000_000), h.quotes.requests[0].Amount)
	_, amount := h.bot.Holding()
	assert.True(t, amount.Equal(dec("100")), "got %s", amount)
}

func TestMultiBotVerificationFailureTerminates(t *testing.T) {
	h := newMultiHarness(t, rotationConfig(), map[string]int64{"A": 100_000_000})
	h.ledger.received = 0
	var reason string
	h.bot.setOnTerminate(func(r string) { reason = r })

	require.Equal(t, TickSwapStarted, h.bot.Tick(context.Background()))
	h.bot.wait()

	assert.Equal(t, domain.BotStatusStopped, h.bot.Status())
	assert.NotEmpty(t, reason)
	mint, _ := h.bot.Holding()
	assert.Equal(t, "X", mint)
}

func TestMultiBotTickIsNoOpWhileSwapInFlight(t *testing.T) {
	h := newMultiHarness(t, rotationConfig(), map[string]int64{"A": 100_000_000})
	h.ledger.received = 100_000_000
	gate := make(chan struct{})
	h.ledger.submitGate = gate

	require.Equal(t, TickSwapStarted, h.bot.Tick(context.Background()))
	h.clock.Advance(20 * time.Second)
	assert.Equal(t, TickBusy, h.bot.Tick(context.Background()))
	assert.Equal(t, 1, h.quotes.quoteCount())

	close(gate)
	h.bot.wait()
	assert.False(t, h.bot.Waiting())
}

func TestMultiBotNeverTerminatesAfterTrades(t *testing.T) {
	h := newMultiHarness(t, rotationConfig(), map[string]int64{"A": 100_000_000, "X": 20_000_000, "B": 1})
	h.ledger.received = 100_000_000

	require.Equal(t, TickSwapStarted, h.bot.Tick(context.Background()))
	h.bot.wait()

	h.ledger.received = 20_000_000
	h.clock.Advance(20 * time.Second)
	require.Equal(t, TickSwapStarted, h.bot.Tick(context.Background()))
	h.bot.wait()

	mint, amount := h.bot.Holding()
	assert.Equal(t, "X", mint)
	assert.True(t, amount.Equal(dec("20")))
	assert.Equal(t, 2, h.bot.TradeCount())
	assert.Equal(t, domain.BotStatusRunning, h.bot.Status())

	targets := h.bot.Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, "B", targets[0].Mint)
	assert.True(t, targets[0].Amount.Equal(dec("51.005")), "got %s", targets[0].Amount)
	assert.Equal(t, "A", targets[1].Mint)
	assert.True(t, targets[1].Amount.Equal(dec("101")), "got %s", targets[1].Amount)
}

func TestNewMultiBotValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.MultiTargetConfig)
		want   error
	}{
		{name: "no targets", mutate: func(c *domain.MultiTargetConfig) { c.Targets = nil }, want: domain.ErrInvalidConfig},
		{name: "zero held amount", mutate: func(c *domain.MultiTargetConfig) { c.HeldAmount = decimal.Zero }, want: domain.ErrInvalidConfig},
		{name: "target equals held", mutate: func(c *domain.MultiTargetConfig) { c.Targets[0].Mint = "X" }, want: domain.ErrInvalidConfig},
		{name: "duplicate target", mutate: func(c *domain.MultiTargetConfig) { c.Targets[1].Mint = "A" }, want: domain.ErrInvalidConfig},
		{name: "non-positive target", mutate: func(c *domain.MultiTargetConfig) { c.Targets[1].Amount = dec("-1") }, want: domain.ErrInvalidConfig},
		{name: "zero gain", mutate: func(c *domain.MultiTargetConfig) { c.TargetGainBps = 0 }, want: domain.ErrInvalidTargetGain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := rotationConfig()
			tt.mutate(&cfg)
			_, err := NewMultiBot(context.Background(), "bad", cfg, fakeWallet{}, Deps{Quotes: &fakeQuotes{}, Ledger: newFakeLedger(1)}, Options{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewMultiBotRetriesTokenAccount(t *testing.T) {
	ledger := newFakeLedger(1)
	ledger.accountFails = 2
	opts := Options{InitBackoff: time.Millisecond}

	b, err := NewMultiBot(context.Background(), "m", rotationConfig(), fakeWallet{}, Deps{Quotes: &fakeQuotes{}, Ledger: ledger}, opts)
	require.NoError(t, err)
	assert.Equal(t, "owner-pubkey:X", b.heldAccount)
	assert.Equal(t, 3, ledger.accountCalls)

	ledger = newFakeLedger(1)
	ledger.accountFails = 5
	_, err = NewMultiBot(context.Background(), "m", rotationConfig(), fakeWallet{}, Deps{Quotes: &fakeQuotes{}, Ledger: ledger}, opts)
	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, 3, ledger.accountCalls)
}
