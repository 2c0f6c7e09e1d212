// Package engine implements the trading decision engine: the single-pair and
// multi-target polling bots and the registry that owns them.
package engine

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// QuoteProvider prices routes and builds swap transactions for them.
type QuoteProvider interface {
	Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error)
	BuildSwap(ctx context.Context, quote domain.Quote, owner string) (domain.SwapTransaction, error)
}

// Ledger resolves accounts and submits, confirms and verifies transactions.
type Ledger interface {
	ResolveWalletAddress(ctx context.Context, wallet domain.Wallet) (string, error)
	TokenAccount(ctx context.Context, owner, mint string) (string, error)
	TokenDecimals(ctx context.Context, mint string) (uint8, error)
	LatestBlockhash(ctx context.Context) (domain.Blockhash, error)
	Submit(ctx context.Context, wallet domain.Wallet, tx domain.SwapTransaction) (string, error)
	Confirm(ctx context.Context, signature string) error
	ReceivedAmount(ctx context.Context, signature, owner, mint string) (int64, error)
}

// ConfigStore is the durable record of bot parameters.
type ConfigStore interface {
	Get(ctx context.Context, id domain.BotID) (domain.BotConfig, error)
	Save(ctx context.Context, cfg domain.BotConfig) error
	SetActive(ctx context.Context, id domain.BotID, active bool) error
	List(ctx context.Context) ([]domain.BotConfig, error)
}

// Sink receives telemetry, swap history and operator-visible log lines.
type Sink interface {
	Difference(ctx context.Context, evt domain.DifferenceEvent)
	SwapLogged(ctx context.Context, rec domain.SwapRecord)
	Log(ctx context.Context, evt domain.LogEvent)
}

// Deps bundles the collaborators every bot is constructed with.
type Deps struct {
	Quotes  QuoteProvider
	Ledger  Ledger
	Configs ConfigStore
	Sink    Sink
	Logger  *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Sink == nil {
		d.Sink = nopSink{}
	}
	if d.Configs == nil {
		d.Configs = nopConfigs{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

type nopSink struct{}

func (nopSink) Difference(context.Context, domain.DifferenceEvent) {}
func (nopSink) SwapLogged(context.Context, domain.SwapRecord)      {}
func (nopSink) Log(context.Context, domain.LogEvent)               {}

type nopConfigs struct{}

func (nopConfigs) Get(context.Context, domain.BotID) (domain.BotConfig, error) {
	return domain.BotConfig{}, domain.ErrNotFound
}
func (nopConfigs) Save(context.Context, domain.BotConfig) error             { return nil }
func (nopConfigs) SetActive(context.Context, domain.BotID, bool) error      { return nil }
func (nopConfigs) List(context.Context) ([]domain.BotConfig, error)         { return nil, nil }
