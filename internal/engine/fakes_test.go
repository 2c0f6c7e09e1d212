package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

var errUpstream = errors.New("upstream unavailable")

type fakeWallet struct{}

func (fakeWallet) PublicKey() string                   { return "owner-pubkey" }
func (fakeWallet) Sign(message []byte) ([]byte, error) { return message, nil }

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeQuotes prices every pair through quoteFn; with no quoteFn it fails.
type fakeQuotes struct {
	mu       sync.Mutex
	quoteFn  func(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error)
	requests []domain.QuoteRequest
	builds   int
	buildErr error
}

func (f *fakeQuotes) Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	fn := f.quoteFn
	f.mu.Unlock()
	if fn == nil {
		return domain.Quote{}, errUpstream
	}
	return fn(ctx, req)
}

func (f *fakeQuotes) BuildSwap(_ context.Context, q domain.Quote, _ string) (domain.SwapTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds++
	if f.buildErr != nil {
		return domain.SwapTransaction{}, f.buildErr
	}
	return domain.SwapTransaction{Payload: []byte(q.InputMint + "->" + q.OutputMint)}, nil
}

func (f *fakeQuotes) quoteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeQuotes) buildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds
}

// fixedQuote answers every request with out base units of the output token.
func fixedQuote(out map[string]int64) func(context.Context, domain.QuoteRequest) (domain.Quote, error) {
	return func(_ context.Context, req domain.QuoteRequest) (domain.Quote, error) {
		amt, ok := out[req.OutputMint]
		if !ok {
			return domain.Quote{}, domain.ErrNoRoute
		}
		return domain.Quote{
			InputMint:  req.InputMint,
			OutputMint: req.OutputMint,
			InAmount:   req.Amount,
			OutAmount:  amt,
			Mode:       req.Mode,
		}, nil
	}
}

type fakeLedger struct {
	mu            sync.Mutex
	resolveErr    error
	accountFails  int
	accountCalls  int
	decimals      map[string]uint8
	submitGate    chan struct{}
	submitErr     error
	confirmErr    error
	received      int64
	receivedErr   error
	submits       int
	confirmations int
}

func newFakeLedger(received int64) *fakeLedger {
	return &fakeLedger{received: received, decimals: map[string]uint8{}}
}

func (f *fakeLedger) ResolveWalletAddress(_ context.Context, w domain.Wallet) (string, error) {
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	return w.PublicKey(), nil
}

func (f *fakeLedger) TokenAccount(_ context.Context, owner, mint string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountCalls++
	if f.accountCalls <= f.accountFails {
		return "", errUpstream
	}
	return owner + ":" + mint, nil
}

func (f *fakeLedger) TokenDecimals(_ context.Context, mint string) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.decimals[mint]
	if !ok {
		return 6, nil
	}
	return d, nil
}

func (f *fakeLedger) LatestBlockhash(context.Context) (domain.Blockhash, error) {
	return domain.Blockhash{Hash: "hash", ValidUntilHeight: 100}, nil
}

func (f *fakeLedger) Submit(ctx context.Context, _ domain.Wallet, _ domain.SwapTransaction) (string, error) {
	if f.submitGate != nil {
		select {
		case <-f.submitGate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return fmt.Sprintf("sig-%d", f.submits), nil
}

func (f *fakeLedger) Confirm(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmations++
	return f.confirmErr
}

func (f *fakeLedger) ReceivedAmount(context.Context, string, string, string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received, f.receivedErr
}

type recordingSink struct {
	mu    sync.Mutex
	diffs []domain.DifferenceEvent
	swaps []domain.SwapRecord
	logs  []domain.LogEvent
}

func (s *recordingSink) Difference(_ context.Context, evt domain.DifferenceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diffs = append(s.diffs, evt)
}

func (s *recordingSink) SwapLogged(_ context.Context, rec domain.SwapRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swaps = append(s.swaps, rec)
}

func (s *recordingSink) Log(_ context.Context, evt domain.LogEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, evt)
}

func (s *recordingSink) differences() []domain.DifferenceEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.DifferenceEvent(nil), s.diffs...)
}

func (s *recordingSink) swapRecords() []domain.SwapRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SwapRecord(nil), s.swaps...)
}

func (s *recordingSink) levels() []domain.LogLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LogLevel, 0, len(s.logs))
	for _, l := range s.logs {
		out = append(out, l.Level)
	}
	return out
}

type fakeLease struct {
	mu         sync.Mutex
	released   bool
	refreshes  int
	refreshErr error
}

func (l *fakeLease) Refresh(context.Context, time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshes++
	return l.refreshErr
}

func (l *fakeLease) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = true
}

func (l *fakeLease) isReleased() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}

type fakeLocks struct {
	mu         sync.Mutex
	held       map[string]bool
	lease      *fakeLease
	refreshErr error
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (domain.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return nil, domain.ErrLockHeld
	}
	f.lease = &fakeLease{refreshErr: f.refreshErr}
	return f.lease, nil
}

// gatedConfigs holds Save for any config whose trade count reaches
// gateAt until gate is closed.
type gatedConfigs struct {
	domain.BotConfigStore
	gateAt  int
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (g *gatedConfigs) Save(ctx context.Context, cfg domain.BotConfig) error {
	if cfg.SinglePair != nil && cfg.SinglePair.TradeCount >= g.gateAt {
		g.once.Do(func() { close(g.entered) })
		select {
		case <-g.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return g.BotConfigStore.Save(ctx, cfg)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(c *clock) Options {
	return Options{
		CheckInterval: 20 * time.Second,
		QuoteTimeout:  time.Second,
		InitBackoff:   time.Millisecond,
		Now:           c.Now,
	}
}

func int64p(v int64) *int64 { return &v }
