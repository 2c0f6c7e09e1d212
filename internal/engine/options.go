package engine

import "time"

const (
	defaultCheckInterval  = 20 * time.Second
	defaultQuoteTimeout   = 15 * time.Second
	defaultSubmitTimeout  = 30 * time.Second
	defaultConfirmTimeout = 90 * time.Second
	defaultPersistTimeout = 10 * time.Second
	defaultInitAttempts   = 3
	defaultInitBackoff    = time.Second
	defaultSlippageBps    = 50
	defaultLockTTL        = time.Minute
)

// Options tunes timing for every bot a Manager starts. Zero values fall back
// to the defaults above.
type Options struct {
	CheckInterval  time.Duration
	QuoteTimeout   time.Duration
	SubmitTimeout  time.Duration
	ConfirmTimeout time.Duration
	PersistTimeout time.Duration
	InitAttempts   int
	InitBackoff    time.Duration
	SlippageBps    int
	LockTTL        time.Duration
	Now            func() time.Time
}

func (o Options) withDefaults() Options {
	if o.CheckInterval <= 0 {
		o.CheckInterval = defaultCheckInterval
	}
	if o.QuoteTimeout <= 0 {
		o.QuoteTimeout = defaultQuoteTimeout
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = defaultSubmitTimeout
	}
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = defaultConfirmTimeout
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = defaultPersistTimeout
	}
	if o.InitAttempts <= 0 {
		o.InitAttempts = defaultInitAttempts
	}
	if o.InitBackoff <= 0 {
		o.InitBackoff = defaultInitBackoff
	}
	if o.SlippageBps <= 0 {
		o.SlippageBps = defaultSlippageBps
	}
	if o.LockTTL <= 0 {
		o.LockTTL = defaultLockTTL
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// forBot applies a per-bot interval override.
func (o Options) forBot(intervalMs int64, slippageBps int) Options {
	if intervalMs > 0 {
		o.CheckInterval = time.Duration(intervalMs) * time.Millisecond
	}
	if slippageBps > 0 {
		o.SlippageBps = slippageBps
	}
	return o
}

// minTickGap is the elapsed time below which a tick is treated as a
// duplicate. A small slack absorbs ticker jitter so on-time ticks are not
// skipped.
func (o Options) minTickGap() time.Duration {
	return o.CheckInterval - o.CheckInterval/20
}
