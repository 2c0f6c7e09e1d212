package domain

import (
	"context"
	"time"
)

// StatusCache keeps the most recent difference event per bot and output mint.
type StatusCache interface {
	SetDifference(ctx context.Context, evt DifferenceEvent) error
	GetDifferences(ctx context.Context, id BotID) ([]DifferenceEvent, error)
	Clear(ctx context.Context, id BotID) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// Lease is a held distributed lock. Release is safe to call more than once.
type Lease interface {
	Refresh(ctx context.Context, ttl time.Duration) error
	Release()
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// SignalBus provides pub/sub between processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
