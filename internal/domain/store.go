package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// BotConfigStore persists bot configurations.
type BotConfigStore interface {
	Get(ctx context.Context, id BotID) (BotConfig, error)
	Save(ctx context.Context, cfg BotConfig) error
	SetActive(ctx context.Context, id BotID, active bool) error
	List(ctx context.Context) ([]BotConfig, error)
}

// SwapStore persists swap history.
type SwapStore interface {
	Insert(ctx context.Context, rec SwapRecord) error
	ListByBot(ctx context.Context, id BotID, opts ListOpts) ([]SwapRecord, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]SwapRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]SwapRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Audit event names.
const (
	AuditSwapExecuted  = "swap.executed"
	AuditBotStopped    = "bot.stopped"
	AuditSwapsArchived = "archive.swaps"
)

// AuditEntry is a single audit log row. BotID is lifted from the detail's
// "bot_id" key when present.
type AuditEntry struct {
	ID        int64
	Event     string
	BotID     BotID
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditBotID returns detail["bot_id"] when it is a string.
func AuditBotID(detail map[string]any) BotID {
	id, _ := detail["bot_id"].(string)
	return id
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
