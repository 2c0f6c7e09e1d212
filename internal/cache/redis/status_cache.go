package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// StatusCache implements domain.StatusCache with one hash per bot at
// "status:{botID}", keyed by output mint, holding the latest difference
// event as JSON. Hashes expire when a bot stops reporting.
type StatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStatusCache creates a StatusCache whose entries live for ttl after the
// last update.
func NewStatusCache(c *Client, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StatusCache{rdb: c.Underlying(), ttl: ttl}
}

func statusKey(id domain.BotID) string {
	return "status:" + id
}

// SetDifference replaces the cached event for the bot and output mint.
func (sc *StatusCache) SetDifference(ctx context.Context, evt domain.DifferenceEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("redis: marshal difference %s: %w", evt.BotID, err)
	}
	key := statusKey(evt.BotID)
	pipe := sc.rdb.TxPipeline()
	pipe.HSet(ctx, key, evt.OutputMint, data)
	pipe.Expire(ctx, key, sc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set difference %s: %w", evt.BotID, err)
	}
	return nil
}

// GetDifferences returns the cached events for a bot ordered by output mint.
// A bot with nothing cached yields domain.ErrNotFound.
func (sc *StatusCache) GetDifferences(ctx context.Context, id domain.BotID) ([]domain.DifferenceEvent, error) {
	vals, err := sc.rdb.HGetAll(ctx, statusKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get differences %s: %w", id, err)
	}
	if len(vals) == 0 {
		return nil, domain.ErrNotFound
	}
	return decodeDifferences(vals)
}

// Clear drops everything cached for a bot.
func (sc *StatusCache) Clear(ctx context.Context, id domain.BotID) error {
	if err := sc.rdb.Del(ctx, statusKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: clear status %s: %w", id, err)
	}
	return nil
}

func decodeDifferences(vals map[string]string) ([]domain.DifferenceEvent, error) {
	out := make([]domain.DifferenceEvent, 0, len(vals))
	for mint, raw := range vals {
		var evt domain.DifferenceEvent
		if err := json.Unmarshal([]byte(raw), &evt); err != nil {
			return nil, fmt.Errorf("redis: decode difference for %s: %w", mint, err)
		}
		out = append(out, evt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OutputMint < out[j].OutputMint })
	return out, nil
}

var _ domain.StatusCache = (*StatusCache)(nil)
