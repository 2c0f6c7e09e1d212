package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// StatusCache keeps the latest difference event per bot and output mint.
type StatusCache struct {
	mu    sync.RWMutex
	items map[domain.BotID]map[string]domain.DifferenceEvent
}

func NewStatusCache() *StatusCache {
	return &StatusCache{items: make(map[domain.BotID]map[string]domain.DifferenceEvent)}
}

func (c *StatusCache) SetDifference(_ context.Context, evt domain.DifferenceEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.items[evt.BotID]
	if !ok {
		m = make(map[string]domain.DifferenceEvent)
		c.items[evt.BotID] = m
	}
	m[evt.OutputMint] = evt
	return nil
}

func (c *StatusCache) GetDifferences(_ context.Context, id domain.BotID) ([]domain.DifferenceEvent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.items[id]
	if !ok || len(m) == 0 {
		return nil, domain.ErrNotFound
	}
	out := make([]domain.DifferenceEvent, 0, len(m))
	for _, evt := range m {
		out = append(out, evt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OutputMint < out[j].OutputMint })
	return out, nil
}

func (c *StatusCache) Clear(_ context.Context, id domain.BotID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
	return nil
}

var _ domain.StatusCache = (*StatusCache)(nil)
