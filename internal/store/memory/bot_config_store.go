// Package memory provides process-local stores used when no database is
// configured and in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// BotConfigStore keeps bot configurations in memory.
type BotConfigStore struct {
	mu      sync.RWMutex
	configs map[domain.BotID]domain.BotConfig
}

// NewBotConfigStore returns an empty store.
func NewBotConfigStore() *BotConfigStore {
	return &BotConfigStore{configs: make(map[domain.BotID]domain.BotConfig)}
}

func (s *BotConfigStore) Get(_ context.Context, id domain.BotID) (domain.BotConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[id]
	if !ok {
		return domain.BotConfig{}, domain.ErrNotFound
	}
	return cloneConfig(cfg), nil
}

func (s *BotConfigStore) Save(_ context.Context, cfg domain.BotConfig) error {
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.ID] = cloneConfig(cfg)
	return nil
}

func (s *BotConfigStore) SetActive(_ context.Context, id domain.BotID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[id]
	if !ok {
		return domain.ErrNotFound
	}
	cfg.Active = active
	cfg.UpdatedAt = time.Now().UTC()
	s.configs[id] = cfg
	return nil
}

// List returns every configuration ordered by id.
func (s *BotConfigStore) List(_ context.Context) ([]domain.BotConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]domain.BotConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		items = append(items, cloneConfig(cfg))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func cloneConfig(cfg domain.BotConfig) domain.BotConfig {
	if cfg.SinglePair != nil {
		sp := *cfg.SinglePair
		cfg.SinglePair = &sp
	}
	if cfg.MultiTarget != nil {
		mt := *cfg.MultiTarget
		mt.Targets = append([]domain.Target(nil), mt.Targets...)
		cfg.MultiTarget = &mt
	}
	return cfg
}

var _ domain.BotConfigStore = (*BotConfigStore)(nil)
