package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// SwapStore keeps swap history in memory, newest last.
type SwapStore struct {
	mu      sync.RWMutex
	records []domain.SwapRecord
}

func NewSwapStore() *SwapStore {
	return &SwapStore{}
}

func (s *SwapStore) Insert(_ context.Context, rec domain.SwapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == rec.ID {
			return domain.ErrAlreadyExists
		}
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *SwapStore) ListByBot(_ context.Context, id domain.BotID, opts domain.ListOpts) ([]domain.SwapRecord, error) {
	return s.list(opts, func(r domain.SwapRecord) bool { return r.BotID == id }), nil
}

func (s *SwapStore) ListRecent(_ context.Context, opts domain.ListOpts) ([]domain.SwapRecord, error) {
	return s.list(opts, func(domain.SwapRecord) bool { return true }), nil
}

// ListBefore returns records executed strictly before the cutoff, oldest
// first.
func (s *SwapStore) ListBefore(_ context.Context, before time.Time) ([]domain.SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SwapRecord
	for _, r := range s.records {
		if r.ExecutedAt.Before(before) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExecutedAt.Before(out[j].ExecutedAt) })
	return out, nil
}

// DeleteBefore drops archived records.
func (s *SwapStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var n int64
	for _, r := range s.records {
		if r.ExecutedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return n, nil
}

// list filters, orders newest first and paginates.
func (s *SwapStore) list(opts domain.ListOpts, keep func(domain.SwapRecord) bool) []domain.SwapRecord {
	s.mu.RLock()
	var out []domain.SwapRecord
	for _, r := range s.records {
		if !keep(r) {
			continue
		}
		if opts.Since != nil && r.ExecutedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && r.ExecutedAt.After(*opts.Until) {
			continue
		}
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].ExecutedAt.After(out[j].ExecutedAt) })
	return paginate(out, opts)
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

var _ domain.SwapStore = (*SwapStore)(nil)
