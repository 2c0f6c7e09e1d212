package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

const maxPageSize = 500

// SwapService answers swap history and live status queries for the API.
type SwapService struct {
	swaps  domain.SwapStore
	status domain.StatusCache
}

// NewSwapService creates a SwapService. status may be nil.
func NewSwapService(swaps domain.SwapStore, status domain.StatusCache) *SwapService {
	return &SwapService{swaps: swaps, status: status}
}

// List returns swaps newest first, for one bot when id is set.
func (s *SwapService) List(ctx context.Context, id domain.BotID, opts domain.ListOpts) ([]domain.SwapRecord, error) {
	if opts.Limit <= 0 || opts.Limit > maxPageSize {
		opts.Limit = maxPageSize
	}
	var (
		recs []domain.SwapRecord
		err  error
	)
	if id != "" {
		recs, err = s.swaps.ListByBot(ctx, id, opts)
	} else {
		recs, err = s.swaps.ListRecent(ctx, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("swap_service: list swaps: %w", err)
	}
	if recs == nil {
		recs = []domain.SwapRecord{}
	}
	return recs, nil
}

// Differences returns the latest difference events cached for a bot. A bot
// with nothing cached, or no cache configured, yields an empty slice.
func (s *SwapService) Differences(ctx context.Context, id domain.BotID) ([]domain.DifferenceEvent, error) {
	if s.status == nil {
		return []domain.DifferenceEvent{}, nil
	}
	evts, err := s.status.GetDifferences(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return []domain.DifferenceEvent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("swap_service: differences for %s: %w", id, err)
	}
	return evts, nil
}
