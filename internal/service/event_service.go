// Package service holds the application services between the engine and the
// infrastructure adapters: event fan-out and swap history queries.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// Signal bus channels.
const (
	ChannelDifference = "bot:difference"
	ChannelSwap       = "bot:swap"
	ChannelLog        = "bot:log"
	ChannelAll        = "bot:*"
)

const sideEffectTimeout = 5 * time.Second

// SwapPublisher streams confirmed swaps to downstream consumers.
type SwapPublisher interface {
	PublishSwap(ctx context.Context, rec domain.SwapRecord) error
}

// Notifier delivers operator alerts.
type Notifier interface {
	SwapExecuted(ctx context.Context, rec domain.SwapRecord) error
	LogEvent(ctx context.Context, evt domain.LogEvent) error
}

// EventDeps lists the event service collaborators. Only Swaps is required;
// the rest are skipped when nil.
type EventDeps struct {
	Swaps     domain.SwapStore
	Audit     domain.AuditStore
	Bus       domain.SignalBus
	Status    domain.StatusCache
	Publisher SwapPublisher
	Notifier  Notifier
}

// EventService receives engine telemetry and fans it out to history,
// the signal bus, the status cache, the swap stream and notifications.
// Every side effect is best-effort: failures are logged and never reach the
// bot that emitted the event.
type EventService struct {
	deps   EventDeps
	logger *slog.Logger
	newID  func() string
}

// NewEventService creates an EventService.
func NewEventService(deps EventDeps, logger *slog.Logger) *EventService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventService{
		deps:   deps,
		logger: logger.With(slog.String("component", "event_service")),
		newID:  uuid.NewString,
	}
}

// Difference caches and publishes how far a bot is from its target.
func (s *EventService) Difference(ctx context.Context, evt domain.DifferenceEvent) {
	ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancel()

	if s.deps.Status != nil {
		if err := s.deps.Status.SetDifference(ctx, evt); err != nil {
			s.warn(ctx, "cache difference failed", evt.BotID, err)
		}
	}
	s.publish(ctx, ChannelDifference, domain.EventDifference, evt.BotID, evt)
}

// SwapLogged stores the swap, then streams, publishes and announces it.
func (s *EventService) SwapLogged(ctx context.Context, rec domain.SwapRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if rec.ID == "" {
		rec.ID = s.newID()
	}
	if rec.ExecutedAt.IsZero() {
		rec.ExecutedAt = time.Now().UTC()
	}

	s.logger.InfoContext(ctx, "swap logged",
		slog.String("bot_id", rec.BotID),
		slog.String("signature", rec.Signature),
		slog.Int64("in_amount", rec.InAmount),
		slog.Int64("out_amount", rec.OutAmount),
	)

	if s.deps.Swaps != nil {
		if err := s.deps.Swaps.Insert(ctx, rec); err != nil {
			s.warn(ctx, "store swap failed", rec.BotID, err)
		}
	}
	if s.deps.Audit != nil {
		if err := s.deps.Audit.Log(ctx, domain.AuditSwapExecuted, map[string]any{
			"bot_id":    rec.BotID,
			"signature": rec.Signature,
			"in_mint":   rec.InputMint,
			"out_mint":  rec.OutputMint,
		}); err != nil {
			s.warn(ctx, "audit swap failed", rec.BotID, err)
		}
	}
	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishSwap(ctx, rec); err != nil {
			s.warn(ctx, "stream swap failed", rec.BotID, err)
		}
	}
	s.publish(ctx, ChannelSwap, domain.EventSwapLogged, rec.BotID, rec)
	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.SwapExecuted(ctx, rec); err != nil {
			s.warn(ctx, "notify swap failed", rec.BotID, err)
		}
	}
}

// Log mirrors an operator log line to slog, the bus and notifications. A
// bot halting itself clears its cached status.
func (s *EventService) Log(ctx context.Context, evt domain.LogEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	s.logger.Log(ctx, slogLevel(evt.Level), evt.Message, slog.String("bot_id", evt.BotID))
	s.publish(ctx, ChannelLog, domain.EventLog, evt.BotID, evt)

	if evt.Stopped && s.deps.Status != nil {
		if err := s.deps.Status.Clear(ctx, evt.BotID); err != nil {
			s.warn(ctx, "clear status failed", evt.BotID, err)
		}
	}
	if evt.Stopped && s.deps.Audit != nil {
		if err := s.deps.Audit.Log(ctx, domain.AuditBotStopped, map[string]any{
			"bot_id": evt.BotID,
			"level":  string(evt.Level),
			"reason": evt.Message,
		}); err != nil {
			s.warn(ctx, "audit stop failed", evt.BotID, err)
		}
	}
	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.LogEvent(ctx, evt); err != nil {
			s.warn(ctx, "notify log failed", evt.BotID, err)
		}
	}
}

func (s *EventService) publish(ctx context.Context, channel, typ string, id domain.BotID, payload any) {
	if s.deps.Bus == nil {
		return
	}
	data, err := json.Marshal(domain.Envelope{Type: typ, Payload: payload})
	if err != nil {
		s.warn(ctx, "encode event failed", id, err)
		return
	}
	if err := s.deps.Bus.Publish(ctx, channel, data); err != nil {
		s.warn(ctx, "publish event failed", id, err)
	}
}

func (s *EventService) warn(ctx context.Context, msg string, id domain.BotID, err error) {
	s.logger.WarnContext(ctx, msg, slog.String("bot_id", id), slog.String("error", err.Error()))
}

func slogLevel(l domain.LogLevel) slog.Level {
	switch l {
	case domain.LogLevelWarn:
		return slog.LevelWarn
	case domain.LogLevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}
