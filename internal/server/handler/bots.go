package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/numeric"
)

// BotManager is the registry the bot endpoints drive.
type BotManager interface {
	Start(ctx context.Context, cfg domain.BotConfig) error
	Stop(ctx context.Context, id domain.BotID) error
	StopAll(ctx context.Context) error
	List(ctx context.Context) ([]domain.BotView, error)
	Running(id domain.BotID) bool
}

// StatusSource returns the latest difference events for a bot.
type StatusSource interface {
	Differences(ctx context.Context, id domain.BotID) ([]domain.DifferenceEvent, error)
}

// BotHandler serves /api/bots.
type BotHandler struct {
	bots   BotManager
	status StatusSource
	logger *slog.Logger
}

func NewBotHandler(bots BotManager, status StatusSource, logger *slog.Logger) *BotHandler {
	return &BotHandler{bots: bots, status: status, logger: logger.With(slog.String("handler", "bots"))}
}

type listBotsResponse struct {
	Bots []domain.BotView `json:"bots"`
}

// ListBots returns every persisted bot merged with live status.
// GET /api/bots
func (h *BotHandler) ListBots(w http.ResponseWriter, r *http.Request) {
	views, err := h.bots.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list bots failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "failed to list bots")
		return
	}
	if views == nil {
		views = []domain.BotView{}
	}
	writeJSON(w, http.StatusOK, listBotsResponse{Bots: views})
}

type startBotResponse struct {
	ID     domain.BotID     `json:"id"`
	Status domain.BotStatus `json:"status"`
}

// startBotRequest is a BotConfig that may carry gain and stop loss as
// percentages instead of basis points.
type startBotRequest struct {
	domain.BotConfig
	TargetGainPercent *float64 `json:"target_gain_percent,omitempty"`
	StopLossPercent   *float64 `json:"stop_loss_percent,omitempty"`
}

func (req startBotRequest) config() (domain.BotConfig, error) {
	cfg := req.BotConfig
	if req.TargetGainPercent != nil {
		bps := numeric.PercentToBps(*req.TargetGainPercent)
		switch {
		case cfg.SinglePair != nil && cfg.SinglePair.TargetGainBps == nil:
			cfg.SinglePair.TargetGainBps = &bps
		case cfg.MultiTarget != nil && cfg.MultiTarget.TargetGainBps == 0:
			cfg.MultiTarget.TargetGainBps = bps
		default:
			return cfg, fmt.Errorf("%w: target_gain_percent conflicts with target_gain_bps", domain.ErrInvalidConfig)
		}
	}
	if req.StopLossPercent != nil {
		if cfg.SinglePair == nil || cfg.SinglePair.StopLossBps != nil {
			return cfg, fmt.Errorf("%w: stop_loss_percent needs a single_pair bot without stop_loss_bps", domain.ErrInvalidConfig)
		}
		bps := numeric.PercentToBps(*req.StopLossPercent)
		cfg.SinglePair.StopLossBps = &bps
	}
	return cfg, nil
}

// StartBot starts a bot from a BotConfig body. An empty id is generated.
// POST /api/bots
func (h *BotHandler) StartBot(w http.ResponseWriter, r *http.Request) {
	var req startBotRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	cfg, err := req.config()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if strings.TrimSpace(cfg.ID) == "" {
		cfg.ID = uuid.NewString()
	}

	if err := h.bots.Start(r.Context(), cfg); err != nil {
		h.logger.WarnContext(r.Context(), "start bot rejected",
			slog.String("bot_id", cfg.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, startBotResponse{ID: cfg.ID, Status: domain.BotStatusRunning})
}

// StopBot stops a bot. Stopping a bot that is not running succeeds.
// DELETE /api/bots/{id}
func (h *BotHandler) StopBot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.bots.Stop(r.Context(), id); err != nil {
		h.logger.ErrorContext(r.Context(), "stop bot failed",
			slog.String("bot_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StopAll stops every running bot.
// POST /api/bots/stop-all
func (h *BotHandler) StopAll(w http.ResponseWriter, r *http.Request) {
	if err := h.bots.StopAll(r.Context()); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type botStatusResponse struct {
	ID          domain.BotID             `json:"id"`
	Running     bool                     `json:"running"`
	Differences []domain.DifferenceEvent `json:"differences"`
}

// BotStatus returns whether a bot runs and how far it is from each target.
// GET /api/bots/{id}/status
func (h *BotHandler) BotStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	diffs, err := h.status.Differences(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), "failed to load status")
		return
	}
	writeJSON(w, http.StatusOK, botStatusResponse{ID: id, Running: h.bots.Running(id), Differences: diffs})
}
