package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// SwapLister lists swap history.
type SwapLister interface {
	List(ctx context.Context, id domain.BotID, opts domain.ListOpts) ([]domain.SwapRecord, error)
}

// ArchiveLister lists archived history files.
type ArchiveLister interface {
	List(ctx context.Context) ([]domain.BlobInfo, error)
}

// SwapHandler serves swap history.
type SwapHandler struct {
	swaps    SwapLister
	archives ArchiveLister
	logger   *slog.Logger
}

// NewSwapHandler creates a SwapHandler. archives may be nil.
func NewSwapHandler(swaps SwapLister, archives ArchiveLister, logger *slog.Logger) *SwapHandler {
	return &SwapHandler{swaps: swaps, archives: archives, logger: logger.With(slog.String("handler", "swaps"))}
}

type listSwapsResponse struct {
	Swaps  []domain.SwapRecord `json:"swaps"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// ListSwaps returns swap history newest first.
// GET /api/swaps?bot_id=&limit=50&offset=0&since=&until=
func (h *SwapHandler) ListSwaps(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := h.swaps.List(r.Context(), r.URL.Query().Get("bot_id"), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list swaps failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "failed to list swaps")
		return
	}
	writeJSON(w, http.StatusOK, listSwapsResponse{Swaps: recs, Limit: opts.Limit, Offset: opts.Offset})
}

// ListArchives returns the archived swap history files.
// GET /api/swaps/archives
func (h *SwapHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	if h.archives == nil {
		writeError(w, http.StatusNotFound, "archiving is disabled")
		return
	}
	infos, err := h.archives.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list archives failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to list archives")
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": infos})
}
