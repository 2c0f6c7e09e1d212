package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/server/handler"
)

type nopManager struct{}

func (nopManager) Start(context.Context, domain.BotConfig) error  { return nil }
func (nopManager) Stop(context.Context, domain.BotID) error       { return nil }
func (nopManager) StopAll(context.Context) error                  { return nil }
func (nopManager) List(context.Context) ([]domain.BotView, error) { return nil, nil }
func (nopManager) Running(domain.BotID) bool                      { return false }

type nopStatus struct{}

func (nopStatus) Differences(context.Context, domain.BotID) ([]domain.DifferenceEvent, error) {
	return nil, nil
}

type nopSwaps struct{}

func (nopSwaps) List(context.Context, domain.BotID, domain.ListOpts) ([]domain.SwapRecord, error) {
	return nil, nil
}

func TestServerRoutes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(Config{APIKey: "k"}, Handlers{
		Health: handler.NewHealthHandler("server", nil, logger),
		Bots:   handler.NewBotHandler(nopManager{}, nopStatus{}, logger),
		Swaps:  handler.NewSwapHandler(nopSwaps{}, nil, logger),
	}, nil, nil, logger)

	cases := []struct {
		method, path string
		auth         bool
		want         int
	}{
		{http.MethodGet, "/api/health", false, http.StatusOK},
		{http.MethodGet, "/api/bots", false, http.StatusUnauthorized},
		{http.MethodGet, "/api/bots", true, http.StatusOK},
		{http.MethodPost, "/api/bots/stop-all", true, http.StatusNoContent},
		{http.MethodDelete, "/api/bots/x", true, http.StatusNoContent},
		{http.MethodGet, "/api/bots/x/status", true, http.StatusOK},
		{http.MethodGet, "/api/swaps", true, http.StatusOK},
		{http.MethodGet, "/api/swaps/archives", true, http.StatusNotFound},
		{http.MethodPut, "/api/bots", true, http.StatusMethodNotAllowed},
		{http.MethodGet, "/ws", true, http.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if tc.auth {
			req.Header.Set("X-API-Key", "k")
		}
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, "%s %s", tc.method, tc.path)
	}
}
