package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeManager struct {
	started  []domain.BotConfig
	stopped  []domain.BotID
	stopAll  int
	startErr error
	views    []domain.BotView
	running  map[domain.BotID]bool
}

func (f *fakeManager) Start(_ context.Context, cfg domain.BotConfig) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, cfg)
	return nil
}

func (f *fakeManager) Stop(_ context.Context, id domain.BotID) error {
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeManager) StopAll(context.Context) error {
	f.stopAll++
	return nil
}

func (f *fakeManager) List(context.Context) ([]domain.BotView, error) { return f.views, nil }

func (f *fakeManager) Running(id domain.BotID) bool { return f.running[id] }

type fakeStatus map[domain.BotID][]domain.DifferenceEvent

func (f fakeStatus) Differences(_ context.Context, id domain.BotID) ([]domain.DifferenceEvent, error) {
	return f[id], nil
}

func route(pattern string, h http.HandlerFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	return mux
}

const singlePairBody = `{"id":"sol-usdc","kind":"single_pair","single_pair":{
	"input_mint":"So11111111111111111111111111111111111111112",
	"output_mint":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	"amount":1000000000,"threshold_amount":150000000,"target_gain_bps":150}}`

func TestStartBot(t *testing.T) {
	mgr := &fakeManager{}
	h := NewBotHandler(mgr, fakeStatus{}, discard)

	rec := httptest.NewRecorder()
	route("POST /api/bots", h.StartBot).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/bots", strings.NewReader(singlePairBody)))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, mgr.started, 1)
	assert.Equal(t, "sol-usdc", mgr.started[0].ID)
	assert.JSONEq(t, `{"id":"sol-usdc","status":"running"}`, rec.Body.String())
}

func TestStartBotGeneratesID(t *testing.T) {
	mgr := &fakeManager{}
	h := NewBotHandler(mgr, fakeStatus{}, discard)

	body := strings.Replace(singlePairBody, `"id":"sol-usdc",`, "", 1)
	rec := httptest.NewRecorder()
	route("POST /api/bots", h.StartBot).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/bots", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, mgr.started, 1)
	assert.Len(t, mgr.started[0].ID, 36)
}

func TestStartBotAcceptsPercentages(t *testing.T) {
	mgr := &fakeManager{}
	h := NewBotHandler(mgr, fakeStatus{}, discard)

	body := strings.Replace(singlePairBody, `,"target_gain_bps":150}}`, `}, "target_gain_percent":1.5, "stop_loss_percent":2.25}`, 1)
	rec := httptest.NewRecorder()
	route("POST /api/bots", h.StartBot).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/bots", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, mgr.started, 1)
	sp := mgr.started[0].SinglePair
	require.NotNil(t, sp.TargetGainBps)
	require.NotNil(t, sp.StopLossBps)
	assert.Equal(t, int64(150), *sp.TargetGainBps)
	assert.Equal(t, int64(225), *sp.StopLossBps)
}

func TestStartBotRejectsGainInBothUnits(t *testing.T) {
	mgr := &fakeManager{}
	h := NewBotHandler(mgr, fakeStatus{}, discard)

	body := strings.TrimSuffix(singlePairBody, "}") + `,"target_gain_percent":1.5}`
	rec := httptest.NewRecorder()
	route("POST /api/bots", h.StartBot).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/bots", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, mgr.started)
}

func TestStartBotErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"malformed body", `{"id":`, nil, http.StatusBadRequest},
		{"unknown field", `{"id":"x","color":"red"}`, nil, http.StatusBadRequest},
		{"invalid gain", singlePairBody, fmt.Errorf("trade bot: %w", domain.ErrInvalidTargetGain), http.StatusBadRequest},
		{"invalid config", singlePairBody, domain.ErrInvalidConfig, http.StatusBadRequest},
		{"already running", singlePairBody, domain.ErrAlreadyRunning, http.StatusConflict},
		{"lease held elsewhere", singlePairBody, domain.ErrLockHeld, http.StatusConflict},
		{"manager shut down", singlePairBody, domain.ErrBotStopped, http.StatusServiceUnavailable},
		{"unexpected", singlePairBody, errors.New("rpc down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewBotHandler(&fakeManager{startErr: tc.err}, fakeStatus{}, discard)
			rec := httptest.NewRecorder()
			route("POST /api/bots", h.StartBot).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/bots", strings.NewReader(tc.body)))
			assert.Equal(t, tc.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestStopBot(t *testing.T) {
	mgr := &fakeManager{}
	h := NewBotHandler(mgr, fakeStatus{}, discard)

	rec := httptest.NewRecorder()
	route("DELETE /api/bots/{id}", h.StopBot).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/bots/sol-usdc", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []domain.BotID{"sol-usdc"}, mgr.stopped)
}

func TestStopAll(t *testing.T) {
	mgr := &fakeManager{}
	h := NewBotHandler(mgr, fakeStatus{}, discard)

	rec := httptest.NewRecorder()
	h.StopAll(rec, httptest.NewRequest(http.MethodPost, "/api/bots/stop-all", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, mgr.stopAll)
}

func TestListBots(t *testing.T) {
	t.Run("empty list encodes as array", func(t *testing.T) {
		h := NewBotHandler(&fakeManager{}, fakeStatus{}, discard)
		rec := httptest.NewRecorder()
		h.ListBots(rec, httptest.NewRequest(http.MethodGet, "/api/bots", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"bots":[]}`, rec.Body.String())
	})

	t.Run("views", func(t *testing.T) {
		mgr := &fakeManager{views: []domain.BotView{{
			Config:     domain.BotConfig{ID: "a", Kind: domain.BotKindSinglePair},
			Status:     domain.BotStatusRunning,
			TradeCount: 3,
		}}}
		h := NewBotHandler(mgr, fakeStatus{}, discard)
		rec := httptest.NewRecorder()
		h.ListBots(rec, httptest.NewRequest(http.MethodGet, "/api/bots", nil))

		var got listBotsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got.Bots, 1)
		assert.Equal(t, domain.BotStatusRunning, got.Bots[0].Status)
		assert.Equal(t, 3, got.Bots[0].TradeCount)
	})
}

func TestBotStatus(t *testing.T) {
	mgr := &fakeManager{running: map[domain.BotID]bool{"a": true}}
	status := fakeStatus{"a": {{BotID: "a", OutputMint: "USDC"}}}
	h := NewBotHandler(mgr, status, discard)

	rec := httptest.NewRecorder()
	route("GET /api/bots/{id}/status", h.BotStatus).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bots/a/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got botStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Running)
	require.Len(t, got.Differences, 1)
	assert.Equal(t, "USDC", got.Differences[0].OutputMint)
}

type fakeSwaps struct {
	gotID   domain.BotID
	gotOpts domain.ListOpts
	recs    []domain.SwapRecord
}

func (f *fakeSwaps) List(_ context.Context, id domain.BotID, opts domain.ListOpts) ([]domain.SwapRecord, error) {
	f.gotID, f.gotOpts = id, opts
	return f.recs, nil
}

func TestListSwaps(t *testing.T) {
	swaps := &fakeSwaps{recs: []domain.SwapRecord{{BotID: "a", Signature: "sig"}}}
	h := NewSwapHandler(swaps, nil, discard)

	rec := httptest.NewRecorder()
	h.ListSwaps(rec, httptest.NewRequest(http.MethodGet, "/api/swaps?bot_id=a&limit=900&offset=10&since=2026-01-02T00:00:00Z", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a", swaps.gotID)
	assert.Equal(t, maxPageSize, swaps.gotOpts.Limit)
	assert.Equal(t, 10, swaps.gotOpts.Offset)
	require.NotNil(t, swaps.gotOpts.Since)
	assert.Equal(t, 2026, swaps.gotOpts.Since.Year())
	assert.Nil(t, swaps.gotOpts.Until)
	assert.Contains(t, rec.Body.String(), `"sig"`)
}

func TestListSwapsRejectsBadParams(t *testing.T) {
	h := NewSwapHandler(&fakeSwaps{}, nil, discard)
	for _, q := range []string{"limit=-1", "limit=x", "offset=-3", "until=yesterday"} {
		rec := httptest.NewRecorder()
		h.ListSwaps(rec, httptest.NewRequest(http.MethodGet, "/api/swaps?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestListArchivesDisabled(t *testing.T) {
	h := NewSwapHandler(&fakeSwaps{}, nil, discard)
	rec := httptest.NewRecorder()
	h.ListArchives(rec, httptest.NewRequest(http.MethodGet, "/api/swaps/archives", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthCheck(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	t.Run("healthy", func(t *testing.T) {
		h := NewHealthHandler("full", map[string]Pinger{"postgres": ok}, discard)
		rec := httptest.NewRecorder()
		h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	})

	t.Run("degraded", func(t *testing.T) {
		h := NewHealthHandler("full", map[string]Pinger{"postgres": ok, "redis": down}, discard)
		rec := httptest.NewRecorder()
		h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		deps := body["dependencies"].(map[string]any)
		assert.Equal(t, "ok", deps["postgres"])
		assert.Equal(t, "connection refused", deps["redis"])
	})
}
