package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifyFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventSwapExecuted}, quietLogger())

	require.NoError(t, n.Notify(context.Background(), EventError, "dropped", ""))
	require.NoError(t, n.Notify(context.Background(), EventSwapExecuted, "kept", ""))
	require.NoError(t, n.NotifyAll(context.Background(), "forced", ""))

	assert.Equal(t, []string{"kept", "forced"}, s.titles)
}

func TestNotifyContinuesPastFailingSender(t *testing.T) {
	boom := errors.New("boom")
	bad := &recordingSender{name: "bad", err: boom}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, quietLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	assert.ErrorIs(t, err, boom)
	assert.Len(t, good.titles, 1)
}

func TestLogEventRouting(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, quietLogger())
	ctx := context.Background()

	require.NoError(t, n.LogEvent(ctx, domain.LogEvent{BotID: "b1", Level: domain.LogLevelInfo, Message: "tick"}))
	require.NoError(t, n.LogEvent(ctx, domain.LogEvent{BotID: "b1", Level: domain.LogLevelInfo, Stopped: true}))
	require.NoError(t, n.LogEvent(ctx, domain.LogEvent{BotID: "b1", Level: domain.LogLevelError, Message: "x"}))

	assert.Equal(t, []string{"Bot b1 stopped", "Bot b1 error"}, s.titles)
}

func TestTelegramSenderPostsMessage(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), "Swap executed", "body"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Swap executed*\nbody", got["text"])
}

func TestDiscordSenderReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "bad webhook")
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "bad webhook")
}

func TestShortMint(t *testing.T) {
	assert.Equal(t, "So11..1112", short("So11111111111111111111111111111111111111112"))
	assert.Equal(t, "abc", short("abc"))
}
