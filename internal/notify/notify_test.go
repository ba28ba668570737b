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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name  string
	sent  []string
	fails error
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	if r.fails != nil {
		return r.fails
	}
	r.sent = append(r.sent, title)
	return nil
}

func (r *recordingSender) Name() string { return r.name }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifier_FiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"submission_failed", " claimable "}, 0, quietLogger())

	require.NoError(t, n.Notify(context.Background(), "submission_confirmed", "ok", ""))
	require.NoError(t, n.Notify(context.Background(), "submission_failed", "bad", ""))
	require.NoError(t, n.Notify(context.Background(), "claimable", "claim", ""))
	require.NoError(t, n.NotifyAll(context.Background(), "startup", ""))

	assert.Equal(t, []string{"bad", "claim", "startup"}, s.sent)
}

func TestNotifier_EmptyFilterAllowsAll(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, 0, quietLogger())
	require.NoError(t, n.Notify(context.Background(), "anything", "t", ""))
	assert.Len(t, s.sent, 1)
}

func TestNotifier_Cooldown(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, time.Minute, quietLogger())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, n.Notify(ctx, "e", "same", "msg"))
	require.NoError(t, n.Notify(ctx, "e", "same", "msg"))
	require.NoError(t, n.Notify(ctx, "e", "same", "other msg"))
	assert.Len(t, s.sent, 2)

	now = now.Add(2 * time.Minute)
	require.NoError(t, n.Notify(ctx, "e", "same", "msg"))
	assert.Len(t, s.sent, 3)
}

func TestNotifier_OneSenderFailing(t *testing.T) {
	bad := &recordingSender{name: "bad", fails: errors.New("down")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, 0, quietLogger())

	err := n.Notify(context.Background(), "e", "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.Len(t, good.sent, 1)
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42").WithAPIBase(srv.URL + "/")
	require.NoError(t, s.Send(context.Background(), "vote confirmed", "tx abc"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*vote confirmed*\ntx abc", got["text"])
}

func TestDiscordSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
