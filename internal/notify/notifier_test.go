package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name  string
	calls int
	err   error
}

func (f *fakeSender) Send(ctx context.Context, title, message string) error {
	f.calls++
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotify_AllowListFiltersEvents(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{EventTradeExecuted}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), EventError, "t", "m"))
	assert.Zero(t, s.calls)

	require.NoError(t, n.Notify(context.Background(), EventTradeExecuted, "t", "m"))
	assert.Equal(t, 1, s.calls)
}

func TestNotify_EmptyAllowListDeliversEverything(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Equal(t, 1, s.calls)
}

func TestNotify_OneFailingChannelDoesNotBlockOthers(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("boom")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), EventError, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, 1, good.calls)
}

func TestDiscordSender_PostsBoldTitle(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = string(body)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	d := NewDiscordSender(srv.URL)
	require.NoError(t, d.Send(context.Background(), "Trade executed", "BUY $5.00"))
	assert.Contains(t, got, `**Trade executed**\n`)
}

func TestDiscordSender_SurfacesHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	d := NewDiscordSender(srv.URL)
	err := d.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
