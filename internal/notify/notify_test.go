package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSend(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	wh := NewWebhook(server.URL, "secret", 0, 1)
	err := wh.Send(context.Background(), Message{
		Destination: "jane.doe@example.com",
		Purpose:     "login",
		Code:        "482913",
		ExpiresAt:   time.Unix(1700000000, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", got.To)
	assert.Equal(t, "Jane Doe", got.Name)
	assert.Equal(t, "verification_login", got.Template)
	assert.Equal(t, "482913", got.Code)
	assert.Equal(t, int64(1700000000), got.ExpiresAt)
}

func TestWebhookSendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("provider down"))
	}))
	defer server.Close()

	err := NewWebhook(server.URL, "", 0, 1).Send(context.Background(), Message{Destination: "a@b.c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=502")
}

func TestWebhookRequiresURL(t *testing.T) {
	assert.Error(t, NewWebhook("", "", 0, 1).Send(context.Background(), Message{}))
}

func TestWebhookThrottleHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	wh := NewWebhook(server.URL, "", 0.001, 1)
	require.NoError(t, wh.Send(context.Background(), Message{Destination: "a@b.c"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := wh.Send(ctx, Message{Destination: "a@b.c"})
	assert.ErrorContains(t, err, "throttled")
}

func TestConsoleMasksDestination(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, c.Send(context.Background(), Message{Destination: "jane@example.com", Code: "000111", Purpose: "signup"}))
	assert.NotContains(t, buf.String(), "jane@example.com")
	assert.Contains(t, buf.String(), "000111")
}
