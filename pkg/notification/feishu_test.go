package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crawlfleet/pkg/config"
	"crawlfleet/pkg/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleNotification() *FleetCompleteNotification {
	return &FleetCompleteNotification{
		Location:    "state.json",
		Summary:     status.Summary{Total: 3, Done: 3, Packages: 42, Complete: true},
		Cycles:      2,
		CompletedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestFeishuNotifier_SendFleetComplete(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewFeishuNotifier(srv.URL)
	require.NoError(t, n.SendFleetCompleteNotification(context.Background(), sampleNotification()))

	assert.Equal(t, "interactive", body["msg_type"])
	raw, err := json.Marshal(body["card"])
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "**Packages**\\n42"), string(raw))
	assert.True(t, strings.Contains(string(raw), "2024-01-02 03:04:05"))
}

func TestFeishuNotifier_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewFeishuNotifier(srv.URL).SendFleetCompleteNotification(context.Background(), sampleNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestFeishuNotifier_Disabled(t *testing.T) {
	n := NewFeishuNotifier("")
	assert.False(t, n.Enabled())
	assert.NoError(t, n.SendFleetCompleteNotification(context.Background(), sampleNotification()))
}

func TestWebhookURL(t *testing.T) {
	t.Setenv("FEISHU_WEBHOOK_URL", "http://env")
	assert.Equal(t, "http://env", WebhookURL(nil))

	cfg := config.Default()
	assert.Equal(t, "http://env", WebhookURL(cfg))

	cfg.Notification.FeishuWebhookURL = "http://file"
	assert.Equal(t, "http://file", WebhookURL(cfg))
}
