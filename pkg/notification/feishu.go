package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"crawlfleet/pkg/config"
	"crawlfleet/pkg/logger"
	"crawlfleet/pkg/status"
)

// FeishuNotifier sends notifications to Feishu (Lark)
type FeishuNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewFeishuNotifier creates a notifier for webhookURL; an empty URL disables it
func NewFeishuNotifier(webhookURL string) *FeishuNotifier {
	return &FeishuNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WebhookURL resolves the webhook: config file first, then FEISHU_WEBHOOK_URL
func WebhookURL(cfg *config.Config) string {
	if cfg != nil && cfg.Notification.FeishuWebhookURL != "" {
		return cfg.Notification.FeishuWebhookURL
	}
	return os.Getenv("FEISHU_WEBHOOK_URL")
}

// Enabled reports whether a webhook is configured
func (f *FeishuNotifier) Enabled() bool {
	return f.webhookURL != ""
}

// FleetCompleteNotification describes a fleet whose workers all finished
type FleetCompleteNotification struct {
	Location    string // Where the fleet state lives
	Summary     status.Summary
	Cycles      int
	CompletedAt time.Time
}

// SendFleetCompleteNotification posts the completion card
func (f *FeishuNotifier) SendFleetCompleteNotification(ctx context.Context, notification *FleetCompleteNotification) error {
	if !f.Enabled() {
		logger.DebugCtx(ctx, "Feishu webhook URL not configured, skipping notification")
		return nil
	}

	payload, err := json.Marshal(buildFleetCompleteMessage(notification))
	if err != nil {
		return fmt.Errorf("failed to marshal Feishu message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Feishu notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Feishu API returned status code: %d", resp.StatusCode)
	}

	logger.InfoCtx(ctx, "Feishu notification sent for fleet at %s", notification.Location)
	return nil
}

func buildFleetCompleteMessage(n *FleetCompleteNotification) map[string]interface{} {
	field := func(content string) map[string]interface{} {
		return map[string]interface{}{
			"is_short": true,
			"text": map[string]interface{}{
				"content": content,
				"tag":     "lark_md",
			},
		}
	}

	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"header": map[string]interface{}{
				"template": "green",
				"title": map[string]interface{}{
					"content": "Crawl fleet finished",
					"tag":     "plain_text",
				},
			},
			"elements": []interface{}{
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"content": fmt.Sprintf("**State**: %s\nAll workers reported completion", n.Location),
						"tag":     "lark_md",
					},
				},
				map[string]interface{}{
					"tag": "hr",
				},
				map[string]interface{}{
					"tag": "div",
					"fields": []interface{}{
						field(fmt.Sprintf("**Workers**\n%d", n.Summary.Total)),
						field(fmt.Sprintf("**Packages**\n%d", n.Summary.Packages)),
						field(fmt.Sprintf("**Cycles**\n%d", n.Cycles)),
						field(fmt.Sprintf("**Completed At**\n%s", n.CompletedAt.Format("2006-01-02 15:04:05"))),
					},
				},
			},
		},
	}
}
