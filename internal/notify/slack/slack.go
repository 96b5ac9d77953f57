// Package slack posts sweep reports to an ops channel via incoming webhooks.
// This is operational visibility only; breach alerts themselves go through
// the chat transport's alert channel.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/slawatch/internal/monitor"
)

const (
	maxDigestLen = 3000
	httpTimeout  = 10 * time.Second
)

// Notifier sends sweep reports to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Send posts a sweep report to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, report *monitor.Report) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(report)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(r *monitor.Report) map[string]any {
	blocks := []map[string]any{
		headerBlock(r),
		{"type": "divider"},
		fieldsBlock(r),
	}
	if r.Digest != "" {
		blocks = append(blocks, map[string]any{"type": "divider"}, digestBlock(r))
	}
	blocks = append(blocks, map[string]any{"type": "divider"}, contextBlock(r))
	return map[string]any{"blocks": blocks}
}

func headerBlock(r *monitor.Report) map[string]any {
	title := "Sweep Complete"
	if r.ChannelsFailed > 0 || r.DispatchFailed > 0 || r.DeadlineHit {
		title = "Sweep Degraded"
	}
	text := fmt.Sprintf("%s %s: %d alert(s) sent", statusEmoji(r), title, r.AlertsSent)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(r *monitor.Report) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Channels:* %d scanned, %d failed", r.ChannelsScanned, r.ChannelsFailed),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Messages:* %d", r.MessagesSeen),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Breach candidates:* %d", r.Candidates),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Cleared:* %d", r.Cleared),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Alerts:* %d sent, %d suppressed", r.AlertsSent, r.Suppressed),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Duration:* %.1fs", r.Duration.Seconds()),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func digestBlock(r *monitor.Report) map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Digest*\n\n%s", truncate(r.Digest, maxDigestLen)),
		},
	}
}

func contextBlock(r *monitor.Report) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("slawatch • sweep %s • %s", r.ID, r.StartedAt.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func statusEmoji(r *monitor.Report) string {
	switch {
	case r.DeadlineHit || r.DispatchFailed > 0:
		return "\U0001f534" // red circle
	case r.ChannelsFailed > 0 || r.AlertsSent > 0:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
