// Package claude generates optional natural-language digests of open
// breaches via the Claude API. The alerting path never depends on it:
// digest failures are logged by the caller and skipped.
package claude

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/slawatch/internal/monitor"
)

const (
	digestMaxTokens = 512

	// digests cover at most this many breaches; beyond that the prompt only
	// carries counts
	maxPromptBreaches = 50
)

// Client implements monitor.Digester against the Claude API.
type Client struct {
	client anthropic.Client
	model  string
}

// New creates a digest client with the given API key and model name.
func New(apiKey, model string) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Digest produces a one-paragraph summary of the sweep outcome and the open
// breach backlog.
func (c *Client) Digest(ctx context.Context, open []monitor.Breach, report *monitor.Report) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: digestMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(open, report))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude digest: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("claude digest: empty response")
	}
	return out, nil
}

const systemPrompt = `You summarize SLA breach sweeps for a support team's ops channel.
Write one short paragraph: how many client messages are waiting, which channels are worst,
and whether the backlog is growing or shrinking. Plain prose, no markdown headings, no fluff.`

// buildPrompt renders the sweep report and open-breach backlog as plain text.
func buildPrompt(open []monitor.Breach, report *monitor.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Sweep result: %d channels scanned (%d failed), %d messages seen, %d breach candidates, %d alerts sent, %d suppressed by cooldown, %d cleared.\n\n",
		report.ChannelsScanned, report.ChannelsFailed, report.MessagesSeen,
		report.Candidates, report.AlertsSent, report.Suppressed, report.Cleared)

	fmt.Fprintf(&b, "Open breach records: %d\n", len(open))
	for i, br := range open {
		if i == maxPromptBreaches {
			fmt.Fprintf(&b, "... and %d more\n", len(open)-maxPromptBreaches)
			break
		}
		state := "open"
		switch {
		case br.Handled:
			state = "handled"
		case !br.SnoozedUntil.IsZero() && br.SnoozedUntil.After(report.StartedAt):
			state = "snoozed"
		}
		last := "never alerted"
		if !br.LastAlertAt.IsZero() {
			last = "last alerted " + br.LastAlertAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "- channel %s message %s: %s, %s\n", br.ChannelID, br.MessageID, state, last)
	}

	return b.String()
}
