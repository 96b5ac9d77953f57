package monitor

import (
	"fmt"
	"strings"
	"time"
)

// Key identifies one tracked breach candidate.
type Key struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

func (k Key) String() string {
	return k.ChannelID + "/" + k.MessageID
}

// ParseKey parses the "channelID/messageID" form produced by Key.String.
// Used by persistence backends that store keys as flat strings.
func ParseKey(s string) (Key, error) {
	ch, msg, ok := strings.Cut(s, "/")
	if !ok || ch == "" || msg == "" {
		return Key{}, fmt.Errorf("malformed record key %q", s)
	}
	return Key{ChannelID: ch, MessageID: msg}, nil
}

// Record is the persisted alert lifecycle for one breach candidate.
// A record exists only for messages that have at some point produced an
// AlertNow decision or been snoozed/handled through the API.
type Record struct {
	LastAlertAt  time.Time `json:"last_alert_at,omitzero"`
	SnoozedUntil time.Time `json:"snoozed_until,omitzero"`
	Handled      bool      `json:"handled"`
	Alerted      bool      `json:"alerted"`
}

// Decision is the outcome of one policy evaluation.
type Decision int

const (
	// NoAction means the message is not (or no longer) eligible to alert.
	NoAction Decision = iota

	// Suppress means the breach persists but cooldown blocks re-notification.
	Suppress

	// AlertNow means a breach alert must be dispatched.
	AlertNow
)

func (d Decision) String() string {
	switch d {
	case Suppress:
		return "suppress"
	case AlertNow:
		return "alert_now"
	default:
		return "no_action"
	}
}

// Alert is one AlertNow decision queued for dispatch.
type Alert struct {
	Key       Key
	AuthorID  string
	Excerpt   string
	Permalink string
	Age       time.Duration
}

// Breach is the API-facing view of a tracked record.
type Breach struct {
	ChannelID    string    `json:"channel_id"`
	MessageID    string    `json:"message_id"`
	LastAlertAt  time.Time `json:"last_alert_at,omitzero"`
	SnoozedUntil time.Time `json:"snoozed_until,omitzero"`
	Handled      bool      `json:"handled"`
	Alerted      bool      `json:"alerted"`
}

// Report summarizes one sweep run.
type Report struct {
	ID              string        `json:"id"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	ChannelsScanned int           `json:"channels_scanned"`
	ChannelsFailed  int           `json:"channels_failed"`
	MessagesSeen    int           `json:"messages_seen"`
	Candidates      int           `json:"candidates"`
	Cleared         int           `json:"cleared"`
	AlertsSent      int           `json:"alerts_sent"`
	Suppressed      int           `json:"suppressed"`
	DispatchFailed  int           `json:"dispatch_failed"`
	SkippedMessages int           `json:"skipped_messages"`
	DeadlineHit     bool          `json:"deadline_hit"`
	Digest          string        `json:"digest,omitempty"`
}
