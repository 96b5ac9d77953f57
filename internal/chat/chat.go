// Package chat defines the boundary to the chat platform: channel history
// paging, member/role resolution, reaction lookups, and message delivery.
// The monitor engine depends only on this interface; platform adapters live
// in subpackages.
package chat

import (
	"context"
	"errors"
	"time"
)

// ErrMemberNotFound is returned by Member when the user no longer exists on
// the platform (left the workspace, deleted account). Callers treat this as
// "classification unknown", not as a transport failure.
var ErrMemberNotFound = errors.New("chat: member not found")

// Message is a single observed channel message. Immutable once fetched.
type Message struct {
	ChannelID     string    `json:"channel_id"`
	ID            string    `json:"id"`
	AuthorID      string    `json:"author_id"`
	CreatedAt     time.Time `json:"created_at"`
	Excerpt       string    `json:"excerpt"`
	Permalink     string    `json:"permalink"`
	Bot           bool      `json:"bot"`
	ReactionEmoji []string  `json:"reaction_emoji,omitempty"` // distinct emoji names on this message
}

// Member is a resolved platform participant.
type Member struct {
	ID    string
	Bot   bool
	Roles []string
}

// Transport is the platform collaborator the engine sweeps through.
//
// FetchChannelPage returns up to limit messages strictly older than beforeID
// in the platform's native newest-first order; an empty beforeID means "from
// now". A page shorter than limit signals the start of channel history.
type Transport interface {
	FetchChannelPage(ctx context.Context, channelID, beforeID string, limit int) ([]Message, error)
	Member(ctx context.Context, userID string) (Member, error)
	Reactors(ctx context.Context, channelID, messageID, emoji string) ([]string, error)
	SendMessage(ctx context.Context, channelID, text string) error
}
