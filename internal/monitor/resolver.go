package monitor

import (
	"context"
	"errors"

	"github.com/linnemanlabs/slawatch/internal/chat"
)

// roster caches member lookups for the duration of one sweep, including
// negative results for members who left the platform.
type roster struct {
	transport chat.Transport
	members   map[string]chat.Member
	missing   map[string]struct{}
}

func newRoster(t chat.Transport) *roster {
	return &roster{
		transport: t,
		members:   make(map[string]chat.Member),
		missing:   make(map[string]struct{}),
	}
}

// get resolves a member. ok=false without error means the member is unknown
// (left the platform); a non-nil error is a transport failure.
func (r *roster) get(ctx context.Context, userID string) (chat.Member, bool, error) {
	if m, ok := r.members[userID]; ok {
		return m, true, nil
	}
	if _, gone := r.missing[userID]; gone {
		return chat.Member{}, false, nil
	}

	m, err := r.transport.Member(ctx, userID)
	if err != nil {
		if errors.Is(err, chat.ErrMemberNotFound) {
			r.missing[userID] = struct{}{}
			return chat.Member{}, false, nil
		}
		return chat.Member{}, false, err
	}
	r.members[userID] = m
	return m, true, nil
}

// Resolver determines whether an external message has received a qualifying
// internal response within its conversation window.
type Resolver struct {
	transport  chat.Transport
	classifier *Classifier
	roster     *roster
}

// NewResolver creates a resolver sharing the sweep's member roster.
func NewResolver(t chat.Transport, c *Classifier, members *roster) *Resolver {
	return &Resolver{transport: t, classifier: c, roster: members}
}

// IsAnswered reports whether msg has a qualifying response: a strictly later
// internal non-bot message in the same window, or an internal non-bot
// reaction on the message itself.
//
// Reply-after costs no I/O beyond cached member lookups, so it runs first;
// reaction resolution needs one round-trip per distinct emoji and is skipped
// entirely once a reply-after match exists.
func (r *Resolver) IsAnswered(ctx context.Context, msg chat.Message, window []chat.Message) (bool, error) {
	for _, m := range window {
		if m.Bot || !m.CreatedAt.After(msg.CreatedAt) {
			continue
		}
		member, ok, err := r.roster.get(ctx, m.AuthorID)
		if err != nil {
			return false, err
		}
		if !ok || member.Bot {
			continue
		}
		if r.classifier.IsInternal(member.Roles) {
			return true, nil
		}
	}

	for _, emoji := range msg.ReactionEmoji {
		users, err := r.transport.Reactors(ctx, msg.ChannelID, msg.ID, emoji)
		if err != nil {
			return false, err
		}
		for _, uid := range users {
			member, ok, err := r.roster.get(ctx, uid)
			if err != nil {
				return false, err
			}
			if !ok || member.Bot {
				continue
			}
			if r.classifier.IsInternal(member.Roles) {
				return true, nil
			}
		}
	}

	return false, nil
}
