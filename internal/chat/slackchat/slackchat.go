// Package slackchat implements chat.Transport on top of the Slack Web API.
package slackchat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"github.com/linnemanlabs/slawatch/internal/chat"
)

const (
	maxExcerptLen = 140

	// usergroup membership changes rarely; one snapshot per sweep is plenty
	roleCacheTTL = 5 * time.Minute
)

// Client adapts a slack-go client to chat.Transport. Role sets are modeled
// as the handles of the Slack usergroups a member belongs to.
type Client struct {
	api          *slack.Client
	workspaceURL string // e.g. https://acme.slack.com, used for permalinks

	mu          sync.Mutex
	groupsAt    time.Time
	memberRoles map[string][]string // user ID -> usergroup handles
}

// New creates a Slack transport. workspaceURL is the workspace base URL used
// to construct message permalinks without extra API calls.
func New(token, workspaceURL string) *Client {
	return &Client{
		api:          slack.New(token),
		workspaceURL: strings.TrimRight(workspaceURL, "/"),
	}
}

// AuthTest verifies the configured token. Main treats a failure here as
// run-fatal per the platform authentication policy.
func (c *Client) AuthTest(ctx context.Context) error {
	if _, err := c.api.AuthTestContext(ctx); err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	return nil
}

// FetchChannelPage returns up to limit messages strictly older than beforeID,
// newest first (Slack's native conversations.history order).
func (c *Client) FetchChannelPage(ctx context.Context, channelID, beforeID string, limit int) ([]chat.Message, error) {
	params := &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     limit,
		Latest:    beforeID,
		Inclusive: false,
	}

	resp, err := c.api.GetConversationHistoryContext(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("conversations.history %s: %w", channelID, err)
	}

	out := make([]chat.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		created, err := parseSlackTS(m.Timestamp)
		if err != nil {
			// malformed timestamp from the API; drop the message rather than
			// poison window ordering
			continue
		}
		out = append(out, chat.Message{
			ChannelID:     channelID,
			ID:            m.Timestamp,
			AuthorID:      m.User,
			CreatedAt:     created,
			Excerpt:       excerpt(m.Text),
			Permalink:     c.permalink(channelID, m.Timestamp),
			Bot:           m.BotID != "" || m.SubType == "bot_message",
			ReactionEmoji: reactionNames(m.Reactions),
		})
	}
	return out, nil
}

// Member resolves a user and their usergroup-derived role set.
func (c *Client) Member(ctx context.Context, userID string) (chat.Member, error) {
	u, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		if strings.Contains(err.Error(), "user_not_found") {
			return chat.Member{}, chat.ErrMemberNotFound
		}
		return chat.Member{}, fmt.Errorf("users.info %s: %w", userID, err)
	}
	if u.Deleted {
		return chat.Member{}, chat.ErrMemberNotFound
	}

	roles, err := c.rolesOf(ctx, userID)
	if err != nil {
		return chat.Member{}, err
	}
	return chat.Member{ID: userID, Bot: u.IsBot, Roles: roles}, nil
}

// Reactors returns the users who reacted with the given emoji.
func (c *Client) Reactors(ctx context.Context, channelID, messageID, emoji string) ([]string, error) {
	ref := slack.NewRefToMessage(channelID, messageID)
	reactions, err := c.api.GetReactionsContext(ctx, ref, slack.NewGetReactionsParameters())
	if err != nil {
		return nil, fmt.Errorf("reactions.get %s/%s: %w", channelID, messageID, err)
	}
	for _, r := range reactions {
		if r.Name == emoji {
			return r.Users, nil
		}
	}
	return nil, nil
}

// SendMessage posts plain text to a channel.
func (c *Client) SendMessage(ctx context.Context, channelID, text string) error {
	_, _, err := c.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("chat.postMessage %s: %w", channelID, err)
	}
	return nil
}

// rolesOf returns the usergroup handles containing userID, refreshing the
// workspace usergroup snapshot when stale.
func (c *Client) rolesOf(ctx context.Context, userID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.memberRoles == nil || time.Since(c.groupsAt) > roleCacheTTL {
		groups, err := c.api.GetUserGroupsContext(ctx, slack.GetUserGroupsOptionIncludeUsers(true))
		if err != nil {
			return nil, fmt.Errorf("usergroups.list: %w", err)
		}
		byUser := make(map[string][]string)
		for _, g := range groups {
			for _, uid := range g.Users {
				byUser[uid] = append(byUser[uid], g.Handle)
			}
		}
		c.memberRoles = byUser
		c.groupsAt = time.Now()
	}
	return c.memberRoles[userID], nil
}

func (c *Client) permalink(channelID, ts string) string {
	if c.workspaceURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/archives/%s/p%s", c.workspaceURL, channelID, strings.Replace(ts, ".", "", 1))
}

// parseSlackTS converts a Slack "seconds.microseconds" timestamp.
func parseSlackTS(ts string) (time.Time, error) {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse ts %q: %w", ts, err)
	}
	var micro int64
	if frac != "" {
		micro, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse ts %q: %w", ts, err)
		}
	}
	return time.Unix(s, micro*int64(time.Microsecond)).UTC(), nil
}

func reactionNames(reactions []slack.ItemReaction) []string {
	if len(reactions) == 0 {
		return nil
	}
	names := make([]string, 0, len(reactions))
	for _, r := range reactions {
		names = append(names, r.Name)
	}
	return names
}

func excerpt(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= maxExcerptLen {
		return string(runes)
	}
	return string(runes[:maxExcerptLen-1]) + "…"
}
