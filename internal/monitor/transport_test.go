package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/slawatch/internal/chat"
)

// fakeTransport serves a fixed newest-first history per channel and records
// every interaction.
type fakeTransport struct {
	mu sync.Mutex

	history  map[string][]chat.Message // newest-first, as the platform returns it
	members  map[string]chat.Member
	missing  map[string]bool
	reactors map[string][]string // channel|message|emoji -> user IDs

	fetchErr    map[string]error
	memberErr   map[string]error
	reactorsErr map[string]error
	sendErrs    []error // consumed one per SendMessage call

	sent         []string
	sentChannels []string
	memberCalls  map[string]int
	reactorCalls int
	fetchCalls   int
	fetchBlocked chan struct{} // when non-nil, FetchChannelPage blocks until closed
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		history:     make(map[string][]chat.Message),
		members:     make(map[string]chat.Member),
		missing:     make(map[string]bool),
		reactors:    make(map[string][]string),
		fetchErr:    make(map[string]error),
		memberErr:   make(map[string]error),
		reactorsErr: make(map[string]error),
		memberCalls: make(map[string]int),
	}
}

func (f *fakeTransport) FetchChannelPage(ctx context.Context, channelID, beforeID string, limit int) ([]chat.Message, error) {
	f.mu.Lock()
	blocked := f.fetchBlocked
	f.fetchCalls++
	err := f.fetchErr[channelID]
	msgs := f.history[channelID]
	f.mu.Unlock()

	if blocked != nil {
		select {
		case <-blocked:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	start := 0
	if beforeID != "" {
		for i, m := range msgs {
			if m.ID == beforeID {
				start = i + 1
				break
			}
		}
	}
	end := min(start+limit, len(msgs))
	out := make([]chat.Message, end-start)
	copy(out, msgs[start:end])
	return out, nil
}

func (f *fakeTransport) Member(_ context.Context, userID string) (chat.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memberCalls[userID]++
	if err := f.memberErr[userID]; err != nil {
		return chat.Member{}, err
	}
	if f.missing[userID] {
		return chat.Member{}, chat.ErrMemberNotFound
	}
	m, ok := f.members[userID]
	if !ok {
		return chat.Member{}, chat.ErrMemberNotFound
	}
	return m, nil
}

func (f *fakeTransport) Reactors(_ context.Context, channelID, messageID, emoji string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactorCalls++
	key := channelID + "|" + messageID + "|" + emoji
	if err := f.reactorsErr[key]; err != nil {
		return nil, err
	}
	return f.reactors[key], nil
}

func (f *fakeTransport) SendMessage(_ context.Context, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := len(f.sentChannels)
	f.sentChannels = append(f.sentChannels, channelID)
	if call < len(f.sendErrs) && f.sendErrs[call] != nil {
		return f.sendErrs[call]
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeBackend is an in-memory Persistence with fault injection.
type fakeBackend struct {
	mu      sync.Mutex
	stored  map[Key]*Record
	saveErr error
	loadErr error
	saves   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{stored: make(map[Key]*Record)}
}

func (b *fakeBackend) Load(context.Context) (map[Key]*Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	out := make(map[Key]*Record, len(b.stored))
	for k, r := range b.stored {
		cp := *r
		out[k] = &cp
	}
	return out, nil
}

func (b *fakeBackend) Save(_ context.Context, records map[Key]*Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves++
	if b.saveErr != nil {
		return b.saveErr
	}
	b.stored = make(map[Key]*Record, len(records))
	for k, r := range records {
		cp := *r
		b.stored[k] = &cp
	}
	return nil
}

func (b *fakeBackend) saveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

var testBase = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

func msgAt(channelID, id, author string, at time.Time) chat.Message {
	return chat.Message{
		ChannelID: channelID,
		ID:        id,
		AuthorID:  author,
		CreatedAt: at,
		Excerpt:   "excerpt for " + id,
	}
}
