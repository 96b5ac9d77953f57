package monitor

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Persistence is the durable backend for alert records. Save must be atomic:
// a subsequent Load never observes a partially written state.
type Persistence interface {
	Load(ctx context.Context) (map[Key]*Record, error)
	Save(ctx context.Context, records map[Key]*Record) error
}

// StateStore is the authoritative in-memory record of alert lifecycle per
// message, loaded from a Persistence backend at startup and flushed back once
// per sweep (and on shutdown). It is the single source of idempotence across
// runs. Sweep mutations are serialized by the Service; API mutations may
// arrive concurrently, so flushes are serialized here and track a mutation
// generation to avoid clearing dirtiness a snapshot never captured.
type StateStore struct {
	mu      sync.Mutex
	records map[Key]*Record
	dirty   bool
	gen     uint64
	backend Persistence

	// flushMu serializes whole flushes so an earlier snapshot's save can
	// never land in the backend after a later one.
	flushMu sync.Mutex
}

// NewStateStore creates a store over the given backend.
func NewStateStore(backend Persistence) *StateStore {
	return &StateStore{
		records: make(map[Key]*Record),
		backend: backend,
	}
}

// Load replaces the in-memory state with the backend's contents.
func (s *StateStore) Load(ctx context.Context) error {
	records, err := s.backend.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if records == nil {
		records = make(map[Key]*Record)
	}
	s.records = records
	s.dirty = false
	return nil
}

// Get returns a copy of the record for key, if tracked.
func (s *StateStore) Get(key Key) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// RecordAlert marks a dispatched alert: lastAlertAt=now, alerted=true. Any
// stale handled flag is cleared since the breach evidently persists.
func (s *StateStore) RecordAlert(key Key, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	if !ok {
		r = &Record{}
		s.records[key] = r
	}
	r.LastAlertAt = now
	r.Alerted = true
	r.Handled = false
	s.dirty = true
	s.gen++
}

// Clear removes the record once the resolver confirms the message is
// answered. Clearing an untracked key is a no-op.
func (s *StateStore) Clear(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return false
	}
	delete(s.records, key)
	s.dirty = true
	s.gen++
	return true
}

// Snooze silences a tracked record until the given time. Returns false for
// untracked keys: only breach candidates can be snoozed.
func (s *StateStore) Snooze(key Key, until time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	if !ok {
		return false
	}
	r.SnoozedUntil = until
	s.dirty = true
	s.gen++
	return true
}

// MarkHandled permanently silences a tracked record. Returns false for
// untracked keys.
func (s *StateStore) MarkHandled(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	if !ok {
		return false
	}
	r.Handled = true
	s.dirty = true
	s.gen++
	return true
}

// List returns all tracked records ordered by key, for the API surface.
func (s *StateStore) List() []Breach {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Breach, 0, len(s.records))
	for k, r := range s.records {
		out = append(out, Breach{
			ChannelID:    k.ChannelID,
			MessageID:    k.MessageID,
			LastAlertAt:  r.LastAlertAt,
			SnoozedUntil: r.SnoozedUntil,
			Handled:      r.Handled,
			Alerted:      r.Alerted,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChannelID != out[j].ChannelID {
			return out[i].ChannelID < out[j].ChannelID
		}
		return out[i].MessageID < out[j].MessageID
	})
	return out
}

// Len returns the number of tracked records.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Flush persists accumulated mutations. A clean store is a no-op so repeated
// flushes stay cheap. Flushes are serialized, and the dirty flag only drops
// when the save succeeded AND no mutation arrived while it was in flight, so
// a concurrent snooze or handled mark is picked up by the next flush instead
// of being masked by a snapshot that predates it. A failed save is retried by
// the next flush.
func (s *StateStore) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	gen := s.gen
	snapshot := make(map[Key]*Record, len(s.records))
	for k, r := range s.records {
		cp := *r
		snapshot[k] = &cp
	}
	s.mu.Unlock()

	if err := s.backend.Save(ctx, snapshot); err != nil {
		return err
	}

	s.mu.Lock()
	if s.gen == gen {
		s.dirty = false
	}
	s.mu.Unlock()
	return nil
}
