// Package memstate provides an in-memory implementation of
// monitor.Persistence. Suitable for dev/testing; state does not survive a
// restart.
package memstate

import (
	"context"
	"sync"

	"github.com/linnemanlabs/slawatch/internal/monitor"
)

// Store holds alert records in memory.
type Store struct {
	mu      sync.Mutex
	records map[monitor.Key]*monitor.Record
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{records: make(map[monitor.Key]*monitor.Record)}
}

// Load returns a copy of the stored records.
func (s *Store) Load(_ context.Context) (map[monitor.Key]*monitor.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[monitor.Key]*monitor.Record, len(s.records))
	for k, r := range s.records {
		cp := *r
		out[k] = &cp
	}
	return out, nil
}

// Save replaces the stored records with a copy of the given map.
func (s *Store) Save(_ context.Context, records map[monitor.Key]*monitor.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[monitor.Key]*monitor.Record, len(records))
	for k, r := range records {
		cp := *r
		next[k] = &cp
	}
	s.records = next
	return nil
}
