// Package filestate persists alert records as a single JSON file, written
// atomically via a temp file and rename so a crashed save never leaves a
// partially written state behind.
package filestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/linnemanlabs/slawatch/internal/monitor"
)

// Store persists records at a fixed path.
type Store struct {
	path string
}

// New creates a file-backed store. The parent directory must exist.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the state file. A missing file is an empty state, not an error.
func (s *Store) Load(_ context.Context) (map[monitor.Key]*monitor.Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[monitor.Key]*monitor.Record), nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var flat map[string]*monitor.Record
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("decode state file %s: %w", s.path, err)
	}

	out := make(map[monitor.Key]*monitor.Record, len(flat))
	for ks, r := range flat {
		key, err := monitor.ParseKey(ks)
		if err != nil {
			return nil, fmt.Errorf("decode state file %s: %w", s.path, err)
		}
		out[key] = r
	}
	return out, nil
}

// Save writes the records to a temp file in the same directory and renames it
// over the target path.
func (s *Store) Save(_ context.Context, records map[monitor.Key]*monitor.Record) error {
	flat := make(map[string]*monitor.Record, len(records))
	for k, r := range records {
		flat[k.String()] = r
	}

	data, err := json.MarshalIndent(flat, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
