// Package filestore persists the incident collection as a single JSON
// document on disk, the same document the staging step proposes upstream.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mdwatch/mdwatch/internal/incident"
)

// Store reads and writes the collection document at a fixed path.
type Store struct {
	path string
}

// New creates a store for the given document path.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads and decodes the collection document. A missing file yields an
// empty collection so a first run can bootstrap the register.
func (s *Store) Load(_ context.Context) (*incident.Collection, error) {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &incident.Collection{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var c incident.Collection
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return &c, nil
}

// Save encodes and writes the collection document. The write goes through a
// temp file plus rename so a crash never leaves a truncated register.
func (s *Store) Save(_ context.Context, c *incident.Collection) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}
	b = append(b, '\n')

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
