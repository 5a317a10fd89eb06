package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no record exists under the requested id.
var ErrNotFound = errors.New("record not found")

// Store persists JSON records one file per id under a base directory.
// Flow state survives node restarts this way; an interrupted run picks its
// active flow back up from disk.
type Store struct {
	dir string
}

// Open initializes the store directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create store directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes a record under id, replacing any previous value.
func (s *Store) Save(id string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal record %s: %w", id, err)
	}
	if err := os.WriteFile(s.path(id), data, 0644); err != nil {
		return fmt.Errorf("could not write record %s: %w", id, err)
	}
	return nil
}

// Load reads the record stored under id into v.
func (s *Store) Load(id string, v interface{}) error {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("could not read record %s: %w", id, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("could not parse record %s: %w", id, err)
	}
	return nil
}

// Exists reports whether a record is stored under id.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.path(id))
	return err == nil
}

// Delete removes the record stored under id, if any.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not delete record %s: %w", id, err)
	}
	return nil
}

// List returns the ids of all stored records.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("could not list store directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

func (s *Store) path(id string) string {
	// Ids are flow ids and account addresses; keep them filesystem-safe.
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
	return filepath.Join(s.dir, safe+".json")
}
