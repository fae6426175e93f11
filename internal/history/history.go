// Package history persists the list of previously selected files.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/samber/lo"
)

const fileName = "history.json"

// Store is an ordered, duplicate-free list of file paths backed by history.json.
// The oldest selection comes first.
type Store struct {
	mu       sync.Mutex
	filePath string
	entries  []string
}

// NewStore creates a store in dir. Nothing is read until Load.
func NewStore(dir string) *Store {
	return &Store{filePath: filepath.Join(dir, fileName)}
}

// Load reads the history from disk. A missing file is an empty history.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.entries = nil
			return nil
		}
		return fmt.Errorf("failed to read history file: %w", err)
	}

	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse history file: %w", err)
	}
	s.entries = lo.Uniq(lo.Compact(entries))
	return nil
}

// Add records path once; selecting a file already in the history leaves it in place.
func (s *Store) Add(path string) error {
	if path == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if lo.Contains(s.entries, path) {
		return nil
	}
	s.entries = append(s.entries, path)
	return s.saveLocked()
}

// Remove drops path from the history
func (s *Store) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !lo.Contains(s.entries, path) {
		return nil
	}
	s.entries = lo.Without(s.entries, path)
	return s.saveLocked()
}

// Clear empties the history
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	return s.saveLocked()
}

// Entries returns a copy of the history
func (s *Store) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.entries...)
}

// Existing returns the entries whose files are still present on disk
func (s *Store) Existing() []string {
	return lo.Filter(s.Entries(), func(p string, _ int) bool {
		_, err := os.Stat(p)
		return err == nil
	})
}

// GetFilePath returns the path to the history file
func (s *Store) GetFilePath() string {
	return s.filePath
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(lo.Ternary(s.entries == nil, []string{}, s.entries), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0700); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	if err := os.WriteFile(s.filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	return nil
}
