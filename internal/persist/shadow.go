// Package persist mirrors the set of live temporary desktops to disk so a
// restarted controller can remove desktops orphaned by a crash.
package persist

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry describes one temporary desktop.
type Entry struct {
	Desktop   uuid.UUID `json:"desktop"`
	Label     string    `json:"label"`
	Timestamp time.Time `json:"timestamp"`
}

// Shadow is a JSON-lines file holding one Entry per live temporary desktop.
// A missing file means there is nothing to recover.
type Shadow struct {
	mu   sync.Mutex
	path string
}

// NewShadow returns a shadow stored at path.
func NewShadow(path string) *Shadow {
	return &Shadow{path: path}
}

// Path returns the file location.
func (s *Shadow) Path() string {
	return s.path
}

// Write replaces the file contents with entries. An empty set deletes the
// file.
func (s *Shadow) Write(entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(entries) == 0 {
		return s.deleteLocked()
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("failed to encode shadow entry: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create shadow directory: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write shadow %q: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize shadow %q: %w", s.path, err)
	}
	return nil
}

// Read returns the recorded entries. Lines that fail to parse are skipped
// and counted in skipped.
func (s *Shadow) Read() (entries []Entry, skipped int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open shadow: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil || e.Desktop == uuid.Nil {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, skipped, fmt.Errorf("failed to read shadow: %w", err)
	}
	return entries, skipped, nil
}

// Delete removes the file. A missing file is not an error.
func (s *Shadow) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked()
}

func (s *Shadow) deleteLocked() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete shadow: %w", err)
	}
	return nil
}
