// Package state persists the mailbox watermark: the highest message UID
// that has been fully decided (handled or deliberately skipped).
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Store reads and writes the watermark file. The file holds a single
// text-encoded non-negative integer. There is exactly one writer at any
// time, so atomic rename is the only consistency mechanism needed.
type Store struct {
	path string
}

func NewStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("state file path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}
	return &Store{path: path}, nil
}

// Load returns the persisted watermark. Any read failure, a missing file,
// an empty file or corrupt content all yield 0: the daemon then treats the
// mailbox as a fresh start.
func (s *Store) Load() uint32 {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0
	}
	value, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0
	}
	return uint32(value)
}

// Save durably writes the watermark via a temporary file and an atomic
// rename, so the store is never observed half-written. Callers must only
// ever save values that do not decrease; the store itself does not enforce
// monotonicity.
func (s *Store) Save(uid uint32) error {
	tmp := s.path + ".tmp"
	data := []byte(strconv.FormatUint(uint64(uid), 10))
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}
