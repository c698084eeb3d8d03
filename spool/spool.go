// Package spool persists intermediate message records as JSON files. A
// record is written before the handler runs and removed only after the
// message was fully compiled and sent; failed records stay behind for
// operator-driven reprocessing.
package spool

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emysliwietz/latex-email-daemon/model"
)

type Spool struct {
	dir string
}

func New(dir string) (*Spool, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("spool directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool directory: %w", err)
	}
	return &Spool{dir: dir}, nil
}

// Write stores the record as <timestamp>_<uid>.json and returns its path.
func (s *Spool) Write(msg *model.Message) (string, error) {
	name := fmt.Sprintf("%s_%d.json", time.Now().Format("20060102_150405"), msg.UID)
	path := filepath.Join(s.dir, name)

	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write record: %w", err)
	}
	return path, nil
}

// Read loads a record file back into a message.
func Read(path string) (*model.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	var msg model.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", path, err)
	}
	return &msg, nil
}

// Remove deletes a fully handled record.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove record: %w", err)
	}
	return nil
}

// List returns the paths of all spooled records, oldest first by name.
func (s *Spool) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read spool directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, e.Name()))
	}
	return paths, nil
}
