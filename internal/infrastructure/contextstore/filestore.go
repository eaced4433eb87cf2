// Package contextstore keeps per-area naming context in a hidden markdown
// file inside the area folder, so past filing decisions travel with the
// archive itself.
package contextstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore reads and writes the context file of an area directory.
type FileStore struct {
	filename string
}

func New(filename string) *FileStore {
	if filename == "" {
		filename = ".ai_context.md"
	}
	return &FileStore{filename: filename}
}

// Get returns the area context, or "" when none exists yet.
func (s *FileStore) Get(_ context.Context, area string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(area, s.filename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read context file: %w", err)
	}
	return string(raw), nil
}

// Update replaces the area context, creating the area if needed.
func (s *FileStore) Update(_ context.Context, area, content string) error {
	if err := os.MkdirAll(area, 0o755); err != nil {
		return fmt.Errorf("create area dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(area, s.filename), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write context file: %w", err)
	}
	return nil
}
