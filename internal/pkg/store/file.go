package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps one cache blob per installation as a JSON file under a
// state directory. Load returns nil on first run. Writes go through a
// temp file and rename so a crash never leaves a torn blob behind.
type FileStore struct {
	dir string
	key string
}

func NewFileStore(dir, key string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create state dir: %w", err)
	}
	return &FileStore{dir: dir, key: key}, nil
}

func (s *FileStore) path() string {
	return filepath.Join(s.dir, "tibber_prices_"+s.key+".json")
}

func (s *FileStore) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load cache: %w", err)
	}
	return data, nil
}

func (s *FileStore) Save(_ context.Context, blob []byte) error {
	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return fmt.Errorf("store: write cache: %w", err)
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		return fmt.Errorf("store: replace cache: %w", err)
	}
	return nil
}
