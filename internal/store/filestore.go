package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore persists each state key as a JSON file in a directory.
// Writes go through a temp file followed by a rename so a crash mid-write
// never leaves a truncated document behind.
//
// FileStore is safe for concurrent use.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

var _ StateStore = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at dir, creating dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir %q: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Load reads the file for key.
func (f *FileStore) Load(key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: read %q: %w", key, err)
	}
	return data, nil
}

// Save writes value to the file for key atomically.
func (f *FileStore) Save(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := f.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("store: write %q: %w", key, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("store: rename %q: %w", key, err)
	}
	return nil
}

// path maps a state key to a file path, replacing separators that would
// escape the store directory.
func (f *FileStore) path(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, key)
	return filepath.Join(f.dir, safe+".json")
}
