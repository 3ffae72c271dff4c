// Package store abstracts the keyed JSON state persistence used by the
// glossary, progression, and scene packages. State is always read and written
// wholesale: a component loads its entire structure at startup and saves the
// full structure on every mutation. There are no partial writes.
package store

import (
	"errors"
	"sync"
)

// Well-known state keys.
const (
	KeyGlossary   = "linguaWorlds_glossary"
	KeyProgress   = "linguaWorlds_progress"
	KeySceneState = "linguaWorlds_sceneState"
)

// ErrNotFound is returned by [StateStore.Load] when no value exists for a key.
var ErrNotFound = errors.New("state key not found")

// StateStore persists opaque JSON documents under string keys.
//
// Implementations must be safe for concurrent use. Load returns the raw JSON
// bytes previously saved for key, or [ErrNotFound].
type StateStore interface {
	Load(key string) ([]byte, error)
	Save(key string, value []byte) error
}

// MemStore is an in-memory [StateStore] for tests and demo runs.
// The zero value is not usable; construct with [NewMemStore].
type MemStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{values: make(map[string][]byte)}
}

// Load returns a copy of the stored value for key.
func (m *MemStore) Load(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

// Save stores a copy of value under key.
func (m *MemStore) Save(key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = cp
	return nil
}

var _ StateStore = (*MemStore)(nil)
