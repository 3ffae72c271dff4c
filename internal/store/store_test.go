package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestMemStore_RoundTrip(t *testing.T) {
	s := NewMemStore()

	if _, err := s.Load(KeyGlossary); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Save(KeyGlossary, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(KeyGlossary)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Errorf("loaded %q", got)
	}

	// Mutating the returned slice must not affect the stored value.
	got[0] = 'X'
	again, _ := s.Load(KeyGlossary)
	if string(again) != `{"a":1}` {
		t.Errorf("store value was aliased: %q", again)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if _, err := s.Load(KeyProgress); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Save(KeyProgress, []byte(`{"xp":10}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(KeyProgress)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != `{"xp":10}` {
		t.Errorf("loaded %q", got)
	}
}

func TestFileStore_KeySanitisation(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := s.Save("../escape/attempt", []byte("x")); err != nil {
		t.Fatalf("save: %v", err)
	}
	// The file must land inside dir.
	matches, _ := filepath.Glob(filepath.Join(dir, "*.json"))
	if len(matches) != 1 {
		t.Fatalf("expected exactly one file in store dir, got %v", matches)
	}
}
