// Package glossary is the persistent vocabulary store: words learned per
// language, false friends, useful phrases, and the mastery bookkeeping derived
// from practice outcomes.
package glossary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/linguaworlds/linguaworlds/internal/backend"
	"github.com/linguaworlds/linguaworlds/internal/store"
)

// MasteryThreshold is the mastery percentage at which a word counts as
// mastered.
const MasteryThreshold = 80

// Entry is a single learned word with its practice history.
type Entry struct {
	Word          string    `json:"word"`
	Translation   string    `json:"translation"`
	Pronunciation string    `json:"pronunciation,omitempty"`
	Context       string    `json:"context,omitempty"`
	LearnedAt     time.Time `json:"learnedAt"`
	PracticeCount int       `json:"practiceCount"`
	CorrectCount  int       `json:"correctCount"`

	// Mastery is round(CorrectCount/PracticeCount × 100), clamped to
	// [0, 100]. Recomputed on every practice outcome.
	Mastery int `json:"mastery"`
}

// FalseFriend is a word that looks familiar but means something else.
type FalseFriend struct {
	Word           string `json:"word"`
	ActualMeaning  string `json:"actualMeaning"`
	AssumedMeaning string `json:"assumedMeaning,omitempty"`
}

// Phrase is a multi-word expression worth memorising whole.
type Phrase struct {
	Phrase      string `json:"phrase"`
	Translation string `json:"translation"`
	Context     string `json:"context,omitempty"`
}

// languageGlossary is everything stored for one language.
type languageGlossary struct {
	Vocabulary   []Entry       `json:"vocabulary"`
	FalseFriends []FalseFriend `json:"falseFriends"`
	Phrases      []Phrase      `json:"phrases"`
}

// Manager owns the glossary for all languages. Every mutation persists the
// full state to the backing store synchronously; a configured mirror
// additionally reports practice outcomes server-side, best effort.
type Manager struct {
	log    *slog.Logger
	store  store.StateStore
	mirror backend.ProgressMirror
	now    func() time.Time

	mu        sync.Mutex
	languages map[string]*languageGlossary
}

// Option configures a Manager.
type Option func(*Manager)

// WithMirror reports practice outcomes to the given mirror after each local
// write. Mirror failures are logged and never block local persistence.
func WithMirror(m backend.ProgressMirror) Option {
	return func(g *Manager) { g.mirror = m }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(g *Manager) { g.log = log }
}

// withClock overrides the timestamp source, for tests.
func withClock(now func() time.Time) Option {
	return func(g *Manager) { g.now = now }
}

// NewManager loads any previously persisted glossary from st and returns a
// ready Manager. A missing record is a fresh start, not an error.
func NewManager(st store.StateStore, opts ...Option) (*Manager, error) {
	g := &Manager{
		log:       slog.Default(),
		store:     st,
		now:       time.Now,
		languages: make(map[string]*languageGlossary),
	}
	for _, opt := range opts {
		opt(g)
	}

	raw, err := st.Load(store.KeyGlossary)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return g, nil
	case err != nil:
		return nil, fmt.Errorf("glossary: load: %w", err)
	}
	if err := json.Unmarshal(raw, &g.languages); err != nil {
		return nil, fmt.Errorf("glossary: decode persisted state: %w", err)
	}
	if g.languages == nil {
		g.languages = make(map[string]*languageGlossary)
	}
	return g, nil
}

// AddWord stores a new word for language. Words are unique per language,
// compared case-insensitively; a duplicate is silently rejected and AddWord
// returns false. LearnedAt is stamped when the entry carries no timestamp.
func (g *Manager) AddWord(language string, e Entry) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	lg := g.language(language)
	if findWord(lg.Vocabulary, e.Word) >= 0 {
		return false
	}
	if e.LearnedAt.IsZero() {
		e.LearnedAt = g.now()
	}
	lg.Vocabulary = append(lg.Vocabulary, e)
	g.persist()
	return true
}

// UpdateMastery records one practice outcome for a word: the practice count
// always increments, the correct count only on success, and mastery is
// recomputed. Returns false when the word is not in the glossary.
func (g *Manager) UpdateMastery(ctx context.Context, language, word string, correct bool) bool {
	g.mu.Lock()
	lg := g.language(language)
	i := findWord(lg.Vocabulary, word)
	if i < 0 {
		g.mu.Unlock()
		return false
	}
	e := &lg.Vocabulary[i]
	e.PracticeCount++
	if correct {
		e.CorrectCount++
	}
	e.Mastery = computeMastery(e.CorrectCount, e.PracticeCount)
	g.persist()
	g.mu.Unlock()

	if g.mirror != nil {
		if err := g.mirror.PracticeWord(ctx, language, word, correct); err != nil {
			g.log.Warn("glossary: mirror practice failed",
				"language", language, "word", word, "error", err)
		}
	}
	return true
}

// Words returns a copy of all entries for language.
func (g *Manager) Words(language string) []Entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	lg, ok := g.languages[language]
	if !ok {
		return nil
	}
	return append([]Entry(nil), lg.Vocabulary...)
}

// MasteredWords returns all entries for language at or above
// [MasteryThreshold].
func (g *Manager) MasteredWords(language string) []Entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	lg, ok := g.languages[language]
	if !ok {
		return nil
	}
	var out []Entry
	for _, e := range lg.Vocabulary {
		if e.Mastery >= MasteryThreshold {
			out = append(out, e)
		}
	}
	return out
}

// WordCount returns the number of stored words across all languages.
func (g *Manager) WordCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, lg := range g.languages {
		n += len(lg.Vocabulary)
	}
	return n
}

// AddFalseFriend stores a false friend, deduplicated case-insensitively per
// language like words.
func (g *Manager) AddFalseFriend(language string, f FalseFriend) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	lg := g.language(language)
	for _, have := range lg.FalseFriends {
		if strings.EqualFold(have.Word, f.Word) {
			return false
		}
	}
	lg.FalseFriends = append(lg.FalseFriends, f)
	g.persist()
	return true
}

// AddPhrase stores a phrase, deduplicated case-insensitively per language.
func (g *Manager) AddPhrase(language string, p Phrase) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	lg := g.language(language)
	for _, have := range lg.Phrases {
		if strings.EqualFold(have.Phrase, p.Phrase) {
			return false
		}
	}
	lg.Phrases = append(lg.Phrases, p)
	g.persist()
	return true
}

// FalseFriends returns a copy of the false friends for language.
func (g *Manager) FalseFriends(language string) []FalseFriend {
	g.mu.Lock()
	defer g.mu.Unlock()
	lg, ok := g.languages[language]
	if !ok {
		return nil
	}
	return append([]FalseFriend(nil), lg.FalseFriends...)
}

// Phrases returns a copy of the phrases for language.
func (g *Manager) Phrases(language string) []Phrase {
	g.mu.Lock()
	defer g.mu.Unlock()
	lg, ok := g.languages[language]
	if !ok {
		return nil
	}
	return append([]Phrase(nil), lg.Phrases...)
}

// ─── Internals ────────────────────────────────────────────────────────────────

// language returns the glossary for code, creating it on first use.
// Callers must hold g.mu.
func (g *Manager) language(code string) *languageGlossary {
	lg, ok := g.languages[code]
	if !ok {
		lg = &languageGlossary{}
		g.languages[code] = lg
	}
	return lg
}

// persist writes the full state to the store. Callers must hold g.mu.
// A store failure is logged; in-memory state stays authoritative.
func (g *Manager) persist() {
	raw, err := json.Marshal(g.languages)
	if err != nil {
		g.log.Error("glossary: encode state", "error", err)
		return
	}
	if err := g.store.Save(store.KeyGlossary, raw); err != nil {
		g.log.Error("glossary: persist state", "error", err)
	}
}

func findWord(entries []Entry, word string) int {
	for i := range entries {
		if strings.EqualFold(entries[i].Word, word) {
			return i
		}
	}
	return -1
}

func computeMastery(correct, practice int) int {
	if practice <= 0 {
		return 0
	}
	m := int(math.Round(float64(correct) / float64(practice) * 100))
	if m < 0 {
		return 0
	}
	if m > 100 {
		return 100
	}
	return m
}
