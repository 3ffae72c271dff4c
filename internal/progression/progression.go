// Package progression keeps the learner's XP, level, streak, achievement and
// conversation-history bookkeeping. State persists locally on every mutation
// and is mirrored to the backend best effort.
package progression

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/linguaworlds/linguaworlds/internal/backend"
	"github.com/linguaworlds/linguaworlds/internal/store"
)

const (
	// BaseXP is the XP required to clear level 1.
	BaseXP = 100

	// LevelMultiplier is the geometric growth factor of the XP curve.
	LevelMultiplier = 1.5

	// ConversationXP is the fixed award for finishing a conversation, on top
	// of the per-turn XP collected during it.
	ConversationXP = 25
)

// RequiredXP returns the XP needed to advance past level:
// BaseXP × LevelMultiplier^(level−1).
func RequiredXP(level int) int {
	if level < 1 {
		level = 1
	}
	return int(BaseXP * math.Pow(LevelMultiplier, float64(level-1)))
}

// ConversationRecord summarises one finished conversation.
type ConversationRecord struct {
	Language     string    `json:"language"`
	Scenario     string    `json:"scenario"`
	Turns        int       `json:"turns"`
	WordsLearned int       `json:"wordsLearned"`
	Timestamp    time.Time `json:"timestamp"`
}

// Streak tracks consecutive calendar days of practice.
type Streak struct {
	Current      int       `json:"current"`
	Best         int       `json:"best"`
	LastPractice time.Time `json:"lastPractice"`
}

// State is the full persisted progression record.
type State struct {
	// XP is progress within the current level; always < RequiredXP(Level).
	XP int `json:"xp"`

	// Level starts at 1 and only ever increases.
	Level int `json:"level"`

	// TotalXP is the lifetime sum of all awards; never reset.
	TotalXP int `json:"totalXP"`

	Conversations []ConversationRecord `json:"conversations"`
	Achievements  []string             `json:"achievements"`
	Streak        Streak               `json:"streak"`
}

// System owns and mutates the progression state.
type System struct {
	log    *slog.Logger
	store  store.StateStore
	mirror backend.ProgressMirror
	userID string
	now    func() time.Time

	mu    sync.Mutex
	state State
}

// Option configures a System.
type Option func(*System)

// WithMirror uploads the full state to the given mirror after each local
// write. Mirror failures are logged and never block local persistence.
func WithMirror(m backend.ProgressMirror, userID string) Option {
	return func(s *System) {
		s.mirror = m
		s.userID = userID
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(s *System) { s.log = log }
}

// withClock overrides the timestamp source, for tests.
func withClock(now func() time.Time) Option {
	return func(s *System) { s.now = now }
}

// NewSystem loads any persisted progression state from st. A missing record
// starts a fresh level-1 state.
func NewSystem(st store.StateStore, opts ...Option) (*System, error) {
	s := &System{
		log:   slog.Default(),
		store: st,
		now:   time.Now,
		state: State{Level: 1},
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, err := st.Load(store.KeyProgress)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("progression: load: %w", err)
	}
	if err := json.Unmarshal(raw, &s.state); err != nil {
		return nil, fmt.Errorf("progression: decode persisted state: %w", err)
	}
	if s.state.Level < 1 {
		s.state.Level = 1
	}
	return s, nil
}

// AddXP awards n XP and applies any level-ups. One large award can clear
// several levels in a row. Returns the number of levels gained.
func (s *System) AddXP(ctx context.Context, n int) int {
	if n <= 0 {
		return 0
	}
	s.mu.Lock()
	s.state.XP += n
	s.state.TotalXP += n

	gained := 0
	for s.state.XP >= RequiredXP(s.state.Level) {
		s.state.XP -= RequiredXP(s.state.Level)
		s.state.Level++
		gained++
	}
	if gained > 0 {
		s.log.Info("level up", "level", s.state.Level, "xp", s.state.XP)
	}
	s.persistLocked()
	s.mu.Unlock()

	s.mirrorState(ctx)
	return gained
}

// UpdateStreak advances the practice streak by calendar day: practising again
// the same day changes nothing, the next day extends the streak, and any
// longer gap resets it to 1.
func (s *System) UpdateStreak(ctx context.Context) {
	s.mu.Lock()
	today := s.now()
	last := s.state.Streak.LastPractice

	switch {
	case last.IsZero():
		s.state.Streak.Current = 1
	case sameCalendarDay(last, today):
		// Already counted today.
	case daysBetween(last, today) == 1:
		s.state.Streak.Current++
	default:
		s.state.Streak.Current = 1
	}
	if s.state.Streak.Current > s.state.Streak.Best {
		s.state.Streak.Best = s.state.Streak.Current
	}
	s.state.Streak.LastPractice = today
	s.persistLocked()
	s.mu.Unlock()

	s.mirrorState(ctx)
}

// RecordConversation appends a finished conversation summary, awards
// [ConversationXP], updates the streak, and evaluates achievements against
// wordsLearned (the learner's total glossary size). Returns any newly granted
// achievements.
func (s *System) RecordConversation(ctx context.Context, rec ConversationRecord, wordsLearned int) []Achievement {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	s.mu.Lock()
	s.state.Conversations = append(s.state.Conversations, rec)
	s.persistLocked()
	s.mu.Unlock()

	s.AddXP(ctx, ConversationXP)
	s.UpdateStreak(ctx)
	return s.CheckAchievements(ctx, wordsLearned)
}

// CheckAchievements grants every achievement whose threshold the current
// state meets. Granting is idempotent: an id is added at most once.
func (s *System) CheckAchievements(ctx context.Context, wordsLearned int) []Achievement {
	s.mu.Lock()
	have := make(map[string]bool, len(s.state.Achievements))
	for _, id := range s.state.Achievements {
		have[id] = true
	}

	var granted []Achievement
	for _, a := range achievementTable {
		if have[a.ID] {
			continue
		}
		if a.unlocked(&s.state, wordsLearned) {
			s.state.Achievements = append(s.state.Achievements, a.ID)
			granted = append(granted, a)
		}
	}
	if len(granted) > 0 {
		s.persistLocked()
	}
	s.mu.Unlock()

	if len(granted) > 0 {
		s.mirrorState(ctx)
	}
	return granted
}

// Snapshot returns a copy of the current state.
func (s *System) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Conversations = append([]ConversationRecord(nil), s.state.Conversations...)
	st.Achievements = append([]string(nil), s.state.Achievements...)
	return st
}

// Level returns the current level.
func (s *System) Level() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Level
}

// ─── Internals ────────────────────────────────────────────────────────────────

// persistLocked writes the full state to the store. Callers must hold s.mu.
func (s *System) persistLocked() {
	raw, err := json.Marshal(s.state)
	if err != nil {
		s.log.Error("progression: encode state", "error", err)
		return
	}
	if err := s.store.Save(store.KeyProgress, raw); err != nil {
		s.log.Error("progression: persist state", "error", err)
	}
}

// mirrorState uploads the current state to the backend, best effort.
func (s *System) mirrorState(ctx context.Context) {
	if s.mirror == nil {
		return
	}
	s.mu.Lock()
	raw, err := json.Marshal(s.state)
	s.mu.Unlock()
	if err != nil {
		return
	}
	if err := s.mirror.SaveProgress(ctx, s.userID, raw); err != nil {
		s.log.Warn("progression: mirror save failed", "error", err)
	}
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// daysBetween counts calendar-day boundaries crossed between a and b, so
// 23:59 to 00:01 the next day is one day apart.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
