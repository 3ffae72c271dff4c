// Package scene is the top-level session coordinator: it owns the
// language/scenario catalog, tracks completion and unlock state, constructs
// one conversation engine per selected language, and aggregates global stats.
package scene

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/linguaworlds/linguaworlds/internal/backend"
	"github.com/linguaworlds/linguaworlds/internal/config"
	"github.com/linguaworlds/linguaworlds/internal/convo"
	"github.com/linguaworlds/linguaworlds/internal/glossary"
	"github.com/linguaworlds/linguaworlds/internal/observe"
	"github.com/linguaworlds/linguaworlds/internal/progression"
	"github.com/linguaworlds/linguaworlds/internal/store"
)

// Visit records one scenario completion.
type Visit struct {
	Language  string    `json:"language"`
	Scenario  string    `json:"scenario"`
	Timestamp time.Time `json:"timestamp"`
}

// sceneState is the persisted portion of the manager.
type sceneState struct {
	SceneHistory         []Visit  `json:"sceneHistory"`
	VisitedScenarios     []string `json:"visitedScenarios"`
	TotalScenesCompleted int      `json:"totalScenesCompleted"`
}

// Stats aggregates global session numbers for display.
type Stats struct {
	TotalScenesCompleted int
	LanguagesStarted     int
	LanguagesCompleted   int
}

// Config holds the dependencies for a [Manager].
type Config struct {
	Catalog  *config.Config
	Voice    convo.Speaker
	Backend  backend.Conversation
	Glossary *glossary.Manager
	Progress *progression.System
	Store    store.StateStore

	// Events is passed through to every constructed engine. Optional.
	Events convo.Events

	// Metrics is passed through to every constructed engine. Optional.
	Metrics *observe.Metrics

	// UserID identifies the learner in backend calls.
	UserID string

	Logger *slog.Logger
}

// Manager coordinates languages, scenarios, and their engines. It is safe for
// concurrent use.
type Manager struct {
	log      *slog.Logger
	catalog  *config.Config
	voice    convo.Speaker
	conv     backend.Conversation
	glossary *glossary.Manager
	progress *progression.System
	store    store.StateStore
	events   convo.Events
	metrics  *observe.Metrics
	userID   string
	now      func() time.Time

	mu      sync.Mutex
	state   sceneState
	visited map[string]bool
	engines map[string]*convo.Engine
}

// NewManager loads persisted scene state and returns a ready Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("scene: catalog is required")
	}
	if cfg.Voice == nil || cfg.Backend == nil || cfg.Glossary == nil ||
		cfg.Progress == nil || cfg.Store == nil {
		return nil, errors.New("scene: voice, backend, glossary, progress and store are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	m := &Manager{
		log:      cfg.Logger,
		catalog:  cfg.Catalog,
		voice:    cfg.Voice,
		conv:     cfg.Backend,
		glossary: cfg.Glossary,
		progress: cfg.Progress,
		store:    cfg.Store,
		events:   cfg.Events,
		metrics:  cfg.Metrics,
		userID:   cfg.UserID,
		now:      time.Now,
		visited:  make(map[string]bool),
		engines:  make(map[string]*convo.Engine),
	}

	raw, err := cfg.Store.Load(store.KeySceneState)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return m, nil
	case err != nil:
		return nil, fmt.Errorf("scene: load: %w", err)
	}
	if err := json.Unmarshal(raw, &m.state); err != nil {
		return nil, fmt.Errorf("scene: decode persisted state: %w", err)
	}
	for _, key := range m.state.VisitedScenarios {
		m.visited[key] = true
	}
	return m, nil
}

// SelectLanguage returns the conversation engine for the given language,
// constructing it on first selection. Engines persist across selections so a
// language keeps its difficulty level within a session.
func (m *Manager) SelectLanguage(code string) (*convo.Engine, error) {
	lang := m.catalog.Language(code)
	if lang == nil {
		return nil, fmt.Errorf("scene: unknown language %q", code)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.engines[code]; ok {
		return e, nil
	}
	e, err := convo.NewEngine(convo.Config{
		Language: lang,
		Voice:    m.voice,
		Backend:  m.conv,
		Glossary: m.glossary,
		Progress: m.progress,
		Events:   m.events,
		Metrics:  m.metrics,
		UserID:   m.userID,
		Logger:   m.log,
	})
	if err != nil {
		return nil, err
	}
	m.engines[code] = e
	return e, nil
}

// IsScenarioLocked reports whether a scenario is still locked. The first
// scenario of every language is always unlocked; each later one unlocks only
// once its immediate predecessor has been completed. Unknown scenarios are
// locked.
func (m *Manager) IsScenarioLocked(language, scenarioID string) bool {
	lang := m.catalog.Language(language)
	if lang == nil {
		return true
	}
	for i, sc := range lang.Scenarios {
		if sc.ID != scenarioID {
			continue
		}
		if i == 0 {
			return false
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		return !m.visited[visitKey(language, lang.Scenarios[i-1].ID)]
	}
	return true
}

// CompleteScenario marks a scenario as completed. First completion awards the
// scenario's XP and reward words; repeats are recorded in the history but
// award nothing. The returned next scenario is the following entry in the
// language's linear order, or nil after the last one — regardless of whether
// this completion was the first.
func (m *Manager) CompleteScenario(ctx context.Context, language, scenarioID string) (*config.ScenarioConfig, error) {
	lang := m.catalog.Language(language)
	if lang == nil {
		return nil, fmt.Errorf("scene: unknown language %q", language)
	}
	sc := lang.Scenario(scenarioID)
	if sc == nil {
		return nil, fmt.Errorf("scene: unknown scenario %q for %s", scenarioID, language)
	}

	key := visitKey(language, scenarioID)
	m.mu.Lock()
	first := !m.visited[key]
	if first {
		m.visited[key] = true
		m.state.VisitedScenarios = append(m.state.VisitedScenarios, key)
		m.state.TotalScenesCompleted++
	}
	m.state.SceneHistory = append(m.state.SceneHistory, Visit{
		Language:  language,
		Scenario:  scenarioID,
		Timestamp: m.now(),
	})
	m.persistLocked()
	m.mu.Unlock()

	if first {
		if sc.RewardXP > 0 {
			m.progress.AddXP(ctx, sc.RewardXP)
		}
		for _, w := range sc.RewardWords {
			m.glossary.AddWord(language, glossary.Entry{
				Word:          w.Word,
				Translation:   w.Translation,
				Pronunciation: w.Pronunciation,
			})
		}
		m.log.Info("scenario completed",
			"language", language, "scenario", scenarioID, "reward_xp", sc.RewardXP)
	}

	return m.nextScenario(lang, scenarioID), nil
}

// RecommendedNextLanguage returns the code of the lowest-progress language
// that still has unfinished scenarios, tie-broken by least recently visited.
// Returns "" when every language is complete or the catalog is empty.
func (m *Manager) RecommendedNextLanguage() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	// lastVisit[i] is the most recent history index mentioning language i;
	// -1 means never visited, which sorts as least recent.
	lastVisit := make(map[string]int)
	for i, v := range m.state.SceneHistory {
		lastVisit[v.Language] = i
	}

	best := ""
	bestProgress := 0.0
	bestLast := 0
	for i := range m.catalog.Languages {
		lang := &m.catalog.Languages[i]
		total := len(lang.Scenarios)
		if total == 0 {
			continue
		}
		done := 0
		for _, sc := range lang.Scenarios {
			if m.visited[visitKey(lang.Code, sc.ID)] {
				done++
			}
		}
		if done == total {
			continue
		}
		progress := float64(done) / float64(total)
		last, ok := lastVisit[lang.Code]
		if !ok {
			last = -1
		}
		if best == "" || progress < bestProgress ||
			(progress == bestProgress && last < bestLast) {
			best = lang.Code
			bestProgress = progress
			bestLast = last
		}
	}
	return best
}

// LanguageProgress returns completed and total scenario counts for language.
func (m *Manager) LanguageProgress(language string) (done, total int) {
	lang := m.catalog.Language(language)
	if lang == nil {
		return 0, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sc := range lang.Scenarios {
		if m.visited[visitKey(language, sc.ID)] {
			done++
		}
	}
	return done, len(lang.Scenarios)
}

// Stats aggregates completion numbers across the catalog.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Stats{TotalScenesCompleted: m.state.TotalScenesCompleted}
	started := make(map[string]bool)
	for _, v := range m.state.SceneHistory {
		started[v.Language] = true
	}
	st.LanguagesStarted = len(started)

	for i := range m.catalog.Languages {
		lang := &m.catalog.Languages[i]
		if len(lang.Scenarios) == 0 {
			continue
		}
		done := 0
		for _, sc := range lang.Scenarios {
			if m.visited[visitKey(lang.Code, sc.ID)] {
				done++
			}
		}
		if done == len(lang.Scenarios) {
			st.LanguagesCompleted++
		}
	}
	return st
}

// History returns a copy of the completion history, oldest first.
func (m *Manager) History() []Visit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Visit(nil), m.state.SceneHistory...)
}

// ─── Internals ────────────────────────────────────────────────────────────────

// persistLocked writes the scene state to the store. Callers must hold m.mu.
func (m *Manager) persistLocked() {
	raw, err := json.Marshal(m.state)
	if err != nil {
		m.log.Error("scene: encode state", "error", err)
		return
	}
	if err := m.store.Save(store.KeySceneState, raw); err != nil {
		m.log.Error("scene: persist state", "error", err)
	}
}

// nextScenario returns the scenario after id in the language's linear order.
func (m *Manager) nextScenario(lang *config.LanguageConfig, id string) *config.ScenarioConfig {
	for i := range lang.Scenarios {
		if lang.Scenarios[i].ID == id && i+1 < len(lang.Scenarios) {
			return &lang.Scenarios[i+1]
		}
	}
	return nil
}

func visitKey(language, scenarioID string) string {
	return language + "_" + scenarioID
}
