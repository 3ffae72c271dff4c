// Package convo orchestrates one scenario's dialogue: greeting generation,
// user-turn processing (transcribe, respond, speak, bookkeeping), and session
// teardown. The [Engine] is a small state machine; turns are strictly
// sequential and the engine holds no turn queue.
package convo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/linguaworlds/linguaworlds/internal/backend"
	"github.com/linguaworlds/linguaworlds/internal/config"
	"github.com/linguaworlds/linguaworlds/internal/glossary"
	"github.com/linguaworlds/linguaworlds/internal/observe"
	"github.com/linguaworlds/linguaworlds/internal/progression"
	"github.com/linguaworlds/linguaworlds/internal/voice"
)

const (
	// historyWindow is how many prior turns accompany a respond request.
	historyWindow = 10

	// xpPerTurn is the fixed XP award for every completed turn.
	xpPerTurn = 10

	// turnsUntilLevelUp is how many turns advance the difficulty one level.
	turnsUntilLevelUp = 10
)

// ErrNoScenario is returned when an operation needs an active scenario and
// none is running. This is caller misuse, not a degraded-mode condition.
var ErrNoScenario = errors.New("convo: no active scenario")

// ErrNoTranscription is returned when the user's audio yielded no text. The
// caller should prompt for a retry; the session stays in AwaitingInput.
var ErrNoTranscription = errors.New("convo: could not transcribe audio")

// State is the engine's lifecycle phase.
type State string

const (
	StateIdle           State = "idle"
	StateGreeting       State = "greeting"
	StateAwaitingInput  State = "awaiting_input"
	StateProcessingTurn State = "processing_turn"
)

// Turn is one utterance in the session transcript.
type Turn struct {
	Role        backend.Role
	Text        string
	Translation string
	Correction  string
}

// Outcome is what one processed user turn produced.
type Outcome struct {
	Transcription string
	Response      string
	Translation   string
	Correction    string
	NewVocabulary []backend.VocabularyItem
	Encouragement string
}

// Events receives turn-level notifications. Callbacks must not block.
type Events interface {
	// Message fires for every appended turn, NPC and player alike.
	Message(t Turn)

	// Correction fires when the NPC corrected the learner's utterance.
	Correction(correction string)

	// NewVocabulary fires when a turn surfaced new words.
	NewVocabulary(items []backend.VocabularyItem)
}

// NopEvents ignores all notifications.
type NopEvents struct{}

func (NopEvents) Message(Turn)                           {}
func (NopEvents) Correction(string)                      {}
func (NopEvents) NewVocabulary([]backend.VocabularyItem) {}

var _ Events = NopEvents{}

// Speaker is the slice of the voice layer the engine needs.
type Speaker interface {
	Speak(ctx context.Context, text string, opts voice.SpeakOptions) error
	Transcribe(ctx context.Context, blob []byte, language string) (string, bool)
}

var _ Speaker = (*voice.Manager)(nil)

// fallbackResponses keep the conversation moving when the backend fails.
var fallbackResponses = []string{
	"That's great! Tell me more.",
	"Interesting! What else?",
	"Well done! Let's keep going.",
}

// Config holds the dependencies for an [Engine].
type Config struct {
	Language *config.LanguageConfig
	Voice    Speaker
	Backend  backend.Conversation
	Glossary *glossary.Manager
	Progress *progression.System

	// Events is optional; nil means no notifications.
	Events Events

	// Metrics is optional; nil disables instrumentation.
	Metrics *observe.Metrics

	// UserID identifies the learner in backend calls.
	UserID string

	// StartLevel is the difficulty the first scenario starts at. Default: 1.
	StartLevel int

	Logger *slog.Logger
}

// Engine runs one language's conversations. It is safe for concurrent use,
// but turns are serialised: ProcessUserInput completes (or errors) before the
// next call makes progress.
type Engine struct {
	log      *slog.Logger
	lang     *config.LanguageConfig
	voice    Speaker
	conv     backend.Conversation
	glossary *glossary.Manager
	progress *progression.System
	events   Events
	metrics  *observe.Metrics
	userID   string

	mu           sync.Mutex
	state        State
	scenario     *config.ScenarioConfig
	sessionID    string
	turns        []Turn
	turnCount    int
	level        int
	wordsLearned map[string]bool
	objectives   map[int]bool
}

// NewEngine creates an Engine for one language.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Language == nil {
		return nil, errors.New("convo: language config is required")
	}
	if cfg.Voice == nil || cfg.Backend == nil || cfg.Glossary == nil || cfg.Progress == nil {
		return nil, errors.New("convo: voice, backend, glossary and progress are required")
	}
	if cfg.Events == nil {
		cfg.Events = NopEvents{}
	}
	if cfg.StartLevel < 1 {
		cfg.StartLevel = 1
	}
	if cfg.StartLevel > config.MaxDifficultyLevel {
		cfg.StartLevel = config.MaxDifficultyLevel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		log:      cfg.Logger.With("language", cfg.Language.Code),
		lang:     cfg.Language,
		voice:    cfg.Voice,
		conv:     cfg.Backend,
		glossary: cfg.Glossary,
		progress: cfg.Progress,
		events:   cfg.Events,
		metrics:  cfg.Metrics,
		userID:   cfg.UserID,
		state:    StateIdle,
		level:    cfg.StartLevel,
	}, nil
}

// StartScenario resets the session and opens the given scenario. At level 1
// the greeting is the scenario's first canned line and no backend call is
// made; at level 2+ the backend generates the greeting, falling back to the
// canned line on failure. The greeting is spoken and emitted via Events.
func (e *Engine) StartScenario(ctx context.Context, scenarioID string) (Turn, error) {
	sc := e.lang.Scenario(scenarioID)
	if sc == nil {
		return Turn{}, fmt.Errorf("convo: unknown scenario %q for %s", scenarioID, e.lang.Code)
	}

	e.mu.Lock()
	e.scenario = sc
	e.sessionID = ""
	e.turns = nil
	e.turnCount = 0
	e.wordsLearned = make(map[string]bool)
	e.objectives = make(map[int]bool)
	e.state = StateGreeting
	level := e.level
	e.mu.Unlock()

	greeting := e.generateGreeting(ctx, sc, level)

	e.mu.Lock()
	e.turns = append(e.turns, greeting)
	e.state = StateAwaitingInput
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.ActiveSessions.Add(ctx, 1)
	}
	e.events.Message(greeting)
	e.speak(ctx, greeting.Text)
	return greeting, nil
}

// generateGreeting picks the canned opener at level 1 or asks the backend at
// higher levels, keeping the canned text as fallback.
func (e *Engine) generateGreeting(ctx context.Context, sc *config.ScenarioConfig, level int) Turn {
	canned := ""
	if len(sc.Greetings) > 0 {
		canned = sc.Greetings[0]
	}
	if level <= 1 {
		return Turn{Role: backend.RoleNPC, Text: canned}
	}

	resp, err := e.conv.StartConversation(ctx, backend.StartRequest{
		Language:        e.lang.Code,
		CharacterID:     e.lang.Character.ID,
		ScenarioID:      sc.ID,
		DifficultyLevel: level,
		UserID:          e.userID,
	})
	if err != nil {
		e.log.Warn("greeting generation failed, using canned line", "error", err)
		return Turn{Role: backend.RoleNPC, Text: canned}
	}

	e.mu.Lock()
	e.sessionID = resp.SessionID
	e.mu.Unlock()
	return Turn{Role: backend.RoleNPC, Text: resp.Greeting, Translation: resp.Translation}
}

// ProcessUserInput runs one full turn from a recorded audio blob: transcribe,
// respond, speak, then bookkeeping (glossary, XP, difficulty). A failed
// transcription returns [ErrNoTranscription] without consuming the turn; a
// failed backend response substitutes a canned fallback line so the
// conversation continues degraded.
func (e *Engine) ProcessUserInput(ctx context.Context, audio []byte) (*Outcome, error) {
	e.mu.Lock()
	if e.scenario == nil {
		e.mu.Unlock()
		return nil, ErrNoScenario
	}
	e.state = StateProcessingTurn
	e.mu.Unlock()
	defer e.setState(StateAwaitingInput)

	turnStart := time.Now()
	text, ok := e.voice.Transcribe(ctx, audio, e.lang.Code)
	if !ok || strings.TrimSpace(text) == "" {
		return nil, ErrNoTranscription
	}

	e.mu.Lock()
	// The lock was released around Transcribe; the session may have been
	// ended in the meantime.
	if e.scenario == nil {
		e.mu.Unlock()
		return nil, ErrNoScenario
	}
	history := lastTurns(e.turns, historyWindow)
	userTurn := Turn{Role: backend.RolePlayer, Text: text}
	e.turns = append(e.turns, userTurn)
	req := backend.RespondRequest{
		Language:  e.lang.Code,
		UserInput: text,
		History:   history,
		Character: backend.Character{
			ID:          e.lang.Character.ID,
			Personality: e.lang.Character.Personality,
		},
		Scenario: backend.Scenario{
			ID:      e.scenario.ID,
			Setting: e.scenario.Setting,
		},
		Difficulty: e.difficultyLocked(),
		SessionID:  e.sessionID,
		UserID:     e.userID,
	}
	e.mu.Unlock()
	e.events.Message(userTurn)

	resp, err := e.conv.Respond(ctx, req)
	if err != nil {
		e.log.Warn("respond failed, using fallback line", "error", err)
		resp = backend.TurnResponse{
			Response: fallbackResponses[e.TurnCount()%len(fallbackResponses)],
		}
	}

	npcTurn := Turn{
		Role:        backend.RoleNPC,
		Text:        resp.Response,
		Translation: resp.Translation,
		Correction:  resp.Correction,
	}
	e.mu.Lock()
	if e.scenario == nil {
		e.mu.Unlock()
		return nil, ErrNoScenario
	}
	e.turns = append(e.turns, npcTurn)
	e.turnCount++
	e.advanceDifficultyLocked()
	e.mu.Unlock()

	e.events.Message(npcTurn)
	if resp.Correction != "" {
		e.events.Correction(resp.Correction)
	}
	if len(resp.NewVocabulary) > 0 {
		e.events.NewVocabulary(resp.NewVocabulary)
		e.learnVocabulary(resp.NewVocabulary)
	}

	e.speak(ctx, resp.Response)
	e.progress.AddXP(ctx, xpPerTurn)
	e.recordTurn(ctx, turnStart, err == nil)

	return &Outcome{
		Transcription: text,
		Response:      resp.Response,
		Translation:   resp.Translation,
		Correction:    resp.Correction,
		NewVocabulary: resp.NewVocabulary,
		Encouragement: resp.Encouragement,
	}, nil
}

// Hint fetches a context-aware hint for the active session.
func (e *Engine) Hint(ctx context.Context) (string, error) {
	e.mu.Lock()
	sessionID := e.sessionID
	active := e.scenario != nil
	e.mu.Unlock()
	if !active {
		return "", ErrNoScenario
	}
	return e.conv.Hint(ctx, sessionID, e.lang.Code)
}

// CompleteObjective marks the scenario objective at index as done. Out-of-range
// indices are ignored.
func (e *Engine) CompleteObjective(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scenario == nil || index < 0 || index >= len(e.scenario.Objectives) {
		return
	}
	e.objectives[index] = true
}

// EndConversation records a summary into the progression system, releases the
// server-side session best effort, and resets to Idle. Returns the recorded
// summary; calling with no active scenario is a no-op returning a zero record.
func (e *Engine) EndConversation(ctx context.Context) progression.ConversationRecord {
	e.mu.Lock()
	if e.scenario == nil {
		e.mu.Unlock()
		return progression.ConversationRecord{}
	}
	rec := progression.ConversationRecord{
		Language:     e.lang.Code,
		Scenario:     e.scenario.ID,
		Turns:        e.turnCount,
		WordsLearned: len(e.wordsLearned),
	}
	sessionID := e.sessionID
	e.scenario = nil
	e.sessionID = ""
	e.turns = nil
	e.turnCount = 0
	e.wordsLearned = nil
	e.objectives = nil
	e.state = StateIdle
	e.mu.Unlock()

	e.progress.RecordConversation(ctx, rec, e.glossary.WordCount())
	if e.metrics != nil {
		e.metrics.ActiveSessions.Add(ctx, -1)
	}

	if sessionID != "" {
		if err := e.conv.EndSession(ctx, sessionID); err != nil {
			e.log.Warn("end session failed", "session_id", sessionID, "error", err)
		}
	}
	return rec
}

// State returns the engine's current lifecycle phase.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// TurnCount returns the number of completed user turns this session.
func (e *Engine) TurnCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turnCount
}

// Level returns the current difficulty level (1-5).
func (e *Engine) Level() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.level
}

// Turns returns a copy of the session transcript.
func (e *Engine) Turns() []Turn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Turn(nil), e.turns...)
}

// Difficulty returns the backend difficulty parameters for the current level.
func (e *Engine) Difficulty() backend.Difficulty {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.difficultyLocked()
}

// ─── Internals ────────────────────────────────────────────────────────────────

func (e *Engine) difficultyLocked() backend.Difficulty {
	d := e.lang.Difficulty(e.level)
	return backend.Difficulty{
		Level:          e.level,
		EnglishPercent: d.EnglishPercent,
		TargetPercent:  d.TargetPercent,
		GrammarFocus:   d.GrammarFocus,
	}
}

// advanceDifficultyLocked bumps the level every turnsUntilLevelUp turns,
// capped at the maximum. Callers must hold e.mu.
func (e *Engine) advanceDifficultyLocked() {
	if e.turnCount%turnsUntilLevelUp != 0 {
		return
	}
	if e.level < config.MaxDifficultyLevel {
		e.level++
		e.log.Info("difficulty advanced", "level", e.level, "turns", e.turnCount)
	}
}

// learnVocabulary adds surfaced words to the glossary, counting the ones that
// were genuinely new this session.
func (e *Engine) learnVocabulary(items []backend.VocabularyItem) {
	for _, item := range items {
		added := e.glossary.AddWord(e.lang.Code, glossary.Entry{
			Word:          item.Word,
			Translation:   item.Translation,
			Pronunciation: item.Pronunciation,
		})
		if added {
			e.mu.Lock()
			if e.wordsLearned != nil {
				e.wordsLearned[strings.ToLower(item.Word)] = true
			}
			e.mu.Unlock()
		}
	}
}

// recordTurn emits the per-turn instruments. degraded marks turns that fell
// back to a canned response.
func (e *Engine) recordTurn(ctx context.Context, start time.Time, ok bool) {
	if e.metrics == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "degraded"
	}
	e.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("language", e.lang.Code)))
	e.metrics.Turns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", e.lang.Code),
		attribute.String("status", status),
	))
}

// speak plays text through the voice layer; failures are already reported by
// the voice layer and never interrupt the turn.
func (e *Engine) speak(ctx context.Context, text string) {
	if err := e.voice.Speak(ctx, text, voice.SpeakOptions{
		Language:    e.lang.Code,
		CharacterID: e.lang.Character.ID,
		Expression:  e.lang.Character.Expression,
	}); err != nil {
		e.log.Debug("speak failed", "error", err)
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scenario != nil {
		e.state = s
	}
}

// lastTurns converts the tail of the transcript to backend history turns.
func lastTurns(turns []Turn, n int) []backend.HistoryTurn {
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]backend.HistoryTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, backend.HistoryTurn{Role: t.Role, Text: t.Text})
	}
	return out
}
