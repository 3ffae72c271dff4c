package convo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linguaworlds/linguaworlds/internal/backend"
	backendmock "github.com/linguaworlds/linguaworlds/internal/backend/mock"
	"github.com/linguaworlds/linguaworlds/internal/config"
	"github.com/linguaworlds/linguaworlds/internal/glossary"
	"github.com/linguaworlds/linguaworlds/internal/progression"
	"github.com/linguaworlds/linguaworlds/internal/store"
	"github.com/linguaworlds/linguaworlds/internal/voice"
)

// fakeSpeaker satisfies Speaker without a real audio stack. The optional
// channels let a test hold Transcribe open mid-turn.
type fakeSpeaker struct {
	Spoken            []string
	TranscribeTo      string
	TranscribeOK      bool
	TranscribeEntered chan struct{}
	TranscribeRelease chan struct{}
}

func (f *fakeSpeaker) Speak(_ context.Context, text string, _ voice.SpeakOptions) error {
	f.Spoken = append(f.Spoken, text)
	return nil
}

func (f *fakeSpeaker) Transcribe(_ context.Context, _ []byte, _ string) (string, bool) {
	if f.TranscribeEntered != nil {
		close(f.TranscribeEntered)
	}
	if f.TranscribeRelease != nil {
		<-f.TranscribeRelease
	}
	return f.TranscribeTo, f.TranscribeOK
}

func testLanguage() *config.LanguageConfig {
	return &config.LanguageConfig{
		Code: "en",
		Name: "English",
		Character: config.CharacterConfig{
			ID:         "emma",
			Expression: "friendly",
		},
		DifficultyScaling: []config.DifficultyLevel{
			{EnglishPercent: 80, TargetPercent: 20, GrammarFocus: "greetings"},
			{EnglishPercent: 60, TargetPercent: 40, GrammarFocus: "questions"},
			{EnglishPercent: 40, TargetPercent: 60, GrammarFocus: "past tense"},
			{EnglishPercent: 20, TargetPercent: 80, GrammarFocus: "idioms"},
			{EnglishPercent: 10, TargetPercent: 90, GrammarFocus: "fluency"},
		},
		Scenarios: []config.ScenarioConfig{
			{
				ID:        "level1",
				Title:     "First Meeting",
				Setting:   "a park bench",
				Greetings: []string{"Hello! Nice to meet you!", "Hi there!"},
			},
		},
	}
}

type testEngine struct {
	*Engine
	speaker  *fakeSpeaker
	conv     *backendmock.Conversation
	glossary *glossary.Manager
	progress *progression.System
}

func newTestEngine(t *testing.T, cfgFns ...func(*Config)) *testEngine {
	t.Helper()
	speaker := &fakeSpeaker{TranscribeOK: true}
	conv := &backendmock.Conversation{}

	g, err := glossary.NewManager(store.NewMemStore())
	if err != nil {
		t.Fatalf("glossary: %v", err)
	}
	p, err := progression.NewSystem(store.NewMemStore())
	if err != nil {
		t.Fatalf("progression: %v", err)
	}

	cfg := Config{
		Language: testLanguage(),
		Voice:    speaker,
		Backend:  conv,
		Glossary: g,
		Progress: p,
		UserID:   "user-1",
	}
	for _, fn := range cfgFns {
		fn(&cfg)
	}
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return &testEngine{Engine: e, speaker: speaker, conv: conv, glossary: g, progress: p}
}

func TestEngine_StartScenario_CannedGreetingAtLevelOne(t *testing.T) {
	te := newTestEngine(t)

	greeting, err := te.StartScenario(context.Background(), "level1")
	if err != nil {
		t.Fatalf("StartScenario: %v", err)
	}
	if greeting.Text != "Hello! Nice to meet you!" {
		t.Errorf("greeting = %q, want the first canned line", greeting.Text)
	}
	if te.conv.StartCalls != 0 {
		t.Errorf("StartConversation called %d times at level 1, want 0", te.conv.StartCalls)
	}
	if len(te.speaker.Spoken) != 1 || te.speaker.Spoken[0] != greeting.Text {
		t.Errorf("spoken = %v, want the greeting", te.speaker.Spoken)
	}
	if got := te.State(); got != StateAwaitingInput {
		t.Errorf("state = %q, want awaiting_input", got)
	}
}

func TestEngine_StartScenario_BackendGreetingAtHigherLevels(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.StartLevel = 2 })
	te.conv.StartResult = backend.StartResponse{
		SessionID:   "sess-42",
		Greeting:    "Bienvenue !",
		Translation: "Welcome!",
	}

	greeting, err := te.StartScenario(context.Background(), "level1")
	if err != nil {
		t.Fatalf("StartScenario: %v", err)
	}
	if greeting.Text != "Bienvenue !" || greeting.Translation != "Welcome!" {
		t.Errorf("greeting = %+v", greeting)
	}
	if te.conv.StartCalls != 1 {
		t.Errorf("StartCalls = %d, want 1", te.conv.StartCalls)
	}
}

func TestEngine_StartScenario_FallsBackOnBackendFailure(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.StartLevel = 3 })
	te.conv.StartErr = errors.New("service down")

	greeting, err := te.StartScenario(context.Background(), "level1")
	if err != nil {
		t.Fatalf("StartScenario: %v", err)
	}
	if greeting.Text != "Hello! Nice to meet you!" {
		t.Errorf("greeting = %q, want canned fallback", greeting.Text)
	}
}

func TestEngine_StartScenario_Unknown(t *testing.T) {
	te := newTestEngine(t)
	if _, err := te.StartScenario(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown scenario")
	}
}

func TestEngine_ProcessUserInput_FullTurn(t *testing.T) {
	te := newTestEngine(t)
	te.speaker.TranscribeTo = "Hello"
	te.conv.RespondResult = backend.TurnResponse{
		Response:      "Hi there!",
		NewVocabulary: []backend.VocabularyItem{{Word: "Hola", Translation: "Hello"}},
	}

	ctx := context.Background()
	if _, err := te.StartScenario(ctx, "level1"); err != nil {
		t.Fatalf("StartScenario: %v", err)
	}

	out, err := te.ProcessUserInput(ctx, []byte("audio"))
	if err != nil {
		t.Fatalf("ProcessUserInput: %v", err)
	}
	if out.Transcription != "Hello" || out.Response != "Hi there!" {
		t.Errorf("outcome = %+v", out)
	}

	// Greeting + user turn + NPC turn.
	turns := te.Turns()
	if len(turns) != 3 {
		t.Fatalf("len(turns) = %d, want 3", len(turns))
	}
	if turns[1].Role != backend.RolePlayer || turns[1].Text != "Hello" {
		t.Errorf("user turn = %+v", turns[1])
	}
	if turns[2].Role != backend.RoleNPC || turns[2].Text != "Hi there!" {
		t.Errorf("npc turn = %+v", turns[2])
	}

	if got := len(te.glossary.Words("en")); got != 1 {
		t.Errorf("glossary entries = %d, want 1", got)
	}
	if got := te.progress.Snapshot().TotalXP; got != xpPerTurn {
		t.Errorf("TotalXP = %d, want %d", got, xpPerTurn)
	}
	if te.TurnCount() != 1 {
		t.Errorf("TurnCount = %d, want 1", te.TurnCount())
	}
	// Greeting plus the NPC response were spoken.
	if len(te.speaker.Spoken) != 2 || te.speaker.Spoken[1] != "Hi there!" {
		t.Errorf("spoken = %v", te.speaker.Spoken)
	}
}

func TestEngine_ProcessUserInput_TranscriptionFailure(t *testing.T) {
	te := newTestEngine(t)
	te.speaker.TranscribeOK = false

	ctx := context.Background()
	te.StartScenario(ctx, "level1")

	_, err := te.ProcessUserInput(ctx, []byte("audio"))
	if !errors.Is(err, ErrNoTranscription) {
		t.Fatalf("err = %v, want ErrNoTranscription", err)
	}
	if te.TurnCount() != 0 {
		t.Error("a failed transcription must not consume a turn")
	}
	if len(te.Turns()) != 1 {
		t.Error("no turns should be appended on transcription failure")
	}
	if got := te.State(); got != StateAwaitingInput {
		t.Errorf("state = %q, want awaiting_input for retry", got)
	}
}

func TestEngine_ProcessUserInput_RespondFailureUsesFallback(t *testing.T) {
	te := newTestEngine(t)
	te.speaker.TranscribeTo = "Hello"
	te.conv.RespondErr = errors.New("service down")

	ctx := context.Background()
	te.StartScenario(ctx, "level1")

	out, err := te.ProcessUserInput(ctx, []byte("audio"))
	if err != nil {
		t.Fatalf("ProcessUserInput: %v", err)
	}
	if out.Response == "" {
		t.Error("fallback response should not be empty")
	}
	if te.TurnCount() != 1 {
		t.Error("a degraded turn still counts")
	}
}

func TestEngine_ProcessUserInput_NoScenario(t *testing.T) {
	te := newTestEngine(t)
	if _, err := te.ProcessUserInput(context.Background(), []byte("audio")); !errors.Is(err, ErrNoScenario) {
		t.Fatalf("err = %v, want ErrNoScenario", err)
	}
}

func TestEngine_HistoryWindow(t *testing.T) {
	te := newTestEngine(t)
	te.speaker.TranscribeTo = "again"
	te.conv.RespondResult = backend.TurnResponse{Response: "ok"}

	ctx := context.Background()
	te.StartScenario(ctx, "level1")

	for i := 0; i < 8; i++ {
		if _, err := te.ProcessUserInput(ctx, []byte("audio")); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}
	// 1 greeting + 16 turns in the transcript; the request carries 10.
	if got := len(te.conv.LastRespond.History); got != historyWindow {
		t.Errorf("history length = %d, want %d", got, historyWindow)
	}
	if te.conv.LastRespond.UserInput != "again" {
		t.Errorf("user input = %q", te.conv.LastRespond.UserInput)
	}
}

func TestEngine_DifficultyAdvancesEveryTenTurns(t *testing.T) {
	te := newTestEngine(t)
	te.speaker.TranscribeTo = "more"
	te.conv.RespondResult = backend.TurnResponse{Response: "ok"}

	ctx := context.Background()
	te.StartScenario(ctx, "level1")

	for i := 0; i < 9; i++ {
		te.ProcessUserInput(ctx, []byte("audio"))
	}
	if te.Level() != 1 {
		t.Fatalf("level = %d after 9 turns, want 1", te.Level())
	}
	te.ProcessUserInput(ctx, []byte("audio"))
	if te.Level() != 2 {
		t.Errorf("level = %d after 10 turns, want 2", te.Level())
	}

	// The level caps at the maximum no matter how long the session runs.
	for i := 0; i < 45; i++ {
		te.ProcessUserInput(ctx, []byte("audio"))
	}
	if te.Level() != config.MaxDifficultyLevel {
		t.Errorf("level = %d, want cap %d", te.Level(), config.MaxDifficultyLevel)
	}
}

func TestEngine_EndConversation(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.StartLevel = 2 })
	te.speaker.TranscribeTo = "Hello"
	te.conv.StartResult = backend.StartResponse{SessionID: "sess-7", Greeting: "Hei!"}
	te.conv.RespondResult = backend.TurnResponse{
		Response:      "ok",
		NewVocabulary: []backend.VocabularyItem{{Word: "kiitos"}},
	}

	ctx := context.Background()
	te.StartScenario(ctx, "level1")
	te.ProcessUserInput(ctx, []byte("audio"))

	rec := te.EndConversation(ctx)
	if rec.Language != "en" || rec.Scenario != "level1" || rec.Turns != 1 || rec.WordsLearned != 1 {
		t.Errorf("record = %+v", rec)
	}
	if got := te.State(); got != StateIdle {
		t.Errorf("state = %q, want idle", got)
	}
	if len(te.conv.EndedSessions) != 1 || te.conv.EndedSessions[0] != "sess-7" {
		t.Errorf("ended sessions = %v", te.conv.EndedSessions)
	}
	if got := len(te.progress.Snapshot().Conversations); got != 1 {
		t.Errorf("recorded conversations = %d, want 1", got)
	}

	// Ending again is a no-op.
	if rec := te.EndConversation(ctx); rec.Turns != 0 {
		t.Errorf("second end = %+v, want zero record", rec)
	}
}

func TestEngine_EndConversationDuringTurn(t *testing.T) {
	te := newTestEngine(t)
	te.speaker.TranscribeTo = "Hello"
	te.speaker.TranscribeEntered = make(chan struct{})
	te.speaker.TranscribeRelease = make(chan struct{})

	ctx := context.Background()
	te.StartScenario(ctx, "level1")

	done := make(chan error, 1)
	go func() {
		_, err := te.ProcessUserInput(ctx, []byte("audio"))
		done <- err
	}()

	// End the session while the turn is parked in transcription.
	<-te.speaker.TranscribeEntered
	te.EndConversation(ctx)
	close(te.speaker.TranscribeRelease)

	select {
	case err := <-done:
		if !errors.Is(err, ErrNoScenario) {
			t.Fatalf("err = %v, want ErrNoScenario", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ProcessUserInput did not return after the session ended")
	}
	if got := te.State(); got != StateIdle {
		t.Errorf("state = %q, want idle", got)
	}
	if te.TurnCount() != 0 {
		t.Error("an abandoned turn must not be counted")
	}
	if got := len(te.Turns()); got != 0 {
		t.Errorf("len(turns) = %d, want 0 after the session ended", got)
	}
}

func TestEngine_Hint(t *testing.T) {
	te := newTestEngine(t)
	if _, err := te.Hint(context.Background()); !errors.Is(err, ErrNoScenario) {
		t.Fatalf("err = %v, want ErrNoScenario", err)
	}

	te.conv.HintResult = "Try asking about the weather."
	te.StartScenario(context.Background(), "level1")
	hint, err := te.Hint(context.Background())
	if err != nil {
		t.Fatalf("Hint: %v", err)
	}
	if hint != "Try asking about the weather." {
		t.Errorf("hint = %q", hint)
	}
}
