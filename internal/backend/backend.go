// Package backend defines the contract with the remote AI/TTS/STT service and
// provides the HTTP client implementing it.
//
// The service is treated as a black box: every pipeline stage (speech
// synthesis, transcription, response generation, pronunciation assessment) is
// a single HTTP endpoint returning JSON or a binary audio blob. Callers above
// the voice layer never see transport details — they program against
// [Conversation].
package backend

import (
	"context"
	"io"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleNPC    Role = "npc"
	RolePlayer Role = "player"
)

// SpeakRequest asks the service to synthesize speech for one utterance.
type SpeakRequest struct {
	Text        string `json:"text"`
	CharacterID string `json:"character_id"`
	Expression  string `json:"expression,omitempty"`
	Language    string `json:"language"`
}

// Transcription is the result of a speech-to-text call.
type Transcription struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Assessment is the service-side pronunciation verdict for a recording.
type Assessment struct {
	Accuracy    float64  `json:"accuracy"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

// StartRequest opens a new conversation session for a scenario.
type StartRequest struct {
	Language        string `json:"language"`
	CharacterID     string `json:"character_id"`
	ScenarioID      string `json:"scenario_id"`
	DifficultyLevel int    `json:"difficulty_level"`
	UserID          string `json:"user_id"`
}

// StartResponse carries the session handle and the generated greeting.
type StartResponse struct {
	SessionID   string `json:"session_id"`
	Greeting    string `json:"greeting"`
	Translation string `json:"translation"`
}

// HistoryTurn is one prior turn sent back to the service for context.
type HistoryTurn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Character describes the tutor persona for response generation.
type Character struct {
	ID          string `json:"id"`
	Personality string `json:"personality,omitempty"`
}

// Scenario describes the scene the conversation takes place in.
type Scenario struct {
	ID        string `json:"id"`
	Setting   string `json:"setting,omitempty"`
	Objective string `json:"objective,omitempty"`
}

// Difficulty carries the language-mix parameters for the current level.
type Difficulty struct {
	Level          int    `json:"level"`
	EnglishPercent int    `json:"english_percent"`
	TargetPercent  int    `json:"target_percent"`
	GrammarFocus   string `json:"grammar_focus,omitempty"`
}

// RespondRequest asks the service for the NPC's reply to a user utterance.
type RespondRequest struct {
	Language   string        `json:"language"`
	UserInput  string        `json:"user_input"`
	History    []HistoryTurn `json:"conversation_history"`
	Character  Character     `json:"character"`
	Scenario   Scenario      `json:"scenario"`
	Difficulty Difficulty    `json:"difficulty"`
	SessionID  string        `json:"session_id,omitempty"`
	UserID     string        `json:"user_id,omitempty"`
}

// VocabularyItem is a word the service surfaced during a turn.
type VocabularyItem struct {
	Word          string `json:"word"`
	Translation   string `json:"translation"`
	Pronunciation string `json:"pronunciation,omitempty"`
}

// TurnResponse is the NPC reply plus teaching metadata for one turn.
type TurnResponse struct {
	Response      string           `json:"response"`
	Translation   string           `json:"translation,omitempty"`
	Correction    string           `json:"correction,omitempty"`
	NewVocabulary []VocabularyItem `json:"new_vocabulary,omitempty"`
	Encouragement string           `json:"encouragement,omitempty"`
}

// VoiceTurnResponse is the full-JSON variant of the one-shot voice round trip:
// the service transcribes, responds, and synthesizes in a single call.
type VoiceTurnResponse struct {
	Transcription string           `json:"transcription"`
	Response      string           `json:"response"`
	Translation   string           `json:"translation,omitempty"`
	Correction    string           `json:"correction,omitempty"`
	NewVocabulary []VocabularyItem `json:"new_vocabulary,omitempty"`
	AudioURL      string           `json:"audio_url,omitempty"`
}

// Conversation is the abstraction over the remote conversation service.
//
// Implementations must be safe for concurrent use. All methods honour ctx for
// cancellation; none of them retries internally.
type Conversation interface {
	// Speak synthesizes text and returns the encoded audio blob.
	Speak(ctx context.Context, req SpeakRequest) ([]byte, error)

	// SpeakStream synthesizes text and returns a streaming audio body.
	// The caller must close the returned reader.
	SpeakStream(ctx context.Context, req SpeakRequest) (io.ReadCloser, error)

	// Transcribe converts a recorded audio blob to text. language may be empty
	// to let the service auto-detect.
	Transcribe(ctx context.Context, audio []byte, language string) (Transcription, error)

	// AssessPronunciation scores a recording against the expected target text.
	AssessPronunciation(ctx context.Context, audio []byte, targetText, language string) (Assessment, error)

	// StartConversation opens a session and returns the generated greeting.
	StartConversation(ctx context.Context, req StartRequest) (StartResponse, error)

	// Respond generates the NPC reply for a transcribed user turn.
	Respond(ctx context.Context, req RespondRequest) (TurnResponse, error)

	// VoiceRespond performs transcription, response, and synthesis in one call.
	VoiceRespond(ctx context.Context, audio []byte, req RespondRequest) (VoiceTurnResponse, error)

	// FetchAudio downloads the synthesized audio referenced by a
	// [VoiceTurnResponse.AudioURL]. Relative URLs are resolved against the
	// service base URL.
	FetchAudio(ctx context.Context, audioURL string) ([]byte, error)

	// Hint fetches a context-aware hint for the active session.
	Hint(ctx context.Context, sessionID, language string) (string, error)

	// EndSession releases the server-side session. Best-effort.
	EndSession(ctx context.Context, sessionID string) error
}

// ProgressMirror is the optional server-side mirror for learner state.
// Mirror failures must never block local persistence.
type ProgressMirror interface {
	// SaveProgress uploads the full serialized progression state.
	SaveProgress(ctx context.Context, userID string, state []byte) error

	// PracticeWord records a glossary practice outcome server-side.
	PracticeWord(ctx context.Context, language, word string, correct bool) error
}
