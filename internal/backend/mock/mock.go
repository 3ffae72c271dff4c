// Package mock provides scripted in-memory implementations of the backend
// interfaces for tests.
package mock

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/linguaworlds/linguaworlds/internal/backend"
)

// Conversation is a scriptable [backend.Conversation]. Zero value is usable:
// every call succeeds with zero-value results. Set the corresponding field to
// script a response or an error.
//
// All fields and counters are guarded by an internal mutex so tests may
// exercise the mock concurrently.
type Conversation struct {
	mu sync.Mutex

	SpeakAudio []byte
	SpeakErr   error
	SpeakCalls int

	StreamBody string
	StreamErr  error

	TranscribeResult backend.Transcription
	TranscribeErr    error
	TranscribeCalls  int

	AssessResult backend.Assessment
	AssessErr    error

	StartResult backend.StartResponse
	StartErr    error
	StartCalls  int

	RespondResult backend.TurnResponse
	RespondErr    error
	RespondCalls  int
	LastRespond   backend.RespondRequest

	VoiceResult backend.VoiceTurnResponse
	VoiceErr    error

	FetchedAudio []byte
	FetchErr     error
	FetchedURLs  []string

	HintResult string
	HintErr    error

	EndedSessions []string
}

var _ backend.Conversation = (*Conversation)(nil)

func (m *Conversation) Speak(_ context.Context, _ backend.SpeakRequest) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SpeakCalls++
	return m.SpeakAudio, m.SpeakErr
}

func (m *Conversation) SpeakStream(_ context.Context, _ backend.SpeakRequest) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}
	return io.NopCloser(strings.NewReader(m.StreamBody)), nil
}

func (m *Conversation) Transcribe(_ context.Context, _ []byte, _ string) (backend.Transcription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TranscribeCalls++
	return m.TranscribeResult, m.TranscribeErr
}

func (m *Conversation) AssessPronunciation(_ context.Context, _ []byte, _, _ string) (backend.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.AssessResult, m.AssessErr
}

func (m *Conversation) StartConversation(_ context.Context, _ backend.StartRequest) (backend.StartResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StartCalls++
	return m.StartResult, m.StartErr
}

func (m *Conversation) Respond(_ context.Context, req backend.RespondRequest) (backend.TurnResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RespondCalls++
	m.LastRespond = req
	return m.RespondResult, m.RespondErr
}

func (m *Conversation) VoiceRespond(_ context.Context, _ []byte, _ backend.RespondRequest) (backend.VoiceTurnResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.VoiceResult, m.VoiceErr
}

func (m *Conversation) FetchAudio(_ context.Context, audioURL string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchedURLs = append(m.FetchedURLs, audioURL)
	return m.FetchedAudio, m.FetchErr
}

func (m *Conversation) Hint(_ context.Context, _, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.HintResult, m.HintErr
}

func (m *Conversation) EndSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndedSessions = append(m.EndedSessions, sessionID)
	return nil
}

// Mirror is a scriptable [backend.ProgressMirror].
type Mirror struct {
	mu sync.Mutex

	SaveErr     error
	SaveCalls   int
	LastState   []byte
	Practiced   []string
	PracticeErr error
}

var _ backend.ProgressMirror = (*Mirror)(nil)

func (m *Mirror) SaveProgress(_ context.Context, _ string, state []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	m.LastState = append([]byte(nil), state...)
	return m.SaveErr
}

func (m *Mirror) PracticeWord(_ context.Context, language, word string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Practiced = append(m.Practiced, language+"/"+word)
	return m.PracticeErr
}

// SaveCount returns the number of SaveProgress calls.
func (m *Mirror) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SaveCalls
}
