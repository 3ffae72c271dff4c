// Package voice owns microphone capture and audio playback for conversation
// sessions. The [Manager] hides the capture device, the playback path, and
// the remote synthesis/transcription endpoints behind a small surface:
// Speak, StartRecording/StopRecording, Transcribe, AssessPronunciation, and
// the one-shot [Manager.Turn] round trip.
//
// Failure semantics: device and transport errors never escape as errors into
// the conversation engine. They are downgraded to false/empty returns plus an
// [Events.Error] notification so the conversation can continue degraded with
// canned fallback text.
package voice

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/linguaworlds/linguaworlds/internal/backend"
	"github.com/linguaworlds/linguaworlds/internal/observe"
	"github.com/linguaworlds/linguaworlds/internal/resilience"
	"github.com/linguaworlds/linguaworlds/pkg/audio"
)

// ErrNoAudio is returned by [Manager.Turn] when the recording produced no
// usable audio (too short, or nothing captured).
var ErrNoAudio = errors.New("no audio captured")

const (
	defaultMinRecording = 500 * time.Millisecond
	defaultMaxRecording = 30 * time.Second
)

// Config holds the dependencies and tuning for a [Manager].
type Config struct {
	Device  audio.CaptureDevice
	Player  audio.Player
	Backend backend.Conversation

	// Events receives notifications. Nil means no notifications.
	Events Events

	// Metrics is optional; nil disables instrumentation.
	Metrics *observe.Metrics

	// CacheSize bounds the synthesized-audio cache. Default: 50.
	CacheSize int

	// MinRecording is the accidental-tap threshold. Default: 500ms.
	MinRecording time.Duration

	// MaxRecording is the safety-net cutoff used by [Manager.Turn].
	// Default: 30s.
	MaxRecording time.Duration

	// Breaker guards backend calls. Nil creates a default breaker.
	Breaker *resilience.Breaker
}

// Manager mediates all microphone capture and audio playback.
//
// Invariants: at most one active recording session (a second StartRecording
// is a no-op returning false) and at most one playing audio handle (Speak
// always stops prior playback first — last writer wins).
//
// Manager is safe for concurrent use.
type Manager struct {
	device  audio.CaptureDevice
	player  audio.Player
	conv    backend.Conversation
	events  Events
	metrics *observe.Metrics
	breaker *resilience.Breaker
	cache   *speakCache

	minRecording time.Duration
	maxRecording time.Duration

	mu      sync.Mutex
	muted   bool
	rec     *recording
	playing audio.PlaybackHandle
}

// NewManager creates a Manager from cfg. Device, Player, and Backend are
// required.
func NewManager(cfg Config) *Manager {
	if cfg.Events == nil {
		cfg.Events = NopEvents{}
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 50
	}
	if cfg.MinRecording <= 0 {
		cfg.MinRecording = defaultMinRecording
	}
	if cfg.MaxRecording <= 0 {
		cfg.MaxRecording = defaultMaxRecording
	}
	if cfg.Breaker == nil {
		cfg.Breaker = resilience.New(resilience.Config{Name: "backend"})
	}
	return &Manager{
		device:       cfg.Device,
		player:       cfg.Player,
		conv:         cfg.Backend,
		events:       cfg.Events,
		metrics:      cfg.Metrics,
		breaker:      cfg.Breaker,
		cache:        newSpeakCache(cfg.CacheSize),
		minRecording: cfg.MinRecording,
		maxRecording: cfg.MaxRecording,
	}
}

// SpeakOptions parameterise one synthesis request.
type SpeakOptions struct {
	Language    string
	CharacterID string
	Expression  string

	// NoCache bypasses the synthesized-audio cache.
	NoCache bool
}

// Speak synthesizes text and plays it, blocking until playback finishes.
// Muted managers and empty text are a silent no-op. Any prior playback is
// stopped first. Backend failures are reported via Events and returned, but
// callers are expected to treat them as non-fatal.
func (m *Manager) Speak(ctx context.Context, text string, opts SpeakOptions) error {
	m.mu.Lock()
	muted := m.muted
	m.mu.Unlock()
	if muted || text == "" {
		return nil
	}

	blob, err := m.synthesize(ctx, text, opts)
	if err != nil {
		return err
	}
	return m.playBlob(ctx, text, blob)
}

// synthesize resolves the audio for text, consulting the cache first.
func (m *Manager) synthesize(ctx context.Context, text string, opts SpeakOptions) ([]byte, error) {
	key := cacheKey(text, opts.Language, opts.CharacterID, opts.Expression)
	if !opts.NoCache {
		if blob, ok := m.cache.get(key); ok {
			m.count(m.metricsCacheHits())
			return blob, nil
		}
		m.count(m.metricsCacheMisses())
	}

	start := time.Now()
	var blob []byte
	err := m.breaker.Do(func() error {
		var speakErr error
		blob, speakErr = m.conv.Speak(ctx, backend.SpeakRequest{
			Text:        text,
			CharacterID: opts.CharacterID,
			Expression:  opts.Expression,
			Language:    opts.Language,
		})
		return speakErr
	})
	if err != nil {
		m.events.Error("speak", err)
		m.countBackendError("speak")
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.SpeakDuration.Record(ctx, time.Since(start).Seconds())
	}

	if !opts.NoCache {
		m.cache.put(key, blob)
	}
	return blob, nil
}

// playBlob plays blob, enforcing the at-most-one-playing invariant, and
// blocks until playback ends naturally, errors, or is stopped by a newer
// playback.
func (m *Manager) playBlob(ctx context.Context, text string, blob []byte) error {
	m.StopPlayback()

	handle, err := m.player.Play(ctx, blob)
	if err != nil {
		m.events.Error("play", err)
		return err
	}

	m.mu.Lock()
	m.playing = handle
	m.mu.Unlock()

	m.events.PlaybackStarted(text)
	playErr := <-handle.Done()
	m.events.PlaybackEnded(text)

	m.mu.Lock()
	if m.playing == handle {
		m.playing = nil
	}
	m.mu.Unlock()

	// A stop by a newer playback is not a failure.
	if playErr != nil && !errors.Is(playErr, context.Canceled) {
		m.events.Error("play", playErr)
		return playErr
	}
	return nil
}

// SpeakStream synthesizes text and copies the chunked audio into w as it
// arrives. The stream bypasses both the cache and the playback path; it is
// meant for callers that forward audio elsewhere, such as a client connection.
func (m *Manager) SpeakStream(ctx context.Context, w io.Writer, text string, opts SpeakOptions) error {
	if text == "" {
		return nil
	}
	var body io.ReadCloser
	err := m.breaker.Do(func() error {
		var streamErr error
		body, streamErr = m.conv.SpeakStream(ctx, backend.SpeakRequest{
			Text:        text,
			CharacterID: opts.CharacterID,
			Expression:  opts.Expression,
			Language:    opts.Language,
		})
		return streamErr
	})
	if err != nil {
		m.events.Error("speak_stream", err)
		m.countBackendError("speak_stream")
		return err
	}
	defer body.Close()
	if _, err := io.Copy(w, body); err != nil {
		m.events.Error("speak_stream", err)
		return err
	}
	return nil
}

// StopPlayback stops the currently playing audio, if any.
func (m *Manager) StopPlayback() {
	m.mu.Lock()
	handle := m.playing
	m.playing = nil
	m.mu.Unlock()
	if handle != nil {
		handle.Stop()
	}
}

// SetMuted toggles playback muting. Muting does not stop current playback.
func (m *Manager) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
}

// Muted reports whether the manager is muted.
func (m *Manager) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// CacheLen returns the number of cached audio blobs.
func (m *Manager) CacheLen() int { return m.cache.len() }

// ─── Recording ────────────────────────────────────────────────────────────────

// recording is one active capture session with its accumulating buffer.
type recording struct {
	session audio.CaptureSession
	started time.Time
	mime    string
	done    chan struct{}

	mu  sync.Mutex
	buf bytes.Buffer
}

func (r *recording) bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.buf.Bytes()...)
}

// StartRecording requests the capture device and begins accumulating audio.
// Returns false — with an [Events.Error] — on permission or device failure,
// and false without an event when a recording is already active.
func (m *Manager) StartRecording(ctx context.Context) bool {
	m.mu.Lock()
	if m.rec != nil {
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()

	session, mime, err := m.device.Open(ctx, audio.PreferredMIMETypes)
	if err != nil {
		m.events.Error("record", err)
		return false
	}

	rec := &recording{
		session: session,
		started: time.Now(),
		mime:    mime,
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	if m.rec != nil {
		// Lost the race to another StartRecording.
		m.mu.Unlock()
		_ = session.Close()
		return false
	}
	m.rec = rec
	m.mu.Unlock()

	go m.collect(rec)
	slog.Debug("recording started", "mime", mime)
	return true
}

// collect drains the session's chunk and level channels until the session
// ends, accumulating chunks and forwarding levels to the event hook.
func (m *Manager) collect(rec *recording) {
	defer close(rec.done)

	chunks := rec.session.Chunks()
	levels := rec.session.Levels()
	for chunks != nil || levels != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			rec.mu.Lock()
			rec.buf.Write(chunk)
			rec.mu.Unlock()
		case level, ok := <-levels:
			if !ok {
				levels = nil
				continue
			}
			m.events.RecordingLevel(level)
		}
	}
}

// StopRecording finalises the active recording and returns the captured blob.
// Recordings shorter than the accidental-tap threshold, or with no captured
// data, yield nil. The device tracks are always released, whatever the
// outcome. Returns nil when no recording is active.
func (m *Manager) StopRecording() []byte {
	rec := m.takeRecording()
	if rec == nil {
		return nil
	}

	_ = rec.session.Close()
	<-rec.done

	elapsed := time.Since(rec.started)
	data := rec.bytes()
	if elapsed < m.minRecording || len(data) == 0 {
		slog.Debug("recording discarded", "elapsed", elapsed, "bytes", len(data))
		return nil
	}
	return data
}

// CancelRecording discards the active recording without invoking any event
// hooks, releasing the device tracks.
func (m *Manager) CancelRecording() {
	rec := m.takeRecording()
	if rec == nil {
		return
	}
	_ = rec.session.Close()
	<-rec.done
}

// Recording reports whether a capture session is active.
func (m *Manager) Recording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec != nil
}

func (m *Manager) takeRecording() *recording {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.rec
	m.rec = nil
	return rec
}

// ─── Backend wrappers ─────────────────────────────────────────────────────────

// Transcribe converts a recorded blob to text. Failures are downgraded:
// the second return is false and an [Events.Error] fires; the method never
// returns an error to the caller.
func (m *Manager) Transcribe(ctx context.Context, blob []byte, language string) (string, bool) {
	if len(blob) == 0 {
		return "", false
	}
	var tr backend.Transcription
	err := m.breaker.Do(func() error {
		var trErr error
		tr, trErr = m.conv.Transcribe(ctx, blob, language)
		return trErr
	})
	if err != nil {
		m.events.Error("transcribe", err)
		m.count(m.metricsTranscriptionFailures())
		m.countBackendError("transcribe")
		return "", false
	}
	return tr.Text, true
}

// AssessPronunciation scores a recording against targetText via the backend.
// Failures are downgraded to ok=false plus an [Events.Error].
func (m *Manager) AssessPronunciation(ctx context.Context, blob []byte, targetText, language string) (backend.Assessment, bool) {
	var a backend.Assessment
	err := m.breaker.Do(func() error {
		var aErr error
		a, aErr = m.conv.AssessPronunciation(ctx, blob, targetText, language)
		return aErr
	})
	if err != nil {
		m.events.Error("assess", err)
		m.countBackendError("assess")
		return backend.Assessment{}, false
	}
	return a, true
}

// ─── One-shot voice turn ──────────────────────────────────────────────────────

// TurnParams parameterise a full voice conversation round trip.
type TurnParams struct {
	Language   string
	Character  backend.Character
	Scenario   backend.Scenario
	Difficulty backend.Difficulty
	SessionID  string
}

// TurnResult is the outcome of one full voice round trip.
type TurnResult struct {
	Transcription string
	Response      string
	Translation   string
	Correction    string
	NewVocabulary []backend.VocabularyItem
}

// Turn performs the full voice round trip: record until stop is closed (or
// the safety-net max recording time elapses), transcribe+respond+synthesize
// in a single backend call, and play the response audio when a URL came back.
//
// The stop channel is the intended path for ending the recording; the
// internal timer is only a safety net and is deliberately approximate.
func (m *Manager) Turn(ctx context.Context, stop <-chan struct{}, p TurnParams) (*TurnResult, error) {
	if !m.StartRecording(ctx) {
		return nil, errors.New("voice: could not start recording")
	}

	timer := time.NewTimer(m.maxRecording)
	defer timer.Stop()
	select {
	case <-stop:
	case <-timer.C:
		slog.Warn("recording hit safety-net cutoff", "max", m.maxRecording)
	case <-ctx.Done():
		m.CancelRecording()
		return nil, ctx.Err()
	}

	blob := m.StopRecording()
	if blob == nil {
		return nil, ErrNoAudio
	}

	var resp backend.VoiceTurnResponse
	err := m.breaker.Do(func() error {
		var vErr error
		resp, vErr = m.conv.VoiceRespond(ctx, blob, backend.RespondRequest{
			Language:   p.Language,
			Character:  p.Character,
			Scenario:   p.Scenario,
			Difficulty: p.Difficulty,
			SessionID:  p.SessionID,
		})
		return vErr
	})
	if err != nil {
		m.events.Error("voice_respond", err)
		m.countBackendError("voice_respond")
		return nil, err
	}

	if resp.AudioURL != "" {
		if audioBlob, fetchErr := m.conv.FetchAudio(ctx, resp.AudioURL); fetchErr == nil {
			_ = m.playBlob(ctx, resp.Response, audioBlob)
		} else {
			m.events.Error("fetch_audio", fetchErr)
		}
	}

	return &TurnResult{
		Transcription: resp.Transcription,
		Response:      resp.Response,
		Translation:   resp.Translation,
		Correction:    resp.Correction,
		NewVocabulary: resp.NewVocabulary,
	}, nil
}

// Close stops playback and discards any active recording. In-flight backend
// requests are not aborted here; cancel the session context for that.
func (m *Manager) Close() error {
	m.StopPlayback()
	m.CancelRecording()
	return nil
}

// ─── Metric helpers ───────────────────────────────────────────────────────────

func (m *Manager) count(c metric.Int64Counter) {
	if c != nil {
		c.Add(context.Background(), 1)
	}
}

func (m *Manager) countBackendError(op string) {
	if m.metrics != nil {
		m.metrics.BackendErrors.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("op", op)))
	}
}

func (m *Manager) metricsCacheHits() metric.Int64Counter {
	if m.metrics == nil {
		return nil
	}
	return m.metrics.CacheHits
}

func (m *Manager) metricsCacheMisses() metric.Int64Counter {
	if m.metrics == nil {
		return nil
	}
	return m.metrics.CacheMisses
}

func (m *Manager) metricsTranscriptionFailures() metric.Int64Counter {
	if m.metrics == nil {
		return nil
	}
	return m.metrics.TranscriptionFailures
}
