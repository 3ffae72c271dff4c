package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// StatusError is returned for any non-2xx response from the service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: unexpected status %d: %s", e.Code, e.Body)
}

// Client is the HTTP implementation of [Conversation] and [ProgressMirror].
//
// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var (
	_ Conversation   = (*Client)(nil)
	_ ProgressMirror = (*Client)(nil)
)

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Useful in tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-call timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a Client pointed at baseURL (e.g., "http://localhost:8000").
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Speak synthesizes text and returns the encoded audio blob.
func (c *Client) Speak(ctx context.Context, req SpeakRequest) ([]byte, error) {
	body, err := c.postJSONRaw(ctx, "/api/speak", req)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	audio, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("backend: read audio: %w", err)
	}
	return audio, nil
}

// SpeakStream synthesizes text and returns the chunked audio body.
func (c *Client) SpeakStream(ctx context.Context, req SpeakRequest) (io.ReadCloser, error) {
	return c.postJSONRaw(ctx, "/api/speak/stream", req)
}

// Transcribe uploads a recording for speech-to-text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, language string) (Transcription, error) {
	fields := map[string]string{}
	if language != "" {
		fields["language"] = language
	}
	var out struct {
		Text          string  `json:"text"`
		Transcription string  `json:"transcription"`
		Confidence    float64 `json:"confidence"`
	}
	if err := c.postMultipart(ctx, "/api/transcribe", audio, fields, &out); err != nil {
		return Transcription{}, err
	}
	// Older service builds use "transcription" instead of "text".
	text := out.Text
	if text == "" {
		text = out.Transcription
	}
	return Transcription{Text: text, Confidence: out.Confidence}, nil
}

// AssessPronunciation uploads a recording for server-side scoring.
func (c *Client) AssessPronunciation(ctx context.Context, audio []byte, targetText, language string) (Assessment, error) {
	fields := map[string]string{
		"target_text": targetText,
		"language":    language,
	}
	var out Assessment
	if err := c.postMultipart(ctx, "/api/pronunciation/assess", audio, fields, &out); err != nil {
		return Assessment{}, err
	}
	return out, nil
}

// StartConversation opens a session and returns the generated greeting.
func (c *Client) StartConversation(ctx context.Context, req StartRequest) (StartResponse, error) {
	var out StartResponse
	if err := c.postJSON(ctx, "/api/conversation/start", req, &out); err != nil {
		return StartResponse{}, err
	}
	return out, nil
}

// Respond generates the NPC reply for a transcribed user turn.
func (c *Client) Respond(ctx context.Context, req RespondRequest) (TurnResponse, error) {
	var out TurnResponse
	if err := c.postJSON(ctx, "/api/conversation/respond", req, &out); err != nil {
		return TurnResponse{}, err
	}
	return out, nil
}

// VoiceRespond performs the full audio-in round trip in one call.
func (c *Client) VoiceRespond(ctx context.Context, audio []byte, req RespondRequest) (VoiceTurnResponse, error) {
	fields := map[string]string{
		"language":         req.Language,
		"character_id":     req.Character.ID,
		"difficulty_level": strconv.Itoa(req.Difficulty.Level),
	}
	if req.SessionID != "" {
		fields["session_id"] = req.SessionID
	}
	var out VoiceTurnResponse
	if err := c.postMultipart(ctx, "/api/conversation/voice/respond/full", audio, fields, &out); err != nil {
		return VoiceTurnResponse{}, err
	}
	return out, nil
}

// FetchAudio downloads synthesized audio from a voice-respond audio_url.
func (c *Client) FetchAudio(ctx context.Context, audioURL string) ([]byte, error) {
	u := audioURL
	if strings.HasPrefix(u, "/") {
		u = c.baseURL + u
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backend: fetch audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(snippet)}
	}
	return io.ReadAll(resp.Body)
}

// Hint fetches a context-aware hint for the active session.
func (c *Client) Hint(ctx context.Context, sessionID, language string) (string, error) {
	u := fmt.Sprintf("%s/api/conversation/hint/%s?language=%s",
		c.baseURL, url.PathEscape(sessionID), url.QueryEscape(language))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("backend: build request: %w", err)
	}
	var out struct {
		Hint string `json:"hint"`
	}
	if err := c.do(httpReq, &out); err != nil {
		return "", err
	}
	return out.Hint, nil
}

// EndSession releases the server-side session.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	u := fmt.Sprintf("%s/api/conversation/session/%s", c.baseURL, url.PathEscape(sessionID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	return c.do(httpReq, nil)
}

// SaveProgress mirrors the full progression state server-side.
func (c *Client) SaveProgress(ctx context.Context, userID string, state []byte) error {
	payload := struct {
		UserID string          `json:"user_id"`
		State  json.RawMessage `json:"state"`
	}{UserID: userID, State: state}
	return c.postJSON(ctx, "/api/progress", payload, nil)
}

// PracticeWord records a glossary practice outcome server-side.
func (c *Client) PracticeWord(ctx context.Context, language, word string, correct bool) error {
	u := fmt.Sprintf("%s/api/glossary/%s/word/%s/practice?correct=%t",
		c.baseURL, url.PathEscape(language), url.PathEscape(word), correct)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	return c.do(httpReq, nil)
}

// ─── Transport helpers ────────────────────────────────────────────────────────

// postJSON sends body as JSON and decodes the JSON response into out (out may
// be nil when the response body is irrelevant).
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("backend: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, out)
}

// postJSONRaw sends body as JSON and returns the raw response body on 2xx.
func (c *Client) postJSONRaw(ctx context.Context, path string, body any) (io.ReadCloser, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("backend: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backend: %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(snippet)}
	}
	return resp.Body, nil
}

// postMultipart uploads an audio blob plus form fields and decodes the JSON
// response into out.
func (c *Client) postMultipart(ctx context.Context, path string, audio []byte, fields map[string]string, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("audio", "recording.webm")
	if err != nil {
		return fmt.Errorf("backend: create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return fmt.Errorf("backend: write audio part: %w", err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("backend: write field %q: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("backend: close multipart: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(httpReq, out)
}

// do executes the request and decodes a JSON response into out (if non-nil).
// Any non-2xx status is converted to a [StatusError].
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(snippet)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: decode response: %w", err)
	}
	return nil
}
