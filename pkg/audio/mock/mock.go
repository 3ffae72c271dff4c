// Package mock provides scripted capture devices and players for tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/linguaworlds/linguaworlds/pkg/audio"
)

// Device is a scriptable [audio.CaptureDevice].
type Device struct {
	mu sync.Mutex

	// OpenErr, when set, makes Open fail (simulating a denied permission or
	// missing microphone).
	OpenErr error

	// ChunkScript is delivered on each opened session's Chunks channel, one
	// element per chunk, then the channel is closed.
	ChunkScript [][]byte

	// LevelScript is delivered on each session's Levels channel.
	LevelScript []audio.Level

	// MIMEType reported by Open. Defaults to the first preferred entry.
	MIMEType string

	sessions []*Session
}

var _ audio.CaptureDevice = (*Device)(nil)

// Open returns a new scripted session.
func (d *Device) Open(_ context.Context, preferred []string) (audio.CaptureSession, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.OpenErr != nil {
		return nil, "", d.OpenErr
	}
	mime := d.MIMEType
	if mime == "" && len(preferred) > 0 {
		mime = preferred[0]
	}

	s := &Session{
		chunks: make(chan []byte, len(d.ChunkScript)+1),
		levels: make(chan audio.Level, len(d.LevelScript)+1),
	}
	for _, c := range d.ChunkScript {
		s.chunks <- c
	}
	for _, l := range d.LevelScript {
		s.levels <- l
	}
	close(s.chunks)
	close(s.levels)

	d.sessions = append(d.sessions, s)
	return s, mime, nil
}

// Sessions returns every session opened so far.
func (d *Device) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Session(nil), d.sessions...)
}

// Session is the capture session produced by [Device].
type Session struct {
	mu     sync.Mutex
	chunks chan []byte
	levels chan audio.Level
	closed bool
}

var _ audio.CaptureSession = (*Session)(nil)

func (s *Session) Chunks() <-chan []byte      { return s.chunks }
func (s *Session) Levels() <-chan audio.Level { return s.levels }

// Close marks the session's tracks as released.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called — i.e., the device tracks were
// released.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Player is a scriptable [audio.Player]. Each Play returns a handle whose
// Done channel is resolved according to the script.
type Player struct {
	mu sync.Mutex

	// PlayErr, when set, makes Play fail outright.
	PlayErr error

	// AutoFinish, when true (the default via NewPlayer), resolves each
	// playback immediately with nil, modeling instant natural end.
	AutoFinish bool

	handles []*Handle
	played  [][]byte
}

var _ audio.Player = (*Player)(nil)

// NewPlayer returns a Player whose playbacks finish immediately.
func NewPlayer() *Player {
	return &Player{AutoFinish: true}
}

// Play records the blob and returns a scripted handle.
func (p *Player) Play(_ context.Context, blob []byte) (audio.PlaybackHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.PlayErr != nil {
		return nil, p.PlayErr
	}
	h := &Handle{done: make(chan error, 1)}
	if p.AutoFinish {
		h.done <- nil
	}
	p.handles = append(p.handles, h)
	p.played = append(p.played, append([]byte(nil), blob...))
	return h, nil
}

// Played returns the blobs played so far.
func (p *Player) Played() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.played...)
}

// Handles returns the handles created so far.
func (p *Player) Handles() []*Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Handle(nil), p.handles...)
}

// Handle is the playback handle produced by [Player].
type Handle struct {
	mu      sync.Mutex
	done    chan error
	stopped bool
}

var _ audio.PlaybackHandle = (*Handle)(nil)

func (h *Handle) Done() <-chan error { return h.done }

// Stop resolves Done with context.Canceled on first call.
func (h *Handle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	select {
	case h.done <- context.Canceled:
	default:
	}
}

// Stopped reports whether Stop was called.
func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Finish resolves Done with err, modeling natural end (nil) or a playback
// error. Only meaningful when the owning Player has AutoFinish disabled.
func (h *Handle) Finish(err error) {
	select {
	case h.done <- err:
	default:
	}
}

// ErrNoDevice is a convenience error for scripting device failures.
var ErrNoDevice = errors.New("no capture device available")
