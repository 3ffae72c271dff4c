// Package audio defines the capture and playback abstractions the voice layer
// is built on. The concrete device behind these interfaces is platform glue
// (a browser MediaRecorder bridge, a desktop capture library); everything in
// this module programs against the interfaces so tests can use the mock
// implementations in the mock subpackage.
package audio

import "context"

// PreferredMIMETypes is the container preference order for new recordings.
// A capture device picks the first entry it supports.
var PreferredMIMETypes = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/ogg;codecs=opus",
	"audio/mp4",
}

// CaptureSession is one active microphone recording. Chunks arrive on the
// channel as the device produces them; the channel is closed when the session
// ends. Close must always release the underlying device tracks, whether or
// not any audio was captured.
//
// All methods must be safe for concurrent use.
type CaptureSession interface {
	// Chunks returns the channel delivering encoded audio chunks. Closed when
	// the session ends.
	Chunks() <-chan []byte

	// Levels returns the channel delivering live amplitude readings for UI
	// feedback. May be a nil channel when the device does not meter input.
	Levels() <-chan Level

	// Close stops capture and releases the device tracks. Safe to call more
	// than once.
	Close() error
}

// CaptureDevice opens microphone sessions.
type CaptureDevice interface {
	// Open requests device access and starts capturing using the first entry
	// of preferred the device supports. Returns the session and the chosen
	// MIME type. Permission and device failures are returned as errors.
	Open(ctx context.Context, preferred []string) (CaptureSession, string, error)
}

// PlaybackHandle is one in-flight audio playback.
type PlaybackHandle interface {
	// Done returns a channel that receives exactly one value when playback
	// finishes: nil on natural end, an error on playback failure or stop.
	Done() <-chan error

	// Stop interrupts playback immediately. Done then yields
	// [context.Canceled]. Safe to call more than once.
	Stop()
}

// Player decodes and plays encoded audio blobs.
type Player interface {
	// Play starts playback of blob. The caller is responsible for stopping any
	// previous playback first; implementations do not queue.
	Play(ctx context.Context, blob []byte) (PlaybackHandle, error)
}
