package audio

import (
	"context"
	"errors"
)

// ErrNoCaptureDevice is returned by [NopDevice] for every open attempt.
var ErrNoCaptureDevice = errors.New("audio: no capture device configured")

// NopDevice is a CaptureDevice for deployments without microphone access.
// Every Open fails, so recording paths degrade the way a denied permission
// does.
type NopDevice struct{}

func (NopDevice) Open(context.Context, []string) (CaptureSession, string, error) {
	return nil, "", ErrNoCaptureDevice
}

var _ CaptureDevice = NopDevice{}

// NopPlayer is a Player that treats every blob as already played: the handle
// completes immediately with no error. Useful for headless deployments where
// synthesized audio is delivered to clients out of band.
type NopPlayer struct{}

func (NopPlayer) Play(context.Context, []byte) (PlaybackHandle, error) {
	done := make(chan error, 1)
	done <- nil // natural playback end, delivered exactly once
	return nopHandle{done: done}, nil
}

var _ Player = NopPlayer{}

type nopHandle struct {
	done chan error
}

func (h nopHandle) Done() <-chan error { return h.done }
func (nopHandle) Stop()                {}
