package voice

import "github.com/linguaworlds/linguaworlds/pkg/audio"

// Events receives fire-and-forget notifications from a [Manager]. There is at
// most one subscriber, set at construction; callbacks must not block. Embed
// [NopEvents] to implement only the hooks you care about.
type Events interface {
	// PlaybackStarted fires when audio playback for text begins.
	PlaybackStarted(text string)

	// PlaybackEnded fires when playback finishes or is stopped.
	PlaybackEnded(text string)

	// RecordingLevel fires with live amplitude readings while recording.
	RecordingLevel(level audio.Level)

	// Error fires when a device or backend operation fails. stage names the
	// failed operation (e.g., "record", "transcribe", "speak").
	Error(stage string, err error)
}

// NopEvents is an [Events] implementation that ignores everything.
type NopEvents struct{}

func (NopEvents) PlaybackStarted(string)      {}
func (NopEvents) PlaybackEnded(string)        {}
func (NopEvents) RecordingLevel(audio.Level)  {}
func (NopEvents) Error(string, error)         {}

var _ Events = NopEvents{}
