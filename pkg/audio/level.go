package audio

import "math"

// Level is one amplitude reading over a capture frame, used to drive
// recording UI (a pulsing mic indicator, a waveform bar).
type Level struct {
	// Average is the RMS amplitude of the frame, normalised to [0, 1].
	Average float64

	// Peak is the largest absolute sample of the frame, normalised to [0, 1].
	Peak float64
}

// MeasureLevel computes the [Level] of a frame of little-endian 16-bit PCM.
// A frame shorter than one sample yields a zero Level. A trailing odd byte is
// ignored.
func MeasureLevel(pcm []byte) Level {
	n := len(pcm) / 2
	if n == 0 {
		return Level{}
	}

	var sumSquares float64
	var peak float64
	for i := 0; i < n; i++ {
		s := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		v := math.Abs(float64(s)) / 32768.0
		sumSquares += v * v
		if v > peak {
			peak = v
		}
	}

	return Level{
		Average: math.Sqrt(sumSquares / float64(n)),
		Peak:    peak,
	}
}
