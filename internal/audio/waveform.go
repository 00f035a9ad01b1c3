// Package audio converts between encoded clips and float32 waveforms.
package audio

import (
	"errors"
	"time"
)

// Waveform is interleaved float32 PCM in [-1, 1]
type Waveform struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

var ErrEmptyWaveform = errors.New("audio: empty waveform")

// Frames is the number of samples per channel
func (w Waveform) Frames() int {
	if w.Channels <= 0 {
		return 0
	}
	return len(w.Samples) / w.Channels
}

// Duration is the playback length of the waveform
func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(w.Frames()) / float64(w.SampleRate) * float64(time.Second))
}

// Validate rejects waveforms that cannot be encoded or embedded
func (w Waveform) Validate() error {
	if w.SampleRate <= 0 {
		return errors.New("audio: sample rate must be positive")
	}
	if w.Channels <= 0 {
		return errors.New("audio: channel count must be positive")
	}
	if len(w.Samples) == 0 {
		return ErrEmptyWaveform
	}
	if len(w.Samples)%w.Channels != 0 {
		return errors.New("audio: sample count not aligned to channel count")
	}
	return nil
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
