package audio

import (
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth  = 16
	wavPCMFormat = 1
)

// EncodeWAV writes the waveform as 16-bit PCM WAV. The encoder patches the
// header sizes on Close, so w must be seekable (a file in practice).
func EncodeWAV(w io.WriteSeeker, wf Waveform) error {
	if err := wf.Validate(); err != nil {
		return err
	}

	ints := make([]int, len(wf.Samples))
	for i, s := range wf.Samples {
		ints[i] = int(math.Round(float64(clamp(s)) * math.MaxInt16))
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: wf.Channels, SampleRate: wf.SampleRate},
		Data:           ints,
		SourceBitDepth: wavBitDepth,
	}

	enc := wav.NewEncoder(w, wf.SampleRate, wavBitDepth, wf.Channels, wavPCMFormat)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
