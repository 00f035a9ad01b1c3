package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

var ErrUnsupportedFormat = errors.New("audio: unsupported format")

// Decode reads a wav or mp3 clip into a waveform. format is the file
// extension without the dot.
func Decode(data []byte, format string) (Waveform, error) {
	switch strings.ToLower(format) {
	case "wav":
		return DecodeWAV(data)
	case "mp3":
		return DecodeMP3(data)
	default:
		return Waveform{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// DecodeWAV decodes integer PCM WAV data of any bit depth
func DecodeWAV(data []byte) (Waveform, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Waveform{}, errors.New("audio: invalid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Waveform{}, fmt.Errorf("audio: decode WAV: %w", err)
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return Waveform{}, fmt.Errorf("audio: unsupported WAV bit depth %d", bitDepth)
	}

	// 8-bit WAV is unsigned; wider depths are signed.
	scale := float32(int64(1) << (bitDepth - 1))
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}

	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = clamp(float32(s-offset) / scale)
	}

	w := Waveform{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		Samples:    samples,
	}
	return w, w.Validate()
}

// DecodeMP3 decodes an mp3 clip. go-mp3 always yields 16-bit stereo.
func DecodeMP3(data []byte) (Waveform, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Waveform{}, fmt.Errorf("audio: decode MP3: %w", err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return Waveform{}, fmt.Errorf("audio: read MP3 samples: %w", err)
	}

	const channels = 2
	n := len(pcm) / 2
	n -= n % channels
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(s) / 32768
	}

	w := Waveform{
		SampleRate: dec.SampleRate(),
		Channels:   channels,
		Samples:    samples,
	}
	return w, w.Validate()
}
