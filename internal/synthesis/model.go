// Package synthesis runs voice-cloned text-to-speech: it loads the speech
// model once, turns a reference clip into a speaker embedding, builds the
// conditioning and generates a waveform.
package synthesis

import (
	"context"

	"voxstudio/internal/audio"
)

// Embedding is a speaker identity vector derived from a reference clip
type Embedding []float32

// ConditioningInput is what the model is conditioned on for one utterance
type ConditioningInput struct {
	Text     string
	Speaker  Embedding
	Language string
}

// Conditioning is an opaque handle to prepared conditioning held by the model
type Conditioning struct {
	ID string
}

// SpeechCodes are the discrete audio tokens produced by generation
type SpeechCodes struct {
	Codebooks int
	Frames    int
	Codes     []int
}

// Info describes a loaded model
type Info struct {
	Name       string
	Device     string
	SampleRate int
}

// Model is a loaded speech model. Implementations must be safe for
// concurrent use.
type Model interface {
	Info() Info
	MakeSpeakerEmbedding(ctx context.Context, clip audio.Waveform) (Embedding, error)
	PrepareConditioning(ctx context.Context, input ConditioningInput) (Conditioning, error)
	Generate(ctx context.Context, cond Conditioning) (SpeechCodes, error)
	Decode(ctx context.Context, codes SpeechCodes) (audio.Waveform, error)
}

// LoadFunc loads a model. It is called at most once per Loader.
type LoadFunc func(ctx context.Context) (Model, error)
