package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"voxstudio/internal/audio"
	"voxstudio/pkg/logger"
	"voxstudio/pkg/model"
)

var (
	ErrEmptyText           = errors.New("please enter some text to synthesize")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// CheckText rejects blank synthesis text
func CheckText(text string) error {
	if strings.TrimSpace(text) == "" {
		return model.ValidationError("conditioning", ErrEmptyText)
	}
	return nil
}

// NormalizeLanguage lower-cases and validates a language code. An empty
// code selects DefaultLanguage.
func NormalizeLanguage(language string) (string, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		return DefaultLanguage, nil
	}
	if !IsSupportedLanguage(language) {
		return "", model.ValidationError("conditioning",
			fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language))
	}
	return language, nil
}

// BuildConditioning validates the text and language and packs them with the
// speaker embedding.
func BuildConditioning(text string, speaker Embedding, language string) (ConditioningInput, error) {
	if err := CheckText(text); err != nil {
		return ConditioningInput{}, err
	}

	language, err := NormalizeLanguage(language)
	if err != nil {
		return ConditioningInput{}, err
	}

	if len(speaker) == 0 {
		return ConditioningInput{}, model.ValidationError("conditioning", errors.New("missing speaker embedding"))
	}

	return ConditioningInput{
		Text:     text,
		Speaker:  speaker,
		Language: language,
	}, nil
}

// Generator turns conditioning into a decoded waveform
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate runs conditioning, code generation and decoding as one blocking
// call. Any failure aborts the run with a model error.
func (g *Generator) Generate(ctx context.Context, m Model, input ConditioningInput) (audio.Waveform, error) {
	start := time.Now()

	cond, err := m.PrepareConditioning(ctx, input)
	if err != nil {
		return audio.Waveform{}, model.ModelError("prepare_conditioning", err)
	}

	codes, err := m.Generate(ctx, cond)
	if err != nil {
		return audio.Waveform{}, model.ModelError("generate", err)
	}
	if len(codes.Codes) == 0 {
		return audio.Waveform{}, model.ModelError("generate", errors.New("model produced no speech codes"))
	}

	waveform, err := m.Decode(ctx, codes)
	if err != nil {
		return audio.Waveform{}, model.ModelError("decode", err)
	}
	if err := waveform.Validate(); err != nil {
		return audio.Waveform{}, model.ModelError("decode", err)
	}

	logger.Info("Speech generated",
		zap.String("language", input.Language),
		zap.Int("frames", codes.Frames),
		zap.Int("sample_rate", waveform.SampleRate),
		zap.Duration("audio", waveform.Duration()),
		zap.Duration("took", time.Since(start)))

	return waveform, nil
}
