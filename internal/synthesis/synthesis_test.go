package synthesis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voxstudio/internal/audio"
	"voxstudio/pkg/model"
)

// MockModel is a mock implementation of Model
type MockModel struct {
	mock.Mock
}

func (m *MockModel) Info() Info {
	return Info{Name: "test-model", Device: "cpu", SampleRate: 44100}
}

func (m *MockModel) MakeSpeakerEmbedding(ctx context.Context, clip audio.Waveform) (Embedding, error) {
	args := m.Called(ctx, clip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Embedding), args.Error(1)
}

func (m *MockModel) PrepareConditioning(ctx context.Context, input ConditioningInput) (Conditioning, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(Conditioning), args.Error(1)
}

func (m *MockModel) Generate(ctx context.Context, cond Conditioning) (SpeechCodes, error) {
	args := m.Called(ctx, cond)
	return args.Get(0).(SpeechCodes), args.Error(1)
}

func (m *MockModel) Decode(ctx context.Context, codes SpeechCodes) (audio.Waveform, error) {
	args := m.Called(ctx, codes)
	return args.Get(0).(audio.Waveform), args.Error(1)
}

func wavClip(t *testing.T, seconds float64, rate int) Clip {
	t.Helper()

	w := audio.Waveform{
		SampleRate: rate,
		Channels:   1,
		Samples:    make([]float32, int(seconds*float64(rate))),
	}
	for i := range w.Samples {
		w.Samples[i] = 0.1
	}

	path := filepath.Join(t.TempDir(), "ref.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, audio.EncodeWAV(f, w))
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return Clip{Data: data, Format: "wav"}
}

func TestLoader_LoadsOnce(t *testing.T) {
	calls := 0
	m := &MockModel{}
	loader := NewLoader(func(ctx context.Context) (Model, error) {
		calls++
		return m, nil
	})

	var wg sync.WaitGroup
	results := make([]Model, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := loader.Load(context.Background())
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
	for _, got := range results {
		assert.Same(t, m, got)
	}
}

func TestLoader_MemoizesFailure(t *testing.T) {
	calls := 0
	loader := NewLoader(func(ctx context.Context) (Model, error) {
		calls++
		return nil, errors.New("weights not found")
	})

	_, err := loader.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.ErrorKindModel, model.KindOf(err))

	_, err2 := loader.Load(context.Background())
	assert.Same(t, err, err2)
	assert.Equal(t, 1, calls)
}

func TestLoader_CancelledCallerDoesNotPoisonLoad(t *testing.T) {
	calls := 0
	m := &MockModel{}
	loader := NewLoader(func(ctx context.Context) (Model, error) {
		calls++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return m, nil
	})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := loader.Load(cancelled)
	require.NoError(t, err)
	assert.Same(t, m, got)

	got, err = loader.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, m, got)
	assert.Equal(t, 1, calls)
}

func TestLoader_NilModelIsError(t *testing.T) {
	loader := NewLoader(func(ctx context.Context) (Model, error) {
		return nil, nil
	})

	_, err := loader.Load(context.Background())
	assert.Equal(t, model.ErrorKindModel, model.KindOf(err))

	_, err = NewLoader(nil).Load(context.Background())
	assert.Equal(t, model.ErrorKindModel, model.KindOf(err))
}

func TestEmbedder_ShortClip(t *testing.T) {
	m := &MockModel{}
	m.On("MakeSpeakerEmbedding", mock.Anything, mock.MatchedBy(func(w audio.Waveform) bool {
		return w.SampleRate == 16000 && w.Duration() == 2*time.Second
	})).Return(Embedding{0.1, 0.2}, nil)

	emb, warnings, err := NewEmbedder(0).Embed(context.Background(), m, wavClip(t, 2, 16000))

	require.NoError(t, err)
	assert.Equal(t, Embedding{0.1, 0.2}, emb)
	assert.Empty(t, warnings)
	m.AssertExpectations(t)
}

func TestEmbedder_LongClipWarnsButEmbeds(t *testing.T) {
	m := &MockModel{}
	m.On("MakeSpeakerEmbedding", mock.Anything, mock.Anything).Return(Embedding{0.3}, nil)

	emb, warnings, err := NewEmbedder(10*time.Second).Embed(context.Background(), m, wavClip(t, 12, 8000))

	require.NoError(t, err)
	assert.Equal(t, Embedding{0.3}, emb)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "longer than 10 seconds")
	m.AssertExpectations(t)
}

func TestEmbedder_Errors(t *testing.T) {
	t.Run("undecodable clip", func(t *testing.T) {
		m := &MockModel{}
		_, _, err := NewEmbedder(0).Embed(context.Background(), m, Clip{Data: []byte("junk"), Format: "wav"})

		assert.Equal(t, model.ErrorKindValidation, model.KindOf(err))
		m.AssertNotCalled(t, "MakeSpeakerEmbedding", mock.Anything, mock.Anything)
	})

	t.Run("model failure", func(t *testing.T) {
		m := &MockModel{}
		m.On("MakeSpeakerEmbedding", mock.Anything, mock.Anything).Return(nil, errors.New("cuda oom"))

		_, _, err := NewEmbedder(0).Embed(context.Background(), m, wavClip(t, 1, 8000))

		assert.Equal(t, model.ErrorKindModel, model.KindOf(err))
		assert.Equal(t, "speaker_embedding", model.StageOf(err))
	})
}

func TestBuildConditioning(t *testing.T) {
	speaker := Embedding{1, 2, 3}

	tests := []struct {
		name     string
		text     string
		language string
		wantLang string
		wantErr  error
	}{
		{"default language", "Hello, world!", "", "en-us", nil},
		{"explicit language", "Hola", "es", "es", nil},
		{"case insensitive", "Bonjour", " FR ", "fr", nil},
		{"blank text", "   \n", "en-us", "", ErrEmptyText},
		{"unknown language", "Hallo", "nl", "", ErrUnsupportedLanguage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := BuildConditioning(tt.text, speaker, tt.language)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, model.ErrorKindValidation, model.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLang, input.Language)
			assert.Equal(t, tt.text, input.Text)
			assert.Equal(t, speaker, input.Speaker)
		})
	}
}

func TestGenerator_Generate(t *testing.T) {
	input := ConditioningInput{Text: "Hello", Speaker: Embedding{1}, Language: "en-us"}
	cond := Conditioning{ID: "cond-1"}
	codes := SpeechCodes{Codebooks: 2, Frames: 2, Codes: []int{1, 2, 3, 4}}
	wave := audio.Waveform{SampleRate: 44100, Channels: 1, Samples: []float32{0, 0.1, 0.2}}

	m := &MockModel{}
	m.On("PrepareConditioning", mock.Anything, input).Return(cond, nil)
	m.On("Generate", mock.Anything, cond).Return(codes, nil)
	m.On("Decode", mock.Anything, codes).Return(wave, nil)

	got, err := NewGenerator().Generate(context.Background(), m, input)

	require.NoError(t, err)
	assert.Equal(t, wave, got)
	m.AssertExpectations(t)
}

func TestGenerator_GenerateFailureStopsPipeline(t *testing.T) {
	input := ConditioningInput{Text: "Hello", Speaker: Embedding{1}, Language: "en-us"}
	cond := Conditioning{ID: "cond-1"}

	m := &MockModel{}
	m.On("PrepareConditioning", mock.Anything, input).Return(cond, nil)
	m.On("Generate", mock.Anything, cond).Return(SpeechCodes{}, errors.New("sampling failed"))

	_, err := NewGenerator().Generate(context.Background(), m, input)

	assert.Equal(t, model.ErrorKindModel, model.KindOf(err))
	assert.Equal(t, "generate", model.StageOf(err))
	m.AssertNotCalled(t, "Decode", mock.Anything, mock.Anything)
}

func TestCheckPhonemizer(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "espeak-ng")
	lib := filepath.Join(dir, "libespeak-ng.so")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(lib, []byte{}, 0o644))

	p, err := CheckPhonemizer(exe, lib)
	require.NoError(t, err)
	assert.Equal(t, Phonemizer{Path: exe, Library: lib}, p)

	p, err = CheckPhonemizer(exe, filepath.Join(dir, "missing.so"))
	require.NoError(t, err)
	assert.Empty(t, p.Library)

	_, err = CheckPhonemizer(filepath.Join(dir, "missing"), lib)
	assert.ErrorIs(t, err, ErrEspeakNotFound)
}

func TestLanguages(t *testing.T) {
	assert.Equal(t, DefaultLanguage, Languages[0].Code)
	assert.Equal(t, "de", LanguageCodes()["German"])
	assert.True(t, IsSupportedLanguage("it"))
	assert.False(t, IsSupportedLanguage("English (US)"))
}
