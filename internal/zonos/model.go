package zonos

import (
	"context"
	"errors"
	"fmt"

	"voxstudio/internal/audio"
	"voxstudio/internal/synthesis"
)

// Model is a model loaded on the server
type Model struct {
	client *Client
	id     string
	info   synthesis.Info
}

func (m *Model) Info() synthesis.Info {
	return m.info
}

type embeddingRequest struct {
	ModelID      string    `json:"model_id"`
	SamplingRate int       `json:"sampling_rate"`
	Channels     int       `json:"channels"`
	Samples      []float32 `json:"samples"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (m *Model) MakeSpeakerEmbedding(ctx context.Context, clip audio.Waveform) (synthesis.Embedding, error) {
	var resp embeddingResponse
	err := m.client.post(ctx, embeddingEndpoint, embeddingRequest{
		ModelID:      m.id,
		SamplingRate: clip.SampleRate,
		Channels:     clip.Channels,
		Samples:      clip.Samples,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return synthesis.Embedding(resp.Embedding), nil
}

type conditioningRequest struct {
	ModelID  string    `json:"model_id"`
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Speaker  []float32 `json:"speaker"`
}

type conditioningResponse struct {
	ConditioningID string `json:"conditioning_id"`
}

func (m *Model) PrepareConditioning(ctx context.Context, input synthesis.ConditioningInput) (synthesis.Conditioning, error) {
	var resp conditioningResponse
	err := m.client.post(ctx, conditioningEndpoint, conditioningRequest{
		ModelID:  m.id,
		Text:     input.Text,
		Language: input.Language,
		Speaker:  input.Speaker,
	}, &resp)
	if err != nil {
		return synthesis.Conditioning{}, err
	}
	if resp.ConditioningID == "" {
		return synthesis.Conditioning{}, errors.New("zonos: conditioning response carries no conditioning_id")
	}
	return synthesis.Conditioning{ID: resp.ConditioningID}, nil
}

type generateRequest struct {
	ModelID        string `json:"model_id"`
	ConditioningID string `json:"conditioning_id"`
}

type codesPayload struct {
	Codebooks int   `json:"codebooks"`
	Frames    int   `json:"frames"`
	Codes     []int `json:"codes"`
}

func (m *Model) Generate(ctx context.Context, cond synthesis.Conditioning) (synthesis.SpeechCodes, error) {
	var resp codesPayload
	err := m.client.post(ctx, generateEndpoint, generateRequest{
		ModelID:        m.id,
		ConditioningID: cond.ID,
	}, &resp)
	if err != nil {
		return synthesis.SpeechCodes{}, err
	}
	if resp.Codebooks*resp.Frames != len(resp.Codes) {
		return synthesis.SpeechCodes{}, fmt.Errorf("zonos: %d codes do not fill %d codebooks x %d frames",
			len(resp.Codes), resp.Codebooks, resp.Frames)
	}
	return synthesis.SpeechCodes{Codebooks: resp.Codebooks, Frames: resp.Frames, Codes: resp.Codes}, nil
}

type decodeRequest struct {
	ModelID string `json:"model_id"`
	codesPayload
}

type decodeResponse struct {
	SamplingRate int       `json:"sampling_rate"`
	Samples      []float32 `json:"samples"`
}

// Decode returns mono audio at the autoencoder's native sample rate
func (m *Model) Decode(ctx context.Context, codes synthesis.SpeechCodes) (audio.Waveform, error) {
	var resp decodeResponse
	err := m.client.post(ctx, decodeEndpoint, decodeRequest{
		ModelID:      m.id,
		codesPayload: codesPayload{Codebooks: codes.Codebooks, Frames: codes.Frames, Codes: codes.Codes},
	}, &resp)
	if err != nil {
		return audio.Waveform{}, err
	}

	rate := resp.SamplingRate
	if rate == 0 {
		rate = m.info.SampleRate
	}
	return audio.Waveform{SampleRate: rate, Channels: 1, Samples: resp.Samples}, nil
}
