package synthesis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"voxstudio/internal/audio"
	"voxstudio/pkg/logger"
	"voxstudio/pkg/model"
)

// DefaultMaxReference is the reference length above which a warning is raised
const DefaultMaxReference = 10 * time.Second

// Clip is an encoded speaker reference
type Clip struct {
	Data   []byte
	Format string // file extension, "wav" or "mp3"
}

// Embedder derives a speaker embedding from a reference clip
type Embedder struct {
	maxReference time.Duration
}

func NewEmbedder(maxReference time.Duration) *Embedder {
	if maxReference <= 0 {
		maxReference = DefaultMaxReference
	}
	return &Embedder{maxReference: maxReference}
}

// Embed decodes the clip and asks the model for its speaker embedding. Clips
// longer than the reference limit are still used; the returned warnings say
// so.
func (e *Embedder) Embed(ctx context.Context, m Model, clip Clip) (Embedding, []string, error) {
	waveform, err := audio.Decode(clip.Data, clip.Format)
	if err != nil {
		return nil, nil, model.ValidationError("decode_reference", err)
	}

	var warnings []string
	if d := waveform.Duration(); d > e.maxReference {
		warnings = append(warnings, fmt.Sprintf(
			"Audio is longer than %d seconds; processing may be slow.", int(e.maxReference.Seconds())))
		logger.Warn("Reference clip exceeds recommended length",
			zap.Duration("duration", d),
			zap.Duration("limit", e.maxReference))
	}

	embedding, err := m.MakeSpeakerEmbedding(ctx, waveform)
	if err != nil {
		return nil, warnings, model.ModelError("speaker_embedding", err)
	}
	if len(embedding) == 0 {
		return nil, warnings, model.ModelError("speaker_embedding", fmt.Errorf("model returned an empty embedding"))
	}

	return embedding, warnings, nil
}
