// Package pipeline runs the two user-triggered flows end to end: speech to
// text through Deepgram and voice-cloned text to speech through Zonos.
package pipeline

import (
	"context"
	"io"

	"voxstudio/internal/queue"
	"voxstudio/internal/synthesis"
	"voxstudio/pkg/model"
)

// Transcriber sends an audio file for recognition and returns the raw response
type Transcriber interface {
	Transcribe(ctx context.Context, filePath string) ([]byte, error)
}

// ModelLoader hands out the process-wide speech model
type ModelLoader interface {
	Load(ctx context.Context) (synthesis.Model, error)
}

// RunJournal records run metadata
type RunJournal interface {
	CreateRun(ctx context.Context, run *model.Run) error
	UpdateRun(ctx context.Context, run *model.Run) error
}

// ArtifactStore keeps downloadable results
type ArtifactStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// ViewStore caches finished run views
type ViewStore interface {
	Save(ctx context.Context, view *model.RunView) error
}

// EventPublisher announces finished runs
type EventPublisher interface {
	PublishRunEvent(ctx context.Context, event *queue.RunEvent) error
}
