package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voxstudio/internal/audio"
	"voxstudio/internal/queue"
	"voxstudio/internal/storage"
	"voxstudio/pkg/logger"
	"voxstudio/pkg/model"
)

const (
	TranscriptFileName    = "transcription.txt"
	TranscriptContentType = "text/plain; charset=utf-8"
	SpeechFileName        = "generated_speech.wav"
	SpeechContentType     = "audio/wav"
)

// Presenter turns finished runs into stored artifacts and cached views, and
// keeps the run journal and event stream informed. Journal and events are
// optional; a failure there is logged and never fails the run.
type Presenter struct {
	artifacts  ArtifactStore
	views      ViewStore
	journal    RunJournal
	events     EventPublisher
	scratchDir string
}

func NewPresenter(artifacts ArtifactStore, views ViewStore, journal RunJournal, events EventPublisher, scratchDir string) *Presenter {
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	return &Presenter{
		artifacts:  artifacts,
		views:      views,
		journal:    journal,
		events:     events,
		scratchDir: scratchDir,
	}
}

// Begin opens a new run
func (p *Presenter) Begin(ctx context.Context, flow model.Flow) *model.Run {
	run := model.NewRun(uuid.New().String(), flow)

	if p.journal != nil {
		if err := p.journal.CreateRun(ctx, run); err != nil {
			logger.Error("Failed to journal run", zap.String("run_id", run.ID), zap.Error(err))
		}
	}

	logger.Info("Run started", zap.String("run_id", run.ID), zap.String("flow", string(flow)))
	return run
}

// PresentTranscript stores the transcript as transcription.txt
func (p *Presenter) PresentTranscript(ctx context.Context, run *model.Run, text string) (*model.RunView, error) {
	data := []byte(text)
	artifact := &model.Artifact{
		Key:         storage.ArtifactKey(run.ID, TranscriptFileName),
		FileName:    TranscriptFileName,
		ContentType: TranscriptContentType,
		Size:        int64(len(data)),
	}

	if err := p.artifacts.Put(ctx, artifact.Key, bytes.NewReader(data), artifact.Size, artifact.ContentType); err != nil {
		return nil, fmt.Errorf("failed to store transcript: %w", err)
	}

	return p.complete(ctx, run, artifact, nil)
}

// PresentSpeech encodes the waveform as 16-bit WAV in a per-run scratch file
// and stores it as generated_speech.wav
func (p *Presenter) PresentSpeech(ctx context.Context, run *model.Run, wave audio.Waveform, warnings []string) (*model.RunView, error) {
	file, err := os.CreateTemp(p.scratchDir, run.ID+"-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		file.Close()
		if err := os.Remove(file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Failed to remove output file", zap.String("path", file.Name()), zap.Error(err))
		}
	}()

	if err := audio.EncodeWAV(file, wave); err != nil {
		return nil, fmt.Errorf("failed to encode speech: %w", err)
	}

	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to size output file: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind output file: %w", err)
	}

	artifact := &model.Artifact{
		Key:         storage.ArtifactKey(run.ID, SpeechFileName),
		FileName:    SpeechFileName,
		ContentType: SpeechContentType,
		Size:        size,
	}
	if err := p.artifacts.Put(ctx, artifact.Key, file, size, artifact.ContentType); err != nil {
		return nil, fmt.Errorf("failed to store speech: %w", err)
	}

	run.Meta["sample_rate"] = wave.SampleRate
	run.Meta["audio_seconds"] = wave.Duration().Seconds()
	return p.complete(ctx, run, artifact, warnings)
}

func (p *Presenter) complete(ctx context.Context, run *model.Run, artifact *model.Artifact, warnings []string) (*model.RunView, error) {
	run.SetCompleted()

	view := &model.RunView{
		ID:        run.ID,
		Flow:      run.Flow,
		Status:    run.Status,
		Artifact:  artifact,
		Warnings:  warnings,
		CreatedAt: run.CreatedAt,
	}
	if err := p.views.Save(ctx, view); err != nil {
		// Without a view nothing can reach the artifact.
		if delErr := p.artifacts.Delete(ctx, artifact.Key); delErr != nil {
			logger.Warn("Failed to delete orphaned artifact", zap.String("key", artifact.Key), zap.Error(delErr))
		}
		return nil, err
	}

	p.finish(ctx, run, artifact.Key, warnings)

	logger.Info("Run completed",
		zap.String("run_id", run.ID),
		zap.String("flow", string(run.Flow)),
		zap.String("artifact", artifact.Key),
		zap.Duration("elapsed", run.Elapsed()))

	return view, nil
}

// Fail marks the run failed and passes err through unchanged
func (p *Presenter) Fail(ctx context.Context, run *model.Run, err error) error {
	run.SetError(err)

	logger.Error("Run failed",
		zap.String("run_id", run.ID),
		zap.String("flow", string(run.Flow)),
		zap.String("kind", string(model.KindOf(err))),
		zap.String("stage", model.StageOf(err)),
		zap.Error(err))

	p.finish(ctx, run, "", nil)
	return err
}

// finish records the final state even when the caller has gone away
func (p *Presenter) finish(ctx context.Context, run *model.Run, artifactKey string, warnings []string) {
	ctx = context.WithoutCancel(ctx)

	if p.journal != nil {
		if err := p.journal.UpdateRun(ctx, run); err != nil {
			logger.Error("Failed to update run journal", zap.String("run_id", run.ID), zap.Error(err))
		}
	}

	if p.events != nil {
		if err := p.events.PublishRunEvent(ctx, queue.NewRunEvent(run, artifactKey, warnings)); err != nil {
			logger.Error("Failed to publish run event", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
}
