package pipeline

import (
	"context"

	"go.uber.org/zap"

	"voxstudio/internal/ingest"
	"voxstudio/internal/transcript"
	"voxstudio/pkg/logger"
	"voxstudio/pkg/model"
)

// TranscriptionResult is what a front end shows after a successful run
type TranscriptionResult struct {
	RunID        string
	Transcript   string
	AudioSeconds float64
	View         *model.RunView
}

// TranscriptionPipeline runs ingest, recognition, extraction and
// presentation for one uploaded file
type TranscriptionPipeline struct {
	ingestor  *ingest.Ingestor
	client    Transcriber
	presenter *Presenter
}

func NewTranscriptionPipeline(ingestor *ingest.Ingestor, client Transcriber, presenter *Presenter) *TranscriptionPipeline {
	return &TranscriptionPipeline{
		ingestor:  ingestor,
		client:    client,
		presenter: presenter,
	}
}

// Check validates an upload before any work is started
func (p *TranscriptionPipeline) Check(upload ingest.Upload) error {
	return p.ingestor.Check(upload)
}

// Run transcribes one upload. Errors are run errors carrying their kind.
func (p *TranscriptionPipeline) Run(ctx context.Context, upload ingest.Upload) (*TranscriptionResult, error) {
	run := p.presenter.Begin(ctx, model.FlowTranscription)
	run.Meta["file_name"] = upload.FileName

	scratch, err := p.ingestor.Accept(run.ID, upload)
	if err != nil {
		return nil, p.presenter.Fail(ctx, run, err)
	}
	defer removeScratch(run.ID, scratch)
	run.Meta["file_size"] = scratch.Size

	raw, err := p.client.Transcribe(ctx, scratch.Path)
	if err != nil {
		return nil, p.presenter.Fail(ctx, run, err)
	}

	text, err := transcript.Extract(raw)
	if err != nil {
		return nil, p.presenter.Fail(ctx, run, err)
	}

	seconds := transcript.AudioDuration(raw)
	run.Meta["audio_seconds"] = seconds

	view, err := p.presenter.PresentTranscript(ctx, run, text)
	if err != nil {
		return nil, p.presenter.Fail(ctx, run, model.NewRunError(model.ErrorKindInternal, "present", err))
	}

	return &TranscriptionResult{
		RunID:        run.ID,
		Transcript:   text,
		AudioSeconds: seconds,
		View:         view,
	}, nil
}

func removeScratch(runID string, scratch *ingest.ScratchFile) {
	if err := scratch.Remove(); err != nil {
		logger.Warn("Failed to remove scratch file", zap.String("run_id", runID), zap.Error(err))
	}
}
