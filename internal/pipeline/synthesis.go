package pipeline

import (
	"context"

	"voxstudio/internal/ingest"
	"voxstudio/internal/synthesis"
	"voxstudio/pkg/model"
)

// SynthesisRequest is one voice-cloned text-to-speech request
type SynthesisRequest struct {
	Text      string
	Language  string
	Reference ingest.Upload
}

// SynthesisResult is what a front end shows after a successful run
type SynthesisResult struct {
	RunID        string
	SampleRate   int
	AudioSeconds float64
	Warnings     []string
	View         *model.RunView
}

// SynthesisPipeline runs model loading, speaker embedding, conditioning,
// generation and presentation. The loader is shared across runs.
type SynthesisPipeline struct {
	ingestor  *ingest.Ingestor
	loader    ModelLoader
	embedder  *synthesis.Embedder
	generator *synthesis.Generator
	presenter *Presenter
}

func NewSynthesisPipeline(
	ingestor *ingest.Ingestor,
	loader ModelLoader,
	embedder *synthesis.Embedder,
	generator *synthesis.Generator,
	presenter *Presenter,
) *SynthesisPipeline {
	return &SynthesisPipeline{
		ingestor:  ingestor,
		loader:    loader,
		embedder:  embedder,
		generator: generator,
		presenter: presenter,
	}
}

// Check validates text, language and the reference upload before any work
// is started
func (p *SynthesisPipeline) Check(req SynthesisRequest) error {
	if err := synthesis.CheckText(req.Text); err != nil {
		return err
	}
	if _, err := synthesis.NormalizeLanguage(req.Language); err != nil {
		return err
	}
	return p.ingestor.Check(req.Reference)
}

// Run synthesizes req.Text in the voice of the reference clip. Blank text
// and unknown languages are rejected before the model is touched.
func (p *SynthesisPipeline) Run(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	run := p.presenter.Begin(ctx, model.FlowSynthesis)
	run.Meta["reference_file"] = req.Reference.FileName
	run.Meta["text_length"] = len(req.Text)

	if err := synthesis.CheckText(req.Text); err != nil {
		return nil, p.presenter.Fail(ctx, run, err)
	}
	language, err := synthesis.NormalizeLanguage(req.Language)
	if err != nil {
		return nil, p.presenter.Fail(ctx, run, err)
	}
	run.Meta["language"] = language

	scratch, err := p.ingestor.Accept(run.ID, req.Reference)
	if err != nil {
		return nil, p.presenter.Fail(ctx, run, err)
	}
	defer removeScratch(run.ID, scratch)

	clip, err := scratch.ReadAll()
	if err != nil {
		return nil, p.presenter.Fail(ctx, run, model.NewRunError(model.ErrorKindInternal, "ingest", err))
	}

	m, err := p.loader.Load(ctx)
	if err != nil {
		return nil, p.presenter.Fail(ctx, run, err)
	}

	embedding, warnings, err := p.embedder.Embed(ctx, m, synthesis.Clip{Data: clip, Format: scratch.Format})
	if err != nil {
		return nil, p.presenter.Fail(ctx, run, err)
	}

	input, err := synthesis.BuildConditioning(req.Text, embedding, language)
	if err != nil {
		return nil, p.presenter.Fail(ctx, run, err)
	}

	wave, err := p.generator.Generate(ctx, m, input)
	if err != nil {
		return nil, p.presenter.Fail(ctx, run, err)
	}

	view, err := p.presenter.PresentSpeech(ctx, run, wave, warnings)
	if err != nil {
		return nil, p.presenter.Fail(ctx, run, model.NewRunError(model.ErrorKindInternal, "present", err))
	}

	return &SynthesisResult{
		RunID:        run.ID,
		SampleRate:   wave.SampleRate,
		AudioSeconds: wave.Duration().Seconds(),
		Warnings:     warnings,
		View:         view,
	}, nil
}
