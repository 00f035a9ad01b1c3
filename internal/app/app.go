// Package app wires configuration into the pipelines shared by the HTTP
// server and the Telegram bot.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"voxstudio/internal/config"
	"voxstudio/internal/deepgram"
	"voxstudio/internal/httpapi"
	"voxstudio/internal/ingest"
	"voxstudio/internal/pipeline"
	"voxstudio/internal/queue"
	"voxstudio/internal/storage"
	"voxstudio/internal/synthesis"
	"voxstudio/internal/zonos"
	"voxstudio/pkg/cache"
	"voxstudio/pkg/logger"
)

// App holds the long-lived dependencies of one process
type App struct {
	Config    *config.Config
	Cache     *cache.RedisCache
	Views     *cache.RunViews
	Artifacts *storage.ArtifactStore

	// Transcription is always available. Synthesis is nil when disabled.
	Transcription *pipeline.TranscriptionPipeline
	Synthesis     *pipeline.SynthesisPipeline

	journal *storage.RunJournal
	events  *queue.RabbitMQ
}

// New connects to Redis, S3 and the optional journal and event bus, and
// builds both pipelines
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	redisCache, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
	if err != nil {
		return nil, err
	}
	a.Cache = redisCache
	a.Views = cache.NewRunViews(redisCache, cfg.Runs.ViewTTL)
	logger.Info("Redis connection established", zap.String("addr", cfg.Redis.Addr))

	a.Artifacts, err = storage.NewArtifactStore(ctx, storage.S3Options{
		Endpoint:  cfg.S3.Endpoint,
		Region:    cfg.S3.Region,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Bucket:    cfg.S3.Bucket,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
	}

	var journal pipeline.RunJournal
	if cfg.Postgres.DSN != "" {
		a.journal, err = storage.NewRunJournal(ctx, cfg.Postgres.DSN, cfg.Postgres.MigrationsPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		journal = a.journal
	} else {
		logger.Warn("DATABASE_URL not set, run journal disabled")
	}

	var events pipeline.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		a.events, err = queue.NewRabbitMQ(cfg.RabbitMQ.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		events = a.events
	} else {
		logger.Warn("RABBITMQ_URL not set, run events disabled")
	}

	presenter := pipeline.NewPresenter(a.Artifacts, a.Views, journal, events, cfg.Ingest.ScratchDir)

	dg, err := deepgram.NewClient(
		cfg.Deepgram.APIKey,
		cfg.Deepgram.BaseURL,
		deepgram.DefaultOptions(cfg.Deepgram.Model, cfg.Deepgram.Language),
		cfg.Deepgram.ConnectTimeout,
		cfg.Deepgram.ReadTimeout,
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Transcription = pipeline.NewTranscriptionPipeline(
		ingest.NewIngestor(cfg.Ingest.ScratchDir, cfg.Ingest.MaxUploadBytes, ingest.TranscriptionFormats),
		dg,
		presenter,
	)

	if cfg.Synthesis.Disabled {
		logger.Warn("Synthesis disabled by configuration")
		return a, nil
	}

	loader, err := newModelLoader(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	maxReference := time.Duration(cfg.Synthesis.MaxReferenceSecs * float64(time.Second))
	a.Synthesis = pipeline.NewSynthesisPipeline(
		ingest.NewIngestor(cfg.Ingest.ScratchDir, cfg.Ingest.MaxUploadBytes, ingest.ReferenceFormats),
		loader,
		synthesis.NewEmbedder(maxReference),
		synthesis.NewGenerator(),
		presenter,
	)

	return a, nil
}

// newModelLoader checks eSpeak-NG and defers the model load to first use.
// A missing executable only disables synthesis: every load reports it.
func newModelLoader(cfg *config.Config) (*synthesis.Loader, error) {
	client, err := zonos.NewClient(cfg.Synthesis.ServerURL, zonos.WithTimeout(cfg.Synthesis.RequestTimeout))
	if err != nil {
		return nil, err
	}

	phonemizer, phonErr := synthesis.CheckPhonemizer(cfg.Synthesis.EspeakPath, cfg.Synthesis.EspeakLibrary)
	if phonErr != nil {
		logger.Error("eSpeak-NG executable not found, synthesis unavailable. Please install it.",
			zap.String("path", cfg.Synthesis.EspeakPath), zap.Error(phonErr))
	}

	load := client.LoadFunc(zonos.LoadOptions{
		Model:      cfg.Synthesis.Model,
		Device:     cfg.Synthesis.Device,
		Phonemizer: phonemizer,
	})

	return synthesis.NewLoader(func(ctx context.Context) (synthesis.Model, error) {
		if phonErr != nil {
			return nil, phonErr
		}
		return load(ctx)
	}), nil
}

// DebugInfo describes the synthesis environment
func (a *App) DebugInfo() httpapi.DebugInfo {
	return httpapi.DebugInfo{
		Device:        a.Config.Synthesis.Device,
		EspeakPath:    a.Config.Synthesis.EspeakPath,
		EspeakLibrary: a.Config.Synthesis.EspeakLibrary,
		Model:         a.Config.Synthesis.Model,
		ServerURL:     a.Config.Synthesis.ServerURL,
	}
}

// SynthesisRunner returns the synthesis pipeline as an interface value that
// is nil when synthesis is disabled
func (a *App) SynthesisRunner() httpapi.SynthesisRunner {
	if a.Synthesis == nil {
		return nil
	}
	return a.Synthesis
}

// RunHistory returns the run journal as an interface value that is nil when
// no database is configured
func (a *App) RunHistory() httpapi.RunHistory {
	if a.journal == nil {
		return nil
	}
	return a.journal
}

// Close releases every connection that was opened
func (a *App) Close() {
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			logger.Warn("Failed to close RabbitMQ", zap.Error(err))
		}
	}
	if a.journal != nil {
		a.journal.Close()
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			logger.Warn("Failed to close Redis", zap.Error(err))
		}
	}
}
