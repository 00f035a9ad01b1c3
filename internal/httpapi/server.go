// Package httpapi exposes both flows and run downloads over HTTP.
package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"voxstudio/internal/ingest"
	"voxstudio/internal/pipeline"
	"voxstudio/pkg/logger"
	"voxstudio/pkg/model"
)

// TranscriptionRunner runs Flow A
type TranscriptionRunner interface {
	Check(upload ingest.Upload) error
	Run(ctx context.Context, upload ingest.Upload) (*pipeline.TranscriptionResult, error)
}

// SynthesisRunner runs Flow B
type SynthesisRunner interface {
	Check(req pipeline.SynthesisRequest) error
	Run(ctx context.Context, req pipeline.SynthesisRequest) (*pipeline.SynthesisResult, error)
}

// RunViewReader looks up cached run views
type RunViewReader interface {
	Get(ctx context.Context, runID string) (*model.RunView, error)
}

// ArtifactReader opens stored artifacts
type ArtifactReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// RunHistory reads journaled runs
type RunHistory interface {
	GetRunByID(ctx context.Context, id string) (*model.Run, error)
	ListRecentRuns(ctx context.Context, flow model.Flow, limit int) ([]*model.Run, error)
}

// DebugInfo is the synthesis environment shown by the debug endpoint
type DebugInfo struct {
	Device        string `json:"device"`
	EspeakPath    string `json:"espeak_path"`
	EspeakLibrary string `json:"espeak_library"`
	Model         string `json:"model"`
	ServerURL     string `json:"server_url"`
}

type Options struct {
	AllowedOrigins []string
	MaxUploadBytes int64
	Debug          DebugInfo
	// History is optional; without it the run listing answers 503 and
	// expired run views are not looked up in the journal
	History RunHistory
}

// Handler serves the API. A nil synthesis runner means synthesis is
// unavailable.
type Handler struct {
	transcription TranscriptionRunner
	synthesis     SynthesisRunner
	views         RunViewReader
	artifacts     ArtifactReader
	opts          Options
}

func NewHandler(transcription TranscriptionRunner, synthesis SynthesisRunner, views RunViewReader, artifacts ArtifactReader, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = ingest.DefaultMaxBytes
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Handler{
		transcription: transcription,
		synthesis:     synthesis,
		views:         views,
		artifacts:     artifacts,
		opts:          opts,
	}
}

// Router builds the chi router with all routes mounted
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger,
		middleware.Recoverer,
	)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
	}))

	r.Get("/healthz", h.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/transcriptions", h.CreateTranscription)

		r.Post("/syntheses", h.CreateSynthesis)
		r.Get("/syntheses/languages", h.ListLanguages)
		r.Get("/syntheses/debug", h.SynthesisDebug)

		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{id}", h.GetRun)
		r.Get("/runs/{id}/audio", h.PlayAudio)
		r.Get("/runs/{id}/download", h.Download)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("took", time.Since(start)))
	})
}
