package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"voxstudio/internal/ingest"
	"voxstudio/internal/pipeline"
	"voxstudio/internal/storage"
	"voxstudio/internal/synthesis"
	"voxstudio/pkg/cache"
	"voxstudio/pkg/logger"
	"voxstudio/pkg/model"
)

const (
	// multipart framing and text fields on top of the file cap
	formOverhead = 1 << 20
	// parts above this spill to temp files while the form is parsed
	formMemory = 32 << 20
)

type transcriptionResponse struct {
	RunID       string  `json:"run_id"`
	Transcript  string  `json:"transcript"`
	Duration    float64 `json:"duration"`
	DownloadURL string  `json:"download_url"`
}

type synthesisResponse struct {
	RunID       string   `json:"run_id"`
	SampleRate  int      `json:"sample_rate"`
	Duration    float64  `json:"duration"`
	Warnings    []string `json:"warnings"`
	AudioURL    string   `json:"audio_url"`
	DownloadURL string   `json:"download_url"`
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateTranscription handles multipart field "file"
func (h *Handler) CreateTranscription(w http.ResponseWriter, r *http.Request) {
	form, err := h.parseForm(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer form.RemoveAll()

	upload, closeFile, err := formUpload(form, "file")
	if err != nil {
		writeError(w, err)
		return
	}
	defer closeFile()

	if err := h.transcription.Check(upload); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.transcription.Run(r.Context(), upload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, transcriptionResponse{
		RunID:       result.RunID,
		Transcript:  result.Transcript,
		Duration:    result.AudioSeconds,
		DownloadURL: downloadURL(result.RunID),
	})
}

// CreateSynthesis handles multipart fields "text", "language" and "reference"
func (h *Handler) CreateSynthesis(w http.ResponseWriter, r *http.Request) {
	if h.synthesis == nil {
		writeStatusError(w, http.StatusServiceUnavailable, model.ErrorKindModel, "synthesis is not available")
		return
	}

	form, err := h.parseForm(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer form.RemoveAll()

	upload, closeFile, err := formUpload(form, "reference")
	if err != nil {
		writeError(w, err)
		return
	}
	defer closeFile()

	req := pipeline.SynthesisRequest{
		Text:      formValue(form, "text"),
		Language:  formValue(form, "language"),
		Reference: upload,
	}
	if err := h.synthesis.Check(req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.synthesis.Run(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	warnings := result.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusOK, synthesisResponse{
		RunID:       result.RunID,
		SampleRate:  result.SampleRate,
		Duration:    result.AudioSeconds,
		Warnings:    warnings,
		AudioURL:    audioURL(result.RunID),
		DownloadURL: downloadURL(result.RunID),
	})
}

func (h *Handler) ListLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"default":   synthesis.DefaultLanguage,
		"languages": synthesis.LanguageCodes(),
	})
}

func (h *Handler) SynthesisDebug(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.opts.Debug)
}

const (
	defaultRunListLimit = 20
	maxRunListLimit     = 100
)

// ListRuns returns the newest journaled runs of one flow
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.opts.History == nil {
		writeStatusError(w, http.StatusServiceUnavailable, model.ErrorKindInternal, "run journal is not configured")
		return
	}

	flow := model.Flow(r.URL.Query().Get("flow"))
	if flow == "" {
		flow = model.FlowTranscription
	}
	if flow != model.FlowTranscription && flow != model.FlowSynthesis {
		writeStatusError(w, http.StatusBadRequest, model.ErrorKindValidation, fmt.Sprintf("unknown flow %q", flow))
		return
	}

	limit := defaultRunListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeStatusError(w, http.StatusBadRequest, model.ErrorKindValidation, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunListLimit)
	}

	runs, err := h.opts.History.ListRecentRuns(r.Context(), flow, limit)
	if err != nil {
		logger.Error("Failed to list runs", zap.String("flow", string(flow)), zap.Error(err))
		writeStatusError(w, http.StatusInternalServerError, model.ErrorKindInternal, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// GetRun returns the cached run view. Once the view has expired the
// journal record is returned instead, without an artifact.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := h.views.Get(r.Context(), id)
	if err == nil {
		writeJSON(w, http.StatusOK, view)
		return
	}
	if !errors.Is(err, cache.ErrNotFound) {
		logger.Error("Failed to look up run", zap.String("run_id", id), zap.Error(err))
		writeStatusError(w, http.StatusInternalServerError, model.ErrorKindInternal, "failed to look up run")
		return
	}
	if h.opts.History == nil {
		writeStatusError(w, http.StatusNotFound, model.ErrorKindValidation, "run not found or expired")
		return
	}

	run, err := h.opts.History.GetRunByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrRunNotFound) {
			writeStatusError(w, http.StatusNotFound, model.ErrorKindValidation, "run not found or expired")
			return
		}
		logger.Error("Failed to read run from journal", zap.String("run_id", id), zap.Error(err))
		writeStatusError(w, http.StatusInternalServerError, model.ErrorKindInternal, "failed to look up run")
		return
	}

	status := http.StatusOK
	if !run.IsCompleted() {
		status = http.StatusAccepted
	}
	writeJSON(w, status, journalView(run))
}

func journalView(run *model.Run) *model.RunView {
	return &model.RunView{
		ID:        run.ID,
		Flow:      run.Flow,
		Status:    run.Status,
		CreatedAt: run.CreatedAt,
	}
}

// PlayAudio streams a synthesis result inline for playback
func (h *Handler) PlayAudio(w http.ResponseWriter, r *http.Request) {
	view, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	if view.Artifact.ContentType != pipeline.SpeechContentType {
		writeStatusError(w, http.StatusNotFound, model.ErrorKindValidation, "run has no audio")
		return
	}
	h.serveArtifact(w, r, view.Artifact, "inline")
}

// Download serves the run's artifact as an attachment
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	view, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	h.serveArtifact(w, r, view.Artifact, "attachment")
}

func (h *Handler) lookupRun(w http.ResponseWriter, r *http.Request) (*model.RunView, bool) {
	id := chi.URLParam(r, "id")

	view, err := h.views.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			writeStatusError(w, http.StatusNotFound, model.ErrorKindValidation, "run not found or expired")
			return nil, false
		}
		logger.Error("Failed to look up run", zap.String("run_id", id), zap.Error(err))
		writeStatusError(w, http.StatusInternalServerError, model.ErrorKindInternal, "failed to look up run")
		return nil, false
	}
	if view.Artifact == nil {
		writeStatusError(w, http.StatusNotFound, model.ErrorKindValidation, "run has no artifact")
		return nil, false
	}
	return view, true
}

func (h *Handler) serveArtifact(w http.ResponseWriter, r *http.Request, artifact *model.Artifact, disposition string) {
	body, err := h.artifacts.Get(r.Context(), artifact.Key)
	if err != nil {
		if errors.Is(err, storage.ErrArtifactNotFound) {
			writeStatusError(w, http.StatusNotFound, model.ErrorKindValidation, "artifact expired")
			return
		}
		logger.Error("Failed to open artifact", zap.String("key", artifact.Key), zap.Error(err))
		writeStatusError(w, http.StatusBadGateway, model.ErrorKindTransport, "failed to open artifact")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, artifact.FileName))
	if artifact.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(artifact.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		logger.Warn("Artifact stream interrupted", zap.String("key", artifact.Key), zap.Error(err))
	}
}

// parseForm bounds the body before parsing so an oversized upload is cut
// off instead of spooled
func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	limit := h.opts.MaxUploadBytes + formOverhead
	if r.ContentLength > limit {
		return nil, model.ValidationError("ingest", fmt.Errorf("%w: request body is %d bytes", ingest.ErrTooLarge, r.ContentLength))
	}

	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, model.ValidationError("ingest", fmt.Errorf("%w: request body exceeds %d bytes", ingest.ErrTooLarge, limit))
		}
		return nil, model.ValidationError("ingest", fmt.Errorf("invalid multipart form: %w", err))
	}
	return r.MultipartForm, nil
}

func formUpload(form *multipart.Form, field string) (ingest.Upload, func(), error) {
	headers := form.File[field]
	if len(headers) == 0 {
		return ingest.Upload{}, nil, model.ValidationError("ingest", fmt.Errorf("missing file field %q", field))
	}

	header := headers[0]
	file, err := header.Open()
	if err != nil {
		return ingest.Upload{}, nil, model.ValidationError("ingest", fmt.Errorf("failed to open upload: %w", err))
	}

	return ingest.Upload{
		FileName: header.Filename,
		Size:     header.Size,
		Body:     file,
	}, func() { file.Close() }, nil
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func audioURL(runID string) string {
	return "/v1/runs/" + runID + "/audio"
}

func downloadURL(runID string) string {
	return "/v1/runs/" + runID + "/download"
}
