package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voxstudio/internal/ingest"
	"voxstudio/internal/pipeline"
	"voxstudio/internal/storage"
	"voxstudio/pkg/cache"
	"voxstudio/pkg/model"
)

type MockTranscription struct {
	mock.Mock
	checker *ingest.Ingestor
}

func (m *MockTranscription) Check(upload ingest.Upload) error {
	return m.checker.Check(upload)
}

func (m *MockTranscription) Run(ctx context.Context, upload ingest.Upload) (*pipeline.TranscriptionResult, error) {
	args := m.Called(ctx, upload.FileName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.TranscriptionResult), args.Error(1)
}

type MockSynthesis struct {
	mock.Mock
}

func (m *MockSynthesis) Check(req pipeline.SynthesisRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return model.ValidationError("conditioning", errors.New("please enter some text to synthesize"))
	}
	return nil
}

func (m *MockSynthesis) Run(ctx context.Context, req pipeline.SynthesisRequest) (*pipeline.SynthesisResult, error) {
	args := m.Called(ctx, req.Text, req.Language, req.Reference.FileName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.SynthesisResult), args.Error(1)
}

type MockViews struct {
	mock.Mock
}

func (m *MockViews) Get(ctx context.Context, runID string) (*model.RunView, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RunView), args.Error(1)
}

type MockArtifacts struct {
	mock.Mock
}

func (m *MockArtifacts) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return io.NopCloser(strings.NewReader(args.String(0))), args.Error(1)
}

type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) GetRunByID(ctx context.Context, id string) (*model.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *MockHistory) ListRecentRuns(ctx context.Context, flow model.Flow, limit int) ([]*model.Run, error) {
	args := m.Called(ctx, flow, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Run), args.Error(1)
}

type testAPI struct {
	transcription *MockTranscription
	synthesis     *MockSynthesis
	views         *MockViews
	artifacts     *MockArtifacts
	history       *MockHistory
	server        *httptest.Server
}

func newTestAPI(t *testing.T, maxUpload int64) *testAPI {
	t.Helper()
	api := &testAPI{
		transcription: &MockTranscription{checker: ingest.NewIngestor(t.TempDir(), maxUpload, ingest.TranscriptionFormats)},
		synthesis:     &MockSynthesis{},
		views:         &MockViews{},
		artifacts:     &MockArtifacts{},
		history:       &MockHistory{},
	}
	h := NewHandler(api.transcription, api.synthesis, api.views, api.artifacts, Options{
		MaxUploadBytes: maxUpload,
		Debug:          DebugInfo{Device: "cpu", EspeakPath: "/usr/bin/espeak-ng", Model: "zonos"},
		History:        api.history,
	})
	api.server = httptest.NewServer(h.Router())
	t.Cleanup(api.server.Close)
	return api
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeError(t *testing.T, resp *http.Response) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, 1024)

	resp, err := http.Get(api.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateTranscription(t *testing.T) {
	api := newTestAPI(t, 1024)
	api.transcription.On("Run", mock.Anything, "clip.mp3").Return(&pipeline.TranscriptionResult{
		RunID:        "run-1",
		Transcript:   "hi there friend",
		AudioSeconds: 2.5,
	}, nil)

	body, ct := multipartBody(t, nil, "file", "clip.mp3", []byte("audio"))
	resp, err := http.Post(api.server.URL+"/v1/transcriptions", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out transcriptionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "hi there friend", out.Transcript)
	assert.Equal(t, 2.5, out.Duration)
	assert.Equal(t, "/v1/runs/run-1/download", out.DownloadURL)
}

func TestCreateTranscription_OversizeRejectedBeforeRun(t *testing.T) {
	api := newTestAPI(t, 16)

	body, ct := multipartBody(t, nil, "file", "clip.wav", bytes.Repeat([]byte("x"), 64))
	resp, err := http.Post(api.server.URL+"/v1/transcriptions", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, model.ErrorKindValidation, decodeError(t, resp).Kind)
	api.transcription.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestCreateTranscription_BadRequests(t *testing.T) {
	api := newTestAPI(t, 1024)

	t.Run("unsupported type", func(t *testing.T) {
		body, ct := multipartBody(t, nil, "file", "notes.txt", []byte("text"))
		resp, err := http.Post(api.server.URL+"/v1/transcriptions", ct, body)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing file", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"x": "y"}, "", "", nil)
		resp, err := http.Post(api.server.URL+"/v1/transcriptions", ct, body)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("not multipart", func(t *testing.T) {
		resp, err := http.Post(api.server.URL+"/v1/transcriptions", "application/json", strings.NewReader("{}"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	api.transcription.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestCreateTranscription_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"transport", model.TransportError("transcribe", errors.New("timeout")), http.StatusBadGateway},
		{"parse", model.ParseError("extract", errors.New("empty response from Deepgram API")), http.StatusBadGateway},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t, 1024)
			api.transcription.On("Run", mock.Anything, "clip.ogg").Return(nil, tt.err)

			body, ct := multipartBody(t, nil, "file", "clip.ogg", []byte("audio"))
			resp, err := http.Post(api.server.URL+"/v1/transcriptions", ct, body)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, model.KindOf(tt.err), decodeError(t, resp).Kind)
		})
	}
}

func TestCreateSynthesis(t *testing.T) {
	api := newTestAPI(t, 1024)
	api.synthesis.On("Run", mock.Anything, "Hello, world!", "es", "me.wav").Return(&pipeline.SynthesisResult{
		RunID:        "run-2",
		SampleRate:   44100,
		AudioSeconds: 1.5,
		Warnings:     []string{"Audio is longer than 10 seconds; processing may be slow."},
	}, nil)

	body, ct := multipartBody(t, map[string]string{"text": "Hello, world!", "language": "es"}, "reference", "me.wav", []byte("wav"))
	resp, err := http.Post(api.server.URL+"/v1/syntheses", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out synthesisResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 44100, out.SampleRate)
	assert.Len(t, out.Warnings, 1)
	assert.Equal(t, "/v1/runs/run-2/audio", out.AudioURL)
	assert.Equal(t, "/v1/runs/run-2/download", out.DownloadURL)
}

func TestCreateSynthesis_EmptyText(t *testing.T) {
	api := newTestAPI(t, 1024)

	body, ct := multipartBody(t, map[string]string{"text": " "}, "reference", "me.wav", []byte("wav"))
	resp, err := http.Post(api.server.URL+"/v1/syntheses", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	api.synthesis.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateSynthesis_ModelErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"load", model.ModelError("load", errors.New("espeak missing")), http.StatusServiceUnavailable},
		{"inference", model.ModelError("generate", errors.New("nan")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t, 1024)
			api.synthesis.On("Run", mock.Anything, "Hi", "", "me.mp3").Return(nil, tt.err)

			body, ct := multipartBody(t, map[string]string{"text": "Hi"}, "reference", "me.mp3", []byte("mp3"))
			resp, err := http.Post(api.server.URL+"/v1/syntheses", ct, body)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, model.ErrorKindModel, decodeError(t, resp).Kind)
		})
	}
}

func TestCreateSynthesis_Unavailable(t *testing.T) {
	h := NewHandler(&MockTranscription{}, nil, &MockViews{}, &MockArtifacts{}, Options{})
	server := httptest.NewServer(h.Router())
	defer server.Close()

	body, ct := multipartBody(t, map[string]string{"text": "Hi"}, "reference", "me.wav", []byte("wav"))
	resp, err := http.Post(server.URL+"/v1/syntheses", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestListLanguagesAndDebug(t *testing.T) {
	api := newTestAPI(t, 1024)

	resp, err := http.Get(api.server.URL + "/v1/syntheses/languages")
	require.NoError(t, err)
	defer resp.Body.Close()

	var langs struct {
		Default   string            `json:"default"`
		Languages map[string]string `json:"languages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&langs))
	assert.Equal(t, "en-us", langs.Default)
	assert.Equal(t, "en-us", langs.Languages["English (US)"])
	assert.Len(t, langs.Languages, 5)

	resp2, err := http.Get(api.server.URL + "/v1/syntheses/debug")
	require.NoError(t, err)
	defer resp2.Body.Close()

	var debug DebugInfo
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&debug))
	assert.Equal(t, "cpu", debug.Device)
	assert.Equal(t, "/usr/bin/espeak-ng", debug.EspeakPath)
}

func speechView(id string) *model.RunView {
	return &model.RunView{
		ID:     id,
		Flow:   model.FlowSynthesis,
		Status: model.RunStatusDone,
		Artifact: &model.Artifact{
			Key:         storage.ArtifactKey(id, pipeline.SpeechFileName),
			FileName:    pipeline.SpeechFileName,
			ContentType: pipeline.SpeechContentType,
			Size:        4,
		},
	}
}

func TestRunDownloads(t *testing.T) {
	api := newTestAPI(t, 1024)
	view := speechView("run-3")
	api.views.On("Get", mock.Anything, "run-3").Return(view, nil)
	api.artifacts.On("Get", mock.Anything, view.Artifact.Key).Return("RIFF", nil)

	t.Run("view", func(t *testing.T) {
		resp, err := http.Get(api.server.URL + "/v1/runs/run-3")
		require.NoError(t, err)
		defer resp.Body.Close()

		var got model.RunView
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, "run-3", got.ID)
	})

	for _, tc := range []struct {
		path        string
		disposition string
	}{
		{"audio", "inline"},
		{"download", "attachment"},
	} {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := http.Get(fmt.Sprintf("%s/v1/runs/run-3/%s", api.server.URL, tc.path))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
			assert.Equal(t, tc.disposition+`; filename="generated_speech.wav"`, resp.Header.Get("Content-Disposition"))
			data, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, "RIFF", string(data))
		})
	}
}

func TestRunDownloads_NotFound(t *testing.T) {
	api := newTestAPI(t, 1024)
	api.views.On("Get", mock.Anything, "gone").Return(nil, fmt.Errorf("wrapped: %w", cache.ErrNotFound))
	api.history.On("GetRunByID", mock.Anything, "gone").Return(nil, storage.ErrRunNotFound)

	transcriptView := &model.RunView{ID: "txt", Flow: model.FlowTranscription, Artifact: &model.Artifact{
		Key: "runs/txt/transcription.txt", FileName: "transcription.txt", ContentType: pipeline.TranscriptContentType,
	}}
	api.views.On("Get", mock.Anything, "txt").Return(transcriptView, nil)

	expired := speechView("expired")
	api.views.On("Get", mock.Anything, "expired").Return(expired, nil)
	api.artifacts.On("Get", mock.Anything, expired.Artifact.Key).Return(nil, storage.ErrArtifactNotFound)

	for _, path := range []string{"/v1/runs/gone", "/v1/runs/gone/download", "/v1/runs/txt/audio", "/v1/runs/expired/download"} {
		resp, err := http.Get(api.server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestGetRun_ExpiredViewFallsBackToJournal(t *testing.T) {
	api := newTestAPI(t, 1024)

	done := model.NewRun("old", model.FlowSynthesis)
	done.SetCompleted()
	running := model.NewRun("busy", model.FlowTranscription)

	api.views.On("Get", mock.Anything, "old").Return(nil, cache.ErrNotFound)
	api.views.On("Get", mock.Anything, "busy").Return(nil, cache.ErrNotFound)
	api.history.On("GetRunByID", mock.Anything, "old").Return(done, nil)
	api.history.On("GetRunByID", mock.Anything, "busy").Return(running, nil)

	tests := []struct {
		id     string
		status int
		want   model.RunStatus
	}{
		{"old", http.StatusOK, model.RunStatusDone},
		{"busy", http.StatusAccepted, model.RunStatusRunning},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			resp, err := http.Get(api.server.URL + "/v1/runs/" + tt.id)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)

			var got model.RunView
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			assert.Equal(t, tt.id, got.ID)
			assert.Equal(t, tt.want, got.Status)
			assert.Nil(t, got.Artifact)
		})
	}

	// downloads still need the cached view
	resp, err := http.Get(api.server.URL + "/v1/runs/old/download")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetRun_ExpiredWithoutJournal(t *testing.T) {
	views := &MockViews{}
	views.On("Get", mock.Anything, "old").Return(nil, cache.ErrNotFound)
	h := NewHandler(&MockTranscription{}, nil, views, &MockArtifacts{}, Options{})
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/runs/old")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListRuns(t *testing.T) {
	api := newTestAPI(t, 1024)

	done := model.NewRun("run-2", model.FlowSynthesis)
	done.SetCompleted()
	api.history.On("ListRecentRuns", mock.Anything, model.FlowSynthesis, 5).
		Return([]*model.Run{done}, nil).Once()

	resp, err := http.Get(api.server.URL + "/v1/runs?flow=synthesis&limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Runs []model.Run `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "run-2", body.Runs[0].ID)
	assert.Equal(t, model.RunStatusDone, body.Runs[0].Status)
	api.history.AssertExpectations(t)
}

func TestListRuns_DefaultsAndLimits(t *testing.T) {
	api := newTestAPI(t, 1024)
	api.history.On("ListRecentRuns", mock.Anything, model.FlowTranscription, 20).Return(nil, nil).Once()
	api.history.On("ListRecentRuns", mock.Anything, model.FlowTranscription, 100).Return(nil, nil).Once()

	resp, err := http.Get(api.server.URL + "/v1/runs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(api.server.URL + "/v1/runs?limit=5000")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	for _, query := range []string{"?flow=karaoke", "?limit=0", "?limit=abc"} {
		resp, err = http.Get(api.server.URL + "/v1/runs" + query)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
	}
	api.history.AssertExpectations(t)
}

func TestListRuns_WithoutJournal(t *testing.T) {
	h := NewHandler(&MockTranscription{}, nil, &MockViews{}, &MockArtifacts{}, Options{})
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
