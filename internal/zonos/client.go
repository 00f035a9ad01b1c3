// Package zonos talks to a Zonos text-to-speech model server over JSON/HTTP
// and exposes the loaded model as a synthesis.Model.
package zonos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"voxstudio/internal/synthesis"
	"voxstudio/pkg/logger"
)

const (
	DefaultModel = "Zyphra/Zonos-v0.1-transformer"

	loadEndpoint         = "/v1/models/load"
	embeddingEndpoint    = "/v1/speaker_embedding"
	conditioningEndpoint = "/v1/conditioning"
	generateEndpoint     = "/v1/generate"
	decodeEndpoint       = "/v1/decode"

	// maxErrorBody bounds how much of a failed response ends up in errors.
	maxErrorBody = 512
)

var _ synthesis.Model = (*Model)(nil)

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the per-request timeout. Zero disables it, which is the
// default because generation on CPU can take minutes.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client is a Zonos model server client
type Client struct {
	serverURL  string
	httpClient *http.Client
}

func NewClient(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("zonos: server URL is required")
	}

	c := &Client{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// LoadOptions selects the model and its phonemizer environment
type LoadOptions struct {
	Model      string
	Device     string
	Phonemizer synthesis.Phonemizer
}

type loadRequest struct {
	Model         string `json:"model"`
	Device        string `json:"device"`
	EspeakPath    string `json:"espeak_path"`
	EspeakLibrary string `json:"espeak_library,omitempty"`
}

type loadResponse struct {
	ModelID      string `json:"model_id"`
	Device       string `json:"device"`
	SamplingRate int    `json:"sampling_rate"`
}

// Load asks the server to load the model and returns a handle to it
func (c *Client) Load(ctx context.Context, opts LoadOptions) (*Model, error) {
	name := opts.Model
	if name == "" {
		name = DefaultModel
	}

	var resp loadResponse
	err := c.post(ctx, loadEndpoint, loadRequest{
		Model:         name,
		Device:        opts.Device,
		EspeakPath:    opts.Phonemizer.Path,
		EspeakLibrary: opts.Phonemizer.Library,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.ModelID == "" {
		return nil, errors.New("zonos: load response carries no model_id")
	}

	return &Model{
		client: c,
		id:     resp.ModelID,
		info: synthesis.Info{
			Name:       name,
			Device:     resp.Device,
			SampleRate: resp.SamplingRate,
		},
	}, nil
}

// LoadFunc adapts Load to synthesis.LoadFunc
func (c *Client) LoadFunc(opts LoadOptions) synthesis.LoadFunc {
	return func(ctx context.Context) (synthesis.Model, error) {
		m, err := c.Load(ctx, opts)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

func (c *Client) post(ctx context.Context, endpoint string, in, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("zonos: marshal %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("zonos: create %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("zonos: POST %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("zonos: POST %s returned status %d: %s",
			endpoint, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("zonos: decode %s response: %w", endpoint, err)
	}

	logger.Debug("Zonos call finished",
		zap.String("endpoint", endpoint),
		zap.Duration("took", time.Since(start)))
	return nil
}
