package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voxstudio/pkg/logger"
	"voxstudio/pkg/model"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL        = "https://api.deepgram.com"
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 300 * time.Second

	listenPath = "/v1/listen"
	stage      = "transcribe"
)

var ErrStatus = errors.New("deepgram request failed")

type Client struct {
	apiKey  string
	baseURL string
	options Options
	client  *http.Client
}

// NewClient builds a pre-recorded transcription client. connectTimeout
// bounds dialing and the TLS handshake; readTimeout bounds the wait for the
// response once the upload has been sent.
func NewClient(apiKey, baseURL string, options Options, connectTimeout, readTimeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: api key must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		options: options,
		client:  &http.Client{Transport: transport},
	}, nil
}

// Transcribe uploads the file at filePath and returns the raw JSON response.
// Every failure is a transport-kind run error.
func (c *Client) Transcribe(ctx context.Context, filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, model.TransportError(stage, fmt.Errorf("failed to read audio file: %w", err))
	}

	reqURL := c.baseURL + listenPath + "?" + c.options.Query().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return nil, model.TransportError(stage, fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", ContentType(filePath))
	req.Header.Set("Accept", "application/json")

	logger.Debug("Sending audio to Deepgram",
		zap.String("model", c.options.Model),
		zap.String("language", c.options.Language),
		zap.Int("size", len(data)))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, model.TransportError(stage, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.TransportError(stage, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.TransportError(stage, statusError(resp.StatusCode, respBody))
	}

	logger.Debug("Full Deepgram response", zap.ByteString("body", respBody))
	logDuration(respBody)

	return respBody, nil
}

func logDuration(body []byte) {
	var probe struct {
		Metadata *Metadata `json:"metadata"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.Metadata == nil {
		return
	}
	logger.Info("Deepgram processed audio",
		zap.Float64("duration_seconds", probe.Metadata.Duration),
		zap.String("request_id", probe.Metadata.RequestID))
}

func statusError(status int, body []byte) error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.ErrMsg != "" {
		return fmt.Errorf("%w: status=%d, code=%s, message=%s", ErrStatus, status, eb.ErrCode, eb.ErrMsg)
	}
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return fmt.Errorf("%w: status=%d, body=%s", ErrStatus, status, string(body))
}

// ContentType maps an upload extension to the MIME type Deepgram expects
func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
