// Package transcript flattens a Deepgram pre-recorded response into plain
// text.
package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"voxstudio/internal/deepgram"
	"voxstudio/pkg/model"
)

const stage = "extract"

var (
	ErrEmptyResponse    = errors.New("empty response from Deepgram API")
	ErrInvalidJSON      = errors.New("invalid JSON response")
	ErrInvalidStructure = errors.New("invalid JSON structure in API response")
)

// Extract joins the words of the first alternative of the first channel
// with single spaces. Failures are parse-kind run errors wrapping one of the
// sentinels above.
func Extract(raw []byte) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", model.ParseError(stage, ErrEmptyResponse)
	}

	if !json.Valid(raw) {
		return "", model.ParseError(stage, fmt.Errorf("%w. Raw response: %s", ErrInvalidJSON, raw))
	}

	// Well-formed JSON of the wrong shape is a structural failure
	var resp deepgram.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return "", model.ParseError(stage, fmt.Errorf("%w: %v", ErrInvalidStructure, err))
		}
		return "", model.ParseError(stage, fmt.Errorf("%w: %v. Raw response: %s", ErrInvalidJSON, err, raw))
	}

	words, ok := firstWordList(resp)
	if !ok {
		return "", model.ParseError(stage, ErrInvalidStructure)
	}

	tokens := make([]string, 0, len(words))
	for _, w := range words {
		tokens = append(tokens, w.Word)
	}

	return strings.TrimSpace(strings.Join(tokens, " ")), nil
}

func firstWordList(resp deepgram.Response) ([]deepgram.Word, bool) {
	if resp.Results == nil || len(resp.Results.Channels) == 0 {
		return nil, false
	}
	alts := resp.Results.Channels[0].Alternatives
	if len(alts) == 0 || alts[0].Words == nil {
		return nil, false
	}
	return alts[0].Words, true
}

// AudioDuration returns metadata.duration in seconds, or 0 when absent
func AudioDuration(raw []byte) float64 {
	var resp deepgram.Response
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Metadata == nil {
		return 0
	}
	return resp.Metadata.Duration
}
