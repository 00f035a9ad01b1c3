package deepgram

import (
	"net/url"
	"strconv"
)

// Options are the fixed per-call settings sent to the pre-recorded endpoint
type Options struct {
	Model       string
	Language    string
	SmartFormat bool
	Punctuate   bool
	Diarize     bool
	Sentiment   bool
}

// DefaultOptions returns the recognition settings used for every upload
func DefaultOptions(model, language string) Options {
	return Options{
		Model:       model,
		Language:    language,
		SmartFormat: true,
		Punctuate:   true,
		Diarize:     true,
		Sentiment:   true,
	}
}

// Query encodes the options as /v1/listen query parameters
func (o Options) Query() url.Values {
	q := url.Values{}
	if o.Model != "" {
		q.Set("model", o.Model)
	}
	if o.Language != "" {
		q.Set("language", o.Language)
	}
	q.Set("smart_format", strconv.FormatBool(o.SmartFormat))
	q.Set("punctuate", strconv.FormatBool(o.Punctuate))
	q.Set("diarize", strconv.FormatBool(o.Diarize))
	q.Set("sentiment", strconv.FormatBool(o.Sentiment))
	return q
}

// Response is the subset of the pre-recorded response this service reads
type Response struct {
	Metadata *Metadata `json:"metadata,omitempty"`
	Results  *Results  `json:"results,omitempty"`
}

// Metadata describes the processed request
type Metadata struct {
	RequestID string   `json:"request_id"`
	Duration  float64  `json:"duration"`
	Channels  int      `json:"channels"`
	Models    []string `json:"models,omitempty"`
}

// Results holds one entry per audio channel
type Results struct {
	Channels []Channel `json:"channels"`
}

// Channel holds the recognition alternatives for one audio channel
type Channel struct {
	Alternatives []Alternative `json:"alternatives"`
}

// Alternative is one recognition hypothesis
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words"`
}

// Word is a single recognized token with timing and speaker label
type Word struct {
	Word           string  `json:"word"`
	PunctuatedWord string  `json:"punctuated_word,omitempty"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Confidence     float64 `json:"confidence"`
	Speaker        *int    `json:"speaker,omitempty"`
	Sentiment      string  `json:"sentiment,omitempty"`
}

// errorBody is what Deepgram returns on 4xx/5xx
type errorBody struct {
	ErrCode   string `json:"err_code"`
	ErrMsg    string `json:"err_msg"`
	RequestID string `json:"request_id"`
}
