package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_SetCompleted(t *testing.T) {
	run := NewRun("run-1", FlowTranscription)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.False(t, run.IsCompleted())

	run.SetCompleted()

	assert.Equal(t, RunStatusDone, run.Status)
	assert.Nil(t, run.ErrorText)
	assert.Nil(t, run.ErrorKind)
	assert.True(t, run.IsCompleted())
}

func TestRun_SetError(t *testing.T) {
	run := NewRun("run-1", FlowSynthesis)

	run.SetError(ModelError("generate", errors.New("cuda out of memory")))

	assert.Equal(t, RunStatusFailed, run.Status)
	require.NotNil(t, run.ErrorKind)
	assert.Equal(t, ErrorKindModel, *run.ErrorKind)
	require.NotNil(t, run.ErrorText)
	assert.Equal(t, "generate: cuda out of memory", *run.ErrorText)
}

func TestRun_Elapsed(t *testing.T) {
	run := NewRun("run-1", FlowSynthesis)
	run.UpdatedAt = run.CreatedAt.Add(3 * time.Second)
	assert.Equal(t, 3*time.Second, run.Elapsed())
}

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name  string
		err   error
		kind  ErrorKind
		stage string
	}{
		{"validation", ValidationError("ingest", base), ErrorKindValidation, "ingest"},
		{"transport", TransportError("transcribe", base), ErrorKindTransport, "transcribe"},
		{"parse", ParseError("extract", base), ErrorKindParse, "extract"},
		{"model", ModelError("load", base), ErrorKindModel, "load"},
		{"wrapped", fmt.Errorf("outer: %w", ParseError("extract", base)), ErrorKindParse, "extract"},
		{"plain", base, ErrorKindInternal, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.stage, StageOf(tt.err))
			assert.True(t, errors.Is(tt.err, base))
		})
	}
}

func TestNewRunError_NilStaysNil(t *testing.T) {
	assert.NoError(t, NewRunError(ErrorKindModel, "load", nil))
}

func TestJSONB_ValueAndScan(t *testing.T) {
	in := JSONB{"file_name": "a.wav", "size": float64(10)}
	v, err := in.Value()
	require.NoError(t, err)

	var out JSONB
	require.NoError(t, out.Scan(v))
	assert.Equal(t, in, out)

	var empty JSONB
	require.NoError(t, empty.Scan(nil))
	assert.Nil(t, empty)
}
