package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Flow identifies which pipeline a run belongs to
type Flow string

const (
	FlowTranscription Flow = "transcription"
	FlowSynthesis     Flow = "synthesis"
)

// RunStatus represents the status of a run
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
	RunStatusFailed  RunStatus = "failed"
)

// JSONB represents a JSONB field for PostgreSQL
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
}

// Run is the journal record of one user-triggered pipeline run. It carries
// metadata only; audio and transcript payloads never land here.
type Run struct {
	ID        string     `json:"id" db:"id"`
	Flow      Flow       `json:"flow" db:"flow"`
	Status    RunStatus  `json:"status" db:"status"`
	ErrorKind *ErrorKind `json:"error_kind,omitempty" db:"error_kind"`
	ErrorText *string    `json:"error_text,omitempty" db:"error_text"`
	Meta      JSONB      `json:"meta" db:"meta"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// NewRun starts a run record in the running state
func NewRun(id string, flow Flow) *Run {
	now := time.Now()
	return &Run{
		ID:        id,
		Flow:      flow,
		Status:    RunStatusRunning,
		Meta:      JSONB{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsCompleted returns true if the run is in a final state
func (r *Run) IsCompleted() bool {
	return r.Status == RunStatusDone || r.Status == RunStatusFailed
}

// SetError sets the run status to failed, recording the error kind
func (r *Run) SetError(err error) {
	kind := KindOf(err)
	text := err.Error()
	r.Status = RunStatusFailed
	r.ErrorKind = &kind
	r.ErrorText = &text
	r.UpdatedAt = time.Now()
}

// SetCompleted sets the run status to done
func (r *Run) SetCompleted() {
	r.Status = RunStatusDone
	r.ErrorKind = nil
	r.ErrorText = nil
	r.UpdatedAt = time.Now()
}

// Elapsed is the wall time between creation and the last update
func (r *Run) Elapsed() time.Duration {
	return r.UpdatedAt.Sub(r.CreatedAt)
}

// Artifact points at a downloadable result stored for a run
type Artifact struct {
	Key         string `json:"key"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// RunView is what front ends can look up for a finished run. It is cached
// with a TTL and is the only way to reach a run's artifact.
type RunView struct {
	ID        string    `json:"id"`
	Flow      Flow      `json:"flow"`
	Status    RunStatus `json:"status"`
	Artifact  *Artifact `json:"artifact,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
