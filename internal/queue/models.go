package queue

import (
	"fmt"
	"time"

	"voxstudio/pkg/model"
)

// RunEvent announces that a run finished. It carries metadata only.
type RunEvent struct {
	RunID       string           `json:"run_id"`
	Flow        model.Flow       `json:"flow"`
	Status      model.RunStatus  `json:"status"`
	ErrorKind   *model.ErrorKind `json:"error_kind,omitempty"`
	ArtifactKey string           `json:"artifact_key,omitempty"`
	ElapsedMs   int64            `json:"elapsed_ms"`
	Warnings    []string         `json:"warnings,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// NewRunEvent builds the event for a finished run
func NewRunEvent(run *model.Run, artifactKey string, warnings []string) *RunEvent {
	return &RunEvent{
		RunID:       run.ID,
		Flow:        run.Flow,
		Status:      run.Status,
		ErrorKind:   run.ErrorKind,
		ArtifactKey: artifactKey,
		ElapsedMs:   run.Elapsed().Milliseconds(),
		Warnings:    warnings,
		OccurredAt:  run.UpdatedAt,
	}
}

// RoutingKey is runs.<flow>.<status>, e.g. runs.synthesis.failed
func (e *RunEvent) RoutingKey() string {
	return fmt.Sprintf("runs.%s.%s", e.Flow, e.Status)
}
