package workflow

import (
	"slices"
	"time"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
)

// Control annotation keys recorded into StateData by pause, resume, and
// cancel. Resume clears the pause fields.
const (
	KeyPauseReason  = "pause_reason"
	KeyPausedBy     = "paused_by"
	KeyPausedAt     = "paused_at"
	KeyResumedBy    = "resumed_by"
	KeyResumedAt    = "resumed_at"
	KeyCancelReason = "cancellation_reason"
	KeyCancelledBy  = "cancelled_by"
	KeyCancelledAt  = "cancelled_at"
)

// ErrorInfo captures a terminal step failure for later inspection and
// recovery. Attached to the state when the execution moves to FAILED.
type ErrorInfo struct {
	Message             string   `json:"message"`
	Step                string   `json:"step"`
	Recoverable         bool     `json:"recoverable"`
	RecoverySuggestions []string `json:"recovery_suggestions,omitempty"`
}

// State is the durable record of one workflow execution. Mutated
// exclusively by the orchestrator; one record per execution.
type State struct {
	bidflow.Entity

	ID             id.ExecutionID    `json:"id"`
	DefinitionID   id.DefinitionID   `json:"definition_id"`
	TenantID       string            `json:"tenant_id"`
	UserID         string            `json:"user_id"`
	Status         Status            `json:"status"`
	CurrentStep    string            `json:"current_step,omitempty"`
	CompletedSteps []string          `json:"completed_steps,omitempty"`
	StateData      map[string]any    `json:"state_data,omitempty"`
	ErrorInfo      *ErrorInfo        `json:"error_info,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`

	// Version is the optimistic-concurrency token. Stores reject an
	// update whose Version does not match the stored record and bump
	// it on every successful write.
	Version int64 `json:"version"`
}

// Project returns the logical-project identifier from the execution
// metadata. Executions with the same (tenant, project) are advisory
// exclusive while active.
func (s *State) Project() string {
	return s.Metadata["project_id"]
}

// StepCompleted reports whether the given step has completed.
func (s *State) StepCompleted(stepID string) bool {
	return slices.Contains(s.CompletedSteps, stepID)
}

// MarkStepCompleted appends the step to the completed set (idempotent)
// and records it as the current step.
func (s *State) MarkStepCompleted(stepID string) {
	if !s.StepCompleted(stepID) {
		s.CompletedSteps = append(s.CompletedSteps, stepID)
	}
	s.CurrentStep = stepID
}

// CompletedSet returns the completed steps as a lookup map.
func (s *State) CompletedSet() map[string]bool {
	set := make(map[string]bool, len(s.CompletedSteps))
	for _, stepID := range s.CompletedSteps {
		set[stepID] = true
	}
	return set
}

// MergeData merges a step's output into the accumulated state data,
// last-writer-wins per key.
func (s *State) MergeData(output map[string]any) {
	if len(output) == 0 {
		return
	}
	if s.StateData == nil {
		s.StateData = make(map[string]any, len(output))
	}
	for k, v := range output {
		s.StateData[k] = v
	}
}

// ClearPauseFields removes the pause annotations on resume.
func (s *State) ClearPauseFields() {
	delete(s.StateData, KeyPauseReason)
	delete(s.StateData, KeyPausedBy)
	delete(s.StateData, KeyPausedAt)
}

// Clone returns a copy safe to mutate without racing against the store.
// Maps and slices are copied one level deep; values inside StateData are
// shared (treated as immutable once written).
func (s *State) Clone() *State {
	cp := *s
	if s.StateData != nil {
		cp.StateData = make(map[string]any, len(s.StateData))
		for k, v := range s.StateData {
			cp.StateData[k] = v
		}
	}
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	cp.CompletedSteps = slices.Clone(s.CompletedSteps)
	if s.ErrorInfo != nil {
		ei := *s.ErrorInfo
		ei.RecoverySuggestions = slices.Clone(s.ErrorInfo.RecoverySuggestions)
		cp.ErrorInfo = &ei
	}
	return &cp
}

// SinceUpdate returns how long ago the record was last written.
func (s *State) SinceUpdate(now time.Time) time.Duration {
	return now.Sub(s.UpdatedAt)
}
