// Package stream provides a real-time event broker for workflow lifecycle
// events. Execution state changes are fanned out to connected clients via
// topic-based pub/sub with credit-based flow control.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventStatusChanged     EventType = "workflow.status_changed"
	EventStepCompleted     EventType = "workflow.step_completed"
	EventStepFailed        EventType = "workflow.step_failed"
	EventCompleted         EventType = "workflow.completed"
	EventFailed            EventType = "workflow.failed"
	EventCheckpointWritten EventType = "workflow.checkpoint_written"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the execution-specific channel this event belongs to.
	Topic string `json:"topic"`

	// TenantID scopes the event for tenant-wide streams.
	TenantID string `json:"tenant_id,omitempty"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// ExecutionEventData is the payload for workflow lifecycle events.
type ExecutionEventData struct {
	ExecutionID  string `json:"execution_id"`
	DefinitionID string `json:"definition_id,omitempty"`
	TenantID     string `json:"tenant_id"`
	Status       string `json:"status,omitempty"`
	Previous     string `json:"previous_status,omitempty"`
	StepID       string `json:"step_id,omitempty"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
	ElapsedMs    int64  `json:"elapsed_ms,omitempty"`
	Error        string `json:"error,omitempty"`
}
