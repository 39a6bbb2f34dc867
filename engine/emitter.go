package engine

import (
	"context"
	"time"

	"github.com/warlockedward/AI-Bid-Assistant-sub001/notify"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/orchestrator"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/stream"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

// emitter bridges orchestrator lifecycle events to the stream broker and
// the notification engine. Status-change stream events are published by
// the state store decorator on write, so this emitter only feeds
// notifications for those; step and checkpoint events go to both.
type emitter struct {
	broker   *stream.Broker
	notifier *notify.Engine
}

var _ orchestrator.Emitter = (*emitter)(nil)

func (e *emitter) StatusChanged(ctx context.Context, st *workflow.State, previous workflow.Status) {
	evt := &notify.Event{
		Type:         notify.EventStatusChange,
		TenantID:     st.TenantID,
		ExecutionID:  st.ID.String(),
		DefinitionID: st.DefinitionID.String(),
		Status:       string(st.Status),
		Data:         map[string]any{"previous_status": string(previous)},
	}
	e.notifier.Notify(ctx, evt)

	switch st.Status {
	case workflow.StatusCompleted:
		done := *evt
		done.Type = notify.EventCompletion
		e.notifier.Notify(ctx, &done)
	case workflow.StatusFailed:
		failed := *evt
		failed.Type = notify.EventError
		if st.ErrorInfo != nil {
			failed.Message = st.ErrorInfo.Message
			failed.StepID = st.ErrorInfo.Step
		}
		e.notifier.Notify(ctx, &failed)
	}
}

func (e *emitter) StepCompleted(ctx context.Context, st *workflow.State, stepID string, elapsed time.Duration) {
	e.broker.PublishStepCompleted(st, stepID, elapsed)
	e.notifier.Notify(ctx, &notify.Event{
		Type:         notify.EventStepCompletion,
		TenantID:     st.TenantID,
		ExecutionID:  st.ID.String(),
		DefinitionID: st.DefinitionID.String(),
		Status:       string(st.Status),
		StepID:       stepID,
		Data:         map[string]any{"elapsed_ms": elapsed.Milliseconds()},
	})
}

func (e *emitter) StepFailed(ctx context.Context, st *workflow.State, stepID string, stepErr error) {
	e.broker.PublishStepFailed(st, stepID, stepErr)
}

func (e *emitter) CheckpointWritten(_ context.Context, st *workflow.State, cp *workflow.Checkpoint) {
	e.broker.PublishCheckpoint(st, cp.ID.String(), cp.StepID)
}
