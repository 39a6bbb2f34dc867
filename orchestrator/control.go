package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/scope"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

// Status returns the current execution record.
func (o *Orchestrator) Status(ctx context.Context, execID id.ExecutionID) (*workflow.State, error) {
	return o.loadOwned(ctx, execID)
}

// List returns the caller tenant's executions matching the filter.
func (o *Orchestrator) List(ctx context.Context, f workflow.Filter) ([]*workflow.State, error) {
	tenantID, _ := scope.Capture(ctx)
	return o.states.ListStates(ctx, tenantID, f)
}

// Pause suspends scheduling for a RUNNING execution. Steps already in
// flight finish and their outputs merge; no new steps start. The reason
// and caller are recorded in the state data.
func (o *Orchestrator) Pause(ctx context.Context, execID id.ExecutionID, reason string) (*workflow.State, error) {
	_, userID := scope.Capture(ctx)
	return o.transition(ctx, execID, workflow.ActionPause, func(st *workflow.State) {
		st.Status = workflow.StatusPaused
		if st.StateData == nil {
			st.StateData = map[string]any{}
		}
		st.StateData[workflow.KeyPauseReason] = reason
		st.StateData[workflow.KeyPausedBy] = userID
		st.StateData[workflow.KeyPausedAt] = time.Now().UTC().Format(time.RFC3339)
	})
}

// Resume continues a PAUSED execution from where it stopped. The pause
// annotations are cleared and the resume is recorded.
func (o *Orchestrator) Resume(ctx context.Context, execID id.ExecutionID) (*workflow.State, error) {
	_, userID := scope.Capture(ctx)
	st, err := o.transition(ctx, execID, workflow.ActionResume, func(st *workflow.State) {
		st.Status = workflow.StatusRunning
		st.ClearPauseFields()
		st.StateData[workflow.KeyResumedBy] = userID
		st.StateData[workflow.KeyResumedAt] = time.Now().UTC().Format(time.RFC3339)
	})
	if err != nil {
		return nil, err
	}
	o.launch(st)
	return st, nil
}

// Cancel terminally stops an execution. In-flight steps finish but no
// further scheduling happens; the record is kept for audit.
func (o *Orchestrator) Cancel(ctx context.Context, execID id.ExecutionID, reason string) (*workflow.State, error) {
	_, userID := scope.Capture(ctx)
	return o.transition(ctx, execID, workflow.ActionCancel, func(st *workflow.State) {
		st.Status = workflow.StatusCancelled
		if st.StateData == nil {
			st.StateData = map[string]any{}
		}
		st.StateData[workflow.KeyCancelReason] = reason
		st.StateData[workflow.KeyCancelledBy] = userID
		st.StateData[workflow.KeyCancelledAt] = time.Now().UTC().Format(time.RFC3339)
	})
}

// Restart begins a fresh execution of the same definition. The original
// record is untouched; the new execution starts from scratch with the
// original's metadata and runs immediately.
func (o *Orchestrator) Restart(ctx context.Context, execID id.ExecutionID) (*workflow.State, error) {
	st, err := o.loadOwned(ctx, execID)
	if err != nil {
		return nil, err
	}
	if !workflow.CanApply(workflow.ActionRestart, st.Status) {
		return nil, &bidflow.InvalidTransitionError{
			Action:  string(workflow.ActionRestart),
			Status:  string(st.Status),
			Allowed: workflow.AllowedActionStrings(st.Status),
		}
	}

	tenantID, userID := scope.Capture(ctx)
	if tenantID == "" {
		tenantID, userID = st.TenantID, st.UserID
	}
	fresh := &workflow.State{
		Entity:       bidflow.NewEntity(),
		ID:           id.NewExecutionID(),
		DefinitionID: st.DefinitionID,
		TenantID:     tenantID,
		UserID:       userID,
		Status:       workflow.StatusPending,
		StateData:    map[string]any{},
		Metadata:     st.Metadata,
	}
	if err := o.states.CreateState(ctx, fresh); err != nil {
		return nil, err
	}
	return o.StartExecution(ctx, fresh.ID)
}

// Recover resumes a FAILED execution from a checkpoint. With a zero
// checkpointID the newest recoverable checkpoint is used; otherwise the
// named checkpoint must belong to this execution and be recoverable.
// The snapshot replaces the accumulated state and completed-step set,
// the failure record is cleared, and scheduling resumes.
func (o *Orchestrator) Recover(ctx context.Context, execID id.ExecutionID, checkpointID id.CheckpointID) (*workflow.State, error) {
	mu := o.lockFor(execID)
	mu.Lock()
	defer mu.Unlock()

	st, err := o.loadOwned(ctx, execID)
	if err != nil {
		return nil, err
	}
	if !workflow.CanApply(workflow.ActionRecover, st.Status) {
		return nil, &bidflow.InvalidTransitionError{
			Action:  string(workflow.ActionRecover),
			Status:  string(st.Status),
			Allowed: workflow.AllowedActionStrings(st.Status),
		}
	}

	cp, err := o.selectCheckpoint(ctx, execID, checkpointID)
	if err != nil {
		return nil, err
	}
	snap, err := workflow.DecodeSnapshot(cp.Data)
	if err != nil {
		return nil, err
	}

	// Two writes: RECOVERING marks restoration in progress, then the
	// restored state re-enters RUNNING. A crash in between leaves the
	// execution cancellable, never half-restored and running.
	var previous workflow.Status
	if _, err := o.mutateState(ctx, execID, func(st *workflow.State) error {
		previous = st.Status
		st.Status = workflow.StatusRecovering
		return nil
	}); err != nil {
		return nil, err
	}

	restored, err := o.mutateState(ctx, execID, func(st *workflow.State) error {
		if st.Status != workflow.StatusRecovering {
			// Cancelled mid-recovery.
			return &bidflow.InvalidTransitionError{
				Action:  string(workflow.ActionRecover),
				Status:  string(st.Status),
				Allowed: workflow.AllowedActionStrings(st.Status),
			}
		}
		st.Status = workflow.StatusRunning
		st.StateData = snap.StateData
		if st.StateData == nil {
			st.StateData = map[string]any{}
		}
		st.CompletedSteps = snap.CompletedSteps
		st.CurrentStep = cp.StepID
		st.ErrorInfo = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.emitter.StatusChanged(ctx, restored, previous)
	o.logger.InfoContext(ctx, "workflow recovering from checkpoint",
		"execution_id", execID, "checkpoint_id", cp.ID, "step_id", cp.StepID)
	o.launch(restored)
	return restored, nil
}

// selectCheckpoint resolves the checkpoint to recover from.
func (o *Orchestrator) selectCheckpoint(ctx context.Context, execID id.ExecutionID, checkpointID id.CheckpointID) (*workflow.Checkpoint, error) {
	if checkpointID.IsNil() {
		list, err := o.checkpoints.ListCheckpoints(ctx, execID)
		if err != nil {
			return nil, err
		}
		for _, cp := range list {
			if cp.Recoverable {
				return cp, nil
			}
		}
		return nil, bidflow.ErrNoCheckpointAvailable
	}

	list, err := o.checkpoints.ListCheckpoints(ctx, execID)
	if err != nil {
		return nil, err
	}
	for _, cp := range list {
		if cp.ID == checkpointID {
			if !cp.Recoverable {
				return nil, fmt.Errorf("%w: checkpoint %s is not recoverable", bidflow.ErrNoCheckpointAvailable, checkpointID)
			}
			return cp, nil
		}
	}
	// A checkpoint that exists under another execution must not leak:
	// from this execution's view it simply does not exist.
	return nil, bidflow.ErrCheckpointNotFound
}

// Checkpoints lists an execution's checkpoints, newest first.
func (o *Orchestrator) Checkpoints(ctx context.Context, execID id.ExecutionID) ([]*workflow.Checkpoint, error) {
	if _, err := o.loadOwned(ctx, execID); err != nil {
		return nil, err
	}
	return o.checkpoints.ListCheckpoints(ctx, execID)
}

// CleanupCheckpoints removes an execution's checkpoints older than
// cutoff, always keeping the configured most-recent few.
func (o *Orchestrator) CleanupCheckpoints(ctx context.Context, execID id.ExecutionID, cutoff time.Time) (int, error) {
	if _, err := o.loadOwned(ctx, execID); err != nil {
		return 0, err
	}
	return o.checkpoints.CleanupCheckpoints(ctx, execID, cutoff, o.cfg.CheckpointRetention)
}

// Delete removes an execution record. Active executions are refused
// unless force is set; a forced delete stops the scheduling loop on its
// next state read. Checkpoints are deleted along with the record when
// cleanupCheckpoints is set.
func (o *Orchestrator) Delete(ctx context.Context, execID id.ExecutionID, force, cleanupCheckpoints bool) error {
	mu := o.lockFor(execID)
	mu.Lock()
	defer mu.Unlock()

	st, err := o.loadOwned(ctx, execID)
	if err != nil {
		return err
	}
	if st.Status.Active() && !force {
		return fmt.Errorf("%w: execution is %s; cancel it first or use force", bidflow.ErrInvalidTransition, st.Status)
	}

	if _, err := o.states.RemoveState(ctx, execID); err != nil {
		return err
	}
	if cleanupCheckpoints {
		if _, err := o.checkpoints.DeleteCheckpoints(ctx, execID); err != nil {
			return err
		}
	}
	o.logger.InfoContext(ctx, "workflow deleted", "execution_id", execID, "force", force)
	return nil
}

// ManageResult reports the outcome of one execution in a bulk operation.
type ManageResult struct {
	ExecutionID string `json:"execution_id"`
	OK          bool   `json:"ok"`
	Status      string `json:"status,omitempty"`
	Error       string `json:"error,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"`
}

// Administrative actions Manage accepts beyond the state machine.
const (
	ManageDelete  = "delete"
	ManageCleanup = "cleanup"
)

// Manage applies one administrative action to a set of executions,
// named explicitly or, when execIDs is empty, resolved from a filter
// over the caller tenant's executions. Besides the state-machine
// actions it accepts "delete" (non-forced, removes the record and its
// checkpoints) and "cleanup" (checkpoint retention sweep). Failures are
// isolated per execution: one refusal never aborts the rest.
func (o *Orchestrator) Manage(ctx context.Context, action string, execIDs []id.ExecutionID, f *workflow.Filter, reason string) ([]ManageResult, error) {
	act, isTransition := workflow.ParseAction(action)
	if !isTransition && action != ManageDelete && action != ManageCleanup {
		return nil, &bidflow.ValidationError{Field: "action", Reason: fmt.Sprintf("unknown manage action %q", action)}
	}

	if len(execIDs) == 0 && f != nil {
		states, err := o.List(ctx, *f)
		if err != nil {
			return nil, err
		}
		execIDs = make([]id.ExecutionID, 0, len(states))
		for _, st := range states {
			execIDs = append(execIDs, st.ID)
		}
	}

	now := time.Now().UTC()
	results := make([]ManageResult, 0, len(execIDs))
	for _, execID := range execIDs {
		res := ManageResult{ExecutionID: execID.String()}

		var st *workflow.State
		var err error
		switch action {
		case ManageDelete:
			err = o.Delete(ctx, execID, false, true)
		case ManageCleanup:
			_, err = o.CleanupCheckpoints(ctx, execID, now)
		default:
			switch act {
			case workflow.ActionStart:
				st, err = o.StartExecution(ctx, execID)
			case workflow.ActionPause:
				st, err = o.Pause(ctx, execID, reason)
			case workflow.ActionResume:
				st, err = o.Resume(ctx, execID)
			case workflow.ActionCancel:
				st, err = o.Cancel(ctx, execID, reason)
			case workflow.ActionRestart:
				st, err = o.Restart(ctx, execID)
			case workflow.ActionRecover:
				st, err = o.Recover(ctx, execID, id.Nil)
			}
		}

		if err != nil {
			res.Error = err.Error()
			res.ErrorKind = errorKind(err)
		} else {
			res.OK = true
			if st != nil {
				res.Status = string(st.Status)
			}
		}
		results = append(results, res)
	}
	return results, nil
}

// errorKind buckets an error for bulk-operation responses.
func errorKind(err error) string {
	switch {
	case errors.Is(err, bidflow.ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, bidflow.ErrNotFound), errors.Is(err, bidflow.ErrCheckpointNotFound), errors.Is(err, bidflow.ErrDefinitionNotFound):
		return "not_found"
	case errors.Is(err, bidflow.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, bidflow.ErrNoCheckpointAvailable):
		return "no_checkpoint"
	case errors.Is(err, bidflow.ErrVersionConflict):
		return "conflict"
	default:
		return "error"
	}
}
