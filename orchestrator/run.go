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

// CreateDefinition validates and persists a workflow template.
func (o *Orchestrator) CreateDefinition(ctx context.Context, def *workflow.Definition) (*workflow.Definition, error) {
	if tenantID, userID := scope.Capture(ctx); tenantID != "" {
		def.TenantID = tenantID
		if def.CreatedBy == "" {
			def.CreatedBy = userID
		}
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if def.ID.IsNil() {
		def.ID = id.NewDefinitionID()
	}
	def.Entity = bidflow.NewEntity()
	def.IsActive = true
	if err := o.definitions.CreateDefinition(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

// Definition retrieves a template, enforcing tenant ownership.
func (o *Orchestrator) Definition(ctx context.Context, defID id.DefinitionID) (*workflow.Definition, error) {
	def, err := o.definitions.GetDefinition(ctx, defID)
	if err != nil {
		return nil, err
	}
	if tenantID, _ := scope.Capture(ctx); tenantID != "" && tenantID != def.TenantID {
		return nil, bidflow.ErrAccessDenied
	}
	return def, nil
}

// Start creates a new execution of a definition and begins running it.
// When the metadata names a project that already has an active
// execution, Start refuses with ErrActiveExecutionExists. The check is
// advisory: it reads current state without a cross-execution lock.
func (o *Orchestrator) Start(ctx context.Context, defID id.DefinitionID, initialData map[string]any, metadata map[string]string) (*workflow.State, error) {
	def, err := o.Definition(ctx, defID)
	if err != nil {
		return nil, err
	}
	tenantID, userID := scope.Capture(ctx)
	if tenantID == "" {
		tenantID = def.TenantID
	}

	if project := metadata["project_id"]; project != "" {
		existing, err := o.states.ListStates(ctx, tenantID, workflow.Filter{Project: project})
		if err != nil {
			return nil, err
		}
		for _, st := range existing {
			if st.Status.Active() {
				return nil, fmt.Errorf("%w: execution %s", bidflow.ErrActiveExecutionExists, st.ID)
			}
		}
	}

	st := &workflow.State{
		Entity:       bidflow.NewEntity(),
		ID:           id.NewExecutionID(),
		DefinitionID: def.ID,
		TenantID:     tenantID,
		UserID:       userID,
		Status:       workflow.StatusPending,
		StateData:    initialData,
		Metadata:     metadata,
	}
	if st.StateData == nil {
		st.StateData = map[string]any{}
	}
	if err := o.states.CreateState(ctx, st); err != nil {
		return nil, err
	}
	return o.StartExecution(ctx, st.ID)
}

// StartExecution moves a PENDING execution to RUNNING and launches its
// scheduling loop.
func (o *Orchestrator) StartExecution(ctx context.Context, execID id.ExecutionID) (*workflow.State, error) {
	st, err := o.transition(ctx, execID, workflow.ActionStart, func(st *workflow.State) {
		st.Status = workflow.StatusRunning
	})
	if err != nil {
		return nil, err
	}
	o.launch(st)
	return st, nil
}

// launch spawns the scheduling loop for one execution. The loop runs on
// the orchestrator's lifetime context with the execution's own scope
// restored, so store writes and notifications carry the right identity.
func (o *Orchestrator) launch(st *workflow.State) {
	ctx := scope.Restore(o.base, st.TenantID, st.UserID)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runLoop(ctx, st.ID, st.DefinitionID)
	}()
}

type stepResult struct {
	step    *workflow.Step
	output  map[string]any
	err     error
	elapsed time.Duration
}

// runLoop schedules ready steps until the execution leaves RUNNING.
// Pause and cancel are observed between dispatches: steps already in
// flight run to completion and their outputs still merge into state.
func (o *Orchestrator) runLoop(ctx context.Context, execID id.ExecutionID, defID id.DefinitionID) {
	def, err := o.definitions.GetDefinition(ctx, defID)
	if err != nil {
		o.logger.ErrorContext(ctx, "run loop aborted: definition unavailable",
			"execution_id", execID, "definition_id", defID, "error", err)
		return
	}

	inFlight := make(map[string]bool)
	results := make(chan stepResult, len(def.Steps))
	ticker := time.NewTicker(o.cfg.DispatchInterval)
	defer ticker.Stop()

	for {
		st, err := o.states.GetState(ctx, execID)
		if err != nil {
			o.logger.ErrorContext(ctx, "run loop aborted: state unavailable",
				"execution_id", execID, "error", err)
			o.drain(ctx, execID, inFlight, results)
			return
		}

		if st.Status != workflow.StatusRunning {
			o.drain(ctx, execID, inFlight, results)
			return
		}

		// All steps done?
		if len(inFlight) == 0 && len(st.CompletedSteps) >= len(def.Steps) {
			o.finish(ctx, execID)
			return
		}

		for _, step := range def.ReadySteps(st.CompletedSet(), inFlight) {
			if err := o.quota.Acquire(ctx, st.TenantID); err != nil {
				// Shutdown while waiting for a slot.
				o.drain(ctx, execID, inFlight, results)
				return
			}
			inFlight[step.ID] = true
			o.dispatch(ctx, st, step, results)
		}

		if len(inFlight) == 0 {
			// Nothing runnable and nothing running; wait for the next
			// tick in case a concurrent update unblocks us.
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case res := <-results:
			delete(inFlight, res.step.ID)
			if done := o.handleResult(ctx, execID, res); done {
				o.drain(ctx, execID, inFlight, results)
				return
			}
		case <-ticker.C:
			// Re-check status so pause/cancel takes effect promptly.
		case <-ctx.Done():
			o.drain(ctx, execID, inFlight, results)
			return
		}
	}
}

// dispatch runs one step on its own goroutine and reports the result.
func (o *Orchestrator) dispatch(ctx context.Context, st *workflow.State, step *workflow.Step, results chan<- stepResult) {
	tenantID := st.TenantID
	execID := st.ID
	input := st.StateData
	go func() {
		start := time.Now()
		out, err := o.executor.Execute(ctx, execID, tenantID, step, input)
		results <- stepResult{step: step, output: out, err: err, elapsed: time.Since(start)}
		o.quota.Release(tenantID)
	}()
}

// handleResult merges a finished step into the execution record.
// Returns true when the loop should stop (the execution failed).
func (o *Orchestrator) handleResult(ctx context.Context, execID id.ExecutionID, res stepResult) bool {
	if res.err != nil {
		o.fail(ctx, execID, res.step.ID, res.err)
		return true
	}

	st, err := o.mutateState(ctx, execID, func(st *workflow.State) error {
		st.MarkStepCompleted(res.step.ID)
		st.MergeData(res.output)
		return nil
	})
	if err != nil {
		o.logger.ErrorContext(ctx, "persist step result failed",
			"execution_id", execID, "step_id", res.step.ID, "error", err)
		return false
	}
	o.emitter.StepCompleted(ctx, st, res.step.ID, res.elapsed)

	if res.step.IsCheckpoint {
		o.writeCheckpoint(ctx, st, res.step.ID)
	}
	return false
}

// writeCheckpoint snapshots the accumulated state after a checkpoint
// step. Failures are logged, not fatal: a missed checkpoint degrades
// recovery, it does not stop the workflow.
func (o *Orchestrator) writeCheckpoint(ctx context.Context, st *workflow.State, stepID string) {
	data, err := workflow.NewSnapshot(st)
	if err != nil {
		o.logger.ErrorContext(ctx, "checkpoint snapshot failed",
			"execution_id", st.ID, "step_id", stepID, "error", err)
		return
	}
	cp := &workflow.Checkpoint{
		ID:          id.NewCheckpointID(),
		ExecutionID: st.ID,
		StepID:      stepID,
		Data:        data,
		Recoverable: true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := o.checkpoints.AppendCheckpoint(ctx, cp); err != nil {
		o.logger.ErrorContext(ctx, "checkpoint write failed",
			"execution_id", st.ID, "step_id", stepID, "error", err)
		return
	}
	o.emitter.CheckpointWritten(ctx, st, cp)
}

// finish moves a fully completed execution to COMPLETED.
func (o *Orchestrator) finish(ctx context.Context, execID id.ExecutionID) {
	var previous workflow.Status
	st, err := o.mutateState(ctx, execID, func(st *workflow.State) error {
		if st.Status != workflow.StatusRunning {
			return fmt.Errorf("execution %s left RUNNING before completion", execID)
		}
		previous = st.Status
		st.Status = workflow.StatusCompleted
		return nil
	})
	if err != nil {
		o.logger.ErrorContext(ctx, "completion write failed", "execution_id", execID, "error", err)
		return
	}
	o.emitter.StatusChanged(ctx, st, previous)
	o.logger.InfoContext(ctx, "workflow completed", "execution_id", execID)
}

// fail records a terminal step failure and moves the execution to FAILED.
func (o *Orchestrator) fail(ctx context.Context, execID id.ExecutionID, stepID string, stepErr error) {
	info := &workflow.ErrorInfo{
		Message:     stepErr.Error(),
		Step:        stepID,
		Recoverable: true,
	}
	var se *bidflow.StepExecutionError
	if errors.As(stepErr, &se) {
		info.Message = se.Message
		info.Recoverable = se.Recoverable
		info.RecoverySuggestions = se.Suggestions
	}

	var previous workflow.Status
	st, err := o.mutateState(ctx, execID, func(st *workflow.State) error {
		previous = st.Status
		st.Status = workflow.StatusFailed
		st.CurrentStep = stepID
		st.ErrorInfo = info
		return nil
	})
	if err != nil {
		o.logger.ErrorContext(ctx, "failure write failed", "execution_id", execID, "error", err)
		return
	}
	o.emitter.StepFailed(ctx, st, stepID, stepErr)
	o.emitter.StatusChanged(ctx, st, previous)
	o.logger.WarnContext(ctx, "workflow failed",
		"execution_id", execID, "step_id", stepID, "error", stepErr)
}

// drain waits for every in-flight step and merges successful outputs.
// Failures during drain still move the execution to FAILED unless a
// control action already put it in a terminal state.
func (o *Orchestrator) drain(ctx context.Context, execID id.ExecutionID, inFlight map[string]bool, results <-chan stepResult) {
	for len(inFlight) > 0 {
		res := <-results
		delete(inFlight, res.step.ID)
		if res.err != nil {
			st, err := o.states.GetState(ctx, execID)
			if err == nil && !st.Status.Terminal() && st.Status != workflow.StatusFailed {
				o.fail(ctx, execID, res.step.ID, res.err)
			}
			continue
		}
		st, err := o.mutateState(ctx, execID, func(st *workflow.State) error {
			st.MarkStepCompleted(res.step.ID)
			st.MergeData(res.output)
			return nil
		})
		if err != nil {
			o.logger.ErrorContext(ctx, "persist drained step failed",
				"execution_id", execID, "step_id", res.step.ID, "error", err)
			continue
		}
		o.emitter.StepCompleted(ctx, st, res.step.ID, res.elapsed)
		if res.step.IsCheckpoint {
			o.writeCheckpoint(ctx, st, res.step.ID)
		}
	}
}

// ResumeAll relaunches scheduling loops for every RUNNING execution.
// Called once at engine start so executions survive a process restart.
// PAUSED executions stay paused until an explicit resume.
func (o *Orchestrator) ResumeAll(ctx context.Context) (int, error) {
	states, err := o.states.ListActiveStates(ctx)
	if err != nil {
		return 0, err
	}
	launched := 0
	for _, st := range states {
		if st.Status != workflow.StatusRunning {
			continue
		}
		o.launch(st)
		launched++
	}
	if launched > 0 {
		o.logger.InfoContext(ctx, "resumed running workflows after restart", "count", launched)
	}
	return launched, nil
}

// Close stops all scheduling loops and waits up to ShutdownTimeout for
// in-flight steps to drain.
func (o *Orchestrator) Close() error {
	var err error
	o.closeOnce.Do(func() {
		o.cancel()
		done := make(chan struct{})
		go func() {
			o.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(o.cfg.ShutdownTimeout):
			err = fmt.Errorf("orchestrator: shutdown timed out after %s", o.cfg.ShutdownTimeout)
		}
	})
	return err
}
