package workflow

// Status represents the lifecycle state of a workflow execution.
type Status string

const (
	// StatusPending means the execution is created but not yet started.
	StatusPending Status = "PENDING"
	// StatusRunning means steps are being scheduled and executed.
	StatusRunning Status = "RUNNING"
	// StatusPaused means scheduling is suspended between step invocations.
	StatusPaused Status = "PAUSED"
	// StatusCompleted means every step finished successfully. Terminal.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed means a step exhausted its retries. Recoverable via
	// a checkpoint, or restartable as a new execution.
	StatusFailed Status = "FAILED"
	// StatusCancelled means the execution was cancelled by a caller. Terminal.
	StatusCancelled Status = "CANCELLED"
	// StatusRecovering is the transient state while checkpoint state is
	// being restored; it immediately re-enters RUNNING.
	StatusRecovering Status = "RECOVERING"
)

// Active reports whether the status counts as an active execution
// (RUNNING or PAUSED) for exclusivity and health monitoring purposes.
func (s Status) Active() bool {
	return s == StatusRunning || s == StatusPaused
}

// Terminal reports whether the status permits no further execution on
// this record. COMPLETED and CANCELLED still permit restart, which
// creates a new execution rather than reviving this one.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Action is a control operation applied to an execution.
type Action string

const (
	ActionStart   Action = "start"
	ActionPause   Action = "pause"
	ActionResume  Action = "resume"
	ActionCancel  Action = "cancel"
	ActionRestart Action = "restart"
	ActionRecover Action = "recover"
)

// transitions maps each action to the statuses it may be applied from.
var transitions = map[Action][]Status{
	ActionStart:   {StatusPending},
	ActionPause:   {StatusRunning},
	ActionResume:  {StatusPaused},
	ActionCancel:  {StatusRunning, StatusPaused, StatusPending, StatusRecovering},
	ActionRestart: {StatusFailed, StatusCompleted, StatusCancelled},
	ActionRecover: {StatusFailed},
}

// CanApply reports whether the action is legal from the given status.
func CanApply(action Action, from Status) bool {
	for _, s := range transitions[action] {
		if s == from {
			return true
		}
	}
	return false
}

// AllowedActions returns the control actions legal from the given status,
// in a stable order.
func AllowedActions(from Status) []Action {
	ordered := []Action{ActionStart, ActionPause, ActionResume, ActionCancel, ActionRestart, ActionRecover}

	var allowed []Action
	for _, a := range ordered {
		if CanApply(a, from) {
			allowed = append(allowed, a)
		}
	}
	return allowed
}

// AllowedActionStrings is AllowedActions rendered as strings, for error
// payloads and API responses.
func AllowedActionStrings(from Status) []string {
	actions := AllowedActions(from)
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}

// ParseAction validates a caller-supplied action name.
func ParseAction(s string) (Action, bool) {
	switch Action(s) {
	case ActionStart, ActionPause, ActionResume, ActionCancel, ActionRestart, ActionRecover:
		return Action(s), true
	default:
		return "", false
	}
}
