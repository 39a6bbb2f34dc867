package bidflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Store errors.
	ErrNoStore         = errors.New("bidflow: no store configured")
	ErrStoreClosed     = errors.New("bidflow: store closed")
	ErrVersionConflict = errors.New("bidflow: concurrent update conflict")

	// Not found errors.
	ErrNotFound           = errors.New("bidflow: workflow not found")
	ErrDefinitionNotFound = errors.New("bidflow: workflow definition not found")
	ErrCheckpointNotFound = errors.New("bidflow: checkpoint not found")
	ErrRuleNotFound       = errors.New("bidflow: notification rule not found")

	// Access errors.
	ErrAccessDenied = errors.New("bidflow: access denied")

	// Conflict errors.
	ErrAlreadyExists          = errors.New("bidflow: workflow already exists")
	ErrActiveExecutionExists  = errors.New("bidflow: an active execution already exists for this project")
	ErrNoCheckpointAvailable  = errors.New("bidflow: no recoverable checkpoint available")
	ErrInvalidTransition      = errors.New("bidflow: invalid state transition")
	ErrNoAgent                = errors.New("bidflow: no agent configured")
)

// InvalidTransitionError reports a control action applied in a state that
// does not permit it. It carries the current status and the set of actions
// that would be legal, so callers can render correct controls without
// guessing.
type InvalidTransitionError struct {
	Action  string
	Status  string
	Allowed []string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("bidflow: action %q not allowed in status %q (allowed: %s)",
		e.Action, e.Status, strings.Join(e.Allowed, ", "))
}

// Is makes InvalidTransitionError match ErrInvalidTransition.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// StepExecutionError wraps an agent failure after all retries for a step
// have been exhausted.
type StepExecutionError struct {
	Step        string
	Message     string
	Recoverable bool
	Suggestions []string
	Err         error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("bidflow: step %q failed: %s", e.Step, e.Message)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// ValidationError reports a malformed workflow definition or notification
// rule: cyclic dependencies, unknown step references, invalid rule
// configuration.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "bidflow: validation failed: " + e.Reason
	}
	return fmt.Sprintf("bidflow: validation failed on %s: %s", e.Field, e.Reason)
}
