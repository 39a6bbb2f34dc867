package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
)

// Checkpoint stores an immutable snapshot of accumulated execution state
// taken after a checkpointable step completes. Append-only: a re-run of a
// step produces a new entry rather than overwriting.
type Checkpoint struct {
	ID          id.CheckpointID `json:"id"`
	ExecutionID id.ExecutionID  `json:"execution_id"`
	StepID      string          `json:"step_id"`
	Data        []byte          `json:"data"`
	Recoverable bool            `json:"is_recoverable"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Snapshot is the decoded checkpoint payload: the accumulated state data
// and the completed-step set as of the checkpointed step.
type Snapshot struct {
	StateData      map[string]any `json:"state_data"`
	CompletedSteps []string       `json:"completed_steps"`
}

// NewSnapshot serializes the execution's recoverable state.
func NewSnapshot(st *State) ([]byte, error) {
	snap := Snapshot{
		StateData:      st.StateData,
		CompletedSteps: st.CompletedSteps,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("workflow: encode snapshot for %s: %w", st.ID, err)
	}
	return data, nil
}

// DecodeSnapshot parses a checkpoint payload.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("workflow: decode snapshot: %w", err)
	}
	return &snap, nil
}
