package workflow

import (
	"context"
	"time"

	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
)

// Filter controls state list queries.
type Filter struct {
	// Status filters by execution status. Empty means all statuses.
	Status Status
	// Project filters by the logical-project metadata key.
	Project string
	// Limit is the maximum number of records to return. Zero means no limit.
	Limit int
	// Offset is the number of records to skip.
	Offset int
}

// StateStore defines the persistence contract for execution records.
// Implementations must apply UpdateState atomically with respect to
// concurrent updates on the same execution: the write succeeds only when
// the caller's Version matches the stored record (bidflow.ErrVersionConflict
// otherwise), and bumps Version on success.
type StateStore interface {
	// CreateState persists a new execution record.
	CreateState(ctx context.Context, st *State) error

	// GetState retrieves an execution record by ID.
	GetState(ctx context.Context, execID id.ExecutionID) (*State, error)

	// UpdateState persists changes to an existing record, compare-and-swap
	// on st.Version.
	UpdateState(ctx context.Context, st *State) error

	// ListStates returns the tenant's execution records matching the filter,
	// oldest first.
	ListStates(ctx context.Context, tenantID string, f Filter) ([]*State, error)

	// ListActiveStates returns every RUNNING or PAUSED execution across all
	// tenants. Used by the health monitor and crash recovery only.
	ListActiveStates(ctx context.Context) ([]*State, error)

	// RemoveState deletes an execution record. Returns false if it did not
	// exist.
	RemoveState(ctx context.Context, execID id.ExecutionID) (bool, error)
}

// CheckpointStore defines the persistence contract for checkpoints.
// Checkpoints are append-only and never edited once written.
type CheckpointStore interface {
	// AppendCheckpoint persists a new checkpoint entry.
	AppendCheckpoint(ctx context.Context, cp *Checkpoint) error

	// ListCheckpoints returns all checkpoints for an execution, newest first.
	ListCheckpoints(ctx context.Context, execID id.ExecutionID) ([]*Checkpoint, error)

	// LatestCheckpoint returns the most recent checkpoint for an execution,
	// or nil if none exists (absence is not an error).
	LatestCheckpoint(ctx context.Context, execID id.ExecutionID) (*Checkpoint, error)

	// DeleteCheckpoints removes every checkpoint for an execution and
	// returns how many were removed.
	DeleteCheckpoints(ctx context.Context, execID id.ExecutionID) (int, error)

	// CleanupCheckpoints removes checkpoints created before the cutoff,
	// always retaining the keep most-recent entries regardless of age.
	// Returns how many were removed.
	CleanupCheckpoints(ctx context.Context, execID id.ExecutionID, cutoff time.Time, keep int) (int, error)
}

// DefinitionStore defines the persistence contract for workflow templates.
// Definitions are immutable after creation.
type DefinitionStore interface {
	// CreateDefinition persists a new, validated definition.
	CreateDefinition(ctx context.Context, def *Definition) error

	// GetDefinition retrieves a definition by ID.
	GetDefinition(ctx context.Context, defID id.DefinitionID) (*Definition, error)
}
