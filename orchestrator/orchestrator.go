// Package orchestrator drives workflow executions: it schedules ready
// steps through the executor, persists every status change with
// optimistic concurrency, writes checkpoints, and exposes the control
// operations (pause, resume, cancel, restart, recover).
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/agent"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/quota"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/scope"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

// casRetries bounds the reload-and-retry loop around version conflicts.
const casRetries = 5

// Emitter receives workflow lifecycle events. The engine wires an
// implementation that feeds the stream broker and the notification
// engine; the orchestrator itself only depends on this interface.
type Emitter interface {
	StatusChanged(ctx context.Context, st *workflow.State, previous workflow.Status)
	StepCompleted(ctx context.Context, st *workflow.State, stepID string, elapsed time.Duration)
	StepFailed(ctx context.Context, st *workflow.State, stepID string, stepErr error)
	CheckpointWritten(ctx context.Context, st *workflow.State, cp *workflow.Checkpoint)
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) StatusChanged(context.Context, *workflow.State, workflow.Status)       {}
func (NopEmitter) StepCompleted(context.Context, *workflow.State, string, time.Duration) {}
func (NopEmitter) StepFailed(context.Context, *workflow.State, string, error)            {}
func (NopEmitter) CheckpointWritten(context.Context, *workflow.State, *workflow.Checkpoint) {
}

// Orchestrator coordinates executions across the stores, the step
// executor, and the per-tenant quota manager.
type Orchestrator struct {
	states      workflow.StateStore
	checkpoints workflow.CheckpointStore
	definitions workflow.DefinitionStore
	executor    *agent.Executor
	quota       *quota.Manager
	emitter     Emitter
	logger      *slog.Logger
	cfg         bidflow.Config

	// locks serializes control operations per execution.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// base is the lifetime context of all run loops.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEmitter sets the lifecycle event emitter.
func WithEmitter(e Emitter) Option {
	return func(o *Orchestrator) { o.emitter = e }
}

// WithLogger sets the orchestrator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithConfig overrides the default configuration.
func WithConfig(cfg bidflow.Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// New returns an Orchestrator over the given stores and executor.
func New(states workflow.StateStore, checkpoints workflow.CheckpointStore, definitions workflow.DefinitionStore, executor *agent.Executor, qm *quota.Manager, opts ...Option) *Orchestrator {
	base, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		states:      states,
		checkpoints: checkpoints,
		definitions: definitions,
		executor:    executor,
		quota:       qm,
		emitter:     NopEmitter{},
		logger:      slog.Default(),
		cfg:         bidflow.DefaultConfig(),
		locks:       make(map[string]*sync.Mutex),
		base:        base,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// lockFor returns the per-execution mutex, creating it on first use.
func (o *Orchestrator) lockFor(execID id.ExecutionID) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	mu, ok := o.locks[execID.String()]
	if !ok {
		mu = &sync.Mutex{}
		o.locks[execID.String()] = mu
	}
	return mu
}

// loadOwned retrieves an execution and verifies the caller's tenant may
// act on it. A workflow that exists but belongs to another tenant is an
// access error, not a lookup miss.
func (o *Orchestrator) loadOwned(ctx context.Context, execID id.ExecutionID) (*workflow.State, error) {
	st, err := o.states.GetState(ctx, execID)
	if err != nil {
		return nil, err
	}
	if tenantID, _ := scope.Capture(ctx); tenantID != "" && tenantID != st.TenantID {
		return nil, bidflow.ErrAccessDenied
	}
	return st, nil
}

// mutateState reloads, mutates, and writes an execution until the write
// sticks or the conflict budget is exhausted. The mutate callback runs
// against a fresh copy on every attempt and may return an error to
// abort.
func (o *Orchestrator) mutateState(ctx context.Context, execID id.ExecutionID, mutate func(*workflow.State) error) (*workflow.State, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		st, err := o.states.GetState(ctx, execID)
		if err != nil {
			return nil, err
		}
		if err := mutate(st); err != nil {
			return nil, err
		}
		err = o.states.UpdateState(ctx, st)
		if errors.Is(err, bidflow.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, bidflow.ErrVersionConflict
}

// transition applies a control action under the execution's lock. The
// legality check runs inside the retry loop against the freshest state,
// so two racing control calls resolve to exactly one winner; the loser
// gets an InvalidTransitionError naming the actions still available.
func (o *Orchestrator) transition(ctx context.Context, execID id.ExecutionID, action workflow.Action, mutate func(*workflow.State)) (*workflow.State, error) {
	mu := o.lockFor(execID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := o.loadOwned(ctx, execID); err != nil {
		return nil, err
	}

	var previous workflow.Status
	st, err := o.mutateState(ctx, execID, func(st *workflow.State) error {
		if !workflow.CanApply(action, st.Status) {
			return &bidflow.InvalidTransitionError{
				Action:  string(action),
				Status:  string(st.Status),
				Allowed: workflow.AllowedActionStrings(st.Status),
			}
		}
		previous = st.Status
		mutate(st)
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.emitter.StatusChanged(ctx, st, previous)
	return st, nil
}
