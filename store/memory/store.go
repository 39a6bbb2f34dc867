// Package memory provides a fully in-memory store implementation.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/notify"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

// Compile-time interface checks, one per subsystem.
var (
	_ workflow.StateStore      = (*Store)(nil)
	_ workflow.CheckpointStore = (*Store)(nil)
	_ workflow.DefinitionStore = (*Store)(nil)
	_ notify.RuleStore         = (*Store)(nil)
	_ bidflow.Storer           = (*Store)(nil)
)

// Store keeps all records in maps guarded by a single RWMutex.
type Store struct {
	mu sync.RWMutex

	definitions map[string]*workflow.Definition
	states      map[string]*workflow.State
	checkpoints map[string][]*workflow.Checkpoint // key: execution ID, append order
	rules       map[string]*notify.Rule
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		definitions: make(map[string]*workflow.Definition),
		states:      make(map[string]*workflow.State),
		checkpoints: make(map[string][]*workflow.Checkpoint),
		rules:       make(map[string]*notify.Rule),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Definition Store
// ──────────────────────────────────────────────────

// CreateDefinition persists a new workflow template.
func (m *Store) CreateDefinition(_ context.Context, def *workflow.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := def.ID.String()
	if _, exists := m.definitions[key]; exists {
		return bidflow.ErrAlreadyExists
	}
	cp := *def
	m.definitions[key] = &cp
	return nil
}

// GetDefinition retrieves a workflow template by ID.
func (m *Store) GetDefinition(_ context.Context, defID id.DefinitionID) (*workflow.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	def, ok := m.definitions[defID.String()]
	if !ok {
		return nil, bidflow.ErrDefinitionNotFound
	}
	cp := *def
	return &cp, nil
}

// ──────────────────────────────────────────────────
// State Store
// ──────────────────────────────────────────────────

// CreateState persists a new execution record.
func (m *Store) CreateState(_ context.Context, st *workflow.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := st.ID.String()
	if _, exists := m.states[key]; exists {
		return bidflow.ErrAlreadyExists
	}
	m.states[key] = st.Clone()
	return nil
}

// GetState retrieves an execution record by ID.
func (m *Store) GetState(_ context.Context, execID id.ExecutionID) (*workflow.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[execID.String()]
	if !ok {
		return nil, bidflow.ErrNotFound
	}
	return st.Clone(), nil
}

// UpdateState persists changes to an existing record. The write is
// compare-and-swap on Version: a mismatch returns ErrVersionConflict,
// success bumps the stored and caller's Version.
func (m *Store) UpdateState(_ context.Context, st *workflow.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := st.ID.String()
	current, ok := m.states[key]
	if !ok {
		return bidflow.ErrNotFound
	}
	if current.Version != st.Version {
		return bidflow.ErrVersionConflict
	}

	cp := st.Clone()
	cp.Version++
	cp.UpdatedAt = time.Now().UTC()
	m.states[key] = cp

	st.Version = cp.Version
	st.UpdatedAt = cp.UpdatedAt
	return nil
}

// ListStates returns the tenant's executions matching the filter,
// oldest first.
func (m *Store) ListStates(_ context.Context, tenantID string, f workflow.Filter) ([]*workflow.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*workflow.State, 0)
	for _, st := range m.states {
		if st.TenantID != tenantID {
			continue
		}
		if f.Status != "" && st.Status != f.Status {
			continue
		}
		if f.Project != "" && st.Project() != f.Project {
			continue
		}
		result = append(result, st.Clone())
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(result) {
			return []*workflow.State{}, nil
		}
		result = result[f.Offset:]
	}
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

// ListActiveStates returns every RUNNING or PAUSED execution across
// all tenants.
func (m *Store) ListActiveStates(_ context.Context) ([]*workflow.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*workflow.State, 0)
	for _, st := range m.states {
		if st.Status.Active() {
			result = append(result, st.Clone())
		}
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// RemoveState deletes an execution record.
func (m *Store) RemoveState(_ context.Context, execID id.ExecutionID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := execID.String()
	if _, ok := m.states[key]; !ok {
		return false, nil
	}
	delete(m.states, key)
	return true, nil
}

// ──────────────────────────────────────────────────
// Checkpoint Store
// ──────────────────────────────────────────────────

// AppendCheckpoint persists a new checkpoint entry.
func (m *Store) AppendCheckpoint(_ context.Context, cp *workflow.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cp.ExecutionID.String()
	dup := *cp
	dup.Data = append([]byte(nil), cp.Data...)
	m.checkpoints[key] = append(m.checkpoints[key], &dup)
	return nil
}

// ListCheckpoints returns all checkpoints for an execution, newest first.
func (m *Store) ListCheckpoints(_ context.Context, execID id.ExecutionID) ([]*workflow.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.checkpoints[execID.String()]
	result := make([]*workflow.Checkpoint, 0, len(entries))
	// Stored in append order; reverse for newest first.
	for i := len(entries) - 1; i >= 0; i-- {
		dup := *entries[i]
		dup.Data = append([]byte(nil), entries[i].Data...)
		result = append(result, &dup)
	}
	return result, nil
}

// LatestCheckpoint returns the most recent checkpoint, or nil if none.
func (m *Store) LatestCheckpoint(_ context.Context, execID id.ExecutionID) (*workflow.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.checkpoints[execID.String()]
	if len(entries) == 0 {
		return nil, nil
	}
	last := entries[len(entries)-1]
	dup := *last
	dup.Data = append([]byte(nil), last.Data...)
	return &dup, nil
}

// DeleteCheckpoints removes every checkpoint for an execution.
func (m *Store) DeleteCheckpoints(_ context.Context, execID id.ExecutionID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := execID.String()
	n := len(m.checkpoints[key])
	delete(m.checkpoints, key)
	return n, nil
}

// CleanupCheckpoints removes checkpoints created before the cutoff,
// always retaining the keep most-recent entries regardless of age.
func (m *Store) CleanupCheckpoints(_ context.Context, execID id.ExecutionID, cutoff time.Time, keep int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := execID.String()
	entries := m.checkpoints[key]
	if len(entries) <= keep {
		return 0, nil
	}

	// Entries are in append order: everything before the keep-newest
	// suffix is an eviction candidate.
	protected := len(entries) - keep
	kept := make([]*workflow.Checkpoint, 0, len(entries))
	removed := 0
	for i, cp := range entries {
		if i >= protected || !cp.CreatedAt.Before(cutoff) {
			kept = append(kept, cp)
		} else {
			removed++
		}
	}
	m.checkpoints[key] = kept
	return removed, nil
}

// ──────────────────────────────────────────────────
// Rule Store
// ──────────────────────────────────────────────────

// CreateRule persists a new notification rule.
func (m *Store) CreateRule(_ context.Context, r *notify.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, exists := m.rules[key]; exists {
		return bidflow.ErrAlreadyExists
	}
	cp := *r
	m.rules[key] = &cp
	return nil
}

// GetRule retrieves a rule scoped to the tenant.
func (m *Store) GetRule(_ context.Context, tenantID string, ruleID id.RuleID) (*notify.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rules[ruleID.String()]
	if !ok || r.TenantID != tenantID {
		return nil, bidflow.ErrRuleNotFound
	}
	cp := *r
	return &cp, nil
}

// ListRules returns all of a tenant's rules.
func (m *Store) ListRules(_ context.Context, tenantID string) ([]*notify.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*notify.Rule, 0)
	for _, r := range m.rules {
		if r.TenantID != tenantID {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// UpdateRule persists changes to an existing rule.
func (m *Store) UpdateRule(_ context.Context, r *notify.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	current, ok := m.rules[key]
	if !ok || current.TenantID != r.TenantID {
		return bidflow.ErrRuleNotFound
	}
	cp := *r
	cp.UpdatedAt = time.Now().UTC()
	m.rules[key] = &cp
	return nil
}

// DeleteRule removes a rule scoped to the tenant.
func (m *Store) DeleteRule(_ context.Context, tenantID string, ruleID id.RuleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ruleID.String()
	current, ok := m.rules[key]
	if !ok || current.TenantID != tenantID {
		return bidflow.ErrRuleNotFound
	}
	delete(m.rules, key)
	return nil
}
