package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/notify"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/store/memory"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

func newState(tenantID string) *workflow.State {
	st := &workflow.State{
		Entity:       bidflow.NewEntity(),
		ID:           id.NewExecutionID(),
		DefinitionID: id.NewDefinitionID(),
		TenantID:     tenantID,
		UserID:       "user-1",
		Status:       workflow.StatusPending,
		StateData:    map[string]any{},
		Metadata:     map[string]string{},
	}
	return st
}

// ──────────────────────────────────────────────────
// States
// ──────────────────────────────────────────────────

func TestStateRoundTrip(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	st := newState("t1")

	if err := s.CreateState(ctx, st); err != nil {
		t.Fatalf("CreateState: %v", err)
	}
	got, err := s.GetState(ctx, st.ID)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if got.ID != st.ID || got.TenantID != "t1" || got.Status != workflow.StatusPending {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	// Returned record is a copy; mutating it must not affect the store.
	got.StateData["injected"] = true
	again, _ := s.GetState(ctx, st.ID)
	if _, ok := again.StateData["injected"]; ok {
		t.Fatal("store returned a shared reference")
	}
}

func TestStateNotFound(t *testing.T) {
	s := memory.New()
	_, err := s.GetState(context.Background(), id.NewExecutionID())
	if !errors.Is(err, bidflow.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateStateVersionConflict(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	st := newState("t1")
	if err := s.CreateState(ctx, st); err != nil {
		t.Fatalf("CreateState: %v", err)
	}

	a, _ := s.GetState(ctx, st.ID)
	b, _ := s.GetState(ctx, st.ID)

	a.Status = workflow.StatusRunning
	if err := s.UpdateState(ctx, a); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if a.Version != st.Version+1 {
		t.Fatalf("Version = %d, want %d", a.Version, st.Version+1)
	}

	// The stale copy must be rejected.
	b.Status = workflow.StatusCancelled
	if err := s.UpdateState(ctx, b); !errors.Is(err, bidflow.ErrVersionConflict) {
		t.Fatalf("stale update err = %v, want ErrVersionConflict", err)
	}

	got, _ := s.GetState(ctx, st.ID)
	if got.Status != workflow.StatusRunning {
		t.Fatalf("Status = %s, want RUNNING", got.Status)
	}
}

func TestListStatesFilters(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	running := newState("t1")
	running.Status = workflow.StatusRunning
	running.Metadata["project_id"] = "bid-42"
	other := newState("t1")
	foreign := newState("t2")
	for _, st := range []*workflow.State{running, other, foreign} {
		if err := s.CreateState(ctx, st); err != nil {
			t.Fatalf("CreateState: %v", err)
		}
	}

	all, err := s.ListStates(ctx, "t1", workflow.Filter{})
	if err != nil {
		t.Fatalf("ListStates: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}

	byStatus, _ := s.ListStates(ctx, "t1", workflow.Filter{Status: workflow.StatusRunning})
	if len(byStatus) != 1 || byStatus[0].ID != running.ID {
		t.Fatalf("status filter returned %d records", len(byStatus))
	}

	byProject, _ := s.ListStates(ctx, "t1", workflow.Filter{Project: "bid-42"})
	if len(byProject) != 1 || byProject[0].ID != running.ID {
		t.Fatalf("project filter returned %d records", len(byProject))
	}

	limited, _ := s.ListStates(ctx, "t1", workflow.Filter{Limit: 1, Offset: 1})
	if len(limited) != 1 {
		t.Fatalf("limit/offset returned %d records", len(limited))
	}
}

func TestListActiveStates(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	running := newState("t1")
	running.Status = workflow.StatusRunning
	paused := newState("t2")
	paused.Status = workflow.StatusPaused
	done := newState("t1")
	done.Status = workflow.StatusCompleted
	for _, st := range []*workflow.State{running, paused, done} {
		if err := s.CreateState(ctx, st); err != nil {
			t.Fatalf("CreateState: %v", err)
		}
	}

	active, err := s.ListActiveStates(ctx)
	if err != nil {
		t.Fatalf("ListActiveStates: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("len = %d, want 2 (running + paused across tenants)", len(active))
	}
}

func TestRemoveState(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	st := newState("t1")
	if err := s.CreateState(ctx, st); err != nil {
		t.Fatalf("CreateState: %v", err)
	}

	removed, err := s.RemoveState(ctx, st.ID)
	if err != nil || !removed {
		t.Fatalf("RemoveState = %v, %v; want true, nil", removed, err)
	}
	removed, err = s.RemoveState(ctx, st.ID)
	if err != nil || removed {
		t.Fatalf("second RemoveState = %v, %v; want false, nil", removed, err)
	}
}

// ──────────────────────────────────────────────────
// Checkpoints
// ──────────────────────────────────────────────────

func appendCheckpoint(t *testing.T, s *memory.Store, execID id.ExecutionID, step string, at time.Time) *workflow.Checkpoint {
	t.Helper()
	cp := &workflow.Checkpoint{
		ID:          id.NewCheckpointID(),
		ExecutionID: execID,
		StepID:      step,
		Data:        []byte(`{"state_data":{},"completed_steps":[]}`),
		Recoverable: true,
		CreatedAt:   at,
	}
	if err := s.AppendCheckpoint(context.Background(), cp); err != nil {
		t.Fatalf("AppendCheckpoint: %v", err)
	}
	return cp
}

func TestCheckpointOrdering(t *testing.T) {
	s := memory.New()
	execID := id.NewExecutionID()
	base := time.Now().UTC().Add(-time.Hour)

	appendCheckpoint(t, s, execID, "a", base)
	appendCheckpoint(t, s, execID, "b", base.Add(time.Minute))
	last := appendCheckpoint(t, s, execID, "c", base.Add(2*time.Minute))

	list, err := s.ListCheckpoints(context.Background(), execID)
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	if list[0].StepID != "c" || list[2].StepID != "a" {
		t.Fatalf("not newest first: %s, %s, %s", list[0].StepID, list[1].StepID, list[2].StepID)
	}

	latest, err := s.LatestCheckpoint(context.Background(), execID)
	if err != nil {
		t.Fatalf("LatestCheckpoint: %v", err)
	}
	if latest.ID != last.ID {
		t.Fatalf("latest = %s, want %s", latest.ID, last.ID)
	}
}

func TestLatestCheckpointAbsent(t *testing.T) {
	s := memory.New()
	cp, err := s.LatestCheckpoint(context.Background(), id.NewExecutionID())
	if err != nil || cp != nil {
		t.Fatalf("LatestCheckpoint = %v, %v; want nil, nil", cp, err)
	}
}

func TestDeleteCheckpoints(t *testing.T) {
	s := memory.New()
	execID := id.NewExecutionID()
	now := time.Now().UTC()
	appendCheckpoint(t, s, execID, "a", now)
	appendCheckpoint(t, s, execID, "b", now)

	n, err := s.DeleteCheckpoints(context.Background(), execID)
	if err != nil || n != 2 {
		t.Fatalf("DeleteCheckpoints = %d, %v; want 2, nil", n, err)
	}
	list, _ := s.ListCheckpoints(context.Background(), execID)
	if len(list) != 0 {
		t.Fatalf("len after delete = %d, want 0", len(list))
	}
}

func TestCleanupCheckpointsKeepsNewest(t *testing.T) {
	s := memory.New()
	execID := id.NewExecutionID()
	old := time.Now().UTC().Add(-48 * time.Hour)

	// Five old checkpoints; cleanup with keep=3 must retain the three
	// newest even though all are past the cutoff.
	for i := 0; i < 5; i++ {
		appendCheckpoint(t, s, execID, string(rune('a'+i)), old.Add(time.Duration(i)*time.Minute))
	}

	cutoff := time.Now().UTC().Add(-time.Hour)
	removed, err := s.CleanupCheckpoints(context.Background(), execID, cutoff, 3)
	if err != nil {
		t.Fatalf("CleanupCheckpoints: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	list, _ := s.ListCheckpoints(context.Background(), execID)
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	if list[0].StepID != "e" || list[2].StepID != "c" {
		t.Fatalf("wrong survivors: %s, %s, %s", list[0].StepID, list[1].StepID, list[2].StepID)
	}
}

func TestCleanupCheckpointsRecentSurvive(t *testing.T) {
	s := memory.New()
	execID := id.NewExecutionID()
	now := time.Now().UTC()

	appendCheckpoint(t, s, execID, "old", now.Add(-48*time.Hour))
	appendCheckpoint(t, s, execID, "recent", now)

	removed, err := s.CleanupCheckpoints(context.Background(), execID, now.Add(-time.Hour), 1)
	if err != nil || removed != 1 {
		t.Fatalf("CleanupCheckpoints = %d, %v; want 1, nil", removed, err)
	}
	list, _ := s.ListCheckpoints(context.Background(), execID)
	if len(list) != 1 || list[0].StepID != "recent" {
		t.Fatalf("unexpected survivors: %+v", list)
	}
}

// ──────────────────────────────────────────────────
// Definitions
// ──────────────────────────────────────────────────

func TestDefinitionRoundTrip(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	def := &workflow.Definition{
		Entity:   bidflow.NewEntity(),
		ID:       id.NewDefinitionID(),
		Name:     "bid-proposal",
		Version:  "1.0.0",
		TenantID: "t1",
		Steps:    []workflow.Step{{ID: "analyze", AgentType: "analyzer"}},
		IsActive: true,
	}

	if err := s.CreateDefinition(ctx, def); err != nil {
		t.Fatalf("CreateDefinition: %v", err)
	}
	if err := s.CreateDefinition(ctx, def); !errors.Is(err, bidflow.ErrAlreadyExists) {
		t.Fatalf("duplicate err = %v, want ErrAlreadyExists", err)
	}

	got, err := s.GetDefinition(ctx, def.ID)
	if err != nil {
		t.Fatalf("GetDefinition: %v", err)
	}
	if got.Name != "bid-proposal" || len(got.Steps) != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	_, err = s.GetDefinition(ctx, id.NewDefinitionID())
	if !errors.Is(err, bidflow.ErrDefinitionNotFound) {
		t.Fatalf("missing err = %v, want ErrDefinitionNotFound", err)
	}
}

// ──────────────────────────────────────────────────
// Rules
// ──────────────────────────────────────────────────

func TestRuleTenantScoping(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	r := &notify.Rule{
		Entity:    bidflow.NewEntity(),
		ID:        id.NewRuleID(),
		TenantID:  "t1",
		EventType: notify.EventCompletion,
		Method:    notify.MethodLog,
		Enabled:   true,
	}
	if err := s.CreateRule(ctx, r); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	if _, err := s.GetRule(ctx, "t1", r.ID); err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	// Another tenant must not see or delete the rule.
	if _, err := s.GetRule(ctx, "t2", r.ID); !errors.Is(err, bidflow.ErrRuleNotFound) {
		t.Fatalf("cross-tenant GetRule err = %v, want ErrRuleNotFound", err)
	}
	if err := s.DeleteRule(ctx, "t2", r.ID); !errors.Is(err, bidflow.ErrRuleNotFound) {
		t.Fatalf("cross-tenant DeleteRule err = %v, want ErrRuleNotFound", err)
	}

	r.Enabled = false
	if err := s.UpdateRule(ctx, r); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	got, _ := s.GetRule(ctx, "t1", r.ID)
	if got.Enabled {
		t.Fatal("update not persisted")
	}

	rules, _ := s.ListRules(ctx, "t1")
	if len(rules) != 1 {
		t.Fatalf("ListRules len = %d, want 1", len(rules))
	}
	if err := s.DeleteRule(ctx, "t1", r.ID); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
}
