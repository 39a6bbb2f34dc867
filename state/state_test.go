package state_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/state"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/store/memory"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/stream"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

func newStore() *state.Store {
	broker := stream.NewBroker(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return state.NewStore(memory.New(), broker)
}

func newState() *workflow.State {
	return &workflow.State{
		Entity:       bidflow.NewEntity(),
		ID:           id.NewExecutionID(),
		DefinitionID: id.NewDefinitionID(),
		TenantID:     "t1",
		Status:       workflow.StatusPending,
		StateData:    map[string]any{},
		Metadata:     map[string]string{},
	}
}

func recvEvent(t *testing.T, sub *stream.Subscriber) *stream.Event {
	t.Helper()
	select {
	case evt, ok := <-sub.C():
		if !ok {
			t.Fatal("subscriber closed")
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func TestSubscribeSeesStatusChanges(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	st := newState()

	sub := s.Subscribe(st.ID)
	defer s.Unsubscribe(sub)

	if err := s.CreateState(ctx, st); err != nil {
		t.Fatalf("CreateState: %v", err)
	}
	evt := recvEvent(t, sub)
	if evt.Type != stream.EventStatusChanged {
		t.Fatalf("Type = %s, want status_changed", evt.Type)
	}

	st.Status = workflow.StatusRunning
	if err := s.UpdateState(ctx, st); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	evt = recvEvent(t, sub)
	if evt.Type != stream.EventStatusChanged {
		t.Fatalf("Type = %s, want status_changed", evt.Type)
	}
}

func TestNoEventWithoutStatusChange(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	st := newState()
	if err := s.CreateState(ctx, st); err != nil {
		t.Fatalf("CreateState: %v", err)
	}

	sub := s.Subscribe(st.ID)
	defer s.Unsubscribe(sub)

	// Same status: a data-only update stays silent.
	st.StateData["progress"] = 0.5
	if err := s.UpdateState(ctx, st); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	select {
	case evt := <-sub.C():
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCASFailureSuppressesEvent(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	st := newState()
	if err := s.CreateState(ctx, st); err != nil {
		t.Fatalf("CreateState: %v", err)
	}

	stale := st.Clone()
	st.Status = workflow.StatusRunning
	if err := s.UpdateState(ctx, st); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}

	sub := s.Subscribe(st.ID)
	defer s.Unsubscribe(sub)

	stale.Status = workflow.StatusCancelled
	if err := s.UpdateState(ctx, stale); err == nil {
		t.Fatal("expected version conflict")
	}
	select {
	case evt := <-sub.C():
		t.Fatalf("event published for failed write: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDelegationRoundTrip(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	st := newState()
	if err := s.CreateState(ctx, st); err != nil {
		t.Fatalf("CreateState: %v", err)
	}

	got, err := s.GetState(ctx, st.ID)
	if err != nil || got.ID != st.ID {
		t.Fatalf("GetState = %+v, %v", got, err)
	}

	list, err := s.ListStates(ctx, "t1", workflow.Filter{})
	if err != nil || len(list) != 1 {
		t.Fatalf("ListStates = %d records, %v", len(list), err)
	}

	removed, err := s.RemoveState(ctx, st.ID)
	if err != nil || !removed {
		t.Fatalf("RemoveState = %v, %v", removed, err)
	}
}
