// Package state decorates a workflow.StateStore with live change
// publication. Every successful create or status-changing update is
// fanned out through the stream broker, so clients can watch an
// execution without polling the store.
package state

import (
	"context"

	"github.com/google/uuid"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/stream"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

// Store wraps an inner StateStore and publishes changes to the broker.
type Store struct {
	inner  workflow.StateStore
	broker *stream.Broker
}

var _ workflow.StateStore = (*Store)(nil)

// NewStore returns a publishing decorator over inner.
func NewStore(inner workflow.StateStore, broker *stream.Broker) *Store {
	return &Store{inner: inner, broker: broker}
}

// Broker exposes the underlying broker for direct event publication.
func (s *Store) Broker() *stream.Broker { return s.broker }

func (s *Store) CreateState(ctx context.Context, st *workflow.State) error {
	if err := s.inner.CreateState(ctx, st); err != nil {
		return err
	}
	s.broker.PublishStatusChange(st, "")
	return nil
}

func (s *Store) GetState(ctx context.Context, execID id.ExecutionID) (*workflow.State, error) {
	return s.inner.GetState(ctx, execID)
}

// UpdateState persists st and, when the persisted status differs from
// the previous one, publishes a status change. The compare read happens
// before the write; a CAS failure in the inner store suppresses the
// event.
func (s *Store) UpdateState(ctx context.Context, st *workflow.State) error {
	previous := workflow.Status("")
	if before, err := s.inner.GetState(ctx, st.ID); err == nil {
		previous = before.Status
	}
	if err := s.inner.UpdateState(ctx, st); err != nil {
		return err
	}
	if st.Status != previous {
		s.broker.PublishStatusChange(st, previous)
	}
	return nil
}

func (s *Store) ListStates(ctx context.Context, tenantID string, f workflow.Filter) ([]*workflow.State, error) {
	return s.inner.ListStates(ctx, tenantID, f)
}

func (s *Store) ListActiveStates(ctx context.Context) ([]*workflow.State, error) {
	return s.inner.ListActiveStates(ctx)
}

func (s *Store) RemoveState(ctx context.Context, execID id.ExecutionID) (bool, error) {
	return s.inner.RemoveState(ctx, execID)
}

// Subscribe opens a live event stream for one execution. Callers must
// Unsubscribe when done.
func (s *Store) Subscribe(execID id.ExecutionID) *stream.Subscriber {
	return s.broker.Subscribe(uuid.NewString(), stream.WorkflowTopic(execID.String()))
}

// Unsubscribe tears down a subscriber opened with Subscribe.
func (s *Store) Unsubscribe(sub *stream.Subscriber) {
	s.broker.RemoveSubscriber(sub.ID())
}
