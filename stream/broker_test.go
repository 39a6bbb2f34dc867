package stream_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/stream"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

func newBroker(opts ...stream.BrokerOption) *stream.Broker {
	return stream.NewBroker(slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func testState() *workflow.State {
	return &workflow.State{
		ID:           id.NewExecutionID(),
		DefinitionID: id.NewDefinitionID(),
		TenantID:     "tenant-1",
		Status:       workflow.StatusRunning,
	}
}

func recvEvent(t *testing.T, sub *stream.Subscriber) *stream.Event {
	t.Helper()
	select {
	case evt, ok := <-sub.C():
		if !ok {
			t.Fatal("subscriber channel closed")
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func TestSubscribeToExecutionTopic(t *testing.T) {
	b := newBroker()
	st := testState()

	sub := b.Subscribe("sub-1", stream.WorkflowTopic(st.ID.String()))
	b.PublishStepCompleted(st, "analyze", 250*time.Millisecond)

	evt := recvEvent(t, sub)
	if evt.Type != stream.EventStepCompleted {
		t.Fatalf("Type = %s, want %s", evt.Type, stream.EventStepCompleted)
	}
	var data stream.ExecutionEventData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.StepID != "analyze" || data.ExecutionID != st.ID.String() {
		t.Fatalf("unexpected payload: %+v", data)
	}
}

func TestTenantTopicReceivesAllTenantEvents(t *testing.T) {
	b := newBroker()
	sub := b.Subscribe("sub-1", stream.TenantTopic("tenant-1"))

	st := testState()
	other := testState()
	other.TenantID = "tenant-2"

	b.PublishStepFailed(st, "draft", errors.New("boom"))
	b.PublishStepFailed(other, "draft", errors.New("boom"))

	evt := recvEvent(t, sub)
	if evt.TenantID != "tenant-1" {
		t.Fatalf("TenantID = %s, want tenant-1", evt.TenantID)
	}
	select {
	case evt := <-sub.C():
		t.Fatalf("unexpected cross-tenant event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStatusChangeEmitsTerminalEvent(t *testing.T) {
	b := newBroker()
	st := testState()
	st.Status = workflow.StatusCompleted

	sub := b.Subscribe("sub-1", stream.WorkflowTopic(st.ID.String()))
	b.PublishStatusChange(st, workflow.StatusRunning)

	first := recvEvent(t, sub)
	second := recvEvent(t, sub)
	if first.Type != stream.EventStatusChanged {
		t.Fatalf("first = %s, want status_changed", first.Type)
	}
	if second.Type != stream.EventCompleted {
		t.Fatalf("second = %s, want completed", second.Type)
	}
}

func TestFirehoseSeesEverything(t *testing.T) {
	b := newBroker()
	sub := b.Subscribe("sub-1", stream.TopicFirehose)

	b.PublishCheckpoint(testState(), "ckpt_123", "analyze")
	evt := recvEvent(t, sub)
	if evt.Type != stream.EventCheckpointWritten {
		t.Fatalf("Type = %s, want checkpoint_written", evt.Type)
	}
}

func TestCreditsExhausted(t *testing.T) {
	b := newBroker(stream.WithDefaultCredits(1))
	st := testState()
	sub := b.Subscribe("sub-1", stream.WorkflowTopic(st.ID.String()))

	b.PublishStepCompleted(st, "a", 0)
	b.PublishStepCompleted(st, "b", 0)

	recvEvent(t, sub)
	select {
	case evt := <-sub.C():
		t.Fatalf("expected drop after credits exhausted, got %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
	if sub.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", sub.Dropped())
	}

	// Replenishing credits resumes delivery.
	sub.AddCredits(10)
	b.PublishStepCompleted(st, "c", 0)
	recvEvent(t, sub)
}

func TestRemoveSubscriberClosesChannel(t *testing.T) {
	b := newBroker()
	sub := b.Subscribe("sub-1", stream.TopicWorkflows)
	b.RemoveSubscriber("sub-1")

	if _, ok := <-sub.C(); ok {
		t.Fatal("channel should be closed after RemoveSubscriber")
	}
	if _, ok := b.GetSubscriber("sub-1"); ok {
		t.Fatal("subscriber should be gone")
	}
}

func TestBroadcastDeduplicates(t *testing.T) {
	b := newBroker()
	st := testState()
	sub := b.Subscribe("sub-1",
		stream.TopicFirehose,
		stream.TopicWorkflows,
		stream.WorkflowTopic(st.ID.String()),
	)

	b.PublishStepCompleted(st, "analyze", 0)
	recvEvent(t, sub)
	select {
	case evt := <-sub.C():
		t.Fatalf("duplicate delivery: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestValidateTopic(t *testing.T) {
	valid := []string{"workflows", "firehose", "workflow:wf_abc", "tenant:t1"}
	for _, topic := range valid {
		if err := stream.ValidateTopic(topic); err != nil {
			t.Errorf("ValidateTopic(%q) = %v, want nil", topic, err)
		}
	}
	invalid := []string{"", "jobs", "queue:default", "workflow:", ":abc"}
	for _, topic := range invalid {
		if err := stream.ValidateTopic(topic); err == nil {
			t.Errorf("ValidateTopic(%q) = nil, want error", topic)
		}
	}
}

func TestStats(t *testing.T) {
	b := newBroker()
	st := testState()
	b.Subscribe("sub-1", stream.TopicFirehose)
	b.Subscribe("sub-2", stream.TopicWorkflows)

	b.PublishStepCompleted(st, "analyze", 0)

	stats := b.Stats()
	if stats.SubscriberCount != 2 {
		t.Fatalf("SubscriberCount = %d, want 2", stats.SubscriberCount)
	}
	if stats.TotalPublished != 2 {
		t.Fatalf("TotalPublished = %d, want 2", stats.TotalPublished)
	}
}

func TestCloseDuringDelivery(t *testing.T) {
	b := newBroker()
	st := testState()

	// Publish and close concurrently; the race detector catches a send
	// on a closed subscriber channel as a panic.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			b.PublishStepCompleted(st, "analyze", 0)
		}
	}()
	for i := 0; i < 20; i++ {
		b.Subscribe("sub-race", stream.WorkflowTopic(st.ID.String()))
		b.RemoveSubscriber("sub-race")
	}
	<-done

	// A closed subscriber silently drops further deliveries.
	sub := b.Subscribe("sub-after", stream.WorkflowTopic(st.ID.String()))
	sub.Close()
	b.PublishStepCompleted(st, "analyze", 0)
	if _, ok := <-sub.C(); ok {
		t.Fatal("closed subscriber received an event")
	}
}
