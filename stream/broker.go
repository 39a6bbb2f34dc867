package stream

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker fans workflow lifecycle events out to subscribers via
// topic-based pub/sub. Publishing never blocks: subscribers that fall
// behind drop events.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Metrics.
	totalPublished atomic.Int64

	// Config.
	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Topics returns the topic registry for external use.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
}

// publish broadcasts an event to all matching topics.
func (b *Broker) publish(evt *Event) {
	delivered := b.topics.Broadcast(resolveTopics(evt), evt)
	b.totalPublished.Add(int64(delivered))
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// ── Lifecycle publishers ────────────────────────────

// PublishStatusChange emits a status transition for an execution.
// Terminal statuses additionally emit their dedicated event type.
func (b *Broker) PublishStatusChange(st *workflow.State, previous workflow.Status) {
	data := ExecutionEventData{
		ExecutionID:  st.ID.String(),
		DefinitionID: st.DefinitionID.String(),
		TenantID:     st.TenantID,
		Status:       string(st.Status),
		Previous:     string(previous),
	}
	if st.ErrorInfo != nil {
		data.Error = st.ErrorInfo.Message
	}
	b.emit(EventStatusChanged, st, data)

	switch st.Status {
	case workflow.StatusCompleted:
		b.emit(EventCompleted, st, data)
	case workflow.StatusFailed:
		b.emit(EventFailed, st, data)
	}
}

// PublishStepCompleted emits a step completion event.
func (b *Broker) PublishStepCompleted(st *workflow.State, stepID string, elapsed time.Duration) {
	b.emit(EventStepCompleted, st, ExecutionEventData{
		ExecutionID:  st.ID.String(),
		DefinitionID: st.DefinitionID.String(),
		TenantID:     st.TenantID,
		Status:       string(st.Status),
		StepID:       stepID,
		ElapsedMs:    elapsed.Milliseconds(),
	})
}

// PublishStepFailed emits a step failure event.
func (b *Broker) PublishStepFailed(st *workflow.State, stepID string, stepErr error) {
	b.emit(EventStepFailed, st, ExecutionEventData{
		ExecutionID:  st.ID.String(),
		DefinitionID: st.DefinitionID.String(),
		TenantID:     st.TenantID,
		Status:       string(st.Status),
		StepID:       stepID,
		Error:        stepErr.Error(),
	})
}

// PublishCheckpoint emits a checkpoint-written event.
func (b *Broker) PublishCheckpoint(st *workflow.State, checkpointID, stepID string) {
	b.emit(EventCheckpointWritten, st, ExecutionEventData{
		ExecutionID:  st.ID.String(),
		TenantID:     st.TenantID,
		StepID:       stepID,
		CheckpointID: checkpointID,
	})
}

func (b *Broker) emit(t EventType, st *workflow.State, data ExecutionEventData) {
	b.publish(&Event{
		Type:      t,
		Timestamp: time.Now().UTC(),
		Topic:     WorkflowTopic(st.ID.String()),
		TenantID:  st.TenantID,
		Data:      mustMarshal(data),
	})
}

// Shutdown closes all subscribers.
func (b *Broker) Shutdown() {
	b.subscribers.Range(func(key, value any) bool {
		value.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
}
