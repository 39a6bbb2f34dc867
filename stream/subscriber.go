package stream

import (
	"sync"
	"sync/atomic"
)

// Subscriber is one consumer of workflow events. Delivery is flow
// controlled by credits: each delivered event costs one credit, and the
// broker skips a subscriber whose credits are exhausted. Slow consumers
// lose events instead of stalling the publisher.
type Subscriber struct {
	id string

	ch      chan *Event
	credits atomic.Int64
	dropped atomic.Int64

	mu     sync.RWMutex
	topics map[string]struct{}

	// filter, when set, limits delivery to matching events.
	filter func(*Event) bool

	// closeMu serializes Close against in-flight sends so the channel
	// never closes between the closed check and the send.
	closeMu sync.RWMutex
	closed  bool
}

// NewSubscriber creates a subscriber with the given buffer size
// and initial credits.
func NewSubscriber(id string, bufferSize int, initialCredits int64) *Subscriber {
	s := &Subscriber{
		id:     id,
		ch:     make(chan *Event, bufferSize),
		topics: make(map[string]struct{}),
	}
	s.credits.Store(initialCredits)
	return s
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the read-only event channel.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// AddCredits replenishes flow-control credits.
func (s *Subscriber) AddCredits(n int64) { s.credits.Add(n) }

// Credits returns the current credit count.
func (s *Subscriber) Credits() int64 { return s.credits.Load() }

// Dropped returns how many events were not delivered to this subscriber.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// SetFilter sets an optional event filter predicate. Set it before the
// subscriber is attached to topics.
func (s *Subscriber) SetFilter(fn func(*Event) bool) { s.filter = fn }

func (s *Subscriber) addTopic(topic string) {
	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()
}

func (s *Subscriber) removeTopic(topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

// Topics returns a copy of all subscribed topic names.
func (s *Subscriber) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// send delivers an event without blocking. Returns false when the event
// was dropped: subscriber closed, filter mismatch, no credits, or a full
// buffer.
func (s *Subscriber) send(evt *Event) bool {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return false
	}
	if s.filter != nil && !s.filter(evt) {
		return false
	}

	for {
		current := s.credits.Load()
		if current <= 0 {
			s.dropped.Add(1)
			return false
		}
		if s.credits.CompareAndSwap(current, current-1) {
			break
		}
	}

	select {
	case s.ch <- evt:
		return true
	default:
		// Buffer full; restore the credit.
		s.credits.Add(1)
		s.dropped.Add(1)
		return false
	}
}

// Close closes the subscriber channel. Safe to call multiple times and
// concurrently with deliveries.
func (s *Subscriber) Close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
