package notify_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/notify"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/store/memory"
)

type captureDeliverer struct {
	mu         sync.Mutex
	deliveries []notify.Delivery
	fail       bool
}

func (c *captureDeliverer) Deliver(_ context.Context, d notify.Delivery) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("delivery refused")
	}
	c.deliveries = append(c.deliveries, d)
	return nil
}

func (c *captureDeliverer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deliveries)
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func addRule(t *testing.T, store *memory.Store, r *notify.Rule) *notify.Rule {
	t.Helper()
	r.Entity = bidflow.NewEntity()
	r.ID = id.NewRuleID()
	if r.TenantID == "" {
		r.TenantID = "t1"
	}
	if err := store.CreateRule(context.Background(), r); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	return r
}

func TestNotifyMatchesEventType(t *testing.T) {
	store := memory.New()
	cap := &captureDeliverer{}
	eng := notify.NewEngine(store, quiet(), notify.WithDeliverer(notify.MethodWebhook, cap))

	addRule(t, store, &notify.Rule{
		EventType: notify.EventCompletion,
		Method:    notify.MethodWebhook,
		Target:    "https://hooks.example.com/done",
		Enabled:   true,
	})

	n := eng.Notify(context.Background(), &notify.Event{
		Type:        notify.EventCompletion,
		TenantID:    "t1",
		ExecutionID: "wf_1",
		Status:      "COMPLETED",
	})
	if n != 1 || cap.count() != 1 {
		t.Fatalf("attempted = %d, delivered = %d; want 1, 1", n, cap.count())
	}

	// Different event type does not fire.
	n = eng.Notify(context.Background(), &notify.Event{
		Type:     notify.EventError,
		TenantID: "t1",
	})
	if n != 0 {
		t.Fatalf("attempted = %d, want 0", n)
	}
}

func TestNotifyConditionsEquality(t *testing.T) {
	store := memory.New()
	cap := &captureDeliverer{}
	eng := notify.NewEngine(store, quiet(), notify.WithDeliverer(notify.MethodWebhook, cap))

	addRule(t, store, &notify.Rule{
		EventType:  notify.EventStatusChange,
		Method:     notify.MethodWebhook,
		Target:     "https://hooks.example.com/failed",
		Conditions: map[string]any{"status": "FAILED"},
		Enabled:    true,
	})

	if n := eng.Notify(context.Background(), &notify.Event{
		Type: notify.EventStatusChange, TenantID: "t1", Status: "RUNNING",
	}); n != 0 {
		t.Fatalf("non-matching condition fired %d times", n)
	}
	if n := eng.Notify(context.Background(), &notify.Event{
		Type: notify.EventStatusChange, TenantID: "t1", Status: "FAILED",
	}); n != 1 {
		t.Fatalf("matching condition fired %d times, want 1", n)
	}
}

func TestNotifyDisabledAndScopedRules(t *testing.T) {
	store := memory.New()
	cap := &captureDeliverer{}
	eng := notify.NewEngine(store, quiet(), notify.WithDeliverer(notify.MethodWebhook, cap))

	addRule(t, store, &notify.Rule{
		EventType: notify.EventCompletion,
		Method:    notify.MethodWebhook,
		Target:    "https://hooks.example.com/a",
		Enabled:   false,
	})
	addRule(t, store, &notify.Rule{
		EventType:   notify.EventCompletion,
		Method:      notify.MethodWebhook,
		Target:      "https://hooks.example.com/b",
		ExecutionID: "wf_other",
		Enabled:     true,
	})

	n := eng.Notify(context.Background(), &notify.Event{
		Type:        notify.EventCompletion,
		TenantID:    "t1",
		ExecutionID: "wf_mine",
	})
	if n != 0 {
		t.Fatalf("attempted = %d, want 0 (disabled + wrong execution scope)", n)
	}
}

func TestNotifyFailureRecordedNotPropagated(t *testing.T) {
	store := memory.New()
	cap := &captureDeliverer{fail: true}
	eng := notify.NewEngine(store, quiet(), notify.WithDeliverer(notify.MethodWebhook, cap))

	addRule(t, store, &notify.Rule{
		EventType: notify.EventError,
		Method:    notify.MethodWebhook,
		Target:    "https://hooks.example.com/err",
		Enabled:   true,
	})

	n := eng.Notify(context.Background(), &notify.Event{
		Type: notify.EventError, TenantID: "t1", ExecutionID: "wf_1",
	})
	if n != 1 {
		t.Fatalf("attempted = %d, want 1", n)
	}

	history := eng.History("t1", "wf_1")
	if len(history) != 1 {
		t.Fatalf("history len = %d, want 1", len(history))
	}
	if history[0].Delivered || history[0].Error == "" {
		t.Fatalf("attempt should record the failure: %+v", history[0])
	}
	if history[0].ID == "" {
		t.Fatal("attempt must carry an ID")
	}
}

func TestHistoryPerWorkflowCap(t *testing.T) {
	store := memory.New()
	cap := &captureDeliverer{}
	eng := notify.NewEngine(store, quiet(),
		notify.WithDeliverer(notify.MethodWebhook, cap),
		notify.WithHistoryLimits(1000, 5),
	)

	addRule(t, store, &notify.Rule{
		EventType: notify.EventStepCompletion,
		Method:    notify.MethodWebhook,
		Target:    "https://hooks.example.com/steps",
		Enabled:   true,
	})

	for i := 0; i < 8; i++ {
		eng.Notify(context.Background(), &notify.Event{
			Type:        notify.EventStepCompletion,
			TenantID:    "t1",
			ExecutionID: "wf_1",
			StepID:      fmt.Sprintf("step-%d", i),
		})
	}

	history := eng.History("t1", "wf_1")
	if len(history) != 5 {
		t.Fatalf("history len = %d, want 5", len(history))
	}
}

func TestHistoryGlobalCap(t *testing.T) {
	store := memory.New()
	cap := &captureDeliverer{}
	eng := notify.NewEngine(store, quiet(),
		notify.WithDeliverer(notify.MethodWebhook, cap),
		notify.WithHistoryLimits(3, 50),
	)

	addRule(t, store, &notify.Rule{
		EventType: notify.EventCompletion,
		Method:    notify.MethodWebhook,
		Target:    "https://hooks.example.com/done",
		Enabled:   true,
	})

	for i := 0; i < 6; i++ {
		eng.Notify(context.Background(), &notify.Event{
			Type:        notify.EventCompletion,
			TenantID:    "t1",
			ExecutionID: fmt.Sprintf("wf_%d", i),
		})
	}
	if got := len(eng.History("t1", "")); got != 3 {
		t.Fatalf("history len = %d, want 3", got)
	}
}

func TestRuleValidate(t *testing.T) {
	cases := []struct {
		name string
		rule notify.Rule
		ok   bool
	}{
		{"valid webhook", notify.Rule{TenantID: "t1", EventType: notify.EventError, Method: notify.MethodWebhook, Target: "https://x"}, true},
		{"log without target", notify.Rule{TenantID: "t1", EventType: notify.EventError, Method: notify.MethodLog}, true},
		{"missing tenant", notify.Rule{EventType: notify.EventError, Method: notify.MethodLog}, false},
		{"bad event type", notify.Rule{TenantID: "t1", EventType: "nope", Method: notify.MethodLog}, false},
		{"bad method", notify.Rule{TenantID: "t1", EventType: notify.EventError, Method: "pigeon"}, false},
		{"webhook without target", notify.Rule{TenantID: "t1", EventType: notify.EventError, Method: notify.MethodWebhook}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rule.Validate()
			if tc.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
