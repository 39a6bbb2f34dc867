package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a lifecycle moment evaluated against notification rules.
type Event struct {
	Type         EventType
	TenantID     string
	ExecutionID  string
	DefinitionID string
	Status       string
	StepID       string
	Message      string

	// Data carries extra fields rules can condition on.
	Data map[string]any
}

// field resolves a condition key against the event.
func (e *Event) field(key string) (any, bool) {
	switch key {
	case "status":
		return e.Status, e.Status != ""
	case "step_id":
		return e.StepID, e.StepID != ""
	case "execution_id":
		return e.ExecutionID, e.ExecutionID != ""
	case "definition_id":
		return e.DefinitionID, e.DefinitionID != ""
	}
	v, ok := e.Data[key]
	return v, ok
}

// Attempt records one delivery attempt for the notification history.
type Attempt struct {
	ID          string    `json:"id"`
	RuleID      string    `json:"rule_id"`
	TenantID    string    `json:"tenant_id"`
	ExecutionID string    `json:"execution_id,omitempty"`
	EventType   EventType `json:"event_type"`
	Method      Method    `json:"method"`
	Target      string    `json:"target"`
	Delivered   bool      `json:"delivered"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Engine evaluates events against stored rules and dispatches matched
// notifications. Delivery is best effort: failures are recorded in the
// history but never propagate to the workflow that produced the event.
type Engine struct {
	store      RuleStore
	deliverers map[Method]Deliverer
	logger     *slog.Logger

	historyLimit  int
	perWorkflow   int
	mu            sync.Mutex
	history       []*Attempt
	workflowCount map[string]int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithDeliverer binds a delivery method to an implementation.
func WithDeliverer(m Method, d Deliverer) EngineOption {
	return func(e *Engine) { e.deliverers[m] = d }
}

// WithHistoryLimits overrides the global and per-workflow history caps.
func WithHistoryLimits(global, perWorkflow int) EngineOption {
	return func(e *Engine) {
		if global > 0 {
			e.historyLimit = global
		}
		if perWorkflow > 0 {
			e.perWorkflow = perWorkflow
		}
	}
}

// NewEngine returns an Engine reading rules from store. Without options
// the log method is bound to a LogDeliverer and webhook/slack to an
// HTTPDeliverer; history keeps 1000 attempts globally and 50 per
// workflow.
func NewEngine(store RuleStore, logger *slog.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:         store,
		logger:        logger,
		deliverers:    make(map[Method]Deliverer),
		historyLimit:  1000,
		perWorkflow:   50,
		workflowCount: make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	if _, ok := e.deliverers[MethodLog]; !ok {
		e.deliverers[MethodLog] = NewLogDeliverer(logger)
	}
	if _, ok := e.deliverers[MethodWebhook]; !ok {
		http := NewHTTPDeliverer(nil)
		e.deliverers[MethodWebhook] = http
		if _, ok := e.deliverers[MethodSlack]; !ok {
			e.deliverers[MethodSlack] = http
		}
	}
	return e
}

// Notify evaluates evt against the tenant's rules and dispatches every
// match. It returns the number of notifications attempted.
func (e *Engine) Notify(ctx context.Context, evt *Event) int {
	rules, err := e.store.ListRules(ctx, evt.TenantID)
	if err != nil {
		e.logger.WarnContext(ctx, "list notification rules failed",
			"tenant_id", evt.TenantID, "error", err)
		return 0
	}

	attempted := 0
	for _, r := range rules {
		if !e.matches(r, evt) {
			continue
		}
		e.dispatch(ctx, r, evt)
		attempted++
	}
	return attempted
}

// matches reports whether the rule fires for the event. Conditions are
// compared by equality; a rule without conditions always fires for its
// event type.
func (e *Engine) matches(r *Rule, evt *Event) bool {
	if !r.Enabled || r.EventType != evt.Type {
		return false
	}
	if r.ExecutionID != "" && r.ExecutionID != evt.ExecutionID {
		return false
	}
	for key, want := range r.Conditions {
		got, ok := evt.field(key)
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func (e *Engine) dispatch(ctx context.Context, r *Rule, evt *Event) {
	payload := map[string]any{
		"event_type":   string(evt.Type),
		"tenant_id":    evt.TenantID,
		"execution_id": evt.ExecutionID,
		"rule_id":      r.ID.String(),
	}
	if evt.Status != "" {
		payload["status"] = evt.Status
	}
	if evt.StepID != "" {
		payload["step_id"] = evt.StepID
	}
	if evt.Message != "" {
		payload["message"] = evt.Message
	}
	for k, v := range evt.Data {
		payload[k] = v
	}

	attempt := &Attempt{
		ID:          uuid.NewString(),
		RuleID:      r.ID.String(),
		TenantID:    r.TenantID,
		ExecutionID: evt.ExecutionID,
		EventType:   evt.Type,
		Method:      r.Method,
		Target:      r.Target,
		CreatedAt:   time.Now().UTC(),
	}

	d, ok := e.deliverers[r.Method]
	if !ok {
		attempt.Error = fmt.Sprintf("no deliverer for method %q", r.Method)
		e.logger.WarnContext(ctx, "notification skipped", "rule_id", r.ID, "method", r.Method)
	} else if err := d.Deliver(ctx, Delivery{Method: r.Method, Target: r.Target, Payload: payload}); err != nil {
		attempt.Error = err.Error()
		e.logger.WarnContext(ctx, "notification delivery failed",
			"rule_id", r.ID, "method", r.Method, "error", err)
	} else {
		attempt.Delivered = true
	}
	e.record(attempt)
}

// record appends to the bounded history, evicting the oldest entries
// past the global cap and the oldest entries of a workflow past its
// per-workflow cap.
func (e *Engine) record(a *Attempt) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, a)
	if a.ExecutionID != "" {
		e.workflowCount[a.ExecutionID]++
		if e.workflowCount[a.ExecutionID] > e.perWorkflow {
			e.evictOldest(func(x *Attempt) bool { return x.ExecutionID == a.ExecutionID })
		}
	}
	if len(e.history) > e.historyLimit {
		e.evictOldest(func(*Attempt) bool { return true })
	}
}

func (e *Engine) evictOldest(match func(*Attempt) bool) {
	for i, x := range e.history {
		if match(x) {
			if x.ExecutionID != "" {
				e.workflowCount[x.ExecutionID]--
				if e.workflowCount[x.ExecutionID] <= 0 {
					delete(e.workflowCount, x.ExecutionID)
				}
			}
			e.history = append(e.history[:i], e.history[i+1:]...)
			return
		}
	}
}

// History returns recorded attempts for a tenant, newest first. A
// non-empty executionID narrows the result to one workflow.
func (e *Engine) History(tenantID, executionID string) []*Attempt {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Attempt, 0)
	for i := len(e.history) - 1; i >= 0; i-- {
		a := e.history[i]
		if a.TenantID != tenantID {
			continue
		}
		if executionID != "" && a.ExecutionID != executionID {
			continue
		}
		out = append(out, a)
	}
	return out
}
