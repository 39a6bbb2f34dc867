// Package notify matches workflow lifecycle events against per-tenant
// notification rules and dispatches matched notifications through
// pluggable delivery methods.
package notify

import (
	"context"
	"fmt"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
)

// EventType identifies the lifecycle moment a rule fires on.
type EventType string

const (
	EventTimeout        EventType = "timeout"
	EventStatusChange   EventType = "status_change"
	EventError          EventType = "error"
	EventCompletion     EventType = "completion"
	EventStepCompletion EventType = "step_completion"
)

// ParseEventType validates a wire string into an EventType.
func ParseEventType(s string) (EventType, error) {
	switch et := EventType(s); et {
	case EventTimeout, EventStatusChange, EventError, EventCompletion, EventStepCompletion:
		return et, nil
	default:
		return "", fmt.Errorf("notify: unknown event type %q", s)
	}
}

// Method identifies a delivery channel.
type Method string

const (
	MethodWebhook Method = "webhook"
	MethodEmail   Method = "email"
	MethodSlack   Method = "slack"
	MethodLog     Method = "log"
)

// ParseMethod validates a wire string into a Method.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case MethodWebhook, MethodEmail, MethodSlack, MethodLog:
		return m, nil
	default:
		return "", fmt.Errorf("notify: unknown delivery method %q", s)
	}
}

// Rule configures when and how a tenant is notified. A rule with no
// conditions matches every event of its type; conditions are matched by
// equality against the event's fields.
type Rule struct {
	bidflow.Entity

	ID       id.RuleID `json:"id"`
	TenantID string    `json:"tenant_id"`

	// ExecutionID optionally narrows the rule to one execution.
	// Empty means the rule applies tenant-wide.
	ExecutionID string `json:"execution_id,omitempty"`

	EventType  EventType      `json:"event_type"`
	Method     Method         `json:"method"`
	Target     string         `json:"target"`
	Conditions map[string]any `json:"conditions,omitempty"`
	Enabled    bool           `json:"enabled"`
}

// Validate reports the first problem with the rule's configuration.
func (r *Rule) Validate() error {
	if r.TenantID == "" {
		return &bidflow.ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	}
	if _, err := ParseEventType(string(r.EventType)); err != nil {
		return &bidflow.ValidationError{Field: "event_type", Reason: err.Error()}
	}
	if _, err := ParseMethod(string(r.Method)); err != nil {
		return &bidflow.ValidationError{Field: "method", Reason: err.Error()}
	}
	if r.Method != MethodLog && r.Target == "" {
		return &bidflow.ValidationError{Field: "target", Reason: "must not be empty for method " + string(r.Method)}
	}
	return nil
}

// RuleStore persists notification rules.
type RuleStore interface {
	CreateRule(ctx context.Context, r *Rule) error
	GetRule(ctx context.Context, tenantID string, ruleID id.RuleID) (*Rule, error)
	ListRules(ctx context.Context, tenantID string) ([]*Rule, error)
	UpdateRule(ctx context.Context, r *Rule) error
	DeleteRule(ctx context.Context, tenantID string, ruleID id.RuleID) error
}
