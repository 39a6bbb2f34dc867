package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
)

// Step is a single unit of work inside a definition. Steps form a DAG via
// Dependencies; a step becomes runnable once every dependency has
// completed.
type Step struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	AgentType      string          `json:"agent_type"`
	InputSchema    json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema   json.RawMessage `json:"output_schema,omitempty"`
	TimeoutSeconds int             `json:"timeout_seconds"`
	RetryCount     int             `json:"retry_count"`
	Dependencies   []string        `json:"dependencies,omitempty"`
	IsCheckpoint   bool            `json:"is_checkpoint"`
}

// Timeout returns the step's per-invocation deadline as a Duration.
// Zero means no step-level deadline.
func (s *Step) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Definition is an immutable workflow template. It is created once per
// workflow type or invocation and never mutated; restarting with different
// parameters creates a new definition.
type Definition struct {
	bidflow.Entity

	ID        id.DefinitionID   `json:"id"`
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	TenantID  string            `json:"tenant_id"`
	CreatedBy string            `json:"created_by"`
	Steps     []Step            `json:"steps"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	IsActive  bool              `json:"is_active"`
}

// Step returns the step with the given ID.
func (d *Definition) Step(stepID string) (*Step, bool) {
	for i := range d.Steps {
		if d.Steps[i].ID == stepID {
			return &d.Steps[i], true
		}
	}
	return nil, false
}

// Validate checks the definition for structural errors: missing fields,
// duplicate step IDs, unknown dependency references, and dependency
// cycles. Called at creation time; definitions in the store are assumed
// valid.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return &bidflow.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if d.TenantID == "" {
		return &bidflow.ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	}
	if len(d.Steps) == 0 {
		return &bidflow.ValidationError{Field: "steps", Reason: "must contain at least one step"}
	}

	seen := make(map[string]struct{}, len(d.Steps))
	for i := range d.Steps {
		step := &d.Steps[i]
		if step.ID == "" {
			return &bidflow.ValidationError{Field: "steps", Reason: fmt.Sprintf("step %d has no id", i)}
		}
		if step.AgentType == "" {
			return &bidflow.ValidationError{
				Field:  "steps",
				Reason: fmt.Sprintf("step %q has no agent_type", step.ID),
			}
		}
		if step.RetryCount < 0 {
			return &bidflow.ValidationError{
				Field:  "steps",
				Reason: fmt.Sprintf("step %q has negative retry_count", step.ID),
			}
		}
		if _, dup := seen[step.ID]; dup {
			return &bidflow.ValidationError{
				Field:  "steps",
				Reason: fmt.Sprintf("duplicate step id %q", step.ID),
			}
		}
		seen[step.ID] = struct{}{}
	}

	for i := range d.Steps {
		for _, dep := range d.Steps[i].Dependencies {
			if _, ok := seen[dep]; !ok {
				return &bidflow.ValidationError{
					Field:  "steps",
					Reason: fmt.Sprintf("step %q depends on unknown step %q", d.Steps[i].ID, dep),
				}
			}
			if dep == d.Steps[i].ID {
				return &bidflow.ValidationError{
					Field:  "steps",
					Reason: fmt.Sprintf("step %q depends on itself", d.Steps[i].ID),
				}
			}
		}
	}

	if cycle := d.findCycle(); len(cycle) > 0 {
		return &bidflow.ValidationError{
			Field:  "steps",
			Reason: fmt.Sprintf("dependency cycle involving steps %v", cycle),
		}
	}

	return nil
}

// findCycle runs Kahn's algorithm and returns the step IDs left with
// unsatisfied dependencies, which is non-empty iff the graph has a cycle.
func (d *Definition) findCycle() []string {
	indegree := make(map[string]int, len(d.Steps))
	dependents := make(map[string][]string, len(d.Steps))

	for i := range d.Steps {
		step := &d.Steps[i]
		indegree[step.ID] += 0
		for _, dep := range step.Dependencies {
			indegree[step.ID]++
			dependents[dep] = append(dependents[dep], step.ID)
		}
	}

	var queue []string
	for stepID, deg := range indegree {
		if deg == 0 {
			queue = append(queue, stepID)
		}
	}

	visited := 0
	for len(queue) > 0 {
		stepID := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range dependents[stepID] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited == len(d.Steps) {
		return nil
	}

	var remaining []string
	for stepID, deg := range indegree {
		if deg > 0 {
			remaining = append(remaining, stepID)
		}
	}
	return remaining
}

// ReadySteps returns the steps whose dependencies are all in the completed
// set and which are neither completed themselves nor in the exclude set
// (in flight). Order follows the definition's step order.
func (d *Definition) ReadySteps(completed map[string]bool, exclude map[string]bool) []*Step {
	var ready []*Step
	for i := range d.Steps {
		step := &d.Steps[i]
		if completed[step.ID] || exclude[step.ID] {
			continue
		}
		ok := true
		for _, dep := range step.Dependencies {
			if !completed[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, step)
		}
	}
	return ready
}
