package workflow_test

import (
	"errors"
	"testing"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

func validDefinition() *workflow.Definition {
	return &workflow.Definition{
		Entity:   bidflow.NewEntity(),
		ID:       id.NewDefinitionID(),
		Name:     "bid-preparation",
		Version:  "1.0",
		TenantID: "tenant-a",
		IsActive: true,
		Steps: []workflow.Step{
			{ID: "analyze", Name: "Analyze tender", AgentType: "analysis", RetryCount: 1},
			{ID: "draft", Name: "Draft sections", AgentType: "drafting", Dependencies: []string{"analyze"}},
			{ID: "review", Name: "Review draft", AgentType: "review", Dependencies: []string{"analyze", "draft"}},
		},
	}
}

func TestDefinitionValidate_OK(t *testing.T) {
	if err := validDefinition().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDefinitionValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*workflow.Definition)
	}{
		{"empty name", func(d *workflow.Definition) { d.Name = "" }},
		{"empty tenant", func(d *workflow.Definition) { d.TenantID = "" }},
		{"no steps", func(d *workflow.Definition) { d.Steps = nil }},
		{"missing step id", func(d *workflow.Definition) { d.Steps[0].ID = "" }},
		{"missing agent type", func(d *workflow.Definition) { d.Steps[1].AgentType = "" }},
		{"negative retries", func(d *workflow.Definition) { d.Steps[0].RetryCount = -1 }},
		{"duplicate step id", func(d *workflow.Definition) { d.Steps[1].ID = "analyze" }},
		{"unknown dependency", func(d *workflow.Definition) { d.Steps[1].Dependencies = []string{"ghost"} }},
		{"self dependency", func(d *workflow.Definition) { d.Steps[0].Dependencies = []string{"analyze"} }},
		{"cycle", func(d *workflow.Definition) {
			d.Steps[0].Dependencies = []string{"review"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(def)

			err := def.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verr *bidflow.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("error type = %T, want *bidflow.ValidationError", err)
			}
		})
	}
}

func TestReadySteps(t *testing.T) {
	def := validDefinition()

	ready := def.ReadySteps(nil, nil)
	if len(ready) != 1 || ready[0].ID != "analyze" {
		t.Fatalf("initial ready set = %v, want [analyze]", stepIDs(ready))
	}

	ready = def.ReadySteps(map[string]bool{"analyze": true}, nil)
	if len(ready) != 1 || ready[0].ID != "draft" {
		t.Fatalf("after analyze, ready set = %v, want [draft]", stepIDs(ready))
	}

	ready = def.ReadySteps(map[string]bool{"analyze": true, "draft": true}, nil)
	if len(ready) != 1 || ready[0].ID != "review" {
		t.Fatalf("after draft, ready set = %v, want [review]", stepIDs(ready))
	}

	// In-flight steps are excluded from the ready set.
	ready = def.ReadySteps(map[string]bool{"analyze": true}, map[string]bool{"draft": true})
	if len(ready) != 0 {
		t.Fatalf("with draft in flight, ready set = %v, want empty", stepIDs(ready))
	}

	// All done.
	ready = def.ReadySteps(map[string]bool{"analyze": true, "draft": true, "review": true}, nil)
	if len(ready) != 0 {
		t.Fatalf("with everything complete, ready set = %v, want empty", stepIDs(ready))
	}
}

func TestReadySteps_FanOut(t *testing.T) {
	def := &workflow.Definition{
		Entity:   bidflow.NewEntity(),
		ID:       id.NewDefinitionID(),
		Name:     "parallel",
		TenantID: "tenant-a",
		Steps: []workflow.Step{
			{ID: "root", AgentType: "x"},
			{ID: "left", AgentType: "x", Dependencies: []string{"root"}},
			{ID: "right", AgentType: "x", Dependencies: []string{"root"}},
			{ID: "join", AgentType: "x", Dependencies: []string{"left", "right"}},
		},
	}
	if err := def.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	ready := def.ReadySteps(map[string]bool{"root": true}, nil)
	if len(ready) != 2 {
		t.Fatalf("fan-out ready set = %v, want [left right]", stepIDs(ready))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	st := &workflow.State{
		ID:             id.NewExecutionID(),
		StateData:      map[string]any{"summary": "done", "score": 0.9},
		CompletedSteps: []string{"analyze", "draft"},
	}

	data, err := workflow.NewSnapshot(st)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}

	snap, err := workflow.DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if len(snap.CompletedSteps) != 2 || snap.CompletedSteps[1] != "draft" {
		t.Errorf("CompletedSteps = %v", snap.CompletedSteps)
	}
	if snap.StateData["summary"] != "done" {
		t.Errorf("StateData = %v", snap.StateData)
	}
}

func TestStateHelpers(t *testing.T) {
	st := &workflow.State{StateData: map[string]any{
		workflow.KeyPauseReason: "maintenance",
		workflow.KeyPausedBy:    "ops",
		workflow.KeyPausedAt:    "2026-01-01T00:00:00Z",
		"kept":                  true,
	}}

	st.ClearPauseFields()
	if _, ok := st.StateData[workflow.KeyPauseReason]; ok {
		t.Error("pause_reason should be cleared")
	}
	if st.StateData["kept"] != true {
		t.Error("unrelated keys must survive ClearPauseFields")
	}

	st.MarkStepCompleted("a")
	st.MarkStepCompleted("a")
	if len(st.CompletedSteps) != 1 {
		t.Errorf("MarkStepCompleted should be idempotent, got %v", st.CompletedSteps)
	}
	if st.CurrentStep != "a" {
		t.Errorf("CurrentStep = %q, want a", st.CurrentStep)
	}

	clone := st.Clone()
	clone.StateData["kept"] = false
	clone.CompletedSteps = append(clone.CompletedSteps, "b")
	if st.StateData["kept"] != true || len(st.CompletedSteps) != 1 {
		t.Error("Clone must not share mutable containers with the original")
	}
}

func stepIDs(steps []*workflow.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.ID
	}
	return out
}
