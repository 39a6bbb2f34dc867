package id_test

import (
	"strings"
	"testing"

	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"DefinitionID", id.NewDefinitionID, "wfdef_"},
		{"ExecutionID", id.NewExecutionID, "wf_"},
		{"CheckpointID", id.NewCheckpointID, "ckpt_"},
		{"RuleID", id.NewRuleID, "rule_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixExecution)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixExecution {
		t.Errorf("expected prefix %q, got %q", id.PrefixExecution, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"DefinitionID", id.NewDefinitionID, id.ParseDefinitionID},
		{"ExecutionID", id.NewExecutionID, id.ParseExecutionID},
		{"CheckpointID", id.NewCheckpointID, id.ParseCheckpointID},
		{"RuleID", id.NewRuleID, id.ParseRuleID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	execID := id.NewExecutionID()

	if _, err := id.ParseCheckpointID(execID.String()); err == nil {
		t.Error("expected error parsing an execution ID as a checkpoint ID")
	}
	if _, err := id.ParseDefinitionID(execID.String()); err == nil {
		t.Error("expected error parsing an execution ID as a definition ID")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error parsing empty string")
	}
}

func TestNilID(t *testing.T) {
	var nilID id.ID

	if !nilID.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if nilID.String() != "" {
		t.Errorf("nil ID String() = %q, want empty", nilID.String())
	}

	data, err := nilID.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("nil ID MarshalText = %q, want empty", data)
	}
}

func TestTextRoundTrip(t *testing.T) {
	original := id.NewExecutionID()

	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	var parsed id.ID
	if err := parsed.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if parsed.String() != original.String() {
		t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
	}
}

func TestScanValue(t *testing.T) {
	original := id.NewRuleID()

	v, err := original.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var scanned id.ID
	if err := scanned.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("round-trip mismatch: %q != %q", scanned.String(), original.String())
	}

	var nilScan id.ID
	if err := nilScan.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if !nilScan.IsNil() {
		t.Error("Scan(nil) should produce the nil ID")
	}
}
