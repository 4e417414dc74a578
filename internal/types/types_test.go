package types

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestPath(t *testing.T) {
	path := Path("customer", "region", "name")
	if len(path) != 3 {
		t.Fatalf("Path() length = %d, want 3", len(path))
	}
	if !path[0].Relation || !path[1].Relation {
		t.Error("intermediate segments should be relation traversals")
	}
	if path[2].Relation {
		t.Error("terminal segment should be a direct attribute")
	}
	if got := PathString(path); got != "customer.region.name" {
		t.Errorf("PathString() = %q, want customer.region.name", got)
	}
}

func TestParseEntityKind_Unknown(t *testing.T) {
	_, err := ParseEntityKind("starship")
	if !errors.Is(err, ErrUnknownEntityKind) {
		t.Errorf("ParseEntityKind() error = %v, want ErrUnknownEntityKind", err)
	}
}

func TestAction_ParamsDecodeByKind(t *testing.T) {
	raw := `{
		"kind": "increment_counter",
		"severity": "info",
		"params": {"entity": "work_order", "field": "rework_count", "delta": 2}
	}`

	var action Action
	if err := json.Unmarshal([]byte(raw), &action); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	params, ok := action.Params.(MutateParams)
	if !ok {
		t.Fatalf("Params type = %T, want MutateParams", action.Params)
	}
	if params.Entity != EntityWorkOrder || params.Field != "rework_count" || params.Delta != 2 {
		t.Errorf("unexpected params: %+v", params)
	}
}

func TestAction_ControlKindsIgnoreParams(t *testing.T) {
	raw := `{"kind": "prevent", "severity": "critical", "params": {"stray": true}}`

	var action Action
	if err := json.Unmarshal([]byte(raw), &action); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if action.Params != nil {
		t.Errorf("Params = %v, want nil for control kinds", action.Params)
	}
}

func TestContext_PrimaryDefaultsToFirstEntity(t *testing.T) {
	workOrder := NewDocument(EntityWorkOrder, "WO-1")
	cutter := NewDocument(EntityCutter, "CUT-1")

	ec := NewContext("work_order.save").WithEntity(workOrder).WithEntity(cutter)
	if ec.Primary != EntityWorkOrder {
		t.Errorf("Primary = %v, want work_order", ec.Primary)
	}
	if ref := ec.PrimaryRef(); ref.ID != "WO-1" {
		t.Errorf("PrimaryRef().ID = %q, want WO-1", ref.ID)
	}
}

func TestContext_MarkApplied(t *testing.T) {
	ec := NewContext("work_order.save")
	if !ec.MarkApplied("RULE#0") {
		t.Error("first MarkApplied() = false, want true")
	}
	if ec.MarkApplied("RULE#0") {
		t.Error("second MarkApplied() = true, want false")
	}
	if !ec.MarkApplied("RULE#1") {
		t.Error("distinct key MarkApplied() = false, want true")
	}
}
