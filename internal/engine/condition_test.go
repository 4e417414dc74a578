package engine

import (
	"testing"

	"github.com/meridianworks/rulegate/internal/types"
)

// countingEntity wraps a document and counts terminal field reads, making
// short-circuit behavior observable.
type countingEntity struct {
	*types.Document
	reads map[string]int
}

func newCountingEntity(doc *types.Document) *countingEntity {
	return &countingEntity{Document: doc, reads: make(map[string]int)}
}

func (c *countingEntity) Field(name string) (any, bool) {
	c.reads[name]++
	return c.Document.Field(name)
}

func TestMatches_GroupComposition(t *testing.T) {
	tests := []struct {
		name      string
		condition types.ConditionNode
		want      bool
	}{
		{
			name: "AND all true",
			condition: types.AllOf(
				leafNode(types.OpEquals, types.Path("status"), "released"),
				leafNode(types.OpGreaterThan, types.Path("quantity"), float64(5)),
			),
			want: true,
		},
		{
			name: "AND one false",
			condition: types.AllOf(
				leafNode(types.OpEquals, types.Path("status"), "released"),
				leafNode(types.OpGreaterThan, types.Path("quantity"), float64(50)),
			),
			want: false,
		},
		{
			name: "OR one true",
			condition: types.AnyOf(
				leafNode(types.OpEquals, types.Path("status"), "draft"),
				leafNode(types.OpEquals, types.Path("status"), "released"),
			),
			want: true,
		},
		{
			name: "OR all false",
			condition: types.AnyOf(
				leafNode(types.OpEquals, types.Path("status"), "draft"),
				leafNode(types.OpEquals, types.Path("status"), "done"),
			),
			want: false,
		},
		{
			name: "nested groups",
			condition: types.AllOf(
				leafNode(types.OpEquals, types.Path("status"), "released"),
				types.AnyOf(
					leafNode(types.OpLessThan, types.Path("quantity"), float64(1)),
					leafNode(types.OpBetween, types.Path("quantity"), nil),
				),
			),
			want: false, // between with nil bounds is an authoring error
		},
		{
			name: "nested groups valid",
			condition: types.AllOf(
				leafNode(types.OpEquals, types.Path("status"), "released"),
				types.AnyOf(
					leafNode(types.OpLessThan, types.Path("quantity"), float64(1)),
					leafNode(types.OpEquals, types.Path("customer", "region", "name"), "north"),
				),
			),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &types.Rule{Code: "R-GRP", Condition: &tt.condition}
			if got := Compile(rule).Matches(workOrderContext()); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatches_AndShortCircuits(t *testing.T) {
	entity := newCountingEntity(types.NewDocument(types.EntityWorkOrder, "WO-1").
		Set("status", "draft").
		Set("quantity", float64(12)))
	ec := types.NewContext("work_order.save").WithEntity(entity)

	condition := types.AllOf(
		leafNode(types.OpEquals, types.Path("status"), "released"),
		leafNode(types.OpGreaterThan, types.Path("quantity"), float64(5)),
	)
	rule := &types.Rule{Code: "R-SC", Condition: &condition}

	if Compile(rule).Matches(ec) {
		t.Fatal("Matches() = true, want false")
	}
	if entity.reads["quantity"] != 0 {
		t.Errorf("quantity read %d time(s) after failed AND child, want 0", entity.reads["quantity"])
	}
}

func TestMatches_OrShortCircuits(t *testing.T) {
	entity := newCountingEntity(types.NewDocument(types.EntityWorkOrder, "WO-1").
		Set("status", "released").
		Set("quantity", float64(12)))
	ec := types.NewContext("work_order.save").WithEntity(entity)

	condition := types.AnyOf(
		leafNode(types.OpEquals, types.Path("status"), "released"),
		leafNode(types.OpGreaterThan, types.Path("quantity"), float64(5)),
	)
	rule := &types.Rule{Code: "R-SC", Condition: &condition}

	if !Compile(rule).Matches(ec) {
		t.Fatal("Matches() = false, want true")
	}
	if entity.reads["quantity"] != 0 {
		t.Errorf("quantity read %d time(s) after satisfied OR child, want 0", entity.reads["quantity"])
	}
}

func TestMatches_MissingRelationChain(t *testing.T) {
	// Work order without a customer link: equals on customer.region.name must
	// be non-matching, is_null on the same path must match.
	entity := types.NewDocument(types.EntityWorkOrder, "WO-2").Set("status", "released")
	ec := types.NewContext("work_order.save").WithEntity(entity)

	eq := leafNode(types.OpEquals, types.Path("customer", "region", "name"), "north")
	eqRule := &types.Rule{Code: "R-EQ", Condition: &eq}
	if Compile(eqRule).Matches(ec) {
		t.Error("equals over absent relation chain matched, want non-matching")
	}

	null := leafNode(types.OpIsNull, types.Path("customer", "region", "name"), nil)
	nullRule := &types.Rule{Code: "R-NULL", Condition: &null}
	if !Compile(nullRule).Matches(ec) {
		t.Error("is_null over absent relation chain did not match")
	}
}
