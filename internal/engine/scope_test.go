package engine

import (
	"testing"
	"time"

	"github.com/meridianworks/rulegate/internal/types"
)

var scopeNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func scopeContext(roles ...string) *types.Context {
	ec := workOrderContext()
	ec.Roles = roles
	ec.Now = scopeNow
	return ec
}

func ts(t time.Time) *time.Time { return &t }

func TestInScope_EffectiveRange(t *testing.T) {
	tests := []struct {
		name  string
		from  *time.Time
		until *time.Time
		want  bool
	}{
		{"open range", nil, nil, true},
		{"inside range", ts(scopeNow.Add(-time.Hour)), ts(scopeNow.Add(time.Hour)), true},
		{"before effective_from", ts(scopeNow.Add(time.Hour)), nil, false},
		{"after effective_until", nil, ts(scopeNow.Add(-time.Hour)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &types.Rule{Code: "R-EFF", EffectiveFrom: tt.from, EffectiveUntil: tt.until}
			if got := InScope(rule, scopeContext(), scopeNow); got != tt.want {
				t.Errorf("InScope() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInScope_Descriptors(t *testing.T) {
	workOrderRef := types.EntityRef{Kind: types.EntityWorkOrder, ID: "WO-100"}
	otherRef := types.EntityRef{Kind: types.EntityWorkOrder, ID: "WO-999"}

	tests := []struct {
		name   string
		scopes []types.ScopeDescriptor
		roles  []string
		want   bool
	}{
		{
			name:   "no scopes is default-in",
			scopes: nil,
			want:   true,
		},
		{
			name: "time window covering now",
			scopes: []types.ScopeDescriptor{{
				Mode: types.ScopeTimeWindow,
				From: ts(scopeNow.Add(-time.Hour)),
			}},
			want: true,
		},
		{
			name: "time window in the past",
			scopes: []types.ScopeDescriptor{{
				Mode:  types.ScopeTimeWindow,
				Until: ts(scopeNow.Add(-time.Hour)),
			}},
			want: false,
		},
		{
			name: "role restriction held",
			scopes: []types.ScopeDescriptor{{
				Mode:  types.ScopeDefault,
				Roles: []string{"planner", "supervisor"},
			}},
			roles: []string{"planner"},
			want:  true,
		},
		{
			name: "role restriction not held",
			scopes: []types.ScopeDescriptor{{
				Mode:  types.ScopeDefault,
				Roles: []string{"supervisor"},
			}},
			roles: []string{"operator"},
			want:  false,
		},
		{
			name: "entity restriction matching target",
			scopes: []types.ScopeDescriptor{{
				Mode:    types.ScopeEntityRestricted,
				Targets: []types.EntityRef{workOrderRef},
			}},
			want: true,
		},
		{
			name: "entity restriction other target",
			scopes: []types.ScopeDescriptor{{
				Mode:    types.ScopeEntityRestricted,
				Targets: []types.EntityRef{otherRef},
			}},
			want: false,
		},
		{
			name: "entity restriction without targets matches nothing",
			scopes: []types.ScopeDescriptor{{
				Mode: types.ScopeEntityRestricted,
			}},
			want: false,
		},
		{
			name: "exclusion vetoes matching inclusion",
			scopes: []types.ScopeDescriptor{
				{Mode: types.ScopeDefault},
				{Mode: types.ScopeEntityRestricted, Exclude: true, Targets: []types.EntityRef{workOrderRef}},
			},
			want: false,
		},
		{
			name: "exclusion for other target does not veto",
			scopes: []types.ScopeDescriptor{
				{Mode: types.ScopeDefault},
				{Mode: types.ScopeEntityRestricted, Exclude: true, Targets: []types.EntityRef{otherRef}},
			},
			want: true,
		},
		{
			name: "exclusion applies even without inclusion scopes",
			scopes: []types.ScopeDescriptor{
				{Mode: types.ScopeEntityRestricted, Exclude: true, Targets: []types.EntityRef{workOrderRef}},
			},
			want: false,
		},
		{
			name: "any matching inclusion admits",
			scopes: []types.ScopeDescriptor{
				{Mode: types.ScopeEntityRestricted, Targets: []types.EntityRef{otherRef}},
				{Mode: types.ScopeTimeWindow, From: ts(scopeNow.Add(-time.Hour))},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &types.Rule{Code: "R-SCOPE", Scopes: tt.scopes}
			if got := InScope(rule, scopeContext(tt.roles...), scopeNow); got != tt.want {
				t.Errorf("InScope() = %v, want %v", got, tt.want)
			}
		})
	}
}
