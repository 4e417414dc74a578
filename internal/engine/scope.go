// internal/engine/scope.go
package engine

import (
	"time"

	"github.com/meridianworks/rulegate/internal/types"
)

/*
 * Scope resolution.
 *
 * Decides whether a rule qualifies for the current evaluation. A rule is in
 * scope iff its effective range covers the evaluation time, at least one
 * inclusion scope matches (no inclusion scopes = default, always in), and no
 * exclusion scope matches. Exclusion is evaluated last and always wins over
 * inclusion, so an otherwise-matching rule can be vetoed for a specific
 * entity, time window or role.
 *
 * Status handling is deliberately split: the orchestrator loads ACTIVE and
 * SUSPENDED rules (suspended for visibility/audit), and InScope only answers
 * the scope question. Retired and draft rules never reach this code because
 * the catalog query filters them out.
 */

// InScope reports whether the rule's scope descriptors admit the context at
// the given evaluation time.
func InScope(rule *types.Rule, ec *types.Context, now time.Time) bool {
	if !effectiveAt(rule, now) {
		return false
	}

	included := false
	hasInclusion := false
	for i := range rule.Scopes {
		scope := &rule.Scopes[i]
		if scope.Exclude {
			continue
		}
		hasInclusion = true
		if scopeMatches(scope, ec, now) {
			included = true
			break
		}
	}
	if hasInclusion && !included {
		return false
	}

	// Exclusions run last and veto unconditionally.
	for i := range rule.Scopes {
		scope := &rule.Scopes[i]
		if scope.Exclude && scopeMatches(scope, ec, now) {
			return false
		}
	}

	return true
}

// effectiveAt checks the rule-level effective range. Absent bounds are open.
func effectiveAt(rule *types.Rule, now time.Time) bool {
	if rule.EffectiveFrom != nil && now.Before(*rule.EffectiveFrom) {
		return false
	}
	if rule.EffectiveUntil != nil && now.After(*rule.EffectiveUntil) {
		return false
	}
	return true
}

// scopeMatches evaluates a single descriptor against the context.
func scopeMatches(scope *types.ScopeDescriptor, ec *types.Context, now time.Time) bool {
	switch scope.Mode {
	case types.ScopeDefault:
		return matchRoles(scope.Roles, ec.Roles)

	case types.ScopeTimeWindow:
		if scope.From != nil && now.Before(*scope.From) {
			return false
		}
		if scope.Until != nil && now.After(*scope.Until) {
			return false
		}
		return matchRoles(scope.Roles, ec.Roles)

	case types.ScopeEntityRestricted:
		if !matchRoles(scope.Roles, ec.Roles) {
			return false
		}
		return matchTargets(scope.Targets, ec)

	default:
		return false
	}
}

// matchRoles checks role restriction. Empty restriction admits everyone.
func matchRoles(restricted, held []string) bool {
	if len(restricted) == 0 {
		return true
	}
	for _, want := range restricted {
		for _, have := range held {
			if want == have {
				return true
			}
		}
	}
	return false
}

// matchTargets checks whether any restricted reference names an entity
// present in the context. An empty target list matches nothing: an
// entity-restricted scope without targets is an authoring mistake and must
// not widen to "everything".
func matchTargets(targets []types.EntityRef, ec *types.Context) bool {
	for _, target := range targets {
		if e, ok := ec.Entity(target.Kind); ok && e.Ref().ID == target.ID {
			return true
		}
	}
	return false
}
