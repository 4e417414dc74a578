// internal/engine/operators.go
package engine

import (
	"reflect"
	"strings"

	"github.com/meridianworks/rulegate/internal/types"
)

/*
 * Operator comparison logic.
 *
 * Implements the 12 comparison operators with type-aware comparison rules.
 * is_null/is_not_null are the only operators that inspect the Missing
 * sentinel; every other operator treats Missing as non-matching.
 *
 * Operators:
 *   - equals/not_equals: type-aware equality, optional case folding
 *   - greater_than/less_than/between: numeric or date ordering
 *   - contains/starts_with/ends_with: substring semantics on strings
 *   - in_list: membership with equality semantics
 *   - regex: pre-compiled pattern match (invalid patterns never reach here)
 *   - is_null/is_not_null: Missing checks
 *
 * Why function-based: 12 operators via switch statement are cleaner than 12
 * interface implementations with minimal behavior variation.
 */

// compareLeaf applies a compiled leaf's operator to the resolved value.
func compareLeaf(leaf *compiledLeaf, r Resolved) bool {
	cond := leaf.src

	// Null checks run before the Missing guard: they are the only operators
	// defined on absent values.
	switch cond.Op {
	case types.OpIsNull:
		return r.Missing
	case types.OpIsNotNull:
		return !r.Missing
	}

	if r.Missing || leaf.invalid {
		return false
	}

	switch cond.Op {
	case types.OpEquals:
		return equalValues(r.Value, cond.Value, cond.CaseInsensitive)
	case types.OpNotEquals:
		return !equalValues(r.Value, cond.Value, cond.CaseInsensitive)
	case types.OpGreaterThan:
		cmp, ok := compareOrder(r.Value, cond.Value)
		return ok && cmp > 0
	case types.OpLessThan:
		cmp, ok := compareOrder(r.Value, cond.Value)
		return ok && cmp < 0
	case types.OpBetween:
		return compareBetween(r.Value, cond.Values)
	case types.OpContains:
		return compareSubstring(r.Value, cond.Value, cond.CaseInsensitive, strings.Contains)
	case types.OpStartsWith:
		return compareSubstring(r.Value, cond.Value, cond.CaseInsensitive, strings.HasPrefix)
	case types.OpEndsWith:
		return compareSubstring(r.Value, cond.Value, cond.CaseInsensitive, strings.HasSuffix)
	case types.OpInList:
		return compareIn(r.Value, cond.Values, cond.CaseInsensitive)
	case types.OpRegex:
		return compareRegex(leaf, r.Value)
	default:
		return false
	}
}

// equalValues performs equality with numeric coercion and optional case
// folding. Numeric mixing (int vs float64 vs numeric string) compares by
// value for JSON compatibility.
func equalValues(a, b any, fold bool) bool {
	if na, oka := asNumber(a); oka {
		if nb, okb := asNumber(b); okb {
			return na == nb
		}
	}
	if sa, oka := a.(string); oka {
		if sb, okb := b.(string); okb {
			if fold {
				return strings.EqualFold(sa, sb)
			}
			return sa == sb
		}
	}
	if ta, oka := asTime(a); oka {
		if tb, okb := asTime(b); okb {
			return ta.Equal(tb)
		}
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	// The interface comparison below panics on uncomparable dynamic types
	// (slices, maps from JSON-built contexts); those pairs are non-matching.
	ka, kb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ka != kb || !ka.Comparable() {
		return false
	}
	return a == b
}

// compareBetween checks lower <= value <= upper (inclusive bounds).
// Compilation guarantees exactly two bounds; a short slice is non-matching.
func compareBetween(value any, bounds []any) bool {
	if len(bounds) != 2 {
		return false
	}
	lo, okLo := compareOrder(value, bounds[0])
	if !okLo || lo < 0 {
		return false
	}
	hi, okHi := compareOrder(value, bounds[1])
	return okHi && hi <= 0
}

// compareSubstring applies a substring predicate to string operands.
// Case-insensitive mode lowercases both sides identically.
func compareSubstring(value, target any, fold bool, pred func(string, string) bool) bool {
	vs, ok1 := value.(string)
	ts, ok2 := target.(string)
	if !ok1 || !ok2 {
		return false
	}
	if fold {
		return pred(strings.ToLower(vs), strings.ToLower(ts))
	}
	return pred(vs, ts)
}

// compareIn checks membership against the literal set using equality semantics.
func compareIn(value any, set []any, fold bool) bool {
	for _, elem := range set {
		if equalValues(value, elem, fold) {
			return true
		}
	}
	return false
}

// compareRegex matches the resolved value against the pre-compiled pattern.
// Invalid patterns are flagged at compile time and never reach here.
func compareRegex(leaf *compiledLeaf, value any) bool {
	if leaf.pattern == nil {
		return false
	}
	s, ok := asString(value)
	if !ok {
		return false
	}
	return leaf.pattern.MatchString(s)
}
