// internal/engine/coerce.go
package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

/*
 * Value coercion for operator comparison.
 *
 * Resolved values arrive with heterogeneous runtime types (JSON scalars,
 * time.Time, int variants from Go callers). Operators compare through these
 * helpers instead of raw type switches:
 *
 *   - asNumber: numeric types plus numeric strings. A failed parse reports
 *     !ok and the comparison is non-matching, never coerced to 0.
 *   - asTime: time.Time plus RFC3339 and date-only strings.
 *   - asString: strings and stringable scalars for substring/regex operators.
 *
 * Ordering comparisons (greater_than/less_than/between) try numbers first,
 * then dates; incomparable pairs are non-matching.
 */

// asNumber converts a value to float64 for numeric comparison.
// Accepts numeric types and numeric strings. Booleans are rejected.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// timeLayouts accepted for date-valued strings, most specific first.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// asTime converts a value to time.Time for date comparison.
func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// asString converts scalar values to their string representation for
// substring and regex operators. Composite values are rejected.
func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case bool:
		return strconv.FormatBool(s), true
	case fmt.Stringer:
		return s.String(), true
	default:
		return "", false
	}
}

// compareOrder performs three-way ordering. Numbers first, dates second;
// incomparable pairs report !ok and the condition is non-matching.
func compareOrder(a, b any) (int, bool) {
	if na, oka := asNumber(a); oka {
		if nb, okb := asNumber(b); okb {
			switch {
			case na < nb:
				return -1, true
			case na > nb:
				return 1, true
			default:
				return 0, true
			}
		}
	}

	if ta, oka := asTime(a); oka {
		if tb, okb := asTime(b); okb {
			switch {
			case ta.Before(tb):
				return -1, true
			case ta.After(tb):
				return 1, true
			default:
				return 0, true
			}
		}
	}

	return 0, false
}
