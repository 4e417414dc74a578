// internal/engine/resolve.go
package engine

import (
	"github.com/meridianworks/rulegate/internal/types"
)

/*
 * Field path resolution over live entities.
 *
 * Resolves an ordered list of typed accessor tokens against the evaluation
 * context: relation segments traverse to related objects, the terminal
 * segment reads a direct attribute. Resolution never errors; every failure
 * mode (unknown entity kind in context, absent relation, absent attribute,
 * explicit null) collapses to the Missing sentinel.
 *
 * Missing is treated as non-matching by every operator except is_null and
 * is_not_null, which are the only operators that inspect it.
 */

// Resolved is the outcome of a field path resolution. Missing marks an
// absent value; Value is meaningful only when Missing is false.
type Resolved struct {
	Value   any
	Missing bool
}

// missing is the shared absent-value sentinel.
var missing = Resolved{Missing: true}

// ResolveField walks a field path against the entity of the given kind in
// the context. Guaranteed not to panic or error: all failures yield Missing.
func ResolveField(ec *types.Context, kind types.EntityKind, path []types.PathSegment) Resolved {
	if ec == nil || len(path) == 0 || len(path) > types.MaxPathDepth {
		return missing
	}

	entity, ok := ec.Entity(kind)
	if !ok || entity == nil {
		return missing
	}

	return resolveOn(entity, path)
}

// resolveOn walks the path segments left to right on a concrete entity.
// Exposed separately so validation actions can resolve against a specific
// entity without going through the context map.
func resolveOn(entity types.Entity, path []types.PathSegment) Resolved {
	current := entity
	for i, seg := range path {
		terminal := i == len(path)-1

		if !terminal {
			// Intermediate segments traverse relations regardless of the
			// authored flag; absent links terminate early with Missing.
			next, ok := current.Relation(seg.Name)
			if !ok || next == nil {
				return missing
			}
			current = next
			continue
		}

		if seg.Relation {
			// Terminal relation segment: the related object itself is not a
			// comparable value. Treat as authoring mistake -> Missing.
			return missing
		}

		value, ok := current.Field(seg.Name)
		if !ok || value == nil {
			// Explicit null and absent attribute are indistinguishable to
			// operators: both are Missing, matched only by is_null.
			return missing
		}
		return Resolved{Value: value}
	}

	return missing
}
