// internal/engine/condition.go
package engine

import (
	"github.com/meridianworks/rulegate/internal/types"
)

/*
 * Condition tree evaluation.
 *
 * Evaluates a compiled condition tree against the evaluation context. AND
 * groups short-circuit on the first false child; OR groups short-circuit on
 * the first true child. Invalid nodes (authoring errors flagged during
 * compilation) evaluate to false, so a malformed subtree can never widen a
 * rule's match.
 */

// Matches evaluates the rule's compiled condition tree against the context.
// An invalid (empty/oversized) tree never matches.
func (c *CompiledRule) Matches(ec *types.Context) bool {
	if c.invalid {
		return false
	}
	return evalNode(&c.root, ec)
}

func evalNode(node *compiledNode, ec *types.Context) bool {
	if node.invalid {
		return false
	}
	if node.leaf != nil {
		return evalLeaf(node.leaf, ec)
	}
	if node.group != nil {
		return evalGroup(node.group, ec)
	}
	return false
}

// evalLeaf resolves the field path and applies the operator.
func evalLeaf(leaf *compiledLeaf, ec *types.Context) bool {
	resolved := ResolveField(ec, leaf.src.Entity, leaf.src.Path)
	return compareLeaf(leaf, resolved)
}

// evalGroup applies the connective with short-circuit semantics.
func evalGroup(group *compiledGroup, ec *types.Context) bool {
	if group.connective == types.ConnectiveOr {
		for i := range group.children {
			if evalNode(&group.children[i], ec) {
				return true
			}
		}
		return false
	}

	for i := range group.children {
		if !evalNode(&group.children[i], ec) {
			return false
		}
	}
	return true
}
