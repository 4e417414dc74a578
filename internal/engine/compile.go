// internal/engine/compile.go
package engine

import (
	"fmt"
	"regexp"

	"github.com/meridianworks/rulegate/internal/types"
)

/*
 * Rule compilation and validation.
 *
 * Compiles types.Rule to CompiledRule with a validated condition tree and
 * pre-compiled regex patterns. Compilation never fails the evaluation pass:
 * authoring problems (empty tree, malformed path, invalid pattern, bad
 * operator usage) are collected as warnings and mark the offending node
 * permanently non-matching. Warnings surface once per rule version through
 * the engine's compile cache, visible to rule administrators via the audit
 * log, never to end users.
 *
 * Why compile-time validation: resource limits (path depth, in_list size,
 * tree size) are enforced here so evaluation stays bounded regardless of
 * what authors stored.
 */

// compiledLeaf is a pre-processed leaf comparison.
type compiledLeaf struct {
	src     *types.LeafCondition
	pattern *regexp.Regexp

	// invalid marks an authoring error; the leaf never matches.
	invalid bool
}

// compiledGroup is a pre-processed boolean group.
type compiledGroup struct {
	connective types.Connective
	children   []compiledNode
}

// compiledNode mirrors the ConditionNode tagged union after validation.
type compiledNode struct {
	leaf  *compiledLeaf
	group *compiledGroup

	// invalid marks a malformed node (both or neither side set, empty group).
	invalid bool
}

// CompiledRule is a rule pre-processed for evaluation.
type CompiledRule struct {
	Rule *types.Rule

	root compiledNode

	// invalid marks a rule whose whole tree is unusable (empty or oversized);
	// it evaluates to non-matching, never "always true".
	invalid bool

	// Warnings lists authoring problems found during compilation.
	Warnings []string
}

// Compile validates and pre-processes a rule. It never returns an error:
// authoring problems degrade to non-matching nodes with warnings so one bad
// rule cannot abort evaluation of the rest of the catalog.
func Compile(rule *types.Rule) *CompiledRule {
	compiled := &CompiledRule{Rule: rule}

	if rule.Condition == nil {
		compiled.invalid = true
		compiled.warnf("rule %s: %v", rule.Code, types.ErrEmptyConditionTree)
		return compiled
	}

	if n := countNodes(rule.Condition); n == 0 || n > types.MaxConditionNodes {
		compiled.invalid = true
		if n == 0 {
			compiled.warnf("rule %s: %v", rule.Code, types.ErrEmptyConditionTree)
		} else {
			compiled.warnf("rule %s: %v (%d nodes)", rule.Code, types.ErrTreeTooLarge, n)
		}
		return compiled
	}

	compiled.root = compiled.compileNode(rule.Condition, 1)
	return compiled
}

func (c *CompiledRule) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// compileNode validates one node of the tagged union.
func (c *CompiledRule) compileNode(node *types.ConditionNode, depth int) compiledNode {
	if depth > types.MaxTreeDepth {
		c.warnf("rule %s: %v (depth %d)", c.Rule.Code, types.ErrTreeTooLarge, depth)
		return compiledNode{invalid: true}
	}

	switch {
	case node.Leaf != nil && node.Group != nil:
		c.warnf("rule %s: condition node sets both leaf and group", c.Rule.Code)
		return compiledNode{invalid: true}
	case node.Leaf != nil:
		return compiledNode{leaf: c.compileLeaf(node.Leaf)}
	case node.Group != nil:
		return c.compileGroup(node.Group, depth)
	default:
		c.warnf("rule %s: condition node sets neither leaf nor group", c.Rule.Code)
		return compiledNode{invalid: true}
	}
}

func (c *CompiledRule) compileGroup(group *types.GroupCondition, depth int) compiledNode {
	if len(group.Children) == 0 {
		// Empty group would be vacuously true for AND; treat as authoring
		// error and non-matching instead.
		c.warnf("rule %s: empty condition group", c.Rule.Code)
		return compiledNode{invalid: true}
	}

	compiled := &compiledGroup{connective: group.Connective}
	for i := range group.Children {
		compiled.children = append(compiled.children, c.compileNode(&group.Children[i], depth+1))
	}
	return compiledNode{group: compiled}
}

// compileLeaf validates path shape, operand arity and limits, and
// pre-compiles regex patterns. Invalid leaves never match.
func (c *CompiledRule) compileLeaf(leaf *types.LeafCondition) *compiledLeaf {
	compiled := &compiledLeaf{src: leaf}

	if err := validatePath(leaf.Path); err != nil {
		compiled.invalid = true
		c.warnf("rule %s: field %q: %v", c.Rule.Code, types.PathString(leaf.Path), err)
		return compiled
	}

	if leaf.Entity == types.EntityUnspecified {
		compiled.invalid = true
		c.warnf("rule %s: field %q: missing target entity kind", c.Rule.Code, types.PathString(leaf.Path))
		return compiled
	}

	switch leaf.Op {
	case types.OpInList:
		if len(leaf.Values) == 0 {
			compiled.invalid = true
			c.warnf("rule %s: %v: in_list without values", c.Rule.Code, types.ErrInvalidOperator)
		} else if len(leaf.Values) > types.MaxInListValues {
			compiled.invalid = true
			c.warnf("rule %s: %v", c.Rule.Code, types.ErrTooManyInValues)
		}
	case types.OpBetween:
		if len(leaf.Values) != 2 {
			compiled.invalid = true
			c.warnf("rule %s: %v: between needs exactly two bounds, got %d",
				c.Rule.Code, types.ErrInvalidOperator, len(leaf.Values))
		}
	case types.OpRegex:
		expr := ""
		if s, ok := leaf.Value.(string); ok {
			expr = s
		}
		if leaf.CaseInsensitive {
			expr = "(?i)" + expr
		}
		pattern, err := regexp.Compile(expr)
		if err != nil {
			// Logged once per rule version via the compile cache; the
			// condition is permanently non-matching, not a crash.
			compiled.invalid = true
			c.warnf("rule %s: %v: %v", c.Rule.Code, types.ErrInvalidPattern, err)
		} else {
			compiled.pattern = pattern
		}
	case types.OpUnspecified:
		compiled.invalid = true
		c.warnf("rule %s: field %q: unspecified operator", c.Rule.Code, types.PathString(leaf.Path))
	}

	return compiled
}

// validatePath checks depth and accessor token shape: intermediate segments
// must be relation traversals, the terminal segment a direct attribute.
func validatePath(path []types.PathSegment) error {
	if len(path) == 0 {
		return types.ErrInvalidPath
	}
	if len(path) > types.MaxPathDepth {
		return types.ErrPathTooDeep
	}
	for i, seg := range path {
		if seg.Name == "" {
			return types.ErrInvalidPath
		}
		terminal := i == len(path)-1
		if terminal && seg.Relation {
			return types.ErrInvalidPath
		}
		if !terminal && !seg.Relation {
			return types.ErrInvalidPath
		}
	}
	return nil
}

// countNodes returns the total node count of a condition tree.
func countNodes(node *types.ConditionNode) int {
	if node == nil {
		return 0
	}
	count := 1
	if node.Group != nil {
		for i := range node.Group.Children {
			count += countNodes(&node.Group.Children[i])
		}
	}
	return count
}
