// internal/types/rules.go
package types

import (
	"fmt"
	"time"
)

/*
 * Domain types for rule definitions.
 *
 * Provides Rule, ConditionNode, LeafCondition, GroupCondition, PathSegment
 * and ScopeDescriptor used by internal/engine for compilation and evaluation.
 * These types are storage-format agnostic: the store layer serializes the
 * condition tree, scopes and actions as JSON columns, which is why every enum
 * here implements encoding.TextMarshaler with stable wire names.
 *
 * Key types:
 *   - Rule: complete rule definition (identity, lifecycle, tree, scopes, actions)
 *   - ConditionNode: tagged union of {Leaf, Group} for boolean composition
 *   - PathSegment: one typed accessor token of a field traversal path
 *   - ScopeDescriptor: inclusion/exclusion applicability predicate
 */

// RuleStatus is the lifecycle state of a rule.
// Suspended rules are loaded but skipped at dispatch; retired rules never
// fire. The distinction keeps "temporarily off" and "permanently removed"
// separate for audit purposes.
type RuleStatus int

const (
	StatusDraft RuleStatus = iota
	StatusActive
	StatusSuspended
	StatusRetired
)

var ruleStatusNames = map[RuleStatus]string{
	StatusDraft:     "draft",
	StatusActive:    "active",
	StatusSuspended: "suspended",
	StatusRetired:   "retired",
}

func (s RuleStatus) String() string {
	if name, ok := ruleStatusNames[s]; ok {
		return name
	}
	return "draft"
}

// ParseRuleStatus converts a wire name back to a RuleStatus.
func ParseRuleStatus(v string) (RuleStatus, error) {
	for s, name := range ruleStatusNames {
		if name == v {
			return s, nil
		}
	}
	return StatusDraft, fmt.Errorf("%w: rule status %q", ErrUnknownEnumValue, v)
}

func (s RuleStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *RuleStatus) UnmarshalText(b []byte) error {
	parsed, err := ParseRuleStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// RuleCategory classifies what a rule governs. Informational rules only
// surface messages; validation rules gate saves.
type RuleCategory int

const (
	CategoryInformational RuleCategory = iota
	CategoryTechnical
	CategoryWorkflow
	CategoryValidation
)

var ruleCategoryNames = map[RuleCategory]string{
	CategoryInformational: "informational",
	CategoryTechnical:     "technical",
	CategoryWorkflow:      "workflow",
	CategoryValidation:    "validation",
}

func (c RuleCategory) String() string {
	if name, ok := ruleCategoryNames[c]; ok {
		return name
	}
	return "informational"
}

// ParseRuleCategory converts a wire name back to a RuleCategory.
func ParseRuleCategory(v string) (RuleCategory, error) {
	for c, name := range ruleCategoryNames {
		if name == v {
			return c, nil
		}
	}
	return CategoryInformational, fmt.Errorf("%w: rule category %q", ErrUnknownEnumValue, v)
}

func (c RuleCategory) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *RuleCategory) UnmarshalText(b []byte) error {
	parsed, err := ParseRuleCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Operator enumerates the closed comparison grammar. Conditions are never
// arbitrary user code; this is the whole vocabulary.
type Operator int

const (
	OpUnspecified Operator = iota
	OpEquals
	OpNotEquals
	OpGreaterThan
	OpLessThan
	OpBetween
	OpContains
	OpStartsWith
	OpEndsWith
	OpInList
	OpRegex
	OpIsNull
	OpIsNotNull
)

var operatorNames = map[Operator]string{
	OpEquals:      "equals",
	OpNotEquals:   "not_equals",
	OpGreaterThan: "greater_than",
	OpLessThan:    "less_than",
	OpBetween:     "between",
	OpContains:    "contains",
	OpStartsWith:  "starts_with",
	OpEndsWith:    "ends_with",
	OpInList:      "in_list",
	OpRegex:       "regex",
	OpIsNull:      "is_null",
	OpIsNotNull:   "is_not_null",
}

func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return "unspecified"
}

// ParseOperator converts a wire name back to an Operator.
func ParseOperator(v string) (Operator, error) {
	for o, name := range operatorNames {
		if name == v {
			return o, nil
		}
	}
	return OpUnspecified, fmt.Errorf("%w: operator %q", ErrUnknownEnumValue, v)
}

func (o Operator) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Operator) UnmarshalText(b []byte) error {
	parsed, err := ParseOperator(string(b))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// PathSegment is one typed accessor token of a field traversal path.
// Relation segments traverse to a related object; the terminal segment reads
// a direct attribute. Typed tokens keep every traversal step explicit and
// testable in isolation instead of going through reflection.
type PathSegment struct {
	Name     string `json:"name"`
	Relation bool   `json:"relation,omitempty"`
}

// Path builds an attribute path from relation segments plus a terminal
// attribute. Path("customer", "region", "name") traverses two relations and
// reads "name".
func Path(segments ...string) []PathSegment {
	path := make([]PathSegment, len(segments))
	for i, name := range segments {
		path[i] = PathSegment{Name: name, Relation: i < len(segments)-1}
	}
	return path
}

// PathString renders a path in dotted form for logs and warnings.
func PathString(path []PathSegment) string {
	s := ""
	for i, seg := range path {
		if i > 0 {
			s += "."
		}
		s += seg.Name
	}
	return s
}

// Connective is the logical operator of a condition group.
type Connective int

const (
	ConnectiveAnd Connective = iota
	ConnectiveOr
)

func (c Connective) String() string {
	if c == ConnectiveOr {
		return "or"
	}
	return "and"
}

// ParseConnective converts a wire name back to a Connective.
func ParseConnective(v string) (Connective, error) {
	switch v {
	case "and":
		return ConnectiveAnd, nil
	case "or":
		return ConnectiveOr, nil
	}
	return ConnectiveAnd, fmt.Errorf("%w: connective %q", ErrUnknownEnumValue, v)
}

func (c Connective) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Connective) UnmarshalText(b []byte) error {
	parsed, err := ParseConnective(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// LeafCondition is a single field-path/operator/value comparison against one
// entity kind in the context.
type LeafCondition struct {
	Entity EntityKind    `json:"entity"`
	Path   []PathSegment `json:"path"`
	Op     Operator      `json:"op"`

	// Value is the comparison literal (nil for is_null/is_not_null).
	Value any `json:"value,omitempty"`

	// Values holds the literal set for in_list and the two bounds for between.
	Values []any `json:"values,omitempty"`

	// CaseInsensitive folds case on both sides of string comparisons.
	// Zero value keeps the default: case-sensitive.
	CaseInsensitive bool `json:"case_insensitive,omitempty"`
}

// GroupCondition combines child nodes with a logical connective, enabling
// parenthesized composition through nesting.
type GroupCondition struct {
	Connective Connective      `json:"connective"`
	Children   []ConditionNode `json:"children"`
}

// ConditionNode is a tagged union of {Leaf, Group}. Exactly one side must be
// set; the compiler treats anything else as an authoring error.
type ConditionNode struct {
	Leaf  *LeafCondition  `json:"leaf,omitempty"`
	Group *GroupCondition `json:"group,omitempty"`
}

// Leaf wraps a leaf condition into a node.
func Leaf(leaf LeafCondition) ConditionNode {
	return ConditionNode{Leaf: &leaf}
}

// AllOf builds an AND group node.
func AllOf(children ...ConditionNode) ConditionNode {
	return ConditionNode{Group: &GroupCondition{Connective: ConnectiveAnd, Children: children}}
}

// AnyOf builds an OR group node.
func AnyOf(children ...ConditionNode) ConditionNode {
	return ConditionNode{Group: &GroupCondition{Connective: ConnectiveOr, Children: children}}
}

// ScopeMode selects how a scope descriptor decides applicability.
type ScopeMode int

const (
	ScopeDefault ScopeMode = iota
	ScopeTimeWindow
	ScopeEntityRestricted
)

var scopeModeNames = map[ScopeMode]string{
	ScopeDefault:          "default",
	ScopeTimeWindow:       "time_window",
	ScopeEntityRestricted: "entity_restricted",
}

func (m ScopeMode) String() string {
	if name, ok := scopeModeNames[m]; ok {
		return name
	}
	return "default"
}

// ParseScopeMode converts a wire name back to a ScopeMode.
func ParseScopeMode(v string) (ScopeMode, error) {
	for m, name := range scopeModeNames {
		if name == v {
			return m, nil
		}
	}
	return ScopeDefault, fmt.Errorf("%w: scope mode %q", ErrUnknownEnumValue, v)
}

func (m ScopeMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *ScopeMode) UnmarshalText(b []byte) error {
	parsed, err := ParseScopeMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ScopeDescriptor decides whether a rule applies to a given context and time.
// Exclusion descriptors are evaluated after inclusion descriptors and can
// veto an otherwise-matching rule.
type ScopeDescriptor struct {
	Mode    ScopeMode `json:"mode"`
	Exclude bool      `json:"exclude,omitempty"`

	// Time window bounds for ScopeTimeWindow. Nil means open-ended.
	From  *time.Time `json:"from,omitempty"`
	Until *time.Time `json:"until,omitempty"`

	// Targets restricts ScopeEntityRestricted to specific entity instances.
	Targets []EntityRef `json:"targets,omitempty"`

	// Roles restricts the scope to users holding any of the listed roles.
	Roles []string `json:"roles,omitempty"`
}

// Rule is a complete instruction definition. The condition tree, scope
// descriptors and action list are owned as one logical unit: a rule is never
// partially active.
type Rule struct {
	Code        string       `json:"code"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Category    RuleCategory `json:"category"`
	Trigger     string       `json:"trigger"`
	Priority    int          `json:"priority"`
	Status      RuleStatus   `json:"status"`
	IsDefault   bool         `json:"is_default,omitempty"`
	Version     int          `json:"version"`

	EffectiveFrom  *time.Time `json:"effective_from,omitempty"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`

	// Condition must be non-empty. An empty tree is an authoring error and
	// the rule is treated as non-matching with a logged warning, never as
	// "always true".
	Condition *ConditionNode `json:"condition,omitempty"`

	Scopes  []ScopeDescriptor `json:"scopes,omitempty"`
	Actions []Action          `json:"actions"`
}
