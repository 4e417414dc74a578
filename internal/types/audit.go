// internal/types/audit.go
package types

import (
	"fmt"
	"time"
)

/*
 * Evaluation outcome and audit trail types.
 *
 * EvaluationResult is the synchronous aggregate the caller acts on.
 * ExecutionRecord is the immutable audit entry persisted once per evaluation
 * that had at least one rule in scope; it outlives the rule that produced it
 * (rules may be edited or retired after firing).
 *
 * OverrideRequest links back to the execution record that created it and is
 * resolved through the override state machine (PENDING -> APPROVED|REJECTED).
 */

// OutcomeStatus is the terminal state of one dispatched action.
type OutcomeStatus int

const (
	OutcomeApplied OutcomeStatus = iota
	OutcomeFailed
	OutcomeBlocked
	OutcomePendingApproval
	OutcomeValidationFailed
	OutcomeSkipped
)

var outcomeStatusNames = map[OutcomeStatus]string{
	OutcomeApplied:          "applied",
	OutcomeFailed:           "failed",
	OutcomeBlocked:          "blocked",
	OutcomePendingApproval:  "pending_approval",
	OutcomeValidationFailed: "validation_failed",
	OutcomeSkipped:          "skipped",
}

func (s OutcomeStatus) String() string {
	if name, ok := outcomeStatusNames[s]; ok {
		return name
	}
	return "applied"
}

// ParseOutcomeStatus converts a wire name back to an OutcomeStatus.
func ParseOutcomeStatus(v string) (OutcomeStatus, error) {
	for s, name := range outcomeStatusNames {
		if name == v {
			return s, nil
		}
	}
	return OutcomeApplied, fmt.Errorf("%w: outcome status %q", ErrUnknownEnumValue, v)
}

func (s OutcomeStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *OutcomeStatus) UnmarshalText(b []byte) error {
	parsed, err := ParseOutcomeStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// WorkflowInstruction is the structured result of a workflow action. The
// engine performs no cross-entity writes; the caller applies the instruction
// inside its own transaction.
type WorkflowInstruction struct {
	Entity    EntityRef `json:"entity"`
	Operation string    `json:"operation"`
	Status    string    `json:"status,omitempty"`
	Assignee  string    `json:"assignee,omitempty"`
	TaskTitle string    `json:"task_title,omitempty"`
}

// ActionOutcome records the result of dispatching one action.
type ActionOutcome struct {
	Kind     ActionKind    `json:"kind"`
	Status   OutcomeStatus `json:"status"`
	Severity Severity      `json:"severity"`

	// Message is the rendered template. Unresolved placeholders stay literal.
	Message string `json:"message,omitempty"`

	// Error carries the failure text for OutcomeFailed; the failure never
	// aborts evaluation of other actions or rules.
	Error string `json:"error,omitempty"`

	Instruction *WorkflowInstruction `json:"instruction,omitempty"`
	OverrideID  OverrideID           `json:"override_id,omitempty"`
}

// RuleOutcome aggregates one rule's evaluation within a pass.
type RuleOutcome struct {
	RuleCode    string          `json:"rule_code"`
	RuleVersion int             `json:"rule_version"`
	Matched     bool            `json:"matched"`
	Actions     []ActionOutcome `json:"actions,omitempty"`
}

// OverrideRef points the caller at the pending request blocking its action.
type OverrideRef struct {
	ID       OverrideID `json:"id"`
	RuleCode string     `json:"rule_code"`
}

// EvaluationResult is the aggregate outcome of one evaluation pass.
type EvaluationResult struct {
	Prevented            bool          `json:"prevented"`
	RequiresConfirmation bool          `json:"requires_confirmation"`
	RequiresApproval     *OverrideRef  `json:"requires_approval,omitempty"`
	ValidationFailed     bool          `json:"validation_failed"`
	FiredRules           []RuleOutcome `json:"fired_rules"`
}

// ExecutionRecord is the immutable audit entry for one evaluation pass.
// Append-only: records are never updated after creation.
type ExecutionRecord struct {
	ID      ExecutionID `json:"id"`
	Trigger string      `json:"trigger"`
	Actor   string      `json:"actor"`

	ContextRefs []EntityRef `json:"context_refs"`

	// InScope counts rules that qualified for this pass (including suspended
	// rules reported for visibility); Matched counts rules that fired.
	InScope int `json:"in_scope"`
	Matched int `json:"matched"`

	Prevented bool          `json:"prevented"`
	Outcomes  []RuleOutcome `json:"outcomes,omitempty"`

	// Warnings collects authoring problems surfaced during this pass, visible
	// to rule administrators only.
	Warnings []string `json:"warnings,omitempty"`

	// Override details, populated when an override occurred during the pass.
	OverrideID     OverrideID `json:"override_id,omitempty"`
	OverrideReason string     `json:"override_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// OverrideStatus is the state of an override request.
type OverrideStatus int

const (
	OverridePending OverrideStatus = iota
	OverrideApproved
	OverrideRejected
)

var overrideStatusNames = map[OverrideStatus]string{
	OverridePending:  "pending",
	OverrideApproved: "approved",
	OverrideRejected: "rejected",
}

func (s OverrideStatus) String() string {
	if name, ok := overrideStatusNames[s]; ok {
		return name
	}
	return "pending"
}

// ParseOverrideStatus converts a wire name back to an OverrideStatus.
func ParseOverrideStatus(v string) (OverrideStatus, error) {
	for s, name := range overrideStatusNames {
		if name == v {
			return s, nil
		}
	}
	return OverridePending, fmt.Errorf("%w: override status %q", ErrUnknownEnumValue, v)
}

func (s OverrideStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *OverrideStatus) UnmarshalText(b []byte) error {
	parsed, err := ParseOverrideStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// OverrideRequest asks for an authorized exception to a blocking action.
// Created only for actions marked CanOverride. A pending request never
// satisfies a require_approval action; only an explicit approval by an
// authorized actor does. An approved request is consumed by exactly one
// later dispatch.
type OverrideRequest struct {
	ID          OverrideID  `json:"id"`
	ExecutionID ExecutionID `json:"execution_id"`
	RuleCode    string      `json:"rule_code"`
	ContextRef  EntityRef   `json:"context_ref"`

	Reason      string         `json:"reason"`
	RequestedBy string         `json:"requested_by"`
	Status      OverrideStatus `json:"status"`

	ResolvedBy string     `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Consumed   bool       `json:"consumed"`

	CreatedAt time.Time `json:"created_at"`
}
