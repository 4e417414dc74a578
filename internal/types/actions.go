// internal/types/actions.go
package types

import (
	"encoding/json"
	"fmt"
)

/*
 * Action catalog types.
 *
 * Actions are a tagged union: ActionKind selects the variant and Params holds
 * the kind-specific strongly-typed parameter struct. The JSON representation
 * keeps params under a "params" object decoded by kind switch, which removes
 * the "wrong parameter for this action kind" class of bugs an untyped
 * parameter bag would allow.
 *
 * Kind groups:
 *   - informational: show_message, show_warning, show_error, show_info_panel
 *   - control: prevent, require_confirmation, require_approval, require_override_reason
 *   - notification: send_notification, send_email
 *   - mutation: set_field, calculate_value, increment_counter
 *   - workflow: change_status, assign_to_user, create_task
 *   - validation: validate_field, enforce_minimum, enforce_maximum, enforce_pattern
 *   - logging: log_audit, log_custom
 */

// ActionKind selects the action variant.
type ActionKind int

const (
	ActionUnspecified ActionKind = iota
	ActionShowMessage
	ActionShowWarning
	ActionShowError
	ActionShowInfoPanel
	ActionPrevent
	ActionRequireConfirmation
	ActionRequireApproval
	ActionRequireOverrideReason
	ActionSendNotification
	ActionSendEmail
	ActionSetField
	ActionCalculateValue
	ActionIncrementCounter
	ActionChangeStatus
	ActionAssignToUser
	ActionCreateTask
	ActionValidateField
	ActionEnforceMinimum
	ActionEnforceMaximum
	ActionEnforcePattern
	ActionLogAudit
	ActionLogCustom
)

var actionKindNames = map[ActionKind]string{
	ActionShowMessage:           "show_message",
	ActionShowWarning:           "show_warning",
	ActionShowError:             "show_error",
	ActionShowInfoPanel:         "show_info_panel",
	ActionPrevent:               "prevent",
	ActionRequireConfirmation:   "require_confirmation",
	ActionRequireApproval:       "require_approval",
	ActionRequireOverrideReason: "require_override_reason",
	ActionSendNotification:      "send_notification",
	ActionSendEmail:             "send_email",
	ActionSetField:              "set_field",
	ActionCalculateValue:        "calculate_value",
	ActionIncrementCounter:      "increment_counter",
	ActionChangeStatus:          "change_status",
	ActionAssignToUser:          "assign_to_user",
	ActionCreateTask:            "create_task",
	ActionValidateField:         "validate_field",
	ActionEnforceMinimum:        "enforce_minimum",
	ActionEnforceMaximum:        "enforce_maximum",
	ActionEnforcePattern:        "enforce_pattern",
	ActionLogAudit:              "log_audit",
	ActionLogCustom:             "log_custom",
}

func (k ActionKind) String() string {
	if name, ok := actionKindNames[k]; ok {
		return name
	}
	return "unspecified"
}

// ParseActionKind converts a wire name back to an ActionKind.
func ParseActionKind(v string) (ActionKind, error) {
	for k, name := range actionKindNames {
		if name == v {
			return k, nil
		}
	}
	return ActionUnspecified, fmt.Errorf("%w: action kind %q", ErrUnknownEnumValue, v)
}

func (k ActionKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ActionKind) UnmarshalText(b []byte) error {
	parsed, err := ParseActionKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Severity grades the human-visible weight of an action's message.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityInfo:     "info",
	SeverityWarning:  "warning",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "info"
}

// ParseSeverity converts a wire name back to a Severity.
func ParseSeverity(v string) (Severity, error) {
	for s, name := range severityNames {
		if name == v {
			return s, nil
		}
	}
	return SeverityInfo, fmt.Errorf("%w: severity %q", ErrUnknownEnumValue, v)
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	parsed, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ActionParams is implemented by every kind-specific parameter struct.
type ActionParams interface {
	actionParams()
}

// MutateParams configures the mutation actions. set_field writes Value,
// increment_counter adds Delta, calculate_value copies the value resolved
// from Source.
type MutateParams struct {
	Entity EntityKind    `json:"entity"`
	Field  string        `json:"field"`
	Value  any           `json:"value,omitempty"`
	Delta  float64       `json:"delta,omitempty"`
	Source []PathSegment `json:"source,omitempty"`
}

func (MutateParams) actionParams() {}

// NotifyParams selects the recipient of a notification request. The selector
// is opaque to the engine; the external delivery collaborator interprets it.
type NotifyParams struct {
	Recipient string `json:"recipient"`
}

func (NotifyParams) actionParams() {}

// WorkflowParams configures the workflow actions. The engine never performs
// cross-entity writes itself: it emits a structured instruction the caller
// applies.
type WorkflowParams struct {
	Entity    EntityKind `json:"entity"`
	Status    string     `json:"status,omitempty"`
	Assignee  string     `json:"assignee,omitempty"`
	TaskTitle string     `json:"task_title,omitempty"`
}

func (WorkflowParams) actionParams() {}

// ValidateParams configures the validation actions. Min/Max bound
// enforce_minimum/enforce_maximum; Pattern backs enforce_pattern.
type ValidateParams struct {
	Entity  EntityKind    `json:"entity"`
	Path    []PathSegment `json:"path"`
	Min     *float64      `json:"min,omitempty"`
	Max     *float64      `json:"max,omitempty"`
	Pattern string        `json:"pattern,omitempty"`
}

func (ValidateParams) actionParams() {}

// Action is one entry of a rule's ordered action list.
type Action struct {
	Kind     ActionKind
	Severity Severity

	// Template is the human-readable message with {name} placeholders
	// resolved from the context's template variables at dispatch time.
	Template string

	// CanOverride marks whether a blocking outcome of this action may
	// produce an OverrideRequest. Non-overridable actions never do.
	CanOverride bool

	Params ActionParams
}

type actionJSON struct {
	Kind        ActionKind      `json:"kind"`
	Severity    Severity        `json:"severity"`
	Template    string          `json:"template,omitempty"`
	CanOverride bool            `json:"can_override,omitempty"`
	Params      json.RawMessage `json:"params,omitempty"`
}

// MarshalJSON implements json.Marshaler with the tagged-union layout.
func (a Action) MarshalJSON() ([]byte, error) {
	out := actionJSON{
		Kind:        a.Kind,
		Severity:    a.Severity,
		Template:    a.Template,
		CanOverride: a.CanOverride,
	}
	if a.Params != nil {
		raw, err := json.Marshal(a.Params)
		if err != nil {
			return nil, err
		}
		out.Params = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the params object into the kind-specific struct.
func (a *Action) UnmarshalJSON(data []byte) error {
	var in actionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	a.Kind = in.Kind
	a.Severity = in.Severity
	a.Template = in.Template
	a.CanOverride = in.CanOverride
	a.Params = nil

	if len(in.Params) == 0 {
		return nil
	}

	params := newParamsFor(in.Kind)
	if params == nil {
		// Informational/control/logging kinds carry no params; ignore extras.
		return nil
	}
	if err := json.Unmarshal(in.Params, params); err != nil {
		return fmt.Errorf("decode %s params: %w", in.Kind, err)
	}
	a.Params = deref(params)
	return nil
}

// newParamsFor returns a pointer to the parameter struct for kinds that take
// one, nil otherwise.
func newParamsFor(kind ActionKind) any {
	switch kind {
	case ActionSetField, ActionCalculateValue, ActionIncrementCounter:
		return &MutateParams{}
	case ActionSendNotification, ActionSendEmail:
		return &NotifyParams{}
	case ActionChangeStatus, ActionAssignToUser, ActionCreateTask:
		return &WorkflowParams{}
	case ActionValidateField, ActionEnforceMinimum, ActionEnforceMaximum, ActionEnforcePattern:
		return &ValidateParams{}
	default:
		return nil
	}
}

func deref(p any) ActionParams {
	switch v := p.(type) {
	case *MutateParams:
		return *v
	case *NotifyParams:
		return *v
	case *WorkflowParams:
		return *v
	case *ValidateParams:
		return *v
	default:
		return nil
	}
}
