// internal/engine/dispatch.go
package engine

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/meridianworks/rulegate/internal/types"
)

/*
 * Action dispatch.
 *
 * Actions execute in the list order defined on the rule. A prevent action
 * halts the remaining actions for that rule, except logging actions, which
 * always run. Individual action failures are caught and recorded as failed
 * outcomes; they never abort subsequent actions. A blocking action's
 * intended block semantics are applied even when its accompanying work
 * (notification send, message rendering) fails.
 *
 * require_approval consults the override store: an APPROVED unconsumed
 * request for the same rule/context pair satisfies the action and is
 * consumed; a PENDING request keeps blocking; otherwise a new PENDING
 * request is created, but only when the action is marked CanOverride.
 *
 * Mutation actions write only to the in-memory context entities and are
 * idempotent per context via Context.MarkApplied, so a confirmation
 * re-invoke against the same context cannot double-increment a counter.
 */

// dispatchFlags aggregates the control effects of one rule's action list.
type dispatchFlags struct {
	prevented            bool
	requiresConfirmation bool
	validationFailed     bool
	override             *types.OverrideRef
}

// dispatchRule executes the rule's actions in list order.
func (e *Engine) dispatchRule(ctx context.Context, ec *types.Context, cr *CompiledRule, execID types.ExecutionID, actor string) (types.RuleOutcome, dispatchFlags) {
	outcome := types.RuleOutcome{
		RuleCode:    cr.Rule.Code,
		RuleVersion: cr.Rule.Version,
		Matched:     true,
	}
	var flags dispatchFlags
	halted := false

	for i := range cr.Rule.Actions {
		action := &cr.Rule.Actions[i]

		if halted && !isLogging(action.Kind) {
			outcome.Actions = append(outcome.Actions, types.ActionOutcome{
				Kind:     action.Kind,
				Status:   types.OutcomeSkipped,
				Severity: action.Severity,
			})
			continue
		}

		ao, halt := e.dispatchAction(ctx, ec, cr, action, i, execID, actor, &flags)
		outcome.Actions = append(outcome.Actions, ao)
		if halt {
			halted = true
		}
	}

	return outcome, flags
}

// dispatchAction executes a single action. Returns the outcome and whether
// the remaining non-logging actions of this rule should be halted.
func (e *Engine) dispatchAction(ctx context.Context, ec *types.Context, cr *CompiledRule, action *types.Action, idx int, execID types.ExecutionID, actor string, flags *dispatchFlags) (types.ActionOutcome, bool) {
	out := types.ActionOutcome{
		Kind:     action.Kind,
		Status:   types.OutcomeApplied,
		Severity: action.Severity,
		Message:  RenderTemplate(action.Template, ec.Vars),
	}

	switch action.Kind {
	case types.ActionShowMessage, types.ActionShowWarning, types.ActionShowInfoPanel:
		return out, false

	case types.ActionShowError:
		// Error implies blocking but does not halt the rest of this rule's list.
		out.Status = types.OutcomeBlocked
		flags.prevented = true
		return out, false

	case types.ActionPrevent:
		out.Status = types.OutcomeBlocked
		flags.prevented = true
		return out, true

	case types.ActionRequireConfirmation:
		if ec.Confirmed {
			return out, false
		}
		out.Status = types.OutcomeBlocked
		flags.requiresConfirmation = true
		return out, false

	case types.ActionRequireOverrideReason:
		if ec.OverrideReason != "" {
			return out, false
		}
		out.Status = types.OutcomeBlocked
		flags.requiresConfirmation = true
		return out, false

	case types.ActionRequireApproval:
		return e.dispatchApproval(ctx, ec, cr, action, execID, actor, flags, out), false

	case types.ActionSendNotification, types.ActionSendEmail:
		return e.dispatchNotify(action, out), false

	case types.ActionSetField, types.ActionCalculateValue, types.ActionIncrementCounter:
		return e.dispatchMutate(ec, cr, action, idx, out), false

	case types.ActionChangeStatus, types.ActionAssignToUser, types.ActionCreateTask:
		return dispatchWorkflow(ec, action, out), false

	case types.ActionValidateField, types.ActionEnforceMinimum,
		types.ActionEnforceMaximum, types.ActionEnforcePattern:
		return dispatchValidate(ec, action, flags, out), false

	case types.ActionLogAudit, types.ActionLogCustom:
		e.log.Info("rule action log",
			zap.String("rule", cr.Rule.Code),
			zap.String("execution_id", string(execID)),
			zap.String("actor", actor),
			zap.String("message", out.Message))
		return out, false

	default:
		out.Status = types.OutcomeFailed
		out.Error = fmt.Sprintf("unsupported action kind %d", action.Kind)
		return out, false
	}
}

// dispatchApproval implements the require_approval semantics against the
// override store. Store failures record a failed outcome but the intended
// block is applied regardless.
func (e *Engine) dispatchApproval(ctx context.Context, ec *types.Context, cr *CompiledRule, action *types.Action, execID types.ExecutionID, actor string, flags *dispatchFlags, out types.ActionOutcome) types.ActionOutcome {
	block := func(o types.ActionOutcome) types.ActionOutcome {
		flags.prevented = true
		return o
	}

	if e.overrides == nil || !action.CanOverride {
		// Non-overridable approval gate: hard block, no request created.
		out.Status = types.OutcomeBlocked
		return block(out)
	}

	ref := ec.PrimaryRef()
	existing, err := e.overrides.FindOpen(ctx, cr.Rule.Code, ref)
	if err != nil {
		out.Status = types.OutcomeFailed
		out.Error = err.Error()
		return block(out)
	}

	if existing != nil {
		switch existing.Status {
		case types.OverrideApproved:
			if err := e.overrides.Consume(ctx, existing.ID); err != nil {
				out.Status = types.OutcomeFailed
				out.Error = err.Error()
				return block(out)
			}
			out.OverrideID = existing.ID
			return out
		case types.OverridePending:
			out.Status = types.OutcomePendingApproval
			out.OverrideID = existing.ID
			flags.override = &types.OverrideRef{ID: existing.ID, RuleCode: cr.Rule.Code}
			return block(out)
		}
		// Rejected requests leave the block in force; fall through and
		// create a fresh request for this attempt.
	}

	req := &types.OverrideRequest{
		ID:          types.NewOverrideID(),
		ExecutionID: execID,
		RuleCode:    cr.Rule.Code,
		ContextRef:  ref,
		Reason:      out.Message,
		RequestedBy: actor,
		Status:      types.OverridePending,
		CreatedAt:   ec.At(),
	}
	if err := e.overrides.Create(ctx, req); err != nil {
		out.Status = types.OutcomeFailed
		out.Error = err.Error()
		return block(out)
	}

	out.Status = types.OutcomePendingApproval
	out.OverrideID = req.ID
	flags.override = &types.OverrideRef{ID: req.ID, RuleCode: cr.Rule.Code}
	return block(out)
}

// dispatchNotify requests delivery from the external collaborator.
// Fire-and-forget; panics in the collaborator are caught and recorded as a
// failed outcome rather than aborting the pass.
func (e *Engine) dispatchNotify(action *types.Action, out types.ActionOutcome) (result types.ActionOutcome) {
	result = out

	params, ok := action.Params.(types.NotifyParams)
	if !ok || e.notifier == nil {
		result.Status = types.OutcomeFailed
		result.Error = "notification not configured"
		return result
	}

	defer func() {
		if r := recover(); r != nil {
			result.Status = types.OutcomeFailed
			result.Error = fmt.Sprintf("notifier panic: %v", r)
		}
	}()
	e.notifier.Notify(params.Recipient, out.Message, action.Severity)
	return result
}

// dispatchMutate applies a mutation action to the in-memory context entity.
func (e *Engine) dispatchMutate(ec *types.Context, cr *CompiledRule, action *types.Action, idx int, out types.ActionOutcome) types.ActionOutcome {
	params, ok := action.Params.(types.MutateParams)
	if !ok {
		out.Status = types.OutcomeFailed
		out.Error = "missing mutate params"
		return out
	}

	entity, ok := contextEntity(ec, params.Entity)
	if !ok {
		out.Status = types.OutcomeFailed
		out.Error = fmt.Sprintf("entity %s not in context", params.Entity)
		return out
	}

	switch action.Kind {
	case types.ActionSetField:
		entity.SetField(params.Field, params.Value)

	case types.ActionCalculateValue:
		resolved := resolveOn(entity, params.Source)
		if resolved.Missing {
			out.Status = types.OutcomeFailed
			out.Error = fmt.Sprintf("source %q resolved to missing", types.PathString(params.Source))
			return out
		}
		entity.SetField(params.Field, resolved.Value)

	case types.ActionIncrementCounter:
		// MarkApplied keys on rule code + action index: a second firing
		// against the same context is a no-op, keeping the mutation
		// idempotent for identical inputs.
		key := fmt.Sprintf("%s#%d", cr.Rule.Code, idx)
		if !ec.MarkApplied(key) {
			return out
		}
		current := 0.0
		if v, ok := entity.Field(params.Field); ok {
			if n, numeric := asNumber(v); numeric {
				current = n
			}
		}
		delta := params.Delta
		if delta == 0 {
			delta = 1
		}
		entity.SetField(params.Field, current+delta)
	}

	return out
}

// dispatchWorkflow emits a structured instruction for the caller to apply.
// The engine performs no cross-entity writes outside the current context.
func dispatchWorkflow(ec *types.Context, action *types.Action, out types.ActionOutcome) types.ActionOutcome {
	params, ok := action.Params.(types.WorkflowParams)
	if !ok {
		out.Status = types.OutcomeFailed
		out.Error = "missing workflow params"
		return out
	}

	ref := types.EntityRef{Kind: params.Entity}
	if entity, found := contextEntity(ec, params.Entity); found {
		ref = entity.Ref()
	}

	out.Instruction = &types.WorkflowInstruction{
		Entity:    ref,
		Operation: action.Kind.String(),
		Status:    params.Status,
		Assignee:  params.Assignee,
		TaskTitle: params.TaskTitle,
	}
	return out
}

// dispatchValidate checks the configured constraint and downgrades breaches
// to a failed-validation outcome instead of raising.
func dispatchValidate(ec *types.Context, action *types.Action, flags *dispatchFlags, out types.ActionOutcome) types.ActionOutcome {
	params, ok := action.Params.(types.ValidateParams)
	if !ok {
		out.Status = types.OutcomeFailed
		out.Error = "missing validate params"
		return out
	}

	fail := func(o types.ActionOutcome) types.ActionOutcome {
		o.Status = types.OutcomeValidationFailed
		flags.validationFailed = true
		return o
	}

	resolved := ResolveField(ec, params.Entity, params.Path)
	if resolved.Missing {
		return fail(out)
	}

	switch action.Kind {
	case types.ActionEnforceMinimum:
		n, numeric := asNumber(resolved.Value)
		if !numeric || params.Min == nil || n < *params.Min {
			return fail(out)
		}

	case types.ActionEnforceMaximum:
		n, numeric := asNumber(resolved.Value)
		if !numeric || params.Max == nil || n > *params.Max {
			return fail(out)
		}

	case types.ActionEnforcePattern:
		pattern, err := regexp.Compile(params.Pattern)
		if err != nil {
			out.Status = types.OutcomeFailed
			out.Error = fmt.Sprintf("%v: %v", types.ErrInvalidPattern, err)
			return out
		}
		s, stringable := asString(resolved.Value)
		if !stringable || !pattern.MatchString(s) {
			return fail(out)
		}

	case types.ActionValidateField:
		if params.Min != nil || params.Max != nil {
			n, numeric := asNumber(resolved.Value)
			if !numeric {
				return fail(out)
			}
			if params.Min != nil && n < *params.Min {
				return fail(out)
			}
			if params.Max != nil && n > *params.Max {
				return fail(out)
			}
		}
		if params.Pattern != "" {
			pattern, err := regexp.Compile(params.Pattern)
			if err != nil {
				out.Status = types.OutcomeFailed
				out.Error = fmt.Sprintf("%v: %v", types.ErrInvalidPattern, err)
				return out
			}
			s, stringable := asString(resolved.Value)
			if !stringable || !pattern.MatchString(s) {
				return fail(out)
			}
		}
	}

	return out
}

// contextEntity resolves the target entity, defaulting to the primary when
// the params left the kind unspecified.
func contextEntity(ec *types.Context, kind types.EntityKind) (types.Entity, bool) {
	if kind == types.EntityUnspecified {
		kind = ec.Primary
	}
	return ec.Entity(kind)
}
