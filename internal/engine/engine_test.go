package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianworks/rulegate/internal/types"
)

type fakeSource struct {
	rules []*types.Rule
	err   error
}

func (f *fakeSource) ListRules(_ context.Context, _ string) ([]*types.Rule, error) {
	return f.rules, f.err
}

type fakeOverrides struct {
	requests []*types.OverrideRequest
	err      error
}

func (f *fakeOverrides) FindOpen(_ context.Context, ruleCode string, ref types.EntityRef) (*types.OverrideRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := len(f.requests) - 1; i >= 0; i-- {
		req := f.requests[i]
		if req.RuleCode != ruleCode || req.ContextRef != ref || req.Consumed {
			continue
		}
		if req.Status == types.OverridePending || req.Status == types.OverrideApproved {
			return req, nil
		}
	}
	return nil, nil
}

func (f *fakeOverrides) Create(_ context.Context, req *types.OverrideRequest) error {
	if f.err != nil {
		return f.err
	}
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeOverrides) Consume(_ context.Context, id types.OverrideID) error {
	for _, req := range f.requests {
		if req.ID == id {
			req.Consumed = true
			return nil
		}
	}
	return types.ErrOverrideNotFound
}

type fakeSink struct {
	records []*types.ExecutionRecord
	err     error
}

func (f *fakeSink) Record(_ context.Context, rec *types.ExecutionRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

type captureNotifier struct {
	messages []string
	panics   bool
}

func (n *captureNotifier) Notify(_, message string, _ types.Severity) {
	if n.panics {
		panic("delivery backend offline")
	}
	n.messages = append(n.messages, message)
}

func activeRule(code string, priority int, condition types.ConditionNode, actions ...types.Action) *types.Rule {
	return &types.Rule{
		Code:      code,
		Title:     code,
		Trigger:   "work_order.save",
		Priority:  priority,
		Status:    types.StatusActive,
		Version:   1,
		Condition: &condition,
		Actions:   actions,
	}
}

func alwaysOn() types.ConditionNode {
	return leafNode(types.OpIsNotNull, types.Path("status"), nil)
}

func newTestEngine(source RuleSource, overrides OverrideStore, sink AuditSink, notifier Notifier) *Engine {
	return New(source, overrides, sink, notifier, nil)
}

func TestEvaluate_ArrayValuedOperandsDoNotAbortThePass(t *testing.T) {
	arrayLeaf := activeRule("ARRAY", 10, leafNode(types.OpEquals, types.Path("tags"), []any{"a", "b"}),
		types.Action{Kind: types.ActionShowMessage, Severity: types.SeverityInfo, Template: "tagged"})
	fallback := activeRule("FALLBACK", 5, alwaysOn(),
		types.Action{Kind: types.ActionShowMessage, Severity: types.SeverityInfo, Template: "always"})

	workOrder := types.NewDocument(types.EntityWorkOrder, "WO-200").
		Set("status", "released").
		Set("tags", []any{"a", "b"})
	ec := types.NewContext("work_order.save").WithEntity(workOrder)

	eng := newTestEngine(&fakeSource{rules: []*types.Rule{arrayLeaf, fallback}}, &fakeOverrides{}, &fakeSink{}, nil)

	result, err := eng.Evaluate(context.Background(), ec, "jdoe")
	require.NoError(t, err)

	// The array comparison is non-matching; the rest of the pass still runs.
	require.Len(t, result.FiredRules, 1)
	assert.Equal(t, "FALLBACK", result.FiredRules[0].RuleCode)
}

func TestEvaluate_PreventHaltsLowerPriorityRules(t *testing.T) {
	blocker := activeRule("BLOCK", 10, alwaysOn(),
		types.Action{Kind: types.ActionPrevent, Severity: types.SeverityCritical, Template: "stop"})
	informer := activeRule("INFO", 5, alwaysOn(),
		types.Action{Kind: types.ActionShowMessage, Template: "hello"})

	sink := &fakeSink{}
	eng := newTestEngine(&fakeSource{rules: []*types.Rule{informer, blocker}}, &fakeOverrides{}, sink, nil)

	result, err := eng.Evaluate(context.Background(), workOrderContext(), "jdoe")
	require.NoError(t, err)

	assert.True(t, result.Prevented)
	require.Len(t, result.FiredRules, 1)
	assert.Equal(t, "BLOCK", result.FiredRules[0].RuleCode)

	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.Equal(t, 2, rec.InScope)
	assert.Equal(t, 1, rec.Matched)
	assert.True(t, rec.Prevented)
	assert.Equal(t, "jdoe", rec.Actor)
}

func TestEvaluate_DeterministicTieBreakByCode(t *testing.T) {
	b := activeRule("B-RULE", 5, alwaysOn(), types.Action{Kind: types.ActionShowMessage, Template: "b"})
	a := activeRule("A-RULE", 5, alwaysOn(), types.Action{Kind: types.ActionShowMessage, Template: "a"})

	eng := newTestEngine(&fakeSource{rules: []*types.Rule{b, a}}, &fakeOverrides{}, &fakeSink{}, nil)

	result, err := eng.Evaluate(context.Background(), workOrderContext(), "")
	require.NoError(t, err)

	require.Len(t, result.FiredRules, 2)
	assert.Equal(t, "A-RULE", result.FiredRules[0].RuleCode)
	assert.Equal(t, "B-RULE", result.FiredRules[1].RuleCode)
}

func TestEvaluate_CatalogUnavailable(t *testing.T) {
	eng := newTestEngine(&fakeSource{err: errors.New("connection refused")}, &fakeOverrides{}, &fakeSink{}, nil)

	_, err := eng.Evaluate(context.Background(), workOrderContext(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCatalogUnavailable)
}

func TestEvaluate_NoInScopeRulesProducesNoRecord(t *testing.T) {
	sink := &fakeSink{}
	eng := newTestEngine(&fakeSource{}, &fakeOverrides{}, sink, nil)

	result, err := eng.Evaluate(context.Background(), workOrderContext(), "")
	require.NoError(t, err)

	assert.False(t, result.Prevented)
	assert.Empty(t, result.FiredRules)
	assert.Empty(t, sink.records)
}

func TestEvaluate_SuspendedRuleCountedButNotDispatched(t *testing.T) {
	suspended := activeRule("SUSP", 5, alwaysOn(), types.Action{Kind: types.ActionPrevent})
	suspended.Status = types.StatusSuspended

	sink := &fakeSink{}
	eng := newTestEngine(&fakeSource{rules: []*types.Rule{suspended}}, &fakeOverrides{}, sink, nil)

	result, err := eng.Evaluate(context.Background(), workOrderContext(), "")
	require.NoError(t, err)

	assert.False(t, result.Prevented)
	assert.Empty(t, result.FiredRules)
	require.Len(t, sink.records, 1)
	assert.Equal(t, 1, sink.records[0].InScope)
	assert.Equal(t, 0, sink.records[0].Matched)
}

func TestEvaluate_GaugeCutterScenario(t *testing.T) {
	condition := types.Leaf(types.LeafCondition{
		Entity: types.EntityCutter,
		Path:   types.Path("family"),
		Op:     types.OpEquals,
		Value:  "gauge",
	})
	rule := activeRule("CUTTER-GAUGE", 5, condition,
		types.Action{
			Kind:     types.ActionShowWarning,
			Severity: types.SeverityWarning,
			Template: "{count} cutter(s) flagged in {family}",
		})

	cutter := types.NewDocument(types.EntityCutter, "CUT-9").Set("family", "gauge")
	ec := workOrderContext().WithEntity(cutter).
		WithVar("count", 3).
		WithVar("family", "gauge")

	eng := newTestEngine(&fakeSource{rules: []*types.Rule{rule}}, &fakeOverrides{}, &fakeSink{}, nil)

	result, err := eng.Evaluate(context.Background(), ec, "")
	require.NoError(t, err)

	require.Len(t, result.FiredRules, 1)
	require.Len(t, result.FiredRules[0].Actions, 1)
	outcome := result.FiredRules[0].Actions[0]
	assert.Equal(t, "3 cutter(s) flagged in gauge", outcome.Message)
	assert.Equal(t, types.OutcomeApplied, outcome.Status)
	assert.Equal(t, types.SeverityWarning, outcome.Severity)
	assert.False(t, result.Prevented)
}

func TestEvaluate_ConfirmationFlow(t *testing.T) {
	rule := activeRule("CONFIRM", 5, alwaysOn(),
		types.Action{Kind: types.ActionRequireConfirmation, Template: "are you sure"})
	eng := newTestEngine(&fakeSource{rules: []*types.Rule{rule}}, &fakeOverrides{}, &fakeSink{}, nil)

	ec := workOrderContext()
	result, err := eng.Evaluate(context.Background(), ec, "")
	require.NoError(t, err)
	assert.True(t, result.RequiresConfirmation)
	assert.Equal(t, types.OutcomeBlocked, result.FiredRules[0].Actions[0].Status)

	ec.Confirmed = true
	result, err = eng.Evaluate(context.Background(), ec, "")
	require.NoError(t, err)
	assert.False(t, result.RequiresConfirmation)
	assert.Equal(t, types.OutcomeApplied, result.FiredRules[0].Actions[0].Status)
}

func TestEvaluate_OverrideReasonFlow(t *testing.T) {
	rule := activeRule("REASON", 5, alwaysOn(),
		types.Action{Kind: types.ActionRequireOverrideReason, Template: "reason required"})
	sink := &fakeSink{}
	eng := newTestEngine(&fakeSource{rules: []*types.Rule{rule}}, &fakeOverrides{}, sink, nil)

	ec := workOrderContext()
	result, err := eng.Evaluate(context.Background(), ec, "")
	require.NoError(t, err)
	assert.True(t, result.RequiresConfirmation)

	ec.OverrideReason = "customer escalation"
	result, err = eng.Evaluate(context.Background(), ec, "")
	require.NoError(t, err)
	assert.False(t, result.RequiresConfirmation)
	assert.Equal(t, "customer escalation", sink.records[1].OverrideReason)
}

func TestEvaluate_ApprovalLifecycle(t *testing.T) {
	rule := activeRule("APPROVAL", 5, alwaysOn(),
		types.Action{Kind: types.ActionRequireApproval, CanOverride: true, Template: "needs sign-off"})
	overrides := &fakeOverrides{}
	eng := newTestEngine(&fakeSource{rules: []*types.Rule{rule}}, overrides, &fakeSink{}, nil)

	// First pass creates a pending request and blocks.
	result, err := eng.Evaluate(context.Background(), workOrderContext(), "jdoe")
	require.NoError(t, err)
	require.NotNil(t, result.RequiresApproval)
	assert.True(t, result.Prevented)
	require.Len(t, overrides.requests, 1)
	firstID := overrides.requests[0].ID
	assert.Equal(t, types.OverridePending, overrides.requests[0].Status)
	assert.Equal(t, "jdoe", overrides.requests[0].RequestedBy)

	// A pending request never satisfies the action; no duplicate is created.
	result, err = eng.Evaluate(context.Background(), workOrderContext(), "jdoe")
	require.NoError(t, err)
	require.NotNil(t, result.RequiresApproval)
	assert.Equal(t, firstID, result.RequiresApproval.ID)
	assert.Len(t, overrides.requests, 1)

	// Approval satisfies exactly one later dispatch.
	overrides.requests[0].Status = types.OverrideApproved
	result, err = eng.Evaluate(context.Background(), workOrderContext(), "jdoe")
	require.NoError(t, err)
	assert.Nil(t, result.RequiresApproval)
	assert.False(t, result.Prevented)
	assert.Equal(t, types.OutcomeApplied, result.FiredRules[0].Actions[0].Status)
	assert.True(t, overrides.requests[0].Consumed)

	// The consumed approval cannot satisfy a second dispatch.
	result, err = eng.Evaluate(context.Background(), workOrderContext(), "jdoe")
	require.NoError(t, err)
	require.NotNil(t, result.RequiresApproval)
	assert.True(t, result.Prevented)
	require.Len(t, overrides.requests, 2)
	assert.NotEqual(t, firstID, overrides.requests[1].ID)
}

func TestEvaluate_NonOverridableApprovalBlocksHard(t *testing.T) {
	rule := activeRule("HARD", 5, alwaysOn(),
		types.Action{Kind: types.ActionRequireApproval, CanOverride: false})
	overrides := &fakeOverrides{}
	eng := newTestEngine(&fakeSource{rules: []*types.Rule{rule}}, overrides, &fakeSink{}, nil)

	result, err := eng.Evaluate(context.Background(), workOrderContext(), "")
	require.NoError(t, err)

	assert.True(t, result.Prevented)
	assert.Nil(t, result.RequiresApproval)
	assert.Empty(t, overrides.requests)
	assert.Equal(t, types.OutcomeBlocked, result.FiredRules[0].Actions[0].Status)
}

func TestEvaluate_IncrementCounterIsIdempotentPerContext(t *testing.T) {
	rule := activeRule("COUNT", 5, alwaysOn(),
		types.Action{
			Kind: types.ActionIncrementCounter,
			Params: types.MutateParams{
				Entity: types.EntityWorkOrder,
				Field:  "rework_count",
				Delta:  2,
			},
		})
	eng := newTestEngine(&fakeSource{rules: []*types.Rule{rule}}, &fakeOverrides{}, &fakeSink{}, nil)

	ec := workOrderContext()
	_, err := eng.Evaluate(context.Background(), ec, "")
	require.NoError(t, err)
	_, err = eng.Evaluate(context.Background(), ec, "")
	require.NoError(t, err)

	entity, _ := ec.Entity(types.EntityWorkOrder)
	value, ok := entity.Field("rework_count")
	require.True(t, ok)
	assert.Equal(t, float64(2), value)
}

func TestEvaluate_SetFieldMutatesContextEntity(t *testing.T) {
	rule := activeRule("SET", 5, alwaysOn(),
		types.Action{
			Kind: types.ActionSetField,
			Params: types.MutateParams{
				Entity: types.EntityWorkOrder,
				Field:  "flagged",
				Value:  true,
			},
		})
	eng := newTestEngine(&fakeSource{rules: []*types.Rule{rule}}, &fakeOverrides{}, &fakeSink{}, nil)

	ec := workOrderContext()
	_, err := eng.Evaluate(context.Background(), ec, "")
	require.NoError(t, err)

	entity, _ := ec.Entity(types.EntityWorkOrder)
	value, ok := entity.Field("flagged")
	require.True(t, ok)
	assert.Equal(t, true, value)
}

func TestEvaluate_ValidationFailure(t *testing.T) {
	min := float64(50)
	rule := activeRule("MIN", 5, alwaysOn(),
		types.Action{
			Kind:     types.ActionEnforceMinimum,
			Template: "quantity below minimum",
			Params: types.ValidateParams{
				Entity: types.EntityWorkOrder,
				Path:   types.Path("quantity"),
				Min:    &min,
			},
		})
	eng := newTestEngine(&fakeSource{rules: []*types.Rule{rule}}, &fakeOverrides{}, &fakeSink{}, nil)

	result, err := eng.Evaluate(context.Background(), workOrderContext(), "")
	require.NoError(t, err)

	assert.True(t, result.ValidationFailed)
	assert.False(t, result.Prevented)
	assert.Equal(t, types.OutcomeValidationFailed, result.FiredRules[0].Actions[0].Status)
}

func TestEvaluate_NotifierPanicIsContained(t *testing.T) {
	rule := activeRule("NOTIFY", 5, alwaysOn(),
		types.Action{
			Kind:   types.ActionSendNotification,
			Params: types.NotifyParams{Recipient: "supervisors"},
		},
		types.Action{Kind: types.ActionShowMessage, Template: "still here"})
	notifier := &captureNotifier{panics: true}
	eng := newTestEngine(&fakeSource{rules: []*types.Rule{rule}}, &fakeOverrides{}, &fakeSink{}, notifier)

	result, err := eng.Evaluate(context.Background(), workOrderContext(), "")
	require.NoError(t, err)

	require.Len(t, result.FiredRules[0].Actions, 2)
	assert.Equal(t, types.OutcomeFailed, result.FiredRules[0].Actions[0].Status)
	assert.Equal(t, types.OutcomeApplied, result.FiredRules[0].Actions[1].Status)
}

func TestEvaluate_NotificationDelivered(t *testing.T) {
	rule := activeRule("NOTIFY", 5, alwaysOn(),
		types.Action{
			Kind:     types.ActionSendNotification,
			Template: "order {code} needs review",
			Params:   types.NotifyParams{Recipient: "planners"},
		})
	notifier := &captureNotifier{}
	eng := newTestEngine(&fakeSource{rules: []*types.Rule{rule}}, &fakeOverrides{}, &fakeSink{}, notifier)

	ec := workOrderContext().WithVar("code", "WO-100")
	_, err := eng.Evaluate(context.Background(), ec, "")
	require.NoError(t, err)

	require.Len(t, notifier.messages, 1)
	assert.Equal(t, "order WO-100 needs review", notifier.messages[0])
}

func TestEvaluate_PreventSkipsRemainingButLoggingRuns(t *testing.T) {
	rule := activeRule("HALT", 5, alwaysOn(),
		types.Action{Kind: types.ActionPrevent, Template: "blocked"},
		types.Action{Kind: types.ActionShowMessage, Template: "never shown"},
		types.Action{Kind: types.ActionLogAudit, Template: "always logged"})
	eng := newTestEngine(&fakeSource{rules: []*types.Rule{rule}}, &fakeOverrides{}, &fakeSink{}, nil)

	result, err := eng.Evaluate(context.Background(), workOrderContext(), "")
	require.NoError(t, err)

	outcomes := result.FiredRules[0].Actions
	require.Len(t, outcomes, 3)
	assert.Equal(t, types.OutcomeBlocked, outcomes[0].Status)
	assert.Equal(t, types.OutcomeSkipped, outcomes[1].Status)
	assert.Equal(t, types.OutcomeApplied, outcomes[2].Status)
}

func TestEvaluate_WorkflowInstructionEmitted(t *testing.T) {
	rule := activeRule("WF", 5, alwaysOn(),
		types.Action{
			Kind: types.ActionChangeStatus,
			Params: types.WorkflowParams{
				Entity: types.EntityWorkOrder,
				Status: "on_hold",
			},
		})
	eng := newTestEngine(&fakeSource{rules: []*types.Rule{rule}}, &fakeOverrides{}, &fakeSink{}, nil)

	result, err := eng.Evaluate(context.Background(), workOrderContext(), "")
	require.NoError(t, err)

	instruction := result.FiredRules[0].Actions[0].Instruction
	require.NotNil(t, instruction)
	assert.Equal(t, "change_status", instruction.Operation)
	assert.Equal(t, "on_hold", instruction.Status)
	assert.Equal(t, "WO-100", instruction.Entity.ID)
}

func TestEvaluate_AuditFailureNotSurfaced(t *testing.T) {
	rule := activeRule("AUDITFAIL", 5, alwaysOn(),
		types.Action{Kind: types.ActionShowMessage, Template: "m"})
	eng := newTestEngine(&fakeSource{rules: []*types.Rule{rule}}, &fakeOverrides{}, &fakeSink{err: errors.New("disk full")}, nil)

	result, err := eng.Evaluate(context.Background(), workOrderContext(), "")
	require.NoError(t, err)
	require.Len(t, result.FiredRules, 1)
}

func TestEvaluate_AuthoringWarningsReachRecord(t *testing.T) {
	condition := leafNode(types.OpRegex, types.Path("status"), "(")
	rule := activeRule("BADREGEX", 5, condition,
		types.Action{Kind: types.ActionPrevent})

	sink := &fakeSink{}
	eng := newTestEngine(&fakeSource{rules: []*types.Rule{rule}}, &fakeOverrides{}, sink, nil)

	result, err := eng.Evaluate(context.Background(), workOrderContext(), "")
	require.NoError(t, err)

	assert.False(t, result.Prevented)
	assert.Empty(t, result.FiredRules)
	require.Len(t, sink.records, 1)
	assert.NotEmpty(t, sink.records[0].Warnings)
}
