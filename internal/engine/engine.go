// internal/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/meridianworks/rulegate/internal/types"
)

/*
 * Rule engine orchestration.
 *
 * One Evaluate call is a single synchronous pass over one context:
 *
 *   1. Load candidate rules for the trigger (ACTIVE + SUSPENDED; suspended
 *      are loaded for visibility but skipped at dispatch).
 *   2. Filter to rules in scope (scope.go), skipping suspended here.
 *   3. Sort by priority descending, rule code ascending (deterministic,
 *      reproducible ordering for regression tests).
 *   4. Evaluate each condition tree; dispatch matching rules' actions in
 *      list order; stop evaluating further rules once a prevent fired.
 *   5. Persist one ExecutionRecord when at least one rule was in scope.
 *
 * Catalog load failures surface as ErrCatalogUnavailable-wrapped errors,
 * never as "no rules": silently proceeding without governance would be
 * unsafe in this domain.
 *
 * The compile cache keyed by code@version makes authoring warnings (invalid
 * regex, empty tree) log once per rule version instead of once per pass.
 */

// RuleSource lists candidate rules for a trigger event. The engine treats it
// as read-only during an evaluation pass.
type RuleSource interface {
	ListRules(ctx context.Context, trigger string) ([]*types.Rule, error)
}

// Notifier delivers notification requests. Fire-and-forget: the engine never
// blocks evaluation on delivery success.
type Notifier interface {
	Notify(recipient, message string, severity types.Severity)
}

// OverrideStore manages override requests for require_approval dispatches.
type OverrideStore interface {
	// FindOpen returns the latest unconsumed request for the rule/context
	// pair, or nil when none exists.
	FindOpen(ctx context.Context, ruleCode string, ref types.EntityRef) (*types.OverrideRequest, error)
	Create(ctx context.Context, req *types.OverrideRequest) error
	// Consume marks an approved request as used by a dispatch so it cannot
	// satisfy a second one.
	Consume(ctx context.Context, id types.OverrideID) error
}

// AuditSink accepts execution records for durable storage. At-least-once
// delivery intent; durability before Evaluate returns is not guaranteed.
type AuditSink interface {
	Record(ctx context.Context, rec *types.ExecutionRecord) error
}

// Engine evaluates the rule catalog against caller-built contexts.
// Safe for concurrent use: per-pass state lives on the stack and in the
// caller's Context; the compile cache is the only shared mutable state.
type Engine struct {
	source    RuleSource
	overrides OverrideStore
	notifier  Notifier
	audit     AuditSink
	log       *zap.Logger

	mu       sync.RWMutex
	compiled map[string]*CompiledRule
}

// New creates an engine wired to its collaborators. A nil notifier disables
// notification actions (recorded as failed); a nil logger falls back to nop.
func New(source RuleSource, overrides OverrideStore, audit AuditSink, notifier Notifier, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		source:    source,
		overrides: overrides,
		notifier:  notifier,
		audit:     audit,
		log:       log,
		compiled:  make(map[string]*CompiledRule),
	}
}

// Evaluate runs one synchronous pass of the catalog against the context.
// Returns the aggregate result the caller renders and acts on.
func (e *Engine) Evaluate(ctx context.Context, ec *types.Context, actor string) (*types.EvaluationResult, error) {
	rules, err := e.source.ListRules(ctx, ec.Trigger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCatalogUnavailable, err)
	}

	now := ec.At()
	execID := types.NewExecutionID()

	result := &types.EvaluationResult{}
	record := &types.ExecutionRecord{
		ID:          execID,
		Trigger:     ec.Trigger,
		Actor:       actor,
		ContextRefs: ec.Refs(),
		CreatedAt:   now,
	}

	// Scope filter. Suspended rules count as in scope for audit visibility
	// but are skipped at dispatch.
	var candidates []*CompiledRule
	for _, rule := range rules {
		switch rule.Status {
		case types.StatusActive, types.StatusSuspended:
		default:
			continue
		}
		if !InScope(rule, ec, now) {
			continue
		}
		record.InScope++
		if rule.Status == types.StatusSuspended {
			continue
		}
		candidates = append(candidates, e.compile(rule))
	}

	// Priority descending, code ascending: deterministic ordering.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Rule.Priority != candidates[j].Rule.Priority {
			return candidates[i].Rule.Priority > candidates[j].Rule.Priority
		}
		return candidates[i].Rule.Code < candidates[j].Rule.Code
	})

	for _, cr := range candidates {
		record.Warnings = append(record.Warnings, cr.Warnings...)

		if !cr.Matches(ec) {
			continue
		}

		outcome, flags := e.dispatchRule(ctx, ec, cr, execID, actor)
		record.Matched++
		record.Outcomes = append(record.Outcomes, outcome)
		result.FiredRules = append(result.FiredRules, outcome)

		if flags.requiresConfirmation {
			result.RequiresConfirmation = true
		}
		if flags.validationFailed {
			result.ValidationFailed = true
		}
		if flags.override != nil && result.RequiresApproval == nil {
			result.RequiresApproval = flags.override
			record.OverrideID = flags.override.ID
		}
		if ec.OverrideReason != "" {
			record.OverrideReason = ec.OverrideReason
		}
		if flags.prevented {
			// Blocking action halts evaluation of lower-priority rules.
			result.Prevented = true
			record.Prevented = true
			break
		}
	}

	// Audit only when the pass touched at least one in-scope rule; contexts
	// where zero rules apply produce no record to bound audit volume.
	if record.InScope > 0 {
		if err := e.audit.Record(ctx, record); err != nil {
			// The caller already has the synchronous result; a failed audit
			// write is logged, not surfaced.
			e.log.Error("audit record write failed",
				zap.String("execution_id", string(record.ID)),
				zap.Error(err))
		}
	}

	return result, nil
}

// compile returns the cached compiled form, compiling and logging authoring
// warnings on first sight of a rule version.
func (e *Engine) compile(rule *types.Rule) *CompiledRule {
	key := fmt.Sprintf("%s@%d", rule.Code, rule.Version)

	e.mu.RLock()
	cached, ok := e.compiled[key]
	e.mu.RUnlock()
	if ok {
		return cached
	}

	compiled := Compile(rule)
	for _, warning := range compiled.Warnings {
		e.log.Warn("rule authoring error", zap.String("rule", key), zap.String("detail", warning))
	}

	e.mu.Lock()
	e.compiled[key] = compiled
	e.mu.Unlock()
	return compiled
}
