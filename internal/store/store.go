// Package store persists the rule catalog, audit trail and override
// requests behind named queries.
//
// Rule definitions travel as JSON documents inside a single row: the
// condition tree, scopes and actions form one logical unit and are never
// partially updated. Columns the engine filters by (trigger, status,
// priority) are lifted out for indexing. A row whose JSON no longer parses
// is corrupted storage and fails the whole catalog load; the engine must
// not silently skip governance it cannot read.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridianworks/rulegate/internal/core/db"
	"github.com/meridianworks/rulegate/internal/types"
)

// Store is the SQL-backed catalog, audit and override persistence layer.
// Safe for concurrent use; all state lives in the database.
type Store struct {
	q   *db.Queries
	log *zap.Logger
}

// New wraps the named-query layer. A nil logger falls back to nop.
func New(q *db.Queries, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{q: q, log: log}
}

// ruleRow mirrors the rules table. Timestamps are RFC3339 TEXT in both
// dialects so scanning stays driver-neutral.
type ruleRow struct {
	Code           string         `db:"code"`
	Version        int            `db:"version"`
	Title          string         `db:"title"`
	Description    string         `db:"description"`
	Category       string         `db:"category"`
	TriggerEvent   string         `db:"trigger_event"`
	Priority       int            `db:"priority"`
	Status         string         `db:"status"`
	IsDefault      bool           `db:"is_default"`
	EffectiveFrom  sql.NullString `db:"effective_from"`
	EffectiveUntil sql.NullString `db:"effective_until"`
	ConditionJSON  []byte         `db:"condition_json"`
	ScopesJSON     []byte         `db:"scopes_json"`
	ActionsJSON    []byte         `db:"actions_json"`
}

// ListRules returns the ACTIVE and SUSPENDED rules for a trigger, ordered by
// priority descending then code. Implements the engine's rule source.
func (s *Store) ListRules(_ context.Context, trigger string) ([]*types.Rule, error) {
	var rows []ruleRow
	if err := s.q.Select("list-rules-by-trigger", &rows, trigger); err != nil {
		return nil, fmt.Errorf("list rules for trigger %q: %w", trigger, err)
	}
	return rulesFromRows(rows)
}

// ListAllRules returns every rule regardless of status, for administrative
// listing.
func (s *Store) ListAllRules(_ context.Context) ([]*types.Rule, error) {
	var rows []ruleRow
	if err := s.q.Select("list-rules", &rows); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rulesFromRows(rows)
}

// GetRule fetches one rule by code.
func (s *Store) GetRule(_ context.Context, code string) (*types.Rule, error) {
	var row ruleRow
	if err := s.q.Get("get-rule", &row, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("rule %q not found", code)
		}
		return nil, fmt.Errorf("get rule %q: %w", code, err)
	}
	return ruleFromRow(&row)
}

// UpsertRule inserts or replaces a rule definition. The stored version
// starts at 1 and increments on every update; the database is authoritative,
// the Version field on the argument is ignored.
func (s *Store) UpsertRule(_ context.Context, rule *types.Rule) error {
	conditionJSON, err := json.Marshal(rule.Condition)
	if err != nil {
		return fmt.Errorf("marshal condition for rule %q: %w", rule.Code, err)
	}
	scopesJSON, err := json.Marshal(rule.Scopes)
	if err != nil {
		return fmt.Errorf("marshal scopes for rule %q: %w", rule.Code, err)
	}
	actionsJSON, err := json.Marshal(rule.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions for rule %q: %w", rule.Code, err)
	}

	now := timeText(time.Now().UTC())
	_, err = s.q.Exec("upsert-rule",
		rule.Code, rule.Title, rule.Description, rule.Category.String(),
		rule.Trigger, rule.Priority, rule.Status.String(), rule.IsDefault,
		nullableTime(rule.EffectiveFrom), nullableTime(rule.EffectiveUntil),
		string(conditionJSON), string(scopesJSON), string(actionsJSON),
		now, now)
	if err != nil {
		return fmt.Errorf("upsert rule %q: %w", rule.Code, err)
	}

	s.log.Info("rule upserted", zap.String("code", rule.Code), zap.String("trigger", rule.Trigger))
	return nil
}

// SetRuleStatus moves a rule through its lifecycle (draft, active,
// suspended, retired) without touching the definition or version.
func (s *Store) SetRuleStatus(_ context.Context, code string, status types.RuleStatus) error {
	res, err := s.q.Exec("set-rule-status", status.String(), timeText(time.Now().UTC()), code)
	if err != nil {
		return fmt.Errorf("set status for rule %q: %w", code, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %q not found", code)
	}
	return nil
}

// DeleteRule removes a rule definition. Execution records referencing it are
// kept; the audit trail outlives the rule.
func (s *Store) DeleteRule(_ context.Context, code string) error {
	res, err := s.q.Exec("delete-rule", code)
	if err != nil {
		return fmt.Errorf("delete rule %q: %w", code, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %q not found", code)
	}
	return nil
}

func rulesFromRows(rows []ruleRow) ([]*types.Rule, error) {
	rules := make([]*types.Rule, 0, len(rows))
	for i := range rows {
		rule, err := ruleFromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// ruleFromRow maps a stored row to the domain type. Any unparsable JSON or
// enum fails the load as corrupted storage.
func ruleFromRow(row *ruleRow) (*types.Rule, error) {
	corrupt := func(what string, err error) error {
		return fmt.Errorf("rule %q: corrupted stored %s: %w", row.Code, what, err)
	}

	category, err := types.ParseRuleCategory(row.Category)
	if err != nil {
		return nil, corrupt("category", err)
	}
	status, err := types.ParseRuleStatus(row.Status)
	if err != nil {
		return nil, corrupt("status", err)
	}

	rule := &types.Rule{
		Code:        row.Code,
		Title:       row.Title,
		Description: row.Description,
		Category:    category,
		Trigger:     row.TriggerEvent,
		Priority:    row.Priority,
		Status:      status,
		IsDefault:   row.IsDefault,
		Version:     row.Version,
	}

	if rule.EffectiveFrom, err = parseNullableTime(row.EffectiveFrom); err != nil {
		return nil, corrupt("effective_from", err)
	}
	if rule.EffectiveUntil, err = parseNullableTime(row.EffectiveUntil); err != nil {
		return nil, corrupt("effective_until", err)
	}

	if len(row.ConditionJSON) > 0 {
		var condition types.ConditionNode
		if err := json.Unmarshal(row.ConditionJSON, &condition); err != nil {
			return nil, corrupt("condition", err)
		}
		rule.Condition = &condition
	}
	if len(row.ScopesJSON) > 0 {
		if err := json.Unmarshal(row.ScopesJSON, &rule.Scopes); err != nil {
			return nil, corrupt("scopes", err)
		}
	}
	if len(row.ActionsJSON) > 0 {
		if err := json.Unmarshal(row.ActionsJSON, &rule.Actions); err != nil {
			return nil, corrupt("actions", err)
		}
	}

	return rule, nil
}

// timeText renders the canonical stored timestamp form.
func timeText(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeText(*t)
}

func parseTimeText(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Parse(time.RFC3339, s)
	}
	return t, nil
}

func parseNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTimeText(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
