package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/meridianworks/rulegate/internal/types"
)

/*
 * Execution record persistence. Records are append-only: there is no update
 * path, and reads are for administrative inspection only.
 */

type executionRow struct {
	ID              string         `db:"id"`
	TriggerEvent    string         `db:"trigger_event"`
	Actor           string         `db:"actor"`
	ContextRefsJSON []byte         `db:"context_refs_json"`
	InScope         int            `db:"in_scope"`
	Matched         int            `db:"matched"`
	Prevented       bool           `db:"prevented"`
	OutcomesJSON    []byte         `db:"outcomes_json"`
	WarningsJSON    []byte         `db:"warnings_json"`
	OverrideID      sql.NullString `db:"override_id"`
	OverrideReason  string         `db:"override_reason"`
	CreatedAt       string         `db:"created_at"`
}

// Record persists one execution record. Implements the engine's audit sink.
func (s *Store) Record(_ context.Context, rec *types.ExecutionRecord) error {
	refsJSON, err := json.Marshal(rec.ContextRefs)
	if err != nil {
		return fmt.Errorf("marshal context refs for record %s: %w", rec.ID, err)
	}
	outcomesJSON, err := json.Marshal(rec.Outcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes for record %s: %w", rec.ID, err)
	}
	warningsJSON, err := json.Marshal(rec.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings for record %s: %w", rec.ID, err)
	}

	var overrideID any
	if rec.OverrideID != "" {
		overrideID = string(rec.OverrideID)
	}

	_, err = s.q.Exec("insert-execution-record",
		string(rec.ID), rec.Trigger, rec.Actor, string(refsJSON),
		rec.InScope, rec.Matched, rec.Prevented, string(outcomesJSON),
		string(warningsJSON), overrideID, rec.OverrideReason,
		timeText(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert execution record %s: %w", rec.ID, err)
	}
	return nil
}

// GetExecution fetches one execution record by ID.
func (s *Store) GetExecution(_ context.Context, id types.ExecutionID) (*types.ExecutionRecord, error) {
	var row executionRow
	if err := s.q.Get("get-execution-record", &row, string(id)); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("execution record %s not found", id)
		}
		return nil, fmt.Errorf("get execution record %s: %w", id, err)
	}
	return executionFromRow(&row)
}

// ListExecutions returns the most recent records for a trigger, newest first.
func (s *Store) ListExecutions(_ context.Context, trigger string, limit int) ([]*types.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []executionRow
	if err := s.q.Select("list-execution-records", &rows, trigger, limit); err != nil {
		return nil, fmt.Errorf("list execution records for %q: %w", trigger, err)
	}

	records := make([]*types.ExecutionRecord, 0, len(rows))
	for i := range rows {
		rec, err := executionFromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func executionFromRow(row *executionRow) (*types.ExecutionRecord, error) {
	corrupt := func(what string, err error) error {
		return fmt.Errorf("execution record %s: corrupted stored %s: %w", row.ID, what, err)
	}

	rec := &types.ExecutionRecord{
		ID:             types.ExecutionID(row.ID),
		Trigger:        row.TriggerEvent,
		Actor:          row.Actor,
		InScope:        row.InScope,
		Matched:        row.Matched,
		Prevented:      row.Prevented,
		OverrideReason: row.OverrideReason,
	}
	if row.OverrideID.Valid {
		rec.OverrideID = types.OverrideID(row.OverrideID.String)
	}

	var err error
	if rec.CreatedAt, err = parseTimeText(row.CreatedAt); err != nil {
		return nil, corrupt("created_at", err)
	}
	if len(row.ContextRefsJSON) > 0 {
		if err := json.Unmarshal(row.ContextRefsJSON, &rec.ContextRefs); err != nil {
			return nil, corrupt("context refs", err)
		}
	}
	if len(row.OutcomesJSON) > 0 {
		if err := json.Unmarshal(row.OutcomesJSON, &rec.Outcomes); err != nil {
			return nil, corrupt("outcomes", err)
		}
	}
	if len(row.WarningsJSON) > 0 {
		if err := json.Unmarshal(row.WarningsJSON, &rec.Warnings); err != nil {
			return nil, corrupt("warnings", err)
		}
	}

	return rec, nil
}
