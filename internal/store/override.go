package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/meridianworks/rulegate/internal/types"
)

/*
 * Override request persistence. Implements both the engine's override store
 * (FindOpen, Create, Consume) and the approval manager's resolution surface
 * (GetOverride, ResolveOverride, ListOverrides).
 *
 * State transitions are guarded in SQL: resolve only moves pending rows,
 * consume only moves approved unconsumed rows. Zero affected rows means a
 * concurrent actor won the transition.
 */

type overrideRow struct {
	ID          string         `db:"id"`
	ExecutionID string         `db:"execution_id"`
	RuleCode    string         `db:"rule_code"`
	ContextKind string         `db:"context_kind"`
	ContextID   string         `db:"context_id"`
	Reason      string         `db:"reason"`
	RequestedBy string         `db:"requested_by"`
	Status      string         `db:"status"`
	ResolvedBy  sql.NullString `db:"resolved_by"`
	ResolvedAt  sql.NullString `db:"resolved_at"`
	Consumed    bool           `db:"consumed"`
	CreatedAt   string         `db:"created_at"`
}

// FindOpen returns the latest unconsumed pending or approved request for the
// rule/context pair, or nil when none exists.
func (s *Store) FindOpen(_ context.Context, ruleCode string, ref types.EntityRef) (*types.OverrideRequest, error) {
	var row overrideRow
	err := s.q.Get("find-open-override", &row, ruleCode, ref.Kind.String(), ref.ID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open override for rule %q: %w", ruleCode, err)
	}
	return overrideFromRow(&row)
}

// Create persists a new pending request.
func (s *Store) Create(_ context.Context, req *types.OverrideRequest) error {
	_, err := s.q.Exec("insert-override",
		string(req.ID), string(req.ExecutionID), req.RuleCode,
		req.ContextRef.Kind.String(), req.ContextRef.ID,
		req.Reason, req.RequestedBy, req.Status.String(),
		timeText(req.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert override request %s: %w", req.ID, err)
	}
	return nil
}

// Consume marks an approved request as used. Fails when the request is not
// approved or was already consumed by a concurrent dispatch.
func (s *Store) Consume(_ context.Context, id types.OverrideID) error {
	res, err := s.q.Exec("consume-override", string(id))
	if err != nil {
		return fmt.Errorf("consume override %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s not approved or already consumed", types.ErrOverrideResolved, id)
	}
	return nil
}

// GetOverride fetches one request by ID.
func (s *Store) GetOverride(_ context.Context, id types.OverrideID) (*types.OverrideRequest, error) {
	var row overrideRow
	err := s.q.Get("get-override", &row, string(id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", types.ErrOverrideNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get override %s: %w", id, err)
	}
	return overrideFromRow(&row)
}

// ResolveOverride transitions a pending request to the given terminal
// status. Fails with ErrOverrideResolved when the row already left pending.
func (s *Store) ResolveOverride(_ context.Context, id types.OverrideID, status types.OverrideStatus, resolvedBy string, resolvedAt time.Time) error {
	res, err := s.q.Exec("resolve-override", status.String(), resolvedBy, timeText(resolvedAt), string(id))
	if err != nil {
		return fmt.Errorf("resolve override %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", types.ErrOverrideResolved, id)
	}
	return nil
}

// ListOverrides returns requests, optionally filtered by status, newest
// first.
func (s *Store) ListOverrides(_ context.Context, status *types.OverrideStatus) ([]*types.OverrideRequest, error) {
	var rows []overrideRow
	var err error
	if status != nil {
		err = s.q.Select("list-overrides-by-status", &rows, status.String())
	} else {
		err = s.q.Select("list-overrides", &rows)
	}
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}

	requests := make([]*types.OverrideRequest, 0, len(rows))
	for i := range rows {
		req, err := overrideFromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}

func overrideFromRow(row *overrideRow) (*types.OverrideRequest, error) {
	corrupt := func(what string, err error) error {
		return fmt.Errorf("override request %s: corrupted stored %s: %w", row.ID, what, err)
	}

	kind, err := types.ParseEntityKind(row.ContextKind)
	if err != nil {
		return nil, corrupt("context kind", err)
	}
	status, err := types.ParseOverrideStatus(row.Status)
	if err != nil {
		return nil, corrupt("status", err)
	}

	req := &types.OverrideRequest{
		ID:          types.OverrideID(row.ID),
		ExecutionID: types.ExecutionID(row.ExecutionID),
		RuleCode:    row.RuleCode,
		ContextRef:  types.EntityRef{Kind: kind, ID: row.ContextID},
		Reason:      row.Reason,
		RequestedBy: row.RequestedBy,
		Status:      status,
		ResolvedBy:  row.ResolvedBy.String,
		Consumed:    row.Consumed,
	}

	if req.CreatedAt, err = parseTimeText(row.CreatedAt); err != nil {
		return nil, corrupt("created_at", err)
	}
	if req.ResolvedAt, err = parseNullableTime(row.ResolvedAt); err != nil {
		return nil, corrupt("resolved_at", err)
	}

	return req, nil
}
