// Package override implements the approval workflow for override requests.
//
// Requests are created by the engine when a require_approval action fires
// without a satisfying approval on file. This package owns the resolution
// side: an authorized actor approves or rejects a pending request, and the
// transition is final. Re-resolving a resolved request fails with
// ErrOverrideResolved rather than silently flipping state.
package override

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridianworks/rulegate/internal/types"
)

// Store is the persistence surface the manager resolves requests against.
type Store interface {
	GetOverride(ctx context.Context, id types.OverrideID) (*types.OverrideRequest, error)
	ResolveOverride(ctx context.Context, id types.OverrideID, status types.OverrideStatus, resolvedBy string, resolvedAt time.Time) error
	ListOverrides(ctx context.Context, status *types.OverrideStatus) ([]*types.OverrideRequest, error)
}

// AccessControl answers whether an actor may resolve a given request.
type AccessControl interface {
	CanApprove(actor string, req *types.OverrideRequest) bool
}

// SelfApprovalGuard is the default access policy: any named actor may
// resolve, except the one who triggered the request.
type SelfApprovalGuard struct{}

func (SelfApprovalGuard) CanApprove(actor string, req *types.OverrideRequest) bool {
	return actor != "" && actor != req.RequestedBy
}

// Manager resolves override requests through the approval state machine.
type Manager struct {
	store Store
	ac    AccessControl
	log   *zap.Logger
	now   func() time.Time
}

// NewManager creates a manager. A nil access control falls back to the
// self-approval guard; a nil logger falls back to nop.
func NewManager(store Store, ac AccessControl, log *zap.Logger) *Manager {
	if ac == nil {
		ac = SelfApprovalGuard{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, ac: ac, log: log, now: time.Now}
}

// Approve transitions a pending request to APPROVED. The approval satisfies
// exactly one later dispatch of the same rule against the same context.
func (m *Manager) Approve(ctx context.Context, id types.OverrideID, actor string) (*types.OverrideRequest, error) {
	return m.resolve(ctx, id, actor, types.OverrideApproved)
}

// Reject transitions a pending request to REJECTED. The blocking action
// stays in force and a later attempt creates a fresh request.
func (m *Manager) Reject(ctx context.Context, id types.OverrideID, actor string) (*types.OverrideRequest, error) {
	return m.resolve(ctx, id, actor, types.OverrideRejected)
}

// Pending lists open requests awaiting resolution.
func (m *Manager) Pending(ctx context.Context) ([]*types.OverrideRequest, error) {
	status := types.OverridePending
	return m.store.ListOverrides(ctx, &status)
}

func (m *Manager) resolve(ctx context.Context, id types.OverrideID, actor string, status types.OverrideStatus) (*types.OverrideRequest, error) {
	req, err := m.store.GetOverride(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != types.OverridePending {
		return nil, fmt.Errorf("%w: %s is %s", types.ErrOverrideResolved, id, req.Status)
	}
	if !m.ac.CanApprove(actor, req) {
		return nil, fmt.Errorf("%w: %s cannot resolve request by %s", types.ErrNotAuthorized, actor, req.RequestedBy)
	}

	resolvedAt := m.now().UTC()
	if err := m.store.ResolveOverride(ctx, id, status, actor, resolvedAt); err != nil {
		return nil, err
	}

	req.Status = status
	req.ResolvedBy = actor
	req.ResolvedAt = &resolvedAt

	m.log.Info("override request resolved",
		zap.String("id", string(id)),
		zap.String("rule", req.RuleCode),
		zap.String("status", status.String()),
		zap.String("resolved_by", actor))
	return req, nil
}
