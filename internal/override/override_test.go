package override

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianworks/rulegate/internal/types"
)

type fakeStore struct {
	requests map[types.OverrideID]*types.OverrideRequest
}

func newFakeStore(reqs ...*types.OverrideRequest) *fakeStore {
	s := &fakeStore{requests: make(map[types.OverrideID]*types.OverrideRequest)}
	for _, req := range reqs {
		s.requests[req.ID] = req
	}
	return s
}

func (s *fakeStore) GetOverride(_ context.Context, id types.OverrideID) (*types.OverrideRequest, error) {
	req, ok := s.requests[id]
	if !ok {
		return nil, types.ErrOverrideNotFound
	}
	copied := *req
	return &copied, nil
}

func (s *fakeStore) ResolveOverride(_ context.Context, id types.OverrideID, status types.OverrideStatus, resolvedBy string, resolvedAt time.Time) error {
	req, ok := s.requests[id]
	if !ok {
		return types.ErrOverrideNotFound
	}
	if req.Status != types.OverridePending {
		return types.ErrOverrideResolved
	}
	req.Status = status
	req.ResolvedBy = resolvedBy
	req.ResolvedAt = &resolvedAt
	return nil
}

func (s *fakeStore) ListOverrides(_ context.Context, status *types.OverrideStatus) ([]*types.OverrideRequest, error) {
	var out []*types.OverrideRequest
	for _, req := range s.requests {
		if status == nil || req.Status == *status {
			out = append(out, req)
		}
	}
	return out, nil
}

func pendingRequest(requestedBy string) *types.OverrideRequest {
	return &types.OverrideRequest{
		ID:          types.NewOverrideID(),
		ExecutionID: types.NewExecutionID(),
		RuleCode:    "APPROVAL",
		ContextRef:  types.EntityRef{Kind: types.EntityWorkOrder, ID: "WO-100"},
		RequestedBy: requestedBy,
		Status:      types.OverridePending,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestManager_Approve(t *testing.T) {
	req := pendingRequest("jdoe")
	store := newFakeStore(req)
	manager := NewManager(store, nil, nil)

	resolved, err := manager.Approve(context.Background(), req.ID, "supervisor")
	require.NoError(t, err)

	assert.Equal(t, types.OverrideApproved, resolved.Status)
	assert.Equal(t, "supervisor", resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, types.OverrideApproved, store.requests[req.ID].Status)
}

func TestManager_Reject(t *testing.T) {
	req := pendingRequest("jdoe")
	store := newFakeStore(req)
	manager := NewManager(store, nil, nil)

	resolved, err := manager.Reject(context.Background(), req.ID, "supervisor")
	require.NoError(t, err)
	assert.Equal(t, types.OverrideRejected, resolved.Status)
}

func TestManager_SelfApprovalDenied(t *testing.T) {
	req := pendingRequest("jdoe")
	manager := NewManager(newFakeStore(req), nil, nil)

	_, err := manager.Approve(context.Background(), req.ID, "jdoe")
	assert.ErrorIs(t, err, types.ErrNotAuthorized)
}

func TestManager_AnonymousActorDenied(t *testing.T) {
	req := pendingRequest("jdoe")
	manager := NewManager(newFakeStore(req), nil, nil)

	_, err := manager.Approve(context.Background(), req.ID, "")
	assert.ErrorIs(t, err, types.ErrNotAuthorized)
}

func TestManager_ResolveIsFinal(t *testing.T) {
	req := pendingRequest("jdoe")
	store := newFakeStore(req)
	manager := NewManager(store, nil, nil)

	_, err := manager.Approve(context.Background(), req.ID, "supervisor")
	require.NoError(t, err)

	_, err = manager.Reject(context.Background(), req.ID, "supervisor")
	assert.ErrorIs(t, err, types.ErrOverrideResolved)
}

func TestManager_UnknownRequest(t *testing.T) {
	manager := NewManager(newFakeStore(), nil, nil)

	_, err := manager.Approve(context.Background(), types.NewOverrideID(), "supervisor")
	assert.ErrorIs(t, err, types.ErrOverrideNotFound)
}

type denyAll struct{}

func (denyAll) CanApprove(string, *types.OverrideRequest) bool { return false }

func TestManager_CustomAccessControl(t *testing.T) {
	req := pendingRequest("jdoe")
	manager := NewManager(newFakeStore(req), denyAll{}, nil)

	_, err := manager.Approve(context.Background(), req.ID, "supervisor")
	assert.ErrorIs(t, err, types.ErrNotAuthorized)
}

func TestManager_Pending(t *testing.T) {
	open := pendingRequest("jdoe")
	closed := pendingRequest("asmith")
	closed.Status = types.OverrideRejected
	manager := NewManager(newFakeStore(open, closed), nil, nil)

	pending, err := manager.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, open.ID, pending[0].ID)
}
