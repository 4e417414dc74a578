package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/meridianworks/rulegate/internal/types"
)

type countingLister struct {
	calls int
	rules []*types.Rule
	err   error
}

func (c *countingLister) ListRules(_ context.Context, _ string) ([]*types.Rule, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.rules, nil
}

func TestCachedSource_ServesFromCacheWithinTTL(t *testing.T) {
	upstream := &countingLister{rules: []*types.Rule{{Code: "R1"}}}
	cache := NewCachedSource(upstream, time.Minute, nil)

	for i := 0; i < 5; i++ {
		rules, err := cache.ListRules(context.Background(), "work_order.save")
		require.NoError(t, err)
		require.Len(t, rules, 1)
	}

	assert.Equal(t, 1, upstream.calls)
}

func TestCachedSource_ExpiryReloads(t *testing.T) {
	upstream := &countingLister{rules: []*types.Rule{{Code: "R1"}}}
	cache := NewCachedSource(upstream, time.Minute, nil)

	now := time.Now()
	cache.now = func() time.Time { return now }

	_, err := cache.ListRules(context.Background(), "work_order.save")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = cache.ListRules(context.Background(), "work_order.save")
	require.NoError(t, err)

	assert.Equal(t, 2, upstream.calls)
}

func TestCachedSource_TriggersCachedSeparately(t *testing.T) {
	upstream := &countingLister{}
	cache := NewCachedSource(upstream, time.Minute, nil)

	_, err := cache.ListRules(context.Background(), "work_order.save")
	require.NoError(t, err)
	_, err = cache.ListRules(context.Background(), "cutter.save")
	require.NoError(t, err)

	assert.Equal(t, 2, upstream.calls)
}

func TestCachedSource_InvalidateForcesReload(t *testing.T) {
	upstream := &countingLister{}
	cache := NewCachedSource(upstream, time.Minute, nil)

	_, err := cache.ListRules(context.Background(), "work_order.save")
	require.NoError(t, err)

	cache.Invalidate()

	_, err = cache.ListRules(context.Background(), "work_order.save")
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.calls)
}

func TestCachedSource_ServesStaleOnUpstreamFailure(t *testing.T) {
	upstream := &countingLister{rules: []*types.Rule{{Code: "R1"}}}
	cache := NewCachedSource(upstream, time.Minute, nil)

	now := time.Now()
	cache.now = func() time.Time { return now }

	_, err := cache.ListRules(context.Background(), "work_order.save")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	upstream.err = errors.New("connection refused")

	rules, err := cache.ListRules(context.Background(), "work_order.save")
	require.NoError(t, err)
	require.Len(t, rules, 1)
}

func TestCachedSource_StaleServeLogsOutage(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	upstream := &countingLister{rules: []*types.Rule{{Code: "R1"}}}
	cache := NewCachedSource(upstream, time.Minute, zap.New(core))

	now := time.Now()
	cache.now = func() time.Time { return now }

	_, err := cache.ListRules(context.Background(), "work_order.save")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	upstream.err = errors.New("connection refused")

	_, err = cache.ListRules(context.Background(), "work_order.save")
	require.NoError(t, err)

	entries := logs.FilterMessage("rule catalog unavailable, serving expired cache entry").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "work_order.save", entries[0].ContextMap()["trigger"])
}

func TestCachedSource_ErrorWithoutStaleEntrySurfaces(t *testing.T) {
	upstream := &countingLister{err: errors.New("connection refused")}
	cache := NewCachedSource(upstream, time.Minute, nil)

	_, err := cache.ListRules(context.Background(), "work_order.save")
	require.Error(t, err)
}
