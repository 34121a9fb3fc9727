package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"groupdecide/internal/domain"
	"groupdecide/pkg/redis"
)

func setupTestCache(t *testing.T) (*miniredis.Miniredis, *redis.Client, *CacheService) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client, NewCacheService(client, zap.NewNop(), time.Hour)
}

func TestCacheService_DisabledPassesThrough(t *testing.T) {
	cache := NewCacheService(nil, nil, 0)
	ctx := context.Background()
	assert.False(t, cache.Enabled())

	calls := 0
	for i := 0; i < 2; i++ {
		_, err := cache.GetResultsWithCache(ctx, "d1", func(context.Context) (*domain.DecisionResults, error) {
			calls++
			return &domain.DecisionResults{DecisionID: "d1"}, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)

	guard, err := cache.TryDecisionLock(ctx, "d1")
	require.NoError(t, err)
	assert.NotNil(t, guard, "without redis every guard is granted")
	guard.Release(ctx)
	assert.NoError(t, cache.InvalidateResults(ctx, "d1"))
	assert.NoError(t, cache.HealthCheck(ctx))
}

func TestCacheService_ResultsCacheAside(t *testing.T) {
	mr, client, cache := setupTestCache(t)
	ctx := context.Background()
	key := client.KeyBuilder.KeyDecisionResults("d1")

	var calls int32
	fallback := func(context.Context) (*domain.DecisionResults, error) {
		atomic.AddInt32(&calls, 1)
		return &domain.DecisionResults{DecisionID: "d1", Mechanism: domain.MechanismPointAllocation, VoterCount: 3}, nil
	}

	first, err := cache.GetResultsWithCache(ctx, "d1", fallback)
	require.NoError(t, err)
	assert.Equal(t, 3, first.VoterCount)

	assert.Eventually(t, func() bool { return mr.Exists(key) }, time.Second, 10*time.Millisecond)
	assert.Equal(t, time.Hour, mr.TTL(key))

	second, err := cache.GetResultsWithCache(ctx, "d1", fallback)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	require.NoError(t, cache.InvalidateResults(ctx, "d1"))
	assert.False(t, mr.Exists(key))
}

func TestCacheService_CorruptEntryFallsBack(t *testing.T) {
	mr, client, cache := setupTestCache(t)
	require.NoError(t, mr.Set(client.KeyBuilder.KeyDecisionResults("d1"), "{not json"))

	results, err := cache.GetResultsWithCache(context.Background(), "d1", func(context.Context) (*domain.DecisionResults, error) {
		return &domain.DecisionResults{DecisionID: "d1"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "d1", results.DecisionID)
}

func TestCacheService_FallbackErrorIsReturned(t *testing.T) {
	_, _, cache := setupTestCache(t)
	boom := errors.New("database down")

	_, err := cache.GetResultsWithCache(context.Background(), "d1", func(context.Context) (*domain.DecisionResults, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestCacheService_DecisionLockGuard(t *testing.T) {
	mr, client, cache := setupTestCache(t)
	ctx := context.Background()
	key := client.KeyBuilder.KeyDecisionLock("d1")

	held, err := cache.TryDecisionLock(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, held)
	assert.True(t, mr.Exists(key))

	again, err := cache.TryDecisionLock(ctx, "d1")
	require.NoError(t, err)
	assert.Nil(t, again, "second claimant must back off")

	held.Release(ctx)
	assert.False(t, mr.Exists(key))

	// a release after the key changed hands leaves the new owner alone
	stale, err := cache.TryDecisionLock(ctx, "d1")
	require.NoError(t, err)
	require.NoError(t, mr.Set(key, "someone-else"))
	stale.Release(ctx)
	value, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", value)
}

func TestCacheService_SweepLeaderExpires(t *testing.T) {
	mr, _, cache := setupTestCache(t)
	ctx := context.Background()

	lease, err := cache.TrySweepLeader(ctx, 10*time.Second)
	require.NoError(t, err)
	require.NotNil(t, lease)

	other, err := cache.TrySweepLeader(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.Nil(t, other)

	mr.FastForward(11 * time.Second)
	next, err := cache.TrySweepLeader(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.NotNil(t, next)
}

func TestRedisEventPublisher(t *testing.T) {
	_, client, _ := setupTestCache(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, client.KeyBuilder.KeyDecisionEvents("d1"))
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	publisher := NewRedisEventPublisher(client)
	sent := Event{
		Type:       EventPhaseChanged,
		DecisionID: "d1",
		UserID:     "alice",
		FromPhase:  domain.PhaseConstraints,
		Phase:      domain.PhaseOptions,
		At:         time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, publisher.Publish(ctx, sent))

	select {
	case msg := <-sub.Channel():
		var got Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, sent, got)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestDecisionService_LockRespectsForeignGuard(t *testing.T) {
	mr, client, cache := setupTestCache(t)
	f := newFixture(t, WithCache(cache))
	d, _ := f.votingDecision(t, domain.MechanismPointAllocation, nil, "A", "B")
	f.clock.Advance(25 * time.Hour)
	ctx := context.Background()

	key := client.KeyBuilder.KeyDecisionLock(d.ID)
	require.NoError(t, mr.Set(key, "another-instance"))

	summary, err := f.svc.TallyAndLockExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{d.ID}, summary.Skipped)
	assert.Equal(t, domain.PhaseVoting, f.snapshot(t, d.ID).decision.Phase)

	mr.Del(key)
	summary, err = f.svc.TallyAndLockExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{d.ID}, summary.Locked)
	assert.False(t, mr.Exists(key), "guard released after the lock commits")
}

func TestDecisionService_ResultsCachedAndInvalidated(t *testing.T) {
	mr, client, cache := setupTestCache(t)
	f := newFixture(t, WithCache(cache))
	d, _ := f.votingDecision(t, domain.MechanismPointAllocation, nil, "A", "B")
	f.clock.Advance(25 * time.Hour)
	ctx := context.Background()
	_, err := f.svc.TallyAndLockExpired(ctx)
	require.NoError(t, err)

	key := client.KeyBuilder.KeyDecisionResults(d.ID)
	_, err = f.svc.GetResults(ctx, d.ID, "organizer")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return mr.Exists(key) }, time.Second, 10*time.Millisecond)

	require.NoError(t, f.svc.DeleteDecision(ctx, d.ID, "organizer"))
	assert.False(t, mr.Exists(key))
}
