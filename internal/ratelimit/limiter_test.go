package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
	"github.com/Shiki0138/hotelbooking-sub004/internal/notify/notifytest"
	"github.com/Shiki0138/hotelbooking-sub004/internal/ratelimit"
)

func newLimiter(t *testing.T, store notify.Store, maxPerDay int) *ratelimit.Limiter {
	t.Helper()
	limiter := ratelimit.New(store, 600, maxPerDay, zerolog.Nop())
	limiter.SetLocation(time.UTC)
	return limiter
}

func subscriberWithQuiet(start, end int) notify.Subscriber {
	return notify.Subscriber{
		ID: "sub-1",
		Preferences: notify.Preferences{
			Quiet: notify.QuietWindow{StartHour: start, EndHour: end},
		},
	}
}

func TestLimiter_QuietHours(t *testing.T) {
	store := notifytest.NewMockStore()
	limiter := newLimiter(t, store, 10)
	limiter.SetTimeProvider(func() time.Time {
		return time.Date(2026, 8, 29, 23, 0, 0, 0, time.UTC)
	})

	sub := subscriberWithQuiet(22, 7)

	decision, err := limiter.Allow(context.Background(), sub, notify.PriorityHigh, notify.RequestContext{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, notify.SuppressQuietHours, decision.Reason)
}

func TestLimiter_QuietHoursBypass(t *testing.T) {
	store := notifytest.NewMockStore()
	limiter := newLimiter(t, store, 10)
	limiter.SetTimeProvider(func() time.Time {
		return time.Date(2026, 8, 29, 23, 0, 0, 0, time.UTC)
	})

	sub := subscriberWithQuiet(22, 7)

	decision, err := limiter.Allow(context.Background(), sub, notify.PriorityCritical,
		notify.RequestContext{BypassQuietHours: true})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestLimiter_DailyCap(t *testing.T) {
	store := notifytest.NewMockStore()
	limiter := newLimiter(t, store, 10)
	limiter.SetTimeProvider(func() time.Time {
		return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	})

	ctx := context.Background()
	sub := notify.Subscriber{ID: "sub-1", Preferences: notify.Preferences{MaxPerDay: 10}}

	// Ten committed sends fill the day's budget.
	for i := 0; i < 10; i++ {
		decision, err := limiter.Allow(ctx, sub, notify.PriorityMedium, notify.RequestContext{})
		require.NoError(t, err)
		require.True(t, decision.Allowed, "send %d should be admitted", i+1)
		limiter.CommitAttempt(ctx, sub.ID)
	}

	// The eleventh is suppressed.
	decision, err := limiter.Allow(ctx, sub, notify.PriorityMedium, notify.RequestContext{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, notify.SuppressDailyLimit, decision.Reason)

	count, err := limiter.DailyCount(ctx, sub.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 10, count)
}

func TestLimiter_DailyCapBypassStillCounts(t *testing.T) {
	store := notifytest.NewMockStore()
	limiter := newLimiter(t, store, 2)
	limiter.SetTimeProvider(func() time.Time {
		return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	})

	ctx := context.Background()
	sub := notify.Subscriber{ID: "sub-1"}

	// Exhaust the cap with bypassed sends; commits still happen.
	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(ctx, sub, notify.PriorityCritical,
			notify.RequestContext{BypassDailyLimit: true})
		require.NoError(t, err)
		require.True(t, decision.Allowed)
		limiter.CommitAttempt(ctx, sub.ID)
	}

	count, err := limiter.DailyCount(ctx, sub.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count, "bypassed sends must still be recorded")

	// A non-bypassed send now sees the exhausted cap.
	decision, err := limiter.Allow(ctx, sub, notify.PriorityMedium, notify.RequestContext{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, notify.SuppressDailyLimit, decision.Reason)
}

func TestLimiter_DailyCapRollsOverAtMidnight(t *testing.T) {
	store := notifytest.NewMockStore()
	limiter := newLimiter(t, store, 1)

	current := time.Date(2026, 8, 29, 23, 50, 0, 0, time.UTC)
	limiter.SetTimeProvider(func() time.Time { return current })

	ctx := context.Background()
	sub := notify.Subscriber{ID: "sub-1"}

	decision, err := limiter.Allow(ctx, sub, notify.PriorityMedium, notify.RequestContext{})
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	limiter.CommitAttempt(ctx, sub.ID)

	decision, err = limiter.Allow(ctx, sub, notify.PriorityMedium, notify.RequestContext{})
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	// Cross midnight: the counter key changes, the budget resets.
	current = time.Date(2026, 8, 30, 0, 10, 0, 0, time.UTC)

	decision, err = limiter.Allow(ctx, sub, notify.PriorityMedium, notify.RequestContext{})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestLimiter_GlobalCap(t *testing.T) {
	store := notifytest.NewMockStore()
	// Burst of 1 per minute exhausts immediately.
	limiter := ratelimit.New(store, 1, 100, zerolog.Nop())
	limiter.SetLocation(time.UTC)

	ctx := context.Background()
	sub := notify.Subscriber{ID: "sub-1"}

	decision, err := limiter.Allow(ctx, sub, notify.PriorityMedium, notify.RequestContext{})
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	// Token bucket drained: medium is held back.
	decision, err = limiter.Allow(ctx, sub, notify.PriorityMedium, notify.RequestContext{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, notify.SuppressGlobalLimit, decision.Reason)

	// Critical traffic is exempt from the global cap.
	decision, err = limiter.Allow(ctx, sub, notify.PriorityCritical, notify.RequestContext{})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestLimiter_DefaultMaxPerDayApplies(t *testing.T) {
	store := notifytest.NewMockStore()
	limiter := newLimiter(t, store, 1)
	limiter.SetTimeProvider(func() time.Time {
		return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	})

	ctx := context.Background()
	// Subscriber without a personal cap inherits the engine default.
	sub := notify.Subscriber{ID: "sub-1"}

	limiter.CommitAttempt(ctx, sub.ID)

	decision, err := limiter.Allow(ctx, sub, notify.PriorityMedium, notify.RequestContext{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, notify.SuppressDailyLimit, decision.Reason)
}
