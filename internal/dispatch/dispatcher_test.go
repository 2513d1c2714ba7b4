package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shiki0138/hotelbooking-sub004/internal/advisor"
	"github.com/Shiki0138/hotelbooking-sub004/internal/dispatch"
	"github.com/Shiki0138/hotelbooking-sub004/internal/failover"
	"github.com/Shiki0138/hotelbooking-sub004/internal/health"
	"github.com/Shiki0138/hotelbooking-sub004/internal/idempotency"
	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
	"github.com/Shiki0138/hotelbooking-sub004/internal/notify/notifytest"
	"github.com/Shiki0138/hotelbooking-sub004/internal/ratelimit"
	"github.com/Shiki0138/hotelbooking-sub004/internal/registry"
)

// noon keeps every test clear of any quiet window unless one is configured.
var noon = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

type engine struct {
	dispatcher *dispatch.Dispatcher
	store      *notifytest.MockStore
	history    *notifytest.MockHistory
	limiter    *ratelimit.Limiter
	monitor    *health.Monitor
	push       *notifytest.MockAdapter
	sms        *notifytest.MockAdapter
	email      *notifytest.MockAdapter
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	log := zerolog.Nop()

	e := &engine{
		store:   notifytest.NewMockStore(),
		history: &notifytest.MockHistory{},
		push:    &notifytest.MockAdapter{NameVal: "push", KindVal: notify.ChannelPush},
		sms:     &notifytest.MockAdapter{NameVal: "sms", KindVal: notify.ChannelSMS},
		email:   &notifytest.MockAdapter{NameVal: "email", KindVal: notify.ChannelEmail},
	}

	adapters := notify.NewAdapterRegistry()
	adapters.Register(e.push)
	adapters.Register(e.sms)
	adapters.Register(e.email)

	reg := registry.New(e.store, log)
	e.monitor = health.NewMonitor(adapters, nil, log, health.WithThreshold(5))
	e.limiter = ratelimit.New(e.store, 600, 50, log)
	e.limiter.SetLocation(time.UTC)
	e.limiter.SetTimeProvider(func() time.Time { return noon })

	coordinator := failover.NewCoordinator(adapters, e.monitor, reg, nil,
		failover.Config{MaxRetries: 2, RetryBackoff: time.Millisecond, PerChannelTimeout: time.Second}, log)

	e.dispatcher = dispatch.NewDispatcher(reg, e.limiter, coordinator, nil, log)
	e.dispatcher.SetHistory(e.history)
	e.dispatcher.SetTimeProvider(func() time.Time { return noon })
	return e
}

func (e *engine) seedSubscriber(id string, prefs notify.Preferences, channels ...notify.ChannelKind) {
	e.store.Subscribers[id] = notify.Subscriber{ID: id, Preferences: prefs}
	for _, ch := range channels {
		e.store.Subscriptions[id] = append(e.store.Subscriptions[id],
			notifytest.NewSubscription("s-"+string(ch), id, ch))
	}
}

func TestDispatcher_SendHappyPath(t *testing.T) {
	e := newEngine(t)
	e.seedSubscriber("sub-1", notify.Preferences{}, notify.ChannelPush, notify.ChannelEmail)

	req := notifytest.NewRequest("sub-1", notify.KindPriceDrop, notify.PriorityMedium)
	result, err := e.dispatcher.Send(context.Background(), req)

	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, []notify.ChannelKind{notify.ChannelPush}, result.ChannelsSucceeded,
		"push leads the default channel order")
	assert.Equal(t, 0, e.email.SendCalls())

	// The attempt was committed against the daily counter.
	count, err := e.limiter.DailyCount(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	// One history record per dispatch.
	require.Len(t, e.history.Saved(), 1)
	assert.Equal(t, req.ID, e.history.Saved()[0].RequestID)
}

func TestDispatcher_ValidationErrors(t *testing.T) {
	e := newEngine(t)

	tests := []struct {
		name string
		req  notify.NotificationRequest
	}{
		{"missing subscriber", notify.NotificationRequest{Payload: notify.Payload{Body: "b"}}},
		{"empty payload", notify.NotificationRequest{SubscriberID: "sub-1"}},
		{"unknown priority", notify.NotificationRequest{
			SubscriberID: "sub-1", Priority: "urgent", Payload: notify.Payload{Body: "b"},
		}},
		{"unknown channel", notify.NotificationRequest{
			SubscriberID: "sub-1", Payload: notify.Payload{Body: "b"},
			RequestedChannels: []notify.ChannelKind{"fax"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.dispatcher.Send(context.Background(), tt.req)
			assert.ErrorIs(t, err, notify.ErrValidation)
		})
	}
}

func TestDispatcher_UnknownSubscriber(t *testing.T) {
	e := newEngine(t)
	req := notifytest.NewRequest("ghost", notify.KindPriceDrop, notify.PriorityMedium)
	_, err := e.dispatcher.Send(context.Background(), req)
	assert.ErrorIs(t, err, notify.ErrSubscriberNotFound)
}

func TestDispatcher_QuietHoursSuppression(t *testing.T) {
	e := newEngine(t)
	// Noon falls inside a 9..17 quiet window.
	e.seedSubscriber("sub-1", notify.Preferences{
		Quiet: notify.QuietWindow{StartHour: 9, EndHour: 17},
	}, notify.ChannelPush)

	req := notifytest.NewRequest("sub-1", notify.KindPriceDrop, notify.PriorityMedium)
	result, err := e.dispatcher.Send(context.Background(), req)

	// Suppression is a successful no-op, not a failure.
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Suppressed)
	assert.Equal(t, notify.SuppressQuietHours, result.SuppressReason)
	assert.Equal(t, 0, e.push.SendCalls())

	// Suppressed requests never touch the daily counter.
	count, _ := e.limiter.DailyCount(context.Background(), "sub-1")
	assert.EqualValues(t, 0, count)
}

func TestDispatcher_BypassQuietHours(t *testing.T) {
	e := newEngine(t)
	e.seedSubscriber("sub-1", notify.Preferences{
		Quiet: notify.QuietWindow{StartHour: 9, EndHour: 17},
	}, notify.ChannelPush)

	req := notifytest.NewRequest("sub-1", notify.KindCancellation, notify.PriorityCritical)
	req.Context.BypassQuietHours = true

	result, err := e.dispatcher.Send(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Suppressed)
	assert.Equal(t, 1, e.push.SendCalls())

	// Bypassed sends still move the counter.
	count, _ := e.limiter.DailyCount(context.Background(), "sub-1")
	assert.EqualValues(t, 1, count)
}

func TestDispatcher_KindMutedSuppression(t *testing.T) {
	e := newEngine(t)
	e.seedSubscriber("sub-1", notify.Preferences{
		EnabledKinds: []notify.EventKind{notify.KindCancellation},
	}, notify.ChannelPush)

	req := notifytest.NewRequest("sub-1", notify.KindFlashSale, notify.PriorityMedium)
	result, err := e.dispatcher.Send(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, result.Suppressed)
	assert.Equal(t, notify.SuppressKindMuted, result.SuppressReason)

	// Explicitly requested channels override the kind filter.
	req2 := notifytest.NewRequest("sub-1", notify.KindFlashSale, notify.PriorityMedium)
	req2.ID = "req-explicit"
	req2.RequestedChannels = []notify.ChannelKind{notify.ChannelPush}
	result, err = e.dispatcher.Send(context.Background(), req2)
	require.NoError(t, err)
	assert.False(t, result.Suppressed)
	assert.True(t, result.Success)
}

func TestDispatcher_FailoverToSecondChannel(t *testing.T) {
	e := newEngine(t)
	e.seedSubscriber("sub-1", notify.Preferences{}, notify.ChannelPush, notify.ChannelSMS)
	e.push.Err = notify.Permanent("410", errors.New("token revoked"))

	req := notifytest.NewRequest("sub-1", notify.KindCancellation, notify.PriorityCritical)
	result, err := e.dispatcher.Send(context.Background(), req)

	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, []notify.ChannelKind{notify.ChannelSMS}, result.ChannelsSucceeded)

	// The dead push destination was invalidated on the spot.
	assert.Equal(t, notify.SubscriptionInvalid, e.store.Subscriptions["sub-1"][0].Status)

	require.Len(t, result.Attempts, 2)
	assert.Equal(t, notify.OutcomePermanentFailure, result.Attempts[0].Outcome)
	assert.Equal(t, notify.OutcomeSuccess, result.Attempts[1].Outcome)
}

func TestDispatcher_AllChannelsFailed(t *testing.T) {
	e := newEngine(t)
	e.seedSubscriber("sub-1", notify.Preferences{}, notify.ChannelPush)
	e.push.Err = notify.Transient("503", errors.New("provider down"))

	req := notifytest.NewRequest("sub-1", notify.KindPriceDrop, notify.PriorityMedium)
	result, err := e.dispatcher.Send(context.Background(), req)

	assert.ErrorIs(t, err, notify.ErrAllChannelsFailed)
	require.NotNil(t, result)
	assert.False(t, result.Success)

	// Failed attempts still count against the daily budget.
	count, _ := e.limiter.DailyCount(context.Background(), "sub-1")
	assert.EqualValues(t, 1, count)
}

func TestDispatcher_NoSubscription(t *testing.T) {
	e := newEngine(t)
	e.seedSubscriber("sub-1", notify.Preferences{}) // no channels

	req := notifytest.NewRequest("sub-1", notify.KindPriceDrop, notify.PriorityMedium)
	result, err := e.dispatcher.Send(context.Background(), req)

	assert.ErrorIs(t, err, notify.ErrNoSubscription)
	require.NotNil(t, result)
	assert.False(t, result.Success)

	// Nothing was attempted, so nothing was committed.
	count, _ := e.limiter.DailyCount(context.Background(), "sub-1")
	assert.EqualValues(t, 0, count)
}

func TestDispatcher_RequestedChannelWithoutSubscriptionIsSkipped(t *testing.T) {
	e := newEngine(t)
	e.seedSubscriber("sub-1", notify.Preferences{}, notify.ChannelEmail)

	req := notifytest.NewRequest("sub-1", notify.KindPriceDrop, notify.PriorityMedium)
	req.RequestedChannels = []notify.ChannelKind{notify.ChannelSMS, notify.ChannelEmail}

	result, err := e.dispatcher.Send(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.Success)

	// SMS shows in the trail as skipped, not silently dropped.
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, notify.ChannelSMS, result.Attempts[0].Channel)
	assert.Equal(t, notify.OutcomeSkipped, result.Attempts[0].Outcome)
	assert.Equal(t, notify.SkipNoSubscription, result.Attempts[0].ErrorDetail)
	assert.Equal(t, notify.OutcomeSuccess, result.Attempts[1].Outcome)
}

func TestDispatcher_DuplicateReplaysCachedResult(t *testing.T) {
	e := newEngine(t)
	e.seedSubscriber("sub-1", notify.Preferences{}, notify.ChannelPush)
	e.dispatcher.SetDedup(idempotency.NewMemory(), time.Minute)

	req := notifytest.NewRequest("sub-1", notify.KindPriceDrop, notify.PriorityMedium)

	first, err := e.dispatcher.Send(context.Background(), req)
	require.NoError(t, err)
	require.True(t, first.Success)
	assert.False(t, first.Duplicate)

	second, err := e.dispatcher.Send(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ChannelsSucceeded, second.ChannelsSucceeded)

	// The provider saw exactly one send.
	assert.Equal(t, 1, e.push.SendCalls())
	count, _ := e.limiter.DailyCount(context.Background(), "sub-1")
	assert.EqualValues(t, 1, count)
}

func TestDispatcher_DailyLimitSuppression(t *testing.T) {
	e := newEngine(t)
	e.seedSubscriber("sub-1", notify.Preferences{MaxPerDay: 2}, notify.ChannelPush)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		req := notifytest.NewRequest("sub-1", notify.KindPriceDrop, notify.PriorityMedium)
		req.ID = "req-" + string(rune('a'+i))
		result, err := e.dispatcher.Send(ctx, req)
		require.NoError(t, err)
		require.True(t, result.Success)
		require.False(t, result.Suppressed)
	}

	req := notifytest.NewRequest("sub-1", notify.KindPriceDrop, notify.PriorityMedium)
	req.ID = "req-over"
	result, err := e.dispatcher.Send(ctx, req)
	require.NoError(t, err)
	assert.True(t, result.Suppressed)
	assert.Equal(t, notify.SuppressDailyLimit, result.SuppressReason)
	assert.Equal(t, 2, e.push.SendCalls())
}

// scriptedAdvisor returns fixed hints, or blocks until the context dies.
type scriptedAdvisor struct {
	hints advisor.Hints
	err   error
	hang  bool
}

func (s *scriptedAdvisor) Optimize(ctx context.Context, profile advisor.Profile, payload notify.Payload) (advisor.Hints, error) {
	if s.hang {
		<-ctx.Done()
		return advisor.Hints{}, ctx.Err()
	}
	return s.hints, s.err
}

func (s *scriptedAdvisor) Probe(ctx context.Context) error { return nil }

func TestDispatcher_AdvisorRanksChannels(t *testing.T) {
	e := newEngine(t)
	e.seedSubscriber("sub-1", notify.Preferences{}, notify.ChannelPush, notify.ChannelEmail)
	e.dispatcher.SetAdvisor(advisor.NewTimed(&scriptedAdvisor{
		hints: advisor.Hints{
			ChannelRanking: []notify.ChannelKind{notify.ChannelEmail, notify.ChannelPush},
			Confidence:     0.9,
		},
	}, time.Second, zerolog.Nop()))

	req := notifytest.NewRequest("sub-1", notify.KindPriceDrop, notify.PriorityMedium)
	result, err := e.dispatcher.Send(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, []notify.ChannelKind{notify.ChannelEmail}, result.ChannelsSucceeded,
		"advisor ranking reorders the subscribed channels")
	assert.Equal(t, 0, e.push.SendCalls())
}

func TestDispatcher_AdvisorRaisesPriorityOnly(t *testing.T) {
	e := newEngine(t)
	e.seedSubscriber("sub-1", notify.Preferences{}, notify.ChannelPush)

	// Score 9 maps to critical under the default thresholds.
	e.dispatcher.SetAdvisor(advisor.NewTimed(&scriptedAdvisor{
		hints: advisor.Hints{PriorityScore: 9},
	}, time.Second, zerolog.Nop()))

	req := notifytest.NewRequest("sub-1", notify.KindPriceDrop, notify.PriorityLow)
	result, err := e.dispatcher.Send(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, notify.PriorityCritical, e.push.LastOptions().Priority)

	// A low score never demotes what the caller asked for.
	e2 := newEngine(t)
	e2.seedSubscriber("sub-1", notify.Preferences{}, notify.ChannelPush)
	e2.dispatcher.SetAdvisor(advisor.NewTimed(&scriptedAdvisor{
		hints: advisor.Hints{PriorityScore: 1},
	}, time.Second, zerolog.Nop()))

	req2 := notifytest.NewRequest("sub-1", notify.KindCancellation, notify.PriorityCritical)
	_, err = e2.dispatcher.Send(context.Background(), req2)
	require.NoError(t, err)
	assert.Equal(t, notify.PriorityCritical, e2.push.LastOptions().Priority)
}

func TestDispatcher_AdvisorTimeoutFallsBackToDefaults(t *testing.T) {
	e := newEngine(t)
	e.seedSubscriber("sub-1", notify.Preferences{}, notify.ChannelPush)
	e.dispatcher.SetAdvisor(advisor.NewTimed(&scriptedAdvisor{hang: true},
		10*time.Millisecond, zerolog.Nop()))

	req := notifytest.NewRequest("sub-1", notify.KindPriceDrop, notify.PriorityMedium)
	result, err := e.dispatcher.Send(context.Background(), req)

	// A stuck advisor never blocks or fails the dispatch.
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, notify.PriorityMedium, e.push.LastOptions().Priority)
}

func TestDispatcher_RequireAllChannels(t *testing.T) {
	e := newEngine(t)
	e.seedSubscriber("sub-1", notify.Preferences{},
		notify.ChannelPush, notify.ChannelSMS, notify.ChannelEmail)

	req := notifytest.NewRequest("sub-1", notify.KindCancellation, notify.PriorityCritical)
	req.Context.RequireAllChannels = true

	result, err := e.dispatcher.Send(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.ElementsMatch(t,
		[]notify.ChannelKind{notify.ChannelPush, notify.ChannelSMS, notify.ChannelEmail},
		result.ChannelsSucceeded)
	assert.Len(t, result.Receipts, 3)

	// One counted attempt per request, not per channel.
	count, _ := e.limiter.DailyCount(context.Background(), "sub-1")
	assert.EqualValues(t, 1, count)
}

func TestDispatcher_AssignsRequestID(t *testing.T) {
	e := newEngine(t)
	e.seedSubscriber("sub-1", notify.Preferences{}, notify.ChannelPush)

	req := notifytest.NewRequest("sub-1", notify.KindPriceDrop, notify.PriorityMedium)
	req.ID = ""
	result, err := e.dispatcher.Send(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, result.RequestID)
}

func TestDispatcher_SendBatch(t *testing.T) {
	e := newEngine(t)
	e.seedSubscriber("sub-1", notify.Preferences{}, notify.ChannelPush)
	e.seedSubscriber("sub-2", notify.Preferences{}, notify.ChannelEmail)
	e.dispatcher.SetBatchPolicy(4, 10, 0)

	requests := []notify.NotificationRequest{
		notifytest.NewRequest("sub-1", notify.KindFlashSale, notify.PriorityLow),
		notifytest.NewRequest("sub-2", notify.KindFlashSale, notify.PriorityLow),
		notifytest.NewRequest("ghost", notify.KindFlashSale, notify.PriorityLow),
	}

	batch := e.dispatcher.SendBatch(context.Background(), requests)

	assert.Equal(t, 2, batch.TotalSent)
	assert.Equal(t, 1, batch.TotalFailed)
	require.Contains(t, batch.Results, requests[0].ID)
	assert.True(t, batch.Results[requests[0].ID].Success)
}
