package health_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shiki0138/hotelbooking-sub004/internal/health"
	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
	"github.com/Shiki0138/hotelbooking-sub004/internal/notify/notifytest"
)

func newTestMonitor(adapters []*notifytest.MockAdapter, opts ...health.Option) (*health.Monitor, *notify.Emitter) {
	registry := notify.NewAdapterRegistry()
	for _, a := range adapters {
		registry.Register(a)
	}
	emitter := notify.NewEmitter(32, zerolog.Nop())
	return health.NewMonitor(registry, emitter, zerolog.Nop(), opts...), emitter
}

func TestMonitor_EmitsHealthChangedOnTransition(t *testing.T) {
	push := &notifytest.MockAdapter{NameVal: "push", KindVal: notify.ChannelPush}
	monitor, emitter := newTestMonitor([]*notifytest.MockAdapter{push}, health.WithThreshold(2))

	// First failure stays closed: no event.
	monitor.RecordFailure(notify.ChannelPush)
	select {
	case ev := <-emitter.Events():
		t.Fatalf("unexpected event before transition: %+v", ev)
	default:
	}

	// Second failure opens the circuit.
	monitor.RecordFailure(notify.ChannelPush)
	select {
	case ev := <-emitter.Events():
		assert.Equal(t, notify.EventChannelHealthChanged, ev.Type)
		assert.Equal(t, notify.ChannelPush, ev.Channel)
		assert.Equal(t, "closed -> open", ev.Detail)
	default:
		t.Fatal("expected channel.health.changed event")
	}

	assert.False(t, monitor.Allow(notify.ChannelPush))

	// Recovery emits the reverse transition.
	monitor.RecordSuccess(notify.ChannelPush)
	select {
	case ev := <-emitter.Events():
		assert.Equal(t, "open -> closed", ev.Detail)
	default:
		t.Fatal("expected recovery event")
	}
}

func TestMonitor_ProbeAll(t *testing.T) {
	push := &notifytest.MockAdapter{NameVal: "push", KindVal: notify.ChannelPush}
	sms := &notifytest.MockAdapter{NameVal: "sms", KindVal: notify.ChannelSMS, Unhealthy: true}
	monitor, _ := newTestMonitor([]*notifytest.MockAdapter{push, sms}, health.WithThreshold(1))

	monitor.ProbeAll()

	assert.True(t, monitor.Allow(notify.ChannelPush))
	assert.False(t, monitor.Allow(notify.ChannelSMS), "failed probe must trip the circuit")

	// The channel recovers: the next probe round closes it again.
	sms.Unhealthy = false
	monitor.ProbeAll()
	assert.True(t, monitor.Allow(notify.ChannelSMS))
}

func TestMonitor_Aggregate(t *testing.T) {
	push := &notifytest.MockAdapter{NameVal: "push", KindVal: notify.ChannelPush}
	sms := &notifytest.MockAdapter{NameVal: "sms", KindVal: notify.ChannelSMS}
	monitor, _ := newTestMonitor([]*notifytest.MockAdapter{push, sms}, health.WithThreshold(1))

	assert.Equal(t, health.StatusHealthy, monitor.Aggregate())

	monitor.RecordFailure(notify.ChannelSMS)
	assert.Equal(t, health.StatusDegraded, monitor.Aggregate())

	monitor.RecordFailure(notify.ChannelPush)
	assert.Equal(t, health.StatusUnhealthy, monitor.Aggregate())

	monitor.RecordSuccess(notify.ChannelPush)
	monitor.RecordSuccess(notify.ChannelSMS)
	assert.Equal(t, health.StatusHealthy, monitor.Aggregate())
}

func TestMonitor_AdvisorProbeFoldsIntoAggregate(t *testing.T) {
	push := &notifytest.MockAdapter{NameVal: "push", KindVal: notify.ChannelPush}
	advisorErr := errors.New("advisor unreachable")
	var failing bool
	monitor, _ := newTestMonitor([]*notifytest.MockAdapter{push},
		health.WithThreshold(1),
		health.WithProbeTimeout(time.Second),
		health.WithAdvisorProbe(func(ctx context.Context) error {
			if failing {
				return advisorErr
			}
			return nil
		}),
	)

	monitor.ProbeAll()
	assert.Equal(t, health.StatusHealthy, monitor.Aggregate())

	failing = true
	monitor.ProbeAll()
	assert.Equal(t, health.StatusDegraded, monitor.Aggregate())
}

func TestMonitor_SnapshotCoversRegisteredChannels(t *testing.T) {
	push := &notifytest.MockAdapter{NameVal: "push", KindVal: notify.ChannelPush}
	email := &notifytest.MockAdapter{NameVal: "email", KindVal: notify.ChannelEmail}
	monitor, _ := newTestMonitor([]*notifytest.MockAdapter{push, email})

	snapshot := monitor.Snapshot()
	require.Len(t, snapshot, 2)
	seen := map[notify.ChannelKind]health.ChannelHealth{}
	for _, ch := range snapshot {
		seen[ch.Channel] = ch
	}
	assert.Equal(t, health.StateClosed, seen[notify.ChannelPush].State)
	assert.Equal(t, health.StateClosed, seen[notify.ChannelEmail].State)
}

func TestMonitor_BreakerCreatedLazily(t *testing.T) {
	monitor, _ := newTestMonitor(nil, health.WithThreshold(1))

	// Unregistered channel still gets a circuit on first use.
	assert.True(t, monitor.Allow(notify.ChannelInApp))
	monitor.RecordFailure(notify.ChannelInApp)
	assert.False(t, monitor.Allow(notify.ChannelInApp))
}
