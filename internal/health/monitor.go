package health

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

// AggregateStatus summarises every monitored subsystem.
type AggregateStatus string

const (
	StatusHealthy   AggregateStatus = "healthy"
	StatusDegraded  AggregateStatus = "degraded"
	StatusUnhealthy AggregateStatus = "unhealthy"
)

// ChannelHealth is the externally visible state of one channel circuit.
type ChannelHealth struct {
	Channel             notify.ChannelKind `json:"channel"`
	State               State              `json:"state"`
	ConsecutiveFailures int                `json:"consecutive_failures"`
	LastProbeAt         time.Time          `json:"last_probe_at,omitempty"`
}

const (
	defaultProbeSchedule = "@every 30s"
	defaultProbeTimeout  = 5 * time.Second
)

// Monitor owns one breaker per registered channel, probes every adapter and
// the advisor on a cron schedule, and emits channel.health.changed events on
// state transitions.
type Monitor struct {
	registry *notify.AdapterRegistry
	emitter  *notify.Emitter
	log      zerolog.Logger

	mu       sync.RWMutex
	breakers map[notify.ChannelKind]*Breaker

	failureThreshold int
	coolDown         time.Duration
	probeTimeout     time.Duration
	probeSchedule    string

	advisorProbe   func(context.Context) error
	advisorHealthy atomic.Bool

	cron *cron.Cron
}

// Option tunes a Monitor.
type Option func(*Monitor)

func WithThreshold(k int) Option              { return func(m *Monitor) { m.failureThreshold = k } }
func WithCoolDown(d time.Duration) Option     { return func(m *Monitor) { m.coolDown = d } }
func WithProbeSchedule(spec string) Option    { return func(m *Monitor) { m.probeSchedule = spec } }
func WithProbeTimeout(d time.Duration) Option { return func(m *Monitor) { m.probeTimeout = d } }

// WithAdvisorProbe registers the optional advisor liveness check.
func WithAdvisorProbe(probe func(context.Context) error) Option {
	return func(m *Monitor) { m.advisorProbe = probe }
}

func NewMonitor(registry *notify.AdapterRegistry, emitter *notify.Emitter, log zerolog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		registry:         registry,
		emitter:          emitter,
		log:              log.With().Str("component", "health").Logger(),
		breakers:         map[notify.ChannelKind]*Breaker{},
		failureThreshold: defaultFailureThreshold,
		coolDown:         defaultCoolDown,
		probeTimeout:     defaultProbeTimeout,
		probeSchedule:    defaultProbeSchedule,
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, kind := range registry.Kinds() {
		m.breakers[kind] = NewBreaker(m.failureThreshold, m.coolDown)
	}
	m.advisorHealthy.Store(true)
	return m
}

// Breaker returns the circuit for a channel, creating one on first use so an
// adapter registered after construction still gets guarded.
func (m *Monitor) Breaker(kind notify.ChannelKind) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[kind]
	m.mu.RUnlock()
	if ok {
		return b
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.breakers[kind]; !ok {
		b = NewBreaker(m.failureThreshold, m.coolDown)
		m.breakers[kind] = b
	}
	return b
}

// Allow reports whether the channel's circuit lets a call pass.
func (m *Monitor) Allow(kind notify.ChannelKind) bool {
	return m.Breaker(kind).Allow()
}

// RecordSuccess feeds a delivery success into the channel's breaker.
func (m *Monitor) RecordSuccess(kind notify.ChannelKind) {
	m.transition(kind, m.Breaker(kind).RecordSuccess)
}

// RecordFailure feeds a delivery failure into the channel's breaker.
func (m *Monitor) RecordFailure(kind notify.ChannelKind) {
	m.transition(kind, m.Breaker(kind).RecordFailure)
}

func (m *Monitor) transition(kind notify.ChannelKind, record func() State) {
	before := m.Breaker(kind).State()
	after := record()
	if before == after {
		return
	}
	m.log.Info().Str("channel", string(kind)).
		Str("from", string(before)).Str("to", string(after)).
		Msg("circuit state changed")
	if m.emitter != nil {
		m.emitter.Emit(notify.Event{
			Type:    notify.EventChannelHealthChanged,
			Channel: kind,
			Detail:  fmt.Sprintf("%s -> %s", before, after),
		})
	}
}

// Start schedules periodic probes. Safe to skip in tests; every method works
// without the cron running.
func (m *Monitor) Start() error {
	if m.cron != nil {
		return nil
	}
	m.cron = cron.New()
	if _, err := m.cron.AddFunc(m.probeSchedule, m.ProbeAll); err != nil {
		m.cron = nil
		return fmt.Errorf("schedule probes: %w", err)
	}
	m.cron.Start()
	m.log.Info().Str("schedule", m.probeSchedule).Msg("health probes started")
	return nil
}

// Stop halts the probe schedule and waits for an in-flight probe run.
func (m *Monitor) Stop() {
	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
	m.cron = nil
}

// ProbeAll probes every registered adapter plus the advisor once.
func (m *Monitor) ProbeAll() {
	ctx, cancel := context.WithTimeout(context.Background(), m.probeTimeout)
	defer cancel()

	for _, adapter := range m.registry.All() {
		status := adapter.Probe(ctx)
		if status.Healthy {
			m.RecordSuccess(adapter.Kind())
		} else {
			m.log.Warn().Str("channel", string(adapter.Kind())).
				Str("detail", status.Detail).Msg("probe failed")
			m.RecordFailure(adapter.Kind())
		}
	}

	if m.advisorProbe != nil {
		err := m.advisorProbe(ctx)
		m.advisorHealthy.Store(err == nil)
		if err != nil {
			m.log.Warn().Err(err).Msg("advisor probe failed")
		}
	}
}

// Snapshot reports the current state of every channel circuit.
func (m *Monitor) Snapshot() []ChannelHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ChannelHealth, 0, len(m.breakers))
	for kind, b := range m.breakers {
		out = append(out, ChannelHealth{
			Channel:             kind,
			State:               b.State(),
			ConsecutiveFailures: b.Failures(),
			LastProbeAt:         b.LastProbeAt(),
		})
	}
	return out
}

// Aggregate folds channel circuits and the advisor into one status:
// healthy when everything is, degraded when at least half are, otherwise
// unhealthy.
func (m *Monitor) Aggregate() AggregateStatus {
	snapshot := m.Snapshot()
	total := len(snapshot)
	healthy := 0
	for _, ch := range snapshot {
		if ch.State == StateClosed {
			healthy++
		}
	}
	if m.advisorProbe != nil {
		total++
		if m.advisorHealthy.Load() {
			healthy++
		}
	}
	switch {
	case total == 0 || healthy == total:
		return StatusHealthy
	case healthy*2 >= total:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}
