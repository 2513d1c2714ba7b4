// Package health tracks per-channel circuit breakers and the aggregate
// system status exposed to external health-check consumers.
package health

import (
	"sync"
	"time"
)

// State is the circuit position for one channel.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

const (
	defaultFailureThreshold = 5
	defaultCoolDown         = 30 * time.Second
)

// Breaker is a per-channel circuit breaker. Transitions are serialized by
// the mutex so concurrent workers cannot race a state flip.
type Breaker struct {
	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	failureThreshold    int
	coolDown            time.Duration
	openedAt            time.Time
	lastProbeAt         time.Time
	currentTime         func() time.Time
}

func NewBreaker(failureThreshold int, coolDown time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	if coolDown <= 0 {
		coolDown = defaultCoolDown
	}
	return &Breaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		coolDown:         coolDown,
		currentTime:      time.Now,
	}
}

// SetTimeProvider overrides the clock, mainly for tests.
func (b *Breaker) SetTimeProvider(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.currentTime = now
}

// Allow reports whether a call may pass. While open the channel is skipped
// outright; once the cool-down elapses the breaker moves to half-open and
// lets a single trial through.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.currentTime().Sub(b.openedAt) >= b.coolDown {
			b.state = StateHalfOpen
			return true
		}
		return false
	}
	return true
}

// RecordSuccess closes the circuit and clears the failure streak.
// Returns the resulting state.
func (b *Breaker) RecordSuccess() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.state = StateClosed
	b.lastProbeAt = b.currentTime()
	return b.state
}

// RecordFailure counts a failure. A half-open trial failure reopens the
// circuit immediately; a closed circuit opens once the streak reaches the
// threshold. Returns the resulting state.
func (b *Breaker) RecordFailure() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures++
	b.lastProbeAt = b.currentTime()
	switch b.state {
	case StateHalfOpen:
		b.open()
	case StateClosed:
		if b.consecutiveFailures >= b.failureThreshold {
			b.open()
		}
	case StateOpen:
		b.openedAt = b.currentTime()
	}
	return b.state
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.currentTime()
}

// State returns the current circuit position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive-failure streak.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

// LastProbeAt returns when the breaker last recorded an outcome.
func (b *Breaker) LastProbeAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastProbeAt
}
