// Package storage provides the persistence implementations behind the
// engine's abstract Store and History contracts: an in-memory reference
// store, a Redis-backed store, and a MySQL history archive.
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

// windowedCounter is one rolling counter entry. It resets lazily when read
// or bumped after its window has rolled over.
type windowedCounter struct {
	count       int64
	windowStart time.Time
	window      time.Duration
}

// Memory is the in-memory Store and History implementation. Reads are
// lock-free in spirit (read-mostly RWMutex); subscription writes serialize.
type Memory struct {
	mu            sync.RWMutex
	subscribers   map[string]notify.Subscriber
	subscriptions map[string]notify.Subscription // by subscription id
	counters      map[string]*windowedCounter

	histMu  sync.Mutex
	records []notify.Record
	maxKeep int

	currentTime func() time.Time
}

const defaultMaxKeepRecords = 10_000

func NewMemory() *Memory {
	return &Memory{
		subscribers:   map[string]notify.Subscriber{},
		subscriptions: map[string]notify.Subscription{},
		counters:      map[string]*windowedCounter{},
		maxKeep:       defaultMaxKeepRecords,
		currentTime:   time.Now,
	}
}

// SetTimeProvider overrides the clock, mainly for tests.
func (m *Memory) SetTimeProvider(now func() time.Time) { m.currentTime = now }

// SetMaxKeep caps the history retention.
func (m *Memory) SetMaxKeep(n int) { m.maxKeep = n }

// PutSubscriber registers or replaces a subscriber profile.
func (m *Memory) PutSubscriber(sub notify.Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[sub.ID] = sub
}

func (m *Memory) GetSubscriber(ctx context.Context, id string) (notify.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subscribers[id]
	if !ok {
		return notify.Subscriber{}, notify.ErrSubscriberNotFound
	}
	return sub, nil
}

func (m *Memory) GetSubscriptions(ctx context.Context, subscriberID string) ([]notify.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []notify.Subscription
	for _, s := range m.subscriptions {
		if s.SubscriberID == subscriberID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SaveSubscription upserts, enforcing destination uniqueness per
// (subscriber, channel): an existing active subscription with the same
// destination is reused rather than duplicated.
func (m *Memory) SaveSubscription(ctx context.Context, sub notify.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.subscriptions {
		if existing.SubscriberID == sub.SubscriberID &&
			existing.Channel == sub.Channel &&
			existing.Destination == sub.Destination {
			sub.ID = id
			sub.CreatedAt = existing.CreatedAt
			break
		}
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = m.currentTime()
	}
	m.subscriptions[sub.ID] = sub
	return nil
}

func (m *Memory) InvalidateSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscriptions[id]
	if !ok {
		return notify.ErrNoSubscription
	}
	sub.Status = notify.SubscriptionInvalid
	m.subscriptions[id] = sub
	return nil
}

func (m *Memory) TouchSubscription(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscriptions[id]
	if !ok {
		return notify.ErrNoSubscription
	}
	sub.LastUsedAt = at
	m.subscriptions[id] = sub
	return nil
}

func (m *Memory) IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := m.currentTime()
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[key]
	if !ok || (c.window > 0 && now.Sub(c.windowStart) >= c.window) {
		c = &windowedCounter{windowStart: now, window: window}
		m.counters[key] = c
	}
	c.count++
	return c.count, nil
}

func (m *Memory) CounterValue(ctx context.Context, key string) (int64, error) {
	now := m.currentTime()
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.counters[key]
	if !ok {
		return 0, nil
	}
	if c.window > 0 && now.Sub(c.windowStart) >= c.window {
		return 0, nil
	}
	return c.count, nil
}

// SaveRecord appends to the in-memory history.
func (m *Memory) SaveRecord(ctx context.Context, rec notify.Record) error {
	m.histMu.Lock()
	defer m.histMu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *Memory) Query(ctx context.Context, subscriberID string, limit int64) ([]notify.Record, error) {
	m.histMu.Lock()
	defer m.histMu.Unlock()
	var out []notify.Record
	for i := len(m.records) - 1; i >= 0 && (limit <= 0 || int64(len(out)) < limit); i-- {
		if subscriberID == "" || m.records[i].SubscriberID == subscriberID {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

func (m *Memory) Trim(ctx context.Context) (int, error) {
	m.histMu.Lock()
	defer m.histMu.Unlock()
	if m.maxKeep <= 0 || len(m.records) <= m.maxKeep {
		return 0, nil
	}
	excess := len(m.records) - m.maxKeep
	m.records = append([]notify.Record(nil), m.records[excess:]...)
	return excess, nil
}
