// Package idempotency deduplicates dispatches by request id inside a TTL
// window. A duplicate short-circuits to the cached result instead of
// producing a second set of provider-side sends.
package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

// Checker is the dedup contract consumed by the dispatcher.
type Checker interface {
	// Check returns the cached result when the request id was already
	// dispatched inside the window.
	Check(ctx context.Context, requestID string) (*notify.DispatchResult, bool, error)
	// Record caches the terminal result for replay until the window closes.
	Record(ctx context.Context, requestID string, result *notify.DispatchResult, ttl time.Duration) error
}

type memoryEntry struct {
	result    *notify.DispatchResult
	expiresAt time.Time
}

// Memory is the in-process Checker. Expired entries are reaped lazily on
// access and wholesale once the map grows past a bound.
type Memory struct {
	mu          sync.Mutex
	entries     map[string]memoryEntry
	currentTime func() time.Time
}

const sweepThreshold = 4096

func NewMemory() *Memory {
	return &Memory{
		entries:     map[string]memoryEntry{},
		currentTime: time.Now,
	}
}

// SetTimeProvider overrides the clock, mainly for tests.
func (m *Memory) SetTimeProvider(now func() time.Time) { m.currentTime = now }

func (m *Memory) Check(ctx context.Context, requestID string) (*notify.DispatchResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[requestID]
	if !ok {
		return nil, false, nil
	}
	if m.currentTime().After(entry.expiresAt) {
		delete(m.entries, requestID)
		return nil, false, nil
	}
	return entry.result, true, nil
}

func (m *Memory) Record(ctx context.Context, requestID string, result *notify.DispatchResult, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) >= sweepThreshold {
		m.sweepLocked()
	}
	m.entries[requestID] = memoryEntry{
		result:    result,
		expiresAt: m.currentTime().Add(ttl),
	}
	return nil
}

func (m *Memory) sweepLocked() {
	now := m.currentTime()
	for id, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, id)
		}
	}
}
