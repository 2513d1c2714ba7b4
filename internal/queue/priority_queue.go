// Package queue provides the four-tier priority dispatch queue, the worker
// pool that drains it, and an optional NSQ mirror for cross-process fan-out.
package queue

import (
	"errors"
	"sync"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

var ErrQueueFull = errors.New("dispatch queue full")

const defaultCapacityPerTier = 10_000

// PriorityQueue holds queued requests in four strictly ordered tiers.
// Urgency is absolute, not weighted: no high-tier item moves while a
// critical one waits.
type PriorityQueue struct {
	mu       sync.Mutex
	tiers    map[notify.Priority][]notify.NotificationRequest
	capacity int // per tier
}

func NewPriorityQueue(capacityPerTier int) *PriorityQueue {
	if capacityPerTier <= 0 {
		capacityPerTier = defaultCapacityPerTier
	}
	tiers := make(map[notify.Priority][]notify.NotificationRequest, len(notify.Tiers))
	for _, tier := range notify.Tiers {
		tiers[tier] = nil
	}
	return &PriorityQueue{tiers: tiers, capacity: capacityPerTier}
}

// Enqueue adds the request to its priority tier.
func (q *PriorityQueue) Enqueue(req notify.NotificationRequest) error {
	priority := req.Priority
	if !priority.Valid() {
		priority = notify.PriorityMedium
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tiers[priority]) >= q.capacity {
		return ErrQueueFull
	}
	q.tiers[priority] = append(q.tiers[priority], req)
	return nil
}

// Drain pulls up to batchSize items from the most urgent non-empty tier.
// A tier is only touched once every tier above it is empty.
func (q *PriorityQueue) Drain(batchSize int) []notify.NotificationRequest {
	if batchSize <= 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, tier := range notify.Tiers {
		pending := q.tiers[tier]
		if len(pending) == 0 {
			continue
		}
		n := batchSize
		if n > len(pending) {
			n = len(pending)
		}
		batch := make([]notify.NotificationRequest, n)
		copy(batch, pending[:n])
		q.tiers[tier] = pending[n:]
		return batch
	}
	return nil
}

// Len reports the total queued count across tiers.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for _, pending := range q.tiers {
		total += len(pending)
	}
	return total
}

// TierLen reports the queued count for one tier.
func (q *PriorityQueue) TierLen(tier notify.Priority) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tiers[tier])
}
