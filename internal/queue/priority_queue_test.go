package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
	"github.com/Shiki0138/hotelbooking-sub004/internal/notify/notifytest"
	"github.com/Shiki0138/hotelbooking-sub004/internal/queue"
)

func reqWithPriority(id string, priority notify.Priority) notify.NotificationRequest {
	req := notifytest.NewRequest("sub-1", notify.KindPriceDrop, priority)
	req.ID = id
	return req
}

func TestPriorityQueue_StrictTierOrder(t *testing.T) {
	q := queue.NewPriorityQueue(10)

	require.NoError(t, q.Enqueue(reqWithPriority("low-1", notify.PriorityLow)))
	require.NoError(t, q.Enqueue(reqWithPriority("med-1", notify.PriorityMedium)))
	require.NoError(t, q.Enqueue(reqWithPriority("crit-1", notify.PriorityCritical)))
	require.NoError(t, q.Enqueue(reqWithPriority("high-1", notify.PriorityHigh)))
	require.NoError(t, q.Enqueue(reqWithPriority("crit-2", notify.PriorityCritical)))

	var drained []string
	for {
		batch := q.Drain(1)
		if len(batch) == 0 {
			break
		}
		drained = append(drained, batch[0].ID)
	}
	assert.Equal(t, []string{"crit-1", "crit-2", "high-1", "med-1", "low-1"}, drained)
}

func TestPriorityQueue_DrainTouchesOneTierPerCall(t *testing.T) {
	q := queue.NewPriorityQueue(10)

	require.NoError(t, q.Enqueue(reqWithPriority("crit-1", notify.PriorityCritical)))
	require.NoError(t, q.Enqueue(reqWithPriority("high-1", notify.PriorityHigh)))
	require.NoError(t, q.Enqueue(reqWithPriority("high-2", notify.PriorityHigh)))

	// A large batch still drains only the most urgent non-empty tier.
	batch := q.Drain(10)
	require.Len(t, batch, 1)
	assert.Equal(t, "crit-1", batch[0].ID)

	batch = q.Drain(10)
	require.Len(t, batch, 2)
	assert.Equal(t, "high-1", batch[0].ID)
	assert.Equal(t, "high-2", batch[1].ID)
}

func TestPriorityQueue_CapacityPerTier(t *testing.T) {
	q := queue.NewPriorityQueue(2)

	require.NoError(t, q.Enqueue(reqWithPriority("a", notify.PriorityLow)))
	require.NoError(t, q.Enqueue(reqWithPriority("b", notify.PriorityLow)))
	assert.ErrorIs(t, q.Enqueue(reqWithPriority("c", notify.PriorityLow)), queue.ErrQueueFull)

	// The cap is per tier; other tiers still accept.
	assert.NoError(t, q.Enqueue(reqWithPriority("d", notify.PriorityHigh)))
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 2, q.TierLen(notify.PriorityLow))
}

func TestPriorityQueue_InvalidPriorityLandsInMedium(t *testing.T) {
	q := queue.NewPriorityQueue(10)

	require.NoError(t, q.Enqueue(reqWithPriority("odd", "whenever")))
	assert.Equal(t, 1, q.TierLen(notify.PriorityMedium))
}

// countingSender records every request the worker hands it.
type countingSender struct {
	mu  sync.Mutex
	ids []string
}

func (s *countingSender) Send(ctx context.Context, req notify.NotificationRequest) (*notify.DispatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, req.ID)
	return &notify.DispatchResult{RequestID: req.ID, Success: true}, nil
}

func (s *countingSender) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

func TestWorker_DrainsQueue(t *testing.T) {
	q := queue.NewPriorityQueue(10)
	sender := &countingSender{}
	w := queue.NewWorker(q, sender, queue.WorkerConfig{
		DrainInterval: 5 * time.Millisecond,
		BatchSize:     4,
		Concurrency:   2,
	}, zerolog.Nop())

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(reqWithPriority(id, notify.PriorityMedium)))
	}

	w.Start()
	assert.Eventually(t, func() bool {
		return len(sender.seen()) == 3 && q.Len() == 0
	}, time.Second, 5*time.Millisecond)
	w.Stop()
}

func TestWorker_StopDrainsRemaining(t *testing.T) {
	q := queue.NewPriorityQueue(10)
	sender := &countingSender{}
	// A long interval so the final drain on Stop does the work.
	w := queue.NewWorker(q, sender, queue.WorkerConfig{
		DrainInterval: time.Hour,
		BatchSize:     8,
		Concurrency:   2,
	}, zerolog.Nop())

	w.Start()
	for _, id := range []string{"a", "b"} {
		require.NoError(t, q.Enqueue(reqWithPriority(id, notify.PriorityLow)))
	}
	w.Stop()

	assert.ElementsMatch(t, []string{"a", "b"}, sender.seen())
	assert.Equal(t, 0, q.Len())
}
