package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

const (
	defaultDrainInterval = 250 * time.Millisecond
	defaultDrainBatch    = 32
	defaultWorkers       = 8
)

// Sender is the dispatch entry point the worker drives; satisfied by
// *dispatch.Dispatcher.
type Sender interface {
	Send(ctx context.Context, req notify.NotificationRequest) (*notify.DispatchResult, error)
}

// Worker drains the priority queue on a periodic tick and dispatches each
// batch with bounded concurrency. Failed items are not re-queued here;
// request-level retry policy owns that decision.
type Worker struct {
	queue    *PriorityQueue
	sender   Sender
	log      zerolog.Logger
	interval time.Duration
	batch    int
	sem      *semaphore.Weighted

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// WorkerConfig bounds the drain loop.
type WorkerConfig struct {
	DrainInterval time.Duration
	BatchSize     int
	Concurrency   int
}

func NewWorker(q *PriorityQueue, sender Sender, cfg WorkerConfig, log zerolog.Logger) *Worker {
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = defaultDrainInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultDrainBatch
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultWorkers
	}
	return &Worker{
		queue:    q,
		sender:   sender,
		log:      log.With().Str("component", "queue-worker").Logger(),
		interval: cfg.DrainInterval,
		batch:    cfg.BatchSize,
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the drain loop.
func (w *Worker) Start() {
	go w.run()
}

func (w *Worker) run() {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			// Final drain so an orderly shutdown does not strand accepted
			// requests in memory.
			w.drainOnce(context.Background())
			return
		case <-ticker.C:
			w.drainOnce(context.Background())
		}
	}
}

func (w *Worker) drainOnce(ctx context.Context) {
	for {
		batch := w.queue.Drain(w.batch)
		if len(batch) == 0 {
			return
		}
		var wg sync.WaitGroup
		for _, req := range batch {
			if err := w.sem.Acquire(ctx, 1); err != nil {
				return
			}
			wg.Add(1)
			go func(req notify.NotificationRequest) {
				defer wg.Done()
				defer w.sem.Release(1)
				if _, err := w.sender.Send(ctx, req); err != nil {
					w.log.Warn().Str("request", req.ID).
						Str("priority", string(req.Priority)).Err(err).
						Msg("queued dispatch failed")
				}
			}(req)
		}
		wg.Wait()
	}
}

// Stop halts the loop after one final drain and waits for it to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}
