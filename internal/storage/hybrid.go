package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

const (
	archiveQueueSize    = 4096
	archiveWriteTimeout = 5 * time.Second
)

// Hybrid layers a fast capped primary history (Redis) over a durable archive
// (MySQL). Writes hit the primary synchronously; the archive is fed by a
// background worker so a slow database never sits on the dispatch path.
// Queries prefer the primary and fall back to the archive when the primary
// has aged the records out.
type Hybrid struct {
	primary notify.History
	archive notify.History
	log     zerolog.Logger

	pending chan notify.Record
	done    chan struct{}
}

func NewHybrid(primary, archive notify.History, log zerolog.Logger) *Hybrid {
	h := &Hybrid{
		primary: primary,
		archive: archive,
		log:     log.With().Str("component", "hybrid-history").Logger(),
		pending: make(chan notify.Record, archiveQueueSize),
		done:    make(chan struct{}),
	}
	go h.archiveLoop()
	return h
}

// SaveRecord writes the primary and queues the archive copy. A full archive
// queue drops the copy; the primary already holds the record.
func (h *Hybrid) SaveRecord(ctx context.Context, rec notify.Record) error {
	if err := h.primary.SaveRecord(ctx, rec); err != nil {
		return fmt.Errorf("primary save: %w", err)
	}

	select {
	case h.pending <- rec:
	default:
		h.log.Warn().Str("request", rec.RequestID).Msg("archive queue full, copy dropped")
	}
	return nil
}

func (h *Hybrid) archiveLoop() {
	for rec := range h.pending {
		ctx, cancel := context.WithTimeout(context.Background(), archiveWriteTimeout)
		if err := h.archive.SaveRecord(ctx, rec); err != nil {
			h.log.Error().Err(err).Str("request", rec.RequestID).Msg("archive save failed")
		}
		cancel()
	}
	close(h.done)
}

// Query reads the primary first. An empty or failed primary read falls
// through to the archive so old history stays reachable.
func (h *Hybrid) Query(ctx context.Context, subscriberID string, limit int64) ([]notify.Record, error) {
	records, err := h.primary.Query(ctx, subscriberID, limit)
	if err != nil {
		h.log.Warn().Err(err).Msg("primary query failed, trying archive")
		return h.archive.Query(ctx, subscriberID, limit)
	}
	if len(records) == 0 {
		return h.archive.Query(ctx, subscriberID, limit)
	}
	return records, nil
}

// Trim enforces retention on both layers. The archive's cap is typically far
// larger; its own Trim decides what excess means.
func (h *Hybrid) Trim(ctx context.Context) (int, error) {
	evicted, err := h.primary.Trim(ctx)
	if err != nil {
		return evicted, err
	}
	archived, archiveErr := h.archive.Trim(ctx)
	if archiveErr != nil {
		h.log.Warn().Err(archiveErr).Msg("archive trim failed")
	}
	return evicted + archived, nil
}

// Close flushes queued archive writes and stops the worker.
func (h *Hybrid) Close() {
	close(h.pending)
	<-h.done
}
