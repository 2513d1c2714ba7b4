package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType names the observability events the engine emits.
type EventType string

const (
	EventDispatchAttempted    EventType = "dispatch.attempted"
	EventDispatchSucceeded    EventType = "dispatch.succeeded"
	EventDispatchFailed       EventType = "dispatch.failed"
	EventChannelHealthChanged EventType = "channel.health.changed"
)

// Event is one observability record delivered over the emitter's channel.
type Event struct {
	Type      EventType   `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Channel   ChannelKind `json:"channel,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Detail    string      `json:"detail,omitempty"`
}

// Emitter fans events out to a single buffered channel. Emission never
// blocks dispatch: when the buffer is full the event is dropped and counted.
type Emitter struct {
	ch      chan Event
	log     zerolog.Logger
	mu      sync.Mutex
	closed  bool
	dropped int64
}

func NewEmitter(buffer int, log zerolog.Logger) *Emitter {
	if buffer <= 0 {
		buffer = 256
	}
	return &Emitter{
		ch:  make(chan Event, buffer),
		log: log.With().Str("component", "events").Logger(),
	}
}

// Emit queues the event for consumers, dropping it if the buffer is full.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case e.ch <- ev:
	default:
		e.dropped++
		e.log.Warn().Str("type", string(ev.Type)).Int64("dropped_total", e.dropped).
			Msg("event buffer full, dropping event")
	}
}

// Events exposes the consumer side of the bus.
func (e *Emitter) Events() <-chan Event { return e.ch }

// Dropped returns how many events were discarded due to a full buffer.
func (e *Emitter) Dropped() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Close stops the emitter. Emit becomes a no-op; the channel is closed so
// range-based consumers terminate.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.ch)
}
