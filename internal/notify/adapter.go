package notify

import (
	"context"
	"time"
)

// SendOptions carries per-send tuning an adapter may honor.
type SendOptions struct {
	RequestID string
	Priority  Priority
	// Expiry bounds how long the provider should keep trying to deliver a
	// time-sensitive message (cancellation alerts go stale fast).
	Expiry time.Duration
}

// HealthStatus is the result of probing one adapter.
type HealthStatus struct {
	Healthy   bool      `json:"healthy"`
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Adapter is the uniform send/health contract every channel implements.
// Send must classify failures as transient or permanent via ChannelError;
// that classification is the load-bearing part of this contract.
type Adapter interface {
	Name() string
	Kind() ChannelKind
	Send(ctx context.Context, destination string, payload Payload, opts SendOptions) (Receipt, error)
	Probe(ctx context.Context) HealthStatus
}

// AdapterRegistry is a lookup table built once at startup. Adding a channel
// means registering another Adapter, not editing a switch.
type AdapterRegistry struct {
	byKind map[ChannelKind]Adapter
}

func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{byKind: map[ChannelKind]Adapter{}}
}

// Register stores the adapter under its channel kind. The last registration
// for a kind wins.
func (r *AdapterRegistry) Register(a Adapter) {
	r.byKind[a.Kind()] = a
}

func (r *AdapterRegistry) Get(kind ChannelKind) (Adapter, bool) {
	a, ok := r.byKind[kind]
	return a, ok
}

// Kinds returns the registered channel kinds in no particular order.
func (r *AdapterRegistry) Kinds() []ChannelKind {
	kinds := make([]ChannelKind, 0, len(r.byKind))
	for k := range r.byKind {
		kinds = append(kinds, k)
	}
	return kinds
}

// All returns every registered adapter.
func (r *AdapterRegistry) All() []Adapter {
	adapters := make([]Adapter, 0, len(r.byKind))
	for _, a := range r.byKind {
		adapters = append(adapters, a)
	}
	return adapters
}
