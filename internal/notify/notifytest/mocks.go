// Package notifytest provides hand-rolled test doubles for the engine's
// collaborator interfaces.
package notifytest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

// ---- Adapter mock ----

// MockAdapter records every Send and answers with a scripted error sequence.
type MockAdapter struct {
	NameVal string
	KindVal notify.ChannelKind

	// Errs is consumed one entry per Send; nil entries mean success. When
	// the script runs out, Err is the standing answer.
	Errs      []error
	Err       error
	Unhealthy bool

	mu           sync.Mutex
	sendCalls    int
	destinations []string
	payloads     []notify.Payload
	opts         []notify.SendOptions
}

func (m *MockAdapter) Name() string             { return m.NameVal }
func (m *MockAdapter) Kind() notify.ChannelKind { return m.KindVal }

func (m *MockAdapter) Send(ctx context.Context, destination string, payload notify.Payload, opts notify.SendOptions) (notify.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := m.sendCalls
	m.sendCalls++
	m.destinations = append(m.destinations, destination)
	m.payloads = append(m.payloads, payload)
	m.opts = append(m.opts, opts)

	err := m.Err
	if call < len(m.Errs) {
		err = m.Errs[call]
	}
	if err != nil {
		return notify.Receipt{}, err
	}
	return notify.Receipt{
		Channel:           m.KindVal,
		ProviderMessageID: fmt.Sprintf("%s-msg-%d", m.KindVal, call),
		SentAt:            time.Now(),
	}, nil
}

func (m *MockAdapter) Probe(ctx context.Context) notify.HealthStatus {
	return notify.HealthStatus{Healthy: !m.Unhealthy, CheckedAt: time.Now()}
}

func (m *MockAdapter) SendCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendCalls
}

func (m *MockAdapter) Destinations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.destinations...)
}

func (m *MockAdapter) LastOptions() notify.SendOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.opts) == 0 {
		return notify.SendOptions{}
	}
	return m.opts[len(m.opts)-1]
}

// ---- Store mock ----

// MockStore is an in-memory notify.Store with error injection.
type MockStore struct {
	mu            sync.Mutex
	Subscribers   map[string]notify.Subscriber
	Subscriptions map[string][]notify.Subscription
	Counters      map[string]int64
	Err           error
}

func NewMockStore() *MockStore {
	return &MockStore{
		Subscribers:   map[string]notify.Subscriber{},
		Subscriptions: map[string][]notify.Subscription{},
		Counters:      map[string]int64{},
	}
}

func (s *MockStore) GetSubscriber(ctx context.Context, id string) (notify.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return notify.Subscriber{}, s.Err
	}
	sub, ok := s.Subscribers[id]
	if !ok {
		return notify.Subscriber{}, notify.ErrSubscriberNotFound
	}
	return sub, nil
}

func (s *MockStore) GetSubscriptions(ctx context.Context, subscriberID string) ([]notify.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]notify.Subscription(nil), s.Subscriptions[subscriberID]...), nil
}

func (s *MockStore) SaveSubscription(ctx context.Context, sub notify.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Subscriptions[sub.SubscriberID] = append(s.Subscriptions[sub.SubscriberID], sub)
	return nil
}

func (s *MockStore) InvalidateSubscription(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for subscriberID, subs := range s.Subscriptions {
		for i, sub := range subs {
			if sub.ID == id {
				subs[i].Status = notify.SubscriptionInvalid
				s.Subscriptions[subscriberID] = subs
				return nil
			}
		}
	}
	return nil
}

func (s *MockStore) TouchSubscription(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for subscriberID, subs := range s.Subscriptions {
		for i, sub := range subs {
			if sub.ID == id {
				subs[i].LastUsedAt = at
				s.Subscriptions[subscriberID] = subs
				return nil
			}
		}
	}
	return nil
}

func (s *MockStore) IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	s.Counters[key]++
	return s.Counters[key], nil
}

func (s *MockStore) CounterValue(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	return s.Counters[key], nil
}

// ---- History mock ----

type MockHistory struct {
	mu      sync.Mutex
	Records []notify.Record
	Trims   int
	Err     error
}

func (h *MockHistory) SaveRecord(ctx context.Context, rec notify.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return h.Err
	}
	h.Records = append(h.Records, rec)
	return nil
}

func (h *MockHistory) Query(ctx context.Context, subscriberID string, limit int64) ([]notify.Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return nil, h.Err
	}
	var out []notify.Record
	for _, rec := range h.Records {
		if rec.SubscriberID == subscriberID {
			out = append(out, rec)
		}
		if int64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (h *MockHistory) Trim(ctx context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return 0, h.Err
	}
	h.Trims++
	return 0, nil
}

func (h *MockHistory) Saved() []notify.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]notify.Record(nil), h.Records...)
}

// ---- Helpers ----

// NewRequest builds a minimal deliverable request.
func NewRequest(subscriberID string, kind notify.EventKind, priority notify.Priority) notify.NotificationRequest {
	return notify.NotificationRequest{
		ID:           fmt.Sprintf("req-%s-%s", subscriberID, kind),
		SubscriberID: subscriberID,
		Kind:         kind,
		Priority:     priority,
		Payload:      notify.Payload{Title: "title", Body: "body"},
		CreatedAt:    time.Now(),
	}
}

// NewSubscription builds an active subscription.
func NewSubscription(id, subscriberID string, channel notify.ChannelKind) notify.Subscription {
	return notify.Subscription{
		ID:           id,
		SubscriberID: subscriberID,
		Channel:      channel,
		Destination:  "dest-" + id,
		Status:       notify.SubscriptionActive,
		CreatedAt:    time.Now(),
	}
}
