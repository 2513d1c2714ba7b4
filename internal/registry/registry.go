// Package registry fronts the persistence collaborator for subscription
// lookups. Reads pass straight through (the store is read-mostly); writes
// that flip a subscription's status are serialized per subscription.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

type Registry struct {
	store notify.Store
	log   zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per subscription id
}

func New(store notify.Store, log zerolog.Logger) *Registry {
	return &Registry{
		store: store,
		log:   log.With().Str("component", "registry").Logger(),
		locks: map[string]*sync.Mutex{},
	}
}

func (r *Registry) Subscriber(ctx context.Context, id string) (notify.Subscriber, error) {
	return r.store.GetSubscriber(ctx, id)
}

// Active returns the subscriber's active subscriptions. Invalid ones are
// excluded from selection but stay in the store for audit.
func (r *Registry) Active(ctx context.Context, subscriberID string) ([]notify.Subscription, error) {
	subs, err := r.store.GetSubscriptions(ctx, subscriberID)
	if err != nil {
		return nil, err
	}
	active := subs[:0]
	for _, sub := range subs {
		if sub.Active() {
			active = append(active, sub)
		}
	}
	return active, nil
}

// ByChannel returns the subscriber's active subscriptions keyed by channel.
// With several destinations on one channel the most recently created wins.
func (r *Registry) ByChannel(ctx context.Context, subscriberID string) (map[notify.ChannelKind]notify.Subscription, error) {
	active, err := r.Active(ctx, subscriberID)
	if err != nil {
		return nil, err
	}
	out := make(map[notify.ChannelKind]notify.Subscription, len(active))
	for _, sub := range active {
		if existing, ok := out[sub.Channel]; !ok || sub.CreatedAt.After(existing.CreatedAt) {
			out[sub.Channel] = sub
		}
	}
	return out, nil
}

// Invalidate transitions one subscription to invalid, serialized per
// subscription id so concurrent permanent failures cannot interleave.
func (r *Registry) Invalidate(ctx context.Context, subscriptionID string) error {
	lock := r.lockFor(subscriptionID)
	lock.Lock()
	defer lock.Unlock()
	if err := r.store.InvalidateSubscription(ctx, subscriptionID); err != nil {
		return err
	}
	r.log.Info().Str("subscription", subscriptionID).Msg("subscription invalidated")
	return nil
}

// MarkUsed stamps last-used after a successful delivery. Failures here are
// logged only; they must not fail the dispatch.
func (r *Registry) MarkUsed(ctx context.Context, subscriptionID string, at time.Time) {
	if err := r.store.TouchSubscription(ctx, subscriptionID, at); err != nil {
		r.log.Warn().Str("subscription", subscriptionID).Err(err).Msg("touch failed")
	}
}

func (r *Registry) lockFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}
	return lock
}
