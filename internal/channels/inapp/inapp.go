// Package inapp is the bridge channel adapter: delivery lands in the
// user's in-app inbox instead of leaving the platform.
package inapp

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Shiki0138/hotelbooking-sub004/internal/inbox"
	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

const AdapterName = "inapp_inbox"

// Adapter implements notify.Adapter on top of an inbox store. The
// destination is the inbox user id.
type Adapter struct {
	store inbox.Store
	log   zerolog.Logger
}

func NewAdapter(store inbox.Store, log zerolog.Logger) *Adapter {
	return &Adapter{
		store: store,
		log:   log.With().Str("component", "inapp-adapter").Logger(),
	}
}

func (a *Adapter) Name() string             { return AdapterName }
func (a *Adapter) Kind() notify.ChannelKind { return notify.ChannelInApp }

func (a *Adapter) Send(ctx context.Context, destination string, payload notify.Payload, opts notify.SendOptions) (notify.Receipt, error) {
	if destination == "" {
		return notify.Receipt{}, notify.Permanent("bad_destination", errors.New("empty inbox user id"))
	}

	msg := inbox.Message{
		ID:        uuid.NewString(),
		UserID:    destination,
		Title:     payload.Title,
		Body:      payload.Body,
		Data:      payload.Attributes,
		CreatedAt: time.Now().Unix(),
	}
	if err := a.store.Append(ctx, msg); err != nil {
		// The inbox store is infrastructure; its failures are always
		// retryable, never a dead destination.
		return notify.Receipt{}, notify.Transient("inbox_store", err)
	}

	a.log.Debug().Str("request", opts.RequestID).Str("user", destination).Msg("inbox delivery")
	return notify.Receipt{
		Channel:           notify.ChannelInApp,
		ProviderMessageID: msg.ID,
		SentAt:            time.Now(),
	}, nil
}

func (a *Adapter) Probe(ctx context.Context) notify.HealthStatus {
	// Append/List round-trips are covered by real traffic; the probe only
	// verifies the store responds.
	status := notify.HealthStatus{CheckedAt: time.Now()}
	if _, err := a.store.List(ctx, "health-probe", 1); err != nil {
		status.Detail = err.Error()
		return status
	}
	status.Healthy = true
	return status
}
