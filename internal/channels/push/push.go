// Package push is the reference mobile-push channel adapter.
package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

const ProviderName = "push_gateway"

// Note is the channel-agnostic payload mapped onto the push provider's
// shape. TTL carries the expiry for time-sensitive alerts.
type Note struct {
	Title string
	Body  string
	Data  map[string]string
	TTL   time.Duration
}

// Client is the upstream push provider. Code follows HTTP semantics: 404/410
// mean the device token is gone, 429/5xx mean try again later.
type Client interface {
	Push(ctx context.Context, deviceToken string, note Note) (messageID string, code int, err error)
	Ping(ctx context.Context) error
}

// Adapter implements notify.Adapter for the push channel.
type Adapter struct {
	client Client
	log    zerolog.Logger
}

func NewAdapter(client Client, log zerolog.Logger) *Adapter {
	return &Adapter{
		client: client,
		log:    log.With().Str("component", "push-adapter").Logger(),
	}
}

func (a *Adapter) Name() string             { return ProviderName }
func (a *Adapter) Kind() notify.ChannelKind { return notify.ChannelPush }

func (a *Adapter) Send(ctx context.Context, destination string, payload notify.Payload, opts notify.SendOptions) (notify.Receipt, error) {
	if destination == "" {
		return notify.Receipt{}, notify.Permanent("bad_destination", errors.New("empty device token"))
	}

	note := Note{
		Title: payload.Title,
		Body:  payload.Body,
		Data:  payload.Attributes,
		TTL:   opts.Expiry,
	}

	messageID, code, err := a.client.Push(ctx, destination, note)
	if err != nil {
		return notify.Receipt{}, a.classify(code, err)
	}

	a.log.Debug().Str("request", opts.RequestID).Str("message_id", messageID).Msg("push delivered")
	return notify.Receipt{
		Channel:           notify.ChannelPush,
		ProviderMessageID: messageID,
		SentAt:            time.Now(),
	}, nil
}

// classify maps provider responses onto the transient/permanent contract.
func (a *Adapter) classify(code int, err error) error {
	switch {
	case code == 404 || code == 410:
		// Token no longer registered; the subscription is dead.
		return notify.Permanent(fmt.Sprintf("%d", code), err)
	case code == 400:
		return notify.Permanent("400", err)
	case code == 429 || code >= 500:
		return notify.Transient(fmt.Sprintf("%d", code), err)
	default:
		// Timeouts and transport errors arrive with no code.
		return notify.Transient("", err)
	}
}

func (a *Adapter) Probe(ctx context.Context) notify.HealthStatus {
	status := notify.HealthStatus{CheckedAt: time.Now()}
	if err := a.client.Ping(ctx); err != nil {
		status.Detail = err.Error()
		return status
	}
	status.Healthy = true
	return status
}
