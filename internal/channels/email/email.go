// Package email is the email channel adapter, backed by Postmark's
// transactional API in production and a loopback mailer elsewhere.
package email

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

const AdapterName = "email_postmark"

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Mailer is the upstream mail API. Postmark-style error codes: 300 means a
// malformed address, 406 an inactive (hard-bounced) recipient; both are
// terminal for the destination.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, textBody string, tag string) (messageID string, errorCode int, err error)
	Ping(ctx context.Context) error
}

const (
	codeInvalidEmail      = 300
	codeInactiveRecipient = 406
)

// Adapter implements notify.Adapter for email.
type Adapter struct {
	mailer Mailer
	log    zerolog.Logger
}

func NewAdapter(mailer Mailer, log zerolog.Logger) *Adapter {
	return &Adapter{
		mailer: mailer,
		log:    log.With().Str("component", "email-adapter").Logger(),
	}
}

func (a *Adapter) Name() string             { return AdapterName }
func (a *Adapter) Kind() notify.ChannelKind { return notify.ChannelEmail }

func (a *Adapter) Send(ctx context.Context, destination string, payload notify.Payload, opts notify.SendOptions) (notify.Receipt, error) {
	if !emailRegex.MatchString(destination) {
		return notify.Receipt{}, notify.Permanent("bad_destination",
			fmt.Errorf("malformed email address %q", destination))
	}

	subject := payload.Title
	if subject == "" {
		subject = payload.Body
	}

	messageID, code, err := a.mailer.SendMail(ctx, destination, subject, payload.Body, string(opts.Priority))
	if err != nil || code > 0 {
		if err == nil {
			err = fmt.Errorf("mail api error %d", code)
		}
		switch code {
		case codeInvalidEmail, codeInactiveRecipient:
			return notify.Receipt{}, notify.Permanent(fmt.Sprintf("%d", code), err)
		default:
			return notify.Receipt{}, notify.Transient(fmt.Sprintf("%d", code), err)
		}
	}

	a.log.Debug().Str("request", opts.RequestID).Str("message_id", messageID).Msg("email delivered")
	return notify.Receipt{
		Channel:           notify.ChannelEmail,
		ProviderMessageID: messageID,
		SentAt:            time.Now(),
	}, nil
}

func (a *Adapter) Probe(ctx context.Context) notify.HealthStatus {
	status := notify.HealthStatus{CheckedAt: time.Now()}
	if err := a.mailer.Ping(ctx); err != nil {
		status.Detail = err.Error()
		return status
	}
	status.Healthy = true
	return status
}

// ErrMissingSender guards Postmark configuration.
var ErrMissingSender = errors.New("sender address required")
