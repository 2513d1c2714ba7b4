package email

import (
	"context"
	"fmt"

	"github.com/mrz1836/postmark"
)

// PostmarkMailer sends through Postmark's transactional API.
type PostmarkMailer struct {
	client *postmark.Client
	from   string
}

func NewPostmarkMailer(serverToken, accountToken, from string) (*PostmarkMailer, error) {
	if from == "" {
		return nil, ErrMissingSender
	}
	if serverToken == "" || accountToken == "" {
		return nil, fmt.Errorf("postmark tokens required")
	}
	return &PostmarkMailer{
		client: postmark.NewClient(serverToken, accountToken),
		from:   from,
	}, nil
}

func (m *PostmarkMailer) SendMail(ctx context.Context, to, subject, textBody, tag string) (string, int, error) {
	resp, err := m.client.SendEmail(ctx, postmark.Email{
		From:     m.from,
		To:       to,
		Subject:  subject,
		TextBody: textBody,
		Tag:      tag,
	})
	if err != nil {
		return "", 0, err
	}
	if resp.ErrorCode > 0 {
		return "", int(resp.ErrorCode), fmt.Errorf("postmark: %s", resp.Message)
	}
	return resp.MessageID, 0, nil
}

// Ping verifies the API is reachable and the token valid by loading the
// server record.
func (m *PostmarkMailer) Ping(ctx context.Context) error {
	_, err := m.client.GetCurrentServer(ctx)
	return err
}
