package push_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shiki0138/hotelbooking-sub004/internal/channels/push"
	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

func TestAdapter_Send(t *testing.T) {
	loopback := push.NewLoopback()
	a := push.NewAdapter(loopback, zerolog.Nop())

	receipt, err := a.Send(context.Background(), "device-token-1",
		notify.Payload{Title: "t", Body: "b", Attributes: map[string]string{"k": "v"}},
		notify.SendOptions{RequestID: "req-1", Expiry: 10 * time.Minute})

	require.NoError(t, err)
	assert.Equal(t, notify.ChannelPush, receipt.Channel)
	assert.NotEmpty(t, receipt.ProviderMessageID)

	sent := loopback.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "t", sent[0].Title)
	assert.Equal(t, 10*time.Minute, sent[0].TTL, "expiry propagates to the provider TTL")
}

func TestAdapter_EmptyTokenIsPermanent(t *testing.T) {
	a := push.NewAdapter(push.NewLoopback(), zerolog.Nop())
	_, err := a.Send(context.Background(), "", notify.Payload{Body: "b"}, notify.SendOptions{})
	require.Error(t, err)
	assert.True(t, notify.IsPermanent(err))
}

func TestAdapter_Classification(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		permanent bool
	}{
		{"410 token gone", 410, true},
		{"404 not registered", 404, true},
		{"400 malformed", 400, true},
		{"429 throttled", 429, false},
		{"500 provider error", 500, false},
		{"503 provider busy", 503, false},
		{"no code transport error", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loopback := push.NewLoopback()
			loopback.Fail = func(token string) (int, error) {
				return tt.code, errors.New("provider said no")
			}
			a := push.NewAdapter(loopback, zerolog.Nop())

			_, err := a.Send(context.Background(), "device-token-1",
				notify.Payload{Body: "b"}, notify.SendOptions{})
			require.Error(t, err)
			assert.Equal(t, tt.permanent, notify.IsPermanent(err))
		})
	}
}

func TestAdapter_Probe(t *testing.T) {
	loopback := push.NewLoopback()
	a := push.NewAdapter(loopback, zerolog.Nop())
	assert.True(t, a.Probe(context.Background()).Healthy)

	loopback.Unreachable = true
	status := a.Probe(context.Background())
	assert.False(t, status.Healthy)
	assert.NotEmpty(t, status.Detail)
}
