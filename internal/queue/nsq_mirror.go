package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nsqio/go-nsq"
	"github.com/rs/zerolog"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

// NSQMirror publishes accepted requests to one NSQ topic per priority tier
// (topicPrefix.critical, topicPrefix.high, ...). External consumers can then
// drain the tiers in the same strict order this process does.
type NSQMirror struct {
	producer    *nsq.Producer
	topicPrefix string
	log         zerolog.Logger
}

func NewNSQMirror(nsqdAddress, topicPrefix string, log zerolog.Logger) (*NSQMirror, error) {
	if nsqdAddress == "" {
		return nil, fmt.Errorf("nsqd address is required")
	}
	if topicPrefix == "" {
		return nil, fmt.Errorf("topic prefix is required")
	}
	producer, err := nsq.NewProducer(nsqdAddress, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("create nsq producer: %w", err)
	}
	return &NSQMirror{
		producer:    producer,
		topicPrefix: topicPrefix,
		log:         log.With().Str("component", "nsq-mirror").Logger(),
	}, nil
}

// Publish mirrors one request onto its tier topic. The ctx parameter is kept
// for interface symmetry; go-nsq's Publish does not take one.
func (m *NSQMirror) Publish(ctx context.Context, req notify.NotificationRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	topic := m.topicFor(req.Priority)
	if err := m.producer.Publish(topic, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	m.log.Debug().Str("request", req.ID).Str("topic", topic).Msg("mirrored to nsq")
	return nil
}

func (m *NSQMirror) topicFor(priority notify.Priority) string {
	if !priority.Valid() {
		priority = notify.PriorityMedium
	}
	return m.topicPrefix + "." + string(priority)
}

func (m *NSQMirror) Close() {
	if m.producer != nil {
		m.producer.Stop()
	}
}
