package queue

import (
	"encoding/json"
	"fmt"

	"github.com/nsqio/go-nsq"
	"github.com/rs/zerolog"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

const defaultConsumerChannel = "dispatcher"

// NSQTierConsumer drains the per-tier topics published by NSQMirror into the
// local priority queue. One consumer per tier; the queue itself restores the
// strict drain order, so per-topic consumption needs no coordination.
type NSQTierConsumer struct {
	consumers []*nsq.Consumer
	queue     *PriorityQueue
	log       zerolog.Logger
}

func NewNSQTierConsumer(nsqdAddress, topicPrefix, channel string, q *PriorityQueue, log zerolog.Logger) (*NSQTierConsumer, error) {
	if nsqdAddress == "" {
		return nil, fmt.Errorf("nsqd address is required")
	}
	if topicPrefix == "" {
		return nil, fmt.Errorf("topic prefix is required")
	}
	if channel == "" {
		channel = defaultConsumerChannel
	}

	tc := &NSQTierConsumer{
		queue: q,
		log:   log.With().Str("component", "nsq-consumer").Logger(),
	}

	for _, tier := range notify.Tiers {
		topic := topicPrefix + "." + string(tier)
		consumer, err := nsq.NewConsumer(topic, channel, nsq.NewConfig())
		if err != nil {
			tc.Stop()
			return nil, fmt.Errorf("create consumer for %s: %w", topic, err)
		}
		consumer.AddHandler(&tierHandler{parent: tc, topic: topic})
		if err := consumer.ConnectToNSQD(nsqdAddress); err != nil {
			tc.Stop()
			return nil, fmt.Errorf("connect %s to nsqd: %w", topic, err)
		}
		tc.consumers = append(tc.consumers, consumer)
	}

	return tc, nil
}

// Stop disconnects every tier consumer and waits for in-flight handlers.
func (tc *NSQTierConsumer) Stop() {
	for _, consumer := range tc.consumers {
		consumer.Stop()
	}
	for _, consumer := range tc.consumers {
		<-consumer.StopChan
	}
	tc.consumers = nil
}

type tierHandler struct {
	parent *NSQTierConsumer
	topic  string
}

// HandleMessage enqueues one mirrored request. A full local queue requeues
// the NSQ message so it is retried once pressure drops.
func (h *tierHandler) HandleMessage(message *nsq.Message) error {
	var req notify.NotificationRequest
	if err := json.Unmarshal(message.Body, &req); err != nil {
		// Malformed payloads never become deliverable; drop, do not requeue.
		h.parent.log.Error().Err(err).Str("topic", h.topic).Msg("undecodable message dropped")
		return nil
	}

	if err := h.parent.queue.Enqueue(req); err != nil {
		h.parent.log.Warn().Str("topic", h.topic).Str("request", req.ID).Msg("local queue full, requeueing")
		return err
	}
	return nil
}
