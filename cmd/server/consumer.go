package main

import (
	"github.com/Shiki0138/hotelbooking-sub004/internal/queue"
)

// startTierConsumer optionally drains the NSQ tier topics into the local
// priority queue. It is meant for deployments where other processes publish
// notification requests; self-mirrored traffic should not be consumed by the
// same process, so the consumer defaults to off.
func startTierConsumer(app *AppContext) {
	if !app.Config.NSQ.ConsumerEnabled || app.Config.NSQ.NsqdAddress == "" {
		return
	}

	prefix := app.Config.NSQ.TopicPrefix
	if prefix == "" {
		prefix = app.Config.Namespace
	}

	consumer, err := queue.NewNSQTierConsumer(
		app.Config.NSQ.NsqdAddress,
		prefix,
		app.Config.NSQ.Channel,
		app.Queue,
		app.Log,
	)
	if err != nil {
		app.Log.Error().Err(err).Msg("nsq tier consumer unavailable")
		return
	}

	app.TierConsumer = consumer
	app.Log.Info().Str("prefix", prefix).Msg("nsq tier consumer started")
}
