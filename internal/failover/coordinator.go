// Package failover drives one notification across a ranked channel list:
// retry transient failures locally, invalidate destinations on permanent
// ones, skip open circuits, and stop at the first success unless the request
// demands every channel.
package failover

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Shiki0138/hotelbooking-sub004/internal/health"
	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
	"github.com/Shiki0138/hotelbooking-sub004/internal/registry"
)

const (
	defaultMaxRetries        = 3
	defaultRetryBackoff      = 300 * time.Millisecond
	defaultPerChannelTimeout = 5 * time.Second
)

// Target is one ranked delivery candidate: a channel plus the subscription
// whose destination it will use.
type Target struct {
	Subscription notify.Subscription
}

func (t Target) Channel() notify.ChannelKind { return t.Subscription.Channel }

// Config bounds the per-channel effort.
type Config struct {
	MaxRetries        int
	RetryBackoff      time.Duration
	PerChannelTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.PerChannelTimeout <= 0 {
		c.PerChannelTimeout = defaultPerChannelTimeout
	}
}

// Coordinator executes the failover algorithm for single requests.
type Coordinator struct {
	adapters    *notify.AdapterRegistry
	monitor     *health.Monitor
	registry    *registry.Registry
	emitter     *notify.Emitter
	cfg         Config
	log         zerolog.Logger
	currentTime func() time.Time
}

func NewCoordinator(
	adapters *notify.AdapterRegistry,
	monitor *health.Monitor,
	reg *registry.Registry,
	emitter *notify.Emitter,
	cfg Config,
	log zerolog.Logger,
) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		adapters:    adapters,
		monitor:     monitor,
		registry:    reg,
		emitter:     emitter,
		cfg:         cfg,
		log:         log.With().Str("component", "failover").Logger(),
		currentTime: time.Now,
	}
}

// SetTimeProvider overrides the clock, mainly for tests.
func (c *Coordinator) SetTimeProvider(now func() time.Time) { c.currentTime = now }

// Dispatch attempts the ranked targets. With requireAll the independent
// channels fan out concurrently (a critical alert should hit every medium at
// once); otherwise iteration is sequential and stops at the first success.
// The attempt trail is always ordered by the ranked list.
func (c *Coordinator) Dispatch(ctx context.Context, req notify.NotificationRequest, targets []Target, requireAll bool) *notify.DispatchResult {
	result := &notify.DispatchResult{RequestID: req.ID}
	if requireAll {
		c.dispatchAll(ctx, req, targets, result)
	} else {
		c.dispatchSequential(ctx, req, targets, result)
	}
	result.Success = len(result.ChannelsSucceeded) > 0
	result.CompletedAt = c.currentTime()
	return result
}

func (c *Coordinator) dispatchSequential(ctx context.Context, req notify.NotificationRequest, targets []Target, result *notify.DispatchResult) {
	for i, target := range targets {
		if ctx.Err() != nil {
			// Cancellation mid-failover: remaining channels are reported as
			// skipped, never silently dropped.
			result.Attempts = append(result.Attempts, c.skippedTrail(req, targets[i:])...)
			return
		}
		attempt, receipt := c.attemptChannel(ctx, req, target)
		result.Attempts = append(result.Attempts, attempt)
		if attempt.Outcome == notify.OutcomeSuccess {
			result.ChannelsSucceeded = append(result.ChannelsSucceeded, target.Channel())
			result.Receipts = append(result.Receipts, receipt)
			return
		}
	}
}

func (c *Coordinator) dispatchAll(ctx context.Context, req notify.NotificationRequest, targets []Target, result *notify.DispatchResult) {
	attempts := make([]notify.DispatchAttempt, len(targets))
	receipts := make([]*notify.Receipt, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()
			attempt, receipt := c.attemptChannel(ctx, req, target)
			attempts[i] = attempt
			if attempt.Outcome == notify.OutcomeSuccess {
				receipts[i] = &receipt
			}
		}(i, target)
	}
	wg.Wait()

	for i, attempt := range attempts {
		result.Attempts = append(result.Attempts, attempt)
		if receipts[i] != nil {
			result.ChannelsSucceeded = append(result.ChannelsSucceeded, attempt.Channel)
			result.Receipts = append(result.Receipts, *receipts[i])
		}
	}
}

// attemptChannel runs one channel to a terminal outcome: skipped, success,
// or a classified failure. Transient errors retry with exponential backoff
// and jitter; a permanent error burns the subscription and ends the channel.
func (c *Coordinator) attemptChannel(ctx context.Context, req notify.NotificationRequest, target Target) (notify.DispatchAttempt, notify.Receipt) {
	channel := target.Channel()
	attempt := notify.DispatchAttempt{
		RequestID: req.ID,
		Channel:   channel,
		StartedAt: c.currentTime(),
	}

	adapter, ok := c.adapters.Get(channel)
	if !ok {
		attempt.Outcome = notify.OutcomeSkipped
		attempt.ErrorDetail = notify.SkipNoAdapter
		return attempt, notify.Receipt{}
	}

	if !c.monitor.Allow(channel) {
		// Open circuit: the channel is unavailable, not failed. Skipping
		// here avoids paying the adapter's timeout on a known-bad channel.
		attempt.Outcome = notify.OutcomeSkipped
		attempt.ErrorDetail = notify.SkipCircuitOpen
		return attempt, notify.Receipt{}
	}

	c.emit(notify.EventDispatchAttempted, req.ID, channel, "")

	opts := notify.SendOptions{
		RequestID: req.ID,
		Priority:  req.Priority,
		Expiry:    expiryFor(req.Kind),
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.PerChannelTimeout)
	defer cancel()

	receipt, retries, err := c.sendWithRetry(callCtx, adapter, target.Subscription.Destination, req.Payload, opts)
	attempt.Duration = c.currentTime().Sub(attempt.StartedAt)
	attempt.Retries = retries

	if err == nil {
		attempt.Outcome = notify.OutcomeSuccess
		attempt.ProviderMessageID = receipt.ProviderMessageID
		c.monitor.RecordSuccess(channel)
		c.registry.MarkUsed(ctx, target.Subscription.ID, c.currentTime())
		return attempt, receipt
	}

	attempt.ErrorDetail = err.Error()
	if notify.IsPermanent(err) {
		attempt.Outcome = notify.OutcomePermanentFailure
		// The destination is gone; retrying any request against it is
		// wasted work, so the subscription flips to invalid now.
		if invErr := c.registry.Invalidate(ctx, target.Subscription.ID); invErr != nil {
			c.log.Warn().Str("subscription", target.Subscription.ID).Err(invErr).
				Msg("invalidation failed")
		}
	} else {
		attempt.Outcome = notify.OutcomeTransientFailure
	}
	c.monitor.RecordFailure(channel)
	return attempt, notify.Receipt{}
}

// sendWithRetry retries transient errors up to MaxRetries with doubled,
// jittered backoff. Permanent errors and context expiry end the loop at
// once.
func (c *Coordinator) sendWithRetry(ctx context.Context, adapter notify.Adapter, destination string, payload notify.Payload, opts notify.SendOptions) (notify.Receipt, int, error) {
	backoff := c.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		receipt, err := adapter.Send(ctx, destination, payload, opts)
		if err == nil {
			return receipt, attempt, nil
		}
		lastErr = err
		if notify.IsPermanent(err) || attempt == c.cfg.MaxRetries-1 {
			return notify.Receipt{}, attempt, err
		}
		select {
		case <-time.After(jitteredDelay(backoff)):
		case <-ctx.Done():
			return notify.Receipt{}, attempt, lastErr
		}
		backoff *= 2
	}
	return notify.Receipt{}, c.cfg.MaxRetries, lastErr
}

func (c *Coordinator) skippedTrail(req notify.NotificationRequest, remaining []Target) []notify.DispatchAttempt {
	out := make([]notify.DispatchAttempt, 0, len(remaining))
	for _, target := range remaining {
		out = append(out, notify.DispatchAttempt{
			RequestID:   req.ID,
			Channel:     target.Channel(),
			StartedAt:   c.currentTime(),
			Outcome:     notify.OutcomeSkipped,
			ErrorDetail: notify.SkipDeadline,
		})
	}
	return out
}

func (c *Coordinator) emit(eventType notify.EventType, requestID string, channel notify.ChannelKind, detail string) {
	if c.emitter == nil {
		return
	}
	c.emitter.Emit(notify.Event{
		Type:      eventType,
		RequestID: requestID,
		Channel:   channel,
		Detail:    detail,
	})
}

// expiryFor returns the provider-side expiry for time-sensitive kinds.
// A stale cancellation alert is worse than none.
func expiryFor(kind notify.EventKind) time.Duration {
	switch kind {
	case notify.KindCancellation:
		return 10 * time.Minute
	case notify.KindFlashSale:
		return time.Hour
	default:
		return 0
	}
}

func jitteredDelay(base time.Duration) time.Duration {
	jitter := time.Duration(randomUint32() % uint32(base/2+1))
	return base + jitter
}

func randomUint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}
