// Package dispatch hosts the engine's public entry point. The Dispatcher
// composes the advisor, admission control, channel resolution, and the
// failover coordinator into the full request lifecycle.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/Shiki0138/hotelbooking-sub004/internal/advisor"
	"github.com/Shiki0138/hotelbooking-sub004/internal/failover"
	"github.com/Shiki0138/hotelbooking-sub004/internal/idempotency"
	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
	"github.com/Shiki0138/hotelbooking-sub004/internal/ratelimit"
	"github.com/Shiki0138/hotelbooking-sub004/internal/registry"
)

// ==================== defaults ====================

const (
	defaultDedupTTL         = 5 * time.Minute
	defaultBatchConcurrency = 8
	defaultBatchSize        = 20
	defaultBatchPause       = 100 * time.Millisecond
)

// ==================== Dispatcher ====================

// Dispatcher is the synchronous engine front door. Construct once, share
// across goroutines.
type Dispatcher struct {
	registry    *registry.Registry
	limiter     *ratelimit.Limiter
	coordinator *failover.Coordinator
	emitter     *notify.Emitter
	log         zerolog.Logger

	advisor  *advisor.Timed      // optional
	dedup    idempotency.Checker // optional
	dedupTTL time.Duration
	history  notify.History // optional

	thresholds       notify.ScoreThresholds
	batchConcurrency int
	batchSize        int
	batchPause       time.Duration

	currentTime func() time.Time
}

func NewDispatcher(
	reg *registry.Registry,
	limiter *ratelimit.Limiter,
	coordinator *failover.Coordinator,
	emitter *notify.Emitter,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		registry:         reg,
		limiter:          limiter,
		coordinator:      coordinator,
		emitter:          emitter,
		log:              log.With().Str("component", "dispatcher").Logger(),
		dedupTTL:         defaultDedupTTL,
		thresholds:       notify.DefaultScoreThresholds,
		batchConcurrency: defaultBatchConcurrency,
		batchSize:        defaultBatchSize,
		batchPause:       defaultBatchPause,
		currentTime:      time.Now,
	}
}

// SetAdvisor injects the optional optimization advisor.
func (d *Dispatcher) SetAdvisor(a *advisor.Timed) { d.advisor = a }

// SetDedup injects the optional idempotency checker.
func (d *Dispatcher) SetDedup(checker idempotency.Checker, ttl time.Duration) {
	d.dedup = checker
	if ttl > 0 {
		d.dedupTTL = ttl
	}
}

// SetHistory injects the optional dispatch-history store.
func (d *Dispatcher) SetHistory(h notify.History) { d.history = h }

// SetScoreThresholds overrides the advisor score→tier table.
func (d *Dispatcher) SetScoreThresholds(t notify.ScoreThresholds) { d.thresholds = t }

// SetBatchPolicy tunes SendBatch fan-out.
func (d *Dispatcher) SetBatchPolicy(concurrency, batchSize int, pause time.Duration) {
	if concurrency > 0 {
		d.batchConcurrency = concurrency
	}
	if batchSize > 0 {
		d.batchSize = batchSize
	}
	if pause >= 0 {
		d.batchPause = pause
	}
}

// SetTimeProvider overrides the clock, mainly for tests.
func (d *Dispatcher) SetTimeProvider(now func() time.Time) { d.currentTime = now }

// ==================== Send ====================

// Send runs the full lifecycle for one request and always hands back a
// DispatchResult describing exactly what was attempted, skipped, or
// suppressed. The error is non-nil only for validation failures, unknown
// subscribers, and the terminal all-channels-failed case.
func (d *Dispatcher) Send(ctx context.Context, req notify.NotificationRequest) (*notify.DispatchResult, error) {
	req, err := d.validate(req)
	if err != nil {
		return nil, err
	}

	if cached, hit := d.checkDuplicate(ctx, req.ID); hit {
		return cached, nil
	}

	if !req.Context.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Context.Deadline)
		defer cancel()
	}

	sub, err := d.registry.Subscriber(ctx, req.SubscriberID)
	if err != nil {
		return nil, fmt.Errorf("subscriber %s: %w", req.SubscriberID, err)
	}

	if !sub.Preferences.KindEnabled(req.Kind) && len(req.RequestedChannels) == 0 {
		return d.finishSuppressed(ctx, req, notify.SuppressKindMuted), nil
	}

	subscriptions, err := d.registry.Active(ctx, req.SubscriberID)
	if err != nil {
		return nil, fmt.Errorf("subscriptions for %s: %w", req.SubscriberID, err)
	}

	hints, hinted := d.consultAdvisor(ctx, req, sub, subscriptions)
	priority := d.effectivePriority(req.Priority, hints, hinted)

	decision, err := d.limiter.Allow(ctx, sub, priority, req.Context)
	if err != nil {
		return nil, fmt.Errorf("admission check: %w", err)
	}
	if !decision.Allowed {
		return d.finishSuppressed(ctx, req, decision.Reason), nil
	}

	targets, preSkips := d.resolveTargets(req, subscriptions, hints, hinted)
	if len(targets) == 0 {
		result := &notify.DispatchResult{
			RequestID:   req.ID,
			Attempts:    preSkips,
			CompletedAt: d.currentTime(),
		}
		d.finish(ctx, req, result)
		return result, notify.ErrNoSubscription
	}

	dispatchReq := req
	dispatchReq.Priority = priority
	result := d.coordinator.Dispatch(ctx, dispatchReq, targets, req.Context.RequireAllChannels)
	result.Attempts = append(preSkips, result.Attempts...)

	if countRealAttempts(result.Attempts) > 0 {
		// Counters move only for channels actually attempted; bypassed
		// criticals land here too, so limits are never exceeded off the
		// books.
		d.limiter.CommitAttempt(ctx, req.SubscriberID)
	}

	d.finish(ctx, req, result)
	if !result.Success {
		return result, notify.ErrAllChannelsFailed
	}
	return result, nil
}

// ==================== validation ====================

func (d *Dispatcher) validate(req notify.NotificationRequest) (notify.NotificationRequest, error) {
	if req.SubscriberID == "" {
		return req, fmt.Errorf("%w: subscriber id required", notify.ErrValidation)
	}
	if req.Payload.Empty() {
		return req, fmt.Errorf("%w: payload needs a title or body", notify.ErrValidation)
	}
	if req.Priority == "" {
		req.Priority = notify.PriorityMedium
	}
	if !req.Priority.Valid() {
		return req, fmt.Errorf("%w: unknown priority %q", notify.ErrValidation, req.Priority)
	}
	for _, ch := range req.RequestedChannels {
		if !ch.Valid() {
			return req, fmt.Errorf("%w: unknown channel %q", notify.ErrValidation, ch)
		}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = d.currentTime()
	}
	return req, nil
}

// ==================== advisor overlay ====================

func (d *Dispatcher) consultAdvisor(ctx context.Context, req notify.NotificationRequest, sub notify.Subscriber, subscriptions []notify.Subscription) (advisor.Hints, bool) {
	if d.advisor == nil {
		return advisor.Hints{}, false
	}
	return d.advisor.Optimize(ctx, advisor.Profile{
		Subscriber:    sub,
		Subscriptions: subscriptions,
		Kind:          req.Kind,
		Priority:      req.Priority,
	}, req.Payload)
}

// effectivePriority merges the advisor's score as a non-authoritative
// overlay: it may raise urgency, never lower what the caller asked for.
func (d *Dispatcher) effectivePriority(requested notify.Priority, hints advisor.Hints, hinted bool) notify.Priority {
	if !hinted || hints.PriorityScore <= 0 {
		return requested
	}
	suggested := d.thresholds.Tier(hints.PriorityScore)
	if suggested.Rank() < requested.Rank() {
		return suggested
	}
	return requested
}

// ==================== channel resolution ====================

// resolveTargets builds the ranked target list: requested channels when the
// caller named them, otherwise the subscriber's active subscriptions, with
// the advisor's ranking applied as ordering. Requested channels without an
// active subscription become pre-recorded skips, preserving "we didn't try"
// in the trail.
func (d *Dispatcher) resolveTargets(req notify.NotificationRequest, subscriptions []notify.Subscription, hints advisor.Hints, hinted bool) ([]failover.Target, []notify.DispatchAttempt) {
	byChannel := map[notify.ChannelKind]notify.Subscription{}
	for _, sub := range subscriptions {
		if !sub.Active() {
			continue
		}
		if existing, ok := byChannel[sub.Channel]; !ok || sub.CreatedAt.After(existing.CreatedAt) {
			byChannel[sub.Channel] = sub
		}
	}

	candidates := req.RequestedChannels
	if len(candidates) == 0 {
		candidates = d.subscribedOrder(byChannel, hints, hinted)
	}

	var targets []failover.Target
	var skips []notify.DispatchAttempt
	for _, kind := range candidates {
		sub, ok := byChannel[kind]
		if !ok {
			skips = append(skips, notify.DispatchAttempt{
				RequestID:   req.ID,
				Channel:     kind,
				StartedAt:   d.currentTime(),
				Outcome:     notify.OutcomeSkipped,
				ErrorDetail: notify.SkipNoSubscription,
			})
			continue
		}
		targets = append(targets, failover.Target{Subscription: sub})
	}
	return targets, skips
}

// subscribedOrder ranks the subscribed channels: advisor ranking first, then
// the static fallback order, then anything left.
func (d *Dispatcher) subscribedOrder(byChannel map[notify.ChannelKind]notify.Subscription, hints advisor.Hints, hinted bool) []notify.ChannelKind {
	var order []notify.ChannelKind
	seen := map[notify.ChannelKind]bool{}
	appendKnown := func(kinds []notify.ChannelKind) {
		for _, kind := range kinds {
			if _, ok := byChannel[kind]; ok && !seen[kind] {
				seen[kind] = true
				order = append(order, kind)
			}
		}
	}
	if hinted {
		appendKnown(hints.ChannelRanking)
	}
	appendKnown(notify.DefaultChannelOrder)
	for kind := range byChannel {
		if !seen[kind] {
			seen[kind] = true
			order = append(order, kind)
		}
	}
	return order
}

// ==================== finalization ====================

func (d *Dispatcher) finishSuppressed(ctx context.Context, req notify.NotificationRequest, reason notify.SuppressReason) *notify.DispatchResult {
	result := notify.Suppress(req.ID, reason, d.currentTime())
	d.log.Debug().Str("request", req.ID).Str("reason", string(reason)).Msg("dispatch suppressed")
	d.finish(ctx, req, result)
	return result
}

// finish records history, emits the aggregate event, and caches the result
// for the dedup window. All best-effort: bookkeeping never fails a dispatch.
func (d *Dispatcher) finish(ctx context.Context, req notify.NotificationRequest, result *notify.DispatchResult) {
	if result.CompletedAt.IsZero() {
		result.CompletedAt = d.currentTime()
	}

	if d.history != nil {
		if err := d.history.SaveRecord(ctx, notify.RecordOf(req, result)); err != nil {
			d.log.Warn().Str("request", req.ID).Err(err).Msg("history save failed")
		}
		if _, err := d.history.Trim(ctx); err != nil {
			d.log.Warn().Err(err).Msg("history trim failed")
		}
	}

	if d.emitter != nil {
		eventType := notify.EventDispatchFailed
		detail := "all channels failed"
		if result.Suppressed {
			eventType = notify.EventDispatchSucceeded
			detail = "suppressed: " + string(result.SuppressReason)
		} else if result.Success {
			eventType = notify.EventDispatchSucceeded
			detail = fmt.Sprintf("%d channel(s) succeeded", len(result.ChannelsSucceeded))
		}
		d.emitter.Emit(notify.Event{
			Type:      eventType,
			RequestID: req.ID,
			Detail:    detail,
		})
	}

	if d.dedup != nil {
		if err := d.dedup.Record(ctx, req.ID, result, d.dedupTTL); err != nil {
			d.log.Warn().Str("request", req.ID).Err(err).Msg("dedup record failed")
		}
	}
}

func (d *Dispatcher) checkDuplicate(ctx context.Context, requestID string) (*notify.DispatchResult, bool) {
	if d.dedup == nil {
		return nil, false
	}
	cached, hit, err := d.dedup.Check(ctx, requestID)
	if err != nil {
		// Dedup must not sit on the critical path; a broken checker means
		// we risk a duplicate send, not a lost one.
		d.log.Warn().Str("request", requestID).Err(err).Msg("dedup check failed")
		return nil, false
	}
	if !hit {
		return nil, false
	}
	replay := *cached
	replay.Duplicate = true
	d.log.Debug().Str("request", requestID).Msg("duplicate request, replaying cached result")
	return &replay, true
}

func countRealAttempts(attempts []notify.DispatchAttempt) int {
	n := 0
	for _, att := range attempts {
		if att.Outcome != notify.OutcomeSkipped {
			n++
		}
	}
	return n
}

// ==================== SendBatch ====================

// SendBatch fans requests out in sub-batches with bounded concurrency and a
// short pause between batches so downstream providers are not hammered.
func (d *Dispatcher) SendBatch(ctx context.Context, requests []notify.NotificationRequest) notify.BatchResult {
	batch := notify.BatchResult{Results: make(map[string]*notify.DispatchResult, len(requests))}
	sem := semaphore.NewWeighted(int64(d.batchConcurrency))
	var mu sync.Mutex

	for start := 0; start < len(requests); start += d.batchSize {
		end := start + d.batchSize
		if end > len(requests) {
			end = len(requests)
		}

		var wg sync.WaitGroup
		for _, req := range requests[start:end] {
			if err := sem.Acquire(ctx, 1); err != nil {
				recordBatchFailure(&mu, &batch, req, err)
				continue
			}
			wg.Add(1)
			go func(req notify.NotificationRequest) {
				defer wg.Done()
				defer sem.Release(1)
				result, err := d.Send(ctx, req)
				mu.Lock()
				defer mu.Unlock()
				if result != nil {
					batch.Results[result.RequestID] = result
				}
				if err != nil {
					batch.TotalFailed++
				} else {
					batch.TotalSent++
				}
			}(req)
		}
		wg.Wait()

		if end < len(requests) && d.batchPause > 0 {
			select {
			case <-time.After(d.batchPause):
			case <-ctx.Done():
				for _, req := range requests[end:] {
					recordBatchFailure(&mu, &batch, req, ctx.Err())
				}
				return batch
			}
		}
	}
	return batch
}

func recordBatchFailure(mu *sync.Mutex, batch *notify.BatchResult, req notify.NotificationRequest, err error) {
	mu.Lock()
	defer mu.Unlock()
	batch.TotalFailed++
	if req.ID != "" {
		batch.Results[req.ID] = &notify.DispatchResult{RequestID: req.ID}
	}
}
