// Package ratelimit implements admission control: the quiet-hours gate, the
// per-subscriber daily cap, and the global per-minute cap shared by all
// subscribers to protect downstream providers.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

const (
	dayKeyFormat  = "daily:%s:%s" // subscriber id, YYYY-MM-DD
	dayCounterTTL = 24 * time.Hour

	defaultGlobalPerMinute = 600
	defaultMaxPerDay       = 50
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	Reason  notify.SuppressReason // set when Allowed is false
}

var allowed = Decision{Allowed: true}

func deny(reason notify.SuppressReason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Limiter evaluates quiet hours and rate caps. It never increments counters
// on its own: CommitAttempt is called separately, and only for requests
// whose channels were actually attempted.
type Limiter struct {
	store            notify.Store
	global           *rate.Limiter
	defaultMaxPerDay int
	location         *time.Location
	currentTime      func() time.Time
	log              zerolog.Logger
}

func New(store notify.Store, globalPerMinute, maxPerDay int, log zerolog.Logger) *Limiter {
	if globalPerMinute <= 0 {
		globalPerMinute = defaultGlobalPerMinute
	}
	if maxPerDay <= 0 {
		maxPerDay = defaultMaxPerDay
	}
	return &Limiter{
		store:            store,
		global:           rate.NewLimiter(rate.Limit(float64(globalPerMinute)/60.0), globalPerMinute),
		defaultMaxPerDay: maxPerDay,
		location:         time.Local,
		currentTime:      time.Now,
		log:              log.With().Str("component", "ratelimit").Logger(),
	}
}

// SetTimeProvider overrides the clock, mainly for tests.
func (l *Limiter) SetTimeProvider(now func() time.Time) { l.currentTime = now }

// SetLocation pins the calendar-day window to a timezone.
func (l *Limiter) SetLocation(loc *time.Location) { l.location = loc }

// Allow runs the admission checks in order: quiet hours, daily cap, global
// cap. Bypass flags skip the first two; critical priority is never held back
// by the global cap (a cancellation alert outranks provider comfort), though
// it still consumes a token so the cap stays honest.
func (l *Limiter) Allow(ctx context.Context, sub notify.Subscriber, priority notify.Priority, reqCtx notify.RequestContext) (Decision, error) {
	now := l.currentTime().In(l.location)

	if !reqCtx.BypassQuietHours && sub.Preferences.Quiet.Contains(now) {
		return deny(notify.SuppressQuietHours), nil
	}

	if !reqCtx.BypassDailyLimit {
		count, err := l.store.CounterValue(ctx, l.dayKey(sub.ID, now))
		if err != nil {
			return Decision{}, fmt.Errorf("read daily counter: %w", err)
		}
		if count >= int64(l.maxPerDay(sub)) {
			return deny(notify.SuppressDailyLimit), nil
		}
	}

	if !l.global.Allow() && priority != notify.PriorityCritical {
		return deny(notify.SuppressGlobalLimit), nil
	}

	return allowed, nil
}

// CommitAttempt bumps the subscriber's daily counter. Called once per request
// that attempted at least one channel, bypass flags included: a bypassed send
// must never exceed limits without record.
func (l *Limiter) CommitAttempt(ctx context.Context, subscriberID string) {
	now := l.currentTime().In(l.location)
	if _, err := l.store.IncrementCounter(ctx, l.dayKey(subscriberID, now), dayCounterTTL); err != nil {
		l.log.Warn().Str("subscriber", subscriberID).Err(err).Msg("daily counter increment failed")
	}
}

// DailyCount reads the subscriber's counter for the current calendar day.
func (l *Limiter) DailyCount(ctx context.Context, subscriberID string) (int64, error) {
	now := l.currentTime().In(l.location)
	return l.store.CounterValue(ctx, l.dayKey(subscriberID, now))
}

func (l *Limiter) maxPerDay(sub notify.Subscriber) int {
	if sub.Preferences.MaxPerDay > 0 {
		return sub.Preferences.MaxPerDay
	}
	return l.defaultMaxPerDay
}

// dayKey embeds the calendar date so the counter rolls over at local
// midnight without any sweeper involvement.
func (l *Limiter) dayKey(subscriberID string, now time.Time) string {
	return fmt.Sprintf(dayKeyFormat, subscriberID, now.Format("2006-01-02"))
}
