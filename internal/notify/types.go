package notify

import "time"

// EventKind classifies what a notification is about. Preferences filter on it.
type EventKind string

const (
	KindCancellation EventKind = "cancellation" // booking cancelled, time-critical
	KindPriceDrop    EventKind = "price_drop"
	KindFlashSale    EventKind = "flash_sale"
	KindDigest       EventKind = "digest" // batched daily summary
)

// ChannelKind identifies a delivery medium.
type ChannelKind string

const (
	ChannelPush  ChannelKind = "push"
	ChannelSMS   ChannelKind = "sms"
	ChannelEmail ChannelKind = "email"
	ChannelInApp ChannelKind = "inapp" // web inbox / bridge channel
)

// DefaultChannelOrder is the static fallback ranking used when neither the
// request, the subscriptions, nor the advisor provide one.
var DefaultChannelOrder = []ChannelKind{ChannelPush, ChannelSMS, ChannelEmail}

func (k ChannelKind) Valid() bool {
	switch k {
	case ChannelPush, ChannelSMS, ChannelEmail, ChannelInApp:
		return true
	}
	return false
}

// Priority is one of four fixed dispatch tiers.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Tiers lists all priorities from most to least urgent. Queue drain order
// depends on this ordering.
var Tiers = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank returns the tier index, 0 being the most urgent.
func (p Priority) Rank() int {
	for i, tier := range Tiers {
		if tier == p {
			return i
		}
	}
	return len(Tiers)
}

// ScoreThresholds maps an advisor's 0..10 priority score onto a tier.
// The cut points are business policy and come from configuration.
type ScoreThresholds struct {
	Critical float64 `yaml:"Critical" json:"critical"`
	High     float64 `yaml:"High" json:"high"`
	Medium   float64 `yaml:"Medium" json:"medium"`
}

// DefaultScoreThresholds is used when configuration leaves the table empty.
var DefaultScoreThresholds = ScoreThresholds{Critical: 8, High: 6, Medium: 3}

// Tier resolves a numeric score to a priority tier.
func (t ScoreThresholds) Tier(score float64) Priority {
	switch {
	case score >= t.Critical:
		return PriorityCritical
	case score >= t.High:
		return PriorityHigh
	case score >= t.Medium:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Payload is the channel-agnostic message content. Adapters map it to their
// own wire format.
type Payload struct {
	Title      string            `json:"title,omitempty"`
	Body       string            `json:"body,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Empty reports whether the payload carries neither a title nor a body.
func (p Payload) Empty() bool { return p.Title == "" && p.Body == "" }

// RequestContext carries per-request dispatch overrides.
type RequestContext struct {
	BypassQuietHours   bool      `json:"bypass_quiet_hours,omitempty"`
	BypassDailyLimit   bool      `json:"bypass_daily_limit,omitempty"`
	RequireAllChannels bool      `json:"require_all_channels,omitempty"`
	Deadline           time.Time `json:"deadline,omitempty"`
}

// NotificationRequest is the unit of work consumed exactly once by the
// dispatcher. It is immutable after creation; advisor hints are attached as a
// separate overlay, never written back into the request.
type NotificationRequest struct {
	ID                string            `json:"id"`
	SubscriberID      string            `json:"subscriber_id"`
	Kind              EventKind         `json:"kind"`
	Priority          Priority          `json:"priority"`
	Payload           Payload           `json:"payload"`
	RequestedChannels []ChannelKind     `json:"requested_channels,omitempty"`
	Context           RequestContext    `json:"context"`
	Meta              map[string]string `json:"meta,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// QuietWindow is an hour-of-day window. Start > End means the window wraps
// past midnight (e.g. 22..7).
type QuietWindow struct {
	StartHour int `yaml:"StartHour" json:"start_hour"`
	EndHour   int `yaml:"EndHour" json:"end_hour"`
}

// Zero reports whether no quiet window is configured.
func (w QuietWindow) Zero() bool { return w.StartHour == w.EndHour }

// Contains reports whether t's hour falls inside [StartHour, EndHour) under
// wraparound arithmetic.
func (w QuietWindow) Contains(t time.Time) bool {
	if w.Zero() {
		return false
	}
	hour := t.Hour()
	if w.StartHour < w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	return hour >= w.StartHour || hour < w.EndHour
}

// Preferences holds a subscriber's delivery policy.
type Preferences struct {
	// EnabledKinds filters event kinds; empty means every kind is enabled.
	EnabledKinds []EventKind `json:"enabled_kinds,omitempty"`
	Quiet        QuietWindow `json:"quiet"`
	MaxPerDay    int         `json:"max_per_day"`
}

// KindEnabled reports whether the subscriber accepts the given event kind.
func (p Preferences) KindEnabled(kind EventKind) bool {
	if len(p.EnabledKinds) == 0 {
		return true
	}
	for _, k := range p.EnabledKinds {
		if k == kind {
			return true
		}
	}
	return false
}

type Subscriber struct {
	ID          string      `json:"id"`
	Preferences Preferences `json:"preferences"`
}

// SubscriptionStatus tracks whether a destination is still deliverable.
type SubscriptionStatus string

const (
	SubscriptionActive SubscriptionStatus = "active"
	// SubscriptionInvalid marks a destination a channel reported as gone.
	// Invalid subscriptions are excluded from selection but kept for audit.
	SubscriptionInvalid SubscriptionStatus = "invalid"
)

// Subscription binds one subscriber to one channel destination. Destination
// is an opaque encrypted blob; only the adapter for the channel can use it.
type Subscription struct {
	ID           string             `json:"id"`
	SubscriberID string             `json:"subscriber_id"`
	Channel      ChannelKind        `json:"channel"`
	Destination  string             `json:"destination"`
	Status       SubscriptionStatus `json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
	LastUsedAt   time.Time          `json:"last_used_at,omitempty"`
}

func (s Subscription) Active() bool { return s.Status == SubscriptionActive }
