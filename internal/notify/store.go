package notify

import (
	"context"
	"time"
)

// Store is the persistence collaborator. Any backend that satisfies these
// operations works; the engine never assumes a technology.
type Store interface {
	GetSubscriber(ctx context.Context, id string) (Subscriber, error)
	GetSubscriptions(ctx context.Context, subscriberID string) ([]Subscription, error)
	SaveSubscription(ctx context.Context, sub Subscription) error
	InvalidateSubscription(ctx context.Context, id string) error
	TouchSubscription(ctx context.Context, id string, at time.Time) error

	// IncrementCounter bumps the windowed counter behind key and returns the
	// new value. The entry expires when its window rolls over.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)
	// CounterValue reads a counter without bumping it. Missing keys read 0.
	CounterValue(ctx context.Context, key string) (int64, error)
}

// Record is the dispatch-history row persisted for each terminal result.
type Record struct {
	RequestID    string         `json:"request_id"`
	SubscriberID string         `json:"subscriber_id"`
	Kind         EventKind      `json:"kind"`
	Priority     Priority       `json:"priority"`
	Title        string         `json:"title,omitempty"`
	Channels     []ChannelKind  `json:"channels,omitempty"`
	Status       string         `json:"status"` // success/failed/suppressed
	Detail       string         `json:"detail,omitempty"`
	SuppressedBy SuppressReason `json:"suppressed_by,omitempty"`
	CreatedAt    int64          `json:"created_at"`
	CompletedAt  int64          `json:"completed_at"`
}

// History stores terminal dispatch records with capped retention.
type History interface {
	SaveRecord(ctx context.Context, rec Record) error
	Query(ctx context.Context, subscriberID string, limit int64) ([]Record, error)
	// Trim enforces the retention cap, returning how many records were evicted.
	Trim(ctx context.Context) (int, error)
}

// RecordOf flattens a dispatch result into its history row.
func RecordOf(req NotificationRequest, res *DispatchResult) Record {
	status := "failed"
	switch {
	case res.Suppressed:
		status = "suppressed"
	case res.Success:
		status = "success"
	}
	detail := ""
	for _, att := range res.Attempts {
		if att.Outcome != OutcomeSuccess && att.ErrorDetail != "" {
			detail = att.ErrorDetail
			break
		}
	}
	return Record{
		RequestID:    req.ID,
		SubscriberID: req.SubscriberID,
		Kind:         req.Kind,
		Priority:     req.Priority,
		Title:        req.Payload.Title,
		Channels:     res.ChannelsSucceeded,
		Status:       status,
		Detail:       detail,
		SuppressedBy: res.SuppressReason,
		CreatedAt:    req.CreatedAt.Unix(),
		CompletedAt:  res.CompletedAt.Unix(),
	}
}
