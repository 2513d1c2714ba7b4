// Package advisor defines the optional optimization collaborator. Its hints
// are advisory overlays only; nothing here may ever sit on the critical
// failure path of a dispatch.
package advisor

import (
	"context"
	"time"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

// Profile is the subscriber context handed to the optimizer.
type Profile struct {
	Subscriber    notify.Subscriber
	Subscriptions []notify.Subscription
	Kind          notify.EventKind
	Priority      notify.Priority
}

// Hints are the non-authoritative suggestions an optimizer may produce.
// Zero-valued fields mean "no opinion".
type Hints struct {
	ChannelRanking  []notify.ChannelKind
	PriorityScore   float64 // 0..10, mapped to a tier via configured thresholds
	ContentVariant  string
	SuggestedSendAt time.Time
	Confidence      float64 // 0..1
}

// Advisor is the external optimization service contract. Callers must bound
// Optimize with a hard timeout and treat any error as "use defaults".
type Advisor interface {
	Optimize(ctx context.Context, profile Profile, payload notify.Payload) (Hints, error)
	Probe(ctx context.Context) error
}
