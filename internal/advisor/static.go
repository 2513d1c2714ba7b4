package advisor

import (
	"context"
	"sort"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

// Static is the built-in reference advisor: a rule table, no model behind
// it. It ranks a subscriber's active channels by recency of use and scores
// priority from the event kind.
type Static struct {
	thresholds notify.ScoreThresholds
}

func NewStatic(thresholds notify.ScoreThresholds) *Static {
	return &Static{thresholds: thresholds}
}

func (s *Static) Optimize(ctx context.Context, profile Profile, payload notify.Payload) (Hints, error) {
	active := make([]notify.Subscription, 0, len(profile.Subscriptions))
	for _, sub := range profile.Subscriptions {
		if sub.Active() {
			active = append(active, sub)
		}
	}
	// Most recently used channel first: the destination the user last
	// reacted to is the best bet for reaching them again.
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].LastUsedAt.After(active[j].LastUsedAt)
	})

	ranking := make([]notify.ChannelKind, 0, len(active))
	seen := map[notify.ChannelKind]bool{}
	for _, sub := range active {
		if !seen[sub.Channel] {
			seen[sub.Channel] = true
			ranking = append(ranking, sub.Channel)
		}
	}

	return Hints{
		ChannelRanking: ranking,
		PriorityScore:  s.score(profile.Kind),
		Confidence:     0.5,
	}, nil
}

func (s *Static) score(kind notify.EventKind) float64 {
	switch kind {
	case notify.KindCancellation:
		return s.thresholds.Critical
	case notify.KindFlashSale:
		return s.thresholds.High
	case notify.KindPriceDrop:
		return s.thresholds.Medium
	default:
		return 0
	}
}

func (s *Static) Probe(ctx context.Context) error { return nil }
