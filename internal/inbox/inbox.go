// Package inbox stores in-app messages per user, with a capped per-user
// list and TTL-based expiry. It backs the bridge (in-app) channel adapter.
package inbox

import (
	"context"
	"time"
)

// Message is one inbox entry.
type Message struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Title     string            `json:"title,omitempty"`
	Body      string            `json:"body,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt int64             `json:"created_at"`
	ReadAt    int64             `json:"read_at,omitempty"`
}

// Store is the inbox persistence contract.
type Store interface {
	Append(ctx context.Context, msg Message) error
	List(ctx context.Context, userID string, limit int64) ([]Message, error)
	MarkRead(ctx context.Context, userID, messageID string, at time.Time) error
}
