package inbox

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is the in-process inbox used in development and tests.
type MemoryStore struct {
	mu         sync.Mutex
	byUser     map[string][]Message
	maxPerUser int
}

func NewMemoryStore(maxPerUser int) *MemoryStore {
	if maxPerUser <= 0 {
		maxPerUser = defaultMaxPerUser
	}
	return &MemoryStore{
		byUser:     map[string][]Message{},
		maxPerUser: maxPerUser,
	}
}

func (s *MemoryStore) Append(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append([]Message{msg}, s.byUser[msg.UserID]...)
	if len(list) > s.maxPerUser {
		list = list[:s.maxPerUser]
	}
	s.byUser[msg.UserID] = list
	return nil
}

func (s *MemoryStore) List(ctx context.Context, userID string, limit int64) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byUser[userID]
	if limit > 0 && int64(len(list)) > limit {
		list = list[:limit]
	}
	out := make([]Message, len(list))
	copy(out, list)
	return out, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, userID, messageID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, msg := range s.byUser[userID] {
		if msg.ID == messageID {
			s.byUser[userID][i].ReadAt = at.Unix()
			return nil
		}
	}
	return fmt.Errorf("inbox message %s not found", messageID)
}
