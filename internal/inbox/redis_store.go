package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	keyInboxFormat = "%s:inbox:%s" // namespace, user id

	defaultMaxPerUser = 1000
	defaultTTL        = 90 * 24 * time.Hour
)

// RedisStore keeps each user's inbox as a Redis list, newest first, trimmed
// to a per-user cap with a TTL refreshed on every append.
type RedisStore struct {
	client     *redis.Client
	namespace  string
	maxPerUser int64
	ttl        time.Duration
}

func NewRedisStore(client *redis.Client, namespace string, maxPerUser int64, ttl time.Duration) *RedisStore {
	if maxPerUser <= 0 {
		maxPerUser = defaultMaxPerUser
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{
		client:     client,
		namespace:  namespace,
		maxPerUser: maxPerUser,
		ttl:        ttl,
	}
}

func (s *RedisStore) key(userID string) string {
	return fmt.Sprintf(keyInboxFormat, s.namespace, userID)
}

func (s *RedisStore) Append(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode inbox message: %w", err)
	}
	key := s.key(msg.UserID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, s.maxPerUser-1)
	pipe.Expire(ctx, key, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) List(ctx context.Context, userID string, limit int64) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	raws, err := s.client.LRange(ctx, s.key(userID), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list inbox %s: %w", userID, err)
	}
	out := make([]Message, 0, len(raws))
	for _, raw := range raws {
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// MarkRead rewrites the matching entry in place. LSET by scanned index is
// racy against concurrent appends, so the list is re-read under WATCH.
func (s *RedisStore) MarkRead(ctx context.Context, userID, messageID string, at time.Time) error {
	key := s.key(userID)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		raws, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}
		for i, raw := range raws {
			var msg Message
			if err := json.Unmarshal([]byte(raw), &msg); err != nil {
				continue
			}
			if msg.ID != messageID {
				continue
			}
			msg.ReadAt = at.Unix()
			updated, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.LSet(ctx, key, int64(i), updated)
				return nil
			})
			return err
		}
		return fmt.Errorf("inbox message %s not found", messageID)
	}, key)
}
