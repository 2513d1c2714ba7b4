package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

const dedupKeyFormat = "%s:dedup:%s"

// Redis is the cross-process Checker: the cached result lives in Redis with
// the dedup window as its TTL, so every engine instance agrees on what was
// already sent.
type Redis struct {
	client    *redis.Client
	namespace string
}

func NewRedis(client *redis.Client, namespace string) *Redis {
	return &Redis{client: client, namespace: namespace}
}

func (r *Redis) key(requestID string) string {
	return fmt.Sprintf(dedupKeyFormat, r.namespace, requestID)
}

func (r *Redis) Check(ctx context.Context, requestID string) (*notify.DispatchResult, bool, error) {
	raw, err := r.client.Get(ctx, r.key(requestID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("dedup check %s: %w", requestID, err)
	}
	var result notify.DispatchResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		// A corrupt entry must not block dispatch; treat it as a miss.
		return nil, false, nil
	}
	return &result, true, nil
}

func (r *Redis) Record(ctx context.Context, requestID string, result *notify.DispatchResult, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode dedup result: %w", err)
	}
	return r.client.Set(ctx, r.key(requestID), raw, ttl).Err()
}
