package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

const (
	keySubscriberFormat   = "%s:subscriber:%s"
	keySubscriptionFormat = "%s:subscription:%s"
	keySubsIndexFormat    = "%s:subscriptions:%s" // set of subscription ids per subscriber
	keyCounterFormat      = "%s:counter:%s"
	keyRecordFormat       = "%s:record:%s"
	keyRecordSeq          = "%s:record:seq"
	keyRecordTimes        = "%s:record:times" // zset: record key -> seq, drives trim
	keyRecordBySub        = "%s:records:%s"   // list of record keys per subscriber

	defaultRecordTTL = 90 * 24 * time.Hour
)

// trimScript evicts the oldest history records past the retention cap.
var trimScript = redis.NewScript(`
local sortedSetKey = KEYS[1]
local maxKeepCount = tonumber(ARGV[1])
if maxKeepCount <= 0 then return 0 end

local totalCount = redis.call("ZCARD", sortedSetKey)
if totalCount <= maxKeepCount then return 0 end

local excessCount = totalCount - maxKeepCount
local oldRecordKeys = redis.call("ZRANGE", sortedSetKey, 0, excessCount - 1)

for i, recordKey in ipairs(oldRecordKeys) do
  redis.call("DEL", recordKey)
end

redis.call("ZREMRANGEBYRANK", sortedSetKey, 0, excessCount - 1)
return excessCount
`)

// Redis implements Store and History on a Redis client. Counters rely on
// INCR plus a first-write expiry, so window rollover is Redis's problem.
type Redis struct {
	client    *redis.Client
	namespace string
	maxKeep   int64
	recordTTL time.Duration
}

func NewRedis(client *redis.Client, namespace string, maxKeep int64) *Redis {
	return &Redis{
		client:    client,
		namespace: namespace,
		maxKeep:   maxKeep,
		recordTTL: defaultRecordTTL,
	}
}

func (s *Redis) key(format, suffix string) string {
	return fmt.Sprintf(format, s.namespace, suffix)
}

func (s *Redis) seqKey() string   { return fmt.Sprintf(keyRecordSeq, s.namespace) }
func (s *Redis) timesKey() string { return fmt.Sprintf(keyRecordTimes, s.namespace) }

func (s *Redis) GetSubscriber(ctx context.Context, id string) (notify.Subscriber, error) {
	raw, err := s.client.Get(ctx, s.key(keySubscriberFormat, id)).Result()
	if err == redis.Nil {
		return notify.Subscriber{}, notify.ErrSubscriberNotFound
	}
	if err != nil {
		return notify.Subscriber{}, fmt.Errorf("get subscriber: %w", err)
	}
	var sub notify.Subscriber
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return notify.Subscriber{}, fmt.Errorf("decode subscriber %s: %w", id, err)
	}
	return sub, nil
}

// PutSubscriber stores a subscriber profile.
func (s *Redis) PutSubscriber(ctx context.Context, sub notify.Subscriber) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode subscriber: %w", err)
	}
	return s.client.Set(ctx, s.key(keySubscriberFormat, sub.ID), raw, 0).Err()
}

func (s *Redis) GetSubscriptions(ctx context.Context, subscriberID string) ([]notify.Subscription, error) {
	ids, err := s.client.SMembers(ctx, s.key(keySubsIndexFormat, subscriberID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	out := make([]notify.Subscription, 0, len(ids))
	for _, id := range ids {
		raw, err := s.client.Get(ctx, s.key(keySubscriptionFormat, id)).Result()
		if err == redis.Nil {
			continue // index entry outlived the record
		}
		if err != nil {
			return nil, fmt.Errorf("get subscription %s: %w", id, err)
		}
		var sub notify.Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			return nil, fmt.Errorf("decode subscription %s: %w", id, err)
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s *Redis) SaveSubscription(ctx context.Context, sub notify.Subscription) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode subscription: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(keySubscriptionFormat, sub.ID), raw, 0)
	pipe.SAdd(ctx, s.key(keySubsIndexFormat, sub.SubscriberID), sub.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Redis) InvalidateSubscription(ctx context.Context, id string) error {
	return s.mutateSubscription(ctx, id, func(sub *notify.Subscription) {
		sub.Status = notify.SubscriptionInvalid
	})
}

func (s *Redis) TouchSubscription(ctx context.Context, id string, at time.Time) error {
	return s.mutateSubscription(ctx, id, func(sub *notify.Subscription) {
		sub.LastUsedAt = at
	})
}

// mutateSubscription applies a read-modify-write under WATCH so concurrent
// invalidations of the same subscription serialize.
func (s *Redis) mutateSubscription(ctx context.Context, id string, mutate func(*notify.Subscription)) error {
	key := s.key(keySubscriptionFormat, id)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return notify.ErrNoSubscription
		}
		if err != nil {
			return err
		}
		var sub notify.Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			return fmt.Errorf("decode subscription %s: %w", id, err)
		}
		mutate(&sub)
		updated, err := json.Marshal(sub)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}, key)
}

func (s *Redis) IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error) {
	full := s.key(keyCounterFormat, key)
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, full)
	if window > 0 {
		pipe.ExpireNX(ctx, full, window)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", key, err)
	}
	return incr.Val(), nil
}

func (s *Redis) CounterValue(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, s.key(keyCounterFormat, key)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", key, err)
	}
	return val, nil
}

func (s *Redis) SaveRecord(ctx context.Context, rec notify.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("record seq: %w", err)
	}
	recordKey := s.key(keyRecordFormat, fmt.Sprintf("%s:%d", rec.RequestID, seq))
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, recordKey, raw, s.recordTTL)
	pipe.ZAdd(ctx, s.timesKey(), redis.Z{Score: float64(seq), Member: recordKey})
	pipe.LPush(ctx, s.key(keyRecordBySub, rec.SubscriberID), recordKey)
	pipe.LTrim(ctx, s.key(keyRecordBySub, rec.SubscriberID), 0, 999)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Redis) Query(ctx context.Context, subscriberID string, limit int64) ([]notify.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var keys []string
	var err error
	if subscriberID != "" {
		keys, err = s.client.LRange(ctx, s.key(keyRecordBySub, subscriberID), 0, limit-1).Result()
	} else {
		keys, err = s.client.ZRevRange(ctx, s.timesKey(), 0, limit-1).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	out := make([]notify.Record, 0, len(keys))
	for _, k := range keys {
		raw, err := s.client.Get(ctx, k).Result()
		if err == redis.Nil {
			continue // trimmed or expired underneath the index
		}
		if err != nil {
			return nil, err
		}
		var rec notify.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Redis) Trim(ctx context.Context) (int, error) {
	evicted, err := trimScript.Run(ctx, s.client,
		[]string{s.timesKey()}, s.maxKeep).Int()
	if err != nil {
		return 0, fmt.Errorf("trim records: %w", err)
	}
	return evicted, nil
}
