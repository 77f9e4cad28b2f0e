// Package redis provides a notify.Queue backed by Redis so that several
// apiwatch processes share one notification inbox per user.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/ryhazerus/apiwatch/notify"
)

// Compile-time interface check.
var _ notify.Queue = (*RedisQueue)(nil)

// RedisQueue keeps each user's notifications in two keys: a list of ids
// preserving arrival order and a hash from id to the JSON document.
type RedisQueue struct {
	client     *redis.Client
	maxPerUser int

	beforeWrite func() // test hook, runs between the read and the write of MarkRead
}

// markReadAttempts bounds how often MarkRead retries after losing a WATCH.
const markReadAttempts = 5

// NewRedisQueue creates a Redis-backed queue keeping at most maxPerUser
// notifications per user. A non-positive value selects
// notify.DefaultMaxPerUser.
func NewRedisQueue(client *redis.Client, maxPerUser int) *RedisQueue {
	if maxPerUser <= 0 {
		maxPerUser = notify.DefaultMaxPerUser
	}
	return &RedisQueue{client: client, maxPerUser: maxPerUser}
}

func idsKey(userID string) string   { return "apiwatch:notify:" + userID + ":ids" }
func itemsKey(userID string) string { return "apiwatch:notify:" + userID + ":items" }

// pushScript appends a notification and drops the oldest ones beyond the
// per-user cap.
//
// KEYS[1] = id list
// KEYS[2] = item hash
// ARGV[1] = notification id
// ARGV[2] = notification JSON
// ARGV[3] = cap
var pushScript = redis.NewScript(`
redis.call("RPUSH", KEYS[1], ARGV[1])
redis.call("HSET", KEYS[2], ARGV[1], ARGV[2])
local max = tonumber(ARGV[3])
while redis.call("LLEN", KEYS[1]) > max do
    local old = redis.call("LPOP", KEYS[1])
    redis.call("HDEL", KEYS[2], old)
end
return 1
`)

// ackScript removes one notification from both keys.
//
// KEYS[1] = id list
// KEYS[2] = item hash
// ARGV[1] = notification id
var ackScript = redis.NewScript(`
if redis.call("HDEL", KEYS[2], ARGV[1]) == 0 then
    return 0
end
redis.call("LREM", KEYS[1], 0, ARGV[1])
return 1
`)

func (q *RedisQueue) Push(ctx context.Context, userID string, n notify.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("apiwatch/notify/redis: encode: %w", err)
	}
	keys := []string{idsKey(userID), itemsKey(userID)}
	if err := pushScript.Run(ctx, q.client, keys, n.ID, data, q.maxPerUser).Err(); err != nil {
		return fmt.Errorf("apiwatch/notify/redis: push: %w", err)
	}
	return nil
}

func (q *RedisQueue) List(ctx context.Context, userID string) ([]notify.Notification, error) {
	ids, err := q.client.LRange(ctx, idsKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("apiwatch/notify/redis: list: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	vals, err := q.client.HMGet(ctx, itemsKey(userID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("apiwatch/notify/redis: list: %w", err)
	}

	out := make([]notify.Notification, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// Acked between LRANGE and HMGET.
			continue
		}
		var n notify.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			return nil, fmt.Errorf("apiwatch/notify/redis: decode: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}

// MarkRead rewrites the stored document under WATCH so a concurrent Ack is
// not undone.
func (q *RedisQueue) MarkRead(ctx context.Context, userID, id string) error {
	key := itemsKey(userID)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, id).Result()
		if errors.Is(err, redis.Nil) {
			return notify.ErrNotFound
		}
		if err != nil {
			return err
		}

		var n notify.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			return err
		}
		n.Read = true
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		if q.beforeWrite != nil {
			q.beforeWrite()
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, id, data)
			return nil
		})
		return err
	}

	// A push or ack for the same user touches the watched hash; retry then.
	var err error
	for range markReadAttempts {
		err = q.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}

	if errors.Is(err, notify.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("apiwatch/notify/redis: mark read: %w", err)
	}
	return nil
}

func (q *RedisQueue) Ack(ctx context.Context, userID, id string) error {
	keys := []string{idsKey(userID), itemsKey(userID)}
	removed, err := ackScript.Run(ctx, q.client, keys, id).Int64()
	if err != nil {
		return fmt.Errorf("apiwatch/notify/redis: ack: %w", err)
	}
	if removed == 0 {
		return notify.ErrNotFound
	}
	return nil
}

func (q *RedisQueue) Clear(ctx context.Context, userID string) error {
	if err := q.client.Del(ctx, idsKey(userID), itemsKey(userID)).Err(); err != nil {
		return fmt.Errorf("apiwatch/notify/redis: clear: %w", err)
	}
	return nil
}
