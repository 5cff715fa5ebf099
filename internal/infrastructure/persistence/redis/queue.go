package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Queue is a bounded Redis list used as a work queue: producers LPUSH,
// consumers BRPOP from the other end.
type Queue struct {
	client *Client
	key    string
	maxLen int64
}

// NewQueue creates a queue named name. A positive maxLen caps the list,
// dropping the oldest entries.
func NewQueue(client *Client, name string, maxLen int64) *Queue {
	return &Queue{client: client, key: client.QueueKey(name), maxLen: maxLen}
}

// Key returns the Redis key of the list.
func (q *Queue) Key() string {
	return q.key
}

// Push encodes v as JSON and enqueues it.
func (q *Queue) Push(ctx context.Context, v any) error {
	return q.client.pushJSON(ctx, q.key, v, q.maxLen)
}

// Pop removes the oldest entry and decodes it into dest. It reports false
// when the queue is empty.
func (q *Queue) Pop(ctx context.Context, dest any) (bool, error) {
	data, err := q.client.rdb.RPop(ctx, q.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return true, nil
}

// Len returns the number of queued entries.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.rdb.LLen(ctx, q.key).Result()
}
