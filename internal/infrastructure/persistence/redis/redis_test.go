package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

// offlineClient points at a port nothing listens on. Only code paths that
// fail before or at dial time are exercised.
func offlineClient(t *testing.T) *Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	c := NewClientFrom(rdb, "test:")
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestKeys(t *testing.T) {
	c := offlineClient(t)

	assert.Equal(t, "test:lock:user:u-1", c.LockKey("u-1"))
	assert.Equal(t, "test:queue:unlocks", c.QueueKey("unlocks"))
	assert.Equal(t, "test:queue:unlocks", NewQueue(c, "unlocks", 10).Key())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr())
	assert.Equal(t, "achv:", cfg.KeyPrefix)
}

func TestQueuePush_EncodingFailure(t *testing.T) {
	q := NewQueue(offlineClient(t), "unlocks", 0)

	err := q.Push(context.Background(), map[string]any{"ch": make(chan int)})
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestPushJSON_EmptyKey(t *testing.T) {
	c := offlineClient(t)
	assert.ErrorIs(t, c.pushJSON(context.Background(), "", "x", 0), ErrKeyEmpty)
}

func TestNewUserLease_FillsDefaults(t *testing.T) {
	l := NewUserLease(offlineClient(t), LeaseConfig{TTL: 3 * time.Second})

	assert.Equal(t, 3*time.Second, l.cfg.TTL)
	assert.Equal(t, DefaultLeaseConfig().Wait, l.cfg.Wait)
	assert.Equal(t, DefaultLeaseConfig().RetryInterval, l.cfg.RetryInterval)
}

func TestUserLease_UnreachableIsRetryable(t *testing.T) {
	l := NewUserLease(offlineClient(t), DefaultLeaseConfig())
	userID, err := shared.NewUserID("u-1")
	require.NoError(t, err)

	release, err := l.Lock(context.Background(), userID)
	require.Error(t, err)
	assert.Nil(t, release)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.True(t, shared.IsRetryable(err))
}
