package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

// releaseScript deletes the lease only if it still carries our token, so an
// expired lease taken over by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LeaseConfig tunes the per-user lease.
type LeaseConfig struct {
	// TTL bounds how long a crashed holder can block a user.
	TTL time.Duration

	// Wait is how long Acquire keeps retrying before giving up.
	Wait time.Duration

	// RetryInterval is the pause between attempts.
	RetryInterval time.Duration
}

// DefaultLeaseConfig returns the default lease settings.
func DefaultLeaseConfig() LeaseConfig {
	return LeaseConfig{
		TTL:           10 * time.Second,
		Wait:          5 * time.Second,
		RetryInterval: 25 * time.Millisecond,
	}
}

// UserLease is a cross-instance mutual exclusion per user id built on
// SET NX PX. It complements the in-process lock table.
type UserLease struct {
	client *Client
	cfg    LeaseConfig
}

// NewUserLease creates a UserLease.
func NewUserLease(client *Client, cfg LeaseConfig) *UserLease {
	def := DefaultLeaseConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.Wait <= 0 {
		cfg.Wait = def.Wait
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	return &UserLease{client: client, cfg: cfg}
}

// Lock blocks until the user's lease is held, ctx ends or the wait budget
// runs out. The returned function releases the lease.
func (l *UserLease) Lock(ctx context.Context, userID shared.UserID) (func(), error) {
	key := l.client.LockKey(userID.String())
	token := uuid.NewString()
	deadline := time.Now().Add(l.cfg.Wait)

	for {
		ok, err := l.client.rdb.SetNX(ctx, key, token, l.cfg.TTL).Result()
		if err != nil {
			return nil, shared.WrapError("redis", "Lock", shared.ErrServiceUnavailable, "lease acquisition failed", err)
		}
		if ok {
			return func() {
				// Release with a fresh context: the caller's may already be done.
				rctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseScript.Run(rctx, l.client.rdb, []string{key}, token).Err()
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, shared.NewDomainError("redis", "Lock", shared.ErrLockNotAcquired,
				fmt.Sprintf("user %s is locked by another instance", userID))
		}

		timer := time.NewTimer(l.cfg.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, shared.WrapError("redis", "Lock", shared.ErrTimeout, "lease wait cancelled", ctx.Err())
			}
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
