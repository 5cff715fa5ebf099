// Package command contains the engine's write operations.
package command

import (
	"context"

	"github.com/cespare/xxhash/v2"

	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

// UserLocker serialises work for one user. The returned function releases
// the lock and must be called exactly once.
type UserLocker interface {
	Lock(ctx context.Context, userID shared.UserID) (func(), error)
}

// ══════════════════════════════════════════════════════════════════════════════
// LOCK TABLE
// ══════════════════════════════════════════════════════════════════════════════

// LockTable is a fixed set of in-process mutexes keyed by user id hash.
// Users sharing a shard wait on each other; distinct shards run in parallel.
// Shards are one-slot channels so waiting honours ctx.
type LockTable struct {
	shards []chan struct{}
}

// DefaultLockShards is the shard count used when none is configured.
const DefaultLockShards = 256

// NewLockTable creates a table with n shards.
func NewLockTable(n int) *LockTable {
	if n <= 0 {
		n = DefaultLockShards
	}
	t := &LockTable{shards: make([]chan struct{}, n)}
	for i := range t.shards {
		t.shards[i] = make(chan struct{}, 1)
	}
	return t
}

// Lock blocks until the user's shard is free or ctx ends.
func (t *LockTable) Lock(ctx context.Context, userID shared.UserID) (func(), error) {
	shard := t.shards[xxhash.Sum64String(userID.String())%uint64(len(t.shards))]
	select {
	case shard <- struct{}{}:
		return func() { <-shard }, nil
	case <-ctx.Done():
		return nil, shared.WrapError("command", "Lock", shared.ErrTimeout, "waiting for user lock", ctx.Err())
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Chained lockers
// ─────────────────────────────────────────────────────────────────────────────

// ChainLockers acquires each locker in order and releases in reverse. A nil
// entry is skipped, so an optional distributed lease can be passed as is.
func ChainLockers(lockers ...UserLocker) UserLocker {
	var present []UserLocker
	for _, l := range lockers {
		if l != nil {
			present = append(present, l)
		}
	}
	return chain(present)
}

type chain []UserLocker

func (c chain) Lock(ctx context.Context, userID shared.UserID) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, l := range c {
		release, err := l.Lock(ctx, userID)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
