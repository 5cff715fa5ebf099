// Package memory provides thread-safe in-process implementations of the
// engine's repositories. They back tests and the single-node "memory"
// storage driver.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/lexprep/achievement-engine/internal/domain/achievement"
	"github.com/lexprep/achievement-engine/internal/domain/activity"
	"github.com/lexprep/achievement-engine/internal/domain/progress"
	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOTS
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotStore implements progress.Repository. Stored snapshots are cloned
// on the way in and out so callers never share state with the store.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[shared.UserID]*progress.Snapshot
}

// NewSnapshotStore creates an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{data: make(map[shared.UserID]*progress.Snapshot)}
}

func (m *SnapshotStore) Get(_ context.Context, userID shared.UserID) (*progress.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.data[userID]
	if !ok {
		return nil, shared.ErrSnapshotNotFound
	}
	return s.Clone(), nil
}

func (m *SnapshotStore) Save(_ context.Context, s *progress.Snapshot, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current int64
	if stored, ok := m.data[s.UserID]; ok {
		current = stored.Version
	}
	if current != expectedVersion {
		return shared.ErrSnapshotConflict
	}

	s.Version = expectedVersion + 1
	m.data[s.UserID] = s.Clone()
	return nil
}

func (m *SnapshotStore) Delete(_ context.Context, userID shared.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, userID)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK RECORDS
// ══════════════════════════════════════════════════════════════════════════════

// UnlockStore implements achievement.UnlockRepository.
type UnlockStore struct {
	mu     sync.RWMutex
	byUser map[shared.UserID]map[shared.AchievementID]achievement.UnlockRecord
}

// NewUnlockStore creates an empty store.
func NewUnlockStore() *UnlockStore {
	return &UnlockStore{byUser: make(map[shared.UserID]map[shared.AchievementID]achievement.UnlockRecord)}
}

// InsertIfAbsent stores rec unless the (user, achievement) pair exists.
func (m *UnlockStore) InsertIfAbsent(_ context.Context, rec achievement.UnlockRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user := m.byUser[rec.UserID]
	if user == nil {
		user = make(map[shared.AchievementID]achievement.UnlockRecord)
		m.byUser[rec.UserID] = user
	}
	if _, exists := user[rec.AchievementID]; exists {
		return false, nil
	}
	user[rec.AchievementID] = rec
	return true, nil
}

// ListByUser returns the user's unlocks ordered by unlock time, then id.
func (m *UnlockStore) ListByUser(_ context.Context, userID shared.UserID) ([]achievement.UnlockRecord, error) {
	m.mu.RLock()
	out := make([]achievement.UnlockRecord, 0, len(m.byUser[userID]))
	for _, rec := range m.byUser[userID] {
		out = append(out, rec)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UnlockedAt.Equal(out[j].UnlockedAt) {
			return out[i].UnlockedAt.Before(out[j].UnlockedAt)
		}
		return out[i].AchievementID < out[j].AchievementID
	})
	return out, nil
}

// Count returns the total number of unlock records.
func (m *UnlockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, user := range m.byUser {
		n += len(user)
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT LOG
// ══════════════════════════════════════════════════════════════════════════════

// EventLog implements activity.Log.
type EventLog struct {
	mu     sync.RWMutex
	byUser map[shared.UserID][]activity.Event
	seen   map[shared.UserID]map[string]struct{}
}

// NewEventLog creates an empty log.
func NewEventLog() *EventLog {
	return &EventLog{
		byUser: make(map[shared.UserID][]activity.Event),
		seen:   make(map[shared.UserID]map[string]struct{}),
	}
}

func (m *EventLog) Append(_ context.Context, key string, e activity.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := m.seen[e.UserID]
	if keys == nil {
		keys = make(map[string]struct{})
		m.seen[e.UserID] = keys
	}
	if _, dup := keys[key]; dup {
		return nil
	}
	keys[key] = struct{}{}

	// Replay needs a stable key even for events that arrived without an id.
	if e.ID == "" {
		e.ID = key
	}
	m.byUser[e.UserID] = append(m.byUser[e.UserID], e)
	return nil
}

func (m *EventLog) ListByUser(_ context.Context, userID shared.UserID) ([]activity.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]activity.Event, len(m.byUser[userID]))
	copy(out, m.byUser[userID])
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Catalog implements achievement.CatalogSource and achievement.CatalogWriter.
// Definitions keep their first insertion order.
type Catalog struct {
	mu    sync.RWMutex
	order []string
	defs  map[string]achievement.Definition
}

// NewCatalog creates a catalog holding defs.
func NewCatalog(defs ...achievement.Definition) *Catalog {
	c := &Catalog{defs: make(map[string]achievement.Definition)}
	_ = c.UpsertDefinitions(context.Background(), defs)
	return c
}

func (c *Catalog) LoadDefinitions(_ context.Context) ([]achievement.Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]achievement.Definition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.defs[id])
	}
	return out, nil
}

func (c *Catalog) UpsertDefinitions(_ context.Context, defs []achievement.Definition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, d := range defs {
		if _, exists := c.defs[d.ID]; !exists {
			c.order = append(c.order, d.ID)
		}
		c.defs[d.ID] = d
	}
	return nil
}
