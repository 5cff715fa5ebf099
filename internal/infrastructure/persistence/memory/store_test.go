package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexprep/achievement-engine/internal/domain/achievement"
	"github.com/lexprep/achievement-engine/internal/domain/activity"
	"github.com/lexprep/achievement-engine/internal/domain/progress"
	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

func TestSnapshotStore_OptimisticVersioning(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()

	_, err := store.Get(ctx, "u1")
	assert.ErrorIs(t, err, shared.ErrSnapshotNotFound)

	s := progress.NewSnapshot("u1")
	s.LessonsCompleted = 1
	require.NoError(t, store.Save(ctx, s, 0))
	assert.Equal(t, int64(1), s.Version)

	// A second writer that also started from "absent" loses.
	other := progress.NewSnapshot("u1")
	assert.ErrorIs(t, store.Save(ctx, other, 0), shared.ErrSnapshotConflict)

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	got.LessonsCompleted = 2
	require.NoError(t, store.Save(ctx, got, 1))
	assert.Equal(t, int64(2), got.Version)

	// Stale version.
	s.LessonsCompleted = 99
	assert.ErrorIs(t, store.Save(ctx, s, 1), shared.ErrSnapshotConflict)

	require.NoError(t, store.Delete(ctx, "u1"))
	_, err = store.Get(ctx, "u1")
	assert.ErrorIs(t, err, shared.ErrSnapshotNotFound)
}

func TestSnapshotStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()

	s := progress.NewSnapshot("u1")
	s.PerSubjectEssays = map[string]int{"tort": 1}
	require.NoError(t, store.Save(ctx, s, 0))

	s.PerSubjectEssays["tort"] = 50

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.PerSubjectEssays["tort"])
}

func TestUnlockStore_InsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewUnlockStore()
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	created, err := store.InsertIfAbsent(ctx, achievement.NewUnlockRecord("u1", "first-lesson", at))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.InsertIfAbsent(ctx, achievement.NewUnlockRecord("u1", "first-lesson", at.Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, created)

	_, err = store.InsertIfAbsent(ctx, achievement.NewUnlockRecord("u1", "early-bird", at.Add(-time.Hour)))
	require.NoError(t, err)

	recs, err := store.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, shared.AchievementID("early-bird"), recs[0].AchievementID)
	assert.True(t, recs[1].UnlockedAt.Equal(at), "first unlock time is kept")
	assert.Equal(t, 2, store.Count())
}

func TestEventLog_AppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	log := NewEventLog()
	e := activity.Event{UserID: "u1", Kind: activity.KindLessonCompleted, OccurredAt: time.Now()}

	require.NoError(t, log.Append(ctx, "fp:abc", e))
	require.NoError(t, log.Append(ctx, "fp:abc", e))

	events, err := log.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "fp:abc", events[0].ID)
}

func TestCatalog_PreservesOrderOnUpsert(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog(
		achievement.Definition{ID: "b", Title: "B"},
		achievement.Definition{ID: "a", Title: "A"},
	)
	require.NoError(t, c.UpsertDefinitions(ctx, []achievement.Definition{{ID: "b", Title: "B2"}}))

	defs, err := c.LoadDefinitions(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "b", defs[0].ID)
	assert.Equal(t, "B2", defs[0].Title)
}
