package query

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexprep/achievement-engine/internal/domain/achievement"
	"github.com/lexprep/achievement-engine/internal/domain/progress"
	"github.com/lexprep/achievement-engine/internal/domain/shared"
	"github.com/lexprep/achievement-engine/internal/infrastructure/persistence/memory"
)

func registry(t *testing.T) *achievement.Registry {
	t.Helper()
	reg, err := achievement.NewRegistry([]achievement.Definition{
		{ID: "first-lesson", Title: "First Steps", Type: achievement.TypeLessonMilestone, Points: 10, Condition: json.RawMessage(`{"lessonsCompleted":1}`)},
		{ID: "streak-3", Title: "On a Roll", Type: achievement.TypeStreakMilestone, Points: 15, Condition: json.RawMessage(`{"streak":3}`)},
	}, achievement.DefaultLimits())
	require.NoError(t, err)
	return reg
}

func TestListCatalog(t *testing.T) {
	h := NewListCatalogHandler(registry(t))

	res, err := h.Handle(context.Background(), ListCatalogQuery{})
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)
	assert.Equal(t, "first-lesson", res.Achievements[0].ID)
	assert.JSONEq(t, `{"lessonsCompleted":1}`, string(res.Achievements[0].Condition))

	res, err = h.Handle(context.Background(), ListCatalogQuery{Type: "STREAK_MILESTONE"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "streak-3", res.Achievements[0].ID)

	_, err = h.Handle(context.Background(), ListCatalogQuery{Type: "NOPE"})
	assert.Error(t, err)
}

func TestListUserAchievements(t *testing.T) {
	ctx := context.Background()
	unlocks := memory.NewUnlockStore()
	snaps := memory.NewSnapshotStore()
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	_, err := unlocks.InsertIfAbsent(ctx, achievement.NewUnlockRecord("u1", "first-lesson", at))
	require.NoError(t, err)
	_, err = unlocks.InsertIfAbsent(ctx, achievement.NewUnlockRecord("u1", "retired-badge", at))
	require.NoError(t, err)

	s := progress.NewSnapshot("u1")
	s.LessonsCompleted = 4
	require.NoError(t, snaps.Save(ctx, s, 0))

	h := NewListUserAchievementsHandler(registry(t), unlocks, snaps)

	res, err := h.Handle(ctx, ListUserAchievementsQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalCount)
	assert.Equal(t, 1, res.UnlockedCount)
	assert.Equal(t, 10, res.Points)
	require.Len(t, res.Achievements, 2)
	assert.True(t, res.Achievements[0].Unlocked)
	require.NotNil(t, res.Achievements[0].UnlockedAt)
	assert.True(t, res.Achievements[0].UnlockedAt.Equal(at))
	assert.False(t, res.Achievements[1].Unlocked)
	require.NotNil(t, res.Progress)
	assert.Equal(t, 4, res.Progress.LessonsCompleted)

	res, err = h.Handle(ctx, ListUserAchievementsQuery{UserID: "u1", OnlyUnlocked: true})
	require.NoError(t, err)
	assert.Len(t, res.Achievements, 1)
}

func TestListUserAchievements_FreshUser(t *testing.T) {
	h := NewListUserAchievementsHandler(registry(t), memory.NewUnlockStore(), memory.NewSnapshotStore())

	res, err := h.Handle(context.Background(), ListUserAchievementsQuery{UserID: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.UnlockedCount)
	assert.Nil(t, res.Progress)

	_, err = h.Handle(context.Background(), ListUserAchievementsQuery{UserID: "  "})
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}
