package eventhandler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexprep/achievement-engine/internal/domain/shared"
	"github.com/lexprep/achievement-engine/internal/infrastructure/messaging"
)

type fakeNotifier struct {
	got []shared.AchievementUnlockedEvent
	err error
}

func (f *fakeNotifier) Notify(_ context.Context, e shared.AchievementUnlockedEvent) error {
	f.got = append(f.got, e)
	return f.err
}

func TestRegister_RoutesEventsByType(t *testing.T) {
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	notifier := &fakeNotifier{err: errors.New("sink down")}
	rejected := NewOnActivityRejected()
	require.NoError(t, Register(bus, NewOnAchievementUnlocked(notifier, nil), rejected))

	ctx := context.Background()
	now := time.Now()
	require.NoError(t, bus.Publish(ctx, shared.NewAchievementUnlockedEvent("u1", "first-lesson", "First Steps", "", now)))
	require.NoError(t, bus.Publish(ctx, shared.NewActivityRejectedEvent("u1", "e1", "QuizAttempted", "quizId: required", now)))
	require.NoError(t, bus.Publish(ctx, shared.NewActivityRejectedEvent("u1", "e2", "QuizAttempted", "quizId: required", now)))

	require.Len(t, notifier.got, 1, "notifier failure does not surface as a handler error")
	assert.Equal(t, "first-lesson", notifier.got[0].AchievementID)
	assert.Equal(t, map[string]int64{"QuizAttempted": 2}, rejected.Counts())
}
