package messaging

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

func unlockedEvent(user string) shared.Event {
	return shared.NewAchievementUnlockedEvent(user, "first-lesson", "First Steps", "📘", time.Now())
}

func TestInMemoryEventBus_SyncDeliversToTypedAndGlobalHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	var typed, global int
	require.NoError(t, bus.Subscribe(shared.EventAchievementUnlocked, func(ctx context.Context, e shared.Event) error {
		typed++
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(ctx context.Context, e shared.Event) error {
		global++
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), unlockedEvent("u1")))

	assert.Equal(t, 1, typed)
	assert.Equal(t, 1, global)
}

func TestInMemoryEventBus_SyncReturnsHandlerErrors(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	boom := errors.New("boom")
	require.NoError(t, bus.SubscribeAll(func(ctx context.Context, e shared.Event) error { return boom }))

	err := bus.Publish(context.Background(), unlockedEvent("u1"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), bus.Stats().Failed)
}

func TestInMemoryEventBus_AsyncRecoversPanics(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())

	var calls atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(ctx context.Context, e shared.Event) error {
		calls.Add(1)
		panic("handler bug")
	}))

	require.NoError(t, bus.Publish(context.Background(), unlockedEvent("u1")))
	bus.Drain()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(1), bus.Stats().Failed)
	require.NoError(t, bus.Close())
}

func TestInMemoryEventBus_ClosedBusRejects(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), unlockedEvent("u1")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(context.Context, shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestDeadLetterQueue_EvictsOldest(t *testing.T) {
	q := NewDeadLetterQueue(2)
	q.Add(DeadLetterEntry{Event: unlockedEvent("a")})
	q.Add(DeadLetterEntry{Event: unlockedEvent("b")})
	q.Add(DeadLetterEntry{Event: unlockedEvent("c")})

	assert.Equal(t, 2, q.Size())
	assert.Equal(t, int64(1), q.Dropped())

	first, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", first.Event.AggregateID())
}
