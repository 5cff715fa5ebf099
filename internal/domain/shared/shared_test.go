package shared

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_IsMatchesKindAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Persistence("achievement", "Award", cause)

	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "achievement.Award")
}

func TestMalformedEvent(t *testing.T) {
	err := fmt.Errorf("submit: %w", MalformedEvent("Decode", "lessonId", "required"))

	assert.True(t, IsMalformed(err))
	assert.True(t, IsValidation(err))
	assert.False(t, IsRetryable(err))
}

func TestSentinelDomainErrors(t *testing.T) {
	assert.True(t, IsNotFound(ErrAchievementNotFound))
	assert.True(t, errors.Is(ErrSnapshotConflict, ErrOptimisticLock))
	assert.True(t, IsRetryable(ErrSnapshotConflict))
	assert.True(t, errors.Is(ErrEmptyCatalog, ErrRegistryLoad))
}

func TestNewUserID(t *testing.T) {
	id, err := NewUserID("  user-42 ")
	require.NoError(t, err)
	assert.Equal(t, UserID("user-42"), id)

	_, err = NewUserID("")
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = NewUserID("has space")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestNewAchievementID(t *testing.T) {
	_, err := NewAchievementID("first-lesson")
	assert.NoError(t, err)

	_, err = NewAchievementID("First Lesson")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestSubjectKey(t *testing.T) {
	assert.Equal(t, "criminal law", SubjectKey("  Criminal   Law "))
	assert.Equal(t, SubjectKey("CRIMINAL LAW"), SubjectKey("criminal law"))
}

func TestEventEnvelope(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	evt := NewAchievementUnlockedEvent("u1", "first-lesson", "First Steps", "📘", at)
	evt.BaseEvent = evt.BaseEvent.WithCorrelationID("evt-1")

	env, err := NewEventEnvelope("env-1", evt)
	require.NoError(t, err)
	assert.Equal(t, EventAchievementUnlocked, env.Type)
	assert.Equal(t, "u1", env.AggregateID)
	assert.Equal(t, "evt-1", env.CorrelationID)
	assert.Contains(t, string(env.Payload), `"achievement_id":"first-lesson"`)
}
