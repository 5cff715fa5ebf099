package command

import (
	"context"
	"time"

	"github.com/lexprep/achievement-engine/internal/domain/achievement"
	"github.com/lexprep/achievement-engine/internal/domain/shared"
	"github.com/lexprep/achievement-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARDER
// ══════════════════════════════════════════════════════════════════════════════

// AwardResult is the outcome of one award attempt.
type AwardResult struct {
	Record        achievement.UnlockRecord
	NewlyUnlocked bool
}

// Awarder persists unlocks. The store's uniqueness constraint on
// (user, achievement) decides which of several concurrent callers wins;
// losers get NewlyUnlocked=false, never an error.
type Awarder struct {
	unlocks achievement.UnlockRepository
	retrier *retry.Retrier
}

// NewAwarder creates an Awarder. Transient store errors are retried.
func NewAwarder(unlocks achievement.UnlockRepository) *Awarder {
	return &Awarder{
		unlocks: unlocks,
		retrier: retry.PersistenceRetrier(shared.IsRetryable),
	}
}

// Award records that userID unlocked achievementID at the given time.
func (a *Awarder) Award(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID, at time.Time) (AwardResult, error) {
	rec := achievement.NewUnlockRecord(userID, achievementID, at)

	var created bool
	err := a.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		created, err = a.unlocks.InsertIfAbsent(ctx, rec)
		return err
	})
	if err != nil {
		return AwardResult{}, err
	}
	return AwardResult{Record: rec, NewlyUnlocked: created}, nil
}
