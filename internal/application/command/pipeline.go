package command

import (
	"context"
	"time"

	"github.com/lexprep/achievement-engine/internal/domain/achievement"
	"github.com/lexprep/achievement-engine/internal/domain/activity"
	"github.com/lexprep/achievement-engine/internal/domain/progress"
	"github.com/lexprep/achievement-engine/internal/domain/shared"
	"github.com/lexprep/achievement-engine/pkg/logger"
)

// UnlockedAchievement describes one newly created unlock.
type UnlockedAchievement struct {
	AchievementID string    `json:"achievementId"`
	Title         string    `json:"title"`
	Icon          string    `json:"icon,omitempty"`
	Points        int       `json:"points"`
	UnlockedAt    time.Time `json:"unlockedAt"`
}

// unlockList collects new unlocks in award order, ignoring repeats.
type unlockList struct {
	items []UnlockedAchievement
	seen  map[shared.AchievementID]struct{}
}

func (l *unlockList) add(a achievement.Achievement, at time.Time) {
	if l.seen == nil {
		l.seen = make(map[shared.AchievementID]struct{})
	}
	if _, dup := l.seen[a.ID]; dup {
		return
	}
	l.seen[a.ID] = struct{}{}
	l.items = append(l.items, UnlockedAchievement{
		AchievementID: a.ID.String(),
		Title:         a.Title,
		Icon:          a.Icon,
		Points:        a.Points,
		UnlockedAt:    at,
	})
}

func (l *unlockList) list() []UnlockedAchievement {
	if l.items == nil {
		return []UnlockedAchievement{}
	}
	return l.items
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION PIPELINE
// ══════════════════════════════════════════════════════════════════════════════

// pipeline is the candidate selection, evaluation and award step shared by
// live submission and replay.
type pipeline struct {
	registry *achievement.Registry
	unlocks  achievement.UnlockRepository
	awarder  *Awarder
}

// owned returns the ids the user has already unlocked.
func (p pipeline) owned(ctx context.Context, userID shared.UserID) (map[shared.AchievementID]struct{}, error) {
	recs, err := p.unlocks.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	owned := make(map[shared.AchievementID]struct{}, len(recs))
	for _, r := range recs {
		owned[r.AchievementID] = struct{}{}
	}
	return owned, nil
}

// evaluate tests every candidate the event kind can affect against s and
// awards the matches. owned is updated with every award, new or not.
func (p pipeline) evaluate(
	ctx context.Context,
	e activity.Event,
	s *progress.Snapshot,
	owned map[shared.AchievementID]struct{},
	out *unlockList,
	log *logger.Logger,
) error {
	for _, a := range p.registry.Candidates(e.Kind) {
		if _, done := owned[a.ID]; done {
			continue
		}
		if !achievement.Matches(a.Condition, s) {
			continue
		}

		res, err := p.awarder.Award(ctx, e.UserID, a.ID, e.OccurredAt)
		if err != nil {
			return err
		}
		owned[a.ID] = struct{}{}
		if res.NewlyUnlocked {
			out.add(a, res.Record.UnlockedAt)
			log.Info("achievement unlocked",
				logger.AchievementID(a.ID.String()),
				logger.String("type", a.Type.String()),
			)
		}
	}
	return nil
}
