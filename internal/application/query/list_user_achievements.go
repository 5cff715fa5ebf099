package query

import (
	"context"
	"errors"
	"time"

	"github.com/lexprep/achievement-engine/internal/domain/achievement"
	"github.com/lexprep/achievement-engine/internal/domain/progress"
	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST USER ACHIEVEMENTS QUERY
// The catalog annotated with one user's unlocks, plus a short progress
// summary from their snapshot.
// ══════════════════════════════════════════════════════════════════════════════

// ListUserAchievementsQuery selects the user.
type ListUserAchievementsQuery struct {
	UserID string

	// OnlyUnlocked drops locked entries from the result.
	OnlyUnlocked bool
}

// UserAchievementDTO is a catalog entry with the user's unlock state.
type UserAchievementDTO struct {
	AchievementDTO
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlockedAt,omitempty"`
}

// ProgressSummaryDTO exposes headline counters from the snapshot.
type ProgressSummaryDTO struct {
	LessonsCompleted     int       `json:"lessonsCompleted"`
	QuizzesCompleted     int       `json:"quizzesCompleted"`
	QuizAccuracy         float64   `json:"quizAccuracy"`
	EssaysSubmitted      int       `json:"essaysSubmitted"`
	SimulationsCompleted int       `json:"simulationsCompleted"`
	CurrentStreakDays    int       `json:"currentStreakDays"`
	BestStreakDays       int       `json:"bestStreakDays"`
	TotalStudyMinutes    float64   `json:"totalStudyMinutes"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// ListUserAchievementsResult is the query result.
type ListUserAchievementsResult struct {
	UserID        string               `json:"userId"`
	Achievements  []UserAchievementDTO `json:"achievements"`
	UnlockedCount int                  `json:"unlockedCount"`
	TotalCount    int                  `json:"totalCount"`
	Points        int                  `json:"points"`
	Progress      *ProgressSummaryDTO  `json:"progress,omitempty"`
}

// ListUserAchievementsHandler handles the query. Snapshots is optional.
type ListUserAchievementsHandler struct {
	registry  *achievement.Registry
	unlocks   achievement.UnlockRepository
	snapshots progress.Repository
}

// NewListUserAchievementsHandler creates the handler.
func NewListUserAchievementsHandler(registry *achievement.Registry, unlocks achievement.UnlockRepository, snapshots progress.Repository) *ListUserAchievementsHandler {
	return &ListUserAchievementsHandler{registry: registry, unlocks: unlocks, snapshots: snapshots}
}

// Handle executes the query. Unlocks for achievements no longer in the
// catalog are left out of the listing.
func (h *ListUserAchievementsHandler) Handle(ctx context.Context, q ListUserAchievementsQuery) (*ListUserAchievementsResult, error) {
	userID, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, err
	}

	recs, err := h.unlocks.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	unlockedAt := make(map[shared.AchievementID]time.Time, len(recs))
	for _, r := range recs {
		unlockedAt[r.AchievementID] = r.UnlockedAt
	}

	all := h.registry.All()
	result := &ListUserAchievementsResult{
		UserID:       userID.String(),
		Achievements: make([]UserAchievementDTO, 0, len(all)),
		TotalCount:   len(all),
	}
	for _, a := range all {
		dto := UserAchievementDTO{AchievementDTO: toDTO(a)}
		if at, ok := unlockedAt[a.ID]; ok {
			at := at
			dto.Unlocked = true
			dto.UnlockedAt = &at
			result.UnlockedCount++
			result.Points += a.Points
		}
		if q.OnlyUnlocked && !dto.Unlocked {
			continue
		}
		result.Achievements = append(result.Achievements, dto)
	}

	if h.snapshots != nil {
		s, err := h.snapshots.Get(ctx, userID)
		switch {
		case err == nil:
			result.Progress = summarize(s)
		case !errors.Is(err, shared.ErrSnapshotNotFound):
			return nil, err
		}
	}
	return result, nil
}

func summarize(s *progress.Snapshot) *ProgressSummaryDTO {
	return &ProgressSummaryDTO{
		LessonsCompleted:     s.LessonsCompleted,
		QuizzesCompleted:     s.QuizzesCompleted,
		QuizAccuracy:         s.QuizAccuracy(),
		EssaysSubmitted:      s.EssaysSubmitted,
		SimulationsCompleted: s.SimulationsCompleted,
		CurrentStreakDays:    s.CurrentStreakDays,
		BestStreakDays:       s.BestStreakDays,
		TotalStudyMinutes:    s.TotalStudyMinutes,
		UpdatedAt:            s.UpdatedAt,
	}
}
