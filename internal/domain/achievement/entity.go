// Package achievement contains the achievement catalog model: typed condition
// variants, the pure condition evaluator, the immutable registry and the
// unlock record whose uniqueness per (user, achievement) is the core
// invariant of the engine.
package achievement

import (
	"encoding/json"
	"time"

	"github.com/lexprep/achievement-engine/internal/domain/activity"
	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TYPE
// ══════════════════════════════════════════════════════════════════════════════

// Type is the closed set of achievement families. Each type has its own
// condition shape (see condition.go).
type Type string

const (
	TypeLessonMilestone   Type = "LESSON_MILESTONE"
	TypeStreakMilestone   Type = "STREAK_MILESTONE"
	TypeQuizAccuracy      Type = "QUIZ_ACCURACY"
	TypePracticeMilestone Type = "PRACTICE_MILESTONE"
	TypeExamSimulation    Type = "EXAM_SIMULATION"
	TypeSubjectMastery    Type = "SUBJECT_MASTERY"
	TypeImprovement       Type = "IMPROVEMENT_ACHIEVEMENT"
	TypeTime              Type = "TIME_ACHIEVEMENT"
	TypeCaseLawMastery    Type = "CASE_LAW_MASTERY"
	TypeCombo             Type = "COMBO_ACHIEVEMENT"
)

// AllTypes lists every achievement type in catalog display order.
var AllTypes = []Type{
	TypeLessonMilestone,
	TypeStreakMilestone,
	TypeQuizAccuracy,
	TypePracticeMilestone,
	TypeExamSimulation,
	TypeSubjectMastery,
	TypeImprovement,
	TypeTime,
	TypeCaseLawMastery,
	TypeCombo,
}

// interest maps each type to the event kinds that can change the metrics its
// conditions read. A nil entry means every kind (streaks and day windows move
// on any activity).
var interest = map[Type][]activity.Kind{
	TypeLessonMilestone:   {activity.KindLessonCompleted},
	TypeStreakMilestone:   nil,
	TypeQuizAccuracy:      {activity.KindQuizAttempted},
	TypePracticeMilestone: {activity.KindEssaySubmitted, activity.KindQuizAttempted},
	TypeExamSimulation:    {activity.KindSimulationCompleted},
	TypeSubjectMastery:    {activity.KindEssaySubmitted, activity.KindLessonCompleted},
	TypeImprovement:       {activity.KindQuizAttempted, activity.KindEssaySubmitted},
	TypeTime:              nil,
	TypeCaseLawMastery:    {activity.KindCaseReferenced},
	TypeCombo:             nil,
}

// IsValid reports whether t is one of the known types.
func (t Type) IsValid() bool {
	_, ok := interest[t]
	return ok
}

// AffectedBy reports whether an event of kind k can change the outcome of a
// condition of this type. Unknown kinds affect nothing.
func (t Type) AffectedBy(k activity.Kind) bool {
	if !k.IsKnown() {
		return false
	}
	kinds, ok := interest[t]
	if !ok {
		return false
	}
	if kinds == nil {
		return true
	}
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// String returns the string representation of Type.
func (t Type) String() string {
	return string(t)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Definition is an achievement as stored in the catalog, with the condition
// still in its serialised form. Definitions become Achievements only through
// NewRegistry, which validates every condition against its type.
type Definition struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Icon        string          `json:"icon"`
	Type        Type            `json:"type"`
	Points      int             `json:"points"`
	Condition   json.RawMessage `json:"condition"`
}

// Achievement is a validated, immutable catalog entry.
type Achievement struct {
	ID          shared.AchievementID
	Title       string
	Description string
	Icon        string
	Type        Type
	Points      int
	Condition   Condition

	// RawCondition is the descriptor as loaded, kept for read surfaces.
	RawCondition json.RawMessage
}

// Definition converts the achievement back to its catalog form.
func (a Achievement) Definition() Definition {
	return Definition{
		ID:          a.ID.String(),
		Title:       a.Title,
		Description: a.Description,
		Icon:        a.Icon,
		Type:        a.Type,
		Points:      a.Points,
		Condition:   a.RawCondition,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK RECORD
// ══════════════════════════════════════════════════════════════════════════════

// UnlockRecord is the durable fact that a user satisfied an achievement.
// At most one record exists per (UserID, AchievementID); records are never
// updated or deleted.
type UnlockRecord struct {
	UserID        shared.UserID        `json:"userId"`
	AchievementID shared.AchievementID `json:"achievementId"`
	UnlockedAt    time.Time            `json:"unlockedAt"`
}

// NewUnlockRecord creates an unlock record, normalising the time to UTC.
func NewUnlockRecord(userID shared.UserID, achievementID shared.AchievementID, at time.Time) UnlockRecord {
	return UnlockRecord{
		UserID:        userID,
		AchievementID: achievementID,
		UnlockedAt:    at.UTC(),
	}
}
