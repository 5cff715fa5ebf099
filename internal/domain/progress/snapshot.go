// Package progress owns the per-user metric snapshot and the aggregator that
// folds activity events into it. The snapshot is the only input achievement
// conditions may read.
package progress

import (
	"time"

	"github.com/lexprep/achievement-engine/internal/domain/activity"
	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

// QuestionStats tracks repeated attempts at one question.
type QuestionStats struct {
	Attempts    int      `json:"attempts"`
	FirstScore  *float64 `json:"firstScore,omitempty"`
	LatestScore *float64 `json:"latestScore,omitempty"`
}

// Improvement returns latest minus first score, and false while fewer than
// two scored attempts exist.
func (q QuestionStats) Improvement() (float64, bool) {
	if q.FirstScore == nil || q.LatestScore == nil || q.Attempts < 2 {
		return 0, false
	}
	return *q.LatestScore - *q.FirstScore, true
}

// DayBucket summarises one local calendar day of activity.
type DayBucket struct {
	Day            string           `json:"day,omitempty"` // YYYY-MM-DD, empty when unused
	Kinds          activity.KindSet `json:"kinds"`
	EarliestSecond int              `json:"earliestSecond"`
	LatestSecond   int              `json:"latestSecond"`
	Events         int              `json:"events"`
}

// IsZero reports whether the bucket holds no activity.
func (b DayBucket) IsZero() bool {
	return b.Day == "" || b.Events == 0
}

// EventContext holds facts scoped to the most recently applied event.
// Conditions marked event-scoped read these and nothing else.
type EventContext struct {
	Key         string        `json:"key,omitempty"`
	Kind        activity.Kind `json:"kind,omitempty"`
	Day         string        `json:"day,omitempty"`
	PerfectQuiz bool          `json:"perfectQuiz,omitempty"`
}

// Snapshot is the derived metric state for one user.
type Snapshot struct {
	UserID  shared.UserID `json:"userId"`
	Version int64         `json:"version"`

	// Lessons
	LessonsCompleted  int                `json:"lessonsCompleted"`
	PerSubjectLessons map[string]int     `json:"perSubjectLessons,omitempty"`
	ModuleCompletion  map[string]float64 `json:"moduleCompletion,omitempty"`

	// Quizzes
	QuizzesCompleted   int `json:"quizzesCompleted"`
	CorrectAnswers     int `json:"correctAnswers"`
	AnsweredQuestions  int `json:"answeredQuestions"`
	ConsecutiveCorrect int `json:"consecutiveCorrect"`
	PerfectQuizzes     int `json:"perfectQuizzes"`

	// Essays
	EssaysSubmitted      int            `json:"essaysSubmitted"`
	PerSubjectEssays     map[string]int `json:"perSubjectEssays,omitempty"`
	HighScores           int            `json:"highScores"`
	PerSubjectHighScores map[string]int `json:"perSubjectHighScores,omitempty"`
	EssayDurations       []float64      `json:"essayDurations,omitempty"`

	// Simulations
	SimulationsCompleted int     `json:"simulationsCompleted"`
	SimulationsPassed    int     `json:"simulationsPassed"`
	BestSimulationScore  float64 `json:"bestSimulationScore"`

	// Repeated questions
	Questions map[string]QuestionStats `json:"questions,omitempty"`

	// Study time and streaks
	CurrentStreakDays int     `json:"currentStreakDays"`
	BestStreakDays    int     `json:"bestStreakDays"`
	LastStudyDay      string  `json:"lastStudyDay,omitempty"`
	TotalStudyMinutes float64 `json:"totalStudyMinutes"`

	// Case law
	CasesReferenced int `json:"casesReferenced"`
	IrishCasesUsed  int `json:"irishCasesUsed"`

	// Day and week windows
	Today           DayBucket `json:"today"`
	Previous        DayBucket `json:"previous"`
	CurrentWeek     string    `json:"currentWeek,omitempty"`
	LastWeekendWeek string    `json:"lastWeekendWeek,omitempty"`

	LastEvent      EventContext `json:"lastEvent"`
	RecentEventIDs []string     `json:"recentEventIds,omitempty"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// NewSnapshot returns the empty snapshot for a user's first event.
func NewSnapshot(userID shared.UserID) *Snapshot {
	return &Snapshot{UserID: userID}
}

// QuizAccuracy returns the running share of correct answers as a percentage.
// It is 0 before any question has been answered.
func (s *Snapshot) QuizAccuracy() float64 {
	if s.AnsweredQuestions == 0 {
		return 0
	}
	return float64(s.CorrectAnswers) * 100 / float64(s.AnsweredQuestions)
}

// WeekendStudyThisWeek reports whether the user studied on a weekend day of
// the ISO week containing their latest activity.
func (s *Snapshot) WeekendStudyThisWeek() bool {
	return s.LastWeekendWeek != "" && s.LastWeekendWeek == s.CurrentWeek
}

// StudiedBefore reports whether any activity today happened strictly before hour:00.
func (s *Snapshot) StudiedBefore(hour int) bool {
	return !s.Today.IsZero() && s.Today.EarliestSecond < hour*3600
}

// StudiedAfter reports whether any activity today happened strictly after hour:00.
func (s *Snapshot) StudiedAfter(hour int) bool {
	return !s.Today.IsZero() && s.Today.LatestSecond > hour*3600
}

// HasSeen reports whether an event key is in the idempotency window.
func (s *Snapshot) HasSeen(key string) bool {
	for _, id := range s.RecentEventIDs {
		if id == key {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so the aggregator never mutates its input.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.PerSubjectLessons = cloneMap(s.PerSubjectLessons)
	c.ModuleCompletion = cloneMap(s.ModuleCompletion)
	c.PerSubjectEssays = cloneMap(s.PerSubjectEssays)
	c.PerSubjectHighScores = cloneMap(s.PerSubjectHighScores)
	c.EssayDurations = append([]float64(nil), s.EssayDurations...)
	c.RecentEventIDs = append([]string(nil), s.RecentEventIDs...)
	if s.Questions != nil {
		c.Questions = make(map[string]QuestionStats, len(s.Questions))
		for k, v := range s.Questions {
			c.Questions[k] = v
		}
	}
	return &c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
