package achievement

import (
	"sort"

	"github.com/lexprep/achievement-engine/internal/domain/progress"
)

// Matches reports whether the snapshot satisfies every requirement present in
// the condition. It reads nothing but its arguments.
//
// A threshold of zero or below, a false boolean flag and a metric that has
// never been observed all count as not matched. A nil snapshot never matches.
func Matches(c Condition, s *progress.Snapshot) bool {
	if c == nil || s == nil {
		return false
	}

	switch c := c.(type) {
	case *LessonCondition:
		return matchLesson(c, s)
	case *StreakCondition:
		var m match
		m.atLeast(c.Streak, s.CurrentStreakDays)
		return m.result()
	case *QuizAccuracyCondition:
		var m match
		m.accuracy(c.QuizAccuracy, c.MinQuizzes, s)
		m.atLeast(c.QuizzesCompleted, s.QuizzesCompleted)
		m.atLeast(c.ConsecutiveCorrect, s.ConsecutiveCorrect)
		m.flag(c.PerfectQuiz, s.LastEvent.PerfectQuiz)
		return m.result()
	case *PracticeCondition:
		return matchPractice(c, s)
	case *ExamSimulationCondition:
		var m match
		m.atLeast(c.SimulationsCompleted, s.SimulationsCompleted)
		m.flag(c.SimulationPassed, s.SimulationsPassed > 0)
		m.atLeastF(c.SimulationScore, s.BestSimulationScore, s.SimulationsCompleted > 0)
		return m.result()
	case *SubjectMasteryCondition:
		return matchSubjectMastery(c, s)
	case *ImprovementCondition:
		return matchImprovement(c, s)
	case *TimeCondition:
		var m match
		m.flagWhen(c.StudyBefore != nil, c.StudyBefore != nil && s.StudiedBefore(*c.StudyBefore))
		m.flagWhen(c.StudyAfter != nil, c.StudyAfter != nil && s.StudiedAfter(*c.StudyAfter))
		m.flag(c.WeekendStudy, s.WeekendStudyThisWeek())
		m.atLeastF(c.StudyMinutes, s.TotalStudyMinutes, s.TotalStudyMinutes > 0)
		return m.result()
	case *CaseLawCondition:
		var m match
		m.atLeast(c.CasesReferenced, s.CasesReferenced)
		m.atLeast(c.IrishCases, s.IrishCasesUsed)
		return m.result()
	case *ComboCondition:
		return matchCombo(c, s)
	default:
		return false
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Conjunction helper
// ─────────────────────────────────────────────────────────────────────────────

// match accumulates the present requirements of one condition.
type match struct {
	n      int
	failed bool
}

func (m *match) result() bool {
	return m.n > 0 && !m.failed
}

func (m *match) fail() {
	m.failed = true
}

func (m *match) atLeast(threshold *int, actual int) {
	if threshold == nil {
		return
	}
	m.n++
	if *threshold <= 0 || actual < *threshold {
		m.fail()
	}
}

// atLeastF compares a float metric; observed is false while the metric has
// never been recorded.
func (m *match) atLeastF(threshold *float64, actual float64, observed bool) {
	if threshold == nil {
		return
	}
	m.n++
	if *threshold <= 0 || !observed || actual < *threshold {
		m.fail()
	}
}

func (m *match) flag(want *bool, actual bool) {
	if want == nil {
		return
	}
	m.flagWhen(true, *want && actual)
}

func (m *match) flagWhen(present, ok bool) {
	if !present {
		return
	}
	m.n++
	if !ok {
		m.fail()
	}
}

// accuracy applies the quizAccuracy/minQuizzes pair. MinQuizzes defaults to
// one quiz so an empty history never matches.
func (m *match) accuracy(pct *float64, minQuizzes *int, s *progress.Snapshot) {
	if pct == nil {
		return
	}
	gate := 1
	if minQuizzes != nil {
		if *minQuizzes <= 0 {
			m.n++
			m.fail()
			return
		}
		gate = *minQuizzes
	}
	m.atLeastF(pct, s.QuizAccuracy(), s.QuizzesCompleted >= gate && s.AnsweredQuestions > 0)
}

// ─────────────────────────────────────────────────────────────────────────────
// Per-family rules
// ─────────────────────────────────────────────────────────────────────────────

func matchLesson(c *LessonCondition, s *progress.Snapshot) bool {
	var m match
	subject := subjectKey(c.Subject)
	if subject == "" {
		m.atLeast(c.LessonsCompleted, s.LessonsCompleted)
		if c.ModuleCompletion != nil {
			best, ok := maxValue(s.ModuleCompletion)
			m.atLeastF(c.ModuleCompletion, best, ok)
		}
		return m.result()
	}

	m.atLeast(c.LessonsCompleted, s.PerSubjectLessons[subject])
	completion, ok := s.ModuleCompletion[subject]
	m.atLeastF(c.ModuleCompletion, completion, ok)
	return m.result()
}

func matchPractice(c *PracticeCondition, s *progress.Snapshot) bool {
	var m match
	if subject := subjectKey(c.Subject); subject != "" {
		m.atLeast(c.EssaysCompleted, s.PerSubjectEssays[subject])
		m.atLeast(c.HighScores, s.PerSubjectHighScores[subject])
	} else {
		m.atLeast(c.EssaysCompleted, s.EssaysSubmitted)
		m.atLeast(c.HighScores, s.HighScores)
	}
	m.atLeast(c.QuizzesCompleted, s.QuizzesCompleted)

	if c.PacingWindow != nil && c.PacingToleranceMinutes != nil {
		m.flagWhen(true, consistentPacing(s.EssayDurations, *c.PacingWindow, *c.PacingToleranceMinutes))
	}
	return m.result()
}

// consistentPacing reports whether the last n durations span at most tolerance minutes.
func consistentPacing(durations []float64, n int, tolerance float64) bool {
	if n < 2 || len(durations) < n || tolerance < 0 {
		return false
	}
	window := durations[len(durations)-n:]
	lo, hi := window[0], window[0]
	for _, d := range window[1:] {
		lo = min(lo, d)
		hi = max(hi, d)
	}
	return hi-lo <= tolerance
}

func matchSubjectMastery(c *SubjectMasteryCondition, s *progress.Snapshot) bool {
	if subject := subjectKey(c.Subject); subject != "" {
		return masteryFor(c, s, subject)
	}
	for _, subject := range subjects(s) {
		if masteryFor(c, s, subject) {
			return true
		}
	}
	return false
}

func masteryFor(c *SubjectMasteryCondition, s *progress.Snapshot, subject string) bool {
	var m match
	completion, ok := s.ModuleCompletion[subject]
	m.atLeastF(c.SubjectMastery, completion, ok)
	m.atLeast(c.EssaysCompleted, s.PerSubjectEssays[subject])
	m.atLeast(c.HighScores, s.PerSubjectHighScores[subject])
	m.atLeast(c.LessonsCompleted, s.PerSubjectLessons[subject])
	return m.result()
}

func matchImprovement(c *ImprovementCondition, s *progress.Snapshot) bool {
	for _, q := range s.Questions {
		var m match
		m.atLeast(c.SameQuestionAttempts, q.Attempts)
		if c.ScoreImprovement != nil {
			delta, ok := q.Improvement()
			m.atLeastF(c.ScoreImprovement, delta, ok)
		}
		if m.result() {
			return true
		}
	}
	return false
}

func matchCombo(c *ComboCondition, s *progress.Snapshot) bool {
	var m match
	m.atLeast(c.LessonsCompleted, s.LessonsCompleted)
	m.atLeast(c.Streak, s.CurrentStreakDays)
	m.accuracy(c.QuizAccuracy, c.MinQuizzes, s)
	m.atLeast(c.QuizzesCompleted, s.QuizzesCompleted)
	m.flag(c.PerfectQuiz, s.LastEvent.PerfectQuiz)
	m.atLeast(c.HighScores, s.HighScores)
	m.atLeast(c.SimulationsCompleted, s.SimulationsCompleted)
	m.flag(c.SimulationPassed, s.SimulationsPassed > 0)
	m.atLeastF(c.SimulationScore, s.BestSimulationScore, s.SimulationsCompleted > 0)
	m.atLeast(c.CasesReferenced, s.CasesReferenced)
	m.atLeast(c.IrishCases, s.IrishCasesUsed)
	m.atLeastF(c.StudyMinutes, s.TotalStudyMinutes, s.TotalStudyMinutes > 0)
	m.flag(c.WeekendStudy, s.WeekendStudyThisWeek())

	subject := subjectKey(c.Subject)
	if subject != "" {
		m.atLeast(c.EssaysCompleted, s.PerSubjectEssays[subject])
		completion, ok := s.ModuleCompletion[subject]
		m.atLeastF(c.SubjectMastery, completion, ok)
	} else {
		m.atLeast(c.EssaysCompleted, s.EssaysSubmitted)
		if c.SubjectMastery != nil {
			best, ok := maxValue(s.ModuleCompletion)
			m.atLeastF(c.SubjectMastery, best, ok)
		}
	}

	// Day combos are judged on the day of the event being processed, so a
	// late event never completes today's combo on behalf of an older day.
	if c.SameDayCombo != nil {
		m.flagWhen(true, s.LastEvent.Day == s.Today.Day && s.Today.Kinds.HasAll(c.SameDayCombo))
	}
	if c.PreviousDayCombo != nil {
		m.flagWhen(true, s.LastEvent.Day == s.Today.Day && !s.Previous.IsZero() &&
			s.Previous.Kinds.HasAll(c.PreviousDayCombo))
	}
	return m.result()
}

// ─────────────────────────────────────────────────────────────────────────────
// Snapshot helpers
// ─────────────────────────────────────────────────────────────────────────────

func maxValue(m map[string]float64) (float64, bool) {
	var best float64
	found := false
	for _, v := range m {
		if !found || v > best {
			best = v
			found = true
		}
	}
	return best, found
}

// subjects returns every subject key the snapshot has seen, sorted.
func subjects(s *progress.Snapshot) []string {
	seen := make(map[string]struct{})
	for k := range s.PerSubjectLessons {
		seen[k] = struct{}{}
	}
	for k := range s.PerSubjectEssays {
		seen[k] = struct{}{}
	}
	for k := range s.ModuleCompletion {
		seen[k] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
