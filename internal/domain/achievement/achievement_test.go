package achievement

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexprep/achievement-engine/internal/domain/activity"
	"github.com/lexprep/achievement-engine/internal/domain/progress"
	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

const learner shared.UserID = "learner-7"

var monday = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func parse(t *testing.T, typ Type, raw string) Condition {
	t.Helper()
	c, err := ParseCondition(typ, json.RawMessage(raw), DefaultLimits())
	require.NoError(t, err)
	return c
}

// fold applies events in order and returns the snapshot after each one.
type fold struct {
	t   *testing.T
	agg *progress.Aggregator
	s   *progress.Snapshot
	n   int
}

func newFold(t *testing.T) *fold {
	return &fold{t: t, agg: progress.NewAggregator(progress.DefaultAggregatorConfig())}
}

func (f *fold) add(kind activity.Kind, at time.Time, payload string) *progress.Snapshot {
	f.t.Helper()
	f.n++
	e := activity.Event{
		ID:         fmt.Sprintf("evt-%d", f.n),
		UserID:     learner,
		Kind:       kind,
		OccurredAt: at,
		Payload:    json.RawMessage(payload),
	}
	next, _, err := f.agg.Apply(f.s, e)
	require.NoError(f.t, err)
	f.s = next
	return next
}

// ══════════════════════════════════════════════════════════════════════════════
// Parsing
// ══════════════════════════════════════════════════════════════════════════════

func TestParseCondition_Rejects(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		raw  string
	}{
		{"field of another type", TypeStreakMilestone, `{"streak":3,"lessonsCompleted":1}`},
		{"no requirement", TypeLessonMilestone, `{}`},
		{"subject alone", TypeSubjectMastery, `{"subject":"Tort"}`},
		{"blank subject", TypePracticeMilestone, `{"essaysCompleted":1,"subject":"  "}`},
		{"min quizzes alone", TypeQuizAccuracy, `{"minQuizzes":5}`},
		{"percentage over 100", TypeQuizAccuracy, `{"quizAccuracy":120}`},
		{"hour out of range", TypeTime, `{"studyBefore":25}`},
		{"pacing without tolerance", TypePracticeMilestone, `{"pacingWindow":5}`},
		{"pacing window too large", TypePracticeMilestone, `{"pacingWindow":50,"pacingToleranceMinutes":5}`},
		{"combo with one requirement", TypeCombo, `{"simulationPassed":true}`},
		{"combo unknown kind", TypeCombo, `{"sameDayCombo":["LessonCompleted","VideoWatched"]}`},
		{"wrong value type", TypeStreakMilestone, `{"streak":"three"}`},
		{"trailing data", TypeStreakMilestone, `{"streak":3}{"streak":4}`},
		{"empty", TypeStreakMilestone, ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCondition(tt.typ, json.RawMessage(tt.raw), DefaultLimits())
			assert.ErrorIs(t, err, shared.ErrInvalidCondition)
		})
	}
}

func TestParseCondition_UnknownType(t *testing.T) {
	_, err := ParseCondition(Type("BADGE_OF_HONOUR"), json.RawMessage(`{"streak":1}`), DefaultLimits())
	assert.ErrorIs(t, err, shared.ErrInvalidCondition)
}

func TestParseCondition_ReturnsTypedVariant(t *testing.T) {
	c := parse(t, TypeSubjectMastery, `{"subject":"Criminal Law","essaysCompleted":10}`)

	sm, ok := c.(*SubjectMasteryCondition)
	require.True(t, ok)
	assert.Equal(t, TypeSubjectMastery, sm.Type())
	assert.Equal(t, 10, *sm.EssaysCompleted)
}

// ══════════════════════════════════════════════════════════════════════════════
// Registry
// ══════════════════════════════════════════════════════════════════════════════

func def(id string, typ Type, cond string) Definition {
	return Definition{ID: id, Title: id, Type: typ, Condition: json.RawMessage(cond)}
}

func TestNewRegistry_IndexesCandidatesByKind(t *testing.T) {
	reg, err := NewRegistry([]Definition{
		def("first-lesson", TypeLessonMilestone, `{"lessonsCompleted":1}`),
		def("streak-3", TypeStreakMilestone, `{"streak":3}`),
		def("irish", TypeCaseLawMastery, `{"irishCases":1}`),
	}, DefaultLimits())
	require.NoError(t, err)

	ids := func(as []Achievement) []shared.AchievementID {
		var out []shared.AchievementID
		for _, a := range as {
			out = append(out, a.ID)
		}
		return out
	}

	assert.Equal(t, []shared.AchievementID{"first-lesson", "streak-3"}, ids(reg.Candidates(activity.KindLessonCompleted)))
	assert.Equal(t, []shared.AchievementID{"streak-3", "irish"}, ids(reg.Candidates(activity.KindCaseReferenced)))
	assert.Empty(t, reg.Candidates(activity.Kind("VideoWatched")))

	a, err := reg.Get("irish")
	require.NoError(t, err)
	assert.Equal(t, TypeCaseLawMastery, a.Type)

	_, err = reg.Get("missing")
	assert.True(t, shared.IsNotFound(err))
}

func TestNewRegistry_FailsOnAnyInvalidDefinition(t *testing.T) {
	_, err := NewRegistry([]Definition{
		def("ok", TypeStreakMilestone, `{"streak":3}`),
		def("ok", TypeStreakMilestone, `{"streak":4}`),
		def("bad-cond", TypeStreakMilestone, `{"lessonsCompleted":4}`),
		def("Bad ID", TypeStreakMilestone, `{"streak":4}`),
		def("bad-type", Type("NOPE"), `{"streak":4}`),
	}, DefaultLimits())

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrRegistryLoad)
	assert.Contains(t, err.Error(), "4 invalid")
}

func TestNewRegistry_EmptyCatalog(t *testing.T) {
	_, err := NewRegistry(nil, DefaultLimits())
	assert.ErrorIs(t, err, shared.ErrRegistryLoad)
}

func TestType_AffectedBy(t *testing.T) {
	assert.True(t, TypeQuizAccuracy.AffectedBy(activity.KindQuizAttempted))
	assert.False(t, TypeQuizAccuracy.AffectedBy(activity.KindEssaySubmitted))
	assert.True(t, TypeTime.AffectedBy(activity.KindStudySessionRecorded))
	assert.False(t, TypeTime.AffectedBy(activity.Kind("VideoWatched")))
}

// ══════════════════════════════════════════════════════════════════════════════
// Evaluation
// ══════════════════════════════════════════════════════════════════════════════

func TestMatches_LessonMilestone(t *testing.T) {
	c := parse(t, TypeLessonMilestone, `{"lessonsCompleted":1}`)
	assert.False(t, Matches(c, progress.NewSnapshot(learner)))

	f := newFold(t)
	assert.True(t, Matches(c, f.add(activity.KindLessonCompleted, monday, `{"lessonId":"l1"}`)))
	assert.True(t, Matches(c, f.add(activity.KindLessonCompleted, monday, `{"lessonId":"l2"}`)))
}

func TestMatches_LessonModuleCompletionBySubject(t *testing.T) {
	c := parse(t, TypeLessonMilestone, `{"subject":"Contract","moduleCompletion":100}`)
	f := newFold(t)

	s := f.add(activity.KindLessonCompleted, monday, `{"lessonId":"l1","subject":"Tort","moduleProgress":100}`)
	assert.False(t, Matches(c, s))

	s = f.add(activity.KindLessonCompleted, monday, `{"lessonId":"l2","subject":"contract","moduleProgress":100}`)
	assert.True(t, Matches(c, s))
}

func TestMatches_QuizAccuracyNeedsMinimumSample(t *testing.T) {
	c := parse(t, TypeQuizAccuracy, `{"quizAccuracy":90,"minQuizzes":50}`)
	f := newFold(t)

	var s *progress.Snapshot
	for i := 0; i < 49; i++ {
		s = f.add(activity.KindQuizAttempted, monday, `{"quizId":"q","answers":[true]}`)
	}
	assert.Equal(t, 100.0, s.QuizAccuracy())
	assert.False(t, Matches(c, s))

	s = f.add(activity.KindQuizAttempted, monday, `{"quizId":"q","answers":[false]}`)
	assert.True(t, Matches(c, s))
}

func TestMatches_QuizAccuracyBelowThreshold(t *testing.T) {
	c := parse(t, TypeQuizAccuracy, `{"quizAccuracy":90,"minQuizzes":2}`)
	f := newFold(t)

	f.add(activity.KindQuizAttempted, monday, `{"quizId":"a","answers":[true,false]}`)
	s := f.add(activity.KindQuizAttempted, monday, `{"quizId":"b","answers":[true,true]}`)

	assert.False(t, Matches(c, s))
}

func TestMatches_PerfectQuizIsEventScoped(t *testing.T) {
	c := parse(t, TypeQuizAccuracy, `{"perfectQuiz":true}`)
	f := newFold(t)

	assert.True(t, Matches(c, f.add(activity.KindQuizAttempted, monday, `{"quizId":"a","answers":[true,true]}`)))
	assert.False(t, Matches(c, f.add(activity.KindQuizAttempted, monday, `{"quizId":"b","answers":[true,false]}`)))
}

func TestMatches_Streak(t *testing.T) {
	c := parse(t, TypeStreakMilestone, `{"streak":3}`)

	consecutive := newFold(t)
	assert.False(t, Matches(c, consecutive.add(activity.KindLessonCompleted, monday, `{"lessonId":"a"}`)))
	assert.False(t, Matches(c, consecutive.add(activity.KindLessonCompleted, monday.AddDate(0, 0, 1), `{"lessonId":"b"}`)))
	assert.True(t, Matches(c, consecutive.add(activity.KindLessonCompleted, monday.AddDate(0, 0, 2), `{"lessonId":"c"}`)))

	gap := newFold(t)
	gap.add(activity.KindLessonCompleted, monday, `{"lessonId":"a"}`)
	s := gap.add(activity.KindLessonCompleted, monday.AddDate(0, 0, 2), `{"lessonId":"c"}`)
	assert.False(t, Matches(c, s))
	assert.Equal(t, 1, s.CurrentStreakDays)
}

func TestMatches_SubjectEssayCount(t *testing.T) {
	c := parse(t, TypeSubjectMastery, `{"subject":"Criminal Law","essaysCompleted":10}`)
	f := newFold(t)

	for i := 0; i < 20; i++ {
		s := f.add(activity.KindEssaySubmitted, monday, `{"essayId":"x","subject":"Tort"}`)
		assert.False(t, Matches(c, s))
	}
	for i := 1; i <= 10; i++ {
		s := f.add(activity.KindEssaySubmitted, monday, `{"essayId":"x","subject":"Criminal Law"}`)
		assert.Equal(t, i == 10, Matches(c, s), "criminal law essay %d", i)
	}
}

func TestMatches_SubjectMasteryWithoutSubjectNeedsOneSubject(t *testing.T) {
	c := parse(t, TypeSubjectMastery, `{"subjectMastery":100,"highScores":1}`)
	f := newFold(t)

	f.add(activity.KindLessonCompleted, monday, `{"lessonId":"l","subject":"Tort","moduleProgress":100}`)
	s := f.add(activity.KindEssaySubmitted, monday, `{"essayId":"e","subject":"Equity","score":95}`)
	assert.False(t, Matches(c, s))

	s = f.add(activity.KindEssaySubmitted, monday, `{"essayId":"e2","subject":"Tort","score":95}`)
	assert.True(t, Matches(c, s))
}

func TestMatches_ZeroThresholdNeverMatches(t *testing.T) {
	c := parse(t, TypeCaseLawMastery, `{"casesReferenced":0}`)
	f := newFold(t)

	s := f.add(activity.KindCaseReferenced, monday, `{"caseId":"c"}`)
	assert.False(t, Matches(c, s))
}

func TestMatches_FalseFlagNeverMatches(t *testing.T) {
	c := parse(t, TypeExamSimulation, `{"simulationPassed":false}`)
	f := newFold(t)

	s := f.add(activity.KindSimulationCompleted, monday, `{"simulationId":"s","score":40,"passed":false}`)
	assert.False(t, Matches(c, s))
}

func TestMatches_ExamSimulation(t *testing.T) {
	passed := parse(t, TypeExamSimulation, `{"simulationPassed":true}`)
	score := parse(t, TypeExamSimulation, `{"simulationScore":80}`)
	f := newFold(t)

	s := f.add(activity.KindSimulationCompleted, monday, `{"simulationId":"a","score":62,"passed":true}`)
	assert.True(t, Matches(passed, s))
	assert.False(t, Matches(score, s))

	s = f.add(activity.KindSimulationCompleted, monday, `{"simulationId":"b","score":81,"passed":true}`)
	assert.True(t, Matches(score, s))
}

func TestMatches_Improvement(t *testing.T) {
	c := parse(t, TypeImprovement, `{"sameQuestionAttempts":2,"scoreImprovement":20}`)
	f := newFold(t)

	f.add(activity.KindEssaySubmitted, monday, `{"essayId":"a","subject":"Tort","questionId":"Q1","score":50}`)
	s := f.add(activity.KindEssaySubmitted, monday, `{"essayId":"b","subject":"Tort","questionId":"Q2","score":90}`)
	assert.False(t, Matches(c, s))

	s = f.add(activity.KindEssaySubmitted, monday, `{"essayId":"c","subject":"Tort","questionId":"Q1","score":72}`)
	assert.True(t, Matches(c, s))
}

func TestMatches_PracticePacing(t *testing.T) {
	c := parse(t, TypePracticeMilestone, `{"pacingWindow":3,"pacingToleranceMinutes":5}`)
	f := newFold(t)

	essay := func(minutes int) *progress.Snapshot {
		return f.add(activity.KindEssaySubmitted, monday,
			fmt.Sprintf(`{"essayId":"e","subject":"Tort","durationMinutes":%d}`, minutes))
	}

	essay(30)
	assert.False(t, Matches(c, essay(50)))
	assert.False(t, Matches(c, essay(52)))
	assert.True(t, Matches(c, essay(48)))
}

func TestMatches_TimeOfDay(t *testing.T) {
	early := parse(t, TypeTime, `{"studyBefore":7}`)
	late := parse(t, TypeTime, `{"studyAfter":22}`)
	f := newFold(t)

	day := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	s := f.add(activity.KindLessonCompleted, day.Add(7*time.Hour), `{"lessonId":"a"}`)
	assert.False(t, Matches(early, s))

	s = f.add(activity.KindLessonCompleted, day.Add(6*time.Hour+59*time.Minute), `{"lessonId":"b"}`)
	assert.True(t, Matches(early, s))
	assert.False(t, Matches(late, s))

	s = f.add(activity.KindLessonCompleted, day.Add(22*time.Hour+time.Minute), `{"lessonId":"c"}`)
	assert.True(t, Matches(late, s))
}

func TestMatches_WeekendStudy(t *testing.T) {
	c := parse(t, TypeTime, `{"weekendStudy":true}`)
	f := newFold(t)

	assert.False(t, Matches(c, f.add(activity.KindLessonCompleted, monday, `{"lessonId":"a"}`)))
	assert.True(t, Matches(c, f.add(activity.KindLessonCompleted, monday.AddDate(0, 0, 6), `{"lessonId":"b"}`)))
}

func TestMatches_SameDayCombo(t *testing.T) {
	c := parse(t, TypeCombo, `{"sameDayCombo":["LessonCompleted","QuizAttempted","EssaySubmitted"]}`)
	f := newFold(t)

	f.add(activity.KindLessonCompleted, monday, `{"lessonId":"a"}`)
	s := f.add(activity.KindQuizAttempted, monday, `{"quizId":"q","answers":[true]}`)
	assert.False(t, Matches(c, s))

	// The essay lands on the next day, so the combo restarts.
	s = f.add(activity.KindEssaySubmitted, monday.AddDate(0, 0, 1), `{"essayId":"e","subject":"Tort"}`)
	assert.False(t, Matches(c, s))

	f.add(activity.KindLessonCompleted, monday.AddDate(0, 0, 1), `{"lessonId":"b"}`)
	s = f.add(activity.KindQuizAttempted, monday.AddDate(0, 0, 1), `{"quizId":"q2","answers":[false]}`)
	assert.True(t, Matches(c, s))
}

func TestMatches_PreviousDayCombo(t *testing.T) {
	c := parse(t, TypeCombo, `{"previousDayCombo":["SimulationCompleted"],"sameDayCombo":["EssaySubmitted"]}`)
	f := newFold(t)

	f.add(activity.KindSimulationCompleted, monday, `{"simulationId":"s","score":55,"passed":true}`)
	s := f.add(activity.KindEssaySubmitted, monday, `{"essayId":"e","subject":"Tort"}`)
	assert.False(t, Matches(c, s))

	s = f.add(activity.KindEssaySubmitted, monday.AddDate(0, 0, 1), `{"essayId":"e2","subject":"Tort"}`)
	assert.True(t, Matches(c, s))
}

func TestMatches_ComboNeedsEveryPart(t *testing.T) {
	c := parse(t, TypeCombo, `{"simulationPassed":true,"subjectMastery":50}`)
	f := newFold(t)

	s := f.add(activity.KindSimulationCompleted, monday, `{"simulationId":"s","score":70,"passed":true}`)
	assert.False(t, Matches(c, s))

	s = f.add(activity.KindLessonCompleted, monday, `{"lessonId":"l","subject":"Equity","moduleProgress":55}`)
	assert.True(t, Matches(c, s))
}

func TestMatches_NilInputs(t *testing.T) {
	assert.False(t, Matches(nil, progress.NewSnapshot(learner)))
	assert.False(t, Matches(&StreakCondition{}, nil))
}
