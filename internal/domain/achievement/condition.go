package achievement

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lexprep/achievement-engine/internal/domain/activity"
	"github.com/lexprep/achievement-engine/internal/domain/progress"
	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

// Condition is the typed descriptor of one achievement type. Every field is
// optional on the wire; a present field is a requirement and all present
// requirements must hold together.
type Condition interface {
	// Type returns the achievement type the condition belongs to.
	Type() Type

	validate(limits Limits) error
}

// Limits bounds condition values that depend on how much history the
// aggregator retains.
type Limits struct {
	// MaxPacingWindow is the number of essay durations the snapshot keeps.
	MaxPacingWindow int
}

// DefaultLimits matches progress.DefaultAggregatorConfig.
func DefaultLimits() Limits {
	return Limits{MaxPacingWindow: progress.DefaultPacingWindow}
}

// ══════════════════════════════════════════════════════════════════════════════
// VARIANTS
// ══════════════════════════════════════════════════════════════════════════════

// LessonCondition - LESSON_MILESTONE.
// With a subject, counts lessons and module completion for that subject only.
type LessonCondition struct {
	LessonsCompleted *int     `json:"lessonsCompleted,omitempty"`
	Subject          *string  `json:"subject,omitempty"`
	ModuleCompletion *float64 `json:"moduleCompletion,omitempty"`
}

// StreakCondition - STREAK_MILESTONE.
type StreakCondition struct {
	Streak *int `json:"streak,omitempty"`
}

// QuizAccuracyCondition - QUIZ_ACCURACY.
// MinQuizzes is the sample gate for QuizAccuracy and is not a requirement on
// its own. PerfectQuiz is scoped to the event being processed.
type QuizAccuracyCondition struct {
	QuizAccuracy       *float64 `json:"quizAccuracy,omitempty"`
	MinQuizzes         *int     `json:"minQuizzes,omitempty"`
	QuizzesCompleted   *int     `json:"quizzesCompleted,omitempty"`
	ConsecutiveCorrect *int     `json:"consecutiveCorrect,omitempty"`
	PerfectQuiz        *bool    `json:"perfectQuiz,omitempty"`
}

// PracticeCondition - PRACTICE_MILESTONE.
// Subject scopes the essay and high-score counts; quizzes carry no subject.
// PacingWindow and PacingToleranceMinutes go together: the last PacingWindow
// essay durations must all lie within PacingToleranceMinutes of each other.
type PracticeCondition struct {
	EssaysCompleted        *int     `json:"essaysCompleted,omitempty"`
	QuizzesCompleted       *int     `json:"quizzesCompleted,omitempty"`
	HighScores             *int     `json:"highScores,omitempty"`
	Subject                *string  `json:"subject,omitempty"`
	PacingWindow           *int     `json:"pacingWindow,omitempty"`
	PacingToleranceMinutes *float64 `json:"pacingToleranceMinutes,omitempty"`
}

// ExamSimulationCondition - EXAM_SIMULATION.
// SimulationPassed is cumulative: any passed simulation so far.
type ExamSimulationCondition struct {
	SimulationsCompleted *int     `json:"simulationsCompleted,omitempty"`
	SimulationPassed     *bool    `json:"simulationPassed,omitempty"`
	SimulationScore      *float64 `json:"simulationScore,omitempty"`
}

// SubjectMasteryCondition - SUBJECT_MASTERY.
// Without a subject, one single subject has to satisfy every threshold.
type SubjectMasteryCondition struct {
	Subject          *string  `json:"subject,omitempty"`
	SubjectMastery   *float64 `json:"subjectMastery,omitempty"`
	EssaysCompleted  *int     `json:"essaysCompleted,omitempty"`
	HighScores       *int     `json:"highScores,omitempty"`
	LessonsCompleted *int     `json:"lessonsCompleted,omitempty"`
}

// ImprovementCondition - IMPROVEMENT_ACHIEVEMENT.
// Both fields are tested against the same question.
type ImprovementCondition struct {
	SameQuestionAttempts *int     `json:"sameQuestionAttempts,omitempty"`
	ScoreImprovement     *float64 `json:"scoreImprovement,omitempty"`
}

// TimeCondition - TIME_ACHIEVEMENT.
// StudyBefore and StudyAfter are local hours tested against today's activity.
type TimeCondition struct {
	StudyBefore  *int     `json:"studyBefore,omitempty"`
	StudyAfter   *int     `json:"studyAfter,omitempty"`
	WeekendStudy *bool    `json:"weekendStudy,omitempty"`
	StudyMinutes *float64 `json:"studyMinutes,omitempty"`
}

// CaseLawCondition - CASE_LAW_MASTERY.
type CaseLawCondition struct {
	CasesReferenced *int `json:"casesReferenced,omitempty"`
	IrishCases      *int `json:"irishCases,omitempty"`
}

// ComboCondition - COMBO_ACHIEVEMENT.
// Any mix of the cross-family requirements below, at least two in total.
// SameDayCombo lists kinds that must all appear on the current event's day;
// PreviousDayCombo lists kinds that must all appear on the day before.
// Subject scopes SubjectMastery and EssaysCompleted; without it
// SubjectMastery means any subject and EssaysCompleted the global total.
type ComboCondition struct {
	LessonsCompleted     *int            `json:"lessonsCompleted,omitempty"`
	Streak               *int            `json:"streak,omitempty"`
	QuizAccuracy         *float64        `json:"quizAccuracy,omitempty"`
	MinQuizzes           *int            `json:"minQuizzes,omitempty"`
	QuizzesCompleted     *int            `json:"quizzesCompleted,omitempty"`
	PerfectQuiz          *bool           `json:"perfectQuiz,omitempty"`
	EssaysCompleted      *int            `json:"essaysCompleted,omitempty"`
	HighScores           *int            `json:"highScores,omitempty"`
	Subject              *string         `json:"subject,omitempty"`
	SubjectMastery       *float64        `json:"subjectMastery,omitempty"`
	SimulationsCompleted *int            `json:"simulationsCompleted,omitempty"`
	SimulationPassed     *bool           `json:"simulationPassed,omitempty"`
	SimulationScore      *float64        `json:"simulationScore,omitempty"`
	CasesReferenced      *int            `json:"casesReferenced,omitempty"`
	IrishCases           *int            `json:"irishCases,omitempty"`
	StudyMinutes         *float64        `json:"studyMinutes,omitempty"`
	WeekendStudy         *bool           `json:"weekendStudy,omitempty"`
	SameDayCombo         []activity.Kind `json:"sameDayCombo,omitempty"`
	PreviousDayCombo     []activity.Kind `json:"previousDayCombo,omitempty"`
}

func (*LessonCondition) Type() Type         { return TypeLessonMilestone }
func (*StreakCondition) Type() Type         { return TypeStreakMilestone }
func (*QuizAccuracyCondition) Type() Type   { return TypeQuizAccuracy }
func (*PracticeCondition) Type() Type       { return TypePracticeMilestone }
func (*ExamSimulationCondition) Type() Type { return TypeExamSimulation }
func (*SubjectMasteryCondition) Type() Type { return TypeSubjectMastery }
func (*ImprovementCondition) Type() Type    { return TypeImprovement }
func (*TimeCondition) Type() Type           { return TypeTime }
func (*CaseLawCondition) Type() Type        { return TypeCaseLawMastery }
func (*ComboCondition) Type() Type          { return TypeCombo }

// ══════════════════════════════════════════════════════════════════════════════
// DECODING
// ══════════════════════════════════════════════════════════════════════════════

// newCondition returns an empty variant for t.
func newCondition(t Type) (Condition, bool) {
	switch t {
	case TypeLessonMilestone:
		return &LessonCondition{}, true
	case TypeStreakMilestone:
		return &StreakCondition{}, true
	case TypeQuizAccuracy:
		return &QuizAccuracyCondition{}, true
	case TypePracticeMilestone:
		return &PracticeCondition{}, true
	case TypeExamSimulation:
		return &ExamSimulationCondition{}, true
	case TypeSubjectMastery:
		return &SubjectMasteryCondition{}, true
	case TypeImprovement:
		return &ImprovementCondition{}, true
	case TypeTime:
		return &TimeCondition{}, true
	case TypeCaseLawMastery:
		return &CaseLawCondition{}, true
	case TypeCombo:
		return &ComboCondition{}, true
	default:
		return nil, false
	}
}

// ParseCondition strictly decodes raw as the condition variant of t.
// Fields that do not belong to the type, trailing data and inconsistent
// combinations are errors of kind shared.ErrInvalidCondition.
func ParseCondition(t Type, raw json.RawMessage, limits Limits) (Condition, error) {
	cond, ok := newCondition(t)
	if !ok {
		return nil, shared.WrapError("achievement", "ParseCondition", shared.ErrInvalidCondition,
			fmt.Sprintf("unknown achievement type %q", t), shared.ErrUnknownAchievementType)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, invalid("condition is empty")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cond); err != nil {
		return nil, shared.WrapError("achievement", "ParseCondition", shared.ErrInvalidCondition,
			fmt.Sprintf("condition does not fit %s", t), err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, invalid("trailing data after condition")
	}

	if err := cond.validate(limits); err != nil {
		return nil, err
	}
	return cond, nil
}

func invalid(format string, args ...any) error {
	return shared.NewDomainError("achievement", "ParseCondition", shared.ErrInvalidCondition, fmt.Sprintf(format, args...))
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// fields counts present requirements while validating each one.
type fields struct {
	n    int
	errs []error
}

func (f *fields) count(present bool) {
	if present {
		f.n++
	}
}

func (f *fields) hour(name string, v *int) {
	if v == nil {
		return
	}
	f.n++
	if *v < 1 || *v > 23 {
		f.errs = append(f.errs, invalid("%s must be an hour between 1 and 23, got %d", name, *v))
	}
}

func (f *fields) percent(name string, v *float64) {
	if v == nil {
		return
	}
	f.n++
	if *v > 100 {
		f.errs = append(f.errs, invalid("%s must be at most 100, got %g", name, *v))
	}
}

func (f *fields) subject(v *string) {
	if v != nil && shared.SubjectKey(*v) == "" {
		f.errs = append(f.errs, invalid("subject must not be blank"))
	}
}

func (f *fields) kinds(name string, ks []activity.Kind) {
	if ks == nil {
		return
	}
	if len(ks) == 0 {
		f.errs = append(f.errs, invalid("%s must list at least one event kind", name))
		return
	}
	f.n += len(ks)
	for _, k := range ks {
		if !k.IsKnown() {
			f.errs = append(f.errs, invalid("%s: unknown event kind %q", name, k))
		}
	}
}

func (f *fields) require(cond bool, format string, args ...any) {
	if !cond {
		f.errs = append(f.errs, invalid(format, args...))
	}
}

func (f *fields) done(required int) error {
	if f.n < required {
		if required == 1 {
			f.errs = append(f.errs, invalid("condition has no requirement"))
		} else {
			f.errs = append(f.errs, invalid("condition needs at least %d requirements, has %d", required, f.n))
		}
	}
	return errors.Join(f.errs...)
}

func (c *LessonCondition) validate(Limits) error {
	var f fields
	f.count(c.LessonsCompleted != nil)
	f.percent("moduleCompletion", c.ModuleCompletion)
	f.subject(c.Subject)
	return f.done(1)
}

func (c *StreakCondition) validate(Limits) error {
	var f fields
	f.count(c.Streak != nil)
	return f.done(1)
}

func (c *QuizAccuracyCondition) validate(Limits) error {
	var f fields
	f.percent("quizAccuracy", c.QuizAccuracy)
	f.count(c.QuizzesCompleted != nil)
	f.count(c.ConsecutiveCorrect != nil)
	f.count(c.PerfectQuiz != nil)
	f.require(c.MinQuizzes == nil || c.QuizAccuracy != nil, "minQuizzes requires quizAccuracy")
	return f.done(1)
}

func (c *PracticeCondition) validate(limits Limits) error {
	var f fields
	f.count(c.EssaysCompleted != nil)
	f.count(c.QuizzesCompleted != nil)
	f.count(c.HighScores != nil)
	f.subject(c.Subject)
	f.require((c.PacingWindow == nil) == (c.PacingToleranceMinutes == nil),
		"pacingWindow and pacingToleranceMinutes must be given together")
	if c.PacingWindow != nil {
		f.n++
		f.require(*c.PacingWindow >= 2 && *c.PacingWindow <= limits.MaxPacingWindow,
			"pacingWindow must be between 2 and %d, got %d", limits.MaxPacingWindow, *c.PacingWindow)
	}
	if c.PacingToleranceMinutes != nil {
		f.require(*c.PacingToleranceMinutes >= 0, "pacingToleranceMinutes must not be negative")
	}
	return f.done(1)
}

func (c *ExamSimulationCondition) validate(Limits) error {
	var f fields
	f.count(c.SimulationsCompleted != nil)
	f.count(c.SimulationPassed != nil)
	f.percent("simulationScore", c.SimulationScore)
	return f.done(1)
}

func (c *SubjectMasteryCondition) validate(Limits) error {
	var f fields
	f.percent("subjectMastery", c.SubjectMastery)
	f.count(c.EssaysCompleted != nil)
	f.count(c.HighScores != nil)
	f.count(c.LessonsCompleted != nil)
	f.subject(c.Subject)
	return f.done(1)
}

func (c *ImprovementCondition) validate(Limits) error {
	var f fields
	f.count(c.SameQuestionAttempts != nil)
	f.count(c.ScoreImprovement != nil)
	return f.done(1)
}

func (c *TimeCondition) validate(Limits) error {
	var f fields
	f.hour("studyBefore", c.StudyBefore)
	f.hour("studyAfter", c.StudyAfter)
	f.count(c.WeekendStudy != nil)
	f.count(c.StudyMinutes != nil)
	return f.done(1)
}

func (c *CaseLawCondition) validate(Limits) error {
	var f fields
	f.count(c.CasesReferenced != nil)
	f.count(c.IrishCases != nil)
	return f.done(1)
}

func (c *ComboCondition) validate(Limits) error {
	var f fields
	f.count(c.LessonsCompleted != nil)
	f.count(c.Streak != nil)
	f.percent("quizAccuracy", c.QuizAccuracy)
	f.count(c.QuizzesCompleted != nil)
	f.count(c.PerfectQuiz != nil)
	f.count(c.EssaysCompleted != nil)
	f.count(c.HighScores != nil)
	f.percent("subjectMastery", c.SubjectMastery)
	f.count(c.SimulationsCompleted != nil)
	f.count(c.SimulationPassed != nil)
	f.percent("simulationScore", c.SimulationScore)
	f.count(c.CasesReferenced != nil)
	f.count(c.IrishCases != nil)
	f.count(c.StudyMinutes != nil)
	f.count(c.WeekendStudy != nil)
	f.kinds("sameDayCombo", c.SameDayCombo)
	f.kinds("previousDayCombo", c.PreviousDayCombo)
	f.subject(c.Subject)
	f.require(c.MinQuizzes == nil || c.QuizAccuracy != nil, "minQuizzes requires quizAccuracy")
	f.require(c.Subject == nil || c.SubjectMastery != nil || c.EssaysCompleted != nil,
		"subject requires subjectMastery or essaysCompleted")
	return f.done(2)
}

// subjectKey returns the normalised subject, or "" when absent.
func subjectKey(s *string) string {
	if s == nil {
		return ""
	}
	return shared.SubjectKey(strings.TrimSpace(*s))
}
