package progress

import (
	"errors"

	"github.com/lexprep/achievement-engine/internal/domain/activity"
	"github.com/lexprep/achievement-engine/internal/domain/shared"
	"github.com/lexprep/achievement-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Defaults for AggregatorConfig.
const (
	DefaultHighScoreThreshold = 70.0
	DefaultPacingWindow       = 10
	DefaultIdempotencyWindow  = 256
)

// AggregatorConfig controls the bounded windows the aggregator keeps.
type AggregatorConfig struct {
	// Zone is the calendar used for "today", streak days and ISO weeks.
	Zone timeutil.Zone

	// HighScoreThreshold is the essay score (inclusive) counted as a high score.
	HighScoreThreshold float64

	// PacingWindow is how many recent essay durations are retained.
	PacingWindow int

	// IdempotencyWindow is how many recent event keys are remembered.
	IdempotencyWindow int
}

// DefaultAggregatorConfig returns the default configuration in UTC.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		Zone:               timeutil.NewZone(nil),
		HighScoreThreshold: DefaultHighScoreThreshold,
		PacingWindow:       DefaultPacingWindow,
		IdempotencyWindow:  DefaultIdempotencyWindow,
	}
}

// Outcome describes what Apply did with an event.
type Outcome int

const (
	// OutcomeApplied - the event changed the snapshot.
	OutcomeApplied Outcome = iota
	// OutcomeDuplicate - the event key was already applied; nothing changed.
	OutcomeDuplicate
	// OutcomeIgnored - the event kind is unknown; nothing changed.
	OutcomeIgnored
)

// String returns the string representation of Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATOR
// ══════════════════════════════════════════════════════════════════════════════

// Aggregator folds activity events into snapshots. It holds no per-user
// state and never reads the wall clock: every window is derived from the
// event's OccurredAt, so replaying a history yields the same snapshot.
type Aggregator struct {
	cfg AggregatorConfig
}

// NewAggregator creates an Aggregator, filling zero config values with defaults.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.HighScoreThreshold <= 0 {
		cfg.HighScoreThreshold = DefaultHighScoreThreshold
	}
	if cfg.PacingWindow <= 0 {
		cfg.PacingWindow = DefaultPacingWindow
	}
	if cfg.IdempotencyWindow <= 0 {
		cfg.IdempotencyWindow = DefaultIdempotencyWindow
	}
	return &Aggregator{cfg: cfg}
}

// Config returns the effective configuration.
func (a *Aggregator) Config() AggregatorConfig {
	return a.cfg
}

// Apply returns the snapshot that results from folding e into s. The input
// snapshot is never modified. A nil s is treated as the user's empty snapshot.
//
// Malformed events return an error and no snapshot. Unknown kinds and
// already-seen event keys return the input unchanged with the matching Outcome.
func (a *Aggregator) Apply(s *Snapshot, e activity.Event) (*Snapshot, Outcome, error) {
	if err := e.ValidateEnvelope(); err != nil {
		return nil, OutcomeIgnored, err
	}
	if s == nil {
		s = NewSnapshot(e.UserID)
	}
	if s.UserID != e.UserID {
		return nil, OutcomeIgnored, shared.NewDomainError("progress", "Apply", shared.ErrInvalidInput,
			"event belongs to a different user than the snapshot")
	}

	key := e.Key()
	if s.HasSeen(key) {
		return s, OutcomeDuplicate, nil
	}

	payload, err := activity.DecodePayload(e)
	if err != nil {
		if errors.Is(err, shared.ErrUnknownEventKind) {
			return s, OutcomeIgnored, nil
		}
		return nil, OutcomeIgnored, err
	}

	next := s.Clone()
	next.LastEvent = EventContext{Key: key, Kind: e.Kind, Day: a.cfg.Zone.DayKey(e.OccurredAt)}

	a.applyTimeline(next, e)

	switch p := payload.(type) {
	case activity.LessonCompleted:
		a.applyLesson(next, p)
	case activity.QuizAttempted:
		a.applyQuiz(next, p)
	case activity.EssaySubmitted:
		a.applyEssay(next, p)
	case activity.SimulationCompleted:
		a.applySimulation(next, p)
	case activity.StudySessionRecorded:
		next.TotalStudyMinutes += p.DurationMinutes
	case activity.CaseReferenced:
		next.CasesReferenced++
		if p.IsIrish() {
			next.IrishCasesUsed++
		}
	}

	next.RecentEventIDs = append(next.RecentEventIDs, key)
	if over := len(next.RecentEventIDs) - a.cfg.IdempotencyWindow; over > 0 {
		next.RecentEventIDs = next.RecentEventIDs[over:]
	}
	if e.OccurredAt.After(next.UpdatedAt) {
		next.UpdatedAt = e.OccurredAt
	}

	return next, OutcomeApplied, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Time windows
// ─────────────────────────────────────────────────────────────────────────────

// applyTimeline updates streak, day buckets and week markers. Events older
// than the last study day still count toward totals but never move streaks.
func (a *Aggregator) applyTimeline(s *Snapshot, e activity.Event) {
	zone := a.cfg.Zone
	day := zone.DayKey(e.OccurredAt)
	second := zone.SecondOfDay(e.OccurredAt)
	week := zone.WeekKey(e.OccurredAt)

	// Streak
	if s.LastStudyDay == "" {
		s.CurrentStreakDays = 1
		s.LastStudyDay = day
	} else {
		diff, err := timeutil.DayKeyDiff(s.LastStudyDay, day)
		switch {
		case err != nil || diff > 1:
			s.CurrentStreakDays = 1
			s.LastStudyDay = day
		case diff == 1:
			s.CurrentStreakDays++
			s.LastStudyDay = day
		}
	}
	if s.CurrentStreakDays > s.BestStreakDays {
		s.BestStreakDays = s.CurrentStreakDays
	}

	// Day buckets: only today and the day before are retained.
	var bucket *DayBucket
	switch {
	case s.Today.Day == "":
		s.Today = DayBucket{Day: day}
		bucket = &s.Today
	case day == s.Today.Day:
		bucket = &s.Today
	case day > s.Today.Day:
		if diff, err := timeutil.DayKeyDiff(s.Today.Day, day); err == nil && diff == 1 {
			s.Previous = s.Today
		} else {
			s.Previous = DayBucket{}
		}
		s.Today = DayBucket{Day: day}
		bucket = &s.Today
	case day == s.Previous.Day:
		bucket = &s.Previous
	}
	if bucket != nil {
		touch(bucket, e.Kind, second)
	}

	// Weeks. ISO week keys are zero padded so they order lexically.
	if week > s.CurrentWeek {
		s.CurrentWeek = week
	}
	if zone.IsWeekend(e.OccurredAt) && week > s.LastWeekendWeek {
		s.LastWeekendWeek = week
	}
}

func touch(b *DayBucket, kind activity.Kind, second int) {
	if b.Events == 0 {
		b.EarliestSecond = second
		b.LatestSecond = second
	} else {
		b.EarliestSecond = min(b.EarliestSecond, second)
		b.LatestSecond = max(b.LatestSecond, second)
	}
	b.Kinds = b.Kinds.With(kind)
	b.Events++
}

// ─────────────────────────────────────────────────────────────────────────────
// Per-kind rules
// ─────────────────────────────────────────────────────────────────────────────

func (a *Aggregator) applyLesson(s *Snapshot, p activity.LessonCompleted) {
	s.LessonsCompleted++
	if p.Subject == "" {
		return
	}
	key := shared.SubjectKey(p.Subject)
	s.PerSubjectLessons = incr(s.PerSubjectLessons, key)
	if p.ModuleProgress != nil {
		if s.ModuleCompletion == nil {
			s.ModuleCompletion = make(map[string]float64)
		}
		if *p.ModuleProgress > s.ModuleCompletion[key] {
			s.ModuleCompletion[key] = *p.ModuleProgress
		}
	}
}

func (a *Aggregator) applyQuiz(s *Snapshot, p activity.QuizAttempted) {
	s.QuizzesCompleted++
	s.AnsweredQuestions += len(p.Answers)
	s.CorrectAnswers += p.Correct()
	for _, correct := range p.Answers {
		if correct {
			s.ConsecutiveCorrect++
		} else {
			s.ConsecutiveCorrect = 0
		}
	}
	if p.Perfect() {
		s.PerfectQuizzes++
		s.LastEvent.PerfectQuiz = true
	}
	if p.QuestionID != "" {
		score := p.Percentage()
		recordAttempt(s, p.QuestionID, &score)
	}
}

func (a *Aggregator) applyEssay(s *Snapshot, p activity.EssaySubmitted) {
	key := shared.SubjectKey(p.Subject)
	s.EssaysSubmitted++
	s.PerSubjectEssays = incr(s.PerSubjectEssays, key)

	if p.Score != nil && *p.Score >= a.cfg.HighScoreThreshold {
		s.HighScores++
		s.PerSubjectHighScores = incr(s.PerSubjectHighScores, key)
	}
	if p.DurationMinutes != nil {
		s.EssayDurations = append(s.EssayDurations, *p.DurationMinutes)
		if over := len(s.EssayDurations) - a.cfg.PacingWindow; over > 0 {
			s.EssayDurations = s.EssayDurations[over:]
		}
	}
	if p.QuestionID != "" {
		recordAttempt(s, p.QuestionID, p.Score)
	}
}

func (a *Aggregator) applySimulation(s *Snapshot, p activity.SimulationCompleted) {
	s.SimulationsCompleted++
	if p.Passed {
		s.SimulationsPassed++
	}
	if p.Score > s.BestSimulationScore {
		s.BestSimulationScore = p.Score
	}
}

func recordAttempt(s *Snapshot, questionID string, score *float64) {
	if s.Questions == nil {
		s.Questions = make(map[string]QuestionStats)
	}
	q := s.Questions[questionID]
	q.Attempts++
	if score != nil {
		v := *score
		if q.FirstScore == nil {
			q.FirstScore = &v
		}
		q.LatestScore = &v
	}
	s.Questions[questionID] = q
}

func incr(m map[string]int, key string) map[string]int {
	if m == nil {
		m = make(map[string]int)
	}
	m[key]++
	return m
}
