package activity

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

// IrishJurisdiction is the jurisdiction code counted by irish-case metrics.
const IrishJurisdiction = "IE"

// Payload is the decoded, validated body of a known event kind.
type Payload interface {
	Kind() Kind
}

// LessonCompleted is the payload of KindLessonCompleted.
type LessonCompleted struct {
	LessonID string
	Subject  string
	// ModuleProgress is the completion percentage of the lesson's module
	// after this lesson, when the lesson player reports it.
	ModuleProgress *float64
}

// QuizAttempted is the payload of KindQuizAttempted.
type QuizAttempted struct {
	QuizID     string
	QuestionID string
	Answers    []bool
	// Score is the grader's percentage. When absent it is derived from Answers.
	Score *float64
}

// EssaySubmitted is the payload of KindEssaySubmitted.
type EssaySubmitted struct {
	EssayID         string
	Subject         string
	QuestionID      string
	Score           *float64
	DurationMinutes *float64
}

// SimulationCompleted is the payload of KindSimulationCompleted.
type SimulationCompleted struct {
	SimulationID    string
	Score           float64
	Passed          bool
	DurationMinutes *float64
}

// StudySessionRecorded is the payload of KindStudySessionRecorded.
type StudySessionRecorded struct {
	DurationMinutes float64
	Subject         string
}

// CaseReferenced is the payload of KindCaseReferenced.
type CaseReferenced struct {
	CaseID       string
	Jurisdiction string
}

func (LessonCompleted) Kind() Kind      { return KindLessonCompleted }
func (QuizAttempted) Kind() Kind        { return KindQuizAttempted }
func (EssaySubmitted) Kind() Kind       { return KindEssaySubmitted }
func (SimulationCompleted) Kind() Kind  { return KindSimulationCompleted }
func (StudySessionRecorded) Kind() Kind { return KindStudySessionRecorded }
func (CaseReferenced) Kind() Kind       { return KindCaseReferenced }

// Correct returns the number of correct answers.
func (q QuizAttempted) Correct() int {
	n := 0
	for _, a := range q.Answers {
		if a {
			n++
		}
	}
	return n
}

// Perfect reports whether every answer was correct.
func (q QuizAttempted) Perfect() bool {
	return len(q.Answers) > 0 && q.Correct() == len(q.Answers)
}

// Percentage returns the grader score, or the share of correct answers.
func (q QuizAttempted) Percentage() float64 {
	if q.Score != nil {
		return *q.Score
	}
	if len(q.Answers) == 0 {
		return 0
	}
	return float64(q.Correct()) * 100 / float64(len(q.Answers))
}

// IsIrish reports whether the case is from the Irish jurisdiction.
func (c CaseReferenced) IsIrish() bool {
	return strings.EqualFold(strings.TrimSpace(c.Jurisdiction), IrishJurisdiction)
}

// ══════════════════════════════════════════════════════════════════════════════
// DECODING
// ══════════════════════════════════════════════════════════════════════════════

// Wire shapes use pointers so a missing field is distinguishable from a zero.
type (
	lessonWire struct {
		LessonID       *string  `json:"lessonId"`
		Subject        *string  `json:"subject"`
		ModuleProgress *float64 `json:"moduleProgress"`
	}
	quizWire struct {
		QuizID     *string  `json:"quizId"`
		QuestionID *string  `json:"questionId"`
		Answers    *[]bool  `json:"answers"`
		Score      *float64 `json:"score"`
	}
	essayWire struct {
		EssayID         *string  `json:"essayId"`
		Subject         *string  `json:"subject"`
		QuestionID      *string  `json:"questionId"`
		Score           *float64 `json:"score"`
		DurationMinutes *float64 `json:"durationMinutes"`
	}
	simulationWire struct {
		SimulationID    *string  `json:"simulationId"`
		Score           *float64 `json:"score"`
		Passed          *bool    `json:"passed"`
		DurationMinutes *float64 `json:"durationMinutes"`
	}
	studySessionWire struct {
		DurationMinutes *float64 `json:"durationMinutes"`
		Subject         *string  `json:"subject"`
	}
	caseWire struct {
		CaseID       *string `json:"caseId"`
		Jurisdiction *string `json:"jurisdiction"`
	}
)

// DecodePayload validates and decodes the payload for the event's kind.
// Unknown kinds return shared.ErrUnknownEventKind; missing or invalid
// required fields return shared.ErrMalformedEvent.
func DecodePayload(e Event) (Payload, error) {
	switch e.Kind {
	case KindLessonCompleted:
		var w lessonWire
		if err := unmarshal(e, &w); err != nil {
			return nil, err
		}
		id, err := requiredString("lessonId", w.LessonID)
		if err != nil {
			return nil, err
		}
		if err := percentage("moduleProgress", w.ModuleProgress); err != nil {
			return nil, err
		}
		return LessonCompleted{LessonID: id, Subject: optionalString(w.Subject), ModuleProgress: w.ModuleProgress}, nil

	case KindQuizAttempted:
		var w quizWire
		if err := unmarshal(e, &w); err != nil {
			return nil, err
		}
		id, err := requiredString("quizId", w.QuizID)
		if err != nil {
			return nil, err
		}
		if w.Answers == nil || len(*w.Answers) == 0 {
			return nil, shared.MalformedEvent("Decode", "answers", "required and non-empty")
		}
		if err := percentage("score", w.Score); err != nil {
			return nil, err
		}
		return QuizAttempted{QuizID: id, QuestionID: optionalString(w.QuestionID), Answers: *w.Answers, Score: w.Score}, nil

	case KindEssaySubmitted:
		var w essayWire
		if err := unmarshal(e, &w); err != nil {
			return nil, err
		}
		id, err := requiredString("essayId", w.EssayID)
		if err != nil {
			return nil, err
		}
		subject, err := requiredString("subject", w.Subject)
		if err != nil {
			return nil, err
		}
		if err := percentage("score", w.Score); err != nil {
			return nil, err
		}
		if err := nonNegative("durationMinutes", w.DurationMinutes); err != nil {
			return nil, err
		}
		return EssaySubmitted{
			EssayID:         id,
			Subject:         subject,
			QuestionID:      optionalString(w.QuestionID),
			Score:           w.Score,
			DurationMinutes: w.DurationMinutes,
		}, nil

	case KindSimulationCompleted:
		var w simulationWire
		if err := unmarshal(e, &w); err != nil {
			return nil, err
		}
		id, err := requiredString("simulationId", w.SimulationID)
		if err != nil {
			return nil, err
		}
		if w.Score == nil {
			return nil, shared.MalformedEvent("Decode", "score", "required")
		}
		if err := percentage("score", w.Score); err != nil {
			return nil, err
		}
		if w.Passed == nil {
			return nil, shared.MalformedEvent("Decode", "passed", "required")
		}
		if err := nonNegative("durationMinutes", w.DurationMinutes); err != nil {
			return nil, err
		}
		return SimulationCompleted{SimulationID: id, Score: *w.Score, Passed: *w.Passed, DurationMinutes: w.DurationMinutes}, nil

	case KindStudySessionRecorded:
		var w studySessionWire
		if err := unmarshal(e, &w); err != nil {
			return nil, err
		}
		if w.DurationMinutes == nil || *w.DurationMinutes <= 0 {
			return nil, shared.MalformedEvent("Decode", "durationMinutes", "required and positive")
		}
		return StudySessionRecorded{DurationMinutes: *w.DurationMinutes, Subject: optionalString(w.Subject)}, nil

	case KindCaseReferenced:
		var w caseWire
		if err := unmarshal(e, &w); err != nil {
			return nil, err
		}
		id, err := requiredString("caseId", w.CaseID)
		if err != nil {
			return nil, err
		}
		return CaseReferenced{CaseID: id, Jurisdiction: optionalString(w.Jurisdiction)}, nil

	default:
		return nil, shared.NewDomainError("activity", "Decode", shared.ErrUnknownEventKind,
			fmt.Sprintf("kind %q is not handled", e.Kind))
	}
}

func unmarshal(e Event, v any) error {
	if len(e.Payload) == 0 {
		return shared.MalformedEvent("Decode", "payload", "required")
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return shared.WrapError("activity", "Decode", shared.ErrMalformedEvent, "payload is not a valid JSON object", err)
	}
	return nil
}

func requiredString(field string, v *string) (string, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "", shared.MalformedEvent("Decode", field, "required")
	}
	return strings.TrimSpace(*v), nil
}

func optionalString(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

func percentage(field string, v *float64) error {
	if v != nil && (*v < 0 || *v > 100) {
		return shared.MalformedEvent("Decode", field, "must be between 0 and 100")
	}
	return nil
}

func nonNegative(field string, v *float64) error {
	if v != nil && *v < 0 {
		return shared.MalformedEvent("Decode", field, "cannot be negative")
	}
	return nil
}
