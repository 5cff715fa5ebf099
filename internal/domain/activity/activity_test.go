package activity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

var at = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func rawEvent(kind Kind, payload string) Event {
	return Event{UserID: "u1", Kind: kind, OccurredAt: at, Payload: json.RawMessage(payload)}
}

func TestKindSet(t *testing.T) {
	var s KindSet
	s = s.With(KindLessonCompleted).With(KindQuizAttempted).With(Kind("VideoWatched"))

	assert.True(t, s.Has(KindLessonCompleted))
	assert.False(t, s.Has(KindEssaySubmitted))
	assert.False(t, s.Has(Kind("VideoWatched")))
	assert.True(t, s.HasAll([]Kind{KindLessonCompleted, KindQuizAttempted}))
	assert.False(t, s.HasAll([]Kind{KindLessonCompleted, KindEssaySubmitted}))
	assert.False(t, s.HasAll(nil))
}

func TestValidateEnvelope(t *testing.T) {
	ok := rawEvent(KindLessonCompleted, `{"lessonId":"l1"}`)
	assert.NoError(t, ok.ValidateEnvelope())

	noUser := ok
	noUser.UserID = ""
	assert.True(t, shared.IsMalformed(noUser.ValidateEnvelope()))

	noTime := ok
	noTime.OccurredAt = time.Time{}
	assert.True(t, shared.IsMalformed(noTime.ValidateEnvelope()))
}

func TestDecodePayload_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{"lesson ok", rawEvent(KindLessonCompleted, `{"lessonId":"l1","subject":"Tort"}`), false},
		{"lesson missing id", rawEvent(KindLessonCompleted, `{"subject":"Tort"}`), true},
		{"lesson bad progress", rawEvent(KindLessonCompleted, `{"lessonId":"l1","moduleProgress":140}`), true},
		{"quiz ok", rawEvent(KindQuizAttempted, `{"quizId":"q1","answers":[true,false]}`), false},
		{"quiz empty answers", rawEvent(KindQuizAttempted, `{"quizId":"q1","answers":[]}`), true},
		{"essay missing subject", rawEvent(KindEssaySubmitted, `{"essayId":"e1"}`), true},
		{"essay ok", rawEvent(KindEssaySubmitted, `{"essayId":"e1","subject":"Criminal Law","score":72}`), false},
		{"simulation missing passed", rawEvent(KindSimulationCompleted, `{"simulationId":"s1","score":60}`), true},
		{"simulation ok", rawEvent(KindSimulationCompleted, `{"simulationId":"s1","score":60,"passed":true}`), false},
		{"session zero duration", rawEvent(KindStudySessionRecorded, `{"durationMinutes":0}`), true},
		{"case ok", rawEvent(KindCaseReferenced, `{"caseId":"c1","jurisdiction":"ie"}`), false},
		{"no payload", rawEvent(KindCaseReferenced, ``), true},
		{"not json", rawEvent(KindCaseReferenced, `[1,2`), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayload(tt.event)
			if tt.wantErr {
				assert.True(t, shared.IsMalformed(err), "expected malformed error, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDecodePayload_UnknownKind(t *testing.T) {
	_, err := DecodePayload(rawEvent(Kind("VideoWatched"), `{}`))
	assert.ErrorIs(t, err, shared.ErrUnknownEventKind)
	assert.False(t, shared.IsMalformed(err))
}

func TestQuizAttempted_Scoring(t *testing.T) {
	p, err := DecodePayload(rawEvent(KindQuizAttempted, `{"quizId":"q1","answers":[true,true,false,true]}`))
	require.NoError(t, err)

	quiz := p.(QuizAttempted)
	assert.Equal(t, 3, quiz.Correct())
	assert.False(t, quiz.Perfect())
	assert.InDelta(t, 75.0, quiz.Percentage(), 0.001)
}

func TestCaseReferenced_IsIrish(t *testing.T) {
	assert.True(t, CaseReferenced{Jurisdiction: " ie "}.IsIrish())
	assert.False(t, CaseReferenced{Jurisdiction: "UK"}.IsIrish())
}

func TestFingerprint_StableAcrossFormatting(t *testing.T) {
	a := rawEvent(KindLessonCompleted, `{"lessonId":"l1"}`)
	b := rawEvent(KindLessonCompleted, `{ "lessonId" : "l1" }`)
	c := rawEvent(KindLessonCompleted, `{"lessonId":"l2"}`)

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
	assert.Equal(t, Fingerprint(a), a.Key())

	a.ID = "producer-1"
	assert.Equal(t, "producer-1", a.Key())
}

func TestNewEvent(t *testing.T) {
	e, err := NewEvent("u1", KindCaseReferenced, at, map[string]string{"caseId": "c1"})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)

	p, err := DecodePayload(e)
	require.NoError(t, err)
	assert.Equal(t, "c1", p.(CaseReferenced).CaseID)
}
