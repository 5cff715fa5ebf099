// Package activity contains the activity event envelope fed into the
// achievement engine and the typed payloads carried by each event kind.
// This is a pure domain layer; the only dependencies are id and hashing helpers.
package activity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

// Kind identifies what the user did.
type Kind string

const (
	// KindLessonCompleted - the lesson player finished a lesson.
	KindLessonCompleted Kind = "LessonCompleted"

	// KindQuizAttempted - the quiz grader scored an attempt.
	KindQuizAttempted Kind = "QuizAttempted"

	// KindEssaySubmitted - the essay grader accepted a submission.
	KindEssaySubmitted Kind = "EssaySubmitted"

	// KindSimulationCompleted - a timed exam simulation ended.
	KindSimulationCompleted Kind = "SimulationCompleted"

	// KindStudySessionRecorded - the study-session tracker closed a session.
	KindStudySessionRecorded Kind = "StudySessionRecorded"

	// KindCaseReferenced - the user cited a case in their work.
	KindCaseReferenced Kind = "CaseReferenced"
)

// KnownKinds lists every kind the engine understands, in a stable order.
var KnownKinds = []Kind{
	KindLessonCompleted,
	KindQuizAttempted,
	KindEssaySubmitted,
	KindSimulationCompleted,
	KindStudySessionRecorded,
	KindCaseReferenced,
}

// IsKnown reports whether the engine has aggregation rules for k.
func (k Kind) IsKnown() bool {
	return k.bit() != 0
}

// String returns the string representation of Kind.
func (k Kind) String() string {
	return string(k)
}

func (k Kind) bit() KindSet {
	for i, known := range KnownKinds {
		if known == k {
			return KindSet(1) << i
		}
	}
	return 0
}

// KindSet is a compact set of kinds, used by per-day activity buckets.
type KindSet uint8

// With returns the set with k added. Unknown kinds are ignored.
func (s KindSet) With(k Kind) KindSet {
	return s | k.bit()
}

// Has reports whether k is in the set.
func (s KindSet) Has(k Kind) bool {
	b := k.bit()
	return b != 0 && s&b == b
}

// HasAll reports whether every kind in ks is in the set.
// An empty list never matches.
func (s KindSet) HasAll(ks []Kind) bool {
	if len(ks) == 0 {
		return false
	}
	for _, k := range ks {
		if !s.Has(k) {
			return false
		}
	}
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT
// ══════════════════════════════════════════════════════════════════════════════

// Event is an immutable fact about something a user did.
// Payload is kept raw until the aggregator decodes it for its kind, so that
// events of kinds this build does not know about pass through untouched.
type Event struct {
	// ID is the producer-assigned idempotency key. Optional; when absent the
	// engine derives a content fingerprint (see Fingerprint).
	ID string `json:"id,omitempty"`

	UserID     shared.UserID   `json:"userId"`
	Kind       Kind            `json:"kind"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event with a fresh random id and a JSON-encoded payload.
func NewEvent(userID shared.UserID, kind Kind, occurredAt time.Time, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, shared.WrapError("activity", "NewEvent", shared.ErrInvalidInput, "payload is not serialisable", err)
	}
	return Event{
		ID:         uuid.NewString(),
		UserID:     userID,
		Kind:       kind,
		OccurredAt: occurredAt,
		Payload:    raw,
	}, nil
}

// ValidateEnvelope checks the fields every event needs regardless of kind.
// Kind-specific payload checks happen in DecodePayload.
func (e Event) ValidateEnvelope() error {
	if !e.UserID.IsValid() {
		return shared.MalformedEvent("Validate", "userId", "missing or invalid")
	}
	if e.Kind == "" {
		return shared.MalformedEvent("Validate", "kind", "required")
	}
	if e.OccurredAt.IsZero() {
		return shared.MalformedEvent("Validate", "occurredAt", "required")
	}
	if len(e.ID) > 128 {
		return shared.MalformedEvent("Validate", "id", "longer than 128 characters")
	}
	return nil
}

// Key returns the idempotency key: the producer id when present, otherwise
// the content fingerprint.
func (e Event) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return Fingerprint(e)
}
