package shared

import (
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// MaxUserIDLength bounds user ids accepted from upstream callers.
const MaxUserIDLength = 128

// UserID identifies the learner an event belongs to. The engine treats it as
// an opaque string issued by the surrounding platform.
type UserID string

// IsValid checks if the user id is non-empty and within bounds.
func (u UserID) IsValid() bool {
	return u != "" && len(u) <= MaxUserIDLength && !strings.ContainsAny(string(u), " \t\r\n")
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.TrimSpace(id))
	if !uid.IsValid() {
		return "", NewDomainError("shared", "NewUserID", ErrInvalidID, "invalid user ID")
	}
	return uid, nil
}

// AchievementID is the stable slug of a catalog entry.
type AchievementID string

var achievementIDRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// IsValid checks if the achievement id is a lowercase slug.
func (a AchievementID) IsValid() bool {
	return achievementIDRegex.MatchString(string(a))
}

// String returns the string representation.
func (a AchievementID) String() string {
	return string(a)
}

// NewAchievementID creates a new AchievementID with validation.
func NewAchievementID(id string) (AchievementID, error) {
	aid := AchievementID(strings.TrimSpace(id))
	if !aid.IsValid() {
		return "", NewDomainError("shared", "NewAchievementID", ErrInvalidID, "invalid achievement ID")
	}
	return aid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Subject Value Object
// ═══════════════════════════════════════════════════════════════════════════

// SubjectKey normalises a subject name ("  Criminal  law ") into the key
// used by per-subject aggregates ("criminal law"). Catalog conditions and
// activity payloads go through the same function so they always agree.
func SubjectKey(subject string) string {
	return strings.ToLower(strings.Join(strings.Fields(subject), " "))
}
