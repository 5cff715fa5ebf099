package activity

import (
	"context"

	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

// Log is the append-only record of accepted events.
// It backs user replay; the engine never reads it on the hot path.
type Log interface {
	// Append stores the event under its idempotency key. Appending the same
	// key twice is a no-op.
	Append(ctx context.Context, key string, event Event) error

	// ListByUser returns a user's events in the order they were appended.
	ListByUser(ctx context.Context, userID shared.UserID) ([]Event, error)
}
