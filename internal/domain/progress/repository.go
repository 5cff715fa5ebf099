package progress

import (
	"context"

	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

// Repository persists snapshots with optimistic versioning.
// This interface is implemented by the infrastructure layer.
type Repository interface {
	// Get returns the user's snapshot, or shared.ErrSnapshotNotFound.
	Get(ctx context.Context, userID shared.UserID) (*Snapshot, error)

	// Save stores the snapshot if the stored version still equals
	// expectedVersion (0 means "must not exist yet"). On success the
	// snapshot's Version is set to expectedVersion+1. A version mismatch
	// returns shared.ErrSnapshotConflict.
	Save(ctx context.Context, snapshot *Snapshot, expectedVersion int64) error

	// Delete removes the user's snapshot. Used by replay.
	Delete(ctx context.Context, userID shared.UserID) error
}
