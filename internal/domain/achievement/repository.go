package achievement

import (
	"context"

	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

// UnlockRepository stores unlock records.
// This interface is implemented by the infrastructure layer.
type UnlockRepository interface {
	// InsertIfAbsent atomically stores the record unless one already exists
	// for the same (user, achievement). It returns true only when this call
	// created the record. A uniqueness conflict is not an error.
	InsertIfAbsent(ctx context.Context, record UnlockRecord) (bool, error)

	// ListByUser returns the user's unlocks ordered by unlock time.
	ListByUser(ctx context.Context, userID shared.UserID) ([]UnlockRecord, error)
}

// CatalogSource supplies achievement definitions at startup.
type CatalogSource interface {
	LoadDefinitions(ctx context.Context) ([]Definition, error)
}

// CatalogWriter stores achievement definitions. Used only by seeding.
type CatalogWriter interface {
	UpsertDefinitions(ctx context.Context, defs []Definition) error
}
