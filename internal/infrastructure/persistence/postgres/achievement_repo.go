package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lexprep/achievement-engine/internal/domain/achievement"
	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CatalogRepository implements achievement.CatalogSource and
// achievement.CatalogWriter for PostgreSQL.
type CatalogRepository struct {
	conn *Connection
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(conn *Connection) *CatalogRepository {
	return &CatalogRepository{conn: conn}
}

// LoadDefinitions returns every catalog entry in seeding order.
func (r *CatalogRepository) LoadDefinitions(ctx context.Context) ([]achievement.Definition, error) {
	query := `
		SELECT id, title, description, icon, type, points, condition
		FROM achievements
		ORDER BY position, id
	`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, shared.Persistence("achievement", "LoadDefinitions", err)
	}
	defer rows.Close()

	var defs []achievement.Definition
	for rows.Next() {
		var (
			d    achievement.Definition
			typ  string
			cond []byte
		)
		if err := rows.Scan(&d.ID, &d.Title, &d.Description, &d.Icon, &typ, &d.Points, &cond); err != nil {
			return nil, shared.Persistence("achievement", "LoadDefinitions", err)
		}
		d.Type = achievement.Type(typ)
		d.Condition = json.RawMessage(cond)
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("achievement", "LoadDefinitions", err)
	}
	return defs, nil
}

// UpsertDefinitions inserts or replaces catalog entries in one transaction.
// Existing unlocks keep referencing their achievement ids.
func (r *CatalogRepository) UpsertDefinitions(ctx context.Context, defs []achievement.Definition) error {
	query := `
		INSERT INTO achievements (id, title, description, icon, type, points, condition, position, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			icon = EXCLUDED.icon,
			type = EXCLUDED.type,
			points = EXCLUDED.points,
			condition = EXCLUDED.condition,
			position = EXCLUDED.position,
			updated_at = NOW()
	`

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for i, d := range defs {
			batch.Queue(query, d.ID, d.Title, d.Description, d.Icon, string(d.Type), d.Points, []byte(d.Condition), i)
		}
		results := tx.SendBatch(ctx, batch)
		for i := range defs {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("upsert %q: %w", defs[i].ID, err)
			}
		}
		return results.Close()
	})
	if err != nil {
		return shared.Persistence("achievement", "UpsertDefinitions", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// UnlockRepository implements achievement.UnlockRepository for PostgreSQL.
type UnlockRepository struct {
	conn *Connection
}

// NewUnlockRepository creates a new UnlockRepository.
func NewUnlockRepository(conn *Connection) *UnlockRepository {
	return &UnlockRepository{conn: conn}
}

// InsertIfAbsent relies on the (user_id, achievement_id) primary key: a row
// that already exists makes the insert affect zero rows.
func (r *UnlockRepository) InsertIfAbsent(ctx context.Context, rec achievement.UnlockRecord) (bool, error) {
	query := `
		INSERT INTO user_achievements (user_id, achievement_id, unlocked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`

	tag, err := r.conn.Exec(ctx, query, rec.UserID.String(), rec.AchievementID.String(), rec.UnlockedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return false, nil
		}
		return false, shared.Persistence("achievement", "InsertIfAbsent", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByUser returns the user's unlocks ordered by unlock time.
func (r *UnlockRepository) ListByUser(ctx context.Context, userID shared.UserID) ([]achievement.UnlockRecord, error) {
	query := `
		SELECT achievement_id, unlocked_at
		FROM user_achievements
		WHERE user_id = $1
		ORDER BY unlocked_at, achievement_id
	`

	rows, err := r.conn.Query(ctx, query, userID.String())
	if err != nil {
		return nil, shared.Persistence("achievement", "ListByUser", err)
	}
	defer rows.Close()

	var out []achievement.UnlockRecord
	for rows.Next() {
		rec := achievement.UnlockRecord{UserID: userID}
		var id string
		if err := rows.Scan(&id, &rec.UnlockedAt); err != nil {
			return nil, shared.Persistence("achievement", "ListByUser", err)
		}
		rec.AchievementID = shared.AchievementID(id)
		rec.UnlockedAt = rec.UnlockedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("achievement", "ListByUser", err)
	}
	return out, nil
}
