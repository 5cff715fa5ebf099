package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lexprep/achievement-engine/internal/domain/activity"
	"github.com/lexprep/achievement-engine/internal/domain/progress"
	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotRepository implements progress.Repository for PostgreSQL.
// Snapshots are stored as JSONB next to an optimistic version column.
type SnapshotRepository struct {
	conn *Connection
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(conn *Connection) *SnapshotRepository {
	return &SnapshotRepository{conn: conn}
}

// Get returns the user's snapshot.
func (r *SnapshotRepository) Get(ctx context.Context, userID shared.UserID) (*progress.Snapshot, error) {
	query := `SELECT version, data FROM user_snapshots WHERE user_id = $1`

	var (
		version int64
		data    []byte
	)
	if err := r.conn.QueryRow(ctx, query, userID.String()).Scan(&version, &data); err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSnapshotNotFound
		}
		return nil, shared.Persistence("progress", "Get", err)
	}

	var s progress.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, shared.Persistence("progress", "Get", fmt.Errorf("decode snapshot: %w", err))
	}
	s.UserID = userID
	s.Version = version
	return &s, nil
}

// Save writes the snapshot when the stored version still matches.
func (r *SnapshotRepository) Save(ctx context.Context, s *progress.Snapshot, expectedVersion int64) error {
	data, err := json.Marshal(s)
	if err != nil {
		return shared.Persistence("progress", "Save", fmt.Errorf("encode snapshot: %w", err))
	}
	next := expectedVersion + 1

	if expectedVersion == 0 {
		query := `
			INSERT INTO user_snapshots (user_id, version, data, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (user_id) DO NOTHING
		`
		tag, err := r.conn.Exec(ctx, query, s.UserID.String(), next, data)
		if err != nil {
			return shared.Persistence("progress", "Save", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrSnapshotConflict
		}
		s.Version = next
		return nil
	}

	query := `
		UPDATE user_snapshots
		SET version = $2, data = $3, updated_at = NOW()
		WHERE user_id = $1 AND version = $4
	`
	tag, err := r.conn.Exec(ctx, query, s.UserID.String(), next, data, expectedVersion)
	if err != nil {
		return shared.Persistence("progress", "Save", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrSnapshotConflict
	}
	s.Version = next
	return nil
}

// Delete removes the user's snapshot.
func (r *SnapshotRepository) Delete(ctx context.Context, userID shared.UserID) error {
	if _, err := r.conn.Exec(ctx, `DELETE FROM user_snapshots WHERE user_id = $1`, userID.String()); err != nil {
		return shared.Persistence("progress", "Delete", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY LOG
// ══════════════════════════════════════════════════════════════════════════════

// ActivityLog implements activity.Log for PostgreSQL.
type ActivityLog struct {
	conn *Connection
}

// NewActivityLog creates a new ActivityLog.
func NewActivityLog(conn *Connection) *ActivityLog {
	return &ActivityLog{conn: conn}
}

// Append stores the event once per (user, key).
func (l *ActivityLog) Append(ctx context.Context, key string, e activity.Event) error {
	query := `
		INSERT INTO activity_events (user_id, event_key, event_id, kind, occurred_at, payload)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		ON CONFLICT (user_id, event_key) DO NOTHING
	`

	payload := []byte(e.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if _, err := l.conn.Exec(ctx, query, e.UserID.String(), key, e.ID, string(e.Kind), e.OccurredAt, payload); err != nil {
		return shared.Persistence("activity", "Append", err)
	}
	return nil
}

// ListByUser returns the user's events in arrival order. Events logged without
// a producer id carry their stored idempotency key as ID, so a replay sees the
// same keys as the original run.
func (l *ActivityLog) ListByUser(ctx context.Context, userID shared.UserID) ([]activity.Event, error) {
	query := `
		SELECT COALESCE(event_id, event_key), kind, occurred_at, payload
		FROM activity_events
		WHERE user_id = $1
		ORDER BY seq
	`

	rows, err := l.conn.Query(ctx, query, userID.String())
	if err != nil {
		return nil, shared.Persistence("activity", "ListByUser", err)
	}
	defer rows.Close()

	var out []activity.Event
	for rows.Next() {
		e := activity.Event{UserID: userID}
		var (
			kind    string
			payload []byte
		)
		if err := rows.Scan(&e.ID, &kind, &e.OccurredAt, &payload); err != nil {
			return nil, shared.Persistence("activity", "ListByUser", err)
		}
		e.Kind = activity.Kind(kind)
		e.Payload = json.RawMessage(payload)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("activity", "ListByUser", err)
	}
	return out, nil
}
