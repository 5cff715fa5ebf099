package postgres

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_achievements", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_user_achievements", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_user_snapshots", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_activity_events", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: ACHIEVEMENT CATALOG
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS achievements (
    id VARCHAR(64) PRIMARY KEY,
    title VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    icon VARCHAR(32) NOT NULL DEFAULT '',
    type VARCHAR(40) NOT NULL,
    points INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
    condition JSONB NOT NULL,
    position INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_achievements_type ON achievements(type);
`

const migration001Down = `
DROP TABLE IF EXISTS achievements;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: UNLOCK RECORDS
// ══════════════════════════════════════════════════════════════════════════════

// The primary key is the uniqueness backstop for (user, achievement).
const migration002Up = `
CREATE TABLE IF NOT EXISTS user_achievements (
    user_id VARCHAR(128) NOT NULL,
    achievement_id VARCHAR(64) NOT NULL REFERENCES achievements(id),
    unlocked_at TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, achievement_id)
);

CREATE INDEX IF NOT EXISTS idx_user_achievements_unlocked ON user_achievements(user_id, unlocked_at);
`

const migration002Down = `
DROP TABLE IF EXISTS user_achievements;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: USER SNAPSHOTS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS user_snapshots (
    user_id VARCHAR(128) PRIMARY KEY,
    version BIGINT NOT NULL,
    data JSONB NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migration003Down = `
DROP TABLE IF EXISTS user_snapshots;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: ACTIVITY LOG
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
CREATE TABLE IF NOT EXISTS activity_events (
    seq BIGSERIAL PRIMARY KEY,
    user_id VARCHAR(128) NOT NULL,
    event_key VARCHAR(160) NOT NULL,
    event_id VARCHAR(128),
    kind VARCHAR(64) NOT NULL,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
    payload JSONB NOT NULL DEFAULT '{}'::jsonb,
    received_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, event_key)
);

CREATE INDEX IF NOT EXISTS idx_activity_events_user ON activity_events(user_id, seq);
`

const migration004Down = `
DROP TABLE IF EXISTS activity_events;
`
