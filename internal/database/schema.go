// internal/database/schema.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS game_sessions (
		id          TEXT PRIMARY KEY,
		room_code   TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'in_progress',
		start_time  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		end_time    TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS game_actions (
		id               BIGSERIAL PRIMARY KEY,
		room_code        TEXT NOT NULL,
		game_id          TEXT,
		action_index     INTEGER NOT NULL,
		actor_player_id  TEXT,
		action_type      TEXT NOT NULL,
		action_payload   JSONB NOT NULL DEFAULT '{}'::jsonb,
		recorded_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS game_actions_room_idx ON game_actions (room_code, action_index)`,
	`CREATE INDEX IF NOT EXISTS game_actions_game_idx ON game_actions (game_id)`,
}

// EnsureSchema creates the historian tables if they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
