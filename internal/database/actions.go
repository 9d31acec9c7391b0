// internal/database/actions.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/codebreak/internal/models"
)

// Action types that move a game session row through its lifecycle.
const (
	actionGameStarted    = "game_started"
	actionRematchStarted = "rematch_started"
	actionGameFinished   = "game_finished"
)

var actionColumns = []string{
	"room_code", "game_id", "action_index", "actor_player_id",
	"action_type", "action_payload", "recorded_at",
}

// ActionStore persists game action records.
type ActionStore struct {
	pool *pgxpool.Pool
}

// NewActionStore returns a store backed by pool.
func NewActionStore(pool *pgxpool.Pool) *ActionStore {
	return &ActionStore{pool: pool}
}

// InsertActions writes recs in one transaction: the actions are copied in bulk
// and the session rows they refer to are opened or finalized.
func (s *ActionStore) InsertActions(ctx context.Context, recs []models.GameActionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	rows, err := actionRows(recs)
	if err != nil {
		return err
	}
	return beginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"game_actions"}, actionColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("copy game_actions: %w", err)
		}
		for _, u := range sessionUpdates(recs) {
			if err := u.apply(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkAbandoned closes a session that stopped producing actions while still in progress.
func (s *ActionStore) MarkAbandoned(ctx context.Context, gameID string) error {
	return beginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE game_sessions
			SET status = 'abandoned', end_time = NOW()
			WHERE id = $1 AND status = 'in_progress'
		`, gameID)
		return err
	})
}

// actionRows converts records into CopyFrom rows in actionColumns order.
func actionRows(recs []models.GameActionRecord) ([][]interface{}, error) {
	rows := make([][]interface{}, 0, len(recs))
	for _, rec := range recs {
		payload := rec.ActionPayload
		if payload == nil {
			payload = map[string]interface{}{}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload of %s: %w", rec.ActionType, err)
		}
		rows = append(rows, []interface{}{
			rec.RoomCode,
			nullable(rec.GameID),
			rec.ActionIndex,
			nullable(rec.ActorPlayerID),
			rec.ActionType,
			data,
			time.UnixMilli(rec.Timestamp).UTC(),
		})
	}
	return rows, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// sessionUpdate is one lifecycle change of a game_sessions row.
type sessionUpdate struct {
	GameID   string
	RoomCode string
	Started  time.Time
	Finished bool
	Ended    time.Time
}

// sessionUpdates folds a batch into at most one update per game, in first-seen order.
func sessionUpdates(recs []models.GameActionRecord) []sessionUpdate {
	var order []string
	byGame := map[string]*sessionUpdate{}
	for _, rec := range recs {
		if rec.GameID == "" {
			continue
		}
		at := time.UnixMilli(rec.Timestamp).UTC()
		u, ok := byGame[rec.GameID]
		if !ok {
			u = &sessionUpdate{GameID: rec.GameID, RoomCode: rec.RoomCode, Started: at}
			byGame[rec.GameID] = u
			order = append(order, rec.GameID)
		}
		switch rec.ActionType {
		case actionGameStarted, actionRematchStarted:
			u.Started = at
		case actionGameFinished:
			u.Finished = true
			u.Ended = at
		}
	}
	out := make([]sessionUpdate, len(order))
	for i, id := range order {
		out[i] = *byGame[id]
	}
	return out
}

func (u sessionUpdate) apply(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO game_sessions (id, room_code, status, start_time)
		VALUES ($1, $2, 'in_progress', $3)
		ON CONFLICT (id) DO NOTHING
	`, u.GameID, u.RoomCode, u.Started)
	if err != nil {
		return fmt.Errorf("upsert game session %s: %w", u.GameID, err)
	}
	if !u.Finished {
		return nil
	}
	_, err = tx.Exec(ctx, `
		UPDATE game_sessions
		SET status = 'completed', end_time = $2
		WHERE id = $1 AND status <> 'completed'
	`, u.GameID, u.Ended)
	if err != nil {
		return fmt.Errorf("finalize game session %s: %w", u.GameID, err)
	}
	return nil
}
